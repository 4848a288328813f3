package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/reviewhub/go-review-backend/internal/authz"
	"github.com/reviewhub/go-review-backend/internal/domain"
	"github.com/reviewhub/go-review-backend/internal/identity"
	"github.com/reviewhub/go-review-backend/internal/localstore"
	"github.com/reviewhub/go-review-backend/internal/repo"
	"github.com/reviewhub/go-review-backend/internal/search"
)

// ReviewBackend abstracts the remote persistence tier for reviews and their
// comments. The production implementation wraps the repo package; tests
// substitute fakes, including ones that fail on demand to exercise the
// device-local fallback tier.
type ReviewBackend interface {
	CreateReview(ctx context.Context, db *gorm.DB, r *domain.Review) (*domain.Review, error)
	CountReviews(ctx context.Context, db *gorm.DB) (int64, error)
	ListReviewsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Review, error)
	GetReview(ctx context.Context, db *gorm.DB, id string) (*domain.Review, error)
	UpdateReview(ctx context.Context, db *gorm.DB, id string, patch map[string]any) error
	DeleteReview(ctx context.Context, db *gorm.DB, id string) (int64, error)

	CreateComment(ctx context.Context, db *gorm.DB, c *domain.Comment) (*domain.Comment, error)
	ListComments(ctx context.Context, db *gorm.DB, reviewID string) ([]domain.Comment, error)
	GetComment(ctx context.Context, db *gorm.DB, id string) (*domain.Comment, error)
	DeleteComment(ctx context.Context, db *gorm.DB, id string) (int64, error)
	DeleteCommentsForReview(ctx context.Context, db *gorm.DB, reviewID string) (int64, error)
}

// ReviewService orchestrates the two storage tiers for reviews. Reads merge
// both tiers; writes go remote-first and fall back to the device-local store,
// tagging each record's Source so consumers can render provenance.
type ReviewService struct {
	DB      *gorm.DB
	Backend ReviewBackend
	Local   *localstore.Store

	// DemoAdminEnabled bypasses ownership checks. Demo deployments only.
	DemoAdminEnabled bool

	// SearchDocLimit caps how many remote reviews the search index ingests.
	// Zero means the default of 500.
	SearchDocLimit int
}

// ReviewPage is one page of merged review results. Total counts remote rows
// only; device-local reviews ride along on every page and are not paginated.
type ReviewPage struct {
	Data     []domain.Review `json:"data"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	NextPage *int            `json:"next_page,omitempty"`
}

// ReviewPatch carries the mutable review fields for Update. Nil fields are
// left untouched.
type ReviewPatch struct {
	Title    *string
	Content  *string
	Rating   *int
	Category *string
}

const defaultSearchDocLimit = 500

// Add persists a new review. On remote failure the review is written to the
// device-local store under a "local_" identifier and tagged SourceLocal.
func (s *ReviewService) Add(ctx context.Context, r *domain.Review) (*domain.Review, error) {
	if r == nil {
		return nil, ErrReviewNotFound
	}
	if r.Rating < 1 || r.Rating > 5 {
		return nil, ErrInvalidRating
	}
	if r.Date == "" {
		r.Date = time.Now().UTC().Format("2006-01-02")
	}

	created, err := s.Backend.CreateReview(ctx, s.DB, r)
	if err == nil {
		created.Source = domain.SourceRemote
		return created, nil
	}

	r.ID = localstore.NewLocalID()
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	r.Source = domain.SourceLocal
	if !localstore.AppendOne(s.Local, localstore.NSReviews, *r) {
		return nil, ErrStorageUnavailable
	}
	return r, nil
}

// ListPage returns one page of remote reviews with every device-local review
// appended. A remote outage degrades to the local slice alone rather than an
// error.
func (s *ReviewService) ListPage(ctx context.Context, page, pageSize int) (*ReviewPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	out := &ReviewPage{Page: page, PageSize: pageSize, Data: []domain.Review{}}

	total, err := s.Backend.CountReviews(ctx, s.DB)
	if err == nil {
		out.Total = total
		offset := (page - 1) * pageSize
		remote, lerr := s.Backend.ListReviewsPage(ctx, s.DB, offset, pageSize)
		if lerr == nil {
			for i := range remote {
				remote[i].Source = domain.SourceRemote
			}
			out.Data = remote
		}
		if int64(offset+pageSize) < total {
			next := page + 1
			out.NextPage = &next
		}
	}

	for _, lr := range s.localReviews() {
		out.Data = append(out.Data, lr)
	}
	return out, nil
}

// Get fetches a single review with its comments from both tiers. A "local_"
// identifier routes straight to the device store. For remote identifiers a
// backend outage still yields a result when local side-table comments exist
// for the review: a placeholder review carrying those comments.
func (s *ReviewService) Get(ctx context.Context, id string) (*domain.Review, error) {
	if localstore.IsLocalID(id) {
		for _, r := range s.localReviews() {
			if r.ID == id {
				out := r
				return &out, nil
			}
		}
		return nil, ErrReviewNotFound
	}

	r, err := s.Backend.GetReview(ctx, s.DB, id)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			if ph := s.placeholderReview(id); ph != nil {
				return ph, nil
			}
		}
		return nil, ErrReviewNotFound
	}

	comments, cerr := s.Backend.ListComments(ctx, s.DB, id)
	if cerr != nil {
		comments = nil
	}
	for i := range comments {
		comments[i].Source = domain.SourceRemote
	}
	local := s.localSideComments(id)
	r.Comments = append(comments, local...)
	r.CommentsCount = int64(len(r.Comments))
	r.HasLocalComments = len(local) > 0
	r.Source = domain.SourceRemote
	return r, nil
}

// Update patches a remote review after an ownership check. Device-local
// reviews cannot be edited.
func (s *ReviewService) Update(ctx context.Context, actor *identity.User, id string, p ReviewPatch) (*domain.Review, error) {
	if localstore.IsLocalID(id) {
		return nil, ErrLocalEditUnsupported
	}
	if p.Rating != nil && (*p.Rating < 1 || *p.Rating > 5) {
		return nil, ErrInvalidRating
	}

	r, err := s.Backend.GetReview(ctx, s.DB, id)
	if err != nil {
		return nil, ErrReviewNotFound
	}
	if !authz.CanModifyReview(actor, s.DemoAdminEnabled, r.UserID, r.Author) {
		return nil, ErrForbidden
	}

	patch := map[string]any{}
	if p.Title != nil {
		patch["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Content != nil {
		patch["content"] = *p.Content
	}
	if p.Rating != nil {
		patch["rating"] = *p.Rating
	}
	if p.Category != nil {
		patch["category"] = *p.Category
	}
	if len(patch) == 0 {
		return r, nil
	}
	if err := s.Backend.UpdateReview(ctx, s.DB, id, patch); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrReviewNotFound
		}
		return nil, err
	}
	updated, err := s.Backend.GetReview(ctx, s.DB, id)
	if err != nil {
		return nil, ErrReviewNotFound
	}
	updated.Source = domain.SourceRemote
	return updated, nil
}

// Delete removes a review and everything hanging off it. Remote deletes
// cascade through comments in both tiers; device-local deletes purge the
// local record and its embedded comments.
func (s *ReviewService) Delete(ctx context.Context, actor *identity.User, id string) error {
	if localstore.IsLocalID(id) {
		var target *domain.Review
		for _, r := range s.localReviews() {
			if r.ID == id {
				cp := r
				target = &cp
				break
			}
		}
		if target == nil {
			return ErrReviewNotFound
		}
		if !authz.CanModifyReview(actor, s.DemoAdminEnabled, target.UserID, target.Author) {
			return ErrForbidden
		}
		localstore.RemoveWhere(s.Local, localstore.NSReviews, func(r domain.Review) bool {
			return r.ID == id
		})
		localstore.RemoveWhere(s.Local, localstore.NSComments, func(c domain.Comment) bool {
			return c.ReviewID == id
		})
		return nil
	}

	r, err := s.Backend.GetReview(ctx, s.DB, id)
	if err != nil {
		return ErrReviewNotFound
	}
	if !authz.CanModifyReview(actor, s.DemoAdminEnabled, r.UserID, r.Author) {
		return ErrForbidden
	}
	if _, err := s.Backend.DeleteCommentsForReview(ctx, s.DB, id); err != nil {
		return err
	}
	rows, err := s.Backend.DeleteReview(ctx, s.DB, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		// The row vanished between the ownership check and the delete, or a
		// row-level policy rejected it. Either way the caller may not assume
		// success.
		return ErrForbidden
	}
	localstore.RemoveWhere(s.Local, localstore.NSComments, func(c domain.Comment) bool {
		return c.ReviewID == id
	})
	return nil
}

// AddComment attaches a comment to a review in whichever tier the review
// lives in. Comments on remote reviews fall back to a local side table when
// the backend is unreachable, so a reader can still see them merged in.
func (s *ReviewService) AddComment(ctx context.Context, reviewID string, c *domain.Comment) (*domain.Comment, error) {
	if c == nil || strings.TrimSpace(c.Content) == "" {
		return nil, ErrEmptyMessage
	}
	c.ReviewID = reviewID

	if localstore.IsLocalID(reviewID) {
		c.ID = localstore.NewCommentID()
		c.CreatedAt = time.Now().UTC()
		c.Source = domain.SourceLocal
		matched := localstore.UpdateWhere(s.Local, localstore.NSReviews,
			func(r *domain.Review) bool { return r.ID == reviewID },
			func(r *domain.Review) { r.Comments = append(r.Comments, *c) },
		)
		if !matched {
			return nil, ErrReviewNotFound
		}
		return c, nil
	}

	created, err := s.Backend.CreateComment(ctx, s.DB, c)
	if err == nil {
		created.Source = domain.SourceRemote
		return created, nil
	}

	c.ID = localstore.NewCommentID()
	c.CreatedAt = time.Now().UTC()
	c.Source = domain.SourceLocal
	if !localstore.AppendOne(s.Local, localstore.NSComments, *c) {
		return nil, ErrStorageUnavailable
	}
	return c, nil
}

// DeleteComment removes a comment, routing on the identifier prefixes. Local
// comments are device-owned and skip the ownership check; remote comments
// are checked against the acting identity.
func (s *ReviewService) DeleteComment(ctx context.Context, actor *identity.User, reviewID, commentID string) error {
	if localstore.IsLocalID(reviewID) {
		var removed bool
		matched := localstore.UpdateWhere(s.Local, localstore.NSReviews,
			func(r *domain.Review) bool { return r.ID == reviewID },
			func(r *domain.Review) {
				kept := r.Comments[:0]
				for _, c := range r.Comments {
					if c.ID == commentID {
						removed = true
						continue
					}
					kept = append(kept, c)
				}
				r.Comments = kept
			},
		)
		if !matched || !removed {
			return ErrCommentNotFound
		}
		return nil
	}

	if localstore.IsLocalCommentID(commentID) {
		var removed bool
		localstore.RemoveWhere(s.Local, localstore.NSComments, func(c domain.Comment) bool {
			hit := c.ReviewID == reviewID && c.ID == commentID
			removed = removed || hit
			return hit
		})
		if !removed {
			return ErrCommentNotFound
		}
		return nil
	}

	c, err := s.Backend.GetComment(ctx, s.DB, commentID)
	if err != nil {
		return ErrCommentNotFound
	}
	if c.ReviewID != reviewID {
		return ErrCommentNotFound
	}
	if !authz.CanModifyComment(actor, s.DemoAdminEnabled, c.UserID, c.Author) {
		return ErrForbidden
	}
	rows, err := s.Backend.DeleteComment(ctx, s.DB, commentID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrCommentNotFound
	}
	return nil
}

// Search ranks reviews from both tiers against a free-text query. The index
// is rebuilt per call over a bounded document set; at this corpus size that
// is cheaper than keeping an index coherent across two tiers.
func (s *ReviewService) Search(ctx context.Context, query string, k int) ([]search.Result, error) {
	limit := s.SearchDocLimit
	if limit <= 0 {
		limit = defaultSearchDocLimit
	}
	docs, err := s.Backend.ListReviewsPage(ctx, s.DB, 0, limit)
	if err != nil {
		docs = nil
	}
	for i := range docs {
		docs[i].Source = domain.SourceRemote
	}
	docs = append(docs, s.localReviews()...)

	idx := search.NewReviewIndex(docs)
	return idx.TopK(query, k), nil
}

// localReviews loads the device-local reviews, normalizing derived fields.
func (s *ReviewService) localReviews() []domain.Review {
	items := localstore.LoadAll[domain.Review](s.Local, localstore.NSReviews)
	for i := range items {
		items[i].Source = domain.SourceLocal
		for j := range items[i].Comments {
			items[i].Comments[j].Source = domain.SourceLocal
		}
		items[i].CommentsCount = int64(len(items[i].Comments))
	}
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].CreatedAt.After(items[b].CreatedAt)
	})
	return items
}

// localSideComments returns side-table comments written for a remote review
// while the backend was down, oldest first.
func (s *ReviewService) localSideComments(reviewID string) []domain.Comment {
	all := localstore.LoadAll[domain.Comment](s.Local, localstore.NSComments)
	var out []domain.Comment
	for _, c := range all {
		if c.ReviewID == reviewID {
			c.Source = domain.SourceLocal
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

// placeholderReview is returned for a remote review id when the backend is
// unreachable but local side-table comments exist for it. Rating 0 marks the
// record as synthetic.
func (s *ReviewService) placeholderReview(id string) *domain.Review {
	local := s.localSideComments(id)
	if len(local) == 0 {
		return nil
	}
	return &domain.Review{
		ID:               id,
		Title:            "Review could not be loaded",
		Author:           "unknown",
		Content:          "The review could not be loaded because the remote backend is unreachable.",
		Rating:           0,
		Date:             time.Now().UTC().Format("2006-01-02"),
		Comments:         local,
		CommentsCount:    int64(len(local)),
		HasLocalComments: true,
		Source:           domain.SourceLocal,
	}
}
