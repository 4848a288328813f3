// Review HTTP handlers.
//
// This file exposes REST endpoints for review resources:
//   - POST   /reviews                         (create)
//   - GET    /reviews                         (list, paginated, ETag support)
//   - GET    /reviews/search                  (free-text search)
//   - GET    /reviews/{id}                    (fetch with comments)
//   - PATCH  /reviews/{id}                    (edit, remote-only)
//   - DELETE /reviews/{id}                    (delete with comment cascade)
//   - POST   /reviews/{id}/comments           (add comment)
//   - DELETE /reviews/{id}/comments/{cid}     (delete comment)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reviewhub/go-review-backend/internal/domain"
	"github.com/reviewhub/go-review-backend/internal/http/middleware"
	"github.com/reviewhub/go-review-backend/internal/repo"
	"github.com/reviewhub/go-review-backend/internal/search"
	"github.com/reviewhub/go-review-backend/internal/services"
	"github.com/reviewhub/go-review-backend/internal/utils"
)

//
// DTOs
//

// CreateReviewRequest is the JSON payload for creating a review.
type CreateReviewRequest struct {
	Title    string `json:"title" binding:"required,min=1,max=255" example:"Great coffee maker"`
	Content  string `json:"content" binding:"required" example:"Brews fast and quiet."`
	Rating   int    `json:"rating" binding:"required" example:"5"`
	Category string `json:"category" example:"appliances"`
	// Author overrides the identity display name; anonymous posts use it directly.
	Author string `json:"author" example:"Jane D."`
}

// UpdateReviewRequest is the JSON payload for patching a review. Absent
// fields are left unchanged.
type UpdateReviewRequest struct {
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
	Rating   *int    `json:"rating,omitempty"`
	Category *string `json:"category,omitempty"`
}

// CreateCommentRequest is the JSON payload for commenting on a review.
type CreateCommentRequest struct {
	Content string `json:"content" binding:"required" example:"Totally agree."`
	Author  string `json:"author" example:"Sam"`
}

// ListReviewsResponse wraps a merged page of reviews and pagination info.
type ListReviewsResponse struct {
	Reviews    []domain.Review `json:"reviews"`
	Pagination Pagination      `json:"pagination"`
}

//
// Handlers
//

// CreateReview godoc
// @ID          createReview
// @Summary     Create a review
// @Description Stores a review remotely, or on the device-local tier when the backend is unavailable. The response's source field reports which tier holds it.
// @Tags        Reviews
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.CreateReviewRequest  true  "Create review payload"
//
// @Success     201  {object}  domain.Review
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /reviews [post]
func (h *Handlers) CreateReview(c *gin.Context) {
	var req CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	ctx := c.Request.Context()
	idemKey, hasKey := middleware.GetIdempotencyKey(c)
	svcImpl, _ := h.reviewSvc.(*services.ReviewService)

	// Replay: a create already completed under the same key returns the stored
	// result instead of writing a second review.
	if hasKey && svcImpl != nil && svcImpl.DB != nil {
		uid := middleware.IdempotencyUser(c)
		scope := middleware.IdempotencyScope(c)
		if rec, err := repo.GetIdempotency(ctx, svcImpl.DB, uid, scope, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if prev, err2 := h.reviewSvc.Get(ctx, rec.ResultID); err2 == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, rec.Status, prev)
				return
			}
		}
	}

	u := actor(c)
	r := &domain.Review{
		Title:    strings.TrimSpace(req.Title),
		Content:  req.Content,
		Rating:   req.Rating,
		Category: req.Category,
		Author:   authorOf(u, req.Author),
	}
	if u != nil {
		r.UserID = u.ID
		r.AvatarURL = u.AvatarURL
	}

	created, err := h.reviewSvc.Add(ctx, r)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRating):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}

	// Record the outcome so retries with the same key replay it. Best effort;
	// a failed write only disables replay for this key.
	if hasKey && svcImpl != nil && svcImpl.DB != nil {
		_, _ = repo.CreateIdempotency(ctx, svcImpl.DB,
			middleware.IdempotencyUser(c), middleware.IdempotencyScope(c), idemKey,
			created.ID, http.StatusCreated, h.idemTTL)
	}
	ok(c, http.StatusCreated, created)
}

// ListReviews godoc
// @ID          listReviews
// @Summary     List reviews (paginated, merged)
// @Description Returns a page of remote reviews with every device-local review appended. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Reviews
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListReviewsResponse
// @Header      200  {string} ETag  "Weak ETag for current remote result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /reviews [get]
func (h *Handlers) ListReviews(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort). Only the remote tier participates; local
	// records are per-deployment and rarely change between polls.
	if svc, okType := h.reviewSvc.(*services.ReviewService); okType && svc.DB != nil {
		count, maxTS, err := repo.ReviewsStats(ctx, svc.DB)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"reviews:%d:%d:%d:%d"`, page, pageSize, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	pageResp, err := h.reviewSvc.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((pageResp.Total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListReviewsResponse{
		Reviews: pageResp.Data,
		Pagination: Pagination{
			Page:       pageResp.Page,
			PageSize:   pageResp.PageSize,
			Total:      pageResp.Total,
			TotalPages: totalPages,
			HasNext:    pageResp.NextPage != nil,
		},
	})
}

// SearchReviews godoc
// @ID          searchReviews
// @Summary     Search reviews
// @Description Ranks reviews from both tiers against a free-text query.
// @Tags        Reviews
// @Produce     json
//
// @Param       q  query  string  true  "Query text"  example(quiet espresso)
// @Param       k  query  int     false "Max results" default(10)
//
// @Success     200  {array}   search.Result
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Router      /reviews/search [get]
func (h *Handlers) SearchReviews(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q is required")
		return
	}
	k := utils.AtoiDefault(c.Query("k"), 10)

	results, err := h.reviewSvc.Search(c.Request.Context(), q, k)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	ok(c, http.StatusOK, results)
}

// GetReview godoc
// @ID          getReview
// @Summary     Fetch a review with comments
// @Description Returns the review and its merged comments. When the backend is unreachable but local comments exist for the id, a placeholder review carrying them is returned.
// @Tags        Reviews
// @Produce     json
//
// @Param       id  path  string  true  "Review ID"
//
// @Success     200  {object} domain.Review
// @Failure     404  {object} handlers.ErrorResponse "Review not found"
// @Router      /reviews/{id} [get]
func (h *Handlers) GetReview(c *gin.Context) {
	r, err := h.reviewSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "review not found")
		return
	}
	ok(c, http.StatusOK, r)
}

// UpdateReview godoc
// @ID          updateReview
// @Summary     Edit a review
// @Description Patches a remote review owned by the current identity. Device-local reviews cannot be edited.
// @Tags        Reviews
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Review ID"
// @Param       body  body  handlers.UpdateReviewRequest  true  "Fields to change"
//
// @Success     200  {object} domain.Review
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "Review not found"
// @Router      /reviews/{id} [patch]
func (h *Handlers) UpdateReview(c *gin.Context) {
	var req UpdateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	r, err := h.reviewSvc.Update(c.Request.Context(), actor(c), c.Param("id"), services.ReviewPatch{
		Title:    req.Title,
		Content:  req.Content,
		Rating:   req.Rating,
		Category: req.Category,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRating), errors.Is(err, services.ErrLocalEditUnsupported):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case isForbidden(err):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		case errors.Is(err, services.ErrReviewNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "review not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, r)
}

// DeleteReview godoc
// @ID          deleteReview
// @Summary     Delete a review
// @Description Removes the review and all of its comments from both tiers.
// @Tags        Reviews
// @Produce     json
//
// @Param       id  path  string  true  "Review ID"
//
// @Success     204  {string} string "No Content"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "Review not found"
// @Router      /reviews/{id} [delete]
func (h *Handlers) DeleteReview(c *gin.Context) {
	err := h.reviewSvc.Delete(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		switch {
		case isForbidden(err):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		case errors.Is(err, services.ErrReviewNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "review not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// CreateComment godoc
// @ID          createComment
// @Summary     Comment on a review
// @Description Adds a comment to the review, falling back to a device-local side table when the backend is unavailable.
// @Tags        Comments
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Review ID"
// @Param       body  body  handlers.CreateCommentRequest  true  "Comment payload"
//
// @Success     201  {object} domain.Comment
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Review not found"
// @Router      /reviews/{id}/comments [post]
func (h *Handlers) CreateComment(c *gin.Context) {
	var req CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	u := actor(c)
	comment := &domain.Comment{
		Content: req.Content,
		Author:  authorOf(u, req.Author),
	}
	if u != nil {
		comment.UserID = u.ID
		comment.AvatarURL = u.AvatarURL
	}

	created, err := h.reviewSvc.AddComment(c.Request.Context(), c.Param("id"), comment)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyMessage):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrReviewNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "review not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, created)
}

// DeleteComment godoc
// @ID          deleteComment
// @Summary     Delete a comment
// @Description Removes a single comment from the tier its identifiers route to.
// @Tags        Comments
// @Produce     json
//
// @Param       id   path  string  true  "Review ID"
// @Param       cid  path  string  true  "Comment ID"
//
// @Success     204  {string} string "No Content"
// @Failure     403  {object} handlers.ErrorResponse "Forbidden"
// @Failure     404  {object} handlers.ErrorResponse "Comment not found"
// @Router      /reviews/{id}/comments/{cid} [delete]
func (h *Handlers) DeleteComment(c *gin.Context) {
	err := h.reviewSvc.DeleteComment(c.Request.Context(), actor(c), c.Param("id"), c.Param("cid"))
	if err != nil {
		switch {
		case isForbidden(err):
			fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
		case errors.Is(err, services.ErrCommentNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "comment not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}
