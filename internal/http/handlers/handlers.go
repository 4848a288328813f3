// Package handlers provides HTTP handler implementations for the public API.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Business rules, tier fallback,
// and authorization all live in the service layer.
package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reviewhub/go-review-backend/internal/blobstore"
	"github.com/reviewhub/go-review-backend/internal/domain"
	"github.com/reviewhub/go-review-backend/internal/identity"
	"github.com/reviewhub/go-review-backend/internal/realtime"
	"github.com/reviewhub/go-review-backend/internal/search"
	"github.com/reviewhub/go-review-backend/internal/services"
	"github.com/reviewhub/go-review-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ReviewService defines review and comment operations consumed by HTTP
// handlers. Implementations should be safe for concurrent use and must honor
// the provided context for cancellation and timeouts.
type ReviewService interface {
	// Add stores a new review, falling back to the device-local tier.
	Add(ctx context.Context, r *domain.Review) (*domain.Review, error)
	// ListPage returns a merged page of reviews.
	ListPage(ctx context.Context, page, pageSize int) (*services.ReviewPage, error)
	// Get returns a single review with merged comments.
	Get(ctx context.Context, id string) (*domain.Review, error)
	// Update patches a remote review owned by the actor.
	Update(ctx context.Context, actor *identity.User, id string, p services.ReviewPatch) (*domain.Review, error)
	// Delete removes a review and its comments from both tiers.
	Delete(ctx context.Context, actor *identity.User, id string) error
	// AddComment attaches a comment to a review.
	AddComment(ctx context.Context, reviewID string, c *domain.Comment) (*domain.Comment, error)
	// DeleteComment removes a single comment.
	DeleteComment(ctx context.Context, actor *identity.User, reviewID, commentID string) error
	// Search ranks reviews against a free-text query.
	Search(ctx context.Context, query string, k int) ([]search.Result, error)
}

// ChatService defines chat room and message operations consumed by HTTP
// handlers.
type ChatService interface {
	CreateRoom(ctx context.Context, name, description, createdBy string) (*domain.ChatRoom, error)
	Rooms(ctx context.Context) ([]domain.ChatRoom, error)
	GetRoom(ctx context.Context, id string) (*domain.ChatRoom, error)
	SubscribeRooms(ctx context.Context, fn func([]domain.ChatRoom)) realtime.Unsubscribe
	JoinRoom(ctx context.Context, id string) (bool, error)
	LeaveRoom(ctx context.Context, id string) (bool, error)
	SendMessage(ctx context.Context, roomID string, m *domain.ChatMessage) (*domain.ChatMessage, error)
	Messages(ctx context.Context, roomID string, limit int, beforeID string) ([]domain.ChatMessage, error)
	SubscribeMessages(ctx context.Context, roomID string, fn func([]domain.ChatMessage)) realtime.Unsubscribe
	DeleteRoom(ctx context.Context, actor *identity.User, id string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for reviews, comments, chat, and profile
// uploads. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	reviewSvc ReviewService
	chatSvc   ChatService
	blobs     blobstore.Store
	idemTTL   time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(reviewSvc ReviewService, chatSvc ChatService, blobs blobstore.Store) *Handlers {
	return &Handlers{reviewSvc: reviewSvc, chatSvc: chatSvc, blobs: blobs, idemTTL: 24 * time.Hour}
}

// WithIdempotencyTTL overrides how long stored create results stay replayable.
// Values <= 0 keep the default.
func (h *Handlers) WithIdempotencyTTL(ttl time.Duration) *Handlers {
	if ttl > 0 {
		h.idemTTL = ttl
	}
	return h
}

// actor returns the authenticated identity resolved by upstream middleware,
// or nil for anonymous requests.
func actor(c *gin.Context) *identity.User {
	return identity.FromContext(c.Request.Context())
}

// authorOf returns the display name to attribute a write to: the identity's
// name when present, otherwise the provided fallback, otherwise "Anonymous".
func authorOf(u *identity.User, fallback string) string {
	if u != nil {
		if n := u.DisplayName(); n != "" {
			return n
		}
	}
	if fallback != "" {
		return fallback
	}
	return "Anonymous"
}

//
// Shared DTOs and helpers
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// isForbidden reports whether err is the service-level permission rejection.
func isForbidden(err error) bool {
	return errors.Is(err, services.ErrForbidden)
}
