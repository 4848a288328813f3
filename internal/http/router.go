// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/reviewhub/go-review-backend/internal/blobstore"
	"github.com/reviewhub/go-review-backend/internal/config"
	"github.com/reviewhub/go-review-backend/internal/domain"
	"github.com/reviewhub/go-review-backend/internal/http/handlers"
	"github.com/reviewhub/go-review-backend/internal/http/middleware"
	"github.com/reviewhub/go-review-backend/internal/identity"
	"github.com/reviewhub/go-review-backend/internal/localstore"
	"github.com/reviewhub/go-review-backend/internal/realtime"
	"github.com/reviewhub/go-review-backend/internal/repo"
	"github.com/reviewhub/go-review-backend/internal/services"
)

// reviewBackendShim adapts the repository free functions to the
// services.ReviewBackend interface expected by the ReviewService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type reviewBackendShim struct{}

func (reviewBackendShim) CreateReview(ctx context.Context, db *gorm.DB, r *domain.Review) (*domain.Review, error) {
	return repo.CreateReview(ctx, db, r)
}

func (reviewBackendShim) CountReviews(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountReviews(ctx, db)
}

func (reviewBackendShim) ListReviewsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Review, error) {
	return repo.ListReviewsPage(ctx, db, offset, limit)
}

func (reviewBackendShim) GetReview(ctx context.Context, db *gorm.DB, id string) (*domain.Review, error) {
	return repo.GetReview(ctx, db, id)
}

func (reviewBackendShim) UpdateReview(ctx context.Context, db *gorm.DB, id string, patch map[string]any) error {
	return repo.UpdateReview(ctx, db, id, patch)
}

func (reviewBackendShim) DeleteReview(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	return repo.DeleteReview(ctx, db, id)
}

func (reviewBackendShim) CreateComment(ctx context.Context, db *gorm.DB, c *domain.Comment) (*domain.Comment, error) {
	return repo.CreateComment(ctx, db, c)
}

func (reviewBackendShim) ListComments(ctx context.Context, db *gorm.DB, reviewID string) ([]domain.Comment, error) {
	return repo.ListComments(ctx, db, reviewID)
}

func (reviewBackendShim) GetComment(ctx context.Context, db *gorm.DB, id string) (*domain.Comment, error) {
	return repo.GetComment(ctx, db, id)
}

func (reviewBackendShim) DeleteComment(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	return repo.DeleteComment(ctx, db, id)
}

func (reviewBackendShim) DeleteCommentsForReview(ctx context.Context, db *gorm.DB, reviewID string) (int64, error) {
	return repo.DeleteCommentsForReview(ctx, db, reviewID)
}

// chatBackendShim adapts the repository free functions to the
// services.ChatBackend interface and publishes change notifications through
// the in-process hub after each successful write, which is what drives the
// WebSocket streams.
type chatBackendShim struct {
	hub *realtime.Hub
}

func (s chatBackendShim) CreateRoom(ctx context.Context, db *gorm.DB, r *domain.ChatRoom) (*domain.ChatRoom, error) {
	out, err := repo.CreateRoom(ctx, db, r)
	if err == nil {
		s.hub.PublishRoomsChanged()
	}
	return out, err
}

func (s chatBackendShim) ListRooms(ctx context.Context, db *gorm.DB) ([]domain.ChatRoom, error) {
	return repo.ListRooms(ctx, db)
}

func (s chatBackendShim) GetRoom(ctx context.Context, db *gorm.DB, id string) (*domain.ChatRoom, error) {
	return repo.GetRoom(ctx, db, id)
}

func (s chatBackendShim) TouchRoom(ctx context.Context, db *gorm.DB, id string) error {
	return repo.TouchRoom(ctx, db, id, time.Now().UTC())
}

func (s chatBackendShim) AdjustActiveUsers(ctx context.Context, db *gorm.DB, id string, delta int) error {
	err := repo.AdjustActiveUsers(ctx, db, id, delta)
	if err == nil {
		s.hub.PublishRoomsChanged()
	}
	return err
}

func (s chatBackendShim) ListInactiveRooms(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]domain.ChatRoom, error) {
	return repo.ListInactiveRooms(ctx, db, cutoff)
}

func (s chatBackendShim) DeleteRoom(ctx context.Context, db *gorm.DB, id string) (int64, error) {
	rows, err := repo.DeleteRoom(ctx, db, id)
	if err == nil && rows > 0 {
		s.hub.PublishRoomsChanged()
	}
	return rows, err
}

func (s chatBackendShim) CreateMessage(ctx context.Context, db *gorm.DB, m *domain.ChatMessage) (*domain.ChatMessage, error) {
	out, err := repo.CreateMessage(ctx, db, m)
	if err == nil {
		s.hub.PublishMessage(*out)
	}
	return out, err
}

func (s chatBackendShim) ListMessages(ctx context.Context, db *gorm.DB, roomID string, limit int) ([]domain.ChatMessage, error) {
	return repo.ListMessages(ctx, db, roomID, limit)
}

func (s chatBackendShim) ListMessagesBefore(ctx context.Context, db *gorm.DB, roomID, beforeID string, limit int) ([]domain.ChatMessage, error) {
	return repo.ListMessagesBefore(ctx, db, roomID, beforeID, limit)
}

func (s chatBackendShim) DeleteMessagesForRoom(ctx context.Context, db *gorm.DB, roomID string) (int64, error) {
	return repo.DeleteMessagesForRoom(ctx, db, roomID)
}

func (s chatBackendShim) SubscribeRooms(fn func()) realtime.Unsubscribe {
	return s.hub.SubscribeRooms(fn)
}

func (s chatBackendShim) SubscribeMessages(roomID string, fn func(domain.ChatMessage)) realtime.Unsubscribe {
	return s.hub.SubscribeMessages(roomID, fn)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), authentication,
// idempotency and rate limiting, CORS and security headers, health and
// metrics endpoints, and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Auth (identity must precede idempotency and rate keying)
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
// It returns the chat service so the caller can own the room cleanup loop.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, local *localstore.Store, hub *realtime.Hub, blobs blobstore.Store, cfg config.Config) *services.ChatService {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (8 MiB; avatar uploads need headroom)
	r.Use(limitBody(8 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Identity resolution
	r.Use(middleware.Auth(identity.NewJWTVerifier(cfg.Auth.JWTSecret)))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (opt-in)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Uploaded files (avatars)
	r.Static("/files", cfg.BlobStorePath)

	// Dependency injection: services ← repo/db/localstore/hub
	reviewSvc := &services.ReviewService{
		DB:               db,
		Backend:          reviewBackendShim{},
		Local:            local,
		DemoAdminEnabled: cfg.Auth.DemoAdminEnabled,
	}
	chatSvc := &services.ChatService{
		DB:               db,
		Backend:          chatBackendShim{hub: hub},
		Local:            local,
		DemoAdminEnabled: cfg.Auth.DemoAdminEnabled,
		RoomInactivity:   cfg.Chat.RoomInactivity,
		CleanupInterval:  cfg.Chat.CleanupInterval,
		MessageLimit:     cfg.Chat.MessageLimit,
	}
	h := handlers.New(reviewSvc, chatSvc, blobs).WithIdempotencyTTL(cfg.IdempotencyTTL)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	api.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws"})))
	{
		// Reviews
		api.POST("/reviews", h.CreateReview)
		api.GET("/reviews", h.ListReviews)
		api.GET("/reviews/search", h.SearchReviews)
		api.GET("/reviews/:id", h.GetReview)
		api.PATCH("/reviews/:id", h.UpdateReview)
		api.DELETE("/reviews/:id", h.DeleteReview)

		// Comments
		api.POST("/reviews/:id/comments", h.CreateComment)
		api.DELETE("/reviews/:id/comments/:cid", h.DeleteComment)

		// Chat rooms
		api.POST("/rooms", h.CreateRoom)
		api.GET("/rooms", h.ListRooms)
		api.GET("/rooms/:id", h.GetRoom)
		api.DELETE("/rooms/:id", h.DeleteRoom)
		api.POST("/rooms/:id/join", h.JoinRoom)
		api.POST("/rooms/:id/leave", h.LeaveRoom)

		// Messages
		api.GET("/rooms/:id/messages", h.ListMessages)
		api.POST("/rooms/:id/messages", h.PostMessage)

		// Profile
		api.POST("/profile/avatar", h.UploadAvatar)
	}

	// WebSocket streams bypass gzip; compressed frames confuse some clients.
	ws := groupWithPrefix(r, apiBase)
	{
		ws.GET("/ws/rooms", h.RoomsWS)
		ws.GET("/rooms/:id/ws", h.RoomMessagesWS)
	}

	return chatSvc
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
