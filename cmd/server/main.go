// Command server runs the review and chat HTTP API.
//
// Startup order: environment (.env optional) → config → logging → tracing →
// SQLite remote tier → device-local fallback store → blob store → router →
// room cleanup loop → HTTP server with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reviewhub/go-review-backend/internal/blobstore"
	"github.com/reviewhub/go-review-backend/internal/config"
	httpapi "github.com/reviewhub/go-review-backend/internal/http"
	"github.com/reviewhub/go-review-backend/internal/localstore"
	"github.com/reviewhub/go-review-backend/internal/observability"
	"github.com/reviewhub/go-review-backend/internal/realtime"
	"github.com/reviewhub/go-review-backend/internal/repo"
	"github.com/reviewhub/go-review-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath, cfg.OTEL.Enabled)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	dev, err := localstore.NewDirStorage(cfg.LocalStorePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.LocalStorePath).Msg("open local store failed")
	}
	local := localstore.New(dev)

	blobs, err := blobstore.NewFSStore(cfg.BlobStorePath, cfg.PublicBaseURL+"/files")
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.BlobStorePath).Msg("open blob store failed")
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	chatSvc := httpapi.RegisterRoutes(engine, db, local, realtime.NewHub(), blobs, cfg)

	// Periodic removal of idle, empty chat rooms.
	go chatSvc.RunCleanup(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}
