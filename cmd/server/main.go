// Command server runs the chat assistant HTTP API.
//
// @title       Chat Assistant API
// @version     1.0
// @description Multi-chat assistant backend: chats, messages, file uploads and image analysis.
// @BasePath    /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/chat-assistant-backend/internal/completion"
	"github.com/tbourn/chat-assistant-backend/internal/config"
	httpapi "github.com/tbourn/chat-assistant-backend/internal/http"
	"github.com/tbourn/chat-assistant-backend/internal/observability"
	"github.com/tbourn/chat-assistant-backend/internal/repo"
	"github.com/tbourn/chat-assistant-backend/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version string

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	log.Logger = sysutil.NewLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	zerolog.DefaultContextLogger = &log.Logger
	gin.SetMode(cfg.GinMode)

	ver := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, ver); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server exited")
}

func run(ctx context.Context, cfg config.Config, ver string) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	store, err := repo.NewChatStore(cfg.ChatDir)
	if err != nil {
		return err
	}
	assets, err := repo.NewAssetFiles(cfg.UploadDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}
	if n, err := repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Msg("idempotency purge")
	} else if n > 0 {
		log.Info().Int64("purged", n).Msg("expired idempotency keys removed")
	}

	gw, err := completion.Build(ctx, completion.Options{
		Provider:      cfg.Completion.Provider,
		OpenAIKey:     cfg.Completion.OpenAIKey,
		OpenAIBaseURL: cfg.Completion.OpenAIBaseURL,
		GeminiKey:     cfg.Completion.GeminiKey,
		GeminiBaseURL: cfg.Completion.GeminiBaseURL,
		Timeout:       cfg.Completion.Timeout,
		MaxConcurrent: cfg.Completion.MaxConcurrent,
	})
	if err != nil {
		return err
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Store:   store,
		Assets:  assets,
		DB:      db,
		Gateway: gw,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", ver).
			Str("provider", cfg.Completion.Provider).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
