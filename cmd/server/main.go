// Package main is the entrypoint for the lingocast API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kiranshivaraju/lingocast/internal/ai"
	"github.com/kiranshivaraju/lingocast/internal/api"
	"github.com/kiranshivaraju/lingocast/internal/api/handler"
	mw "github.com/kiranshivaraju/lingocast/internal/api/middleware"
	"github.com/kiranshivaraju/lingocast/internal/api/response"
	"github.com/kiranshivaraju/lingocast/internal/cache"
	"github.com/kiranshivaraju/lingocast/internal/config"
	"github.com/kiranshivaraju/lingocast/internal/media"
	"github.com/kiranshivaraju/lingocast/internal/practice"
	"github.com/kiranshivaraju/lingocast/internal/session"
	"github.com/kiranshivaraju/lingocast/internal/speech"
	"github.com/kiranshivaraju/lingocast/internal/store"
	"github.com/kiranshivaraju/lingocast/internal/video"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast when invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env,
		"legacy_video", cfg.Legacy.Enabled())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp := newTracerProvider(cfg.Server.Env)
	otel.SetTracerProvider(tp)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(flushCtx); err != nil {
			slog.Warn("tracer provider shutdown failed", "error", err)
		}
	}()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create AI provider
	aiProvider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	tutor := ai.NewTutorService(aiProvider, cfg.AI.InferenceTimeout)
	slog.Info("AI provider initialized", "provider", aiProvider.Name())

	// 6. Create store and bootstrap the operator key
	pgStore := store.NewPostgresStore(pool)
	if cfg.Server.AdminKey != "" {
		created, err := ensureAdminKey(ctx, pgStore, cfg.Server.AdminKey)
		if err != nil {
			return fmt.Errorf("bootstrap admin key: %w", err)
		}
		slog.Info("admin key ready", "created", created)
	}

	// 7. Video platforms and render tracking
	var legacy *video.LegacyClient
	if cfg.Legacy.Enabled() {
		legacy = video.NewLegacyClient(cfg.Legacy)
	}
	registry := video.NewDefaultRegistry(video.NewAvatarClient(cfg.Avatar), legacy)
	renders := media.NewRenderService(pgStore, redisCache, registry, cfg.Poll)

	resumed, err := renders.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume render jobs: %w", err)
	}
	slog.Info("render tracking started", "resumed", resumed)

	// 8. Sessions and pronunciation practice
	sessions := session.NewManager(redisCache)
	practiceSvc := practice.NewService(speech.NewClient(cfg.Speech), tutor, pgStore)

	// 9. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),

		HealthHandler: healthHandler(pgStore, redisCache),

		CreateProfile: handler.NewCreateProfileHandler(pgStore),
		GetProfile:    handler.NewGetProfileHandler(pgStore),
		UpdateProfile: handler.NewUpdateProfileHandler(pgStore),

		StartSession:   handler.NewStartSessionHandler(sessions, pgStore),
		GetSession:     handler.NewGetSessionHandler(sessions),
		UpdateSession:  handler.NewUpdateSessionHandler(sessions),
		EndSession:     handler.NewEndSessionHandler(sessions),
		StartRecording: handler.NewStartRecordingHandler(sessions),
		StopRecording:  handler.NewStopRecordingHandler(sessions),

		Render:       handler.NewRenderHandler(renders),
		RenderBatch:  handler.NewRenderBatchHandler(renders),
		RenderStatus: handler.NewRenderStatusHandler(renders),

		ListVideos:  handler.NewListVideosHandler(pgStore),
		DeleteVideo: handler.NewDeleteVideoHandler(pgStore),

		GenerateLesson: handler.NewLessonHandler(handler.LessonDeps{
			Generator: tutor,
			Profiles:  pgStore,
			Cache:     redisCache,
			Sessions:  sessions,
		}),

		SubmitPractice:  handler.NewSubmitPracticeHandler(practiceSvc, pgStore),
		PracticeHistory: handler.NewPracticeHistoryHandler(practiceSvc),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(router, "lingocast"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg.Poll),
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := renders.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("render shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newTracerProvider samples every root span. Spans are not exported; they
// give request logs and render polls a shared trace_id.
func newTracerProvider(env string) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(
		attribute.String("service.name", "lingocast"),
		attribute.String("deployment.environment", env),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
}

// writeTimeout leaves room for a synchronous batch render to poll every
// attempt at the regular interval.
func writeTimeout(p config.PollConfig) time.Duration {
	const floor = 30 * time.Second
	return max(floor, time.Duration(p.MaxAttempts)*p.Interval+floor)
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
