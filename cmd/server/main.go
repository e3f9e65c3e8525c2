// reviewer2 - peer-review simulation server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jaydahhei/reviewer2/internal/api"
	"github.com/jaydahhei/reviewer2/internal/completion"
	"github.com/jaydahhei/reviewer2/internal/config"
	"github.com/jaydahhei/reviewer2/internal/identity"
	"github.com/jaydahhei/reviewer2/internal/middleware"
	"github.com/jaydahhei/reviewer2/internal/quota"
	"github.com/jaydahhei/reviewer2/internal/session"
	"github.com/jaydahhei/reviewer2/internal/store"
	"github.com/jaydahhei/reviewer2/internal/tally"
	"github.com/jaydahhei/reviewer2/web"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	if cfg.Provider.APIKey == "" {
		slog.Warn("TOGETHER_API_KEY is not set; submissions will fail until it is configured")
	}

	// Initialize services.
	completions := completion.NewTogetherClient(cfg.Provider.APIKey, cfg.Provider.BaseURL)
	tracker := quota.NewTracker(repo, cfg.Quota)
	counters := tally.NewService(repo)
	registry := session.NewRegistry(cfg.SessionTTL)
	orchestrator := session.NewOrchestrator(completions, tracker, counters, cfg.Provider)

	// Initialize handlers.
	handler := api.NewHandler(registry, orchestrator, tracker, counters, cfg)
	feedHandler := tally.NewWebSocketHandler(counters, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// All routes use identity middleware (no auth needed).
	handler.RegisterRoutes(r)

	// WebSocket live tally feed.
	r.Get("/ws/tally", feedHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout; completions and the tally feed are long-lived
		IdleTimeout:  120 * time.Second,
	}

	// Start session sweeper.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry.StartSweeper(ctx)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
