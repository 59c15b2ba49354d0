package main

//go:generate templ generate -path internal/view

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/text/language"

	"github.com/msomdec/agun-web/internal/apiclient"
	"github.com/msomdec/agun-web/internal/config"
	"github.com/msomdec/agun-web/internal/gateway"
	"github.com/msomdec/agun-web/internal/handler"
	"github.com/msomdec/agun-web/internal/location"
	"github.com/msomdec/agun-web/internal/repository/sqlite"
	"github.com/msomdec/agun-web/internal/service"
	"github.com/msomdec/agun-web/internal/session"
	"github.com/msomdec/agun-web/internal/telemetry"
)

const draftSweepInterval = time.Hour

func main() {
	logOpts := &slog.HandlerOptions{Level: slog.LevelInfo}
	logger := slog.New(slog.NewMultiHandler(
		slog.NewTextHandler(os.Stdout, logOpts),
		slog.NewJSONHandler(os.Stderr, logOpts),
	))
	slog.SetDefault(logger)

	cfg, err := config.LoadWeb()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracerProvider, shutdownTracing, err := telemetry.Setup(ctx, "agun-web", cfg.OTELEndpoint)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx, sqlite.WebSchema); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations applied")

	locs, err := location.LoadEmbedded(language.French)
	if err != nil {
		slog.Error("failed to load location catalog", "error", err)
		os.Exit(1)
	}

	api, err := apiclient.New(cfg.APIURL,
		apiclient.WithTimeout(cfg.APITimeout),
		apiclient.WithTokenSource(session.TokenFromContext),
		apiclient.WithUnauthorizedHandler(session.InvalidateFromContext),
		apiclient.WithTracerProvider(tracerProvider),
	)
	if err != nil {
		slog.Error("invalid backend URL", "error", err)
		os.Exit(1)
	}
	slog.Info("using authentication backend", "url", api.BaseURL())

	gw := gateway.NewAuth(api)
	registrations := service.NewRegistrationService(db.Drafts(), locs, gw, cfg.SubmitTimeout)
	go registrations.RunJanitor(ctx, draftSweepInterval, cfg.DraftTTL)

	loginLimiter := service.NewTokenBucket(ctx, service.PerMinute(cfg.LoginRatePerMinute), float64(cfg.LoginBurst))

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, gw, registrations, locs, loginLimiter, cfg.CookieSecure, cfg.DraftTTL)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.SecurityHeaders(handler.LogRequests(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
		os.Exit(1)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("tracing shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
