package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/posture/internal/adapters/history"
	"github.com/okian/posture/internal/adapters/http/api"
	"github.com/okian/posture/internal/adapters/http/swagger"
	repository "github.com/okian/posture/internal/adapters/repository"
	app "github.com/okian/posture/internal/app"
	"github.com/okian/posture/internal/auth"
	"github.com/okian/posture/internal/config"
	"github.com/okian/posture/pkg/logger"
	"github.com/okian/posture/pkg/metrics"
)

// HTTP server timeout constants. There is no write timeout: practice
// websockets stay open for the whole session.
const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "posture exited", logger.Error(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go metrics.RunSystemSampler(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc, log),
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// buildService wires the history backends and session tuning from cfg.
func buildService(cfg *config.Config, log logger.Logger) (*app.Service, error) {
	opts := []app.Option{
		app.WithLogger(log),
		app.WithThresholds(cfg.Rules),
		app.WithMinSessionSeconds(cfg.MinSessionSeconds),
		app.WithSpeakCooldown(cfg.SpeakCooldown()),
		app.WithSpeakThreshold(cfg.SpeakScoreThreshold),
		app.WithSmoothingAlpha(cfg.SmoothingAlpha),
		app.WithFrameQueueSize(cfg.FrameQueueSize),
		app.WithMaxHistoryLimit(cfg.MaxHistoryLimit),
		app.WithPersistTimeout(cfg.HistoryTimeout()),
	}

	if cfg.JWTSecret != "" {
		verifier, err := auth.NewVerifier(cfg.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("build verifier: %w", err)
		}
		opts = append(opts, app.WithVerifier(verifier))
	}

	if cfg.HistoryURL != "" {
		client, err := history.NewClient(cfg.HistoryURL, history.WithTimeout(cfg.HistoryTimeout()))
		if err != nil {
			return nil, fmt.Errorf("build history client: %w", err)
		}
		opts = append(opts, app.WithHistoryClient(client))
	}

	if cfg.HistoryDBPath != "" {
		store, err := repository.Open(cfg.HistoryDBPath)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		opts = append(opts, app.WithStore(store))
	}

	return app.New(opts...), nil
}

// newMux registers the API reference and the practice routes.
func newMux(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc, svc,
		api.WithLogger(log.Named("api")),
		api.WithAllowedOrigins(cfg.Origins()),
	)
	apiServer.Register(ctx, mux, svc)
	return mux
}
