package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tendant/simple-storefront/internal/logging"
	"github.com/tendant/simple-storefront/internal/tracing"
	"github.com/tendant/simple-storefront/pkg/storefront/api"
	"github.com/tendant/simple-storefront/pkg/storefront/config"
)

var version = "dev"

// Staged upload files older than this are removed by the background sweep.
const stagingMaxAge = time.Hour

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		log.Fatalf("Failed to load server configuration: %v\n\n%s", err, config.Usage())
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) error {
	shutdownTracing, err := tracing.Init(ctx, "storefront", version, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "err", err)
		}
	}()

	app, err := cfg.Build(ctx, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to close connections", "err", err)
		}
	}()

	handler := api.NewRouter(api.Deps{
		Service:       app.Service,
		Auth:          app.Auth,
		Staging:       app.Staging,
		Logger:        logger,
		MaxUploadSize: cfg.MaxUploadSize,
		IdleTimeout:   cfg.UploadIdleTimeout,
		PublicCatalog: cfg.PublicCatalog,
		CORSOrigins:   cfg.CORSOrigins,
		Readiness:     app.Readiness,
		Metrics:       app.Metrics,
	})

	// Uploads can run for a long time, so only the header read is bounded.
	// Stalled bodies are cut by the router's idle timeout instead.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go sweepStaging(ctx, app, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("storefront starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"database", cfg.DatabaseType(),
			"storage", cfg.StorageType(),
			"cache", cfg.RedisURL != "",
			"public_catalog", cfg.PublicCatalog,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Create a deadline to wait for
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(sctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exiting")
	return nil
}

// sweepStaging removes staged files left behind by crashed requests
func sweepStaging(ctx context.Context, app *config.App, logger *slog.Logger) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.Staging.Sweep(stagingMaxAge)
			if err != nil {
				logger.Warn("staging sweep failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("removed stale staged files", "count", n)
			}
		}
	}
}
