package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gatehouse-backend/internal/config"
	"gatehouse-backend/internal/directory"
	"gatehouse-backend/internal/handlers"
	"gatehouse-backend/internal/health"
	h "gatehouse-backend/internal/http"
	"gatehouse-backend/internal/middleware"
	"gatehouse-backend/internal/repositories"
	"gatehouse-backend/internal/services"
)

const shutdownTimeout = 15 * time.Second

type ServeCmd struct {
	Port int `help:"Listen port (overrides SERVER_PORT)." default:"0"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, log, err := globals.loadConfig()
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	stack, err := buildImageStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stack.Close()

	dir := directory.Select(ctx, cfg.Directory, log)
	sessions := services.NewCaptureSessionService(
		dir,
		stack.images,
		repositories.NewCaptureSessionRepository(),
		stack.metrics,
		log,
	)
	stack.metrics.RegisterActiveSessions(sessions.ActiveSessionsCount)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	sessions.StartJanitor(janitorCtx, cfg.Session.CleanupInterval, cfg.Session.MaxAge)

	checker := health.NewHealthChecker(diskPath(cfg))
	if stack.pool != nil {
		checker.WithDatabase(stack.pool)
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, time.Minute)
	defer limiter.Stop()

	router := h.NewRouter(cfg.Server, h.Handlers{
		Sessions: handlers.NewCaptureSessionHandler(sessions, log),
		Images:   handlers.NewImageHandler(stack.images, log),
		System:   handlers.NewSystemHandler(sessions, checker, cfg.Session.MaxAge, log),
	}, limiter, stack.metrics, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("version", globals.Version),
			zap.String("directory", dir.Name()),
			zap.String("storage", stack.backend.Name()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// diskPath is the filesystem health reports on; object storage has none.
func diskPath(cfg *config.Config) string {
	if cfg.Storage.Backend == config.StorageBackendLocal {
		return cfg.Storage.Root
	}
	return ""
}
