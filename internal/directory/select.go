package directory

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"gatehouse-backend/internal/config"
)

const probeAttempts = 3

var probeInitialInterval = 250 * time.Millisecond

var errProbeFailed = errors.New("directory probe failed")

// Select returns the live REST directory when it is configured and
// reachable, and the demo directory otherwise. Falling back is a
// degraded mode, not an error.
func Select(ctx context.Context, cfg config.DirectoryConfig, logger *zap.Logger) Directory {
	live := NewRESTDirectory(cfg, logger)
	if !live.ValidateConfig() {
		logger.Warn("resident directory not configured, using demo directory")
		return NewDemoDirectory(logger)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = probeInitialInterval

	_, err := backoff.Retry(ctx, func() (bool, error) {
		if !live.TestConnection(ctx) {
			return false, errProbeFailed
		}
		return true, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(probeAttempts))
	if err != nil {
		logger.Warn("resident directory unreachable, using demo directory",
			zap.String("base_url", cfg.BaseURL),
			zap.Error(err),
		)
		return NewDemoDirectory(logger)
	}

	logger.Info("resident directory connected", zap.String("base_url", cfg.BaseURL))
	return live
}
