// Package maintenance runs periodic cache housekeeping for long-running processes.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/joseph-ayodele/docparse/internal/cache"
)

// PruneOnce drops cache entries older than maxAge.
func PruneOnce(ctx context.Context, store cache.Store, maxAge time.Duration, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAge <= 0 {
		return 0, fmt.Errorf("prune: max age must be positive, got %s", maxAge)
	}
	start := time.Now()
	cutoff := start.Add(-maxAge)
	n, err := store.Prune(ctx, cutoff)
	if err != nil {
		logger.Error("cache.prune.failed", "error", err)
		return n, err
	}
	logger.Info("cache.prune.ok",
		"removed", n,
		"cutoff", cutoff.UTC().Format(time.RFC3339),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return n, nil
}

// StartPruneJob schedules PruneOnce with a standard five-field cron spec or a
// descriptor such as "@daily". The caller stops the returned scheduler.
func StartPruneJob(ctx context.Context, store cache.Store, schedule string, maxAge time.Duration, logger *slog.Logger) (*cron.Cron, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if ctx.Err() != nil {
			return
		}
		_, _ = PruneOnce(ctx, store, maxAge, logger)
	})
	if err != nil {
		return nil, fmt.Errorf("prune schedule %q: %w", schedule, err)
	}
	c.Start()
	logger.Info("cache prune scheduled", "schedule", schedule, "max_age", maxAge.String())
	return c, nil
}
