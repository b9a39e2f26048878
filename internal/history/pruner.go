package history

import (
	"context"
	"log/slog"
	"time"
)

// PruneConfig controls the background pruner.
type PruneConfig struct {
	Retention time.Duration // Age after which runs are deleted (default: 90 days)
	Interval  time.Duration // How often to prune (default: 24h)
}

func (c PruneConfig) withDefaults() PruneConfig {
	if c.Retention <= 0 {
		c.Retention = 90 * 24 * time.Hour
	}
	if c.Interval <= 0 {
		c.Interval = 24 * time.Hour
	}
	return c
}

// StartPruner deletes runs older than the retention window, once right away
// and then every Interval, until ctx is cancelled. Failures are logged and
// retried on the next tick.
func StartPruner(ctx context.Context, store Store, cfg PruneConfig, logger *slog.Logger) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("history pruner started", "retention", cfg.Retention.String(), "interval", cfg.Interval.String())

	pruneOnce(ctx, store, cfg, logger)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("history pruner stopped")
			return
		case <-ticker.C:
			pruneOnce(ctx, store, cfg, logger)
		}
	}
}

func pruneOnce(ctx context.Context, store Store, cfg PruneConfig, logger *slog.Logger) {
	start := time.Now()
	n, err := store.Prune(ctx, start.Add(-cfg.Retention))
	if err != nil {
		logger.Error("history prune failed", "error", err)
		return
	}
	logger.Info("history pruned", "runs_deleted", n, "duration_ms", time.Since(start).Milliseconds())
}
