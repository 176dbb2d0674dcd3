package notification

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CleanupConfig holds configuration for cleanup tasks
type CleanupConfig struct {
	ArchivedRetention time.Duration // archived notifications older than this are purged
	Interval          time.Duration
	Enabled           bool
}

// DefaultCleanupConfig returns default cleanup configuration
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		ArchivedRetention: 90 * 24 * time.Hour,
		Interval:          time.Hour,
		Enabled:           true,
	}
}

// CleanupService purges expired and long-archived notifications.
type CleanupService struct {
	repo *Repository
	log  *zap.Logger
	now  func() time.Time
}

func NewCleanupService(repo *Repository, log *zap.Logger) *CleanupService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CleanupService{repo: repo, log: log, now: time.Now}
}

// RunOnce performs one cleanup pass. Both steps run even when the first fails.
func (c *CleanupService) RunOnce(ctx context.Context, cfg CleanupConfig) (expired, archived int64, err error) {
	start := c.now()

	expired, err = c.repo.DeleteExpired(ctx, start)
	if err != nil {
		c.log.Warn("expired notification cleanup failed", zap.Error(err))
	}

	var archErr error
	archived, archErr = c.repo.DeleteArchivedOlderThan(ctx, cfg.ArchivedRetention)
	if archErr != nil {
		c.log.Warn("archived notification cleanup failed", zap.Error(archErr))
		if err == nil {
			err = archErr
		}
	}

	c.log.Info("notification cleanup completed",
		zap.Int64("expired", expired),
		zap.Int64("archived", archived),
		zap.Duration("took", time.Since(start)),
	)
	return expired, archived, err
}

// Schedule runs cleanup every cfg.Interval until ctx is done.
func (c *CleanupService) Schedule(ctx context.Context, cfg CleanupConfig) {
	if !cfg.Enabled || cfg.Interval <= 0 {
		c.log.Info("automatic notification cleanup is disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_, _, _ = c.RunOnce(ctx, cfg)
			case <-ctx.Done():
				c.log.Info("notification cleanup stopped")
				return
			}
		}
	}()

	c.log.Info("notification cleanup scheduled", zap.Duration("interval", cfg.Interval))
}
