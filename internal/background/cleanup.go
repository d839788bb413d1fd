package background

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredDeleter removes rows whose expiry passed before the cutoff and
// reports how many were deleted.
type ExpiredDeleter interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically deletes expired single-use tokens, stale
// invitations, and long-dead refresh tokens. All of these stay unusable
// after expiry regardless; cleanup only keeps the tables from growing
// without bound.
type CleanupManager struct {
	targets  map[string]ExpiredDeleter
	logger   *slog.Logger
	interval time.Duration
	retain   time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager. Expired rows are kept
// for the retain window before deletion so recent failures remain
// inspectable.
func NewCleanupManager(
	verificationTokens ExpiredDeleter,
	invitations ExpiredDeleter,
	refreshTokens ExpiredDeleter,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		targets: map[string]ExpiredDeleter{
			"verification_tokens": verificationTokens,
			"invitations":         invitations,
			"refresh_tokens":      refreshTokens,
		},
		logger:   logger,
		interval: interval,
		retain:   24 * time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task and blocks until Stop is called
// or the context is cancelled.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-cm.retain)
	for name, target := range cm.targets {
		if target == nil {
			continue
		}
		rowsDeleted, err := target.DeleteExpiredBefore(cleanupCtx, cutoff)
		if err != nil {
			cm.logger.Error("cleanup failed",
				slog.String("target", name),
				slog.Any("error", err))
			continue
		}
		if rowsDeleted > 0 {
			cm.logger.Info("cleanup completed",
				slog.String("target", name),
				slog.Int64("rows_deleted", rowsDeleted))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
