package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/lendfast/drawbridge/internal/limiter"
	"github.com/lendfast/drawbridge/internal/repositories"
)

// counterGrace keeps expired throttle counter rows around for a day so an
// on-call admin can still inspect them after an incident.
const counterGrace = 24 * time.Hour

// CleanupManager periodically removes expired rate limit counters from the
// database and drops expired attempt windows from the in-memory tracker.
type CleanupManager struct {
	rateLimitRepo *repositories.RateLimitRepository
	tracker       *limiter.Tracker
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	rateLimitRepo *repositories.RateLimitRepository,
	tracker *limiter.Tracker,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		rateLimitRepo: rateLimitRepo,
		tracker:       tracker,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
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

// runCleanup sweeps expired state. A failed sweep only delays reclamation;
// the window checks themselves never depend on cleanup having run.
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := cm.rateLimitRepo.DeleteStale(cleanupCtx, counterGrace)
	if err != nil {
		cm.logger.Error("failed to delete stale rate limit counters", slog.Any("error", err))
	} else if rowsDeleted > 0 {
		cm.logger.Info("rate limit counter cleanup completed", slog.Int64("rows_deleted", rowsDeleted))
	}

	if cm.tracker != nil {
		if pruned := cm.tracker.PruneExpired(); pruned > 0 {
			cm.logger.Info("attempt tracker pruned", slog.Int("windows_dropped", pruned))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
