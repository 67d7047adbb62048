package worker

import (
	"context"
	"log/slog"
	"time"
)

// HistorySyncer is implemented by the migration lifecycle controller
type HistorySyncer interface {
	SyncHistory(ctx context.Context) error
}

// SyncWorker periodically pulls migration history from the remote store so
// records finished elsewhere become visible in the session
type SyncWorker struct {
	syncer   HistorySyncer
	logger   *slog.Logger
	interval time.Duration
}

// NewSyncWorker creates a new sync worker
func NewSyncWorker(syncer HistorySyncer, interval time.Duration, logger *slog.Logger) *SyncWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SyncWorker{
		syncer:   syncer,
		logger:   logger,
		interval: interval,
	}
}

// Start runs the sync loop until ctx is done
func (sw *SyncWorker) Start(ctx context.Context) {
	sw.logger.Info("Starting history sync worker", "interval", sw.interval)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	// Run immediately on start
	sw.sync(ctx)

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("History sync worker stopped")
			return
		case <-ticker.C:
			sw.sync(ctx)
		}
	}
}

func (sw *SyncWorker) sync(ctx context.Context) {
	sw.logger.Debug("Syncing migration history")

	if err := sw.syncer.SyncHistory(ctx); err != nil && ctx.Err() == nil {
		sw.logger.Warn("Failed to sync migration history", "error", err)
	}
}
