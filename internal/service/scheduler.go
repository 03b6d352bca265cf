package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"lxmchat/internal/constants"
)

// CleanupStore is the slice of the store the retention scheduler needs.
type CleanupStore interface {
	CleanupOldRecords(ctx context.Context, retentionDays int) error
}

// StartCleanupScheduler runs record retention once at startup and then
// daily until ctx is cancelled.
func StartCleanupScheduler(ctx context.Context, store CleanupStore, retentionDays int, logger *logrus.Logger) {
	if retentionDays <= 0 {
		logger.Info("Record retention disabled")
		return
	}

	run := func() {
		if err := store.CleanupOldRecords(ctx, retentionDays); err != nil {
			logger.WithError(err).Error("Failed to clean up old records")
		} else {
			logger.WithField("retentionDays", retentionDays).Debug("Old records cleaned up")
		}
	}

	go func() {
		run()

		ticker := time.NewTicker(constants.DefaultCleanupIntervalHours * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
