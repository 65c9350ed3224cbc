package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-notify/internal/model"
	"github.com/jwalitptl/homecare-notify/internal/service/audit"
	"github.com/jwalitptl/homecare-notify/pkg/logger"
)

// AuditCleaner deletes audit rows created before a cutoff and records each run.
type AuditCleaner interface {
	Cleanup(ctx context.Context, before time.Time) (int64, error)
	Log(ctx context.Context, adminID *uuid.UUID, action, entityType string, entityID *uuid.UUID, opts *audit.LogOptions) error
}

type AuditCleanupWorker struct {
	cleaner         AuditCleaner
	retentionDays   int
	cleanupInterval time.Duration
	logger          *logger.Logger
	now             func() time.Time
}

func NewAuditCleanupWorker(cleaner AuditCleaner, retentionDays int, cleanupInterval time.Duration, log *logger.Logger) *AuditCleanupWorker {
	return &AuditCleanupWorker{
		cleaner:         cleaner,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		logger:          log.With("audit-cleanup"),
		now:             time.Now,
	}
}

// Start blocks until ctx is done. A retention of zero days disables cleanup.
func (w *AuditCleanupWorker) Start(ctx context.Context) {
	if w.retentionDays <= 0 || w.cleanupInterval <= 0 {
		w.logger.Info("Audit cleanup disabled")
		return
	}

	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.cleanup(ctx); err != nil {
				w.logger.Error(err, "Error cleaning up audit logs")
			}
		}
	}
}

func (w *AuditCleanupWorker) cleanup(ctx context.Context) (int64, error) {
	cutoff := w.now().UTC().AddDate(0, 0, -w.retentionDays)

	rows, err := w.cleaner.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	w.logger.Info("Cleaned up audit logs", "deleted", rows, "before", cutoff.Format(time.RFC3339))
	if rows > 0 {
		err := w.cleaner.Log(ctx, nil, model.AuditActionRetention, model.AuditEntityAuditLog, nil, &audit.LogOptions{
			Metadata: map[string]interface{}{
				"deleted":        rows,
				"before":         cutoff.Format(time.RFC3339),
				"retention_days": w.retentionDays,
			},
		})
		if err != nil {
			w.logger.Error(err, "Failed to record audit cleanup")
		}
	}
	return rows, nil
}
