package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-notify/internal/model"
)

// All repository interfaces in one file
type (
	// ContactRepository reads the contact directory. It never writes.
	ContactRepository interface {
		ListEligible(ctx context.Context, channel model.Channel, filter model.RecipientFilter) ([]*model.Contact, error)
	}

	// QueueRepository owns notification_queue rows.
	QueueRepository interface {
		// EnqueueBatch writes the batch log, its jobs and the audit entry in one transaction.
		EnqueueBatch(ctx context.Context, batch *model.BatchLog, jobs []*model.QueueJob, entry *model.AuditLog) error
		ListDue(ctx context.Context, now time.Time, limit int) ([]*model.DueJob, error)
		// Claim moves a pending job to processing and bumps attempts. ok is false when the
		// job was no longer pending.
		Claim(ctx context.Context, id uuid.UUID, now time.Time) (attempts int, ok bool, err error)
		MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, now time.Time) error
		MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, next time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, now time.Time) error
		// Release returns a claimed job to pending and gives back the attempt Claim took.
		Release(ctx context.Context, id uuid.UUID, errMsg string, next time.Time) error
		RequeueStuck(ctx context.Context, claimedBefore, now time.Time) (requeued, failed int64, err error)
		CountDue(ctx context.Context, now time.Time) (int64, error)
		Stats(ctx context.Context) (*model.QueueStats, error)
		List(ctx context.Context, filter model.QueueFilter) ([]*model.QueueItem, int64, error)
		Cancel(ctx context.Context, id uuid.UUID, entry *model.AuditLog) (bool, error)
		Retry(ctx context.Context, id uuid.UUID, now time.Time, entry *model.AuditLog) (bool, error)
		// ClearFailed deletes failed jobs. An error from entry rolls the delete back.
		ClearFailed(ctx context.Context, entry func(deleted int64) (*model.AuditLog, error)) (int64, error)
	}

	// BatchLogRepository owns notification_logs rows.
	BatchLogRepository interface {
		List(ctx context.Context, p model.Pagination) ([]*model.BatchLog, int64, error)
		Reconcile(ctx context.Context) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		Cleanup(ctx context.Context, before time.Time) (int64, error)
		List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, int64, error)
	}
)
