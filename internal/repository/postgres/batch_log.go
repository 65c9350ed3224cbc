package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/homecare-notify/internal/model"
	"github.com/jwalitptl/homecare-notify/internal/repository"
)

// outstandingJobs matches the unfinished jobs of batch l. Jobs written before batch_id
// existed are matched by channel, body and a one minute window around the batch time.
const outstandingJobs = `
	SELECT 1 FROM notification_queue q
	WHERE q.status IN ('pending', 'processing')
	AND (
		q.batch_id = l.id
		OR (
			q.batch_id IS NULL
			AND q.channel = l.channel
			AND q.body = l.body
			AND q.created_at BETWEEN l.sent_at - INTERVAL '1 minute' AND l.sent_at + INTERVAL '1 minute'
		)
	)
`

type batchLogRepository struct {
	BaseRepository
}

func NewBatchLogRepository(base BaseRepository) repository.BatchLogRepository {
	return &batchLogRepository{base}
}

func (r *batchLogRepository) List(ctx context.Context, p model.Pagination) ([]*model.BatchLog, int64, error) {
	p = p.Normalize()

	var total int64
	if err := r.GetDB().GetContext(ctx, &total, `SELECT COUNT(*) FROM notification_logs`); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	query := `
		SELECT id, admin_id, recipient_filter, recipient_count, channel, subject, body, status, sent_at
		FROM notification_logs
		ORDER BY sent_at DESC, id ASC
		LIMIT $1 OFFSET $2
	`
	var logs []*model.BatchLog
	if err := r.GetDB().SelectContext(ctx, &logs, query, p.PageSize, p.Offset()); err != nil {
		return nil, 0, fmt.Errorf("failed to list notification logs: %w", err)
	}
	return logs, total, nil
}

// Reconcile marks batches whose jobs have all finished as sent, and batches that have
// started but not finished as processing. It returns the number of batches completed.
func (r *batchLogRepository) Reconcile(ctx context.Context) (int64, error) {
	var completed int64
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE notification_logs l
			SET status = 'processing'
			WHERE l.status = 'pending'
			AND EXISTS (
				SELECT 1 FROM notification_queue q
				WHERE q.batch_id = l.id AND q.status <> 'pending'
			)
		`)
		if err != nil {
			return fmt.Errorf("failed to mark batches processing: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE notification_logs l
			SET status = 'sent'
			WHERE l.status IN ('pending', 'processing')
			AND NOT EXISTS (`+outstandingJobs+`)
		`)
		if err != nil {
			return fmt.Errorf("failed to mark batches sent: %w", err)
		}
		completed, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return completed, nil
}
