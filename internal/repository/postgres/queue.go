package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/homecare-notify/internal/model"
	"github.com/jwalitptl/homecare-notify/internal/repository"
)

const queueColumns = `q.id, q.batch_id, q.contact_id, q.channel, q.subject, q.body, q.status,
		q.attempts, q.max_attempts, q.error_message, q.provider_message_id,
		q.scheduled_for, q.claimed_at, q.sent_at, q.created_at, q.updated_at`

type queueRepository struct {
	BaseRepository
}

func NewQueueRepository(base BaseRepository) repository.QueueRepository {
	return &queueRepository{base}
}

func (r *queueRepository) EnqueueBatch(ctx context.Context, batch *model.BatchLog, jobs []*model.QueueJob, entry *model.AuditLog) error {
	if batch == nil {
		return fmt.Errorf("batch cannot be nil")
	}
	if len(jobs) == 0 {
		return fmt.Errorf("batch has no jobs")
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO notification_logs (
				id, admin_id, recipient_filter, recipient_count,
				channel, subject, body, status, sent_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			batch.ID,
			batch.AdminID,
			batch.RecipientFilter,
			batch.RecipientCount,
			batch.Channel,
			batch.Subject,
			batch.Body,
			batch.Status,
			batch.SentAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create notification log: %w", err)
		}

		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO notification_queue (
				id, batch_id, contact_id, channel, subject, body, status,
				attempts, max_attempts, scheduled_for, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, job := range jobs {
			_, err := stmt.ExecContext(ctx,
				job.ID,
				job.BatchID,
				job.ContactID,
				job.Channel,
				job.Subject,
				job.Body,
				job.Status,
				job.Attempts,
				job.MaxAttempts,
				job.ScheduledFor,
				job.CreatedAt,
				job.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to enqueue job for contact %s: %w", job.ContactID, err)
			}
		}

		return r.CreateAuditLog(ctx, tx, entry)
	})
}

func (r *queueRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.DueJob, error) {
	query := `
		SELECT ` + queueColumns + `,
			COALESCE(c.name, '') AS contact_name,
			c.phone AS contact_phone,
			c.email AS contact_email
		FROM notification_queue q
		LEFT JOIN contacts c ON c.id = q.contact_id
		WHERE q.status = 'pending' AND q.scheduled_for <= $1
		ORDER BY q.scheduled_for ASC, q.id ASC
		LIMIT $2
	`

	var jobs []*model.DueJob
	if err := r.GetDB().SelectContext(ctx, &jobs, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}
	return jobs, nil
}

func (r *queueRepository) Claim(ctx context.Context, id uuid.UUID, now time.Time) (int, bool, error) {
	query := `
		UPDATE notification_queue
		SET status = 'processing',
			attempts = attempts + 1,
			claimed_at = $2,
			updated_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING attempts
	`

	var attempts int
	err := r.GetDB().QueryRowxContext(ctx, query, id, now).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to claim job %s: %w", id, err)
	}
	return attempts, true, nil
}

func (r *queueRepository) MarkSent(ctx context.Context, id uuid.UUID, providerMessageID string, now time.Time) error {
	query := `
		UPDATE notification_queue
		SET status = 'sent',
			sent_at = $2,
			error_message = NULL,
			provider_message_id = NULLIF($3, ''),
			claimed_at = NULL,
			updated_at = $2
		WHERE id = $1 AND status = 'processing'
	`
	return r.execOne(ctx, "mark job sent", query, id, now, providerMessageID)
}

func (r *queueRepository) MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, next time.Time) error {
	query := `
		UPDATE notification_queue
		SET status = 'pending',
			error_message = $2,
			scheduled_for = $3,
			claimed_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`
	return r.execOne(ctx, "requeue job", query, id, errMsg, next)
}

func (r *queueRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, now time.Time) error {
	query := `
		UPDATE notification_queue
		SET status = 'failed',
			error_message = $2,
			claimed_at = NULL,
			updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`
	return r.execOne(ctx, "mark job failed", query, id, errMsg, now)
}

func (r *queueRepository) Release(ctx context.Context, id uuid.UUID, errMsg string, next time.Time) error {
	query := `
		UPDATE notification_queue
		SET status = 'pending',
			attempts = GREATEST(attempts - 1, 0),
			error_message = $2,
			scheduled_for = $3,
			claimed_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`
	return r.execOne(ctx, "release job", query, id, errMsg, next)
}

func (r *queueRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.GetDB().ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("failed to %s: job is no longer processing", op)
	}
	return nil
}

func (r *queueRepository) RequeueStuck(ctx context.Context, claimedBefore, now time.Time) (int64, int64, error) {
	query := `
		UPDATE notification_queue
		SET status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
			error_message = 'processing timed out',
			claimed_at = NULL,
			updated_at = $2
		WHERE status = 'processing' AND claimed_at < $1
		RETURNING status
	`

	var statuses []string
	if err := r.GetDB().SelectContext(ctx, &statuses, query, claimedBefore, now); err != nil {
		return 0, 0, fmt.Errorf("failed to requeue stuck jobs: %w", err)
	}

	var requeued, failed int64
	for _, s := range statuses {
		if s == string(model.QueueStatusFailed) {
			failed++
		} else {
			requeued++
		}
	}
	return requeued, failed, nil
}

func (r *queueRepository) CountDue(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	query := `SELECT COUNT(*) FROM notification_queue WHERE status = 'pending' AND scheduled_for <= $1`
	if err := r.GetDB().GetContext(ctx, &n, query, now); err != nil {
		return 0, fmt.Errorf("failed to count due jobs: %w", err)
	}
	return n, nil
}

func (r *queueRepository) Stats(ctx context.Context) (*model.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'processing') AS processing,
			COUNT(*) FILTER (WHERE status = 'sent') AS sent,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COUNT(*) AS total
		FROM notification_queue
	`

	var stats model.QueueStats
	if err := r.GetDB().GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return &stats, nil
}

func (r *queueRepository) List(ctx context.Context, filter model.QueueFilter) ([]*model.QueueItem, int64, error) {
	p := filter.Pagination.Normalize()
	baseQuery := `FROM notification_queue q LEFT JOIN contacts c ON c.id = q.contact_id WHERE 1=1`
	var args []interface{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		baseQuery += fmt.Sprintf(" AND q.status = $%d", len(args))
	}

	var total int64
	if err := r.GetDB().GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	args = append(args, p.PageSize, p.Offset())
	query := "SELECT " + queueColumns + ", COALESCE(c.name, '') AS contact_name " + baseQuery +
		fmt.Sprintf(" ORDER BY q.created_at DESC, q.id ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var items []*model.QueueItem
	if err := r.GetDB().SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list queue items: %w", err)
	}
	return items, total, nil
}

func (r *queueRepository) Cancel(ctx context.Context, id uuid.UUID, entry *model.AuditLog) (bool, error) {
	var cancelled bool
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM notification_queue WHERE id = $1 AND status = 'pending'`, id)
		if err != nil {
			return fmt.Errorf("failed to cancel job: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return nil
		}
		cancelled = true
		return r.CreateAuditLog(ctx, tx, entry)
	})
	return cancelled, err
}

func (r *queueRepository) Retry(ctx context.Context, id uuid.UUID, now time.Time, entry *model.AuditLog) (bool, error) {
	var retried bool
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE notification_queue
			SET status = 'pending',
				attempts = 0,
				error_message = NULL,
				scheduled_for = $2,
				claimed_at = NULL,
				updated_at = $2
			WHERE id = $1 AND status = 'failed'
		`, id, now)
		if err != nil {
			return fmt.Errorf("failed to retry job: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return nil
		}
		retried = true
		return r.CreateAuditLog(ctx, tx, entry)
	})
	return retried, err
}

func (r *queueRepository) ClearFailed(ctx context.Context, entry func(deleted int64) (*model.AuditLog, error)) (int64, error) {
	var deleted int64
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM notification_queue WHERE status = 'failed'`)
		if err != nil {
			return fmt.Errorf("failed to clear failed jobs: %w", err)
		}
		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if entry == nil {
			return nil
		}
		log, err := entry(deleted)
		if err != nil {
			return err
		}
		return r.CreateAuditLog(ctx, tx, log)
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
