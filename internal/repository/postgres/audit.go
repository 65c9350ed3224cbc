package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/homecare-notify/internal/model"
	"github.com/jwalitptl/homecare-notify/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	_, err := r.GetDB().ExecContext(ctx, insertAuditLog,
		log.ID,
		log.UserID,
		log.Action,
		log.EntityType,
		log.EntityID,
		nullJSON(log.Metadata),
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM audit_logs
		WHERE created_at < $1
	`

	result, err := r.GetDB().ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	return result.RowsAffected()
}

func (r *auditRepository) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditLog, int64, error) {
	p := filter.Pagination.Normalize()
	baseQuery := `FROM audit_logs WHERE 1=1`
	var args []interface{}

	if filter.Action != "" {
		args = append(args, filter.Action)
		baseQuery += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		baseQuery += fmt.Sprintf(" AND entity_type = $%d", len(args))
	}
	if filter.EntityID != nil {
		args = append(args, *filter.EntityID)
		baseQuery += fmt.Sprintf(" AND entity_id = $%d", len(args))
	}
	if filter.AdminID != nil {
		args = append(args, *filter.AdminID)
		baseQuery += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		baseQuery += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}

	var total int64
	if err := r.GetDB().GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	args = append(args, p.PageSize, p.Offset())
	query := `SELECT id, user_id, action, entity_type, entity_id, COALESCE(metadata, 'null') AS metadata,
		ip_address, user_agent, created_at ` + baseQuery +
		fmt.Sprintf(" ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var logs []*model.AuditLog
	if err := r.GetDB().SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, total, nil
}
