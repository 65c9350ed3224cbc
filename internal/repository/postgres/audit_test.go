package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/homecare-notify/internal/model"
)

func TestAuditRepository_Create(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewAuditRepository(base)

	entry := &model.AuditLog{
		ID:         uuid.New(),
		Action:     model.AuditActionClearFailed,
		EntityType: model.AuditEntityNotificationJob,
		CreatedAt:  time.Now().UTC(),
	}
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, nil, entry.Action, entry.EntityType, nil, nil, "", "", entry.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_List(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewAuditRepository(base)

	admin := uuid.New()
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs WHERE 1=1 AND action = $1 AND user_id = $2")).
		WithArgs(model.AuditActionRetry, admin).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id ASC LIMIT $3 OFFSET $4")).
		WithArgs(model.AuditActionRetry, admin, 10, 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "action", "entity_type", "entity_id", "metadata", "ip_address", "user_agent", "created_at",
		}).AddRow(id.String(), admin.String(), model.AuditActionRetry, model.AuditEntityNotificationJob, nil,
			[]byte(`{"attempts":3}`), "10.0.0.1", "dashboard", now))

	logs, total, err := repo.List(context.Background(), model.AuditFilter{
		Action:     model.AuditActionRetry,
		AdminID:    &admin,
		Pagination: model.Pagination{Page: 2, PageSize: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
	assert.Equal(t, id, logs[0].ID)
	assert.Nil(t, logs[0].EntityID)
	assert.JSONEq(t, `{"attempts":3}`, string(logs[0].Metadata))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_Cleanup(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewAuditRepository(base)
	cutoff := time.Now().UTC()

	mock.ExpectExec("DELETE FROM audit_logs").WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.Cleanup(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
