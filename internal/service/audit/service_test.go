package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/homecare-notify/internal/model"
)

type memRepo struct {
	logs []*model.AuditLog
}

func (r *memRepo) Create(_ context.Context, log *model.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func (r *memRepo) Cleanup(context.Context, time.Time) (int64, error) {
	n := int64(len(r.logs))
	r.logs = nil
	return n, nil
}

func (r *memRepo) List(_ context.Context, f model.AuditFilter) ([]*model.AuditLog, int64, error) {
	var out []*model.AuditLog
	for _, l := range r.logs {
		if f.Action != "" && l.Action != f.Action {
			continue
		}
		out = append(out, l)
	}
	return out, int64(len(out)), nil
}

func TestService_EntryReadsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/notifications/compose", nil)
	c.Request.RemoteAddr = "10.0.0.7:5123"
	c.Request.Header.Set("User-Agent", "dashboard/1.0")

	svc := NewService(&memRepo{})
	admin := uuid.New()
	batch := uuid.New()

	entry, err := svc.Entry(c, &admin, model.AuditActionCompose, model.AuditEntityNotificationBatch, &batch,
		&LogOptions{Metadata: map[string]interface{}{"channel": "sms", "count": 3}})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.7", entry.IPAddress)
	assert.Equal(t, "dashboard/1.0", entry.UserAgent)
	assert.Equal(t, &admin, entry.UserID)
	assert.Equal(t, &batch, entry.EntityID)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Metadata, &meta))
	assert.Equal(t, "sms", meta["channel"])
	assert.EqualValues(t, 3, meta["count"])
}

func TestService_LogPersists(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo)

	require.NoError(t, svc.Log(context.Background(), nil, model.AuditActionClearFailed, model.AuditEntityNotificationJob, nil, nil))
	require.Len(t, repo.logs, 1)
	assert.Equal(t, model.AuditActionClearFailed, repo.logs[0].Action)
	assert.Empty(t, repo.logs[0].Metadata)
}

func TestService_ListPages(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Log(ctx, nil, model.AuditActionCancel, model.AuditEntityNotificationJob, nil, nil))
	require.NoError(t, svc.Log(ctx, nil, model.AuditActionRetry, model.AuditEntityNotificationJob, nil, nil))

	page, err := svc.List(ctx, model.AuditFilter{Action: model.AuditActionRetry})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, model.DefaultPageSize, page.PageSize)
	assert.Equal(t, model.AuditActionRetry, page.Items[0].Action)
}
