package notification

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/homecare-notify/internal/model"
	"github.com/jwalitptl/homecare-notify/internal/provider"
	"github.com/jwalitptl/homecare-notify/internal/service/audit"
	apperrors "github.com/jwalitptl/homecare-notify/pkg/errors"
	"github.com/jwalitptl/homecare-notify/pkg/logger"
	"github.com/jwalitptl/homecare-notify/pkg/metrics"
)

var testAdmin = &model.Admin{ID: uuid.New(), Email: "admin@agency.test", Name: "Admin"}

func newTestService(store *memStore) *Service {
	mock := provider.NewMockSender(logger.Nop())
	return NewService(
		NewResolver(store),
		store,
		memLogs{store},
		audit.NewService(memAudit{store}),
		&provider.Registry{Email: mock, SMS: mock},
		nil,
		metrics.New("test", nil),
		logger.Nop(),
		Config{StatsCacheTTL: time.Minute},
	)
}

func requireAppError(t *testing.T, err error, status int) *apperrors.AppError {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, status, appErr.StatusCode())
	return appErr
}

func TestCompose_QueuesOneJobPerEligibleClient(t *testing.T) {
	store := newMemStore(
		contact("Ada", model.ContactTypeClient, model.NotificationPrefSMS, true, "+15550001", ""),
		contact("Bea", model.ContactTypeClient, model.NotificationPrefBoth, true, "+15550002", "bea@example.com"),
		contact("Cy", model.ContactTypeClient, model.NotificationPrefSMS, true, "+15550003", ""),
		contact("Dee", model.ContactTypeClient, model.NotificationPrefSMS, false, "+15550004", ""),
		contact("Eve", model.ContactTypeClient, model.NotificationPrefNone, true, "+15550005", ""),
		contact("Fay", model.ContactTypeStaff, model.NotificationPrefSMS, true, "+15550006", ""),
	)
	svc := newTestService(store)

	res, err := svc.Compose(context.Background(), testAdmin, ComposeRequest{
		Channel:         model.ChannelSMS,
		Subject:         "ignored",
		Body:            "  Reminder: visit tomorrow  ",
		RecipientFilter: model.RecipientFilter{Type: "client"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Queued)

	require.Len(t, store.logs, 1)
	batch := store.logs[0]
	assert.Equal(t, res.BatchID, batch.ID)
	assert.Equal(t, 3, batch.RecipientCount)
	assert.Equal(t, model.QueueStatusPending, batch.Status)
	assert.Nil(t, batch.Subject)
	assert.Equal(t, `{"type":"client"}`, batch.RecipientFilter)

	require.Len(t, store.jobs, 3)
	seen := map[uuid.UUID]bool{}
	for _, j := range store.jobs {
		assert.Equal(t, model.QueueStatusPending, j.Status)
		assert.Equal(t, 0, j.Attempts)
		assert.Equal(t, model.DefaultMaxAttempts, j.MaxAttempts)
		assert.Equal(t, "Reminder: visit tomorrow", j.Body)
		assert.Nil(t, j.Subject)
		require.NotNil(t, j.BatchID)
		assert.Equal(t, batch.ID, *j.BatchID)
		assert.False(t, seen[j.ContactID], "duplicate contact")
		seen[j.ContactID] = true
	}

	require.Len(t, store.audits, 1)
	assert.Equal(t, model.AuditActionCompose, store.audits[0].Action)
	assert.Equal(t, &testAdmin.ID, store.audits[0].UserID)
	assert.Contains(t, string(store.audits[0].Metadata), `"recipient_count":3`)
}

func TestCompose_EmptyRecipientsWritesNothing(t *testing.T) {
	store := newMemStore(
		contact("Eve", model.ContactTypeClient, model.NotificationPrefNone, true, "+15550005", "eve@example.com"),
		contact("Gus", model.ContactTypeClient, model.NotificationPrefEmail, true, "", ""),
	)
	svc := newTestService(store)

	_, err := svc.Compose(context.Background(), testAdmin, ComposeRequest{
		Channel:         model.ChannelEmail,
		Subject:         "Closure",
		Body:            "Closed Friday",
		RecipientFilter: model.RecipientFilter{Type: model.RecipientFilterAll},
	})
	appErr := requireAppError(t, err, http.StatusBadRequest)
	assert.Equal(t, "no eligible recipients", appErr.Message)
	assert.Empty(t, store.jobs)
	assert.Empty(t, store.logs)
	assert.Empty(t, store.audits)
}

func TestCompose_Validation(t *testing.T) {
	store := newMemStore(contact("Ada", model.ContactTypeClient, model.NotificationPrefBoth, true, "+15550001", "ada@example.com"))
	svc := newTestService(store)
	all := model.RecipientFilter{Type: model.RecipientFilterAll}

	tests := []struct {
		name   string
		admin  *model.Admin
		req    ComposeRequest
		status int
	}{
		{"no admin", nil, ComposeRequest{Channel: model.ChannelSMS, Body: "hi", RecipientFilter: all}, http.StatusUnauthorized},
		{"blank body", testAdmin, ComposeRequest{Channel: model.ChannelSMS, Body: "   ", RecipientFilter: all}, http.StatusBadRequest},
		{"email without subject", testAdmin, ComposeRequest{Channel: model.ChannelEmail, Body: "hi", RecipientFilter: all}, http.StatusBadRequest},
		{"bad channel", testAdmin, ComposeRequest{Channel: "fax", Body: "hi", RecipientFilter: all}, http.StatusBadRequest},
		{"unknown type", testAdmin, ComposeRequest{Channel: model.ChannelSMS, Body: "hi", RecipientFilter: model.RecipientFilter{Type: "patient"}}, http.StatusBadRequest},
		{"empty filter", testAdmin, ComposeRequest{Channel: model.ChannelSMS, Body: "hi"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Compose(context.Background(), tt.admin, tt.req)
			requireAppError(t, err, tt.status)
		})
	}
	assert.Empty(t, store.jobs)
}

func TestCompose_IDsWinOverType(t *testing.T) {
	staff := contact("Fay", model.ContactTypeStaff, model.NotificationPrefEmail, true, "", "fay@agency.test")
	store := newMemStore(
		contact("Ada", model.ContactTypeClient, model.NotificationPrefEmail, true, "", "ada@example.com"),
		staff,
	)
	svc := newTestService(store)

	res, err := svc.Compose(context.Background(), testAdmin, ComposeRequest{
		Channel:         model.ChannelEmail,
		Subject:         "Schedule",
		Body:            "New schedule posted",
		RecipientFilter: model.RecipientFilter{Type: "client", IDs: []uuid.UUID{staff.ID}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	for _, j := range store.jobs {
		assert.Equal(t, staff.ID, j.ContactID)
		require.NotNil(t, j.Subject)
		assert.Equal(t, "Schedule", *j.Subject)
	}
}

func TestCompose_StoreFailure(t *testing.T) {
	store := newMemStore(contact("Ada", model.ContactTypeClient, model.NotificationPrefSMS, true, "+15550001", ""))
	store.enqueueErr = errors.New("connection refused")
	svc := newTestService(store)

	_, err := svc.Compose(context.Background(), testAdmin, ComposeRequest{
		Channel:         model.ChannelSMS,
		Body:            "hi",
		RecipientFilter: model.RecipientFilter{Type: model.RecipientFilterAll},
	})
	requireAppError(t, err, http.StatusInternalServerError)
}

func TestCompose_FutureSchedule(t *testing.T) {
	store := newMemStore(contact("Ada", model.ContactTypeClient, model.NotificationPrefSMS, true, "+15550001", ""))
	svc := newTestService(store)
	at := time.Now().Add(2 * time.Hour).UTC()

	_, err := svc.Compose(context.Background(), testAdmin, ComposeRequest{
		Channel:         model.ChannelSMS,
		Body:            "hi",
		RecipientFilter: model.RecipientFilter{Type: model.RecipientFilterAll},
		ScheduledFor:    &at,
	})
	require.NoError(t, err)
	for _, j := range store.jobs {
		assert.True(t, j.ScheduledFor.Equal(at))
	}
}

func TestCancelJob(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	sent := store.addJob(&model.QueueJob{Status: model.QueueStatusSent, Channel: model.ChannelSMS})
	pending := store.addJob(&model.QueueJob{Channel: model.ChannelSMS})

	err := svc.CancelJob(context.Background(), testAdmin, sent.ID)
	appErr := requireAppError(t, err, http.StatusNotFound)
	assert.Equal(t, "not found or already processed", appErr.Message)
	assert.Equal(t, model.QueueStatusSent, store.job(sent.ID).Status)

	require.NoError(t, svc.CancelJob(context.Background(), testAdmin, pending.ID))
	assert.NotContains(t, store.jobs, pending.ID)
	require.Len(t, store.audits, 1)
	assert.Equal(t, model.AuditActionCancel, store.audits[0].Action)
	assert.Equal(t, &pending.ID, store.audits[0].EntityID)
}

func TestRetryJob(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	msg := "bounced"
	failed := store.addJob(&model.QueueJob{Status: model.QueueStatusFailed, Attempts: 3, ErrorMessage: &msg})
	pending := store.addJob(&model.QueueJob{})

	require.NoError(t, svc.RetryJob(context.Background(), testAdmin, failed.ID))
	j := store.job(failed.ID)
	assert.Equal(t, model.QueueStatusPending, j.Status)
	assert.Equal(t, 0, j.Attempts)
	assert.Nil(t, j.ErrorMessage)

	err := svc.RetryJob(context.Background(), testAdmin, pending.ID)
	appErr := requireAppError(t, err, http.StatusNotFound)
	assert.Equal(t, "not found or not failed", appErr.Message)
}

func TestClearFailed(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	store.addJob(&model.QueueJob{Status: model.QueueStatusFailed})
	store.addJob(&model.QueueJob{Status: model.QueueStatusFailed})
	keep := store.addJob(&model.QueueJob{Status: model.QueueStatusSent})

	n, err := svc.ClearFailed(context.Background(), testAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, store.jobs, 1)
	assert.Contains(t, store.jobs, keep.ID)
	require.Len(t, store.audits, 1)
	assert.Contains(t, string(store.audits[0].Metadata), `"deleted":2`)

	_, err = svc.ClearFailed(context.Background(), nil)
	requireAppError(t, err, http.StatusUnauthorized)
}

func TestStats_CachedUntilMutation(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	store.addJob(&model.QueueJob{})

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)

	extra := store.addJob(&model.QueueJob{})
	stats, err = svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending, "served from cache")

	require.NoError(t, svc.CancelJob(context.Background(), testAdmin, extra.ID))
	stats, err = svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Total)
}

func TestListQueue(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	for i := 0; i < 3; i++ {
		store.addJob(&model.QueueJob{Status: model.QueueStatusFailed})
	}
	store.addJob(&model.QueueJob{})

	page, err := svc.ListQueue(context.Background(), model.QueueFilter{
		Status:     model.QueueStatusFailed,
		Pagination: model.Pagination{Page: 1, PageSize: 2},
	})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)

	_, err = svc.ListQueue(context.Background(), model.QueueFilter{Status: "bogus"})
	requireAppError(t, err, http.StatusBadRequest)
}

func TestProviderStatus_MockIsNotConfigured(t *testing.T) {
	svc := newTestService(newMemStore())
	st := svc.ProviderStatus()
	assert.False(t, st.Email.Configured)
	assert.False(t, st.SMS.Configured)
	assert.Equal(t, "mock", st.SMS.Provider)
}
