package notification

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/homecare-notify/internal/model"
)

func TestResolver_NeverReturnsIneligible(t *testing.T) {
	none := contact("Eve", model.ContactTypeClient, model.NotificationPrefNone, true, "+15550005", "eve@example.com")
	noPhone := contact("Gus", model.ContactTypeVendor, model.NotificationPrefSMS, true, "", "gus@example.com")
	emailOnly := contact("Hal", model.ContactTypeStaff, model.NotificationPrefEmail, true, "+15550007", "hal@agency.test")
	inactive := contact("Ivy", model.ContactTypeStaff, model.NotificationPrefBoth, false, "+15550008", "ivy@agency.test")
	ok := contact("Jo", model.ContactTypeStaff, model.NotificationPrefBoth, true, "+15550009", "jo@agency.test")
	r := NewResolver(newMemStore(none, noPhone, emailOnly, inactive, ok))

	filters := []model.RecipientFilter{
		{Type: model.RecipientFilterAll},
		{Type: "staff"},
		{IDs: []uuid.UUID{none.ID, noPhone.ID, emailOnly.ID, inactive.ID, ok.ID}},
	}
	for _, f := range filters {
		got, err := r.Resolve(context.Background(), model.ChannelSMS, f)
		require.NoError(t, err)
		require.Len(t, got, 1, "filter %s", f)
		assert.Equal(t, ok.ID, got[0].ID)
	}

	got, err := r.Resolve(context.Background(), model.ChannelEmail, model.RecipientFilter{Type: model.RecipientFilterAll})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestResolver_Validation(t *testing.T) {
	r := NewResolver(newMemStore())

	_, err := r.Resolve(context.Background(), "pager", model.RecipientFilter{Type: model.RecipientFilterAll})
	assert.Error(t, err)

	_, err = r.Resolve(context.Background(), model.ChannelSMS, model.RecipientFilter{Type: "family"})
	assert.Error(t, err)

	got, err := r.Resolve(context.Background(), model.ChannelSMS, model.RecipientFilter{Type: "client"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
