package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/jwalitptl/homecare-notify/internal/model"
	"github.com/jwalitptl/homecare-notify/internal/repository"
)

type contactRepository struct {
	BaseRepository
}

func NewContactRepository(base BaseRepository) repository.ContactRepository {
	return &contactRepository{base}
}

// ListEligible returns active contacts reachable on channel that opted into it, narrowed by
// filter. Explicit ids take precedence over type.
func (r *contactRepository) ListEligible(ctx context.Context, channel model.Channel, filter model.RecipientFilter) ([]*model.Contact, error) {
	query := `
		SELECT id, name, phone, email, notification_pref, type, is_active, created_at
		FROM contacts
		WHERE is_active = TRUE
	`
	var args []interface{}

	switch channel {
	case model.ChannelSMS:
		query += ` AND phone IS NOT NULL AND phone <> '' AND notification_pref IN ('sms', 'both')`
	case model.ChannelEmail:
		query += ` AND email IS NOT NULL AND email <> '' AND notification_pref IN ('email', 'both')`
	default:
		return nil, fmt.Errorf("unsupported channel: %s", channel)
	}

	switch {
	case len(filter.IDs) > 0:
		ids := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			ids[i] = id.String()
		}
		args = append(args, pq.StringArray(ids))
		query += fmt.Sprintf(" AND id = ANY($%d::uuid[])", len(args))
	case filter.Type != "" && filter.Type != model.RecipientFilterAll:
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}

	query += " ORDER BY name ASC, id ASC"

	var contacts []*model.Contact
	if err := r.GetDB().SelectContext(ctx, &contacts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list eligible contacts: %w", err)
	}
	return contacts, nil
}
