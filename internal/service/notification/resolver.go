package notification

import (
	"context"

	"github.com/jwalitptl/homecare-notify/internal/model"
	"github.com/jwalitptl/homecare-notify/internal/repository"
	apperrors "github.com/jwalitptl/homecare-notify/pkg/errors"
)

// Resolver turns a recipient filter into the contacts eligible for a channel.
type Resolver struct {
	contacts repository.ContactRepository
}

func NewResolver(contacts repository.ContactRepository) *Resolver {
	return &Resolver{contacts: contacts}
}

// Resolve returns the eligible contacts in directory order. An empty result is not an error.
func (r *Resolver) Resolve(ctx context.Context, channel model.Channel, filter model.RecipientFilter) ([]*model.Contact, error) {
	if !channel.IsValid() {
		return nil, apperrors.BadRequest("invalid channel", nil)
	}
	if err := filter.Validate(); err != nil {
		return nil, apperrors.BadRequest(err.Error(), err)
	}

	contacts, err := r.contacts.ListEligible(ctx, channel, filter)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	eligible := contacts[:0]
	for _, c := range contacts {
		if c.EligibleFor(channel) {
			eligible = append(eligible, c)
		}
	}
	return eligible, nil
}
