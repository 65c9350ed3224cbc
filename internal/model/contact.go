package model

import (
	"time"

	"github.com/google/uuid"
)

type ContactType string

const (
	ContactTypeStaff          ContactType = "staff"
	ContactTypeClient         ContactType = "client"
	ContactTypeVendor         ContactType = "vendor"
	ContactTypeReferralSource ContactType = "referral_source"
	ContactTypeOther          ContactType = "other"
)

func (t ContactType) IsValid() bool {
	switch t {
	case ContactTypeStaff, ContactTypeClient, ContactTypeVendor, ContactTypeReferralSource, ContactTypeOther:
		return true
	}
	return false
}

type NotificationPref string

const (
	NotificationPrefSMS   NotificationPref = "sms"
	NotificationPrefEmail NotificationPref = "email"
	NotificationPrefBoth  NotificationPref = "both"
	NotificationPrefNone  NotificationPref = "none"
)

// Contact is a row of the admin-managed contact directory. This service only reads it.
type Contact struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	Name             string           `json:"name" db:"name"`
	Phone            *string          `json:"phone,omitempty" db:"phone"`
	Email            *string          `json:"email,omitempty" db:"email"`
	NotificationPref NotificationPref `json:"notification_pref" db:"notification_pref"`
	Type             ContactType      `json:"type" db:"type"`
	IsActive         bool             `json:"is_active" db:"is_active"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// Address returns the delivery address for the channel, or "" when the contact has none.
func (c *Contact) Address(channel Channel) string {
	var v *string
	switch channel {
	case ChannelSMS:
		v = c.Phone
	case ChannelEmail:
		v = c.Email
	}
	if v == nil {
		return ""
	}
	return *v
}

// EligibleFor reports whether the contact may receive messages on channel.
func (c *Contact) EligibleFor(channel Channel) bool {
	if !c.IsActive || c.Address(channel) == "" {
		return false
	}
	switch channel {
	case ChannelSMS:
		return c.NotificationPref == NotificationPrefSMS || c.NotificationPref == NotificationPrefBoth
	case ChannelEmail:
		return c.NotificationPref == NotificationPrefEmail || c.NotificationPref == NotificationPrefBoth
	}
	return false
}
