package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

func (c Channel) IsValid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusSent       QueueStatus = "sent"
	QueueStatusFailed     QueueStatus = "failed"
)

func (s QueueStatus) IsValid() bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusSent, QueueStatusFailed:
		return true
	}
	return false
}

// DefaultMaxAttempts is the number of delivery attempts a job gets before it is failed.
const DefaultMaxAttempts = 3

// QueueJob is one message addressed to one contact.
type QueueJob struct {
	ID                uuid.UUID   `json:"id" db:"id"`
	BatchID           *uuid.UUID  `json:"batch_id,omitempty" db:"batch_id"`
	ContactID         uuid.UUID   `json:"contact_id" db:"contact_id"`
	Channel           Channel     `json:"channel" db:"channel"`
	Subject           *string     `json:"subject,omitempty" db:"subject"`
	Body              string      `json:"body" db:"body"`
	Status            QueueStatus `json:"status" db:"status"`
	Attempts          int         `json:"attempts" db:"attempts"`
	MaxAttempts       int         `json:"max_attempts" db:"max_attempts"`
	ErrorMessage      *string     `json:"error_message,omitempty" db:"error_message"`
	ProviderMessageID *string     `json:"provider_message_id,omitempty" db:"provider_message_id"`
	ScheduledFor      time.Time   `json:"scheduled_for" db:"scheduled_for"`
	ClaimedAt         *time.Time  `json:"claimed_at,omitempty" db:"claimed_at"`
	SentAt            *time.Time  `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at" db:"updated_at"`
}

// DueJob is a pending job joined with the delivery addresses of its contact.
type DueJob struct {
	QueueJob
	ContactName  string  `json:"contact_name" db:"contact_name"`
	ContactPhone *string `json:"contact_phone,omitempty" db:"contact_phone"`
	ContactEmail *string `json:"contact_email,omitempty" db:"contact_email"`
}

// Address returns the recipient address for the job's channel.
func (j *DueJob) Address() string {
	c := Contact{Phone: j.ContactPhone, Email: j.ContactEmail}
	return c.Address(j.Channel)
}

// QueueItem is the admin listing view of a job.
type QueueItem struct {
	QueueJob
	ContactName string `json:"contact_name" db:"contact_name"`
}

// BatchLog summarises one compose call.
type BatchLog struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	AdminID         *uuid.UUID  `json:"admin_id,omitempty" db:"admin_id"`
	RecipientFilter string      `json:"recipient_filter" db:"recipient_filter"`
	RecipientCount  int         `json:"recipient_count" db:"recipient_count"`
	Channel         Channel     `json:"channel" db:"channel"`
	Subject         *string     `json:"subject,omitempty" db:"subject"`
	Body            string      `json:"body" db:"body"`
	Status          QueueStatus `json:"status" db:"status"`
	SentAt          time.Time   `json:"sent_at" db:"sent_at"`
}

// RecipientFilter selects the contacts a compose call targets. IDs take precedence over Type.
type RecipientFilter struct {
	Type string      `json:"type,omitempty" binding:"contact_type"`
	IDs  []uuid.UUID `json:"ids,omitempty"`
}

const RecipientFilterAll = "all"

func (f RecipientFilter) Validate() error {
	if len(f.IDs) > 0 {
		return nil
	}
	if f.Type == "" {
		return fmt.Errorf("recipient filter requires a type or a list of ids")
	}
	if f.Type != RecipientFilterAll && !ContactType(f.Type).IsValid() {
		return fmt.Errorf("unknown contact type %q", f.Type)
	}
	return nil
}

// String serialises the filter for storage on the batch log.
func (f RecipientFilter) String() string {
	if len(f.IDs) > 0 {
		b, _ := json.Marshal(struct {
			IDs []uuid.UUID `json:"ids"`
		}{f.IDs})
		return string(b)
	}
	b, _ := json.Marshal(struct {
		Type string `json:"type"`
	}{f.Type})
	return string(b)
}

// QueueStats counts jobs per status.
type QueueStats struct {
	Pending    int64 `json:"pending" db:"pending"`
	Processing int64 `json:"processing" db:"processing"`
	Sent       int64 `json:"sent" db:"sent"`
	Failed     int64 `json:"failed" db:"failed"`
	Total      int64 `json:"total" db:"total"`
}

// QueueFilter is the admin listing filter for queue items.
type QueueFilter struct {
	Status QueueStatus
	Pagination
}
