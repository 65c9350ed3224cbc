package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   *uuid.UUID      `json:"entity_id,omitempty" db:"entity_id"`
	Metadata   json.RawMessage `json:"metadata" db:"metadata"`
	IPAddress  string          `json:"ip_address" db:"ip_address"`
	UserAgent  string          `json:"user_agent" db:"user_agent"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// AuditFilter narrows the audit trail listing. Zero fields match everything.
type AuditFilter struct {
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	AdminID    *uuid.UUID
	Since      *time.Time
	Pagination
}

const (
	// Action types
	AuditActionCompose     = "notification.compose"
	AuditActionCancel      = "notification.cancel"
	AuditActionRetry       = "notification.retry"
	AuditActionClearFailed = "notification.clear_failed"
	AuditActionRetention   = "audit.retention_cleanup"

	// Entity types
	AuditEntityNotificationBatch = "notification_batch"
	AuditEntityNotificationJob   = "notification_job"
	AuditEntityAuditLog          = "audit_log"
)
