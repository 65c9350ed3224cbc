package messaging

import (
	"context"
	"time"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Publisher defines the interface for publishing messages
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

type Message struct {
	Type       string      `json:"type"`
	Payload    interface{} `json:"payload"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// Event types published by the notification pipeline.
const (
	EventBatchComposed     = "notification.batch_composed"
	EventJobSent           = "notification.job_sent"
	EventJobFailed         = "notification.job_failed"
	EventProcessingSummary = "notification.processing_summary"
)
