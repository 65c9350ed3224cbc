// Package provider delivers rendered notifications over email and SMS.
package provider

import (
	"context"
	"time"
)

// Result is the outcome of a single delivery attempt. Senders never return errors;
// failures are reported through Error.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
	// Rejected marks a failure that belongs to this message alone, such as an invalid
	// address. It says nothing about the provider's health.
	Rejected bool `json:"rejected,omitempty"`
	// RetryAfter is set when the provider was not called at all. The job should wait
	// this long and keep its attempt.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// NotAttempted reports whether the message never reached the provider.
func (r Result) NotAttempted() bool {
	return !r.Success && r.RetryAfter > 0
}

func success(id string) Result {
	return Result{Success: true, MessageID: id}
}

func failure(msg string) Result {
	return Result{Error: msg}
}

func rejected(msg string) Result {
	return Result{Error: msg, Rejected: true}
}

type EmailMessage struct {
	To      string
	Subject string
	Body    string
}

type SMSMessage struct {
	To   string
	Body string
}

type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) Result
	Name() string
	// Configured is false for the mock sender.
	Configured() bool
}

type SMSSender interface {
	SendSMS(ctx context.Context, msg SMSMessage) Result
	Name() string
	Configured() bool
}

// Status describes one channel's sender.
type Status struct {
	Configured bool   `json:"configured"`
	Provider   string `json:"provider"`
}

type ProvidersStatus struct {
	Email Status `json:"email"`
	SMS   Status `json:"sms"`
}
