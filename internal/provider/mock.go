package provider

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/homecare-notify/pkg/logger"
)

// MockSender logs messages instead of delivering them and always succeeds.
type MockSender struct {
	logger *logger.Logger

	mu     sync.Mutex
	emails []EmailMessage
	sms    []SMSMessage
}

func NewMockSender(log *logger.Logger) *MockSender {
	return &MockSender{logger: log.With("mock-provider")}
}

func (m *MockSender) Name() string     { return "mock" }
func (m *MockSender) Configured() bool { return false }

func (m *MockSender) SendEmail(_ context.Context, msg EmailMessage) Result {
	m.mu.Lock()
	m.emails = append(m.emails, msg)
	m.mu.Unlock()

	m.logger.Info("mock email",
		"to", msg.To,
		"subject", msg.Subject,
		"body_length", len(msg.Body))
	return success("mock-" + uuid.NewString())
}

func (m *MockSender) SendSMS(_ context.Context, msg SMSMessage) Result {
	m.mu.Lock()
	m.sms = append(m.sms, msg)
	m.mu.Unlock()

	m.logger.Info("mock sms",
		"to", msg.To,
		"body_length", len(msg.Body))
	return success("mock-" + uuid.NewString())
}

// Emails returns the messages recorded so far.
func (m *MockSender) Emails() []EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmailMessage(nil), m.emails...)
}

func (m *MockSender) SMS() []SMSMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SMSMessage(nil), m.sms...)
}
