package email

import (
	"context"
	"log/slog"
	"sync"
)

// Message is an email captured by MockProvider.
type Message struct {
	To      string
	Subject string
	Body    string
}

// MockProvider is a mock email provider for local development.
type MockProvider struct {
	logger *slog.Logger
	mu     sync.Mutex
	sent   []Message
}

// NewMockProvider creates a new mock email provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// Send logs the email instead of sending it.
func (m *MockProvider) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	m.sent = append(m.sent, Message{To: to, Subject: subject, Body: htmlBody})
	m.mu.Unlock()

	m.logger.Info("MOCK EMAIL",
		"to", to,
		"subject", subject,
		"body_length", len(htmlBody))
	return nil
}

// Sent returns the emails captured so far.
func (m *MockProvider) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}
