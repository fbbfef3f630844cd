// Package email notifies a reviewer that a generated post is waiting for approval.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"postpilot/pkg/postpilot"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// PendingSubject is the subject line of every approval request.
const PendingSubject = "New post awaiting approval"

// Provider defines the interface for email sending implementations.
type Provider interface {
	// Send sends an email with the given parameters.
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Sender sends approval requests using a pluggable provider.
type Sender struct {
	provider Provider
	logger   *slog.Logger
	baseURL  string // For review links
	approver string // Recipient; empty disables notifications
}

// New creates a new email sender with the given provider.
func New(provider Provider, logger *slog.Logger, baseURL, approver string) *Sender {
	return &Sender{
		provider: provider,
		logger:   logger,
		baseURL:  strings.TrimRight(baseURL, "/"),
		approver: strings.TrimSpace(approver),
	}
}

// NotifyPending emails the approver about a post awaiting review.
func (s *Sender) NotifyPending(ctx context.Context, p postpilot.Post) error {
	if s.approver == "" {
		s.logger.Info("No approver address configured, skipping notification", "post_id", p.ID)
		return nil
	}

	body := s.formatPendingBody(p)

	s.logger.Info("Sending approval request",
		"to", s.approver,
		"post_id", p.ID,
		"topic", p.Topic)

	if err := s.provider.Send(ctx, s.approver, PendingSubject, body); err != nil {
		return fmt.Errorf("send approval request for post %s: %w", p.ID, err)
	}
	return nil
}

// backoff controls how provider calls are retried.
type backoff struct {
	attempts  uint
	delay     time.Duration
	maxDelay  time.Duration
	maxJitter time.Duration
}

var defaultBackoff = backoff{
	attempts:  3,
	delay:     time.Second,
	maxDelay:  2 * time.Minute,
	maxJitter: 10 * time.Second,
}

func (b backoff) options(ctx context.Context, onRetry func(n uint, err error)) []retry.Option {
	return []retry.Option{
		retry.Attempts(b.attempts),
		retry.Delay(b.delay),
		retry.MaxDelay(b.maxDelay),
		retry.MaxJitter(b.maxJitter),
		retry.Context(ctx),
		retry.OnRetry(onRetry),
	}
}
