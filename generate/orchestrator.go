// Package generate produces one pending post per trigger: it picks a topic,
// asks the content backend for text, records the post and notifies a reviewer.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"postpilot/metrics"
	"postpilot/pkg/postpilot"
	"strings"
	"time"
	"unicode/utf8"
)

const truncationMarker = "…"

// TopicSource lists the topics eligible for automatic generation.
type TopicSource interface {
	Active() []postpilot.Topic
}

// ContentGenerator turns a subject into post text. Length is not bounded.
type ContentGenerator interface {
	Generate(ctx context.Context, subject string) (string, error)
}

// Store records new pending posts.
type Store interface {
	Create(content, topic string) (postpilot.Post, error)
}

// Notifier tells a human that a post awaits review.
type Notifier interface {
	NotifyPending(ctx context.Context, p postpilot.Post) error
}

// Orchestrator ties topic selection, content generation, storage and notification together.
type Orchestrator struct {
	topics          TopicSource
	content         ContentGenerator
	store           Store
	notifier        Notifier
	generateTimeout time.Duration
	notifyTimeout   time.Duration
	pick            func(n int) int
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// Config holds orchestrator configuration.
type Config struct {
	Topics          TopicSource
	Content         ContentGenerator
	Store           Store
	Notifier        Notifier      // Optional
	GenerateTimeout time.Duration // Bound on one content backend call
	NotifyTimeout   time.Duration // Bound on one notification
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
}

// New creates an orchestrator.
func New(cfg *Config) *Orchestrator {
	return &Orchestrator{
		topics:          cfg.Topics,
		content:         cfg.Content,
		store:           cfg.Store,
		notifier:        cfg.Notifier,
		generateTimeout: cfg.GenerateTimeout,
		notifyTimeout:   cfg.NotifyTimeout,
		pick:            rand.IntN,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
	}
}

// Generate creates one pending post. An explicit topic is used as-is; otherwise
// a topic is drawn uniformly from the active pool, and an empty pool returns
// ErrNoActiveTopics without creating anything. Content backend failures are
// recovered with the fallback template.
func (o *Orchestrator) Generate(ctx context.Context, explicitTopic string) (postpilot.Post, error) {
	subject := strings.TrimSpace(explicitTopic)
	if subject == "" {
		active := o.topics.Active()
		if len(active) == 0 {
			return postpilot.Post{}, postpilot.ErrNoActiveTopics
		}
		subject = active[o.pick(len(active))].Name
	}

	text := o.compose(ctx, subject)

	p, err := o.store.Create(text, subject)
	if err != nil {
		return postpilot.Post{}, fmt.Errorf("create post: %w", err)
	}

	o.notify(ctx, p)
	return p, nil
}

func (o *Orchestrator) compose(ctx context.Context, subject string) string {
	genCtx := ctx
	if o.generateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, o.generateTimeout)
		defer cancel()
	}

	startTime := time.Now()
	raw, err := o.content.Generate(genCtx, subject)
	text := Normalize(raw)
	if err != nil || text == "" {
		if err == nil {
			err = fmt.Errorf("empty content for %q", subject)
		}
		o.logger.Warn("Content backend unavailable, using fallback",
			"topic", subject,
			"duration_ms", time.Since(startTime).Milliseconds(),
			"error", err)
		o.metrics.IncGenerated("fallback")
		return Truncate(Normalize(Fallback(subject)), postpilot.MaxPostLength)
	}

	o.metrics.IncGenerated("generator")
	o.logger.Info("Content generated",
		"topic", subject,
		"length", utf8.RuneCountInString(text),
		"duration_ms", time.Since(startTime).Milliseconds())
	return Truncate(text, postpilot.MaxPostLength)
}

func (o *Orchestrator) notify(ctx context.Context, p postpilot.Post) {
	if o.notifier == nil {
		return
	}
	// The post already exists; a cancelled request must not suppress the notice.
	ctx = context.WithoutCancel(ctx)
	if o.notifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.notifyTimeout)
		defer cancel()
	}

	if err := o.notifier.NotifyPending(ctx, p); err != nil {
		o.metrics.IncNotification("failed")
		o.logger.Warn("Notification failed", "post_id", p.ID, "error", err)
		return
	}
	o.metrics.IncNotification("sent")
}

// Fallback is the deterministic post used when no content backend answers.
func Fallback(subject string) string {
	return fmt.Sprintf("Tip: %s. Keep it short, specific, and actionable. Focus on one insight, avoid fluff.", subject)
}

// Normalize collapses runs of whitespace to single spaces and trims the ends.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate bounds s to limit characters. Longer text keeps its first limit-1
// characters followed by an ellipsis.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + truncationMarker
}
