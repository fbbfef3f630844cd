// Package content holds the backends that turn a subject into post text.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnavailable is returned by backends that cannot serve requests, typically
// because no credentials were configured.
var ErrUnavailable = errors.New("content backend unavailable")

const systemPrompt = "You write posts for a professional social media account. " +
	"Reply with the post text only: no hashtags, no quotes, no preamble. " +
	"Stay under 280 characters."

// Unavailable fails every request immediately.
type Unavailable struct {
	Reason string
}

// Generate returns ErrUnavailable without blocking.
func (u Unavailable) Generate(_ context.Context, _ string) (string, error) {
	if u.Reason == "" {
		return "", ErrUnavailable
	}
	return "", fmt.Errorf("%s: %w", u.Reason, ErrUnavailable)
}

func userPrompt(subject string) string {
	return fmt.Sprintf("Write one short, specific, actionable post about %q. Focus on a single insight.", subject)
}

// PlainText strips markup a model sometimes wraps around its answer and
// removes enclosing quotes.
func PlainText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = strings.TrimSpace(doc.Text())
		}
	}
	for _, q := range []string{`"`, "'", "“"} {
		closing := q
		if q == "“" {
			closing = "”"
		}
		if len(s) >= len(q)+len(closing) && strings.HasPrefix(s, q) && strings.HasSuffix(s, closing) {
			s = strings.TrimSpace(s[len(q) : len(s)-len(closing)])
			break
		}
	}
	return s
}
