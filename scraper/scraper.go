// Package scraper fetches web pages and extracts headline text that can be
// imported as topics.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"postpilot/pkg/postpilot"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"
)

// MaxHeadlines caps how many headlines a single page contributes.
const MaxHeadlines = 20

const maxHeadlineLength = 200

// Page represents a parsed page with its headline candidates.
type Page struct {
	Title     string
	Headlines []string
}

// HTTP403Error indicates a 403 Forbidden response (login required).
type HTTP403Error struct {
	URL string
}

func (e *HTTP403Error) Error() string {
	return fmt.Sprintf("HTTP 403 Forbidden: %s", e.URL)
}

// IsHTTP403Error checks if an error is an HTTP 403 error.
func IsHTTP403Error(err error) bool {
	var forbidden *HTTP403Error
	return errors.As(err, &forbidden)
}

// FetchError reports that a page could not be retrieved or parsed.
type FetchError struct {
	Err error
	URL string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Scraper fetches and parses pages.
type Scraper struct {
	client   *http.Client
	logger   *slog.Logger
	attempts uint
	delay    time.Duration
	jitter   time.Duration
}

// New creates a new scraper.
func New(client *http.Client, logger *slog.Logger) *Scraper {
	return &Scraper{
		client:   client,
		logger:   logger,
		attempts: 3,
		delay:    time.Second,
		jitter:   10 * time.Second,
	}
}

// ValidateURL accepts absolute http and https URLs only.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", postpilot.ErrInvalidArgument)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("url must be absolute http or https, got %q: %w", raw, postpilot.ErrInvalidArgument)
	}
	return u, nil
}

// Headlines fetches pageURL and returns its h1-h3 headings, deduplicated in
// document order and capped at MaxHeadlines.
func (s *Scraper) Headlines(ctx context.Context, pageURL string) ([]string, error) {
	u, err := ValidateURL(pageURL)
	if err != nil {
		return nil, err
	}
	page, err := s.fetch(ctx, u.String())
	if err != nil {
		return nil, &FetchError{URL: u.String(), Err: err}
	}
	return page.Headlines, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (*Page, error) {
	var page *Page

	err := retry.Do(
		func() error {
			s.logger.Info("HTTP request starting",
				"method", "GET",
				"url", pageURL,
				"purpose", "import_topics")

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; postpilot/1.0; +topic-import)")
			req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")

			startTime := time.Now()
			resp, err := s.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				s.logger.Warn("HTTP request failed, will retry",
					"url", pageURL,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					s.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			s.logger.Info("HTTP request completed",
				"url", pageURL,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds(),
				"content_length", resp.ContentLength)

			if resp.StatusCode == http.StatusForbidden {
				s.logger.Warn("HTTP 403 Forbidden - page requires login", "url", pageURL)
				return retry.Unrecoverable(&HTTP403Error{URL: pageURL})
			}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return retry.Unrecoverable(fmt.Errorf("HTTP %d", resp.StatusCode))
			}
			if resp.StatusCode != http.StatusOK {
				s.logger.Warn("HTTP request returned non-OK status, will retry", "status_code", resp.StatusCode)
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			page, err = parsePage(io.LimitReader(resp.Body, 5<<20))
			if err != nil {
				s.logger.Error("Failed to parse HTML", "error", err)
				return retry.Unrecoverable(err)
			}

			s.logger.Info("Page parsed successfully",
				"url", pageURL,
				"title", page.Title,
				"headlines_found", len(page.Headlines))
			return nil
		},
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(s.jitter),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying fetch after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("after retries: %w", err)
	}

	return page, nil
}

func parsePage(body io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if idx := strings.Index(title, " | "); idx > 0 {
		title = title[:idx]
	}

	seen := make(map[string]bool)
	var headlines []string
	doc.Find("h1, h2, h3").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" || len([]rune(text)) > maxHeadlineLength {
			return true
		}
		key := strings.ToLower(text)
		if seen[key] {
			return true
		}
		seen[key] = true
		headlines = append(headlines, text)
		return len(headlines) < MaxHeadlines
	})

	if len(headlines) == 0 {
		return nil, fmt.Errorf("no headlines found (title=%q)", title)
	}

	return &Page{Title: title, Headlines: headlines}, nil
}
