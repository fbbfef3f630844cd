package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"postpilot/pkg/postpilot"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestScraper() *Scraper {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s := New(&http.Client{Timeout: 5 * time.Second}, logger)
	s.delay = time.Millisecond
	s.jitter = time.Millisecond
	return s
}

const blogPage = `<!DOCTYPE html>
<html><head><title>Engineering Blog | Example</title></head>
<body>
<h1>Engineering Blog</h1>
<article><h2>  Writing   useful
  commit messages </h2><p>body</p></article>
<article><h2>Feature flags in practice</h2></article>
<article><h3>Writing useful commit messages</h3></article>
<article><h4>Not a headline</h4></article>
<h2></h2>
</body></html>`

func TestParsePage(t *testing.T) {
	page, err := parsePage(strings.NewReader(blogPage))
	if err != nil {
		t.Fatalf("parsePage() error = %v", err)
	}
	if page.Title != "Engineering Blog" {
		t.Errorf("Title = %q, want %q", page.Title, "Engineering Blog")
	}

	want := []string{"Engineering Blog", "Writing useful commit messages", "Feature flags in practice"}
	if len(page.Headlines) != len(want) {
		t.Fatalf("Headlines = %q, want %q", page.Headlines, want)
	}
	for i := range want {
		if page.Headlines[i] != want[i] {
			t.Errorf("Headlines[%d] = %q, want %q", i, page.Headlines[i], want[i])
		}
	}
}

func TestParsePageCapsHeadlines(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := range 50 {
		fmt.Fprintf(&b, "<h2>Headline %d</h2>", i)
	}
	b.WriteString("</body></html>")

	page, err := parsePage(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("parsePage() error = %v", err)
	}
	if len(page.Headlines) != MaxHeadlines {
		t.Errorf("got %d headlines, want %d", len(page.Headlines), MaxHeadlines)
	}
	if page.Headlines[0] != "Headline 0" {
		t.Errorf("first headline = %q, want document order", page.Headlines[0])
	}
}

func TestParsePageNoHeadlines(t *testing.T) {
	if _, err := parsePage(strings.NewReader("<html><body><p>nothing</p></body></html>")); err == nil {
		t.Error("parsePage() should fail when the page has no headings")
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://example.com/blog", true},
		{"http://example.com", true},
		{"  https://example.com/padded  ", true},
		{"ftp://example.com/file", false},
		{"javascript:alert(1)", false},
		{"file:///etc/passwd", false},
		{"/relative/path", false},
		{"example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			_, err := ValidateURL(tt.url)
			if tt.valid && err != nil {
				t.Errorf("ValidateURL(%q) error = %v, want nil", tt.url, err)
			}
			if !tt.valid && !errors.Is(err, postpilot.ErrInvalidArgument) {
				t.Errorf("ValidateURL(%q) error = %v, want ErrInvalidArgument", tt.url, err)
			}
		})
	}
}

func TestHeadlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, blogPage)
	}))
	defer srv.Close()

	got, err := newTestScraper().Headlines(context.Background(), srv.URL+"/blog")
	if err != nil {
		t.Fatalf("Headlines() error = %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Headlines() = %q, want 3 entries", got)
	}
}

func TestHeadlinesRejectsBadURL(t *testing.T) {
	_, err := newTestScraper().Headlines(context.Background(), "mailto:someone@example.com")
	if !errors.Is(err, postpilot.ErrInvalidArgument) {
		t.Errorf("Headlines() error = %v, want ErrInvalidArgument", err)
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		t.Error("invalid URL must not be reported as a fetch failure")
	}
}

func TestHeadlinesForbidden(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestScraper().Headlines(context.Background(), srv.URL)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Headlines() error = %v, want *FetchError", err)
	}
	if !IsHTTP403Error(err) {
		t.Errorf("Headlines() error = %v, want HTTP403Error", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("forbidden page fetched %d times, want 1", n)
	}
}

func TestHeadlinesRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, blogPage)
	}))
	defer srv.Close()

	if _, err := newTestScraper().Headlines(context.Background(), srv.URL); err != nil {
		t.Fatalf("Headlines() error = %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestHeadlinesNotFoundIsFinal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestScraper().Headlines(context.Background(), srv.URL)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Headlines() error = %v, want *FetchError", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}
