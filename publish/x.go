package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/oauth2"
)

// DefaultXAPIURL is the X (Twitter) API base URL.
const DefaultXAPIURL = "https://api.twitter.com"

// HTTPStatusError reports a non-2xx response from the X API.
type HTTPStatusError struct {
	Body       string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("X API returned status %d: %s", e.StatusCode, e.Body)
}

// X publishes posts through the X API v2 create-post endpoint.
type X struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
	backoff backoff
}

// NewX creates an X publisher authenticated with a user-context bearer token.
func NewX(ctx context.Context, accessToken, baseURL string, logger *slog.Logger) (*X, error) {
	if accessToken == "" {
		return nil, errors.New("X access token is required")
	}
	if baseURL == "" {
		baseURL = DefaultXAPIURL
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	client := oauth2.NewClient(ctx, src)
	client.Timeout = 30 * time.Second

	return &X{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		backoff: defaultBackoff,
	}, nil
}

type createRequest struct {
	Text string `json:"text"`
}

type createResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// Publish creates a post and returns the id X assigned to it.
// Client errors other than rate limiting are not retried.
func (x *X) Publish(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(createRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var id string
	opts := append(x.backoff.options(x.logger, "x create post"), retry.Context(ctx))
	err = retry.Do(
		func() error {
			var callErr error
			id, callErr = x.create(ctx, payload)
			return callErr
		},
		opts...,
	)
	if err != nil {
		return "", fmt.Errorf("publish to X: %w", err)
	}

	x.logger.Info("Post published to X", "published_id", id)
	return id, nil
}

func (x *X) create(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return "", retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			x.logger.Debug("Failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return "", retry.Unrecoverable(statusErr)
		}
		return "", statusErr
	}

	var out createResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
	}
	if out.Data.ID == "" {
		return "", retry.Unrecoverable(errors.New("X API response has no post id"))
	}
	return out.Data.ID, nil
}
