package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"
)

// Record is the object written for each published post.
type Record struct {
	PublishedAt time.Time `json:"publishedAt"`
	ID          string    `json:"id"`
	Text        string    `json:"text"`
}

// Bucket publishes posts as JSON objects, either to Cloud Storage or to a
// local directory when localPath is set.
type Bucket struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
	backoff   backoff
	now       func() time.Time
}

// NewBucket creates a bucket publisher. Pass a nil client with a localPath for
// filesystem mode.
func NewBucket(client *storage.Client, bucket, localPath string, logger *slog.Logger) *Bucket {
	return &Bucket{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
		backoff:   defaultBackoff,
		now:       time.Now,
	}
}

// ObjectKey returns the object name for a published id, or "" if the id is not a UUID.
func ObjectKey(id string) string {
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return fmt.Sprintf("post-%s.json", id)
}

// Publish writes text as a new record and returns its id.
func (b *Bucket) Publish(ctx context.Context, text string) (string, error) {
	rec := Record{ID: uuid.NewString(), Text: text, PublishedAt: b.now().UTC()}
	key := ObjectKey(rec.ID)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	if b.localPath != "" {
		if err := os.MkdirAll(b.localPath, 0o750); err != nil {
			return "", fmt.Errorf("create local publish directory: %w", err)
		}
		filePath := filepath.Join(b.localPath, key)
		if err := os.WriteFile(filePath, data, 0o600); err != nil {
			return "", fmt.Errorf("write to local storage: %w", err)
		}
		b.logger.Info("Post published to local storage", "path", filePath, "published_id", rec.ID)
		return rec.ID, nil
	}

	opts := append(b.backoff.options(b.logger, "bucket write"), retry.Context(ctx))
	err = retry.Do(
		func() error {
			w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					b.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		opts...,
	)
	if err != nil {
		return "", fmt.Errorf("publish after retries: %w", err)
	}

	b.logger.Info("Post published to bucket", "bucket", b.bucket, "key", key, "published_id", rec.ID)
	return rec.ID, nil
}
