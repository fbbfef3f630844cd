// Package post owns proposed posts and enforces their approval lifecycle.
package post

import (
	"context"
	"fmt"
	"log/slog"
	"postpilot/metrics"
	"postpilot/pkg/postpilot"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Publisher sends approved content to the target network and returns its remote id.
type Publisher interface {
	Publish(ctx context.Context, text string) (string, error)
}

type record struct {
	post       postpilot.Post
	seq        uint64
	publishing bool // an approve call holds this post
}

// Store holds posts in memory for the lifetime of the process.
type Store struct {
	mu             sync.Mutex
	posts          map[string]*record
	seq            uint64
	publisher      Publisher
	publishTimeout time.Duration
	metrics        *metrics.Metrics
	logger         *slog.Logger
	now            func() time.Time
}

// Config holds store configuration.
type Config struct {
	Publisher      Publisher
	PublishTimeout time.Duration // Bound on a single publish call; zero means no bound
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// New creates an empty post store.
func New(cfg *Config) *Store {
	return &Store{
		posts:          make(map[string]*record),
		publisher:      cfg.Publisher,
		publishTimeout: cfg.PublishTimeout,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		now:            time.Now,
	}
}

// Create records a new pending post.
func (s *Store) Create(content, topic string) (postpilot.Post, error) {
	if content == "" {
		return postpilot.Post{}, fmt.Errorf("post content is required: %w", postpilot.ErrInvalidArgument)
	}
	if n := len([]rune(content)); n > postpilot.MaxPostLength {
		return postpilot.Post{}, fmt.Errorf("post content is %d characters, limit is %d: %w", n, postpilot.MaxPostLength, postpilot.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.seq++
	p := postpilot.Post{
		ID:        uuid.NewString(),
		Content:   content,
		Topic:     topic,
		Timestamp: now,
		UpdatedAt: now,
		Status:    postpilot.StatusPending,
	}
	s.posts[p.ID] = &record{post: p, seq: s.seq}

	s.logger.Info("Post created", "post_id", p.ID, "topic", topic, "length", len([]rune(content)))
	return p, nil
}

// Get returns a post by id.
func (s *Store) Get(id string) (postpilot.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.posts[id]
	if !ok {
		return postpilot.Post{}, fmt.Errorf("post %s: %w", id, postpilot.ErrNotFound)
	}
	return r.post, nil
}

// List returns posts newest first. An empty status returns every post.
func (s *Store) List(status postpilot.Status) []postpilot.Post {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]*record, 0, len(s.posts))
	for _, r := range s.posts {
		if status == "" || r.post.Status == status {
			records = append(records, r)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.post.Timestamp.Equal(b.post.Timestamp) {
			return a.post.Timestamp.After(b.post.Timestamp)
		}
		return a.seq > b.seq
	})

	out := make([]postpilot.Post, len(records))
	for i, r := range records {
		out[i] = r.post
	}
	return out
}

// Approve publishes a pending post and marks it approved.
// If the publisher fails the post stays pending and a *postpilot.PublishError is returned.
// Concurrent calls for the same id: one proceeds, the rest get ErrInvalidState.
func (s *Store) Approve(ctx context.Context, id string) (string, error) {
	r, err := s.claim(id)
	if err != nil {
		return "", err
	}
	content := r.post.Content

	if s.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()
	}

	startTime := time.Now()
	remoteID, pubErr := s.publisher.Publish(ctx, content)
	duration := time.Since(startTime)

	s.mu.Lock()
	defer s.mu.Unlock()

	r.publishing = false
	if pubErr != nil {
		s.metrics.IncPublishFailure()
		s.logger.Warn("Publish failed, post remains pending",
			"post_id", id,
			"duration_ms", duration.Milliseconds(),
			"error", pubErr)
		return "", &postpilot.PublishError{PostID: id, Err: pubErr}
	}

	r.post.Status = postpilot.StatusApproved
	r.post.PublishedID = remoteID
	r.post.UpdatedAt = s.now()
	s.metrics.IncTransition(string(postpilot.StatusApproved))

	s.logger.Info("Post approved and published",
		"post_id", id,
		"published_id", remoteID,
		"duration_ms", duration.Milliseconds())
	return remoteID, nil
}

// Reject marks a pending post rejected.
func (s *Store) Reject(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.pendingLocked(id)
	if err != nil {
		return err
	}

	r.post.Status = postpilot.StatusRejected
	r.post.UpdatedAt = s.now()
	s.metrics.IncTransition(string(postpilot.StatusRejected))

	s.logger.Info("Post rejected", "post_id", id)
	return nil
}

// claim marks a pending post as being published so no other transition can start.
func (s *Store) claim(id string) (*record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.pendingLocked(id)
	if err != nil {
		return nil, err
	}
	r.publishing = true
	return r, nil
}

func (s *Store) pendingLocked(id string) (*record, error) {
	r, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("post %s: %w", id, postpilot.ErrNotFound)
	}
	if r.post.Status != postpilot.StatusPending {
		return nil, fmt.Errorf("post %s is %s: %w", id, r.post.Status, postpilot.ErrInvalidState)
	}
	if r.publishing {
		return nil, fmt.Errorf("post %s is being published: %w", id, postpilot.ErrInvalidState)
	}
	return r, nil
}
