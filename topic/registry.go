// Package topic maintains the catalog of candidate subjects for generated posts.
package topic

import (
	"fmt"
	"log/slog"
	"postpilot/pkg/postpilot"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	topic postpilot.Topic
	seq   uint64 // insertion order, breaks CreatedAt ties
}

// Registry holds topics in memory for the lifetime of the process.
// Duplicate names are permitted.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]*entry
	seq    uint64
	now    func() time.Time
	logger *slog.Logger
}

// New creates an empty topic registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		topics: make(map[string]*entry),
		now:    time.Now,
		logger: logger,
	}
}

// Add registers a new active topic.
func (r *Registry) Add(name string) (postpilot.Topic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return postpilot.Topic{}, fmt.Errorf("topic name is required: %w", postpilot.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	t := postpilot.Topic{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: r.now(),
		IsActive:  true,
	}
	r.topics[t.ID] = &entry{topic: t, seq: r.seq}

	r.logger.Info("Topic added", "topic_id", t.ID, "name", t.Name)
	return t, nil
}

// List returns all topics, newest first.
func (r *Registry) List() []postpilot.Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sorted(func(postpilot.Topic) bool { return true })
}

// Active returns the active topics, newest first.
func (r *Registry) Active() []postpilot.Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sorted(func(t postpilot.Topic) bool { return t.IsActive })
}

// Toggle flips the active flag of a topic and returns the updated topic.
func (r *Registry) Toggle(id string) (postpilot.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.topics[id]
	if !ok {
		return postpilot.Topic{}, fmt.Errorf("topic %s: %w", id, postpilot.ErrNotFound)
	}
	e.topic.IsActive = !e.topic.IsActive

	r.logger.Info("Topic toggled", "topic_id", id, "active", e.topic.IsActive)
	return e.topic, nil
}

// Delete removes a topic.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.topics[id]; !ok {
		return fmt.Errorf("topic %s: %w", id, postpilot.ErrNotFound)
	}
	delete(r.topics, id)

	r.logger.Info("Topic deleted", "topic_id", id)
	return nil
}

// sorted must be called with r.mu held.
func (r *Registry) sorted(keep func(postpilot.Topic) bool) []postpilot.Topic {
	entries := make([]*entry, 0, len(r.topics))
	for _, e := range r.topics {
		if keep(e.topic) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.topic.CreatedAt.Equal(b.topic.CreatedAt) {
			return a.topic.CreatedAt.After(b.topic.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]postpilot.Topic, len(entries))
	for i, e := range entries {
		out[i] = e.topic
	}
	return out
}
