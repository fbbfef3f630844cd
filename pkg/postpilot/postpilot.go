// Package postpilot contains the core domain types for the post approval service.
package postpilot

import "time"

// MaxPostLength is the platform limit on post content, in characters.
const MaxPostLength = 280

// Topic is a candidate subject for generated posts.
type Topic struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"isActive"`
}

// Status is the lifecycle state of a post.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Post is a generated post awaiting (or past) human review.
type Post struct {
	Timestamp   time.Time `json:"timestamp"`             // When the post was proposed
	UpdatedAt   time.Time `json:"updatedAt"`             // Last status change
	ID          string    `json:"id"`                    // Random unique id
	Content     string    `json:"content"`               // At most MaxPostLength characters
	Topic       string    `json:"topic,omitempty"`       // Subject the content was generated from
	Status      Status    `json:"status"`                // pending, approved or rejected
	PublishedID string    `json:"publishedId,omitempty"` // Remote id returned by the publisher
}

// Frequency is how often the schedule recurs after its first firing.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

// ScheduleConfig describes when posts are generated automatically.
type ScheduleConfig struct {
	Frequency Frequency `json:"frequency"`
	Time      string    `json:"time"`     // Wall clock "HH:MM"
	Timezone  string    `json:"timezone"` // IANA zone name
	IsActive  bool      `json:"isActive"`
}
