package postpilot

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument indicates malformed input to a mutating call.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound indicates an unknown topic or post id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates a transition from a non-pending post, or a lost approval race.
	ErrInvalidState = errors.New("invalid state")
	// ErrNoActiveTopics indicates generation was requested with an empty active topic pool.
	ErrNoActiveTopics = errors.New("no active topics")
)

// PublishError indicates the publisher failed; the post stays pending.
type PublishError struct {
	Err    error
	PostID string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish post %s: %v", e.PostID, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// IsPublishError reports whether err wraps a *PublishError.
func IsPublishError(err error) bool {
	var pubErr *PublishError
	return errors.As(err, &pubErr)
}
