// Package publish sends approved posts to their destination and reports the
// remote identifier the destination assigned.
package publish

import (
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// backoff controls how external calls are retried.
type backoff struct {
	attempts  uint
	delay     time.Duration
	maxDelay  time.Duration
	maxJitter time.Duration
}

var defaultBackoff = backoff{
	attempts:  3,
	delay:     time.Second,
	maxDelay:  2 * time.Minute,
	maxJitter: 10 * time.Second,
}

func (b backoff) options(logger *slog.Logger, op string) []retry.Option {
	return []retry.Option{
		retry.Attempts(b.attempts),
		retry.Delay(b.delay),
		retry.MaxDelay(b.maxDelay),
		retry.MaxJitter(b.maxJitter),
		retry.OnRetry(func(n uint, err error) {
			logger.Info("Retrying publish operation after error", "operation", op, "attempt", n, "error", err)
		}),
	}
}
