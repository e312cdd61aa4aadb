package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultAttempts = 5
	DefaultDelay    = 1 * time.Second
)

// Policy is a bounded, fixed-delay retry schedule. Attempts counts every
// call including the first one.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Attempts: DefaultAttempts, Delay: DefaultDelay}
}

func (p Policy) attempts() uint {
	if p.Attempts < 1 {
		return 1
	}
	return uint(p.Attempts)
}

// Permanent wraps err so that Do stops retrying and returns err as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a Permanent error, the attempts are
// exhausted or ctx is done. The last error is returned.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		return op(ctx, attempt)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(p.attempts()),
	)
}
