package fetch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxAttempts is the number of download attempts per artifact.
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is multiplied by the attempt number between attempts.
	DefaultBaseDelay = time.Second
)

// linearBackOff waits base, 2*base, 3*base, ... between attempts.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

var _ backoff.BackOff = (*linearBackOff)(nil)

// NextBackOff returns the delay after the current failed attempt.
func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++

	return b.base * time.Duration(b.attempt)
}

// Reset starts the sequence over.
func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// newRetryPolicy allows maxAttempts tries in total and stops early when ctx is done.
func newRetryPolicy(ctx context.Context, maxAttempts int, base time.Duration) backoff.BackOffContext {
	var retries uint64
	if maxAttempts > 1 {
		retries = uint64(maxAttempts - 1)
	}

	return backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{base: base}, retries), ctx)
}
