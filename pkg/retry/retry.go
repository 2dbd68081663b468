// Package retry re-runs short operations that fail transiently, such as a
// channel write racing a reconnect. Anything needing circuit breaking or
// per-request policies goes through failsafe in pkg/http instead.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy bounds the attempts and the backoff between them.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy suits sub-second operations against a local resource.
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// IsTransientFunc reports whether an error is worth another attempt.
type IsTransientFunc func(error) bool

// Do runs fn until it succeeds, the error is not transient, the attempts
// are exhausted, or ctx ends. Backoff doubles per attempt up to the policy
// cap, with up to 50% jitter so concurrent callers spread out.
func Do(ctx context.Context, policy Policy, isTransient IsTransientFunc, fn func() error) error {
	var err error
	backoff := policy.InitialBackoff

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		sleep := backoff
		if half := int64(backoff / 2); half > 0 {
			sleep += time.Duration(rand.Int63n(half))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
			backoff = min(backoff*2, policy.MaxBackoff)
		}
	}

	return err
}
