package jobs

import (
	"context"
	"time"
)

// RetryStore runs a store write with bounded linear backoff. It returns nil
// on the first success, the context error if cancelled while waiting, or a
// StoreError wrapping the last failure once attempts are exhausted.
func RetryStore(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(i+1)):
		}
	}
	return &StoreError{Err: err}
}
