package extractor

import (
	"context"
	"time"
)

// Limiter bounds concurrent extractor calls and applies a per-call timeout.
// Acquisition respects the caller's context so cancellation is not blocked
// behind a full semaphore.
type Limiter struct {
	sem     chan struct{}
	timeout time.Duration
}

func NewLimiter(maxConcurrent int, timeout time.Duration) *Limiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Limiter{
		sem:     make(chan struct{}, maxConcurrent),
		timeout: timeout,
	}
}

// Do runs fn under the semaphore with the per-call deadline applied.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.sem }()

	callCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return fn(callCtx)
}
