package extractor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiterBoundsConcurrency(t *testing.T) {
	limiter := NewLimiter(2, 0)

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			limiter.Do(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestLimiterCancelledWhileWaiting(t *testing.T) {
	limiter := NewLimiter(1, 0)

	release := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		limiter.Do(context.Background(), func(ctx context.Context) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := limiter.Do(ctx, func(ctx context.Context) error {
		t.Error("fn must not run after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	close(release)
}

func TestLimiterAppliesTimeout(t *testing.T) {
	limiter := NewLimiter(1, 20*time.Millisecond)

	err := limiter.Do(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestLimiterPropagatesError(t *testing.T) {
	limiter := NewLimiter(1, 0)

	wantErr := errors.New("extractor down")
	if err := limiter.Do(context.Background(), func(ctx context.Context) error {
		return wantErr
	}); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}
