package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryStoreSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := RetryStore(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("RetryStore: %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestRetryStoreRecoversAfterFailures(t *testing.T) {
	calls := 0
	err := RetryStore(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RetryStore: %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestRetryStoreExhaustionReturnsStoreError(t *testing.T) {
	cause := errors.New("disk full")
	err := RetryStore(context.Background(), 3, time.Millisecond, func() error {
		return cause
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	var storeErr *StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *StoreError, got %T", err)
	}
	if !errors.Is(err, cause) {
		t.Error("StoreError must wrap the last cause")
	}
}

func TestRetryStoreStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- RetryStore(ctx, 5, time.Hour, func() error {
			calls++
			return errors.New("transient")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error")
		}
	case <-time.After(time.Second):
		t.Fatal("RetryStore ignored context cancellation")
	}
	if calls != 1 {
		t.Errorf("fn called %d times before cancellation, want 1", calls)
	}
}
