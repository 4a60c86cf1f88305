// Package jobs provides the process-wide job supervisor: a fixed worker pool
// with at-most-one in-flight execution per job id and cooperative
// cancellation.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Runner is a job body. It must end every path in a persisted terminal
// status; the supervisor only logs the returned error.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, jobID string) error

func (f RunnerFunc) Run(ctx context.Context, jobID string) error { return f(ctx, jobID) }

type execution struct {
	jobID  string
	runner Runner
	ctx    context.Context
}

// Supervisor owns the worker pool and the in-flight registry. It is created
// at process start and drained at shutdown.
type Supervisor struct {
	logger *zap.Logger
	queue  chan execution

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
	closed   bool

	wg sync.WaitGroup
}

const queueCapacity = 256

func NewSupervisor(workers int, logger *zap.Logger) *Supervisor {
	if workers < 1 {
		workers = 1
	}
	s := &Supervisor{
		logger:   logger,
		queue:    make(chan execution, queueCapacity),
		inFlight: make(map[string]context.CancelFunc),
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

func (s *Supervisor) worker() {
	defer s.wg.Done()
	for exec := range s.queue {
		s.logger.Info("job started", zap.String("job_id", exec.jobID))
		if err := exec.runner.Run(exec.ctx, exec.jobID); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("job finished with error", zap.String("job_id", exec.jobID), zap.Error(err))
		} else {
			s.logger.Info("job finished", zap.String("job_id", exec.jobID))
		}
		s.release(exec.jobID)
	}
}

// Submit schedules a job body for execution. A job id that is already queued
// or running is not scheduled again; Submit reports whether the job was
// accepted.
func (s *Supervisor) Submit(jobID string, runner Runner) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, fmt.Errorf("supervisor is shut down")
	}
	if _, exists := s.inFlight[jobID]; exists {
		s.mu.Unlock()
		return false, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.inFlight[jobID] = cancel
	s.mu.Unlock()

	select {
	case s.queue <- execution{jobID: jobID, runner: runner, ctx: ctx}:
		return true, nil
	default:
		s.release(jobID)
		return false, fmt.Errorf("job queue is full")
	}
}

// Cancel signals the in-flight execution of jobID, if any. The worker
// observes it at the next cooperative checkpoint. Reports whether an
// execution was signalled.
func (s *Supervisor) Cancel(jobID string) bool {
	s.mu.Lock()
	cancel, exists := s.inFlight[jobID]
	s.mu.Unlock()
	if !exists {
		return false
	}
	cancel()
	return true
}

// Running reports whether jobID has a queued or running execution.
func (s *Supervisor) Running(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.inFlight[jobID]
	return exists
}

func (s *Supervisor) release(jobID string) {
	s.mu.Lock()
	if cancel, exists := s.inFlight[jobID]; exists {
		cancel()
		delete(s.inFlight, jobID)
	}
	s.mu.Unlock()
}

// Shutdown stops accepting submissions and waits for queued and running jobs
// to finish, or aborts them when ctx expires.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for _, cancel := range s.inFlight {
			cancel()
		}
		s.mu.Unlock()
		<-done
		return ctx.Err()
	}
}
