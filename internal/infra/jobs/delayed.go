// Package jobs runs callbacks after a delay on a bounded pool.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/equinor/flotilla-sub005/pkg/common/logger"
)

// DefaultMaxConcurrent bounds how many fired jobs may run at once.
const DefaultMaxConcurrent = 8

// DelayedScheduler fires jobs once after a delay. Fired jobs receive the
// scheduler's base context, so they outlive the request that scheduled them
// but stop with the process.
type DelayedScheduler struct {
	base context.Context
	sem  *semaphore.Weighted

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup

	logger *logger.Logger
	tracer trace.Tracer
}

// NewDelayedScheduler creates a scheduler whose jobs run with base.
func NewDelayedScheduler(base context.Context, maxConcurrent int, logger *logger.Logger, tracer trace.Tracer) *DelayedScheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &DelayedScheduler{
		base:   base,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		timers: make(map[string]*time.Timer),
		logger: logger.With("component", "delayed_jobs"),
		tracer: tracer,
	}
}

// Schedule registers job to run after delay and returns its handle. The
// job receives the same handle when it fires. A negative delay runs the job
// as soon as possible.
func (s *DelayedScheduler) Schedule(ctx context.Context, delay time.Duration, job func(ctx context.Context, jobID string)) (string, error) {
	if job == nil {
		return "", fmt.Errorf("nil job")
	}
	if err := s.base.Err(); err != nil {
		return "", fmt.Errorf("delayed job scheduler stopped: %w", err)
	}

	id := uuid.NewString()

	s.mu.Lock()
	s.timers[id] = time.AfterFunc(max(delay, 0), func() { s.fire(id, job) })
	s.mu.Unlock()

	s.logger.Debug(ctx, "Delayed job scheduled", "job_id", id, "delay", delay.String())
	return id, nil
}

func (s *DelayedScheduler) fire(id string, job func(ctx context.Context, jobID string)) {
	s.mu.Lock()
	if _, ok := s.timers[id]; !ok {
		// Cancelled between the timer firing and acquiring the lock.
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if err := s.sem.Acquire(s.base, 1); err != nil {
		s.logger.Warn(s.base, "Delayed job dropped on shutdown", "job_id", id)
		return
	}
	defer s.sem.Release(1)

	ctx, span := s.tracer.Start(s.base, "delayed_jobs.run",
		trace.WithAttributes(attribute.String("job_id", id)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("delayed job panicked: %v", r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error(ctx, "Delayed job panicked", "job_id", id, "panic", r)
		}
	}()

	job(ctx, id)
}

// Cancel stops a job that has not fired yet and reports whether it was
// still pending.
func (s *DelayedScheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[jobID]
	if !ok {
		return false
	}
	delete(s.timers, jobID)
	t.Stop()
	return true
}

// CancelAll stops every pending job and returns how many there were.
func (s *DelayedScheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.timers)
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	return n
}

// Pending returns the number of jobs waiting for their delay to elapse.
func (s *DelayedScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Shutdown cancels pending jobs and waits for running ones until ctx ends.
func (s *DelayedScheduler) Shutdown(ctx context.Context) error {
	if n := s.CancelAll(); n > 0 {
		s.logger.Info(ctx, "Cancelled pending delayed jobs", "count", n)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running delayed jobs: %w", ctx.Err())
	}
}
