package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrDuplicate means a job with the same key is already in flight.
	// The caller drops the work: the running job covers the same content.
	ErrDuplicate = errors.New("duplicate job already in flight")

	// ErrBusy means the queue reached its total in-flight capacity.
	ErrBusy = errors.New("execution queue at capacity")

	// ErrClosed means the queue no longer accepts work.
	ErrClosed = errors.New("execution queue is closed")
)

// Job is a unit of dispatch work. The queue recovers panics, so a
// misbehaving job cannot take down its siblings.
type Job func(ctx context.Context)

// ExecutionQueue runs jobs concurrently while guaranteeing that at most one
// job per key is in flight. Jobs with distinct keys do not block each other.
type ExecutionQueue struct {
	mu       sync.Mutex
	inflight map[string]struct{}
	capacity int
	closed   bool
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

// New builds a queue with the given total in-flight capacity.
// capacity <= 0 means unlimited.
func New(capacity int, logger *zerolog.Logger) *ExecutionQueue {
	lg := zerolog.Nop()
	if logger != nil {
		lg = *logger
	}
	return &ExecutionQueue{
		inflight: make(map[string]struct{}),
		capacity: capacity,
		logger:   lg,
	}
}

// Submit schedules job under key. Returns ErrDuplicate when the key is
// already in flight and ErrBusy when the queue is full; in both cases the
// job is not run.
func (q *ExecutionQueue) Submit(ctx context.Context, key string, job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if _, ok := q.inflight[key]; ok {
		q.mu.Unlock()
		return ErrDuplicate
	}
	if q.capacity > 0 && len(q.inflight) >= q.capacity {
		q.mu.Unlock()
		return ErrBusy
	}
	q.inflight[key] = struct{}{}
	q.wg.Add(1)
	q.mu.Unlock()

	jobID := uuid.NewString()
	go q.run(ctx, jobID, key, job)
	return nil
}

// Len reports the number of jobs currently in flight.
func (q *ExecutionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

// Close stops accepting new jobs and waits for in-flight jobs to finish.
func (q *ExecutionQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}

// Wait blocks until every currently scheduled job has finished.
func (q *ExecutionQueue) Wait() {
	q.wg.Wait()
}

func (q *ExecutionQueue) run(ctx context.Context, jobID, key string, job Job) {
	start := time.Now()
	q.logger.Debug().Str("job_id", jobID).Str("key", key).Msg("job started")

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Str("job_id", jobID).Str("key", key).Interface("panic", r).Msg("job panicked")
		}
		q.mu.Lock()
		delete(q.inflight, key)
		q.mu.Unlock()
		q.wg.Done()
		q.logger.Debug().Str("job_id", jobID).Str("key", key).Dur("took", time.Since(start)).Msg("job finished")
	}()

	job(ctx)
}
