// Package poller drives the relay: it wakes on a dynamic tick, finds due
// tasks, pulls new source content and hands each (item, target) pair to the
// dispatch layer.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"crossposter/internal/models"
)

// Runner fires a poll function on a dynamic tick. The next delay is asked
// from intervalFn after every cycle, so shortening a task's interval takes
// effect on the following tick. A cycle still in flight makes the runner
// skip the tick instead of stacking a second cycle.
type Runner struct {
	name       string
	intervalFn func(ctx context.Context) time.Duration
	pollFn     func(ctx context.Context)
	logger     zerolog.Logger

	running atomic.Bool
	started atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewRunner(name string, intervalFn func(ctx context.Context) time.Duration, pollFn func(ctx context.Context), logger zerolog.Logger) *Runner {
	return &Runner{
		name:       name,
		intervalFn: intervalFn,
		pollFn:     pollFn,
		logger:     logger.With().Str("poller", name).Logger(),
	}
}

// EnsureStarted starts the loop once; later calls are no-ops.
func (r *Runner) EnsureStarted(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	r.Start(ctx)
}

// Start launches the polling loop.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return
	}
	r.started.Store(true)

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	done := make(chan struct{})
	r.done = done

	go r.loop(loopCtx, done)
	r.logger.Info().Msg("poller started")
}

// Stop cancels the loop and waits for the current cycle to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.logger.Info().Msg("poller stopped")
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(r.nextDelay(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.RunOnce(ctx)
			timer.Reset(r.nextDelay(ctx))
		}
	}
}

// RunOnce executes a single poll cycle; a cycle already in flight makes it
// return immediately.
func (r *Runner) RunOnce(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Debug().Msg("previous cycle still running, skipping tick")
		return
	}
	defer r.running.Store(false)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("poll cycle panicked")
		}
	}()

	r.pollFn(ctx)
}

func (r *Runner) nextDelay(ctx context.Context) time.Duration {
	d := r.intervalFn(ctx)
	if d < models.MinPollIntervalSec*time.Second {
		d = models.MinPollIntervalSec * time.Second
	}
	if d > models.MaxPollIntervalSec*time.Second {
		d = models.MaxPollIntervalSec * time.Second
	}
	return d
}
