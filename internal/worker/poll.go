package worker

import (
	"context"
	"errors"
	"time"
)

// ErrPollExhausted is returned when a status check never reached a terminal
// state within the attempt budget.
var ErrPollExhausted = errors.New("status polling exhausted attempts")

// PollResult is a single status-check outcome. Done signals a terminal state;
// RetryAfter, when positive, is the server-suggested wait before the next
// check and overrides the backoff policy.
type PollResult struct {
	Done       bool
	RetryAfter time.Duration
}

// PollUntil calls check until it reports a terminal state, fails, or
// maxAttempts is spent. Waits between attempts follow the server hint when
// present and the retry policy otherwise. Context cancellation aborts the
// wait immediately.
func PollUntil(ctx context.Context, maxAttempts int, policy RetryPolicy, check func(ctx context.Context) (PollResult, error)) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := check(ctx)
		if err != nil {
			return err
		}
		if res.Done {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		delay := res.RetryAfter
		if delay <= 0 {
			delay = policy.NextDelay(attempt)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return ErrPollExhausted
}
