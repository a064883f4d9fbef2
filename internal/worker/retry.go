package worker

import (
	"math"
	"time"
)

// RetryPolicy задаёт экспоненциальную паузу между проверками статуса.
// Нулевые поля означают секундный старт с удвоением; MaxDelay <= 0 — без
// ограничения сверху.
type RetryPolicy struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// normalized fills unset fields with the defaults PollUntil relies on.
func (r RetryPolicy) normalized() RetryPolicy {
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}
	return r
}

// NextDelay returns the wait after the given attempt (1-based), clamped to
// MaxDelay when one is set.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	p := r.normalized()
	if attempt < 1 {
		attempt = 1
	}

	f := float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	if p.MaxDelay > 0 && f >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if f >= math.MaxInt64 || f <= 0 {
		// Переполнение при больших attempt.
		return p.InitialDelay
	}
	return time.Duration(f)
}
