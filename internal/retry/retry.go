// Package retry wraps connection work with capped exponential backoff.
// Only transient failures are retried; everything else returns immediately.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy controls the retry loop.
type Policy struct {
	// MaxAttempts is the total number of tries, first included. Default 3.
	MaxAttempts int
	// BaseDelay is the backoff base. Default 1s.
	BaseDelay time.Duration
	// Budget bounds the whole loop. Zero derives the budget from the
	// context deadline minus a 5s reserve; no deadline means unbounded.
	Budget time.Duration
}

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second

	budgetReserve  = 5 * time.Second
	minRetryBudget = time.Second
	maxDelay       = 10 * time.Second
	jitterFraction = 0.25
)

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	return p
}

// Do runs fn until it succeeds, the error is terminal, attempts are
// exhausted, or less than a second of budget remains.
func Do(ctx context.Context, p Policy, fn func() error) error {
	p = p.withDefaults()

	var budgetEnd time.Time
	switch {
	case p.Budget > 0:
		budgetEnd = time.Now().Add(p.Budget)
	default:
		if deadline, ok := ctx.Deadline(); ok {
			budgetEnd = deadline.Add(-budgetReserve)
		}
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt+1 >= p.MaxAttempts || !Transient(err) {
			return err
		}
		remaining := remainingBudget(budgetEnd)
		if remaining >= 0 && remaining <= minRetryBudget {
			return err
		}

		timer := time.NewTimer(backoffDelay(p.BaseDelay, attempt, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// remainingBudget returns time left until budgetEnd, or -1 when unbounded.
func remainingBudget(budgetEnd time.Time) time.Duration {
	if budgetEnd.IsZero() {
		return -1
	}
	return time.Until(budgetEnd)
}

// backoffDelay computes min(base·2^attempt, ceiling)·(1 ± 0.25·rand) where
// ceiling is min(10s, remaining/2).
func backoffDelay(base time.Duration, attempt int, remaining time.Duration) time.Duration {
	ceiling := maxDelay
	if remaining >= 0 && remaining/2 < ceiling {
		ceiling = remaining / 2
	}

	delay := base * time.Duration(1<<uint(attempt))
	if delay <= 0 || delay > ceiling {
		delay = ceiling
	}

	jitter := 1 + jitterFraction*(2*rand.Float64()-1)
	delay = time.Duration(float64(delay) * jitter)
	if delay < 0 {
		delay = 0
	}
	return delay
}
