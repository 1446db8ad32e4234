package upstream

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

var (
	// ErrRetriesExhausted is returned when every attempt was throttled.
	ErrRetriesExhausted = errors.New("max retries reached due to throttling")

	// ErrRetryBudget is returned when the next wait would pass MaxWait.
	ErrRetryBudget = errors.New("exceeded total retry wait limit")
)

// Retry retries throttled calls with exponential backoff and jitter. The
// delay doubles after every throttled attempt, and the summed waits may not
// exceed MaxWait.
type Retry struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxWait     time.Duration

	// sleep and jitter are replaced in tests.
	sleep  func(context.Context, time.Duration) error
	jitter func(time.Duration) time.Duration
}

// Do runs fn until it succeeds, fails with a non-throttling error, or the
// policy gives up.
func (r *Retry) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := max(r.MaxAttempts, 1)
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	jitter := r.jitter
	if jitter == nil {
		jitter = randomJitter
	}

	delay := r.BaseDelay
	var total time.Duration

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Throttled() {
			return err
		}
		if attempt >= attempts {
			if attempts == 1 {
				return err
			}
			return fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
		}

		wait := delay + jitter(r.BaseDelay)
		total += wait
		if r.MaxWait > 0 && total > r.MaxWait {
			return fmt.Errorf("%w: %w", ErrRetryBudget, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
		delay *= 2
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// randomJitter returns a uniform duration in [0, limit).
func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}
