package gateway

import (
	"context"
	"time"
)

// RetryPolicy retries an operation on a fixed delay schedule. One attempt is
// made per entry in Delays, sleeping for the entry first, so a leading zero
// means an immediate first attempt. The error from the last attempt is
// returned when every attempt fails.
type RetryPolicy struct {
	Delays []time.Duration

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is the charge submission schedule: four attempts with
// 0s, 2s, 5s and 10s pauses.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Delays: []time.Duration{0, 2 * time.Second, 5 * time.Second, 10 * time.Second},
	}
}

// Do runs fn once per scheduled attempt until it succeeds.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for _, d := range p.Delays {
		if d > 0 {
			if err := sleep(ctx, d); err != nil {
				return err
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
