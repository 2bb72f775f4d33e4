package main

import (
	"context"
	"time"
)

// WaitUntil suspends until pred returns true, re-evaluating it every interval.
// pred is evaluated immediately first, so an open gate costs no wait.
// Returns ctx.Err() if ctx ends before pred holds.
func WaitUntil(ctx context.Context, interval time.Duration, pred func() bool) error {
	if pred() {
		return nil
	}
	if interval <= 0 {
		interval = time.Duration(defaultLightRepollMS) * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if pred() {
				return nil
			}
		}
	}
}

// sleepCtx sleeps for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
