package manager

import (
	"context"
	"time"
)

// wait blocks until something arrives, delay passes, ctx is done or the
// manager is stopped. Only the last two are errors.
func wait(ctx context.Context, stopped <-chan struct{}, arrived <-chan struct{}, delay time.Duration) error {
	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stopped:
		return ErrStopped
	case <-arrived:
	case <-t.C:
	}
	return nil
}

// notify performs a non-blocking send on a 1-slot channel.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// sleep waits for d or ctx, returning false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
