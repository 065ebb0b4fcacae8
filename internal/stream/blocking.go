package stream

import (
	"context"
	"time"
)

// waitForAppend blocks until the log sees a new append, the timeout elapses,
// or the context is canceled. A timeout is reported as DeadlineExceeded.
func waitForAppend(ctx context.Context, l *Log, timeout time.Duration) error {
	l.mu.Lock()
	ch := l.notifyCh
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-timer.C:
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}
