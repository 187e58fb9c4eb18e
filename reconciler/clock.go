package reconciler

import (
	"context"
	"time"
)

// Clock abstracts time for the wait loops so tests can drive them
// without sleeping for real.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done, returning the context
	// error in the second case.
	Sleep(ctx context.Context, d time.Duration) error
}

// realClock is the wall clock used outside tests
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
