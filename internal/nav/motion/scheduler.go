package motion

import (
	"context"
	"time"
)

// Scheduler suspends the control loop while the world executes a command.
type Scheduler interface {
	Wait(ctx context.Context, d time.Duration) error
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(ctx context.Context, d time.Duration) error

func (f SchedulerFunc) Wait(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// RealScheduler waits on the wall clock and returns early with ctx.Err() when ctx ends.
type RealScheduler struct{}

func (RealScheduler) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
