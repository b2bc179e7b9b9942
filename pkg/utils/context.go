package utils

import (
	"context"
	"time"
)

// SleepResult represents the outcome of a context-aware sleep operation.
type SleepResult int

const (
	// SleepCompleted indicates the sleep duration completed normally.
	SleepCompleted SleepResult = iota
	// SleepCancelled indicates the context was cancelled during sleep.
	SleepCancelled
)

// SleepFunc waits for the given duration or until the context is done.
// It returns the context error when cancelled.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep sleeps for the specified duration while respecting context cancellation.
// Returns SleepCompleted if the full duration elapsed, SleepCancelled if context was cancelled.
func ContextSleep(ctx context.Context, duration time.Duration) SleepResult {
	if duration <= 0 {
		if ctx.Err() != nil {
			return SleepCancelled
		}

		return SleepCompleted
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return SleepCompleted
	case <-ctx.Done():
		return SleepCancelled
	}
}

// Sleep is a SleepFunc backed by ContextSleep.
func Sleep(ctx context.Context, d time.Duration) error {
	if ContextSleep(ctx, d) == SleepCancelled {
		return ctx.Err()
	}

	return nil
}
