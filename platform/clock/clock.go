// Package clock abstracts time for components that schedule delayed actions,
// so debounce and sweep behavior can be driven by a fake clock in tests.
// This is part of the platform layer and contains no business logic.
package clock

import "time"

// Timer is a cancellable delayed action.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// function from firing.
	Stop() bool
}

// Clock provides the current time and delayed function execution.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f on its own goroutine after d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// New returns a Clock backed by the real time package.
func New() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
