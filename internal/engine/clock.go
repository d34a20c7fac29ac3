package engine

import "time"

// Clock supplies the current time; injected so tests can control it.
type Clock interface {
	Now() time.Time
}

// Scheduler runs a function after a delay. Scheduled checks are
// fire-and-forget: they cannot be canceled, so they must be idempotent and
// re-read state at fire time.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// TimerScheduler schedules with time.AfterFunc.
type TimerScheduler struct{}

// AfterFunc runs f after d on its own goroutine.
func (TimerScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}
