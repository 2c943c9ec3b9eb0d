// Package clock abstracts wall time behind a small interface so replay
// pacing can be tested without real sleeps.
package clock

import "time"

// Clock is the time source the replay pacer runs against. Production code
// uses System; tests substitute fakes that control or record time.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	After(d time.Duration) <-chan time.Time
}

// System delegates to the time package.
type System struct{}

func (System) Now() time.Time                         { return time.Now() }
func (System) Since(t time.Time) time.Duration        { return time.Since(t) }
func (System) After(d time.Duration) <-chan time.Time { return time.After(d) }
