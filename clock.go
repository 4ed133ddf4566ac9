package eventstore

import (
	"time"

	"go.uber.org/atomic"
)

// Clock is the process-wide, swappable time source used exclusively to
// stamp new EventMessage values (§4.H). Production code leaves it at its
// zero-configured default (the system clock); tests install a fixed clock
// via Set so timestamp-dependent assertions are deterministic.
//
// Clock is safe for concurrent use: Set publishes the new function
// atomically, and Now reads it the same way, matching §5's requirement that
// the clock be "writable atomically."
type Clock struct {
	fn atomic.Value
}

type clockFunc func() time.Time

// NewClock creates a Clock defaulting to the system clock.
func NewClock() *Clock {
	c := &Clock{}
	c.Set(time.Now)
	return c
}

// Set atomically replaces the time source.
func (c *Clock) Set(fn func() time.Time) {
	c.fn.Store(clockFunc(fn))
}

// Now returns the current instant according to the installed time source.
func (c *Clock) Now() time.Time {
	return c.fn.Load().(clockFunc)()
}

// defaultClock is the ambient, process-wide clock referenced by Now/SetClock
// below and used by EventStore instances that aren't given WithClock.
var defaultClock = NewClock()

// Now returns the current instant from the process-wide default clock.
func Now() time.Time {
	return defaultClock.Now()
}

// SetClock overrides the process-wide default clock's time source. This is
// the only piece of ambient mutable state the core relies on (§4.H); tests
// should restore the system clock in cleanup.
func SetClock(fn func() time.Time) {
	defaultClock.Set(fn)
}
