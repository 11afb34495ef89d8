package clock

import (
	"sync"
	"time"
)

// Clock abstracts the wall clock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// realClock reads the system clock.
type realClock struct{}

// Now returns time.Now.
func (realClock) Now() time.Time { return time.Now() }

// Real returns a Clock backed by the system clock.
//
//nolint:ireturn // Callers only need the interface.
func Real() Clock {
	return realClock{}
}

// FakeClock is a manually advanced Clock. It is safe for concurrent use.
type FakeClock struct {
	// current is the time returned by Now.
	current time.Time
	// mu protects current.
	mu sync.Mutex
}

// Fake returns a FakeClock frozen at initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

// Advance moves the fake time forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = c.current.Add(d)
}

// Set moves the fake time to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = t
}
