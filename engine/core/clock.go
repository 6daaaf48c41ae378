package core

import "time"

// Clock measures elapsed time from an explicit Start. Update has no effect
// on a stopped clock.
type Clock struct {
	start   time.Time
	elapsed time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

// Start begins timing and resets the elapsed reading.
func (c *Clock) Start() {
	c.start = time.Now()
	c.elapsed = 0
}

// Update refreshes the elapsed reading. Call just before Elapsed.
func (c *Clock) Update() {
	if !c.start.IsZero() {
		c.elapsed = time.Since(c.start)
	}
}

// Stop halts the clock without resetting the elapsed reading.
func (c *Clock) Stop() {
	c.start = time.Time{}
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}
