package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockUpdateIgnoredWhenStopped(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	time.Sleep(time.Millisecond)
	c.Update()
	assert.Greater(t, c.Elapsed(), time.Duration(0))

	c.Stop()
	held := c.Elapsed()
	c.Update()
	assert.Equal(t, held, c.Elapsed())
}

func TestClockStartResetsElapsed(t *testing.T) {
	c := NewClock()
	c.Start()
	time.Sleep(time.Millisecond)
	c.Update()
	assert.Greater(t, c.Elapsed(), time.Duration(0))

	c.Start()
	assert.Zero(t, c.Elapsed())
}
