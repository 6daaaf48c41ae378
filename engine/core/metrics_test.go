package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsFrameTimeAverages(t *testing.T) {
	m := NewMetrics()

	// 10ms per frame for a full window.
	for i := 0; i < metricsWindow; i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 0.001)
}

func TestMetricsFrameTimeZeroBeforeWindowFills(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < metricsWindow-1; i++ {
		m.Update(0.010)
	}
	assert.Zero(t, m.FrameTime())
}

func TestMetricsFPSSamplesOncePerSecond(t *testing.T) {
	m := NewMetrics()

	// 60 frames at ~16.7ms cross the one-second boundary.
	for i := 0; i < 61; i++ {
		m.Update(1.0 / 60.0)
	}
	fps, _ := m.Frame()
	assert.InDelta(t, 60.0, fps, 2.0)
}
