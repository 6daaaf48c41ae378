package core

// metricsWindow is the number of frames the frame-time average rolls over.
const metricsWindow = 30

// Metrics tracks a rolling frame-time average and a once-per-second FPS
// sample. The owner feeds it one Update per presented frame; there is no
// shared global instance.
type Metrics struct {
	frameTimes  [metricsWindow]float64
	frameCursor int
	msAvg       float64

	frames        int32
	accumulatedMS float64
	fps           float64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Update folds one frame's elapsed time (in seconds) into the counters.
func (m *Metrics) Update(frameElapsed float64) {
	frameMS := frameElapsed * 1000.0
	m.frameTimes[m.frameCursor] = frameMS
	if m.frameCursor == metricsWindow-1 {
		sum := 0.0
		for _, t := range m.frameTimes {
			sum += t
		}
		m.msAvg = sum / metricsWindow
	}
	m.frameCursor = (m.frameCursor + 1) % metricsWindow

	m.accumulatedMS += frameMS
	if m.accumulatedMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedMS -= 1000
		m.frames = 0
	}
	m.frames++
}

// FPS is the most recent once-per-second frame count; zero until a full
// second has accumulated.
func (m *Metrics) FPS() float64 { return m.fps }

// FrameTime is the rolling average frame time in milliseconds; zero until
// the window has filled once.
func (m *Metrics) FrameTime() float64 { return m.msAvg }

func (m *Metrics) Frame() (fps, frameTime float64) { return m.fps, m.msAvg }
