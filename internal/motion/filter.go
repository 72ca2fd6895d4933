// Package motion turns raw touch and orientation samples into pointer deltas
// and gestures.
package motion

import "math"

const (
	historySize = 3

	// scrollFactor damps two-finger scroll relative to pointer motion.
	scrollFactor = 0.5

	DefaultDeadZone    = 0.5
	DefaultSensitivity = 1.0
)

// Sample is one touch reading. TimestampMs is milliseconds on any monotonic
// scale.
type Sample struct {
	X           float64
	Y           float64
	TimestampMs int64
	TouchCount  int
}

type Config struct {
	DeadZone     float64
	Sensitivity  float64
	Acceleration AccelerationConfig
}

func DefaultConfig() Config {
	return Config{
		DeadZone:     DefaultDeadZone,
		Sensitivity:  DefaultSensitivity,
		Acceleration: DefaultAcceleration(),
	}
}

// velocityWindow keeps the last few speeds and averages them with linear
// weights, newest heaviest.
type velocityWindow struct {
	values [historySize]float64
	n      int
	next   int
}

func (w *velocityWindow) push(v float64) {
	w.values[w.next] = v
	w.next = (w.next + 1) % historySize
	if w.n < historySize {
		w.n++
	}
}

func (w *velocityWindow) average() float64 {
	if w.n == 0 {
		return 0
	}

	var sum, weights float64
	// oldest first, weights 1..n
	for i := 0; i < w.n; i++ {
		idx := (w.next - w.n + i + historySize) % historySize
		weight := float64(i + 1)
		sum += w.values[idx] * weight
		weights += weight
	}
	return sum / weights
}

func (w *velocityWindow) reset() {
	*w = velocityWindow{}
}

// Filter is stateful across a single touch gesture. It is not safe for
// concurrent use.
type Filter struct {
	cfg    Config
	last   Sample
	active bool
	window velocityWindow
}

func NewFilter(cfg Config) *Filter {
	if cfg.Sensitivity == 0 {
		cfg.Sensitivity = DefaultSensitivity
	}
	return &Filter{cfg: cfg}
}

func (f *Filter) Config() Config {
	return f.cfg
}

func (f *Filter) SetSensitivity(s float64) {
	if s > 0 {
		f.cfg.Sensitivity = s
	}
}

// Start begins a gesture at s.
func (f *Filter) Start(s Sample) {
	f.last = s
	f.active = true
	f.window.reset()
}

// Move returns the accelerated delta since the previous sample. ok is false
// when the movement falls inside the dead zone or no gesture is active.
func (f *Filter) Move(s Sample) (dx, dy float64, ok bool) {
	if !f.active {
		f.Start(s)
		return 0, 0, false
	}

	rawX, rawY, elapsed := f.advance(s)
	dist := math.Hypot(rawX, rawY)
	if dist < f.cfg.DeadZone {
		return 0, 0, false
	}

	f.window.push(dist / elapsed)
	gain := f.cfg.Acceleration.Multiplier(f.window.average()) * f.cfg.Sensitivity

	return rawX * gain, rawY * gain, true
}

// Scroll returns a two-finger scroll delta. It skips acceleration and inverts
// both axes for natural scrolling.
func (f *Filter) Scroll(s Sample) (dx, dy float64, ok bool) {
	if !f.active {
		f.Start(s)
		return 0, 0, false
	}

	rawX, rawY, _ := f.advance(s)
	if rawX == 0 && rawY == 0 {
		return 0, 0, false
	}

	gain := f.cfg.Sensitivity * scrollFactor
	return -rawX * gain, -rawY * gain, true
}

func (f *Filter) End() {
	f.active = false
	f.window.reset()
}

// advance moves the bookkeeping position to s whether or not a delta is
// emitted, so resuming after a dead-zone pause does not jump.
func (f *Filter) advance(s Sample) (dx, dy, elapsedMs float64) {
	dx = s.X - f.last.X
	dy = s.Y - f.last.Y
	elapsedMs = math.Max(1, float64(s.TimestampMs-f.last.TimestampMs))
	f.last = s
	return dx, dy, elapsedMs
}
