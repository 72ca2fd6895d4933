package motion

import "math"

const DefaultGyroDeadZone = 0.1

type GyroConfig struct {
	DeadZone    float64
	Sensitivity float64
}

// GyroFilter smooths orientation deltas with the same weighted window the
// touch filter uses.
type GyroFilter struct {
	cfg GyroConfig
	dx  velocityWindow
	dy  velocityWindow
}

func NewGyroFilter(cfg GyroConfig) *GyroFilter {
	if cfg.Sensitivity == 0 {
		cfg.Sensitivity = DefaultSensitivity
	}
	return &GyroFilter{cfg: cfg}
}

func (g *GyroFilter) Update(dx, dy float64) (float64, float64, bool) {
	if math.Hypot(dx, dy) < g.cfg.DeadZone {
		return 0, 0, false
	}

	g.dx.push(dx)
	g.dy.push(dy)
	return g.dx.average() * g.cfg.Sensitivity, g.dy.average() * g.cfg.Sensitivity, true
}

// Calibrate treats the current orientation as neutral.
func (g *GyroFilter) Calibrate() {
	g.dx.reset()
	g.dy.reset()
}
