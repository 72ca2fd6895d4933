package motion

import "math"

// precisionFactor scales the base multiplier for slow, deliberate movement.
const precisionFactor = 0.8

// AccelerationConfig maps smoothed pointer velocity (units per ms) to a gain.
type AccelerationConfig struct {
	MinVelocityThreshold float64
	MaxVelocity          float64
	CurveExponent        float64
	BaseMultiplier       float64
	MaxAcceleration      float64
}

func DefaultAcceleration() AccelerationConfig {
	return AccelerationConfig{
		MinVelocityThreshold: 0.05,
		MaxVelocity:          3.0,
		CurveExponent:        1.5,
		BaseMultiplier:       1.0,
		MaxAcceleration:      3.0,
	}
}

// Multiplier is non-decreasing in velocity and saturates at MaxVelocity.
func (c AccelerationConfig) Multiplier(velocity float64) float64 {
	if velocity < c.MinVelocityThreshold {
		return c.BaseMultiplier * precisionFactor
	}

	span := c.MaxVelocity - c.MinVelocityThreshold
	if span <= 0 {
		return c.MaxAcceleration
	}

	t := (velocity - c.MinVelocityThreshold) / span
	t = math.Max(0, math.Min(1, t))
	t = math.Pow(t, c.CurveExponent)

	return c.BaseMultiplier + (c.MaxAcceleration-c.BaseMultiplier)*t
}
