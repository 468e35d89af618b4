package sim

import (
	"math"
	"time"
)

// Profile is a deterministic vertical flight profile relative to the ground.
type Profile struct {
	// AmplitudeCm is the height of the sinusoidal climb/descent around BaseCm.
	AmplitudeCm float64
	BaseCm      float64
	Period      time.Duration
	// Hold keeps the profile at 0 for this long after start, so ground
	// calibration sees a stationary sensor.
	Hold time.Duration
}

// AltitudeAt returns the altitude above ground in cm at elapsed time since start.
func (p Profile) AltitudeAt(elapsed time.Duration) float64 {
	if elapsed < p.Hold {
		return 0
	}
	period := p.Period
	if period <= 0 {
		period = 120 * time.Second
	}
	t := elapsed - p.Hold
	phase := float64(t%period) / float64(period)
	w := 2 * math.Pi * phase

	// Ramp in over the first quarter period so the profile leaves 0 without a step.
	ramp := 1.0
	if t < period/4 {
		ramp = float64(t) / float64(period/4)
	}
	return ramp*p.BaseCm + p.AmplitudeCm*math.Sin(w)*ramp
}

// VerticalSpeedAt returns d/dt of AltitudeAt in cm/s, ignoring the ramp.
func (p Profile) VerticalSpeedAt(elapsed time.Duration) float64 {
	if elapsed < p.Hold {
		return 0
	}
	period := p.Period
	if period <= 0 {
		period = 120 * time.Second
	}
	t := elapsed - p.Hold
	phase := float64(t%period) / float64(period)
	w := 2 * math.Pi * phase
	// d/dt (amp*sin(w)) where w = 2πt/T => amp*(2π/T)*cos(w)
	return p.AmplitudeCm * (2 * math.Pi / period.Seconds()) * math.Cos(w)
}
