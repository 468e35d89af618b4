package baro

import "time"

// Phase is the acquisition state machine's current phase.
type Phase int

const (
	// AwaitingSamples: next Step reads the temperature result and starts a
	// pressure conversion.
	AwaitingSamples Phase = iota
	// AwaitingCalculation: next Step reads the pressure result, starts a
	// temperature conversion and compensates the pair.
	AwaitingCalculation
)

func (p Phase) String() string {
	switch p {
	case AwaitingSamples:
		return "awaiting_samples"
	case AwaitingCalculation:
		return "awaiting_calculation"
	default:
		return "unknown"
	}
}

// Reading is the outcome of one Step.
type Reading struct {
	// Delay is the minimum wait before the next Step.
	Delay time.Duration
	// Updated is true when this Step produced a new compensated reading.
	Updated bool

	Pressure    int32 // Pa, median filtered when enabled
	Temperature int32 // 0.01 degC

	// Err is the first device error seen during this Step. The state machine
	// advances regardless; failed reads leave the previous raw value in place.
	Err error
}

// Option configures a Barometer at construction.
type Option func(*Barometer)

// WithMedianFilter enables or disables the rank-3 median on compensated
// pressure. Enabled by default.
func WithMedianFilter(enable bool) Option {
	return func(b *Barometer) { b.useMedian = enable }
}

// WithAltitudeSource installs an override consulted by ComputeAltitude once
// calibration is complete.
func WithAltitudeSource(src AltitudeSource) Option {
	return func(b *Barometer) { b.override = src }
}

// Barometer owns the acquisition, filtering, calibration and altitude state
// of one sensor. It is not safe for concurrent use.
type Barometer struct {
	dev       Device
	delays    Delays
	useMedian bool
	median    MedianFilter
	override  AltitudeSource

	phase   Phase
	rawTemp int32
	rawPres int32

	pressure    int32
	temperature int32
	ready       bool

	calibrationCycles uint
	groundPressure    int64
	groundAltitude    int32

	altitude int32
}

// New returns a Barometer in the AwaitingSamples phase with median filtering
// enabled and calibration complete.
func New(dev Device, opts ...Option) (*Barometer, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	d := dev.Delays()
	if d.Temperature <= 0 || d.Pressure <= 0 {
		return nil, ErrInvalidDelay
	}
	b := &Barometer{dev: dev, delays: d, useMedian: true}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Step advances the acquisition state machine by one phase. It must not be
// called again before the returned Reading.Delay has elapsed.
func (b *Barometer) Step() Reading {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	switch b.phase {
	case AwaitingCalculation:
		if raw, err := b.dev.ReadPressure(); err == nil {
			b.rawPres = raw
		} else {
			keep(err)
		}
		keep(b.dev.StartTemperature())

		p, t := b.dev.Compensate(b.rawTemp, b.rawPres)
		if b.useMedian {
			p = b.median.Push(p)
		}
		b.pressure = p
		b.temperature = t
		b.ready = true
		b.phase = AwaitingSamples
		return Reading{
			Delay:       b.delays.Temperature,
			Updated:     true,
			Pressure:    b.pressure,
			Temperature: b.temperature,
			Err:         firstErr,
		}
	default:
		if raw, err := b.dev.ReadTemperature(); err == nil {
			b.rawTemp = raw
		} else {
			keep(err)
		}
		keep(b.dev.StartPressure())
		b.phase = AwaitingCalculation
		return Reading{
			Delay:       b.delays.Pressure,
			Pressure:    b.pressure,
			Temperature: b.temperature,
			Err:         firstErr,
		}
	}
}

// Phase returns the phase the next Step will run.
func (b *Barometer) Phase() Phase { return b.phase }

// IsReady reports whether at least one compensated reading exists.
func (b *Barometer) IsReady() bool { return b.ready }

// Pressure returns the last compensated (and filtered) pressure in Pa.
func (b *Barometer) Pressure() int32 { return b.pressure }

// Temperature returns the last compensated temperature in 0.01 degC.
func (b *Barometer) Temperature() int32 { return b.temperature }

func (b *Barometer) Delays() Delays { return b.delays }
