package sim

import (
	"math"
	"math/rand"
	"time"

	"baroalt/internal/baro"
)

// DeviceConfig describes the synthetic sensor.
type DeviceConfig struct {
	// GroundPressure is the pressure in Pa at profile altitude 0.
	GroundPressure float64
	Profile        Profile

	// NoisePa is the standard deviation of gaussian noise added to each
	// pressure conversion.
	NoisePa float64
	// Every SpikeEvery-th pressure conversion is offset by SpikePa. Zero
	// disables spikes.
	SpikeEvery int
	SpikePa    float64

	TemperatureCenti int32
	Delays           baro.Delays
	Seed             int64
}

// Device is a baro.Device whose conversions sample a Profile. Raw values are
// already in Pa and 0.01 degC, so Compensate is the identity.
type Device struct {
	cfg   DeviceConfig
	now   func() time.Time
	start time.Time
	rng   *rand.Rand

	groundAltCm float64

	convPress int32
	convTemp  int32
	samples   int
}

var _ baro.Device = (*Device)(nil)

func NewDevice(cfg DeviceConfig) *Device {
	return newDeviceWithClock(cfg, time.Now)
}

func newDeviceWithClock(cfg DeviceConfig, now func() time.Time) *Device {
	if cfg.GroundPressure <= 0 {
		cfg.GroundPressure = baro.SeaLevelPressure
	}
	if cfg.Delays.Temperature <= 0 {
		cfg.Delays.Temperature = 6 * time.Millisecond
	}
	if cfg.Delays.Pressure <= 0 {
		cfg.Delays.Pressure = 27 * time.Millisecond
	}
	if cfg.TemperatureCenti == 0 {
		cfg.TemperatureCenti = 1500
	}
	d := &Device{
		cfg:         cfg,
		now:         now,
		start:       now(),
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		groundAltCm: baro.PressureToAltitude(cfg.GroundPressure),
	}
	d.convTemp = cfg.TemperatureCenti
	d.convPress = int32(math.Round(cfg.GroundPressure))
	return d
}

// TruthAltitude returns the profile altitude above ground, in cm, now.
func (d *Device) TruthAltitude() float64 {
	return d.cfg.Profile.AltitudeAt(d.now().Sub(d.start))
}

func (d *Device) Delays() baro.Delays { return d.cfg.Delays }

func (d *Device) StartTemperature() error {
	d.convTemp = d.cfg.TemperatureCenti
	return nil
}

func (d *Device) ReadTemperature() (int32, error) { return d.convTemp, nil }

func (d *Device) StartPressure() error {
	d.samples++
	p := baro.AltitudeToPressure(d.groundAltCm + d.TruthAltitude())
	if d.cfg.NoisePa > 0 {
		p += d.rng.NormFloat64() * d.cfg.NoisePa
	}
	if d.cfg.SpikeEvery > 0 && d.samples%d.cfg.SpikeEvery == 0 {
		p += d.cfg.SpikePa
	}
	d.convPress = int32(math.Round(p))
	return nil
}

func (d *Device) ReadPressure() (int32, error) { return d.convPress, nil }

func (d *Device) Compensate(rawTemp, rawPress int32) (int32, int32) {
	return rawPress, rawTemp
}
