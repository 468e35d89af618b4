package config

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DeviceBMP085 = "bmp085"
	DeviceBMP280 = "bmp280"
	DeviceSim    = "sim"

	// DefaultCalibrationCycles matches the flight controller's power-on
	// calibration length.
	DefaultCalibrationCycles = 200
)

type Config struct {
	Baro   BaroConfig   `yaml:"baro"`
	Sim    SimConfig    `yaml:"sim"`
	Record RecordConfig `yaml:"record"`
	HIL    HILConfig    `yaml:"hil"`
	HTTP   HTTPConfig   `yaml:"http"`
}

type BaroConfig struct {
	Device       string `yaml:"device"`
	I2CBus       int    `yaml:"i2c_bus"`
	Address      uint16 `yaml:"address"`
	Oversampling int    `yaml:"oversampling"`
	// EOCGPIO is the BCM pin wired to the BMP085 EOC output; 0 disables it.
	EOCGPIO int `yaml:"eoc_gpio"`

	// Pointers distinguish "absent" from an explicit false/0. Load always
	// leaves them non-nil.
	UseMedianFiltering *bool `yaml:"use_median_filtering"`
	CalibrationCycles  *uint `yaml:"calibration_cycles"`

	LoopInterval time.Duration `yaml:"loop_interval"`
}

type SimConfig struct {
	GroundPressurePa float64       `yaml:"ground_pressure_pa"`
	BaseAltM         float64       `yaml:"base_alt_m"`
	AmplitudeM       float64       `yaml:"amplitude_m"`
	Period           time.Duration `yaml:"period"`
	Hold             time.Duration `yaml:"hold"`
	NoisePa          float64       `yaml:"noise_pa"`
	SpikeEvery       int           `yaml:"spike_every"`
	SpikePa          float64       `yaml:"spike_pa"`
	Seed             int64         `yaml:"seed"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type HILConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
	Loop   bool   `yaml:"loop"`
}

type HTTPConfig struct {
	// Listen is the address for the status API and /metrics; empty disables
	// the server.
	Listen string `yaml:"listen"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}
	return Parse(b)
}

// Parse decodes and validates YAML config bytes.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		var te *yaml.TypeError
		if errors.As(err, &te) && len(te.Errors) > 0 {
			return Config{}, errors.Errorf("config contains unknown fields: %s", trimLinePrefix(te.Errors[0]))
		}
		// An empty document decodes to EOF; treat it as all defaults.
		if !errors.Is(err, io.EOF) {
			return Config{}, errors.Wrap(err, "failed to parse config")
		}
	}
	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration Load produces for an empty file.
func Default() Config {
	var cfg Config
	_ = cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() error {
	bc := &cfg.Baro
	if bc.Device == "" {
		bc.Device = DeviceSim
	}
	switch bc.Device {
	case DeviceBMP085, DeviceBMP280, DeviceSim:
	default:
		return errors.Errorf("baro.device must be one of %s, %s, %s", DeviceBMP085, DeviceBMP280, DeviceSim)
	}
	if bc.I2CBus == 0 {
		bc.I2CBus = 1
	}
	if bc.Oversampling < 0 || bc.Oversampling > 3 {
		return errors.Errorf("baro.oversampling must be 0..3")
	}
	if bc.Device == DeviceBMP085 && bc.Oversampling == 0 {
		bc.Oversampling = 3
	}
	if bc.EOCGPIO < 0 {
		return errors.Errorf("baro.eoc_gpio must be >= 0")
	}
	if bc.EOCGPIO > 0 && bc.Device != DeviceBMP085 {
		return errors.Errorf("baro.eoc_gpio is only supported with baro.device=%s", DeviceBMP085)
	}
	if bc.UseMedianFiltering == nil {
		v := true
		bc.UseMedianFiltering = &v
	}
	if bc.CalibrationCycles == nil {
		v := uint(DefaultCalibrationCycles)
		bc.CalibrationCycles = &v
	}
	if bc.LoopInterval <= 0 {
		bc.LoopInterval = 25 * time.Millisecond
	}

	// Simulator defaults (safe even if another device is selected).
	sc := &cfg.Sim
	if sc.GroundPressurePa <= 0 {
		sc.GroundPressurePa = 101325
	}
	if sc.Period <= 0 {
		sc.Period = 120 * time.Second
	}
	if sc.Hold < 0 {
		return errors.Errorf("sim.hold must be >= 0")
	}
	if sc.Hold == 0 {
		sc.Hold = 10 * time.Second
	}
	if sc.SpikeEvery < 0 {
		return errors.Errorf("sim.spike_every must be >= 0")
	}

	if cfg.Record.Enable && cfg.Record.Path == "" {
		return errors.Errorf("record.path is required when record.enable is true")
	}
	if cfg.HIL.Enable && cfg.HIL.Path == "" {
		return errors.Errorf("hil.path is required when hil.enable is true")
	}
	if cfg.Record.Enable && cfg.HIL.Enable {
		return errors.Errorf("record and hil cannot both be enabled")
	}
	return nil
}

// yaml.v3 prefixes type errors with "line N: ".
func trimLinePrefix(s string) string {
	if !strings.HasPrefix(s, "line ") {
		return s
	}
	if i := strings.Index(s, ": "); i >= 0 {
		return s[i+2:]
	}
	return s
}
