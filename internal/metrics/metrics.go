// Package metrics exposes altimeter state as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "baro"

type Metrics struct {
	Pressure          prometheus.Gauge
	Temperature       prometheus.Gauge
	Altitude          prometheus.Gauge
	GroundPressure    prometheus.Gauge
	GroundAltitude    prometheus.Gauge
	CalibrationCycles prometheus.Gauge

	Steps        *prometheus.CounterVec
	DeviceErrors prometheus.Counter
	Ticks        prometheus.Counter
	// StepLateness observes how far past the requested delay a step ran.
	StepLateness prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pressure_pascals",
			Help:      "Last compensated, filtered pressure.",
		}),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last compensated sensor temperature.",
		}),
		Altitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "altitude_centimeters",
			Help:      "Altitude relative to the calibrated ground reference.",
		}),
		GroundPressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ground_pressure_pascals",
			Help:      "Averaged ground reference pressure.",
		}),
		GroundAltitude: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ground_altitude_centimeters",
			Help:      "Ground reference altitude above standard sea level.",
		}),
		CalibrationCycles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calibration_cycles_remaining",
			Help:      "Ground calibration cycles left; 0 when calibrated.",
		}),
		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquisition_steps_total",
			Help:      "Acquisition steps run, by the phase they completed.",
		}, []string{"phase"}),
		DeviceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_errors_total",
			Help:      "Steps that saw a sensor transport error.",
		}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "altitude_ticks_total",
			Help:      "Control-loop ticks that computed an altitude.",
		}),
		StepLateness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_lateness_seconds",
			Help:      "Time between a step becoming due and it running.",
			Buckets:   []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05},
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Pressure,
			m.Temperature,
			m.Altitude,
			m.GroundPressure,
			m.GroundAltitude,
			m.CalibrationCycles,
			m.Steps,
			m.DeviceErrors,
			m.Ticks,
			m.StepLateness,
		)
	}
	return m
}
