// Package altimeter drives a baro.Barometer on wall-clock time: it waits out
// the delay each acquisition step asks for, computes altitude on a fixed
// control-loop tick and publishes the result as a Snapshot.
package altimeter

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"baroalt/internal/baro"
	"baroalt/internal/metrics"
)

type Config struct {
	// CalibrationCycles is the number of loop ticks spent on ground
	// calibration after Start.
	CalibrationCycles uint
	LoopInterval      time.Duration
}

type Snapshot struct {
	// Valid is true once a reading exists and calibration has finished.
	Valid                bool
	Ready                bool
	Calibrated           bool
	CalibrationRemaining uint

	Phase        string
	PressurePa   int32
	TemperatureC float64
	AltitudeCm   int32

	GroundPressurePa int32
	GroundAltitudeCm int32

	Steps   uint64
	Updates uint64
	Ticks   uint64

	LastError string
	UpdatedAt time.Time
}

// Recorder receives one sample per loop tick. altlog.Writer implements it.
type Recorder interface {
	Write(now time.Time, pressure, temperature, altitude int32) error
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.rec = r }
}

func WithLogger(l *logrus.Entry) Option {
	return func(s *Service) { s.log = l }
}

type Service struct {
	cfg     Config
	baro    *baro.Barometer
	metrics *metrics.Metrics
	rec     Recorder
	log     *logrus.Entry
	now     func() time.Time

	// Only the run goroutine touches baro; everything else goes through
	// recalCh or Snapshot.
	recalCh chan uint

	failing    bool
	recFailing bool

	mu   sync.RWMutex
	snap Snapshot

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

func New(b *baro.Barometer, cfg Config, opts ...Option) (*Service, error) {
	if b == nil {
		return nil, errors.New("altimeter: barometer is nil")
	}
	if cfg.LoopInterval <= 0 {
		cfg.LoopInterval = 25 * time.Millisecond
	}
	s := &Service{
		cfg:     cfg,
		baro:    b,
		now:     time.Now,
		recalCh: make(chan uint, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.WithField("component", "altimeter")
	}
	return s, nil
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Start arms ground calibration and begins acquisition in the background.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return errors.New("altimeter: service is nil")
	}
	started := false
	s.startOnce.Do(func() {
		started = true
		s.baro.BeginCalibration(s.cfg.CalibrationCycles)
		s.publish(s.now())
		s.log.WithFields(logrus.Fields{
			"calibration_cycles": s.cfg.CalibrationCycles,
			"loop_interval":      s.cfg.LoopInterval,
			"delays":             s.baro.Delays(),
		}).Info("altimeter starting")
		go func() {
			defer close(s.doneCh)
			s.run(ctx)
		}()
	})
	if !started {
		return errors.New("altimeter: already started")
	}
	return nil
}

// Close stops acquisition and waits for the loop to exit, so the device and
// recorder can be closed safely afterwards.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stop()
	started := true
	s.startOnce.Do(func() { started = false })
	if started {
		<-s.doneCh
	}
}

func (s *Service) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Recalibrate re-arms ground calibration for cycles loop ticks.
func (s *Service) Recalibrate(ctx context.Context, cycles uint) error {
	if s == nil {
		return errors.New("altimeter: service is nil")
	}
	select {
	case s.recalCh <- cycles:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errors.New("altimeter: recalibration already pending")
	}
}

func (s *Service) run(ctx context.Context) {
	tick := time.NewTicker(s.cfg.LoopInterval)
	defer tick.Stop()
	stepTimer := time.NewTimer(0)
	defer stepTimer.Stop()
	stepDue := s.now()

	for {
		select {
		case <-ctx.Done():
			s.stop()
			return
		case <-s.stopCh:
			return
		case cycles := <-s.recalCh:
			s.baro.BeginCalibration(cycles)
			s.log.WithField("cycles", cycles).Info("ground calibration re-armed")
			s.publish(s.now())
		case <-stepTimer.C:
			now := s.now()
			r := s.step(now, stepDue)
			stepDue = now.Add(r.Delay)
			stepTimer.Reset(r.Delay)
		case <-tick.C:
			s.tick(s.now())
		}
	}
}

// step runs one acquisition phase. due is when the previous step said this
// one could run.
func (s *Service) step(now, due time.Time) baro.Reading {
	phase := s.baro.Phase()
	r := s.baro.Step()

	if s.metrics != nil {
		s.metrics.Steps.WithLabelValues(phase.String()).Inc()
		if late := now.Sub(due); late >= 0 {
			s.metrics.StepLateness.Observe(late.Seconds())
		}
	}

	s.mu.Lock()
	s.snap.Steps++
	if r.Updated {
		s.snap.Updates++
	}
	s.mu.Unlock()

	if r.Err != nil {
		if s.metrics != nil {
			s.metrics.DeviceErrors.Inc()
		}
		if !s.failing {
			s.log.WithError(r.Err).WithField("phase", phase.String()).Warn("sensor read failed")
		}
		s.failing = true
		s.setErr(r.Err.Error())
	} else if s.failing && r.Updated {
		s.failing = false
		s.log.Info("sensor reads recovered")
		s.setErr("")
	}

	if r.Updated {
		s.publish(now)
	}
	return r
}

// tick is one control-loop iteration. Until the first reading exists there is
// nothing to fold into the ground average, so calibration does not advance.
func (s *Service) tick(now time.Time) int32 {
	if !s.baro.IsReady() {
		if s.metrics != nil {
			s.metrics.Ticks.Inc()
		}
		s.mu.Lock()
		s.snap.Ticks++
		s.mu.Unlock()
		s.publish(now)
		return 0
	}

	wasCalibrated := s.baro.IsCalibrationComplete()
	alt := s.baro.ComputeAltitude()

	if !wasCalibrated && s.baro.IsCalibrationComplete() {
		s.log.WithFields(logrus.Fields{
			"ground_pressure": humanize.Comma(int64(s.baro.GroundPressure())) + " Pa",
			"ground_altitude": humanize.FormatFloat("#,###.##", float64(s.baro.GroundAltitude())/100) + " m",
		}).Info("ground calibration complete")
	}

	if s.metrics != nil {
		s.metrics.Ticks.Inc()
	}
	s.mu.Lock()
	s.snap.Ticks++
	s.mu.Unlock()
	s.publish(now)

	if s.rec != nil {
		err := s.rec.Write(now, s.baro.Pressure(), s.baro.Temperature(), alt)
		if err != nil && !s.recFailing {
			s.log.WithError(err).Warn("trace record failed")
		}
		s.recFailing = err != nil
	}
	return alt
}

func (s *Service) publish(now time.Time) {
	b := s.baro
	s.mu.Lock()
	s.snap.Ready = b.IsReady()
	s.snap.Calibrated = b.IsCalibrationComplete()
	s.snap.CalibrationRemaining = b.CalibrationCyclesRemaining()
	s.snap.Valid = s.snap.Ready && s.snap.Calibrated
	s.snap.Phase = b.Phase().String()
	s.snap.PressurePa = b.Pressure()
	s.snap.TemperatureC = float64(b.Temperature()) / 100
	s.snap.AltitudeCm = b.Altitude()
	s.snap.GroundPressurePa = b.GroundPressure()
	s.snap.GroundAltitudeCm = b.GroundAltitude()
	s.snap.UpdatedAt = now
	snap := s.snap
	s.mu.Unlock()

	if m := s.metrics; m != nil {
		m.Pressure.Set(float64(snap.PressurePa))
		m.Temperature.Set(snap.TemperatureC)
		m.Altitude.Set(float64(snap.AltitudeCm))
		m.GroundPressure.Set(float64(snap.GroundPressurePa))
		m.GroundAltitude.Set(float64(snap.GroundAltitudeCm))
		m.CalibrationCycles.Set(float64(snap.CalibrationRemaining))
	}
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = msg
}
