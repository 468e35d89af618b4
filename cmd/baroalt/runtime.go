package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"baroalt/internal/altimeter"
	"baroalt/internal/altlog"
	"baroalt/internal/baro"
	"baroalt/internal/config"
	"baroalt/internal/gpio"
	"baroalt/internal/i2c"
	"baroalt/internal/metrics"
	"baroalt/internal/sensors/bmp085"
	"baroalt/internal/sensors/bmp280"
	"baroalt/internal/sim"
	"baroalt/internal/web"
)

// liveRuntime owns everything built from one config: the sensor and its bus,
// the barometer, the service and the optional recorder.
type liveRuntime struct {
	cfg     config.Config
	svc     *altimeter.Service
	reg     *prometheus.Registry
	closers []func() error
}

func loadConfig(path string) (config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logrus.WithField("path", path).Info("config file not found, using defaults")
		return config.Default(), nil
	}
	return config.Load(path)
}

func newRuntime(cfg config.Config) (*liveRuntime, error) {
	rt := &liveRuntime{cfg: cfg, reg: prometheus.NewRegistry()}

	dev, err := rt.openDevice()
	if err != nil {
		rt.Close()
		return nil, err
	}

	opts := []baro.Option{baro.WithMedianFilter(*cfg.Baro.UseMedianFiltering)}
	if cfg.HIL.Enable {
		recs, err := altlog.Load(cfg.HIL.Path)
		if err != nil {
			rt.Close()
			return nil, err
		}
		src, err := altlog.NewSource(recs, cfg.HIL.Loop)
		if err != nil {
			rt.Close()
			return nil, err
		}
		logrus.WithFields(logrus.Fields{"path": cfg.HIL.Path, "samples": src.Remaining(), "loop": cfg.HIL.Loop}).
			Info("hardware-in-the-loop altitude override enabled")
		opts = append(opts, baro.WithAltitudeSource(src))
	}

	b, err := baro.New(dev, opts...)
	if err != nil {
		rt.Close()
		return nil, err
	}

	svcOpts := []altimeter.Option{
		altimeter.WithMetrics(metrics.New(rt.reg)),
		altimeter.WithLogger(logrus.WithFields(logrus.Fields{"component": "altimeter", "device": cfg.Baro.Device})),
	}
	if cfg.Record.Enable {
		w, err := altlog.CreateWriter(cfg.Record.Path)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, w.Close)
		svcOpts = append(svcOpts, altimeter.WithRecorder(w))
		logrus.WithField("path", cfg.Record.Path).Info("recording altitude trace")
	}

	svc, err := altimeter.New(b, altimeter.Config{
		CalibrationCycles: *cfg.Baro.CalibrationCycles,
		LoopInterval:      cfg.Baro.LoopInterval,
	}, svcOpts...)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.svc = svc
	return rt, nil
}

func (rt *liveRuntime) openDevice() (baro.Device, error) {
	bc := rt.cfg.Baro
	if bc.Device == config.DeviceSim {
		sc := rt.cfg.Sim
		return sim.NewDevice(sim.DeviceConfig{
			GroundPressure: sc.GroundPressurePa,
			Profile: sim.Profile{
				BaseCm:      sc.BaseAltM * 100,
				AmplitudeCm: sc.AmplitudeM * 100,
				Period:      sc.Period,
				Hold:        sc.Hold,
			},
			NoisePa:    sc.NoisePa,
			SpikeEvery: sc.SpikeEvery,
			SpikePa:    sc.SpikePa,
			Seed:       sc.Seed,
		}), nil
	}

	bus, err := i2c.OpenNumber(bc.I2CBus)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, bus.Close)

	addr := bc.Address
	if addr == 0 {
		addr = bmp280.DefaultAddress()
		if bc.Device == config.DeviceBMP085 {
			addr = bmp085.DefaultAddress()
		}
	}
	dev := bus.Dev(addr)
	log := logrus.WithFields(logrus.Fields{
		"device": bc.Device,
		"bus":    bus.Path(),
		"addr":   fmt.Sprintf("0x%02X", dev.Addr()),
	})

	var (
		d      baro.Device
		devErr error
	)
	switch bc.Device {
	case config.DeviceBMP085:
		dcfg := bmp085.Config{Oversampling: bc.Oversampling}
		if bc.EOCGPIO > 0 {
			eoc, err := gpio.OpenInput(bc.EOCGPIO, "baroalt-eoc")
			if err != nil {
				return nil, err
			}
			rt.closers = append(rt.closers, eoc.Close)
			dcfg.EOC = eoc
			log = log.WithField("eoc_gpio", bc.EOCGPIO)
		}
		d, devErr = bmp085.New(dev, dcfg)
	case config.DeviceBMP280:
		d, devErr = bmp280.New(dev)
	default:
		return nil, errors.Errorf("unsupported device %q", bc.Device)
	}
	if devErr != nil {
		return nil, errors.Wrapf(devErr, "%s at %s addr 0x%02X", bc.Device, bus.Path(), dev.Addr())
	}
	log.Info("sensor initialized")
	return d, nil
}

// serveHTTP starts the status API when http.listen is set. A listener
// failure cancels the run.
func (rt *liveRuntime) serveHTTP(ctx context.Context, cancel context.CancelFunc, logs *web.LogBuffer) {
	addr := rt.cfg.HTTP.Listen
	if addr == "" {
		return
	}
	h := web.Handler(rt.svc, web.Options{
		DefaultCycles: *rt.cfg.Baro.CalibrationCycles,
		Version:       version,
		Gatherer:      rt.reg,
		Logs:          logs,
	})
	go func() {
		logrus.WithField("addr", addr).Info("serving status API and metrics")
		if err := web.Serve(ctx, addr, h); err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Error("http server stopped")
			cancel()
		}
	}()
}

func (rt *liveRuntime) Close() {
	if rt.svc != nil {
		rt.svc.Close()
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			logrus.WithError(err).Warn("close failed")
		}
	}
	rt.closers = nil
}
