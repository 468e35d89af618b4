// Package bmp085 drives a Bosch BMP085/BMP180 as a baro.Device.
//
// The chip has a single conversion engine: a temperature or a pressure
// conversion is started by writing the control register, and the result is
// read from the data registers once the conversion time has elapsed.
package bmp085

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	"baroalt/internal/baro"
	"baroalt/internal/gpio"
	"baroalt/internal/i2c"
)

var sleep = time.Sleep

const (
	addrDefault = 0x77

	regID  = 0xD0
	chipID = 0x55

	regCalibAC1 = 0xAA
	calibLen    = 22

	regCtrlMeas = 0xF4
	regOut      = 0xF6

	cmdTemperature = 0x2E
	cmdPressure    = 0x34
)

// Datasheet maximum conversion times rounded up by a millisecond.
var (
	temperatureDelay = 6 * time.Millisecond
	pressureDelays   = [4]time.Duration{
		6 * time.Millisecond,
		9 * time.Millisecond,
		15 * time.Millisecond,
		27 * time.Millisecond,
	}
)

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

type Config struct {
	// Oversampling is the pressure oversampling setting (OSS), 0..3.
	Oversampling int
	// EOC, when set, is polled before reading a result. A low line means the
	// conversion is still running and the previous raw value is kept.
	EOC gpio.Input
}

type calibration struct {
	ac1, ac2, ac3 int16
	ac4, ac5, ac6 uint16
	b1, b2        int16
	mb, mc, md    int16
}

type Device struct {
	dev regIO
	cfg Config
	cal calibration

	rawTemp  int32
	rawPress int32
}

var _ baro.Device = (*Device)(nil)

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev, cfg Config) (*Device, error) {
	if dev == nil {
		return nil, errors.New("bmp085: dev is nil")
	}
	return newWithIO(dev, cfg)
}

func newWithIO(dev regIO, cfg Config) (*Device, error) {
	if dev == nil {
		return nil, errors.New("bmp085: dev is nil")
	}
	if cfg.Oversampling < 0 || cfg.Oversampling > 3 {
		return nil, errors.Errorf("bmp085: oversampling=%d out of range 0..3", cfg.Oversampling)
	}
	d := &Device{dev: dev, cfg: cfg}

	id, err := d.dev.ReadRegU8(regID)
	if err != nil {
		return nil, errors.Wrap(err, "bmp085: id read failed")
	}
	if id != chipID {
		return nil, errors.Errorf("bmp085: chip id=0x%02X want 0x%02X", id, chipID)
	}

	// The EEPROM occasionally reads back as all zeros or all ones right after
	// power-up.
	var calibErr error
	for i := 0; i < 3; i++ {
		if calibErr = d.readCalibration(); calibErr == nil {
			break
		}
		sleep(10 * time.Millisecond)
	}
	if calibErr != nil {
		return nil, calibErr
	}

	// Prime the pipeline: the first temperature read then returns a real
	// conversion rather than whatever the data registers held at reset.
	if err := d.StartTemperature(); err != nil {
		return nil, err
	}
	sleep(temperatureDelay)
	return d, nil
}

func (d *Device) readCalibration() error {
	buf := make([]byte, calibLen)
	if err := d.dev.ReadReg(regCalibAC1, buf); err != nil {
		return errors.Wrap(err, "bmp085: read calib failed")
	}
	for i := 0; i < calibLen; i += 2 {
		w := binary.BigEndian.Uint16(buf[i : i+2])
		if w == 0x0000 || w == 0xFFFF {
			return errors.Errorf("bmp085: calibration word %d invalid (0x%04X)", i/2, w)
		}
	}
	d.cal = calibration{
		ac1: int16(binary.BigEndian.Uint16(buf[0:2])),
		ac2: int16(binary.BigEndian.Uint16(buf[2:4])),
		ac3: int16(binary.BigEndian.Uint16(buf[4:6])),
		ac4: binary.BigEndian.Uint16(buf[6:8]),
		ac5: binary.BigEndian.Uint16(buf[8:10]),
		ac6: binary.BigEndian.Uint16(buf[10:12]),
		b1:  int16(binary.BigEndian.Uint16(buf[12:14])),
		b2:  int16(binary.BigEndian.Uint16(buf[14:16])),
		mb:  int16(binary.BigEndian.Uint16(buf[16:18])),
		mc:  int16(binary.BigEndian.Uint16(buf[18:20])),
		md:  int16(binary.BigEndian.Uint16(buf[20:22])),
	}
	return nil
}

func (d *Device) Delays() baro.Delays {
	return baro.Delays{
		Temperature: temperatureDelay,
		Pressure:    pressureDelays[d.cfg.Oversampling],
	}
}

func (d *Device) StartTemperature() error {
	if err := d.dev.WriteReg(regCtrlMeas, cmdTemperature); err != nil {
		return errors.Wrap(err, "bmp085: start temperature")
	}
	return nil
}

func (d *Device) StartPressure() error {
	cmd := byte(cmdPressure) | byte(d.cfg.Oversampling<<6)
	if err := d.dev.WriteReg(regCtrlMeas, cmd); err != nil {
		return errors.Wrap(err, "bmp085: start pressure")
	}
	return nil
}

func (d *Device) ReadTemperature() (int32, error) {
	if !d.conversionComplete() {
		return d.rawTemp, nil
	}
	buf := make([]byte, 2)
	if err := d.dev.ReadReg(regOut, buf); err != nil {
		return d.rawTemp, errors.Wrap(err, "bmp085: read temperature")
	}
	d.rawTemp = int32(binary.BigEndian.Uint16(buf))
	return d.rawTemp, nil
}

func (d *Device) ReadPressure() (int32, error) {
	if !d.conversionComplete() {
		return d.rawPress, nil
	}
	buf := make([]byte, 3)
	if err := d.dev.ReadReg(regOut, buf); err != nil {
		return d.rawPress, errors.Wrap(err, "bmp085: read pressure")
	}
	up := int32(buf[0])<<16 | int32(buf[1])<<8 | int32(buf[2])
	d.rawPress = up >> (8 - uint(d.cfg.Oversampling))
	return d.rawPress, nil
}

func (d *Device) conversionComplete() bool {
	if d.cfg.EOC == nil {
		return true
	}
	v, err := d.cfg.EOC.Value()
	if err != nil {
		// Fall back to trusting the delay.
		return true
	}
	return v != 0
}

// Compensate applies the datasheet integer algorithm. Temperature is returned
// in 0.01 degC; the chip resolves 0.1 degC.
func (d *Device) Compensate(rawTemp, rawPress int32) (pressure, temperature int32) {
	c := d.cal
	oss := uint(d.cfg.Oversampling)

	x1 := ((rawTemp - int32(c.ac6)) * int32(c.ac5)) >> 15
	den := x1 + int32(c.md)
	if den == 0 {
		return 0, 0
	}
	x2 := (int32(c.mc) << 11) / den
	b5 := x1 + x2
	temperature = ((b5 + 8) >> 4) * 10

	b6 := b5 - 4000
	x1 = (int32(c.b2) * ((b6 * b6) >> 12)) >> 11
	x2 = (int32(c.ac2) * b6) >> 11
	x3 := x1 + x2
	b3 := (((int32(c.ac1)*4 + x3) << oss) + 2) >> 2

	x1 = (int32(c.ac3) * b6) >> 13
	x2 = (int32(c.b1) * ((b6 * b6) >> 12)) >> 16
	x3 = ((x1 + x2) + 2) >> 2
	b4 := (uint32(c.ac4) * uint32(x3+32768)) >> 15
	if b4 == 0 {
		return 0, temperature
	}
	b7 := uint32(rawPress-b3) * (50000 >> oss)

	var p int32
	if b7 < 0x80000000 {
		p = int32((b7 * 2) / b4)
	} else {
		p = int32((b7 / b4) * 2)
	}
	x1 = (p >> 8) * (p >> 8)
	x1 = (x1 * 3038) >> 16
	x2 = (-7357 * p) >> 16
	pressure = p + ((x1 + x2 + 3791) >> 4)
	return pressure, temperature
}
