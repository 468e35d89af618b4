// Package bmp280 drives a Bosch BMP280 as a baro.Device in forced mode.
//
// The BMP280 converts temperature and pressure together. StartPressure
// triggers one forced measurement and ReadPressure bursts both results out;
// the temperature half of the cycle only hands back the value captured by
// that burst. Each compensation therefore pairs a pressure with the
// temperature from the burst before it; New runs one measurement so even the
// first cycle has a real temperature.
package bmp280

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/pkg/errors"

	"baroalt/internal/baro"
	"baroalt/internal/i2c"
)

var sleep = time.Sleep

const (
	addrDefault = 0x76

	regID        = 0xD0
	chipIDBMP280 = 0x58

	regReset = 0xE0
	resetCmd = 0xB6

	regCalib00 = 0x88
	calibLen   = 24

	regCtrlMeas = 0xF4
	regConfig   = 0xF5
	regPressMsb = 0xF7

	// osrs_t x1, osrs_p x8, forced mode.
	ctrlForced = byte(0x01<<5) | byte(0x04<<2) | 0x01
)

// Measurement time for osrs_t x1 / osrs_p x8 per datasheet 9.1, rounded up.
// There is no separate temperature conversion; its delay only spaces bus
// transactions.
var delays = baro.Delays{
	Temperature: 1 * time.Millisecond,
	Pressure:    23 * time.Millisecond,
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

type Device struct {
	dev regIO

	digT1 uint16
	digT2 int16
	digT3 int16
	digP1 uint16
	digP2 int16
	digP3 int16
	digP4 int16
	digP5 int16
	digP6 int16
	digP7 int16
	digP8 int16
	digP9 int16

	adcT int32
	adcP int32
}

var _ baro.Device = (*Device)(nil)

func DefaultAddress() uint16 { return addrDefault }

func New(dev *i2c.Dev) (*Device, error) {
	if dev == nil {
		return nil, errors.New("bmp280: dev is nil")
	}
	return newWithIO(dev)
}

func newWithIO(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, errors.New("bmp280: dev is nil")
	}
	d := &Device{dev: dev}

	id, err := d.dev.ReadRegU8(regID)
	if err != nil {
		return nil, errors.Wrap(err, "bmp280: id read failed")
	}
	if id != chipIDBMP280 {
		return nil, errors.Errorf("bmp280: chip id=0x%02X want 0x%02X", id, chipIDBMP280)
	}

	// After reset the NVM coefficients take a couple of milliseconds to load;
	// reading too early yields zeros.
	_ = d.dev.WriteReg(regReset, resetCmd)
	sleep(5 * time.Millisecond)

	var calibErr error
	for i := 0; i < 3; i++ {
		calibErr = d.readCalibration()
		if calibErr != nil {
			sleep(5 * time.Millisecond)
			continue
		}
		if d.digT1 != 0 && d.digP1 != 0 {
			calibErr = nil
			break
		}
		calibErr = errors.Errorf("bmp280: calibration invalid (digT1=%d digP1=%d)", d.digT1, d.digP1)
		sleep(5 * time.Millisecond)
	}
	if calibErr != nil {
		return nil, calibErr
	}

	// Standby irrelevant in forced mode, IIR filter off.
	if err := d.dev.WriteReg(regConfig, 0x00); err != nil {
		return nil, errors.Wrap(err, "bmp280: config write failed")
	}

	// Prime the pipeline so the first temperature read returns a real
	// conversion instead of zero.
	if err := d.StartPressure(); err != nil {
		return nil, err
	}
	sleep(delays.Pressure)
	if _, err := d.ReadPressure(); err != nil {
		return nil, errors.Wrap(err, "bmp280: priming measurement")
	}
	return d, nil
}

func (d *Device) readCalibration() error {
	buf := make([]byte, calibLen)
	if err := d.dev.ReadReg(regCalib00, buf); err != nil {
		return errors.Wrap(err, "bmp280: read calib failed")
	}
	d.digT1 = binary.LittleEndian.Uint16(buf[0:2])
	d.digT2 = int16(binary.LittleEndian.Uint16(buf[2:4]))
	d.digT3 = int16(binary.LittleEndian.Uint16(buf[4:6]))
	d.digP1 = binary.LittleEndian.Uint16(buf[6:8])
	d.digP2 = int16(binary.LittleEndian.Uint16(buf[8:10]))
	d.digP3 = int16(binary.LittleEndian.Uint16(buf[10:12]))
	d.digP4 = int16(binary.LittleEndian.Uint16(buf[12:14]))
	d.digP5 = int16(binary.LittleEndian.Uint16(buf[14:16]))
	d.digP6 = int16(binary.LittleEndian.Uint16(buf[16:18]))
	d.digP7 = int16(binary.LittleEndian.Uint16(buf[18:20]))
	d.digP8 = int16(binary.LittleEndian.Uint16(buf[20:22]))
	d.digP9 = int16(binary.LittleEndian.Uint16(buf[22:24]))
	return nil
}

func (d *Device) Delays() baro.Delays { return delays }

// StartTemperature is a no-op: temperature is converted with pressure.
func (d *Device) StartTemperature() error { return nil }

// ReadTemperature returns the temperature captured by the last ReadPressure.
func (d *Device) ReadTemperature() (int32, error) { return d.adcT, nil }

func (d *Device) StartPressure() error {
	if err := d.dev.WriteReg(regCtrlMeas, ctrlForced); err != nil {
		return errors.Wrap(err, "bmp280: start forced measurement")
	}
	return nil
}

func (d *Device) ReadPressure() (int32, error) {
	buf := make([]byte, 6)
	if err := d.dev.ReadReg(regPressMsb, buf); err != nil {
		return d.adcP, errors.Wrap(err, "bmp280: read data failed")
	}
	d.adcP = int32(buf[0])<<12 | int32(buf[1])<<4 | int32(buf[2])>>4
	d.adcT = int32(buf[3])<<12 | int32(buf[4])<<4 | int32(buf[5])>>4
	return d.adcP, nil
}

// Compensate runs the datasheet floating point algorithm and returns Pa and
// 0.01 degC.
func (d *Device) Compensate(rawTemp, rawPress int32) (pressure, temperature int32) {
	tFine, tempC := d.compensateTemp(rawTemp)
	p := d.compensatePress(rawPress, tFine)
	return int32(math.Round(p)), int32(math.Round(tempC * 100))
}

func (d *Device) compensateTemp(adcT int32) (tFine float64, tempC float64) {
	var1 := (float64(adcT)/16384.0 - float64(d.digT1)/1024.0) * float64(d.digT2)
	var2 := float64(adcT)/131072.0 - float64(d.digT1)/8192.0
	var2 = var2 * var2 * float64(d.digT3)
	tFine = var1 + var2
	return tFine, tFine / 5120.0
}

func (d *Device) compensatePress(adcP int32, tFine float64) float64 {
	var1 := float64(int32(tFine))/2.0 - 64000.0
	var2 := var1 * var1 * float64(d.digP6) / 32768.0
	var2 = var2 + var1*float64(d.digP5)*2.0
	var2 = var2/4.0 + float64(d.digP4)*65536.0
	var1 = (float64(d.digP3)*var1*var1/524288.0 + float64(d.digP2)*var1) / 524288.0
	var1 = (1.0 + var1/32768.0) * float64(d.digP1)
	if var1 == 0 {
		return 0
	}
	p := 1048576.0 - float64(adcP)
	p = (p - var2/4096.0) * 6250.0 / var1
	var1 = float64(d.digP9) * p * p / 2147483648.0
	var2 = p * float64(d.digP8) / 32768.0
	return p + (var1+var2+float64(d.digP7))/16.0
}
