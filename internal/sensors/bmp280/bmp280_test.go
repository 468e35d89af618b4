package bmp280

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"baroalt/internal/baro"
)

// Datasheet section 8.2 example coefficients.
const datasheetCalib = "706b436718fc7d8e43d6d00b270b8c00f9ff8c3cf8c67017"

type fakeI2C struct {
	regs map[byte][]byte

	calibReads int
	calibSeq   [][]byte

	writes []writeOp
}

type writeOp struct {
	reg byte
	val byte
}

func (f *fakeI2C) ReadRegU8(reg byte) (byte, error) {
	b, ok := f.regs[reg]
	if !ok || len(b) < 1 {
		return 0, errors.New("no reg")
	}
	return b[0], nil
}

func (f *fakeI2C) ReadReg(reg byte, dst []byte) error {
	if reg == regCalib00 {
		f.calibReads++
		idx := f.calibReads - 1
		if idx < len(f.calibSeq) {
			copy(dst, f.calibSeq[idx])
			return nil
		}
		for i := range dst {
			dst[i] = 0
		}
		return nil
	}

	b, ok := f.regs[reg]
	if !ok {
		return errors.New("no reg")
	}
	copy(dst, b)
	return nil
}

func (f *fakeI2C) WriteReg(reg, value byte) error {
	f.writes = append(f.writes, writeOp{reg: reg, val: value})
	return nil
}

func noSleep(t *testing.T) {
	t.Helper()
	oldSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = oldSleep })
}

func datasheetDevice(t *testing.T) (*Device, *fakeI2C) {
	t.Helper()
	calib, err := hex.DecodeString(datasheetCalib)
	if err != nil {
		t.Fatalf("hex: %v", err)
	}
	f := &fakeI2C{
		regs: map[byte][]byte{
			regID:       {chipIDBMP280},
			regPressMsb: {0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00},
		},
		calibSeq: [][]byte{calib},
	}
	d, err := newWithIO(f)
	if err != nil {
		t.Fatalf("newWithIO() error: %v", err)
	}
	return d, f
}

func TestNew_RetriesCalibrationAfterReset(t *testing.T) {
	noSleep(t)

	calibZero := make([]byte, calibLen)
	calibOK := make([]byte, calibLen)
	binary.LittleEndian.PutUint16(calibOK[0:2], 27504)
	binary.LittleEndian.PutUint16(calibOK[6:8], 36477)

	f := &fakeI2C{
		regs: map[byte][]byte{
			regID:       {chipIDBMP280},
			regPressMsb: {0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00},
		},
		calibSeq: [][]byte{calibZero, calibOK},
	}
	if _, err := newWithIO(f); err != nil {
		t.Fatalf("expected New to succeed, got %v", err)
	}
	if f.calibReads < 2 {
		t.Fatalf("expected calibration to be retried, reads=%d", f.calibReads)
	}
	if f.writes[0] != (writeOp{regReset, resetCmd}) {
		t.Fatalf("first write=%+v want soft reset", f.writes[0])
	}
}

func TestNew_FailsOnInvalidCalibration(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{
		regs:     map[byte][]byte{regID: {chipIDBMP280}},
		calibSeq: [][]byte{make([]byte, calibLen), make([]byte, calibLen), make([]byte, calibLen)},
	}
	if _, err := newWithIO(f); err == nil {
		t.Fatalf("expected invalid calibration error")
	}
}

func TestNew_RejectsWrongChip(t *testing.T) {
	noSleep(t)
	f := &fakeI2C{regs: map[byte][]byte{regID: {0x55}}}
	if _, err := newWithIO(f); err == nil {
		t.Fatalf("expected chip id error")
	}
}

func TestForcedCycle_DatasheetExample(t *testing.T) {
	noSleep(t)
	d, f := datasheetDevice(t)

	if err := d.StartPressure(); err != nil {
		t.Fatalf("StartPressure() error: %v", err)
	}
	last := f.writes[len(f.writes)-1]
	if last != (writeOp{regCtrlMeas, ctrlForced}) {
		t.Fatalf("start write=%+v want forced ctrl_meas", last)
	}

	adcP, err := d.ReadPressure()
	if err != nil {
		t.Fatalf("ReadPressure() error: %v", err)
	}
	if adcP != 415148 {
		t.Fatalf("adcP=%d want 415148", adcP)
	}
	adcT, _ := d.ReadTemperature()
	if adcT != 519888 {
		t.Fatalf("adcT=%d want 519888", adcT)
	}

	p, temp := d.Compensate(adcT, adcP)
	if p != 100653 {
		t.Fatalf("pressure=%d want 100653", p)
	}
	if temp != 2508 {
		t.Fatalf("temperature=%d want 2508", temp)
	}
}

func TestStartTemperature_NoBusTraffic(t *testing.T) {
	noSleep(t)
	d, f := datasheetDevice(t)
	n := len(f.writes)
	if err := d.StartTemperature(); err != nil {
		t.Fatalf("StartTemperature() error: %v", err)
	}
	if len(f.writes) != n {
		t.Fatalf("unexpected write on temperature start")
	}
	if d.Delays().Temperature <= 0 || d.Delays().Pressure <= d.Delays().Temperature {
		t.Fatalf("delays=%+v", d.Delays())
	}
}

func TestNew_PrimesMeasurement(t *testing.T) {
	noSleep(t)
	d, f := datasheetDevice(t)
	last := f.writes[len(f.writes)-1]
	if last != (writeOp{regCtrlMeas, ctrlForced}) {
		t.Fatalf("last init write=%+v want forced measurement", last)
	}
	if adcT, _ := d.ReadTemperature(); adcT != 519888 {
		t.Fatalf("primed adcT=%d want 519888", adcT)
	}
}

func TestNew_PrimingReadFails(t *testing.T) {
	noSleep(t)
	calib, _ := hex.DecodeString(datasheetCalib)
	f := &fakeI2C{
		regs:     map[byte][]byte{regID: {chipIDBMP280}},
		calibSeq: [][]byte{calib},
	}
	if _, err := newWithIO(f); err == nil {
		t.Fatalf("expected priming read error")
	}
}

func TestBarometer_FirstCycleUsesRealTemperature(t *testing.T) {
	noSleep(t)
	d, _ := datasheetDevice(t)
	b, err := baro.New(d, baro.WithMedianFilter(false))
	if err != nil {
		t.Fatalf("baro.New() error: %v", err)
	}
	for cycle := 0; cycle < 3; cycle++ {
		if r := b.Step(); r.Delay != delays.Pressure || r.Err != nil {
			t.Fatalf("cycle %d sample step=%+v", cycle, r)
		}
		r := b.Step()
		if !r.Updated || r.Delay != delays.Temperature || r.Err != nil {
			t.Fatalf("cycle %d calc step=%+v", cycle, r)
		}
		if r.Pressure != 100653 || r.Temperature != 2508 {
			t.Fatalf("cycle %d pressure=%d temp=%d want 100653 2508", cycle, r.Pressure, r.Temperature)
		}
	}
}
