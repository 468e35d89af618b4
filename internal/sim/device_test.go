package sim

import (
	"math"
	"testing"
	"time"

	"baroalt/internal/baro"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 12, 20, 19, 0, 0, 0, time.UTC)}
}

func TestDevice_GroundPressureDuringHold(t *testing.T) {
	clk := newClock()
	d := newDeviceWithClock(DeviceConfig{
		GroundPressure: 98000,
		Profile:        Profile{AmplitudeCm: 1000, Period: time.Minute, Hold: 10 * time.Second},
	}, clk.Now)

	if err := d.StartPressure(); err != nil {
		t.Fatalf("StartPressure() error: %v", err)
	}
	raw, _ := d.ReadPressure()
	if raw != 98000 {
		t.Fatalf("pressure during hold=%d want 98000", raw)
	}
	p, temp := d.Compensate(1234, raw)
	if p != raw || temp != 1234 {
		t.Fatalf("compensate not identity: %d %d", p, temp)
	}
}

func TestDevice_PressureFollowsProfile(t *testing.T) {
	clk := newClock()
	prof := Profile{BaseCm: 30000, Period: 40 * time.Second}
	d := newDeviceWithClock(DeviceConfig{Profile: prof}, clk.Now)

	clk.Advance(20 * time.Second)
	_ = d.StartPressure()
	raw, _ := d.ReadPressure()

	want := baro.AltitudeToPressure(prof.AltitudeAt(20 * time.Second))
	if math.Abs(float64(raw)-want) > 1 {
		t.Fatalf("pressure=%d want ~%.0f", raw, want)
	}
	if raw >= int32(baro.SeaLevelPressure) {
		t.Fatalf("pressure=%d should drop as the profile climbs", raw)
	}
}

func TestDevice_SpikesAndNoiseDeterministic(t *testing.T) {
	cfg := DeviceConfig{NoisePa: 3, SpikeEvery: 4, SpikePa: 5000, Seed: 7}
	a := newDeviceWithClock(cfg, newClock().Now)
	b := newDeviceWithClock(cfg, newClock().Now)

	for i := 1; i <= 12; i++ {
		_ = a.StartPressure()
		_ = b.StartPressure()
		pa, _ := a.ReadPressure()
		pb, _ := b.ReadPressure()
		if pa != pb {
			t.Fatalf("sample %d differs across equal seeds: %d vs %d", i, pa, pb)
		}
		spike := i%4 == 0
		if spike && pa < 101325+4900 {
			t.Fatalf("sample %d=%d want spike", i, pa)
		}
		if !spike && math.Abs(float64(pa)-101325) > 30 {
			t.Fatalf("sample %d=%d too noisy", i, pa)
		}
	}
}

func TestDevice_MedianFilterRejectsSpikes(t *testing.T) {
	dev := newDeviceWithClock(DeviceConfig{SpikeEvery: 5, SpikePa: 8000}, newClock().Now)
	b, err := baro.New(dev)
	if err != nil {
		t.Fatalf("baro.New() error: %v", err)
	}
	for i := 0; i < 40; i++ {
		b.Step()
		r := b.Step()
		if i >= 2 && r.Pressure != 101325 {
			t.Fatalf("cycle %d pressure=%d, spike leaked through median", i, r.Pressure)
		}
	}
}

func TestProfile_HoldAndRamp(t *testing.T) {
	p := Profile{BaseCm: 1000, AmplitudeCm: 200, Period: 40 * time.Second, Hold: 5 * time.Second}
	if got := p.AltitudeAt(4 * time.Second); got != 0 {
		t.Fatalf("altitude during hold=%f want 0", got)
	}
	if got := p.AltitudeAt(5 * time.Second); got != 0 {
		t.Fatalf("altitude at end of hold=%f want 0", got)
	}
	if got := p.AltitudeAt(5*time.Second + 20*time.Second); math.Abs(got-1000) > 1e-6 {
		t.Fatalf("altitude at half period=%f want 1000", got)
	}
	if got := p.VerticalSpeedAt(5 * time.Second); got <= 0 {
		t.Fatalf("vertical speed at climb start=%f want > 0", got)
	}
}
