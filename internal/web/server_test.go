package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"baroalt/internal/altimeter"
	"baroalt/internal/metrics"
)

type fakeAltimeter struct {
	snap     altimeter.Snapshot
	recalErr error
	recalled []uint
}

func (f *fakeAltimeter) Snapshot() altimeter.Snapshot { return f.snap }

func (f *fakeAltimeter) Recalibrate(_ context.Context, cycles uint) error {
	if f.recalErr != nil {
		return f.recalErr
	}
	f.recalled = append(f.recalled, cycles)
	return nil
}

func TestAPIStatus(t *testing.T) {
	alt := &fakeAltimeter{snap: altimeter.Snapshot{
		Valid:            true,
		Ready:            true,
		Calibrated:       true,
		Phase:            "awaiting_samples",
		PressurePa:       100000,
		AltitudeCm:       -42,
		GroundPressurePa: 100010,
		UpdatedAt:        time.Unix(1700000000, 0),
	}}
	ts := httptest.NewServer(Handler(alt, Options{}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}

	var snap StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if snap.Service != "baroalt" {
		t.Fatalf("service=%q", snap.Service)
	}
	if !snap.Valid || snap.PressurePa != 100000 || snap.AltitudeCm != -42 || snap.GroundPressurePa != 100010 {
		t.Fatalf("unexpected status: %+v", snap)
	}
	if snap.UpdatedAtUTC == "" {
		t.Fatalf("updated_at_utc missing")
	}
}

func TestAPIStatus_MethodNotAllowed(t *testing.T) {
	ts := httptest.NewServer(Handler(&fakeAltimeter{}, Options{}))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatalf("post status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status code=%d want 405", resp.StatusCode)
	}
	if got := resp.Header.Get("Allow"); got != http.MethodGet {
		t.Fatalf("allow=%q", got)
	}
}

func TestAPICalibrate(t *testing.T) {
	alt := &fakeAltimeter{}
	ts := httptest.NewServer(Handler(alt, Options{DefaultCycles: 200}))
	defer ts.Close()

	for _, tc := range []struct {
		query string
		code  int
	}{
		{"", http.StatusOK},
		{"?cycles=16", http.StatusOK},
		{"?cycles=-1", http.StatusBadRequest},
		{"?cycles=abc", http.StatusBadRequest},
	} {
		resp, err := http.Post(ts.URL+"/api/calibrate"+tc.query, "", nil)
		if err != nil {
			t.Fatalf("post calibrate%s: %v", tc.query, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.code {
			t.Fatalf("calibrate%s code=%d want %d", tc.query, resp.StatusCode, tc.code)
		}
	}
	if len(alt.recalled) != 2 || alt.recalled[0] != 200 || alt.recalled[1] != 16 {
		t.Fatalf("recalled=%v want [200 16]", alt.recalled)
	}

	alt.recalErr = errors.New("altimeter: recalibration already pending")
	resp, err := http.Post(ts.URL+"/api/calibrate", "", nil)
	if err != nil {
		t.Fatalf("post calibrate: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict || !strings.Contains(string(body), "pending") {
		t.Fatalf("code=%d body=%q", resp.StatusCode, body)
	}
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Altitude.Set(1234)

	ts := httptest.NewServer(Handler(&fakeAltimeter{}, Options{Gatherer: reg}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "baro_altitude_centimeters 1234") {
		t.Fatalf("metrics body missing altitude gauge:\n%s", body)
	}
}

func TestMetricsRoute_AbsentWithoutGatherer(t *testing.T) {
	ts := httptest.NewServer(Handler(&fakeAltimeter{}, Options{}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status code=%d want 404", resp.StatusCode)
	}
}

func TestRootPage(t *testing.T) {
	ts := httptest.NewServer(Handler(&fakeAltimeter{snap: altimeter.Snapshot{LastError: "<bad>"}}, Options{}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if strings.Contains(string(body), "<bad>") {
		t.Fatalf("last error not escaped: %s", body)
	}

	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("get /nope: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status code=%d want 404", resp.StatusCode)
	}
}

func TestLogBuffer_HookAndHandler(t *testing.T) {
	buf := NewLogBuffer(2)
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.AddHook(buf)

	l.Info("one")
	l.WithField("alt_cm", 42).Warn("two")
	l.Error("three")

	lines, dropped := buf.Snapshot(10)
	if dropped != 1 || len(lines) != 2 {
		t.Fatalf("lines=%v dropped=%d", lines, dropped)
	}
	if !strings.Contains(lines[0], "two") || !strings.Contains(lines[0], "alt_cm=42") {
		t.Fatalf("lines[0]=%q", lines[0])
	}

	ts := httptest.NewServer(Handler(&fakeAltimeter{}, Options{Logs: buf}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/logs?tail=1&format=text")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	got := string(body)
	if !strings.HasPrefix(got, "[dropped=1]\n") || !strings.Contains(got, "three") || strings.Contains(got, "two") {
		t.Fatalf("logs body=%q", got)
	}

	resp, err = http.Get(ts.URL + "/api/logs?tail=0")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status code=%d want 400", resp.StatusCode)
	}
}

func TestAbout(t *testing.T) {
	ts := httptest.NewServer(Handler(&fakeAltimeter{}, Options{Version: "v1.2.3"}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/about")
	if err != nil {
		t.Fatalf("get about: %v", err)
	}
	defer resp.Body.Close()
	var about AboutResponse
	if err := json.NewDecoder(resp.Body).Decode(&about); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if about.Service != "baroalt" || about.Version != "v1.2.3" || about.GoVersion == "" {
		t.Fatalf("about=%+v", about)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, "127.0.0.1:0", Handler(&fakeAltimeter{}, Options{})) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve() err=%v want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}
}
