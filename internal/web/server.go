// Package web serves the altimeter's HTTP API: live status, a recalibrate
// action, recent logs and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"baroalt/internal/altimeter"
)

const serviceName = "baroalt"

// Altimeter is the part of altimeter.Service the API needs.
type Altimeter interface {
	Snapshot() altimeter.Snapshot
	Recalibrate(ctx context.Context, cycles uint) error
}

type Options struct {
	// DefaultCycles is used by /api/calibrate when no cycles parameter is
	// given.
	DefaultCycles uint
	Version       string
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
	Logs     *LogBuffer
}

type StatusResponse struct {
	Service string `json:"service"`
	NowUTC  string `json:"now_utc"`

	Valid                bool   `json:"valid"`
	Ready                bool   `json:"ready"`
	Calibrated           bool   `json:"calibrated"`
	CalibrationRemaining uint   `json:"calibration_remaining"`
	Phase                string `json:"phase"`

	PressurePa   int32   `json:"pressure_pa"`
	TemperatureC float64 `json:"temperature_c"`
	AltitudeCm   int32   `json:"altitude_cm"`

	GroundPressurePa int32 `json:"ground_pressure_pa"`
	GroundAltitudeCm int32 `json:"ground_altitude_cm"`

	Steps   uint64 `json:"steps"`
	Updates uint64 `json:"updates"`
	Ticks   uint64 `json:"ticks"`

	LastError    string `json:"last_error,omitempty"`
	UpdatedAtUTC string `json:"updated_at_utc,omitempty"`
}

func statusResponse(now time.Time, s altimeter.Snapshot) StatusResponse {
	resp := StatusResponse{
		Service:              serviceName,
		NowUTC:               now.UTC().Format(time.RFC3339Nano),
		Valid:                s.Valid,
		Ready:                s.Ready,
		Calibrated:           s.Calibrated,
		CalibrationRemaining: s.CalibrationRemaining,
		Phase:                s.Phase,
		PressurePa:           s.PressurePa,
		TemperatureC:         s.TemperatureC,
		AltitudeCm:           s.AltitudeCm,
		GroundPressurePa:     s.GroundPressurePa,
		GroundAltitudeCm:     s.GroundAltitudeCm,
		Steps:                s.Steps,
		Updates:              s.Updates,
		Ticks:                s.Ticks,
		LastError:            s.LastError,
	}
	if !s.UpdatedAt.IsZero() {
		resp.UpdatedAtUTC = s.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return resp
}

func Handler(alt Altimeter, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, statusResponse(time.Now(), alt.Snapshot()))
	})

	mux.HandleFunc("/api/calibrate", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		cycles := opts.DefaultCycles
		if s := strings.TrimSpace(r.URL.Query().Get("cycles")); s != "" {
			v, err := strconv.ParseUint(s, 10, 32)
			if err != nil {
				http.Error(w, "cycles must be a non-negative integer", http.StatusBadRequest)
				return
			}
			cycles = uint(v)
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := alt.Recalibrate(ctx, cycles); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, struct {
			OK     bool `json:"ok"`
			Cycles uint `json:"cycles"`
		}{true, cycles})
	})

	if opts.Logs != nil {
		mux.Handle("/api/logs", opts.Logs.Handler())
	}
	mux.Handle("/api/about", AboutHandler(opts.Version))

	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		s := alt.Snapshot()
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><meta http-equiv=\"refresh\" content=\"1\"><title>baroalt</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>baroalt</h1>")
		_, _ = fmt.Fprintf(w, "<pre>calibrated=%t (%d cycles left)\npressure_pa=%d\ntemperature_c=%.2f\naltitude_cm=%d\nground_pressure_pa=%d\nlast_error=%s</pre>",
			s.Calibrated, s.CalibrationRemaining, s.PressurePa, s.TemperatureC, s.AltitudeCm, s.GroundPressurePa, html.EscapeString(s.LastError),
		)
		_, _ = fmt.Fprintf(w, "<p><a href=\"/api/status\">/api/status</a></p></body></html>")
	})

	return mux
}

// Serve runs the API on listenAddr until ctx is done.
func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}
