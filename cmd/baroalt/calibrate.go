package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"baroalt/internal/altimeter"
)

func NewCalibrateCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Run ground calibration once and print the baseline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			// The baseline is what this command is for; a replayed
			// altitude would not change it, so HIL stays off.
			cfg.HIL.Enable = false
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := rt.svc.Start(ctx); err != nil {
				return err
			}
			snap, err := waitCalibrated(ctx, rt.svc, cfg.Baro.LoopInterval)
			if err != nil {
				return err
			}
			printBaseline(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "give up if calibration has not finished by then")
	return cmd
}

type snapshotter interface {
	Snapshot() altimeter.Snapshot
}

// waitCalibrated polls until calibration has finished on at least one real
// reading, so the baseline is never built from an empty sensor.
func waitCalibrated(ctx context.Context, svc snapshotter, poll time.Duration) (altimeter.Snapshot, error) {
	t := time.NewTicker(poll)
	defer t.Stop()
	for {
		if s := svc.Snapshot(); s.Valid {
			return s, nil
		}
		select {
		case <-ctx.Done():
			s := svc.Snapshot()
			return s, errors.Wrapf(ctx.Err(), "calibration incomplete, %d cycles left", s.CalibrationRemaining)
		case <-t.C:
		}
	}
}

func printBaseline(w io.Writer, s altimeter.Snapshot) {
	bold := color.New(color.Bold)
	bold.Fprintln(w, "Ground baseline")
	fmt.Fprintf(w, "  pressure:    %s Pa\n", humanize.Comma(int64(s.GroundPressurePa)))
	fmt.Fprintf(w, "  altitude:    %s cm (%.1f m above sea-level reference)\n",
		humanize.Comma(int64(s.GroundAltitudeCm)), float64(s.GroundAltitudeCm)/100)
	fmt.Fprintf(w, "  temperature: %.2f C\n", s.TemperatureC)
	if s.LastError != "" {
		color.New(color.FgRed).Fprintf(w, "  last error:  %s\n", s.LastError)
	}
}
