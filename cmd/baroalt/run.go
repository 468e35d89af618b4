package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"baroalt/internal/altimeter"
	"baroalt/internal/web"
)

func NewRunCommand() *cobra.Command {
	var statusEvery time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Calibrate ground level and report altitude until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			logs := web.NewLogBuffer(500)
			logrus.AddHook(logs)
			rt.serveHTTP(ctx, cancel, logs)
			if err := rt.svc.Start(ctx); err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"device":             cfg.Baro.Device,
				"calibration_cycles": *cfg.Baro.CalibrationCycles,
				"loop_interval":      cfg.Baro.LoopInterval,
			}).Info("altimeter started")

			return reportStatus(ctx, cmd.OutOrStdout(), rt.svc, statusEvery)
		},
	}
	cmd.Flags().DurationVar(&statusEvery, "status-every", time.Second, "interval between status lines; 0 disables them")
	return cmd
}

func reportStatus(ctx context.Context, w io.Writer, svc *altimeter.Service, every time.Duration) error {
	if every <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			fmt.Fprintln(w, formatStatus(svc.Snapshot()))
		}
	}
}

func formatStatus(s altimeter.Snapshot) string {
	if !s.Ready {
		return color.YellowString("waiting for first reading")
	}
	if !s.Calibrated {
		return color.YellowString("calibrating: %d cycles left, pressure %s Pa",
			s.CalibrationRemaining, humanize.Comma(int64(s.PressurePa)))
	}
	line := fmt.Sprintf("alt %s cm  pressure %s Pa  temp %.2f C",
		humanize.Comma(int64(s.AltitudeCm)), humanize.Comma(int64(s.PressurePa)), s.TemperatureC)
	if s.LastError != "" {
		return color.RedString("%s  error: %s", line, s.LastError)
	}
	return color.GreenString(line)
}
