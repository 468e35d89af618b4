package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	logLevel   = "info"
	configPath = "./baroalt.yaml"
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.StampMilli,
	})
	return nil
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baroalt",
		Short: "baroalt estimates altitude above ground from a barometric pressure sensor",
		Long: `baroalt drives a BMP085/BMP180 or BMP280 pressure sensor (or a simulated one),
calibrates a ground reference at startup and reports altitude above it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", logLevel, "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVarP(&configPath, "config", "c", configPath, "YAML config path; missing file means built-in defaults")

	cmd.AddCommand(
		NewRunCommand(),
		NewCalibrateCommand(),
		NewVersionCommand(),
	)
	return cmd
}

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func main() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
