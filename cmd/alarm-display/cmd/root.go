package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/alarm-display/internal/config"
	"github.com/oshokin/alarm-display/internal/service/panel"
	"github.com/oshokin/alarm-display/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides the log level from the configuration file.
	logLevel string

	// rootCmd represents the base command for running the display node.
	rootCmd = &cobra.Command{
		Use:   "alarm-display",
		Short: "Run the alarm panel display node.",
		Long: `Runs an alarm panel display node.

Badge scans and keypad PINs are forwarded to the controlling system over MQTT.
The alarm state is taken only from the broker and shown on the terminal,
including the entry delay countdown while the alarm is pending.
A watchdog reboots the machine (or exits, see restart_mode) if the control loop stalls.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return panel.Run(ctx, &panel.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
			})
		},
	}
)

// Execute runs the alarm-display CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}
