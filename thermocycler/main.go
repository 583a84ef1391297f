// Command thermocycler runs heating programs on the thermocycler rig,
// calibrates its thermistor and plots recorded runs.
package main

import (
	"fmt"
	"os"

	"github.com/itohio/thermocycler/pkg/config"
	"github.com/itohio/thermocycler/pkg/report"
	"github.com/spf13/cobra"
)

var (
	configFile string
	portFlag   string
	mockFlag   bool
	kelvinFlag bool
	saveFlag   bool
	plotWidth  int
	plotHeight int
	plotCols   []string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "thermocycler",
		Short:        "thermistor-controlled heating programs",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "configuration file path")
	rootCmd.PersistentFlags().StringVarP(&portFlag, "port", "p", "", "serial port override (e.g. COM3 or /dev/ttyACM0)")
	rootCmd.PersistentFlags().BoolVar(&mockFlag, "mock", false, "use the simulated rig instead of the serial device")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the configured setpoint sequence",
		Args:  cobra.NoArgs,
		RunE:  runSequence,
	}

	calibrateCmd := &cobra.Command{
		Use:   "calibrate",
		Short: "fit thermistor coefficients from measured temperatures",
		Args:  cobra.NoArgs,
		RunE:  runCalibration,
	}
	calibrateCmd.Flags().BoolVar(&kelvinFlag, "kelvin", false, "enter temperatures in Kelvin")
	calibrateCmd.Flags().BoolVar(&saveFlag, "save", false, "write the fitted coefficients to the configuration file")

	readCmd := &cobra.Command{
		Use:   "read",
		Short: "print one temperature reading",
		Args:  cobra.NoArgs,
		RunE:  readTemperature,
	}
	readCmd.Flags().BoolVar(&kelvinFlag, "kelvin", false, "print the temperature in Kelvin")

	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "list serial ports",
		Args:  cobra.NoArgs,
		RunE:  listPorts,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [csv]",
		Short: "plot a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotLog,
	}
	plotCmd.Flags().IntVar(&plotWidth, "width", 80, "plot width")
	plotCmd.Flags().IntVar(&plotHeight, "height", 15, "plot height")
	plotCmd.Flags().StringSliceVar(&plotCols, "column", []string{report.ColumnTemp, report.ColumnSetpoint}, "columns to plot")

	rootCmd.AddCommand(runCmd, calibrateCmd, readCmd, portsCmd, plotCmd)
	return rootCmd
}

// loadConfig loads the configuration and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if portFlag != "" {
		cfg.Serial.Port = portFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
