package main

import (
	"errors"
	"fmt"
	"log"

	"github.com/itohio/thermocycler/pkg/calibrate"
	"github.com/itohio/thermocycler/pkg/clock"
	"github.com/spf13/cobra"
)

func runCalibration(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	clk := clock.Real{}
	r, err := openRig(cfg, newDevice(cfg, mockFlag, clk.Now))
	if err != nil {
		return err
	}
	defer closeLogged("device", r)

	if _, err := r.waitReading(cmd.Context(), clk, unitFlag(), firstReadingTimeout); err != nil {
		log.Printf("Thermistor not ready: %v", err)
	}

	res, err := calibrate.NewSession(cmd.InOrStdin(), cmd.OutOrStdout(), r.probe, unitFlag()).Run()
	if errors.Is(err, calibrate.ErrAborted) {
		log.Printf("Calibration aborted")
		return nil
	}
	if err != nil {
		return err
	}

	if !saveFlag {
		return nil
	}
	cfg.Thermistor.BiasResistance = res.BiasResistance
	cfg.Thermistor.SetCoefficients(res.Coefficients)
	if err := cfg.Save(configFile); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved coefficients to %s\n", configFile)
	return nil
}
