package main

import (
	"fmt"

	"github.com/itohio/thermocycler/pkg/clock"
	"github.com/spf13/cobra"
)

func readTemperature(cmd *cobra.Command, args []string) error {
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

	unit := unitFlag()
	temp, err := r.waitReading(cmd.Context(), clk, unit, firstReadingTimeout)
	if err != nil {
		return err
	}
	resistance, _, err := r.probe.ReadResistance()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Temperature: %.2f %s\n", temp, unit)
	fmt.Fprintf(cmd.OutOrStdout(), "Resistance: %.1f Ohm\n", resistance)
	return nil
}
