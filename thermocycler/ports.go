package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/itohio/thermocycler/pkg/device"
	"github.com/spf13/cobra"
)

func listPorts(cmd *cobra.Command, args []string) error {
	ports, err := device.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no serial ports found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PORT\tDESCRIPTION")
	for _, p := range ports {
		fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Description)
	}
	return w.Flush()
}
