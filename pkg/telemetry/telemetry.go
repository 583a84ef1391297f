// Package telemetry forwards report rows to remote systems: an MQTT broker
// for live dashboards and InfluxDB for long-term storage. Both sinks
// implement report.Sink and are driven by their own Reporter.
package telemetry

import (
	"strconv"

	"github.com/itohio/thermocycler/pkg/report"
)

// effortNames extracts the effort column names from a report header.
func effortNames(columns []string) []string {
	n := len(report.Columns())
	if len(columns) <= n {
		return nil
	}
	return append([]string(nil), columns[n-1:len(columns)-1]...)
}

// effortName names effort i, falling back to its position.
func effortName(names []string, i int) string {
	if i < len(names) {
		return names[i]
	}
	return "effort" + strconv.Itoa(i)
}
