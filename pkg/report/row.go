package report

import (
	"strconv"
	"time"

	"github.com/itohio/thermocycler/pkg/control"
)

// Fixed column names of a report.
const (
	ColumnTime     = "Time (s)"
	ColumnTemp     = "Temperature (deg C)"
	ColumnSetpoint = "Setpoint (deg C)"
	ColumnError    = "Error (deg C)"
	ColumnReached  = "Setpoint Reached"
)

// Columns returns the header of a report tracking the named control efforts.
func Columns(efforts ...string) []string {
	cols := make([]string, 0, len(efforts)+5)
	cols = append(cols, ColumnTime, ColumnTemp, ColumnSetpoint, ColumnError)
	cols = append(cols, efforts...)
	return append(cols, ColumnReached)
}

// Snapshot is the controller state at one tick.
type Snapshot struct {
	Temperature     float64
	Valid           bool // false when the sensor gave no reading
	Setpoint        float64
	HasSetpoint     bool
	SetpointReached bool
	Efforts         []control.Effort
}

// Row is one report line.
type Row struct {
	Time            time.Time
	Elapsed         time.Duration
	Temperature     float64
	Setpoint        float64
	Error           float64
	HasSetpoint     bool
	Efforts         []control.Effort
	SetpointReached bool
}

func newRow(now time.Time, elapsed time.Duration, s Snapshot) Row {
	row := Row{
		Time:            now,
		Elapsed:         elapsed,
		Temperature:     s.Temperature,
		HasSetpoint:     s.HasSetpoint,
		Efforts:         s.Efforts,
		SetpointReached: s.SetpointReached,
	}
	if s.HasSetpoint {
		row.Setpoint = s.Setpoint
		row.Error = s.Setpoint - s.Temperature
	}
	return row
}

// Fields formats the row. Setpoint and error are empty without a setpoint so
// the row stays aligned with the header.
func (r Row) Fields() []string {
	fields := make([]string, 0, len(r.Efforts)+5)
	fields = append(fields,
		strconv.FormatFloat(r.Elapsed.Seconds(), 'f', 2, 64),
		strconv.FormatFloat(r.Temperature, 'f', 1, 64),
	)
	if r.HasSetpoint {
		fields = append(fields,
			strconv.FormatFloat(r.Setpoint, 'f', 1, 64),
			strconv.FormatFloat(r.Error, 'f', 1, 64),
		)
	} else {
		fields = append(fields, "", "")
	}
	for _, e := range r.Efforts {
		fields = append(fields, strconv.FormatFloat(float64(e), 'f', 2, 64))
	}
	return append(fields, strconv.FormatBool(r.SetpointReached))
}
