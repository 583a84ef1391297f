package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// Log is a report file read back into memory. Empty cells are NaN and the
// Setpoint Reached column is 1 or 0.
type Log struct {
	Columns []string
	Rows    [][]float64
}

// ReadLog parses a CSV report file.
func ReadLog(path string) (*Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()
	return ParseLog(f)
}

// ParseLog parses a CSV report.
func ParseLog(r io.Reader) (*Log, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cr.FieldsPerRecord = len(header)

	l := &Log{Columns: header}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := make([]float64, len(record))
		for i, cell := range record {
			switch cell {
			case "":
				row[i] = math.NaN()
			case "true", "True":
				row[i] = 1
			case "false", "False":
				row[i] = 0
			default:
				v, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d column %q: %w", line, header[i], err)
				}
				row[i] = v
			}
		}
		l.Rows = append(l.Rows, row)
	}
	return l, nil
}

// Column returns the values of the named column, or nil if there is none.
func (l *Log) Column(name string) []float64 {
	idx := -1
	for i, c := range l.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]float64, len(l.Rows))
	for i, row := range l.Rows {
		out[i] = row[idx]
	}
	return out
}
