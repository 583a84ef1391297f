// Package sequence steps a controller through an ordered list of setpoints.
//
// Each record is approached until the heater law reports its setpoint
// reached, then held for the record's duration. Optional preflight and
// postflight records park the rig at a known temperature before and after
// the main sequence.
package sequence

import (
	"fmt"
	"strings"
	"time"

	"github.com/itohio/thermocycler/pkg/config"
)

// Record is one setpoint stage.
type Record struct {
	Value     float64        // deg C
	Duration  *time.Duration // nil holds until cancelled
	Recording bool
}

// Minutes is a helper for building hold durations.
func Minutes(m float64) *time.Duration {
	d := time.Duration(m * float64(time.Minute))
	return &d
}

// Sequence is the setpoint program.
type Sequence struct {
	Name       string
	Preflight  *Record
	Postflight *Record
	Records    []Record
}

// FromConfig converts the configured program.
func FromConfig(cfg config.SequenceConfig) Sequence {
	seq := Sequence{
		Name:    cfg.Name,
		Records: make([]Record, len(cfg.Records)),
	}
	for i, r := range cfg.Records {
		seq.Records[i] = recordFromConfig(r)
	}
	if cfg.Preflight != nil {
		r := recordFromConfig(*cfg.Preflight)
		seq.Preflight = &r
	}
	if cfg.Postflight != nil {
		r := recordFromConfig(*cfg.Postflight)
		seq.Postflight = &r
	}
	return seq
}

func recordFromConfig(r config.RecordConfig) Record {
	rec := Record{Value: r.Value, Recording: r.Recording}
	if r.Duration != nil {
		d := *r.Duration
		rec.Duration = &d
	}
	return rec
}

func (r Record) durationLabel() string {
	if r.Duration == nil {
		return "inf"
	}
	return fmt.Sprintf("%.1f", r.Duration.Minutes())
}

// StageSuffix names the log of a single stage, e.g. "_setpoint90.0,10.0".
func StageSuffix(r Record) string {
	return fmt.Sprintf("_setpoint%.1f,%s", r.Value, r.durationLabel())
}

// SequenceSuffix names the log spanning the main records,
// e.g. "_setpoints90.0,10.0-40.0,10.0".
func SequenceSuffix(records []Record) string {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = fmt.Sprintf("%.1f,%s", r.Value, r.durationLabel())
	}
	return "_setpoints" + strings.Join(parts, "-")
}

// Prefix is the log prefix of a named sequence.
func Prefix(name string) string {
	if name == "" {
		return ""
	}
	return name + "_"
}
