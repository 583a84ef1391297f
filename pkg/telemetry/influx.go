package telemetry

import (
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/itohio/thermocycler/pkg/config"
	"github.com/itohio/thermocycler/pkg/report"
)

// PointWriter is the part of api.WriteAPI used by InfluxSink. Points are
// buffered and sent in the background; failures arrive on Errors.
type PointWriter interface {
	WritePoint(point *write.Point)
	Errors() <-chan error
	Flush()
}

// NewInfluxClient creates an InfluxDB client and its non-blocking write
// API. Closing the client flushes pending points.
func NewInfluxClient(cfg config.InfluxConfig) (influxdb2.Client, PointWriter) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return client, client.WriteAPI(cfg.Org, cfg.Bucket)
}

// InfluxSink stores report rows as points of one measurement, tagged with
// the run ID and the stage setpoint.
type InfluxSink struct {
	w           PointWriter
	measurement string
	runID       string
	efforts     []string

	mu      sync.Mutex
	lastErr error
}

// NewInfluxSink creates a sink writing through w. Background write failures
// are reported by the next WriteRow.
func NewInfluxSink(w PointWriter, measurement, runID string) *InfluxSink {
	s := &InfluxSink{w: w, measurement: measurement, runID: runID}
	go s.collectErrors(w.Errors())
	return s
}

func (s *InfluxSink) collectErrors(errs <-chan error) {
	for err := range errs {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
	}
}

func (s *InfluxSink) Open(_ time.Time, columns []string) error {
	s.efforts = effortNames(columns)
	return nil
}

func (s *InfluxSink) WriteRow(row report.Row) error {
	tags := map[string]string{}
	if s.runID != "" {
		tags["run_id"] = s.runID
	}
	fields := map[string]interface{}{
		"temperature":      row.Temperature,
		"elapsed":          row.Elapsed.Seconds(),
		"setpoint_reached": row.SetpointReached,
	}
	if row.HasSetpoint {
		tags["setpoint"] = fmt.Sprintf("%.1f", row.Setpoint)
		fields["setpoint"] = row.Setpoint
		fields["error"] = row.Error
	}
	for i, e := range row.Efforts {
		fields[effortName(s.efforts, i)] = float64(e)
	}

	s.w.WritePoint(influxdb2.NewPoint(s.measurement, tags, fields, row.Time))

	s.mu.Lock()
	err := s.lastErr
	s.lastErr = nil
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("write point: %w", err)
	}
	return nil
}

// Close sends the buffered points.
func (s *InfluxSink) Close() error {
	s.w.Flush()
	return nil
}
