package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/itohio/thermocycler/pkg/report"
)

// Publisher publishes payloads to an MQTT broker.
type Publisher interface {
	// Publish sends payload to topic.
	Publish(topic string, payload []byte) error

	// Close disconnects from the broker.
	Close() error
}

// Events carried in Payload.Event.
const (
	EventStart  = "start"
	EventSample = "sample"
	EventStop   = "stop"
)

// Payload represents the MQTT message payload structure.
type Payload struct {
	RunID           string             `json:"run_id,omitempty"`
	Event           string             `json:"event"`
	Timestamp       string             `json:"timestamp"`
	Elapsed         *float64           `json:"elapsed,omitempty"`
	Temperature     *float64           `json:"temperature,omitempty"`
	Setpoint        *float64           `json:"setpoint,omitempty"`
	Error           *float64           `json:"error,omitempty"`
	Efforts         map[string]float64 `json:"efforts,omitempty"`
	SetpointReached bool               `json:"setpoint_reached,omitempty"`
}

// MQTTSink publishes report rows as JSON.
type MQTTSink struct {
	pub     Publisher
	topic   string
	runID   string
	efforts []string
}

// NewMQTTSink creates a sink publishing to topic.
func NewMQTTSink(pub Publisher, topic, runID string) *MQTTSink {
	return &MQTTSink{pub: pub, topic: topic, runID: runID}
}

func (s *MQTTSink) Open(start time.Time, columns []string) error {
	s.efforts = effortNames(columns)
	return s.publish(Payload{
		Event:     EventStart,
		Timestamp: start.UTC().Format(time.RFC3339Nano),
	})
}

func (s *MQTTSink) WriteRow(row report.Row) error {
	elapsed, temp := row.Elapsed.Seconds(), row.Temperature
	p := Payload{
		Event:           EventSample,
		Timestamp:       row.Time.UTC().Format(time.RFC3339Nano),
		Elapsed:         &elapsed,
		Temperature:     &temp,
		SetpointReached: row.SetpointReached,
		Efforts:         make(map[string]float64, len(row.Efforts)),
	}
	if row.HasSetpoint {
		sp, e := row.Setpoint, row.Error
		p.Setpoint = &sp
		p.Error = &e
	}
	for i, e := range row.Efforts {
		p.Efforts[effortName(s.efforts, i)] = float64(e)
	}
	return s.publish(p)
}

// Close announces the end of the log. The publisher stays connected.
func (s *MQTTSink) Close() error {
	return s.publish(Payload{
		Event:     EventStop,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *MQTTSink) publish(p Payload) error {
	p.RunID = s.runID
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return s.pub.Publish(s.topic, payload)
}
