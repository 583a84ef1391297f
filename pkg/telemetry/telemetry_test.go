package telemetry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/itohio/thermocycler/pkg/config"
	"github.com/itohio/thermocycler/pkg/control"
	"github.com/itohio/thermocycler/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ report.Sink = (*MQTTSink)(nil)
	_ report.Sink = (*InfluxSink)(nil)
	_ Publisher   = (*RealPublisher)(nil)
	_ Publisher   = (*FakePublisher)(nil)
)

var start = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func sampleRow() report.Row {
	return report.Row{
		Time:            start.Add(1500 * time.Millisecond),
		Elapsed:         1500 * time.Millisecond,
		Temperature:     41.25,
		Setpoint:        90,
		Error:           48.75,
		HasSetpoint:     true,
		Efforts:         []control.Effort{1, 0},
		SetpointReached: false,
	}
}

func TestEffortNames(t *testing.T) {
	assert.Equal(t, []string{"heater", "fan"}, effortNames(report.Columns("heater", "fan")))
	assert.Nil(t, effortNames(report.Columns()))
	assert.Nil(t, effortNames(nil))
	assert.Equal(t, "effort2", effortName([]string{"heater"}, 2))
}

func TestMQTTSink(t *testing.T) {
	pub := NewFakePublisher()
	sink := NewMQTTSink(pub, "lab/thermocycler", "run-1")

	require.NoError(t, sink.Open(start, report.Columns("heater", "fan")))
	require.NoError(t, sink.WriteRow(sampleRow()))
	require.NoError(t, sink.Close())

	require.Len(t, pub.Messages, 3)
	for _, m := range pub.Messages {
		assert.Equal(t, "lab/thermocycler", m.Topic)
	}

	var p Payload
	require.NoError(t, json.Unmarshal(pub.Messages[0].Payload, &p))
	assert.Equal(t, EventStart, p.Event)
	assert.Equal(t, "run-1", p.RunID)
	assert.Equal(t, "2024-05-01T10:00:00Z", p.Timestamp)

	p = Payload{}
	require.NoError(t, json.Unmarshal(pub.Messages[1].Payload, &p))
	assert.Equal(t, EventSample, p.Event)
	require.NotNil(t, p.Temperature)
	assert.Equal(t, 41.25, *p.Temperature)
	require.NotNil(t, p.Elapsed)
	assert.Equal(t, 1.5, *p.Elapsed)
	require.NotNil(t, p.Setpoint)
	assert.Equal(t, 90.0, *p.Setpoint)
	assert.Equal(t, map[string]float64{"heater": 1, "fan": 0}, p.Efforts)

	p = Payload{}
	require.NoError(t, json.Unmarshal(pub.Messages[2].Payload, &p))
	assert.Equal(t, EventStop, p.Event)
	assert.False(t, pub.Closed)
}

func TestMQTTSink_NoSetpoint(t *testing.T) {
	pub := NewFakePublisher()
	sink := NewMQTTSink(pub, "t", "")
	require.NoError(t, sink.Open(start, report.Columns("heater")))

	row := sampleRow()
	row.HasSetpoint = false
	row.Efforts = row.Efforts[:1]
	require.NoError(t, sink.WriteRow(row))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(pub.Messages[1].Payload, &raw))
	assert.NotContains(t, raw, "setpoint")
	assert.NotContains(t, raw, "error")
	assert.NotContains(t, raw, "run_id")
}

func TestMQTTSink_PublishError(t *testing.T) {
	pub := NewFakePublisher()
	pub.PublishError = errors.New("broker gone")
	sink := NewMQTTSink(pub, "t", "run")

	assert.Error(t, sink.Open(start, report.Columns()))
	assert.Error(t, sink.WriteRow(sampleRow()))
}

func TestMQTTSink_WithReporter(t *testing.T) {
	pub := NewFakePublisher()
	now := start
	r := report.New("mqtt", NewMQTTSink(pub, "t", "run"), 5*time.Second,
		report.WithClock(func() time.Time { return now }), report.WithEfforts("heater"))

	for i := 0; i < 21; i++ {
		require.NoError(t, r.Update(report.Snapshot{Temperature: 30, Valid: true, Efforts: []control.Effort{1}}))
		now = now.Add(time.Second)
	}
	// start + rows at 5, 10, 15 and 20 s
	assert.Len(t, pub.Messages, 5)
}

type recordingWriter struct {
	points  []*write.Point
	errs    chan error
	flushes int
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{errs: make(chan error)}
}

func (w *recordingWriter) WritePoint(point *write.Point) { w.points = append(w.points, point) }
func (w *recordingWriter) Errors() <-chan error         { return w.errs }
func (w *recordingWriter) Flush()                       { w.flushes++ }

func TestInfluxSink(t *testing.T) {
	w := newRecordingWriter()
	sink := NewInfluxSink(w, "thermocycler", "run-1")

	require.NoError(t, sink.Open(start, report.Columns("heater", "fan")))
	require.NoError(t, sink.WriteRow(sampleRow()))
	require.NoError(t, sink.Close())
	assert.Equal(t, 1, w.flushes)

	require.Len(t, w.points, 1)
	p := w.points[0]
	assert.Equal(t, "thermocycler", p.Name())
	assert.Equal(t, start.Add(1500*time.Millisecond), p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"run_id": "run-1", "setpoint": "90.0"}, tags)

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, 41.25, fields["temperature"])
	assert.Equal(t, 90.0, fields["setpoint"])
	assert.Equal(t, 48.75, fields["error"])
	assert.Equal(t, 1.0, fields["heater"])
	assert.Equal(t, 0.0, fields["fan"])
	assert.Equal(t, false, fields["setpoint_reached"])
}

func TestInfluxSink_NoSetpointNoRunID(t *testing.T) {
	w := newRecordingWriter()
	sink := NewInfluxSink(w, "m", "")
	require.NoError(t, sink.Open(start, report.Columns()))

	row := sampleRow()
	row.HasSetpoint = false
	row.Efforts = nil
	require.NoError(t, sink.WriteRow(row))

	require.Len(t, w.points, 1)
	assert.Empty(t, w.points[0].TagList())
	for _, f := range w.points[0].FieldList() {
		assert.NotEqual(t, "setpoint", f.Key)
	}
}

func TestInfluxSink_WriteError(t *testing.T) {
	w := newRecordingWriter()
	defer close(w.errs)
	sink := NewInfluxSink(w, "m", "run")
	require.NoError(t, sink.Open(start, report.Columns()))
	require.NoError(t, sink.WriteRow(sampleRow()))

	// The background failure surfaces once, on a later write.
	w.errs <- errors.New("unauthorized")
	var err error
	require.Eventually(t, func() bool {
		err = sink.WriteRow(sampleRow())
		return err != nil
	}, time.Second, time.Millisecond)
	assert.ErrorContains(t, err, "unauthorized")
	assert.NoError(t, sink.WriteRow(sampleRow()))
}

// stalledClient is a broker connection whose publishes never complete.
type stalledClient struct {
	paho.Client
	open   bool
	tokens []*stalledToken
}

func (c *stalledClient) IsConnectionOpen() bool { return c.open }

func (c *stalledClient) Publish(string, byte, bool, interface{}) paho.Token {
	tok := &stalledToken{}
	c.tokens = append(c.tokens, tok)
	return tok
}

type stalledToken struct {
	waited time.Duration
}

func (t *stalledToken) Wait() bool { return false }
func (t *stalledToken) WaitTimeout(d time.Duration) bool {
	t.waited = d
	return false
}
func (t *stalledToken) Done() <-chan struct{} { return make(chan struct{}) }
func (t *stalledToken) Error() error          { return nil }

func TestRealPublisher_BoundedWait(t *testing.T) {
	client := &stalledClient{open: true}
	pub := &RealPublisher{client: client}

	assert.ErrorContains(t, pub.Publish("lab/thermocycler", []byte("{}")), "timeout")
	require.Len(t, client.tokens, 1)
	assert.Equal(t, publishTimeout, client.tokens[0].waited)
	assert.Less(t, publishTimeout, config.Default().Loop.Interval*4)

	client.open = false
	assert.ErrorIs(t, pub.Publish("lab/thermocycler", []byte("{}")), ErrDisconnected)
	assert.Len(t, client.tokens, 1)
}
