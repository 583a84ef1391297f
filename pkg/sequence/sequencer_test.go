package sequence

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/itohio/thermocycler/pkg/clock"
	"github.com/itohio/thermocycler/pkg/config"
	"github.com/itohio/thermocycler/pkg/control"
	"github.com/itohio/thermocycler/pkg/controller"
	"github.com/itohio/thermocycler/pkg/device"
	"github.com/itohio/thermocycler/pkg/report"
	"github.com/itohio/thermocycler/pkg/thermistor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rampSensor moves linearly toward the heater setpoint and stops there.
type rampSensor struct {
	clk  *clock.Fake
	law  control.Law
	temp float64
	rate float64 // deg C/s
	last time.Time
}

func (r *rampSensor) Read(thermistor.Unit) (float64, bool, error) {
	now := r.clk.Now()
	dt := now.Sub(r.last).Seconds()
	r.last = now
	if sp, ok := r.law.Setpoint(); ok {
		step := r.rate * dt
		if r.temp < sp {
			r.temp = math.Min(sp, r.temp+step)
		} else {
			r.temp = math.Max(sp, r.temp-step)
		}
	}
	return r.temp, true, nil
}

type recordingActuator struct {
	states []control.Effort
}

func (a *recordingActuator) SetState(e control.Effort) error {
	a.states = append(a.states, e)
	return nil
}

type rampRig struct {
	clk    *clock.Fake
	sensor *rampSensor
	heater *recordingActuator
	ctrl   *controller.Controller
	dir    string
}

func newRampRig(t *testing.T, start float64) *rampRig {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	law := control.NewInfiniteGain("heater", control.WithEpsilon(0.5))
	sensor := &rampSensor{clk: clk, law: law, temp: start, rate: 1, last: clk.Now()}
	act := &recordingActuator{}
	dir := t.TempDir()

	file := report.New("file", report.NewFileSink(dir, "", ""), time.Second,
		report.WithClock(clk.Now), report.WithEfforts("heater"), report.Gated())
	console := report.New("console", report.NewConsoleSink(&bytes.Buffer{}), report.DefaultConsoleInterval,
		report.WithClock(clk.Now), report.WithEfforts("heater"))

	ctrl := controller.New(sensor, law, act, controller.WithReporters(file, console))
	return &rampRig{clk: clk, sensor: sensor, heater: act, ctrl: ctrl, dir: dir}
}

func (r *rampRig) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(r.dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestSequencer_TwoStages(t *testing.T) {
	rig := newRampRig(t, 25)
	seq := Sequence{Records: []Record{
		{Value: 90, Duration: Minutes(10), Recording: true},
		{Value: 40, Duration: Minutes(10), Recording: true},
	}}

	var events []Event
	s := New(rig.ctrl, seq,
		WithClock(rig.clk),
		WithPollInterval(100*time.Millisecond),
		WithStateHook(func(e Event) { events = append(events, e) }))

	require.NoError(t, s.Run(context.Background()))
	require.NoError(t, rig.ctrl.Close())
	assert.False(t, s.Cancelled())
	assert.Equal(t, Idle, s.State())

	// Exactly one log per recorded stage, each restarting from zero.
	names := rig.files(t)
	require.Len(t, names, 2)
	stages := map[string]float64{"_setpoint90.0,10.0.csv": 25, "_setpoint40.0,10.0.csv": 90}
	for suffix, firstTemp := range stages {
		var path string
		for _, n := range names {
			if strings.HasSuffix(n, suffix) {
				path = filepath.Join(rig.dir, n)
			}
		}
		require.NotEmpty(t, path, suffix)

		l, err := report.ReadLog(path)
		require.NoError(t, err)
		assert.Equal(t, report.Columns("heater"), l.Columns)
		times := l.Column(report.ColumnTime)
		require.NotEmpty(t, times)
		assert.InDelta(t, 1.0, times[0], 0.15)
		assert.InDelta(t, firstTemp, l.Column(report.ColumnTemp)[0], 1.5)
	}

	// The heater runs until 90 deg C is reached, then stays off.
	require.NotEmpty(t, rig.heater.states)
	assert.Equal(t, control.Effort(1), rig.heater.states[0])
	firstOff := -1
	for i, e := range rig.heater.states {
		if e == 0 {
			firstOff = i
			break
		}
	}
	require.Positive(t, firstOff)
	for _, e := range rig.heater.states[firstOff:] {
		assert.Equal(t, control.Effort(0), e)
	}

	// approaching, holding for each stage, then idle.
	var states []State
	for _, e := range events {
		states = append(states, e.State)
		assert.Equal(t, s.RunID(), e.RunID)
	}
	assert.Equal(t, []State{Approaching, Holding, Approaching, Holding, Idle}, states)
	assert.Equal(t, 1, events[2].Index)
	assert.Equal(t, Main, events[2].Phase)
}

func TestSequencer_CancelMidHold(t *testing.T) {
	rig := newRampRig(t, 25)
	seq := Sequence{Records: []Record{
		{Value: 90, Duration: Minutes(10), Recording: true},
		{Value: 40, Duration: Minutes(10), Recording: true},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(rig.ctrl, seq,
		WithClock(rig.clk),
		WithPollInterval(100*time.Millisecond),
		WithStateHook(func(e Event) {
			if e.State == Holding && e.Index == 0 {
				cancel()
			}
		}))

	require.NoError(t, s.Run(ctx))
	assert.True(t, s.Cancelled())
	assert.Equal(t, Idle, s.State())

	// The heater was still on when the setpoint was reached; the last command is off.
	n := len(rig.heater.states)
	require.GreaterOrEqual(t, n, 2)
	assert.Equal(t, control.Effort(1), rig.heater.states[n-2])
	assert.Equal(t, control.Effort(0), rig.heater.states[n-1])
	_, hasSetpoint := rig.ctrl.Setpoint()
	assert.False(t, hasSetpoint)

	names := rig.files(t)
	assert.Len(t, names, 1)
}

// deadlineSensor cancels the run once the fake clock passes deadline.
type deadlineSensor struct {
	controller.Sensor
	clk      *clock.Fake
	deadline time.Time
	cancel   context.CancelFunc
}

func (d *deadlineSensor) Read(unit thermistor.Unit) (float64, bool, error) {
	if !d.clk.Now().Before(d.deadline) {
		d.cancel()
	}
	return d.Sensor.Read(unit)
}

func TestSequencer_CancelIndefiniteHold(t *testing.T) {
	rig := newRampRig(t, 25)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deadline := rig.clk.Now().Add(time.Hour)
	sensor := &deadlineSensor{Sensor: rig.sensor, clk: rig.clk, deadline: deadline, cancel: cancel}
	ctrl := controller.New(sensor, rig.sensor.law, rig.heater)

	holds := 0
	s := New(ctrl, Sequence{Records: []Record{{Value: 30}}},
		WithClock(rig.clk),
		WithPollInterval(time.Second),
		WithStateHook(func(e Event) {
			if e.State == Holding {
				holds++
			}
		}))

	require.NoError(t, s.Run(ctx))
	assert.True(t, s.Cancelled())
	assert.Equal(t, 1, holds)
	assert.False(t, rig.clk.Now().Before(deadline))
	assert.Equal(t, control.Effort(0), rig.heater.states[len(rig.heater.states)-1])
}

func TestSequencer_PreflightArming(t *testing.T) {
	rig := newRampRig(t, 25)
	seq := Sequence{
		Preflight:  &Record{Value: 20, Duration: Minutes(0)},
		Records:    []Record{{Value: 30, Duration: Minutes(0), Recording: true}},
		Postflight: &Record{Value: 50, Duration: Minutes(0)},
	}

	armed := map[Phase]bool{}
	s := New(rig.ctrl, seq,
		WithClock(rig.clk),
		WithPollInterval(100*time.Millisecond),
		WithStateHook(func(e Event) {
			if e.State == Approaching {
				armed[e.Phase] = rig.ctrl.Heater().Enabled()
			}
		}))

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, map[Phase]bool{Preflight: false, Main: true, Postflight: true}, armed)

	// Only the recorded main stage produced a log.
	names := rig.files(t)
	require.Len(t, names, 1)
	assert.True(t, strings.HasSuffix(names[0], "_setpoint30.0,0.0.csv"))
}

func TestSequencer_RunIDs(t *testing.T) {
	rig := newRampRig(t, 25)
	a := New(rig.ctrl, Sequence{})
	b := New(rig.ctrl, Sequence{})
	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
	assert.Equal(t, "run-1", New(rig.ctrl, Sequence{}, WithRunID("run-1")).RunID())
}

func TestSequencer_MockPlant(t *testing.T) {
	cfg := config.Default()
	cfg.Mock.NoiseLevel = 0
	clk := clock.NewFake(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	dev := device.NewMock(&cfg.Mock, cfg.Thermistor, clk.Now)
	require.NoError(t, dev.Connect())
	defer dev.Close()

	ref, err := device.NewAnalogChannel(dev, cfg.Thermistor.ReferenceChannel, cfg.ADC.Gain)
	require.NoError(t, err)
	sens, err := device.NewAnalogChannel(dev, cfg.Thermistor.SensorChannel, cfg.ADC.Gain)
	require.NoError(t, err)
	probe := thermistor.New(ref, sens, cfg.Thermistor.BiasResistance, cfg.Thermistor.Coefficients())

	heater := control.NewInfiniteGain("heater", control.WithEpsilon(0.5))
	fan := control.NewInfiniteGain("fan", control.WithEpsilon(0.5), control.WithDirection(control.Decreasing))

	dir := t.TempDir()
	efforts := report.WithEfforts("heater", "fan")
	stageLog := report.New("file", report.NewFileSink(dir, "", ""), report.DefaultFileInterval,
		report.WithClock(clk.Now), efforts, report.Gated())
	seqLog := report.New("sequence", report.NewFileSink(dir, "", ""), report.DefaultFileInterval,
		report.WithClock(clk.Now), efforts, report.Gated(), report.SequenceScoped())

	ctrl := controller.New(probe, heater, device.NewHeaterActuator(dev),
		controller.WithFan(fan, device.NewFanActuator(dev), cfg.Fan.SetpointOffset),
		controller.WithReporters(stageLog, seqLog))

	seq := Sequence{
		Name:       "lysis",
		Preflight:  &Record{Value: 25, Duration: Minutes(0)},
		Records:    []Record{{Value: 60, Duration: Minutes(1), Recording: true}, {Value: 40, Duration: Minutes(1), Recording: true}},
		Postflight: &Record{Value: 25, Duration: Minutes(0)},
	}
	s := New(ctrl, seq, WithClock(clk), WithPollInterval(cfg.Loop.Interval))

	require.NoError(t, s.Run(context.Background()))
	require.NoError(t, ctrl.Close())

	assert.Equal(t, 0.0, dev.Heater())
	assert.False(t, dev.Fan())
	assert.Less(t, dev.Temperature(), 26.0)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Len(t, names, 3)

	var seqFile string
	for _, n := range names {
		assert.True(t, strings.HasPrefix(n, "lysis_"), n)
		if strings.HasSuffix(n, "_setpoints60.0,1.0-40.0,1.0.csv") {
			seqFile = n
		}
	}
	require.NotEmpty(t, seqFile)

	l, err := report.ReadLog(filepath.Join(dir, seqFile))
	require.NoError(t, err)
	temps := l.Column(report.ColumnTemp)
	require.NotEmpty(t, temps)
	assert.Greater(t, slicesMax(temps), 59.5)
	assert.Less(t, temps[len(temps)-1], 41.0)
}

func TestSequencer_MockPlantConfiguredLaws(t *testing.T) {
	cfg := config.Default()
	cfg.Mock.NoiseLevel = 0
	require.Equal(t, config.LawPID, cfg.Heater.Type)
	require.True(t, cfg.Heater.ProportionalOnMeasurement)
	clk := clock.NewFake(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))

	dev := device.NewMock(&cfg.Mock, cfg.Thermistor, clk.Now)
	require.NoError(t, dev.Connect())
	defer dev.Close()

	ref, err := device.NewAnalogChannel(dev, cfg.Thermistor.ReferenceChannel, cfg.ADC.Gain)
	require.NoError(t, err)
	sens, err := device.NewAnalogChannel(dev, cfg.Thermistor.SensorChannel, cfg.ADC.Gain)
	require.NoError(t, err)
	probe := thermistor.New(ref, sens, cfg.Thermistor.BiasResistance, cfg.Thermistor.Coefficients())

	heater, err := controller.NewLaw("heater", cfg.Heater, clk.Now)
	require.NoError(t, err)
	fan, err := controller.NewLaw("fan", cfg.Fan.Control, clk.Now)
	require.NoError(t, err)

	dir := t.TempDir()
	seqLog := report.New("sequence", report.NewFileSink(dir, "", ""), report.DefaultFileInterval,
		report.WithClock(clk.Now), report.WithEfforts("heater", "fan"), report.Gated(), report.SequenceScoped())

	// A stuck loop ends at the deadline instead of hanging the test.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sensor := &deadlineSensor{Sensor: probe, clk: clk, deadline: clk.Now().Add(2 * time.Hour), cancel: cancel}

	ctrl := controller.New(sensor, heater, device.NewHeaterActuator(dev),
		controller.WithFan(fan, device.NewFanActuator(dev), cfg.Fan.SetpointOffset),
		controller.WithReporters(seqLog))

	seq := FromConfig(cfg.Sequence)
	seq.Records = []Record{{Value: 60, Duration: Minutes(1), Recording: true}, {Value: 40, Duration: Minutes(1), Recording: true}}
	s := New(ctrl, seq, WithClock(clk), WithPollInterval(cfg.Loop.Interval))

	require.NoError(t, s.Run(ctx))
	require.NoError(t, ctrl.Close())
	assert.False(t, s.Cancelled())

	assert.Equal(t, 0.0, dev.Heater())
	assert.False(t, dev.Fan())
	assert.Less(t, dev.Temperature(), 26.0)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	l, err := report.ReadLog(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	temps := l.Column(report.ColumnTemp)
	require.NotEmpty(t, temps)
	assert.Greater(t, slicesMax(temps), 59.5)
	assert.InDelta(t, 40, temps[len(temps)-1], 1.5)

	// The PID drives a partial duty rather than switching fully on and off.
	partial := false
	for _, e := range l.Column("heater") {
		if e > 0.01 && e < 0.99 {
			partial = true
			break
		}
	}
	assert.True(t, partial)
}

func slicesMax(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}
