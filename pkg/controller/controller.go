// Package controller runs one control tick: read the sensor, update the
// heater (and optional fan) law, command the actuators and feed the
// reporters.
package controller

import (
	"errors"
	"fmt"
	"log"

	"github.com/itohio/thermocycler/pkg/control"
	"github.com/itohio/thermocycler/pkg/report"
	"github.com/itohio/thermocycler/pkg/thermistor"
)

// Sensor yields temperatures. ok is false when no reading is available.
type Sensor interface {
	Read(unit thermistor.Unit) (temp float64, ok bool, err error)
}

// Actuator accepts control efforts, either binary or a duty in [0, 1].
type Actuator interface {
	SetState(e control.Effort) error
}

// Tick is the outcome of one Update.
type Tick struct {
	Temperature float64
	Valid       bool // false when the sensor gave no reading
	Efforts     []control.Effort
}

type loop struct {
	law control.Law
	act Actuator
}

// Controller drives a heater, and optionally a fan, from one sensor.
type Controller struct {
	sensor Sensor
	unit   thermistor.Unit

	heater    loop
	fan       *loop
	fanOffset float64

	reporters []*report.Reporter

	temperature float64
	valid       bool
	efforts     []control.Effort
	reportErr   error
}

// Option configures a Controller.
type Option func(*Controller)

// WithFan adds a fan loop whose setpoint tracks the heater setpoint plus
// offset, so the fan only engages once the heater target is overshot.
func WithFan(law control.Law, act Actuator, offset float64) Option {
	return func(c *Controller) {
		c.fan = &loop{law: law, act: act}
		c.fanOffset = offset
	}
}

// WithReporters attaches reporters fed on every valid tick.
func WithReporters(reporters ...*report.Reporter) Option {
	return func(c *Controller) { c.reporters = append(c.reporters, reporters...) }
}

// WithUnit selects the temperature unit. Defaults to Celsius.
func WithUnit(u thermistor.Unit) Option {
	return func(c *Controller) { c.unit = u }
}

// New creates a controller for the heater law and actuator.
func New(sensor Sensor, heater control.Law, heaterAct Actuator, opts ...Option) *Controller {
	c := &Controller{
		sensor: sensor,
		unit:   thermistor.Celsius,
		heater: loop{law: heater, act: heaterAct},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.efforts = make([]control.Effort, len(c.loops()))
	return c
}

func (c *Controller) loops() []loop {
	if c.fan == nil {
		return []loop{c.heater}
	}
	return []loop{c.heater, *c.fan}
}

// Heater returns the heater law.
func (c *Controller) Heater() control.Law { return c.heater.law }

// Fan returns the fan law, if any.
func (c *Controller) Fan() (control.Law, bool) {
	if c.fan == nil {
		return nil, false
	}
	return c.fan.law, true
}

// EffortNames names the efforts in the order Update reports them.
func (c *Controller) EffortNames() []string {
	loops := c.loops()
	names := make([]string, len(loops))
	for i, l := range loops {
		names[i] = l.law.Name()
	}
	return names
}

func (c *Controller) Reporters() []*report.Reporter { return c.reporters }

// ReportErr returns the last reporter failure, if any.
func (c *Controller) ReportErr() error { return c.reportErr }

// Temperature returns the last valid reading.
func (c *Controller) Temperature() (float64, bool) { return c.temperature, c.valid }

// Efforts returns the last computed efforts.
func (c *Controller) Efforts() []control.Effort {
	return append([]control.Effort(nil), c.efforts...)
}

// SetSetpoint sets the heater setpoint and the offset fan setpoint.
// It reports whether the heater setpoint changed.
func (c *Controller) SetSetpoint(value float64) bool {
	if c.fan != nil {
		c.fan.law.SetSetpoint(value + c.fanOffset)
	}
	return c.heater.law.SetSetpoint(value)
}

// ClearSetpoint removes all setpoints. Actuators then keep their last state
// until Off is called.
func (c *Controller) ClearSetpoint() bool {
	if c.fan != nil {
		c.fan.law.ClearSetpoint()
	}
	return c.heater.law.ClearSetpoint()
}

// Setpoint returns the heater setpoint.
func (c *Controller) Setpoint() (float64, bool) { return c.heater.law.Setpoint() }

// SetpointReached reports whether the heater law has reached its setpoint.
func (c *Controller) SetpointReached() bool { return c.heater.law.SetpointReached() }

// Reset starts a new stage: stage reporters start new logs, laws forget
// SetpointReached and accumulated state, and efforts are zeroed.
// Sequence-scoped reporters are left alone.
func (c *Controller) Reset() error {
	var errs []error
	for _, r := range c.reporters {
		if r.SequenceScoped() {
			continue
		}
		if err := r.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, l := range c.loops() {
		l.law.Reset()
	}
	clear(c.efforts)
	return errors.Join(errs...)
}

// ResetSequenceReporters starts new logs on sequence-scoped reporters.
func (c *Controller) ResetSequenceReporters() error {
	var errs []error
	for _, r := range c.reporters {
		if !r.SequenceScoped() {
			continue
		}
		if err := r.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EnableReporters enables the reporters that follow the recording flag.
func (c *Controller) EnableReporters() {
	for _, r := range c.reporters {
		if r.Gated() {
			r.Enable()
		}
	}
}

// DisableReporters disables the reporters that follow the recording flag.
func (c *Controller) DisableReporters() {
	for _, r := range c.reporters {
		if r.Gated() {
			r.Disable()
		}
	}
}

// SetReportPrefix names the logs of every reporter.
func (c *Controller) SetReportPrefix(prefix string) {
	for _, r := range c.reporters {
		r.SetPrefix(prefix)
	}
}

// SetStageSuffix names the next logs of stage reporters.
func (c *Controller) SetStageSuffix(suffix string) {
	for _, r := range c.reporters {
		if !r.SequenceScoped() {
			r.SetSuffix(suffix)
		}
	}
}

// SetSequenceSuffix names the next logs of sequence-scoped reporters.
func (c *Controller) SetSequenceSuffix(suffix string) {
	for _, r := range c.reporters {
		if r.SequenceScoped() {
			r.SetSuffix(suffix)
		}
	}
}

// Read takes a reading without updating laws, actuators or reporters.
// A sensor that is unavailable reports ok false.
func (c *Controller) Read() (float64, bool, error) {
	temp, ok, err := c.sensor.Read(c.unit)
	if errors.Is(err, thermistor.ErrSensorUnavailable) {
		return 0, false, nil
	}
	return temp, ok, err
}

// Update runs one tick. Without a reading it leaves actuators in their last
// commanded state and skips reporting. An actuator is commanded only while
// its law has a setpoint. Reporter failures are logged and kept in
// ReportErr; only sensor and actuator failures are returned.
func (c *Controller) Update() (Tick, error) {
	temp, ok, err := c.sensor.Read(c.unit)
	if err != nil {
		if errors.Is(err, thermistor.ErrSensorUnavailable) {
			return Tick{}, nil
		}
		return Tick{}, fmt.Errorf("read sensor: %w", err)
	}
	if !ok {
		return Tick{}, nil
	}
	c.temperature = temp
	c.valid = true

	var errs []error
	for i, l := range c.loops() {
		l.law.Update(temp)
		e := l.law.ComputeEffort(temp)
		c.efforts[i] = e
		if _, has := l.law.Setpoint(); !has {
			continue
		}
		if err := l.act.SetState(e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", l.law.Name(), err))
		}
	}

	sp, hasSP := c.heater.law.Setpoint()
	snap := report.Snapshot{
		Temperature:     temp,
		Valid:           true,
		Setpoint:        sp,
		HasSetpoint:     hasSP,
		SetpointReached: c.heater.law.SetpointReached(),
		Efforts:         c.Efforts(),
	}
	for _, r := range c.reporters {
		if err := r.Update(snap); err != nil {
			log.Printf("Report failed: %v", err)
			c.reportErr = err
		}
	}

	return Tick{Temperature: temp, Valid: true, Efforts: snap.Efforts}, errors.Join(errs...)
}

// Off commands every actuator off and zeroes the efforts.
func (c *Controller) Off() error {
	var errs []error
	for i, l := range c.loops() {
		c.efforts[i] = 0
		if err := l.act.SetState(0); err != nil {
			errs = append(errs, fmt.Errorf("%s off: %w", l.law.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close ends every reporter's log.
func (c *Controller) Close() error {
	var errs []error
	for _, r := range c.reporters {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
