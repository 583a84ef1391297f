// Package control provides feedback control laws for a single process
// variable.
//
// All laws share the [Law] contract:
//
//   - [InfiniteGain]: bang-bang control, effort is on or off
//   - [Proportional]: effort proportional to the error
//   - [PID]: proportional-integral-derivative control, optionally
//     proportional on measurement
//
// Efforts are clamped to [0, 1]. The [Direction] of a law states whether
// effort raises or lowers the process variable; it is applied uniformly to
// the error of every law.
package control

import "math"

// Direction is the sign of the process response to control effort.
type Direction float64

const (
	// Increasing effort raises the process variable (heater).
	Increasing Direction = 1
	// Decreasing effort lowers the process variable (fan, cooler).
	Decreasing Direction = -1
)

// Effort is an actuator command in [0, 1]. Binary laws emit 0 or 1.
type Effort float64

// BinaryEffort converts an on/off command to an Effort.
func BinaryEffort(on bool) Effort {
	if on {
		return 1
	}
	return 0
}

// On reports whether the effort commands any actuation.
func (e Effort) On() bool { return e > 0 }

// Clamp limits e to [0, 1].
func Clamp(e float64) Effort {
	return Effort(math.Min(1, math.Max(0, e)))
}

// Law is a feedback control law. Measurements passed to a law are always
// valid; callers skip the law entirely when no measurement is available.
type Law interface {
	Name() string
	// Binary reports whether the law emits on/off efforts.
	Binary() bool

	// SetSetpoint replaces the setpoint, reporting whether it changed.
	SetSetpoint(value float64) bool
	// ClearSetpoint unsets the setpoint, reporting whether it changed.
	ClearSetpoint() bool
	Setpoint() (float64, bool)

	// ComputeError returns setpoint − measurement; ok is false without a setpoint.
	ComputeError(measurement float64) (float64, bool)
	// ComputeSetpointReached reports |error| < epsilon; ok is false without a setpoint.
	ComputeSetpointReached(measurement float64) (reached, ok bool)
	// Update latches SetpointReached once the measurement is within epsilon.
	Update(measurement float64)
	SetpointReached() bool
	// ResetSetpointReached clears the latched SetpointReached flag.
	ResetSetpointReached()

	// ComputeEffort returns the control effort for measurement.
	ComputeEffort(measurement float64) Effort
	// Reset clears SetpointReached and any accumulated state.
	Reset()

	Enable()
	Disable()
	Enabled() bool
}

// Option configures the shared state of a law.
type Option func(*base)

// WithSetpoint sets the initial setpoint.
func WithSetpoint(value float64) Option {
	return func(b *base) {
		b.setpoint = value
		b.hasSetpoint = true
	}
}

// WithEpsilon sets the hysteresis band for SetpointReached.
func WithEpsilon(eps float64) Option {
	return func(b *base) { b.epsilon = eps }
}

// WithDirection sets the control direction.
func WithDirection(d Direction) Option {
	return func(b *base) { b.direction = d }
}

// WithSetpointHook registers fn to be called after every setpoint change.
// ok is false when the setpoint was cleared.
func WithSetpointHook(fn func(value float64, ok bool)) Option {
	return func(b *base) { b.onSetpoint = fn }
}

// base holds the setpoint bookkeeping shared by all laws.
type base struct {
	name        string
	setpoint    float64
	hasSetpoint bool
	epsilon     float64
	direction   Direction
	reached     bool
	disabled    bool

	onSetpoint func(value float64, ok bool)
}

func newBase(name string, opts []Option) base {
	b := base{name: name, direction: Increasing}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b *base) Name() string { return b.name }

func (b *base) Setpoint() (float64, bool) { return b.setpoint, b.hasSetpoint }

func (b *base) SetSetpoint(value float64) bool {
	if b.hasSetpoint && b.setpoint == value {
		return false
	}
	b.setpoint = value
	b.hasSetpoint = true
	b.reached = false
	if b.onSetpoint != nil {
		b.onSetpoint(value, true)
	}
	return true
}

func (b *base) ClearSetpoint() bool {
	if !b.hasSetpoint {
		return false
	}
	b.setpoint = 0
	b.hasSetpoint = false
	b.reached = false
	if b.onSetpoint != nil {
		b.onSetpoint(0, false)
	}
	return true
}

func (b *base) ComputeError(measurement float64) (float64, bool) {
	if !b.hasSetpoint {
		return 0, false
	}
	return b.setpoint - measurement, true
}

// signedError is the error multiplied by the control direction, so positive
// values always call for more effort.
func (b *base) signedError(measurement float64) (float64, bool) {
	e, ok := b.ComputeError(measurement)
	if !ok {
		return 0, false
	}
	return float64(b.direction) * e, true
}

func (b *base) ComputeSetpointReached(measurement float64) (bool, bool) {
	e, ok := b.ComputeError(measurement)
	if !ok {
		return false, false
	}
	return math.Abs(e) < b.epsilon, true
}

func (b *base) Update(measurement float64) {
	if !b.hasSetpoint {
		b.reached = false
		return
	}
	if reached, _ := b.ComputeSetpointReached(measurement); reached {
		b.reached = true
	}
}

func (b *base) SetpointReached() bool { return b.reached }

func (b *base) ResetSetpointReached() { b.reached = false }

func (b *base) Enable()       { b.disabled = false }
func (b *base) Disable()      { b.disabled = true }
func (b *base) Enabled() bool { return !b.disabled }
