package control

import "time"

// PID is a proportional-integral-derivative law with output clamped to [0, 1].
//
// With ProportionalOnMeasurement the proportional term acts on changes of the
// measurement rather than on the error, and the derivative term uses the
// measurement too, so a setpoint change does not kick the output.
type PID struct {
	base
	Kp, Ki, Kd float64

	ProportionalOnMeasurement bool

	// Now supplies the time used to integrate and differentiate. Defaults to time.Now.
	Now func() time.Time

	sum       float64 // integral term, including the proportional-on-measurement term
	prevInput float64
	prevErr   float64
	prevTime  time.Time
	first     bool
}

// NewPID creates a PID law.
func NewPID(name string, kp, ki, kd float64, opts ...Option) *PID {
	return &PID{
		base:  newBase(name, opts),
		Kp:    kp,
		Ki:    ki,
		Kd:    kd,
		Now:   time.Now,
		first: true,
	}
}

func (c *PID) Binary() bool { return false }

func (c *PID) ComputeEffort(measurement float64) Effort {
	e, ok := c.signedError(measurement)
	if !ok {
		return 0
	}
	if c.disabled {
		// Restart from a clean derivative when re-enabled.
		c.first = true
		return 0
	}

	now := c.Now()
	if c.first {
		c.prevInput = measurement
		c.prevErr = e
		c.prevTime = now
		c.first = false
	}

	dt := now.Sub(c.prevTime).Seconds()
	dInput := float64(c.direction) * (measurement - c.prevInput)

	if dt > 0 {
		c.sum += c.Ki * e * dt
	}
	if c.ProportionalOnMeasurement {
		c.sum -= c.Kp * dInput
	}
	c.sum = float64(Clamp(c.sum))

	out := c.sum
	if !c.ProportionalOnMeasurement {
		out += c.Kp * e
	}
	if dt > 0 {
		if c.ProportionalOnMeasurement {
			out -= c.Kd * dInput / dt
		} else {
			out += c.Kd * (e - c.prevErr) / dt
		}
	}

	c.prevInput = measurement
	c.prevErr = e
	c.prevTime = now

	return Clamp(out)
}

// Reset clears SetpointReached and the integral and derivative state.
func (c *PID) Reset() {
	c.reached = false
	c.sum = 0
	c.prevInput = 0
	c.prevErr = 0
	c.first = true
}

// Integral returns the accumulated integral term.
func (c *PID) Integral() float64 { return c.sum }
