package control

var (
	_ Law = (*InfiniteGain)(nil)
	_ Law = (*Proportional)(nil)
	_ Law = (*PID)(nil)
)

// InfiniteGain switches effort fully on whenever the signed error calls for
// more effort, which is proportional control with infinite gain.
type InfiniteGain struct {
	base
}

// NewInfiniteGain creates a bang-bang law.
func NewInfiniteGain(name string, opts ...Option) *InfiniteGain {
	return &InfiniteGain{base: newBase(name, opts)}
}

func (c *InfiniteGain) Binary() bool { return true }

func (c *InfiniteGain) ComputeEffort(measurement float64) Effort {
	e, ok := c.signedError(measurement)
	if !ok || c.disabled {
		return 0
	}
	return BinaryEffort(e > 0)
}

func (c *InfiniteGain) Reset() { c.reached = false }

// Proportional produces effort = clamp(gain · signed error, 0, 1).
type Proportional struct {
	base
	Gain float64
}

// NewProportional creates a proportional law.
func NewProportional(name string, gain float64, opts ...Option) *Proportional {
	return &Proportional{base: newBase(name, opts), Gain: gain}
}

func (c *Proportional) Binary() bool { return false }

func (c *Proportional) ComputeEffort(measurement float64) Effort {
	e, ok := c.signedError(measurement)
	if !ok || c.disabled {
		return 0
	}
	return Clamp(c.Gain * e)
}

func (c *Proportional) Reset() { c.reached = false }
