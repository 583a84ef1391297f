// Package gpio drives digital actuators, such as the cooling fan, from a
// GPIO output line. The real implementation uses the Linux GPIO character
// device; the fake records commanded states for tests.
package gpio

import "github.com/itohio/thermocycler/pkg/control"

// Pin is a digital output.
type Pin interface {
	// Set drives the line high (true) or low.
	Set(on bool) error
	// Close releases the line.
	Close() error
}

// Actuator switches a Pin from a control effort.
type Actuator struct {
	pin Pin
}

func NewActuator(pin Pin) *Actuator {
	return &Actuator{pin: pin}
}

// SetState drives the pin high for any positive effort.
func (a *Actuator) SetState(e control.Effort) error {
	return a.pin.Set(e.On())
}
