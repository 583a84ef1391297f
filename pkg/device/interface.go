// Package device talks to the thermal rig: the MCU that samples the
// thermistor divider and drives the heater and fan, or a simulated plant
// standing in for it.
package device

import "errors"

var (
	ErrNotConnected    = errors.New("not connected")
	ErrNoSample        = errors.New("no sample received yet")
	ErrInvalidChannel  = errors.New("invalid channel")
	ErrUnsupportedGain = errors.New("unsupported ADC gain")
	ErrUnsupportedPair = errors.New("unsupported differential pair")
)

// Channels is the number of analog inputs sampled by the MCU.
const Channels = 4

// Device defines the interface for thermal rigs (real or mocked).
type Device interface {
	Connect() error
	Close() error
	IsConnected() bool
	// Raw returns the latest raw ADC counts of an analog input.
	Raw(channel int) (float64, error)
	// SetHeater sets the heater duty cycle in [0, 1].
	SetHeater(duty float64) error
	SetFan(on bool) error
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
