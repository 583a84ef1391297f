package device

import "github.com/itohio/thermocycler/pkg/control"

// HeaterActuator drives the heater duty cycle of a Device.
type HeaterActuator struct {
	dev Device
}

func NewHeaterActuator(dev Device) *HeaterActuator {
	return &HeaterActuator{dev: dev}
}

// SetState commands the heater. Binary efforts map to fully on or off.
func (a *HeaterActuator) SetState(e control.Effort) error {
	return a.dev.SetHeater(float64(e))
}

// FanActuator switches the fan of a Device.
type FanActuator struct {
	dev Device
}

func NewFanActuator(dev Device) *FanActuator {
	return &FanActuator{dev: dev}
}

// SetState turns the fan on for any positive effort.
func (a *FanActuator) SetState(e control.Effort) error {
	return a.dev.SetFan(e.On())
}
