package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/itohio/thermocycler/pkg/clock"
	"github.com/itohio/thermocycler/pkg/config"
	"github.com/itohio/thermocycler/pkg/device"
	"github.com/itohio/thermocycler/pkg/thermistor"
)

// firstReadingTimeout bounds the wait for the MCU to stream its first sample.
const firstReadingTimeout = 3 * time.Second

// rig is a connected device with the thermistor wired to its ADC inputs.
type rig struct {
	dev   device.Device
	probe *thermistor.Thermistor
}

// newDevice creates the simulated or the serial device.
func newDevice(cfg *config.Config, mock bool, now func() time.Time) device.Device {
	if mock {
		return device.NewMock(&cfg.Mock, cfg.Thermistor, now)
	}
	return device.New(cfg.Serial.Port, cfg.Serial.BaudRate, cfg.Serial.AverageSamples)
}

// openRig connects dev and builds the thermistor from the configured channels.
func openRig(cfg *config.Config, dev device.Device) (*rig, error) {
	ref, err := device.NewAnalogChannel(dev, cfg.Thermistor.ReferenceChannel, cfg.ADC.Gain)
	if err != nil {
		return nil, fmt.Errorf("reference channel: %w", err)
	}
	sens, err := sensorChannel(cfg, dev)
	if err != nil {
		return nil, fmt.Errorf("sensor channel: %w", err)
	}

	if err := dev.Connect(); err != nil {
		return nil, err
	}
	log.Printf("Connected")

	return &rig{
		dev:   dev,
		probe: thermistor.New(ref, sens, cfg.Thermistor.BiasResistance, cfg.Thermistor.Coefficients()),
	}, nil
}

// sensorChannel reads the thermistor single-ended or, with a sensor pair,
// differentially.
func sensorChannel(cfg *config.Config, dev device.Device) (thermistor.Channel, error) {
	if pos, neg, ok := cfg.Thermistor.Differential(); ok {
		return device.NewDifferentialChannel(dev, pos, neg, cfg.ADC.Gain)
	}
	return device.NewAnalogChannel(dev, cfg.Thermistor.SensorChannel, cfg.ADC.Gain)
}

// Close turns the actuators off and disconnects.
func (r *rig) Close() error {
	var errs []error
	if err := r.dev.SetHeater(0); err != nil {
		errs = append(errs, err)
	}
	if err := r.dev.SetFan(false); err != nil {
		errs = append(errs, err)
	}
	if err := r.dev.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// waitReading polls the thermistor until it yields a temperature.
func (r *rig) waitReading(ctx context.Context, clk clock.Clock, unit thermistor.Unit, timeout time.Duration) (float64, error) {
	deadline := clk.Now().Add(timeout)
	for {
		temp, ok, err := r.probe.Read(unit)
		switch {
		case err != nil && !errors.Is(err, thermistor.ErrSensorUnavailable):
			return 0, err
		case ok:
			return temp, nil
		}
		if !clk.Now().Before(deadline) {
			return 0, fmt.Errorf("no reading within %s: %w", timeout, thermistor.ErrSensorUnavailable)
		}
		if err := clk.Sleep(ctx, 50*time.Millisecond); err != nil {
			return 0, err
		}
	}
}

func unitFlag() thermistor.Unit {
	if kelvinFlag {
		return thermistor.Kelvin
	}
	return thermistor.Celsius
}
