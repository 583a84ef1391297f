// Package thermistor converts bias-divider readings of an NTC thermistor into
// temperature using the Steinhart–Hart equation, and fits the equation's
// coefficients from measured (temperature, resistance) pairs.
package thermistor

import (
	"errors"
	"fmt"
	"math"
)

// KelvinOffset converts between Kelvin and degrees Celsius.
const KelvinOffset = 273.15

// Default coefficients of the lab's 10k NTC thermistors.
const (
	DefaultA              = 1.125308852122e-03
	DefaultB              = 2.34711863267e-04
	DefaultC              = 8.5663516e-08
	DefaultBiasResistance = 1962.0 // Ohm
)

var (
	// ErrInvalidUnit is returned for temperature units other than Kelvin or Celsius.
	ErrInvalidUnit = errors.New("unknown temperature unit")
	// ErrSensorUnavailable wraps channel read failures.
	ErrSensorUnavailable = errors.New("sensor unavailable")
)

// Unit is a temperature unit.
type Unit string

const (
	Kelvin  Unit = "K"
	Celsius Unit = "C"
)

// toKelvin converts t in unit u to Kelvin.
func (u Unit) toKelvin(t float64) (float64, error) {
	switch u {
	case Kelvin:
		return t, nil
	case Celsius:
		return t + KelvinOffset, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, string(u))
	}
}

// fromKelvin converts t in Kelvin to unit u.
func (u Unit) fromKelvin(t float64) (float64, error) {
	switch u {
	case Kelvin:
		return t, nil
	case Celsius:
		return t - KelvinOffset, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, string(u))
	}
}

// Channel is a raw analog reading source.
type Channel interface {
	ReadRaw() (float64, error)
}

// Coefficients are the Steinhart–Hart coefficients:
// 1/T = A + B·ln(R) + C·ln(R)³, with T in Kelvin and R in Ohm.
type Coefficients struct {
	A float64 `yaml:"a"`
	B float64 `yaml:"b"`
	C float64 `yaml:"c"`
}

// DefaultCoefficients returns the nominal coefficients.
func DefaultCoefficients() Coefficients {
	return Coefficients{A: DefaultA, B: DefaultB, C: DefaultC}
}

// Temperature returns the absolute temperature in Kelvin for resistance r (Ohm).
func (c Coefficients) Temperature(r float64) float64 {
	lnR := math.Log(r)
	return 1 / (c.A + c.B*lnR + c.C*lnR*lnR*lnR)
}

// Resistance inverts the Steinhart–Hart equation, returning the resistance (Ohm)
// at absolute temperature t (Kelvin).
func (c Coefficients) Resistance(t float64) (float64, error) {
	if t <= 0 {
		return 0, fmt.Errorf("temperature must be positive, got %g K", t)
	}
	if c.C == 0 {
		if c.B == 0 {
			return 0, errors.New("coefficients B and C are both zero")
		}
		return math.Exp((1/t - c.A) / c.B), nil
	}

	// Cardano's solution of C·L³ + B·L + (A - 1/T) = 0.
	x := (c.A - 1/t) / c.C
	p := c.B / (3 * c.C)
	y := math.Sqrt(p*p*p + x*x/4)
	lnR := math.Cbrt(y-x/2) - math.Cbrt(y+x/2)
	return math.Exp(lnR), nil
}

// Thermistor reads a thermistor wired in a divider with a bias resistor.
// The sensor channel measures the voltage across the thermistor and the
// reference channel the divider supply.
type Thermistor struct {
	reference Channel
	sensor    Channel

	BiasResistance float64
	Coefficients   Coefficients

	// Last values seen by ReadVoltage.
	Reading           float64
	ReferencedReading float64
}

// New creates a thermistor. Zero bias resistance selects DefaultBiasResistance.
func New(reference, sensor Channel, biasResistance float64, coeffs Coefficients) *Thermistor {
	if biasResistance == 0 {
		biasResistance = DefaultBiasResistance
	}
	return &Thermistor{
		reference:      reference,
		sensor:         sensor,
		BiasResistance: biasResistance,
		Coefficients:   coeffs,
	}
}

// ReadVoltage reads both channels and returns the sensor reading and the
// referenced reading (reference minus sensor, i.e. the drop across the bias resistor).
func (t *Thermistor) ReadVoltage() (reading, referenced float64, err error) {
	ref, err := t.reference.ReadRaw()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: reference channel: %v", ErrSensorUnavailable, err)
	}
	reading, err = t.sensor.ReadRaw()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: sensor channel: %v", ErrSensorUnavailable, err)
	}

	t.Reading = reading
	t.ReferencedReading = ref - reading
	return t.Reading, t.ReferencedReading, nil
}

// ReadResistance returns the thermistor resistance in Ohm. ok is false when
// the referenced reading is not positive (disconnected or shorted sensor).
func (t *Thermistor) ReadResistance() (r float64, ok bool, err error) {
	reading, referenced, err := t.ReadVoltage()
	if err != nil {
		return 0, false, err
	}
	if referenced <= 0 {
		return 0, false, nil
	}
	return reading * t.BiasResistance / referenced, true, nil
}

// Read returns the temperature in the requested unit. ok is false when no
// resistance could be derived from the current reading.
func (t *Thermistor) Read(unit Unit) (temp float64, ok bool, err error) {
	if unit != Kelvin && unit != Celsius {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidUnit, string(unit))
	}

	r, ok, err := t.ReadResistance()
	if err != nil || !ok {
		return 0, false, err
	}
	// A shorted thermistor has no logarithm.
	if r <= 0 {
		return 0, false, nil
	}
	temp, err = unit.fromKelvin(t.Coefficients.Temperature(r))
	if err != nil {
		return 0, false, err
	}
	return temp, true, nil
}
