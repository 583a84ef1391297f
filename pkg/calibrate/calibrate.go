// Package calibrate runs an interactive thermistor calibration: the operator
// holds the probe at steady known temperatures, the session measures the
// thermistor resistance at each and fits Steinhart–Hart coefficients.
package calibrate

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/itohio/thermocycler/pkg/thermistor"
)

// ErrAborted is returned when the operator quits without fitting.
var ErrAborted = errors.New("calibration aborted")

// Result of a calibration session.
type Result struct {
	BiasResistance float64
	Points         []thermistor.Point
	Coefficients   thermistor.Coefficients
	Residual       float64
}

// Session prompts for measurements on out and reads answers from in.
type Session struct {
	in   *bufio.Scanner
	out  io.Writer
	th   *thermistor.Thermistor
	unit thermistor.Unit
}

// NewSession creates a session calibrating th with temperatures entered in unit.
func NewSession(in io.Reader, out io.Writer, th *thermistor.Thermistor, unit thermistor.Unit) *Session {
	return &Session{
		in:   bufio.NewScanner(in),
		out:  out,
		th:   th,
		unit: unit,
	}
}

// answer is one line of operator input.
type answer struct {
	text string
	eof  bool
}

func (s *Session) ask(prompt string) answer {
	fmt.Fprint(s.out, prompt)
	if !s.in.Scan() {
		fmt.Fprintln(s.out)
		return answer{eof: true}
	}
	return answer{text: strings.TrimSpace(s.in.Text())}
}

// endOfInput is the keyword askFloat reports when input runs out.
const endOfInput = "EOF"

// askFloat re-prompts until the answer is empty, a number or one of the
// given keywords. ok is false for anything but a number.
func (s *Session) askFloat(prompt string, keywords ...string) (v float64, keyword string, ok bool) {
	for {
		a := s.ask(prompt)
		if a.eof {
			return 0, endOfInput, false
		}
		if a.text == "" {
			return 0, "", false
		}
		for _, k := range keywords {
			if strings.EqualFold(a.text, k) {
				return 0, k, false
			}
		}
		v, err := strconv.ParseFloat(a.text, 64)
		if err == nil {
			return v, "", true
		}
		fmt.Fprintf(s.out, "Error: could not parse input as float: %s\n", a.text)
	}
}

// Run collects measurements until an empty temperature or end of input,
// then fits and installs the coefficients. Entering "q" aborts.
func (s *Session) Run() (Result, error) {
	prompt := fmt.Sprintf("Please enter the resistance of the bias resistor in Ohms [%.1f]: ", s.th.BiasResistance)
	for {
		bias, kw, ok := s.askFloat(prompt, "q")
		if kw == "q" {
			return Result{}, ErrAborted
		}
		if !ok {
			break
		}
		if bias > 0 {
			s.th.BiasResistance = bias
			break
		}
		fmt.Fprintln(s.out, "Error: bias resistance must be positive")
	}

	points, err := s.collect()
	if err != nil {
		return Result{}, err
	}
	if len(points) < thermistor.MinCalibrationPoints {
		fmt.Fprintf(s.out, "Error: At least %d measurements are required for calibration, but only %d were collected!\n",
			thermistor.MinCalibrationPoints, len(points))
		return Result{}, fmt.Errorf("%w: got %d", thermistor.ErrTooFewPoints, len(points))
	}

	fmt.Fprintln(s.out, "Computing coefficients using the following measurements:")
	for _, p := range points {
		fmt.Fprintf(s.out, "  %.2f %s: %.1f Ohm\n", p.Temperature, s.unitLabel(), p.Resistance)
	}

	coeffs, residual, err := s.th.Calibrate(points, s.unit)
	if err != nil {
		return Result{}, err
	}
	fmt.Fprintf(s.out, "A: %.12e\nB: %.12e\nC: %.12e\nResidual: %.6e\n", coeffs.A, coeffs.B, coeffs.C, residual)

	return Result{
		BiasResistance: s.th.BiasResistance,
		Points:         points,
		Coefficients:   coeffs,
		Residual:       residual,
	}, nil
}

func (s *Session) unitLabel() string {
	if s.unit == thermistor.Kelvin {
		return "K"
	}
	return "deg C"
}

func (s *Session) collect() ([]thermistor.Point, error) {
	fmt.Fprintln(s.out, "Please enter temperature measurements at steady temperatures.")
	fmt.Fprintln(s.out, "Press enter or Ctrl-D to finish collecting measurements and to compute coefficients.")

	var points []thermistor.Point
	for {
		fmt.Fprintln(s.out)
		temp, kw, ok := s.askFloat(fmt.Sprintf("Please enter a temperature in %s, or press enter to finish: ", s.unitLabel()), "q")
		if kw == "q" {
			return nil, ErrAborted
		}
		if !ok {
			return points, nil
		}

		r, ok, err := s.measure()
		if err != nil {
			return nil, err
		}
		if !ok {
			fmt.Fprintln(s.out, "Skipped.")
			continue
		}
		points = append(points, thermistor.Point{Temperature: temp, Resistance: r})
	}
}

// measure reads the thermistor and lets the operator override or skip the value.
func (s *Session) measure() (float64, bool, error) {
	measured, valid, err := s.th.ReadResistance()
	switch {
	case errors.Is(err, thermistor.ErrSensorUnavailable):
		valid = false
	case err != nil:
		return 0, false, fmt.Errorf("measure resistance: %w", err)
	}
	if valid {
		fmt.Fprintf(s.out, "Measured thermistor resistance: %.1f Ohm\n", measured)
	} else {
		fmt.Fprintln(s.out, "Measured thermistor resistance: unavailable")
	}

	r, kw, ok := s.askFloat("Enter a different value to override, press enter to use this measurement, or 's' to skip: ", "s")
	switch {
	case kw == "s" || kw == endOfInput:
		return 0, false, nil
	case ok && r > 0:
		return r, true, nil
	case ok:
		fmt.Fprintln(s.out, "Error: resistance must be positive")
		return 0, false, nil
	default:
		return measured, valid, nil
	}
}
