package thermistor

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MinCalibrationPoints is the number of pairs needed to determine A, B and C.
const MinCalibrationPoints = 3

var (
	// ErrTooFewPoints is returned when fewer than MinCalibrationPoints pairs are supplied.
	ErrTooFewPoints = errors.New("too few calibration points")
	// ErrInvalidPoint is returned for non-positive resistances or absolute temperatures.
	ErrInvalidPoint = errors.New("invalid calibration point")
	// ErrSingular is returned when the pairs do not determine the coefficients.
	ErrSingular = errors.New("calibration system is singular")
)

// Point is a measured (temperature, resistance) pair.
type Point struct {
	Temperature float64 `yaml:"temperature"`
	Resistance  float64 `yaml:"resistance"` // Ohm
}

// Fit solves 1/T = A + B·ln(R) + C·ln(R)³ for A, B and C by least squares.
// Temperatures are in unit. It returns the coefficients and the Euclidean
// norm of the residual of the fit in 1/K.
func Fit(points []Point, unit Unit) (Coefficients, float64, error) {
	if len(points) < MinCalibrationPoints {
		return Coefficients{}, 0, fmt.Errorf("%w: need %d, got %d", ErrTooFewPoints, MinCalibrationPoints, len(points))
	}

	n := len(points)
	a := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	for i, p := range points {
		tk, err := unit.toKelvin(p.Temperature)
		if err != nil {
			return Coefficients{}, 0, err
		}
		if tk <= 0 || p.Resistance <= 0 || math.IsNaN(p.Resistance) || math.IsInf(p.Resistance, 0) {
			return Coefficients{}, 0, fmt.Errorf("%w: #%d (T=%g, R=%g)", ErrInvalidPoint, i, p.Temperature, p.Resistance)
		}
		lnR := math.Log(p.Resistance)
		a.SetRow(i, []float64{1, lnR, lnR * lnR * lnR})
		b.SetVec(i, 1/tk)
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return Coefficients{}, 0, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	var r mat.VecDense
	r.MulVec(a, &x)
	r.SubVec(&r, b)

	coeffs := Coefficients{A: x.AtVec(0), B: x.AtVec(1), C: x.AtVec(2)}
	return coeffs, mat.Norm(&r, 2), nil
}

// Calibrate fits new coefficients from points and replaces the thermistor's
// coefficients on success. On failure the current coefficients are kept.
func (t *Thermistor) Calibrate(points []Point, unit Unit) (Coefficients, float64, error) {
	coeffs, residual, err := Fit(points, unit)
	if err != nil {
		return Coefficients{}, 0, err
	}
	t.Coefficients = coeffs
	return coeffs, residual, nil
}
