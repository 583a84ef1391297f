package device

import (
	"fmt"
	"slices"
)

// FullScaleCounts is the positive full scale of the 16-bit ADC.
const FullScaleCounts = 32767

// fullScaleVolts maps the ADC programmable gain to its full-scale range.
var fullScaleVolts = map[int]float64{
	1:  4.096,
	2:  2.048,
	4:  1.024,
	8:  0.512,
	16: 0.256,
}

// differentialPairs are the input pairs the ADC can measure differentially.
var differentialPairs = [][2]int{{0, 1}, {0, 3}, {1, 3}, {2, 3}}

// RawReader is anything that yields raw ADC counts per input.
type RawReader interface {
	Raw(channel int) (float64, error)
}

// FullScale returns the full-scale voltage for gain.
func FullScale(gain int) (float64, error) {
	fs, ok := fullScaleVolts[gain]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedGain, gain)
	}
	return fs, nil
}

// AnalogChannel reads one single-ended input in volts.
type AnalogChannel struct {
	src     RawReader
	channel int
	scale   float64
}

// NewAnalogChannel creates a single-ended channel.
func NewAnalogChannel(src RawReader, channel, gain int) (*AnalogChannel, error) {
	if channel < 0 || channel >= Channels {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	fs, err := FullScale(gain)
	if err != nil {
		return nil, err
	}
	return &AnalogChannel{src: src, channel: channel, scale: fs / FullScaleCounts}, nil
}

// ReadRaw returns the input voltage.
func (c *AnalogChannel) ReadRaw() (float64, error) {
	counts, err := c.src.Raw(c.channel)
	if err != nil {
		return 0, err
	}
	return counts * c.scale, nil
}

// DifferentialChannel reads the voltage between two inputs.
type DifferentialChannel struct {
	src      RawReader
	pos, neg int
	scale    float64
}

// NewDifferentialChannel creates a channel measuring pos minus neg.
func NewDifferentialChannel(src RawReader, pos, neg, gain int) (*DifferentialChannel, error) {
	if !slices.Contains(differentialPairs, [2]int{pos, neg}) {
		return nil, fmt.Errorf("%w: (%d, %d)", ErrUnsupportedPair, pos, neg)
	}
	fs, err := FullScale(gain)
	if err != nil {
		return nil, err
	}
	return &DifferentialChannel{src: src, pos: pos, neg: neg, scale: fs / FullScaleCounts}, nil
}

// ReadRaw returns the differential voltage.
func (c *DifferentialChannel) ReadRaw() (float64, error) {
	p, err := c.src.Raw(c.pos)
	if err != nil {
		return 0, err
	}
	n, err := c.src.Raw(c.neg)
	if err != nil {
		return 0, err
	}
	return (p - n) * c.scale, nil
}
