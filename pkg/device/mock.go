package device

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/thermocycler/pkg/config"
	"github.com/itohio/thermocycler/pkg/thermistor"
)

// maxStep bounds the integration step of the simulated plant.
const maxStep = 100 * time.Millisecond

// Mock simulates a thermistor divider on a heated block with a fan.
//
// The plant advances lazily to the current time on every call, so it runs
// equally well against the wall clock or a fake one.
type Mock struct {
	cfg    config.MockConfig
	probe  config.ThermistorConfig
	coeffs thermistor.Coefficients
	now    func() time.Time

	mu        sync.Mutex
	connected bool
	start     time.Time
	last      time.Time

	temperature float64 // deg C
	heater      float64
	fan         bool
}

// NewMock creates a new simulated rig. The probe describes which channels
// carry the divider supply and the thermistor, and which thermistor model
// turns plant temperature into counts. A nil now uses time.Now.
func NewMock(cfg *config.MockConfig, probe config.ThermistorConfig, now func() time.Time) *Mock {
	if cfg == nil {
		cfg = &config.Default().Mock
	}
	if now == nil {
		now = time.Now
	}
	if probe.BiasResistance <= 0 {
		probe.BiasResistance = thermistor.DefaultBiasResistance
	}

	return &Mock{
		cfg:         *cfg,
		probe:       probe,
		coeffs:      probe.Coefficients(),
		now:         now,
		temperature: cfg.Initial,
	}
}

// Connect simulates connecting to the device.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.start = m.now()
	m.last = m.start

	return nil
}

// Close stops the simulated device. The plant keeps its temperature.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Raw returns simulated ADC counts. The reference channel carries the
// divider supply, the sensor channel (or the positive input of the sensor
// pair) the voltage across the thermistor and every other channel reads zero.
func (m *Mock) Raw(channel int) (float64, error) {
	if channel < 0 || channel >= Channels {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, ErrNotConnected
	}
	now := m.now()
	m.advance(now)

	sensor := m.probe.SensorChannel
	if pos, _, ok := m.probe.Differential(); ok {
		sensor = pos
	}

	supply := float64(m.cfg.Supply)
	switch channel {
	case m.probe.ReferenceChannel:
		return supply, nil
	case sensor:
		t := m.temperature + m.noise(now)
		r, err := m.coeffs.Resistance(t + thermistor.KelvinOffset)
		if err != nil {
			return 0, fmt.Errorf("simulated resistance at %.2f deg C: %w", t, err)
		}
		return math.Round(supply * r / (r + m.probe.BiasResistance)), nil
	default:
		return 0, nil
	}
}

// SetHeater sets the simulated heater duty.
func (m *Mock) SetHeater(duty float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	m.advance(m.now())
	m.heater = math.Max(0, math.Min(1, duty))

	return nil
}

// SetFan switches the simulated fan.
func (m *Mock) SetFan(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}
	m.advance(m.now())
	m.fan = on

	return nil
}

// Temperature returns the noiseless plant temperature in deg C.
func (m *Mock) Temperature() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected {
		m.advance(m.now())
	}
	return m.temperature
}

// SetTemperature forces the plant temperature.
func (m *Mock) SetTemperature(t float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.temperature = t
}

// Heater returns the commanded heater duty.
func (m *Mock) Heater() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heater
}

// Fan returns the commanded fan state.
func (m *Mock) Fan() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fan
}

// advance integrates the plant up to now. Must be called with mu held.
func (m *Mock) advance(now time.Time) {
	remaining := now.Sub(m.last)
	if remaining <= 0 {
		return
	}
	m.last = now

	for remaining > 0 {
		step := min(remaining, maxStep)
		remaining -= step
		m.temperature = m.step(m.temperature, step.Seconds())
	}
}

// step applies heating, Newtonian loss toward ambient and fan cooling over dt seconds.
func (m *Mock) step(t, dt float64) float64 {
	ambient := m.cfg.Ambient
	rate := m.cfg.HeatRate*m.heater - m.cfg.CoolRate*(t-ambient)

	fanCooling := m.fan && t > ambient
	if fanCooling {
		rate -= m.cfg.FanCoolRate
	}

	next := t + rate*dt
	if fanCooling && next < ambient {
		next = ambient
	}
	return next
}

// noise is a deterministic ripple so repeated runs behave the same.
func (m *Mock) noise(now time.Time) float64 {
	if m.cfg.NoiseLevel == 0 {
		return 0
	}
	s := now.Sub(m.start).Seconds()
	return (math.Sin(s*2.1) + math.Cos(s*3.7)) * m.cfg.NoiseLevel * 0.5
}
