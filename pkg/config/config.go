package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/itohio/thermocycler/pkg/thermistor"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate for unusable configurations.
var ErrInvalid = errors.New("invalid configuration")

// Law kinds accepted by ControlConfig.Type.
const (
	LawInfiniteGain = "infinite_gain"
	LawProportional = "proportional"
	LawPID          = "pid"
)

// Config represents the application configuration.
type Config struct {
	Serial     SerialConfig     `yaml:"serial"`
	ADC        ADCConfig        `yaml:"adc"`
	Thermistor ThermistorConfig `yaml:"thermistor"`
	Heater     ControlConfig    `yaml:"heater"`
	Fan        FanConfig        `yaml:"fan"`
	Loop       LoopConfig       `yaml:"loop"`
	Reporting  ReportingConfig  `yaml:"reporting"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Mock       MockConfig       `yaml:"mock"`
	Sequence   SequenceConfig   `yaml:"sequence"`
}

// SerialConfig contains serial port configuration of the MCU link.
type SerialConfig struct {
	Port           string `yaml:"port"`
	BaudRate       int    `yaml:"baud_rate"`
	AverageSamples int    `yaml:"average_samples"` // Number of raw samples to average per channel (0 = disabled)
}

// ADCConfig selects the analog front end.
type ADCConfig struct {
	Gain int `yaml:"gain"` // ADS1115 programmable gain: 1, 2, 4, 8 or 16
}

// ThermistorConfig describes the thermistor divider and its calibration.
type ThermistorConfig struct {
	ReferenceChannel int     `yaml:"reference_channel"`
	SensorChannel    int     `yaml:"sensor_channel"`
	SensorPair       []int   `yaml:"sensor_pair,omitempty"` // [positive, negative] inputs; replaces sensor_channel
	BiasResistance   float64 `yaml:"bias_resistance"`       // Ohm
	A                float64 `yaml:"a"`
	B                float64 `yaml:"b"`
	C                float64 `yaml:"c"`
}

// Coefficients returns the Steinhart–Hart coefficients.
func (t ThermistorConfig) Coefficients() thermistor.Coefficients {
	return thermistor.Coefficients{A: t.A, B: t.B, C: t.C}
}

// Differential returns the sensor input pair when the sensor is measured
// differentially.
func (t ThermistorConfig) Differential() (pos, neg int, ok bool) {
	if len(t.SensorPair) != 2 {
		return 0, 0, false
	}
	return t.SensorPair[0], t.SensorPair[1], true
}

// SetCoefficients stores fitted Steinhart–Hart coefficients.
func (t *ThermistorConfig) SetCoefficients(c thermistor.Coefficients) {
	t.A, t.B, t.C = c.A, c.B, c.C
}

// ControlConfig describes a control law.
type ControlConfig struct {
	Type                      string  `yaml:"type"`
	Gain                      float64 `yaml:"gain"`
	Kp                        float64 `yaml:"kp"`
	Ki                        float64 `yaml:"ki"`
	Kd                        float64 `yaml:"kd"`
	ProportionalOnMeasurement bool    `yaml:"proportional_on_measurement"`
	Epsilon                   float64 `yaml:"epsilon"` // deg C
	Reverse                   bool    `yaml:"reverse"` // effort lowers the temperature
}

// FanConfig describes the optional cooling fan.
type FanConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Control        ControlConfig `yaml:"control"`
	SetpointOffset float64       `yaml:"setpoint_offset"` // deg C above the heater setpoint
	GPIO           GPIOConfig    `yaml:"gpio"`
}

// GPIOConfig selects a GPIO line. An empty chip drives the fan through the MCU link instead.
type GPIOConfig struct {
	Chip string `yaml:"chip"`
	Line int    `yaml:"line"`
}

// LoopConfig contains control loop timing.
type LoopConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ReportingConfig contains log destinations and cadences.
type ReportingConfig struct {
	Directory       string        `yaml:"directory"`
	FileInterval    time.Duration `yaml:"file_interval"`
	ConsoleInterval time.Duration `yaml:"console_interval"`
	SequenceLog     bool          `yaml:"sequence_log"` // Also write one file spanning the whole sequence
}

// TelemetryConfig contains optional remote report destinations.
type TelemetryConfig struct {
	Interval time.Duration `yaml:"interval"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
	Influx   InfluxConfig  `yaml:"influx"`
}

// MQTTConfig contains MQTT broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxConfig contains InfluxDB settings. An empty URL disables InfluxDB.
type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// MockConfig contains simulated plant parameters.
type MockConfig struct {
	Ambient     float64 `yaml:"ambient"`       // deg C
	Initial     float64 `yaml:"initial"`       // deg C
	HeatRate    float64 `yaml:"heat_rate"`     // deg C/s at full heater duty
	CoolRate    float64 `yaml:"cool_rate"`     // 1/s passive loss toward ambient
	FanCoolRate float64 `yaml:"fan_cool_rate"` // deg C/s extra loss with the fan on
	NoiseLevel  float64 `yaml:"noise_level"`   // deg C
	Supply      int     `yaml:"supply"`        // Raw counts of the divider supply
}

// RecordConfig is one setpoint stage.
type RecordConfig struct {
	Value     float64        `yaml:"value"`              // deg C
	Duration  *time.Duration `yaml:"duration,omitempty"` // Hold time; omitted holds indefinitely
	Recording bool           `yaml:"recording"`
}

// SequenceConfig contains the setpoint program.
type SequenceConfig struct {
	Name       string         `yaml:"name"`
	Preflight  *RecordConfig  `yaml:"preflight,omitempty"`
	Postflight *RecordConfig  `yaml:"postflight,omitempty"`
	Records    []RecordConfig `yaml:"records"`
}

func minutes(m float64) *time.Duration {
	d := time.Duration(m * float64(time.Minute))
	return &d
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		ADC: ADCConfig{
			Gain: 1,
		},
		Thermistor: ThermistorConfig{
			ReferenceChannel: 3,
			SensorChannel:    0,
			BiasResistance:   thermistor.DefaultBiasResistance,
			A:                thermistor.DefaultA,
			B:                thermistor.DefaultB,
			C:                thermistor.DefaultC,
		},
		Heater: ControlConfig{
			Type:                      LawPID,
			Kp:                        0.0775,
			Ki:                        0.00125,
			Kd:                        0.0,
			ProportionalOnMeasurement: true,
			Epsilon:                   0.5,
		},
		Fan: FanConfig{
			Enabled: true,
			Control: ControlConfig{
				Type:    LawInfiniteGain,
				Epsilon: 0.5,
				Reverse: true,
			},
			SetpointOffset: 0.25,
		},
		Loop: LoopConfig{
			Interval: 50 * time.Millisecond,
		},
		Reporting: ReportingConfig{
			Directory:       ".",
			FileInterval:    500 * time.Millisecond,
			ConsoleInterval: 15 * time.Second,
			SequenceLog:     true,
		},
		Telemetry: TelemetryConfig{
			Interval: 5 * time.Second,
			MQTT: MQTTConfig{
				Topic:    "lab/thermocycler",
				ClientID: "thermocycler",
			},
			Influx: InfluxConfig{
				Measurement: "thermocycler",
			},
		},
		Mock: MockConfig{
			Ambient:     25.0,
			Initial:     25.0,
			HeatRate:    2.0,
			CoolRate:    0.01,
			FanCoolRate: 0.6,
			NoiseLevel:  0.02,
			Supply:      26400,
		},
		Sequence: SequenceConfig{
			Name:       "thermal_lysis",
			Preflight:  &RecordConfig{Value: 25.0, Duration: minutes(0)},
			Postflight: &RecordConfig{Value: 25.0, Duration: minutes(0)},
			Records: []RecordConfig{
				{Value: 90.0, Duration: minutes(10), Recording: true},
				{Value: 40.0, Duration: minutes(10), Recording: true},
			},
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.ADC.Gain == 0 {
		c.ADC.Gain = def.ADC.Gain
	}

	if c.Thermistor.BiasResistance == 0 {
		c.Thermistor.BiasResistance = def.Thermistor.BiasResistance
	}
	if c.Thermistor.A == 0 && c.Thermistor.B == 0 && c.Thermistor.C == 0 {
		c.Thermistor.A = def.Thermistor.A
		c.Thermistor.B = def.Thermistor.B
		c.Thermistor.C = def.Thermistor.C
	}

	if c.Heater.Type == "" {
		c.Heater.Type = def.Heater.Type
	}
	if c.Fan.Control.Type == "" {
		c.Fan.Control.Type = def.Fan.Control.Type
	}

	if c.Loop.Interval == 0 {
		c.Loop.Interval = def.Loop.Interval
	}

	if c.Reporting.Directory == "" {
		c.Reporting.Directory = def.Reporting.Directory
	}
	if c.Reporting.FileInterval == 0 {
		c.Reporting.FileInterval = def.Reporting.FileInterval
	}
	if c.Reporting.ConsoleInterval == 0 {
		c.Reporting.ConsoleInterval = def.Reporting.ConsoleInterval
	}

	if c.Telemetry.Interval == 0 {
		c.Telemetry.Interval = def.Telemetry.Interval
	}
	if c.Telemetry.MQTT.Topic == "" {
		c.Telemetry.MQTT.Topic = def.Telemetry.MQTT.Topic
	}
	if c.Telemetry.MQTT.ClientID == "" {
		c.Telemetry.MQTT.ClientID = def.Telemetry.MQTT.ClientID
	}
	if c.Telemetry.Influx.Measurement == "" {
		c.Telemetry.Influx.Measurement = def.Telemetry.Influx.Measurement
	}

	if c.Mock.Supply == 0 {
		c.Mock.Supply = def.Mock.Supply
	}

	if c.Sequence.Name == "" {
		c.Sequence.Name = def.Sequence.Name
	}
}

// Validate reports configuration errors that would make the controller unsafe or unusable.
func (c *Config) Validate() error {
	if c.Thermistor.BiasResistance <= 0 {
		return fmt.Errorf("%w: bias resistance must be positive", ErrInvalid)
	}
	if err := c.Thermistor.validateInputs(); err != nil {
		return err
	}
	if err := c.Heater.validate("heater"); err != nil {
		return err
	}
	if c.Fan.Enabled {
		if err := c.Fan.Control.validate("fan"); err != nil {
			return err
		}
	}
	if c.Loop.Interval <= 0 {
		return fmt.Errorf("%w: loop interval must be positive", ErrInvalid)
	}
	if len(c.Sequence.Records) == 0 {
		return fmt.Errorf("%w: sequence has no records", ErrInvalid)
	}
	for i, r := range c.Sequence.Records {
		if r.Duration != nil && *r.Duration < 0 {
			return fmt.Errorf("%w: record %d has a negative duration", ErrInvalid, i)
		}
	}
	return nil
}

func (t ThermistorConfig) validateInputs() error {
	pos, neg, ok := t.Differential()
	switch {
	case len(t.SensorPair) != 0 && !ok:
		return fmt.Errorf("%w: sensor pair needs exactly two inputs, got %d", ErrInvalid, len(t.SensorPair))
	case ok && pos == neg:
		return fmt.Errorf("%w: sensor pair inputs must differ", ErrInvalid)
	case ok && (pos == t.ReferenceChannel || neg == t.ReferenceChannel):
		return fmt.Errorf("%w: sensor pair must not include the reference channel", ErrInvalid)
	case !ok && t.ReferenceChannel == t.SensorChannel:
		return fmt.Errorf("%w: reference and sensor channels must differ", ErrInvalid)
	}
	return nil
}

func (c ControlConfig) validate(name string) error {
	switch c.Type {
	case LawInfiniteGain, LawProportional, LawPID:
	default:
		return fmt.Errorf("%w: %s: unknown control law %q", ErrInvalid, name, c.Type)
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("%w: %s: epsilon must not be negative", ErrInvalid, name)
	}
	return nil
}
