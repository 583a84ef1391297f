package device

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itohio/thermocycler/pkg/sample"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the standard baud rate of the MCU link.
	DefaultBaudRate = 115200

	adcMin = -32768
	adcMax = 32767
)

// RawSample represents a raw measurement sample from the MCU.
type RawSample struct {
	Timestamp time.Time
	Channels  [Channels]int // ADC counts
	Heater    int           // Heater duty in permille (0-1000)
	Fan       bool
}

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial represents a connection to the thermocycler MCU.
//
// The MCU streams one line per conversion and accepts "H<permille>\n" and
// "F<0|1>\n" commands.
type Serial struct {
	port     string
	baudRate int

	conn      io.ReadWriteCloser
	window    *sample.Window
	latest    RawSample
	hasSample bool
	mu        sync.RWMutex
	cancel    context.CancelFunc
	connected bool
}

// New creates a new Serial instance. averageSamples > 1 averages that many
// consecutive samples per channel.
func New(port string, baudRate int, averageSamples int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	return &Serial{
		port:     port,
		baudRate: baudRate,
		window:   sample.NewWindow(averageSamples, Channels),
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect connects to the serial port and starts reading samples.
func (d *Serial) Connect() error {
	mode := &serial.Mode{
		BaudRate: d.baudRate,
	}

	port, err := serial.Open(d.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	if err := d.attach(port); err != nil {
		port.Close()
		return err
	}
	return nil
}

// attach starts reading samples from an open link.
func (d *Serial) attach(conn io.ReadWriteCloser) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.conn = conn
	d.cancel = cancel
	d.connected = true
	d.hasSample = false
	d.window.Reset()

	go d.readSamples(ctx, conn)

	return nil
}

// Close closes the connection and stops reading samples.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	// Cancel context to stop reading goroutine
	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		d.conn = nil
	}

	d.connected = false

	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// Latest returns the most recent sample as received, without averaging.
func (d *Serial) Latest() (RawSample, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest, d.hasSample
}

// Raw returns the averaged ADC counts of channel.
func (d *Serial) Raw(channel int) (float64, error) {
	if channel < 0 || channel >= Channels {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return 0, ErrNotConnected
	}
	mean, ok := d.window.Mean()
	if !ok {
		return 0, ErrNoSample
	}
	return mean[channel], nil
}

// SetHeater sends the heater duty cycle to the MCU.
func (d *Serial) SetHeater(duty float64) error {
	return d.send(heaterCommand(duty))
}

// SetFan sends the fan state to the MCU.
func (d *Serial) SetFan(on bool) error {
	return d.send(fanCommand(on))
}

func (d *Serial) send(cmd string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}

	if _, err := io.WriteString(d.conn, cmd); err != nil {
		return fmt.Errorf("failed to send command %q: %w", strings.TrimSpace(cmd), err)
	}
	return nil
}

// heaterCommand builds "H<permille>\n". Duty is clamped to [0, 1].
func heaterCommand(duty float64) string {
	if math.IsNaN(duty) || duty < 0 {
		duty = 0
	} else if duty > 1 {
		duty = 1
	}
	return "H" + strconv.Itoa(int(math.Round(duty*1000))) + "\n"
}

func fanCommand(on bool) string {
	if on {
		return "F1\n"
	}
	return "F0\n"
}

// readSamples reads lines from the link until it fails or ctx is cancelled.
func (d *Serial) readSamples(ctx context.Context, r io.Reader) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readSamples: %v", r)
		}
	}()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		s, err := parseLine(line)
		if err != nil {
			log.Printf("Failed to parse line '%s': %v", line, err)
			continue
		}
		d.store(s)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("Error reading from serial port: %v", err)
	}
}

func (d *Serial) store(s RawSample) {
	values := make([]float64, Channels)
	for i, c := range s.Channels {
		values[i] = float64(c)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.latest = s
	d.hasSample = true
	d.window.Add(values)
}

// parseLine parses a line from the MCU into a RawSample.
// Format: unix_micros,a0,a1,a2,a3,heater_permille,fan
// Example: 1234567890123,12000,0,0,26400,350,0
func parseLine(line string) (RawSample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != Channels+3 {
		return RawSample{}, fmt.Errorf("invalid line format: expected %d comma-separated values, got %d", Channels+3, len(parts))
	}

	// Parse timestamp (unix microseconds)
	timestampMicros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	s := RawSample{
		Timestamp: time.UnixMicro(timestampMicros),
	}

	for i := 0; i < Channels; i++ {
		v, err := strconv.Atoi(parts[1+i])
		if err != nil {
			return RawSample{}, fmt.Errorf("invalid channel %d: %w", i, err)
		}
		if v < adcMin || v > adcMax {
			return RawSample{}, fmt.Errorf("channel %d out of range: %d", i, v)
		}
		s.Channels[i] = v
	}

	heater, err := strconv.Atoi(parts[Channels+1])
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid heater duty: %w", err)
	}
	if heater < 0 || heater > 1000 {
		return RawSample{}, fmt.Errorf("heater duty out of range: %d (max 1000)", heater)
	}
	s.Heater = heater

	switch parts[Channels+2] {
	case "0":
	case "1":
		s.Fan = true
	default:
		return RawSample{}, fmt.Errorf("invalid fan state: %q", parts[Channels+2])
	}

	return s, nil
}
