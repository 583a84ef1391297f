package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/itohio/thermocycler/pkg/clock"
	"github.com/itohio/thermocycler/pkg/config"
	"github.com/itohio/thermocycler/pkg/controller"
	"github.com/itohio/thermocycler/pkg/device"
	"github.com/itohio/thermocycler/pkg/gpio"
	"github.com/itohio/thermocycler/pkg/report"
	"github.com/itohio/thermocycler/pkg/sequence"
	"github.com/itohio/thermocycler/pkg/telemetry"
	"github.com/spf13/cobra"
)

func runSequence(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.Real{}
	r, err := openRig(cfg, newDevice(cfg, mockFlag, clk.Now))
	if err != nil {
		return err
	}
	defer closeLogged("device", r)

	if _, err := r.waitReading(ctx, clk, unitFlag(), firstReadingTimeout); err != nil {
		return err
	}

	runID := uuid.New().String()
	p, err := buildProgram(ctx, cfg, r.dev, r.probe, clk.Now, runID, os.Stdout)
	if err != nil {
		return err
	}
	defer p.Close()

	log.Printf("Run %s: sequence %q with %d records", runID, cfg.Sequence.Name, len(cfg.Sequence.Records))
	s := sequence.New(p.ctrl, sequence.FromConfig(cfg.Sequence),
		sequence.WithClock(clk),
		sequence.WithPollInterval(cfg.Loop.Interval),
		sequence.WithRunID(runID),
		sequence.WithStateHook(logEvent),
	)
	return s.Run(ctx)
}

func logEvent(e sequence.Event) {
	if e.State == sequence.Idle {
		return
	}
	log.Printf("%s record %d (%.1f deg C): %s", e.Phase, e.Index, e.Record.Value, e.State)
}

// program is a controller with its reporters and the resources they hold.
type program struct {
	ctrl    *controller.Controller
	closers []io.Closer
}

// Close ends the logs and releases fan lines and telemetry connections.
func (p *program) Close() {
	if err := p.ctrl.Close(); err != nil {
		log.Printf("Failed to close reports: %v", err)
	}
	p.release()
}

func (p *program) release() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		closeLogged("resource", p.closers[i])
	}
	p.closers = nil
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

// buildProgram wires the configured laws, actuators and reporters. Telemetry
// sinks are tagged with runID.
func buildProgram(ctx context.Context, cfg *config.Config, dev device.Device, sensor controller.Sensor,
	now func() time.Time, runID string, console io.Writer) (_ *program, err error) {
	p := &program{}
	defer func() {
		if err != nil {
			p.release()
		}
	}()

	heater, err := controller.NewLaw("heater", cfg.Heater, now)
	if err != nil {
		return nil, err
	}
	efforts := []string{heater.Name()}

	var opts []controller.Option
	if cfg.Fan.Enabled {
		fan, err := controller.NewLaw("fan", cfg.Fan.Control, now)
		if err != nil {
			return nil, err
		}
		var act controller.Actuator = device.NewFanActuator(dev)
		if cfg.Fan.GPIO.Chip != "" {
			pin, err := gpio.NewRealPin(cfg.Fan.GPIO.Chip, cfg.Fan.GPIO.Line)
			if err != nil {
				return nil, fmt.Errorf("fan line: %w", err)
			}
			p.closers = append(p.closers, pin)
			act = gpio.NewActuator(pin)
		}
		opts = append(opts, controller.WithFan(fan, act, cfg.Fan.SetpointOffset))
		efforts = append(efforts, fan.Name())
	}

	reporters, err := buildReporters(ctx, cfg, p, now, runID, console, efforts)
	if err != nil {
		return nil, err
	}
	opts = append(opts, controller.WithReporters(reporters...))

	p.ctrl = controller.New(sensor, heater, device.NewHeaterActuator(dev), opts...)
	return p, nil
}

func buildReporters(ctx context.Context, cfg *config.Config, p *program, now func() time.Time,
	runID string, console io.Writer, efforts []string) ([]*report.Reporter, error) {
	common := []report.Option{report.WithClock(now), report.WithEfforts(efforts...)}
	with := func(extra ...report.Option) []report.Option {
		return append(append([]report.Option(nil), common...), extra...)
	}

	dir := cfg.Reporting.Directory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	reporters := []*report.Reporter{
		report.New("file", report.NewFileSink(dir, "", ""), cfg.Reporting.FileInterval, with(report.Gated())...),
		report.New("console", report.NewConsoleSink(console), cfg.Reporting.ConsoleInterval, with()...),
	}
	if cfg.Reporting.SequenceLog {
		reporters = append(reporters, report.New("sequence", report.NewFileSink(dir, "", ""),
			cfg.Reporting.FileInterval, with(report.Gated(), report.SequenceScoped())...))
	}

	if mqttCfg := cfg.Telemetry.MQTT; mqttCfg.Broker != "" {
		pub, err := telemetry.Connect(ctx, mqttCfg)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, pub)
		reporters = append(reporters, report.New("mqtt", telemetry.NewMQTTSink(pub, mqttCfg.Topic, runID),
			cfg.Telemetry.Interval, with()...))
	}

	if influxCfg := cfg.Telemetry.Influx; influxCfg.URL != "" {
		client, w := telemetry.NewInfluxClient(influxCfg)
		p.closers = append(p.closers, closeFunc(func() error {
			client.Close()
			return nil
		}))
		reporters = append(reporters, report.New("influx", telemetry.NewInfluxSink(w, influxCfg.Measurement, runID),
			cfg.Telemetry.Interval, with()...))
	}

	return reporters, nil
}

func closeLogged(what string, c io.Closer) {
	if err := c.Close(); err != nil && !errors.Is(err, device.ErrNotConnected) {
		log.Printf("Failed to close %s: %v", what, err)
	}
}
