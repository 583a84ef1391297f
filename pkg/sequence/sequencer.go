package sequence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/itohio/thermocycler/pkg/clock"
	"github.com/itohio/thermocycler/pkg/controller"
)

// DefaultPollInterval is the control loop period.
const DefaultPollInterval = 50 * time.Millisecond

// Sequencer drives a Controller through a Sequence.
type Sequencer struct {
	ctrl     *controller.Controller
	seq      Sequence
	clock    clock.Clock
	interval time.Duration
	onState  func(Event)

	runID     string
	state     State
	phase     Phase
	index     int
	record    Record
	cancelled bool
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock sets the time source used for holds and polling.
func WithClock(c clock.Clock) Option {
	return func(s *Sequencer) { s.clock = c }
}

// WithPollInterval sets the delay between ticks.
func WithPollInterval(d time.Duration) Option {
	return func(s *Sequencer) { s.interval = d }
}

// WithStateHook registers fn to be called synchronously after every state change.
func WithStateHook(fn func(Event)) Option {
	return func(s *Sequencer) { s.onState = fn }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(s *Sequencer) { s.runID = id }
}

// New creates a sequencer.
func New(ctrl *controller.Controller, seq Sequence, opts ...Option) *Sequencer {
	s := &Sequencer{
		ctrl:     ctrl,
		seq:      seq,
		clock:    clock.Real{},
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runID == "" {
		s.runID = uuid.New().String()
	}
	return s
}

func (s *Sequencer) State() State { return s.state }

// RunID identifies this run in telemetry.
func (s *Sequencer) RunID() string { return s.runID }

// Cancelled reports whether the last Run ended early.
func (s *Sequencer) Cancelled() bool { return s.cancelled }

// Run executes the whole program. Cancelling ctx stops at the next tick and
// is not an error. Every actuator is commanded off on return.
func (s *Sequencer) Run(ctx context.Context) (err error) {
	s.cancelled = false
	defer func() {
		s.ctrl.ClearSetpoint()
		if offErr := s.ctrl.Off(); offErr != nil {
			err = errors.Join(err, fmt.Errorf("switch off: %w", offErr))
		}
		s.setState(Idle)
	}()

	err = s.run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		log.Printf("Quitting early...")
		s.cancelled = true
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("Finished!")
	return nil
}

func (s *Sequencer) run(ctx context.Context) error {
	s.ctrl.SetReportPrefix(Prefix(s.seq.Name))
	s.ctrl.SetSequenceSuffix(SequenceSuffix(s.seq.Records))

	if s.seq.Preflight != nil {
		if err := s.condition(ctx, Preflight, *s.seq.Preflight); err != nil {
			return err
		}
	}

	if err := s.ctrl.ResetSequenceReporters(); err != nil {
		log.Printf("Failed to reset sequence log: %v", err)
	}

	for i, rec := range s.seq.Records {
		s.ctrl.Heater().Enable()
		if err := s.stage(ctx, Main, i, rec); err != nil {
			return err
		}
	}

	if s.seq.Postflight != nil {
		if err := s.condition(ctx, Postflight, *s.seq.Postflight); err != nil {
			return err
		}
	}
	return nil
}

// condition runs a preflight or postflight record, arming the heater only
// when the rig is below the target so it does not fight the cool-down.
func (s *Sequencer) condition(ctx context.Context, phase Phase, rec Record) error {
	temp, ok, err := s.ctrl.Read()
	if err != nil {
		return fmt.Errorf("%s: read sensor: %w", phase, err)
	}
	if ok && temp >= rec.Value {
		log.Printf("Heater disarmed for %s: %.1f >= %.1f", phase, temp, rec.Value)
		s.ctrl.Heater().Disable()
	} else {
		s.ctrl.Heater().Enable()
	}
	return s.stage(ctx, phase, 0, rec)
}

func (s *Sequencer) stage(ctx context.Context, phase Phase, index int, rec Record) error {
	if err := s.ctrl.Reset(); err != nil {
		log.Printf("Failed to reset logs: %v", err)
	}
	s.ctrl.SetSetpoint(rec.Value)
	log.Printf("Setpoint is now %.1f...", rec.Value)

	if rec.Recording {
		s.ctrl.EnableReporters()
	} else {
		s.ctrl.DisableReporters()
	}
	s.ctrl.SetStageSuffix(StageSuffix(rec))

	s.phase = phase
	s.index = index
	s.record = rec
	s.setState(Approaching)

	var holdStart time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := s.ctrl.Update(); err != nil {
			return err
		}

		now := s.clock.Now()
		if s.state == Approaching && s.ctrl.SetpointReached() {
			log.Printf("Reached setpoint!")
			holdStart = now
			s.setState(Holding)
			if rec.Duration != nil {
				log.Printf("Holding for %.1f min...", rec.Duration.Minutes())
			} else {
				log.Printf("Holding until stopped...")
			}
		}
		if s.state == Holding && rec.Duration != nil && now.Sub(holdStart) >= *rec.Duration {
			return nil
		}

		if err := s.clock.Sleep(ctx, s.interval); err != nil {
			return err
		}
	}
}

func (s *Sequencer) setState(state State) {
	s.state = state
	if s.onState != nil {
		s.onState(Event{
			RunID:  s.runID,
			State:  state,
			Phase:  s.phase,
			Index:  s.index,
			Record: s.record,
		})
	}
}
