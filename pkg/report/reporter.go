// Package report writes rate-limited logs of a control loop.
//
// A [Reporter] decides when to emit a row; a [Sink] decides where it goes.
// The reporter fixes its start time at the first valid measurement and then
// emits at most one row per update, whenever the wall clock has crossed the
// next start + n·interval boundary. Late updates catch up to the latest
// boundary and never replay skipped ones.
package report

import (
	"fmt"
	"time"
)

// Default intervals.
const (
	DefaultFileInterval    = 500 * time.Millisecond
	DefaultConsoleInterval = 15 * time.Second
)

// Sink is a report destination.
type Sink interface {
	// Open starts a new log at start and writes the header.
	Open(start time.Time, columns []string) error
	WriteRow(row Row) error
	// Close ends the current log. Sinks that outlive a log, like the
	// console, treat it as a no-op.
	Close() error
}

// labeler is implemented by sinks whose destination name can be changed.
type labeler interface {
	SetPrefix(prefix string)
	SetSuffix(suffix string)
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClock sets the time source. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// WithEfforts names the tracked control efforts, one column each.
func WithEfforts(names ...string) Option {
	return func(r *Reporter) { r.columns = Columns(names...) }
}

// Gated marks the reporter as following the recording flag of each stage.
func Gated() Option {
	return func(r *Reporter) { r.gated = true }
}

// SequenceScoped marks the reporter as spanning a whole sequence, so it is
// not reset at stage boundaries.
func SequenceScoped() Option {
	return func(r *Reporter) { r.sequenceScoped = true }
}

// Reporter emits Snapshot rows to a Sink at a fixed interval.
type Reporter struct {
	name     string
	interval time.Duration
	sink     Sink
	now      func() time.Time
	columns  []string

	start   time.Time
	started bool
	next    int64 // index of the next boundary to report
	enabled bool

	gated          bool
	sequenceScoped bool
}

// New creates an enabled reporter. A non-positive interval reports every update.
func New(name string, sink Sink, interval time.Duration, opts ...Option) *Reporter {
	r := &Reporter{
		name:     name,
		interval: interval,
		sink:     sink,
		now:      time.Now,
		columns:  Columns(),
		enabled:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reporter) Name() string         { return r.name }
func (r *Reporter) Columns() []string    { return r.columns }
func (r *Reporter) Gated() bool          { return r.gated }
func (r *Reporter) SequenceScoped() bool { return r.sequenceScoped }
func (r *Reporter) Enabled() bool        { return r.enabled }
func (r *Reporter) Enable()              { r.enabled = true }
func (r *Reporter) Disable()             { r.enabled = false }

// Start returns the start time of the current log, if any.
func (r *Reporter) Start() (time.Time, bool) { return r.start, r.started }

// SetPrefix changes the destination prefix for sinks that support naming.
func (r *Reporter) SetPrefix(prefix string) {
	if l, ok := r.sink.(labeler); ok {
		l.SetPrefix(prefix)
	}
}

// SetSuffix changes the destination suffix for sinks that support naming.
func (r *Reporter) SetSuffix(suffix string) {
	if l, ok := r.sink.(labeler); ok {
		l.SetSuffix(suffix)
	}
}

// Reset closes the current log and re-enables the reporter. The next valid
// update starts a new log with a new start time.
func (r *Reporter) Reset() error {
	var err error
	if r.started {
		err = r.sink.Close()
	}
	r.started = false
	r.start = time.Time{}
	r.next = 0
	r.enabled = true
	if err != nil {
		return fmt.Errorf("%s: close: %w", r.name, err)
	}
	return nil
}

// Close ends the current log.
func (r *Reporter) Close() error {
	if !r.started {
		return nil
	}
	r.started = false
	if err := r.sink.Close(); err != nil {
		return fmt.Errorf("%s: close: %w", r.name, err)
	}
	return nil
}

// Update reports s if a boundary has passed. It does nothing while disabled
// or while s carries no valid temperature.
func (r *Reporter) Update(s Snapshot) error {
	if !r.enabled || !s.Valid {
		return nil
	}

	now := r.now()
	if !r.started {
		if err := r.sink.Open(now, r.columns); err != nil {
			return fmt.Errorf("%s: open: %w", r.name, err)
		}
		r.start = now
		r.started = true
		r.next = 1
		return nil
	}

	elapsed := now.Sub(r.start)
	if r.interval > 0 {
		if elapsed < time.Duration(r.next)*r.interval {
			return nil
		}
		r.next = int64(elapsed/r.interval) + 1
	}

	if err := r.sink.WriteRow(newRow(now, elapsed, s)); err != nil {
		return fmt.Errorf("%s: write: %w", r.name, err)
	}
	return nil
}
