package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TimestampLayout names log files. It avoids ':' so names are valid on every OS.
const TimestampLayout = "2006-01-02T15-04-05.000"

var (
	_ Sink = (*FileSink)(nil)
	_ Sink = (*ConsoleSink)(nil)
)

// FileSink writes one CSV file per log, named
// <dir>/<prefix><timestamp><suffix>.csv. Rows are flushed as they are
// written so a crash loses at most the row being written.
type FileSink struct {
	Dir    string
	prefix string
	suffix string

	file *os.File
	w    *csv.Writer
	path string
}

// NewFileSink creates a file sink writing into dir.
func NewFileSink(dir, prefix, suffix string) *FileSink {
	return &FileSink{Dir: dir, prefix: prefix, suffix: suffix}
}

func (s *FileSink) SetPrefix(prefix string) { s.prefix = prefix }
func (s *FileSink) SetSuffix(suffix string) { s.suffix = suffix }

// Path returns the path of the current or last file.
func (s *FileSink) Path() string { return s.path }

// FileName returns the file name used for a log starting at start.
func (s *FileSink) FileName(start time.Time) string {
	return s.prefix + start.Format(TimestampLayout) + s.suffix + ".csv"
}

func (s *FileSink) Open(start time.Time, columns []string) error {
	if s.file != nil {
		if err := s.Close(); err != nil {
			return err
		}
	}

	if s.Dir != "" {
		if err := os.MkdirAll(s.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	path := filepath.Join(s.Dir, s.FileName(start))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	s.file = f
	s.path = path
	s.w = csv.NewWriter(f)
	return s.write(columns)
}

func (s *FileSink) WriteRow(row Row) error {
	if s.w == nil {
		return fmt.Errorf("log file is not open")
	}
	return s.write(row.Fields())
}

func (s *FileSink) write(record []string) error {
	if err := s.w.Write(record); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", s.path, err)
	}
	return nil
}

func (s *FileSink) Close() error {
	if s.file == nil {
		return nil
	}
	s.w.Flush()
	flushErr := s.w.Error()
	closeErr := s.file.Close()
	s.file = nil
	s.w = nil
	if flushErr != nil {
		return fmt.Errorf("failed to flush %s: %w", s.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", s.path, closeErr)
	}
	return nil
}

// ConsoleSink writes comma-separated rows to a writer that outlives every
// log, typically stdout.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink creates a console sink. A nil writer selects os.Stdout.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: w}
}

func (s *ConsoleSink) Open(_ time.Time, columns []string) error {
	return s.line(columns)
}

func (s *ConsoleSink) WriteRow(row Row) error {
	return s.line(row.Fields())
}

func (s *ConsoleSink) line(fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, strings.Join(fields, ","))
	return err
}

// Close is a no-op: the console is never closed between logs.
func (s *ConsoleSink) Close() error { return nil }
