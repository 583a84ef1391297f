// Package sample smooths raw multi-channel readings and decimates logged
// series for display.
package sample

// Window is a moving average over the last N multi-channel readings.
// It is not safe for concurrent use.
type Window struct {
	size  int
	buf   [][]float64
	next  int
	count int
	sum   []float64
}

// NewWindow creates a window averaging the last size readings of channels
// values each. A size below 1 disables averaging.
func NewWindow(size, channels int) *Window {
	if size < 1 {
		size = 1
	}
	buf := make([][]float64, size)
	for i := range buf {
		buf[i] = make([]float64, channels)
	}
	return &Window{
		size: size,
		buf:  buf,
		sum:  make([]float64, channels),
	}
}

// Size returns the window length.
func (w *Window) Size() int { return w.size }

// Len returns the number of readings currently held.
func (w *Window) Len() int { return w.count }

// Add pushes a reading, evicting the oldest one when the window is full.
// Extra values are ignored; missing values count as zero.
func (w *Window) Add(values []float64) {
	slot := w.buf[w.next]
	for i := range slot {
		v := 0.0
		if i < len(values) {
			v = values[i]
		}
		if w.count == w.size {
			w.sum[i] -= slot[i]
		}
		slot[i] = v
		w.sum[i] += v
	}
	w.next = (w.next + 1) % w.size
	if w.count < w.size {
		w.count++
	}
}

// Mean returns the per-channel average. ok is false for an empty window.
func (w *Window) Mean() (mean []float64, ok bool) {
	if w.count == 0 {
		return nil, false
	}
	mean = make([]float64, len(w.sum))
	n := float64(w.count)
	for i, s := range w.sum {
		mean[i] = s / n
	}
	return mean, true
}

// Reset empties the window.
func (w *Window) Reset() {
	w.next = 0
	w.count = 0
	for i := range w.sum {
		w.sum[i] = 0
	}
}
