package gpio

import "sync"

// FakePin is a test double that records every commanded state.
type FakePin struct {
	mu     sync.Mutex
	states []bool
	closed bool

	// SetError, if set, will be returned by Set.
	SetError error
}

func NewFakePin() *FakePin {
	return &FakePin{}
}

func (f *FakePin) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.states = append(f.states, on)
	return nil
}

func (f *FakePin) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// States returns a copy of the commanded states in order.
func (f *FakePin) States() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.states...)
}

// Value returns the last commanded state; false if never set.
func (f *FakePin) Value() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return false
	}
	return f.states[len(f.states)-1]
}

func (f *FakePin) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
