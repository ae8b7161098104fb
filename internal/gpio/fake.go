package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted line values.
type FakeReader struct {
	// Samples contains scripted raw values to return.
	// Each call to Read() consumes the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// Sample is a single scripted read: a raw level, or an error.
type Sample struct {
	Level int
	Err   error
}

// High and Low are the two readable samples.
var (
	High = Sample{Level: 1}
	Low  = Sample{Level: 0}
)

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (int, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}

	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample.Level, sample.Err
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeLED records every Set call. Safe for concurrent use.
type FakeLED struct {
	mu     sync.Mutex
	values []bool
	closed bool

	// SetError, if set, will be returned by Set.
	SetError error
}

// NewFakeLED creates a FakeLED.
func NewFakeLED() *FakeLED {
	return &FakeLED{}
}

// Set records the value.
func (l *FakeLED) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SetError != nil {
		return l.SetError
	}
	l.values = append(l.values, on)
	return nil
}

// Values returns the recorded values in order.
func (l *FakeLED) Values() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.values...)
}

// Flashes counts off→on edges in the recorded values.
func (l *FakeLED) Flashes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	prev := false
	for _, v := range l.values {
		if v && !prev {
			n++
		}
		prev = v
	}
	return n
}

// Close marks the LED as closed.
func (l *FakeLED) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (l *FakeLED) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
