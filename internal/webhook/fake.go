package webhook

import (
	"context"
	"sync"
)

// FakeSender records delivered messages for test assertions.
// Safe for concurrent use.
type FakeSender struct {
	mu       sync.Mutex
	messages []string
	attempts int
	err      error
}

// NewFakeSender creates a FakeSender that accepts every message.
func NewFakeSender() *FakeSender {
	return &FakeSender{}
}

// Send records text, or returns the configured error without recording it.
func (f *FakeSender) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, text)
	return nil
}

// SetError makes subsequent Send calls fail with err (nil to succeed again).
func (f *FakeSender) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Messages returns the delivered messages in order.
func (f *FakeSender) Messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

// Attempts returns how many times Send was called.
func (f *FakeSender) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}
