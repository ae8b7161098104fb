// Package led drives the status LED: one flash for Closed, two for Open,
// three for Unknown, repeated every sample tick.
package led

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/garage-monitor/internal/gpio"
	"github.com/sweeney/garage-monitor/internal/logic"
)

const (
	DefaultOn  = 100 * time.Millisecond
	DefaultOff = 100 * time.Millisecond
)

// FlashCount returns how many pulses represent s.
func FlashCount(s logic.DoorState) int {
	switch s {
	case logic.StateClosed:
		return 1
	case logic.StateOpen:
		return 2
	default:
		return 3
	}
}

// Flasher pulses an LED. A nil *Flasher is valid and does nothing.
type Flasher struct {
	led   gpio.LED
	on    time.Duration
	off   time.Duration
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFlasher creates a Flasher with the default pulse timing.
func NewFlasher(led gpio.LED) *Flasher {
	return &Flasher{led: led, on: DefaultOn, off: DefaultOff, sleep: sleepCtx}
}

// Show flashes the pattern for s. It returns early with ctx.Err() if ctx
// is cancelled mid-pattern, leaving the LED off.
func (f *Flasher) Show(ctx context.Context, s logic.DoorState) error {
	if f == nil || f.led == nil {
		return nil
	}

	for i := 0; i < FlashCount(s); i++ {
		if err := f.led.Set(true); err != nil {
			return fmt.Errorf("led on: %w", err)
		}
		if err := f.sleep(ctx, f.on); err != nil {
			f.led.Set(false)
			return err
		}
		if err := f.led.Set(false); err != nil {
			return fmt.Errorf("led off: %w", err)
		}
		if err := f.sleep(ctx, f.off); err != nil {
			return err
		}
	}
	return nil
}

// Duration is the wall time one pattern for s takes.
func (f *Flasher) Duration(s logic.DoorState) time.Duration {
	if f == nil {
		return 0
	}
	return time.Duration(FlashCount(s)) * (f.on + f.off)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
