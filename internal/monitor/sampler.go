// Package monitor runs the garage door loops: the sampler reads the reed
// switch, the aggregator folds samples into the shared record, and the
// notifier raises alerts for long open episodes.
package monitor

import (
	"context"
	"time"

	"github.com/sweeney/garage-monitor/internal/gpio"
	"github.com/sweeney/garage-monitor/internal/led"
	"github.com/sweeney/garage-monitor/internal/logger"
	"github.com/sweeney/garage-monitor/internal/logic"
	"github.com/sweeney/garage-monitor/internal/metrics"
)

// Sampler classifies one sensor read per tick and forwards it.
type Sampler struct {
	reader  gpio.Reader
	flasher *led.Flasher
	metrics metrics.Recorder

	failing bool
}

// NewSampler creates a Sampler. flasher may be nil.
func NewSampler(reader gpio.Reader, flasher *led.Flasher, rec metrics.Recorder) *Sampler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Sampler{reader: reader, flasher: flasher, metrics: rec}
}

// Sample reads the sensor once. Read errors yield Unknown; the first error
// of a run and the recovery are logged, everything in between is counted only.
func (s *Sampler) Sample(ctx context.Context) logic.DoorState {
	level, err := s.reader.Read()
	if err != nil {
		s.metrics.RecordSensorError()
		if !s.failing {
			logger.Warnf(ctx, "sensor read failed, reporting Unknown: %v", err)
			s.failing = true
		}
	} else if s.failing {
		logger.Infof(ctx, "sensor readable again")
		s.failing = false
	}
	return logic.Classify(logic.Level(level), err)
}

// Run samples on every tick until ctx is cancelled. It closes out on return.
func (s *Sampler) Run(ctx context.Context, tick <-chan time.Time, out chan<- logic.DoorState) error {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		}

		st := s.Sample(ctx)

		select {
		case out <- st:
		case <-ctx.Done():
			return nil
		}

		if err := s.flasher.Show(ctx, st); err != nil && ctx.Err() == nil {
			logger.Debugf(ctx, "led: %v", err)
		}
	}
}
