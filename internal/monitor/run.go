package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/garage-monitor/internal/logger"
	"github.com/sweeney/garage-monitor/internal/logic"
)

// Monitor owns the three loops and their schedules.
type Monitor struct {
	Sampler    *Sampler
	Aggregator *Aggregator
	Notifier   *Notifier

	SamplePeriod time.Duration
	NotifyPeriod time.Duration
}

// Run starts the loops plus any extra services (the status server) under one
// errgroup. The first loop to fail cancels the rest; cancelling ctx stops
// everything. Run returns once every goroutine has exited.
func (m *Monitor) Run(ctx context.Context, extra ...func(context.Context) error) error {
	sampleTick := time.NewTicker(m.SamplePeriod)
	defer sampleTick.Stop()
	notifyTick := time.NewTicker(m.NotifyPeriod)
	defer notifyTick.Stop()

	return m.run(ctx, sampleTick.C, notifyTick.C, extra...)
}

func (m *Monitor) run(ctx context.Context, sampleTick, notifyTick <-chan time.Time, extra ...func(context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	samples := make(chan logic.DoorState, 1)

	g.Go(guard(ctx, "sampler", func(ctx context.Context) error {
		return m.Sampler.Run(ctx, sampleTick, samples)
	}))
	g.Go(guard(ctx, "aggregator", func(ctx context.Context) error {
		return m.Aggregator.Run(ctx, samples)
	}))
	g.Go(guard(ctx, "notifier", func(ctx context.Context) error {
		return m.Notifier.Run(ctx, notifyTick)
	}))
	for i, fn := range extra {
		g.Go(guard(ctx, fmt.Sprintf("service-%d", i), fn))
	}

	return g.Wait()
}

// guard names the loop's logger and turns a panic into an error so the
// group shuts down instead of the process crashing mid-write.
func guard(ctx context.Context, name string, fn func(context.Context) error) func() error {
	ctx = logger.WithName(ctx, name)
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorKV(ctx, "loop panicked", "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("%s: panic: %v", name, r)
			}
		}()
		if err := fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		logger.Debugf(ctx, "stopped")
		return nil
	}
}
