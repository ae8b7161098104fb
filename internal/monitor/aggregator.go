package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/garage-monitor/internal/logger"
	"github.com/sweeney/garage-monitor/internal/logic"
	"github.com/sweeney/garage-monitor/internal/metrics"
	"github.com/sweeney/garage-monitor/internal/mqtt"
	"github.com/sweeney/garage-monitor/internal/status"
)

// ErrSamplesClosed is returned by the aggregator when the sample channel
// closes while the monitor is still meant to be running.
var ErrSamplesClosed = errors.New("sample channel closed")

// Aggregator folds samples into the shared door record.
type Aggregator struct {
	store     *status.Store
	publisher mqtt.Publisher
	metrics   metrics.Recorder
	policy    logic.ClosePolicy
	now       func() time.Time
	wait      time.Duration
}

// NewAggregator creates an Aggregator. wait bounds how long Run blocks on
// the channel before looping.
func NewAggregator(store *status.Store, pub mqtt.Publisher, rec metrics.Recorder, policy logic.ClosePolicy, wait time.Duration, now func() time.Time) *Aggregator {
	if pub == nil {
		pub = mqtt.Discard{}
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Aggregator{store: store, publisher: pub, metrics: rec, policy: policy, wait: wait, now: now}
}

// Apply runs one sample through the transition table and commits the result
// if it differs. It reports whether the record was written.
func (a *Aggregator) Apply(ctx context.Context, sample logic.DoorState) bool {
	now := a.now()
	prev := a.store.State()
	next := logic.Transition(prev, sample, now, a.policy)

	if next.Episode.Kind == logic.EpisodeOpen {
		a.metrics.RecordOpenFor(now.Sub(next.Episode.Since))
	} else {
		a.metrics.RecordOpenFor(0)
	}

	if !a.store.Commit(prev, next) {
		return false
	}
	logger.DebugKV(ctx, "state committed", "door", next.Door, "episode", next.Episode.String())

	if ev, ok := logic.DoorEvent(prev, next, now); ok {
		logger.InfoKV(ctx, "door event", "event", ev.Type, "state", ev.State)
		a.metrics.RecordDoorState(ev.State)
		a.metrics.RecordTransition(ev.Type)
		if err := a.publisher.Publish(ev); err != nil {
			logger.Warnf(ctx, "publish %s: %v", ev.Type, err)
		}
	}
	return true
}

// Run consumes samples until ctx is cancelled. A channel closed under a
// live context is fatal.
func (a *Aggregator) Run(ctx context.Context, samples <-chan logic.DoorState) error {
	timer := time.NewTimer(a.wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-samples:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrSamplesClosed
			}
			a.Apply(ctx, s)
		case <-timer.C:
			logger.Debugf(ctx, "no sample within %v", a.wait)
		}
		timer.Reset(a.wait)
	}
}
