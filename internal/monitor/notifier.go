package monitor

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/garage-monitor/internal/logger"
	"github.com/sweeney/garage-monitor/internal/logic"
	"github.com/sweeney/garage-monitor/internal/metrics"
	"github.com/sweeney/garage-monitor/internal/mqtt"
	"github.com/sweeney/garage-monitor/internal/status"
	"github.com/sweeney/garage-monitor/internal/webhook"
)

// Webhook attempts are limited to one per attemptEvery with a small burst.
const (
	attemptEvery = 30 * time.Second
	attemptBurst = 2
)

// Notifier polls the shared record and delivers alerts.
type Notifier struct {
	store     *status.Store
	sender    webhook.Sender
	publisher mqtt.Publisher
	metrics   metrics.Recorder
	limiter   *rate.Limiter
	now       func() time.Time
}

// NewNotifier creates a Notifier.
func NewNotifier(store *status.Store, sender webhook.Sender, pub mqtt.Publisher, rec metrics.Recorder, now func() time.Time) *Notifier {
	if pub == nil {
		pub = mqtt.Discard{}
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Notifier{
		store:     store,
		sender:    sender,
		publisher: pub,
		metrics:   rec,
		limiter:   rate.NewLimiter(rate.Every(attemptEvery), attemptBurst),
		now:       now,
	}
}

// Check evaluates the record once and, if an alert is due, attempts a single
// delivery. It reports whether an alert was delivered. No lock is held
// while sending.
func (n *Notifier) Check(ctx context.Context) bool {
	now := n.now()
	alert, ok := logic.Evaluate(n.store.State(), now)
	if !ok {
		return false
	}

	if !n.limiter.AllowN(now, 1) {
		logger.Debugf(ctx, "alert %s deferred by rate limit", alert.Kind)
		return false
	}

	// A delivery already under way is allowed to finish during shutdown;
	// the client's own timeout bounds it.
	if err := n.sender.Send(context.WithoutCancel(ctx), alert.Message); err != nil {
		logger.Warnf(ctx, "alert %s not delivered: %v", alert.Kind, err)
		n.metrics.RecordAlertFailure(alert.Kind)
		return false
	}

	n.store.MarkNotified(now)
	n.metrics.RecordAlertSent(alert.Kind)
	logger.InfoKV(ctx, "alert delivered", "kind", alert.Kind, "message", alert.Message)

	ev := mqtt.SystemEvent{
		Timestamp: now,
		Event:     "ALERT",
		Reason:    string(alert.Kind),
		Message:   alert.Message,
	}
	if err := n.publisher.PublishSystem(ev); err != nil {
		logger.Warnf(ctx, "publish alert: %v", err)
	}
	return true
}

// Run calls Check on every tick until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			n.Check(ctx)
		}
	}
}
