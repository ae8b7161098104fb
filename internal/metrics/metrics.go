// Package metrics exposes Prometheus metrics for the garage door daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/garage-monitor/internal/logic"
)

// Recorder is the set of hooks the loops report through.
type Recorder interface {
	RecordDoorState(state logic.DoorState)
	RecordTransition(event logic.EventType)
	RecordOpenFor(d time.Duration)
	RecordSensorError()
	RecordAlertSent(kind logic.AlertKind)
	RecordAlertFailure(kind logic.AlertKind)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	doorState    *prometheus.GaugeVec
	transitions  *prometheus.CounterVec
	openSeconds  prometheus.Gauge
	sensorErrors prometheus.Counter
	alertsSent   *prometheus.CounterVec
	alertFails   *prometheus.CounterVec
}

var doorStates = []logic.DoorState{logic.StateOpen, logic.StateClosed, logic.StateUnknown}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		doorState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "garage_door_state",
			Help: "1 for the current logical door state, 0 otherwise.",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "garage_door_transitions_total",
			Help: "Logical door state changes by event.",
		}, []string{"event"}),
		openSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "garage_door_open_seconds",
			Help: "Length of the current open episode, 0 when there is none.",
		}),
		sensorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "garage_door_sensor_errors_total",
			Help: "Failed sensor reads.",
		}),
		alertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "garage_door_alerts_sent_total",
			Help: "Alerts delivered to the webhook.",
		}, []string{"kind"}),
		alertFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "garage_door_alert_failures_total",
			Help: "Alert delivery attempts that failed.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.doorState,
		c.transitions,
		c.openSeconds,
		c.sensorErrors,
		c.alertsSent,
		c.alertFails,
	)

	c.RecordDoorState(logic.StateUnknown)

	return c
}

// RecordDoorState sets the state gauge.
func (c *Collector) RecordDoorState(state logic.DoorState) {
	for _, s := range doorStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.doorState.WithLabelValues(string(s)).Set(v)
	}
}

// RecordTransition counts a door event.
func (c *Collector) RecordTransition(event logic.EventType) {
	c.transitions.WithLabelValues(string(event)).Inc()
}

// RecordOpenFor sets the current episode length.
func (c *Collector) RecordOpenFor(d time.Duration) {
	c.openSeconds.Set(d.Seconds())
}

// RecordSensorError counts a failed read.
func (c *Collector) RecordSensorError() {
	c.sensorErrors.Inc()
}

// RecordAlertSent counts a delivered alert.
func (c *Collector) RecordAlertSent(kind logic.AlertKind) {
	c.alertsSent.WithLabelValues(string(kind)).Inc()
}

// RecordAlertFailure counts a failed delivery.
func (c *Collector) RecordAlertFailure(kind logic.AlertKind) {
	c.alertFails.WithLabelValues(string(kind)).Inc()
}

// Handler returns the /metrics handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Nop discards every record. Useful in tests.
type Nop struct{}

func (Nop) RecordDoorState(logic.DoorState)    {}
func (Nop) RecordTransition(logic.EventType)   {}
func (Nop) RecordOpenFor(time.Duration)        {}
func (Nop) RecordSensorError()                 {}
func (Nop) RecordAlertSent(logic.AlertKind)    {}
func (Nop) RecordAlertFailure(logic.AlertKind) {}
