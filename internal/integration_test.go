package internal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/garage-monitor/internal/logic"
	"github.com/sweeney/garage-monitor/internal/metrics"
	"github.com/sweeney/garage-monitor/internal/monitor"
	"github.com/sweeney/garage-monitor/internal/mqtt"
	"github.com/sweeney/garage-monitor/internal/status"
	"github.com/sweeney/garage-monitor/internal/web"
	"github.com/sweeney/garage-monitor/internal/webhook"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

// switchReader is a door sensor the test can flip while the sampler runs.
type switchReader struct {
	mu    sync.Mutex
	level int
	err   error
}

func (r *switchReader) set(level int, err error) {
	r.mu.Lock()
	r.level, r.err = level, err
	r.mu.Unlock()
}

func (r *switchReader) Read() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level, r.err
}

func (r *switchReader) Close() error { return nil }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type daemon struct {
	reader *switchReader
	clock  *clock
	store  *status.Store
	pub    *mqtt.FakePublisher
	sender *webhook.FakeSender
	http   *httptest.Server
	done   chan error
}

func startDaemon(t *testing.T, policy logic.ClosePolicy) *daemon {
	t.Helper()
	d := &daemon{
		reader: &switchReader{level: 1},
		clock:  &clock{t: t0},
		pub:    mqtt.NewFakePublisher(),
		sender: webhook.NewFakeSender(),
		done:   make(chan error, 1),
	}
	d.store = status.NewStore(t0, status.Config{ClosePolicy: string(policy)}, d.clock.Now)

	reg := prometheus.NewRegistry()
	rec := metrics.NewCollector(reg)

	m := &monitor.Monitor{
		Sampler:      monitor.NewSampler(d.reader, nil, rec),
		Aggregator:   monitor.NewAggregator(d.store, d.pub, rec, policy, 10*time.Millisecond, d.clock.Now),
		Notifier:     monitor.NewNotifier(d.store, d.sender, d.pub, rec, d.clock.Now),
		SamplePeriod: time.Millisecond,
		NotifyPeriod: time.Millisecond,
	}

	d.http = httptest.NewServer(web.New(":0", d.store, metrics.Handler(reg)).Handler())
	t.Cleanup(d.http.Close)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { d.done <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-d.done; err != nil {
			t.Errorf("monitor returned %v", err)
		}
	})

	return d
}

func (d *daemon) get(t *testing.T, path string) string {
	t.Helper()
	resp, err := http.Get(d.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func (d *daemon) doorJSON(t *testing.T) status.DoorJSON {
	t.Helper()
	var dj status.DoorJSON
	if err := json.Unmarshal([]byte(d.get(t, "/door.json")), &dj); err != nil {
		t.Fatalf("decode door.json: %v", err)
	}
	return dj
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// TestIntegrationOpenAlertClose drives the door through one long open episode.
func TestIntegrationOpenAlertClose(t *testing.T) {
	d := startDaemon(t, logic.ClosePolicyClear)

	waitFor(t, "closed", func() bool { return d.store.State().Door == logic.StateClosed })

	d.reader.set(0, nil)
	waitFor(t, "open", func() bool { return d.store.State().Door == logic.StateOpen })
	if got := d.store.State().Episode; !got.Equal(logic.OpenSince(t0)) {
		t.Fatalf("episode: got %v, want open since t0", got)
	}

	d.clock.Advance(301 * time.Second)
	waitFor(t, "alert", func() bool { return len(d.sender.Messages()) == 1 })

	// Many more notifier ticks; still exactly one alert for the episode.
	time.Sleep(50 * time.Millisecond)
	if got := d.sender.Messages(); len(got) != 1 || got[0] != "Garage door has been open for 5 minutes" {
		t.Fatalf("messages: %q", got)
	}

	dj := d.doorJSON(t)
	if dj.State != "Open" || dj.OpenFor == nil || *dj.OpenFor != 301 {
		t.Errorf("door.json while open: %+v", dj)
	}
	if dj.SecsSinceNotified == nil || *dj.SecsSinceNotified != 0 {
		t.Errorf("secs_since_notified: got %v, want 0", dj.SecsSinceNotified)
	}

	d.reader.set(1, nil)
	waitFor(t, "closed again", func() bool { return d.store.State().Door == logic.StateClosed })

	dj = d.doorJSON(t)
	if dj.OpenFor != nil || dj.SecsSinceNotified != nil {
		t.Errorf("door.json after close should be all null: %+v", dj)
	}

	var events []logic.EventType
	for _, ev := range d.pub.Events() {
		events = append(events, ev.Type)
	}
	want := []logic.EventType{logic.EventClosed, logic.EventOpened, logic.EventClosed}
	if len(events) != len(want) {
		t.Fatalf("events: got %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: got %s, want %s", i, events[i], want[i])
		}
	}

	sys := d.pub.SystemEvents()
	if len(sys) != 1 || sys[0].Event != "ALERT" {
		t.Errorf("system events: %+v", sys)
	}

	m := d.get(t, "/metrics")
	for _, line := range []string{
		`garage_door_alerts_sent_total{kind="STILL_OPEN"} 1`,
		`garage_door_transitions_total{event="OPENED"} 1`,
		`garage_door_state{state="Closed"} 1`,
	} {
		if !strings.Contains(m, line) {
			t.Errorf("metrics missing %q", line)
		}
	}
}

// TestIntegrationFailingSensorNeverAlerts keeps the sensor broken for an hour.
func TestIntegrationFailingSensorNeverAlerts(t *testing.T) {
	d := startDaemon(t, logic.ClosePolicyClear)
	d.reader.set(0, errors.New("gpio fault"))
	waitFor(t, "unknown", func() bool { return d.store.State().Door == logic.StateUnknown })

	for i := 0; i < 12; i++ {
		d.clock.Advance(5 * time.Minute)
		time.Sleep(5 * time.Millisecond)
	}

	if n := d.sender.Attempts(); n != 0 {
		t.Errorf("webhook attempts: got %d, want 0", n)
	}
	if dj := d.doorJSON(t); dj.State != "Unknown" || dj.OpenFor != nil {
		t.Errorf("door.json: %+v", dj)
	}
	if !strings.Contains(d.get(t, "/metrics"), "garage_door_sensor_errors_total") {
		t.Error("sensor errors not exported")
	}
}

// TestIntegrationWebhookDownThenUp checks that a failed delivery is retried
// on a later poll and recorded only once it succeeds.
func TestIntegrationWebhookDownThenUp(t *testing.T) {
	d := startDaemon(t, logic.ClosePolicyClear)
	d.sender.SetError(errors.New("503"))

	d.reader.set(0, nil)
	waitFor(t, "open", func() bool { return d.store.State().Door == logic.StateOpen })
	d.clock.Advance(6 * time.Minute)

	waitFor(t, "failed attempts", func() bool { return d.sender.Attempts() >= 2 })
	if d.store.State().Notified() {
		t.Fatal("notified_at set after failed delivery")
	}

	d.sender.SetError(nil)
	d.clock.Advance(time.Minute)
	waitFor(t, "delivery", func() bool { return d.store.State().Notified() })
	if got := len(d.sender.Messages()); got != 1 {
		t.Errorf("delivered: got %d, want 1", got)
	}
}

// TestIntegrationReportPolicy checks the closing alert under the report policy.
func TestIntegrationReportPolicy(t *testing.T) {
	d := startDaemon(t, logic.ClosePolicyReport)
	waitFor(t, "closed", func() bool { return d.store.State().Door == logic.StateClosed })

	// Block deliveries so the still-open alert does not fire first.
	d.sender.SetError(errors.New("down"))
	d.reader.set(0, nil)
	waitFor(t, "open", func() bool { return d.store.State().Door == logic.StateOpen })
	d.clock.Advance(7 * time.Minute)
	d.reader.set(1, nil)
	waitFor(t, "closed after", func() bool {
		return d.store.State().Episode.Kind == logic.EpisodeClosed
	})

	d.sender.SetError(nil)
	d.clock.Advance(time.Minute)
	waitFor(t, "episode consumed", func() bool {
		return d.store.State().Episode.Kind == logic.EpisodeNone
	})

	msgs := d.sender.Messages()
	if len(msgs) != 1 || msgs[0] != "Garage door closed after being open for 7 minutes" {
		t.Errorf("messages: %q", msgs)
	}
}
