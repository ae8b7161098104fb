package status

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/garage-monitor/internal/logic"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewStore(t *testing.T) {
	cfg := Config{SampleMs: 1000, NotifyPollMs: 5000, Broker: "tcp://localhost:1883", HTTPAddr: ":8888"}
	s := NewStore(start, cfg, fixedClock(start))

	snap := s.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.SampleMs != 1000 {
		t.Errorf("Config.SampleMs: got %d, want 1000", snap.Config.SampleMs)
	}
	if !snap.Door.Equal(logic.InitialState()) {
		t.Errorf("expected initial state, got %+v", snap.Door)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestCommitSkipsEqual(t *testing.T) {
	s := NewStore(start, Config{}, nil)
	prev := s.State()
	if s.Commit(prev, prev) {
		t.Error("Commit of an equal record should report no write")
	}
}

func TestCommitWritesChange(t *testing.T) {
	s := NewStore(start, Config{}, nil)
	prev := s.State()
	next := logic.Transition(prev, logic.StateOpen, start, logic.ClosePolicyClear)

	if !s.Commit(prev, next) {
		t.Fatal("expected a write")
	}
	if got := s.State(); !got.Equal(next) {
		t.Errorf("got %+v, want %+v", got, next)
	}
}

// A no-op sample must never change NotifiedAt.
func TestCommitNoOpKeepsNotified(t *testing.T) {
	s := NewStore(start, Config{}, nil)
	prev := s.State()
	s.Commit(prev, logic.Transition(prev, logic.StateOpen, start, logic.ClosePolicyClear))

	notifiedAt := start.Add(301 * time.Second)
	s.MarkNotified(notifiedAt)

	prev = s.State()
	next := logic.Transition(prev, logic.StateOpen, start.Add(400*time.Second), logic.ClosePolicyClear)
	if s.Commit(prev, next) {
		t.Error("no-op transition should not write")
	}
	if got := s.State().NotifiedAt; !got.Equal(notifiedAt) {
		t.Errorf("NotifiedAt changed: got %v, want %v", got, notifiedAt)
	}
}

// The aggregator read its snapshot before the notifier recorded an alert.
// A door-only change (Open→Unknown) must not wipe that record.
func TestCommitKeepsConcurrentNotified(t *testing.T) {
	s := NewStore(start, Config{}, nil)
	init := s.State()
	s.Commit(init, logic.Transition(init, logic.StateOpen, start, logic.ClosePolicyClear))

	stale := s.State()
	notifiedAt := start.Add(301 * time.Second)
	s.MarkNotified(notifiedAt)

	next := logic.Transition(stale, logic.StateUnknown, start.Add(302*time.Second), logic.ClosePolicyClear)
	if !s.Commit(stale, next) {
		t.Fatal("expected a write")
	}
	got := s.State()
	if got.Door != logic.StateUnknown {
		t.Errorf("Door: got %s, want Unknown", got.Door)
	}
	if !got.NotifiedAt.Equal(notifiedAt) {
		t.Errorf("NotifiedAt lost: got %v, want %v", got.NotifiedAt, notifiedAt)
	}
}

// A new episode resets NotifiedAt even if the live record has one.
func TestCommitNewEpisodeResetsNotified(t *testing.T) {
	s := NewStore(start, Config{}, nil)
	init := s.State()
	s.Commit(init, logic.Transition(init, logic.StateOpen, start, logic.ClosePolicyClear))
	s.MarkNotified(start.Add(301 * time.Second))

	prev := s.State()
	closed := logic.Transition(prev, logic.StateClosed, start.Add(400*time.Second), logic.ClosePolicyClear)
	s.Commit(prev, closed)
	if s.State().Notified() {
		t.Error("NotifiedAt should be cleared on close")
	}

	prev = s.State()
	s.Commit(prev, logic.Transition(prev, logic.StateOpen, start.Add(500*time.Second), logic.ClosePolicyClear))
	if s.State().Notified() {
		t.Error("NotifiedAt should be absent after a Closed→Open transition")
	}
}

// The notifier's write lands after an aggregator transition it did not see.
// The alert is merged into the new episode; the next reopen re-arms it.
func TestMarkNotifiedAfterConcurrentTransition(t *testing.T) {
	s := NewStore(start, Config{}, nil)
	init := s.State()
	s.Commit(init, logic.Transition(init, logic.StateOpen, start, logic.ClosePolicyClear))

	// Aggregator closes and reopens between the notifier's read and write.
	prev := s.State()
	s.Commit(prev, logic.Transition(prev, logic.StateClosed, start.Add(301*time.Second), logic.ClosePolicyClear))
	prev = s.State()
	reopened := start.Add(302 * time.Second)
	s.Commit(prev, logic.Transition(prev, logic.StateOpen, reopened, logic.ClosePolicyClear))

	s.MarkNotified(start.Add(303 * time.Second))

	got := s.State()
	if !got.Episode.Equal(logic.OpenSince(reopened)) {
		t.Errorf("transition lost: got %s", got.Episode)
	}
	if !got.Notified() {
		t.Error("expected the late record to land on the new episode")
	}

	// Re-arm on the next fresh open.
	prev = s.State()
	s.Commit(prev, logic.Transition(prev, logic.StateClosed, start.Add(400*time.Second), logic.ClosePolicyClear))
	prev = s.State()
	s.Commit(prev, logic.Transition(prev, logic.StateOpen, start.Add(401*time.Second), logic.ClosePolicyClear))
	if s.State().Notified() {
		t.Error("NotifiedAt should be re-armed on the next episode")
	}
}

func TestSetMQTTConnected(t *testing.T) {
	s := NewStore(start, Config{}, nil)

	s.SetMQTTConnected(true)
	if !s.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	s.SetMQTTConnected(false)
	if s.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	s := NewStore(start, Config{}, nil)

	if s.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	s.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := s.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotDurations(t *testing.T) {
	snap := Snapshot{
		Door: logic.State{
			Door:       logic.StateOpen,
			Episode:    logic.OpenSince(start),
			NotifiedAt: start.Add(6 * time.Minute),
		},
		StartTime: start,
		Now:       start.Add(10 * time.Minute),
	}

	if snap.Uptime() != 10*time.Minute {
		t.Errorf("Uptime: got %v, want 10m", snap.Uptime())
	}
	if d, ok := snap.OpenFor(); !ok || d != 10*time.Minute {
		t.Errorf("OpenFor: got %v (ok=%v), want 10m", d, ok)
	}
	if d, ok := snap.SinceNotified(); !ok || d != 4*time.Minute {
		t.Errorf("SinceNotified: got %v (ok=%v), want 4m", d, ok)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewStore(start, Config{}, nil)
	init := s.State()
	s.Commit(init, logic.State{Door: logic.StateClosed})

	snap1 := s.Snapshot()
	prev := s.State()
	s.Commit(prev, logic.Transition(prev, logic.StateOpen, start, logic.ClosePolicyClear))

	if snap1.Door.Door != logic.StateClosed {
		t.Error("snapshot should be a copy; Door was modified")
	}
}

func TestFormatDoorJSONNeverOpened(t *testing.T) {
	s := NewStore(start, Config{}, fixedClock(start.Add(time.Hour)))

	got := string(FormatDoorJSON(s.Snapshot()))
	want := "{\n  \"state\": \"Unknown\",\n  \"secs_since_notified\": null,\n  \"open_for\": null\n}"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	compact := strings.Join(strings.Fields(got), "")
	if compact != `{"state":"Unknown","secs_since_notified":null,"open_for":null}` {
		t.Errorf("unexpected compact body %s", compact)
	}
}

func TestFormatDoorJSONOpen(t *testing.T) {
	snap := Snapshot{
		Door: logic.State{
			Door:       logic.StateOpen,
			Episode:    logic.OpenSince(start),
			NotifiedAt: start.Add(301 * time.Second),
		},
		Now: start.Add(400*time.Second + 500*time.Millisecond),
	}

	var parsed DoorJSON
	if err := json.Unmarshal(FormatDoorJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.State != "Open" {
		t.Errorf("State: got %q, want Open", parsed.State)
	}
	if parsed.OpenFor == nil || *parsed.OpenFor != 400 {
		t.Errorf("OpenFor: got %v, want 400", parsed.OpenFor)
	}
	if parsed.SecsSinceNotified == nil || *parsed.SecsSinceNotified != 99 {
		t.Errorf("SecsSinceNotified: got %v, want 99", parsed.SecsSinceNotified)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{
		Door:          logic.State{Door: logic.StateClosed},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Network:       &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
		Config:        Config{SampleMs: 1000, ClosePolicy: "clear", Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
	if parsed.Status.State != "Closed" {
		t.Errorf("State: got %q, want Closed", parsed.Status.State)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if parsed.Status.OpenForSeconds != nil {
		t.Errorf("OpenForSeconds: got %d, want null", *parsed.Status.OpenForSeconds)
	}
	if parsed.Status.Network == nil || parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network: got %+v", parsed.Status.Network)
	}
	if parsed.Status.Config.ClosePolicy != "clear" {
		t.Errorf("Config.ClosePolicy: got %q, want clear", parsed.Status.Config.ClosePolicy)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(time.Second)}

	var raw map[string]interface{}
	if err := json.Unmarshal(FormatStatusEvent(snap, "STARTUP", ""), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	inner := raw["status"].(map[string]interface{})
	if _, exists := inner["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if inner["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", inner["event"])
	}
}

func TestFormatStatusEventHost(t *testing.T) {
	snap := Snapshot{StartTime: start, Now: start.Add(time.Second)}

	var raw map[string]interface{}
	if err := json.Unmarshal(FormatStatusEvent(snap, "", ""), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, exists := raw["status"].(map[string]interface{})["host"]; exists {
		t.Error("host should be omitted when stats are unavailable")
	}

	snap.Host = &HostStats{Uptime: 90*time.Minute + 500*time.Millisecond, MemTotal: 4 << 30, MemFree: 1 << 30}
	var parsed StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "", ""), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	h := parsed.Status.Host
	if h == nil {
		t.Fatal("expected host stats")
	}
	if h.UptimeSeconds != 5400 {
		t.Errorf("UptimeSeconds: got %d, want 5400", h.UptimeSeconds)
	}
	if h.MemTotalBytes != 4<<30 || h.MemFreeBytes != 1<<30 || h.MemUsedBytes != 3<<30 {
		t.Errorf("memory: got %+v", *h)
	}
}

func TestHostStatsMemUsedFloorsAtZero(t *testing.T) {
	if got := (HostStats{MemTotal: 1, MemFree: 2}).MemUsed(); got != 0 {
		t.Errorf("MemUsed: got %d, want 0", got)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore(time.Now(), Config{}, nil)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		samples := []logic.DoorState{logic.StateOpen, logic.StateClosed, logic.StateUnknown}
		for i := 0; i < 1000; i++ {
			prev := s.State()
			s.Commit(prev, logic.Transition(prev, samples[i%3], time.Now(), logic.ClosePolicyClear))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.MarkNotified(time.Now())
			s.SetMQTTConnected(i%2 == 0)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := s.Snapshot()
			if snap.Door.Episode.Kind == logic.EpisodeOpen && snap.Door.Door == logic.StateClosed {
				t.Error("observed OpenSince with Closed door")
				return
			}
		}
	}()

	wg.Wait()
}
