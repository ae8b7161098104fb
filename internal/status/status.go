// Package status holds the shared door record for the garage-monitor daemon.
// It is written by the aggregator and notifier and read by the HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/garage-monitor/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	SampleMs     int64
	NotifyPollMs int64
	ThresholdMs  int64
	ClosePolicy  string
	Broker       string
	HTTPAddr     string
}

// HostStats describes the machine the daemon runs on.
// Memory figures are in bytes.
type HostStats struct {
	Uptime   time.Duration
	MemTotal uint64
	MemFree  uint64
}

// MemUsed returns MemTotal minus MemFree, floored at zero.
func (h HostStats) MemUsed() uint64 {
	if h.MemFree > h.MemTotal {
		return 0
	}
	return h.MemTotal - h.MemFree
}

// Snapshot is a point-in-time view of daemon state.
// It is a plain value, safe to use after the lock is released.
type Snapshot struct {
	Door          logic.State
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
	Host          *HostStats // nil when host stats are unavailable
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// OpenFor returns how long the current episode has lasted, if one is open.
func (s Snapshot) OpenFor() (time.Duration, bool) {
	if s.Door.Episode.Kind != logic.EpisodeOpen {
		return 0, false
	}
	return s.Now.Sub(s.Door.Episode.Since), true
}

// SinceNotified returns the time elapsed since the last alert, if one was sent.
func (s Snapshot) SinceNotified() (time.Duration, bool) {
	if !s.Door.Notified() {
		return 0, false
	}
	return s.Now.Sub(s.Door.NotifiedAt), true
}

// Store holds the door record and daemon metadata behind a single RWMutex.
// The whole record is guarded by one lock so readers always see the door
// state and episode from the same write.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewStore creates a Store in the initial Unknown state.
// If now is nil, time.Now is used.
func NewStore(startTime time.Time, cfg Config, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		snap: Snapshot{
			Door:      logic.InitialState(),
			StartTime: startTime,
			Config:    cfg,
		},
		now: now,
	}
}

// State returns a copy of the door record.
func (s *Store) State() logic.State {
	s.mu.RLock()
	st := s.snap.Door
	s.mu.RUnlock()
	return st
}

// Commit writes next if it differs from prev, the record the caller computed
// it from. It returns false without taking the write lock when nothing changed.
//
// When the transition from prev to next does not reset NotifiedAt, the live
// NotifiedAt is kept, so a concurrent MarkNotified is not overwritten by a
// door-state-only change.
func (s *Store) Commit(prev, next logic.State) bool {
	if next.Equal(prev) {
		return false
	}

	keepNotified := !logic.ResetsNotified(prev, next)

	s.mu.Lock()
	if keepNotified {
		next.NotifiedAt = s.snap.Door.NotifiedAt
	}
	s.snap.Door = next
	s.mu.Unlock()
	return true
}

// MarkNotified records that an alert was delivered at t.
// Only NotifiedAt is touched; a transition committed since the caller's
// snapshot is kept, and the new episode inherits t.
func (s *Store) MarkNotified(t time.Time) {
	s.mu.Lock()
	s.snap.Door.NotifiedAt = t
	s.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (s *Store) SetMQTTConnected(connected bool) {
	s.mu.Lock()
	s.snap.MQTTConnected = connected
	s.mu.Unlock()
}

// SetNetwork sets the network info.
func (s *Store) SetNetwork(info *NetworkInfo) {
	s.mu.Lock()
	s.snap.Network = info
	s.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	snap.Now = s.now()
	return snap
}
