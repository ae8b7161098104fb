// Package logic contains the pure rules for garage door state tracking.
// This package has NO external dependencies (no GPIO, MQTT, HTTP, locks or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// AlertThreshold is how long an episode must last before an alert is raised.
const AlertThreshold = 5 * time.Minute

// DoorState represents the logical state of the door.
type DoorState string

const (
	StateOpen    DoorState = "Open"
	StateClosed  DoorState = "Closed"
	StateUnknown DoorState = "Unknown"
)

// EpisodeKind discriminates the Episode variants.
type EpisodeKind int

const (
	// EpisodeNone means no open episode and no closed duration pending.
	EpisodeNone EpisodeKind = iota
	// EpisodeOpen means the door has been continuously open since Episode.Since.
	EpisodeOpen
	// EpisodeClosed means the door just closed after an episode of Episode.Lasted.
	EpisodeClosed
)

// Episode is the marker for the current (or just finished) open episode.
type Episode struct {
	Kind   EpisodeKind
	Since  time.Time     // set for EpisodeOpen
	Lasted time.Duration // set for EpisodeClosed
}

// NoEpisode returns the None marker.
func NoEpisode() Episode {
	return Episode{Kind: EpisodeNone}
}

// OpenSince returns a marker for an episode that started at t.
func OpenSince(t time.Time) Episode {
	return Episode{Kind: EpisodeOpen, Since: t}
}

// ClosedAfter returns a marker for an episode that ended after d.
func ClosedAfter(d time.Duration) Episode {
	return Episode{Kind: EpisodeClosed, Lasted: d}
}

// Equal reports whether two markers are the same variant with the same payload.
func (e Episode) Equal(o Episode) bool {
	return e.Kind == o.Kind && e.Since.Equal(o.Since) && e.Lasted == o.Lasted
}

func (e Episode) String() string {
	switch e.Kind {
	case EpisodeOpen:
		return "OpenSince(" + e.Since.UTC().Format(time.RFC3339) + ")"
	case EpisodeClosed:
		return "ClosedAfter(" + e.Lasted.String() + ")"
	default:
		return "None"
	}
}

// State is the shared door record. It is a value type; copies are snapshots.
type State struct {
	Door    DoorState
	Episode Episode
	// NotifiedAt is when an alert was last sent for the current episode.
	// The zero time means no alert has been sent.
	NotifiedAt time.Time
}

// InitialState is the record every process starts with.
func InitialState() State {
	return State{Door: StateUnknown, Episode: NoEpisode()}
}

// Notified reports whether an alert has been recorded for the current episode.
func (s State) Notified() bool {
	return !s.NotifiedAt.IsZero()
}

// Equal compares two records field by field. time.Time values are compared
// with Equal so monotonic readings and locations do not matter.
func (s State) Equal(o State) bool {
	return s.Door == o.Door && s.Episode.Equal(o.Episode) && s.NotifiedAt.Equal(o.NotifiedAt)
}

// EventType represents a door state change to be published.
type EventType string

const (
	EventOpened  EventType = "OPENED"
	EventClosed  EventType = "CLOSED"
	EventUnknown EventType = "UNKNOWN"
)

// Event represents a change of the logical door state.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     DoorState
	// OpenFor is the length of the episode that just ended (CLOSED only).
	OpenFor time.Duration
}

// ClosePolicy selects what an Open→Closed transition does to the episode marker.
type ClosePolicy string

const (
	// ClosePolicyClear drops the episode immediately.
	ClosePolicyClear ClosePolicy = "clear"
	// ClosePolicyReport keeps ClosedAfter until a closing alert has been handled.
	ClosePolicyReport ClosePolicy = "report"
)

// ParseClosePolicy converts a flag or config value into a ClosePolicy.
// The empty string selects ClosePolicyClear.
func ParseClosePolicy(s string) (ClosePolicy, error) {
	switch ClosePolicy(s) {
	case "", ClosePolicyClear:
		return ClosePolicyClear, nil
	case ClosePolicyReport:
		return ClosePolicyReport, nil
	default:
		return "", fmt.Errorf("unknown close policy %q (want %q or %q)", s, ClosePolicyClear, ClosePolicyReport)
	}
}
