package logic

import (
	"fmt"
	"time"
)

// AlertKind identifies which rule produced an alert.
type AlertKind string

const (
	AlertStillOpen   AlertKind = "STILL_OPEN"
	AlertClosedAfter AlertKind = "CLOSED_AFTER"
)

// Alert is a notification that should be delivered.
type Alert struct {
	Kind     AlertKind
	Duration time.Duration
	Message  string
}

// Evaluate decides whether the snapshot s warrants an alert at now.
// An alert is due when the episode has lasted longer than AlertThreshold and
// nothing has been recorded in NotifiedAt for it yet.
func Evaluate(s State, now time.Time) (Alert, bool) {
	if s.Notified() {
		return Alert{}, false
	}

	switch s.Episode.Kind {
	case EpisodeOpen:
		openFor := now.Sub(s.Episode.Since)
		if openFor <= AlertThreshold {
			return Alert{}, false
		}
		return Alert{
			Kind:     AlertStillOpen,
			Duration: openFor,
			Message:  "Garage door has been open for " + FormatDuration(openFor),
		}, true

	case EpisodeClosed:
		if s.Episode.Lasted <= AlertThreshold {
			return Alert{}, false
		}
		return Alert{
			Kind:     AlertClosedAfter,
			Duration: s.Episode.Lasted,
			Message:  "Garage door closed after being open for " + FormatDuration(s.Episode.Lasted),
		}, true
	}

	return Alert{}, false
}

// FormatDuration renders d for humans. Up to and including 60 seconds it is
// shown in seconds, above that in whole minutes. Fractions are truncated.
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs > 60 {
		return plural(secs/60, "minute")
	}
	return plural(secs, "second")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
