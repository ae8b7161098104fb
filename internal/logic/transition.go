package logic

import "time"

// Transition applies a single sample to the current record and returns the
// candidate record. It is evaluated on every sample, not only on edges, so
// callers should compare the result with cur and skip the write when equal.
func Transition(cur State, sample DoorState, now time.Time, policy ClosePolicy) State {
	next := cur

	switch sample {
	case StateOpen:
		if cur.Episode.Kind == EpisodeOpen {
			// Still the same episode, possibly after a stretch of Unknown.
			next.Door = StateOpen
			return next
		}
		return State{Door: StateOpen, Episode: OpenSince(now)}

	case StateClosed:
		switch cur.Episode.Kind {
		case EpisodeOpen:
			if policy == ClosePolicyReport {
				return State{Door: StateClosed, Episode: ClosedAfter(now.Sub(cur.Episode.Since))}
			}
			return State{Door: StateClosed, Episode: NoEpisode()}
		case EpisodeClosed:
			if closingConsumed(cur) {
				return State{Door: StateClosed, Episode: NoEpisode()}
			}
		}
		next.Door = StateClosed
		return next

	default:
		next.Door = StateUnknown
		return next
	}
}

// closingConsumed reports whether a ClosedAfter marker no longer needs to be
// kept around for the notifier: either its alert went out, or the episode was
// too short to alert on.
func closingConsumed(s State) bool {
	return s.Notified() || s.Episode.Lasted <= AlertThreshold
}

// ResetsNotified reports whether going from prev to next started a new open
// episode or resolved a closed one. In both cases NotifiedAt is cleared.
func ResetsNotified(prev, next State) bool {
	if next.Episode.Kind == EpisodeOpen {
		return prev.Episode.Kind != EpisodeOpen || !prev.Episode.Since.Equal(next.Episode.Since)
	}
	return prev.Episode.Kind != next.Episode.Kind
}

// DoorEvent returns the event describing a change of the logical door state
// between prev and next, if there is one.
func DoorEvent(prev, next State, now time.Time) (Event, bool) {
	if prev.Door == next.Door {
		return Event{}, false
	}

	event := Event{
		Timestamp: now,
		State:     next.Door,
	}
	switch next.Door {
	case StateOpen:
		event.Type = EventOpened
	case StateClosed:
		event.Type = EventClosed
		if prev.Episode.Kind == EpisodeOpen {
			event.OpenFor = now.Sub(prev.Episode.Since)
		}
	default:
		event.Type = EventUnknown
	}
	return event, true
}
