package logic

// Level is a raw sampled line value.
type Level int

const (
	LevelLow  Level = 0
	LevelHigh Level = 1
)

// Classify converts a raw sample into a DoorState.
// The reed switch pulls the line high while the magnet is in range, so
// high = Closed and low = Open. A failed read maps to Unknown.
func Classify(level Level, err error) DoorState {
	if err != nil {
		return StateUnknown
	}
	switch level {
	case LevelLow:
		return StateOpen
	case LevelHigh:
		return StateClosed
	default:
		return StateUnknown
	}
}
