// Package gpio provides GPIO input reading and LED output with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the raw level of the door sensor line.
type Reader interface {
	// Read returns the raw line value: 1 (high) or 0 (low).
	Read() (int, error)

	// Close releases GPIO resources.
	Close() error
}

// LED drives the status LED.
type LED interface {
	// Set turns the LED on or off.
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	DefaultPinDoor = 20 // header pin 38
	DefaultPinLED  = 21 // header pin 40
)

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Unavailable is a Reader for a line that could not be acquired. Every read
// fails with Err, so the door is reported Unknown instead of the daemon exiting.
type Unavailable struct {
	Err error
}

func (u Unavailable) Read() (int, error) { return 0, u.Err }
func (u Unavailable) Close() error       { return nil }
