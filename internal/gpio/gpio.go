// Package gpio drives the LED output pin with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Writer sets the electrical level of a single output line.
type Writer interface {
	// Write drives the line high (true) or low (false).
	Write(high bool) error

	// Close releases GPIO resources.
	Close() error
}

// Defaults for the reference board wiring, used by config when nothing is set.
const (
	DefaultChip = "gpiochip0"
	DefaultPin  = 2 // line offset of the on-board LED
)
