//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealWriter drives an output line on actual hardware using the Linux GPIO character device.
type RealWriter struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
	pin  int
}

// NewRealWriter requests pin on the named chip as an output, initially at level initialHigh.
func NewRealWriter(chipName string, pin int, initialHigh bool) (*RealWriter, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(levelValue(initialHigh)))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}

	return &RealWriter{chip: chip, line: line, pin: pin}, nil
}

// Write sets the raw line value.
func (w *RealWriter) Write(high bool) error {
	if err := w.line.SetValue(levelValue(high)); err != nil {
		return fmt.Errorf("write pin %d: %w", w.pin, err)
	}
	return nil
}

// Close releases the line and the chip.
func (w *RealWriter) Close() error {
	var errs []error

	if w.line != nil {
		if err := w.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", w.pin, err))
		}
	}
	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func levelValue(high bool) int {
	if high {
		return 1
	}
	return 0
}
