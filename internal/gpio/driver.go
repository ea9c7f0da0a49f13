package gpio

import "log/slog"

// Driver translates the logical LED state into a pin level, honouring polarity.
type Driver struct {
	w          Writer
	activeHigh bool
	log        *slog.Logger
}

// NewDriver creates a Driver. With activeHigh false the LED is lit by driving the pin low.
func NewDriver(w Writer, activeHigh bool, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{
		w:          w,
		activeHigh: activeHigh,
		log:        log.With(slog.String("component", "gpio")),
	}
}

// Level returns the pin level that represents the logical state on.
func (d *Driver) Level(on bool) bool {
	if d.activeHigh {
		return on
	}
	return !on
}

// Apply drives the pin to the level for on.
// Write errors are logged, the caller keeps its state regardless.
func (d *Driver) Apply(on bool) {
	level := d.Level(on)
	if err := d.w.Write(level); err != nil {
		d.log.Warn("pin write failed", slog.Bool("on", on), slog.Bool("level", level), slog.Any("error", err))
	}
}
