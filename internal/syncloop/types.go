// Package syncloop contains the device state synchronization loop.
// This package has NO direct I/O (no GPIO, network, OS or time.Sleep): collaborators are
// narrow interfaces and time is always injected via time.Time parameters.
package syncloop

import (
	"context"
	"time"
)

// Remote is the cloud key-path store.
type Remote interface {
	SetBool(ctx context.Context, path string, v bool) error
	GetBool(ctx context.Context, path string) (bool, error)
}

// Connectivity gates all remote traffic.
type Connectivity interface {
	Online() bool
}

// Output drives the physical LED. Apply has no failure mode.
type Output interface {
	Apply(on bool)
}

// Config holds the loop's immutable settings.
type Config struct {
	StatePath   string // DeviceState is published here
	CommandPath string // remote commands are read from here

	PublishInterval time.Duration
	PollInterval    time.Duration

	// ReadCommand enables polling CommandPath.
	ReadCommand bool

	// CallTimeout bounds each remote call (0 = rely on the store's own timeout).
	CallTimeout time.Duration
}

// Result describes what one tick did.
type Result struct {
	Time   time.Time
	Online bool

	PublishAttempted bool
	PublishErr       error

	PollAttempted bool
	PollErr       error
	Polled        bool // successful read of the command path
	Remote        bool // value read, valid when Polled

	// Changed is true when a polled command changed DeviceState.
	Changed bool

	// State is DeviceState after the tick.
	State bool
}

// Counts tracks loop activity since startup.
type Counts struct {
	Ticks           int
	OfflineTicks    int
	Publishes       int
	PublishFailures int
	Polls           int
	PollFailures    int
	RemoteChanges   int
	LocalChanges    int
}

// Stats is a point-in-time copy of the loop state for status consumers.
type Stats struct {
	State       bool
	LastPublish time.Time
	LastPoll    time.Time
	Counts      Counts

	LastPublishErr error
	LastPollErr    error
}
