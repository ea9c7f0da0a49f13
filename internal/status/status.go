// Package status provides a thread-safe view of the led-sync daemon for HTTP consumers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/led-sync/internal/connectivity"
	"github.com/sweeney/led-sync/internal/syncloop"
)

// Config is the daemon configuration shown to status consumers. It never carries secrets.
type Config struct {
	Backend     string
	Endpoint    string // DB URL, broker or table, whichever the backend uses
	StatePath   string
	CommandPath string
	ReadCommand bool
	PublishMs   int64
	PollMs      int64
	LEDPin      int
	ActiveHigh  bool
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Loop      syncloop.Stats
	Online    bool
	Started   bool // initial output applied and bootstrap attempted
	StartTime time.Time
	Now       time.Time
	Network   *connectivity.NetworkInfo
	Config    Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update records the loop statistics after a tick.
func (t *Tracker) Update(stats syncloop.Stats) {
	t.mu.Lock()
	t.snap.Loop = stats
	t.snap.Started = true
	t.mu.Unlock()
}

// SetOnline records the latest connectivity check.
func (t *Tracker) SetOnline(online bool) {
	t.mu.Lock()
	t.snap.Online = online
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *connectivity.NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
