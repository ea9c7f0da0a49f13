package syncloop

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInterval = errors.New("interval must be positive")
	ErrMissingPath     = errors.New("path must be set")
)

// Loop owns DeviceState and reconciles it with the remote store.
//
// A Loop is not safe for concurrent use. Exactly one goroutine calls Start, Tick and Set;
// other goroutines observe it through Stats copies handed out by that goroutine.
type Loop struct {
	cfg    Config
	remote Remote
	conn   Connectivity
	out    Output

	state   bool
	publish Timer
	poll    Timer
	counts  Counts

	lastPublishErr error
	lastPollErr    error
}

// New creates a Loop. Both timers start at start, so nothing is due until a full
// interval has elapsed. DeviceState starts off.
func New(cfg Config, remote Remote, conn Connectivity, out Output, start time.Time) (*Loop, error) {
	if cfg.PublishInterval <= 0 {
		return nil, fmt.Errorf("publish %w", ErrInvalidInterval)
	}
	if cfg.ReadCommand && cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll %w", ErrInvalidInterval)
	}
	if cfg.StatePath == "" {
		return nil, fmt.Errorf("state %w", ErrMissingPath)
	}
	if cfg.ReadCommand && cfg.CommandPath == "" {
		return nil, fmt.Errorf("command %w", ErrMissingPath)
	}

	return &Loop{
		cfg:     cfg,
		remote:  remote,
		conn:    conn,
		out:     out,
		publish: Timer{Interval: cfg.PublishInterval, Last: start},
		poll:    Timer{Interval: cfg.PollInterval, Last: start},
	}, nil
}

// Start drives the output to the initial state and, when commands are read and the
// device is online, restores the last remote command. It returns whether the command
// was restored; a failed read is returned and leaves everything unchanged.
func (l *Loop) Start(ctx context.Context, now time.Time) (bool, error) {
	l.out.Apply(l.state)

	if !l.cfg.ReadCommand || !l.conn.Online() {
		return false, nil
	}

	v, err := l.get(ctx)
	if err != nil {
		l.counts.PollFailures++
		l.lastPollErr = err
		return false, err
	}
	l.counts.Polls++
	l.poll.Fire(now)
	if v != l.state {
		l.state = v
		l.out.Apply(v)
		l.counts.RemoteChanges++
	}
	return true, nil
}

// Tick runs one cycle: connectivity gate, publish when due, poll when due.
// Failures are reported in the Result and retried when the timer is next checked.
func (l *Loop) Tick(ctx context.Context, now time.Time) Result {
	l.counts.Ticks++
	res := Result{Time: now, State: l.state}

	if !l.conn.Online() {
		l.counts.OfflineTicks++
		return res
	}
	res.Online = true

	// Publish reflects the state before this tick's poll.
	if l.publish.Due(now) {
		res.PublishAttempted = true
		if err := l.set(ctx, l.state); err != nil {
			res.PublishErr = err
			l.counts.PublishFailures++
			l.lastPublishErr = err
		} else {
			l.publish.Fire(now)
			l.counts.Publishes++
			l.lastPublishErr = nil
		}
	}

	if l.cfg.ReadCommand && l.poll.Due(now) {
		res.PollAttempted = true
		v, err := l.get(ctx)
		if err != nil {
			res.PollErr = err
			l.counts.PollFailures++
			l.lastPollErr = err
		} else {
			l.poll.Fire(now)
			l.counts.Polls++
			l.lastPollErr = nil
			res.Polled = true
			res.Remote = v
			if v != l.state {
				l.state = v
				l.out.Apply(v)
				l.counts.RemoteChanges++
				res.Changed = true
			}
		}
	}

	res.State = l.state
	return res
}

// Set changes DeviceState from a local source and drives the output on change.
// The new state reaches the cloud at the next publish firing.
func (l *Loop) Set(on bool) bool {
	if on == l.state {
		return false
	}
	l.state = on
	l.out.Apply(on)
	l.counts.LocalChanges++
	return true
}

// State returns DeviceState.
func (l *Loop) State() bool {
	return l.state
}

// Stats returns a copy of the loop state.
func (l *Loop) Stats() Stats {
	return Stats{
		State:          l.state,
		LastPublish:    l.publish.Last,
		LastPoll:       l.poll.Last,
		Counts:         l.counts,
		LastPublishErr: l.lastPublishErr,
		LastPollErr:    l.lastPollErr,
	}
}

func (l *Loop) set(ctx context.Context, v bool) error {
	ctx, cancel := l.callContext(ctx)
	defer cancel()
	return l.remote.SetBool(ctx, l.cfg.StatePath, v)
}

func (l *Loop) get(ctx context.Context) (bool, error) {
	ctx, cancel := l.callContext(ctx)
	defer cancel()
	return l.remote.GetBool(ctx, l.cfg.CommandPath)
}

func (l *Loop) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, l.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}
