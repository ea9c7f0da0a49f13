package syncloop

import "time"

// Timer is a fixed-interval, last-fired timer.
// It fires at most once per check no matter how many intervals have elapsed.
type Timer struct {
	Interval time.Duration
	Last     time.Time
}

// Due reports whether Interval has elapsed since Last.
func (t Timer) Due(now time.Time) bool {
	return now.Sub(t.Last) >= t.Interval
}

// Fire records now as the last firing. Missed intervals are not caught up.
func (t *Timer) Fire(now time.Time) {
	t.Last = now
}
