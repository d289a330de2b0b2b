// Package throttle limits the rate of progress reports.
package throttle

import "time"

// SkipThrottler drops events that arrive within d of the last accepted one.
type SkipThrottler struct {
	d    time.Duration
	last time.Time
	now  func() time.Time
}

// NewSkipThrottler returns a throttler whose first event is always accepted.
func NewSkipThrottler(d time.Duration) *SkipThrottler {
	return &SkipThrottler{d: d, now: time.Now}
}

// Ok reports whether an event happening now should be reported.
func (tt *SkipThrottler) Ok() bool {
	now := tt.now()
	if !tt.last.IsZero() && now.Before(tt.last.Add(tt.d)) {
		return false
	}
	tt.last = now
	return true
}
