package throttle

import (
	"testing"
	"time"
)

func TestSkipThrottler(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	tt := NewSkipThrottler(time.Second)
	tt.now = func() time.Time { return now }

	tests := []struct {
		at time.Duration
		ok bool
	}{
		{at: 0, ok: true},
		{at: 500 * time.Millisecond, ok: false},
		{at: time.Second, ok: true},
		{at: 1999 * time.Millisecond, ok: false},
		{at: 3 * time.Second, ok: true},
	}
	for _, test := range tests {
		now = start.Add(test.at)
		if ok := tt.Ok(); ok != test.ok {
			t.Fatalf("%v: %v, expected %v", test.at, ok, test.ok)
		}
	}
}
