package stream

import (
	"sync/atomic"
	"time"
)

// Activity is the last-byte-received clock of one invocation. It is written by
// both pumps and read by the watchdog. Offsets are taken from a fixed origin so
// that readings use the monotonic clock.
type Activity struct {
	origin time.Time
	last   atomic.Int64 // nanoseconds since origin
}

// NewActivity starts the clock; the spawn instant counts as activity.
func NewActivity() *Activity {
	return &Activity{origin: time.Now()}
}

// Touch records activity now. The stored value never moves backwards.
func (a *Activity) Touch() {
	now := int64(time.Since(a.origin))
	for {
		cur := a.last.Load()
		if now <= cur || a.last.CompareAndSwap(cur, now) {
			return
		}
	}
}

// Idle is the time elapsed since the last activity.
func (a *Activity) Idle() time.Duration {
	return time.Since(a.origin) - time.Duration(a.last.Load())
}

// Last is the wall time of the last activity.
func (a *Activity) Last() time.Time {
	return a.origin.Add(time.Duration(a.last.Load()))
}
