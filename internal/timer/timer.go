// Package timer is a coarse clock for I/O deadlines. Setting a deadline on every
// read asks for the current time much more often than it changes meaningfully.
package timer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Resolution is how often the clock is updated. Precise enough for deadlines
// measured in seconds.
const Resolution = 500 * time.Millisecond

var (
	millis = new(atomic.Int64)
	start  sync.Once
)

// Now returns the current time, lagging behind by at most Resolution.
func Now() time.Time {
	start.Do(run)
	return time.UnixMilli(millis.Load())
}

// Deadline returns the moment the timeout expires at.
func Deadline(timeout time.Duration) time.Time {
	return Now().Add(timeout)
}

func run() {
	millis.Store(time.Now().UnixMilli())

	go func() {
		ticker := time.NewTicker(Resolution)
		for now := range ticker.C {
			millis.Store(now.UnixMilli())
		}
	}()
}
