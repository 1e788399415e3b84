package room

import (
	"fmt"
	"math"
	"time"
)

// Advance returns the remaining time after the clock ran from lastUpdate to now.
// A stopped clock, or a timestamp in the past, leaves remaining untouched.
func Advance(remaining time.Duration, lastUpdate time.Time, running bool, now time.Time) time.Duration {
	if !running {
		return remaining
	}
	elapsed := now.Sub(lastUpdate)
	if elapsed <= 0 {
		return remaining
	}
	remaining -= elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FormatClock renders d as m:ss, rounded to whole seconds.
func FormatClock(d time.Duration) string {
	total := int(math.Round(d.Seconds()))
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
