// Package util contains misc internal utilities.
package util

import (
	"math"
	"time"
)

// IntInRange returns true if low <= i <= high
func IntInRange(i, low, high int) bool {
	return i >= low && i <= high
}

// SecsToDuration converts a floating point number of seconds to a time.Duration,
// rounded to the nearest nanosecond
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * float64(time.Second)))
}
