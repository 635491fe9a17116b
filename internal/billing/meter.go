// Package billing computes the cost of a metered call. Amounts are in the
// smallest currency unit; durations are billed per started minute.
package billing

import "time"

// Quote is the cost of a call measured between its start and a point in time.
type Quote struct {
	DurationSeconds int64
	BilledMinutes   int64
	TotalCost       int64
}

// Compute meters the elapsed time. Whole seconds are floored, minutes are
// rounded up, so a 61 second call bills two minutes and a call that never
// ran bills nothing.
func Compute(startedAt, now time.Time, ratePerMinute int64) Quote {
	if ratePerMinute < 0 {
		ratePerMinute = 0
	}
	elapsed := now.Sub(startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	seconds := int64(elapsed / time.Second)
	minutes := (seconds + 59) / 60
	return Quote{
		DurationSeconds: seconds,
		BilledMinutes:   minutes,
		TotalCost:       minutes * ratePerMinute,
	}
}
