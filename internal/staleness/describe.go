// Package staleness renders the age of the fire data for the "last updated" line
// and drives the periodic re-render that keeps that line current.
package staleness

import (
	"fmt"
	"time"
)

// AbsoluteLayout is used once data is a day or more old.
const AbsoluteLayout = "Jan 2, 3:04 PM"

// Describe returns a human-readable age of observed relative to now. Ages are
// truncated to whole minutes; timestamps in the future read as "Just now".
func Describe(observed, now time.Time, loc *time.Location) string {
	if observed.IsZero() {
		return "Never"
	}

	minutes := int(now.Sub(observed) / time.Minute)
	switch {
	case minutes < 1:
		return "Just now"
	case minutes < 60:
		return plural(minutes, "min")
	case minutes < 24*60:
		return plural(minutes/60, "hour")
	}

	if loc == nil {
		loc = time.UTC
	}
	return observed.In(loc).Format(AbsoluteLayout)
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
