package notifications

import (
	"fmt"
	"time"
)

// RelativeTime renders created relative to now, e.g. "5 min ago".
// Timestamps older than four weeks are shown as a date.
func RelativeTime(created, now time.Time) string {
	d := now.Sub(created)
	if d < time.Minute {
		return "Just now"
	}
	minutes := int(d / time.Minute)
	if minutes < 60 {
		return fmt.Sprintf("%d min ago", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return plural(hours, "hour")
	}
	days := hours / 24
	if days < 7 {
		return plural(days, "day")
	}
	if weeks := days / 7; weeks < 4 {
		return plural(weeks, "week")
	}
	return created.Local().Format("2006-01-02")
}

func plural(n int, unit string) string {
	if n > 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s ago", n, unit)
}

// ParseTimestamp accepts the timestamp formats the backend emits.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
