package guard

import (
	"slices"
	"time"

	"github.com/Rajchodisetti/guardrail-agent/internal/config"
)

// inHalt reports whether now falls in any halt window. An entry may carry
// both an absolute and a daily window; either one matching halts. Daily
// windows are [start, end) in UTC and wrap past midnight when start > end.
func inHalt(halts []config.Halt, now time.Time) bool {
	ts := epoch(now)
	utc := now.UTC()
	minute := utc.Hour()*60 + utc.Minute()
	weekday := (int(utc.Weekday()) + 6) % 7

	for _, h := range halts {
		if h.Absolute() && ts >= *h.StartTS && ts < *h.EndTS {
			return true
		}
		if h.Daily() && inDailyWindow(h, minute, weekday) {
			return true
		}
	}
	return false
}

func inDailyWindow(h config.Halt, minute, weekday int) bool {
	if len(h.Weekdays) > 0 && !slices.Contains(h.Weekdays, weekday) {
		return false
	}
	start, err1 := config.ClockMinutes(h.StartUTC)
	end, err2 := config.ClockMinutes(h.EndUTC)
	if err1 != nil || err2 != nil {
		return false
	}
	if start <= end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}
