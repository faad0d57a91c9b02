package schedule

import (
	"strconv"
	"strings"
	"time"
)

// Pure schedule math. No I/O, safe for concurrent and repeated evaluation.
//
// Fallback rules (never errors, per-call so one bad tenant config only
// degrades that tenant's locality):
// - unresolvable timezone -> UTC
// - malformed time-of-day -> 02:00 local

const defaultHour, defaultMinute = 2, 0

// ComputeNextRunUTC returns the next occurrence of the daily wall-clock time
// in the given IANA timezone, strictly after now, converted to UTC.
//
// A candidate that falls in a spring-forward DST gap (the wall-clock time does
// not exist that day) advances to the next valid top-of-hour.
func ComputeNextRunUTC(timezone, dailyTimeOfDay string, now time.Time) time.Time {
	loc := loadLocation(timezone)
	hour, minute := parseTimeOfDay(dailyTimeOfDay)

	local := now.In(loc)
	for day := 0; ; day++ {
		cand := civilTime(local.Year(), local.Month(), local.Day()+day, hour, minute, loc)
		if cand.After(now) {
			return cand.UTC()
		}
	}
}

// HasRunToday reports whether lastRunUTC falls on the same local calendar
// date as now in the given timezone. Calendar dates, not 24h windows: this is
// the guard that keeps a recurring job from firing twice on the same
// tenant-local day even when polled far more often than daily.
func HasRunToday(lastRunUTC *time.Time, timezone string, now time.Time) bool {
	if lastRunUTC == nil || lastRunUTC.IsZero() {
		return false
	}
	loc := loadLocation(timezone)
	y1, m1, d1 := lastRunUTC.In(loc).Date()
	y2, m2, d2 := now.In(loc).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// civilTime builds the wall-clock instant, skipping a nonexistent civil time
// forward to the next valid top-of-hour.
func civilTime(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	cand := time.Date(year, month, day, hour, minute, 0, 0, loc)
	if cand.Hour() == hour && cand.Minute() == minute {
		return cand
	}
	// The requested wall-clock time is inside a DST gap; time.Date normalized
	// it away. Walk forward by top-of-hour until one exists as written.
	for h := hour + 1; h <= hour+3; h++ {
		next := time.Date(year, month, day, h, 0, 0, 0, loc)
		if next.Hour() == h%24 {
			return next
		}
	}
	return cand
}

func loadLocation(timezone string) *time.Location {
	loc, err := time.LoadLocation(timezone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

func parseTimeOfDay(s string) (hour, minute int) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return defaultHour, defaultMinute
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return defaultHour, defaultMinute
	}
	return h, m
}
