package schedule

import (
	"testing"
	"time"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return loc
}

func TestComputeNextRunUTC_SameDay(t *testing.T) {
	// 01:30 EST on 2024-03-09; 02:00 local is still ahead today.
	now := time.Date(2024, 3, 9, 6, 30, 0, 0, time.UTC)
	got := ComputeNextRunUTC("America/New_York", "02:00", now)

	want := time.Date(2024, 3, 9, 7, 0, 0, 0, time.UTC) // 02:00 EST
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if !got.After(now) {
		t.Fatalf("next run must be strictly after now")
	}
}

func TestComputeNextRunUTC_RollsToNextDay(t *testing.T) {
	// 10:00 EST: today's 02:00 already passed.
	now := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)
	got := ComputeNextRunUTC("America/New_York", "02:00", now)

	loc := mustLoc(t, "America/New_York")
	local := got.In(loc)
	if local.Day() != 10 {
		t.Fatalf("expected next day, got %v", local)
	}
	// 2024-03-10 02:00 EST does not exist (spring forward); expect 03:00.
	if local.Hour() != 3 || local.Minute() != 0 {
		t.Fatalf("expected DST gap to advance to 03:00 local, got %v", local)
	}
}

func TestComputeNextRunUTC_DSTGapAdvancesToTopOfHour(t *testing.T) {
	// Just after midnight local on the spring-forward date.
	loc := mustLoc(t, "America/New_York")
	now := time.Date(2024, 3, 10, 0, 30, 0, 0, loc)

	got := ComputeNextRunUTC("America/New_York", "02:30", now)
	local := got.In(loc)
	if local.Day() != 10 || local.Hour() != 3 || local.Minute() != 0 {
		t.Fatalf("expected 2024-03-10 03:00 local, got %v", local)
	}
}

func TestComputeNextRunUTC_BadTimezoneFallsBackToUTC(t *testing.T) {
	now := time.Date(2024, 6, 1, 1, 0, 0, 0, time.UTC)
	got := ComputeNextRunUTC("Not/AZone", "02:00", now)

	want := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected UTC fallback %v, got %v", want, got)
	}
}

func TestComputeNextRunUTC_BadTimeOfDayFallsBackTo0200(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, bad := range []string{"", "25:00", "12:61", "noon", "7"} {
		got := ComputeNextRunUTC("UTC", bad, now)
		want := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Fatalf("time-of-day %q: expected %v, got %v", bad, want, got)
		}
	}
}

func TestComputeNextRunUTC_CandidateEqualToNowRolls(t *testing.T) {
	now := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	got := ComputeNextRunUTC("UTC", "02:00", now)
	want := time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("candidate equal to now must roll a day: got %v", got)
	}
}

func TestHasRunToday(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	now := time.Date(2024, 3, 9, 20, 0, 0, 0, loc)

	sameLocalDay := time.Date(2024, 3, 9, 3, 0, 0, 0, loc).UTC()
	if !HasRunToday(&sameLocalDay, "America/New_York", now) {
		t.Fatalf("same local date must report true")
	}

	previousDay := time.Date(2024, 3, 8, 23, 0, 0, 0, loc).UTC()
	if HasRunToday(&previousDay, "America/New_York", now) {
		t.Fatalf("previous local date must report false")
	}

	if HasRunToday(nil, "America/New_York", now) {
		t.Fatalf("absent last run must report false")
	}
	var zero time.Time
	if HasRunToday(&zero, "America/New_York", now) {
		t.Fatalf("zero last run must report false")
	}
}

func TestHasRunToday_LocalDateNotUTCDate(t *testing.T) {
	// 2024-03-09 23:00 EST == 2024-03-10 04:00 UTC: a UTC-date comparison
	// would disagree with the tenant-local answer.
	loc := mustLoc(t, "America/New_York")
	now := time.Date(2024, 3, 9, 23, 0, 0, 0, loc)
	lastRun := time.Date(2024, 3, 9, 1, 0, 0, 0, loc).UTC()

	if !HasRunToday(&lastRun, "America/New_York", now) {
		t.Fatalf("expected same tenant-local day")
	}
}

func TestHasRunToday_BadTimezoneFallsBackToUTC(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	lastRun := time.Date(2024, 6, 1, 1, 0, 0, 0, time.UTC)
	if !HasRunToday(&lastRun, "Not/AZone", now) {
		t.Fatalf("expected UTC fallback comparison to report true")
	}
}
