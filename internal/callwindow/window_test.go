package callwindow

import (
	"errors"
	"testing"
	"time"
)

var weekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

func businessHours() Window {
	return Window{StartHour: 9, EndHour: 17, DaysOfWeek: weekdays}
}

// mustTime builds an instant at a wall-clock time in the given zone.
func mustTime(t *testing.T, tz string, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load %q: %v", tz, err)
	}
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func TestIsWithinWindow_Boundaries(t *testing.T) {
	const tz = "America/New_York"
	w := businessHours()

	// 2025-06-02 is a Monday.
	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"exactly at open", mustTime(t, tz, 2025, time.June, 2, 9, 0), true},
		{"just before open", mustTime(t, tz, 2025, time.June, 2, 8, 59), false},
		{"exactly at close", mustTime(t, tz, 2025, time.June, 2, 17, 0), false},
		{"last minute inside", mustTime(t, tz, 2025, time.June, 2, 16, 59), true},
		{"allowed hour on saturday", mustTime(t, tz, 2025, time.June, 7, 10, 0), false},
	}
	for _, tc := range cases {
		got, err := IsWithinWindow(tz, w, tc.at)
		if err != nil {
			t.Fatalf("%s: unexpected err: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsWithinWindow_UnknownTimezoneFailsOpen(t *testing.T) {
	for _, tz := range []string{"", "Mars/Olympus"} {
		ok, err := IsWithinWindow(tz, businessHours(), time.Now())
		if !ok {
			t.Fatalf("tz %q: expected fail-open true", tz)
		}
		if !errors.Is(err, ErrUnknownTimezone) {
			t.Fatalf("tz %q: expected ErrUnknownTimezone, got %v", tz, err)
		}
	}
}

func TestWindow_RejectsOvernight(t *testing.T) {
	w := Window{StartHour: 20, EndHour: 4, DaysOfWeek: weekdays}
	if _, err := IsWithinWindow("UTC", w, time.Now()); !errors.Is(err, ErrOvernightWindow) {
		t.Fatalf("expected ErrOvernightWindow, got %v", err)
	}
	if _, err := NextValidInstant("UTC", w, time.Now()); !errors.Is(err, ErrOvernightWindow) {
		t.Fatalf("expected ErrOvernightWindow, got %v", err)
	}
}

func TestNextValidInstant_SaturdayRollsToMonday(t *testing.T) {
	const tz = "America/Chicago"
	// Saturday 2025-06-07 10:00 local.
	now := mustTime(t, tz, 2025, time.June, 7, 10, 0)

	next, err := NextValidInstant(tz, businessHours(), now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := mustTime(t, tz, 2025, time.June, 9, 9, 0)
	if !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}
}

func TestNextValidInstant_SameDayBeforeOpen(t *testing.T) {
	const tz = "UTC"
	// Wednesday 2025-06-04 06:30.
	now := mustTime(t, tz, 2025, time.June, 4, 6, 30)

	next, err := NextValidInstant(tz, businessHours(), now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := mustTime(t, tz, 2025, time.June, 4, 9, 0)
	if !next.Equal(want) {
		t.Fatalf("got %v, want %v", next, want)
	}
}

func TestNextValidInstant_BoundedAndWithinWindow(t *testing.T) {
	const tz = "Europe/Berlin"
	w := Window{StartHour: 10, EndHour: 12, DaysOfWeek: []time.Weekday{time.Sunday}}

	// Walk a week's worth of starting instants; result must always satisfy
	// IsWithinWindow and never be more than 7 days out.
	start := mustTime(t, tz, 2025, time.June, 2, 15, 0)
	for i := 0; i < 7; i++ {
		now := start.AddDate(0, 0, i)
		next, err := NextValidInstant(tz, w, now)
		if err != nil {
			t.Fatalf("day %d: unexpected err: %v", i, err)
		}
		if next.Sub(now) > 7*24*time.Hour {
			t.Fatalf("day %d: next %v is more than 7 days after %v", i, next, now)
		}
		ok, err := IsWithinWindow(tz, w, next)
		if err != nil || !ok {
			t.Fatalf("day %d: next %v is not inside the window (ok=%v err=%v)", i, next, ok, err)
		}
	}
}
