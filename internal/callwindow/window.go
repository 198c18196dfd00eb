package callwindow

import (
	"errors"
	"fmt"
	"time"
)

// Window is an agency's calling-window policy: the local-time hour range and
// weekdays during which outbound calls to a lead are permitted.
//
// Contract:
// - Hours are local to the lead's timezone, half-open: [StartHour, EndHour).
// - EndHour <= StartHour (overnight windows) is unsupported and rejected.
// - Evaluation is pure. No clocks are read here; callers pass "now".
type Window struct {
	StartHour  int            `json:"start_hour"`
	EndHour    int            `json:"end_hour"`
	DaysOfWeek []time.Weekday `json:"days_of_week"`
}

var (
	ErrUnknownTimezone  = errors.New("callwindow: unknown timezone")
	ErrOvernightWindow  = errors.New("callwindow: end hour must be after start hour")
	ErrEmptyDaysOfWeek  = errors.New("callwindow: days_of_week is empty")
	ErrNoUpcomingWindow = errors.New("callwindow: no valid instant within 7 days")
)

// Validate rejects malformed windows at write time so evaluation never has to guess.
func (w Window) Validate() error {
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
		return fmt.Errorf("callwindow: hours must be in [0,23], got start=%d end=%d", w.StartHour, w.EndHour)
	}
	if w.EndHour <= w.StartHour {
		return ErrOvernightWindow
	}
	if len(w.DaysOfWeek) == 0 {
		return ErrEmptyDaysOfWeek
	}
	return nil
}

func (w Window) allowsDay(d time.Weekday) bool {
	for _, allowed := range w.DaysOfWeek {
		if allowed == d {
			return true
		}
	}
	return false
}

// IsWithinWindow reports whether now, expressed in the lead's timezone, falls
// inside the window.
//
// Timezone lookup failures fail open (true, ErrUnknownTimezone): the caller
// must not delay a lead it cannot place on a clock.
func IsWithinWindow(timezone string, w Window, now time.Time) (bool, error) {
	if err := w.Validate(); err != nil {
		return false, err
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		return true, ErrUnknownTimezone
	}
	local := now.In(loc)
	if !w.allowsDay(local.Weekday()) {
		return false, nil
	}
	h := local.Hour()
	return h >= w.StartHour && h < w.EndHour, nil
}

// NextValidInstant returns the earliest instant at or after now for which
// IsWithinWindow holds. It walks forward at most 7 days; with a non-empty
// DaysOfWeek at least one day must match, but the bound keeps a corrupt
// policy from looping forever.
func NextValidInstant(timezone string, w Window, now time.Time) (time.Time, error) {
	if err := w.Validate(); err != nil {
		return time.Time{}, err
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		return time.Time{}, ErrUnknownTimezone
	}
	local := now.In(loc)

	for i := 0; i <= 7; i++ {
		day := local.AddDate(0, 0, i)
		if !w.allowsDay(day.Weekday()) {
			continue
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), w.StartHour, 0, 0, 0, loc)
		if i == 0 {
			// Today counts only while we are still before the window opens.
			if local.Hour() >= w.StartHour {
				continue
			}
		}
		return start, nil
	}
	return time.Time{}, ErrNoUpcomingWindow
}
