package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// ActiveWindow limits ticks to a daily clock range on selected weekdays.
type ActiveWindow struct {
	// Start and End are offsets from local midnight; End is exclusive.
	Start    time.Duration
	End      time.Duration
	Weekdays map[time.Weekday]bool
	Location *time.Location
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWindow builds a window from "HH:MM" bounds and weekday names like "mon".
// Empty start and end disable the clock check; no weekdays allows every day.
func ParseWindow(start, end string, weekdays []string, loc *time.Location) (*ActiveWindow, error) {
	if loc == nil {
		loc = time.UTC
	}
	w := &ActiveWindow{Location: loc, End: 24 * time.Hour}

	if strings.TrimSpace(start) != "" {
		d, err := parseClock(start)
		if err != nil {
			return nil, fmt.Errorf("window start: %w", err)
		}
		w.Start = d
	}
	if strings.TrimSpace(end) != "" {
		d, err := parseClock(end)
		if err != nil {
			return nil, fmt.Errorf("window end: %w", err)
		}
		w.End = d
	}
	if w.End <= w.Start {
		return nil, fmt.Errorf("window end %s must be after start %s", end, start)
	}

	if len(weekdays) > 0 {
		w.Weekdays = make(map[time.Weekday]bool, len(weekdays))
		for _, name := range weekdays {
			key := strings.ToLower(strings.TrimSpace(name))
			if len(key) > 3 {
				key = key[:3]
			}
			day, ok := weekdayNames[key]
			if !ok {
				return nil, fmt.Errorf("unknown weekday %q", name)
			}
			w.Weekdays[day] = true
		}
	}
	return w, nil
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", v, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Contains reports whether t falls inside the window.
func (w *ActiveWindow) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	local := t.In(w.Location)
	if len(w.Weekdays) > 0 && !w.Weekdays[local.Weekday()] {
		return false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.Location)
	offset := local.Sub(midnight)
	return offset >= w.Start && offset < w.End
}
