// Package slots computes free appointment start times inside a working window.
//
// Times of day are naive local clock values; there is no timezone handling.
package slots

import (
	"fmt"
	"time"

	"github.com/workwork-1/projectbotsalon/pkg/utils/errs"
)

const (
	// DefaultStep is the granularity of candidate start times, in minutes.
	DefaultStep = 15

	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Clock is a time of day in minutes since midnight.
type Clock int

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	if len(s) != len(ClockLayout) {
		return 0, errs.Validation("invalid time, want HH:MM").Arg("value", s)
	}
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, errs.Validation("invalid time, want HH:MM").Arg("value", s).Wrap(err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// MustClock is ParseClock for constants.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Add returns the clock shifted by the given number of minutes.
func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

// ParseDate parses "YYYY-MM-DD" into a civil date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, errs.Validation("invalid date, want YYYY-MM-DD").Arg("value", s).Wrap(err)
	}
	return d, nil
}

// Day truncates t to its civil date at midnight UTC, ignoring t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Window is a master's working hours on one date.
type Window struct {
	Start Clock
	End   Clock
}

// Interval is a half-open busy range [Start, End).
type Interval struct {
	Start Clock
	End   Clock
}

// Slot is a candidate appointment.
type Slot struct {
	Start Clock
	End   Clock
}

// Overlaps reports whether [start,end) intersects the interval.
func (iv Interval) Overlaps(start, end Clock) bool {
	return !(end <= iv.Start || start >= iv.End)
}

// Contains reports whether [start,end) lies inside the window.
func (w Window) Contains(start, end Clock) bool {
	return start >= w.Start && end <= w.End
}

// Available returns, in ascending order, every start time on a step grid anchored at
// w.Start such that a booking of duration minutes fits in the window and does not
// overlap any busy interval.
func Available(w Window, duration, step int, busy []Interval) []Slot {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if w.End <= w.Start {
		return nil
	}

	var out []Slot
	for start := w.Start; start.Add(duration) <= w.End; start = start.Add(step) {
		end := start.Add(duration)
		if !overlapsAny(start, end, busy) {
			out = append(out, Slot{Start: start, End: end})
		}
	}
	return out
}

// Includes reports whether start is one of the slot start times.
func Includes(list []Slot, start Clock) bool {
	for _, s := range list {
		if s.Start == start {
			return true
		}
	}
	return false
}

func overlapsAny(start, end Clock, busy []Interval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
