package scheduling

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	var c Clock
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &c.Hour, &c.Minute); err != nil {
		return Clock{}, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if c.Hour < 0 || c.Hour > 24 || c.Minute < 0 || c.Minute > 59 || (c.Hour == 24 && c.Minute != 0) {
		return Clock{}, fmt.Errorf("parse clock %q: out of range", s)
	}
	return c, nil
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// on returns the instant of c on the calendar day of d, in d's location.
func (c Clock) on(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, d.Location())
}

type Break struct {
	Start Clock
	End   Clock
}

// WorkingHours is a provider's weekly working model.
type WorkingHours struct {
	Location    *time.Location
	WorkStart   Clock
	WorkEnd     Clock
	Lunch       *Break
	Breaks      []Break
	WorkingDays []time.Weekday
	AlwaysOpen  bool
}

// Booking is capacity already allocated to a confirmed process.
type Booking struct {
	Start time.Time
	End   time.Time
}

func (wh WorkingHours) Validate() error {
	if wh.AlwaysOpen {
		return nil
	}
	if wh.WorkStart.minutes() >= wh.WorkEnd.minutes() {
		return fmt.Errorf("work start %s must be before work end %s", wh.WorkStart, wh.WorkEnd)
	}
	if len(wh.WorkingDays) == 0 {
		return errors.New("no working days configured")
	}
	for _, b := range wh.breaks() {
		if b.Start.minutes() >= b.End.minutes() {
			return fmt.Errorf("break %s-%s is empty or inverted", b.Start, b.End)
		}
		if b.Start.minutes() < wh.WorkStart.minutes() || b.End.minutes() > wh.WorkEnd.minutes() {
			return fmt.Errorf("break %s-%s lies outside working hours", b.Start, b.End)
		}
	}
	return nil
}

func (wh WorkingHours) location() *time.Location {
	if wh.Location == nil {
		return time.UTC
	}
	return wh.Location
}

func (wh WorkingHours) works(d time.Weekday) bool {
	for _, w := range wh.WorkingDays {
		if w == d {
			return true
		}
	}
	return false
}

// breaks returns lunch and extra breaks sorted by start.
func (wh WorkingHours) breaks() []Break {
	out := make([]Break, 0, len(wh.Breaks)+1)
	if wh.Lunch != nil {
		out = append(out, *wh.Lunch)
	}
	out = append(out, wh.Breaks...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.minutes() < out[j].Start.minutes() })
	return out
}

// ParseWeekday accepts full or three-letter English day names.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
