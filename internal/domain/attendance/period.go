package attendance

import (
	"fmt"
	"strings"
	"time"
)

// Period is an inclusive range of calendar dates
type Period struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// NewPeriod validates and builds a period from two YYYY-MM-DD dates
func NewPeriod(start, end string) (Period, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period start %q: %w", start, err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period end %q: %w", end, err)
	}
	if e.Before(s) {
		return Period{}, fmt.Errorf("period end %s is before start %s", end, start)
	}
	return Period{Start: start, End: end}, nil
}

// IsZero reports whether the period is unset
func (p Period) IsZero() bool {
	return p.Start == "" && p.End == ""
}

// Contains reports whether the YYYY-MM-DD date falls inside the period.
// Lexical comparison is valid for the fixed-width layout.
func (p Period) Contains(date string) bool {
	if p.IsZero() {
		return true
	}
	return date >= p.Start && date <= p.End
}

// Calendar decides which dates count as working days
type Calendar struct {
	Weekdays map[time.Weekday]bool
	Holidays map[string]bool
}

// DefaultWeekdays is Monday through Friday
var DefaultWeekdays = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// NewCalendar builds a calendar from weekdays and YYYY-MM-DD holidays
func NewCalendar(weekdays []time.Weekday, holidays []string) Calendar {
	if len(weekdays) == 0 {
		weekdays = DefaultWeekdays
	}
	c := Calendar{
		Weekdays: make(map[time.Weekday]bool, len(weekdays)),
		Holidays: make(map[string]bool, len(holidays)),
	}
	for _, d := range weekdays {
		c.Weekdays[d] = true
	}
	for _, h := range holidays {
		c.Holidays[h] = true
	}
	return c
}

// IsWorkingDay reports whether the date is a configured weekday and not a holiday
func (c Calendar) IsWorkingDay(d time.Time) bool {
	return c.Weekdays[d.Weekday()] && !c.Holidays[d.Format(DateLayout)]
}

// WorkingDays counts working days in the period. An unparsable or zero
// period has no working days.
func (c Calendar) WorkingDays(p Period) int {
	start, err := time.Parse(DateLayout, p.Start)
	if err != nil {
		return 0
	}
	end, err := time.Parse(DateLayout, p.End)
	if err != nil {
		return 0
	}

	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsWorkingDay(d) {
			count++
		}
	}
	return count
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekday accepts short or long English weekday names, case-insensitive
func ParseWeekday(name string) (time.Weekday, error) {
	d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", name)
	}
	return d, nil
}
