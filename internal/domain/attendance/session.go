package attendance

import "time"

// DateLayout is the calendar-date format used for keys and output
const DateLayout = "2006-01-02"

// Interval is one paired clock-in/clock-out span inside a session
type Interval struct {
	Kind     ClockType  `json:"kind"`
	Start    time.Time  `json:"start"`
	End      *time.Time `json:"end,omitempty"`
	DeviceID string     `json:"deviceId,omitempty"`
}

// Closed reports whether the interval has an end that is not before its start
func (i Interval) Closed() bool {
	return i.End != nil && !i.End.Before(i.Start)
}

// Session aggregates one person's activity for a single calendar date
type Session struct {
	Date           string     `json:"date"`
	PersonID       string     `json:"personId"`
	OrganizationID string     `json:"organizationId,omitempty"`
	ClockIn        time.Time  `json:"clockIn"`
	ClockOut       *time.Time `json:"clockOut,omitempty"`
	BreakStart     *time.Time `json:"breakStart,omitempty"`
	BreakEnd       *time.Time `json:"breakEnd,omitempty"`
	LunchStart     *time.Time `json:"lunchStart,omitempty"`
	LunchEnd       *time.Time `json:"lunchEnd,omitempty"`
	DurationHours  *float64   `json:"durationHours,omitempty"`
	IsLate         bool       `json:"isLate"`
	EarlyDeparture bool       `json:"earlyDeparture"`
	MissedClockOut bool       `json:"missedClockOut"`
	Invalid        bool       `json:"invalid,omitempty"`
	Intervals      []Interval `json:"intervals,omitempty"`
	EventCount     int        `json:"eventCount"`
}

// Complete reports whether the session has both a clock-in and a usable clock-out
func (s Session) Complete() bool {
	return s.ClockOut != nil && !s.Invalid
}

// Weekday returns the weekday of the session's calendar date
func (s Session) Weekday() time.Weekday {
	d, err := time.Parse(DateLayout, s.Date)
	if err != nil {
		return s.ClockIn.Weekday()
	}
	return d.Weekday()
}
