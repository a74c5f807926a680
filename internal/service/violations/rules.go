package violations

import (
	"fmt"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
)

// Rule evaluates the sessions of one person, sorted by date
type Rule interface {
	Type() attendance.ViolationType
	Evaluate(sessions []attendance.Session) []attendance.Violation
}

type missedClockOutRule struct{}

func (missedClockOutRule) Type() attendance.ViolationType {
	return attendance.ViolationMissedClockOut
}

func (r missedClockOutRule) Evaluate(sessions []attendance.Session) []attendance.Violation {
	const rule = "missed_clock_out: clock-in recorded with no clock-out on the same date"

	var out []attendance.Violation
	for _, s := range sessions {
		if !s.MissedClockOut {
			continue
		}
		out = append(out, attendance.NewViolation(s, r.Type(), attendance.SeverityHigh, rule,
			fmt.Sprintf("Clocked in at %s on %s without clocking out", s.ClockIn.Format("15:04"), s.Date)))
	}
	return out
}

type repeatedLatenessRule struct {
	threshold int
}

func (repeatedLatenessRule) Type() attendance.ViolationType {
	return attendance.ViolationRepeatedLateness
}

// Evaluate counts late sessions per calendar month and emits one violation
// for every late date at which the running count has reached the threshold.
func (r repeatedLatenessRule) Evaluate(sessions []attendance.Session) []attendance.Violation {
	rule := fmt.Sprintf("repeated_lateness: late sessions in the same month >= %d", r.threshold)

	var out []attendance.Violation
	month := ""
	count := 0
	for _, s := range sessions {
		if m := monthOf(s.Date); m != month {
			month = m
			count = 0
		}
		if !s.IsLate {
			continue
		}
		count++
		if count < r.threshold {
			continue
		}
		out = append(out, attendance.NewViolation(s, r.Type(), attendance.SeverityMedium, rule,
			fmt.Sprintf("Late arrival #%d in %s (clock-in %s)", count, month, s.ClockIn.Format("15:04"))))
	}
	return out
}

type unusualClockInRule struct {
	startHour int
	endHour   int
}

func (unusualClockInRule) Type() attendance.ViolationType {
	return attendance.ViolationUnusualClockIn
}

func (r unusualClockInRule) Evaluate(sessions []attendance.Session) []attendance.Violation {
	rule := fmt.Sprintf("unusual_clock_in_time: clock-in hour < %d or > %d", r.startHour, r.endHour)

	var out []attendance.Violation
	for _, s := range sessions {
		h := s.ClockIn.Hour()
		if h >= r.startHour && h <= r.endHour {
			continue
		}
		out = append(out, attendance.NewViolation(s, r.Type(), attendance.SeverityLow, rule,
			fmt.Sprintf("Clock-in at %s is outside %02d:00-%02d:59", s.ClockIn.Format("15:04"), r.startHour, r.endHour)))
	}
	return out
}

// monthOf returns the YYYY-MM prefix of a session date
func monthOf(date string) string {
	if len(date) < len("2006-01") {
		return date
	}
	return date[:len("2006-01")]
}
