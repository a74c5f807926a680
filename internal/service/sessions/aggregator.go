package sessions

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
	"github.com/davidleathers/attendance-analytics-engine/internal/domain/values"
)

// Config holds the day boundaries used to classify sessions
type Config struct {
	GraceHour    int
	GraceMinute  int
	EndOfDayHour int
	Location     *time.Location
}

// DefaultConfig is a 09:00 grace cutoff and 17:00 end of day in UTC
func DefaultConfig() Config {
	return Config{GraceHour: 9, EndOfDayHour: 17, Location: time.UTC}
}

// GraceCutoff returns the late threshold on the given local date
func (c Config) GraceCutoff(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.GraceHour, c.GraceMinute, 0, 0, c.location())
}

// EndOfDay returns the early-departure threshold on the given local date
func (c Config) EndOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.EndOfDayHour, 0, 0, 0, c.location())
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Result is the aggregator output
type Result struct {
	Sessions []attendance.Session
	Excluded []attendance.ExcludedRecord
}

// Aggregator groups validated events into one session per person per date
type Aggregator struct {
	cfg    Config
	logger *zap.Logger
}

func NewAggregator(cfg Config, logger *zap.Logger) *Aggregator {
	return &Aggregator{cfg: cfg, logger: logger.Named("sessions")}
}

// Aggregate builds sessions for all persons, sorted by person then date
func (a *Aggregator) Aggregate(ctx context.Context, events []attendance.Event) (Result, error) {
	var res Result
	for _, group := range GroupByPerson(events) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		r := a.AggregatePerson(group)
		res.Sessions = append(res.Sessions, r.Sessions...)
		res.Excluded = append(res.Excluded, r.Excluded...)
	}

	a.logger.Debug("aggregated sessions",
		zap.Int("events", len(events)),
		zap.Int("sessions", len(res.Sessions)),
		zap.Int("excluded", len(res.Excluded)),
	)
	return res, nil
}

// GroupByPerson splits events per person. Groups are ordered by person ID.
func GroupByPerson(events []attendance.Event) [][]attendance.Event {
	byPerson := make(map[string][]attendance.Event)
	for _, e := range events {
		byPerson[e.PersonID] = append(byPerson[e.PersonID], e)
	}

	ids := make([]string, 0, len(byPerson))
	for id := range byPerson {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	groups := make([][]attendance.Event, len(ids))
	for i, id := range ids {
		groups[i] = byPerson[id]
	}
	return groups
}

// AggregatePerson builds the sessions of a single person. All events must
// share one person ID. It only reads its input, so callers may run it for
// different persons concurrently.
func (a *Aggregator) AggregatePerson(events []attendance.Event) Result {
	loc := a.cfg.location()

	sorted := make([]attendance.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].Index < sorted[j].Index
	})

	byDate := make(map[string][]attendance.Event)
	var dates []string
	for _, e := range sorted {
		d := e.Timestamp.In(loc).Format(attendance.DateLayout)
		if _, ok := byDate[d]; !ok {
			dates = append(dates, d)
		}
		byDate[d] = append(byDate[d], e)
	}
	sort.Strings(dates)

	var res Result
	for _, d := range dates {
		s, excluded, ok := a.buildSession(d, byDate[d])
		res.Excluded = append(res.Excluded, excluded...)
		if ok {
			res.Sessions = append(res.Sessions, s)
		}
	}
	return res
}

func (a *Aggregator) buildSession(date string, events []attendance.Event) (attendance.Session, []attendance.ExcludedRecord, bool) {
	loc := a.cfg.location()

	var in, out *attendance.Event
	var breakStart, breakEnd, lunchStart, lunchEnd *time.Time
	orgID := ""

	for i := range events {
		e := &events[i]
		ts := e.Timestamp.In(loc)
		if orgID == "" {
			orgID = e.OrganizationID
		}

		switch {
		case e.ClockType.IsClockIn():
			if in == nil {
				in = e
			}
		case e.ClockType.IsClockOut():
			out = e
		case e.ClockType == attendance.ClockBreakStart:
			breakStart = first(breakStart, ts)
		case e.ClockType == attendance.ClockBreakEnd:
			breakEnd = first(breakEnd, ts)
		case e.ClockType == attendance.ClockLunchStart:
			lunchStart = first(lunchStart, ts)
		case e.ClockType == attendance.ClockLunchEnd:
			lunchEnd = first(lunchEnd, ts)
		}
	}

	if in == nil {
		excluded := make([]attendance.ExcludedRecord, 0, len(events))
		for _, e := range events {
			excluded = append(excluded, attendance.ExcludedRecord{
				Index:          e.Index,
				PersonID:       e.PersonID,
				OrganizationID: e.OrganizationID,
				Date:           date,
				Stage:          attendance.StageAggregation,
				Reason:         fmt.Sprintf("%s event on a date with no clock-in", e.ClockType),
			})
		}
		return attendance.Session{}, excluded, false
	}

	if in.OrganizationID != "" {
		orgID = in.OrganizationID
	}

	clockIn := in.Timestamp.In(loc)
	s := attendance.Session{
		Date:           date,
		PersonID:       in.PersonID,
		OrganizationID: orgID,
		ClockIn:        clockIn,
		BreakStart:     breakStart,
		BreakEnd:       breakEnd,
		LunchStart:     lunchStart,
		LunchEnd:       lunchEnd,
		IsLate:         clockIn.After(a.cfg.GraceCutoff(clockIn)),
		Intervals:      pairIntervals(events, loc),
		EventCount:     len(events),
	}

	var excluded []attendance.ExcludedRecord
	if out == nil {
		s.MissedClockOut = true
		return s, nil, true
	}

	clockOut := out.Timestamp.In(loc)
	s.ClockOut = &clockOut

	gross := clockOut.Sub(clockIn)
	if gross <= 0 {
		s.Invalid = true
		problem := "precedes"
		if gross == 0 {
			problem = "equals"
		}
		excluded = append(excluded, attendance.ExcludedRecord{
			Index:          out.Index,
			PersonID:       out.PersonID,
			OrganizationID: orgID,
			Date:           date,
			Stage:          attendance.StageAggregation,
			Reason: fmt.Sprintf("clock-out %s %s clock-in %s; session excluded from duration metrics",
				clockOut.Format(time.RFC3339), problem, clockIn.Format(time.RFC3339)),
		})
		return s, excluded, true
	}

	net := gross - span(breakStart, breakEnd) - span(lunchStart, lunchEnd)
	if net < 0 {
		net = 0
	}
	hours := values.Hours(net)
	s.DurationHours = &hours
	s.EarlyDeparture = clockOut.Before(a.cfg.EndOfDay(clockIn))

	return s, excluded, true
}

// pairIntervals matches each clock-out with the oldest open clock-in of the
// same kind. Unmatched clock-ins stay open; unmatched clock-outs are dropped.
func pairIntervals(events []attendance.Event, loc *time.Location) []attendance.Interval {
	var intervals []attendance.Interval
	open := make(map[attendance.ClockType][]int)

	for _, e := range events {
		switch {
		case e.ClockType.IsClockIn():
			intervals = append(intervals, attendance.Interval{
				Kind:     e.ClockType,
				Start:    e.Timestamp.In(loc),
				DeviceID: e.DeviceID,
			})
			open[e.ClockType] = append(open[e.ClockType], len(intervals)-1)
		case e.ClockType.IsClockOut():
			kind := e.ClockType.Closes()
			queue := open[kind]
			if len(queue) == 0 {
				continue
			}
			end := e.Timestamp.In(loc)
			intervals[queue[0]].End = &end
			open[kind] = queue[1:]
		}
	}
	return intervals
}

func first(cur *time.Time, ts time.Time) *time.Time {
	if cur != nil {
		return cur
	}
	return &ts
}

// span is end-start when both bounds exist and are ordered, otherwise 0
func span(start, end *time.Time) time.Duration {
	if start == nil || end == nil || end.Before(*start) {
		return 0
	}
	return end.Sub(*start)
}
