package behavior

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
	"github.com/davidleathers/attendance-analytics-engine/internal/domain/values"
)

// Config holds the trend window and pattern thresholds
type Config struct {
	GraceHour        int
	GraceMinute      int
	LastMinuteWindow time.Duration
	TrendWindowDays  int
	TrendTolerance   int

	FrequentLatenessCount   int
	HabitDayCount           int
	LastMinuteCount         int
	RepeatedTimeOccurrences int
	RepeatedTimeDistinct    int
}

func DefaultConfig() Config {
	return Config{
		GraceHour:               9,
		LastMinuteWindow:        5 * time.Minute,
		TrendWindowDays:         7,
		TrendTolerance:          10,
		FrequentLatenessCount:   5,
		HabitDayCount:           3,
		LastMinuteCount:         3,
		RepeatedTimeOccurrences: 3,
		RepeatedTimeDistinct:    3,
	}
}

// weekdayOrder ranks weekdays Monday first for tie-breaks
var weekdayOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// Analyzer computes punctuality behaviour per person
type Analyzer struct {
	cfg    Config
	logger *zap.Logger
}

func NewAnalyzer(cfg Config, logger *zap.Logger) *Analyzer {
	return &Analyzer{cfg: cfg, logger: logger.Named("behavior")}
}

// AnalyzeAll groups sessions by person and returns profiles sorted by person ID
func (a *Analyzer) AnalyzeAll(ctx context.Context, sessions []attendance.Session) ([]attendance.BehaviorProfile, error) {
	byPerson := make(map[string][]attendance.Session)
	for _, s := range sessions {
		byPerson[s.PersonID] = append(byPerson[s.PersonID], s)
	}

	ids := make([]string, 0, len(byPerson))
	for id := range byPerson {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	profiles := make([]attendance.BehaviorProfile, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		profiles = append(profiles, a.Analyze(id, byPerson[id]))
	}
	return profiles, nil
}

// Analyze builds the behaviour profile of one person
func (a *Analyzer) Analyze(personID string, sessions []attendance.Session) attendance.BehaviorProfile {
	sorted := make([]attendance.Session, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date < sorted[j].Date
		}
		return sorted[i].ClockIn.Before(sorted[j].ClockIn)
	})

	onTime, late := 0, 0
	lateByDay := make(map[time.Weekday]int)
	for _, s := range sorted {
		if s.IsLate {
			late++
			lateByDay[s.Weekday()]++
		} else {
			onTime++
		}
	}

	score := values.Percent(onTime, len(sorted))
	p := attendance.BehaviorProfile{
		PersonID:         personID,
		ConsistencyScore: score,
		PunctualityScore: score,
		ReliabilityTrend: a.trend(sorted),
		Patterns:         []attendance.Pattern{},
	}

	day, dayCount := mostLate(lateByDay)
	if dayCount > 0 {
		p.MostLateWeekday = day.String()
	}

	if late >= a.cfg.FrequentLatenessCount {
		p.Patterns = append(p.Patterns, attendance.Pattern{
			Type:        attendance.PatternFrequentLateness,
			Description: fmt.Sprintf("Late %d times out of %d sessions", late, len(sorted)),
			Occurrences: late,
		})
	}
	if dayCount >= a.cfg.HabitDayCount {
		p.Patterns = append(p.Patterns, attendance.Pattern{
			Type:        attendance.PatternHabitDay,
			Description: fmt.Sprintf("Late %d times on %s", dayCount, day),
			Occurrences: dayCount,
		})
	}
	if n := a.lastMinute(sorted); n >= a.cfg.LastMinuteCount {
		p.Patterns = append(p.Patterns, attendance.Pattern{
			Type:        attendance.PatternLastMinuteArrivals,
			Description: fmt.Sprintf("Clocked in within %s after the grace cutoff %d times", a.cfg.LastMinuteWindow, n),
			Occurrences: n,
		})
	}
	if times := a.repeatedTimes(sorted); len(times) >= a.cfg.RepeatedTimeDistinct {
		p.Patterns = append(p.Patterns, attendance.Pattern{
			Type:        attendance.PatternRepeatedClockInTime,
			Description: fmt.Sprintf("Identical clock-in times recur: %s", strings.Join(times, ", ")),
			Occurrences: len(times),
		})
	}

	return p
}

// trend compares the on-time rate of the latest window of activity dates
// with the window before it
func (a *Analyzer) trend(sorted []attendance.Session) attendance.Trend {
	var dates []string
	byDate := make(map[string][]attendance.Session)
	for _, s := range sorted {
		if _, ok := byDate[s.Date]; !ok {
			dates = append(dates, s.Date)
		}
		byDate[s.Date] = append(byDate[s.Date], s)
	}

	w := a.cfg.TrendWindowDays
	if len(dates) <= w {
		return attendance.TrendStable
	}

	recent := dates[len(dates)-w:]
	prevStart := max(0, len(dates)-2*w)
	previous := dates[prevStart : len(dates)-w]

	diff := onTimeRate(recent, byDate) - onTimeRate(previous, byDate)
	switch {
	case diff > a.cfg.TrendTolerance:
		return attendance.TrendImproving
	case diff < -a.cfg.TrendTolerance:
		return attendance.TrendDeclining
	default:
		return attendance.TrendStable
	}
}

func onTimeRate(dates []string, byDate map[string][]attendance.Session) int {
	onTime, total := 0, 0
	for _, d := range dates {
		for _, s := range byDate[d] {
			total++
			if !s.IsLate {
				onTime++
			}
		}
	}
	return values.Percent(onTime, total)
}

// lastMinute counts clock-ins in (cutoff, cutoff+window]
func (a *Analyzer) lastMinute(sorted []attendance.Session) int {
	n := 0
	for _, s := range sorted {
		in := s.ClockIn
		cutoff := time.Date(in.Year(), in.Month(), in.Day(), a.cfg.GraceHour, a.cfg.GraceMinute, 0, 0, in.Location())
		if in.After(cutoff) && !in.After(cutoff.Add(a.cfg.LastMinuteWindow)) {
			n++
		}
	}
	return n
}

// repeatedTimes returns the clock-in times of day that recur often enough
func (a *Analyzer) repeatedTimes(sorted []attendance.Session) []string {
	counts := make(map[string]int)
	for _, s := range sorted {
		counts[s.ClockIn.Format("15:04:05")]++
	}

	var times []string
	for clock, n := range counts {
		if n >= a.cfg.RepeatedTimeOccurrences {
			times = append(times, clock)
		}
	}
	sort.Strings(times)
	return times
}

// mostLate picks the weekday with the most late sessions, earliest weekday on ties
func mostLate(lateByDay map[time.Weekday]int) (time.Weekday, int) {
	best, bestCount := time.Monday, 0
	for _, d := range weekdayOrder {
		if lateByDay[d] > bestCount {
			best, bestCount = d, lateByDay[d]
		}
	}
	return best, bestCount
}
