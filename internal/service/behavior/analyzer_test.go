package behavior

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
)

// day returns a session on 2024-03-01 + offset days clocking in at clock;
// late is derived from the default 09:00 cutoff
func day(t *testing.T, offset int, clock string) attendance.Session {
	t.Helper()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
	c, err := time.Parse("15:04:05", clock)
	require.NoError(t, err)
	in := base.Add(time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute + time.Duration(c.Second())*time.Second)
	cutoff := base.Add(9 * time.Hour)
	return attendance.Session{
		Date:     in.Format(attendance.DateLayout),
		PersonID: "p-1",
		ClockIn:  in,
		IsLate:   in.After(cutoff),
	}
}

func newAnalyzer(t *testing.T) *Analyzer {
	return NewAnalyzer(DefaultConfig(), zaptest.NewLogger(t))
}

func hasPattern(p attendance.BehaviorProfile, pt attendance.PatternType) bool {
	for _, pat := range p.Patterns {
		if pat.Type == pt {
			return true
		}
	}
	return false
}

func TestAnalyze_Scores(t *testing.T) {
	sessions := []attendance.Session{
		day(t, 0, "08:50:00"),
		day(t, 1, "09:10:00"),
		day(t, 2, "08:45:00"),
	}

	p := newAnalyzer(t).Analyze("p-1", sessions)
	assert.Equal(t, 67, p.ConsistencyScore)
	assert.Equal(t, p.ConsistencyScore, p.PunctualityScore)
	assert.Equal(t, attendance.TrendStable, p.ReliabilityTrend)
	// 2024-03-02 is a Saturday
	assert.Equal(t, "Saturday", p.MostLateWeekday)
	assert.Empty(t, p.Patterns)
}

func TestAnalyze_NoSessions(t *testing.T) {
	p := newAnalyzer(t).Analyze("p-1", nil)
	assert.Equal(t, 0, p.ConsistencyScore)
	assert.Equal(t, attendance.TrendStable, p.ReliabilityTrend)
	assert.Empty(t, p.MostLateWeekday)
	assert.NotNil(t, p.Patterns)
}

func TestAnalyze_Trend(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		recent   string
		want     attendance.Trend
	}{
		{"improving", "09:30:00", "08:30:00", attendance.TrendImproving},
		{"declining", "08:30:00", "09:30:00", attendance.TrendDeclining},
		{"stable", "08:30:00", "08:40:00", attendance.TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sessions []attendance.Session
			for i := 0; i < 7; i++ {
				sessions = append(sessions, day(t, i, tt.previous))
			}
			for i := 7; i < 14; i++ {
				sessions = append(sessions, day(t, i, tt.recent))
			}
			assert.Equal(t, tt.want, newAnalyzer(t).Analyze("p-1", sessions).ReliabilityTrend)
		})
	}
}

func TestAnalyze_TrendWithinTolerance(t *testing.T) {
	// previous window: 7/7 on time (100); recent: 6/7 on time (86) -> diff -14
	var sessions []attendance.Session
	for i := 0; i < 13; i++ {
		sessions = append(sessions, day(t, i, "08:30:00"))
	}
	sessions = append(sessions, day(t, 13, "09:30:00"))
	assert.Equal(t, attendance.TrendDeclining, newAnalyzer(t).Analyze("p-1", sessions).ReliabilityTrend)

	cfg := DefaultConfig()
	cfg.TrendTolerance = 15
	a := NewAnalyzer(cfg, zaptest.NewLogger(t))
	assert.Equal(t, attendance.TrendStable, a.Analyze("p-1", sessions).ReliabilityTrend)
}

func TestAnalyze_TrendUsesActivityDates(t *testing.T) {
	// gaps between dates do not matter, only the order of active dates
	var sessions []attendance.Session
	for i := 0; i < 7; i++ {
		sessions = append(sessions, day(t, i*3, "09:30:00"))
	}
	for i := 0; i < 7; i++ {
		sessions = append(sessions, day(t, 40+i, "08:30:00"))
	}
	assert.Equal(t, attendance.TrendImproving, newAnalyzer(t).Analyze("p-1", sessions).ReliabilityTrend)
}

func TestAnalyze_Patterns(t *testing.T) {
	// Mondays in March 2024: 4, 11, 18, 25 (offsets 3, 10, 17, 24)
	sessions := []attendance.Session{
		day(t, 3, "09:02:00"),
		day(t, 10, "09:04:00"),
		day(t, 17, "09:05:00"),
		day(t, 24, "09:30:00"),
		day(t, 4, "09:45:00"),
		day(t, 5, "08:00:00"),
	}

	p := newAnalyzer(t).Analyze("p-1", sessions)

	assert.Equal(t, "Monday", p.MostLateWeekday)
	assert.True(t, hasPattern(p, attendance.PatternFrequentLateness))
	assert.True(t, hasPattern(p, attendance.PatternHabitDay))
	assert.True(t, hasPattern(p, attendance.PatternLastMinuteArrivals))
	assert.False(t, hasPattern(p, attendance.PatternRepeatedClockInTime))

	require.Len(t, p.Patterns, 3)
	assert.Equal(t, 5, p.Patterns[0].Occurrences)
	assert.Equal(t, 4, p.Patterns[1].Occurrences)
	assert.Equal(t, 3, p.Patterns[2].Occurrences)
}

func TestAnalyze_MostLateWeekdayTieBreak(t *testing.T) {
	// one late Tuesday (offset 4) and one late Monday (offset 3)
	sessions := []attendance.Session{day(t, 4, "09:30:00"), day(t, 3, "09:30:00")}
	assert.Equal(t, "Monday", newAnalyzer(t).Analyze("p-1", sessions).MostLateWeekday)
}

func TestAnalyze_RepeatedClockInTimes(t *testing.T) {
	var sessions []attendance.Session
	offset := 0
	for _, clock := range []string{"08:00:00", "08:15:00", "08:30:00"} {
		for i := 0; i < 3; i++ {
			sessions = append(sessions, day(t, offset, clock))
			offset++
		}
	}

	p := newAnalyzer(t).Analyze("p-1", sessions)
	require.True(t, hasPattern(p, attendance.PatternRepeatedClockInTime))
	assert.Contains(t, p.Patterns[0].Description, "08:00:00, 08:15:00, 08:30:00")
}

func TestAnalyzeAll_SortedByPerson(t *testing.T) {
	a := day(t, 0, "08:00:00")
	b := day(t, 0, "08:00:00")
	b.PersonID = "p-0"

	profiles, err := newAnalyzer(t).AnalyzeAll(context.Background(), []attendance.Session{a, b})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "p-0", profiles[0].PersonID)
	assert.Equal(t, "p-1", profiles[1].PersonID)
}
