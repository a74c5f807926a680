package risk

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
	"github.com/davidleathers/attendance-analytics-engine/internal/domain/values"
)

// Level and flag thresholds
const (
	HighRiskScore   = 75
	MediumRiskScore = 50

	AbsenteeismFlagRate  = 30
	LatenessFlagRate     = 50
	ViolationFlagCount   = 2
	IncompleteFlagRatio  = 20
	DropoutFlagRate      = 70
	ViolationPenaltyStep = 10
	MaxViolationPenalty  = 100
)

// Config holds the working-day calendar used for absenteeism
type Config struct {
	Calendar attendance.Calendar
}

func DefaultConfig() Config {
	return Config{Calendar: attendance.NewCalendar(nil, nil)}
}

// Subject is everything the scorer needs about one person
type Subject struct {
	Person     attendance.Person
	Sessions   []attendance.Session
	Violations []attendance.Violation
	// ManipulationFlags is the number of risk flags naming the person
	ManipulationFlags int
}

// Scorer computes per-person risk profiles
type Scorer struct {
	cfg    Config
	logger *zap.Logger
}

func NewScorer(cfg Config, logger *zap.Logger) *Scorer {
	return &Scorer{cfg: cfg, logger: logger.Named("risk")}
}

// ScoreAll scores every subject and returns profiles sorted by person ID
func (s *Scorer) ScoreAll(ctx context.Context, period attendance.Period, subjects []Subject) ([]attendance.RiskProfile, error) {
	profiles := make([]attendance.RiskProfile, 0, len(subjects))
	for _, sub := range subjects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		profiles = append(profiles, s.Score(period, sub))
	}
	sort.SliceStable(profiles, func(i, j int) bool { return profiles[i].PersonID < profiles[j].PersonID })
	return profiles, nil
}

// Score computes one person's profile over the evaluation period. A person
// without sessions in the period gets score 0 and level unknown.
func (s *Scorer) Score(period attendance.Period, sub Subject) attendance.RiskProfile {
	m := s.metrics(period, sub)

	absenteeism := values.Clamp(values.Percent(m.WorkingDaysInPeriod-m.DaysPresent, m.WorkingDaysInPeriod), 0, 100)
	lateness := values.Percent(m.LateSessions, m.TotalSessions)
	m.AbsenteeismRate = absenteeism
	m.LatenessRate = lateness

	p := attendance.RiskProfile{
		PersonID:       sub.Person.ID,
		PersonName:     sub.Person.Name,
		OrganizationID: sub.Person.OrganizationID,
		Metrics:        m,
	}

	if m.TotalSessions == 0 {
		p.RiskLevel = attendance.RiskUnknown
	} else {
		penalty := ViolationPenalty(m.ViolationCount)
		p.RiskScore = values.Score(
			values.Weighted(absenteeism, "0.4"),
			values.Weighted(lateness, "0.3"),
			values.Weighted(penalty, "0.3"),
		)
		p.RiskLevel = LevelFor(p.RiskScore)
		p.DropoutLikelihood = values.Score(
			values.Weighted(absenteeism, "0.5"),
			values.Weighted(p.RiskScore, "0.5"),
		)
	}

	p.Flags = s.flags(p, sub.ManipulationFlags)
	return p
}

func (s *Scorer) metrics(period attendance.Period, sub Subject) attendance.RiskMetrics {
	m := attendance.RiskMetrics{WorkingDaysInPeriod: s.cfg.Calendar.WorkingDays(period)}

	dates := make(map[string]bool)
	for _, sess := range sub.Sessions {
		if !period.Contains(sess.Date) {
			continue
		}
		dates[sess.Date] = true
		m.TotalSessions++
		if sess.IsLate {
			m.LateSessions++
		}
		if sess.Complete() {
			m.CompleteSessions++
		} else {
			m.IncompleteSessions++
		}
	}
	m.DaysPresent = len(dates)

	for _, v := range sub.Violations {
		if period.Contains(v.Date) && countsTowardRisk(v.Type) {
			m.ViolationCount++
		}
	}
	return m
}

func (s *Scorer) flags(p attendance.RiskProfile, manipulation int) []string {
	m := p.Metrics
	flags := []string{}

	if m.AbsenteeismRate > AbsenteeismFlagRate {
		flags = append(flags, fmt.Sprintf("High absenteeism: %d%% (%d of %d working days present)",
			m.AbsenteeismRate, m.DaysPresent, m.WorkingDaysInPeriod))
	}
	if m.LatenessRate > LatenessFlagRate {
		flags = append(flags, fmt.Sprintf("Frequent lateness: %d%% (%d of %d sessions late)",
			m.LatenessRate, m.LateSessions, m.TotalSessions))
	}
	if m.ViolationCount > ViolationFlagCount {
		flags = append(flags, fmt.Sprintf("Multiple violations: %d in period", m.ViolationCount))
	}
	// exact comparison: incomplete/total > 20%
	if m.TotalSessions > 0 && m.IncompleteSessions*100 > IncompleteFlagRatio*m.TotalSessions {
		flags = append(flags, fmt.Sprintf("Incomplete sessions: %d%% (%d of %d sessions)",
			values.Percent(m.IncompleteSessions, m.TotalSessions), m.IncompleteSessions, m.TotalSessions))
	}
	if p.DropoutLikelihood > DropoutFlagRate {
		flags = append(flags, fmt.Sprintf("Dropout risk: %d%% (absenteeism %d%%, risk score %d)",
			p.DropoutLikelihood, m.AbsenteeismRate, p.RiskScore))
	}
	if manipulation > 0 {
		flags = append(flags, fmt.Sprintf("Named in %d manipulation flag(s)", manipulation))
	}
	return flags
}

// countsTowardRisk excludes repeated lateness, which latenessRate already weighs
func countsTowardRisk(t attendance.ViolationType) bool {
	return t != attendance.ViolationRepeatedLateness
}

// ViolationPenalty is violationCount*10 capped at 100
func ViolationPenalty(count int) int {
	return min(MaxViolationPenalty, count*ViolationPenaltyStep)
}

// LevelFor buckets a risk score
func LevelFor(score int) attendance.RiskLevel {
	switch {
	case score >= HighRiskScore:
		return attendance.RiskHigh
	case score >= MediumRiskScore:
		return attendance.RiskMedium
	default:
		return attendance.RiskLow
	}
}
