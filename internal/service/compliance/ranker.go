package compliance

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
	"github.com/davidleathers/attendance-analytics-engine/internal/domain/values"
)

// Penalty settings for missed clock-outs
const (
	ViolationPenaltyStep = 2
	MaxViolationPenalty  = 50
)

// Input is the scope the ranker aggregates over
type Input struct {
	Events     []attendance.Event
	Sessions   []attendance.Session
	Violations []attendance.Violation
	Roster     []attendance.Person
	Excluded   []attendance.ExcludedRecord
}

// orgStats accumulates one organization's counts
type orgStats struct {
	staff         map[string]bool
	completeStaff map[string]bool
	records       int
	reviewed      int
	violations    int
	excluded      int
}

func newOrgStats() *orgStats {
	return &orgStats{staff: make(map[string]bool), completeStaff: make(map[string]bool)}
}

// Ranker scores and ranks organizations by attendance compliance
type Ranker struct {
	logger *zap.Logger
}

func NewRanker(logger *zap.Logger) *Ranker {
	return &Ranker{logger: logger.Named("compliance")}
}

// Rank returns rankings sorted by complianceScore descending, ties broken by
// organization ID ascending. Records without an organization are not ranked.
func (r *Ranker) Rank(ctx context.Context, in Input, dir Directory) ([]attendance.CompanyComplianceRanking, error) {
	stats := make(map[string]*orgStats)
	get := func(org string) *orgStats {
		s, ok := stats[org]
		if !ok {
			s = newOrgStats()
			stats[org] = s
		}
		return s
	}

	for _, p := range in.Roster {
		if p.OrganizationID != "" {
			get(p.OrganizationID).staff[p.ID] = true
		}
	}
	for _, e := range in.Events {
		if e.OrganizationID == "" {
			continue
		}
		s := get(e.OrganizationID)
		s.staff[e.PersonID] = true
		s.records++
		if e.SupervisorStatus.IsReviewed() {
			s.reviewed++
		}
	}
	for _, sess := range in.Sessions {
		if sess.OrganizationID == "" || !sess.Complete() {
			continue
		}
		get(sess.OrganizationID).completeStaff[sess.PersonID] = true
	}
	for _, v := range in.Violations {
		if v.OrganizationID == "" || v.Type != attendance.ViolationMissedClockOut {
			continue
		}
		get(v.OrganizationID).violations++
	}
	for _, x := range in.Excluded {
		if x.OrganizationID != "" {
			get(x.OrganizationID).excluded++
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rankings := make([]attendance.CompanyComplianceRanking, 0, len(stats))
	for org, s := range stats {
		rankings = append(rankings, score(org, dir.OrganizationName(org), s))
	}
	Sort(rankings)

	r.logger.Debug("ranked organizations", zap.Int("organizations", len(rankings)))
	return rankings, nil
}

func score(org, name string, s *orgStats) attendance.CompanyComplianceRanking {
	integrity := values.Percent(len(s.completeStaff), len(s.staff))
	participation := values.Percent(s.reviewed, s.records)
	penalty := ViolationPenalty(s.violations)

	total := values.Score(
		values.Weighted(integrity, "0.4"),
		values.Weighted(participation, "0.4"),
		values.Weighted(penalty, "-0.2"),
	)

	return attendance.CompanyComplianceRanking{
		OrganizationID:          org,
		OrganizationName:        name,
		AttendanceIntegrity:     integrity,
		SupervisorParticipation: participation,
		ViolationCount:          s.violations,
		StaffCount:              len(s.staff),
		ComplianceScore:         total,
		Rating:                  attendance.RatingFor(total),
		DataSource: attendance.DataSource{
			RecordsAnalyzed:           s.records,
			StaffInOrg:                len(s.staff),
			StaffWithCompleteSessions: len(s.completeStaff),
			ExcludedInvalidRecords:    s.excluded,
		},
	}
}

// Sort orders rankings by score descending then organization ID, and
// assigns 1-based ranks
func Sort(rankings []attendance.CompanyComplianceRanking) {
	sort.SliceStable(rankings, func(i, j int) bool {
		if rankings[i].ComplianceScore != rankings[j].ComplianceScore {
			return rankings[i].ComplianceScore > rankings[j].ComplianceScore
		}
		return rankings[i].OrganizationID < rankings[j].OrganizationID
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}
}

// ViolationPenalty is violationCount*2 capped at 50
func ViolationPenalty(count int) int {
	return min(MaxViolationPenalty, count*ViolationPenaltyStep)
}
