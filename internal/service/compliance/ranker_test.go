package compliance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/sessions"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/violations"
	"github.com/davidleathers/attendance-analytics-engine/internal/testutil/fixtures"
)

// build runs aggregation and violation detection to produce ranker input
func build(t *testing.T, events []attendance.Event, roster []attendance.Person) Input {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	agg, err := sessions.NewAggregator(sessions.DefaultConfig(), logger).Aggregate(ctx, events)
	require.NoError(t, err)
	vs, err := violations.NewDetector(violations.DefaultConfig(), logger).Detect(ctx, agg.Sessions)
	require.NoError(t, err)

	return Input{
		Events:     events,
		Sessions:   agg.Sessions,
		Violations: vs,
		Roster:     roster,
		Excluded:   agg.Excluded,
	}
}

func TestRank_Scores(t *testing.T) {
	events := fixtures.NewTimeline(t).
		Reviewed(attendance.SupervisorConfirmed).
		For("a-1", "org-a").Day("2024-03-04", "08:50", "17:00").
		For("a-2", "org-a").Day("2024-03-04", "08:50", "17:00").
		Reviewed(attendance.SupervisorPending).
		For("b-1", "org-b").Day("2024-03-04", "08:50", "").
		For("b-1", "org-b").Day("2024-03-05", "08:50", "").
		For("b-2", "org-b").Day("2024-03-04", "08:50", "17:00").
		Events()

	in := build(t, events, nil)
	rankings, err := NewRanker(zaptest.NewLogger(t)).Rank(context.Background(), in, NewDirectory(nil, events))
	require.NoError(t, err)
	require.Len(t, rankings, 2)

	a := rankings[0]
	assert.Equal(t, 1, a.Rank)
	assert.Equal(t, "org-a", a.OrganizationID)
	assert.Equal(t, 100, a.AttendanceIntegrity)
	assert.Equal(t, 100, a.SupervisorParticipation)
	assert.Equal(t, 0, a.ViolationCount)
	assert.Equal(t, 2, a.StaffCount)
	assert.Equal(t, 80, a.ComplianceScore)
	assert.Equal(t, attendance.RatingGood, a.Rating)
	assert.Equal(t, 4, a.DataSource.RecordsAnalyzed)

	b := rankings[1]
	assert.Equal(t, 2, b.Rank)
	// b-2 has a complete session, b-1 does not
	assert.Equal(t, 50, b.AttendanceIntegrity)
	assert.Equal(t, 0, b.SupervisorParticipation)
	assert.Equal(t, 2, b.ViolationCount)
	// round(50*0.4 + 0 - 4*0.2) = round(19.2)
	assert.Equal(t, 19, b.ComplianceScore)
	assert.Equal(t, attendance.RatingPoor, b.Rating)
	assert.Equal(t, 1, b.DataSource.StaffWithCompleteSessions)
}

func TestRank_TieBreakByOrganizationID(t *testing.T) {
	events := fixtures.NewTimeline(t).
		For("z-1", "org-z").Day("2024-03-04", "08:50", "17:00").
		For("m-1", "org-m").Day("2024-03-04", "08:50", "17:00").
		For("c-1", "org-c").Day("2024-03-04", "08:50", "17:00").
		Events()

	r := NewRanker(zaptest.NewLogger(t))
	first, err := r.Rank(context.Background(), build(t, events, nil), NewDirectory(nil, events))
	require.NoError(t, err)

	reversed := []attendance.Event{events[5], events[4], events[3], events[2], events[1], events[0]}
	second, err := r.Rank(context.Background(), build(t, reversed, nil), NewDirectory(nil, reversed))
	require.NoError(t, err)

	var ids []string
	for _, rk := range first {
		ids = append(ids, rk.OrganizationID)
	}
	assert.Equal(t, []string{"org-c", "org-m", "org-z"}, ids)
	assert.Equal(t, first, second)
}

func TestRank_RosterStaffWithoutEvents(t *testing.T) {
	events := fixtures.NewTimeline(t).For("a-1", "org-a").Day("2024-03-04", "08:50", "17:00").Events()
	roster := fixtures.NewRosterBuilder(t).
		Add("a-1", "Alice", "org-a", "Acme").
		Add("a-2", "Bob", "org-a", "Acme").
		Add("c-1", "Carol", "org-c", "Cobalt").
		Build()

	rankings, err := NewRanker(zaptest.NewLogger(t)).Rank(context.Background(), build(t, events, roster), NewDirectory(roster, events))
	require.NoError(t, err)
	require.Len(t, rankings, 2)

	assert.Equal(t, "org-a", rankings[0].OrganizationID)
	assert.Equal(t, "Acme", rankings[0].OrganizationName)
	assert.Equal(t, 2, rankings[0].StaffCount)
	assert.Equal(t, 50, rankings[0].AttendanceIntegrity)

	assert.Equal(t, "org-c", rankings[1].OrganizationID)
	assert.Equal(t, 0, rankings[1].ComplianceScore)
	assert.Equal(t, 0, rankings[1].DataSource.RecordsAnalyzed)
}

func TestRank_EventsWithoutOrganizationAreNotRanked(t *testing.T) {
	events := fixtures.NewTimeline(t).For("x-1", "").Day("2024-03-04", "08:50", "17:00").Events()
	rankings, err := NewRanker(zaptest.NewLogger(t)).Rank(context.Background(), build(t, events, nil), NewDirectory(nil, events))
	require.NoError(t, err)
	assert.Empty(t, rankings)
}

func TestRank_ScoreBounds(t *testing.T) {
	tl := fixtures.NewTimeline(t).For("a-1", "org-a")
	for _, d := range []string{"2024-03-04", "2024-03-05", "2024-03-06", "2024-03-07", "2024-03-08"} {
		tl.Day(d, "08:50", "")
	}
	events := tl.Events()

	rankings, err := NewRanker(zaptest.NewLogger(t)).Rank(context.Background(), build(t, events, nil), NewDirectory(nil, events))
	require.NoError(t, err)
	require.Len(t, rankings, 1)
	assert.Equal(t, 5, rankings[0].ViolationCount)
	assert.Equal(t, 0, rankings[0].ComplianceScore)
}

func TestRank_CountsExcludedRecords(t *testing.T) {
	events := fixtures.NewTimeline(t).
		For("a-1", "org-a").Day("2024-03-04", "08:50", "17:00").
		Event(attendance.ClockOut, "2024-03-05", "17:00").
		Events()

	rankings, err := NewRanker(zaptest.NewLogger(t)).Rank(context.Background(), build(t, events, nil), NewDirectory(nil, events))
	require.NoError(t, err)
	require.Len(t, rankings, 1)
	assert.Equal(t, 1, rankings[0].DataSource.ExcludedInvalidRecords)
}

func TestViolationPenalty(t *testing.T) {
	assert.Equal(t, 0, ViolationPenalty(0))
	assert.Equal(t, 10, ViolationPenalty(5))
	assert.Equal(t, 50, ViolationPenalty(40))
}

func TestDirectory(t *testing.T) {
	roster := []attendance.Person{{ID: "p-1", Name: "Roster Name", OrganizationID: "org-1"}}
	events := []attendance.Event{
		{PersonID: "p-1", PersonName: "Event Name", OrganizationID: "org-1", OrganizationName: "First"},
		{PersonID: "p-2", PersonName: "Two", OrganizationID: "org-1", OrganizationName: "Second"},
	}

	d := NewDirectory(roster, events)
	assert.Equal(t, "Roster Name", d.PersonName("p-1"))
	assert.Equal(t, "Two", d.PersonName("p-2"))
	assert.Equal(t, "First", d.OrganizationName("org-1"))
	assert.Equal(t, "", d.OrganizationName("org-x"))
}
