package analytics

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
	"github.com/davidleathers/attendance-analytics-engine/internal/domain/errors"
	"github.com/davidleathers/attendance-analytics-engine/internal/metrics"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/ingest"
	"github.com/davidleathers/attendance-analytics-engine/internal/testutil/fixtures"
)

// workedExample is one person over March 1-28 2024 (20 working days) who is
// present on the first 15, late on 5 of them, and misses one clock-out
func workedExample(t *testing.T) (Config, Input) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Period = attendance.Period{Start: "2024-03-01", End: "2024-03-28"}

	dates := []string{
		"2024-03-01",
		"2024-03-04", "2024-03-05", "2024-03-06", "2024-03-07", "2024-03-08",
		"2024-03-11", "2024-03-12", "2024-03-13", "2024-03-14", "2024-03-15",
		"2024-03-18", "2024-03-19", "2024-03-20", "2024-03-21",
	}
	tl := fixtures.NewTimeline(t)
	for i, d := range dates {
		in, out := "08:50", "17:00"
		if i < 5 {
			in = "09:30"
		}
		if i == len(dates)-1 {
			out = ""
		}
		tl.Day(d, in, out)
	}
	return cfg, Input{Events: tl.Events()}
}

func newEngine(t *testing.T, cfg Config) *Engine {
	return NewEngine(cfg, zaptest.NewLogger(t), nil)
}

func TestEngine_WorkedExample(t *testing.T) {
	cfg, in := workedExample(t)

	rep, err := newEngine(t, cfg).Run(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, cfg.Period, rep.Period)
	assert.Len(t, rep.Sessions, 15)
	// late on Mar 1, 4, 5, 6, 7: the third through fifth reach the monthly threshold
	byType := map[attendance.ViolationType][]string{}
	for _, v := range rep.Violations {
		byType[v.Type] = append(byType[v.Type], v.Date)
	}
	assert.Equal(t, []string{"2024-03-05", "2024-03-06", "2024-03-07"}, byType[attendance.ViolationRepeatedLateness])
	assert.Equal(t, []string{"2024-03-21"}, byType[attendance.ViolationMissedClockOut])
	assert.Len(t, rep.Violations, 4)
	assert.Empty(t, rep.RiskFlags)

	require.Len(t, rep.RiskProfiles, 1)
	p := rep.RiskProfiles[0]
	assert.Equal(t, 20, p.Metrics.WorkingDaysInPeriod)
	assert.Equal(t, 15, p.Metrics.DaysPresent)
	assert.Equal(t, 25, p.Metrics.AbsenteeismRate)
	assert.Equal(t, 33, p.Metrics.LatenessRate)
	assert.Equal(t, 1, p.Metrics.ViolationCount)
	assert.Equal(t, 23, p.RiskScore)
	assert.Equal(t, attendance.RiskLow, p.RiskLevel)
	assert.Equal(t, 24, p.DropoutLikelihood)
	assert.Equal(t, "org-1", p.OrganizationID)

	require.Len(t, rep.BehaviorProfiles, 1)
	assert.Equal(t, 67, rep.BehaviorProfiles[0].PunctualityScore)

	require.Len(t, rep.Rankings, 1)
	r := rep.Rankings[0]
	assert.Equal(t, 1, r.Rank)
	assert.Equal(t, 100, r.AttendanceIntegrity)
	assert.Equal(t, 0, r.SupervisorParticipation)
	assert.Equal(t, 1, r.ViolationCount)
	// round(100*0.4 + 0*0.4 - 2*0.2) = round(39.6)
	assert.Equal(t, 40, r.ComplianceScore)
	assert.Equal(t, attendance.RatingPoor, r.Rating)

	assert.Equal(t, Summary{
		EventsReceived: 29,
		EventsValid:    29,
		Sessions:       15,
		Violations:     4,
		Persons:        1,
		Organizations:  1,
	}, rep.Summary)
}

func TestEngine_Idempotent(t *testing.T) {
	cfg, in := workedExample(t)
	e := newEngine(t, cfg)

	first, err := e.Run(context.Background(), in)
	require.NoError(t, err)
	second, err := e.Run(context.Background(), in)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
	assert.NotEmpty(t, first.Fingerprint)
}

func TestEngine_WorkerCountDoesNotChangeOutput(t *testing.T) {
	events := fixtures.NewTimeline(t).
		For("a-1", "org-a").Day("2024-03-04", "09:10", "17:00").
		For("b-1", "org-b").OnDevice("shared").Day("2024-03-04", "08:30", "08:30:30").
		For("c-1", "org-b").Day("2024-03-05", "08:45", "").
		For("d-1", "org-c").OnDevice("dev-9").Day("2024-03-04", "05:00", "13:00").
		Events()

	render := func(workers int) string {
		cfg := DefaultConfig()
		cfg.Workers = workers
		rep, err := newEngine(t, cfg).Run(context.Background(), Input{Events: events})
		require.NoError(t, err)
		rep.Fingerprint = ""
		data, err := json.Marshal(rep)
		require.NoError(t, err)
		return string(data)
	}

	assert.Equal(t, render(1), render(16))
}

func TestEngine_EmptyInput(t *testing.T) {
	rep, err := newEngine(t, DefaultConfig()).Run(context.Background(), Input{})
	require.NoError(t, err)

	assert.True(t, rep.Period.IsZero())
	assert.Equal(t, Summary{}, rep.Summary)
	assert.NotNil(t, rep.Sessions)
	assert.NotNil(t, rep.RiskProfiles)
	assert.NotNil(t, rep.ExcludedRecords)

	data, err := json.Marshal(rep)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rankings":[]`)
}

func TestEngine_DefaultPeriodSpansSessions(t *testing.T) {
	events := fixtures.NewTimeline(t).
		Day("2024-03-08", "08:50", "17:00").
		Day("2024-03-04", "08:50", "17:00").
		Events()

	rep, err := newEngine(t, DefaultConfig()).Run(context.Background(), Input{Events: events})
	require.NoError(t, err)
	assert.Equal(t, attendance.Period{Start: "2024-03-04", End: "2024-03-08"}, rep.Period)
	require.Len(t, rep.RiskProfiles, 1)
	assert.Equal(t, 5, rep.RiskProfiles[0].Metrics.WorkingDaysInPeriod)
	assert.Equal(t, 60, rep.RiskProfiles[0].Metrics.AbsenteeismRate)
}

func TestEngine_Exclusions(t *testing.T) {
	payload, err := ingest.Decode([]byte(`{
		"events": [
			{"personId": "p-1", "organizationId": "org-1", "clockType": "in", "timestamp": "2024-03-04T08:55:00Z"},
			{"personId": "p-1", "organizationId": "org-1", "clockType": "out", "timestamp": "not-a-time"},
			{"personId": "", "clockType": "in", "timestamp": "2024-03-04T08:55:00Z"},
			{"personId": "p-2", "organizationId": "org-1", "clockType": "out", "timestamp": "2024-03-05T17:00:00Z"}
		],
		"roster": [
			{"id": "p-3", "name": "Roster Only", "organizationId": "org-1"},
			{"id": "p-3"}
		]
	}`))
	require.NoError(t, err)

	rep, err := newEngine(t, DefaultConfig()).Run(context.Background(), FromPayload(payload))
	require.NoError(t, err)

	require.Len(t, rep.ExcludedRecords, 4)
	var got []attendance.ExclusionStage
	for _, x := range rep.ExcludedRecords {
		got = append(got, x.Stage)
	}
	assert.Equal(t, []attendance.ExclusionStage{
		attendance.StageDecode,
		attendance.StageRoster,
		attendance.StageValidation,
		attendance.StageAggregation,
	}, got)
	assert.Equal(t, 3, rep.ExcludedRecords[3].Index)

	assert.Equal(t, 4, rep.Summary.EventsReceived)
	assert.Equal(t, 2, rep.Summary.EventsValid)
	assert.Equal(t, 4, rep.Summary.EventsExcluded)

	require.Len(t, rep.RiskProfiles, 3)
	assert.Equal(t, attendance.RiskLow, rep.RiskProfiles[0].RiskLevel)
	assert.Equal(t, attendance.RiskUnknown, rep.RiskProfiles[1].RiskLevel)
	assert.Equal(t, "p-3", rep.RiskProfiles[2].PersonID)
	assert.Equal(t, "Roster Only", rep.RiskProfiles[2].PersonName)
	assert.Equal(t, attendance.RiskUnknown, rep.RiskProfiles[2].RiskLevel)

	require.Len(t, rep.Rankings, 1)
	assert.Equal(t, 3, rep.Rankings[0].StaffCount)
	// the decode and aggregation exclusions carry org-1
	assert.Equal(t, 2, rep.Rankings[0].DataSource.ExcludedInvalidRecords)
}

func TestEngine_Canceled(t *testing.T) {
	_, in := workedExample(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := newEngine(t, DefaultConfig()).Run(ctx, in)
	assert.Nil(t, rep)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCanceled))

	var appErr *errors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "RUN_CANCELED", appErr.Code)
	assert.Equal(t, StageValidate, appErr.Details["stage"])
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_Fingerprint(t *testing.T) {
	cfg, in := workedExample(t)
	e := newEngine(t, cfg)

	a, err := e.Fingerprint(in)
	require.NoError(t, err)
	b, err := e.Fingerprint(in)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	cfg.Sessions.GraceMinute = 15
	c, err := newEngine(t, cfg).Fingerprint(in)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestEngine_RecordsMetrics(t *testing.T) {
	reg, err := metrics.NewRegistryWithMeter(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	events := fixtures.NewTimeline(t).
		For("a-1", "org-a").Day("2024-03-04", "08:50", "17:00").
		For("b-1", "org-a").Day("2024-03-04", "08:50", "").
		Events()

	e := NewEngine(DefaultConfig(), zaptest.NewLogger(t), reg)
	_, err = e.Run(context.Background(), Input{Events: events})
	require.NoError(t, err)
	assert.Equal(t, int64(2), reg.PersonsLastRunValue())
}

func TestEngine_InputPeriodOverridesConfig(t *testing.T) {
	cfg, in := workedExample(t)
	in.Period = attendance.Period{Start: "2024-03-04", End: "2024-03-08"}

	rep, err := newEngine(t, cfg).Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in.Period, rep.Period)
	require.Len(t, rep.RiskProfiles, 1)
	assert.Equal(t, 5, rep.RiskProfiles[0].Metrics.WorkingDaysInPeriod)

	plain, err := newEngine(t, cfg).Fingerprint(Input{Events: in.Events})
	require.NoError(t, err)
	assert.NotEqual(t, plain, rep.Fingerprint)
}
