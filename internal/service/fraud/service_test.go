package fraud

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/sessions"
	"github.com/davidleathers/attendance-analytics-engine/internal/testutil/fixtures"
)

// detect runs the aggregator and the detector over a timeline
func detect(t *testing.T, cfg Config, events []attendance.Event) []attendance.RiskFlag {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	res, err := sessions.NewAggregator(sessions.DefaultConfig(), logger).Aggregate(ctx, events)
	require.NoError(t, err)

	flags, err := NewDetector(cfg, logger).Detect(ctx, events, res.Sessions)
	require.NoError(t, err)
	return flags
}

func ofType(flags []attendance.RiskFlag, ft attendance.FlagType) []attendance.RiskFlag {
	var out []attendance.RiskFlag
	for _, f := range flags {
		if f.Type == ft {
			out = append(out, f)
		}
	}
	return out
}

func TestDetect_MultiPersonDevice(t *testing.T) {
	events := fixtures.NewTimeline(t).
		OnDevice("kiosk-1").
		For("p-1", "org-1").Day("2024-03-04", "08:50", "17:00").
		For("p-1", "org-1").Day("2024-03-05", "08:50", "17:00").
		For("p-2", "org-1").Day("2024-03-06", "08:50", "17:00").
		OnDevice("phone-3").
		For("p-3", "org-1").Day("2024-03-04", "08:50", "17:00").
		Events()

	flags := ofType(detect(t, DefaultConfig(), events), attendance.FlagMultiPersonDevice)

	require.Len(t, flags, 1)
	assert.Equal(t, []string{"p-1", "p-2"}, flags[0].InvolvedPersonIDs)
	assert.Equal(t, attendance.SeverityHigh, flags[0].Severity)
	assert.Contains(t, flags[0].Description, "kiosk-1")
}

func TestDetect_DeviceThreshold(t *testing.T) {
	events := fixtures.NewTimeline(t).
		OnDevice("kiosk-1").
		For("p-1", "org-1").Day("2024-03-04", "08:50", "17:00").
		For("p-2", "org-1").Day("2024-03-04", "08:50", "17:00").
		Events()

	cfg := DefaultConfig()
	cfg.DeviceShareThreshold = 3
	assert.Empty(t, ofType(detect(t, cfg, events), attendance.FlagMultiPersonDevice))
}

func TestDetect_OverlappingSessions(t *testing.T) {
	events := fixtures.NewTimeline(t).
		Event(attendance.ClockIn, "2024-03-04", "08:00").
		Event(attendance.ClockIn, "2024-03-04", "09:00").
		Event(attendance.ClockOut, "2024-03-04", "10:00").
		Event(attendance.ClockOut, "2024-03-04", "11:00").
		Events()

	flags := ofType(detect(t, DefaultConfig(), events), attendance.FlagOverlappingSessions)

	require.Len(t, flags, 1)
	assert.Equal(t, []string{"p-1"}, flags[0].InvolvedPersonIDs)
	assert.Equal(t, attendance.SeverityHigh, flags[0].Severity)
}

func TestDetect_BackToBackIntervalsDoNotOverlap(t *testing.T) {
	events := fixtures.NewTimeline(t).
		Event(attendance.ClockIn, "2024-03-04", "08:00").
		Event(attendance.ClockOut, "2024-03-04", "12:00").
		Event(attendance.ClockIn, "2024-03-04", "12:00").
		Event(attendance.ClockOut, "2024-03-04", "17:00").
		Events()

	assert.Empty(t, ofType(detect(t, DefaultConfig(), events), attendance.FlagOverlappingSessions))
}

func TestDetect_OpenIntervalsNeverOverlap(t *testing.T) {
	events := fixtures.NewTimeline(t).
		Event(attendance.ClockIn, "2024-03-04", "08:00").
		Event(attendance.ClockIn, "2024-03-04", "09:00").
		Event(attendance.ClockOut, "2024-03-04", "10:00").
		Events()

	// 08:00-10:00 is closed, 09:00 stays open
	assert.Empty(t, ofType(detect(t, DefaultConfig(), events), attendance.FlagOverlappingSessions))
}

func TestDetect_RapidClockInOut(t *testing.T) {
	events := fixtures.NewTimeline(t).
		For("p-1", "org-1").Day("2024-03-04", "09:00:00", "09:00:40").
		For("p-1", "org-1").Day("2024-03-05", "09:00:00", "09:01:00").
		For("p-2", "org-1").Day("2024-03-04", "09:00:00", "09:00:00").
		Events()

	flags := ofType(detect(t, DefaultConfig(), events), attendance.FlagRapidClockInOut)

	require.Len(t, flags, 2)
	assert.Equal(t, []string{"p-1"}, flags[0].InvolvedPersonIDs)
	assert.Equal(t, []string{"p-2"}, flags[1].InvolvedPersonIDs)
	assert.Equal(t, attendance.SeverityMedium, flags[0].Severity)
}

// clockIns gives every clock-in its own person so each one forms
// its own session
func clockIns(t *testing.T, clocks ...string) []attendance.Event {
	t.Helper()
	tl := fixtures.NewTimeline(t).OnDevice("")
	for i, clock := range clocks {
		tl.For(fmt.Sprintf("p-%02d", i), "org-1").Day("2024-03-04", clock, "")
	}
	return tl.Events()
}

func TestDetect_DuplicateTimestampClustering(t *testing.T) {
	events := clockIns(t,
		"08:00", "08:00", "08:00",
		"08:30", "08:30", "08:30",
		"08:45", "08:45", "08:45",
		"08:51",
	)

	flags := ofType(detect(t, DefaultConfig(), events), attendance.FlagDuplicateTimestamps)
	require.Len(t, flags, 1)
	assert.Contains(t, flags[0].Description, "3 clock-in times")
	assert.Len(t, flags[0].InvolvedPersonIDs, 9)
	assert.NotContains(t, flags[0].InvolvedPersonIDs, "p-09")
	assert.Equal(t, attendance.SeverityMedium, flags[0].Severity)
}

func TestDetect_TwoClustersAreNotEnough(t *testing.T) {
	events := clockIns(t,
		"08:00", "08:00", "08:00",
		"08:30", "08:30", "08:30",
		"08:45", "08:45",
	)
	assert.Empty(t, ofType(detect(t, DefaultConfig(), events), attendance.FlagDuplicateTimestamps))
}

func TestDetect_Deterministic(t *testing.T) {
	events := fixtures.NewTimeline(t).
		OnDevice("kiosk-1").
		For("p-2", "org-1").Day("2024-03-04", "09:00:00", "09:00:10").
		For("p-1", "org-1").Day("2024-03-04", "09:00:00", "09:00:10").
		Events()

	first := detect(t, DefaultConfig(), events)
	reversed := []attendance.Event{events[3], events[2], events[1], events[0]}
	second := detect(t, DefaultConfig(), reversed)

	assert.Equal(t, first, second)
	require.Len(t, first, 3)
	assert.Equal(t, attendance.FlagMultiPersonDevice, first[0].Type)
	assert.Equal(t, attendance.FlagRapidClockInOut, first[1].Type)
}

func TestDetect_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := fixtures.NewTimeline(t).Day("2024-03-04", "09:00", "17:00").Events()
	_, err := NewDetector(DefaultConfig(), zaptest.NewLogger(t)).Detect(ctx, events, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCountByPerson(t *testing.T) {
	counts := CountByPerson([]attendance.RiskFlag{
		{InvolvedPersonIDs: []string{"p-1", "p-2"}},
		{InvolvedPersonIDs: []string{"p-1"}},
	})
	assert.Equal(t, map[string]int{"p-1": 2, "p-2": 1}, counts)
}
