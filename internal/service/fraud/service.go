package fraud

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
)

// Detector correlates records across all persons to raise manipulation
// flags. Device and overlap checks need global visibility, so a pass runs
// sequentially over the whole dataset.
type Detector struct {
	cfg    Config
	logger *zap.Logger
}

// NewDetector creates a manipulation detector
func NewDetector(cfg Config, logger *zap.Logger) *Detector {
	return &Detector{cfg: cfg, logger: logger.Named("fraud")}
}

// Detect scans validated events and aggregated sessions and returns flags
// sorted by type, involved persons, then description
func (d *Detector) Detect(ctx context.Context, events []attendance.Event, sessions []attendance.Session) ([]attendance.RiskFlag, error) {
	acc := newAccumulator()

	for i, e := range events {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		acc.observeEvent(e)
	}
	for i, s := range sessions {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		acc.observeSession(s, d.cfg.RapidSessionThreshold)
	}

	var flags []attendance.RiskFlag
	flags = append(flags, d.deviceFlags(acc)...)
	flags = append(flags, d.overlapFlags(acc)...)
	flags = append(flags, d.rapidFlags(acc)...)
	flags = append(flags, d.duplicateFlags(acc)...)
	Sort(flags)

	d.logger.Debug("manipulation scan complete",
		zap.Int("events", len(events)),
		zap.Int("sessions", len(sessions)),
		zap.Int("devices", len(acc.devices)),
		zap.Int("flags", len(flags)),
	)
	return flags, nil
}

// deviceFlags raises one flag per device used by too many distinct persons
func (d *Detector) deviceFlags(acc *accumulator) []attendance.RiskFlag {
	rule := fmt.Sprintf("multi_person_device_usage: distinct persons per device >= %d", d.cfg.DeviceShareThreshold)

	var flags []attendance.RiskFlag
	for _, device := range sortedKeys(acc.devices) {
		persons := sortedKeys(acc.devices[device])
		if len(persons) < d.cfg.DeviceShareThreshold {
			continue
		}
		flags = append(flags, attendance.RiskFlag{
			ID:                attendance.RecordID(string(attendance.FlagMultiPersonDevice), device),
			Type:              attendance.FlagMultiPersonDevice,
			Severity:          attendance.SeverityHigh,
			Description:       fmt.Sprintf("Device %s used by %d persons: %s", device, len(persons), strings.Join(persons, ", ")),
			InvolvedPersonIDs: persons,
			TriggerRule:       rule,
		})
	}
	return flags
}

// overlapFlags raises one flag per pair of intersecting closed intervals of
// the same person. Intervals that only touch at an endpoint do not overlap.
func (d *Detector) overlapFlags(acc *accumulator) []attendance.RiskFlag {
	const rule = "overlapping_sessions: two closed [clockIn, clockOut] intervals of one person intersect"

	var flags []attendance.RiskFlag
	for _, person := range sortedKeys(acc.intervals) {
		ivs := acc.intervals[person]
		sort.SliceStable(ivs, func(i, j int) bool {
			if !ivs[i].start.Equal(ivs[j].start) {
				return ivs[i].start.Before(ivs[j].start)
			}
			return ivs[i].end.Before(ivs[j].end)
		})

		for i := range ivs {
			for j := i + 1; j < len(ivs) && ivs[j].start.Before(ivs[i].end); j++ {
				a, b := ivs[i], ivs[j]
				flags = append(flags, attendance.RiskFlag{
					ID: attendance.RecordID(string(attendance.FlagOverlappingSessions), person,
						a.start.UTC().Format("2006-01-02T15:04:05Z"), b.start.UTC().Format("2006-01-02T15:04:05Z")),
					Type:     attendance.FlagOverlappingSessions,
					Severity: attendance.SeverityHigh,
					Description: fmt.Sprintf("Sessions of %s overlap: %s %s-%s and %s %s-%s", person,
						a.date, a.start.Format("15:04"), a.end.Format("15:04"),
						b.date, b.start.Format("15:04"), b.end.Format("15:04")),
					InvolvedPersonIDs: []string{person},
					TriggerRule:       rule,
				})
			}
		}
	}
	return flags
}

// rapidFlags raises one flag per session shorter than the rapid threshold
func (d *Detector) rapidFlags(acc *accumulator) []attendance.RiskFlag {
	rule := fmt.Sprintf("rapid_clock_in_out: clockOut - clockIn < %s", d.cfg.RapidSessionThreshold)

	flags := make([]attendance.RiskFlag, 0, len(acc.rapid))
	for _, s := range acc.rapid {
		flags = append(flags, attendance.RiskFlag{
			ID:       attendance.RecordID(string(attendance.FlagRapidClockInOut), s.PersonID, s.Date),
			Type:     attendance.FlagRapidClockInOut,
			Severity: attendance.SeverityMedium,
			Description: fmt.Sprintf("%s clocked in at %s and out at %s on %s (%s)",
				s.PersonID, s.ClockIn.Format(clockTimeLayout), s.ClockOut.Format(clockTimeLayout),
				s.Date, s.ClockOut.Sub(s.ClockIn)),
			InvolvedPersonIDs: []string{s.PersonID},
			TriggerRule:       rule,
		})
	}
	return flags
}

// duplicateFlags raises a single data-quality flag when enough distinct
// clock-in times each recur often enough across the dataset
func (d *Detector) duplicateFlags(acc *accumulator) []attendance.RiskFlag {
	rule := fmt.Sprintf("duplicate_timestamp_clustering: >= %d distinct clock-in times each recurring >= %d times",
		d.cfg.DuplicateClusters, d.cfg.DuplicateOccurrences)

	var clusters []string
	involved := make(map[string]bool)
	for _, clock := range sortedKeys(acc.clockInTimes) {
		persons := acc.clockInTimes[clock]
		total := 0
		for _, n := range persons {
			total += n
		}
		if total < d.cfg.DuplicateOccurrences {
			continue
		}
		clusters = append(clusters, fmt.Sprintf("%s x%d", clock, total))
		for p := range persons {
			involved[p] = true
		}
	}

	if len(clusters) < d.cfg.DuplicateClusters {
		return nil
	}
	return []attendance.RiskFlag{{
		ID:                attendance.RecordID(string(attendance.FlagDuplicateTimestamps)),
		Type:              attendance.FlagDuplicateTimestamps,
		Severity:          attendance.SeverityMedium,
		Description:       fmt.Sprintf("%d clock-in times recur across the dataset: %s", len(clusters), strings.Join(clusters, ", ")),
		InvolvedPersonIDs: sortedKeys(involved),
		TriggerRule:       rule,
	}}
}

// Sort orders flags by type, involved persons, then description
func Sort(flags []attendance.RiskFlag) {
	sort.SliceStable(flags, func(i, j int) bool {
		a, b := flags[i], flags[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		pa, pb := strings.Join(a.InvolvedPersonIDs, ","), strings.Join(b.InvolvedPersonIDs, ",")
		if pa != pb {
			return pa < pb
		}
		return a.Description < b.Description
	})
}

// CountByPerson returns how many flags name each person
func CountByPerson(flags []attendance.RiskFlag) map[string]int {
	counts := make(map[string]int)
	for _, f := range flags {
		for _, p := range f.InvolvedPersonIDs {
			counts[p]++
		}
	}
	return counts
}
