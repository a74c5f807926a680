package fraud

import (
	"sort"
	"time"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
)

// Config holds the manipulation thresholds
type Config struct {
	DeviceShareThreshold  int
	RapidSessionThreshold time.Duration
	DuplicateOccurrences  int
	DuplicateClusters     int
}

func DefaultConfig() Config {
	return Config{
		DeviceShareThreshold:  DefaultDeviceShareThreshold,
		RapidSessionThreshold: DefaultRapidSessionThreshold,
		DuplicateOccurrences:  DefaultDuplicateOccurrences,
		DuplicateClusters:     DefaultDuplicateClusters,
	}
}

// personInterval is a closed work interval tagged with its owner and date
type personInterval struct {
	date  string
	start time.Time
	end   time.Time
}

// accumulator collects the cross-person state of one detection pass. It is
// created per call and never shared, so no locking is needed.
type accumulator struct {
	devices      map[string]map[string]bool
	intervals    map[string][]personInterval
	rapid        []attendance.Session
	clockInTimes map[string]map[string]int
}

func newAccumulator() *accumulator {
	return &accumulator{
		devices:      make(map[string]map[string]bool),
		intervals:    make(map[string][]personInterval),
		clockInTimes: make(map[string]map[string]int),
	}
}

func (a *accumulator) observeEvent(e attendance.Event) {
	if e.DeviceID == "" {
		return
	}
	persons, ok := a.devices[e.DeviceID]
	if !ok {
		persons = make(map[string]bool)
		a.devices[e.DeviceID] = persons
	}
	persons[e.PersonID] = true
}

func (a *accumulator) observeSession(s attendance.Session, rapidBelow time.Duration) {
	for _, iv := range s.Intervals {
		if iv.Kind == attendance.ClockIn {
			a.countClockIn(iv.Start, s.PersonID)
		}
		if iv.Closed() {
			a.intervals[s.PersonID] = append(a.intervals[s.PersonID], personInterval{
				date:  s.Date,
				start: iv.Start,
				end:   *iv.End,
			})
		}
	}

	// zero-length sessions are invalid for durations but still rapid
	if s.ClockOut == nil {
		return
	}
	if d := s.ClockOut.Sub(s.ClockIn); d >= 0 && d < rapidBelow {
		a.rapid = append(a.rapid, s)
	}
}

func (a *accumulator) countClockIn(ts time.Time, personID string) {
	key := ts.Format(clockTimeLayout)
	persons, ok := a.clockInTimes[key]
	if !ok {
		persons = make(map[string]int)
		a.clockInTimes[key] = persons
	}
	persons[personID]++
}

// sortedKeys returns the keys of a set in ascending order
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
