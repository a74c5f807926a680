package violations

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
)

// Config holds the rule thresholds
type Config struct {
	LateCountThreshold int
	UnusualHourStart   int
	UnusualHourEnd     int
}

func DefaultConfig() Config {
	return Config{LateCountThreshold: 3, UnusualHourStart: 6, UnusualHourEnd: 22}
}

// Detector applies the violation rule set to sessions
type Detector struct {
	rules  []Rule
	logger *zap.Logger
}

func NewDetector(cfg Config, logger *zap.Logger) *Detector {
	return &Detector{
		rules: []Rule{
			missedClockOutRule{},
			repeatedLatenessRule{threshold: cfg.LateCountThreshold},
			unusualClockInRule{startHour: cfg.UnusualHourStart, endHour: cfg.UnusualHourEnd},
		},
		logger: logger.Named("violations"),
	}
}

// Detect evaluates every person's sessions and returns violations sorted by
// person, date and type
func (d *Detector) Detect(ctx context.Context, sessions []attendance.Session) ([]attendance.Violation, error) {
	var out []attendance.Violation
	for _, group := range ByPerson(sessions) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, d.DetectPerson(group)...)
	}
	Sort(out)

	d.logger.Debug("detected violations",
		zap.Int("sessions", len(sessions)),
		zap.Int("violations", len(out)),
	)
	return out, nil
}

// DetectPerson evaluates one person's sessions. At most one violation of a
// given type is returned per date.
func (d *Detector) DetectPerson(sessions []attendance.Session) []attendance.Violation {
	sorted := make([]attendance.Session, len(sessions))
	copy(sorted, sessions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	type key struct {
		date string
		vt   attendance.ViolationType
	}
	seen := make(map[key]bool)

	var out []attendance.Violation
	for _, r := range d.rules {
		for _, v := range r.Evaluate(sorted) {
			k := key{date: v.Date, vt: v.Type}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, v)
		}
	}
	Sort(out)
	return out
}

// ByPerson groups sessions per person, ordered by person ID
func ByPerson(sessions []attendance.Session) [][]attendance.Session {
	byPerson := make(map[string][]attendance.Session)
	for _, s := range sessions {
		byPerson[s.PersonID] = append(byPerson[s.PersonID], s)
	}

	ids := make([]string, 0, len(byPerson))
	for id := range byPerson {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	groups := make([][]attendance.Session, len(ids))
	for i, id := range ids {
		groups[i] = byPerson[id]
	}
	return groups
}

// Sort orders violations by person, date, then type
func Sort(vs []attendance.Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i], vs[j]
		if a.PersonID != b.PersonID {
			return a.PersonID < b.PersonID
		}
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.Type < b.Type
	})
}
