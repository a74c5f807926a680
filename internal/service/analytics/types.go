package analytics

import (
	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/behavior"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/fraud"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/ingest"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/risk"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/sessions"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/violations"
)

// Pipeline stage names, used for spans, metrics and cancellation errors
const (
	StageValidate   = "ingest.validate"
	StageAggregate  = "sessions.aggregate"
	StageViolations = "violations.detect"
	StageFraud      = "fraud.detect"
	StageRisk       = "risk.score"
	StageBehavior   = "behavior.analyze"
	StageCompliance = "compliance.rank"
)

// DefaultWorkers bounds per-person fan-out when no worker count is configured
const DefaultWorkers = 4

// Config composes the settings of every stage. Period is optional; when it
// is zero the report covers the earliest to latest session date.
type Config struct {
	Sessions   sessions.Config
	Violations violations.Config
	Fraud      fraud.Config
	Risk       risk.Config
	Behavior   behavior.Config
	Period     attendance.Period
	Workers    int
}

// DefaultConfig returns the documented defaults for every stage
func DefaultConfig() Config {
	return Config{
		Sessions:   sessions.DefaultConfig(),
		Violations: violations.DefaultConfig(),
		Fraud:      fraud.DefaultConfig(),
		Risk:       risk.DefaultConfig(),
		Behavior:   behavior.DefaultConfig(),
		Workers:    DefaultWorkers,
	}
}

// Input is one immutable snapshot handed to the engine
type Input struct {
	Events   []attendance.Event          `json:"events"`
	Roster   []attendance.Person         `json:"roster,omitempty"`
	Rejected []attendance.ExcludedRecord `json:"rejected,omitempty"`
	// Period overrides the configured evaluation period for this run
	Period attendance.Period `json:"period"`
}

// FromPayload adapts a decoded request body
func FromPayload(p ingest.Payload) Input {
	return Input{Events: p.Events, Roster: p.Roster, Rejected: p.Rejected}
}

// Summary holds headline counts of a run
type Summary struct {
	EventsReceived int `json:"eventsReceived"`
	EventsValid    int `json:"eventsValid"`
	EventsExcluded int `json:"eventsExcluded"`
	Sessions       int `json:"sessions"`
	Violations     int `json:"violations"`
	Flags          int `json:"flags"`
	Persons        int `json:"persons"`
	Organizations  int `json:"organizations"`
}

// Report is the complete output of one run. Every slice is sorted so the
// same input and configuration serialize to identical bytes.
type Report struct {
	Fingerprint      string                                `json:"fingerprint"`
	Period           attendance.Period                     `json:"period"`
	Summary          Summary                               `json:"summary"`
	Sessions         []attendance.Session                  `json:"sessions"`
	Violations       []attendance.Violation                `json:"violations"`
	RiskFlags        []attendance.RiskFlag                 `json:"riskFlags"`
	RiskProfiles     []attendance.RiskProfile              `json:"riskProfiles"`
	BehaviorProfiles []attendance.BehaviorProfile          `json:"behaviorProfiles"`
	Rankings         []attendance.CompanyComplianceRanking `json:"rankings"`
	ExcludedRecords  []attendance.ExcludedRecord           `json:"excludedRecords"`
}
