package attendance

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity grades violations and risk flags
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ViolationType names a single-session rule breach
type ViolationType string

const (
	ViolationMissedClockOut   ViolationType = "missed_clock_out"
	ViolationRepeatedLateness ViolationType = "repeated_lateness"
	ViolationUnusualClockIn   ViolationType = "unusual_clock_in_time"
)

// FlagType names a manipulation indicator derived from several records
type FlagType string

const (
	FlagMultiPersonDevice   FlagType = "multi_person_device_usage"
	FlagOverlappingSessions FlagType = "overlapping_sessions"
	FlagRapidClockInOut     FlagType = "rapid_clock_in_out"
	FlagDuplicateTimestamps FlagType = "duplicate_timestamp_clustering"
)

// recordNamespace seeds the name-based identifiers of derived records so the
// same input always yields the same IDs
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:attendance-analytics:record"))

// RecordID derives a stable identifier from the given key parts
func RecordID(parts ...string) uuid.UUID {
	return uuid.NewSHA1(recordNamespace, []byte(strings.Join(parts, "|")))
}

// Violation is an immutable fact produced by one detector run. Callers must
// replace the whole set by rerunning the pipeline, never patch entries.
type Violation struct {
	ID             uuid.UUID     `json:"id"`
	PersonID       string        `json:"personId"`
	OrganizationID string        `json:"organizationId,omitempty"`
	Date           string        `json:"date"`
	Type           ViolationType `json:"type"`
	Severity       Severity      `json:"severity"`
	Description    string        `json:"description"`
	TriggerRule    string        `json:"triggerRule"`
	Timestamp      time.Time     `json:"timestamp"`
}

// NewViolation builds a violation with its derived identifier
func NewViolation(s Session, vt ViolationType, sev Severity, rule, description string) Violation {
	return Violation{
		ID:             RecordID(string(vt), s.PersonID, s.Date),
		PersonID:       s.PersonID,
		OrganizationID: s.OrganizationID,
		Date:           s.Date,
		Type:           vt,
		Severity:       sev,
		Description:    description,
		TriggerRule:    rule,
		Timestamp:      s.ClockIn,
	}
}

// RiskFlag is a manipulation signal correlating multiple records
type RiskFlag struct {
	ID                uuid.UUID `json:"id"`
	Type              FlagType  `json:"type"`
	Severity          Severity  `json:"severity"`
	Description       string    `json:"description"`
	InvolvedPersonIDs []string  `json:"involvedPersonIds"`
	TriggerRule       string    `json:"triggerRule"`
}
