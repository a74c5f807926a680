package attendance

import (
	"fmt"
	"time"
)

// ClockType identifies what an attendance event records
type ClockType string

const (
	ClockIn            ClockType = "in"
	ClockOut           ClockType = "out"
	ClockBreakStart    ClockType = "break_start"
	ClockBreakEnd      ClockType = "break_end"
	ClockLunchStart    ClockType = "lunch_start"
	ClockLunchEnd      ClockType = "lunch_end"
	ClockExtraShiftIn  ClockType = "extra_shift_in"
	ClockExtraShiftOut ClockType = "extra_shift_out"
)

// ClockTypes lists every accepted clock type in canonical order
var ClockTypes = []ClockType{
	ClockIn, ClockOut,
	ClockBreakStart, ClockBreakEnd,
	ClockLunchStart, ClockLunchEnd,
	ClockExtraShiftIn, ClockExtraShiftOut,
}

// IsValid reports whether t is one of the known clock types
func (t ClockType) IsValid() bool {
	for _, known := range ClockTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsClockIn reports whether the event opens a work interval
func (t ClockType) IsClockIn() bool {
	return t == ClockIn || t == ClockExtraShiftIn
}

// IsClockOut reports whether the event closes a work interval
func (t ClockType) IsClockOut() bool {
	return t == ClockOut || t == ClockExtraShiftOut
}

// Closes returns the clock-in type that t closes, or "" if t is not a clock-out
func (t ClockType) Closes() ClockType {
	switch t {
	case ClockOut:
		return ClockIn
	case ClockExtraShiftOut:
		return ClockExtraShiftIn
	default:
		return ""
	}
}

// SupervisorStatus is the review state a supervisor left on an event
type SupervisorStatus string

const (
	SupervisorPending   SupervisorStatus = "pending"
	SupervisorConfirmed SupervisorStatus = "confirmed"
	SupervisorRejected  SupervisorStatus = "rejected"
)

// IsReviewed reports whether a supervisor acted on the record.
// An absent status counts as pending.
func (s SupervisorStatus) IsReviewed() bool {
	return s == SupervisorConfirmed || s == SupervisorRejected
}

// Event is a single clock-in/clock-out style record supplied by the caller.
// Optional fields are zero-valued when absent.
type Event struct {
	Index            int              `json:"index"`
	PersonID         string           `json:"personId" validate:"required"`
	PersonName       string           `json:"personName,omitempty"`
	OrganizationID   string           `json:"organizationId,omitempty"`
	OrganizationName string           `json:"organizationName,omitempty"`
	ClockType        ClockType        `json:"clockType" validate:"required,clocktype"`
	Timestamp        time.Time        `json:"timestamp" validate:"required"`
	DeviceID         string           `json:"deviceId,omitempty"`
	SupervisorStatus SupervisorStatus `json:"supervisorStatus,omitempty" validate:"omitempty,oneof=pending confirmed rejected"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// String renders the event for audit messages
func (e Event) String() string {
	return fmt.Sprintf("#%d %s %s@%s", e.Index, e.PersonID, e.ClockType, e.Timestamp.Format(time.RFC3339))
}

// Person is an optional roster entry. Roster persons without events still
// receive a profile and count toward their organization's staff.
type Person struct {
	ID               string `json:"id" validate:"required"`
	Name             string `json:"name,omitempty"`
	OrganizationID   string `json:"organizationId,omitempty"`
	OrganizationName string `json:"organizationName,omitempty"`
}

// ExclusionStage names the pipeline stage that rejected a record
type ExclusionStage string

const (
	StageDecode      ExclusionStage = "decode"
	StageValidation  ExclusionStage = "validation"
	StageAggregation ExclusionStage = "aggregation"
	StageRoster      ExclusionStage = "roster"
)

// ExcludedRecord is the audit entry for a record left out of analysis
type ExcludedRecord struct {
	Index          int            `json:"index"`
	PersonID       string         `json:"personId,omitempty"`
	OrganizationID string         `json:"organizationId,omitempty"`
	Date           string         `json:"date,omitempty"`
	Stage          ExclusionStage `json:"stage"`
	Reason         string         `json:"reason"`
}
