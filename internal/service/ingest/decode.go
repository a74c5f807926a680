package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
	"github.com/davidleathers/attendance-analytics-engine/internal/domain/errors"
)

// Payload is a decoded request body. Rejected holds records that could not
// be turned into events at all; they are reported, never dropped silently.
type Payload struct {
	Events   []attendance.Event          `json:"events"`
	Roster   []attendance.Person         `json:"roster,omitempty"`
	Rejected []attendance.ExcludedRecord `json:"-"`
}

// envelope is the object form of a payload
type envelope struct {
	Events *[]json.RawMessage `json:"events"`
	Roster []json.RawMessage  `json:"roster"`
}

// wireEvent mirrors attendance.Event with timestamps left as text so a bad
// timestamp excludes one record instead of failing the whole payload.
type wireEvent struct {
	PersonID         string `json:"personId"`
	PersonName       string `json:"personName"`
	OrganizationID   string `json:"organizationId"`
	OrganizationName string `json:"organizationName"`
	ClockType        string `json:"clockType"`
	Timestamp        string `json:"timestamp"`
	DeviceID         string `json:"deviceId"`
	SupervisorStatus string `json:"supervisorStatus"`
	CreatedAt        string `json:"createdAt"`
}

// Decode parses either a JSON array of events or an object
// {"events": [...], "roster": [...]}. Any other top-level shape is an
// INVALID_PAYLOAD error; problems inside individual records are not.
func Decode(data []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Payload{}, errors.NewInvalidPayloadError("empty body")
	}

	var rawEvents, rawRoster []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &rawEvents); err != nil {
			return Payload{}, errors.NewInvalidPayloadError(err.Error())
		}
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return Payload{}, errors.NewInvalidPayloadError(err.Error())
		}
		if env.Events == nil {
			return Payload{}, errors.NewInvalidPayloadError(`object payload has no "events" array`)
		}
		rawEvents = *env.Events
		rawRoster = env.Roster
	default:
		return Payload{}, errors.NewInvalidPayloadError(fmt.Sprintf("unexpected top-level JSON value starting with %q", trimmed[0]))
	}

	p := Payload{Events: make([]attendance.Event, 0, len(rawEvents))}
	for i, raw := range rawEvents {
		e, reason := decodeEvent(i, raw)
		if reason != "" {
			p.Rejected = append(p.Rejected, attendance.ExcludedRecord{
				Index:          i,
				PersonID:       e.PersonID,
				OrganizationID: e.OrganizationID,
				Stage:          attendance.StageDecode,
				Reason:         reason,
			})
			continue
		}
		p.Events = append(p.Events, e)
	}

	for i, raw := range rawRoster {
		var person attendance.Person
		if err := json.Unmarshal(raw, &person); err != nil {
			p.Rejected = append(p.Rejected, attendance.ExcludedRecord{
				Index:  i,
				Stage:  attendance.StageRoster,
				Reason: fmt.Sprintf("malformed roster entry: %v", err),
			})
			continue
		}
		person.ID = strings.TrimSpace(person.ID)
		person.OrganizationID = strings.TrimSpace(person.OrganizationID)
		p.Roster = append(p.Roster, person)
	}

	return p, nil
}

func decodeEvent(index int, raw json.RawMessage) (attendance.Event, string) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return attendance.Event{Index: index}, fmt.Sprintf("malformed record: %v", err)
	}

	e := attendance.Event{
		Index:            index,
		PersonID:         strings.TrimSpace(w.PersonID),
		PersonName:       strings.TrimSpace(w.PersonName),
		OrganizationID:   strings.TrimSpace(w.OrganizationID),
		OrganizationName: strings.TrimSpace(w.OrganizationName),
		ClockType:        attendance.ClockType(strings.ToLower(strings.TrimSpace(w.ClockType))),
		DeviceID:         strings.TrimSpace(w.DeviceID),
		SupervisorStatus: attendance.SupervisorStatus(strings.ToLower(strings.TrimSpace(w.SupervisorStatus))),
	}

	if ts := strings.TrimSpace(w.Timestamp); ts != "" {
		parsed, err := parseTimestamp(ts)
		if err != nil {
			return e, fmt.Sprintf("unparsable timestamp %q", w.Timestamp)
		}
		e.Timestamp = parsed
	}

	// createdAt is bookkeeping only; an unreadable value is ignored
	if ca := strings.TrimSpace(w.CreatedAt); ca != "" {
		if parsed, err := parseTimestamp(ca); err == nil {
			e.CreatedAt = parsed
		}
	}

	return e, ""
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
