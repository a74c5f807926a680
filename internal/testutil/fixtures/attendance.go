package fixtures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
)

// At parses a date ("2024-03-04") and clock time ("09:15" or "09:15:30") as UTC
func At(t *testing.T, date, clock string) time.Time {
	t.Helper()
	layout := "2006-01-02 15:04"
	if len(clock) == len("15:04:05") {
		layout = "2006-01-02 15:04:05"
	}
	ts, err := time.ParseInLocation(layout, date+" "+clock, time.UTC)
	require.NoError(t, err)
	return ts
}

// EventBuilder builds test attendance events
type EventBuilder struct {
	t     *testing.T
	event attendance.Event
}

// NewEventBuilder creates an on-time clock-in for p-1 at org-1 with defaults
func NewEventBuilder(t *testing.T) *EventBuilder {
	t.Helper()
	ts := At(t, "2024-03-04", "08:55")
	return &EventBuilder{
		t: t,
		event: attendance.Event{
			PersonID:         "p-1",
			PersonName:       "Person One",
			OrganizationID:   "org-1",
			OrganizationName: "Organization One",
			ClockType:        attendance.ClockIn,
			Timestamp:        ts,
			DeviceID:         "dev-1",
			SupervisorStatus: attendance.SupervisorPending,
			CreatedAt:        ts,
		},
	}
}

func (b *EventBuilder) WithIndex(i int) *EventBuilder {
	b.event.Index = i
	return b
}

func (b *EventBuilder) WithPerson(id, name string) *EventBuilder {
	b.event.PersonID = id
	b.event.PersonName = name
	return b
}

func (b *EventBuilder) WithOrganization(id, name string) *EventBuilder {
	b.event.OrganizationID = id
	b.event.OrganizationName = name
	return b
}

func (b *EventBuilder) WithClockType(ct attendance.ClockType) *EventBuilder {
	b.event.ClockType = ct
	return b
}

func (b *EventBuilder) At(date, clock string) *EventBuilder {
	b.event.Timestamp = At(b.t, date, clock)
	b.event.CreatedAt = b.event.Timestamp
	return b
}

func (b *EventBuilder) WithTimestamp(ts time.Time) *EventBuilder {
	b.event.Timestamp = ts
	return b
}

func (b *EventBuilder) WithDevice(id string) *EventBuilder {
	b.event.DeviceID = id
	return b
}

func (b *EventBuilder) WithSupervisorStatus(s attendance.SupervisorStatus) *EventBuilder {
	b.event.SupervisorStatus = s
	return b
}

// Build returns the event
func (b *EventBuilder) Build() attendance.Event {
	b.t.Helper()
	return b.event
}

// Timeline accumulates events for one or more persons in payload order
type Timeline struct {
	t      *testing.T
	events []attendance.Event
	person string
	org    string
	device string
	status attendance.SupervisorStatus
}

// NewTimeline starts a timeline for p-1 at org-1 on dev-1
func NewTimeline(t *testing.T) *Timeline {
	t.Helper()
	return &Timeline{t: t, person: "p-1", org: "org-1", device: "dev-1", status: attendance.SupervisorPending}
}

// For switches the person and organization used by subsequent events
func (tl *Timeline) For(person, org string) *Timeline {
	tl.person = person
	tl.org = org
	return tl
}

// OnDevice switches the device used by subsequent events
func (tl *Timeline) OnDevice(device string) *Timeline {
	tl.device = device
	return tl
}

// Reviewed switches the supervisor status used by subsequent events
func (tl *Timeline) Reviewed(s attendance.SupervisorStatus) *Timeline {
	tl.status = s
	return tl
}

// Event appends a single event
func (tl *Timeline) Event(ct attendance.ClockType, date, clock string) *Timeline {
	tl.t.Helper()
	e := NewEventBuilder(tl.t).
		WithIndex(len(tl.events)).
		WithPerson(tl.person, "").
		WithOrganization(tl.org, "").
		WithClockType(ct).
		At(date, clock).
		WithDevice(tl.device).
		WithSupervisorStatus(tl.status).
		Build()
	tl.events = append(tl.events, e)
	return tl
}

// Day appends a clock-in and, unless out is empty, a clock-out on date
func (tl *Timeline) Day(date, in, out string) *Timeline {
	tl.t.Helper()
	tl.Event(attendance.ClockIn, date, in)
	if out != "" {
		tl.Event(attendance.ClockOut, date, out)
	}
	return tl
}

// Events returns the accumulated events with sequential indices
func (tl *Timeline) Events() []attendance.Event {
	out := make([]attendance.Event, len(tl.events))
	copy(out, tl.events)
	return out
}

// RosterBuilder builds roster entries
type RosterBuilder struct {
	t       *testing.T
	persons []attendance.Person
}

func NewRosterBuilder(t *testing.T) *RosterBuilder {
	t.Helper()
	return &RosterBuilder{t: t}
}

func (b *RosterBuilder) Add(id, name, orgID, orgName string) *RosterBuilder {
	b.persons = append(b.persons, attendance.Person{
		ID:               id,
		Name:             name,
		OrganizationID:   orgID,
		OrganizationName: orgName,
	})
	return b
}

func (b *RosterBuilder) Build() []attendance.Person {
	out := make([]attendance.Person, len(b.persons))
	copy(out, b.persons)
	return out
}
