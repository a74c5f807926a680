package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/telemetry"
)

const eventsTable = "attendance_events"

// EventFilter narrows the events handed to the engine. From is inclusive,
// To is exclusive; empty IDs match everything.
type EventFilter struct {
	From           time.Time
	To             time.Time
	OrganizationID string
	PersonID       string
}

// NewEventFilter converts an inclusive date period into instants in loc
func NewEventFilter(period attendance.Period, loc *time.Location, organizationID, personID string) (EventFilter, error) {
	if loc == nil {
		loc = time.UTC
	}
	if _, err := attendance.NewPeriod(period.Start, period.End); err != nil {
		return EventFilter{}, err
	}
	from, _ := time.ParseInLocation(attendance.DateLayout, period.Start, loc)
	end, _ := time.ParseInLocation(attendance.DateLayout, period.End, loc)
	return EventFilter{
		From:           from,
		To:             end.AddDate(0, 0, 1),
		OrganizationID: organizationID,
		PersonID:       personID,
	}, nil
}

// EventRepository reads and writes raw attendance events
type EventRepository struct {
	pool   *ConnectionPool
	tracer trace.Tracer
	logger *zap.Logger
}

// NewEventRepository creates a repository on top of the shared pool
func NewEventRepository(pool *ConnectionPool, logger *zap.Logger) *EventRepository {
	return &EventRepository{
		pool:   pool,
		tracer: telemetry.Tracer("attendance-analytics/database"),
		logger: logger.Named("event_repository"),
	}
}

// buildListQuery renders the filtered select with positional arguments
func buildListQuery(f EventFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		conditions = append(conditions, fmt.Sprintf(expr, len(args)))
	}
	if !f.From.IsZero() {
		add("ts >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("ts < $%d", f.To)
	}
	if f.OrganizationID != "" {
		add("organization_id = $%d", f.OrganizationID)
	}
	if f.PersonID != "" {
		add("person_id = $%d", f.PersonID)
	}

	var b strings.Builder
	b.WriteString(`SELECT person_id, person_name, organization_id, organization_name,
	clock_type, ts, device_id, supervisor_status, created_at
FROM ` + eventsTable)
	if len(conditions) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	b.WriteString("\nORDER BY ts, id")
	return b.String(), args
}

// ListEvents returns matching events in storage order with Index assigned
// from their position in the result
func (r *EventRepository) ListEvents(ctx context.Context, filter EventFilter) ([]attendance.Event, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.To.After(filter.From) {
		return nil, errors.New("event filter end must be after start")
	}

	ctx, span := telemetry.StartDatabaseSpan(ctx, r.tracer, "SELECT", eventsTable)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, r.pool.queryTimeout)
	defer cancel()

	query, args := buildListQuery(filter)
	rows, err := r.pool.pool.Query(ctx, query, args...)
	if err != nil {
		telemetry.WithSpanError(span, err)
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (attendance.Event, error) {
		var (
			e                   attendance.Event
			clockType, reviewed string
		)
		if err := row.Scan(&e.PersonID, &e.PersonName, &e.OrganizationID, &e.OrganizationName,
			&clockType, &e.Timestamp, &e.DeviceID, &reviewed, &e.CreatedAt); err != nil {
			return e, err
		}
		e.ClockType = attendance.ClockType(clockType)
		e.SupervisorStatus = attendance.SupervisorStatus(reviewed)
		return e, nil
	})
	if err != nil {
		telemetry.WithSpanError(span, err)
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	for i := range events {
		events[i].Index = i
	}

	r.logger.Debug("events loaded",
		zap.Int("count", len(events)),
		zap.Time("from", filter.From),
		zap.Time("to", filter.To),
		zap.String("organization_id", filter.OrganizationID),
		zap.String("person_id", filter.PersonID))
	return events, nil
}

// InsertEvents bulk-loads events with COPY
func (r *EventRepository) InsertEvents(ctx context.Context, events []attendance.Event) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	ctx, span := telemetry.StartDatabaseSpan(ctx, r.tracer, "COPY", eventsTable)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, r.pool.queryTimeout)
	defer cancel()

	columns := []string{"person_id", "person_name", "organization_id", "organization_name",
		"clock_type", "ts", "device_id", "supervisor_status", "created_at"}
	n, err := r.pool.pool.CopyFrom(ctx, pgx.Identifier{eventsTable}, columns,
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			e := events[i]
			created := e.CreatedAt
			if created.IsZero() {
				created = e.Timestamp
			}
			return []any{e.PersonID, e.PersonName, e.OrganizationID, e.OrganizationName,
				string(e.ClockType), e.Timestamp, e.DeviceID, string(e.SupervisorStatus), created}, nil
		}))
	if err != nil {
		telemetry.WithSpanError(span, err)
		return 0, fmt.Errorf("failed to copy events: %w", err)
	}
	return n, nil
}
