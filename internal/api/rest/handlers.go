package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
	apperrors "github.com/davidleathers/attendance-analytics-engine/internal/domain/errors"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/cache"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/database"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/analytics"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/ingest"
)

// Runner executes analytics runs
type Runner interface {
	Run(ctx context.Context, in analytics.Input) (*analytics.Report, error)
	Fingerprint(in analytics.Input) (string, error)
	Config() analytics.Config
}

// EventSource loads stored events for a query
type EventSource interface {
	ListEvents(ctx context.Context, filter database.EventFilter) ([]attendance.Event, error)
}

// HealthCheck reports whether one dependency is usable
type HealthCheck func(ctx context.Context) error

// Handlers serves the analytics endpoints
type Handlers struct {
	engine  Runner
	events  EventSource
	reports cache.ReportStore
	checks  map[string]HealthCheck
	logger  *zap.Logger
}

// NewHandlers wires the endpoints. events and reports are optional.
func NewHandlers(engine Runner, events EventSource, reports cache.ReportStore, checks map[string]HealthCheck, logger *zap.Logger) *Handlers {
	return &Handlers{
		engine:  engine,
		events:  events,
		reports: reports,
		checks:  checks,
		logger:  logger.Named("handlers"),
	}
}

// CreateRun handles POST /v1/analytics/runs
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := ingest.Decode(body)
	if err != nil {
		writeError(w, err)
		return
	}
	h.run(w, r, analytics.FromPayload(payload))
}

// QueryRun handles GET /v1/analytics/runs?from=&to=&organization_id=&person_id=
func (h *Handlers) QueryRun(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, apperrors.NewExternalError("event store", "not configured"))
		return
	}

	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		writeError(w, apperrors.NewValidationError("MISSING_PERIOD", "from and to are required (YYYY-MM-DD)"))
		return
	}
	period, err := attendance.NewPeriod(from, to)
	if err != nil {
		writeError(w, apperrors.NewValidationError("INVALID_PERIOD", err.Error()))
		return
	}

	filter, err := database.NewEventFilter(period, h.engine.Config().Sessions.Location,
		q.Get("organization_id"), q.Get("person_id"))
	if err != nil {
		writeError(w, apperrors.NewValidationError("INVALID_PERIOD", err.Error()))
		return
	}

	events, err := h.events.ListEvents(r.Context(), filter)
	if err != nil {
		if ctxErr := r.Context().Err(); ctxErr != nil {
			writeError(w, apperrors.NewCanceledError("event retrieval", ctxErr))
			return
		}
		h.logger.Error("event retrieval failed", zap.Error(err))
		writeError(w, apperrors.NewExternalError("event store", "event retrieval failed"))
		return
	}
	h.run(w, r, analytics.Input{Events: events, Period: period})
}

// run serves a cached report for the fingerprint or computes and stores one
func (h *Handlers) run(w http.ResponseWriter, r *http.Request, in analytics.Input) {
	ctx := r.Context()
	log := telemetry.WithContext(ctx, h.logger)

	fingerprint, err := h.engine.Fingerprint(in)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.reports != nil {
		cached, err := h.reports.Get(ctx, fingerprint)
		switch {
		case err == nil:
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, cached)
			return
		case !errors.As(err, new(cache.ErrCacheKeyNotFound)):
			log.Warn("report cache read failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		}
	}

	report, err := h.engine.Run(ctx, in)
	if err != nil {
		if !apperrors.IsType(err, apperrors.ErrorTypeCanceled) {
			log.Error("analytics run failed", zap.Error(err))
		}
		writeError(w, err)
		return
	}

	if h.reports != nil {
		// the client may be gone; the report is still worth keeping
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		if err := h.reports.Set(storeCtx, report); err != nil {
			log.Warn("report cache write failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		}
		cancel()
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, report)
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health runs every dependency check concurrently
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	results := make([]error, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			results[i] = h.checks[name](ctx)
			return nil
		})
	}
	_ = g.Wait()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for i, name := range names {
		if results[i] != nil {
			resp.Checks[name] = results[i].Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}
