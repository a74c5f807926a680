package analytics

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
	"github.com/davidleathers/attendance-analytics-engine/internal/domain/errors"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/attendance-analytics-engine/internal/metrics"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/behavior"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/compliance"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/fraud"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/ingest"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/risk"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/sessions"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/violations"
)

var fingerprintNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:attendance-analytics:run"))

// stageOrder ranks exclusion stages in pipeline order for sorting
var stageOrder = map[attendance.ExclusionStage]int{
	attendance.StageDecode:      0,
	attendance.StageRoster:      1,
	attendance.StageValidation:  2,
	attendance.StageAggregation: 3,
}

// Engine runs the full analytics pipeline over one input snapshot. It keeps
// no state between runs and is safe for concurrent use.
type Engine struct {
	cfg        Config
	validator  *ingest.Validator
	aggregator *sessions.Aggregator
	violations *violations.Detector
	fraud      *fraud.Detector
	scorer     *risk.Scorer
	analyzer   *behavior.Analyzer
	ranker     *compliance.Ranker
	metrics    *metrics.Registry
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewEngine wires every stage from cfg. reg may be nil.
func NewEngine(cfg Config, logger *zap.Logger, reg *metrics.Registry) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Sessions.Location == nil {
		cfg.Sessions.Location = time.UTC
	}

	return &Engine{
		cfg:        cfg,
		validator:  ingest.NewValidator(logger),
		aggregator: sessions.NewAggregator(cfg.Sessions, logger),
		violations: violations.NewDetector(cfg.Violations, logger),
		fraud:      fraud.NewDetector(cfg.Fraud, logger),
		scorer:     risk.NewScorer(cfg.Risk, logger),
		analyzer:   behavior.NewAnalyzer(cfg.Behavior, logger),
		ranker:     compliance.NewRanker(logger),
		metrics:    reg,
		tracer:     telemetry.Tracer("attendance-analytics/engine"),
		logger:     logger.Named("analytics"),
	}
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Fingerprint identifies an (input, configuration) pair. Equal fingerprints
// mean equal reports.
func (e *Engine) Fingerprint(in Input) (string, error) {
	data, err := json.Marshal(struct {
		Input    Input  `json:"input"`
		Config   Config `json:"config"`
		Location string `json:"location"`
	}{in, e.cfg, e.cfg.Sessions.Location.String()})
	if err != nil {
		return "", errors.NewInternalError("failed to encode run fingerprint").WithCause(err)
	}
	return uuid.NewSHA1(fingerprintNamespace, data).String(), nil
}

// run carries intermediate results between stages
type run struct {
	in       Input
	roster   []attendance.Person
	valid    []attendance.Event
	excluded []attendance.ExcludedRecord
	sessions []attendance.Session
	period   attendance.Period
	report   *Report
}

// Run executes every stage and returns the report. Per-record problems end
// up in ExcludedRecords; only cancellation or an internal fault is an error.
func (e *Engine) Run(ctx context.Context, in Input) (_ *Report, err error) {
	started := time.Now()
	ctx, span := telemetry.StartStageSpan(ctx, e.tracer, "analytics.run",
		telemetry.AttrEvents.Int(len(in.Events)+len(in.Rejected)))
	defer func() {
		telemetry.WithSpanError(span, err)
		span.End()
		if e.metrics != nil {
			e.metrics.RecordRun(ctx, millis(time.Since(started)), err == nil)
		}
	}()

	fingerprint, err := e.Fingerprint(in)
	if err != nil {
		return nil, err
	}

	r := &run{
		in:     in,
		report: &Report{Fingerprint: fingerprint},
	}
	r.excluded = append(r.excluded, in.Rejected...)

	steps := []struct {
		name string
		fn   func(context.Context, *run) error
	}{
		{StageValidate, e.validate},
		{StageAggregate, e.aggregate},
		{StageViolations, e.detectViolations},
		{StageFraud, e.detectFraud},
		{StageRisk, e.score},
		{StageBehavior, e.analyze},
		{StageCompliance, e.rank},
	}
	for _, step := range steps {
		if err := e.stage(ctx, step.name, func(ctx context.Context) error { return step.fn(ctx, r) }); err != nil {
			return nil, err
		}
	}

	rep := r.report
	sortExcluded(r.excluded)
	rep.ExcludedRecords = r.excluded
	rep.Period = r.period
	rep.Summary = Summary{
		EventsReceived: len(in.Events) + countStage(in.Rejected, attendance.StageDecode),
		EventsValid:    len(r.valid),
		EventsExcluded: len(r.excluded),
		Sessions:       len(rep.Sessions),
		Violations:     len(rep.Violations),
		Flags:          len(rep.RiskFlags),
		Persons:        len(rep.RiskProfiles),
		Organizations:  len(rep.Rankings),
	}
	normalize(rep)

	if e.metrics != nil {
		e.recordFindings(ctx, rep)
	}
	telemetry.WithContext(ctx, e.logger).Info("analytics run complete",
		zap.String("fingerprint", fingerprint),
		zap.Int("events_received", rep.Summary.EventsReceived),
		zap.Int("events_valid", rep.Summary.EventsValid),
		zap.Int("excluded", rep.Summary.EventsExcluded),
		zap.Int("sessions", rep.Summary.Sessions),
		zap.Int("violations", rep.Summary.Violations),
		zap.Int("flags", rep.Summary.Flags),
		zap.Int("persons", rep.Summary.Persons),
		zap.Int("organizations", rep.Summary.Organizations),
		zap.Duration("elapsed", time.Since(started)),
	)
	return rep, nil
}

// stage runs fn inside a span and maps context errors to RUN_CANCELED
func (e *Engine) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCanceledError(name, err)
	}

	sctx, span := telemetry.StartStageSpan(ctx, e.tracer, name)
	started := time.Now()
	err := fn(sctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		err = errors.NewCanceledError(name, ctx.Err())
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		err = errors.NewCanceledError(name, err)
	default:
		err = errors.NewInternalError(fmt.Sprintf("%s failed", name)).WithCause(err)
	}
	telemetry.WithSpanError(span, err)
	span.End()

	if e.metrics != nil {
		e.metrics.RecordStage(ctx, name, millis(time.Since(started)))
	}
	e.logger.Debug("stage finished", zap.String("stage", name), zap.Duration("elapsed", time.Since(started)))
	return err
}

func (e *Engine) validate(ctx context.Context, r *run) error {
	res := e.validator.Validate(ctx, r.in.Events)
	r.valid = res.Valid
	r.excluded = append(r.excluded, res.Excluded...)

	seen := make(map[string]bool, len(r.in.Roster))
	for i, p := range r.in.Roster {
		reason := ""
		if err := e.validator.ValidatePerson(ctx, p); err != nil {
			reason = err.Error()
		} else if seen[p.ID] {
			reason = fmt.Sprintf("duplicate roster entry for id %s", p.ID)
		}
		if reason != "" {
			r.excluded = append(r.excluded, attendance.ExcludedRecord{
				Index:          i,
				PersonID:       p.ID,
				OrganizationID: p.OrganizationID,
				Stage:          attendance.StageRoster,
				Reason:         reason,
			})
			continue
		}
		seen[p.ID] = true
		r.roster = append(r.roster, p)
	}
	return ctx.Err()
}

func (e *Engine) aggregate(ctx context.Context, r *run) error {
	results, err := fanOut(ctx, e.cfg.Workers, sessions.GroupByPerson(r.valid), e.aggregator.AggregatePerson)
	if err != nil {
		return err
	}

	for _, res := range results {
		r.sessions = append(r.sessions, res.Sessions...)
		r.excluded = append(r.excluded, res.Excluded...)
	}
	r.report.Sessions = r.sessions

	r.period = e.cfg.Period
	if !r.in.Period.IsZero() {
		r.period = r.in.Period
	}
	if r.period.IsZero() && len(r.sessions) > 0 {
		first, last := r.sessions[0].Date, r.sessions[0].Date
		for _, s := range r.sessions {
			first = min(first, s.Date)
			last = max(last, s.Date)
		}
		r.period = attendance.Period{Start: first, End: last}
	}
	return nil
}

func (e *Engine) detectViolations(ctx context.Context, r *run) error {
	results, err := fanOut(ctx, e.cfg.Workers, violations.ByPerson(r.sessions), e.violations.DetectPerson)
	if err != nil {
		return err
	}

	var out []attendance.Violation
	for _, vs := range results {
		out = append(out, vs...)
	}
	violations.Sort(out)
	r.report.Violations = out
	return nil
}

// detectFraud runs as one sequential pass; device and overlap correlation
// needs every person at once
func (e *Engine) detectFraud(ctx context.Context, r *run) error {
	flags, err := e.fraud.Detect(ctx, r.valid, r.sessions)
	if err != nil {
		return err
	}
	r.report.RiskFlags = flags
	return nil
}

func (e *Engine) score(ctx context.Context, r *run) error {
	subjects := e.subjects(r)
	profiles, err := fanOut(ctx, e.cfg.Workers, subjects, func(sub risk.Subject) attendance.RiskProfile {
		return e.scorer.Score(r.period, sub)
	})
	if err != nil {
		return err
	}
	r.report.RiskProfiles = profiles
	return nil
}

// subjects is the union of roster and event persons ordered by ID. Roster
// details win; event persons take the organization of their earliest event.
func (e *Engine) subjects(r *run) []risk.Subject {
	dir := compliance.NewDirectory(r.roster, r.valid)
	persons := make(map[string]attendance.Person)
	for _, p := range r.roster {
		persons[p.ID] = p
	}

	ordered := make([]attendance.Event, len(r.valid))
	copy(ordered, r.valid)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })
	for _, ev := range ordered {
		p, ok := persons[ev.PersonID]
		if !ok {
			p = attendance.Person{ID: ev.PersonID}
		}
		if p.OrganizationID == "" {
			p.OrganizationID = ev.OrganizationID
		}
		persons[ev.PersonID] = p
	}

	sessionsBy := make(map[string][]attendance.Session)
	for _, s := range r.sessions {
		sessionsBy[s.PersonID] = append(sessionsBy[s.PersonID], s)
	}
	violationsBy := make(map[string][]attendance.Violation)
	for _, v := range r.report.Violations {
		violationsBy[v.PersonID] = append(violationsBy[v.PersonID], v)
	}
	flagged := fraud.CountByPerson(r.report.RiskFlags)

	ids := make([]string, 0, len(persons))
	for id := range persons {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	subjects := make([]risk.Subject, len(ids))
	for i, id := range ids {
		p := persons[id]
		p.Name = dir.PersonName(id)
		subjects[i] = risk.Subject{
			Person:            p,
			Sessions:          sessionsBy[id],
			Violations:        violationsBy[id],
			ManipulationFlags: flagged[id],
		}
	}
	return subjects
}

func (e *Engine) analyze(ctx context.Context, r *run) error {
	groups := violations.ByPerson(r.sessions)
	profiles, err := fanOut(ctx, e.cfg.Workers, groups, func(group []attendance.Session) attendance.BehaviorProfile {
		return e.analyzer.Analyze(group[0].PersonID, group)
	})
	if err != nil {
		return err
	}
	r.report.BehaviorProfiles = profiles
	return nil
}

func (e *Engine) rank(ctx context.Context, r *run) error {
	var excludedEvents []attendance.ExcludedRecord
	for _, x := range r.excluded {
		if x.Stage != attendance.StageRoster {
			excludedEvents = append(excludedEvents, x)
		}
	}

	rankings, err := e.ranker.Rank(ctx, compliance.Input{
		Events:     r.valid,
		Sessions:   r.sessions,
		Violations: r.report.Violations,
		Roster:     r.roster,
		Excluded:   excludedEvents,
	}, compliance.NewDirectory(r.roster, r.valid))
	if err != nil {
		return err
	}
	r.report.Rankings = rankings
	return nil
}

func (e *Engine) recordFindings(ctx context.Context, rep *Report) {
	excluded := make(map[string]int)
	for _, x := range rep.ExcludedRecords {
		excluded[string(x.Stage)]++
	}
	e.metrics.RecordEvents(ctx, rep.Summary.EventsValid, excluded)

	vs := make(map[string]int)
	for _, v := range rep.Violations {
		vs[string(v.Type)]++
	}
	flags := make(map[string]int)
	for _, f := range rep.RiskFlags {
		flags[string(f.Type)]++
	}
	e.metrics.RecordFindings(ctx, vs, flags)
	e.metrics.SetPersonsLastRun(rep.Summary.Persons)
}

// fanOut applies fn to every item on at most workers goroutines. Each call
// writes only its own slot, so results need no locking and keep item order.
func fanOut[T, R any](ctx context.Context, workers int, items []T, fn func(T) R) ([]R, error) {
	out := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = fn(item)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, ctx.Err()
}

func sortExcluded(xs []attendance.ExcludedRecord) {
	sort.SliceStable(xs, func(i, j int) bool {
		a, b := xs[i], xs[j]
		if stageOrder[a.Stage] != stageOrder[b.Stage] {
			return stageOrder[a.Stage] < stageOrder[b.Stage]
		}
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.Reason < b.Reason
	})
}

func countStage(xs []attendance.ExcludedRecord, stage attendance.ExclusionStage) int {
	n := 0
	for _, x := range xs {
		if x.Stage == stage {
			n++
		}
	}
	return n
}

// normalize replaces nil slices so empty results serialize as []
func normalize(rep *Report) {
	if rep.Sessions == nil {
		rep.Sessions = []attendance.Session{}
	}
	if rep.Violations == nil {
		rep.Violations = []attendance.Violation{}
	}
	if rep.RiskFlags == nil {
		rep.RiskFlags = []attendance.RiskFlag{}
	}
	if rep.RiskProfiles == nil {
		rep.RiskProfiles = []attendance.RiskProfile{}
	}
	if rep.BehaviorProfiles == nil {
		rep.BehaviorProfiles = []attendance.BehaviorProfile{}
	}
	if rep.Rankings == nil {
		rep.Rankings = []attendance.CompanyComplianceRanking{}
	}
	if rep.ExcludedRecords == nil {
		rep.ExcludedRecords = []attendance.ExcludedRecord{}
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
