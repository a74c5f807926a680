package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds the pipeline metrics for analytics runs
type Registry struct {
	meter metric.Meter

	// Run metrics
	RunDuration   metric.Float64Histogram
	RunCounter    metric.Int64Counter
	StageDuration metric.Float64Histogram

	// Record metrics
	EventsProcessed metric.Int64Counter
	EventsExcluded  metric.Int64Counter

	// Finding metrics
	ViolationCounter metric.Int64Counter
	FlagCounter      metric.Int64Counter
	PersonsLastRun   metric.Int64ObservableGauge

	// API metrics
	APIRequestDuration metric.Float64Histogram
	APIRequestCounter  metric.Int64Counter

	mu             sync.RWMutex
	personsLastRun int64
}

// NewRegistry creates the registry on the global meter provider
func NewRegistry(meterName string) (*Registry, error) {
	return NewRegistryWithMeter(otel.Meter(meterName))
}

// NewRegistryWithMeter creates the registry on an explicit meter
func NewRegistryWithMeter(meter metric.Meter) (*Registry, error) {
	r := &Registry{meter: meter}

	if err := r.initRunMetrics(); err != nil {
		return nil, err
	}
	if err := r.initFindingMetrics(); err != nil {
		return nil, err
	}
	if err := r.initAPIMetrics(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) initRunMetrics() error {
	var err error

	r.RunDuration, err = r.meter.Float64Histogram(
		"attendance.run.duration",
		metric.WithDescription("Duration of a full analytics run in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000, 10000),
	)
	if err != nil {
		return err
	}

	r.RunCounter, err = r.meter.Int64Counter(
		"attendance.run.total",
		metric.WithDescription("Total number of analytics runs by outcome"),
	)
	if err != nil {
		return err
	}

	r.StageDuration, err = r.meter.Float64Histogram(
		"attendance.stage.duration",
		metric.WithDescription("Duration of a single pipeline stage in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000),
	)
	if err != nil {
		return err
	}

	r.EventsProcessed, err = r.meter.Int64Counter(
		"attendance.events.processed_total",
		metric.WithDescription("Total number of events accepted into analysis"),
	)
	if err != nil {
		return err
	}

	r.EventsExcluded, err = r.meter.Int64Counter(
		"attendance.events.excluded_total",
		metric.WithDescription("Total number of records excluded, by stage"),
	)
	return err
}

func (r *Registry) initFindingMetrics() error {
	var err error

	r.ViolationCounter, err = r.meter.Int64Counter(
		"attendance.violations.total",
		metric.WithDescription("Total number of violations emitted, by type"),
	)
	if err != nil {
		return err
	}

	r.FlagCounter, err = r.meter.Int64Counter(
		"attendance.flags.total",
		metric.WithDescription("Total number of manipulation flags emitted, by type"),
	)
	if err != nil {
		return err
	}

	r.PersonsLastRun, err = r.meter.Int64ObservableGauge(
		"attendance.run.persons",
		metric.WithDescription("Number of persons profiled by the most recent run"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.personsLastRun)
			return nil
		}),
	)
	return err
}

func (r *Registry) initAPIMetrics() error {
	var err error

	r.APIRequestDuration, err = r.meter.Float64Histogram(
		"attendance.api.request_duration",
		metric.WithDescription("API request duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000),
	)
	if err != nil {
		return err
	}

	r.APIRequestCounter, err = r.meter.Int64Counter(
		"attendance.api.request_total",
		metric.WithDescription("Total number of API requests"),
	)
	return err
}

// SetPersonsLastRun sets the persons gauge
func (r *Registry) SetPersonsLastRun(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.personsLastRun = int64(n)
}

// PersonsLastRunValue returns the value the gauge reports
func (r *Registry) PersonsLastRunValue() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.personsLastRun
}

// RecordRun records the outcome and duration of one run
func (r *Registry) RecordRun(ctx context.Context, durationMS float64, success bool) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	r.RunDuration.Record(ctx, durationMS, attrs)
	r.RunCounter.Add(ctx, 1, attrs)
}

// RecordStage records the duration of one pipeline stage
func (r *Registry) RecordStage(ctx context.Context, stage string, durationMS float64) {
	r.StageDuration.Record(ctx, durationMS, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordEvents records accepted events and exclusions grouped by stage
func (r *Registry) RecordEvents(ctx context.Context, accepted int, excludedByStage map[string]int) {
	r.EventsProcessed.Add(ctx, int64(accepted))
	for stage, n := range excludedByStage {
		r.EventsExcluded.Add(ctx, int64(n), metric.WithAttributes(attribute.String("stage", stage)))
	}
}

// RecordFindings records violation and flag counts keyed by type
func (r *Registry) RecordFindings(ctx context.Context, violations, flags map[string]int) {
	for t, n := range violations {
		r.ViolationCounter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("type", t)))
	}
	for t, n := range flags {
		r.FlagCounter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("type", t)))
	}
}

// RecordAPIRequest records API request metrics
func (r *Registry) RecordAPIRequest(ctx context.Context, duration float64, method, path string, statusCode int) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status_code", statusCode),
	}

	r.APIRequestDuration.Record(ctx, duration, metric.WithAttributes(attrs...))
	r.APIRequestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
