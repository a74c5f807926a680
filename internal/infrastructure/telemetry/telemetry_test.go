package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{" DEBUG ", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestSetupLogger(t *testing.T) {
	logger, err := SetupLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	cli, err := SetupCLILogger("debug")
	require.NoError(t, err)
	assert.True(t, cli.Core().Enabled(zapcore.DebugLevel))
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	t.Run("without span", func(t *testing.T) {
		assert.Same(t, base, WithContext(context.Background(), base))
	})

	t.Run("with span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
		defer func() { _ = tp.Shutdown(context.Background()) }()

		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		WithContext(ctx, base).Info("traced")
		entries := logs.FilterMessage("traced").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
		assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
		assert.Equal(t, true, fields["sampled"])
	})
}

func TestSpanHelpers(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tracer := tp.Tracer("test")
	ctx := context.Background()

	_, stage := StartStageSpan(ctx, tracer, "sessions", AttrEvents.Int(4))
	stage.End()

	_, db := StartDatabaseSpan(ctx, tracer, "select", "attendance_events")
	WithSpanError(db, errors.New("connection reset"))
	db.End()

	_, httpSpan := StartHTTPSpan(ctx, tracer, "GET", "/health")
	WithSpanError(httpSpan, nil)
	httpSpan.End()

	spans := rec.Ended()
	require.Len(t, spans, 3)

	assert.Equal(t, "sessions", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), AttrStage.String("sessions"))
	assert.Contains(t, spans[0].Attributes(), AttrEvents.Int(4))

	assert.Equal(t, "db.select attendance_events", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "connection reset", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)

	assert.Equal(t, "GET /health", spans[2].Name())
	assert.Equal(t, codes.Unset, spans[2].Status().Code)
}

func TestInitializeOpenTelemetry_Disabled(t *testing.T) {
	p, err := InitializeOpenTelemetry(context.Background(), &Config{
		Service: Service{Name: "attendance-analytics"},
		Enabled: false,
	})
	require.NoError(t, err)
	require.NotNil(t, p.TracerProvider)
	require.NotNil(t, p.MeterProvider)
	assert.Nil(t, p.Resource)
	assert.NoError(t, p.Shutdown(context.Background()))

	_, span := Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestProviderShutdown_ReverseOrderJoinsErrors(t *testing.T) {
	var order []string
	step := func(name string, err error) func(context.Context) error {
		return func(context.Context) error {
			order = append(order, name)
			return err
		}
	}
	errMeter := errors.New("meter flush failed")
	p := &Provider{shutdown: []func(context.Context) error{
		step("tracer", nil),
		step("meter", errMeter),
	}}

	err := p.Shutdown(context.Background())
	assert.ErrorIs(t, err, errMeter)
	assert.Equal(t, []string{"meter", "tracer"}, order)
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(2).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), samplerFor(0).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.25).Description(), samplerFor(0.25).Description())
}

func TestNewResource(t *testing.T) {
	res, err := newResource(&Config{
		Service: Service{Name: "attendance-analytics", Version: "1.2.3", Environment: "test"},
		Engine: Engine{
			Timezone:        "Asia/Jakarta",
			Workers:         8,
			GraceCutoff:     "09:15",
			WorkingWeekdays: []string{"mon", "tue", "wed", "thu", "fri", "sat"},
		},
	})
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "attendance-analytics", attrs["service.name"])
	assert.Equal(t, "1.2.3", attrs["service.version"])
	assert.Equal(t, "attendance", attrs["service.namespace"])
	assert.Equal(t, "Asia/Jakarta", attrs[string(AttrEngineTimezone)])
	assert.Equal(t, "8", attrs[string(AttrEngineWorkers)])
	assert.Equal(t, "09:15", attrs[string(AttrEngineGraceCutoff)])
	assert.Equal(t, "mon,tue,wed,thu,fri,sat", attrs[string(AttrEngineWorkdays)])
}

func TestNewResource_OmitsUnsetEngineAttributes(t *testing.T) {
	res, err := newResource(&Config{Service: Service{Name: "attendance-analytics"}})
	require.NoError(t, err)

	_, ok := res.Set().Value(AttrEngineTimezone)
	assert.False(t, ok)
	_, ok = res.Set().Value(AttrEngineWorkers)
	assert.False(t, ok)
}
