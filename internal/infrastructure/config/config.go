package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
	apperrors "github.com/davidleathers/attendance-analytics-engine/internal/domain/errors"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/analytics"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/behavior"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/fraud"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/risk"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/sessions"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/violations"
)

// EnvPrefix prefixes every environment override, e.g. AAE_ENGINE_GRACE_HOUR.
const EnvPrefix = "AAE_"

// DefaultConfigPath is read when no explicit path is given
const DefaultConfigPath = "configs/config.yaml"

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	Engine    EngineConfig    `koanf:"engine"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// EngineConfig holds the tunables of the analytics pipeline
type EngineConfig struct {
	GraceHour    int `koanf:"grace_hour" validate:"min=0,max=23"`
	GraceMinute  int `koanf:"grace_minute" validate:"min=0,max=59"`
	EndOfDayHour int `koanf:"end_of_day_hour" validate:"min=0,max=23"`

	WorkingWeekdays []string `koanf:"working_weekdays" validate:"min=1,dive,weekday"`
	Holidays        []string `koanf:"holidays" validate:"dive,datetime=2006-01-02"`
	Timezone        string   `koanf:"timezone" validate:"required,timezone"`

	LateCountThreshold int `koanf:"late_count_threshold" validate:"min=1"`
	UnusualHourStart   int `koanf:"unusual_hour_start" validate:"min=0,max=23"`
	UnusualHourEnd     int `koanf:"unusual_hour_end" validate:"min=0,max=23,gtefield=UnusualHourStart"`

	DeviceShareThreshold  int           `koanf:"device_share_threshold" validate:"min=2"`
	RapidSessionThreshold time.Duration `koanf:"rapid_session_threshold" validate:"gt=0"`
	DuplicateClusterSize  int           `koanf:"duplicate_cluster_size" validate:"min=2"`
	DuplicateClusterMin   int           `koanf:"duplicate_cluster_min" validate:"min=1"`

	TrendWindowDays  int           `koanf:"trend_window_days" validate:"min=1"`
	TrendTolerance   int           `koanf:"trend_tolerance" validate:"min=0,max=100"`
	LastMinuteWindow time.Duration `koanf:"last_minute_window" validate:"gt=0"`

	Workers          int          `koanf:"workers" validate:"min=1,max=256"`
	EvaluationPeriod PeriodConfig `koanf:"evaluation_period"`
}

type PeriodConfig struct {
	Start string `koanf:"start" validate:"omitempty,datetime=2006-01-02"`
	End   string `koanf:"end" validate:"omitempty,datetime=2006-01-02"`
}

// IsZero reports whether neither bound is set
func (p PeriodConfig) IsZero() bool {
	return p.Start == "" && p.End == ""
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes"`
	// TrustedProxies may set X-Forwarded-For; empty means use the socket address
	TrustedProxies []string `koanf:"trusted_proxies" validate:"dive,cidr|ip"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled           bool    `koanf:"enabled"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	BurstSize         int     `koanf:"burst_size"`
}

type DatabaseConfig struct {
	Enabled         bool          `koanf:"enabled"`
	URL             string        `koanf:"url" validate:"required_if=Enabled true"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	QueryTimeout    time.Duration `koanf:"query_timeout"`
}

type RedisConfig struct {
	Enabled      bool          `koanf:"enabled"`
	URL          string        `koanf:"url" validate:"required_if=Enabled true"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	PoolSize     int           `koanf:"pool_size"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	ReportTTL    time.Duration `koanf:"report_ttl"`
}

type TelemetryConfig struct {
	Enabled       bool          `koanf:"enabled"`
	OTLPEndpoint  string        `koanf:"otlp_endpoint"`
	SamplingRate  float64       `koanf:"sampling_rate" validate:"min=0,max=1"`
	ExportTimeout  time.Duration `koanf:"export_timeout"`
	BatchTimeout   time.Duration `koanf:"batch_timeout"`
	MetricInterval time.Duration `koanf:"metric_interval"`
}

// OpenTelemetry maps the telemetry section onto exporter settings and tags
// the resource with the engine's calendar and worker settings
func (c *Config) OpenTelemetry(serviceName string) *telemetry.Config {
	return &telemetry.Config{
		Service: telemetry.Service{
			Name:        serviceName,
			Version:     c.Version,
			Environment: c.Environment,
		},
		Engine: telemetry.Engine{
			Timezone:        c.Engine.Timezone,
			Workers:         c.Engine.Workers,
			GraceCutoff:     fmt.Sprintf("%02d:%02d", c.Engine.GraceHour, c.Engine.GraceMinute),
			WorkingWeekdays: c.Engine.WorkingWeekdays,
		},
		Enabled:        c.Telemetry.Enabled,
		OTLPEndpoint:   c.Telemetry.OTLPEndpoint,
		SamplingRate:   c.Telemetry.SamplingRate,
		ExportTimeout:  c.Telemetry.ExportTimeout,
		BatchTimeout:   c.Telemetry.BatchTimeout,
		MetricInterval: c.Telemetry.MetricInterval,
	}
}

// Default returns the configuration used before any file or env override
func Default() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Engine:      DefaultEngine(),
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  45 * time.Second,
			MaxBodyBytes:    32 << 20,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 5,
				BurstSize:         10,
			},
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        1,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    15 * time.Second,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			ReportTTL:    15 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint:   "localhost:4317",
			SamplingRate:   1.0,
			ExportTimeout:  30 * time.Second,
			BatchTimeout:   5 * time.Second,
			MetricInterval: 10 * time.Second,
		},
	}
}

// DefaultEngine returns the engine defaults: 09:00 grace cutoff, 17:00 end
// of day, Monday-Friday working week.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		GraceHour:             9,
		GraceMinute:           0,
		EndOfDayHour:          17,
		WorkingWeekdays:       []string{"mon", "tue", "wed", "thu", "fri"},
		Timezone:              "UTC",
		LateCountThreshold:    3,
		UnusualHourStart:      6,
		UnusualHourEnd:        22,
		DeviceShareThreshold:  2,
		RapidSessionThreshold: time.Minute,
		DuplicateClusterSize:  3,
		DuplicateClusterMin:   3,
		TrendWindowDays:       7,
		TrendTolerance:        10,
		LastMinuteWindow:      5 * time.Minute,
		Workers:               4,
	}
}

// Load reads defaults, then the YAML file at path (optional), then AAE_* env vars
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// The default path is optional; an explicit one is not.
	if path == "" {
		if _, err := os.Stat(DefaultConfigPath); err == nil {
			path = DefaultConfigPath
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("checking config file: %w", err)
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = envKey(strings.TrimPrefix(key, EnvPrefix))
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// sections lists top-level keys whose names contain no underscore, so the
// first "_" of an env var separates section from field.
var sections = []string{"engine", "server", "database", "redis", "telemetry"}

// envKey maps ENGINE_GRACE_HOUR to engine.grace_hour and
// SERVER_RATE_LIMIT_BURST_SIZE to server.rate_limit.burst_size.
func envKey(s string) string {
	s = strings.ToLower(s)
	for _, section := range sections {
		if strings.HasPrefix(s, section+"_") {
			rest := strings.TrimPrefix(s, section+"_")
			for _, nested := range []string{"rate_limit", "evaluation_period"} {
				if strings.HasPrefix(rest, nested+"_") {
					return section + "." + nested + "." + strings.TrimPrefix(rest, nested+"_")
				}
			}
			return section + "." + rest
		}
	}
	return s
}

// listKeys are read from the environment as comma-separated values
var listKeys = map[string]bool{
	"engine.working_weekdays": true,
	"engine.holidays":         true,
	"server.trusted_proxies":  true,
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		_, err := attendance.ParseWeekday(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(fmt.Sprintf("register weekday validation: %v", err))
	}
	return v
}

// Validate checks every section's constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return c.Engine.Validate()
}

// Validate checks the engine section on its own; callers that build an
// EngineConfig by hand (tests, the batch CLI) use it directly.
func (e EngineConfig) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("invalid engine configuration: %w", err)
	}
	if !e.EvaluationPeriod.IsZero() {
		if _, err := attendance.NewPeriod(e.EvaluationPeriod.Start, e.EvaluationPeriod.End); err != nil {
			return fmt.Errorf("invalid engine configuration: %w", err)
		}
	}
	return nil
}

// Resolve validates the engine section and converts it into the pipeline
// configuration. Failures are INVALID_CONFIG errors.
func (e EngineConfig) Resolve() (analytics.Config, error) {
	if err := e.Validate(); err != nil {
		return analytics.Config{}, apperrors.NewInvalidConfigError(err)
	}

	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return analytics.Config{}, apperrors.NewInvalidConfigError(err)
	}

	weekdays := make([]time.Weekday, 0, len(e.WorkingWeekdays))
	for _, name := range e.WorkingWeekdays {
		d, err := attendance.ParseWeekday(name)
		if err != nil {
			return analytics.Config{}, apperrors.NewInvalidConfigError(err)
		}
		weekdays = append(weekdays, d)
	}

	var period attendance.Period
	if !e.EvaluationPeriod.IsZero() {
		period, err = attendance.NewPeriod(e.EvaluationPeriod.Start, e.EvaluationPeriod.End)
		if err != nil {
			return analytics.Config{}, apperrors.NewInvalidConfigError(err)
		}
	}

	beh := behavior.DefaultConfig()
	beh.GraceHour = e.GraceHour
	beh.GraceMinute = e.GraceMinute
	beh.LastMinuteWindow = e.LastMinuteWindow
	beh.TrendWindowDays = e.TrendWindowDays
	beh.TrendTolerance = e.TrendTolerance

	return analytics.Config{
		Sessions: sessions.Config{
			GraceHour:    e.GraceHour,
			GraceMinute:  e.GraceMinute,
			EndOfDayHour: e.EndOfDayHour,
			Location:     loc,
		},
		Violations: violations.Config{
			LateCountThreshold: e.LateCountThreshold,
			UnusualHourStart:   e.UnusualHourStart,
			UnusualHourEnd:     e.UnusualHourEnd,
		},
		Fraud: fraud.Config{
			DeviceShareThreshold:  e.DeviceShareThreshold,
			RapidSessionThreshold: e.RapidSessionThreshold,
			DuplicateOccurrences:  e.DuplicateClusterSize,
			DuplicateClusters:     e.DuplicateClusterMin,
		},
		Risk:     risk.Config{Calendar: attendance.NewCalendar(weekdays, e.Holidays)},
		Behavior: beh,
		Period:   period,
		Workers:  e.Workers,
	}, nil
}
