package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/attendance-analytics-engine/internal/domain/attendance"
	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/config"
	"github.com/davidleathers/attendance-analytics-engine/internal/service/analytics"
)

func setupTestRedis(t *testing.T) (*CacheManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := &config.RedisConfig{
		URL:          mr.Addr(),
		PoolSize:     5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		ReportTTL:    time.Minute,
	}
	rl := config.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, BurstSize: 1}

	cm, err := NewCacheManager(cfg, rl, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cm.Close() })
	return cm, mr
}

func TestNewRedisClient(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		_, err := NewRedisClient(&config.RedisConfig{URL: "localhost:6379"}, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewRedisClient(nil, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "redis config is required")
	})

	t.Run("connection failure", func(t *testing.T) {
		cfg := &config.RedisConfig{URL: "localhost:1", DialTimeout: 100 * time.Millisecond}
		_, err := NewRedisClient(cfg, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "redis connection failed")
	})
}

func TestReportCache_RoundTrip(t *testing.T) {
	cm, mr := setupTestRedis(t)
	ctx := context.Background()

	rep := &analytics.Report{
		Fingerprint: "3f1c",
		Period:      attendance.Period{Start: "2024-03-01", End: "2024-03-31"},
		Summary:     analytics.Summary{EventsReceived: 4, EventsValid: 3},
		RiskProfiles: []attendance.RiskProfile{
			{PersonID: "p-1", RiskScore: 23, RiskLevel: attendance.RiskLow, Flags: []string{}},
		},
	}
	require.NoError(t, cm.Reports.Set(ctx, rep))
	assert.True(t, mr.Exists(ReportPrefix+"3f1c"))
	assert.Equal(t, time.Minute, mr.TTL(ReportPrefix+"3f1c"))

	got, err := cm.Reports.Get(ctx, "3f1c")
	require.NoError(t, err)
	assert.Equal(t, rep.Period, got.Period)
	assert.Equal(t, rep.Summary, got.Summary)
	assert.Equal(t, rep.RiskProfiles, got.RiskProfiles)
}

func TestReportCache_Miss(t *testing.T) {
	cm, mr := setupTestRedis(t)
	ctx := context.Background()

	_, err := cm.Reports.Get(ctx, "absent")
	var notFound ErrCacheKeyNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, ReportPrefix+"absent", notFound.Key)

	require.NoError(t, cm.Reports.Set(ctx, &analytics.Report{Fingerprint: "ttl"}))
	mr.FastForward(2 * time.Minute)
	_, err = cm.Reports.Get(ctx, "ttl")
	assert.ErrorAs(t, err, &notFound)
}

func TestReportCache_RejectsMissingFingerprint(t *testing.T) {
	cm, _ := setupTestRedis(t)
	assert.Error(t, cm.Reports.Set(context.Background(), &analytics.Report{}))
	assert.Error(t, cm.Reports.Set(context.Background(), nil))
}

func TestReportCache_CorruptEntry(t *testing.T) {
	cm, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(ReportPrefix+"bad", "{not json"))

	_, err := cm.Reports.Get(context.Background(), "bad")
	assert.ErrorContains(t, err, "json unmarshal failed")
}

func TestRedisRateLimiter(t *testing.T) {
	cm, _ := setupTestRedis(t)
	ctx := context.Background()

	// 1 rps + burst 1
	for i := 0; i < 2; i++ {
		ok, err := cm.RateLimiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := cm.RateLimiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	// other keys have their own window
	ok, err = cm.RateLimiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, cm.RateLimiter.Reset(ctx, "10.0.0.1"))
	ok, err = cm.RateLimiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheManager_HealthCheck(t *testing.T) {
	cm, mr := setupTestRedis(t)
	assert.NoError(t, cm.HealthCheck(context.Background()))

	mr.Close()
	assert.Error(t, cm.HealthCheck(context.Background()))
}
