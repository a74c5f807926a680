package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/attendance-analytics-engine/internal/service/analytics"
)

// ReportCache stores serialized reports in Redis. A report is a pure
// function of its fingerprint, so entries never need invalidation; the TTL
// only bounds memory.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewReportCache creates a report cache; a non-positive ttl uses DefaultReportTTL
func NewReportCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ReportCache {
	if ttl <= 0 {
		ttl = DefaultReportTTL
	}
	return &ReportCache{client: client, ttl: ttl, logger: logger.Named("report_cache")}
}

// Get retrieves a report by fingerprint
func (c *ReportCache) Get(ctx context.Context, fingerprint string) (*analytics.Report, error) {
	key := ReportPrefix + fingerprint
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheKeyNotFound{Key: key}
		}
		c.logger.Error("redis get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var rep analytics.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		c.logger.Error("json unmarshal failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}
	return &rep, nil
}

// Set stores the report under its fingerprint
func (c *ReportCache) Set(ctx context.Context, rep *analytics.Report) error {
	if rep == nil || rep.Fingerprint == "" {
		return fmt.Errorf("report has no fingerprint")
	}

	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}

	key := ReportPrefix + rep.Fingerprint
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error("redis set failed",
			zap.String("key", key),
			zap.Duration("ttl", c.ttl),
			zap.Error(err))
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}
