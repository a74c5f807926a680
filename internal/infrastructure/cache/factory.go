package cache

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/attendance-analytics-engine/internal/infrastructure/config"
)

// CacheManager owns the Redis client and the services built on it
type CacheManager struct {
	Reports     *ReportCache
	RateLimiter *RedisRateLimiter
	client      *redis.Client
	logger      *zap.Logger
}

// NewCacheManager connects to Redis and builds the report cache and the
// shared rate limiter from the server's rate limit settings
func NewCacheManager(cfg *config.RedisConfig, rl config.RateLimitConfig, logger *zap.Logger) (*CacheManager, error) {
	client, err := NewRedisClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return newCacheManager(client, cfg.ReportTTL, rl, logger), nil
}

func newCacheManager(client *redis.Client, ttl time.Duration, rl config.RateLimitConfig, logger *zap.Logger) *CacheManager {
	// the sliding window counts whole requests per second; burst tops it up
	limit := int(math.Ceil(rl.RequestsPerSecond)) + rl.BurstSize
	return &CacheManager{
		Reports:     NewReportCache(client, ttl, logger),
		RateLimiter: NewRedisRateLimiter(client, limit, time.Second, logger),
		client:      client,
		logger:      logger,
	}
}

// Close closes the Redis client
func (cm *CacheManager) Close() error {
	if err := cm.client.Close(); err != nil {
		return fmt.Errorf("redis client close failed: %w", err)
	}
	cm.logger.Info("cache manager closed successfully")
	return nil
}

// HealthCheck verifies that Redis answers
func (cm *CacheManager) HealthCheck(ctx context.Context) error {
	if err := cm.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
