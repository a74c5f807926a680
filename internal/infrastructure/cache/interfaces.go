package cache

import (
	"context"
	"time"

	"github.com/davidleathers/attendance-analytics-engine/internal/service/analytics"
)

// ReportStore caches finished reports by run fingerprint
type ReportStore interface {
	// Get returns ErrCacheKeyNotFound when no report is stored
	Get(ctx context.Context, fingerprint string) (*analytics.Report, error)

	// Set stores the report under its own fingerprint
	Set(ctx context.Context, report *analytics.Report) error
}

// RateLimiter decides whether one more request fits the window for key
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// Key prefixes for consistent cache key naming
const (
	ReportPrefix    = "attendance:report:"
	RateLimitPrefix = "attendance:ratelimit:"
)

// Common TTL values
const (
	DefaultReportTTL = 15 * time.Minute
	RateLimitWindow  = time.Second
)

// ErrCacheKeyNotFound is returned when a cache key doesn't exist
type ErrCacheKeyNotFound struct {
	Key string
}

func (e ErrCacheKeyNotFound) Error() string {
	return "cache key not found: " + e.Key
}
