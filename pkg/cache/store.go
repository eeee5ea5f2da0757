// Package cache stores query results under fingerprint keys with a TTL.
// Two backends are provided: an in-process MemoryStore and a Redis-backed
// RedisStore. Both hand out copies, so callers may mutate what they get.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache store is closed")

// Store is the cache contract used by the query service.
type Store interface {
	// Get returns nil, nil on a miss or an expired entry.
	Get(ctx context.Context, key string) (*models.QueryResult, error)

	// Set stores a copy of result. A ttl <= 0 stores without expiry.
	Set(ctx context.Context, key string, result *models.QueryResult, ttl time.Duration) error

	// InvalidatePattern deletes every key matching a glob pattern and
	// returns how many were removed.
	InvalidatePattern(ctx context.Context, pattern string) (int, error)

	Stats(ctx context.Context) (Stats, error)

	HealthCheck(ctx context.Context) bool

	Close() error
}

// Stats are cumulative counters plus current size.
type Stats struct {
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
	Sets       int64  `json:"sets"`
	Entries    int64  `json:"entries"`
	MemoryUsed int64  `json:"memoryUsed"`
	Backend    string `json:"backend"`
}

// HitRate is hits over lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func fmtValue(v any) string {
	return fmt.Sprintf("%T:%v", v, v)
}
