package cache

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// Counter keys live outside the query: namespace so pattern invalidation
// never touches them.
const (
	hitsKey   = "cache:stats:hits"
	missesKey = "cache:stats:misses"
	setsKey   = "cache:stats:sets"
)

const scanBatch = 500

// RedisOptions configures the Redis client.
type RedisOptions struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("redis host is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisStore keeps results as JSON strings with SETEX and counts hits,
// misses and sets with INCR so every engine instance shares the totals.
type RedisStore struct {
	client redis.UniversalClient
	logger *zap.Logger
	closed atomic.Bool
}

// NewRedisStore wraps a connected client. The store owns the client and
// closes it on Close.
func NewRedisStore(client redis.UniversalClient, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, logger: logger.Named("cache.redis")}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*models.QueryResult, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		s.incr(ctx, missesKey)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	result, err := decodeResult(data)
	if err != nil {
		return nil, fmt.Errorf("decode cached result %s: %w", key, err)
	}
	s.incr(ctx, hitsKey)
	return result, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, result *models.QueryResult, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if result == nil {
		return fmt.Errorf("cache set %s: nil result", key)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache set %s: encode result: %w", key, err)
	}

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if ttl > 0 {
			pipe.SetEx(ctx, key, data, ttl)
		} else {
			pipe.Set(ctx, key, data, 0)
		}
		pipe.Incr(ctx, setsKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// InvalidatePattern walks the keyspace with SCAN and deletes matches in batches.
func (s *RedisStore) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}

	removed := 0
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.client.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	iter := s.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return removed, fmt.Errorf("redis del %s: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return removed, fmt.Errorf("redis del %s: %w", pattern, err)
	}
	return removed, nil
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	if s.closed.Load() {
		return Stats{}, ErrClosed
	}
	stats := Stats{Backend: "redis"}

	counters, err := s.client.MGet(ctx, hitsKey, missesKey, setsKey).Result()
	if err != nil {
		return stats, fmt.Errorf("redis mget counters: %w", err)
	}
	stats.Hits = parseCounter(counters[0])
	stats.Misses = parseCounter(counters[1])
	stats.Sets = parseCounter(counters[2])

	iter := s.client.Scan(ctx, 0, KeyPrefix+":*", scanBatch).Iterator()
	for iter.Next(ctx) {
		stats.Entries++
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("redis scan entries: %w", err)
	}

	info, err := s.client.Info(ctx, "memory").Result()
	if err != nil {
		return stats, fmt.Errorf("redis info memory: %w", err)
	}
	stats.MemoryUsed = parseUsedMemory(info)
	return stats, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) bool {
	if s.closed.Load() {
		return false
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn("Redis health check failed", zap.Error(err))
		return false
	}
	return true
}

// Close closes the underlying client once.
func (s *RedisStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.client.Close()
}

// incr bumps a stats counter. Counter failures are logged, never returned.
func (s *RedisStore) incr(ctx context.Context, key string) {
	if err := s.client.Incr(ctx, key).Err(); err != nil {
		s.logger.Debug("Failed to update cache counter", zap.String("counter", key), zap.Error(err))
	}
}

func parseCounter(v any) int64 {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(str, 10, 64)
	return n
}

// parseUsedMemory extracts used_memory from an INFO memory reply.
func parseUsedMemory(info string) int64 {
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if v, ok := strings.CutPrefix(line, "used_memory:"); ok {
			n, _ := strconv.ParseInt(v, 10, 64)
			return n
		}
	}
	return 0
}

// decodeResult reads a cached result keeping integers as int64 and
// timestamps of temporal columns as time.Time, so a hit carries the same
// value types as the original execution.
func decodeResult(data []byte) (*models.QueryResult, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var result models.QueryResult
	if err := dec.Decode(&result); err != nil {
		return nil, err
	}

	temporal := make(map[string]bool)
	for _, c := range result.Columns {
		switch c.Type {
		case models.TypeTimestamp, models.TypeDatetime, models.TypeDate, models.TypeTime:
			temporal[c.Name] = true
		}
	}

	for _, row := range result.Rows {
		for k, v := range row {
			if temporal[k] {
				row[k] = restoreTime(v)
				continue
			}
			row[k] = restoreNumbers(v)
		}
	}
	return &result, nil
}

// restoreTime parses values encoded from time.Time. Strings that are not
// RFC 3339, such as a TIME column rendered as "15:04:05", are kept.
func restoreTime(v any) any {
	s, ok := v.(string)
	if !ok {
		return restoreNumbers(v)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return s
}

func restoreNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		for i, e := range x {
			x[i] = restoreNumbers(e)
		}
		return x
	case map[string]any:
		for k, e := range x {
			x[k] = restoreNumbers(e)
		}
		return x
	default:
		return v
	}
}

var _ Store = (*RedisStore)(nil)
