package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sampleResult() *models.QueryResult {
	return &models.QueryResult{
		Columns:  []models.Column{{Name: "n", Type: models.TypeInteger}},
		Rows:     []map[string]any{{"n": int64(3)}},
		Metadata: models.QueryMetadata{ExecutionTime: 12, RowCount: 1},
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zaptest.NewLogger(t))

	got, err := s.Get(ctx, "query:t:ds:missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Set(ctx, "query:t:ds:k", sampleResult(), time.Minute))

	got, err = s.Get(ctx, "query:t:ds:k")
	require.NoError(t, err)
	assert.Equal(t, sampleResult(), got)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.Entries)
	assert.Positive(t, stats.MemoryUsed)
	assert.Equal(t, "memory", stats.Backend)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zaptest.NewLogger(t))

	orig := sampleResult()
	require.NoError(t, s.Set(ctx, "k", orig, 0))
	orig.Rows[0]["n"] = int64(99)

	first, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Rows[0]["n"])

	first.Rows[0]["n"] = int64(42)
	first.Metadata.Cached = true

	second, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(3), second.Rows[0]["n"])
	assert.False(t, second.Metadata.Cached)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(zaptest.NewLogger(t), WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "k", sampleResult(), 10*time.Second))
	require.NoError(t, s.Set(ctx, "forever", sampleResult(), 0))

	clock.Advance(9 * time.Second)
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotNil(t, got)

	clock.Advance(time.Second)
	got, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	clock.Advance(24 * time.Hour)
	got, err = s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.NotNil(t, got)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries)
}

func TestMemoryStore_ExpiredEntriesExcludedFromStats(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s := NewMemoryStore(zaptest.NewLogger(t), WithClock(clock.Now))

	require.NoError(t, s.Set(ctx, "a", sampleResult(), time.Second))
	require.NoError(t, s.Set(ctx, "b", sampleResult(), time.Hour))
	clock.Advance(2 * time.Second)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries)

	// The next write sweeps the expired entry.
	require.NoError(t, s.Set(ctx, "c", sampleResult(), time.Hour))
	assert.Len(t, s.items, 2)
}

func TestMemoryStore_EvictsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zaptest.NewLogger(t), WithMaxEntries(2))

	require.NoError(t, s.Set(ctx, "a", sampleResult(), time.Hour))
	require.NoError(t, s.Set(ctx, "b", sampleResult(), time.Hour))
	require.NoError(t, s.Set(ctx, "c", sampleResult(), time.Hour))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)
	for _, k := range []string{"b", "c"} {
		got, err := s.Get(ctx, k)
		require.NoError(t, err)
		assert.NotNil(t, got, k)
	}

	// Rewriting a key moves it to the back of the eviction order.
	require.NoError(t, s.Set(ctx, "b", sampleResult(), time.Hour))
	require.NoError(t, s.Set(ctx, "d", sampleResult(), time.Hour))
	got, err = s.Get(ctx, "c")
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = s.Get(ctx, "b")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestMemoryStore_InvalidatePattern(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zaptest.NewLogger(t))

	keys := []string{
		GenerateKey("t1", "ds1", "SELECT 1", nil),
		GenerateKey("t1", "ds1", "SELECT 2", nil),
		GenerateKey("t1", "ds2", "SELECT 1", nil),
		GenerateKey("t2", "ds1", "SELECT 1", nil),
	}
	for _, k := range keys {
		require.NoError(t, s.Set(ctx, k, sampleResult(), time.Hour))
	}

	n, err := s.InvalidatePattern(ctx, DataSourcePattern("t1", "ds1"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Get(ctx, keys[2])
	require.NoError(t, err)
	assert.NotNil(t, got)
	got, err = s.Get(ctx, keys[3])
	require.NoError(t, err)
	assert.NotNil(t, got)

	n, err = s.InvalidatePattern(ctx, TenantPattern("t2"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.InvalidatePattern(ctx, TenantPattern("nobody"))
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.InvalidatePattern(ctx, "query:[")
	assert.Error(t, err)
}

func TestMemoryStore_Close(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zaptest.NewLogger(t))
	require.NoError(t, s.Set(ctx, "k", sampleResult(), time.Hour))
	assert.True(t, s.HealthCheck(ctx))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.False(t, s.HealthCheck(ctx))

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(ctx, "k", sampleResult(), time.Hour), ErrClosed)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(zaptest.NewLogger(t), WithMaxEntries(16))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := GenerateKey("t", "ds", "SELECT $n", map[string]any{"n": (i + j) % 32})
				_ = s.Set(ctx, key, sampleResult(), time.Minute)
				_, _ = s.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, stats.Entries, int64(16))
	assert.Equal(t, int64(800), stats.Sets)
}
