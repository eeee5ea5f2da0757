package cache

import (
	"container/list"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// DefaultMaxEntries bounds a MemoryStore created without WithMaxEntries.
const DefaultMaxEntries = 10000

type memoryEntry struct {
	key       string
	result    *models.QueryResult
	size      int64
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is an in-process Store. Expired entries are dropped on read
// and swept on write; when full, the oldest entry is evicted first.
type MemoryStore struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // front is oldest
	maxEntries int
	now        func() time.Time
	logger     *zap.Logger
	closed     bool

	hits, misses, sets int64
	memoryUsed         int64
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithMaxEntries bounds the number of stored results. n <= 0 keeps the default.
func WithMaxEntries(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore(logger *zap.Logger, opts ...MemoryOption) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &MemoryStore{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		logger:     logger.Named("cache.memory"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*models.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	el, ok := s.items[key]
	if !ok {
		s.misses++
		return nil, nil
	}
	entry := el.Value.(*memoryEntry)
	if s.expired(entry, s.now()) {
		s.removeLocked(el)
		s.misses++
		return nil, nil
	}
	s.hits++
	return entry.result.Clone(), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, result *models.QueryResult, ttl time.Duration) error {
	if result == nil {
		return fmt.Errorf("cache set %s: nil result", key)
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache set %s: encode result: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	now := s.now()
	entry := &memoryEntry{
		key:    key,
		result: result.Clone(),
		size:   int64(len(key) + len(encoded)),
	}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}

	if el, ok := s.items[key]; ok {
		s.removeLocked(el)
	}
	s.sweepLocked(now)
	for s.order.Len() >= s.maxEntries {
		oldest := s.order.Front()
		s.logger.Debug("Evicting oldest cache entry",
			zap.String("key", oldest.Value.(*memoryEntry).key),
			zap.Int("max_entries", s.maxEntries))
		s.removeLocked(oldest)
	}

	s.items[key] = s.order.PushBack(entry)
	s.memoryUsed += entry.size
	s.sets++
	return nil
}

// InvalidatePattern uses path.Match glob syntax. Keys produced by
// GenerateKey never contain '/', so '*' spans segments as it does in Redis.
func (s *MemoryStore) InvalidatePattern(_ context.Context, pattern string) (int, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, fmt.Errorf("invalid cache pattern %q: %w", pattern, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	removed := 0
	for key, el := range s.items {
		if ok, _ := path.Match(pattern, key); ok {
			s.removeLocked(el)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Stats{}, ErrClosed
	}

	now := s.now()
	var live int64
	for _, el := range s.items {
		if !s.expired(el.Value.(*memoryEntry), now) {
			live++
		}
	}
	return Stats{
		Hits:       s.hits,
		Misses:     s.misses,
		Sets:       s.sets,
		Entries:    live,
		MemoryUsed: s.memoryUsed,
		Backend:    "memory",
	}, nil
}

func (s *MemoryStore) HealthCheck(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Close drops all entries. It is idempotent.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.items = make(map[string]*list.Element)
	s.order.Init()
	s.memoryUsed = 0
	return nil
}

func (s *MemoryStore) expired(e *memoryEntry, now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		if s.expired(el.Value.(*memoryEntry), now) {
			s.removeLocked(el)
		}
		el = next
	}
}

func (s *MemoryStore) removeLocked(el *list.Element) {
	entry := s.order.Remove(el).(*memoryEntry)
	delete(s.items, entry.key)
	s.memoryUsed -= entry.size
}

var _ Store = (*MemoryStore)(nil)
