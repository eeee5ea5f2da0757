package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/logging"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/metrics"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/retry"
)

const (
	DefaultMaxConnectionsPerTenant = 10
	DefaultPoolMaxConns            = 10
	DefaultPoolMinConns            = 1
	DefaultConnectTimeout          = 10 * time.Second
	DefaultPingTimeout             = 5 * time.Second
)

// ConnectionManagerConfig holds limits for the connection manager.
type ConnectionManagerConfig struct {
	// MaxConnectionsPerTenant caps the number of pools one tenant may hold.
	MaxConnectionsPerTenant int
	// PoolMaxConns caps connections inside each pool.
	PoolMaxConns int
	PoolMinConns int
	// IdleSeconds closes idle connections inside a pool.
	IdleSeconds    int
	ConnectTimeout time.Duration
	// PingRetry controls the health check of reused pools; nil uses retry.DefaultConfig.
	PingRetry *retry.Config
}

// PoolFactory opens a new pool. It receives the manager's pool settings.
type PoolFactory func(ctx context.Context, settings PoolSettings) (PoolConnector, error)

// ConnectionManager owns backend pools for all tenants, keyed
// "{tenantID}:{dataSourceID}". Pools are reference counted so a data source
// that is re-registered can share its pool with the connector it replaces.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*managedConnection
	cfg         ConnectionManagerConfig
	closed      bool
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

type managedConnection struct {
	key          string
	tenantID     string
	dataSourceID string
	fingerprint  string
	pool         PoolConnector
	refs         int
	createdAt    time.Time
	lastUsed     time.Time
}

// NewConnectionManager creates a manager. m may be nil.
func NewConnectionManager(cfg ConnectionManagerConfig, logger *zap.Logger, m *metrics.Metrics) *ConnectionManager {
	if cfg.MaxConnectionsPerTenant <= 0 {
		cfg.MaxConnectionsPerTenant = DefaultMaxConnectionsPerTenant
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}
	if cfg.PoolMinConns <= 0 {
		cfg.PoolMinConns = DefaultPoolMinConns
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ConnectionManager{
		connections: make(map[string]*managedConnection),
		cfg:         cfg,
		logger:      logger.Named("connections"),
		metrics:     m,
	}
}

// PoolSettings returns the settings passed to pool factories.
func (m *ConnectionManager) PoolSettings() PoolSettings {
	return PoolSettings{
		MaxConns:        m.cfg.PoolMaxConns,
		MinConns:        m.cfg.PoolMinConns,
		MaxConnIdleTime: m.cfg.IdleSeconds,
	}
}

// ConnectTimeout bounds pool creation and the first ping.
func (m *ConnectionManager) ConnectTimeout() time.Duration {
	return m.cfg.ConnectTimeout
}

func poolKey(tenantID, dataSourceID string) string {
	return tenantID + ":" + dataSourceID
}

// Lease is a reference to a managed pool. Release must be called exactly
// once; later calls are no-ops.
type Lease struct {
	m    *ConnectionManager
	conn *managedConnection
	once sync.Once
}

// Pool returns the leased pool.
func (l *Lease) Pool() PoolConnector {
	return l.conn.pool
}

// Release drops the reference and closes the pool when it was the last one.
func (l *Lease) Release() {
	l.once.Do(func() { l.m.release(l.conn) })
}

// Acquire returns a lease on the pool for (tenantID, dataSourceID). An
// existing pool opened with the same fingerprint is health checked with a
// retried ping and reused; otherwise factory opens a new one. The
// fingerprint should change whenever connection settings change.
func (m *ConnectionManager) Acquire(
	ctx context.Context,
	tenantID, dataSourceID, fingerprint string,
	factory PoolFactory,
) (*Lease, error) {
	key := poolKey(tenantID, dataSourceID)

	m.mu.RLock()
	existing, exists := m.connections[key]
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return nil, fmt.Errorf("connection manager is closed")
	}

	if exists && existing.fingerprint == fingerprint {
		if lease, ok := m.reuse(ctx, existing); ok {
			return lease, nil
		}
	}

	return m.create(ctx, key, tenantID, dataSourceID, fingerprint, factory)
}

// reuse pings an existing pool and takes a reference when it is healthy.
// An unhealthy pool is detached from the map; current holders keep it
// until they release.
func (m *ConnectionManager) reuse(ctx context.Context, conn *managedConnection) (*Lease, bool) {
	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()

	err := retry.Do(pingCtx, m.cfg.PingRetry, func() error {
		return conn.pool.Ping(pingCtx)
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.logger.Warn("connection unhealthy, recreating",
			zap.String("key", conn.key),
			logging.ErrorField(err),
		)
		m.detachLocked(conn)
		return nil, false
	}

	if current, ok := m.connections[conn.key]; !ok || current != conn {
		return nil, false
	}
	conn.refs++
	conn.lastUsed = time.Now()
	return &Lease{m: m, conn: conn}, true
}

func (m *ConnectionManager) create(
	ctx context.Context,
	key, tenantID, dataSourceID, fingerprint string,
	factory PoolFactory,
) (*Lease, error) {
	m.mu.Lock()
	if current, ok := m.connections[key]; ok && current.fingerprint == fingerprint {
		// Another goroutine created it first.
		current.refs++
		current.lastUsed = time.Now()
		m.mu.Unlock()
		return &Lease{m: m, conn: current}, nil
	}

	_, replacing := m.connections[key]
	if count := m.countForTenantLocked(tenantID); !replacing && count >= m.cfg.MaxConnectionsPerTenant {
		m.mu.Unlock()
		m.logger.Warn("tenant reached max connections limit",
			zap.String("tenant_id", tenantID),
			zap.Int("current", count),
			zap.Int("max", m.cfg.MaxConnectionsPerTenant),
		)
		return nil, fmt.Errorf("tenant %s: %w (%d)", tenantID, apperrors.ErrConnectionLimitReached, m.cfg.MaxConnectionsPerTenant)
	}
	m.mu.Unlock()

	createCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	pool, err := factory(createCtx, m.PoolSettings())
	if err != nil {
		return nil, fmt.Errorf("open pool for %s: %w", key, err)
	}

	if err := pool.Ping(createCtx); err != nil {
		_ = pool.Close()
		m.logger.Error("failed to reach data source",
			zap.String("key", key),
			logging.ErrorField(err),
		)
		return nil, fmt.Errorf("ping %s: %w", key, err)
	}

	conn := &managedConnection{
		key:          key,
		tenantID:     tenantID,
		dataSourceID: dataSourceID,
		fingerprint:  fingerprint,
		pool:         pool,
		refs:         1,
		createdAt:    time.Now(),
		lastUsed:     time.Now(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = pool.Close()
		return nil, fmt.Errorf("connection manager is closed")
	}
	if old, ok := m.connections[key]; ok {
		m.detachLocked(old)
	}
	m.connections[key] = conn
	total := len(m.connections)
	m.mu.Unlock()

	m.metrics.SetOpenPools(total)
	m.logger.Info("created connection pool",
		zap.String("key", key),
		zap.String("driver", pool.GetType()),
		zap.Int("total_pools", total),
	)
	return &Lease{m: m, conn: conn}, nil
}

// detachLocked removes conn from the map. The pool is closed now if nobody
// holds it, or by the last Release otherwise. Caller holds m.mu.
func (m *ConnectionManager) detachLocked(conn *managedConnection) {
	if current, ok := m.connections[conn.key]; ok && current == conn {
		delete(m.connections, conn.key)
	}
	if conn.refs <= 0 {
		m.closePool(conn)
	}
}

func (m *ConnectionManager) release(conn *managedConnection) {
	m.mu.Lock()
	conn.refs--
	if conn.refs > 0 {
		m.mu.Unlock()
		return
	}
	if current, ok := m.connections[conn.key]; ok && current == conn {
		delete(m.connections, conn.key)
	}
	total := len(m.connections)
	m.mu.Unlock()

	m.closePool(conn)
	m.metrics.SetOpenPools(total)
}

func (m *ConnectionManager) closePool(conn *managedConnection) {
	if conn.pool == nil {
		return
	}
	if err := conn.pool.Close(); err != nil {
		m.logger.Warn("error closing pool",
			zap.String("key", conn.key),
			logging.ErrorField(err),
		)
		return
	}
	m.logger.Debug("closed connection pool", zap.String("key", conn.key))
}

func (m *ConnectionManager) countForTenantLocked(tenantID string) int {
	count := 0
	for _, c := range m.connections {
		if c.tenantID == tenantID {
			count++
		}
	}
	return count
}

// Close closes every pool. Leases obtained earlier become no-ops on Release.
// Idempotent.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conns := m.connections
	m.connections = make(map[string]*managedConnection)
	m.mu.Unlock()

	for _, c := range conns {
		c.refs = 1 << 30
		m.closePool(c)
	}
	m.metrics.SetOpenPools(0)
	m.logger.Info("connection manager closed", zap.Int("pools", len(conns)))
	return nil
}

// ConnectionStats describes the manager state.
type ConnectionStats struct {
	TotalPools              int            `json:"total_pools"`
	MaxConnectionsPerTenant int            `json:"max_connections_per_tenant"`
	PoolMaxConns            int            `json:"pool_max_conns"`
	PoolsByTenant           map[string]int `json:"pools_by_tenant"`
	Pools                   []PoolStats    `json:"pools"`
}

// PoolStats describes one managed pool.
type PoolStats struct {
	TenantID     string         `json:"tenant_id"`
	DataSourceID string         `json:"data_source_id"`
	Driver       string         `json:"driver"`
	References   int            `json:"references"`
	IdleSeconds  int            `json:"idle_seconds"`
	Details      map[string]any `json:"details,omitempty"`
}

// GetStats returns a snapshot of all pools ordered by key.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalPools:              len(m.connections),
		MaxConnectionsPerTenant: m.cfg.MaxConnectionsPerTenant,
		PoolMaxConns:            m.cfg.PoolMaxConns,
		PoolsByTenant:           make(map[string]int),
		Pools:                   make([]PoolStats, 0, len(m.connections)),
	}

	keys := make([]string, 0, len(m.connections))
	for k := range m.connections {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		c := m.connections[k]
		stats.PoolsByTenant[c.tenantID]++
		stats.Pools = append(stats.Pools, PoolStats{
			TenantID:     c.tenantID,
			DataSourceID: c.dataSourceID,
			Driver:       c.pool.GetType(),
			References:   c.refs,
			IdleSeconds:  int(now.Sub(c.lastUsed).Seconds()),
			Details:      c.pool.Stats(),
		})
	}
	return stats
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}
