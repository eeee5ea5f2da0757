package datasource

import "context"

// PoolConnector abstracts a backend connection pool so the ConnectionManager
// can own pools of any driver.
type PoolConnector interface {
	Ping(ctx context.Context) error
	Close() error
	// GetType returns the driver name for logging and stats.
	GetType() string
	// Stats returns pool diagnostics for health details.
	Stats() map[string]any
}
