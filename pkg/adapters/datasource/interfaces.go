package datasource

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// Connector is the capability every backend provides: connection lifecycle,
// execution, introspection, validation and health. Implementations are safe
// for concurrent use once Connect has returned.
type Connector interface {
	// Connect establishes the backend client. It is idempotent; failures are
	// reported as connection errors.
	Connect(ctx context.Context) error

	// TestConnection runs a trivial round trip. It never returns an error.
	TestConnection(ctx context.Context) bool

	// ExecuteQuery substitutes parameters, bounds rows and time, and runs a
	// single statement.
	ExecuteQuery(ctx context.Context, sqlQuery string, ec ExecutionContext) (*ExecutionResult, error)

	// GetSchema lists databases, tables and columns with normalized types.
	GetSchema(ctx context.Context) (*models.Schema, error)

	// ValidateQuery asks the backend whether sqlQuery is acceptable without running it.
	ValidateQuery(ctx context.Context, sqlQuery string) models.ValidationResult

	// Close releases the client. It is idempotent and never fails on cleanup errors.
	Close() error

	// GetHealth wraps TestConnection with connector diagnostics.
	GetHealth(ctx context.Context) models.HealthStatus

	// Type reports the backend type.
	Type() models.DataSourceType
}

// ExecutionContext carries per-call execution bounds.
type ExecutionContext struct {
	Parameters map[string]any
	// Timeout of zero means no connector-imposed deadline.
	Timeout time.Duration
	// MaxRows of zero means no row cap.
	MaxRows int
}

// QueryMetrics are the statistics a connector reports for one execution.
type QueryMetrics struct {
	ExecutionTime time.Duration
	RowsReturned  int
	// DataScanned in bytes, when the backend reports it.
	DataScanned int64
}

// ExecutionResult is a connector's raw answer before the service wraps it.
type ExecutionResult struct {
	Columns []models.Column
	Rows    []map[string]any
	Metrics QueryMetrics
}
