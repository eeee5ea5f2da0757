package datasource

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/metrics"
	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// Deps are the shared services a connector is constructed with.
type Deps struct {
	ConnMgr *ConnectionManager
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// ConnectorFactory creates connectors from the adapter registry.
type ConnectorFactory interface {
	// NewConnector builds an unconnected connector for cfg.Type.
	NewConnector(cfg models.ConnectionConfig) (Connector, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []AdapterInfo
}

type registryFactory struct {
	deps Deps
}

// NewConnectorFactory returns a factory backed by the global adapter registry.
func NewConnectorFactory(deps Deps) ConnectorFactory {
	return &registryFactory{deps: deps.withDefaults()}
}

func (f *registryFactory) NewConnector(cfg models.ConnectionConfig) (Connector, error) {
	reg, ok := lookup(cfg.Type)
	if !ok || reg.Factory == nil {
		return nil, fmt.Errorf("unsupported data source type: %s (not compiled in)", cfg.Type)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deps := f.deps
	deps.Logger = deps.Logger.With(
		zap.String("datasource_id", cfg.ID),
		zap.String("tenant_id", cfg.TenantID),
		zap.String("source_type", string(cfg.Type)),
	)
	return reg.Factory(cfg, deps)
}

func (f *registryFactory) ListTypes() []AdapterInfo {
	return RegisteredAdapters()
}

var _ ConnectorFactory = (*registryFactory)(nil)

// BackendAs returns cfg.Backend as *T or a descriptive error. Adapters use it
// in their factories to recover the typed variant.
func BackendAs[T any](cfg models.ConnectionConfig) (*T, error) {
	b, ok := any(cfg.Backend).(*T)
	if !ok || b == nil {
		var zero T
		return nil, fmt.Errorf("data source %s: expected backend config %T, got %T", cfg.ID, &zero, cfg.Backend)
	}
	return b, nil
}
