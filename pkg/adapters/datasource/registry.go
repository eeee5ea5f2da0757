package datasource

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ekaya-inc/ekaya-query-engine/pkg/models"
)

// AdapterInfo describes a compiled-in connector type.
type AdapterInfo struct {
	Type        models.DataSourceType `json:"type"`
	DisplayName string                `json:"display_name"`
	Description string                `json:"description"`
	// Stub adapters accept configuration but fail on Connect.
	Stub bool `json:"stub,omitempty"`
}

// AdapterRegistration binds a connector type to its config parser and constructor.
type AdapterRegistration struct {
	Info AdapterInfo
	// FromMap builds the typed backend config from YAML or JSON input.
	FromMap func(config map[string]any) (models.BackendConfig, error)
	// Factory creates an unconnected connector.
	Factory func(cfg models.ConnectionConfig, deps Deps) (Connector, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[models.DataSourceType]AdapterRegistration)
)

// Register is called by each adapter's init function.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters ordered by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// IsRegistered reports whether a connector type is compiled in.
func IsRegistered(dsType models.DataSourceType) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}

func lookup(dsType models.DataSourceType) (AdapterRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[dsType]
	return reg, ok
}

// ParseBackendConfig builds the typed variant for dsType from a generic map.
func ParseBackendConfig(dsType models.DataSourceType, config map[string]any) (models.BackendConfig, error) {
	reg, ok := lookup(dsType)
	if !ok || reg.FromMap == nil {
		return nil, fmt.Errorf("unsupported data source type: %s (not compiled in)", dsType)
	}
	if config == nil {
		config = map[string]any{}
	}
	return reg.FromMap(config)
}

// ParseConnectionConfig assembles a ConnectionConfig from identity fields and
// a generic backend map, validating the result.
func ParseConnectionConfig(id, tenantID, typeName, name string, config map[string]any) (models.ConnectionConfig, error) {
	dsType, err := models.ParseDataSourceType(typeName)
	if err != nil {
		return models.ConnectionConfig{}, err
	}

	backend, err := ParseBackendConfig(dsType, config)
	if err != nil {
		return models.ConnectionConfig{}, fmt.Errorf("invalid %s config: %w", dsType, err)
	}

	cfg := models.ConnectionConfig{
		ID:       id,
		TenantID: tenantID,
		Type:     dsType,
		Name:     name,
		Status:   models.StatusInactive,
		Backend:  backend,
	}
	if cfg.Name == "" {
		cfg.Name = id
	}
	if err := cfg.Validate(); err != nil {
		return models.ConnectionConfig{}, err
	}
	return cfg, nil
}
