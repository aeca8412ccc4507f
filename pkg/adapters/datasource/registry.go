package datasource

import (
	"context"
	"sort"
	"sync"
)

// DatasourceAdapterInfo describes a compiled-in engine type.
type DatasourceAdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "mssql"
	DisplayName string `json:"display_name"` // "PostgreSQL"
	Description string `json:"description"`
}

// EngineFactoryFunc builds a ChartEngine for one data source from its
// engine-specific config map.
type EngineFactoryFunc func(ctx context.Context, config map[string]any, connMgr *ConnectionManager, dataSource string) (ChartEngine, error)

// DatasourceAdapterRegistration pairs adapter info with its engine factory.
type DatasourceAdapterRegistration struct {
	Info          DatasourceAdapterInfo
	EngineFactory EngineFactoryFunc
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]DatasourceAdapterRegistration)
)

// Register is called by each adapter's init() function.
func Register(reg DatasourceAdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []DatasourceAdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasourceAdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetEngineFactory returns the engine factory for a type, or nil.
func GetEngineFactory(dsType string) EngineFactoryFunc {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[dsType]; ok {
		return reg.EngineFactory
	}
	return nil
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(dsType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[dsType]
	return ok
}
