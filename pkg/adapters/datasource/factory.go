package datasource

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// EngineFactory creates chart engines from the registry.
type EngineFactory interface {
	// NewChartEngine creates the engine for a data source definition.
	NewChartEngine(ctx context.Context, ds *models.DataSource) (ChartEngine, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []DatasourceAdapterInfo
}

type registryFactory struct {
	connMgr *ConnectionManager
}

// NewEngineFactory returns a factory that uses the global registry.
func NewEngineFactory(connMgr *ConnectionManager) EngineFactory {
	return &registryFactory{connMgr: connMgr}
}

func (f *registryFactory) NewChartEngine(ctx context.Context, ds *models.DataSource) (ChartEngine, error) {
	factory := GetEngineFactory(ds.Type)
	if factory == nil {
		return nil, fmt.Errorf("unsupported data source type %q for %s (not compiled in)", ds.Type, ds.Name)
	}
	return factory(ctx, ds.Config, f.connMgr, ds.Name)
}

func (f *registryFactory) ListTypes() []DatasourceAdapterInfo {
	return RegisteredAdapters()
}

var _ EngineFactory = (*registryFactory)(nil)
