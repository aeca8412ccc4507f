package services

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/logging"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/semantic"
)

// DSCoreService is the data-access core shared by every chart invocation.
// It is safe for concurrent use.
type DSCoreService interface {
	// SelectEntitySet resolves the entity type of an entity set.
	SelectEntitySet(ctx context.Context, dataSource, entitySet string) (*models.EntityType, error)

	// QueryChart runs one chart query on the engine of q.DataSource.
	QueryChart(ctx context.Context, q *models.ChartQuery) (*datasource.QueryExecutionResult, error)

	// TestConnection checks the engine of a data source.
	TestConnection(ctx context.Context, dataSource string) error

	// Close releases every engine.
	Close() error
}

// dsCoreService implements DSCoreService.
type dsCoreService struct {
	catalog semantic.Catalog
	factory datasource.EngineFactory
	logger  *zap.Logger

	mu      sync.Mutex
	engines map[string]datasource.ChartEngine // key: data source name
}

// NewDSCoreService creates the data-access core. Engines are created lazily
// on first use and cached per data source.
func NewDSCoreService(catalog semantic.Catalog, factory datasource.EngineFactory, logger *zap.Logger) DSCoreService {
	return &dsCoreService{
		catalog: catalog,
		factory: factory,
		logger:  logger.Named("ds-core"),
		engines: make(map[string]datasource.ChartEngine),
	}
}

func (s *dsCoreService) SelectEntitySet(ctx context.Context, dataSource, entitySet string) (*models.EntityType, error) {
	es, err := s.catalog.SelectEntitySet(ctx, dataSource, entitySet)
	if err != nil {
		return nil, err
	}
	if es.EntityType == nil {
		return nil, fmt.Errorf("entity set %q in data source %q has no entity type", entitySet, dataSource)
	}
	return es.EntityType, nil
}

func (s *dsCoreService) QueryChart(ctx context.Context, q *models.ChartQuery) (*datasource.QueryExecutionResult, error) {
	engine, err := s.engine(ctx, q.DataSource)
	if err != nil {
		return nil, err
	}
	return engine.QueryChart(ctx, q)
}

func (s *dsCoreService) TestConnection(ctx context.Context, dataSource string) error {
	engine, err := s.engine(ctx, dataSource)
	if err != nil {
		return err
	}
	return engine.TestConnection(ctx)
}

// engine returns the cached engine for a data source, creating it on first
// use. Creation happens under the lock so a data source never gets two
// engines.
func (s *dsCoreService) engine(ctx context.Context, name string) (datasource.ChartEngine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if engine, ok := s.engines[name]; ok {
		return engine, nil
	}

	ds, err := s.catalog.DataSource(ctx, name)
	if err != nil {
		return nil, err
	}
	engine, err := s.factory.NewChartEngine(ctx, ds)
	if err != nil {
		s.logger.Error("Failed to create chart engine",
			zap.String("data_source", name),
			zap.String("type", ds.Type),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("create %s engine for %q: %w", ds.Type, name, err)
	}

	s.engines[name] = engine
	s.logger.Info("Created chart engine",
		zap.String("data_source", name),
		zap.String("type", ds.Type),
	)
	return engine, nil
}

func (s *dsCoreService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for name, engine := range s.engines {
		if err := engine.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close engine %q: %w", name, err)
		}
	}
	s.engines = make(map[string]datasource.ChartEngine)
	return firstErr
}

var _ DSCoreService = (*dsCoreService)(nil)
