package semantic

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/crypto"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// FileCatalog serves semantic models read from *.yaml files, one data source
// per file. ${VAR} references are expanded from the environment before
// parsing so credentials stay out of the files. Config values sealed with
// crypto.Sealer are opened at load time.
type FileCatalog struct {
	dir    string
	sealer *crypto.Sealer
	logger *zap.Logger

	mu          sync.RWMutex
	dataSources map[string]*models.DataSource
}

// FileCatalogOption configures a FileCatalog.
type FileCatalogOption func(*FileCatalog)

// WithSealer opens "enc:" config values with s.
func WithSealer(s *crypto.Sealer) FileCatalogOption {
	return func(c *FileCatalog) { c.sealer = s }
}

// NewFileCatalog loads every model file under dir.
func NewFileCatalog(dir string, logger *zap.Logger, opts ...FileCatalogOption) (*FileCatalog, error) {
	c := &FileCatalog{
		dir:    dir,
		logger: logger.Named("semantic-catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the model directory. On error the previous models stay.
func (c *FileCatalog) Reload() error {
	paths, err := filepath.Glob(filepath.Join(c.dir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("list semantic models: %w", err)
	}
	sort.Strings(paths)

	loaded := make(map[string]*models.DataSource, len(paths))
	for _, path := range paths {
		ds, err := loadDataSource(path, c.sealer)
		if err != nil {
			return err
		}
		if _, dup := loaded[ds.Name]; dup {
			return fmt.Errorf("%s: data source %q defined twice", path, ds.Name)
		}
		loaded[ds.Name] = ds
	}

	c.mu.Lock()
	c.dataSources = loaded
	c.mu.Unlock()

	c.logger.Info("Loaded semantic models",
		zap.String("dir", c.dir),
		zap.Int("data_sources", len(loaded)),
	)
	return nil
}

func loadDataSource(path string, sealer *crypto.Sealer) (*models.DataSource, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var ds models.DataSource
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &ds); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if ds.Name == "" {
		return nil, fmt.Errorf("%s: data source name is required", path)
	}
	if ds.Type == "" {
		return nil, fmt.Errorf("%s: data source %q has no type", path, ds.Name)
	}

	if crypto.HasSealed(ds.Config) {
		if sealer == nil {
			return nil, fmt.Errorf("%s: data source %q has sealed config but no credentials key is set", path, ds.Name)
		}
		if err := sealer.OpenConfig(ds.Config); err != nil {
			return nil, fmt.Errorf("%s: data source %q: %w", path, ds.Name, err)
		}
	}

	for name, es := range ds.EntitySets {
		if es == nil || es.EntityType == nil {
			return nil, fmt.Errorf("%s: entity set %q has no entity_type", path, name)
		}
		if es.Name == "" {
			es.Name = name
		}
		if es.EntityType.Name == "" {
			es.EntityType.Name = name
		}
	}
	return &ds, nil
}

// DataSource implements Catalog.
func (c *FileCatalog) DataSource(ctx context.Context, name string) (*models.DataSource, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ds, ok := c.dataSources[name]
	if !ok {
		return nil, fmt.Errorf("data source %q: %w", name, apperrors.ErrNotFound)
	}
	return ds, nil
}

// SelectEntitySet implements Catalog.
func (c *FileCatalog) SelectEntitySet(ctx context.Context, dataSource, entitySet string) (*models.EntitySet, error) {
	ds, err := c.DataSource(ctx, dataSource)
	if err != nil {
		return nil, err
	}

	es, ok := ds.EntitySets[entitySet]
	if !ok {
		return nil, fmt.Errorf("entity set %q in data source %q: %w", entitySet, dataSource, apperrors.ErrNotFound)
	}
	return es, nil
}

// DataSourceNames lists the loaded data sources, sorted.
func (c *FileCatalog) DataSourceNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.dataSources))
	for name := range c.dataSources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ Catalog = (*FileCatalog)(nil)
