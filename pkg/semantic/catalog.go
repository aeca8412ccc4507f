// Package semantic loads the semantic models (data sources, entity sets and
// their entity types) that chart answers are resolved against.
package semantic

import (
	"context"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// Catalog looks up data sources and entity sets by name.
// Implementations must be safe for concurrent use.
type Catalog interface {
	// DataSource returns the named data source including its engine config.
	DataSource(ctx context.Context, name string) (*models.DataSource, error)

	// SelectEntitySet returns the entity set of a data source with its
	// entity type. Unknown names wrap apperrors.ErrNotFound.
	SelectEntitySet(ctx context.Context, dataSource, entitySet string) (*models.EntitySet, error)
}
