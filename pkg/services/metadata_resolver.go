package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// MetadataResolver resolves a data settings reference to its EntityType.
type MetadataResolver interface {
	// Resolve returns the EntityType of the referenced entity set. Every
	// failure wraps apperrors.ErrMetadataUnavailable.
	Resolve(ctx context.Context, settings models.DataSettings) (*models.EntityType, error)
}

type metadataResolver struct {
	core   DSCoreService
	logger *zap.Logger
}

// NewMetadataResolver creates a resolver over the data-access core.
func NewMetadataResolver(core DSCoreService, logger *zap.Logger) MetadataResolver {
	return &metadataResolver{
		core:   core,
		logger: logger.Named("metadata-resolver"),
	}
}

func (r *metadataResolver) Resolve(ctx context.Context, settings models.DataSettings) (*models.EntityType, error) {
	if settings.DataSource == "" || settings.EntitySet == "" {
		return nil, fmt.Errorf("%w: data source and entity set are required", apperrors.ErrMetadataUnavailable)
	}

	et, err := r.core.SelectEntitySet(ctx, settings.DataSource, settings.EntitySet)
	if err != nil {
		r.logger.Debug("Entity set lookup failed",
			zap.String("data_source", settings.DataSource),
			zap.String("entity_set", settings.EntitySet),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", apperrors.ErrMetadataUnavailable, err)
	}
	return et, nil
}
