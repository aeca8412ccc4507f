package semantic

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/crypto"
)

func TestFileCatalog_LoadsTestdata(t *testing.T) {
	t.Setenv("SALES_DB_HOST", "db.internal")
	t.Setenv("SALES_DB_PASSWORD", "s3cret")

	catalog, err := NewFileCatalog("testdata", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"sales"}, catalog.DataSourceNames())

	ds, err := catalog.DataSource(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, "postgres", ds.Type)
	assert.Equal(t, "db.internal", ds.Config["host"])
	assert.Equal(t, "s3cret", ds.Config["password"])
	assert.Equal(t, 5432, ds.Config["port"])

	es, err := catalog.SelectEntitySet(context.Background(), "sales", "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", es.Name)
	assert.Equal(t, "orders", es.EntityType.Name)
	assert.Equal(t, "public.orders", es.EntityType.Table)
	assert.Equal(t, []string{"order_date", "order_period", "region"}, es.EntityType.DimensionNames())
	assert.Equal(t, []string{"revenue", "order_count"}, es.EntityType.MeasureNames())
	assert.Equal(t, []string{"target_region"}, es.EntityType.VariableNames())
	assert.True(t, es.EntityType.FindDimension("order_date").IsTime())
}

func TestFileCatalog_NotFound(t *testing.T) {
	catalog, err := NewFileCatalog("testdata", zap.NewNop())
	require.NoError(t, err)

	_, err = catalog.SelectEntitySet(context.Background(), "finance", "orders")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Contains(t, err.Error(), `data source "finance"`)

	_, err = catalog.SelectEntitySet(context.Background(), "sales", "invoices")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Contains(t, err.Error(), `entity set "invoices"`)
}

func TestFileCatalog_InvalidModels(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "missing name",
			files:   map[string]string{"a.yaml": "type: postgres\n"},
			wantErr: "data source name is required",
		},
		{
			name:    "missing type",
			files:   map[string]string{"a.yaml": "name: sales\n"},
			wantErr: `data source "sales" has no type`,
		},
		{
			name:    "entity set without type",
			files:   map[string]string{"a.yaml": "name: sales\ntype: postgres\nentity_sets:\n  orders:\n    caption: Orders\n"},
			wantErr: `entity set "orders" has no entity_type`,
		},
		{
			name: "duplicate data source",
			files: map[string]string{
				"a.yaml": "name: sales\ntype: postgres\n",
				"b.yaml": "name: sales\ntype: mssql\n",
			},
			wantErr: `data source "sales" defined twice`,
		},
		{
			name:    "malformed yaml",
			files:   map[string]string{"a.yaml": "name: [sales\n"},
			wantErr: "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for name, content := range tt.files {
				require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
			}

			_, err := NewFileCatalog(dir, zap.NewNop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFileCatalog_ReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sales.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: sales\ntype: postgres\n"), 0o600))

	catalog, err := NewFileCatalog(dir, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("name: [broken\n"), 0o600))
	require.Error(t, catalog.Reload())

	_, err = catalog.DataSource(context.Background(), "sales")
	assert.NoError(t, err)
}

func TestFileCatalog_OpensSealedConfig(t *testing.T) {
	sealer, err := crypto.NewSealer("catalog-test-key")
	require.NoError(t, err)
	sealed, err := sealer.Seal("s3cret")
	require.NoError(t, err)

	dir := t.TempDir()
	model := "name: sales\ntype: postgres\nconfig:\n  host: db\n  password: \"" + sealed + "\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sales.yaml"), []byte(model), 0o600))

	t.Run("with key", func(t *testing.T) {
		catalog, err := NewFileCatalog(dir, zap.NewNop(), WithSealer(sealer))
		require.NoError(t, err)

		ds, err := catalog.DataSource(context.Background(), "sales")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", ds.Config["password"])
		assert.Equal(t, "db", ds.Config["host"])
	})

	t.Run("without key", func(t *testing.T) {
		_, err := NewFileCatalog(dir, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no credentials key")
	})

	t.Run("wrong key", func(t *testing.T) {
		other, err := crypto.NewSealer("some-other-key")
		require.NoError(t, err)

		_, err = NewFileCatalog(dir, zap.NewNop(), WithSealer(other))
		assert.ErrorIs(t, err, crypto.ErrUnsealFailed)
	})
}
