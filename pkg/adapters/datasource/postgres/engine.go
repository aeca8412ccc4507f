package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-chatbi/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// Dialect renders chart SQL for PostgreSQL.
type Dialect struct{}

func (Dialect) QuoteIdentifier(name string) string { return pgx.Identifier{name}.Sanitize() }
func (Dialect) Placeholder(n int) string           { return fmt.Sprintf("$%d", n) }
func (Dialect) TopClause(int) string               { return "" }
func (Dialect) LimitClause(limit int) string       { return fmt.Sprintf(" LIMIT %d", limit) }

// Engine runs chart queries against a PostgreSQL data source.
type Engine struct {
	cfg        *Config
	connMgr    *datasource.ConnectionManager
	dataSource string
	pool       *pgxpool.Pool // set only when the engine owns its pool
}

// NewEngine creates a PostgreSQL chart engine. With a connection manager the
// pool is looked up per query so TTL cleanup never strands the engine; with a
// nil manager the engine opens and owns a pool (tests).
func NewEngine(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, dataSource string) (*Engine, error) {
	e := &Engine{cfg: cfg, connMgr: connMgr, dataSource: dataSource}

	if connMgr == nil {
		pool, err := pgxpool.New(ctx, cfg.ConnectionString())
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		e.pool = pool
	}

	return e, nil
}

func (e *Engine) acquire(ctx context.Context) (*pgxpool.Pool, error) {
	if e.pool != nil {
		return e.pool, nil
	}

	connector, err := e.connMgr.GetOrCreateConnection(ctx, e.dataSource, func(ctx context.Context) (datasource.PoolConnector, error) {
		return datasource.OpenPostgresPool(ctx, e.cfg.ConnectionString(), e.connMgr.Config())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pooled connection: %w", err)
	}
	return datasource.GetPostgresPool(connector)
}

// TestConnection pings the server and verifies the connected database name.
func (e *Engine) TestConnection(ctx context.Context) error {
	pool, err := e.acquire(ctx)
	if err != nil {
		return err
	}

	var currentDB string
	if err := pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	if !strings.EqualFold(currentDB, e.cfg.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", e.cfg.Database, currentDB)
	}
	return nil
}

// QueryChart renders the chart statement and runs it.
func (e *Engine) QueryChart(ctx context.Context, q *models.ChartQuery) (*datasource.QueryExecutionResult, error) {
	stmt, err := datasource.BuildChartSQL(Dialect{}, q)
	if err != nil {
		return nil, err
	}

	pool, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute chart query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = datasource.ColumnInfo{Name: fd.Name, Type: typeName(fd.DataTypeOID)}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col.Name] = normalize(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &datasource.QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// Close releases an owned pool. Managed pools are closed by TTL.
func (e *Engine) Close() error {
	if e.pool != nil {
		e.pool.Close()
	}
	return nil
}

func normalize(v any) any {
	if n, ok := v.(pgtype.Numeric); ok {
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	}
	return datasource.NormalizeValue(v)
}

func typeName(oid uint32) string {
	switch oid {
	case pgtype.BoolOID:
		return "BOOL"
	case pgtype.Int2OID:
		return "INT2"
	case pgtype.Int4OID:
		return "INT4"
	case pgtype.Int8OID:
		return "INT8"
	case pgtype.Float4OID:
		return "FLOAT4"
	case pgtype.Float8OID:
		return "FLOAT8"
	case pgtype.NumericOID:
		return "NUMERIC"
	case pgtype.TextOID:
		return "TEXT"
	case pgtype.VarcharOID:
		return "VARCHAR"
	case pgtype.DateOID:
		return "DATE"
	case pgtype.TimestampOID:
		return "TIMESTAMP"
	case pgtype.TimestamptzOID:
		return "TIMESTAMPTZ"
	default:
		return "UNKNOWN"
	}
}

var _ datasource.ChartEngine = (*Engine)(nil)
