package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support

	"github.com/ekaya-inc/ekaya-chatbi/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-chatbi/pkg/models"
)

// Dialect renders chart SQL for SQL Server: bracket quoting, @pN binds and
// TOP instead of LIMIT.
type Dialect struct{}

// QuoteIdentifier mirrors QUOTENAME: brackets, with ] escaped as ]].
func (Dialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (Dialect) Placeholder(n int) string   { return fmt.Sprintf("@p%d", n) }
func (Dialect) TopClause(limit int) string { return fmt.Sprintf("TOP (%d) ", limit) }
func (Dialect) LimitClause(int) string     { return "" }

// Engine runs chart queries against a SQL Server data source.
type Engine struct {
	cfg        *Config
	connMgr    *datasource.ConnectionManager
	dataSource string
	db         *sql.DB // set only when the engine owns its handle
}

// NewEngine creates a SQL Server chart engine. A nil connection manager makes
// the engine open and own its *sql.DB.
func NewEngine(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, dataSource string) (*Engine, error) {
	e := &Engine{cfg: cfg, connMgr: connMgr, dataSource: dataSource}

	if connMgr == nil {
		db, err := sql.Open(cfg.Driver(), cfg.ConnectionString())
		if err != nil {
			return nil, fmt.Errorf("open %s connection: %w", cfg.Driver(), err)
		}
		e.db = db
	}
	return e, nil
}

func (e *Engine) acquire(ctx context.Context) (*sql.DB, error) {
	if e.db != nil {
		return e.db, nil
	}

	connector, err := e.connMgr.GetOrCreateConnection(ctx, e.dataSource, func(ctx context.Context) (datasource.PoolConnector, error) {
		conn, err := datasource.OpenMSSQLPool(e.cfg.Driver(), e.cfg.ConnectionString(), e.connMgr.Config())
		if err != nil {
			return nil, err
		}
		if err := conn.Ping(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("connection test failed: %w", err)
		}
		return conn, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pooled connection: %w", err)
	}
	return datasource.GetMSSQLDB(connector)
}

// TestConnection verifies the server is reachable and the database usable.
func (e *Engine) TestConnection(ctx context.Context) error {
	db, err := e.acquire(ctx)
	if err != nil {
		return err
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// QueryChart renders the chart statement and runs it.
func (e *Engine) QueryChart(ctx context.Context, q *models.ChartQuery) (*datasource.QueryExecutionResult, error) {
	stmt, err := datasource.BuildChartSQL(Dialect{}, q)
	if err != nil {
		return nil, err
	}

	db, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute chart query: %w", err)
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]datasource.ColumnInfo, len(columnTypes))
	for i, ct := range columnTypes {
		columns[i] = datasource.ColumnInfo{Name: ct.Name(), Type: mapType(ct.DatabaseTypeName())}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col.Name] = datasource.NormalizeValue(values[i])
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

// Close releases an owned handle. Managed handles are closed by TTL.
func (e *Engine) Close() error {
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// mapType maps SQL Server type names onto the names the postgres engine
// reports, so renderers see one vocabulary.
func mapType(t string) string {
	switch strings.ToUpper(t) {
	case "TINYINT", "SMALLINT":
		return "INT2"
	case "INT":
		return "INT4"
	case "BIGINT":
		return "INT8"
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return "NUMERIC"
	case "REAL":
		return "FLOAT4"
	case "FLOAT":
		return "FLOAT8"
	case "CHAR", "NCHAR", "VARCHAR", "NVARCHAR", "TEXT", "NTEXT":
		return "VARCHAR"
	case "DATE":
		return "DATE"
	case "DATETIME", "DATETIME2", "SMALLDATETIME":
		return "TIMESTAMP"
	case "DATETIMEOFFSET":
		return "TIMESTAMPTZ"
	case "BIT":
		return "BOOL"
	default:
		return "UNKNOWN"
	}
}

var _ datasource.ChartEngine = (*Engine)(nil)
