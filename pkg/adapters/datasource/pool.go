package datasource

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConnector abstracts a pooled connection across engine drivers.
type PoolConnector interface {
	Ping(ctx context.Context) error
	Close() error
	// GetType returns the engine type for logging and stats.
	GetType() string
}

// PostgresPoolWrapper adapts *pgxpool.Pool to PoolConnector.
type PostgresPoolWrapper struct {
	pool *pgxpool.Pool
}

func NewPostgresPoolWrapper(pool *pgxpool.Pool) *PostgresPoolWrapper {
	return &PostgresPoolWrapper{pool: pool}
}

func (w *PostgresPoolWrapper) Ping(ctx context.Context) error { return w.pool.Ping(ctx) }

func (w *PostgresPoolWrapper) Close() error {
	w.pool.Close()
	return nil
}

func (w *PostgresPoolWrapper) GetType() string { return "postgres" }

// MSSQLPoolWrapper adapts *sql.DB to PoolConnector.
type MSSQLPoolWrapper struct {
	db *sql.DB
}

func NewMSSQLPoolWrapper(db *sql.DB) *MSSQLPoolWrapper {
	return &MSSQLPoolWrapper{db: db}
}

func (w *MSSQLPoolWrapper) Ping(ctx context.Context) error { return w.db.PingContext(ctx) }

func (w *MSSQLPoolWrapper) Close() error { return w.db.Close() }

func (w *MSSQLPoolWrapper) GetType() string { return "mssql" }

// GetPostgresPool extracts the *pgxpool.Pool behind a connector.
func GetPostgresPool(connector PoolConnector) (*pgxpool.Pool, error) {
	wrapper, ok := connector.(*PostgresPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is %s, not a PostgreSQL pool", connector.GetType())
	}
	return wrapper.pool, nil
}

// GetMSSQLDB extracts the *sql.DB behind a connector.
func GetMSSQLDB(connector PoolConnector) (*sql.DB, error) {
	wrapper, ok := connector.(*MSSQLPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is %s, not an MSSQL pool", connector.GetType())
	}
	return wrapper.db, nil
}

// OpenPostgresPool parses connString and opens a pgx pool sized by the
// manager config.
func OpenPostgresPool(ctx context.Context, connString string, cfg ConnectionManagerConfig) (PoolConnector, error) {
	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.PoolMaxConns
	poolConfig.MinConns = cfg.PoolMinConns
	poolConfig.MaxConnIdleTime = cfg.TTL()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	return NewPostgresPoolWrapper(pool), nil
}

// OpenMSSQLPool opens a database/sql handle for the given driver and sizes
// it by the manager config.
func OpenMSSQLPool(driver, connString string, cfg ConnectionManagerConfig) (PoolConnector, error) {
	db, err := sql.Open(driver, connString)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", driver, err)
	}
	db.SetMaxOpenConns(int(cfg.PoolMaxConns))
	db.SetMaxIdleConns(int(cfg.PoolMinConns))
	db.SetConnMaxIdleTime(cfg.TTL())
	return NewMSSQLPoolWrapper(db), nil
}
