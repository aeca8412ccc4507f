// Package testhelpers starts shared Docker-backed databases for integration
// tests. Tests using it are skipped with -short.
package testhelpers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresImage is the stock image the sales fixture is loaded into.
const PostgresImage = "postgres:16-alpine"

// SalesDB is a PostgreSQL container seeded with the sales.orders fixture.
type SalesDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
	Host      string
	Port      int
}

// DataSourceConfig returns the config map a postgres chart engine expects.
func (db *SalesDB) DataSourceConfig() map[string]any {
	return map[string]any{
		"host":     db.Host,
		"port":     db.Port,
		"user":     "chatbi",
		"password": "test_password",
		"database": "sales",
		"ssl_mode": "disable",
	}
}

var (
	sharedSalesDB     *SalesDB
	sharedSalesDBOnce sync.Once
	sharedSalesDBErr  error
)

// GetSalesDB returns a shared, seeded PostgreSQL container. The container is
// created once per test binary.
func GetSalesDB(t *testing.T) *SalesDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedSalesDBOnce.Do(func() {
		sharedSalesDB, sharedSalesDBErr = setupSalesDB()
	})

	if sharedSalesDBErr != nil {
		t.Fatalf("Failed to setup sales database: %v", sharedSalesDBErr)
	}

	return sharedSalesDB
}

func setupSalesDB() (*SalesDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "sales",
			"POSTGRES_USER":     "chatbi",
			"POSTGRES_PASSWORD": "test_password",
		},
		// The server logs readiness twice: once for the init pass, once for real.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mapped, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		return nil, fmt.Errorf("invalid mapped port %q: %w", mapped.Port(), err)
	}

	connStr := fmt.Sprintf("postgres://chatbi:test_password@%s:%d/sales?sslmode=disable", host, port)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("sales database never became reachable: %w", err)
	}

	if _, err := pool.Exec(ctx, salesFixture); err != nil {
		return nil, fmt.Errorf("failed to load sales fixture: %w", err)
	}

	return &SalesDB{
		Container: container,
		Pool:      pool,
		ConnStr:   connStr,
		Host:      host,
		Port:      port,
	}, nil
}

// salesFixture: 3 regions x 12 months of 2024, one order per region per day
// of the month number (January has 1 order per region, December 12).
const salesFixture = `
CREATE TABLE orders (
	id          serial PRIMARY KEY,
	order_date  date NOT NULL,
	order_year  int NOT NULL,
	order_month text NOT NULL,
	region      text NOT NULL,
	customer_id int NOT NULL,
	amount      numeric(12,2) NOT NULL
);

INSERT INTO orders (order_date, order_year, order_month, region, customer_id, amount)
SELECT d::date,
       2024,
       to_char(d, 'YYYY-MM'),
       r.region,
       (extract(day FROM d)::int % 5) + 1,
       10.00
FROM generate_series('2024-01-01'::date, '2024-12-31'::date, interval '1 day') AS d
CROSS JOIN (VALUES ('West'), ('East'), ('North')) AS r(region)
WHERE extract(day FROM d) <= extract(month FROM d);
`
