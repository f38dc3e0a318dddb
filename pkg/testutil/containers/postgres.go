//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostgresContainer is a running Postgres with an open *sql.DB.
type PostgresContainer struct {
	DSN string
	DB  *sql.DB
}

// NewPostgresContainer starts Postgres and applies schema (if non-empty).
func NewPostgresContainer(t *testing.T, schema string) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("dealflow"),
		tcpostgres.WithUsername("dealflow"),
		tcpostgres.WithPassword("dealflow"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if schema != "" {
		if _, err := db.ExecContext(ctx, schema); err != nil {
			t.Fatalf("failed to apply schema: %v", err)
		}
	}
	return &PostgresContainer{DSN: dsn, DB: db}
}
