package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// InitTestConn spins up a disposable Postgres instance via testcontainers,
// applies schema.sql, and returns a Conn wired to it plus a teardown func.
// Cache and Polygon are left nil: store tests exercise the database only.
func InitTestConn(t *testing.T) (*Conn, func()) {
	t.Helper()
	ctx := context.Background()

	schemaPath := schemaFilePath(t)

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("valuationcore_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.WithInitScripts(schemaPath),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres test container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to resolve test container connection string: %v", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("unable to parse test database config: %v", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("unable to connect to test database: %v", err)
	}

	conn := &Conn{DB: pool}

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("warning: failed to terminate postgres test container: %v", err)
		}
	}
	return conn, cleanup
}

// schemaFilePath locates schema.sql relative to the repository root so
// WithInitScripts can be handed an absolute path regardless of which
// package's test binary is running.
func schemaFilePath(t *testing.T) string {
	t.Helper()
	candidates := []string{
		"schema.sql",
		"../schema.sql",
		"../../schema.sql",
		"../../../schema.sql",
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			abs, err := filepath.Abs(candidate)
			if err == nil {
				return abs
			}
		}
	}
	t.Fatalf("could not locate schema.sql from test working directory")
	return ""
}
