//go:build integration

// Package containers manages shared test containers for integration suites.
// Containers are started once per test binary and cleaned up by Ryuk.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Schema applied to every fresh container. Mirrors the production DDL the
// stores document in their package comments.
const schema = `
CREATE TABLE hosts (
    id         UUID PRIMARY KEY,
    name       TEXT NOT NULL,
    company    TEXT NOT NULL DEFAULT '',
    email      TEXT NOT NULL DEFAULT '',
    phone      TEXT NOT NULL DEFAULT '',
    site       TEXT NOT NULL,
    active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL,
    deleted_at TIMESTAMPTZ
);

CREATE TABLE visits (
    id                UUID PRIMARY KEY,
    session_token     TEXT NOT NULL UNIQUE,
    visitor_name      TEXT NOT NULL,
    visitor_company   TEXT NOT NULL DEFAULT '',
    visitor_phone     TEXT NOT NULL DEFAULT '',
    visitor_email     TEXT NOT NULL DEFAULT '',
    host_id           UUID NOT NULL REFERENCES hosts(id),
    purpose           TEXT NOT NULL DEFAULT '',
    location          TEXT NOT NULL,
    status            TEXT NOT NULL,
    expected_date     TIMESTAMPTZ,
    pre_registered_by UUID,
    created_at        TIMESTAMPTZ NOT NULL,
    check_in_at       TIMESTAMPTZ,
    check_out_at      TIMESTAMPTZ,
    approved_at       TIMESTAMPTZ,
    rejected_at       TIMESTAMPTZ,
    rejection_reason  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX visits_status_location_idx ON visits (status, location);
CREATE INDEX visits_host_status_idx ON visits (host_id, status);

CREATE TABLE check_events (
    id          BIGSERIAL PRIMARY KEY,
    visit_id    UUID NOT NULL REFERENCES visits(id),
    event_type  TEXT NOT NULL,
    actor_id    UUID,
    occurred_at TIMESTAMPTZ NOT NULL
);
`

// PostgresContainer wraps a testcontainers Postgres instance with an open
// database handle.
type PostgresContainer struct {
	Container testcontainers.Container
	DB        *sql.DB
}

var (
	pgOnce      sync.Once
	pgContainer *PostgresContainer
	pgErr       error
)

// GetPostgres returns the shared Postgres container, starting it on first
// use and applying the schema.
func GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	pgOnce.Do(func() {
		pgContainer, pgErr = startPostgres()
	})
	if pgErr != nil {
		t.Fatalf("failed to start postgres container: %v", pgErr)
	}
	return pgContainer
}

func startPostgres() (*PostgresContainer, error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("gatehouse_test"),
		tcpostgres.WithUsername("gatehouse"),
		tcpostgres.WithPassword("gatehouse"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("run postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("connection string: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresContainer{Container: container, DB: db}, nil
}

// TruncateTables clears the given tables between tests.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := p.DB.ExecContext(ctx,
		fmt.Sprintf("TRUNCATE TABLE %s CASCADE", strings.Join(tables, ", ")))
	return err
}
