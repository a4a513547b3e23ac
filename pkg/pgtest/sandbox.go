package pgtest

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"pubhouse/internal/store"
)

// Sandbox is one test's private schema with the full pubhouse migration set
// applied. Pool connections carry the schema in their search_path.
type Sandbox struct {
	Pool   *pgxpool.Pool
	Schema string
	DSN    string
	Close  func()
}

// NewSandbox creates a unique schema, migrates it, and opens a pool into it.
// The schema is dropped on test cleanup.
func NewSandbox(t *testing.T) *Sandbox {
	t.Helper()
	if !booted {
		t.Fatalf("pgtest not booted. Call pgtest.BootOnce(...) in TestMain first.")
	}

	admin, err := sql.Open("pgx", connString)
	if err != nil {
		t.Fatalf("open admin: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := fmt.Sprintf("t_%x", time.Now().UnixNano())
	if _, err := admin.ExecContext(ctx, `CREATE SCHEMA "`+schema+`"`); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	dsn := withSearchPath(connString, schema)

	// Migrate into the sandbox schema; it is first on the search_path, so
	// the tables (and goose's version table) land there.
	mig, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open for migrate: %v", err)
	}
	goose.SetBaseFS(store.MigrationsFS())
	if err := goose.SetDialect("postgres"); err != nil {
		t.Fatalf("goose dialect: %v", err)
	}
	if err := goose.Up(mig, "."); err != nil {
		t.Fatalf("goose up: %v", err)
	}
	_ = mig.Close()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open sandbox pool: %v", err)
	}

	sbx := &Sandbox{
		Pool:   pool,
		Schema: schema,
		DSN:    dsn,
	}
	sbx.Close = func() {
		pool.Close()
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer dropCancel()
		_, _ = admin.ExecContext(dropCtx, `DROP SCHEMA IF EXISTS "`+schema+`" CASCADE`)
		_ = admin.Close()
	}
	t.Cleanup(sbx.Close)
	return sbx
}

func withSearchPath(base, schema string) string {
	u, _ := url.Parse(base)
	q := u.Query()
	q.Set("options", fmt.Sprintf("-csearch_path=%s,public", schema))
	u.RawQuery = q.Encode()
	return u.String()
}
