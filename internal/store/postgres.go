package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pubhouse/internal/domain"
)

// Postgres implements Store on a pgx connection pool. Pool exhaustion makes
// callers wait on Acquire rather than fail, which is the backpressure the
// command path wants.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a pool against dsn and pings it once.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests that manage their
// own sandboxed pool.
func NewPostgresFromPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the underlying pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

// wrapErr maps driver errors onto the store taxonomy: no rows and broken
// foreign keys both mean the referenced entity is gone.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrNotFound
	}
	return err
}

func (s *Postgres) UpsertPerson(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO person (id) VALUES ($1)
		ON CONFLICT (id) DO UPDATE SET last_updated = now()`, id)
	return wrapErr(err)
}

func (s *Postgres) LoadPerson(ctx context.Context, id uuid.UUID) (domain.Person, error) {
	var p domain.Person
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, pub_id, table_id, last_updated
		FROM person WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.PubID, &p.TableID, &p.LastUpdated)
	if err != nil {
		return domain.Person{}, wrapErr(err)
	}
	return p, nil
}

func (s *Postgres) SetPersonName(ctx context.Context, id uuid.UUID, name string) error {
	return s.updatePerson(ctx, id, `UPDATE person SET name = $2, last_updated = now() WHERE id = $1`, name)
}

func (s *Postgres) SetPersonPub(ctx context.Context, id uuid.UUID, pubID *uuid.UUID) error {
	return s.updatePerson(ctx, id, `UPDATE person SET pub_id = $2, last_updated = now() WHERE id = $1`, pubID)
}

func (s *Postgres) SetPersonTable(ctx context.Context, id uuid.UUID, tableID *uuid.UUID) error {
	return s.updatePerson(ctx, id, `UPDATE person SET table_id = $2, last_updated = now() WHERE id = $1`, tableID)
}

func (s *Postgres) TouchActivity(ctx context.Context, id uuid.UUID) error {
	return s.updatePerson(ctx, id, `UPDATE person SET last_updated = now() WHERE id = $1`)
}

func (s *Postgres) updatePerson(ctx context.Context, id uuid.UUID, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteStalePersons(ctx context.Context, threshold time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM person WHERE last_updated < $1`, time.Now().Add(-threshold))
	if err != nil {
		return 0, wrapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) ListPubsWithMembers(ctx context.Context) ([]domain.PubWithMembers, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ph.id, ph.name,
		       COALESCE(array_agg(p.id) FILTER (WHERE p.id IS NOT NULL), '{}')
		FROM public_house ph
		LEFT JOIN person p ON p.pub_id = ph.id
		GROUP BY ph.id, ph.name
		ORDER BY ph.name, ph.id`)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	list := []domain.PubWithMembers{}
	for rows.Next() {
		var pub domain.PubWithMembers
		if err := rows.Scan(&pub.ID, &pub.Name, &pub.Persons); err != nil {
			return nil, err
		}
		list = append(list, pub)
	}
	return list, rows.Err()
}

func (s *Postgres) InsertPub(ctx context.Context, id uuid.UUID, name string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO public_house (id, name) VALUES ($1, $2)`, id, name)
	return wrapErr(err)
}

func (s *Postgres) DeletePubIfEmpty(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, wrapErr(err)
	}
	defer tx.Rollback(ctx)

	var occupied bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM person WHERE pub_id = $1)`, id).Scan(&occupied); err != nil {
		return false, wrapErr(err)
	}
	if occupied {
		return false, nil
	}
	// An empty pub can only have empty tables, so dropping them first is safe.
	if _, err := tx.Exec(ctx, `DELETE FROM pub_table WHERE pub_id = $1`, id); err != nil {
		return false, wrapErr(err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM public_house WHERE id = $1`, id)
	if err != nil {
		return false, wrapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, wrapErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Postgres) LoadTable(ctx context.Context, id uuid.UUID) (domain.Table, error) {
	var t domain.Table
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, pub_id FROM pub_table WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.PubID)
	if err != nil {
		return domain.Table{}, wrapErr(err)
	}
	return t, nil
}

func (s *Postgres) ListTablesWithMembers(ctx context.Context, pubID uuid.UUID) ([]domain.TableWithMembers, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.name, t.pub_id,
		       COALESCE(array_agg(p.id) FILTER (WHERE p.id IS NOT NULL), '{}')
		FROM pub_table t
		LEFT JOIN person p ON p.table_id = t.id
		WHERE t.pub_id = $1
		GROUP BY t.id, t.name, t.pub_id
		ORDER BY t.name, t.id`, pubID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	list := []domain.TableWithMembers{}
	for rows.Next() {
		var tbl domain.TableWithMembers
		if err := rows.Scan(&tbl.ID, &tbl.Name, &tbl.PubID, &tbl.Persons); err != nil {
			return nil, err
		}
		list = append(list, tbl)
	}
	return list, rows.Err()
}

func (s *Postgres) InsertTable(ctx context.Context, id uuid.UUID, name string, pubID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pub_table (id, name, pub_id) VALUES ($1, $2, $3)`, id, name, pubID)
	return wrapErr(err)
}

func (s *Postgres) DeleteTableIfEmpty(ctx context.Context, id uuid.UUID) (*uuid.UUID, error) {
	var parent uuid.UUID
	err := s.pool.QueryRow(ctx, `
		DELETE FROM pub_table t
		WHERE t.id = $1
		  AND NOT EXISTS (SELECT 1 FROM person p WHERE p.table_id = t.id)
		RETURNING t.pub_id`, id).Scan(&parent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return &parent, nil
}
