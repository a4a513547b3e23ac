// Package store is the durable side of the server: person, pub, and table
// records in Postgres. It is the only owner of persistent state; everything
// in-memory is a cache over what lives here.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"pubhouse/internal/domain"
)

// ErrNotFound reports that a command referenced a pub, table, or person that
// does not exist. Callers degrade gracefully on it; it never tears down a
// connection.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence contract the command processor, session layer,
// and reaper run against. Membership is derived: a room's members are the
// persons whose pub_id/table_id points at it, never a list on the room row.
type Store interface {
	// UpsertPerson creates the person row on first connect and refreshes
	// its activity on reconnect.
	UpsertPerson(ctx context.Context, id uuid.UUID) error
	LoadPerson(ctx context.Context, id uuid.UUID) (domain.Person, error)
	SetPersonName(ctx context.Context, id uuid.UUID, name string) error
	// SetPersonPub moves the person to pubID, or out of any pub when nil.
	SetPersonPub(ctx context.Context, id uuid.UUID, pubID *uuid.UUID) error
	// SetPersonTable moves the person to tableID, or away from any table
	// when nil.
	SetPersonTable(ctx context.Context, id uuid.UUID, tableID *uuid.UUID) error
	TouchActivity(ctx context.Context, id uuid.UUID) error
	// DeleteStalePersons removes persons idle longer than threshold and
	// reports how many rows went away.
	DeleteStalePersons(ctx context.Context, threshold time.Duration) (int64, error)

	ListPubsWithMembers(ctx context.Context) ([]domain.PubWithMembers, error)
	InsertPub(ctx context.Context, id uuid.UUID, name string) error
	// DeletePubIfEmpty removes the pub (and its necessarily-empty tables)
	// only when no person is currently in it. Returns whether a row was
	// deleted.
	DeletePubIfEmpty(ctx context.Context, id uuid.UUID) (bool, error)

	LoadTable(ctx context.Context, id uuid.UUID) (domain.Table, error)
	ListTablesWithMembers(ctx context.Context, pubID uuid.UUID) ([]domain.TableWithMembers, error)
	InsertTable(ctx context.Context, id uuid.UUID, name string, pubID uuid.UUID) error
	// DeleteTableIfEmpty removes the table only when nobody sits at it and
	// returns the parent pub id when a row was deleted, nil otherwise.
	DeleteTableIfEmpty(ctx context.Context, id uuid.UUID) (*uuid.UUID, error)
}
