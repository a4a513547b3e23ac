// Package domain holds the persistent entities of the pubhouse server:
// persons, pubs, and tables. Room membership is never stored on the room
// itself; it is always derived from the person rows pointing at it.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Person is a participant. The id is a client-supplied token that survives
// reconnects; the record itself survives socket death until the reaper
// removes it for inactivity.
type Person struct {
	ID          uuid.UUID  `json:"id"`
	Name        *string    `json:"name"`
	PubID       *uuid.UUID `json:"pub_id"`
	TableID     *uuid.UUID `json:"table_id"`
	LastUpdated time.Time  `json:"last_updated"`
}

// Pub is a top-level room.
type Pub struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// PubWithMembers is a pub plus the ids of the persons currently in it.
type PubWithMembers struct {
	ID      uuid.UUID   `json:"id"`
	Name    string      `json:"name"`
	Persons []uuid.UUID `json:"persons"`
}

// Table is a sub-room nested in exactly one pub. PubID never changes after
// creation.
type Table struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	PubID uuid.UUID `json:"pub_id"`
}

// TableWithMembers is a table plus the ids of the persons currently at it.
type TableWithMembers struct {
	ID      uuid.UUID   `json:"id"`
	Name    string      `json:"name"`
	PubID   uuid.UUID   `json:"pub_id"`
	Persons []uuid.UUID `json:"persons"`
}
