// Package storetest provides an in-memory Store for exercising the command
// processor, sessions, and reaper without a database. It mirrors the
// Postgres semantics, including foreign-key misses mapping to ErrNotFound.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pubhouse/internal/domain"
	"pubhouse/internal/store"
)

type MemStore struct {
	mu      sync.Mutex
	persons map[uuid.UUID]*domain.Person
	pubs    map[uuid.UUID]string
	tables  map[uuid.UUID]domain.Table

	// FailWith, when set, makes every call fail with it. Lets tests model a
	// store outage.
	FailWith error
}

var _ store.Store = (*MemStore)(nil)

func New() *MemStore {
	return &MemStore{
		persons: make(map[uuid.UUID]*domain.Person),
		pubs:    make(map[uuid.UUID]string),
		tables:  make(map[uuid.UUID]domain.Table),
	}
}

func (m *MemStore) UpsertPerson(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	if p, ok := m.persons[id]; ok {
		p.LastUpdated = time.Now()
		return nil
	}
	m.persons[id] = &domain.Person{ID: id, LastUpdated: time.Now()}
	return nil
}

func (m *MemStore) LoadPerson(ctx context.Context, id uuid.UUID) (domain.Person, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return domain.Person{}, m.FailWith
	}
	p, ok := m.persons[id]
	if !ok {
		return domain.Person{}, store.ErrNotFound
	}
	return *p, nil
}

func (m *MemStore) SetPersonName(ctx context.Context, id uuid.UUID, name string) error {
	return m.mutatePerson(id, func(p *domain.Person) error {
		p.Name = &name
		return nil
	})
}

func (m *MemStore) SetPersonPub(ctx context.Context, id uuid.UUID, pubID *uuid.UUID) error {
	return m.mutatePerson(id, func(p *domain.Person) error {
		if pubID != nil {
			if _, ok := m.pubs[*pubID]; !ok {
				return store.ErrNotFound
			}
		}
		p.PubID = pubID
		return nil
	})
}

func (m *MemStore) SetPersonTable(ctx context.Context, id uuid.UUID, tableID *uuid.UUID) error {
	return m.mutatePerson(id, func(p *domain.Person) error {
		if tableID != nil {
			if _, ok := m.tables[*tableID]; !ok {
				return store.ErrNotFound
			}
		}
		p.TableID = tableID
		return nil
	})
}

func (m *MemStore) TouchActivity(ctx context.Context, id uuid.UUID) error {
	return m.mutatePerson(id, func(p *domain.Person) error { return nil })
}

func (m *MemStore) mutatePerson(id uuid.UUID, fn func(*domain.Person) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	p, ok := m.persons[id]
	if !ok {
		return store.ErrNotFound
	}
	if err := fn(p); err != nil {
		return err
	}
	p.LastUpdated = time.Now()
	return nil
}

func (m *MemStore) DeleteStalePersons(ctx context.Context, threshold time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return 0, m.FailWith
	}
	cutoff := time.Now().Add(-threshold)
	var n int64
	for id, p := range m.persons {
		if p.LastUpdated.Before(cutoff) {
			delete(m.persons, id)
			n++
		}
	}
	return n, nil
}

func (m *MemStore) ListPubsWithMembers(ctx context.Context) ([]domain.PubWithMembers, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	list := []domain.PubWithMembers{}
	for id, name := range m.pubs {
		pub := domain.PubWithMembers{ID: id, Name: name, Persons: []uuid.UUID{}}
		for pid, p := range m.persons {
			if p.PubID != nil && *p.PubID == id {
				pub.Persons = append(pub.Persons, pid)
			}
		}
		sortIDs(pub.Persons)
		list = append(list, pub)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (m *MemStore) InsertPub(ctx context.Context, id uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.pubs[id] = name
	return nil
}

func (m *MemStore) DeletePubIfEmpty(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return false, m.FailWith
	}
	if _, ok := m.pubs[id]; !ok {
		return false, nil
	}
	for _, p := range m.persons {
		if p.PubID != nil && *p.PubID == id {
			return false, nil
		}
	}
	for tid, t := range m.tables {
		if t.PubID == id {
			delete(m.tables, tid)
		}
	}
	delete(m.pubs, id)
	return true, nil
}

func (m *MemStore) LoadTable(ctx context.Context, id uuid.UUID) (domain.Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return domain.Table{}, m.FailWith
	}
	t, ok := m.tables[id]
	if !ok {
		return domain.Table{}, store.ErrNotFound
	}
	return t, nil
}

func (m *MemStore) ListTablesWithMembers(ctx context.Context, pubID uuid.UUID) ([]domain.TableWithMembers, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	list := []domain.TableWithMembers{}
	for id, t := range m.tables {
		if t.PubID != pubID {
			continue
		}
		tbl := domain.TableWithMembers{ID: id, Name: t.Name, PubID: t.PubID, Persons: []uuid.UUID{}}
		for pid, p := range m.persons {
			if p.TableID != nil && *p.TableID == id {
				tbl.Persons = append(tbl.Persons, pid)
			}
		}
		sortIDs(tbl.Persons)
		list = append(list, tbl)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (m *MemStore) InsertTable(ctx context.Context, id uuid.UUID, name string, pubID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	if _, ok := m.pubs[pubID]; !ok {
		return store.ErrNotFound
	}
	m.tables[id] = domain.Table{ID: id, Name: name, PubID: pubID}
	return nil
}

func (m *MemStore) DeleteTableIfEmpty(ctx context.Context, id uuid.UUID) (*uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	t, ok := m.tables[id]
	if !ok {
		return nil, nil
	}
	for _, p := range m.persons {
		if p.TableID != nil && *p.TableID == id {
			return nil, nil
		}
	}
	delete(m.tables, id)
	parent := t.PubID
	return &parent, nil
}

// Person returns a copy of the stored person, for assertions.
func (m *MemStore) Person(id uuid.UUID) (domain.Person, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.persons[id]
	if !ok {
		return domain.Person{}, false
	}
	return *p, true
}

// SetLastUpdated backdates a person's activity, for reaper scenarios.
func (m *MemStore) SetLastUpdated(id uuid.UUID, when time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.persons[id]; ok {
		p.LastUpdated = when
	}
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
