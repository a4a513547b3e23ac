package store_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	faker "github.com/go-faker/faker/v4"
	"github.com/google/uuid"

	"pubhouse/internal/store"
	"pubhouse/pkg/pgtest"
)

func TestMain(m *testing.M) {
	pgtest.BootOnce(&testing.T{})
	code := m.Run()
	_ = pgtest.ShutdownNow()
	os.Exit(code)
}

func newStore(t *testing.T) *store.Postgres {
	t.Helper()
	sbx := pgtest.NewSandbox(t)
	return store.NewPostgresFromPool(sbx.Pool)
}

func TestUpsertAndLoadPerson(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	id := uuid.New()

	if err := st.UpsertPerson(ctx, id); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// A reconnect hits the conflict path and refreshes activity.
	if err := st.UpsertPerson(ctx, id); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	p, err := st.LoadPerson(ctx, id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.ID != id || p.Name != nil || p.PubID != nil || p.TableID != nil {
		t.Fatalf("fresh person = %+v", p)
	}
	if time.Since(p.LastUpdated) > time.Minute {
		t.Fatalf("last_updated not set: %v", p.LastUpdated)
	}

	if _, err := st.LoadPerson(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing person error = %v, want ErrNotFound", err)
	}
}

func TestSetPersonFields(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	id := uuid.New()
	if err := st.UpsertPerson(ctx, id); err != nil {
		t.Fatal(err)
	}

	name := faker.Name()
	if err := st.SetPersonName(ctx, id, name); err != nil {
		t.Fatalf("set name: %v", err)
	}
	p, err := st.LoadPerson(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name == nil || *p.Name != name {
		t.Fatalf("name = %v, want %q", p.Name, name)
	}

	if err := st.SetPersonName(ctx, uuid.New(), name); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("set name on missing person = %v, want ErrNotFound", err)
	}
}

func TestMembershipLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	a, b := uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{a, b} {
		if err := st.UpsertPerson(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	pubID := uuid.New()
	if err := st.InsertPub(ctx, pubID, "The Anchor"); err != nil {
		t.Fatalf("insert pub: %v", err)
	}
	for _, id := range []uuid.UUID{a, b} {
		if err := st.SetPersonPub(ctx, id, &pubID); err != nil {
			t.Fatalf("join pub: %v", err)
		}
	}

	tableID := uuid.New()
	if err := st.InsertTable(ctx, tableID, "corner", pubID); err != nil {
		t.Fatalf("insert table: %v", err)
	}
	if err := st.SetPersonTable(ctx, a, &tableID); err != nil {
		t.Fatalf("join table: %v", err)
	}

	pubs, err := st.ListPubsWithMembers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pubs) != 1 || pubs[0].ID != pubID || pubs[0].Name != "The Anchor" {
		t.Fatalf("pubs = %+v", pubs)
	}
	if len(pubs[0].Persons) != 2 {
		t.Fatalf("pub members = %v, want both persons", pubs[0].Persons)
	}

	tables, err := st.ListTablesWithMembers(ctx, pubID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 1 || tables[0].PubID != pubID {
		t.Fatalf("tables = %+v", tables)
	}
	if len(tables[0].Persons) != 1 || tables[0].Persons[0] != a {
		t.Fatalf("table members = %v, want [a]", tables[0].Persons)
	}

	// Leaving clears the derived membership.
	if err := st.SetPersonTable(ctx, a, nil); err != nil {
		t.Fatal(err)
	}
	tables, err = st.ListTablesWithMembers(ctx, pubID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tables[0].Persons) != 0 {
		t.Fatalf("table members after leave = %v", tables[0].Persons)
	}
}

func TestJoinMissingRoomsIsNotFound(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	id := uuid.New()
	if err := st.UpsertPerson(ctx, id); err != nil {
		t.Fatal(err)
	}

	missing := uuid.New()
	if err := st.SetPersonPub(ctx, id, &missing); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("join missing pub = %v, want ErrNotFound", err)
	}
	if err := st.SetPersonTable(ctx, id, &missing); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("join missing table = %v, want ErrNotFound", err)
	}

	// The failed joins must not have moved the person.
	p, err := st.LoadPerson(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if p.PubID != nil || p.TableID != nil {
		t.Fatalf("person moved by failed joins: %+v", p)
	}
}

func TestDeletePubIfEmpty(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	id := uuid.New()
	if err := st.UpsertPerson(ctx, id); err != nil {
		t.Fatal(err)
	}
	pubID := uuid.New()
	if err := st.InsertPub(ctx, pubID, "Busy"); err != nil {
		t.Fatal(err)
	}
	tableID := uuid.New()
	if err := st.InsertTable(ctx, tableID, "corner", pubID); err != nil {
		t.Fatal(err)
	}
	if err := st.SetPersonPub(ctx, id, &pubID); err != nil {
		t.Fatal(err)
	}

	deleted, err := st.DeletePubIfEmpty(ctx, pubID)
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Fatal("occupied pub deleted")
	}

	if err := st.SetPersonPub(ctx, id, nil); err != nil {
		t.Fatal(err)
	}
	deleted, err = st.DeletePubIfEmpty(ctx, pubID)
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Fatal("empty pub not deleted")
	}
	// Its tables went with it.
	if _, err := st.LoadTable(ctx, tableID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("orphan table survived: %v", err)
	}

	pubs, err := st.ListPubsWithMembers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pubs) != 0 {
		t.Fatalf("pubs after delete = %+v", pubs)
	}
}

func TestDeleteTableIfEmpty(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	id := uuid.New()
	if err := st.UpsertPerson(ctx, id); err != nil {
		t.Fatal(err)
	}
	pubID := uuid.New()
	if err := st.InsertPub(ctx, pubID, "P"); err != nil {
		t.Fatal(err)
	}
	tableID := uuid.New()
	if err := st.InsertTable(ctx, tableID, "T", pubID); err != nil {
		t.Fatal(err)
	}
	if err := st.SetPersonPub(ctx, id, &pubID); err != nil {
		t.Fatal(err)
	}
	if err := st.SetPersonTable(ctx, id, &tableID); err != nil {
		t.Fatal(err)
	}

	parent, err := st.DeleteTableIfEmpty(ctx, tableID)
	if err != nil {
		t.Fatal(err)
	}
	if parent != nil {
		t.Fatal("occupied table deleted")
	}

	if err := st.SetPersonTable(ctx, id, nil); err != nil {
		t.Fatal(err)
	}
	parent, err = st.DeleteTableIfEmpty(ctx, tableID)
	if err != nil {
		t.Fatal(err)
	}
	if parent == nil || *parent != pubID {
		t.Fatalf("parent = %v, want %s", parent, pubID)
	}

	// Deleting a missing table reports nothing to refresh.
	parent, err = st.DeleteTableIfEmpty(ctx, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if parent != nil {
		t.Fatalf("missing table returned parent %v", parent)
	}
}

func TestDeleteStalePersons(t *testing.T) {
	ctx := context.Background()
	sbx := pgtest.NewSandbox(t)
	st := store.NewPostgresFromPool(sbx.Pool)

	stale, fresh := uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{stale, fresh} {
		if err := st.UpsertPerson(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := sbx.Pool.Exec(ctx,
		`UPDATE person SET last_updated = now() - interval '10 minutes' WHERE id = $1`, stale); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	n, err := st.DeleteStalePersons(ctx, 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	if _, err := st.LoadPerson(ctx, stale); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("stale person survived")
	}
	if _, err := st.LoadPerson(ctx, fresh); err != nil {
		t.Fatalf("fresh person gone: %v", err)
	}
}
