package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"planline/internal/db"
	"planline/internal/migrate"
	"planline/internal/store"
)

func openStores(t *testing.T) map[string]store.Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return map[string]store.Store{
		"sqlite": store.NewSQLite(conn),
		"memory": store.NewMemory(),
	}
}

func TestCreateGetDelete(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec, err := s.Create(ctx, "tasks", "t-1", store.Fields{"title": "first"})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if rec.ID != "t-1" {
				t.Fatalf("unexpected id %q", rec.ID)
			}
			got, err := s.Get(ctx, "tasks", "t-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Fields.String("title") != "first" {
				t.Fatalf("unexpected fields %v", got.Fields)
			}
			if _, err := s.Get(ctx, "tasks", "missing"); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.Delete(ctx, "tasks", "t-1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := s.Get(ctx, "tasks", "t-1"); !errors.Is(err, store.ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestDuplicateCreateFails(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := s.Create(ctx, "epics", "e-1", store.Fields{"name": "one"}); err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := s.Create(ctx, "epics", "e-1", store.Fields{"name": "dup"}); err == nil {
				t.Fatalf("expected duplicate create to fail")
			}
		})
	}
}

func TestListKeepsInsertionOrder(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"a", "b", "c"} {
				if _, err := s.Create(ctx, "reqs", id, store.Fields{"title": id}); err != nil {
					t.Fatalf("create %s: %v", id, err)
				}
			}
			recs, err := s.List(ctx, "reqs")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(recs) != 3 {
				t.Fatalf("expected 3 records, got %d", len(recs))
			}
			for i, want := range []string{"a", "b", "c"} {
				if recs[i].ID != want {
					t.Fatalf("order mismatch at %d: %q", i, recs[i].ID)
				}
			}
		})
	}
}

func TestListOrderSurvivesTimestampTruncation(t *testing.T) {
	// RFC3339Nano drops trailing zeros, so "00.1Z" sorts after "00.12Z"
	// lexicographically; insertion order must not depend on created_at.
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := store.NewSQLite(conn)
	times := []time.Time{
		time.Date(2025, 3, 1, 0, 0, 0, 100_000_000, time.UTC),
		time.Date(2025, 3, 1, 0, 0, 0, 120_000_000, time.UTC),
	}
	i := 0
	s.Now = func() time.Time {
		ts := times[i%len(times)]
		i++
		return ts
	}
	ctx := context.Background()
	for _, id := range []string{"first", "second"} {
		if _, err := s.Create(ctx, "tasks", id, store.Fields{"title": id}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	recs, err := s.List(ctx, "tasks")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "first" || recs[1].ID != "second" {
		t.Fatalf("insertion order violated: %v %v", recs[0].ID, recs[1].ID)
	}
}

func TestUpdateMergesFields(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := s.Create(ctx, "tasks", "t-1", store.Fields{"title": "a", "status": "todo"}); err != nil {
				t.Fatalf("create: %v", err)
			}
			rec, err := s.Update(ctx, "tasks", "t-1", store.Fields{"status": "done"})
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if rec.Fields.String("title") != "a" || rec.Fields.String("status") != "done" {
				t.Fatalf("merge failed: %v", rec.Fields)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	type payload struct {
		Title  string   `json:"title"`
		Labels []string `json:"labels"`
	}
	f, err := store.Encode(payload{Title: "x", Labels: []string{"a"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out payload
	if err := (store.Record{ID: "1", Fields: f}).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Title != "x" || len(out.Labels) != 1 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
