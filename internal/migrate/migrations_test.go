package migrate_test

import (
	"testing"

	"planline/internal/db"
	"planline/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	for i := 0; i < 2; i++ {
		if err := migrate.Migrate(conn); err != nil {
			t.Fatalf("migrate pass %d: %v", i+1, err)
		}
	}

	var applied int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected 1 recorded migration, got %d", applied)
	}

	// the documents table from 0001 must exist and accept writes
	if _, err := conn.Exec(`INSERT INTO documents(collection,id,data,created_at,updated_at)
		VALUES ('tasks','t-1','{}','2025-03-01T00:00:00Z','2025-03-01T00:00:00Z')`); err != nil {
		t.Fatalf("insert into documents: %v", err)
	}
}
