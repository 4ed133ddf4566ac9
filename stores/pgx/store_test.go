package storespgx_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	es "github.com/aldenhall/eventstore"
	"github.com/aldenhall/eventstore/internal/storetest"
	storespgx "github.com/aldenhall/eventstore/stores/pgx"
)

// TestStore_Compliance exercises the full backend-agnostic suite against a
// real PostgreSQL instance with the schema from SPEC_FULL.md §6 already
// applied. It is skipped unless DATABASE_URL is set, since it needs a live
// database.
func TestStore_Compliance(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping storespgx compliance suite")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	storetest.Run(t, func(t *testing.T) es.EntryStore {
		t.Helper()
		t.Cleanup(func() {
			_, _ = pool.Exec(ctx, "TRUNCATE domain_event_entry, snapshot_event_entry")
		})
		return storespgx.New(pool)
	})
}
