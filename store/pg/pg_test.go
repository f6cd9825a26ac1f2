package pg

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/bobg/bucketset/testutil"
)

func TestStore(t *testing.T) {
	withStore(t, func(ctx context.Context, store *Store) {
		testutil.All(ctx, t, store)
	})
}

const connVar = "BUCKETSET_PG_TESTING_CONN"

// withStore runs f against a Store in a fresh schema,
// which is dropped afterwards.
func withStore(t *testing.T, f func(context.Context, *Store)) {
	connstr := os.Getenv(connVar)
	if connstr == "" {
		t.Skipf("to run %s, set %s to a valid Postgresql connection string", t.Name(), connVar)
	}

	db, err := sql.Open("postgres", connstr)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	// One connection, so the search_path setting sticks.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	schema := fmt.Sprintf("bucketset_test_%d", time.Now().UnixNano())
	if _, err = db.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatal(err)
	}
	defer db.ExecContext(ctx, "DROP SCHEMA "+schema+" CASCADE")

	if _, err = db.ExecContext(ctx, "SET search_path TO "+schema); err != nil {
		t.Fatal(err)
	}

	store, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}

	f(ctx, store)
}
