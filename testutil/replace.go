package testutil

import (
	"context"
	"testing"

	"github.com/bobg/bucketset"
)

// Replace checks that bucketset.Replace leaves the old entry in place
// and that bucketset.Latest follows the chain of replacements.
func Replace(ctx context.Context, t *testing.T, store bucketset.Store) {
	var (
		e1 = bucketset.Entry{Type: "testutil-replace", Content: []byte("version 1")}
		e2 = bucketset.Entry{Type: "testutil-replace", Content: []byte("version 2")}
		e3 = bucketset.Entry{Type: "testutil-replace", Content: []byte("version 3")}
	)

	a1, _, err := store.Put(ctx, e1)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := bucketset.Replace(ctx, store, a1, e2)
	if err != nil {
		t.Fatal(err)
	}
	a3, err := bucketset.Replace(ctx, store, a2, e3)
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, a1)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(e1) {
		t.Errorf("replaced entry changed: got %q, want %q", got.Content, e1.Content)
	}

	latest, err := bucketset.Latest(ctx, store, a1)
	if err != nil {
		t.Fatal(err)
	}
	if latest != a3 {
		t.Errorf("got latest %s, want %s", latest, a3)
	}
}

// All runs every conformance test against store.
func All(ctx context.Context, t *testing.T, store bucketset.Store) {
	t.Run("entries", func(t *testing.T) { Entries(ctx, t, store) })
	t.Run("links", func(t *testing.T) { Links(ctx, t, store) })
	t.Run("removal", func(t *testing.T) { Removal(ctx, t, store) })
	t.Run("replace", func(t *testing.T) { Replace(ctx, t, store) })
}
