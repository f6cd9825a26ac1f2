package testutil

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
)

// Removal checks that removed entries are reported as removed,
// that removal is idempotent,
// and that removing a missing entry is an error.
func Removal(ctx context.Context, t *testing.T, store bucketset.Store) {
	e := bucketset.Entry{Type: "testutil-removal", Content: []byte("soon gone")}
	addr, _, err := store.Put(ctx, e)
	if err != nil {
		t.Fatal(err)
	}

	if err = store.Remove(ctx, addr); err != nil {
		t.Fatal(err)
	}
	_, err = store.Get(ctx, addr)
	if !errors.Is(err, bucketset.ErrRemoved) {
		t.Errorf("got error %v getting removed entry, want ErrRemoved", err)
	}
	if err = store.Remove(ctx, addr); err != nil {
		t.Errorf("removing %s a second time: %s", addr, err)
	}

	missing, err := store.Hash().Sum([]byte("never stored, never removed"))
	if err != nil {
		t.Fatal(err)
	}
	err = store.Remove(ctx, missing)
	if !errors.Is(err, bucketset.ErrNotFound) {
		t.Errorf("got error %v removing missing entry, want ErrNotFound", err)
	}
}
