// Package testutil contains conformance tests for bucketset.Store implementations.
package testutil

import (
	"context"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
)

// Entries writes random entries to a store
// and checks that each is added exactly once,
// at the address the store's Hash assigns it,
// and reads back unchanged.
func Entries(ctx context.Context, t *testing.T, store bucketset.Store) {
	seen := make(map[bucketset.Address]bool)

	f := func(typ string, content []byte) bool {
		e := bucketset.Entry{Type: typ, Content: content}

		want, err := store.Hash().Address(e)
		if err != nil {
			t.Fatal(err)
		}

		addr, added, err := store.Put(ctx, e)
		if err != nil {
			t.Fatal(err)
		}
		if addr != want {
			t.Logf("got address %s, want %s", addr, want)
			return false
		}
		if added == seen[addr] {
			t.Logf("first Put of %s: got added=%v, want %v", addr, added, !seen[addr])
			return false
		}
		seen[addr] = true

		addr2, added, err := store.Put(ctx, e)
		if err != nil {
			t.Fatal(err)
		}
		if addr2 != addr || added {
			t.Logf("second Put of %s: got (%s, %v), want (%s, false)", addr, addr2, added, addr)
			return false
		}

		got, err := store.Get(ctx, addr)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(e) {
			t.Logf("Get %s mismatch (-want +got):\n%s", addr, cmp.Diff(e, got))
			return false
		}
		return true
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}

	// Nil and empty content are the same entry.
	addr, _, err := store.Put(ctx, bucketset.Entry{Type: "testutil-empty", Content: []byte{}})
	if err != nil {
		t.Fatal(err)
	}
	addrNil, added, err := store.Put(ctx, bucketset.Entry{Type: "testutil-empty"})
	if err != nil {
		t.Fatal(err)
	}
	if addrNil != addr || added {
		t.Errorf("storing nil content after empty content: got (%s, %v), want (%s, false)", addrNil, added, addr)
	}
	got, err := store.Get(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	gotAddr, err := store.Hash().Address(got)
	if err != nil {
		t.Fatal(err)
	}
	if gotAddr != addr {
		t.Errorf("empty entry fetched from %s addresses as %s", addr, gotAddr)
	}

	missing, err := store.Hash().Sum([]byte("this entry was never stored"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.Get(ctx, missing)
	if !errors.Is(err, bucketset.ErrNotFound) {
		t.Errorf("got error %v getting missing entry, want ErrNotFound", err)
	}
}
