package testutil

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/bucketset"
)

// Links writes links among some entries,
// including duplicates,
// and checks that each tagged set of targets reads back exactly once.
func Links(ctx context.Context, t *testing.T, store bucketset.Store) {
	var addrs []bucketset.Address
	for i := 0; i < 5; i++ {
		addr, _, err := store.Put(ctx, bucketset.Entry{Type: "testutil-link", Content: []byte(fmt.Sprintf("entry %d", i))})
		if err != nil {
			t.Fatal(err)
		}
		addrs = append(addrs, addr)
	}

	var (
		from  = addrs[0]
		tagA  = "tag a"
		tagB  = "tag/b"
		wantA = []bucketset.Address{addrs[1], addrs[2], addrs[3]}
		wantB = []bucketset.Address{addrs[4]}
	)

	for _, to := range wantA {
		added, err := store.PutLink(ctx, bucketset.Link{From: from, To: to, Tag: tagA})
		if err != nil {
			t.Fatal(err)
		}
		if !added {
			t.Errorf("expected link %s -> %s to be new", from, to)
		}
	}
	added, err := store.PutLink(ctx, bucketset.Link{From: from, To: addrs[4], Tag: tagB})
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Errorf("expected link %s -> %s to be new", from, addrs[4])
	}

	// Duplicates.
	for _, to := range wantA {
		added, err := store.PutLink(ctx, bucketset.Link{From: from, To: to, Tag: tagA})
		if err != nil {
			t.Fatal(err)
		}
		if added {
			t.Errorf("expected duplicate link %s -> %s not to be added", from, to)
		}
	}

	cases := []struct {
		from bucketset.Address
		tag  string
		want []bucketset.Address
	}{
		{from: from, tag: tagA, want: wantA},
		{from: from, tag: tagB, want: wantB},
		{from: from, tag: "no such tag"},
		{from: addrs[1], tag: tagA},
	}
	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%02d", i+1), func(t *testing.T) {
			got := collect(ctx, t, store, c.from, c.tag)
			want := sorted(c.want)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func collect(ctx context.Context, t *testing.T, g bucketset.Getter, from bucketset.Address, tag string) []bucketset.Address {
	var got []bucketset.Address
	err := g.Links(ctx, from, tag, func(to bucketset.Address) error {
		got = append(got, to)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return sorted(got)
}

func sorted(addrs []bucketset.Address) []bucketset.Address {
	if len(addrs) == 0 {
		return nil
	}
	out := append([]bucketset.Address(nil), addrs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
