package validate

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/store/mem"
	"github.com/bobg/bucketset/testutil"
)

func TestPassThrough(t *testing.T) {
	// With no rules, a validating store behaves like its nested store.
	testutil.All(context.Background(), t, NewStore(mem.New(), new(Registry)))
}

func TestRules(t *testing.T) {
	var (
		ctx = context.Background()
		r   = new(Registry)
		s   = NewStore(mem.New(), r)
		ops []Op
	)

	r.Register("guarded", func(_ context.Context, op Op) error {
		ops = append(ops, op)
		if op.Kind == Create && string(op.Entry.Content) == "bad" {
			return Reject(op, "bad content")
		}
		if op.Kind == Delete {
			return Reject(op, "no deleting")
		}
		return nil
	})

	good := bucketset.Entry{Type: "guarded", Content: []byte("good")}
	addr, _, err := s.Put(ctx, good)
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = s.Put(ctx, bucketset.Entry{Type: "guarded", Content: []byte("bad")})
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("got error %v, want Rejection", err)
	}
	if rej.Kind != Create || rej.Type != "guarded" {
		t.Errorf("got rejection %+v", rej)
	}

	newer := bucketset.Entry{Type: "guarded", Content: []byte("newer")}
	newAddr, err := bucketset.Replace(ctx, s, addr, newer)
	if err != nil {
		t.Fatal(err)
	}
	latest, err := bucketset.Latest(ctx, s, addr)
	if err != nil {
		t.Fatal(err)
	}
	if latest != newAddr {
		t.Errorf("got latest %s, want %s", latest, newAddr)
	}

	if err = s.Remove(ctx, addr); !errors.Is(err, ErrRejected) {
		t.Errorf("got error %v removing, want rejection", err)
	}
	if _, err = s.Get(ctx, addr); err != nil {
		t.Errorf("entry gone after rejected removal: %s", err)
	}

	// Other types are unaffected.
	other, _, err := s.Put(ctx, bucketset.Entry{Type: "other", Content: []byte("bad")})
	if err != nil {
		t.Fatal(err)
	}
	if err = s.Remove(ctx, other); err != nil {
		t.Fatal(err)
	}

	kinds := make([]Kind, 0, len(ops))
	for _, op := range ops {
		kinds = append(kinds, op.Kind)
	}
	want := []Kind{Create, Create, Modify, Delete}
	if len(kinds) != len(want) {
		t.Fatalf("rule saw %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("rule saw %v, want %v", kinds, want)
			break
		}
	}

	modify := ops[2]
	if modify.OldAddr != addr || !modify.Old.Equal(good) || !modify.Entry.Equal(newer) {
		t.Errorf("Modify op carries the wrong entries: %+v", modify)
	}
}

func TestReplaceMissing(t *testing.T) {
	s := NewStore(mem.New(), new(Registry))
	missing, err := bucketset.DefaultHash.Address(bucketset.Entry{Type: "x"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = bucketset.Replace(context.Background(), s, missing, bucketset.Entry{Type: "x", Content: []byte("y")})
	if !errors.Is(err, bucketset.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestRejectionIs(t *testing.T) {
	err := errors.Wrap(Reject(Op{Kind: Delete, Type: "t"}, "because"), "context")
	if !errors.Is(err, ErrRejected) {
		t.Errorf("wrapped rejection %v does not match ErrRejected", err)
	}
	if got, want := Delete.String(), "delete"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
