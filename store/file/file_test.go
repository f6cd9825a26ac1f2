package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/testutil"
)

func TestStore(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	testutil.All(context.Background(), t, s)
}

func TestStoreBLAKE3(t *testing.T) {
	s, err := New(t.TempDir(), bucketset.WithHash(bucketset.BLAKE3))
	if err != nil {
		t.Fatal(err)
	}
	testutil.All(context.Background(), t, s)
}

func TestCompressed(t *testing.T) {
	var (
		ctx  = context.Background()
		root = t.TempDir()
	)
	s, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	e := bucketset.Entry{Type: "text", Content: []byte(strings.Repeat("compressible ", 1000))}
	addr, _, err := s.Put(ctx, e)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(s.entrypath(addr))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() >= int64(len(e.Content)) {
		t.Errorf("stored %d bytes for %d bytes of content", info.Size(), len(e.Content))
	}

	// A second Store on the same root sees the same data.
	s2, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s2.Get(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(e) {
		t.Error("entry changed on reopening")
	}
}

func TestTagDir(t *testing.T) {
	for _, tag := range []string{"", ".", "..", "a/b", "contains"} {
		d := tagdir(tag)
		if d != filepath.Base(d) || d == "." || d == ".." {
			t.Errorf("tag %q maps to unsafe name %q", tag, d)
		}
	}
}
