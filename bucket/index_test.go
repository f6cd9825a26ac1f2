package bucket

import (
	"context"
	"fmt"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/store/mem"
	"github.com/bobg/bucketset/validate"
)

type note struct {
	Content string `cbor:"content"`
}

func noteKey(n note) (string, error) {
	return FirstRune(n.Content)
}

const (
	noteType   = "note"
	markerType = "note-bucket"
)

func newRegistry(t *testing.T) *Registry {
	reg := new(Registry)
	if err := reg.Register(noteType, markerType); err != nil {
		t.Fatal(err)
	}
	return reg
}

// newStore produces a validating in-memory store
// with the marker rules of reg installed.
func newStore(reg *Registry) *validate.Store {
	rules := new(validate.Registry)
	reg.Install(rules)
	return validate.NewStore(mem.New(), rules)
}

func newNoteIndex(t *testing.T, s bucketset.Store, opts ...Option) *Index[note] {
	reg := newRegistry(t)
	x, err := New[note](s, reg, noteType, NewField(noteKey, ASCIILetters), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return x
}

func TestStoreAndRetrieve(t *testing.T) {
	var (
		ctx = context.Background()
		reg = newRegistry(t)
		s   = newStore(reg)
		x   = newNoteIndex(t, s)
	)

	n1 := note{Content: "sample content"}
	a1, err := x.Store(ctx, n1)
	if err != nil {
		t.Fatal(err)
	}

	got, err := x.Get(ctx, a1)
	if err != nil {
		t.Fatal(err)
	}
	if got != n1 {
		t.Errorf("got %+v, want %+v", got, n1)
	}

	checkBucket(ctx, t, x, "s", a1)
	checkAll(ctx, t, x, a1)

	n2 := note{Content: "more sample content"}
	a2, err := x.Store(ctx, n2)
	if err != nil {
		t.Fatal(err)
	}
	checkBucket(ctx, t, x, "m", a2)
	checkBucket(ctx, t, x, "s", a1)
	checkAll(ctx, t, x, a1, a2)
}

func checkBucket(ctx context.Context, t *testing.T, x *Index[note], key string, want ...bucketset.Address) {
	t.Helper()

	got, err := x.RetrieveByKey(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	sortAddrs(want)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("bucket %q mismatch (-want +got):\n%s", key, diff)
	}
}

func checkAll(ctx context.Context, t *testing.T, x *Index[note], want ...bucketset.Address) {
	t.Helper()

	res, err := x.RetrieveAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err = res.Err(); err != nil {
		t.Fatal(err)
	}
	sortAddrs(want)
	if diff := cmp.Diff(want, res.Addresses, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("RetrieveAll mismatch (-want +got):\n%s", diff)
	}
}

func TestIdempotentStore(t *testing.T) {
	var (
		ctx = context.Background()
		x   = newNoteIndex(t, mem.New())
		n   = note{Content: "twice"}
	)

	a1, err := x.Store(ctx, n)
	if err != nil {
		t.Fatal(err)
	}
	a2, err := x.Store(ctx, n)
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Errorf("storing the same record twice gave %s and %s", a1, a2)
	}
	checkBucket(ctx, t, x, "t", a1)
}

// dupLinkStore reports every link twice.
type dupLinkStore struct {
	bucketset.Store
}

func (s dupLinkStore) Links(ctx context.Context, from bucketset.Address, tag string, f func(bucketset.Address) error) error {
	return s.Store.Links(ctx, from, tag, func(to bucketset.Address) error {
		if err := f(to); err != nil {
			return err
		}
		return f(to)
	})
}

func TestRetrieveDeduplicates(t *testing.T) {
	var (
		ctx = context.Background()
		x   = newNoteIndex(t, dupLinkStore{Store: mem.New()})
	)

	a, err := x.Store(ctx, note{Content: "duplicated"})
	if err != nil {
		t.Fatal(err)
	}
	checkBucket(ctx, t, x, "d", a)
	checkAll(ctx, t, x, a)
}

func TestConcurrentStore(t *testing.T) {
	var (
		ctx = context.Background()
		reg = newRegistry(t)
		x   = newNoteIndex(t, newStore(reg))
	)

	const distinct = 32

	var (
		addrs = make([]bucketset.Address, 2*distinct)
		g     errgroup.Group
	)
	for i := 0; i < 2*distinct; i++ {
		g.Go(func() (err error) {
			addrs[i], err = x.Store(ctx, note{Content: fmt.Sprintf("q%02d", i%distinct)})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < distinct; i++ {
		if addrs[i] != addrs[i+distinct] {
			t.Errorf("note %d stored at %s and %s", i, addrs[i], addrs[i+distinct])
		}
	}
	checkBucket(ctx, t, x, "q", addrs[:distinct]...)
}

func TestEmptyBucket(t *testing.T) {
	x := newNoteIndex(t, mem.New())

	got, err := x.RetrieveByKey(context.Background(), "z")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want an empty slice", got)
	}
}

func TestMarkerDeterminism(t *testing.T) {
	var (
		ctx = context.Background()
		s1  = mem.New()
		s2  = mem.New()
		x1  = newNoteIndex(t, s1)
		x2  = newNoteIndex(t, s2)
	)

	for _, key := range []string{"a", "b", "Z", "0", "a longer key"} {
		m1, err := x1.Marker(key)
		if err != nil {
			t.Fatal(err)
		}
		m2, err := x2.Marker(key)
		if err != nil {
			t.Fatal(err)
		}
		if m1 != m2 {
			t.Errorf("key %q: independent indexes computed markers %s and %s", key, m1, m2)
		}

		stored, _, err := s1.Put(ctx, Marker{RecordType: noteType, Key: key}.Entry(markerType))
		if err != nil {
			t.Fatal(err)
		}
		if stored != m1 {
			t.Errorf("key %q: store addressed marker as %s, Marker computed %s", key, stored, m1)
		}
	}

	// Record types namespace their buckets.
	reg := newRegistry(t)
	if err := reg.Register("other", "other-bucket"); err != nil {
		t.Fatal(err)
	}
	other, err := New[note](s1, reg, "other", NewField(noteKey, ASCIILetters))
	if err != nil {
		t.Fatal(err)
	}
	m1, err := x1.Marker("a")
	if err != nil {
		t.Fatal(err)
	}
	m2, err := other.Marker("a")
	if err != nil {
		t.Fatal(err)
	}
	if m1 == m2 {
		t.Errorf("two record types share marker %s", m1)
	}
}

func TestHashPrefixCompleteness(t *testing.T) {
	var (
		ctx = context.Background()
		reg = newRegistry(t)
		s   = newStore(reg)
	)

	strategy, err := NewHashPrefix[note](3)
	if err != nil {
		t.Fatal(err)
	}
	x, err := New[note](s, reg, noteType, strategy, WithConcurrency(3))
	if err != nil {
		t.Fatal(err)
	}

	var (
		want    []bucketset.Address
		buckets = make(map[string][]bucketset.Address)
	)
	for i := 0; i < 100; i++ {
		n := note{Content: fmt.Sprintf("note number %d", i)}
		addr, err := x.Store(ctx, n)
		if err != nil {
			t.Fatal(err)
		}
		key, err := x.Key(n)
		if err != nil {
			t.Fatal(err)
		}
		want = append(want, addr)
		buckets[key] = append(buckets[key], addr)
	}

	if len(buckets) < 2 {
		t.Errorf("100 records landed in only %d bucket(s)", len(buckets))
	}
	for key, addrs := range buckets {
		checkBucket(ctx, t, x, key, addrs...)
	}
	checkAll(ctx, t, x, want...)
}

func TestMarkerImmutable(t *testing.T) {
	var (
		ctx = context.Background()
		reg = newRegistry(t)
		s   = newStore(reg)
		x   = newNoteIndex(t, s)
	)

	addr, err := x.Store(ctx, note{Content: "immutable"})
	if err != nil {
		t.Fatal(err)
	}
	marker, err := x.Marker("i")
	if err != nil {
		t.Fatal(err)
	}

	err = s.Remove(ctx, marker)
	if !errors.Is(err, validate.ErrRejected) {
		t.Errorf("got error %v removing marker, want rejection", err)
	}

	f := func(content []byte) bool {
		_, err := bucketset.Replace(ctx, s, marker, bucketset.Entry{Type: markerType, Content: content})
		var rej *validate.Rejection
		if !errors.As(err, &rej) {
			t.Logf("got error %v replacing marker, want rejection", err)
			return false
		}
		return rej.Kind == validate.Modify && rej.Type == markerType
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}

	// The bucket is intact.
	checkBucket(ctx, t, x, "i", addr)

	// Records themselves are not protected.
	if err = s.Remove(ctx, addr); err != nil {
		t.Errorf("removing record: %s", err)
	}
}

// faultyStore injects errors into a nested store.
type faultyStore struct {
	bucketset.Store

	failLinksFrom map[bucketset.Address]bool
	failPutLink   bool
	failPutType   string
}

var errInjected = errors.New("injected failure")

func (s *faultyStore) Links(ctx context.Context, from bucketset.Address, tag string, f func(bucketset.Address) error) error {
	if s.failLinksFrom[from] {
		return errInjected
	}
	return s.Store.Links(ctx, from, tag, f)
}

func (s *faultyStore) Put(ctx context.Context, e bucketset.Entry) (bucketset.Address, bool, error) {
	if e.Type == s.failPutType {
		return bucketset.Zero, false, errInjected
	}
	return s.Store.Put(ctx, e)
}

func (s *faultyStore) PutLink(ctx context.Context, l bucketset.Link) (bool, error) {
	if s.failPutLink {
		return false, errInjected
	}
	return s.Store.PutLink(ctx, l)
}

func TestRetrieveAllPolicies(t *testing.T) {
	ctx := context.Background()

	fs := &faultyStore{Store: mem.New(), failLinksFrom: make(map[bucketset.Address]bool)}
	x := newNoteIndex(t, fs)

	var want []bucketset.Address
	for _, content := range []string{"apple", "banana", "cherry", "broccoli"} {
		addr, err := x.Store(ctx, note{Content: content})
		if err != nil {
			t.Fatal(err)
		}
		if content[0] != 'b' {
			want = append(want, addr)
		}
	}

	bMarker, err := x.Marker("b")
	if err != nil {
		t.Fatal(err)
	}
	fs.failLinksFrom[bMarker] = true

	t.Run("best_effort", func(t *testing.T) {
		res, err := x.RetrieveAll(ctx)
		if err != nil {
			t.Fatal(err)
		}
		sortAddrs(want)
		if diff := cmp.Diff(want, res.Addresses, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
		if len(res.Failed) != 1 {
			t.Fatalf("got %d failed buckets, want 1", len(res.Failed))
		}
		if !errors.Is(res.Failed["b"], errInjected) {
			t.Errorf("got failure %v for bucket b, want injected failure", res.Failed["b"])
		}
		if !errors.Is(res.Err(), errInjected) {
			t.Errorf("got Err() %v, want injected failure", res.Err())
		}
	})

	t.Run("fail_fast", func(t *testing.T) {
		ff := newNoteIndex(t, fs, WithPolicy(FailFast), WithConcurrency(1))
		_, err := ff.RetrieveAll(ctx)
		if !errors.Is(err, errInjected) {
			t.Errorf("got error %v, want injected failure", err)
		}
	})
}

func TestPartialWrite(t *testing.T) {
	var (
		ctx = context.Background()
		fs  = &faultyStore{Store: mem.New(), failPutLink: true}
		x   = newNoteIndex(t, fs)
		n   = note{Content: "partial"}
	)

	_, err := x.Store(ctx, n)
	var perr *PartialWriteError
	if !errors.As(err, &perr) {
		t.Fatalf("got error %v, want PartialWriteError", err)
	}
	if perr.Stage != StageLink {
		t.Errorf("got stage %s, want %s", perr.Stage, StageLink)
	}
	if !errors.Is(err, errInjected) {
		t.Errorf("PartialWriteError does not wrap the store's error")
	}
	checkBucket(ctx, t, x, "p")

	// Storing again repairs the bucket.
	fs.failPutLink = false
	addr, err := x.Store(ctx, n)
	if err != nil {
		t.Fatal(err)
	}
	if addr != perr.Record {
		t.Errorf("got address %s, want %s", addr, perr.Record)
	}
	checkBucket(ctx, t, x, "p", addr)

	// A failure before the marker is written is not partial.
	fs.failPutType = markerType
	_, err = x.Store(ctx, note{Content: "nothing written"})
	if !errors.Is(err, errInjected) || errors.As(err, &perr) {
		t.Errorf("got error %v, want plain injected failure", err)
	}
}

func TestDerivationErrorNamesRecordType(t *testing.T) {
	x := newNoteIndex(t, mem.New())

	_, err := x.Store(context.Background(), note{})
	var derr *DerivationError
	if !errors.As(err, &derr) {
		t.Fatalf("got error %v, want DerivationError", err)
	}
	if derr.RecordType != noteType {
		t.Errorf("got record type %q, want %q", derr.RecordType, noteType)
	}
}

func TestGetWrongType(t *testing.T) {
	var (
		ctx = context.Background()
		s   = mem.New()
		x   = newNoteIndex(t, s)
	)
	addr, _, err := s.Put(ctx, bucketset.Entry{Type: "not-a-note", Content: []byte{0xa0}})
	if err != nil {
		t.Fatal(err)
	}
	_, err = x.Get(ctx, addr)
	if !errors.Is(err, ErrWrongType) {
		t.Errorf("got error %v, want ErrWrongType", err)
	}
}

func TestRegistry(t *testing.T) {
	reg := new(Registry)

	if err := reg.Register("a", "a-bucket"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register("a", "a-bucket"); err != nil {
		t.Errorf("re-registering the same pair: %s", err)
	}

	bad := []struct{ record, marker string }{
		{"a", "other-bucket"}, // record type already has a marker type
		{"b", "a-bucket"},     // marker type already taken
		{"a-bucket", "c"},     // record type is a marker type
		{"d", "a"},            // marker type is a record type
		{"e", "e"},            // same name
		{"", "f"},             // empty
	}
	for _, b := range bad {
		if err := reg.Register(b.record, b.marker); err == nil {
			t.Errorf("Register(%q, %q) succeeded, want error", b.record, b.marker)
		}
	}

	if _, err := reg.MarkerType("nope"); !errors.Is(err, ErrUnregistered) {
		t.Errorf("got error %v, want ErrUnregistered", err)
	}
	if !reg.IsMarkerType("a-bucket") || reg.IsMarkerType("a") {
		t.Error("IsMarkerType confused record and marker types")
	}

	if _, err := New[note](mem.New(), reg, "unregistered", NewField(noteKey, ASCIILetters)); !errors.Is(err, ErrUnregistered) {
		t.Errorf("got error %v creating index for unregistered type, want ErrUnregistered", err)
	}
}
