package rpc

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/bucket"
	"github.com/bobg/bucketset/store/mem"
	"github.com/bobg/bucketset/testutil"
	"github.com/bobg/bucketset/validate"
)

// newTestClient serves s over an in-memory connection
// and returns a Client for it.
func newTestClient(ctx context.Context, t *testing.T, s bucketset.Store) *Client {
	grpcSrv := grpc.NewServer()
	RegisterStoreServer(grpcSrv, NewServer(s))
	t.Cleanup(grpcSrv.Stop)

	l := bufconn.Listen(1 << 16)
	go grpcSrv.Serve(l)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return l.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cc.Close() })

	c, err := NewClient(ctx, cc)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRPC(t *testing.T) {
	ctx := context.Background()
	testutil.All(ctx, t, newTestClient(ctx, t, mem.New()))
}

func TestHash(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(ctx, t, mem.New(bucketset.WithHash(bucketset.BLAKE3)))
	if c.Hash() != bucketset.BLAKE3 {
		t.Errorf("got hash %s, want blake3", c.Hash())
	}
	testutil.Entries(ctx, t, c)
}

func TestManyLinks(t *testing.T) {
	var (
		ctx  = context.Background()
		c    = newTestClient(ctx, t, mem.New())
		from = bucketset.Address("from")
		n    = 3*linksBatch + 7
	)
	for i := 0; i < n; i++ {
		to := bucketset.Address(fmt.Sprintf("to-%04d", i))
		if _, err := c.PutLink(ctx, bucketset.Link{From: from, To: to, Tag: "many"}); err != nil {
			t.Fatal(err)
		}
	}
	var got int
	err := c.Links(ctx, from, "many", func(bucketset.Address) error {
		got++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != n {
		t.Errorf("got %d links, want %d", got, n)
	}

	// An error from the callback ends the stream early.
	stop := errors.New("stop")
	err = c.Links(ctx, from, "many", func(bucketset.Address) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("got error %v, want stop", err)
	}
}

func TestRemoteValidation(t *testing.T) {
	var (
		ctx   = context.Background()
		reg   = new(bucket.Registry)
		rules = new(validate.Registry)
	)
	if err := reg.Register("note", "note-bucket"); err != nil {
		t.Fatal(err)
	}
	reg.Install(rules)

	c := newTestClient(ctx, t, validate.NewStore(mem.New(), rules))

	x, err := bucket.New[string](c, reg, "note", bucket.NewField(bucket.FirstRune, bucket.ASCIILetters))
	if err != nil {
		t.Fatal(err)
	}
	addr, err := x.Store(ctx, "remote note")
	if err != nil {
		t.Fatal(err)
	}
	got, err := x.RetrieveByKey(ctx, "r")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != addr {
		t.Errorf("got %v, want [%s]", got, addr)
	}

	marker, err := x.Marker("r")
	if err != nil {
		t.Fatal(err)
	}
	err = c.Remove(ctx, marker)
	checkRejection(t, err, validate.Delete, "note-bucket")

	_, err = bucketset.Replace(ctx, c, marker, bucketset.Entry{Type: "note-bucket", Content: []byte("s")})
	checkRejection(t, err, validate.Modify, "note-bucket")
}

// checkRejection checks that err is a validate.Rejection
// carrying the kind and type the server reported.
func checkRejection(t *testing.T, err error, kind validate.Kind, typ string) {
	t.Helper()

	if !errors.Is(err, validate.ErrRejected) {
		t.Fatalf("got error %v, want rejection", err)
	}
	var r *validate.Rejection
	if !errors.As(err, &r) {
		t.Fatalf("got error %T (%v), want *validate.Rejection", err, err)
	}
	if r.Kind != kind || r.Type != typ || r.Reason == "" {
		t.Errorf("got rejection %+v, want kind %s and type %s with a reason", *r, kind, typ)
	}
}

func TestRejectionTrailer(t *testing.T) {
	want := &validate.Rejection{Kind: validate.Delete, Type: "caf\u00e9-bucket", Reason: "deleting buckets not permitted"}
	got := rejectionFromTrailer(rejectionTrailer(want))
	if got == nil || *got != *want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if r := rejectionFromTrailer(nil); r != nil {
		t.Errorf("got %+v from empty trailer, want nil", r)
	}
}
