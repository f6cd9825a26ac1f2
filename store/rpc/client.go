package rpc

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/store"
	"github.com/bobg/bucketset/validate"
)

var (
	_ bucketset.Store    = &Client{}
	_ bucketset.Replacer = &Client{}
)

// Client is a bucketset.Store backed by a remote Server.
type Client struct {
	cc   grpc.ClientConnInterface
	hash bucketset.Hash
}

// NewClient produces a Client on cc.
// It asks the server which hash function it uses,
// so that the client can check the addresses it is sent.
func NewClient(ctx context.Context, cc grpc.ClientConnInterface) (*Client, error) {
	c := &Client{cc: cc}
	var resp HashResponse
	if err := c.invoke(ctx, "Hash", &HashRequest{}, &resp); err != nil {
		return nil, errors.Wrap(err, "getting server hash function")
	}
	c.hash = resp.Hash
	return c, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	var trailer metadata.MD
	err := c.cc.Invoke(ctx, fullMethod(method), req, resp, grpc.CallContentSubtype(codecName), grpc.Trailer(&trailer))
	return fromStatus(err, trailer)
}

// fromStatus maps the status errors produced by toStatus back to store errors.
// A rejection is rebuilt from trailer when it is there.
func fromStatus(err error, trailer metadata.MD) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return bucketset.ErrNotFound
	case codes.FailedPrecondition:
		return bucketset.ErrRemoved
	case codes.PermissionDenied:
		if r := rejectionFromTrailer(trailer); r != nil {
			return r
		}
		return errors.Wrap(validate.ErrRejected, st.Message())
	case codes.Canceled:
		return errors.Wrap(context.Canceled, st.Message())
	case codes.DeadlineExceeded:
		return errors.Wrap(context.DeadlineExceeded, st.Message())
	}
	return err
}

// Hash implements bucketset.Store.
func (c *Client) Hash() bucketset.Hash {
	return c.hash
}

func (c *Client) check(got bucketset.Address, e bucketset.Entry) error {
	want, err := c.hash.Address(e)
	if err != nil {
		return err
	}
	if got != want {
		return errors.Errorf("server addressed %s entry as %s, expected %s", e.Type, got, want)
	}
	return nil
}

// Get implements bucketset.Getter.
func (c *Client) Get(ctx context.Context, addr bucketset.Address) (bucketset.Entry, error) {
	var resp GetResponse
	if err := c.invoke(ctx, "Get", &GetRequest{Addr: addr}, &resp); err != nil {
		return bucketset.Entry{}, err
	}
	if err := c.check(addr, resp.Entry); err != nil {
		return bucketset.Entry{}, err
	}
	return resp.Entry, nil
}

// Put implements bucketset.Store.
func (c *Client) Put(ctx context.Context, e bucketset.Entry) (bucketset.Address, bool, error) {
	var resp PutResponse
	if err := c.invoke(ctx, "Put", &PutRequest{Entry: e}, &resp); err != nil {
		return bucketset.Zero, false, err
	}
	if err := c.check(resp.Addr, e); err != nil {
		return bucketset.Zero, false, err
	}
	return resp.Addr, resp.Added, nil
}

// PutLink implements bucketset.Store.
func (c *Client) PutLink(ctx context.Context, l bucketset.Link) (bool, error) {
	var resp PutLinkResponse
	if err := c.invoke(ctx, "PutLink", &PutLinkRequest{Link: l}, &resp); err != nil {
		return false, err
	}
	return resp.Added, nil
}

// Links implements bucketset.Getter.
func (c *Client) Links(ctx context.Context, from bucketset.Address, tag string, f func(bucketset.Address) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], fullMethod("Links"), grpc.CallContentSubtype(codecName))
	if err != nil {
		return fromStatus(err, nil)
	}
	if err = stream.SendMsg(&LinksRequest{From: from, Tag: tag}); err != nil {
		return fromStatus(err, nil)
	}
	if err = stream.CloseSend(); err != nil {
		return fromStatus(err, nil)
	}
	for {
		var resp LinksResponse
		err := stream.RecvMsg(&resp)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(fromStatus(err, stream.Trailer()), "receiving response")
		}
		for _, to := range resp.To {
			if err := f(to); err != nil {
				return err
			}
		}
	}
}

// Replace implements bucketset.Replacer.
// The server performs the replacement,
// subject to any validation it does.
func (c *Client) Replace(ctx context.Context, old bucketset.Address, e bucketset.Entry) (bucketset.Address, error) {
	var resp ReplaceResponse
	if err := c.invoke(ctx, "Replace", &ReplaceRequest{Old: old, Entry: e}, &resp); err != nil {
		return bucketset.Zero, err
	}
	if err := c.check(resp.Addr, e); err != nil {
		return bucketset.Zero, err
	}
	return resp.Addr, nil
}

// Remove implements bucketset.Store.
func (c *Client) Remove(ctx context.Context, addr bucketset.Address) error {
	return c.invoke(ctx, "Remove", &RemoveRequest{Addr: addr}, &RemoveResponse{})
}

func init() {
	store.Register("rpc", func(ctx context.Context, conf map[string]interface{}) (bucketset.Store, error) {
		addr, ok := conf["addr"].(string)
		if !ok {
			return nil, errors.New(`missing "addr" parameter`)
		}
		creds := credentials.NewClientTLSFromCert(nil, "")
		if insecureConn, _ := conf["insecure"].(bool); insecureConn {
			creds = insecure.NewCredentials()
		}
		cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
		if err != nil {
			return nil, errors.Wrapf(err, "connecting to %s", addr)
		}
		return NewClient(ctx, cc)
	})
}
