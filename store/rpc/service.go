// Package rpc serves an entry store over gRPC
// and implements a store that is a client of such a server.
//
// Messages are CBOR-encoded with the same deterministic encoding that addresses entries,
// so the service needs no generated code.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/bobg/bucketset"
)

const (
	serviceName = "bucketset.Store"
	codecName   = "cbor"
)

type cborCodec struct{}

func (cborCodec) Marshal(v any) ([]byte, error)      { return bucketset.Marshal(v) }
func (cborCodec) Unmarshal(data []byte, v any) error { return bucketset.Unmarshal(data, v) }
func (cborCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(cborCodec{})
}

type (
	HashRequest  struct{}
	HashResponse struct {
		Hash bucketset.Hash `cbor:"1,keyasint"`
	}

	GetRequest struct {
		Addr bucketset.Address `cbor:"1,keyasint"`
	}
	GetResponse struct {
		Entry bucketset.Entry `cbor:"1,keyasint"`
	}

	PutRequest struct {
		Entry bucketset.Entry `cbor:"1,keyasint"`
	}
	PutResponse struct {
		Addr  bucketset.Address `cbor:"1,keyasint"`
		Added bool              `cbor:"2,keyasint"`
	}

	PutLinkRequest struct {
		Link bucketset.Link `cbor:"1,keyasint"`
	}
	PutLinkResponse struct {
		Added bool `cbor:"1,keyasint"`
	}

	LinksRequest struct {
		From bucketset.Address `cbor:"1,keyasint"`
		Tag  string            `cbor:"2,keyasint"`
	}
	LinksResponse struct {
		To []bucketset.Address `cbor:"1,keyasint"`
	}

	ReplaceRequest struct {
		Old   bucketset.Address `cbor:"1,keyasint"`
		Entry bucketset.Entry   `cbor:"2,keyasint"`
	}
	ReplaceResponse struct {
		Addr bucketset.Address `cbor:"1,keyasint"`
	}

	RemoveRequest struct {
		Addr bucketset.Address `cbor:"1,keyasint"`
	}
	RemoveResponse struct{}
)

// StoreServer is the server API for the bucketset.Store service.
type StoreServer interface {
	Hash(context.Context, *HashRequest) (*HashResponse, error)
	Get(context.Context, *GetRequest) (*GetResponse, error)
	Put(context.Context, *PutRequest) (*PutResponse, error)
	PutLink(context.Context, *PutLinkRequest) (*PutLinkResponse, error)
	Links(*LinksRequest, grpc.ServerStream) error
	Replace(context.Context, *ReplaceRequest) (*ReplaceResponse, error)
	Remove(context.Context, *RemoveRequest) (*RemoveResponse, error)
}

// RegisterStoreServer registers srv with s.
func RegisterStoreServer(s grpc.ServiceRegistrar, srv StoreServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*StoreServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Hash", StoreServer.Hash),
		unary("Get", StoreServer.Get),
		unary("Put", StoreServer.Put),
		unary("PutLink", StoreServer.PutLink),
		unary("Replace", StoreServer.Replace),
		unary("Remove", StoreServer.Remove),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    "Links",
		Handler:       linksHandler,
		ServerStreams: true,
	}},
	Metadata: "bucketset/store/rpc",
}

func fullMethod(name string) string {
	return "/" + serviceName + "/" + name
}

func unary[Req, Resp any](name string, f func(StoreServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			ss := srv.(StoreServer)
			if interceptor == nil {
				return f(ss, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return f(ss, ctx, req.(*Req))
			})
		},
	}
}

func linksHandler(srv any, stream grpc.ServerStream) error {
	req := new(LinksRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(StoreServer).Links(req, stream)
}
