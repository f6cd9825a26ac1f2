package rpc

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/validate"
)

var _ StoreServer = &Server{}

// Server serves a bucketset.Store.
// Wrap the store in a validate.Store to enforce write rules on remote clients.
type Server struct {
	s bucketset.Store
}

func NewServer(s bucketset.Store) *Server {
	return &Server{s: s}
}

// linksBatch is the most targets sent in one Links response.
const linksBatch = 128

// toStatus maps store errors to gRPC status errors,
// for the client to map back.
// A rejection's details go in the trailer of the call in ctx.
func toStatus(ctx context.Context, err error) error {
	var r *validate.Rejection
	if errors.As(err, &r) {
		// This fails only outside a gRPC call,
		// where there is no trailer to carry the details.
		_ = grpc.SetTrailer(ctx, rejectionTrailer(r))
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, bucketset.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, bucketset.ErrRemoved):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, validate.ErrRejected):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Unknown, err.Error())
}

func (s *Server) Hash(context.Context, *HashRequest) (*HashResponse, error) {
	return &HashResponse{Hash: s.s.Hash()}, nil
}

func (s *Server) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	e, err := s.s.Get(ctx, req.Addr)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &GetResponse{Entry: e}, nil
}

func (s *Server) Put(ctx context.Context, req *PutRequest) (*PutResponse, error) {
	addr, added, err := s.s.Put(ctx, req.Entry)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &PutResponse{Addr: addr, Added: added}, nil
}

func (s *Server) PutLink(ctx context.Context, req *PutLinkRequest) (*PutLinkResponse, error) {
	added, err := s.s.PutLink(ctx, req.Link)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &PutLinkResponse{Added: added}, nil
}

func (s *Server) Links(req *LinksRequest, stream grpc.ServerStream) error {
	var batch []bucketset.Address
	err := s.s.Links(stream.Context(), req.From, req.Tag, func(to bucketset.Address) error {
		batch = append(batch, to)
		if len(batch) < linksBatch {
			return nil
		}
		err := stream.SendMsg(&LinksResponse{To: batch})
		batch = nil
		return err
	})
	if err != nil {
		return toStatus(stream.Context(), err)
	}
	if len(batch) > 0 {
		return stream.SendMsg(&LinksResponse{To: batch})
	}
	return nil
}

func (s *Server) Replace(ctx context.Context, req *ReplaceRequest) (*ReplaceResponse, error) {
	addr, err := bucketset.Replace(ctx, s.s, req.Old, req.Entry)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &ReplaceResponse{Addr: addr}, nil
}

func (s *Server) Remove(ctx context.Context, req *RemoveRequest) (*RemoveResponse, error) {
	if err := s.s.Remove(ctx, req.Addr); err != nil {
		return nil, toStatus(ctx, err)
	}
	return &RemoveResponse{}, nil
}
