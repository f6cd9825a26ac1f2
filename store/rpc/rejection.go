package rpc

import (
	"strconv"

	"google.golang.org/grpc/metadata"

	"github.com/bobg/bucketset/validate"
)

// A rejected write travels as codes.PermissionDenied
// with the fields of the validate.Rejection in the trailer.
// The -bin suffix lets the values hold arbitrary bytes.
const (
	rejectionKindKey   = "bucketset-rejection-kind-bin"
	rejectionTypeKey   = "bucketset-rejection-type-bin"
	rejectionReasonKey = "bucketset-rejection-reason-bin"
)

func rejectionTrailer(r *validate.Rejection) metadata.MD {
	return metadata.Pairs(
		rejectionKindKey, strconv.Itoa(int(r.Kind)),
		rejectionTypeKey, r.Type,
		rejectionReasonKey, r.Reason,
	)
}

// rejectionFromTrailer rebuilds the validate.Rejection in md,
// or returns nil if there is none.
func rejectionFromTrailer(md metadata.MD) *validate.Rejection {
	kinds := md.Get(rejectionKindKey)
	if len(kinds) != 1 {
		return nil
	}
	kind, err := strconv.Atoi(kinds[0])
	if err != nil {
		return nil
	}
	r := &validate.Rejection{Kind: validate.Kind(kind)}
	if v := md.Get(rejectionTypeKey); len(v) == 1 {
		r.Type = v[0]
	}
	if v := md.Get(rejectionReasonKey); len(v) == 1 {
		r.Reason = v[0]
	}
	return r
}
