package bucket

import (
	"context"
	stderrs "errors"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/bucketset"
)

// Index stores records of type T in a bucketset.Store
// and retrieves them by bucket.
//
// An Index holds no mutable state,
// and is safe for concurrent use.
// Any number of Indexes,
// in any number of processes,
// may write to the same buckets:
// markers are idempotent and links only accumulate.
type Index[T any] struct {
	s          bucketset.Store
	recordType string
	markerType string
	strategy   Strategy[T]
	opts       options
}

// New produces an Index storing records of the given type in s,
// assigning them to buckets with strategy.
// The record type must be registered in reg.
//
// Writes of bucket markers are only protected against modification and deletion
// if s validates them with MarkerRules
// (see Registry.Install and validate.NewStore).
func New[T any](s bucketset.Store, reg *Registry, recordType string, strategy Strategy[T], opts ...Option) (*Index[T], error) {
	if strategy == nil {
		return nil, errors.New("nil strategy")
	}
	if h, ok := strategy.(HashPrefix[T]); ok && h.Bits > MaxPrefixBits {
		return nil, errors.Errorf("hash prefix of %d bits exceeds maximum of %d", h.Bits, MaxPrefixBits)
	}
	markerType, err := reg.MarkerType(recordType)
	if err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Index[T]{
		s:          s,
		recordType: recordType,
		markerType: markerType,
		strategy:   strategy,
		opts:       o,
	}, nil
}

// RecordType is the entry type of the records x stores.
func (x *Index[T]) RecordType() string {
	return x.recordType
}

func (x *Index[T]) entry(v T) (bucketset.Entry, error) {
	b, err := bucketset.Marshal(v)
	if err != nil {
		return bucketset.Entry{}, errors.Wrapf(err, "encoding %s record", x.recordType)
	}
	return bucketset.Entry{Type: x.recordType, Content: b}, nil
}

func (x *Index[T]) deriveKey(v T, addr bucketset.Address) (string, error) {
	key, err := x.strategy.DeriveKey(v, addr)
	var derr *DerivationError
	if errors.As(err, &derr) && derr.RecordType == "" {
		derr.RecordType = x.recordType
	}
	return key, err
}

// Key computes the bucket key of v without storing anything.
func (x *Index[T]) Key(v T) (string, error) {
	e, err := x.entry(v)
	if err != nil {
		return "", err
	}
	addr, err := x.s.Hash().Address(e)
	if err != nil {
		return "", errors.Wrapf(err, "computing address of %s record", x.recordType)
	}
	return x.deriveKey(v, addr)
}

// Marker computes the address of the marker for the bucket with the given key.
// The marker need not exist.
func (x *Index[T]) Marker(key string) (bucketset.Address, error) {
	m := Marker{RecordType: x.recordType, Key: key}
	addr, err := m.Address(x.s.Hash(), x.markerType)
	return addr, errors.Wrapf(err, "computing address of bucket %q", key)
}

// Store adds v to the store and to its bucket,
// creating the bucket's marker if necessary.
// It returns v's address.
//
// The marker,
// the record,
// and the link between them
// are written in that order and not atomically.
// If a write after the marker's fails,
// the error is a *PartialWriteError,
// and calling Store again with the same record completes the job.
func (x *Index[T]) Store(ctx context.Context, v T) (bucketset.Address, error) {
	e, err := x.entry(v)
	if err != nil {
		return bucketset.Zero, err
	}
	want, err := x.s.Hash().Address(e)
	if err != nil {
		return bucketset.Zero, errors.Wrapf(err, "computing address of %s record", x.recordType)
	}
	key, err := x.deriveKey(v, want)
	if err != nil {
		return bucketset.Zero, err
	}

	marker := Marker{RecordType: x.recordType, Key: key}
	markerAddr, markerAdded, err := x.s.Put(ctx, marker.Entry(x.markerType))
	if err != nil {
		return bucketset.Zero, errors.Wrapf(err, "storing marker for bucket %q", key)
	}

	addr, recordAdded, err := x.s.Put(ctx, e)
	if err != nil {
		return bucketset.Zero, &PartialWriteError{Stage: StageRecord, Marker: markerAddr, Err: err}
	}
	if addr != want {
		return bucketset.Zero, errors.Errorf("store addressed %s record as %s, expected %s", x.recordType, addr, want)
	}

	_, err = x.s.PutLink(ctx, bucketset.Link{From: markerAddr, To: addr, Tag: LinkTag})
	if err != nil {
		return bucketset.Zero, &PartialWriteError{Stage: StageLink, Marker: markerAddr, Record: addr, Err: err}
	}

	x.opts.logger.DebugContext(ctx, "stored record",
		"type", x.recordType,
		"key", key,
		"record", addr,
		"marker", markerAddr,
		"new_record", recordAdded,
		"new_bucket", markerAdded,
	)

	return addr, nil
}

// ErrWrongType is the error from Get for an entry that is not a record of the Index's type.
var ErrWrongType = errors.New("wrong entry type")

// Get fetches and decodes the record at addr.
func (x *Index[T]) Get(ctx context.Context, addr bucketset.Address) (T, error) {
	var v T

	e, err := x.s.Get(ctx, addr)
	if err != nil {
		return v, errors.Wrapf(err, "getting %s record %s", x.recordType, addr)
	}
	if e.Type != x.recordType {
		return v, errors.Wrapf(ErrWrongType, "entry %s has type %q, not %q", addr, e.Type, x.recordType)
	}
	err = bucketset.Unmarshal(e.Content, &v)
	return v, errors.Wrapf(err, "decoding %s record %s", x.recordType, addr)
}

// RetrieveByKey returns the addresses of the records in the bucket with the given key,
// sorted and without duplicates.
// A bucket that was never written to is empty,
// not an error.
func (x *Index[T]) RetrieveByKey(ctx context.Context, key string) ([]bucketset.Address, error) {
	markerAddr, err := x.Marker(key)
	if err != nil {
		return nil, err
	}

	seen := make(map[bucketset.Address]struct{})
	err = x.s.Links(ctx, markerAddr, LinkTag, func(to bucketset.Address) error {
		seen[to] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing bucket %q", key)
	}

	result := make([]bucketset.Address, 0, len(seen))
	for addr := range seen {
		result = append(result, addr)
	}
	sortAddrs(result)
	return result, nil
}

// Result is the outcome of RetrieveAll.
type Result struct {
	// Addresses are the records found,
	// sorted and without duplicates.
	Addresses []bucketset.Address

	// Failed maps the key of each bucket that could not be listed to its error.
	// It is empty under the FailFast policy.
	Failed map[string]error
}

// Err joins the errors in r.Failed,
// in key order,
// or returns nil if there are none.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	keys := make([]string, 0, len(r.Failed))
	for k := range r.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	errs := make([]error, 0, len(keys))
	for _, k := range keys {
		errs = append(errs, r.Failed[k])
	}
	return stderrs.Join(errs...)
}

// RetrieveAll returns the addresses of the records in every bucket the strategy enumerates.
//
// Buckets are listed concurrently,
// and not as a snapshot:
// records stored during the sweep may or may not appear.
// What happens when a bucket cannot be listed depends on the Policy
// (see WithPolicy).
func (x *Index[T]) RetrieveAll(ctx context.Context) (*Result, error) {
	switch x.opts.policy {
	case FailFast:
		return x.retrieveAllFailFast(ctx)
	case BestEffort:
		return x.retrieveAllBestEffort(ctx)
	}
	return nil, errors.Errorf("unknown policy %v", x.opts.policy)
}

func (x *Index[T]) retrieveAllFailFast(ctx context.Context) (*Result, error) {
	var (
		mu   sync.Mutex
		seen = make(map[bucketset.Address]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.opts.concurrency)

	for key := range x.strategy.Keys() {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			addrs, err := x.RetrieveByKey(gctx, key)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, addr := range addrs {
				seen[addr] = struct{}{}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Result{Addresses: setToSlice(seen), Failed: map[string]error{}}, nil
}

type bucketResult struct {
	key   string
	addrs []bucketset.Address
	err   error
}

func (x *Index[T]) retrieveAllBestEffort(ctx context.Context) (*Result, error) {
	p := pool.NewWithResults[bucketResult]().WithMaxGoroutines(x.opts.concurrency)

	for key := range x.strategy.Keys() {
		if ctx.Err() != nil {
			break
		}
		p.Go(func() bucketResult {
			addrs, err := x.RetrieveByKey(ctx, key)
			return bucketResult{key: key, addrs: addrs, err: err}
		})
	}
	results := p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		seen   = make(map[bucketset.Address]struct{})
		failed = make(map[string]error)
	)
	for _, r := range results {
		if r.err != nil {
			failed[r.key] = r.err
			x.opts.logger.WarnContext(ctx, "could not list bucket", "type", x.recordType, "key", r.key, "err", r.err)
			continue
		}
		for _, addr := range r.addrs {
			seen[addr] = struct{}{}
		}
	}

	return &Result{Addresses: setToSlice(seen), Failed: failed}, nil
}

func setToSlice(m map[bucketset.Address]struct{}) []bucketset.Address {
	result := make([]bucketset.Address, 0, len(m))
	for addr := range m {
		result = append(result, addr)
	}
	sortAddrs(result)
	return result
}

func sortAddrs(addrs []bucketset.Address) {
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })
}
