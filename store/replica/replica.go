// Package replica implements a store that writes to several nested stores.
package replica

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/store"
)

var (
	_ bucketset.Store    = &Store{}
	_ bucketset.Replacer = &Store{}
)

// Store is an entry store that delegates reads and writes to two sets of nested stores.
// One set is synchronous:
// writes to all of these must succeed before a write to Store returns,
// and an error from any will cause the write to fail.
// Reads go only to these.
// The other set is asynchronous:
// a write queues the same write on these stores but does not wait for it to finish.
// However, if any asynchronous write encounters an error,
// the whole Store is put into an error state and further operations will fail.
type Store struct {
	sync   []bucketset.Store
	queues []chan<- op
	cancel context.CancelFunc
	wg     sync.WaitGroup
	failed chan struct{} // closed when err is set

	mu  sync.Mutex // protects err
	err error      // the error from an async goroutine, if any

	qmu    sync.RWMutex // protects closed and sending on queues
	closed bool
}

// op is a write queued for an asynchronous store.
type op func(context.Context, bucketset.Store) error

// New produces a new Store.
// The set of synchronous stores must be non-empty.
// The set of asynchronous stores may be empty.
// All stores must use the same hash function.
//
// If there are any asynchronous stores,
// goroutines are launched for them,
// and canceling the given context object causes those to exit,
// placing the Store in an error state.
// Call Close to wait for queued writes to finish.
//
// Normally, writes to asynchronous stores do not block the caller,
// but the queue for each nested store has a fixed length given by n,
// which must be 1 or greater.
// If any async store falls too far behind,
// writes block until all requests can be queued.
func New(ctx context.Context, syncStores, asyncStores []bucketset.Store, n int) (*Store, error) {
	if len(syncStores) == 0 {
		return nil, errors.New("no synchronous stores")
	}
	if n < 1 {
		return nil, errors.Errorf("queue length %d, must be at least 1", n)
	}
	h := syncStores[0].Hash()
	for _, s := range append(syncStores[1:len(syncStores):len(syncStores)], asyncStores...) {
		if s.Hash() != h {
			return nil, errors.Errorf("nested stores use both %s and %s", h, s.Hash())
		}
	}

	result := &Store{sync: syncStores, failed: make(chan struct{})}

	if len(asyncStores) == 0 {
		return result, nil
	}

	ctx, result.cancel = context.WithCancel(ctx)

	for _, a := range asyncStores {
		ops := make(chan op, n)
		result.queues = append(result.queues, ops)

		result.wg.Add(1)
		go func() {
			defer result.wg.Done()
			result.runAsync(ctx, a, ops)
		}()
	}

	return result, nil
}

// Runs as a goroutine until ops is closed, ctx is canceled, or an error occurs.
func (s *Store) runAsync(ctx context.Context, nested bucketset.Store, ops <-chan op) {
	for {
		select {
		case <-ctx.Done():
			s.fail(ctx.Err())
			return

		case f, ok := <-ops:
			if !ok {
				return
			}
			if err := f(ctx, nested); err != nil {
				s.fail(err)
				return
			}
		}
	}
}

// fail puts s into an error state.
func (s *Store) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	s.err = err
	close(s.failed)
	s.cancel()
}

func (s *Store) checkErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return errors.Wrap(s.err, "in async-store goroutine")
	}
	return nil
}

// enqueue queues f for every asynchronous store.
func (s *Store) enqueue(ctx context.Context, f op) error {
	s.qmu.RLock()
	defer s.qmu.RUnlock()

	if s.closed {
		return errors.New("store is closed")
	}
	for _, q := range s.queues {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.failed:
			return s.checkErr()
		case q <- f:
		}
	}
	return nil
}

// Close stops accepting writes,
// waits for queued asynchronous writes to finish,
// and returns the first error any of them encountered.
func (s *Store) Close() error {
	s.qmu.Lock()
	if !s.closed {
		s.closed = true
		for _, q := range s.queues {
			close(q)
		}
	}
	s.qmu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil && s.err == nil {
		s.cancel()
	}
	return s.err
}

// Hash implements bucketset.Store.
func (s *Store) Hash() bucketset.Hash {
	return s.sync[0].Hash()
}

// Get implements bucketset.Getter.
// It delegates the request to all of the synchronous stores in s,
// returning the result from the first one to respond without error
// and canceling the request to the others.
// If all synchronous stores respond with an error,
// the result is ErrRemoved if any store reported that,
// and otherwise the first error.
func (s *Store) Get(ctx context.Context, addr bucketset.Address) (bucketset.Entry, error) {
	if err := s.checkErr(); err != nil {
		return bucketset.Entry{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		e   bucketset.Entry
		err error
	}

	ch := make(chan result, len(s.sync))
	for _, nested := range s.sync {
		go func() {
			e, err := nested.Get(ctx, addr)
			ch <- result{e: e, err: err}
		}()
	}

	var firstErr error
	for range s.sync {
		r := <-ch
		if r.err == nil {
			return r.e, nil
		}
		switch {
		case errors.Is(r.err, bucketset.ErrRemoved):
			firstErr = r.err
		case firstErr == nil:
			firstErr = r.err
		}
	}
	return bucketset.Entry{}, firstErr
}

// Links implements bucketset.Getter.
// It delegates the request to all of the synchronous stores in s
// and calls f once for each target in the union of their results.
func (s *Store) Links(ctx context.Context, from bucketset.Address, tag string, f func(bucketset.Address) error) error {
	if err := s.checkErr(); err != nil {
		return err
	}

	targets := make([][]bucketset.Address, len(s.sync))

	g, gctx := errgroup.WithContext(ctx)
	for i, nested := range s.sync {
		g.Go(func() error {
			return nested.Links(gctx, from, tag, func(to bucketset.Address) error {
				targets[i] = append(targets[i], to)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	seen := make(map[bucketset.Address]bool)
	for _, tos := range targets {
		for _, to := range tos {
			if seen[to] {
				continue
			}
			seen[to] = true
			if err := f(to); err != nil {
				return err
			}
		}
	}
	return nil
}

// Put implements bucketset.Store.
// The entry is stored in all synchronous nested stores.
// An error from any of them causes Put to return an error.
// The added result is true if any synchronous store had to add it.
//
// A request to write the entry is queued for any asynchronous nested stores.
func (s *Store) Put(ctx context.Context, e bucketset.Entry) (bucketset.Address, bool, error) {
	if err := s.checkErr(); err != nil {
		return bucketset.Zero, false, err
	}

	var (
		addrs = make([]bucketset.Address, len(s.sync))
		added = make([]bool, len(s.sync))
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, nested := range s.sync {
		g.Go(func() (err error) {
			addrs[i], added[i], err = nested.Put(gctx, e)
			return err
		})
	}

	err := s.enqueue(ctx, func(ctx context.Context, nested bucketset.Store) error {
		_, _, err := nested.Put(ctx, e)
		return err
	})
	if err != nil {
		return bucketset.Zero, false, err
	}

	if err = g.Wait(); err != nil {
		return bucketset.Zero, false, err
	}

	var anyAdded bool
	for _, a := range added {
		anyAdded = anyAdded || a
	}
	return addrs[0], anyAdded, nil
}

// PutLink implements bucketset.Store.
// It works like Put.
func (s *Store) PutLink(ctx context.Context, l bucketset.Link) (bool, error) {
	if err := s.checkErr(); err != nil {
		return false, err
	}

	added := make([]bool, len(s.sync))

	g, gctx := errgroup.WithContext(ctx)
	for i, nested := range s.sync {
		g.Go(func() (err error) {
			added[i], err = nested.PutLink(gctx, l)
			return err
		})
	}

	err := s.enqueue(ctx, func(ctx context.Context, nested bucketset.Store) error {
		_, err := nested.PutLink(ctx, l)
		return err
	})
	if err != nil {
		return false, err
	}

	if err = g.Wait(); err != nil {
		return false, err
	}

	var anyAdded bool
	for _, a := range added {
		anyAdded = anyAdded || a
	}
	return anyAdded, nil
}

// Replace implements bucketset.Replacer.
// Each nested store performs the replacement itself,
// subject to any validation it does.
func (s *Store) Replace(ctx context.Context, old bucketset.Address, e bucketset.Entry) (bucketset.Address, error) {
	if err := s.checkErr(); err != nil {
		return bucketset.Zero, err
	}

	addrs := make([]bucketset.Address, len(s.sync))

	g, gctx := errgroup.WithContext(ctx)
	for i, nested := range s.sync {
		g.Go(func() (err error) {
			addrs[i], err = bucketset.Replace(gctx, nested, old, e)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return bucketset.Zero, err
	}

	err := s.enqueue(ctx, func(ctx context.Context, nested bucketset.Store) error {
		_, err := bucketset.Replace(ctx, nested, old, e)
		return err
	})
	return addrs[0], err
}

// Remove implements bucketset.Store.
// The entry is removed from every synchronous store that has it.
// It is ErrNotFound only if none of them does.
func (s *Store) Remove(ctx context.Context, addr bucketset.Address) error {
	if err := s.checkErr(); err != nil {
		return err
	}

	found := make([]bool, len(s.sync))

	g, gctx := errgroup.WithContext(ctx)
	for i, nested := range s.sync {
		g.Go(func() error {
			err := nested.Remove(gctx, addr)
			if errors.Is(err, bucketset.ErrNotFound) {
				return nil
			}
			found[i] = err == nil
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var anyFound bool
	for _, f := range found {
		anyFound = anyFound || f
	}
	if !anyFound {
		return bucketset.ErrNotFound
	}

	return s.enqueue(ctx, func(ctx context.Context, nested bucketset.Store) error {
		err := nested.Remove(ctx, addr)
		if errors.Is(err, bucketset.ErrNotFound) {
			return nil
		}
		return err
	})
}

func nestedList(ctx context.Context, conf map[string]interface{}, key string) ([]bucketset.Store, error) {
	v, ok := conf[key]
	if !ok {
		return nil, nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, errors.Errorf(`%q parameter has type %T, want list`, key, v)
	}
	var result []bucketset.Store
	for i, item := range items {
		nestedConf, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf(`%q item %d has type %T, want object`, key, i, item)
		}
		s, err := store.FromConfig(ctx, nestedConf)
		if err != nil {
			return nil, errors.Wrapf(err, "creating %s store %d", key, i)
		}
		result = append(result, s)
	}
	return result, nil
}

func init() {
	store.Register("replica", func(ctx context.Context, conf map[string]interface{}) (bucketset.Store, error) {
		syncStores, err := nestedList(ctx, conf, "sync")
		if err != nil {
			return nil, err
		}
		if len(syncStores) == 0 {
			return nil, errors.New(`missing "sync" parameter`)
		}
		asyncStores, err := nestedList(ctx, conf, "async")
		if err != nil {
			return nil, err
		}

		queueLen, ok, err := store.Int(conf, "queuelen")
		if err != nil {
			return nil, err
		}
		if !ok {
			queueLen = 10
		}

		return New(ctx, syncStores, asyncStores, queueLen)
	})
}
