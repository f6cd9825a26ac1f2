// Package mem implements an in-memory entry store.
package mem

import (
	"context"
	"sync"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/store"
)

var _ bucketset.Store = &Store{}

type linkKey struct {
	from bucketset.Address
	tag  string
}

// Store is a memory-based implementation of an entry store.
type Store struct {
	hash bucketset.Hash

	mu      sync.Mutex
	entries map[bucketset.Address]bucketset.Entry
	links   map[linkKey]map[bucketset.Address]struct{}
	removed map[bucketset.Address]struct{}
}

// New produces a new Store.
func New(opts ...bucketset.Option) *Store {
	o := bucketset.Configure(opts...)
	return &Store{
		hash:    o.Hash,
		entries: make(map[bucketset.Address]bucketset.Entry),
		links:   make(map[linkKey]map[bucketset.Address]struct{}),
		removed: make(map[bucketset.Address]struct{}),
	}
}

// Hash implements bucketset.Store.
func (s *Store) Hash() bucketset.Hash {
	return s.hash
}

// Get gets the entry with address `addr`.
func (s *Store) Get(_ context.Context, addr bucketset.Address) (bucketset.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.removed[addr]; ok {
		return bucketset.Entry{}, bucketset.ErrRemoved
	}
	if e, ok := s.entries[addr]; ok {
		return e, nil
	}
	return bucketset.Entry{}, bucketset.ErrNotFound
}

// Put adds an entry to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, e bucketset.Entry) (bucketset.Address, bool, error) {
	addr, err := s.hash.Address(e)
	if err != nil {
		return bucketset.Zero, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[addr]; ok {
		return addr, false, nil
	}
	s.entries[addr] = bucketset.Entry{
		Type:    e.Type,
		Content: append([]byte(nil), e.Content...),
	}
	return addr, true, nil
}

// PutLink adds a link to the store if it wasn't already present.
func (s *Store) PutLink(_ context.Context, l bucketset.Link) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := linkKey{from: l.From, tag: l.Tag}
	targets, ok := s.links[k]
	if !ok {
		targets = make(map[bucketset.Address]struct{})
		s.links[k] = targets
	}
	if _, ok := targets[l.To]; ok {
		return false, nil
	}
	targets[l.To] = struct{}{}
	return true, nil
}

// Links calls f for each target of a link from `from` with the given tag.
func (s *Store) Links(ctx context.Context, from bucketset.Address, tag string, f func(bucketset.Address) error) error {
	s.mu.Lock()
	targets := make([]bucketset.Address, 0, len(s.links[linkKey{from: from, tag: tag}]))
	for to := range s.links[linkKey{from: from, tag: tag}] {
		targets = append(targets, to)
	}
	s.mu.Unlock()

	for _, to := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f(to); err != nil {
			return err
		}
	}
	return nil
}

// Remove marks the entry at addr as removed.
func (s *Store) Remove(_ context.Context, addr bucketset.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[addr]; !ok {
		return bucketset.ErrNotFound
	}
	s.removed[addr] = struct{}{}
	return nil
}

func init() {
	store.Register("mem", func(_ context.Context, conf map[string]interface{}) (bucketset.Store, error) {
		opts, err := store.Options(conf)
		if err != nil {
			return nil, err
		}
		return New(opts...), nil
	})
}
