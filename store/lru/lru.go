// Package lru implements an entry store that acts as a least-recently-used cache for a nested entry store.
package lru

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/store"
)

var (
	_ bucketset.Store    = &Store{}
	_ bucketset.Replacer = &Store{}
)

// Store implements a memory-based least-recently-used cache for an entry store.
// It caches only entries, not links,
// since other writers may add links to the nested store at any time.
// Writes pass through to the nested store.
type Store struct {
	c *lru.Cache[bucketset.Address, bucketset.Entry]
	s bucketset.Store
}

// New produces a new Store backed by `s` and caching up to `size` entries.
func New(s bucketset.Store, size int) (*Store, error) {
	c, err := lru.New[bucketset.Address, bucketset.Entry](size)
	return &Store{s: s, c: c}, errors.Wrap(err, "creating cache")
}

// Hash implements bucketset.Store.
func (s *Store) Hash() bucketset.Hash {
	return s.s.Hash()
}

// Get gets the entry with address `addr`.
func (s *Store) Get(ctx context.Context, addr bucketset.Address) (bucketset.Entry, error) {
	if e, ok := s.c.Get(addr); ok {
		return e, nil
	}
	e, err := s.s.Get(ctx, addr)
	if err != nil {
		return bucketset.Entry{}, err
	}
	s.c.Add(addr, e)
	return e, nil
}

// Put adds an entry to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, e bucketset.Entry) (bucketset.Address, bool, error) {
	addr, added, err := s.s.Put(ctx, e)
	if err != nil {
		return addr, added, err
	}
	s.c.Add(addr, bucketset.Entry{Type: e.Type, Content: append([]byte(nil), e.Content...)})
	return addr, added, nil
}

// PutLink implements bucketset.Store.
func (s *Store) PutLink(ctx context.Context, l bucketset.Link) (bool, error) {
	return s.s.PutLink(ctx, l)
}

// Links implements bucketset.Getter.
func (s *Store) Links(ctx context.Context, from bucketset.Address, tag string, f func(bucketset.Address) error) error {
	return s.s.Links(ctx, from, tag, f)
}

// Replace implements bucketset.Replacer by delegating to the nested store,
// so that any Replacer it has (such as a validating store) is honored.
func (s *Store) Replace(ctx context.Context, old bucketset.Address, e bucketset.Entry) (bucketset.Address, error) {
	return bucketset.Replace(ctx, s.s, old, e)
}

// Remove implements bucketset.Store.
func (s *Store) Remove(ctx context.Context, addr bucketset.Address) error {
	err := s.s.Remove(ctx, addr)
	if err == nil {
		s.c.Remove(addr)
	}
	return err
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (bucketset.Store, error) {
		size, ok, err := store.Int(conf, "size")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New(`missing "size" parameter`)
		}
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, size)
	})
}
