package validate

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/store"
)

var (
	_ bucketset.Store    = &Store{}
	_ bucketset.Replacer = &Store{}
)

// Store is a bucketset.Store that checks every write against a Registry
// before passing it to a nested store.
type Store struct {
	s bucketset.Store
	r *Registry
}

// NewStore produces a new Store validating writes to s with the rules in r.
func NewStore(s bucketset.Store, r *Registry) *Store {
	return &Store{s: s, r: r}
}

// Get implements bucketset.Getter.
func (s *Store) Get(ctx context.Context, addr bucketset.Address) (bucketset.Entry, error) {
	return s.s.Get(ctx, addr)
}

// Links implements bucketset.Getter.
func (s *Store) Links(ctx context.Context, from bucketset.Address, tag string, f func(bucketset.Address) error) error {
	return s.s.Links(ctx, from, tag, f)
}

// Hash implements bucketset.Store.
func (s *Store) Hash() bucketset.Hash {
	return s.s.Hash()
}

// Put validates the creation of e and then stores it.
func (s *Store) Put(ctx context.Context, e bucketset.Entry) (bucketset.Address, bool, error) {
	err := s.r.Check(ctx, Op{Kind: Create, Type: e.Type, Entry: e})
	if err != nil {
		return bucketset.Zero, false, err
	}
	return s.s.Put(ctx, e)
}

// PutLink implements bucketset.Store.
func (s *Store) PutLink(ctx context.Context, l bucketset.Link) (bool, error) {
	return s.s.PutLink(ctx, l)
}

// Replace validates the modification of the entry at old and then performs it.
func (s *Store) Replace(ctx context.Context, old bucketset.Address, e bucketset.Entry) (bucketset.Address, error) {
	oldEntry, err := s.s.Get(ctx, old)
	if err != nil {
		return bucketset.Zero, errors.Wrapf(err, "getting entry %s to replace", old)
	}
	err = s.r.Check(ctx, Op{Kind: Modify, Type: oldEntry.Type, Entry: e, Old: oldEntry, OldAddr: old})
	if err != nil {
		return bucketset.Zero, err
	}
	return bucketset.Replace(ctx, s.s, old, e)
}

// Remove validates the deletion of the entry at addr and then performs it.
func (s *Store) Remove(ctx context.Context, addr bucketset.Address) error {
	oldEntry, err := s.s.Get(ctx, addr)
	if errors.Is(err, bucketset.ErrRemoved) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "getting entry %s to remove", addr)
	}
	err = s.r.Check(ctx, Op{Kind: Delete, Type: oldEntry.Type, Old: oldEntry, OldAddr: addr})
	if err != nil {
		return err
	}
	return s.s.Remove(ctx, addr)
}

// Nested returns the store that s wraps.
func (s *Store) Nested() bucketset.Store {
	return s.s
}

// Registry returns the rules s checks writes against.
func (s *Store) Registry() *Registry {
	return s.r
}

func init() {
	// A "validate" store is created with an empty registry;
	// callers install rules through Registry.
	store.Register("validate", func(ctx context.Context, conf map[string]interface{}) (bucketset.Store, error) {
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return NewStore(nested, new(Registry)), nil
	})
}
