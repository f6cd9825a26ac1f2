// Package pebble implements an entry store in a Pebble key-value database.
//
// Keys are laid out as follows:
//
//	e<addr>                       the encoded entry at addr
//	t<addr>                       tombstone for a removed entry
//	l<from> 0x00 <tag> 0x00 <to>  a link
//
// Addresses are base58 text and never contain a zero byte.
// Tags may not contain one either.
package pebble

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/store"
)

var _ bucketset.Store = &Store{}

// ErrBadTag is the error for a link tag containing a zero byte.
var ErrBadTag = errors.New("link tag contains zero byte")

// Store is a Pebble-based entry store.
type Store struct {
	db   *pebble.DB
	hash bucketset.Hash

	// Serializes check-then-set in Put and PutLink.
	mu sync.Mutex
}

// New produces a new Store using db for storage.
func New(db *pebble.DB, opts ...bucketset.Option) *Store {
	o := bucketset.Configure(opts...)
	return &Store{db: db, hash: o.Hash}
}

// Open opens (creating if necessary) the Pebble database in dir
// and produces a Store on it.
// Close the Store when done.
func Open(dir string, popts *pebble.Options, opts ...bucketset.Option) (*Store, error) {
	db, err := pebble.Open(dir, popts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening pebble database in %s", dir)
	}
	return New(db, opts...), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Hash implements bucketset.Store.
func (s *Store) Hash() bucketset.Hash {
	return s.hash
}

func entryKey(addr bucketset.Address) []byte {
	return append([]byte{'e'}, string(addr)...)
}

func tombstoneKey(addr bucketset.Address) []byte {
	return append([]byte{'t'}, string(addr)...)
}

func linkPrefix(from bucketset.Address, tag string) []byte {
	k := make([]byte, 0, 3+len(from)+len(tag))
	k = append(k, 'l')
	k = append(k, string(from)...)
	k = append(k, 0)
	k = append(k, tag...)
	return append(k, 0)
}

// prefixEnd is the smallest key greater than every key with the given prefix.
func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *Store) has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

// Get gets the entry with address `addr`.
func (s *Store) Get(_ context.Context, addr bucketset.Address) (bucketset.Entry, error) {
	val, closer, err := s.db.Get(entryKey(addr))
	if errors.Is(err, pebble.ErrNotFound) {
		return bucketset.Entry{}, bucketset.ErrNotFound
	}
	if err != nil {
		return bucketset.Entry{}, errors.Wrapf(err, "getting entry %s", addr)
	}
	e, err := bucketset.DecodeEntry(val)
	closer.Close()
	if err != nil {
		return bucketset.Entry{}, errors.Wrapf(err, "decoding entry %s", addr)
	}

	removed, err := s.has(tombstoneKey(addr))
	if err != nil {
		return bucketset.Entry{}, errors.Wrapf(err, "checking tombstone for %s", addr)
	}
	if removed {
		return bucketset.Entry{}, bucketset.ErrRemoved
	}
	return e, nil
}

// Put adds an entry to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, e bucketset.Entry) (bucketset.Address, bool, error) {
	encoded, err := e.Encode()
	if err != nil {
		return bucketset.Zero, false, err
	}
	addr, err := s.hash.Sum(encoded)
	if err != nil {
		return bucketset.Zero, false, err
	}
	added, err := s.setIfAbsent(entryKey(addr), encoded)
	return addr, added, errors.Wrapf(err, "storing entry %s", addr)
}

func (s *Store) setIfAbsent(key, val []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.has(key)
	if err != nil || ok {
		return false, err
	}
	return true, s.db.Set(key, val, pebble.Sync)
}

// PutLink adds a link to the store if it wasn't already present.
func (s *Store) PutLink(_ context.Context, l bucketset.Link) (bool, error) {
	if strings.IndexByte(l.Tag, 0) >= 0 {
		return false, errors.Wrapf(ErrBadTag, "tag %q", l.Tag)
	}
	key := append(linkPrefix(l.From, l.Tag), string(l.To)...)
	added, err := s.setIfAbsent(key, nil)
	return added, errors.Wrapf(err, "storing link %s -> %s", l.From, l.To)
}

// Links calls f for each target of a link from `from` with the given tag,
// in lexical order.
func (s *Store) Links(ctx context.Context, from bucketset.Address, tag string, f func(bucketset.Address) error) error {
	if strings.IndexByte(tag, 0) >= 0 {
		return errors.Wrapf(ErrBadTag, "tag %q", tag)
	}
	prefix := linkPrefix(from, tag)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return errors.Wrap(err, "creating iterator")
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		to := bucketset.Address(iter.Key()[len(prefix):])
		if err := f(to); err != nil {
			return err
		}
	}
	return errors.Wrap(iter.Error(), "iterating over links")
}

// Remove marks the entry at addr as removed.
func (s *Store) Remove(_ context.Context, addr bucketset.Address) error {
	ok, err := s.has(entryKey(addr))
	if err != nil {
		return errors.Wrapf(err, "looking up entry %s", addr)
	}
	if !ok {
		return bucketset.ErrNotFound
	}
	return errors.Wrapf(s.db.Set(tombstoneKey(addr), nil, pebble.Sync), "removing entry %s", addr)
}

func init() {
	store.Register("pebble", func(_ context.Context, conf map[string]interface{}) (bucketset.Store, error) {
		dir, ok := conf["dir"].(string)
		if !ok {
			return nil, errors.New(`missing "dir" parameter`)
		}
		opts, err := store.Options(conf)
		if err != nil {
			return nil, err
		}
		return Open(dir, &pebble.Options{}, opts...)
	})
}
