// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/store"
)

var (
	_ bucketset.Store    = &Store{}
	_ bucketset.Replacer = &Store{}
)

// Store logs each operation on a nested store
// at debug level when it succeeds
// and at error level when it fails.
type Store struct {
	s      bucketset.Store
	logger *slog.Logger
}

// New produces a new Store wrapping s.
// A nil logger means slog.Default().
func New(s bucketset.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{s: s, logger: logger}
}

func (s *Store) log(ctx context.Context, op string, start time.Time, err error, args ...any) {
	args = append(args, "elapsed", time.Since(start))
	if err != nil {
		s.logger.ErrorContext(ctx, op, append(args, "err", err)...)
		return
	}
	s.logger.DebugContext(ctx, op, args...)
}

func (s *Store) Hash() bucketset.Hash {
	return s.s.Hash()
}

func (s *Store) Get(ctx context.Context, addr bucketset.Address) (bucketset.Entry, error) {
	start := time.Now()
	e, err := s.s.Get(ctx, addr)
	s.log(ctx, "Get", start, err, "addr", addr, "type", e.Type)
	return e, err
}

func (s *Store) Links(ctx context.Context, from bucketset.Address, tag string, f func(bucketset.Address) error) error {
	var (
		start = time.Now()
		n     int
	)
	err := s.s.Links(ctx, from, tag, func(to bucketset.Address) error {
		n++
		return f(to)
	})
	s.log(ctx, "Links", start, err, "from", from, "tag", tag, "count", n)
	return err
}

func (s *Store) Put(ctx context.Context, e bucketset.Entry) (bucketset.Address, bool, error) {
	start := time.Now()
	addr, added, err := s.s.Put(ctx, e)
	s.log(ctx, "Put", start, err, "addr", addr, "type", e.Type, "size", len(e.Content), "added", added)
	return addr, added, err
}

func (s *Store) PutLink(ctx context.Context, l bucketset.Link) (bool, error) {
	start := time.Now()
	added, err := s.s.PutLink(ctx, l)
	s.log(ctx, "PutLink", start, err, "from", l.From, "to", l.To, "tag", l.Tag, "added", added)
	return added, err
}

func (s *Store) Replace(ctx context.Context, old bucketset.Address, e bucketset.Entry) (bucketset.Address, error) {
	start := time.Now()
	addr, err := bucketset.Replace(ctx, s.s, old, e)
	s.log(ctx, "Replace", start, err, "old", old, "new", addr, "type", e.Type)
	return addr, err
}

func (s *Store) Remove(ctx context.Context, addr bucketset.Address) error {
	start := time.Now()
	err := s.s.Remove(ctx, addr)
	s.log(ctx, "Remove", start, err, "addr", addr)
	return err
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (bucketset.Store, error) {
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		return New(nested, nil), nil
	})
}
