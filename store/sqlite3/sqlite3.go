// Package sqlite3 implements an entry store in a Sqlite database.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/store"
)

var _ bucketset.Store = &Store{}

// Store is a Sqlite-based entry store.
type Store struct {
	db   *sql.DB
	hash bucketset.Hash
}

// Schema is the SQL that New executes.
// It creates the `entries`, `links`, and `tombstones` tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS entries (
  addr TEXT PRIMARY KEY NOT NULL,
  type TEXT NOT NULL,
  content BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS links (
  from_addr TEXT NOT NULL,
  tag TEXT NOT NULL,
  to_addr TEXT NOT NULL,
  PRIMARY KEY (from_addr, tag, to_addr)
);

CREATE TABLE IF NOT EXISTS tombstones (
  addr TEXT PRIMARY KEY NOT NULL
);
`

// New produces a new Store using `db` for storage.
// It expects to create tables `entries`, `links`, and `tombstones`,
// or for those tables already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB, opts ...bucketset.Option) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	o := bucketset.Configure(opts...)
	return &Store{db: db, hash: o.Hash}, errors.Wrap(err, "creating schema")
}

// Hash implements bucketset.Store.
func (s *Store) Hash() bucketset.Hash {
	return s.hash
}

// Get gets the entry with address `addr`.
func (s *Store) Get(ctx context.Context, addr bucketset.Address) (bucketset.Entry, error) {
	const q = `SELECT e.type, e.content, t.addr IS NOT NULL
		FROM entries e LEFT JOIN tombstones t ON e.addr = t.addr
		WHERE e.addr = $1`

	var (
		e       bucketset.Entry
		removed bool
	)
	err := s.db.QueryRowContext(ctx, q, addr).Scan(&e.Type, &e.Content, &removed)
	if stderrs.Is(err, sql.ErrNoRows) {
		return bucketset.Entry{}, bucketset.ErrNotFound
	}
	if err != nil {
		return bucketset.Entry{}, errors.Wrapf(err, "getting entry %s", addr)
	}
	if removed {
		return bucketset.Entry{}, bucketset.ErrRemoved
	}
	return e, nil
}

// Put adds an entry to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, e bucketset.Entry) (bucketset.Address, bool, error) {
	const q = `INSERT INTO entries (addr, type, content) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

	addr, err := s.hash.Address(e)
	if err != nil {
		return bucketset.Zero, false, err
	}
	content := e.Content
	if content == nil {
		content = []byte{}
	}

	res, err := s.db.ExecContext(ctx, q, addr, e.Type, content)
	if err != nil {
		return bucketset.Zero, false, errors.Wrap(err, "inserting entry")
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return bucketset.Zero, false, errors.Wrap(err, "counting affected rows")
	}
	return addr, aff > 0, nil
}

// PutLink adds a link to the store if it wasn't already present.
func (s *Store) PutLink(ctx context.Context, l bucketset.Link) (bool, error) {
	const q = `INSERT INTO links (from_addr, tag, to_addr) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

	res, err := s.db.ExecContext(ctx, q, l.From, l.Tag, l.To)
	if err != nil {
		return false, errors.Wrap(err, "inserting link")
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "counting affected rows")
	}
	return aff > 0, nil
}

// Links calls f for each target of a link from `from` with the given tag,
// in lexicographic order.
func (s *Store) Links(ctx context.Context, from bucketset.Address, tag string, f func(bucketset.Address) error) error {
	const q = `SELECT to_addr FROM links WHERE from_addr = $1 AND tag = $2 ORDER BY to_addr`
	return sqlutil.ForQueryRows(ctx, s.db, q, from, tag, func(to string) error {
		return f(bucketset.Address(to))
	})
}

// Remove marks the entry at addr as removed.
func (s *Store) Remove(ctx context.Context, addr bucketset.Address) error {
	const (
		q1 = `SELECT COUNT(*) FROM entries WHERE addr = $1`
		q2 = `INSERT INTO tombstones (addr) VALUES ($1) ON CONFLICT DO NOTHING`
	)

	var n int
	if err := s.db.QueryRowContext(ctx, q1, addr).Scan(&n); err != nil {
		return errors.Wrapf(err, "looking up entry %s", addr)
	}
	if n == 0 {
		return bucketset.ErrNotFound
	}
	_, err := s.db.ExecContext(ctx, q2, addr)
	return errors.Wrapf(err, "removing entry %s", addr)
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (bucketset.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		opts, err := store.Options(conf)
		if err != nil {
			return nil, err
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db, opts...)
	})
}
