// Package file implements an entry store as a file hierarchy.
//
// Entries are kept zstd-compressed under entries/,
// links as empty files under links/,
// and removal tombstones under tombstones/.
// Addresses are case-sensitive,
// so the root must be on a case-sensitive filesystem.
package file

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/store"
)

var _ bucketset.Store = &Store{}

// Store is a file-based implementation of an entry store.
type Store struct {
	root string
	hash bucketset.Hash
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// New produces a new Store storing data beneath `root`.
func New(root string, opts ...bucketset.Option) (*Store, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd decoder")
	}
	o := bucketset.Configure(opts...)
	return &Store{root: root, hash: o.Hash, enc: enc, dec: dec}, nil
}

// Hash implements bucketset.Store.
func (s *Store) Hash() bucketset.Hash {
	return s.hash
}

func (s *Store) entrypath(addr bucketset.Address) string {
	a := addr.String()
	if len(a) < 4 {
		return filepath.Join(s.root, "entries", "short", a)
	}
	// Skip the multihash prefix, which is the same for every address.
	return filepath.Join(s.root, "entries", a[len(a)-2:], a)
}

func (s *Store) tombstonepath(addr bucketset.Address) string {
	return filepath.Join(s.root, "tombstones", addr.String())
}

// Tags may contain slashes and other characters unsafe in filenames.
func tagdir(tag string) string {
	return "t" + base64.RawURLEncoding.EncodeToString([]byte(tag))
}

func (s *Store) linkdir(from bucketset.Address, tag string) string {
	return filepath.Join(s.root, "links", from.String(), tagdir(tag))
}

// Get gets the entry with address `addr`.
func (s *Store) Get(_ context.Context, addr bucketset.Address) (bucketset.Entry, error) {
	path := s.entrypath(addr)
	compressed, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return bucketset.Entry{}, bucketset.ErrNotFound
	}
	if err != nil {
		return bucketset.Entry{}, errors.Wrapf(err, "reading %s", path)
	}

	if _, err = os.Stat(s.tombstonepath(addr)); err == nil {
		return bucketset.Entry{}, bucketset.ErrRemoved
	} else if !errors.Is(err, os.ErrNotExist) {
		return bucketset.Entry{}, errors.Wrapf(err, "checking tombstone for %s", addr)
	}

	encoded, err := s.dec.DecodeAll(compressed, nil)
	if err != nil {
		return bucketset.Entry{}, errors.Wrapf(err, "decompressing %s", path)
	}
	return bucketset.DecodeEntry(encoded)
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

	added, err := createFile(s.entrypath(addr), s.enc.EncodeAll(encoded, nil))
	if err != nil {
		return bucketset.Zero, false, err
	}
	return addr, added, nil
}

// createFile writes a new file at path with the given contents,
// reporting false if the file already exists.
// The contents are written to a temporary file first
// and hard-linked into place,
// so readers never see a partial file.
func createFile(path string, contents []byte) (bool, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, errors.Wrapf(err, "ensuring path %s exists", dir)
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return false, errors.Wrapf(err, "creating temp file in %s", dir)
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(contents); err != nil {
		tmp.Close()
		return false, errors.Wrapf(err, "writing %s", tmp.Name())
	}
	if err = tmp.Close(); err != nil {
		return false, errors.Wrapf(err, "closing %s", tmp.Name())
	}

	err = os.Link(tmp.Name(), path)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "linking %s", path)
	}
	return true, nil
}

// PutLink adds a link to the store if it wasn't already present.
func (s *Store) PutLink(_ context.Context, l bucketset.Link) (bool, error) {
	dir := s.linkdir(l.From, l.Tag)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	path := filepath.Join(dir, l.To.String())
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "creating %s", path)
	}
	return true, errors.Wrapf(f.Close(), "closing %s", path)
}

// Links calls f for each target of a link from `from` with the given tag,
// in lexical order.
func (s *Store) Links(ctx context.Context, from bucketset.Address, tag string, f func(bucketset.Address) error) error {
	dir := s.linkdir(from, tag)
	infos, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", dir)
	}
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f(bucketset.Address(info.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Remove marks the entry at addr as removed.
func (s *Store) Remove(_ context.Context, addr bucketset.Address) error {
	path := s.entrypath(addr)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return bucketset.ErrNotFound
	} else if err != nil {
		return errors.Wrapf(err, "checking %s", path)
	}
	_, err := createFile(s.tombstonepath(addr), nil)
	return err
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (bucketset.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		opts, err := store.Options(conf)
		if err != nil {
			return nil, err
		}
		return New(root, opts...)
	})
}
