// Package gcs implements an entry store on Google Cloud Storage.
//
// Each entry, link, and tombstone is an object:
//
//	e:<addr>                  the encoded entry at addr
//	t:<addr>                  tombstone for a removed entry
//	l:<from>/<hex tag>/<to>   a link
package gcs

import (
	"context"
	"encoding/hex"
	stderrs "errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/store"
)

var _ bucketset.Store = &Store{}

// Store is a Google Cloud Storage-based implementation of an entry store.
type Store struct {
	bucket *storage.BucketHandle
	hash   bucketset.Hash
}

// New produces a new Store.
func New(bucket *storage.BucketHandle, opts ...bucketset.Option) *Store {
	o := bucketset.Configure(opts...)
	return &Store{bucket: bucket, hash: o.Hash}
}

// Hash implements bucketset.Store.
func (s *Store) Hash() bucketset.Hash {
	return s.hash
}

func entryObjName(addr bucketset.Address) string {
	return "e:" + addr.String()
}

func tombstoneObjName(addr bucketset.Address) string {
	return "t:" + addr.String()
}

func linkPrefix(from bucketset.Address, tag string) string {
	return "l:" + from.String() + "/" + hex.EncodeToString([]byte(tag)) + "/"
}

// Get gets the entry with address `addr`.
func (s *Store) Get(ctx context.Context, addr bucketset.Address) (bucketset.Entry, error) {
	name := entryObjName(addr)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return bucketset.Entry{}, bucketset.ErrNotFound
	}
	if err != nil {
		return bucketset.Entry{}, errors.Wrapf(err, "reading info of object %s", name)
	}

	b := make([]byte, r.Attrs.Size)
	err = func() error {
		defer r.Close()

		_, err := io.ReadFull(r, b)
		return errors.Wrapf(err, "reading contents of object %s", name)
	}()
	if err != nil {
		return bucketset.Entry{}, err
	}

	removed, err := s.exists(ctx, tombstoneObjName(addr))
	if err != nil {
		return bucketset.Entry{}, err
	}
	if removed {
		return bucketset.Entry{}, bucketset.ErrRemoved
	}

	return bucketset.DecodeEntry(b)
}

func (s *Store) exists(ctx context.Context, name string) (bool, error) {
	_, err := s.bucket.Object(name).Attrs(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "getting object attrs for %s", name)
	}
	return true, nil
}

// create writes a new object,
// reporting false if one by that name already exists.
func (s *Store) create(ctx context.Context, name string, data []byte) (bool, error) {
	w := s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return false, errors.Wrapf(err, "writing object %s", name)
	}
	err := w.Close()
	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "writing object %s", name)
	}
	return true, nil
}

// Put adds an entry to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, e bucketset.Entry) (bucketset.Address, bool, error) {
	encoded, err := e.Encode()
	if err != nil {
		return bucketset.Zero, false, err
	}
	addr, err := s.hash.Sum(encoded)
	if err != nil {
		return bucketset.Zero, false, err
	}
	added, err := s.create(ctx, entryObjName(addr), encoded)
	return addr, added, err
}

// PutLink adds a link to the store if it wasn't already present.
func (s *Store) PutLink(ctx context.Context, l bucketset.Link) (bool, error) {
	return s.create(ctx, linkPrefix(l.From, l.Tag)+l.To.String(), nil)
}

// Links calls f for each target of a link from `from` with the given tag,
// in lexical order.
func (s *Store) Links(ctx context.Context, from bucketset.Address, tag string, f func(bucketset.Address) error) error {
	prefix := linkPrefix(from, tag)
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over link objects")
		}
		to := strings.TrimPrefix(attrs.Name, prefix)
		if err = f(bucketset.Address(to)); err != nil {
			return err
		}
	}
}

// Remove marks the entry at addr as removed.
func (s *Store) Remove(ctx context.Context, addr bucketset.Address) error {
	ok, err := s.exists(ctx, entryObjName(addr))
	if err != nil {
		return err
	}
	if !ok {
		return bucketset.ErrNotFound
	}
	_, err = s.create(ctx, tombstoneObjName(addr), nil)
	return err
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (bucketset.Store, error) {
		var options []option.ClientOption
		creds, ok := conf["creds"].(string)
		if !ok {
			return nil, errors.New(`missing "creds" parameter`)
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		opts, err := store.Options(conf)
		if err != nil {
			return nil, err
		}
		options = append(options, option.WithCredentialsFile(creds))
		c, err := storage.NewClient(ctx, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName), opts...), nil
	})
}
