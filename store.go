package bucketset

import (
	"context"

	"github.com/pkg/errors"
)

// Link is a directed, tagged edge between two entries.
type Link struct {
	From Address `cbor:"1,keyasint"`
	To   Address `cbor:"2,keyasint"`
	Tag  string  `cbor:"3,keyasint"`
}

// ReplacedBy is the tag of the link that Replace writes
// from an entry to its replacement.
const ReplacedBy = "replaced-by"

// Getter is a read-only Store (qv).
type Getter interface {
	// Get gets an entry by its address.
	// It returns ErrNotFound if no entry has that address
	// and ErrRemoved if the entry was removed.
	Get(context.Context, Address) (Entry, error)

	// Links calls a function for the target of each link
	// with the given tag originating at `from`.
	// A store holds at most one copy of an identical link,
	// but the order of the calls is unspecified.
	// Links from an address with no outgoing links
	// make no calls and return no error.
	//
	// If the callback function returns an error,
	// Links exits with that error.
	Links(ctx context.Context, from Address, tag string, f func(Address) error) error
}

// Store is an append-only, content-addressed entry store.
// Each entry is retrievable by its address,
// which is computed from the entry's type and content by the store's Hash.
// Entries may be joined by tagged links.
type Store interface {
	Getter

	// Hash is the function this store addresses entries with.
	Hash() Hash

	// Put adds e to the store if it was not already present.
	// It returns e's address and a boolean that is true iff the entry had to be added.
	Put(ctx context.Context, e Entry) (addr Address, added bool, err error)

	// PutLink adds a link to the store if it was not already present.
	// It returns true iff the link had to be added.
	PutLink(ctx context.Context, l Link) (added bool, err error)

	// Remove marks the entry at addr as removed.
	// Subsequent calls to Get for addr return ErrRemoved.
	// Removing an entry that does not exist is ErrNotFound.
	// Removing an already-removed entry is not an error.
	Remove(ctx context.Context, addr Address) error
}

// Replacer is a Store with its own implementation of Replace (qv).
type Replacer interface {
	Replace(ctx context.Context, old Address, e Entry) (Address, error)
}

var (
	// ErrNotFound is the error returned
	// when a Getter tries to access a non-existent address.
	ErrNotFound = errors.New("not found")

	// ErrRemoved is the error returned
	// when a Getter tries to access a removed entry.
	ErrRemoved = errors.New("removed")
)

// Replace supersedes the entry at `old` with e.
// Since stored content is immutable,
// this stores e as a new entry and links old to it with the ReplacedBy tag.
// It returns e's address.
//
// If s is a Replacer,
// its Replace method is used instead.
func Replace(ctx context.Context, s Store, old Address, e Entry) (Address, error) {
	if r, ok := s.(Replacer); ok {
		return r.Replace(ctx, old, e)
	}
	return ReplaceIn(ctx, s, old, e)
}

// ReplaceIn is the default implementation of Replace,
// usable by Replacers that delegate to a nested store.
func ReplaceIn(ctx context.Context, s Store, old Address, e Entry) (Address, error) {
	if _, err := s.Get(ctx, old); err != nil {
		return Zero, errors.Wrapf(err, "getting entry %s to replace", old)
	}
	addr, _, err := s.Put(ctx, e)
	if err != nil {
		return Zero, errors.Wrap(err, "storing replacement entry")
	}
	_, err = s.PutLink(ctx, Link{From: old, To: addr, Tag: ReplacedBy})
	return addr, errors.Wrapf(err, "linking %s to replacement %s", old, addr)
}

// Latest follows ReplacedBy links from addr
// and returns the address of the newest replacement,
// or addr itself if it was never replaced.
// When an entry has been replaced more than once,
// the lexically least replacement is followed.
func Latest(ctx context.Context, g Getter, addr Address) (Address, error) {
	seen := map[Address]bool{addr: true}
	for {
		var next Address
		err := g.Links(ctx, addr, ReplacedBy, func(to Address) error {
			if next.IsZero() || to.Less(next) {
				next = to
			}
			return nil
		})
		if err != nil {
			return Zero, errors.Wrapf(err, "listing replacements of %s", addr)
		}
		if next.IsZero() || seen[next] {
			return addr, nil
		}
		seen[next] = true
		addr = next
	}
}
