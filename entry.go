package bucketset

import "github.com/pkg/errors"

// Entry is the unit of storage in a Store:
// some content bytes tagged with the name of their type.
// The type participates in the entry's address,
// so identical content stored under two types yields two distinct entries.
type Entry struct {
	Type    string `cbor:"1,keyasint"`
	Content []byte `cbor:"2,keyasint"`
}

// Encode produces the canonical encoding of e.
// This is what a Hash digests to compute e's address.
func (e Entry) Encode() ([]byte, error) {
	b, err := Marshal(e)
	return b, errors.Wrapf(err, "encoding %s entry", e.Type)
}

// DecodeEntry parses the canonical encoding of an entry.
func DecodeEntry(b []byte) (Entry, error) {
	var e Entry
	err := Unmarshal(b, &e)
	return e, errors.Wrap(err, "decoding entry")
}

// Equal tells whether e and other have the same type and content.
func (e Entry) Equal(other Entry) bool {
	return e.Type == other.Type && string(e.Content) == string(other.Content)
}
