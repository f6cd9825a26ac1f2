package bucket

import (
	"encoding/binary"
	"iter"
	"strconv"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
)

// Strategy assigns records to buckets.
// It is one of two variants:
// Field, which derives a key from the record's content,
// and HashPrefix, which derives it from the record's address.
//
// A strategy is a pure function of its input.
// For the same record it must always produce the same key,
// and it must never consult a store.
type Strategy[T any] interface {
	// DeriveKey computes the bucket key of v,
	// whose address (as an entry in the store) is addr.
	DeriveKey(v T, addr bucketset.Address) (string, error)

	// Keys enumerates every key DeriveKey can produce.
	Keys() iter.Seq[string]

	strategy()
}

// Field is a Strategy that derives keys from a record's content
// with a caller-supplied function.
//
// Extract must be deterministic:
// a function that consults the clock,
// randomness,
// or any mutable state
// will scatter equal records across buckets.
// Enum must produce every key Extract can return.
type Field[T any] struct {
	Extract func(T) (string, error)
	Enum    Enumerator
}

var _ Strategy[string] = Field[string]{}

// NewField produces a Field strategy.
func NewField[T any](extract func(T) (string, error), enum Enumerator) Field[T] {
	return Field[T]{Extract: extract, Enum: enum}
}

// DeriveKey implements Strategy.
// It is an error for Extract to fail or to return the empty string.
func (f Field[T]) DeriveKey(v T, _ bucketset.Address) (string, error) {
	key, err := f.Extract(v)
	if err != nil {
		return "", &DerivationError{Err: err}
	}
	if key == "" {
		return "", &DerivationError{Err: ErrEmptyKey}
	}
	return key, nil
}

// Keys implements Strategy.
func (f Field[T]) Keys() iter.Seq[string] {
	return f.Enum.Keys()
}

func (Field[T]) strategy() {}

// FirstRune returns the first rune of s as a key.
// It is an extraction function for Field strategies over text.
func FirstRune(s string) (string, error) {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return "", ErrEmptyKey
	}
	if r == utf8.RuneError && n == 1 {
		return "", errors.New("text does not begin with valid UTF-8")
	}
	return string(r), nil
}

// MaxPrefixBits is the largest number of bits a HashPrefix may use.
const MaxPrefixBits = 32

// HashPrefix is a Strategy that assigns a record to one of 2^Bits buckets
// according to the low Bits bits of the first four bytes of its digest,
// read as a little-endian integer.
// Keys are those integers in decimal.
//
// The digest is the raw hash output with the multihash function prefix stripped.
// Masking the prefix instead would put every record in the same bucket.
type HashPrefix[T any] struct {
	Bits uint
}

var _ Strategy[string] = HashPrefix[string]{}

// NewHashPrefix produces a HashPrefix strategy with the given number of bits,
// which must not exceed MaxPrefixBits.
func NewHashPrefix[T any](bits uint) (HashPrefix[T], error) {
	if bits > MaxPrefixBits {
		return HashPrefix[T]{}, errors.Errorf("hash prefix of %d bits exceeds maximum of %d", bits, MaxPrefixBits)
	}
	return HashPrefix[T]{Bits: bits}, nil
}

// DeriveKey implements Strategy.
func (h HashPrefix[T]) DeriveKey(_ T, addr bucketset.Address) (string, error) {
	if h.Bits > MaxPrefixBits {
		return "", &DerivationError{Err: errors.Errorf("hash prefix of %d bits exceeds maximum of %d", h.Bits, MaxPrefixBits)}
	}
	digest, err := addr.Digest()
	if err != nil {
		return "", &DerivationError{Err: err}
	}
	key, err := PrefixKey(digest, h.Bits)
	if err != nil {
		return "", &DerivationError{Err: err}
	}
	return key, nil
}

// Keys implements Strategy.
func (h HashPrefix[T]) Keys() iter.Seq[string] {
	return Prefixes(h.Bits).Keys()
}

func (HashPrefix[T]) strategy() {}

// PrefixKey computes the key of a raw digest for a HashPrefix of the given bits.
func PrefixKey(digest []byte, bits uint) (string, error) {
	if bits == 0 {
		return "0", nil
	}
	if bits > MaxPrefixBits {
		return "", errors.Errorf("hash prefix of %d bits exceeds maximum of %d", bits, MaxPrefixBits)
	}
	if len(digest) < 4 {
		return "", errors.Errorf("digest of %d bytes is too short for a hash prefix", len(digest))
	}

	// The mask is computed in 64 bits so that bits == 32 does not overflow.
	mask := uint32(uint64(1)<<bits - 1)
	n := binary.LittleEndian.Uint32(digest[:4]) & mask
	return strconv.FormatUint(uint64(n), 10), nil
}
