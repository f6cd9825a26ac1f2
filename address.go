package bucketset

import (
	"fmt"

	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// Address is the content address of an entry:
// the base58 text of a multihash.
// The multihash prefix names the hash function that produced the digest,
// so an Address is self-describing.
type Address string

// Zero is the zero value of an Address.
var Zero Address

func (a Address) String() string {
	return string(a)
}

// IsZero tells whether a is the zero Address.
func (a Address) IsZero() bool {
	return a == Zero
}

// Less tells whether a sorts before other.
func (a Address) Less(other Address) bool {
	return a < other
}

// Multihash decodes the base58 text of a into its multihash bytes.
func (a Address) Multihash() (multihash.Multihash, error) {
	mh, err := multihash.FromB58String(string(a))
	return mh, errors.Wrapf(err, "decoding address %q", string(a))
}

// Digest returns the raw digest bytes of a,
// with the multihash function code and length prefix stripped.
func (a Address) Digest() ([]byte, error) {
	mh, err := a.Multihash()
	if err != nil {
		return nil, err
	}
	dec, err := multihash.Decode(mh)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding multihash of %s", a)
	}
	return dec.Digest, nil
}

// Hash identifies the hash function a store uses to address entries.
// Its value is the function's multihash code.
type Hash uint64

const (
	SHA2_256 = Hash(multihash.SHA2_256)
	BLAKE3   = Hash(multihash.BLAKE3)
)

// DefaultHash is the hash function stores use unless configured otherwise.
const DefaultHash = SHA2_256

// ErrUnknownHash is the error for a Hash that is neither SHA2_256 nor BLAKE3.
var ErrUnknownHash = errors.New("unknown hash function")

func (h Hash) String() string {
	switch h {
	case SHA2_256:
		return "sha2-256"
	case BLAKE3:
		return "blake3"
	}
	return fmt.Sprintf("hash(0x%x)", uint64(h))
}

// ParseHash parses the name of a hash function
// (as produced by Hash.String).
// The empty string parses as DefaultHash.
func ParseHash(s string) (Hash, error) {
	switch s {
	case "":
		return DefaultHash, nil
	case "sha2-256", "sha256":
		return SHA2_256, nil
	case "blake3":
		return BLAKE3, nil
	}
	return 0, errors.Wrapf(ErrUnknownHash, "parsing %q", s)
}

// Sum hashes b and returns the resulting Address.
func (h Hash) Sum(b []byte) (Address, error) {
	var (
		mh  multihash.Multihash
		err error
	)
	switch h {
	case SHA2_256:
		mh, err = multihash.Sum(b, multihash.SHA2_256, -1)
	case BLAKE3:
		digest := blake3.Sum256(b)
		mh, err = multihash.Encode(digest[:], multihash.BLAKE3)
	default:
		return Zero, errors.Wrapf(ErrUnknownHash, "summing with %s", h)
	}
	if err != nil {
		return Zero, errors.Wrapf(err, "computing %s multihash", h)
	}
	return Address(mh.B58String()), nil
}

// Address computes the address of e.
func (h Hash) Address(e Entry) (Address, error) {
	b, err := e.Encode()
	if err != nil {
		return Zero, err
	}
	return h.Sum(b)
}
