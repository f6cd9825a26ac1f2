package bucket

import (
	"iter"
	"strconv"
)

// Enumerator produces the closed set of keys a Strategy can derive.
// Index.RetrieveAll sweeps exactly these keys,
// so a record whose key an Enumerator does not produce
// is reachable only through Index.RetrieveByKey.
//
// The sequence must be finite,
// and iterating it again must produce the same keys.
type Enumerator interface {
	Keys() iter.Seq[string]
}

// Alphabet is an Enumerator over an explicit list of keys.
type Alphabet []string

// Keys implements Enumerator.
func (a Alphabet) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, k := range a {
			if !yield(k) {
				return
			}
		}
	}
}

// Runes produces an Alphabet with one single-rune key for each rune in s.
func Runes(s string) Alphabet {
	var a Alphabet
	for _, r := range s {
		a = append(a, string(r))
	}
	return a
}

// ASCIILetters enumerates the 52 keys of FirstRune over text beginning with an ASCII letter.
var ASCIILetters = Runes("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

// Prefixes enumerates the keys of a HashPrefix strategy with the given number of bits:
// the decimal integers 0 through 2^bits-1.
// Keys are produced lazily,
// but a sweep over more than 16 bits means more than 65536 bucket queries
// and is rarely what a caller wants.
// Above MaxPrefixBits there are no keys,
// just as a HashPrefix that wide derives none.
type Prefixes uint

// Keys implements Enumerator.
func (p Prefixes) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		n := p.Len()
		for i := uint64(0); i < n; i++ {
			if !yield(strconv.FormatUint(i, 10)) {
				return
			}
		}
	}
}

// Len is the number of keys p produces.
func (p Prefixes) Len() uint64 {
	if p > MaxPrefixBits {
		return 0
	}
	return uint64(1) << uint(p)
}
