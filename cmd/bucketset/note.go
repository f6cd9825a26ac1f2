package main

import (
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/bobg/bucketset/bucket"
)

const (
	noteType       = "note"
	noteBucketType = "note-bucket"
)

type note struct {
	Text string `cbor:"1,keyasint"`
}

// otherKey is the bucket of notes that do not begin with an ASCII letter.
const otherKey = "#"

var noteKeys = append(bucket.Runes("abcdefghijklmnopqrstuvwxyz"), otherKey)

// firstLetter buckets a note by its first letter, ignoring case.
func firstLetter(n note) (string, error) {
	r, size := utf8.DecodeRuneInString(n.Text)
	if size == 0 || (r == utf8.RuneError && size == 1) {
		// Empty or invalid.
		return bucket.FirstRune(n.Text)
	}
	r = unicode.ToLower(r)
	if r < 'a' || r > 'z' {
		return otherKey, nil
	}
	return string(r), nil
}

func noteStrategy(bits int) (bucket.Strategy[note], error) {
	if bits == 0 {
		return bucket.NewField(firstLetter, noteKeys), nil
	}
	if bits < 0 {
		return nil, errors.Errorf("negative hash prefix bits %d", bits)
	}
	h, err := bucket.NewHashPrefix[note](uint(bits))
	if err != nil {
		return nil, err
	}
	return h, nil
}
