package bucket

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
)

var (
	// ErrEmptyKey is the error for a Field extraction that produced no key.
	ErrEmptyKey = errors.New("empty bucket key")

	// ErrUnregistered is the error for a record type with no marker type in a Registry.
	ErrUnregistered = errors.New("record type not registered")
)

// DerivationError is the error for a record whose bucket key could not be derived.
type DerivationError struct {
	RecordType string
	Err        error
}

func (e *DerivationError) Error() string {
	if e.RecordType == "" {
		return fmt.Sprintf("deriving bucket key: %s", e.Err)
	}
	return fmt.Sprintf("deriving bucket key for %s record: %s", e.RecordType, e.Err)
}

func (e *DerivationError) Unwrap() error { return e.Err }

// Stage names the step of Index.Store at which a write failed.
type Stage string

const (
	StageRecord Stage = "record"
	StageLink   Stage = "link"
)

// PartialWriteError is the error from Index.Store
// when the bucket marker was written but a later step failed.
// The marker (and, at StageLink, the record) remain in the store.
// Storing the same record again completes the write,
// since every step is idempotent.
type PartialWriteError struct {
	Stage  Stage
	Marker bucketset.Address
	Record bucketset.Address // zero at StageRecord
	Err    error
}

func (e *PartialWriteError) Error() string {
	switch e.Stage {
	case StageLink:
		return fmt.Sprintf("linking record %s into bucket %s: %s", e.Record, e.Marker, e.Err)
	default:
		return fmt.Sprintf("storing record for bucket %s: %s", e.Marker, e.Err)
	}
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
