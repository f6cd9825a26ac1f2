package bucket

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/validate"
)

// LinkTag is the tag of the link from a bucket marker to each of its records.
const LinkTag = "contains"

// Marker stands for the bucket with a given key
// among the records of a given type.
type Marker struct {
	RecordType string
	Key        string
}

// Entry is the store entry of m,
// given the marker type registered for m.RecordType.
// Its content is the key alone;
// the record type is carried by the marker type.
func (m Marker) Entry(markerType string) bucketset.Entry {
	return bucketset.Entry{Type: markerType, Content: []byte(m.Key)}
}

// Address computes the address of m's entry under hash function h.
// Because it depends only on its inputs,
// independent writers agree on it without coordinating.
func (m Marker) Address(h bucketset.Hash, markerType string) (bucketset.Address, error) {
	return h.Address(m.Entry(markerType))
}

// Registry maps record types to the entry types of their bucket markers.
// The zero Registry is empty and ready to use.
type Registry struct {
	mu      sync.RWMutex
	markers map[string]string // record type -> marker type
	records map[string]string // marker type -> record type
}

// Register associates a record type with the entry type of its bucket markers.
// A record type may be registered more than once only with the same marker type.
// A marker type may serve only one record type,
// and no name may be both a record type and a marker type.
func (r *Registry) Register(recordType, markerType string) error {
	if recordType == "" || markerType == "" {
		return errors.New("record type and marker type must be non-empty")
	}
	if recordType == markerType {
		return errors.Errorf("marker type %q is the same as its record type", markerType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.markers == nil {
		r.markers = make(map[string]string)
		r.records = make(map[string]string)
	}
	if m, ok := r.markers[recordType]; ok {
		if m == markerType {
			return nil
		}
		return errors.Errorf("record type %q already has marker type %q", recordType, m)
	}
	if rt, ok := r.records[markerType]; ok {
		return errors.Errorf("marker type %q already serves record type %q", markerType, rt)
	}
	if _, ok := r.records[recordType]; ok {
		return errors.Errorf("record type %q is already a marker type", recordType)
	}
	if _, ok := r.markers[markerType]; ok {
		return errors.Errorf("marker type %q is already a record type", markerType)
	}
	r.markers[recordType] = markerType
	r.records[markerType] = recordType
	return nil
}

// MarkerType returns the marker type registered for recordType.
func (r *Registry) MarkerType(recordType string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.markers[recordType]
	if !ok {
		return "", errors.Wrapf(ErrUnregistered, "looking up marker type for %q", recordType)
	}
	return m, nil
}

// IsMarkerType tells whether typ is a registered marker type.
func (r *Registry) IsMarkerType(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.records[typ]
	return ok
}

// Install registers MarkerRules in v for every marker type in r.
// Call it after the last Register.
func (r *Registry) Install(v *validate.Registry) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for markerType := range r.records {
		v.Register(markerType, MarkerRules)
	}
}

// MarkerRules is the validation rule for bucket markers.
// A marker's content is its key,
// so there is nothing to modify,
// and deleting one would strand the links from it.
// Creation is always allowed.
func MarkerRules(_ context.Context, op validate.Op) error {
	switch op.Kind {
	case validate.Create:
		return nil
	case validate.Modify:
		return validate.Reject(op, "modifying buckets not permitted")
	case validate.Delete:
		return validate.Reject(op, "deleting buckets not permitted")
	}
	return validate.Reject(op, "unknown operation")
}
