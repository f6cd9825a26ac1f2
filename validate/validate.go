// Package validate implements the write-validation pipeline of a store.
//
// Rules are registered per entry type
// and are consulted before an entry of that type is created,
// modified,
// or deleted.
// Any rule may reject the write.
package validate

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
)

// Kind is the kind of write being validated.
type Kind int

const (
	Create Kind = iota
	Modify
	Delete
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Modify:
		return "modify"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Op describes a write.
type Op struct {
	Kind Kind

	// Type is the entry type the rule is registered for:
	// the type of the new entry for Create,
	// and of the old entry for Modify and Delete.
	Type string

	// Entry is the entry being written.
	// It is the zero Entry for Delete.
	Entry bucketset.Entry

	// Old and OldAddr describe the entry being modified or deleted.
	// They are zero for Create.
	Old     bucketset.Entry
	OldAddr bucketset.Address
}

// Rule validates a write.
// It returns nil to accept it.
type Rule func(context.Context, Op) error

// ErrRejected is the error that every Rejection matches with errors.Is.
var ErrRejected = errors.New("rejected")

// Rejection is the error for a write that a Rule refused.
type Rejection struct {
	Kind   Kind
	Type   string
	Reason string
}

func (r *Rejection) Error() string {
	if r.Type == "" {
		return fmt.Sprintf("%s rejected: %s", r.Kind, r.Reason)
	}
	return fmt.Sprintf("%s of %s entry rejected: %s", r.Kind, r.Type, r.Reason)
}

// Is makes errors.Is(err, ErrRejected) true for every Rejection.
func (r *Rejection) Is(target error) bool {
	return target == ErrRejected
}

// Reject produces a Rejection of op.
func Reject(op Op, reason string) error {
	return &Rejection{Kind: op.Kind, Type: op.Type, Reason: reason}
}

// Registry maps entry types to their rules.
// The zero Registry is empty and ready to use.
type Registry struct {
	mu    sync.RWMutex
	rules map[string][]Rule
}

// Register adds a rule for entries of the given type.
// All the rules for a type must accept a write for it to proceed.
func (r *Registry) Register(typ string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rules == nil {
		r.rules = make(map[string][]Rule)
	}
	r.rules[typ] = append(r.rules[typ], rule)
}

// Check runs the rules registered for op.Type.
// Types with no rules accept every write.
func (r *Registry) Check(ctx context.Context, op Op) error {
	r.mu.RLock()
	rules := r.rules[op.Type]
	r.mu.RUnlock()

	for _, rule := range rules {
		if err := rule(ctx, op); err != nil {
			return err
		}
	}
	return nil
}
