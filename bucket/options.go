package bucket

import (
	"fmt"
	"io"
	"log/slog"
)

// Policy says what RetrieveAll does when a bucket cannot be listed.
type Policy int

const (
	// BestEffort lists every bucket it can
	// and reports the ones it could not in Result.Failed.
	BestEffort Policy = iota

	// FailFast stops at the first bucket that cannot be listed
	// and returns its error.
	FailFast
)

func (p Policy) String() string {
	switch p {
	case BestEffort:
		return "best-effort"
	case FailFast:
		return "fail-fast"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy parses the name of a Policy
// (as produced by Policy.String).
// The empty string parses as BestEffort.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "best-effort":
		return BestEffort, nil
	case "fail-fast":
		return FailFast, nil
	}
	return 0, fmt.Errorf("unknown policy %q", s)
}

// DefaultConcurrency is the number of buckets RetrieveAll lists at once
// unless WithConcurrency says otherwise.
const DefaultConcurrency = 8

type options struct {
	policy      Policy
	concurrency int
	logger      *slog.Logger
}

func defaultOptions() options {
	return options{
		policy:      BestEffort,
		concurrency: DefaultConcurrency,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Option is a functional option for configuring New.
type Option func(*options)

// WithPolicy sets the failure policy of RetrieveAll.
func WithPolicy(p Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithConcurrency sets the number of buckets RetrieveAll lists at once.
// Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLogger sets the logger an Index reports its activity to.
// By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
