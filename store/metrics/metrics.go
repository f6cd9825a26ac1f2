// Package metrics implements a store that delegates everything to a nested store,
// recording Prometheus metrics for each operation.
package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bobg/bucketset"
	"github.com/bobg/bucketset/store"
)

var (
	_ bucketset.Store    = &Store{}
	_ bucketset.Replacer = &Store{}
)

// Store counts and times the operations on a nested store.
type Store struct {
	s bucketset.Store

	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	added    *prometheus.CounterVec
}

// Result label values.
const (
	resultOK       = "ok"
	resultNotFound = "not_found"
	resultRemoved  = "removed"
	resultError    = "error"
)

// New produces a new Store wrapping s
// and registers its collectors with reg.
// Every metric carries a "store" label with the given name,
// so several Stores may share a registry.
func New(s bucketset.Store, reg prometheus.Registerer, name string) (*Store, error) {
	labels := prometheus.Labels{"store": name}
	result := &Store{
		s: s,
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "bucketset",
			Subsystem:   "store",
			Name:        "operations_total",
			Help:        "Store operations by kind and result.",
			ConstLabels: labels,
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "bucketset",
			Subsystem:   "store",
			Name:        "operation_duration_seconds",
			Help:        "Latency of store operations.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"op"}),
		added: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "bucketset",
			Subsystem:   "store",
			Name:        "added_total",
			Help:        "Entries and links newly added, as opposed to already present.",
			ConstLabels: labels,
		}, []string{"kind"}),
	}
	for _, c := range []prometheus.Collector{result.ops, result.duration, result.added} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "registering collector")
		}
	}
	return result, nil
}

func (s *Store) observe(op string, start time.Time, err error) {
	s.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	result := resultOK
	switch {
	case err == nil:
	case errors.Is(err, bucketset.ErrNotFound):
		result = resultNotFound
	case errors.Is(err, bucketset.ErrRemoved):
		result = resultRemoved
	default:
		result = resultError
	}
	s.ops.WithLabelValues(op, result).Inc()
}

func (s *Store) Hash() bucketset.Hash {
	return s.s.Hash()
}

func (s *Store) Get(ctx context.Context, addr bucketset.Address) (bucketset.Entry, error) {
	start := time.Now()
	e, err := s.s.Get(ctx, addr)
	s.observe("get", start, err)
	return e, err
}

func (s *Store) Links(ctx context.Context, from bucketset.Address, tag string, f func(bucketset.Address) error) error {
	start := time.Now()
	err := s.s.Links(ctx, from, tag, f)
	s.observe("links", start, err)
	return err
}

func (s *Store) Put(ctx context.Context, e bucketset.Entry) (bucketset.Address, bool, error) {
	start := time.Now()
	addr, added, err := s.s.Put(ctx, e)
	s.observe("put", start, err)
	if added {
		s.added.WithLabelValues("entry").Inc()
	}
	return addr, added, err
}

func (s *Store) PutLink(ctx context.Context, l bucketset.Link) (bool, error) {
	start := time.Now()
	added, err := s.s.PutLink(ctx, l)
	s.observe("put_link", start, err)
	if added {
		s.added.WithLabelValues("link").Inc()
	}
	return added, err
}

func (s *Store) Replace(ctx context.Context, old bucketset.Address, e bucketset.Entry) (bucketset.Address, error) {
	start := time.Now()
	addr, err := bucketset.Replace(ctx, s.s, old, e)
	s.observe("replace", start, err)
	return addr, err
}

func (s *Store) Remove(ctx context.Context, addr bucketset.Address) error {
	start := time.Now()
	err := s.s.Remove(ctx, addr)
	s.observe("remove", start, err)
	return err
}

func init() {
	// Configured metrics stores register with the default registry.
	store.Register("metrics", func(ctx context.Context, conf map[string]interface{}) (bucketset.Store, error) {
		nested, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, err
		}
		name, _ := conf["name"].(string)
		if name == "" {
			name, _ = conf["nested"].(map[string]interface{})["type"].(string)
		}
		return New(nested, prometheus.DefaultRegisterer, name)
	})
}
