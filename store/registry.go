// Package store is a registry of bucketset.Store implementations,
// each of which lives in a subpackage.
// A subpackage registers a factory for its store type when it is imported,
// so a program selects the backends it supports by importing them.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/bucketset"
)

// Factory creates a store from a configuration map.
type Factory func(context.Context, map[string]interface{}) (bucketset.Store, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register makes a store type available to Create under the given key.
func Register(key string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[key] = f
}

// Create produces a store of the type registered under key,
// configured by conf.
func Create(ctx context.Context, key string, conf map[string]interface{}) (bucketset.Store, error) {
	mu.RLock()
	f, ok := registry[key]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("key %s not found in registry", key)
	}
	return f(ctx, conf)
}

// FromConfig produces a store from a configuration map
// whose "type" parameter names the store type.
func FromConfig(ctx context.Context, conf map[string]interface{}) (bucketset.Store, error) {
	typ, ok := conf["type"].(string)
	if !ok {
		return nil, errors.New(`missing "type" parameter`)
	}
	s, err := Create(ctx, typ, conf)
	return s, errors.Wrapf(err, "creating %s store", typ)
}

// Nested creates the store described by the "nested" parameter of conf.
// Wrapper stores use this to build the store they wrap.
func Nested(ctx context.Context, conf map[string]interface{}) (bucketset.Store, error) {
	nested, ok := conf["nested"].(map[string]interface{})
	if !ok {
		return nil, errors.New(`missing "nested" parameter`)
	}
	s, err := FromConfig(ctx, nested)
	return s, errors.Wrap(err, "creating nested store")
}

// Options parses the parameters common to all store types.
// At present that is "hash",
// the name of the hash function to address entries with.
func Options(conf map[string]interface{}) ([]bucketset.Option, error) {
	var opts []bucketset.Option
	if name, ok := conf["hash"].(string); ok {
		h, err := bucketset.ParseHash(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, bucketset.WithHash(h))
	}
	return opts, nil
}

// Types lists the registered store types in lexical order.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()

	types := make([]string, 0, len(registry))
	for k := range registry {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

// Int reads an integer parameter from conf.
// Config decoders variously produce int, int64, float64, and json.Number,
// so all of those are accepted.
func Int(conf map[string]interface{}, key string) (int, bool, error) {
	v, ok := conf[key]
	if !ok {
		return 0, false, nil
	}
	switch v := v.(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case float64:
		if v != float64(int(v)) {
			return 0, true, fmt.Errorf("parameter %q is not an integer", key)
		}
		return int(v), true, nil
	case interface{ Int64() (int64, error) }:
		n, err := v.Int64()
		return int(n), true, errors.Wrapf(err, "parsing parameter %q", key)
	}
	return 0, true, fmt.Errorf("parameter %q has type %T, want integer", key, v)
}
