package bucketset

// Options configures a Store implementation.
type Options struct {
	Hash Hash
}

// Option is a functional option for configuring a Store.
type Option func(*Options)

// WithHash sets the hash function a store addresses entries with.
func WithHash(h Hash) Option {
	return func(o *Options) { o.Hash = h }
}

// Configure applies opts to the default Options.
func Configure(opts ...Option) Options {
	o := Options{Hash: DefaultHash}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
