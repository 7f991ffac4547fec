package lru

// DefaultMemoCapacity is the cache size used by Memoize when no capacity is
// given.
const DefaultMemoCapacity = 128

type memoOptions struct {
	capacity int
}

// MemoOption configures Memoize.
type MemoOption func(*memoOptions)

// WithCapacity sets the number of results a memoized function keeps.
func WithCapacity(capacity int) MemoOption {
	return func(o *memoOptions) {
		o.capacity = capacity
	}
}

// Memoized wraps a single-argument function with its own LRU cache keyed on
// the argument. The function must be pure; the cache does not check.
//
// Like Cache, a Memoized is not safe for concurrent use.
type Memoized[K comparable, V any] struct {
	fn    func(K) V
	cache *Cache[K, V]
}

// Memoize returns a cached version of fn. Each call to Memoize creates a new,
// independent cache.
func Memoize[K comparable, V any](fn func(K) V, opts ...MemoOption) (*Memoized[K, V], error) {
	o := memoOptions{capacity: DefaultMemoCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	cache, err := New[K, V](o.capacity)
	if err != nil {
		return nil, err
	}
	return &Memoized[K, V]{fn: fn, cache: cache}, nil
}

// MustMemoize is like Memoize but panics on an invalid capacity.
func MustMemoize[K comparable, V any](fn func(K) V, opts ...MemoOption) *Memoized[K, V] {
	m, err := Memoize(fn, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Call returns the cached result for arg, computing and storing it on a miss.
// fn may call back into the same Memoized, which is how recursive functions
// get memoized.
func (m *Memoized[K, V]) Call(arg K) V {
	if v, ok := m.cache.Get(arg); ok {
		return v
	}
	v := m.fn(arg)
	m.cache.Put(arg, v)
	return v
}

// Func returns Call as a plain function value.
func (m *Memoized[K, V]) Func() func(K) V {
	return m.Call
}

// CacheInfo returns the stats of the backing cache.
func (m *Memoized[K, V]) CacheInfo() Stats {
	return m.cache.Stats()
}
