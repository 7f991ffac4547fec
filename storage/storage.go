package storage

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/satmihir/justlru/internal/constants"
	"github.com/satmihir/justlru/internal/utils"
	"github.com/satmihir/justlru/lru"
)

var (
	ErrKeyNotFound         = errors.New("key not found")
	ErrDeleteKeyNotFound   = errors.New("delete key not found")
	ErrMemoryLimitExceeded = errors.New("memory limit exceeded")
	ErrKeyTooLong          = errors.New("key is too long")
	ErrKeyTooShort         = errors.New("key is too short")
	ErrObjectTooLarge      = errors.New("value exceeds maximum size")
	ErrValueTooShort       = errors.New("value is too short")
	ErrInvalidTTL          = errors.New("TTL must be greater than zero")
	ErrInvalidMemoryLimit  = errors.New("memory limit must be greater than zero")

	errMemoryAccounting = errors.New("storage: memory accounting underflow")
)

// CachedObject is the value kept in the LRU for each key.
type CachedObject struct {
	Key            string
	Value          []byte
	ExpirationTime time.Time
}

// GetBytesUsed returns the total bytes used by the key and value.
func (c *CachedObject) GetBytesUsed() uint64 {
	return uint64(len(c.Key) + len(c.Value))
}

func (c *CachedObject) expired(now time.Time) bool {
	return !c.ExpirationTime.After(now)
}

// CacheEntry is what readers get back: the value plus its metadata.
type CacheEntry struct {
	Value        []byte
	Size         int
	RemainingTTL time.Duration
}

// Stats extends the LRU counters with storage-level accounting.
type Stats struct {
	lru.Stats
	MemoryUsedBytes uint64
	MaxMemoryBytes  uint64
	// Evictions counts entries dropped for space, by count or by bytes.
	Evictions uint64
	// Expirations counts entries dropped because their TTL passed.
	Expirations uint64
}

// Local storage with key-value store with caching semantics.
//
// Values are copied on the way in and on the way out: callers own the slice
// they pass to Put and the slice they get back from Get or Peek.
type LocalStorage interface {
	// Get the entry for the given key. Returns ErrKeyNotFound on a miss.
	Get(key string) (*CacheEntry, error)
	// Peek is Get without side effects: hit and miss counters and recency
	// stay as they were.
	Peek(key string) (*CacheEntry, error)
	// Put the given value for the given key.
	Put(key string, value []byte, ttl time.Duration) error
	// Delete the given key.
	Delete(key string) error
	// CanFit reports whether an object of this size could ever be stored.
	CanFit(keyLen, valueLen int) bool
	// Stats returns a snapshot of the storage counters.
	Stats() Stats
}

// InMemoryStorage bounds both the number of entries (through the LRU
// capacity) and the bytes used by keys and values. The LRU itself is not
// thread safe; every access goes through mutex.
type InMemoryStorage struct {
	mutex sync.Mutex
	// We count the bytes of all the keys and values in the storage.
	memoryUsedBytes uint64
	maxMemory       uint64

	evictions   uint64
	expirations uint64

	store *lru.Cache[string, *CachedObject]
	now   func() time.Time
}

// StorageOptions configures the in-memory storage.
type StorageOptions struct {
	// Now overrides the clock used for TTL decisions.
	Now func() time.Time
}

// NewInMemoryStorage creates a storage holding at most maxEntries keys and
// maxMemory bytes of keys plus values.
func NewInMemoryStorage(maxEntries int, maxMemory uint64, opts ...StorageOptions) (*InMemoryStorage, error) {
	if maxMemory == 0 {
		return nil, ErrInvalidMemoryLimit
	}

	s := &InMemoryStorage{
		maxMemory: maxMemory,
		now:       time.Now,
	}
	if len(opts) > 0 && opts[0].Now != nil {
		s.now = opts[0].Now
	}

	store, err := lru.New[string, *CachedObject](maxEntries, lru.WithEvictCallback(s.onEvict))
	if err != nil {
		return nil, err
	}
	s.store = store
	return s, nil
}

func (s *InMemoryStorage) Get(key string) (*CacheEntry, error) {
	// Validate before acquiring lock to reduce lock hold time
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	if obj, ok := s.store.Peek(key); ok && obj.expired(now) {
		s.deleteUnlocked(obj)
		s.expirations++
	}

	// An expired key was removed above, so this records the miss.
	obj, ok := s.store.Get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return newCacheEntry(obj, now), nil
}

// Peek reads key without counting a hit or miss and without touching its
// recency. Expired entries read as missing but are left for Get or Put to
// reclaim.
func (s *InMemoryStorage) Peek(key string) (*CacheEntry, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	obj, ok := s.store.Peek(key)
	if !ok || obj.expired(now) {
		return nil, ErrKeyNotFound
	}
	return newCacheEntry(obj, now), nil
}

func newCacheEntry(obj *CachedObject, now time.Time) *CacheEntry {
	return &CacheEntry{
		Value:        bytes.Clone(obj.Value),
		Size:         len(obj.Value),
		RemainingTTL: obj.ExpirationTime.Sub(now),
	}
}

func (s *InMemoryStorage) Put(key string, value []byte, ttl time.Duration) error {
	// Validate before acquiring lock to reduce lock hold time
	if err := validateKey(key); err != nil {
		return err
	}

	if ttl <= 0 {
		return ErrInvalidTTL
	}

	if len(value) == 0 {
		return ErrValueTooShort
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	newObjectSize := uint64(len(key) + len(value))
	if newObjectSize > s.maxMemory {
		return ErrObjectTooLarge
	}

	now := s.now()

	// Drop the old version first so its bytes count as free space.
	if existing, ok := s.store.Peek(key); ok {
		s.deleteUnlocked(existing)
	}

	if s.memoryUsedBytes+newObjectSize > s.maxMemory {
		needed := s.memoryUsedBytes + newObjectSize - s.maxMemory

		// Expired entries go first, then LRU victims.
		freedBytes := s.limitedTtlCleanup(needed, now)
		if freedBytes < needed {
			freedBytes += s.limitedEviction(needed - freedBytes)
		}

		if freedBytes < needed {
			return ErrMemoryLimitExceeded
		}
	}

	cachedObject := &CachedObject{
		Key:            key,
		Value:          bytes.Clone(value),
		ExpirationTime: now.Add(ttl),
	}

	// May evict by entry count; onEvict keeps the byte count in step.
	s.store.Put(key, cachedObject)
	s.memoryUsedBytes += cachedObject.GetBytesUsed()

	return nil
}

func (s *InMemoryStorage) Delete(key string) error {
	// Validate before acquiring lock to reduce lock hold time
	if err := validateKey(key); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	obj, ok := s.store.Peek(key)
	if !ok {
		return ErrDeleteKeyNotFound
	}
	s.deleteUnlocked(obj)
	return nil
}

func (s *InMemoryStorage) CanFit(keyLen, valueLen int) bool {
	if keyLen < 0 || valueLen < 0 || valueLen > constants.MaxValueSizeBytes {
		return false
	}
	return uint64(keyLen+valueLen) <= s.maxMemory
}

func (s *InMemoryStorage) Stats() Stats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return Stats{
		Stats:           s.store.Stats(),
		MemoryUsedBytes: s.memoryUsedBytes,
		MaxMemoryBytes:  s.maxMemory,
		Evictions:       s.evictions,
		Expirations:     s.expirations,
	}
}

// Keys returns resident keys, least recently used first. Expired keys that
// have not been reclaimed yet are included.
func (s *InMemoryStorage) Keys() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.store.Keys()
}

// onEvict runs inside store.Put and store.RemoveOldest. Lock must be held.
func (s *InMemoryStorage) onEvict(_ string, obj *CachedObject) {
	s.releaseBytes(obj)
	s.evictions++
}

// deleteUnlocked removes obj from storage. Lock must be held by caller.
func (s *InMemoryStorage) deleteUnlocked(obj *CachedObject) {
	if s.store.Remove(obj.Key) {
		s.releaseBytes(obj)
	}
}

func (s *InMemoryStorage) releaseBytes(obj *CachedObject) {
	size := obj.GetBytesUsed()
	utils.MustBeTrue(s.memoryUsedBytes >= size, errMemoryAccounting)
	s.memoryUsedBytes -= size
}

// limitedTtlCleanup deletes expired keys, oldest first, until at least
// minimumReclaimBytes are free. Returns the bytes freed. Lock must be held.
func (s *InMemoryStorage) limitedTtlCleanup(minimumReclaimBytes uint64, now time.Time) uint64 {
	freedBytes := uint64(0)

	for _, key := range s.store.Keys() {
		obj, _ := s.store.Peek(key)
		if !obj.expired(now) {
			continue
		}
		freedBytes += obj.GetBytesUsed()
		s.deleteUnlocked(obj)
		s.expirations++
		if freedBytes >= minimumReclaimBytes {
			break
		}
	}

	return freedBytes
}

// limitedEviction evicts LRU entries just enough to free the given amount of
// memory. Returns the bytes freed. Lock must be held.
func (s *InMemoryStorage) limitedEviction(minimumReclaimBytes uint64) uint64 {
	freedBytes := uint64(0)

	for freedBytes < minimumReclaimBytes {
		_, obj, ok := s.store.RemoveOldest()
		if !ok {
			break
		}
		freedBytes += obj.GetBytesUsed()
	}

	return freedBytes
}

func validateKey(key string) error {
	if len(key) == 0 {
		return ErrKeyTooShort
	}

	if len(key) > constants.MaxKeySizeBytes {
		return ErrKeyTooLong
	}

	return nil
}
