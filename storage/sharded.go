package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/satmihir/justlru/internal/rendezvous"
	"github.com/satmihir/justlru/lru"
)

var ErrInvalidShardCount = errors.New("shard count must be greater than zero")

// ShardedStorage spreads keys over independent InMemoryStorage shards so that
// unrelated keys do not contend on one mutex. Each shard runs its own LRU;
// recency is therefore tracked per shard, not globally.
type ShardedStorage struct {
	shards map[*rendezvous.Member]*InMemoryStorage
	router *rendezvous.HRWRouter
}

// NewShardedStorage splits maxEntries and maxMemory evenly across shards.
func NewShardedStorage(shards, maxEntries int, maxMemory uint64, opts ...StorageOptions) (*ShardedStorage, error) {
	if shards <= 0 {
		return nil, ErrInvalidShardCount
	}
	if maxEntries <= 0 {
		return nil, &lru.ConfigError{Field: "capacity", Value: maxEntries, Err: lru.ErrInvalidCapacity}
	}

	perShardEntries := (maxEntries + shards - 1) / shards
	perShardMemory := maxMemory / uint64(shards)

	s := &ShardedStorage{
		shards: make(map[*rendezvous.Member]*InMemoryStorage, shards),
	}
	members := make([]*rendezvous.Member, shards)
	for i := range shards {
		shard, err := NewInMemoryStorage(perShardEntries, perShardMemory, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating shard %d: %w", i, err)
		}
		members[i] = rendezvous.NewMember(fmt.Sprintf("shard-%d", i))
		s.shards[members[i]] = shard
	}
	s.router = rendezvous.NewHRWRouter(members, nil)
	return s, nil
}

func (s *ShardedStorage) shardFor(key string) *InMemoryStorage {
	return s.shards[s.router.Pick([]byte(key))]
}

func (s *ShardedStorage) Get(key string) (*CacheEntry, error) {
	return s.shardFor(key).Get(key)
}

func (s *ShardedStorage) Peek(key string) (*CacheEntry, error) {
	return s.shardFor(key).Peek(key)
}

func (s *ShardedStorage) Put(key string, value []byte, ttl time.Duration) error {
	return s.shardFor(key).Put(key, value, ttl)
}

func (s *ShardedStorage) Delete(key string) error {
	return s.shardFor(key).Delete(key)
}

func (s *ShardedStorage) CanFit(keyLen, valueLen int) bool {
	// All shards share the same limits; any one answers for the rest.
	for _, shard := range s.shards {
		return shard.CanFit(keyLen, valueLen)
	}
	return false
}

// Stats sums the counters of every shard.
func (s *ShardedStorage) Stats() Stats {
	var total Stats
	for _, shard := range s.shards {
		st := shard.Stats()
		total.Hits += st.Hits
		total.Misses += st.Misses
		total.Capacity += st.Capacity
		total.Size += st.Size
		total.MemoryUsedBytes += st.MemoryUsedBytes
		total.MaxMemoryBytes += st.MaxMemoryBytes
		total.Evictions += st.Evictions
		total.Expirations += st.Expirations
	}
	return total
}

// ShardCount returns the number of shards.
func (s *ShardedStorage) ShardCount() int {
	return len(s.shards)
}
