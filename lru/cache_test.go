package lru

import (
	"errors"
	"math/rand"
	"slices"
	"strings"
	"testing"
)

// ============================================================================
// Helper Functions
// ============================================================================

func newCache(t *testing.T, capacity int) *Cache[int, int] {
	t.Helper()
	c, err := New[int, int](capacity)
	if err != nil {
		t.Fatalf("New(%d) failed: %v", capacity, err)
	}
	return c
}

func mustHit(t *testing.T, c *Cache[int, int], key, want int) {
	t.Helper()
	got, ok := c.Get(key)
	if !ok {
		t.Fatalf("Get(%d) missed, want %d", key, want)
	}
	if got != want {
		t.Errorf("Get(%d) = %d, want %d", key, got, want)
	}
}

func mustMiss(t *testing.T, c *Cache[int, int], key int) {
	t.Helper()
	if got, ok := c.Get(key); ok {
		t.Fatalf("Get(%d) = %d, want miss", key, got)
	}
}

func assertConsistent(t *testing.T, c *Cache[int, int]) {
	t.Helper()
	if err := c.checkInvariants(); err != nil {
		t.Fatalf("invariants broken: %v", err)
	}
}

func assertStats(t *testing.T, c *Cache[int, int], want Stats) {
	t.Helper()
	if got := c.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

// ============================================================================
// Construction Tests
// ============================================================================

func TestNew_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, -128} {
		c, err := New[string, string](capacity)
		if c != nil {
			t.Errorf("New(%d) returned a cache", capacity)
		}
		if !errors.Is(err, ErrInvalidCapacity) {
			t.Errorf("New(%d) error = %v, want ErrInvalidCapacity", capacity, err)
		}
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Value != capacity {
			t.Errorf("New(%d) error = %#v, want *ConfigError with value", capacity, err)
		}
	}
}

func TestNew_Empty(t *testing.T) {
	c := newCache(t, 3)
	assertStats(t, c, Stats{Capacity: 3})
	assertConsistent(t, c)
}

// ============================================================================
// Get / Put Tests
// ============================================================================

func TestPutThenGet(t *testing.T) {
	c := newCache(t, 2)
	c.Put(1, 100)
	mustHit(t, c, 1, 100)
	assertStats(t, c, Stats{Hits: 1, Capacity: 2, Size: 1})
}

func TestGet_MissCounted(t *testing.T) {
	c := newCache(t, 2)
	mustMiss(t, c, 42)
	mustMiss(t, c, 42)
	assertStats(t, c, Stats{Misses: 2, Capacity: 2})
}

func TestGet_MovesToMostRecent(t *testing.T) {
	c := newCache(t, 3)
	c.Put(1, 1)
	c.Put(2, 2)
	c.Put(3, 3)

	c.Get(1)
	if got := c.Keys(); !slices.Equal(got, []int{2, 3, 1}) {
		t.Errorf("Keys() = %v, want [2 3 1]", got)
	}
	assertConsistent(t, c)
}

func TestPut_EvictsOldestOnly(t *testing.T) {
	const capacity = 5
	c := newCache(t, capacity)
	for k := 1; k <= capacity+1; k++ {
		c.Put(k, k*10)
	}

	if c.Contains(1) {
		t.Error("key 1 should have been evicted")
	}
	for k := 2; k <= capacity+1; k++ {
		if !c.Contains(k) {
			t.Errorf("key %d should still be resident", k)
		}
	}
	if c.Len() != capacity {
		t.Errorf("Len() = %d, want %d", c.Len(), capacity)
	}
	assertConsistent(t, c)
}

func TestGet_ProtectsFromEviction(t *testing.T) {
	c := newCache(t, 2)
	c.Put(1, 1)
	c.Put(2, 2)
	c.Get(1)
	c.Put(3, 3)

	if c.Contains(2) {
		t.Error("key 2 should have been evicted")
	}
	if !c.Contains(1) || !c.Contains(3) {
		t.Error("keys 1 and 3 should be resident")
	}
}

func TestPut_UpdateExistingKey(t *testing.T) {
	c := newCache(t, 2)
	c.Put(1, 1)
	c.Put(2, 2)
	c.Put(1, 10)
	if c.Len() != 2 {
		t.Errorf("Len() after update = %d, want 2", c.Len())
	}

	c.Put(3, 3)
	if c.Contains(2) {
		t.Error("key 2 should have been evicted")
	}
	mustHit(t, c, 1, 10)
	assertConsistent(t, c)
}

func TestPut_ReinsertAfterEviction(t *testing.T) {
	c := newCache(t, 1)
	c.Put(1, 1)
	c.Put(2, 2)
	c.Put(1, 11)

	mustHit(t, c, 1, 11)
	mustMiss(t, c, 2)
	assertConsistent(t, c)
}

func TestScenario_CapacityTwo(t *testing.T) {
	c := newCache(t, 2)
	c.Put(1, 1)
	c.Put(2, 2)
	mustHit(t, c, 1, 1)
	c.Put(3, 3)
	mustMiss(t, c, 2)
	mustHit(t, c, 3, 3)
	mustHit(t, c, 1, 1)

	assertStats(t, c, Stats{Hits: 3, Misses: 1, Capacity: 2, Size: 2})
}

func TestScenario_OriginalWalkthrough(t *testing.T) {
	c := newCache(t, 2)
	if c.Contains(1) {
		t.Fatal("empty cache should not contain 1")
	}
	c.Put(1, 1)
	if !c.Contains(1) {
		t.Fatal("cache should contain 1")
	}
	c.Put(2, 2)
	mustHit(t, c, 1, 1)
	c.Put(3, 3)
	mustMiss(t, c, 2)
	c.Put(4, 4)
	mustMiss(t, c, 1)
	mustHit(t, c, 3, 3)
	mustHit(t, c, 4, 4)

	want := "CacheInfo(hits=3, misses=2, capacity=2, current size=2)"
	if got := c.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

// ============================================================================
// Side-effect-free Accessor Tests
// ============================================================================

func TestContains_DoesNotTouchRecencyOrCounters(t *testing.T) {
	c := newCache(t, 2)
	c.Put(1, 1)
	c.Put(2, 2)

	for range 3 {
		if !c.Contains(1) {
			t.Fatal("Contains(1) = false")
		}
	}
	c.Contains(99)
	assertStats(t, c, Stats{Capacity: 2, Size: 2})

	// 1 is still the oldest, Contains did not refresh it.
	c.Put(3, 3)
	if c.Contains(1) {
		t.Error("key 1 should have been evicted")
	}
}

func TestPeek_DoesNotTouchRecencyOrCounters(t *testing.T) {
	c := newCache(t, 2)
	c.Put(1, 1)
	c.Put(2, 2)

	if v, ok := c.Peek(1); !ok || v != 1 {
		t.Errorf("Peek(1) = %d, %t", v, ok)
	}
	if _, ok := c.Peek(5); ok {
		t.Error("Peek(5) should miss")
	}
	assertStats(t, c, Stats{Capacity: 2, Size: 2})
	if got := c.Keys(); !slices.Equal(got, []int{1, 2}) {
		t.Errorf("Keys() = %v, want [1 2]", got)
	}
}

func TestStats_Idempotent(t *testing.T) {
	c := newCache(t, 2)
	c.Put(1, 1)
	c.Get(1)
	c.Get(2)

	first := c.Stats()
	for range 10 {
		if got := c.Stats(); got != first {
			t.Fatalf("Stats() changed from %+v to %+v", first, got)
		}
	}
	if got := c.Keys(); !slices.Equal(got, []int{1}) {
		t.Errorf("Keys() = %v, want [1]", got)
	}
}

func TestStats_HitRatio(t *testing.T) {
	if r := (Stats{}).HitRatio(); r != 0 {
		t.Errorf("HitRatio() on empty = %f, want 0", r)
	}
	if r := (Stats{Hits: 3, Misses: 1}).HitRatio(); r != 0.75 {
		t.Errorf("HitRatio() = %f, want 0.75", r)
	}
}

// ============================================================================
// Remove / Purge Tests
// ============================================================================

func TestRemove(t *testing.T) {
	c := newCache(t, 3)
	c.Put(1, 1)
	c.Put(2, 2)

	if !c.Remove(1) {
		t.Fatal("Remove(1) = false")
	}
	if c.Remove(1) {
		t.Error("second Remove(1) should report false")
	}
	if c.Contains(1) || c.Len() != 1 {
		t.Errorf("after Remove: Contains(1)=%t Len()=%d", c.Contains(1), c.Len())
	}
	assertConsistent(t, c)
}

func TestRemoveOldest(t *testing.T) {
	c := newCache(t, 3)
	if _, _, ok := c.RemoveOldest(); ok {
		t.Error("RemoveOldest() on empty cache should report false")
	}

	c.Put(1, 10)
	c.Put(2, 20)
	c.Get(1)

	k, v, ok := c.RemoveOldest()
	if !ok || k != 2 || v != 20 {
		t.Errorf("RemoveOldest() = %d, %d, %t, want 2, 20, true", k, v, ok)
	}
	assertConsistent(t, c)
}

func TestOldest(t *testing.T) {
	c := newCache(t, 3)
	if _, _, ok := c.Oldest(); ok {
		t.Error("Oldest() on empty cache should report false")
	}
	c.Put(1, 10)
	c.Put(2, 20)

	k, v, ok := c.Oldest()
	if !ok || k != 1 || v != 10 {
		t.Errorf("Oldest() = %d, %d, %t, want 1, 10, true", k, v, ok)
	}
	if c.Len() != 2 {
		t.Error("Oldest() should not remove")
	}
}

func TestPurge(t *testing.T) {
	c := newCache(t, 2)
	c.Put(1, 1)
	c.Put(2, 2)
	c.Get(1)
	c.Purge()

	assertStats(t, c, Stats{Hits: 1, Capacity: 2})
	assertConsistent(t, c)

	c.Put(3, 3)
	mustHit(t, c, 3, 3)
}

func TestEvictCallback(t *testing.T) {
	var evicted []int
	c, err := New[int, int](2, WithEvictCallback(func(k, _ int) {
		evicted = append(evicted, k)
	}))
	if err != nil {
		t.Fatal(err)
	}

	c.Put(1, 1)
	c.Put(2, 2)
	c.Put(1, 10) // update, no eviction
	c.Put(3, 3)  // evicts 2
	c.Remove(1)  // explicit, no callback
	c.RemoveOldest()

	if !slices.Equal(evicted, []int{2, 3}) {
		t.Errorf("evicted = %v, want [2 3]", evicted)
	}
}

// ============================================================================
// Consistency Tests
// ============================================================================

func TestRandomOperations_InvariantsHold(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c := newCache(t, 8)
	var hits, misses uint64

	for i := 0; i < 5000; i++ {
		key := rng.Intn(20)
		switch rng.Intn(4) {
		case 0, 1:
			c.Put(key, i)
		case 2:
			if _, ok := c.Get(key); ok {
				hits++
			} else {
				misses++
			}
		case 3:
			c.Remove(key)
		}

		if c.Len() > c.Capacity() {
			t.Fatalf("step %d: Len() = %d exceeds capacity", i, c.Len())
		}
		if err := c.checkInvariants(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	st := c.Stats()
	if st.Hits != hits || st.Misses != misses {
		t.Errorf("Stats() hits=%d misses=%d, observed hits=%d misses=%d", st.Hits, st.Misses, hits, misses)
	}
}

func TestArena_DoesNotGrowPastCapacity(t *testing.T) {
	c := newCache(t, 4)
	for i := 0; i < 1000; i++ {
		c.Put(i, i)
	}
	if n := len(c.list.nodes); n != 4+2 {
		t.Errorf("arena size = %d, want %d", n, 6)
	}
}

func TestCorruptedList_Panics(t *testing.T) {
	c := newCache(t, 2)
	c.Put(1, 1)

	// Unlink behind the cache's back.
	c.list.remove(c.index[1])

	defer func() {
		r := recover()
		var ce *ConsistencyError
		err, _ := r.(error)
		if !errors.As(err, &ce) {
			t.Fatalf("recover() = %v, want *ConsistencyError", r)
		}
	}()
	c.Get(1)
}

func TestDump_ListsNodesInRecencyOrder(t *testing.T) {
	c := newCache(t, 3)
	c.Put(1, 10)
	c.Put(2, 20)
	c.Get(1)

	d := c.Dump()
	first := strings.Index(d, "key: 2")
	second := strings.Index(d, "key: 1")
	if first < 0 || second < 0 || first > second {
		t.Errorf("Dump() = %q, want 2 before 1", d)
	}
}
