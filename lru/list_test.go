package lru

import (
	"slices"
	"strings"
	"testing"
)

// Helper to build a list and append the given keys in order.
func newTestList(keys ...string) (*recencyList[string, int], map[string]handle) {
	l := newRecencyList[string, int](len(keys))
	handles := make(map[string]handle, len(keys))
	for i, k := range keys {
		h := l.alloc(k, i)
		l.append(h)
		handles[k] = h
	}
	return l, handles
}

// Helper to collect list keys from head to tail.
func listKeys(l *recencyList[string, int]) []string {
	var keys []string
	l.walk(func(_ handle, n *node[string, int]) bool {
		keys = append(keys, n.key)
		return true
	})
	return keys
}

// Helper to collect list keys from tail to head.
func listKeysReverse(l *recencyList[string, int]) []string {
	var keys []string
	l.walkBackward(func(_ handle, n *node[string, int]) bool {
		keys = append(keys, n.key)
		return true
	})
	return keys
}

func assertOrder(t *testing.T, l *recencyList[string, int], want ...string) {
	t.Helper()
	if got := listKeys(l); !slices.Equal(got, want) {
		t.Errorf("forward order = %v, want %v", got, want)
	}
	reversed := slices.Clone(want)
	slices.Reverse(reversed)
	if got := listKeysReverse(l); !slices.Equal(got, reversed) {
		t.Errorf("backward order = %v, want %v", got, reversed)
	}
	if l.len() != len(want) {
		t.Errorf("len() = %d, want %d", l.len(), len(want))
	}
}

// ============================================================================
// Sentinel Tests
// ============================================================================

func TestNewList_SentinelsLinked(t *testing.T) {
	l := newRecencyList[string, int](0)

	if l.nodes[headSlot].next != tailSlot {
		t.Error("head.next should be tail")
	}
	if l.nodes[tailSlot].prev != headSlot {
		t.Error("tail.prev should be head")
	}
	assertOrder(t, l)
}

func TestSentinels_CannotBeRemovedOrAppended(t *testing.T) {
	l, _ := newTestList("a")

	for _, h := range []handle{headSlot, tailSlot} {
		if l.remove(h) {
			t.Errorf("remove(%d) should fail on a sentinel", h)
		}
		if l.append(h) {
			t.Errorf("append(%d) should fail on a sentinel", h)
		}
		if l.release(h) {
			t.Errorf("release(%d) should fail on a sentinel", h)
		}
	}
	assertOrder(t, l, "a")
}

// ============================================================================
// append Tests
// ============================================================================

func TestAppend_EmptyList(t *testing.T) {
	l := newRecencyList[string, int](1)
	a := l.alloc("a", 1)

	if !l.append(a) {
		t.Fatal("append() returned false")
	}

	if l.nodes[headSlot].next != a || l.nodes[tailSlot].prev != a {
		t.Error("single element should sit between the sentinels")
	}
	if l.nodes[a].prev != headSlot || l.nodes[a].next != tailSlot {
		t.Error("single element should point at both sentinels")
	}
	assertOrder(t, l, "a")
}

func TestAppend_ThreeElements(t *testing.T) {
	l, _ := newTestList("a", "b", "c")
	assertOrder(t, l, "a", "b", "c")
}

func TestAppend_AlreadyLinked(t *testing.T) {
	l, h := newTestList("a", "b")

	if l.append(h["a"]) {
		t.Error("append() of a linked node should fail")
	}
	assertOrder(t, l, "a", "b")
}

// ============================================================================
// remove Tests
// ============================================================================

func TestRemove_SingleElement(t *testing.T) {
	l, h := newTestList("a")

	if !l.remove(h["a"]) {
		t.Fatal("remove() returned false")
	}
	if !l.nodes[h["a"]].unlinked() {
		t.Error("removed node should have cleared links")
	}
	assertOrder(t, l)
}

func TestRemove_Positions(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		remove string
		want   []string
	}{
		{"head of two", []string{"a", "b"}, "a", []string{"b"}},
		{"tail of two", []string{"a", "b"}, "b", []string{"a"}},
		{"head of three", []string{"a", "b", "c"}, "a", []string{"b", "c"}},
		{"middle of three", []string{"a", "b", "c"}, "b", []string{"a", "c"}},
		{"tail of three", []string{"a", "b", "c"}, "c", []string{"a", "b"}},
		{"middle of five", []string{"a", "b", "c", "d", "e"}, "c", []string{"a", "b", "d", "e"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, h := newTestList(tt.keys...)
			if !l.remove(h[tt.remove]) {
				t.Fatalf("remove(%q) returned false", tt.remove)
			}
			assertOrder(t, l, tt.want...)
		})
	}
}

func TestRemove_AlreadyUnlinked(t *testing.T) {
	l, h := newTestList("a", "b")
	l.remove(h["a"])

	if l.remove(h["a"]) {
		t.Error("second remove() should report failure")
	}
	assertOrder(t, l, "b")
}

func TestRemove_NeverLinked(t *testing.T) {
	l := newRecencyList[string, int](1)
	a := l.alloc("a", 1)

	if l.remove(a) {
		t.Error("remove() of a freshly allocated node should fail")
	}
}

// ============================================================================
// oldest Tests
// ============================================================================

func TestOldest_EmptyList(t *testing.T) {
	l := newRecencyList[string, int](0)
	if _, ok := l.oldest(); ok {
		t.Error("oldest() on empty list should report false")
	}
}

func TestOldest_NonEmpty(t *testing.T) {
	l, h := newTestList("a", "b", "c")
	got, ok := l.oldest()
	if !ok || got != h["a"] {
		t.Errorf("oldest() = %d, %t, want %d, true", got, ok, h["a"])
	}
}

// ============================================================================
// Arena Tests
// ============================================================================

func TestRelease_ReusesSlot(t *testing.T) {
	l, h := newTestList("a", "b")
	l.remove(h["a"])
	if !l.release(h["a"]) {
		t.Fatal("release() returned false")
	}

	c := l.alloc("c", 3)
	if c != h["a"] {
		t.Errorf("alloc() = %d, want reused slot %d", c, h["a"])
	}
	if len(l.nodes) != 4 {
		t.Errorf("arena size = %d, want 4", len(l.nodes))
	}
}

func TestRelease_LinkedNodeRefused(t *testing.T) {
	l, h := newTestList("a")
	if l.release(h["a"]) {
		t.Error("release() of a linked node should fail")
	}
	assertOrder(t, l, "a")
}

func TestRelease_ClearsPayload(t *testing.T) {
	l := newRecencyList[string, *int](1)
	v := 7
	h := l.alloc("a", &v)
	l.append(h)
	l.remove(h)
	l.release(h)

	if l.nodes[h].value != nil || l.nodes[h].key != "" {
		t.Error("released slot should not keep key or value reachable")
	}
}

// ============================================================================
// Complex Sequence Tests
// ============================================================================

func TestSequence_RemoveAppendMovesToEnd(t *testing.T) {
	l, h := newTestList("a", "b", "c")

	l.remove(h["a"])
	l.append(h["a"])
	assertOrder(t, l, "b", "c", "a")

	l.remove(h["c"])
	l.append(h["c"])
	assertOrder(t, l, "b", "a", "c")
}

func TestSequence_RemoveAllThenAdd(t *testing.T) {
	l, h := newTestList("a", "b", "c")
	for _, k := range []string{"b", "a", "c"} {
		l.remove(h[k])
		l.release(h[k])
	}
	assertOrder(t, l)

	d := l.alloc("d", 4)
	l.append(d)
	assertOrder(t, l, "d")
}

func TestString_IncludesSentinels(t *testing.T) {
	l, _ := newTestList("a")
	s := l.String()
	if !strings.Contains(s, "<head>") || !strings.Contains(s, "<tail>") {
		t.Errorf("String() = %q, want sentinels", s)
	}
	if !strings.Contains(s, "Node: key: a, val: 0, has next: true, has prev: true") {
		t.Errorf("String() = %q, want node a", s)
	}
}
