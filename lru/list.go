package lru

import "strings"

// recencyList is a doubly-linked list over an arena of nodes. Slots 0 and 1
// are the head and tail sentinels; live entries sit between them ordered from
// least recently used (after head) to most recently used (before tail).
//
// All link manipulation is centralized here. The list never traverses itself
// for append or remove; both work through the given node's neighbours.
type recencyList[K comparable, V any] struct {
	nodes []node[K, V]
	// Released slots, reused by alloc before the arena grows.
	free []handle
	live int
}

func newRecencyList[K comparable, V any](sizeHint int) *recencyList[K, V] {
	l := &recencyList[K, V]{
		nodes: make([]node[K, V], 2, sizeHint+2),
	}
	l.nodes[headSlot] = node[K, V]{prev: nilHandle, next: tailSlot}
	l.nodes[tailSlot] = node[K, V]{prev: headSlot, next: nilHandle}
	return l
}

// alloc stores key and value in an unlinked slot and returns its handle.
func (l *recencyList[K, V]) alloc(key K, value V) handle {
	n := node[K, V]{key: key, value: value, prev: nilHandle, next: nilHandle}
	if last := len(l.free) - 1; last >= 0 {
		h := l.free[last]
		l.free = l.free[:last]
		l.nodes[h] = n
		return h
	}
	l.nodes = append(l.nodes, n)
	return handle(len(l.nodes) - 1)
}

// release returns an unlinked slot to the free list, dropping its key and
// value so the arena does not keep them reachable.
func (l *recencyList[K, V]) release(h handle) bool {
	if isSentinel(h) || !l.nodes[h].unlinked() {
		return false
	}
	l.nodes[h] = node[K, V]{prev: nilHandle, next: nilHandle}
	l.free = append(l.free, h)
	return true
}

// append links h immediately before the tail sentinel, marking it most
// recently used. Returns false if h is a sentinel or already linked.
func (l *recencyList[K, V]) append(h handle) bool {
	if isSentinel(h) || !l.nodes[h].unlinked() {
		return false
	}
	last := l.nodes[tailSlot].prev

	n := &l.nodes[h]
	n.prev = last
	n.next = tailSlot
	l.nodes[last].next = h
	l.nodes[tailSlot].prev = h

	l.live++
	return true
}

// remove unlinks h from wherever it sits and clears its links. Returns false
// if h is a sentinel or not currently linked.
func (l *recencyList[K, V]) remove(h handle) bool {
	if isSentinel(h) || !l.nodes[h].linked() {
		return false
	}
	n := &l.nodes[h]
	l.nodes[n.prev].next = n.next
	l.nodes[n.next].prev = n.prev
	n.prev = nilHandle
	n.next = nilHandle

	l.live--
	return true
}

// oldest returns the least recently used node, the one right after head.
func (l *recencyList[K, V]) oldest() (handle, bool) {
	first := l.nodes[headSlot].next
	if first == tailSlot {
		return nilHandle, false
	}
	return first, true
}

func (l *recencyList[K, V]) len() int {
	return l.live
}

// walk visits live nodes from least to most recently used until fn returns
// false.
func (l *recencyList[K, V]) walk(fn func(h handle, n *node[K, V]) bool) {
	for h := l.nodes[headSlot].next; h != tailSlot; h = l.nodes[h].next {
		if !fn(h, &l.nodes[h]) {
			return
		}
	}
}

// walkBackward visits live nodes from most to least recently used.
func (l *recencyList[K, V]) walkBackward(fn func(h handle, n *node[K, V]) bool) {
	for h := l.nodes[tailSlot].prev; h != headSlot; h = l.nodes[h].prev {
		if !fn(h, &l.nodes[h]) {
			return
		}
	}
}

func (l *recencyList[K, V]) String() string {
	var b strings.Builder
	b.WriteString("recencyList,\n    <head>")
	l.walk(func(_ handle, n *node[K, V]) bool {
		b.WriteString(",\n    ")
		b.WriteString(n.String())
		return true
	})
	b.WriteString(",\n    <tail>")
	return b.String()
}

func isSentinel(h handle) bool {
	return h == headSlot || h == tailSlot
}
