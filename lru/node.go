package lru

import "fmt"

// handle addresses a node slot in the recency list's arena. Handles are
// plain indices, so the index map and the list can both refer to the same
// node without sharing pointers.
type handle int32

const (
	nilHandle handle = -1

	// Sentinel slots. Allocated once by newRecencyList and never freed.
	headSlot handle = 0
	tailSlot handle = 1
)

// node holds one key/value pair plus its neighbours in recency order.
// A node is either fully linked (prev and next both valid) or fully
// unlinked (both nilHandle).
type node[K comparable, V any] struct {
	key   K
	value V

	prev handle
	next handle
}

func (n *node[K, V]) linked() bool {
	return n.prev != nilHandle && n.next != nilHandle
}

func (n *node[K, V]) unlinked() bool {
	return n.prev == nilHandle && n.next == nilHandle
}

func (n *node[K, V]) String() string {
	return fmt.Sprintf("Node: key: %v, val: %v, has next: %t, has prev: %t",
		n.key, n.value, n.next != nilHandle, n.prev != nilHandle)
}
