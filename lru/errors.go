package lru

import (
	"errors"
	"fmt"
)

// ErrInvalidCapacity is returned (wrapped in a *ConfigError) when a cache is
// built with a capacity that is not a positive integer.
var ErrInvalidCapacity = errors.New("capacity must be a positive integer")

// ConfigError reports a cache constructed with invalid settings.
type ConfigError struct {
	Field string
	Value int
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("lru: invalid %s %d: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ConsistencyError is the panic value raised when the index, the recency list
// and the size counter disagree. Once raised the cache must not be used again.
type ConsistencyError struct {
	Op     string
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("lru: consistency violation in %s: %s", e.Op, e.Detail)
}

var (
	errIndexedNodeUnlinked = &ConsistencyError{Op: "relink", Detail: "indexed node is not linked"}
	errRelinkFailed        = &ConsistencyError{Op: "relink", Detail: "node could not be appended"}
	errEvictEmpty          = &ConsistencyError{Op: "evict", Detail: "cache is at capacity but the list is empty"}
	errEvictIndexMismatch  = &ConsistencyError{Op: "evict", Detail: "oldest node is not the one indexed under its key"}
	errSizeMismatch        = &ConsistencyError{Op: "size", Detail: "size, index and list length disagree"}
	errReleaseLinked       = &ConsistencyError{Op: "release", Detail: "slot released while still linked"}
)

func newCapacityError(capacity int) error {
	return &ConfigError{Field: "capacity", Value: capacity, Err: ErrInvalidCapacity}
}
