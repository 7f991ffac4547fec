package constants

import "time"

const (
	MaxKeySizeBytes = 1024
	// MaxValueSizeBytes is the hard cap on value size (64 MB)
	MaxValueSizeBytes = 64 * 1024 * 1024

	// DefaultEntryTTL applies to uploads that do not carry x-jc-ttl.
	DefaultEntryTTL = 30 * time.Minute

	DefaultListenAddr = ":7070"

	// Server storage defaults
	DefaultCapacity       = 10_000
	DefaultMaxMemoryBytes = 256 * 1024 * 1024
	DefaultShards         = 1
)
