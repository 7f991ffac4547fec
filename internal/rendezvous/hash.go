package rendezvous

import (
	"github.com/zeebo/xxh3"
)

// DefaultHasher hashes member identities. It is unseeded so identity hashes
// are stable across processes.
var DefaultHasher Hasher = NewXXH3Hasher(nil)

// Hasher computes the 64-bit scores used for rendezvous routing.
type Hasher interface {
	Hash64(data []byte) uint64
}

// XXH3Hasher is a Hasher backed by xxhash3. A salt, when given, is folded
// into a seed so that differently salted routers spread keys differently.
type XXH3Hasher struct {
	seed uint64
}

func NewXXH3Hasher(salt []byte) *XXH3Hasher {
	h := &XXH3Hasher{}
	if len(salt) > 0 {
		h.seed = xxh3.Hash(salt)
	}
	return h
}

func (x *XXH3Hasher) Hash64(data []byte) uint64 {
	return xxh3.HashSeed(data, x.seed)
}
