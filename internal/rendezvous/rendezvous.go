// Package rendezvous assigns keys to members with highest-random-weight
// hashing. Storage uses it to pick a shard for a key and the client uses it
// to pick a server, so a member leaving only moves the keys it owned.
package rendezvous

import (
	"encoding/binary"
	"sort"
	"sync/atomic"
)

// Member is one routing target: a storage shard or a cache server.
type Member struct {
	id           string
	identityHash uint64 // pre-computed, immutable
}

func NewMember(id string) *Member {
	return &Member{
		id:           id,
		identityHash: DefaultHasher.Hash64([]byte(id)),
	}
}

func (m *Member) ID() string {
	return m.id
}

// Router tells callers which member owns a key.
type Router interface {
	// SetMembers replaces the member set.
	SetMembers(members []*Member)
	// Pick returns the owner of key, or nil if there are no members.
	Pick(key []byte) *Member
	// Rank returns up to k members for key, best first.
	Rank(key []byte, k int) []*Member
}

var _ Router = (*HRWRouter)(nil)

// HRWRouter is safe for concurrent use. Readers see either the old or the
// new member set, never a mix.
type HRWRouter struct {
	members atomic.Pointer[[]*Member]
	hasher  Hasher
}

func NewHRWRouter(members []*Member, salt []byte) *HRWRouter {
	r := &HRWRouter{hasher: NewXXH3Hasher(salt)}
	r.SetMembers(members)
	return r
}

func (r *HRWRouter) SetMembers(members []*Member) {
	copied := make([]*Member, len(members))
	copy(copied, members)
	r.members.Store(&copied)
}

func (r *HRWRouter) Members() []*Member {
	return *r.members.Load()
}

type scored struct {
	member *Member
	score  uint64
}

// better orders by score, then by id so that ties are stable.
func better(a, b scored) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.member.id < b.member.id
}

// scorer returns a function computing hash(key || memberHash). The buffer is
// shared across calls, so the returned function is not reentrant.
func (r *HRWRouter) scorer(key []byte) func(*Member) scored {
	buf := make([]byte, len(key)+8)
	copy(buf, key)
	return func(m *Member) scored {
		binary.LittleEndian.PutUint64(buf[len(key):], m.identityHash)
		return scored{member: m, score: r.hasher.Hash64(buf)}
	}
}

func (r *HRWRouter) Pick(key []byte) *Member {
	members := r.Members()
	if len(members) == 0 {
		return nil
	}

	score := r.scorer(key)
	best := score(members[0])
	for _, m := range members[1:] {
		if s := score(m); better(s, best) {
			best = s
		}
	}
	return best.member
}

func (r *HRWRouter) Rank(key []byte, k int) []*Member {
	members := r.Members()
	if len(members) == 0 || k <= 0 {
		return nil
	}
	if k == 1 {
		return []*Member{r.Pick(key)}
	}

	score := r.scorer(key)
	all := make([]scored, len(members))
	for i, m := range members {
		all[i] = score(m)
	}
	sort.Slice(all, func(i, j int) bool {
		return better(all[i], all[j])
	})

	k = min(k, len(all))
	out := make([]*Member, k)
	for i := range k {
		out[i] = all[i].member
	}
	return out
}
