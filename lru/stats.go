package lru

import "fmt"

// Stats is a point-in-time snapshot of a cache's counters.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Capacity int
	Size     int
}

// HitRatio returns Hits / (Hits + Misses), or 0 before any lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func (s Stats) String() string {
	return fmt.Sprintf("CacheInfo(hits=%d, misses=%d, capacity=%d, current size=%d)",
		s.Hits, s.Misses, s.Capacity, s.Size)
}
