package remote

import (
	"sync"
	"time"
)

const (
	defaultPromiseTTL      = 30 * time.Second
	promiseCleanupInterval = 15 * time.Second
)

// Promise is one client's reservation to fill a missing key. While it is
// live, other clients asking to fill the same key are told to back off.
type Promise struct {
	Key       string
	Size      int64 // from x-jc-size, -1 if not given
	ExpiresAt time.Time
}

// PromiseMap tracks live promises. Expired entries are dropped lazily on
// access and by a background sweep.
type PromiseMap struct {
	mu       sync.Mutex
	promises map[string]*Promise
	now      func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewPromiseMap() *PromiseMap {
	return newPromiseMap(time.Now, promiseCleanupInterval)
}

func newPromiseMap(now func() time.Time, sweepEvery time.Duration) *PromiseMap {
	pm := &PromiseMap{
		promises: make(map[string]*Promise),
		now:      now,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go pm.sweepLoop(sweepEvery)
	return pm
}

// Reserve creates a promise for key unless a live one exists. On conflict it
// returns the time left on the existing promise.
func (pm *PromiseMap) Reserve(key string, size int64, ttl time.Duration) (remaining time.Duration, ok bool) {
	if ttl <= 0 {
		ttl = defaultPromiseTTL
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	now := pm.now()
	if existing := pm.liveLocked(key, now); existing != nil {
		return existing.ExpiresAt.Sub(now), false
	}
	pm.promises[key] = &Promise{Key: key, Size: size, ExpiresAt: now.Add(ttl)}
	return ttl, true
}

// Lookup returns the live promise for key, or nil.
func (pm *PromiseMap) Lookup(key string) *Promise {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.liveLocked(key, pm.now())
}

// Remaining returns the time left on key's promise, 0 if there is none.
func (pm *PromiseMap) Remaining(key string) time.Duration {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	now := pm.now()
	if p := pm.liveLocked(key, now); p != nil {
		return p.ExpiresAt.Sub(now)
	}
	return 0
}

// Release drops key's promise after a completed or abandoned upload.
func (pm *PromiseMap) Release(key string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.promises, key)
}

func (pm *PromiseMap) Len() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.promises)
}

// liveLocked returns key's promise if it has not expired, deleting it if it
// has. Lock must be held.
func (pm *PromiseMap) liveLocked(key string, now time.Time) *Promise {
	p, ok := pm.promises[key]
	if !ok {
		return nil
	}
	if !p.ExpiresAt.After(now) {
		delete(pm.promises, key)
		return nil
	}
	return p
}

func (pm *PromiseMap) sweepLoop(every time.Duration) {
	defer close(pm.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pm.sweep()
		case <-pm.stopChan:
			return
		}
	}
}

func (pm *PromiseMap) sweep() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	now := pm.now()
	for key, p := range pm.promises {
		if !p.ExpiresAt.After(now) {
			delete(pm.promises, key)
		}
	}
}

// Stop ends the sweeper and waits for it. Safe to call multiple times.
func (pm *PromiseMap) Stop() {
	pm.stopOnce.Do(func() {
		close(pm.stopChan)
	})
	<-pm.done
}
