package cache

import (
	"sync/atomic"
	"time"

	"github.com/authz-engine/pdp-core/pkg/types"
)

// HybridCache puts a process-local LRU (L1) in front of a shared cache (L2)
type HybridCache struct {
	l1 *LRU
	l2 Cache

	l1Hits uint64
	l2Hits uint64
	misses uint64
}

// NewHybridCache creates a two-level cache. l2 may be nil, in which case
// the hybrid cache behaves like its L1.
func NewHybridCache(l1Capacity int, l1TTL time.Duration, l2 Cache) *HybridCache {
	return &HybridCache{
		l1: NewLRU(l1Capacity, l1TTL),
		l2: l2,
	}
}

// Get checks L1 first and back-fills it on an L2 hit
func (h *HybridCache) Get(key string) (types.Result, bool) {
	if v, ok := h.l1.Get(key); ok {
		atomic.AddUint64(&h.l1Hits, 1)
		return v, true
	}
	if h.l2 != nil {
		if v, ok := h.l2.Get(key); ok {
			atomic.AddUint64(&h.l2Hits, 1)
			h.l1.Set(key, v)
			return v, true
		}
	}
	atomic.AddUint64(&h.misses, 1)
	return types.Result{}, false
}

// Set writes through to both levels
func (h *HybridCache) Set(key string, value types.Result) {
	h.l1.Set(key, value)
	if h.l2 != nil {
		h.l2.Set(key, value)
	}
}

// Delete removes the key from both levels
func (h *HybridCache) Delete(key string) {
	h.l1.Delete(key)
	if h.l2 != nil {
		h.l2.Delete(key)
	}
}

// Clear empties both levels
func (h *HybridCache) Clear() {
	h.l1.Clear()
	if h.l2 != nil {
		h.l2.Clear()
	}
}

// Stats reports combined statistics; Size is the L1 size
func (h *HybridCache) Stats() Stats {
	hits := atomic.LoadUint64(&h.l1Hits) + atomic.LoadUint64(&h.l2Hits)
	return newStats(h.l1.Stats().Size, hits, atomic.LoadUint64(&h.misses))
}

// LevelHits returns hits served by L1 and by L2
func (h *HybridCache) LevelHits() (l1, l2 uint64) {
	return atomic.LoadUint64(&h.l1Hits), atomic.LoadUint64(&h.l2Hits)
}
