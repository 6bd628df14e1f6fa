package levelx

import lru "github.com/hashicorp/golang-lru/v2"

// ExtendedCache caches whole sector/page payloads in RAM (§3.3, "Extended
// sector cache"). Eviction is least-recently-used; invalidation on block erase and update-in-place on single-word
// metadata writes are the two disciplines §4.1.6 requires, and are
// implemented here rather than by the engines re-deriving them.
type ExtendedCache struct {
	lru      *lru.Cache[PhysicalAddress, []byte]
	capacity int
}

// NewExtendedCache returns an ExtendedCache holding up to capacity whole
// payloads.
func NewExtendedCache(capacity int) (*ExtendedCache, error) {
	c, err := lru.New[PhysicalAddress, []byte](capacity)
	if err != nil {
		return nil, err
	}

	return &ExtendedCache{lru: c, capacity: capacity}, nil
}

// Get returns the cached payload for addr, if present. The returned slice
// must not be mutated by the caller; it is shared with the cache.
func (c *ExtendedCache) Get(addr PhysicalAddress) ([]byte, bool) {
	return c.lru.Get(addr)
}

// Put records (or replaces) the cached payload for addr.
func (c *ExtendedCache) Put(addr PhysicalAddress, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	c.lru.Add(addr, cp)
}

// UpdateWord patches a single word within a cached payload in place,
// without disturbing the entry's recency, mirroring the "on single-word
// writes, update the cached copy in place" rule of §4.1.6. If addr is not
// cached this is a no-op: there is nothing to keep in sync.
func (c *ExtendedCache) UpdateWord(addr PhysicalAddress, offset int, word []byte) {
	payload, ok := c.lru.Peek(addr)
	if !ok {
		return
	}

	if offset < 0 || offset+len(word) > len(payload) {
		return
	}

	copy(payload[offset:], word)
}

// InvalidateBlock drops every cached entry addressed within block, the
// "evict on block erase" rule of §4.1.6.
func (c *ExtendedCache) InvalidateBlock(block uint32) {
	for _, addr := range c.lru.Keys() {
		if addr.Block == block {
			c.lru.Remove(addr)
		}
	}
}

// Len returns the number of cached payloads.
func (c *ExtendedCache) Len() int {
	return c.lru.Len()
}
