package levelx

import lru "github.com/hashicorp/golang-lru/v2"

// PhysicalAddress identifies a physical sector (NOR) or page (NAND) within
// a block. It is the common currency the mapping cache and extended cache
// key on, so both engines can share one cache implementation.
type PhysicalAddress struct {
	Block uint32
	Index uint32
}

// MappingLocation is what the sector-mapping cache resolves a logical
// sector to: where its live mapping entry is, and where its payload is.
// For NOR the two coincide (the mapping entry and the sector live at
// parallel offsets within the same block); for NAND the mapping is carried
// in the page's own spare area, so EntryAddr == PayloadAddr there too. The
// fields are kept distinct because a future engine need not share that
// coincidence.
type MappingLocation struct {
	EntryAddr   PhysicalAddress
	PayloadAddr PhysicalAddress
}

// MappingCache accelerates logical-sector -> mapping-entry lookup (§3.3).
// It wraps a fixed-capacity LRU so memory use is bounded regardless of the
// logical address space size, exactly the role hashicorp/golang-lru plays
// for address/state caches in the pack's blockchain-adjacent repos.
type MappingCache struct {
	lru *lru.Cache[uint32, MappingLocation]
}

// NewMappingCache returns a MappingCache holding up to capacity entries.
func NewMappingCache(capacity int) (*MappingCache, error) {
	c, err := lru.New[uint32, MappingLocation](capacity)
	if err != nil {
		return nil, err
	}

	return &MappingCache{lru: c}, nil
}

// Get returns the cached location for a logical sector, if present.
func (c *MappingCache) Get(logical uint32) (MappingLocation, bool) {
	return c.lru.Get(logical)
}

// Put records (or replaces) the cached location for a logical sector.
func (c *MappingCache) Put(logical uint32, loc MappingLocation) {
	c.lru.Add(logical, loc)
}

// Invalidate removes a logical sector's cached location. Callers must
// invoke this before any write that would change the sector's mapping
// location, under the engine mutex (§3.3 invariant).
func (c *MappingCache) Invalidate(logical uint32) {
	c.lru.Remove(logical)
}

// InvalidateBlock removes every cached entry whose mapping or payload
// address falls within block. Used when a block is erased out from under
// the cache (reclaim's final step).
func (c *MappingCache) InvalidateBlock(block uint32) {
	for _, logical := range c.lru.Keys() {
		loc, ok := c.lru.Peek(logical)
		if !ok {
			continue
		}

		if loc.EntryAddr.Block == block || loc.PayloadAddr.Block == block {
			c.lru.Remove(logical)
		}
	}
}
