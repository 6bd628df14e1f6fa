package nor

import "github.com/eclipse-threadx/levelx-go"

// find resolves a logical sector to its live physical location (§4.3
// logical_sector_find): O(1) via the mapping cache when enabled,
// otherwise the in-memory liveMap built at Open and kept current by
// every write/release.
func (f *Flash) find(logical uint32) (physAddr, bool) {
	if f.mappingCache != nil {
		if loc, ok := f.mappingCache.Get(logical); ok {
			return physAddr{block: loc.EntryAddr.Block, sector: loc.EntryAddr.Index}, true
		}
	}

	addr, ok := f.liveMap[logical]
	if ok && f.mappingCache != nil {
		f.mappingCache.Put(logical, toMappingLocation(addr))
	}

	return addr, ok
}

func toMappingLocation(a physAddr) levelx.MappingLocation {
	pa := levelx.PhysicalAddress{Block: a.block, Index: a.sector}
	return levelx.MappingLocation{EntryAddr: pa, PayloadAddr: pa}
}

// invalidateMapping removes logical from every cache that could disagree
// with media once its mapping location changes (§4.3
// sector_mapping_cache_invalidate, §3.3 invariant: invalidate before the
// write that changes the mapping is acknowledged).
func (f *Flash) invalidateMapping(logical uint32) {
	if f.mappingCache != nil {
		f.mappingCache.Invalidate(logical)
	}
}

func (f *Flash) systemError(code levelx.ErrorCode, block int) {
	f.diag.SystemError(code, block, -1)
}
