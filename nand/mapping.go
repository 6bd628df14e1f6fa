package nand

import "github.com/eclipse-threadx/levelx-go"

func (f *Flash) find(logical uint32) (physAddr, bool) {
	if f.mappingCache != nil {
		if loc, ok := f.mappingCache.Get(logical); ok {
			return physAddr{block: loc.EntryAddr.Block, page: loc.EntryAddr.Index}, true
		}
	}

	addr, ok := f.liveMap[logical]
	if ok && f.mappingCache != nil {
		f.mappingCache.Put(logical, f.toMappingLocation(addr))
	}

	return addr, ok
}

func (f *Flash) toMappingLocation(a physAddr) levelx.MappingLocation {
	pa := levelx.PhysicalAddress{Block: a.block, Index: a.page}
	return levelx.MappingLocation{EntryAddr: pa, PayloadAddr: pa}
}

func (f *Flash) invalidateMapping(logical uint32) {
	if f.mappingCache != nil {
		f.mappingCache.Invalidate(logical)
	}
}
