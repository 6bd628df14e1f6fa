package nand

import "github.com/eclipse-threadx/levelx-go"

// SectorRelease invalidates logical's live mapping (§4.1.4, shared by both
// engines): transitions the page's spare status to OBSOLETE by clearing
// VALID, updates the obsolete-page count, invalidates caches, and runs
// reclaim while the free pool is below one block's worth.
func (f *Flash) SectorRelease(logical uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if logical > MaxLogicalSector {
		return levelx.ErrInvalidSector
	}

	addr, ok := f.find(logical)
	if !ok {
		return levelx.ErrSectorNotFound
	}

	f.invalidateMapping(logical)

	if err := f.releasePage(addr); err != nil {
		return err
	}

	delete(f.liveMap, logical)
	f.bitmap.Clear(logical)
	f.obsolete.Increment(addr.block)
	f.obsoletePages++

	if f.extCache != nil {
		f.extCache.InvalidateBlock(addr.block)
	}

	if f.freePhysicalPages < f.geom.dataPagesPerBlock() {
		return f.ensureFreePages()
	}

	return nil
}
