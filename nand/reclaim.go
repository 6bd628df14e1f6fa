package nand

import "github.com/eclipse-threadx/levelx-go"

// ensureFreePages invokes block_reclaim up to TotalBlocks times until
// enough free pages exist (§4.2.3 write path step 1, the NAND sibling of
// the NOR engine's ensureFreeSectors), matching §8's reclaim-liveness
// property.
func (f *Flash) ensureFreePages() error {
	target := f.geom.dataPagesPerBlock() + 1

	for i := uint32(0); i < f.geom.TotalBlocks; i++ {
		if f.freePhysicalPages >= target {
			return nil
		}

		if err := f.reclaimOnce(); err != nil {
			if f.freePhysicalPages >= target {
				return nil
			}

			return err
		}
	}

	if f.freePhysicalPages < target {
		return levelx.ErrNoSectors
	}

	return nil
}

// Defragment forces reclaim passes to compact the device, stopping once
// no victim remains (§6.2).
func (f *Flash) Defragment() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := uint32(0); i < f.geom.TotalBlocks; i++ {
		if err := f.reclaimOnce(); err != nil {
			return nil
		}
	}

	return nil
}

// PartialDefragment limits reclaim to at most blocks passes (§6.2).
func (f *Flash) PartialDefragment(blocks uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := uint32(0); i < blocks; i++ {
		if err := f.reclaimOnce(); err != nil {
			return nil
		}
	}

	return nil
}

// ExtendedCacheEnable turns on the extended sector-payload cache (§3.3,
// §6.2).
func (f *Flash) ExtendedCacheEnable(capacity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, err := levelx.NewExtendedCache(capacity)
	if err != nil {
		return err
	}

	f.extCache = c
	return nil
}

// reclaimOnce runs one pass of the NAND sibling of the NOR engine's
// block_reclaim procedure (nor/reclaim.go, §4.1.5), adapted per §4.2.2 and
// §4.2.4: pick a victim, pop the lowest-erase-count block from the free
// list as destination (tier 1 wear leveling already makes that the
// least-worn candidate, so no separate threshold search is needed the way
// the NOR engine's pickDestination runs one), copy every live page across,
// and erase the victim.
func (f *Flash) reclaimOnce() error {
	victim, ok := f.pickVictim()
	if !ok {
		return levelx.ErrNoSectors
	}

	destination, ok := f.list.popFree()
	if !ok {
		return levelx.ErrNoSectors
	}

	// Latch RECLAIMING in the victim's header before any page is copied,
	// so a scan after a crash mid-copy prefers the destination's copies.
	if err := writeHeader(f.drv, f.geom, victim, blockHeader{EraseCount: f.eraseCounts[victim], Status: f.statuses[victim].markReclaiming(), MappingIndex: 0}); err != nil {
		return err
	}

	f.statuses[victim] = blockStatusReclaiming
	f.list.removeMapped(victim)

	if err := f.copyLivePages(victim, destination); err != nil {
		return err
	}

	if f.freePagesInBlock[destination] == 0 {
		if err := f.list.insertMapped(destination, f.eraseCounts); err != nil {
			return err
		}
	} else if !f.hasCurrentBlock {
		f.currentBlock = destination
		f.hasCurrentBlock = true
	} else {
		f.list.pushFree(destination, f.eraseCounts)
	}

	if f.extCache != nil {
		f.extCache.InvalidateBlock(victim)
	}

	return f.eraseVictim(victim)
}

// copyLivePages migrates every page this engine's liveMap still points at
// within src over to dest, committing each in turn, the shared body of
// reclaimOnce and migrateBadBlock. The payload moves with a single
// PageCopy call rather than a PageRead into a host buffer followed by a
// PageWrite, the device-local copy real NAND controllers expose so a
// reclaim pass does not round-trip every live page's payload through
// host memory.
func (f *Flash) copyLivePages(src, dest uint32) error {
	for logical, addr := range f.liveMap {
		if addr.block != src {
			continue
		}

		destPage, err := f.firstFreePageInBlock(dest)
		if err != nil {
			return err
		}

		if err := f.drv.PageCopy(addr.block, addr.page, dest, destPage); err != nil {
			f.systemError(levelx.ErrorCodeMediaProgramFail, int(dest))
			return levelx.ErrMediaProgramFailed
		}

		newAddr := physAddr{block: dest, page: destPage}

		// PageCopy carried the source's spare over verbatim, already
		// committed, so the copy is live as soon as it lands (commitPage
		// below leaves that status as it is). A reclaim victim is latched
		// RECLAIMING before any copy, so if a crash leaves both copies
		// committed, scan keeps this one.
		f.freePagesInBlock[dest]--
		f.freePhysicalPages--

		if err := f.commitPage(newAddr); err != nil {
			return err
		}

		f.invalidateMapping(logical)
		f.liveMap[logical] = newAddr

		if f.mappingCache != nil {
			f.mappingCache.Put(logical, f.toMappingLocation(newAddr))
		}

		if f.extCache != nil {
			payload := make([]byte, f.geom.pageBytes())
			if err := f.drv.PageRead(dest, destPage, payload, make([]byte, pageSpareBytes)); err != nil {
				return &driverError{op: "PageRead", err: err}
			}

			f.extCache.Put(levelx.PhysicalAddress{Block: dest, Index: destPage}, payload)
		}
	}

	return nil
}

// pickVictim selects the mapped block with the most obsolete pages, or,
// when no mapped block carries any garbage at all, the coldest mapped
// block still holding live data once the free/mapped erase-count spread
// exceeds wearLevelThreshold (§4.2.4 tier 2, forced redistribution so
// blocks holding long-lived "cold" data still recirculate).
func (f *Flash) pickVictim() (uint32, bool) {
	var (
		victim uint32
		most   uint16
	)

	for block := uint32(0); block < f.geom.TotalBlocks; block++ {
		if c := f.obsolete.Count(block); c > most && f.list.isMapped(block) {
			victim, most = block, c
		}
	}

	if most > 0 {
		return victim, true
	}

	if f.list.spread(f.eraseCounts) > f.wearLevelThreshold {
		if cold, ok := f.list.coldestMapped(); ok {
			return cold, true
		}
	}

	return 0, false
}

// eraseVictim finalizes a reclaim pass (or a migration's source block):
// erases the device block, writes a fresh header recording its erase
// count incremented by one, resets its obsolete count, and returns it
// to the free list at its new (higher) erase-count position.
func (f *Flash) eraseVictim(victim uint32) error {
	obsoleteBefore := f.obsolete.Count(victim)
	newErase := f.eraseCounts[victim] + 1

	if err := f.drv.BlockErase(victim, newErase); err != nil {
		f.systemError(levelx.ErrorCodeMediaEraseFail, int(victim))
		return levelx.ErrMediaEraseFailed
	}

	if err := writeHeader(f.drv, f.geom, victim, blockHeader{EraseCount: newErase, Status: blockStatusGood, MappingIndex: 0}); err != nil {
		return err
	}

	before := f.freePagesInBlock[victim]
	full := f.geom.dataPagesPerBlock()

	f.freePhysicalPages += full - before
	f.freePagesInBlock[victim] = full
	f.eraseCounts[victim] = newErase
	f.statuses[victim] = blockStatusGood
	f.bad[victim] = false

	f.obsolete.Reset(victim)
	if f.obsoletePages >= uint32(obsoleteBefore) {
		f.obsoletePages -= uint32(obsoleteBefore)
	} else {
		f.obsoletePages = 0
	}

	f.list.pushFree(victim, f.eraseCounts)

	return nil
}

// migrateBadBlock handles a program failure observed mid-write (§4.2.1,
// §4.2.3): the failing block is marked BAD via the redundant latch, is
// dropped from whichever list it belonged to, and any of its pages the
// engine still believes are live are copied onto a freshly popped free
// block exactly like a reclaim pass -- "a block that returns a
// program/erase failure during operation is marked BAD ... and its
// content migrated per the reclaim protocol." Unlike reclaimOnce, the
// source block is never erased or returned to any list: it is retired.
func (f *Flash) migrateBadBlock(block uint32) error {
	f.list.removeMapped(block)
	f.list.removeFree(block)

	if f.hasCurrentBlock && f.currentBlock == block {
		f.hasCurrentBlock = false
	}

	// The BAD latch write can itself land on the failing block, so it may
	// not persist. Getting live data off is the property that matters;
	// the block is already out of both lists above, so this session will
	// not allocate into it again even if the latch never took.
	latchErr := f.blockBadSet(block)

	f.obsolete.Reset(block)

	destination, ok := f.list.popFree()
	if !ok {
		if latchErr != nil {
			return latchErr
		}

		return levelx.ErrNoSectors
	}

	if err := f.copyLivePages(block, destination); err != nil {
		return err
	}

	if f.freePagesInBlock[destination] == 0 {
		if err := f.list.insertMapped(destination, f.eraseCounts); err != nil {
			return err
		}
	} else {
		f.currentBlock = destination
		f.hasCurrentBlock = true
	}

	return latchErr
}
