package nor

import "github.com/eclipse-threadx/levelx-go"

// ensureFreeSectors invokes block_reclaim up to TotalBlocks times until
// enough free sectors exist (§4.1.3 step 1), matching §8's reclaim
// liveness property.
func (f *Flash) ensureFreeSectors() error {
	target := f.geom.physicalSectorsPerBlock() + 1

	for i := uint32(0); i < f.geom.TotalBlocks; i++ {
		if f.freePhysicalSectors >= target {
			return nil
		}

		if err := f.reclaimOnce(); err != nil {
			if f.freePhysicalSectors >= target {
				return nil
			}

			return err
		}
	}

	if f.freePhysicalSectors < target {
		return levelx.ErrNoSectors
	}

	return nil
}

// Defragment forces reclaim passes to compact the device, stopping once
// no victim with any garbage remains (§6.2).
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

// reclaimOnce runs one pass of §4.1.5's five-step block_reclaim
// procedure: pick the victim with the most obsolete entries, pick a
// destination block from the free pool (preferring one within the wear-
// leveling threshold of the victim's erase count), copy every live entry
// across, finalize the destination header, and erase the victim.
func (f *Flash) reclaimOnce() error {
	victim, ok := f.pickVictim()
	if !ok {
		return levelx.ErrNoSectors
	}

	destination, ok := f.pickDestination(victim)
	if !ok {
		return levelx.ErrNoSectors
	}

	if err := f.markReclaiming(victim); err != nil {
		return err
	}

	for logical, addr := range f.liveMap {
		if addr.block != victim {
			continue
		}

		destAddr, err := f.firstFreeSectorInBlock(destination)
		if err != nil {
			return err
		}

		payload := make([]byte, f.geom.sectorPayloadBytes())
		if err := f.drv.Read(f.geom.sectorPayloadOffset(addr.block, addr.sector), payload); err != nil {
			return &driverError{op: "Read", err: err}
		}

		if err := f.drv.Write(f.geom.sectorPayloadOffset(destination, destAddr), payload); err != nil {
			f.systemError(levelx.ErrorCodeMediaProgramFail, int(destination))
			return levelx.ErrMediaProgramFailed
		}

		f.freeSectorsInBlock[destination]--
		f.freePhysicalSectors--

		tentative := newTentativeEntry(logical)
		if err := f.drv.Write(f.geom.mappingEntryOffset(destination, destAddr), encodeWord(uint32(tentative))); err != nil {
			f.systemError(levelx.ErrorCodeMediaProgramFail, int(destination))
			return levelx.ErrMediaProgramFailed
		}

		newAddr := physAddr{block: destination, sector: destAddr}
		if err := f.clearSuperceded(newAddr); err != nil {
			return err
		}

		f.invalidateMapping(logical)
		f.liveMap[logical] = newAddr

		if f.mappingCache != nil {
			f.mappingCache.Put(logical, toMappingLocation(newAddr))
		}

		if f.extCache != nil {
			f.extCache.Put(levelx.PhysicalAddress{Block: destination, Index: destAddr}, payload)
		}
	}

	if !f.statuses[destination].isMapped() {
		if err := f.markBlockMapped(destination); err != nil {
			return err
		}
	}

	if f.extCache != nil {
		f.extCache.InvalidateBlock(victim)
	}

	return f.eraseVictim(victim)
}

func (f *Flash) pickVictim() (uint32, bool) {
	block, found := f.obsolete.Worst()
	if !found {
		return 0, false
	}

	if f.freeSectorsInBlock[block] == f.geom.physicalSectorsPerBlock() {
		// A fully-free block has nothing to reclaim.
		return 0, false
	}

	return block, true
}

// pickDestination chooses a fully-free block to copy victim's live data
// into, preferring one whose erase count is within wearLevelThreshold of
// the victim's (§4.1.5 step 1), falling back to the least-worn free
// block otherwise.
func (f *Flash) pickDestination(victim uint32) (uint32, bool) {
	full := f.geom.physicalSectorsPerBlock()

	var (
		bestWithinThreshold uint32
		foundWithin         bool
		lowestErase         uint32
		bestOverall         uint32
		foundAny            bool
	)

	for block := uint32(0); block < f.geom.TotalBlocks; block++ {
		if block == victim || f.freeSectorsInBlock[block] != full {
			continue
		}

		if !foundAny || f.eraseCounts[block] < lowestErase {
			lowestErase = f.eraseCounts[block]
			bestOverall = block
			foundAny = true
		}

		if f.eraseCounts[block] <= f.eraseCounts[victim]+f.wearLevelThreshold {
			if !foundWithin || f.eraseCounts[block] < f.eraseCounts[bestWithinThreshold] {
				bestWithinThreshold = block
				foundWithin = true
			}
		}
	}

	if foundWithin {
		return bestWithinThreshold, true
	}

	return bestOverall, foundAny
}

func (f *Flash) markReclaiming(block uint32) error {
	newStatus := f.statuses[block].markReclaiming()

	if err := f.drv.Write(f.geom.statusWordOffset(block), encodeWord(uint32(newStatus))); err != nil {
		return &driverError{op: "Write", err: err}
	}

	f.statuses[block] = newStatus
	return nil
}

func (f *Flash) eraseVictim(victim uint32) error {
	obsoleteBefore := f.obsolete.Count(victim)
	newErase := f.eraseCounts[victim] + 1

	if err := f.drv.BlockErase(victim, newErase); err != nil {
		f.systemError(levelx.ErrorCodeMediaEraseFail, int(victim))
		return levelx.ErrMediaEraseFailed
	}

	raw, err := packHeader(blockHeader{EraseCount: newErase, Status: blockStatusFree})
	if err != nil {
		return err
	}

	if err := f.drv.Write(f.geom.blockOffset(victim), raw); err != nil {
		return &driverError{op: "Write", err: err}
	}

	before := f.freeSectorsInBlock[victim]
	full := f.geom.physicalSectorsPerBlock()

	f.freePhysicalSectors += full - before
	f.freeSectorsInBlock[victim] = full
	f.eraseCounts[victim] = newErase
	f.statuses[victim] = blockStatusFree

	f.obsolete.Reset(victim)
	if f.obsoletePhysicalSectors >= uint32(obsoleteBefore) {
		f.obsoletePhysicalSectors -= uint32(obsoleteBefore)
	} else {
		f.obsoletePhysicalSectors = 0
	}

	return nil
}
