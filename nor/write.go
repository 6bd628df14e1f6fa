package nor

import "github.com/eclipse-threadx/levelx-go"

// SectorWrite writes payload as the new content of logical sector
// logical, following the crash-consistent six-step protocol of §4.1.3.
func (f *Flash) SectorWrite(logical uint32, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sectorWriteLocked(logical, payload)
}

func (f *Flash) sectorWriteLocked(logical uint32, payload []byte) error {
	if logical > MaxLogicalSector {
		return levelx.ErrInvalidSector
	}

	payloadBytes := f.geom.sectorPayloadBytes()
	if uint32(len(payload)) != payloadBytes {
		return levelx.ErrInvalidSector
	}

	// Step 1: ensure a block's worth of free sectors before allocating.
	if f.freePhysicalSectors <= f.geom.physicalSectorsPerBlock() {
		if err := f.ensureFreeSectors(); err != nil {
			return err
		}
	}

	oldAddr, hadOld := f.find(logical)

	// Step 2: allocate, preferring the lowest-erase-count block that
	// currently holds a free sector (passive wear leveling).
	newAddr, err := f.allocate()
	if err != nil {
		return err
	}

	// Step 3: program payload.
	if err := f.drv.Write(f.geom.sectorPayloadOffset(newAddr.block, newAddr.sector), payload); err != nil {
		f.systemError(levelx.ErrorCodeMediaProgramFail, int(newAddr.block))
		return levelx.ErrMediaProgramFailed
	}

	f.freeSectorsInBlock[newAddr.block]--
	f.freePhysicalSectors--

	// Step 4: program the new mapping entry, VALID=1 SUPERCEDED=1.
	tentative := newTentativeEntry(logical)
	if err := f.drv.Write(f.geom.mappingEntryOffset(newAddr.block, newAddr.sector), encodeWord(uint32(tentative))); err != nil {
		f.systemError(levelx.ErrorCodeMediaProgramFail, int(newAddr.block))
		return levelx.ErrMediaProgramFailed
	}

	if !f.statuses[newAddr.block].isMapped() {
		if err := f.markBlockMapped(newAddr.block); err != nil {
			return err
		}
	}

	// Invalidate the cached location before either media mutation that
	// changes where "logical" lives takes effect for readers (§3.3).
	f.invalidateMapping(logical)

	if f.extCache != nil {
		f.extCache.InvalidateBlock(newAddr.block)
	}

	// Step 5: commit the new entry, then release the old one.
	if err := f.clearSuperceded(newAddr); err != nil {
		return err
	}

	if hadOld {
		if err := f.clearValid(oldAddr); err != nil {
			return err
		}

		f.obsolete.Increment(oldAddr.block)
		f.obsoletePhysicalSectors++

		if f.extCache != nil {
			f.extCache.InvalidateBlock(oldAddr.block)
		}
	}

	// Step 6: update caches and counters.
	f.liveMap[logical] = newAddr
	f.bitmap.Mark(logical)

	if f.mappingCache != nil {
		f.mappingCache.Put(logical, toMappingLocation(newAddr))
	}

	if f.extCache != nil {
		f.extCache.Put(levelx.PhysicalAddress{Block: newAddr.block, Index: newAddr.sector}, payload)
	}

	return nil
}

// SectorsWrite writes count contiguous logical sectors starting at
// logical by invoking the single-sector protocol count times (§4.2.5,
// shared by both engines). A failure on sector k halts the batch;
// sectors already written remain persistently written. No rollback.
func (f *Flash) SectorsWrite(logical uint32, buf []byte, count uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	payloadBytes := f.geom.sectorPayloadBytes()

	for i := uint32(0); i < count; i++ {
		start := i * payloadBytes
		end := start + payloadBytes
		if uint32(len(buf)) < end {
			return levelx.ErrInvalidSector
		}

		if err := f.sectorWriteLocked(logical+i, buf[start:end]); err != nil {
			return err
		}
	}

	return nil
}

// allocate picks a free physical sector, preferring the block with the
// lowest erase count among blocks that currently hold at least one free
// sector (§4.1.3 step 2).
func (f *Flash) allocate() (physAddr, error) {
	var (
		best      uint32
		bestErase uint32
		found     bool
	)

	for block := uint32(0); block < f.geom.TotalBlocks; block++ {
		if f.freeSectorsInBlock[block] == 0 {
			continue
		}

		if !found || f.eraseCounts[block] < bestErase {
			best = block
			bestErase = f.eraseCounts[block]
			found = true
		}
	}

	if !found {
		return physAddr{}, levelx.ErrNoSectors
	}

	sector, err := f.firstFreeSectorInBlock(best)
	if err != nil {
		return physAddr{}, err
	}

	return physAddr{block: best, sector: sector}, nil
}

func (f *Flash) firstFreeSectorInBlock(block uint32) (uint32, error) {
	count := f.geom.physicalSectorsPerBlock()

	for sector := uint32(0); sector < count; sector++ {
		raw := make([]byte, mappingBytes)
		if err := f.drv.Read(f.geom.mappingEntryOffset(block, sector), raw); err != nil {
			return 0, &driverError{op: "Read", err: err}
		}

		if mappingEntry(decodeWord(raw)).isFree() {
			return sector, nil
		}
	}

	return 0, levelx.ErrNoSectors
}

func (f *Flash) markBlockMapped(block uint32) error {
	newStatus := f.statuses[block].markMapped()

	if err := f.drv.Write(f.geom.statusWordOffset(block), encodeWord(uint32(newStatus))); err != nil {
		return &driverError{op: "Write", err: err}
	}

	f.statuses[block] = newStatus
	return nil
}
