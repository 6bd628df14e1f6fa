package nand

import "github.com/eclipse-threadx/levelx-go"

// SectorWrite writes payload as the new content of logical sector logical
// (§4.2.3): payload and spare are programmed together in one page-program
// operation carrying a tentative VALID|SUPERCEDED status, the new entry is
// then committed, and any old copy is invalidated — the same crash-
// consistent shape as the NOR engine's write protocol (§4.1.3), adapted to
// single-page-program granularity. A program failure migrates the block
// and marks it BAD instead of merely returning an error (§4.2.1, §4.2.3).
func (f *Flash) SectorWrite(logical uint32, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sectorWriteLocked(logical, payload)
}

func (f *Flash) sectorWriteLocked(logical uint32, payload []byte) error {
	if logical > MaxLogicalSector {
		return levelx.ErrInvalidSector
	}

	pageBytes := f.geom.pageBytes()
	if uint32(len(payload)) != pageBytes {
		return levelx.ErrInvalidSector
	}

	if f.freePhysicalPages <= f.geom.dataPagesPerBlock() {
		if err := f.ensureFreePages(); err != nil {
			return err
		}
	}

	oldAddr, hadOld := f.find(logical)

	newAddr, err := f.allocate()
	if err != nil {
		return err
	}

	spare := pageSpare{Logical: logical, Status: newTentativeStatus(), Crc32: checksum(payload), BlockBadMirror: blockStatusGood}
	raw, err := packSpare(spare)
	if err != nil {
		return err
	}

	if err := f.drv.PageWrite(newAddr.block, newAddr.page, payload, raw); err != nil {
		if migrateErr := f.migrateBadBlock(newAddr.block); migrateErr != nil {
			return migrateErr
		}

		f.systemError(levelx.ErrorCodeMediaProgramFail, int(newAddr.block))
		return levelx.ErrMediaProgramFailed
	}

	f.freePagesInBlock[newAddr.block]--
	f.freePhysicalPages--

	if f.freePagesInBlock[newAddr.block] == 0 {
		if err := f.list.insertMapped(newAddr.block, f.eraseCounts); err != nil {
			return err
		}

		f.hasCurrentBlock = false
	}

	f.invalidateMapping(logical)

	if f.extCache != nil {
		f.extCache.InvalidateBlock(newAddr.block)
	}

	if err := f.commitPage(newAddr); err != nil {
		return err
	}

	if hadOld {
		if err := f.releasePage(oldAddr); err != nil {
			return err
		}

		f.obsolete.Increment(oldAddr.block)
		f.obsoletePages++

		if f.extCache != nil {
			f.extCache.InvalidateBlock(oldAddr.block)
		}
	}

	f.liveMap[logical] = newAddr
	f.bitmap.Mark(logical)

	if f.mappingCache != nil {
		f.mappingCache.Put(logical, f.toMappingLocation(newAddr))
	}

	if f.extCache != nil {
		f.extCache.Put(levelx.PhysicalAddress{Block: newAddr.block, Index: newAddr.page}, payload)
	}

	return nil
}

// SectorsWrite writes count contiguous logical sectors starting at
// logical by invoking the single-sector protocol count times (§4.2.5). A
// failure on sector k halts the batch; sectors already written remain
// persistently written. No rollback.
func (f *Flash) SectorsWrite(logical uint32, buf []byte, count uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	pageBytes := f.geom.pageBytes()

	for i := uint32(0); i < count; i++ {
		start := i * pageBytes
		end := start + pageBytes
		if uint32(len(buf)) < end {
			return levelx.ErrInvalidSector
		}

		if err := f.sectorWriteLocked(logical+i, buf[start:end]); err != nil {
			return err
		}
	}

	return nil
}

// allocate picks the next free page to program into: the current
// partially-filled block if one is open, otherwise the lowest-erase-count
// block popped from the free list (§4.2.4 tier 1).
func (f *Flash) allocate() (physAddr, error) {
	if !f.hasCurrentBlock || f.freePagesInBlock[f.currentBlock] == 0 {
		block, ok := f.list.popFree()
		if !ok {
			return physAddr{}, levelx.ErrNoSectors
		}

		f.currentBlock = block
		f.hasCurrentBlock = true
	}

	page, err := f.firstFreePageInBlock(f.currentBlock)
	if err != nil {
		return physAddr{}, err
	}

	return physAddr{block: f.currentBlock, page: page}, nil
}

func (f *Flash) firstFreePageInBlock(block uint32) (uint32, error) {
	for page := uint32(1); page < f.geom.PagesPerBlock; page++ {
		spare := make([]byte, pageSpareBytes)
		if err := f.drv.PageRead(block, page, make([]byte, f.geom.pageBytes()), spare); err != nil {
			return 0, &driverError{op: "PageRead", err: err}
		}

		s, err := unpackSpare(spare)
		if err != nil {
			return 0, levelx.ErrInvalidFormat
		}

		if s.Status.isFree() {
			return page, nil
		}
	}

	return 0, levelx.ErrNoSectors
}
