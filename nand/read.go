package nand

import "github.com/eclipse-threadx/levelx-go"

// SectorRead returns the live payload for logical into buf, which must be
// at least PageWords*4 bytes (§4.1.2, shared with NOR). When the payload
// read back does not match the checksum stored in the page's spare, the
// mismatch is logged via diagnostics and surfaced as ErrCorrected rather
// than failing the read outright (§3.2 deviation note); buf then holds the
// payload as read, with no correction applied.
func (f *Flash) SectorRead(logical uint32, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.sectorReadLocked(logical, buf)
}

func (f *Flash) sectorReadLocked(logical uint32, buf []byte) error {
	if logical > MaxLogicalSector {
		return levelx.ErrInvalidSector
	}

	addr, ok := f.find(logical)
	if !ok {
		return levelx.ErrSectorNotFound
	}

	pageBytes := f.geom.pageBytes()
	if uint32(len(buf)) < pageBytes {
		return levelx.ErrInvalidSector
	}

	pa := levelx.PhysicalAddress{Block: addr.block, Index: addr.page}

	if f.extCache != nil {
		if cached, ok := f.extCache.Get(pa); ok {
			copy(buf, cached)
			return nil
		}
	}

	spare := make([]byte, pageSpareBytes)
	if err := f.drv.PageRead(addr.block, addr.page, buf[:pageBytes], spare); err != nil {
		return &driverError{op: "PageRead", err: err}
	}

	s, err := unpackSpare(spare)
	if err != nil {
		return levelx.ErrInvalidFormat
	}

	if s.Crc32 != checksum(buf[:pageBytes]) {
		f.systemError(levelx.ErrorCodeTransient, int(addr.block))
		return levelx.ErrCorrected
	}

	if f.extCache != nil {
		f.extCache.Put(pa, buf[:pageBytes])
	}

	return nil
}

// SectorsRead reads count contiguous logical sectors starting at logical
// into buf (§4.2.5's sibling read operation, §6.2).
func (f *Flash) SectorsRead(logical uint32, buf []byte, count uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	pageBytes := f.geom.pageBytes()

	for i := uint32(0); i < count; i++ {
		start := i * pageBytes
		end := start + pageBytes
		if uint32(len(buf)) < end {
			return levelx.ErrInvalidSector
		}

		if err := f.sectorReadLocked(logical+i, buf[start:end]); err != nil {
			return err
		}
	}

	return nil
}
