package nor

import "github.com/eclipse-threadx/levelx-go"

// SectorRead returns the live payload for logical into buf, which must be
// at least SectorWords*4 bytes (§4.1.2).
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

	payloadBytes := f.geom.sectorPayloadBytes()
	if uint32(len(buf)) < payloadBytes {
		return levelx.ErrInvalidSector
	}

	pa := levelx.PhysicalAddress{Block: addr.block, Index: addr.sector}

	if f.extCache != nil {
		if cached, ok := f.extCache.Get(pa); ok {
			copy(buf, cached)
			return nil
		}
	}

	offset := f.geom.sectorPayloadOffset(addr.block, addr.sector)
	if err := f.drv.Read(offset, buf[:payloadBytes]); err != nil {
		return &driverError{op: "Read", err: err}
	}

	if f.extCache != nil {
		f.extCache.Put(pa, buf[:payloadBytes])
	}

	return nil
}

// SectorsRead reads count contiguous logical sectors starting at logical
// into buf (§4.2.5's sibling operation for NOR, §6.2).
func (f *Flash) SectorsRead(logical uint32, buf []byte, count uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	payloadBytes := f.geom.sectorPayloadBytes()

	for i := uint32(0); i < count; i++ {
		start := i * payloadBytes
		end := start + payloadBytes
		if uint32(len(buf)) < end {
			return levelx.ErrInvalidSector
		}

		if err := f.sectorReadLocked(logical+i, buf[start:end]); err != nil {
			return err
		}
	}

	return nil
}
