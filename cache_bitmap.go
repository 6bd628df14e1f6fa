package levelx

import "github.com/boljen/go-bitmap"

// MappingBitmap marks, one bit per logical sector, whether that sector
// currently has a live mapping (§3.3, "Mapping bitmap"). Open builds a
// fresh one by replaying every VALID, non-superceded mapping entry found
// on media, and it is flipped on every allocate/release afterward.
//
// Grounded on dargueta-disko's blockcache.BlockCache, which uses the same
// library for its loaded/dirty block bitmaps.
type MappingBitmap struct {
	bm    bitmap.Bitmap
	count int
}

// NewMappingBitmap returns a MappingBitmap sized for logicalSectorCount
// sectors, all initially clear (no live mapping).
func NewMappingBitmap(logicalSectorCount int) *MappingBitmap {
	return &MappingBitmap{
		bm:    bitmap.NewSlice(logicalSectorCount),
		count: logicalSectorCount,
	}
}

// Has reports whether logical currently has a live mapping.
func (m *MappingBitmap) Has(logical uint32) bool {
	if int(logical) >= m.count {
		return false
	}

	return m.bm.Get(int(logical))
}

// Mark records that logical now has a live mapping.
func (m *MappingBitmap) Mark(logical uint32) {
	if int(logical) >= m.count {
		return
	}

	m.bm.Set(int(logical), true)
}

// Clear records that logical no longer has a live mapping (released).
func (m *MappingBitmap) Clear(logical uint32) {
	if int(logical) >= m.count {
		return
	}

	m.bm.Set(int(logical), false)
}

// Reset clears every bit, leaving no sector marked as live.
func (m *MappingBitmap) Reset() {
	m.bm = bitmap.NewSlice(m.count)
}
