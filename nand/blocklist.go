package nand

import "github.com/eclipse-threadx/levelx-go"

// blockList tracks the dual-ended structure §3.2/§4.2.2 describe: a
// mapped-block list kept in ascending erase-count order (fully-mapped
// blocks, oldest-erased first — the natural next reclaim-migration
// source) and a free-block list, also ascending by erase count (the
// natural next allocation source). The distilled spec's single array with
// a head and tail index is expressed here as two slices for clarity; the
// invariant the two pointers enforced — the mapped region can never grow
// into the free region — is preserved as an explicit guard in insertMapped.
type blockList struct {
	total  uint32
	mapped []uint32 // ascending by erase count
	free   []uint32 // ascending by erase count
}

func newBlockList(total uint32) *blockList {
	return &blockList{total: total}
}

// insertMapped records block as newly fully-mapped, keeping mapped sorted
// ascending by erase count by shifting the tail of the list toward the
// free-list side to open a gap — mirroring
// lx_nand_flash_mapped_block_list_add.c's insertion walk (SPEC_FULL.md
// §4.2 supplemented-feature note). Returns ErrAllocationFailed, without
// mutating the list, if the mapped region would collide with the free
// region: list overflow, meaning the device has no room left at all.
func (l *blockList) insertMapped(block uint32, eraseCounts []uint32) error {
	mappedHead := len(l.mapped)
	freeListTail := int(l.total) - len(l.free)

	if mappedHead >= freeListTail {
		return levelx.ErrAllocationFailed
	}

	idx := 0
	for idx < mappedHead && eraseCounts[l.mapped[idx]] <= eraseCounts[block] {
		idx++
	}

	l.mapped = append(l.mapped, 0)
	copy(l.mapped[idx+1:], l.mapped[idx:])
	l.mapped[idx] = block

	return nil
}

// removeMapped drops block from the mapped list, e.g. when it is chosen
// as a reclaim victim and about to be erased.
func (l *blockList) removeMapped(block uint32) {
	for i, b := range l.mapped {
		if b == block {
			l.mapped = append(l.mapped[:i], l.mapped[i+1:]...)
			return
		}
	}
}

// pushFree inserts a freshly erased block into the free list in ascending
// erase-count order.
func (l *blockList) pushFree(block uint32, eraseCounts []uint32) {
	idx := 0
	for idx < len(l.free) && eraseCounts[l.free[idx]] <= eraseCounts[block] {
		idx++
	}

	l.free = append(l.free, 0)
	copy(l.free[idx+1:], l.free[idx:])
	l.free[idx] = block
}

// popFree removes and returns the lowest-erase-count free block, the
// engine's allocation preference (§4.2.4 tier 1).
func (l *blockList) popFree() (uint32, bool) {
	if len(l.free) == 0 {
		return 0, false
	}

	block := l.free[0]
	l.free = l.free[1:]
	return block, true
}

// removeFree drops a specific block from the free list, used when a block
// is discovered BAD before it is ever allocated from.
func (l *blockList) removeFree(block uint32) {
	for i, b := range l.free {
		if b == block {
			l.free = append(l.free[:i], l.free[i+1:]...)
			return
		}
	}
}

// isMapped reports whether block is currently a member of the mapped
// list, consulted by reclaim victim selection so a block whose obsolete
// count happens to be highest but that is still the open current block
// (not yet fully mapped) is never chosen as a victim.
func (l *blockList) isMapped(block uint32) bool {
	for _, b := range l.mapped {
		if b == block {
			return true
		}
	}

	return false
}

// coldestMapped returns the mapped block with the lowest erase count,
// i.e. l.mapped's head since the list is kept ascending by erase count.
// Wear-leveling tier 2 (§4.2.4) forces this block's live pages out when
// no obsolete-rich victim exists and the free/mapped erase-count spread
// has grown past the configured threshold, so a "cold" block that is
// never naturally reclaimed still recirculates.
func (l *blockList) coldestMapped() (uint32, bool) {
	if len(l.mapped) == 0 {
		return 0, false
	}

	return l.mapped[0], true
}

func (l *blockList) spread(eraseCounts []uint32) uint32 {
	if len(l.mapped) == 0 && len(l.free) == 0 {
		return 0
	}

	var min, max uint32
	first := true

	consider := func(block uint32) {
		count := eraseCounts[block]
		if first {
			min, max, first = count, count, false
			return
		}

		if count < min {
			min = count
		}

		if count > max {
			max = count
		}
	}

	for _, b := range l.mapped {
		consider(b)
	}

	for _, b := range l.free {
		consider(b)
	}

	return max - min
}
