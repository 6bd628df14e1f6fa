package levelx

// ObsoleteCounts is a per-block count of superceded/obsolete mapping
// entries (§3.3, "Obsolete-count cache"), consulted by reclaim to pick the
// block with the most garbage without rescanning every mapping array. A
// flat slice indexed by block number is the whole implementation: no
// third-party structure in the pack improves on it for a dense,
// monotonically-bounded counter array, so unlike the other three caches
// this one is built directly on the standard library (see DESIGN.md).
type ObsoleteCounts struct {
	counts []uint16
}

// NewObsoleteCounts returns a counter table for totalBlocks blocks, all
// zero.
func NewObsoleteCounts(totalBlocks int) *ObsoleteCounts {
	return &ObsoleteCounts{counts: make([]uint16, totalBlocks)}
}

// Increment records one more obsolete entry in block, consulted on
// release (§4.1.4).
func (o *ObsoleteCounts) Increment(block uint32) {
	if int(block) >= len(o.counts) {
		return
	}

	if o.counts[block] < 0xffff {
		o.counts[block]++
	}
}

// Reset zeroes the counter for block, called once the block has been
// erased by reclaim.
func (o *ObsoleteCounts) Reset(block uint32) {
	if int(block) >= len(o.counts) {
		return
	}

	o.counts[block] = 0
}

// Count returns the current obsolete-entry count for block.
func (o *ObsoleteCounts) Count(block uint32) uint16 {
	if int(block) >= len(o.counts) {
		return 0
	}

	return o.counts[block]
}

// Worst returns the block with the highest obsolete count, and whether
// any block has a nonzero count at all. Ties favor the lowest block
// index, giving deterministic victim selection.
func (o *ObsoleteCounts) Worst() (block uint32, found bool) {
	var best uint16

	for i, c := range o.counts {
		if c > best {
			best = c
			block = uint32(i)
			found = true
		}
	}

	return block, found
}
