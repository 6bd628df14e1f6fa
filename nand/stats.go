package nand

// Stats summarizes one instance's runtime state for diagnostics (§3.3,
// SPEC_FULL.md §2 "Dump()-style debug methods"): free/obsolete physical
// page counts, the erase-count spread wear-leveling tier 2 judges against,
// and the number of blocks currently excluded as BAD.
type Stats struct {
	TotalBlocks       uint32
	FreePhysicalPages uint32
	ObsoletePages     uint32
	MinEraseCount     uint32
	MaxEraseCount     uint32
	LiveSectors       int
	BadBlocks         int
}

// Stats returns a snapshot of the engine's current runtime counters.
func (f *Flash) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Stats{
		TotalBlocks:       f.geom.TotalBlocks,
		FreePhysicalPages: f.freePhysicalPages,
		ObsoletePages:     f.obsoletePages,
		LiveSectors:       len(f.liveMap),
	}

	first := true
	for block, bad := range f.bad {
		if bad {
			s.BadBlocks++
			continue
		}

		count := f.eraseCounts[block]
		if first || count < s.MinEraseCount {
			s.MinEraseCount = count
			first = false
		}

		if count > s.MaxEraseCount {
			s.MaxEraseCount = count
		}
	}

	return s
}
