package nor

// Stats summarizes one instance's runtime state for diagnostics (§3.3,
// SPEC_FULL.md §2 "Dump()-style debug methods"): free/obsolete physical
// sector counts and the erase-count spread reclaim's wear-leveling picks
// are judged against.
type Stats struct {
	TotalBlocks             uint32
	FreePhysicalSectors     uint32
	ObsoletePhysicalSectors uint32
	MinEraseCount           uint32
	MaxEraseCount           uint32
	LiveSectors             int
}

// Stats returns a snapshot of the engine's current runtime counters.
func (f *Flash) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Stats{
		TotalBlocks:             f.geom.TotalBlocks,
		FreePhysicalSectors:     f.freePhysicalSectors,
		ObsoletePhysicalSectors: f.obsoletePhysicalSectors,
		LiveSectors:             len(f.liveMap),
	}

	for i, count := range f.eraseCounts {
		if i == 0 || count < s.MinEraseCount {
			s.MinEraseCount = count
		}

		if count > s.MaxEraseCount {
			s.MaxEraseCount = count
		}
	}

	return s
}
