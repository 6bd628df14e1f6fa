package nor

import (
	"sync"

	"github.com/eclipse-threadx/levelx-go"
)

// physAddr identifies a physical sector by block and in-block index.
type physAddr struct {
	block  uint32
	sector uint32
}

func (g Geometry) linear(a physAddr) uint64 {
	return uint64(a.block)*uint64(g.physicalSectorsPerBlock()) + uint64(a.sector)
}

// Flash is one open NOR flash translation layer instance. All public
// methods acquire mu on entry and release it on every exit path (§5).
type Flash struct {
	mu sync.Mutex

	name string
	drv  Driver
	geom Geometry
	diag *levelx.Diagnostics
	reg  *levelx.Registry

	eraseCounts []uint32
	statuses    []blockStatus

	freeSectorsInBlock     []uint32
	freePhysicalSectors    uint32
	obsoletePhysicalSectors uint32

	liveMap map[uint32]physAddr

	mappingCache *levelx.MappingCache
	extCache     *levelx.ExtendedCache
	bitmap       *levelx.MappingBitmap
	obsolete     *levelx.ObsoleteCounts

	wearLevelThreshold uint32
}

// Option configures optional engine behavior at Open time.
type Option func(*Flash)

// WithMappingCache enables the sector-mapping LRU cache at the given
// capacity (§3.3).
func WithMappingCache(capacity int) Option {
	return func(f *Flash) {
		c, err := levelx.NewMappingCache(capacity)
		if err == nil {
			f.mappingCache = c
		}
	}
}

// WithErrorCallback installs the driver-facing diagnostic sink (§4.3).
func WithErrorCallback(cb levelx.ErrorCallback) Option {
	return func(f *Flash) {
		f.diag = levelx.NewDiagnostics(cb)
	}
}

// WithRegistry overrides the process-wide default open-instance registry
// (§9).
func WithRegistry(r *levelx.Registry) Option {
	return func(f *Flash) {
		f.reg = r
	}
}

// WithWearLevelThreshold sets the maximum erase-count spread (§4.1.5 step
// 1) block_reclaim will tolerate when picking a destination block before
// falling back to any free block.
func WithWearLevelThreshold(threshold uint32) Option {
	return func(f *Flash) {
		f.wearLevelThreshold = threshold
	}
}

// FormatConfig parameterizes Format.
type FormatConfig struct {
	Geometry Geometry
}

// Format erases every block and writes a fresh header with erase_count =
// 0 (§4.1.1 "Format writes a fresh block header to every block"). It also
// calls the driver's BlockErase on every block rather than only writing
// the header word, so a device whose factory state is not all-ones is
// made conformant at format time (SPEC_FULL.md §4.1 deviation note).
func Format(name string, drv Driver, cfg FormatConfig) error {
	if err := cfg.Geometry.validate(); err != nil {
		return err
	}

	g := cfg.Geometry

	for block := uint32(0); block < g.TotalBlocks; block++ {
		if err := drv.BlockErase(block, 0); err != nil {
			return &driverError{op: "BlockErase", err: err}
		}

		raw, err := packHeader(blockHeader{EraseCount: 0, Status: blockStatusFree})
		if err != nil {
			return err
		}

		if err := drv.Write(g.blockOffset(block), raw); err != nil {
			return &driverError{op: "Write", err: err}
		}
	}

	return nil
}

// Open mounts an existing NOR flash translation layer instance, scanning
// every block to rebuild the runtime mapping table and resolve any
// transient crash state left by an interrupted write or reclaim (§4.1.1).
func Open(name string, drv Driver, geom Geometry, opts ...Option) (*Flash, error) {
	if err := geom.validate(); err != nil {
		return nil, err
	}

	f := &Flash{
		name:                name,
		drv:                 drv,
		geom:                geom,
		diag:                levelx.NewDiagnostics(nil),
		reg:                 levelx.Default,
		eraseCounts:         make([]uint32, geom.TotalBlocks),
		statuses:            make([]blockStatus, geom.TotalBlocks),
		freeSectorsInBlock:  make([]uint32, geom.TotalBlocks),
		liveMap:             make(map[uint32]physAddr),
		obsolete:            levelx.NewObsoleteCounts(int(geom.TotalBlocks)),
		bitmap:              levelx.NewMappingBitmap(int(MaxLogicalSector) + 1),
		wearLevelThreshold:  4,
	}

	for _, opt := range opts {
		opt(f)
	}

	if err := f.scan(); err != nil {
		return nil, err
	}

	if !f.reg.Register(name, f) {
		return nil, levelx.ErrAllocationFailed
	}

	return f, nil
}

// Close unregisters the instance. It does not need to flush anything:
// every write already lands on media before it is acknowledged.
func (f *Flash) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reg.Unregister(f.name)
	return nil
}

type candidate struct {
	addr       physAddr
	superceded bool
}

// scan rebuilds all runtime state from media (§4.1.1). It is the engine's
// only opportunity to repair a crash left between two mapping-entry
// writes: it collects every non-free mapping entry found per logical
// sector, then applies the recovery rule to pick exactly one winner and
// self-heals media so a second Open would see a fully resolved state.
func (f *Flash) scan() error {
	committed := make(map[uint32][]physAddr)
	tentative := make(map[uint32][]physAddr)

	for block := uint32(0); block < f.geom.TotalBlocks; block++ {
		headerRaw := make([]byte, headerBytes)
		if err := f.drv.Read(f.geom.blockOffset(block), headerRaw); err != nil {
			return &driverError{op: "Read", err: err}
		}

		if isAllOnes(headerRaw) {
			// Crashed between block_erase and the immediate header
			// rewrite that normally follows it (format, or reclaim's
			// victim-erase step). Self-heal: treat as a fresh free
			// block and write the header now.
			f.eraseCounts[block] = 0
			f.statuses[block] = blockStatusFree

			raw, err := packHeader(blockHeader{EraseCount: 0, Status: blockStatusFree})
			if err != nil {
				return err
			}

			if err := f.drv.Write(f.geom.blockOffset(block), raw); err != nil {
				return &driverError{op: "Write", err: err}
			}
		} else {
			h, err := unpackHeader(headerRaw)
			if err != nil {
				return levelx.ErrInvalidFormat
			}

			f.eraseCounts[block] = h.EraseCount
			f.statuses[block] = h.Status
		}

		count := f.geom.physicalSectorsPerBlock()
		for sector := uint32(0); sector < count; sector++ {
			raw := make([]byte, mappingBytes)
			if err := f.drv.Read(f.geom.mappingEntryOffset(block, sector), raw); err != nil {
				return &driverError{op: "Read", err: err}
			}

			entry := mappingEntry(decodeWord(raw))
			addr := physAddr{block: block, sector: sector}

			switch {
			case entry.isFree():
				f.freeSectorsInBlock[block]++
				f.freePhysicalSectors++
			case entry.isValid() && !entry.isSuperceded():
				logical := entry.logical()
				committed[logical] = append(committed[logical], addr)
			case entry.isValid() && entry.isSuperceded():
				logical := entry.logical()
				tentative[logical] = append(tentative[logical], addr)
			default:
				// Released: obsolete, counted but otherwise inert.
				f.obsolete.Increment(block)
				f.obsoletePhysicalSectors++
			}
		}
	}

	// Reconcile: a tentative copy alongside a committed copy for the same
	// logical sector means the crash fell between write steps (a)/(b) and
	// (c) — the committed (old) copy wins and the tentative copy is
	// rolled back (§3.1, §4.1.1). A tentative copy with no committed
	// sibling means the crash fell before (c) ever ran at all, or this is
	// the very first write for that logical sector: promote it.
	for logical, tCandidates := range tentative {
		winner := highestAddr(f.geom, tCandidates)

		if _, hasCommitted := committed[logical]; hasCommitted {
			if err := f.clearValid(winner); err != nil {
				return err
			}

			f.obsolete.Increment(winner.block)
			f.obsoletePhysicalSectors++
		} else {
			if err := f.clearSuperceded(winner); err != nil {
				return err
			}

			committed[logical] = append(committed[logical], winner)
		}

		for _, loser := range tCandidates {
			if loser != winner {
				if err := f.clearValid(loser); err != nil {
					return err
				}

				f.obsolete.Increment(loser.block)
				f.obsoletePhysicalSectors++
			}
		}
	}

	// Two committed copies for the same logical sector can only persist
	// past a clean write (which always invalidates the old entry before
	// acknowledging) if a crash landed between steps (c) and (d). Resolve
	// using the reclaiming-block signal first, then physical address.
	for logical, cCandidates := range committed {
		if len(cCandidates) == 1 {
			f.liveMap[logical] = cCandidates[0]
			f.bitmap.Mark(logical)
			continue
		}

		winner := f.resolveDuplicateLive(cCandidates)
		f.liveMap[logical] = winner
		f.bitmap.Mark(logical)

		for _, loser := range cCandidates {
			if loser != winner {
				if err := f.clearValid(loser); err != nil {
					return err
				}

				f.obsolete.Increment(loser.block)
				f.obsoletePhysicalSectors++
			}
		}
	}

	return nil
}

func highestAddr(g Geometry, addrs []physAddr) physAddr {
	best := addrs[0]
	for _, a := range addrs[1:] {
		if g.linear(a) > g.linear(best) {
			best = a
		}
	}

	return best
}

// resolveDuplicateLive picks the winner among two or more committed
// entries observed for one logical sector. A block caught mid-reclaim
// (status reclaiming) is being vacated, so its copy loses to any
// candidate outside it; otherwise the higher physical address wins. This
// engine consumes a block's free sectors in ascending order, so within
// one block a higher address is the newer write (§8 scenario 2); across
// blocks, allocation picks the lowest-erase-count block with a free
// sector, so address order does not track write recency there.
// Documented as a deliberate, bounded resolution in DESIGN.md.
func (f *Flash) resolveDuplicateLive(addrs []physAddr) physAddr {
	var nonReclaiming []physAddr

	for _, a := range addrs {
		if !f.statuses[a.block].isReclaiming() {
			nonReclaiming = append(nonReclaiming, a)
		}
	}

	if len(nonReclaiming) > 0 {
		addrs = nonReclaiming
	}

	return highestAddr(f.geom, addrs)
}

func (f *Flash) clearValid(a physAddr) error {
	raw := make([]byte, mappingBytes)
	if err := f.drv.Read(f.geom.mappingEntryOffset(a.block, a.sector), raw); err != nil {
		return &driverError{op: "Read", err: err}
	}

	entry := mappingEntry(decodeWord(raw)).released()

	return f.drv.Write(f.geom.mappingEntryOffset(a.block, a.sector), encodeWord(uint32(entry)))
}

func (f *Flash) clearSuperceded(a physAddr) error {
	raw := make([]byte, mappingBytes)
	if err := f.drv.Read(f.geom.mappingEntryOffset(a.block, a.sector), raw); err != nil {
		return &driverError{op: "Read", err: err}
	}

	entry := mappingEntry(decodeWord(raw)).committed()

	return f.drv.Write(f.geom.mappingEntryOffset(a.block, a.sector), encodeWord(uint32(entry)))
}
