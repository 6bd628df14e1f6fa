package nand

import (
	"sync"

	"github.com/eclipse-threadx/levelx-go"
)

// physAddr identifies a physical page by block and in-block index.
type physAddr struct {
	block uint32
	page  uint32
}

func (g Geometry) linear(a physAddr) uint64 {
	return uint64(a.block)*uint64(g.PagesPerBlock) + uint64(a.page)
}

// Flash is one open NAND flash translation layer instance. All public
// methods acquire mu on entry and release it on every exit path (§5),
// mirroring nor.Flash.
type Flash struct {
	mu sync.Mutex

	name string
	drv  Driver
	geom Geometry
	diag *levelx.Diagnostics
	reg  *levelx.Registry

	eraseCounts []uint32
	statuses    []blockStatus
	bad         []bool

	freePagesInBlock  []uint32
	freePhysicalPages uint32
	obsoletePages     uint32

	liveMap map[uint32]physAddr

	list *blockList

	mappingCache *levelx.MappingCache
	extCache     *levelx.ExtendedCache
	bitmap       *levelx.MappingBitmap
	obsolete     *levelx.ObsoleteCounts

	wearLevelThreshold uint32

	// currentBlock is the block new pages are allocated from until it
	// fills and is inserted into the mapped list (§4.2.2). Zero-valued
	// until the first allocation; hasCurrentBlock disambiguates "block 0
	// is current" from "no current block yet".
	currentBlock    uint32
	hasCurrentBlock bool
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

// WithWearLevelThreshold sets the maximum erase-count spread (§4.2.4
// tier 2) tolerated before background migration forces redistribution.
func WithWearLevelThreshold(threshold uint32) Option {
	return func(f *Flash) {
		f.wearLevelThreshold = threshold
	}
}

// FormatConfig parameterizes Format.
type FormatConfig struct {
	Geometry Geometry
}

// Format erases every block and writes a fresh block header with
// erase_count = 0, mirroring nor.Format's deviation of calling BlockErase
// on every block rather than assuming a factory all-ones state.
func Format(name string, drv Driver, cfg FormatConfig) error {
	if err := cfg.Geometry.validate(); err != nil {
		return err
	}

	g := cfg.Geometry

	for block := uint32(0); block < g.TotalBlocks; block++ {
		if err := drv.BlockErase(block, 0); err != nil {
			return &driverError{op: "BlockErase", err: err}
		}

		if err := writeHeader(drv, g, block, blockHeader{EraseCount: 0, Status: blockStatusGood, MappingIndex: 0}); err != nil {
			return err
		}
	}

	return nil
}

func writeHeader(drv Driver, g Geometry, block uint32, h blockHeader) error {
	raw, err := packBlockHeader(h)
	if err != nil {
		return err
	}

	padded := make([]byte, g.pageBytes())
	copy(padded, raw)

	spare := make([]byte, pageSpareBytes)
	for i := range spare {
		spare[i] = 0xff
	}

	return drv.PageWrite(block, 0, padded, spare)
}

// Open mounts an existing NAND flash translation layer instance, querying
// every block's BAD latch, excluding bad blocks from both lists, and
// scanning live pages to rebuild the runtime mapping table (§4.2.1,
// §4.1.1's crash-recovery rule, shared by both engines).
func Open(name string, drv Driver, geom Geometry, opts ...Option) (*Flash, error) {
	if err := geom.validate(); err != nil {
		return nil, err
	}

	f := &Flash{
		name:               name,
		drv:                drv,
		geom:               geom,
		diag:               levelx.NewDiagnostics(nil),
		reg:                levelx.Default,
		eraseCounts:        make([]uint32, geom.TotalBlocks),
		statuses:           make([]blockStatus, geom.TotalBlocks),
		bad:                make([]bool, geom.TotalBlocks),
		freePagesInBlock:   make([]uint32, geom.TotalBlocks),
		liveMap:            make(map[uint32]physAddr),
		list:               newBlockList(geom.TotalBlocks),
		obsolete:           levelx.NewObsoleteCounts(int(geom.TotalBlocks)),
		bitmap:             levelx.NewMappingBitmap(int(MaxLogicalSector) + 1),
		wearLevelThreshold: 4,
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

// Close unregisters the instance.
func (f *Flash) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reg.Unregister(f.name)
	return nil
}

// scan rebuilds all runtime state from media: it reads every block's
// header (stored in page 0's payload, §3.2), consults the redundant BAD
// latch, and for every good block walks its pages applying the same
// tentative/committed reconciliation rule the NOR engine's scan uses
// (§4.1.1), before re-deriving the mapped/free block lists.
func (f *Flash) scan() error {
	committed := make(map[uint32][]physAddr)
	tentative := make(map[uint32][]physAddr)

	for block := uint32(0); block < f.geom.TotalBlocks; block++ {
		bad, err := f.blockBadGet(block)
		if err != nil {
			return err
		}

		f.bad[block] = bad
		if bad {
			continue
		}

		headerPayload := make([]byte, f.geom.pageBytes())
		headerSpare := make([]byte, pageSpareBytes)
		if err := f.drv.PageRead(block, 0, headerPayload, headerSpare); err != nil {
			return &driverError{op: "PageRead", err: err}
		}

		if isAllOnes(headerPayload) {
			f.eraseCounts[block] = 0
			f.statuses[block] = blockStatusGood

			if err := writeHeader(f.drv, f.geom, block, blockHeader{EraseCount: 0, Status: blockStatusGood, MappingIndex: 0}); err != nil {
				return err
			}
		} else {
			h, err := unpackBlockHeader(headerPayload[:blockHeaderBytes])
			if err != nil {
				return levelx.ErrInvalidFormat
			}

			f.statuses[block] = h.Status

			f.eraseCounts[block] = h.EraseCount
		}

		mapped := false

		for page := uint32(1); page < f.geom.PagesPerBlock; page++ {
			payload := make([]byte, f.geom.pageBytes())
			spare := make([]byte, pageSpareBytes)

			if err := f.drv.PageRead(block, page, payload, spare); err != nil {
				return &driverError{op: "PageRead", err: err}
			}

			s, err := unpackSpare(spare)
			if err != nil {
				return levelx.ErrInvalidFormat
			}

			addr := physAddr{block: block, page: page}

			switch {
			case s.Status.isFree():
				f.freePagesInBlock[block]++
				f.freePhysicalPages++
			case s.Status.isValid() && !s.Status.isSuperceded():
				committed[s.Logical] = append(committed[s.Logical], addr)
				mapped = true
			case s.Status.isValid() && s.Status.isSuperceded():
				tentative[s.Logical] = append(tentative[s.Logical], addr)
				mapped = true
			default:
				f.obsolete.Increment(block)
				f.obsoletePages++
				mapped = true
			}
		}

		if f.freePagesInBlock[block] == 0 {
			if mapped {
				if err := f.list.insertMapped(block, f.eraseCounts); err != nil {
					return err
				}
			}
		} else if f.freePagesInBlock[block] == f.geom.dataPagesPerBlock() {
			f.list.pushFree(block, f.eraseCounts)
		} else if !f.hasCurrentBlock {
			f.currentBlock = block
			f.hasCurrentBlock = true
		}
	}

	for logical, tCandidates := range tentative {
		winner := highestAddr(f.geom, tCandidates)

		if _, hasCommitted := committed[logical]; hasCommitted {
			if err := f.releasePage(winner); err != nil {
				return err
			}
		} else {
			if err := f.commitPage(winner); err != nil {
				return err
			}

			committed[logical] = append(committed[logical], winner)
		}

		for _, loser := range tCandidates {
			if loser != winner {
				if err := f.releasePage(loser); err != nil {
					return err
				}
			}
		}
	}

	for logical, cCandidates := range committed {
		winner := cCandidates[0]
		if len(cCandidates) > 1 {
			winner = f.resolveDuplicateLive(cCandidates)
		}

		f.liveMap[logical] = winner
		f.bitmap.Mark(logical)

		for _, loser := range cCandidates {
			if loser != winner {
				if err := f.releasePage(loser); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// resolveDuplicateLive picks the winner among two or more committed pages
// observed for one logical sector, the same situation the NOR engine's
// resolveDuplicateLive (nor/engine.go) resolves: a crash between
// committing the new page and invalidating the old one during a plain
// rewrite, or between copying a page during reclaim and erasing the
// victim. A page in a block still marked RECLAIMING is being vacated, so
// it loses to any candidate outside a reclaiming block; otherwise the
// highest physical address wins. Allocation consumes a block's free pages
// in ascending order, so within one block a higher address is the newer
// write; across blocks, address order does not track write recency,
// since a newly opened block can have a lower index than the old copy's.
func (f *Flash) resolveDuplicateLive(addrs []physAddr) physAddr {
	var notReclaiming []physAddr

	for _, a := range addrs {
		if !f.statuses[a.block].isReclaiming() {
			notReclaiming = append(notReclaiming, a)
		}
	}

	if len(notReclaiming) > 0 {
		addrs = notReclaiming
	}

	return highestAddr(f.geom, addrs)
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

func (f *Flash) releasePage(a physAddr) error {
	spare := make([]byte, pageSpareBytes)
	if err := f.drv.PageRead(a.block, a.page, make([]byte, f.geom.pageBytes()), spare); err != nil {
		return &driverError{op: "PageRead", err: err}
	}

	s, err := unpackSpare(spare)
	if err != nil {
		return err
	}

	s.Status = s.Status.released()

	return f.writeSpare(a, s)
}

func (f *Flash) commitPage(a physAddr) error {
	spare := make([]byte, pageSpareBytes)
	if err := f.drv.PageRead(a.block, a.page, make([]byte, f.geom.pageBytes()), spare); err != nil {
		return &driverError{op: "PageRead", err: err}
	}

	s, err := unpackSpare(spare)
	if err != nil {
		return err
	}

	s.Status = s.Status.committed()

	return f.writeSpare(a, s)
}

func (f *Flash) writeSpare(a physAddr, s pageSpare) error {
	raw, err := packSpare(s)
	if err != nil {
		return err
	}

	payload := make([]byte, f.geom.pageBytes())
	if err := f.drv.PageRead(a.block, a.page, payload, make([]byte, pageSpareBytes)); err != nil {
		return &driverError{op: "PageRead", err: err}
	}

	return f.drv.PageWrite(a.block, a.page, payload, raw)
}

// blockBadSet writes the BAD latch redundantly to the block header (page
// 0) and to a mirror field in the last page's spare, so a single
// corrupted spare area cannot un-mark a bad block
// (lx_nand_flash_driver_block_status_get.c/_set.c, SPEC_FULL.md §4.2
// supplemented-feature note).
func (f *Flash) blockBadSet(block uint32) error {
	f.bad[block] = true

	headerPayload := make([]byte, f.geom.pageBytes())
	headerSpare := make([]byte, pageSpareBytes)
	if err := f.drv.PageRead(block, 0, headerPayload, headerSpare); err != nil {
		return &driverError{op: "PageRead", err: err}
	}

	h, err := unpackBlockHeader(headerPayload[:blockHeaderBytes])
	if err != nil {
		h = blockHeader{EraseCount: f.eraseCounts[block]}
	}

	h.Status = blockStatusBad

	raw, err := packBlockHeader(h)
	if err != nil {
		return err
	}

	padded := make([]byte, f.geom.pageBytes())
	copy(padded, raw)

	if err := f.drv.PageWrite(block, 0, padded, make([]byte, pageSpareBytes)); err != nil {
		return &driverError{op: "PageWrite", err: err}
	}

	lastPage := f.geom.PagesPerBlock - 1
	lastPayload := make([]byte, f.geom.pageBytes())
	lastSpare := make([]byte, pageSpareBytes)
	if err := f.drv.PageRead(block, lastPage, lastPayload, lastSpare); err != nil {
		return &driverError{op: "PageRead", err: err}
	}

	s, err := unpackSpare(lastSpare)
	if err != nil {
		s = pageSpare{Logical: logicalSentinel, Status: pageStatusFree}
	}

	s.BlockBadMirror = blockStatusBad

	mirrorRaw, err := packSpare(s)
	if err != nil {
		return err
	}

	if err := f.drv.PageWrite(block, lastPage, lastPayload, mirrorRaw); err != nil {
		return &driverError{op: "PageWrite", err: err}
	}

	f.bad[block] = true
	return nil
}

// blockBadGet trusts either copy of the BAD latch reading BAD.
func (f *Flash) blockBadGet(block uint32) (bool, error) {
	headerPayload := make([]byte, f.geom.pageBytes())
	headerSpare := make([]byte, pageSpareBytes)
	if err := f.drv.PageRead(block, 0, headerPayload, headerSpare); err != nil {
		return false, &driverError{op: "PageRead", err: err}
	}

	if !isAllOnes(headerPayload) {
		h, err := unpackBlockHeader(headerPayload[:blockHeaderBytes])
		if err == nil && h.Status == blockStatusBad {
			return true, nil
		}
	}

	lastPage := f.geom.PagesPerBlock - 1
	lastSpare := make([]byte, pageSpareBytes)
	if err := f.drv.PageRead(block, lastPage, make([]byte, f.geom.pageBytes()), lastSpare); err != nil {
		return false, &driverError{op: "PageRead", err: err}
	}

	s, err := unpackSpare(lastSpare)
	if err == nil && s.BlockBadMirror == blockStatusBad {
		return true, nil
	}

	return false, nil
}

func (f *Flash) systemError(code levelx.ErrorCode, block int) {
	f.diag.SystemError(code, block, -1)
}
