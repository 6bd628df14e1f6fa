package nand

import "github.com/eclipse-threadx/levelx-go"

// MemoryDriver is an in-memory NAND driver fixture, playing the same role
// for this package that nor.MemoryDriver plays for nor — and, further
// back, the role the teacher's testing_common.go AssetPath fixture file
// plays for go-exfat, generalized from "a path to a fixture file" to "a
// fixture driver implementation" since this engine has no real device to
// point a fixture image at.
type MemoryDriver struct {
	TotalBlocks   uint32
	PagesPerBlock uint32
	PageBytes     uint32

	payload [][]byte
	spare   [][]byte

	eraseCounts []uint32

	// FailBlocks marks blocks whose PageWrite/BlockErase calls always fail,
	// simulating a device going bad partway through operation (§4.2.1).
	FailBlocks map[uint32]bool

	// CrashAfterWrite, if nonzero, lets the first N PageWrite calls succeed
	// and fails every later one, simulating power loss mid-protocol.
	CrashAfterWrite int
	writeCount      int
}

// NewMemoryDriver returns a MemoryDriver already in the erased (all-ones)
// state.
func NewMemoryDriver(totalBlocks, pagesPerBlock, pageBytes uint32) *MemoryDriver {
	count := int(totalBlocks) * int(pagesPerBlock)

	d := &MemoryDriver{
		TotalBlocks:   totalBlocks,
		PagesPerBlock: pagesPerBlock,
		PageBytes:     pageBytes,
		payload:       make([][]byte, count),
		spare:         make([][]byte, count),
		eraseCounts:   make([]uint32, totalBlocks),
		FailBlocks:    make(map[uint32]bool),
	}

	for i := 0; i < count; i++ {
		d.payload[i] = fill(int(pageBytes))
		d.spare[i] = fill(pageSpareBytes)
	}

	return d
}

func fill(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = 0xff
	}

	return b
}

func (d *MemoryDriver) index(block, page uint32) int {
	return int(block)*int(d.PagesPerBlock) + int(page)
}

func (d *MemoryDriver) PageRead(block, page uint32, payload, spare []byte) error {
	if block >= d.TotalBlocks || page >= d.PagesPerBlock {
		return levelx.ErrInvalidBlock
	}

	i := d.index(block, page)
	copy(payload, d.payload[i])
	copy(spare, d.spare[i])
	return nil
}

func (d *MemoryDriver) PageWrite(block, page uint32, payload, spare []byte) error {
	if block >= d.TotalBlocks || page >= d.PagesPerBlock {
		return levelx.ErrInvalidBlock
	}

	if d.FailBlocks[block] {
		return levelx.ErrMediaProgramFailed
	}

	if d.CrashAfterWrite > 0 && d.writeCount >= d.CrashAfterWrite {
		return levelx.ErrMediaProgramFailed
	}

	i := d.index(block, page)

	if err := writeOnly1to0(d.payload[i], payload); err != nil {
		return err
	}

	if err := writeOnly1to0(d.spare[i], spare); err != nil {
		return err
	}

	d.writeCount++

	copy(d.payload[i], payload)
	copy(d.spare[i], spare)
	return nil
}

func writeOnly1to0(existing, next []byte) error {
	for i, b := range next {
		if existing[i]&b != b {
			return levelx.ErrInvalidWrite
		}
	}

	return nil
}

// PageCopy migrates one page's payload and spare directly, without a
// round trip through caller buffers — the on-device analog of the
// distilled spec's pages_copy primitive, used by reclaim to move live
// data off a reclaim victim.
func (d *MemoryDriver) PageCopy(srcBlock, srcPage, destBlock, destPage uint32) error {
	if srcBlock >= d.TotalBlocks || destBlock >= d.TotalBlocks {
		return levelx.ErrInvalidBlock
	}

	if d.FailBlocks[destBlock] {
		return levelx.ErrMediaProgramFailed
	}

	si := d.index(srcBlock, srcPage)
	di := d.index(destBlock, destPage)

	if err := writeOnly1to0(d.payload[di], d.payload[si]); err != nil {
		return err
	}

	if err := writeOnly1to0(d.spare[di], d.spare[si]); err != nil {
		return err
	}

	copy(d.payload[di], d.payload[si])
	copy(d.spare[di], d.spare[si])
	return nil
}

func (d *MemoryDriver) BlockErase(block uint32, eraseCount uint32) error {
	if block >= d.TotalBlocks {
		return levelx.ErrInvalidBlock
	}

	if d.FailBlocks[block] {
		return levelx.ErrMediaEraseFailed
	}

	for page := uint32(0); page < d.PagesPerBlock; page++ {
		i := d.index(block, page)
		d.payload[i] = fill(int(d.PageBytes))
		d.spare[i] = fill(pageSpareBytes)
	}

	d.eraseCounts[block] = eraseCount
	return nil
}

func (d *MemoryDriver) BlockErasedVerify(block uint32) (bool, error) {
	if block >= d.TotalBlocks {
		return false, levelx.ErrInvalidBlock
	}

	for page := uint32(0); page < d.PagesPerBlock; page++ {
		i := d.index(block, page)
		if !isAllOnes(d.payload[i]) || !isAllOnes(d.spare[i]) {
			return false, nil
		}
	}

	return true, nil
}

// EraseCount returns the driver-tracked erase count for block, used by
// tests asserting the wear bound property (§8).
func (d *MemoryDriver) EraseCount(block uint32) uint32 {
	return d.eraseCounts[block]
}

// WriteCount returns the number of successful PageWrite calls so far.
func (d *MemoryDriver) WriteCount() int {
	return d.writeCount
}
