package nand

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/go-restruct/restruct"

	"github.com/eclipse-threadx/levelx-go"
)

var byteOrder = binary.LittleEndian

// Geometry describes the fixed shape of a NAND device (§3.2): total_blocks
// equal blocks of pages_per_block pages, each page carrying page_words
// 32-bit words of payload plus a fixed-width spare area.
type Geometry struct {
	TotalBlocks   uint32
	PagesPerBlock uint32
	PageWords     uint32 // LX_NAND_SECTOR_SIZE
}

// logicalSentinel is the reserved logical sector number a spare area can
// never carry for a live page; it distinguishes an erased (never
// programmed) spare from a programmed one alongside the all-ones check.
const logicalSentinel = uint32(0xffffffff)

// MaxLogicalSector is the largest logical sector number this layout can
// address.
const MaxLogicalSector = logicalSentinel - 1

func (g Geometry) pageBytes() uint32 {
	return g.PageWords * 4
}

// dataPagesPerBlock is the number of pages available to hold logical
// sector data: page 0 of every block is reserved for the block header
// (§3.2) and never carries a logical sector mapping.
func (g Geometry) dataPagesPerBlock() uint32 {
	return g.PagesPerBlock - 1
}

func (g Geometry) pageStride() uint32 {
	return g.pageBytes() + pageSpareBytes
}

func (g Geometry) blockBytes() uint32 {
	return blockHeaderBytes + g.PagesPerBlock*g.pageStride()
}

func (g Geometry) blockOffset(block uint32) uint32 {
	return block * g.blockBytes()
}

func (g Geometry) pageOffset(block, page uint32) uint32 {
	return g.blockOffset(block) + blockHeaderBytes + page*g.pageStride()
}

func (g Geometry) spareOffset(block, page uint32) uint32 {
	return g.pageOffset(block, page) + g.pageBytes()
}

// BlockByteSize returns one block's total on-disk footprint (header plus
// every page's payload+spare), the unit a byte-addressable Driver
// implementation erases and lays its blocks out in.
func (g Geometry) BlockByteSize() uint32 {
	return g.blockBytes()
}

// PageByteOffset returns the byte offset of page's payload area within the
// device, for Driver implementations that address the device linearly
// (§6.1).
func (g Geometry) PageByteOffset(block, page uint32) uint32 {
	return g.pageOffset(block, page)
}

// SpareByteOffset returns the byte offset of page's spare area.
func (g Geometry) SpareByteOffset(block, page uint32) uint32 {
	return g.spareOffset(block, page)
}

// PagePayloadByteSize returns the payload size of one page (PageWords*4).
func (g Geometry) PagePayloadByteSize() uint32 {
	return g.pageBytes()
}

// PageSpareByteSize returns the fixed spare-area size every page carries.
func (g Geometry) PageSpareByteSize() uint32 {
	return pageSpareBytes
}

func (g Geometry) validate() error {
	if g.TotalBlocks == 0 || g.PagesPerBlock == 0 || g.PageWords == 0 {
		return levelx.ErrInvalidFormat
	}

	return nil
}

// blockHeader is the per-block metadata stored in the payload of every
// block's page 0 (§3.2): erase_count, block_status, and a mapping_index
// field. The engine always writes mapping_index as 0 and scan does not
// read it; list order on reopen is re-derived from erase counts alone.
type blockHeader struct {
	EraseCount   uint32
	Status       blockStatus
	MappingIndex uint32
}

const blockHeaderBytes = 12

func packBlockHeader(h blockHeader) ([]byte, error) {
	return restruct.Pack(byteOrder, &h)
}

func unpackBlockHeader(raw []byte) (blockHeader, error) {
	var h blockHeader

	if err := restruct.Unpack(raw, byteOrder, &h); err != nil {
		return blockHeader{}, err
	}

	return h, nil
}

func isAllOnes(raw []byte) bool {
	for _, b := range raw {
		if b != 0xff {
			return false
		}
	}

	return true
}

// blockStatus is the block-scoped lifecycle latch (§4.2.1), thermometer-
// coded like the NOR engine's block status word (nor/layout.go): progressive
// 1->0 clears carry it from GOOD through RECLAIMING (set while a reclaim
// migration is copying this block's live data elsewhere, letting scan
// disambiguate a crash mid-migration the same way the NOR engine's
// reclaiming flag does) to BAD, the permanent latch set once a program or
// erase failure is observed (§4.2.1). BAD is stored redundantly
// (blockBadSet/blockBadGet, engine.go) at both the block header and a
// mirror field in the last page's spare, so one corrupted spare area
// cannot un-mark a bad block.
type blockStatus uint32

const (
	blockStatusGood       blockStatus = 0xffffffff
	blockStatusReclaiming blockStatus = 0xfffffffe
	blockStatusBad        blockStatus = 0x00000000
)

func (s blockStatus) isReclaiming() bool {
	return s == blockStatusReclaiming
}

func (s blockStatus) markReclaiming() blockStatus {
	return blockStatusReclaiming
}

// pageSpare is the per-page spare record (§3.2): the logical sector this
// page holds, its VALID/SUPERCEDED status, a payload checksum standing in
// for real ECC (SPEC_FULL.md §3.2 deviation note), and a mirror of the
// owning block's BAD latch — meaningful only on a block's last page.
type pageSpare struct {
	Logical        uint32
	Status         pageStatus
	Crc32          uint32
	BlockBadMirror blockStatus
}

const pageSpareBytes = 4 + 1 + 4 + 4

func packSpare(s pageSpare) ([]byte, error) {
	return restruct.Pack(byteOrder, &s)
}

func unpackSpare(raw []byte) (pageSpare, error) {
	var s pageSpare

	if err := restruct.Unpack(raw, byteOrder, &s); err != nil {
		return pageSpare{}, err
	}

	return s, nil
}

// pageStatus is the same thermometer-coded VALID/SUPERCEDED scheme the
// NOR engine uses for its mapping-entry word (layout.go in nor),
// generalized to its own byte here since NAND carries logical sector
// number and status in separate spare fields rather than packed into one
// word.
type pageStatus uint8

const (
	pageStatusFree       pageStatus = 0xff
	pageStatusValidBit              = uint8(1) << 7
	pageStatusSupercededBit         = uint8(1) << 6
)

func (s pageStatus) isFree() bool {
	return s == pageStatusFree
}

func (s pageStatus) isValid() bool {
	return !s.isFree() && uint8(s)&pageStatusValidBit != 0
}

func (s pageStatus) isSuperceded() bool {
	return !s.isFree() && uint8(s)&pageStatusSupercededBit != 0
}

func newTentativeStatus() pageStatus {
	return pageStatus(pageStatusValidBit | pageStatusSupercededBit)
}

func (s pageStatus) committed() pageStatus {
	return pageStatus(uint8(s) &^ pageStatusSupercededBit)
}

func (s pageStatus) released() pageStatus {
	return pageStatus(uint8(s) &^ pageStatusValidBit)
}

func checksum(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}
