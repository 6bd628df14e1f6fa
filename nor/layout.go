package nor

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"

	"github.com/eclipse-threadx/levelx-go"
)

var byteOrder = binary.LittleEndian

// Geometry describes the fixed shape of a NOR device (§3.1): total_blocks
// equal blocks of words_per_block 32-bit words, each holding a block
// header, a mapping array of one word per physical sector, and a payload
// area of sectorWords words per physical sector.
type Geometry struct {
	TotalBlocks   uint32
	WordsPerBlock uint32
	SectorWords   uint32 // LX_NOR_SECTOR_SIZE
}

const (
	headerWords  = 2 // EraseCount, BlockStatus — see SPEC_FULL.md §3.1 deviation note
	headerBytes  = headerWords * 4
	mappingBytes = 4 // one word per physical sector
)

// logicalSentinel is the reserved logical sector number that can never be
// assigned; it marks a mapping word that has never been programmed past
// its erased (all-ones) state.
const logicalSentinel = uint32(0xffff)

// MaxLogicalSector is the largest logical sector number the 16-bit field
// can carry.
const MaxLogicalSector = logicalSentinel - 1

func (g Geometry) bytesPerBlock() uint32 {
	return g.WordsPerBlock * 4
}

// physicalSectorsPerBlock computes how many (mapping-word, payload) pairs
// fit after the header, per §3.1's layout description.
func (g Geometry) physicalSectorsPerBlock() uint32 {
	payloadBytes := g.SectorWords * 4
	available := g.bytesPerBlock() - headerBytes
	return available / (mappingBytes + payloadBytes)
}

func (g Geometry) mappingArrayBytes() uint32 {
	return g.physicalSectorsPerBlock() * mappingBytes
}

func (g Geometry) sectorPayloadBytes() uint32 {
	return g.SectorWords * 4
}

func (g Geometry) blockOffset(block uint32) uint32 {
	return block * g.bytesPerBlock()
}

// BlockByteSize returns one block's total on-disk footprint (header,
// mapping array, and payload area), the unit a byte-addressable Driver
// implementation erases and lays its blocks out in.
func (g Geometry) BlockByteSize() uint32 {
	return g.bytesPerBlock()
}

// BlockByteOffset returns the byte offset of block within the device, for
// Driver implementations that address the device linearly (§6.1).
func (g Geometry) BlockByteOffset(block uint32) uint32 {
	return g.blockOffset(block)
}

func (g Geometry) statusWordOffset(block uint32) uint32 {
	return g.blockOffset(block) + 4
}

func (g Geometry) mappingEntryOffset(block, sector uint32) uint32 {
	return g.blockOffset(block) + headerBytes + sector*mappingBytes
}

func (g Geometry) sectorPayloadOffset(block, sector uint32) uint32 {
	return g.blockOffset(block) + headerBytes + g.mappingArrayBytes() + sector*g.sectorPayloadBytes()
}

func (g Geometry) validate() error {
	if g.TotalBlocks == 0 || g.WordsPerBlock == 0 || g.SectorWords == 0 {
		return levelx.ErrInvalidFormat
	}

	if g.bytesPerBlock() <= headerBytes {
		return levelx.ErrInvalidFormat
	}

	if g.physicalSectorsPerBlock() == 0 {
		return levelx.ErrInvalidFormat
	}

	return nil
}

// blockStatus encodes the block-scoped lifecycle state this
// implementation tracks in the second header word (§4.4 "Block status",
// narrowed to what NOR needs — it has no bad-block lifecycle, that's
// NAND-only, §4.2.1). Like the mapping entry, it is a thermometer code
// built from progressive 1->0 bit clears so a block's status can advance
// (free -> mapped -> reclaiming) with single in-place word writes,
// without needing a full header rewrite or block erase each time.
type blockStatus uint32

const (
	blockStatusFree       blockStatus = 0xffffffff
	blockStatusMapped     blockStatus = 0xfffffffe
	blockStatusReclaiming blockStatus = 0xfffffffc
)

func (s blockStatus) isMapped() bool {
	return uint32(s)&0x1 == 0
}

func (s blockStatus) isReclaiming() bool {
	return uint32(s)&0x2 == 0
}

// markMapped returns the status word with the "mapped" bit cleared, a
// single further 1->0 transition from blockStatusFree.
func (s blockStatus) markMapped() blockStatus {
	return s &^ 0x1
}

// markReclaiming returns the status word with the "reclaiming" bit
// cleared, a single further 1->0 transition from blockStatusMapped.
func (s blockStatus) markReclaiming() blockStatus {
	return s &^ 0x2
}

// blockHeader is the first headerWords words of every block (§3.1).
// Packed with restruct, matching the teacher's approach to every other
// fixed-width on-media record.
type blockHeader struct {
	EraseCount uint32
	Status     blockStatus
}

func packHeader(h blockHeader) ([]byte, error) {
	return restruct.Pack(byteOrder, &h)
}

func unpackHeader(raw []byte) (blockHeader, error) {
	var h blockHeader

	err := restruct.Unpack(raw, byteOrder, &h)
	if err != nil {
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

// mappingEntry is the one-word-per-physical-sector record described in
// §3.1. Encoding (documented in SPEC_FULL.md and DESIGN.md): bit 31 is
// VALID, bit 30 is SUPERCEDED, bits 29..16 are reserved and always left
// at their erased value of 1, bits 15..0 carry the logical sector number.
// The all-ones word is reserved to mean "never programmed" (free); a
// logical sector number of logicalSentinel is never assigned, so a
// genuinely free entry can always be told apart from a programmed one by
// comparing the whole word against 0xffffffff.
type mappingEntry uint32

const (
	mappingValidBit      = uint32(1) << 31
	mappingSupercededBit = uint32(1) << 30
	mappingReservedBits  = uint32(0x3fff0000)
	mappingLogicalMask   = uint32(0x0000ffff)
	mappingFreeWord      = uint32(0xffffffff)
)

func (m mappingEntry) isFree() bool {
	return uint32(m) == mappingFreeWord
}

func (m mappingEntry) isValid() bool {
	return !m.isFree() && uint32(m)&mappingValidBit != 0
}

func (m mappingEntry) isSuperceded() bool {
	return !m.isFree() && uint32(m)&mappingSupercededBit != 0
}

func (m mappingEntry) logical() uint32 {
	return uint32(m) & mappingLogicalMask
}

// newTentativeEntry encodes the word programmed by write step (b): VALID
// and SUPERCEDED both set, logical sector number recorded.
func newTentativeEntry(logical uint32) mappingEntry {
	return mappingEntry(mappingValidBit | mappingSupercededBit | mappingReservedBits | (logical & mappingLogicalMask))
}

// committed clears SUPERCEDED (write step (c)): a single further 1->0
// transition.
func (m mappingEntry) committed() mappingEntry {
	return mappingEntry(uint32(m) &^ mappingSupercededBit)
}

// released clears VALID (write step (d), or §4.1.4 release): a single
// further 1->0 transition.
func (m mappingEntry) released() mappingEntry {
	return mappingEntry(uint32(m) &^ mappingValidBit)
}

func encodeWord(w uint32) []byte {
	raw := make([]byte, 4)
	byteOrder.PutUint32(raw, w)
	return raw
}

func decodeWord(raw []byte) uint32 {
	return byteOrder.Uint32(raw)
}
