package nor

import "github.com/eclipse-threadx/levelx-go"

// MemoryDriver is an in-memory NOR driver fixture: a plain byte slice
// standing in for the device, enforcing the 1->0-only write contract.
// It plays the role the teacher's testing_common.go AssetPath fixture
// plays for go-exfat, generalized from "a path to a fixture file" to "a
// fixture driver implementation", since this engine has no real device to
// point a fixture file at.
type MemoryDriver struct {
	BytesPerBlock uint32
	TotalBlocks   uint32

	data        []byte
	eraseCounts []uint32

	// CrashAfterWrite, if nonzero, simulates a power loss after the Nth
	// successful Write call (1-indexed): that write completes normally,
	// every later Write call fails without mutating data. Used by
	// crash-consistency tests to interrupt a multi-step update protocol
	// at a specific boundary and then reopen against the same buffer.
	CrashAfterWrite int
	writeCount      int
}

// NewMemoryDriver returns a MemoryDriver already in the erased (all-ones)
// state.
func NewMemoryDriver(totalBlocks, bytesPerBlock uint32) *MemoryDriver {
	d := &MemoryDriver{
		BytesPerBlock: bytesPerBlock,
		TotalBlocks:   totalBlocks,
		data:          make([]byte, int(totalBlocks)*int(bytesPerBlock)),
		eraseCounts:   make([]uint32, totalBlocks),
	}

	for i := range d.data {
		d.data[i] = 0xff
	}

	return d
}

func (d *MemoryDriver) Read(byteAddr uint32, dest []byte) error {
	if int(byteAddr)+len(dest) > len(d.data) {
		return levelx.ErrInvalidBlock
	}

	copy(dest, d.data[byteAddr:int(byteAddr)+len(dest)])
	return nil
}

func (d *MemoryDriver) Write(byteAddr uint32, source []byte) error {
	if int(byteAddr)+len(source) > len(d.data) {
		return levelx.ErrInvalidBlock
	}

	if d.CrashAfterWrite > 0 && d.writeCount >= d.CrashAfterWrite {
		return levelx.ErrMediaProgramFailed
	}

	for i, b := range source {
		existing := d.data[int(byteAddr)+i]
		if existing&b != b {
			return levelx.ErrInvalidWrite
		}
	}

	d.writeCount++

	copy(d.data[byteAddr:int(byteAddr)+len(source)], source)
	return nil
}

// WriteCount returns the number of successful Write calls so far, used by
// tests to pick a precise CrashAfterWrite boundary.
func (d *MemoryDriver) WriteCount() int {
	return d.writeCount
}

func (d *MemoryDriver) BlockErase(block uint32, eraseCount uint32) error {
	if block >= d.TotalBlocks {
		return levelx.ErrInvalidBlock
	}

	start := int(block) * int(d.BytesPerBlock)
	end := start + int(d.BytesPerBlock)
	for i := start; i < end; i++ {
		d.data[i] = 0xff
	}

	d.eraseCounts[block] = eraseCount
	return nil
}

func (d *MemoryDriver) BlockErasedVerify(block uint32) (bool, error) {
	if block >= d.TotalBlocks {
		return false, levelx.ErrInvalidBlock
	}

	start := int(block) * int(d.BytesPerBlock)
	end := start + int(d.BytesPerBlock)
	for i := start; i < end; i++ {
		if d.data[i] != 0xff {
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
