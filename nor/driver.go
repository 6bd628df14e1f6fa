// Package nor implements the NOR flash translation layer engine: mapping
// of logical sectors onto NOR blocks, crash-consistent sector updates via
// the VALID/SUPERCEDED mapping-entry protocol, and reclaim-based garbage
// collection with passive wear leveling.
package nor

import "fmt"

// Driver is the NOR driver contract consumed by the engine (§6.1). Only
// the control-block calling convention is implemented: the engine always
// owns the Driver instance, so there is no separate "legacy" signature to
// support (§9 recommends standardizing on this form; the alternative is
// dropped, not merely unused).
//
// Addressing is byte-oriented, relative to the start of the device. A
// block's byte range is [block*BytesPerBlock, (block+1)*BytesPerBlock).
type Driver interface {
	// Read copies len(dest) bytes starting at byteAddr into dest.
	Read(byteAddr uint32, dest []byte) error

	// Write programs len(source) bytes starting at byteAddr. Real NOR
	// media can only clear bits (1->0); implementations should return
	// levelx.ErrInvalidWrite if source would require setting any bit the
	// device currently reads as 0.
	Write(byteAddr uint32, source []byte) error

	// BlockErase resets block to all-ones and records eraseCount as the
	// block's new erase count.
	BlockErase(block uint32, eraseCount uint32) error

	// BlockErasedVerify optionally confirms a block reads as all-ones.
	// Implementations that cannot cheaply verify may always return true.
	BlockErasedVerify(block uint32) (bool, error)
}

// driverError wraps a failure the driver reported, so callers can tell a
// device failure from an engine-level structural error.
type driverError struct {
	op  string
	err error
}

func (e *driverError) Error() string {
	return fmt.Sprintf("nor: driver %s failed: %v", e.op, e.err)
}

func (e *driverError) Unwrap() error {
	return e.err
}
