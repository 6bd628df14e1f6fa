// Package nand implements the NAND flash translation layer engine: a
// page-mapped, page-spare-carrying sibling of the nor package, adding
// bad-block handling and a dual-ended block list to the NOR engine's
// mapping and reclaim protocol (SPEC_FULL.md §4.2).
package nand

// Driver is the contract an embedding application implements over a real
// NAND device. Only the control-block calling convention is implemented
// (SPEC_FULL.md §9 "New implementations should standardize on the
// control-block form") — the legacy no-instance-pointer convention the
// original supports is dropped outright.
//
// Batched multi-page driver primitives (pages_read/pages_write/pages_copy
// in the distilled spec) are expressed here as single-page operations;
// SectorsWrite batches at the engine level by looping the single-sector
// protocol, exactly as both engines already do for §4.2.5 — mirroring
// nor.Driver's choice not to duplicate that looping inside the driver
// contract too.
type Driver interface {
	PageRead(block, page uint32, payload, spare []byte) error
	PageWrite(block, page uint32, payload, spare []byte) error
	PageCopy(srcBlock, srcPage, destBlock, destPage uint32) error
	BlockErase(block uint32, eraseCount uint32) error
	BlockErasedVerify(block uint32) (bool, error)
}

type driverError struct {
	op  string
	err error
}

func (e *driverError) Error() string {
	return "nand: driver " + e.op + " failed: " + e.err.Error()
}

func (e *driverError) Unwrap() error {
	return e.err
}
