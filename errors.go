package levelx

import "errors"

// Return-code vocabulary shared by both engines. Public operations map
// internal failures onto one of these sentinels so callers can use
// errors.Is regardless of which engine produced the error.
var (
	// ErrSectorNotFound is returned when a logical sector has no live
	// mapping (never written, or released).
	ErrSectorNotFound = errors.New("levelx: sector not found")

	// ErrNoSectors is returned by both engines when the free pool cannot
	// be replenished by reclaim.
	ErrNoSectors = errors.New("levelx: no free physical sectors")

	// ErrNoPages names the NAND free-pool exhaustion condition; neither
	// engine in this module returns it (the NAND engine reports
	// ErrNoSectors).
	ErrNoPages = errors.New("levelx: no free pages")

	// ErrInvalidWrite is returned when a write would violate the 1->0
	// bit-transition contract of the underlying media.
	ErrInvalidWrite = errors.New("levelx: invalid write, would require 0->1 transition")

	// ErrInvalidSector is returned for an out-of-range logical sector
	// number.
	ErrInvalidSector = errors.New("levelx: invalid logical sector")

	// ErrInvalidBlock is returned for an out-of-range block index.
	ErrInvalidBlock = errors.New("levelx: invalid block")

	// ErrCorrected is returned (in addition to being logged) when a NAND
	// read finds the payload does not match its stored checksum; the
	// payload is returned as read, uncorrected.
	ErrCorrected = errors.New("levelx: ECC corrected")

	// ErrInvalidFormat is returned for a rejected geometry, or when Open
	// finds an on-media record it cannot decode. Callers must reformat
	// explicitly; Open never does it implicitly.
	ErrInvalidFormat = errors.New("levelx: invalid or foreign on-media format")

	// ErrSystemInvalidBlock is returned when an internal structural
	// invariant about a block's state is violated.
	ErrSystemInvalidBlock = errors.New("levelx: structural invariant violated for block")

	// ErrAllocationFailed is returned when a runtime table (block list,
	// mapping table) would overflow.
	ErrAllocationFailed = errors.New("levelx: allocation failed, list exhausted")

	// ErrMediaProgramFailed is returned when the driver reports a page or
	// sector program failure.
	ErrMediaProgramFailed = errors.New("levelx: media program failure")

	// ErrMediaEraseFailed is returned when the driver reports a block
	// erase failure.
	ErrMediaEraseFailed = errors.New("levelx: media erase failure")
)
