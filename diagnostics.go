package levelx

import "time"

// ErrorCode identifies the abstract error taxonomy of §7: a code a driver
// or engine raised, independent of the Go error value it was mapped to.
type ErrorCode int

const (
	// ErrorCodeTransient is an ECC-corrected read: continue, log.
	ErrorCodeTransient ErrorCode = iota + 1
	// ErrorCodeMediaProgramFail retires the page/block.
	ErrorCodeMediaProgramFail
	// ErrorCodeMediaEraseFail marks the block BAD.
	ErrorCodeMediaEraseFail
	// ErrorCodeStructuralInvariantViolated refuses further writes and
	// surfaces a SYSTEM error.
	ErrorCodeStructuralInvariantViolated
	// ErrorCodeResourceExhausted is raised on list/pool overflow.
	ErrorCodeResourceExhausted
	// ErrorCodeInvalidArgument is an out-of-range logical sector or block.
	ErrorCodeInvalidArgument
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeTransient:
		return "TRANSIENT"
	case ErrorCodeMediaProgramFail:
		return "MEDIA_PROGRAM_FAIL"
	case ErrorCodeMediaEraseFail:
		return "MEDIA_ERASE_FAIL"
	case ErrorCodeStructuralInvariantViolated:
		return "STRUCTURAL_INVARIANT_VIOLATED"
	case ErrorCodeResourceExhausted:
		return "RESOURCE_EXHAUSTED"
	case ErrorCodeInvalidArgument:
		return "INVALID_ARGUMENT"
	default:
		return "UNKNOWN"
	}
}

// ErrorCallback is the driver-supplied diagnostic sink (§6.1
// system_error). Block and page are -1 when not applicable.
type ErrorCallback func(code ErrorCode, block, page int)

// ErrorEvent is the most recent diagnostic occurrence recorded by
// Diagnostics.
type ErrorEvent struct {
	Code  ErrorCode
	Block int
	Page  int
	At    time.Time
}

// Diagnostics accumulates the counters and last-event record that both
// engines expose through system_error (§4.3), grounded on
// lx_nor_flash_system_error.c / lx_nand_flash_system_error.c: increment a
// per-code counter, remember the most recent occurrence, forward to the
// driver callback.
type Diagnostics struct {
	// Clock is consulted for timestamps; defaults to time.Now. Tests may
	// override it for determinism.
	Clock func() time.Time

	counts   map[ErrorCode]uint64
	last     ErrorEvent
	callback ErrorCallback
}

// NewDiagnostics returns a Diagnostics ready to record events. cb may be
// nil, in which case events are only counted, never forwarded.
func NewDiagnostics(cb ErrorCallback) *Diagnostics {
	return &Diagnostics{
		Clock:    time.Now,
		counts:   make(map[ErrorCode]uint64),
		callback: cb,
	}
}

// SystemError records a diagnostic occurrence and forwards it to the
// driver callback, if any. block and page should be -1 when not
// applicable to the error.
func (d *Diagnostics) SystemError(code ErrorCode, block, page int) {
	d.counts[code]++

	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}

	d.last = ErrorEvent{Code: code, Block: block, Page: page, At: clock()}

	if d.callback != nil {
		d.callback(code, block, page)
	}
}

// Count returns the number of times code has been recorded.
func (d *Diagnostics) Count(code ErrorCode) uint64 {
	return d.counts[code]
}

// LastEvent returns the most recently recorded diagnostic event.
func (d *Diagnostics) LastEvent() ErrorEvent {
	return d.last
}
