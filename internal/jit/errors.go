package jit

import (
	"errors"

	"github.com/matetokodi/walrus/internal/lir"
)

// ErrorCode is the runtime error taxonomy a trap tail carries (spec.md
// §3, §7). It is a type alias of lir.ErrorCode: the lowering core and
// its LIR backend must agree on one closed enumeration.
type ErrorCode = lir.ErrorCode

const (
	NoError                   = lir.NoError
	DivideByZeroError         = lir.DivideByZeroError
	IntegerOverflowError      = lir.IntegerOverflowError
	OutOfBoundsMemAccessError = lir.OutOfBoundsMemAccessError
)

// Trap reports an ErrorCode as a Go error for callers that drive a
// Machine directly rather than inspecting Machine.ErrorCode.
type Trap struct {
	Code ErrorCode
}

func (t *Trap) Error() string {
	switch t.Code {
	case DivideByZeroError:
		return "divide by zero"
	case IntegerOverflowError:
		return "integer overflow"
	case OutOfBoundsMemAccessError:
		return "out of bounds memory access"
	default:
		return "trap"
	}
}

var (
	// ErrUnsupportedOpcode is returned by the driver when asked to
	// compile an instruction outside this core's scope (floats, SIMD,
	// calls, tables — all external collaborators per spec.md §1).
	ErrUnsupportedOpcode = errors.New("jit: unsupported opcode")
	// ErrUnknownDataSegment is returned by Instance.segment when the
	// referenced segment index does not exist; dropData and initMemory
	// report that case as OutOfBoundsMemAccessError.
	ErrUnknownDataSegment = errors.New("jit: unknown data segment")
)

// ResultOf converts a halted Machine's error code into a *Trap, or nil if
// the machine halted without error.
func ResultOf(code ErrorCode) error {
	if code == NoError {
		return nil
	}
	return &Trap{Code: code}
}
