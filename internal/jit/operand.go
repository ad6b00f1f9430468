package jit

import "github.com/matetokodi/walrus/internal/lir"

// operandToArg implements the Operand Shuttle for 32-bit-wide operands
// (spec.md §4.1). No emission happens for non-immediate operands: the
// returned Arg is addressing-mode material the caller folds into a
// later op.
func operandToArg(op Operand) lir.Arg {
	if op.IsImmediate {
		return lir.ImmArg(uint32(op.ImmValue))
	}
	return lir.FrameArg(op.Offset << 2)
}

// operandToArgPair implements the Operand Shuttle for 64-bit-wide
// operands (spec.md §4.1). Frame-slot operands get two references at
// endian-dependent half offsets; immediates are split low/high
// regardless of host endianness (spec.md §3 invariant).
func operandToArgPair(op Operand, bigEndian bool) lir.Pair {
	if op.IsImmediate {
		return lir.ImmPair(op.ImmValue)
	}
	base := op.Offset << 2
	return lir.Pair{
		Lo: lir.FrameArg(base + WordLowOffset(bigEndian)),
		Hi: lir.FrameArg(base + WordHighOffset(bigEndian)),
	}
}
