package jit

import (
	"math/bits"

	"github.com/matetokodi/walrus/internal/lir"
)

// simpleBinary64Ops maps the word-splittable 64-bit binary opcodes to
// their low/high-half LIR ops (spec.md §4.4 emitSimpleBinary64): add/sub
// propagate carry/borrow into the high half via ADDC/SUBC, bitwise ops
// use the same op on both halves.
var simpleBinary64Ops = map[Opcode][2]lir.Op{
	OpAdd: {lir.Add, lir.AddC},
	OpSub: {lir.Sub, lir.SubC},
	OpAnd: {lir.And, lir.And},
	OpOr:  {lir.Or, lir.Or},
	OpXor: {lir.Xor, lir.Xor},
}

// spillIfBothMem hoists a into reg when both a and b are frame-slot
// operands, since the emitter forbids two memory operands in one op2
// (spec.md §4.4).
func spillIfBothMem(asm lir.Assembler, reg lir.Register, a, b lir.Arg) lir.Arg {
	if a.Kind == lir.ArgMem && b.Kind == lir.ArgMem {
		asm.Op1(lir.Mov, lir.RegArg(reg), a)
		return lir.RegArg(reg)
	}
	return a
}

func lowerSimpleBinary64(ctx *CompileContext, op Opcode, a, b Operand, dst Operand) bool {
	ops, ok := simpleBinary64Ops[op]
	if !ok {
		return false
	}
	asm := ctx.Asm
	ap := operandToArgPair(a, ctx.BigEndian)
	bp := operandToArgPair(b, ctx.BigEndian)
	dp := operandToArgPair(dst, ctx.BigEndian)

	lo := spillIfBothMem(asm, lir.R0, ap.Lo, bp.Lo)
	hi := spillIfBothMem(asm, lir.R1, ap.Hi, bp.Hi)

	asm.Op2(ops[0], dp.Lo, lo, bp.Lo)
	asm.Op2(ops[1], dp.Hi, hi, bp.Hi)
	return true
}

// lowerMul64 implements emitMul64 (spec.md §4.4):
// hi = hi_a*lo_b + lo_a*hi_b + high(lo_a*lo_b); lo = low(lo_a*lo_b).
func lowerMul64(ctx *CompileContext, a, b Operand, dst Operand) {
	asm := ctx.Asm
	ap := operandToArgPair(a, ctx.BigEndian)
	bp := operandToArgPair(b, ctx.BigEndian)
	dp := operandToArgPair(dst, ctx.BigEndian)

	asm.Op1(lir.Mov, lir.RegArg(lir.R0), ap.Lo) // lo_a
	asm.Op1(lir.Mov, lir.RegArg(lir.R1), ap.Hi) // hi_a
	asm.Op1(lir.Mov, lir.RegArg(lir.R2), bp.Lo) // lo_b
	asm.Op1(lir.Mov, lir.RegArg(lir.R3), bp.Hi) // hi_b

	asm.Op2(lir.Mul, lir.RegArg(lir.R4), lir.RegArg(lir.R1), lir.RegArg(lir.R2)) // t1 = hi_a*lo_b
	asm.Op2(lir.Mul, lir.RegArg(lir.R5), lir.RegArg(lir.R0), lir.RegArg(lir.R3)) // t2 = lo_a*hi_b

	asm.Op2(lir.LMulUW, lir.RegArg(lir.R6), lir.RegArg(lir.R0), lir.RegArg(lir.R2)) // (hi,lo) packed
	asm.Op1(lir.UnpackLo, lir.RegArg(lir.R0), lir.RegArg(lir.R6))
	asm.Op1(lir.UnpackHi, lir.RegArg(lir.R1), lir.RegArg(lir.R6))

	asm.Op2(lir.Add, lir.RegArg(lir.R1), lir.RegArg(lir.R1), lir.RegArg(lir.R4))
	asm.Op2(lir.Add, lir.RegArg(lir.R1), lir.RegArg(lir.R1), lir.RegArg(lir.R5))

	asm.Op1(lir.Mov, dp.Lo, lir.RegArg(lir.R0))
	asm.Op1(lir.Mov, dp.Hi, lir.RegArg(lir.R1))
}

// shiftHalves emits the cross-word + same-word shift pair for a shift
// count known to be in [0,31] (spec.md §4.4 emitShift64, "n < 0x20").
// loReg/hiReg hold the source low/high halves; count is an Arg (register
// or immediate) already masked to 5 bits.
func shiftHalves(asm lir.Assembler, op Opcode, loReg, hiReg lir.Register, count lir.Arg, dp lir.Pair) {
	switch op {
	case OpShl:
		asm.ShiftInto(lir.Shl, lir.R2, hiReg, loReg, count)
		asm.Op2(lir.Shl, lir.RegArg(lir.R3), lir.RegArg(loReg), count)
		asm.Op1(lir.Mov, dp.Hi, lir.RegArg(lir.R2))
		asm.Op1(lir.Mov, dp.Lo, lir.RegArg(lir.R3))
	case OpShrU:
		asm.ShiftInto(lir.Lshr, lir.R2, loReg, hiReg, count)
		asm.Op2(lir.Lshr, lir.RegArg(lir.R3), lir.RegArg(hiReg), count)
		asm.Op1(lir.Mov, dp.Lo, lir.RegArg(lir.R2))
		asm.Op1(lir.Mov, dp.Hi, lir.RegArg(lir.R3))
	case OpShrS:
		asm.ShiftInto(lir.Lshr, lir.R2, loReg, hiReg, count)
		asm.Op2(lir.Ashr, lir.RegArg(lir.R3), lir.RegArg(hiReg), count)
		asm.Op1(lir.Mov, dp.Lo, lir.RegArg(lir.R2))
		asm.Op1(lir.Mov, dp.Hi, lir.RegArg(lir.R3))
	}
}

// shiftAcrossBoundary implements the `n & 0x20` branch of emitShift64:
// the shift amount is >= 32, so one half becomes the (shifted) other
// half and the vacated half is zero- or sign-filled.
func shiftAcrossBoundary(asm lir.Assembler, op Opcode, loReg, hiReg lir.Register, shiftBy lir.Arg, dp lir.Pair) {
	switch op {
	case OpShl:
		asm.Op2(lir.Shl, dp.Hi, lir.RegArg(loReg), shiftBy)
		asm.Op1(lir.Mov, dp.Lo, lir.ImmArg(0))
	case OpShrU:
		asm.Op2(lir.Lshr, dp.Lo, lir.RegArg(hiReg), shiftBy)
		asm.Op1(lir.Mov, dp.Hi, lir.ImmArg(0))
	case OpShrS:
		asm.Op2(lir.Ashr, dp.Lo, lir.RegArg(hiReg), shiftBy)
		asm.Op2(lir.Ashr, dp.Hi, lir.RegArg(hiReg), lir.ImmArg(31))
	}
}

// lowerShift64 implements emitShift64 (spec.md §4.4) for shl/shr_s/shr_u
// on a 64-bit value word-split across two 32-bit halves.
func lowerShift64(ctx *CompileContext, op Opcode, amount, src Operand, dst Operand) {
	asm := ctx.Asm
	sp := operandToArgPair(src, ctx.BigEndian)
	dp := operandToArgPair(dst, ctx.BigEndian)

	asm.Op1(lir.Mov, lir.RegArg(lir.R0), sp.Lo)
	asm.Op1(lir.Mov, lir.RegArg(lir.R1), sp.Hi)

	if amount.IsImmediate {
		n := uint32(amount.ImmValue) & 0x3F
		if n&0x20 != 0 {
			shiftAcrossBoundary(asm, op, lir.R0, lir.R1, lir.ImmArg(n-32), dp)
		} else {
			shiftHalves(asm, op, lir.R0, lir.R1, lir.ImmArg(n), dp)
		}
		return
	}

	asm.Op1(lir.Mov, lir.RegArg(lir.R4), operandToArg(amount))
	asm.Op2(lir.And, lir.RegArg(lir.R4), lir.RegArg(lir.R4), lir.ImmArg(0x3F))
	asm.Op2(lir.And, lir.RegArg(lir.R5), lir.RegArg(lir.R4), lir.ImmArg(0x20))
	ge32 := asm.Cmp(lir.NotEqual, lir.RegArg(lir.R5), lir.ImmArg(0))

	asm.Op2(lir.And, lir.RegArg(lir.R4), lir.RegArg(lir.R4), lir.ImmArg(0x1F))
	shiftHalves(asm, op, lir.R0, lir.R1, lir.RegArg(lir.R4), dp)
	done := asm.JumpC(lir.Always)

	ge32Label := asm.EmitLabel()
	asm.SetLabel(ge32, ge32Label)
	asm.Op2(lir.Sub, lir.RegArg(lir.R4), lir.RegArg(lir.R4), lir.ImmArg(32))
	shiftAcrossBoundary(asm, op, lir.R0, lir.R1, lir.RegArg(lir.R4), dp)

	after := asm.EmitLabel()
	asm.SetLabel(done, after)
}

// lowerRotate64 implements emitRotate64 (spec.md §4.4): rotate amount
// r = amount & 0x3F; if r&0x20, the low/high halves are swapped before
// the two double-word shifts by r&0x1F.
func lowerRotate64(ctx *CompileContext, left bool, amount, src Operand, dst Operand) {
	asm := ctx.Asm
	sp := operandToArgPair(src, ctx.BigEndian)
	dp := operandToArgPair(dst, ctx.BigEndian)

	// Both ShiftInto calls below use the same direction, rotDir (Shl for
	// rotate-left, Lshr for rotate-right), which is what distinguishes
	// the two rotates; swapping the "source" and "other" halves between
	// the two calls is what yields the result's low and high words.
	rotDir := lir.Shl
	if !left {
		rotDir = lir.Lshr
	}

	doRotate := func(loReg, hiReg lir.Register, k lir.Arg) {
		asm.ShiftInto(rotDir, lir.R2, loReg, hiReg, k)
		asm.ShiftInto(rotDir, lir.R3, hiReg, loReg, k)
		asm.Op1(lir.Mov, dp.Lo, lir.RegArg(lir.R2))
		asm.Op1(lir.Mov, dp.Hi, lir.RegArg(lir.R3))
	}

	asm.Op1(lir.Mov, lir.RegArg(lir.R0), sp.Lo)
	asm.Op1(lir.Mov, lir.RegArg(lir.R1), sp.Hi)

	if amount.IsImmediate {
		r := uint32(amount.ImmValue) & 0x3F
		lo, hi := lir.Register(lir.R0), lir.Register(lir.R1)
		if r&0x20 != 0 {
			lo, hi = lir.R1, lir.R0
		}
		doRotate(lo, hi, lir.ImmArg(r&0x1F))
		return
	}

	asm.Op1(lir.Mov, lir.RegArg(lir.R4), operandToArg(amount))
	asm.Op2(lir.And, lir.RegArg(lir.R4), lir.RegArg(lir.R4), lir.ImmArg(0x3F))
	asm.Op2(lir.And, lir.RegArg(lir.R5), lir.RegArg(lir.R4), lir.ImmArg(0x20))
	swapJ := asm.Cmp(lir.Equal, lir.RegArg(lir.R5), lir.ImmArg(0))

	// bit 5 set: swap in place (XOR swap, as spec.md §4.4 describes).
	asm.Op2(lir.Xor, lir.RegArg(lir.R0), lir.RegArg(lir.R0), lir.RegArg(lir.R1))
	asm.Op2(lir.Xor, lir.RegArg(lir.R1), lir.RegArg(lir.R1), lir.RegArg(lir.R0))
	asm.Op2(lir.Xor, lir.RegArg(lir.R0), lir.RegArg(lir.R0), lir.RegArg(lir.R1))

	noSwapLabel := asm.EmitLabel()
	asm.SetLabel(swapJ, noSwapLabel)

	asm.Op2(lir.And, lir.RegArg(lir.R4), lir.RegArg(lir.R4), lir.ImmArg(0x1F))
	doRotate(lir.R0, lir.R1, lir.RegArg(lir.R4))
}

// The four ABI helpers emitDivRem64 dispatches to (spec.md §4.4):
// signed/unsigned div, signed/unsigned rem. Unlike the 32-bit lowerer,
// there is no separate immediate-divisor fast path here: an immediate
// divisor still has to go through the same zero/overflow check at run
// time (the ICall closure below branches on signed/immDivisor exactly
// the same way regardless), so lowerDivRem64 folds both forms into one
// code path instead of duplicating it the way lowerDivRem32Imm does.

func signedDiv64(dividend, divisor int64) (int64, ErrorCode) {
	if divisor == 0 {
		return 0, DivideByZeroError
	}
	if divisor == -1 && dividend == -1<<63 {
		return 0, IntegerOverflowError
	}
	return dividend / divisor, NoError
}

func unsignedDiv64(dividend, divisor uint64) (uint64, ErrorCode) {
	if divisor == 0 {
		return 0, DivideByZeroError
	}
	return dividend / divisor, NoError
}

func signedRem64(dividend, divisor int64) (int64, ErrorCode) {
	if divisor == 0 {
		return 0, DivideByZeroError
	}
	if divisor == -1 {
		return 0, NoError
	}
	return dividend % divisor, NoError
}

func unsignedRem64(dividend, divisor uint64) (uint64, ErrorCode) {
	if divisor == 0 {
		return 0, DivideByZeroError
	}
	return dividend % divisor, NoError
}

// lowerDivRem64 implements emitDivRem64 (spec.md §4.4): the emitter puts
// the dividend and divisor halves in R0-R3 and calls one of the four
// helpers (signed/unsigned div/rem) through ICall, passing the result
// back through Exec.Tmp1; a non-NoError return traps. An immediate
// divisor goes through the same helper; there are no immediate-divisor
// helper variants.
func lowerDivRem64(ctx *CompileContext, op Opcode, a, b Operand, dst Operand) {
	asm := ctx.Asm
	exec := ctx.Exec
	signed := op == OpDivS || op == OpRemS
	isDiv := op == OpDivS || op == OpDivU

	ap := operandToArgPair(a, ctx.BigEndian)
	asm.Op1(lir.Mov, lir.RegArg(lir.R0), ap.Lo)
	asm.Op1(lir.Mov, lir.RegArg(lir.R1), ap.Hi)

	var divisorImm uint64
	immDivisor := b.IsImmediate
	if immDivisor {
		divisorImm = b.ImmValue
	} else {
		bp := operandToArgPair(b, ctx.BigEndian)
		asm.Op1(lir.Mov, lir.RegArg(lir.R2), bp.Lo)
		asm.Op1(lir.Mov, lir.RegArg(lir.R3), bp.Hi)
	}

	asm.ICall(func(m *lir.Machine) {
		dividend := uint64(uint32(m.Regs[lir.R0])) | uint64(uint32(m.Regs[lir.R1]))<<32
		var divisor uint64
		if immDivisor {
			divisor = divisorImm
		} else {
			divisor = uint64(uint32(m.Regs[lir.R2])) | uint64(uint32(m.Regs[lir.R3]))<<32
		}
		var result uint64
		var code ErrorCode
		switch {
		case signed && isDiv:
			r, c := signedDiv64(int64(dividend), int64(divisor))
			result, code = uint64(r), c
		case !signed && isDiv:
			result, code = unsignedDiv64(dividend, divisor)
		case signed && !isDiv:
			r, c := signedRem64(int64(dividend), int64(divisor))
			result, code = uint64(r), c
		default:
			result, code = unsignedRem64(dividend, divisor)
		}
		exec.Tmp1 = result
		m.Regs[lir.R2] = uint64(code)
	})

	asm.Op2u(lir.Sub, lir.RegArg(lir.R2), lir.ImmArg(uint32(NoError)))
	ctx.JumpToTrap(lir.NotEqual)

	dp := operandToArgPair(dst, ctx.BigEndian)
	asm.ICall(func(m *lir.Machine) {
		m.Regs[lir.R0] = uint32AsU64(uint32(exec.Tmp1))
		m.Regs[lir.R1] = uint32AsU64(uint32(exec.Tmp1 >> 32))
	})
	asm.Op1(lir.Mov, dp.Lo, lir.RegArg(lir.R0))
	asm.Op1(lir.Mov, dp.Hi, lir.RegArg(lir.R1))
}

func uint32AsU64(v uint32) uint64 { return uint64(v) }

// lowerCountZeroes64 implements emitCountZeroes (spec.md §4.4) for
// clz64/ctz64: the high half is checked first for clz, the low half
// first for ctz; the result's high half is always 0.
func lowerCountZeroes64(ctx *CompileContext, isCtz bool, src Operand, dst Operand) {
	asm := ctx.Asm
	sp := operandToArgPair(src, ctx.BigEndian)
	dp := operandToArgPair(dst, ctx.BigEndian)

	if isCtz {
		asm.Op1(lir.Mov, lir.RegArg(lir.R0), sp.Lo)
		zeroJ := asm.Cmp(lir.Equal, lir.RegArg(lir.R0), lir.ImmArg(0))
		asm.Op1(lir.Ctz, lir.RegArg(lir.R2), lir.RegArg(lir.R0))
		done := asm.JumpC(lir.Always)

		zeroLabel := asm.EmitLabel()
		asm.SetLabel(zeroJ, zeroLabel)
		asm.Op1(lir.Mov, lir.RegArg(lir.R1), sp.Hi)
		asm.Op1(lir.Ctz, lir.RegArg(lir.R1), lir.RegArg(lir.R1))
		asm.Op2(lir.Add, lir.RegArg(lir.R2), lir.RegArg(lir.R1), lir.ImmArg(32))

		after := asm.EmitLabel()
		asm.SetLabel(done, after)
	} else {
		asm.Op1(lir.Mov, lir.RegArg(lir.R1), sp.Hi)
		zeroJ := asm.Cmp(lir.Equal, lir.RegArg(lir.R1), lir.ImmArg(0))
		asm.Op1(lir.Clz, lir.RegArg(lir.R2), lir.RegArg(lir.R1))
		done := asm.JumpC(lir.Always)

		zeroLabel := asm.EmitLabel()
		asm.SetLabel(zeroJ, zeroLabel)
		asm.Op1(lir.Mov, lir.RegArg(lir.R0), sp.Lo)
		asm.Op1(lir.Clz, lir.RegArg(lir.R0), lir.RegArg(lir.R0))
		asm.Op2(lir.Add, lir.RegArg(lir.R2), lir.RegArg(lir.R0), lir.ImmArg(32))

		after := asm.EmitLabel()
		asm.SetLabel(done, after)
	}

	asm.Op1(lir.Mov, dp.Lo, lir.RegArg(lir.R2))
	asm.Op1(lir.Mov, dp.Hi, lir.ImmArg(0))
}

// lowerPopcnt64 implements emitPopcnt64 (spec.md §4.4): popcount(lo) +
// popcount(hi), high half of the result always 0. Uses a helper call
// since LIR has no popcount opcode (spec.md §6 lists only CLZ/CTZ).
func lowerPopcnt64(ctx *CompileContext, src Operand, dst Operand) {
	asm := ctx.Asm
	sp := operandToArgPair(src, ctx.BigEndian)
	dp := operandToArgPair(dst, ctx.BigEndian)

	asm.Op1(lir.Mov, lir.RegArg(lir.R0), sp.Lo)
	asm.Op1(lir.Mov, lir.RegArg(lir.R1), sp.Hi)
	asm.ICall(func(m *lir.Machine) {
		count := bits.OnesCount32(uint32(m.Regs[lir.R0])) + bits.OnesCount32(uint32(m.Regs[lir.R1]))
		m.Regs[lir.R2] = uint64(count)
	})
	asm.Op1(lir.Mov, dp.Lo, lir.RegArg(lir.R2))
	asm.Op1(lir.Mov, dp.Hi, lir.ImmArg(0))
}

// lowerExtend64 implements emitExtend64 (spec.md §4.4): sign-extend an
// 8/16/32-bit value into the low half, then fill the high half with the
// arithmetic-shift-right-by-31 of the low half.
func lowerExtend64(ctx *CompileContext, narrowOp lir.Op, src Operand, dst Operand) {
	asm := ctx.Asm
	dp := operandToArgPair(dst, ctx.BigEndian)

	asm.Op1(narrowOp, lir.RegArg(lir.R0), operandToArg(src))
	asm.Op1(lir.Mov, dp.Lo, lir.RegArg(lir.R0))
	asm.Op2(lir.Ashr, lir.RegArg(lir.R1), lir.RegArg(lir.R0), lir.ImmArg(31))
	asm.Op1(lir.Mov, dp.Hi, lir.RegArg(lir.R1))
}
