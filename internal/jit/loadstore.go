package jit

import "github.com/matetokodi/walrus/internal/lir"

// loadMoveOp maps an access size and sign-extend flag to the LIR move
// opcode that loads it (spec.md §4.8's "single opcode table"). Access
// size 8 is handled separately by lowerLoadPair/lowerStorePair, since it
// needs the register-pair memory form rather than a plain Mov variant.
func loadMoveOp(accessSize int, signExtend bool) lir.Op {
	switch {
	case accessSize == 1 && signExtend:
		return lir.MovS8
	case accessSize == 1:
		return lir.MovU8
	case accessSize == 2 && signExtend:
		return lir.MovS16
	case accessSize == 2:
		return lir.MovU16
	case accessSize == 4 && signExtend:
		return lir.MovS32
	default:
		return lir.MovU32
	}
}

// lowerLoad implements the Load half of the Load/Store Lowerer (spec.md
// §4.8): validate the address via checkAddress, then move the value
// into dst, widening to a 64-bit pair when the result is an i64.
//
// A real 32-bit target addresses a sub-word value inside a fixed 32-bit
// container and must shift the displacement by 2 or 3 bytes to land on
// the significant byte in big-endian layout (spec.md §4.8). Machine
// addresses memory byte-precisely and assembles multi-byte values
// honoring BigEndian itself (see loadMem), so no such adjustment is
// needed here.
func lowerLoad(ctx *CompileContext, payload MemoryLoad, dynOffset, dst Operand) {
	asm := ctx.Asm
	addr := checkAddress(ctx, dynOffset, payload.Offset, payload.AccessSize)

	if !payload.Result64 {
		asm.Op1(loadMoveOp(payload.AccessSize, payload.SignExtend), lir.RegArg(lir.R0), addr)
		asm.Op1(lir.Mov, operandToArg(dst), lir.RegArg(lir.R0))
		return
	}

	if payload.AccessSize == 8 {
		lowerLoadPair(ctx, addr, dst)
		return
	}

	dp := operandToArgPair(dst, ctx.BigEndian)
	asm.Op1(loadMoveOp(payload.AccessSize, payload.SignExtend), lir.RegArg(lir.R0), addr)
	asm.Op1(lir.Mov, dp.Lo, lir.RegArg(lir.R0))
	if payload.SignExtend {
		asm.Op2(lir.Ashr, dp.Hi, lir.RegArg(lir.R0), lir.ImmArg(31))
	} else {
		asm.Op1(lir.Mov, dp.Hi, lir.ImmArg(0))
	}
}

// lowerLoadPair performs a 64-bit load via the register-pair memory form
// (spec.md §4.8): the 8 raw bytes come back as one packed value in a
// scratch register, then UnpackLo/UnpackHi split it into dst's two
// frame-slot halves.
func lowerLoadPair(ctx *CompileContext, addr lir.Arg, dst Operand) {
	asm := ctx.Asm
	asm.Mem(true, true, lir.RegArg(lir.R0), addr)
	dp := operandToArgPair(dst, ctx.BigEndian)
	asm.Op1(lir.UnpackLo, dp.Lo, lir.RegArg(lir.R0))
	asm.Op1(lir.UnpackHi, dp.Hi, lir.RegArg(lir.R0))
}

// lowerStore implements the Store half (spec.md §4.8).
func lowerStore(ctx *CompileContext, payload MemoryStore, is64 bool, dynOffset, src Operand) {
	asm := ctx.Asm
	addr := checkAddress(ctx, dynOffset, payload.Offset, payload.AccessSize)

	if !is64 || payload.AccessSize != 8 {
		moveOp := loadMoveOp(payload.AccessSize, false)
		if is64 {
			lo := operandToArgPair(src, ctx.BigEndian).Lo
			asm.Op1(moveOp, addr, lo)
		} else {
			asm.Op1(moveOp, addr, operandToArg(src))
		}
		return
	}

	lowerStorePair(ctx, addr, src)
}

// lowerStorePair packs src's low/high frame-slot halves into one
// register and performs the 64-bit register-pair store.
func lowerStorePair(ctx *CompileContext, addr lir.Arg, src Operand) {
	asm := ctx.Asm
	sp := operandToArgPair(src, ctx.BigEndian)
	asm.Op1(lir.Mov, lir.RegArg(lir.R0), sp.Lo)
	asm.Op1(lir.Mov, lir.RegArg(lir.R1), sp.Hi)
	asm.Op2(lir.Pack, lir.RegArg(lir.R0), lir.RegArg(lir.R0), lir.RegArg(lir.R1))
	asm.Mem(true, false, lir.RegArg(lir.R0), addr)
}
