package jit

import "github.com/matetokodi/walrus/internal/lir"

// lowerSelect implements the Select Lowerer (spec.md §4.6): materialize
// dst = cond != 0 ? a : b. The condition has already been evaluated into
// a 32-bit operand (either a plain i32 value or, when fused straight out
// of a compare, never reaches this function at all — see compare.go's
// fuseSelect path, which emits the Select directly off the compare's own
// flags without ever forcing the condition through NotZero first).
//
// 64-bit select runs two independent 32-bit selects, one per half, both
// gated on the same condition (spec.md §4.6: "a 64-bit select is two
// parallel selects on the low and high halves").
func lowerSelect(ctx *CompileContext, is64 bool, cond, a, b, dst Operand) {
	asm := ctx.Asm

	asm.Op2u(lir.Or, operandToArg(cond), lir.ImmArg(0))

	if !is64 {
		asm.Select(lir.NotZero, operandToArg(dst), operandToArg(a), operandToArg(b))
		return
	}

	ap := operandToArgPair(a, ctx.BigEndian)
	bp := operandToArgPair(b, ctx.BigEndian)
	dp := operandToArgPair(dst, ctx.BigEndian)

	asm.Select(lir.NotZero, dp.Lo, ap.Lo, bp.Lo)
	asm.Select(lir.NotZero, dp.Hi, ap.Hi, bp.Hi)
}
