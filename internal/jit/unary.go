package jit

import (
	"math/bits"

	"github.com/matetokodi/walrus/internal/lir"
)

// extendOp maps an 8/16/32-bit sign-extend opcode to its narrowing LIR
// move (spec.md §4.2's unary family).
var extendOp = map[Opcode]lir.Op{
	OpExtend8S:  lir.MovS8,
	OpExtend16S: lir.MovS16,
	OpExtend32S: lir.MovS32,
}

// lowerUnary32 implements the 32-bit unary integer ops (clz, ctz,
// extend8_s/16_s/32_s). popcnt has no LIR opcode (spec.md §6 lists only
// CLZ/CTZ) and goes through a small ICall helper, mirroring
// lowerPopcnt64's 64-bit version.
func lowerUnary32(ctx *CompileContext, op Opcode, src, dst Operand) bool {
	asm := ctx.Asm
	switch op {
	case OpClz:
		asm.Op1(lir.Clz, operandToArg(dst), operandToArg(src))
	case OpCtz:
		asm.Op1(lir.Ctz, operandToArg(dst), operandToArg(src))
	case OpPopcnt:
		asm.Op1(lir.Mov, lir.RegArg(lir.R0), operandToArg(src))
		asm.ICall(func(m *lir.Machine) {
			m.Regs[lir.R0] = uint64(bits.OnesCount32(uint32(m.Regs[lir.R0])))
		})
		asm.Op1(lir.Mov, operandToArg(dst), lir.RegArg(lir.R0))
	case OpExtend8S, OpExtend16S, OpExtend32S:
		asm.Op1(extendOp[op], lir.RegArg(lir.R0), operandToArg(src))
		asm.Op1(lir.Mov, operandToArg(dst), lir.RegArg(lir.R0))
	default:
		return false
	}
	return true
}
