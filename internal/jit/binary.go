package jit

import "github.com/matetokodi/walrus/internal/lir"

// binaryOp maps the 32-bit integer binary opcodes (spec.md §4.2) to
// their LIR op. Div/rem are handled by the Div/Rem Lowerer (divrem.go).
var binaryOp = map[Opcode]lir.Op{
	OpAdd:  lir.Add,
	OpSub:  lir.Sub,
	OpMul:  lir.Mul,
	OpAnd:  lir.And,
	OpOr:   lir.Or,
	OpXor:  lir.Xor,
	OpShl:  lir.Shl,
	OpShrS: lir.Ashr,
	OpShrU: lir.Lshr,
	OpRotl: lir.Rotl,
	OpRotr: lir.Rotr,
}

// lowerBinary32 emits a single op2(dst, srcA, srcB) for the given
// opcode, reading its two source operands through the Operand Shuttle
// (spec.md §4.2).
func lowerBinary32(asm lir.Assembler, op Opcode, a, b Operand, dst Operand) bool {
	lirOp, ok := binaryOp[op]
	if !ok {
		return false
	}
	asm.Op2(lirOp, operandToArg(dst), operandToArg(a), operandToArg(b))
	return true
}
