package jit

import "github.com/matetokodi/walrus/internal/lir"

const int32Min = uint32(0x80000000)

// lowerDivRem32 implements the 32-bit Div/Rem Lowerer (spec.md §4.3):
// immediate-divisor fast paths, and for the general path a deferred
// slow-case for signed ops or an inline zero check for unsigned ops.
func lowerDivRem32(ctx *CompileContext, op Opcode, a, b Operand, dst Operand) {
	asm := ctx.Asm
	signed := op == OpDivS || op == OpRemS
	isDiv := op == OpDivS || op == OpDivU

	if b.IsImmediate {
		lowerDivRem32Imm(ctx, op, signed, isDiv, a, b, dst)
		return
	}

	asm.Op1(lir.Mov, lir.RegArg(lir.R0), operandToArg(a))
	asm.Op1(lir.Mov, lir.RegArg(lir.R1), operandToArg(b))

	if signed {
		// slow-case test: divisor+1 <=u 1, i.e. divisor in {-1, 0}.
		asm.Op2(lir.Add, lir.RegArg(lir.R3), lir.RegArg(lir.R1), lir.ImmArg(1))
		slowJ := asm.Cmp(lir.LessEqual, lir.RegArg(lir.R3), lir.ImmArg(1))

		emitHardwareDivide(asm, true)
		storeQuotientOrRemainder(asm, isDiv, dst)
		resume := asm.EmitLabel()

		ctx.AddSlowCase(func() {
			slowLabel := asm.EmitLabel()
			asm.SetLabel(slowJ, slowLabel)

			zeroJ := asm.Cmp(lir.Equal, lir.RegArg(lir.R1), lir.ImmArg(0))

			// divisor == -1 path.
			if op == OpRemS {
				asm.Op1(lir.Mov, operandToArg(dst), lir.ImmArg(0))
			} else {
				overflowJ := asm.Cmp(lir.Equal, lir.RegArg(lir.R0), lir.ImmArg(int32Min))
				asm.Op1(lir.Neg, operandToArg(dst), lir.RegArg(lir.R0))
				skipOverflow := asm.JumpC(lir.Always)

				overflowLabel := asm.EmitLabel()
				asm.SetLabel(overflowJ, overflowLabel)
				asm.Op1(lir.Mov, lir.RegArg(lir.R2), lir.ImmArg(uint32(IntegerOverflowError)))
				ctx.JumpToTrap(lir.Always)

				afterOverflow := asm.EmitLabel()
				asm.SetLabel(skipOverflow, afterOverflow)
			}
			skipZero := asm.JumpC(lir.Always)

			zeroLabel := asm.EmitLabel()
			asm.SetLabel(zeroJ, zeroLabel)
			asm.Op1(lir.Mov, lir.RegArg(lir.R2), lir.ImmArg(uint32(DivideByZeroError)))
			ctx.JumpToTrap(lir.Always)

			afterZero := asm.EmitLabel()
			asm.SetLabel(skipZero, afterZero)

			back := asm.JumpC(lir.Always)
			asm.SetLabel(back, resume)
		})
		return
	}

	// Unsigned: inline zero check before the divide.
	zeroJ := asm.Cmp(lir.Equal, lir.RegArg(lir.R1), lir.ImmArg(0))
	emitHardwareDivide(asm, false)
	storeQuotientOrRemainder(asm, isDiv, dst)
	done := asm.JumpC(lir.Always)

	zeroLabel := asm.EmitLabel()
	asm.SetLabel(zeroJ, zeroLabel)
	asm.Op1(lir.Mov, lir.RegArg(lir.R2), lir.ImmArg(uint32(DivideByZeroError)))
	ctx.JumpToTrap(lir.Always)

	after := asm.EmitLabel()
	asm.SetLabel(done, after)
}

func lowerDivRem32Imm(ctx *CompileContext, op Opcode, signed, isDiv bool, a, b Operand, dst Operand) {
	asm := ctx.Asm
	divisor := uint32(b.ImmValue)

	if divisor == 0 {
		asm.Op1(lir.Mov, lir.RegArg(lir.R2), lir.ImmArg(uint32(DivideByZeroError)))
		ctx.JumpToTrap(lir.Always)
		return
	}

	if signed && divisor == 0xFFFFFFFF { // -1
		if op == OpRemS {
			asm.Op1(lir.Mov, operandToArg(dst), lir.ImmArg(0))
			return
		}
		// OpDivS: compare dividend against INT_MIN.
		lhs := operandToArg(a)
		overflowJ := asm.Cmp(lir.Equal, lhs, lir.ImmArg(int32Min))

		asm.Op1(lir.Mov, lir.RegArg(lir.R0), lhs)
		asm.Op1(lir.Mov, lir.RegArg(lir.R1), lir.ImmArg(divisor))
		asm.Op0(lir.DivS)
		asm.Op1(lir.Mov, operandToArg(dst), lir.RegArg(lir.R0))
		skip := asm.JumpC(lir.Always)

		overflowLabel := asm.EmitLabel()
		asm.SetLabel(overflowJ, overflowLabel)
		asm.Op1(lir.Mov, lir.RegArg(lir.R2), lir.ImmArg(uint32(IntegerOverflowError)))
		ctx.JumpToTrap(lir.Always)

		after := asm.EmitLabel()
		asm.SetLabel(skip, after)
		return
	}

	asm.Op1(lir.Mov, lir.RegArg(lir.R0), operandToArg(a))
	asm.Op1(lir.Mov, lir.RegArg(lir.R1), lir.ImmArg(divisor))
	emitHardwareDivide(asm, signed)
	storeQuotientOrRemainder(asm, isDiv, dst)
}

func emitHardwareDivide(asm lir.Assembler, signed bool) {
	if signed {
		asm.Op0(lir.DivS)
	} else {
		asm.Op0(lir.DivU)
	}
}

func storeQuotientOrRemainder(asm lir.Assembler, isDiv bool, dst Operand) {
	if isDiv {
		asm.Op1(lir.Mov, operandToArg(dst), lir.RegArg(lir.R0))
	} else {
		asm.Op1(lir.Mov, operandToArg(dst), lir.RegArg(lir.R1))
	}
}
