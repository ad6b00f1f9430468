package jit

import "github.com/matetokodi/walrus/internal/lir"

// maxU32 is UINT32_MAX, the ceiling a 32-bit target's effective address
// arithmetic must not exceed (spec.md §4.7).
const maxU32 = 0xFFFFFFFF

// checkAddress implements the Memory Address Checker (spec.md §4.7): it
// computes and validates the effective address of a `dynOffset +
// staticOffset` memory access of accessSize bytes, trapping to
// ctx.MemoryTrapLabel on overflow or out-of-bounds, and returns the Arg
// the Load/Store Lowerer should address memory through.
//
// Machine's register file is natively 64-bit, so unlike a real 32-bit
// target it never wraps computing dynOffset+staticOffset+accessSize;
// overflow is instead detected by checking whether the sum occupies any
// bit above 31, rather than reading a carry flag out of a 32-bit adder.
func checkAddress(ctx *CompileContext, dynOffset Operand, staticOffset uint32, accessSize int) lir.Arg {
	asm := ctx.Asm

	if dynOffset.IsImmediate {
		total := uint64(uint32(dynOffset.ImmValue)) + uint64(staticOffset) + uint64(accessSize)
		if total > maxU32 {
			ctx.JumpToMemoryTrap(lir.Always)
			return lir.LinearArg(lir.NoRegister, 0)
		}

		asm.ICall(func(m *lir.Machine) {
			m.Regs[lir.R3] = uint64(ctx.Memory.SizeInByte)
		})
		asm.Op2u(lir.Sub, lir.RegArg(lir.R3), lir.ImmArg(uint32(total)))
		ctx.JumpToMemoryTrap(lir.Less)

		return lir.LinearArg(lir.NoRegister, int32(total-uint64(accessSize)))
	}

	// staticOffset and accessSize are both known at lowering time; add
	// them in 64-bit first so a near-UINT32_MAX staticOffset can't wrap
	// the uint32 immediate fed to the runtime add below (the same
	// overflow the immediate-dynOffset branch above checks for).
	base := uint64(staticOffset) + uint64(accessSize)
	if base > maxU32 {
		ctx.JumpToMemoryTrap(lir.Always)
		return lir.LinearArg(lir.NoRegister, 0)
	}

	asm.Op1(lir.Mov, lir.RegArg(lir.R0), operandToArg(dynOffset))
	asm.Op2(lir.Add, lir.RegArg(lir.R0), lir.RegArg(lir.R0), lir.ImmArg(uint32(base)))

	// R0 is a true 64-bit sum of two 32-bit-ish quantities, so it never
	// wraps; it exceeds maxU32 exactly when its top half is non-zero.
	asm.Op1(lir.UnpackHi, lir.RegArg(lir.R1), lir.RegArg(lir.R0))
	asm.Op2u(lir.Or, lir.RegArg(lir.R1), lir.ImmArg(0))
	ctx.JumpToMemoryTrap(lir.NotZero)

	asm.ICall(func(m *lir.Machine) {
		m.Regs[lir.R3] = uint64(ctx.Memory.SizeInByte)
	})
	asm.Op2u(lir.Sub, lir.RegArg(lir.R3), lir.RegArg(lir.R0))
	ctx.JumpToMemoryTrap(lir.Less)

	// The index is moved out of R0 into R7 before returning: R0-R3 are
	// the lowerers' freely-clobbered data registers (spec.md §4.7), and
	// a caller packing a 64-bit store value or issuing an AtomicLoad
	// into R0 must not also be stomping the address this Arg still
	// refers to.
	asm.Op1(lir.Mov, lir.RegArg(lir.R7), lir.RegArg(lir.R0))
	return lir.LinearArg(lir.R7, -int32(accessSize))
}
