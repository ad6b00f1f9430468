package jit

import "github.com/matetokodi/walrus/internal/lir"

// lowerMemorySize implements memory.size (spec.md §4.10): the page
// count is the byte size right-shifted by 16 (log2 of PageSize).
func lowerMemorySize(ctx *CompileContext, dst Operand) {
	asm := ctx.Asm
	mem := ctx.Memory
	asm.ICall(func(m *lir.Machine) {
		m.Regs[lir.R0] = uint64(mem.SizeInPageSize())
	})
	asm.Op1(lir.Mov, operandToArg(dst), lir.RegArg(lir.R0))
}

// lowerMemoryGrow implements memory.grow: call Memory.Grow, writing the
// previous page count (or -1 on failure) to dst.
func lowerMemoryGrow(ctx *CompileContext, deltaPages, dst Operand) {
	asm := ctx.Asm
	mem := ctx.Memory
	asm.Op1(lir.Mov, lir.RegArg(lir.R0), operandToArg(deltaPages))
	asm.ICall(func(m *lir.Machine) {
		old := mem.Grow(uint32(m.Regs[lir.R0]))
		m.Regs[lir.R0] = uint64(uint32(old))
		m.SetLinearMemory(mem.Buffer)
	})
	asm.Op1(lir.Mov, operandToArg(dst), lir.RegArg(lir.R0))
}

// lowerMemoryInit implements memory.init (spec.md §4.10): copy len bytes
// from the segment at src into the instance's memory at dst, trapping
// to the shared memory trap label on any runtime error.
func lowerMemoryInit(ctx *CompileContext, payload MemoryInit, dst, src, length Operand) {
	asm := ctx.Asm
	exec := ctx.Exec
	segIndex := payload.SegmentIndex

	asm.Op1(lir.Mov, lir.RegArg(lir.R0), operandToArg(dst))
	asm.Op1(lir.Mov, lir.RegArg(lir.R1), operandToArg(src))
	asm.Op1(lir.Mov, lir.RegArg(lir.R2), operandToArg(length))
	asm.ICall(func(m *lir.Machine) {
		code := initMemory(exec.Memory0, exec.Instance, segIndex, uint32(m.Regs[lir.R0]), uint32(m.Regs[lir.R1]), uint32(m.Regs[lir.R2]))
		m.Regs[lir.R2] = uint64(code)
	})
	asm.Op2u(lir.Sub, lir.RegArg(lir.R2), lir.ImmArg(uint32(NoError)))
	ctx.JumpToMemoryTrap(lir.NotEqual)
}

// lowerMemoryCopy implements memory.copy.
func lowerMemoryCopy(ctx *CompileContext, dst, src, length Operand) {
	asm := ctx.Asm
	exec := ctx.Exec

	asm.Op1(lir.Mov, lir.RegArg(lir.R0), operandToArg(dst))
	asm.Op1(lir.Mov, lir.RegArg(lir.R1), operandToArg(src))
	asm.Op1(lir.Mov, lir.RegArg(lir.R2), operandToArg(length))
	asm.ICall(func(m *lir.Machine) {
		code := copyMemory(exec.Memory0, uint32(m.Regs[lir.R0]), uint32(m.Regs[lir.R1]), uint32(m.Regs[lir.R2]))
		m.Regs[lir.R2] = uint64(code)
	})
	asm.Op2u(lir.Sub, lir.RegArg(lir.R2), lir.ImmArg(uint32(NoError)))
	ctx.JumpToMemoryTrap(lir.NotEqual)
}

// lowerMemoryFill implements memory.fill.
func lowerMemoryFill(ctx *CompileContext, dst, value, length Operand) {
	asm := ctx.Asm
	exec := ctx.Exec

	asm.Op1(lir.Mov, lir.RegArg(lir.R0), operandToArg(dst))
	asm.Op1(lir.Mov, lir.RegArg(lir.R1), operandToArg(value))
	asm.Op1(lir.Mov, lir.RegArg(lir.R2), operandToArg(length))
	asm.ICall(func(m *lir.Machine) {
		code := fillMemory(exec.Memory0, uint32(m.Regs[lir.R0]), byte(m.Regs[lir.R1]), uint32(m.Regs[lir.R2]))
		m.Regs[lir.R2] = uint64(code)
	})
	asm.Op2u(lir.Sub, lir.RegArg(lir.R2), lir.ImmArg(uint32(NoError)))
	ctx.JumpToMemoryTrap(lir.NotEqual)
}

// lowerDataDrop implements data.drop.
func lowerDataDrop(ctx *CompileContext, payload DataDrop) {
	asm := ctx.Asm
	exec := ctx.Exec
	segIndex := payload.SegmentIndex
	asm.ICall(func(m *lir.Machine) {
		_ = dropData(exec.Instance, segIndex)
	})
}

// initMemory copies length bytes from data segment segIndex (at srcOff)
// into memory0 at dstOff, bounds-checking both ranges and never
// panicking across the JIT ABI boundary (spec.md §4.10).
func initMemory(memory0 *Memory, inst *Instance, segIndex uint32, dstOff, srcOff, length uint32) ErrorCode {
	seg, err := inst.segment(segIndex)
	if err != nil || seg.Dropped {
		return OutOfBoundsMemAccessError
	}
	if uint64(srcOff)+uint64(length) > uint64(len(seg.Bytes)) {
		return OutOfBoundsMemAccessError
	}
	if uint64(dstOff)+uint64(length) > uint64(memory0.SizeInByte) {
		return OutOfBoundsMemAccessError
	}
	copy(memory0.Buffer[dstOff:dstOff+length], seg.Bytes[srcOff:srcOff+length])
	return NoError
}

// copyMemory copies length bytes within memory0, correctly handling
// overlap (spec.md §4.10).
func copyMemory(memory0 *Memory, dstOff, srcOff, length uint32) ErrorCode {
	if uint64(srcOff)+uint64(length) > uint64(memory0.SizeInByte) ||
		uint64(dstOff)+uint64(length) > uint64(memory0.SizeInByte) {
		return OutOfBoundsMemAccessError
	}
	copy(memory0.Buffer[dstOff:dstOff+length], memory0.Buffer[srcOff:srcOff+length])
	return NoError
}

// fillMemory fills length bytes of memory0 at dstOff with value.
func fillMemory(memory0 *Memory, dstOff uint32, value byte, length uint32) ErrorCode {
	if uint64(dstOff)+uint64(length) > uint64(memory0.SizeInByte) {
		return OutOfBoundsMemAccessError
	}
	region := memory0.Buffer[dstOff : dstOff+length]
	for i := range region {
		region[i] = value
	}
	return NoError
}

// dropData marks segIndex as dropped, freeing the runtime to discard its
// backing bytes.
func dropData(inst *Instance, segIndex uint32) ErrorCode {
	seg, err := inst.segment(segIndex)
	if err != nil {
		return OutOfBoundsMemAccessError
	}
	seg.Dropped = true
	seg.Bytes = nil
	return NoError
}
