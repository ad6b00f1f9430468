package jit

import "github.com/matetokodi/walrus/internal/lir"

// Compiler is the architecture-independent driver (spec.md §2): it
// walks a Program and dispatches each Instruction to the lowerer for
// its opcode family, sharing one CompileContext (and so one set of trap
// labels and one slow-case list) across the whole compilation. Grounded
// on wazero's compiler interface (internal/engine/compiler/compiler.go),
// trimmed to exactly the opcode families this core lowers: no floats,
// no SIMD, no tables, no call/call_indirect, no module-instance wiring.
type Compiler struct {
	ctx *CompileContext
}

// NewCompiler builds a Compiler around a fresh CompileContext (emitting
// the shared trap trampoline immediately, as NewCompileContext does).
func NewCompiler(asm *lir.Machine, mem *Memory, exec *ExecutionContext, bigEndian bool) *Compiler {
	return &Compiler{ctx: NewCompileContext(asm, mem, exec, bigEndian)}
}

// Compile lowers every instruction in prog. The fast-path body is
// emitted in program order; once it's done, an unconditional jump hops
// over the deferred slow cases (spec.md Glossary: "Slow case") so the
// normal exit never falls through into code meant only for div/rem's
// rare divisor-in-{-1,0} branch.
func (c *Compiler) Compile(prog *Program) error {
	i := 0
	for i < len(prog.Instrs) {
		consumed, err := c.compileOne(prog, i)
		if err != nil {
			return err
		}
		i += consumed
	}

	exitJump := c.ctx.Asm.JumpC(lir.Always)
	c.ctx.FlushSlowCases()
	exitLabel := c.ctx.Asm.EmitLabel()
	c.ctx.Asm.SetLabel(exitJump, exitLabel)
	return nil
}

// compileOne lowers the instruction at index i and returns how many
// instructions it consumed: 2 when it fused a compare with the
// JumpIfTrue/JumpIfFalse/Select that immediately follows it (spec.md
// §4.5's fusion rule), 1 otherwise.
func (c *Compiler) compileOne(prog *Program, i int) (int, error) {
	instr := &prog.Instrs[i]
	ctx := c.ctx

	if _, isCompare := compareCond[instr.Op]; isCompare || instr.Op == OpEqz {
		return c.compileCompare(prog, i)
	}

	switch instr.Op {
	case OpConst32, OpConst64:
		// Constants are folded directly into Operand{IsImmediate: true}
		// by whoever builds the Program; there is nothing to lower.
		return 1, nil

	case OpAdd, OpSub, OpMul, OpAnd, OpOr, OpXor, OpShl, OpShrS, OpShrU, OpRotl, OpRotr:
		a, b := instr.Operands[0], instr.Operands[1]
		if instr.Is32Bit {
			if !lowerBinary32(ctx.Asm, instr.Op, a, b, instr.Dest) {
				return 0, ErrUnsupportedOpcode
			}
			return 1, nil
		}
		switch instr.Op {
		case OpMul:
			lowerMul64(ctx, a, b, instr.Dest)
		case OpShl, OpShrS, OpShrU:
			lowerShift64(ctx, instr.Op, b, a, instr.Dest)
		case OpRotl, OpRotr:
			lowerRotate64(ctx, instr.Op == OpRotl, b, a, instr.Dest)
		default:
			if !lowerSimpleBinary64(ctx, instr.Op, a, b, instr.Dest) {
				return 0, ErrUnsupportedOpcode
			}
		}
		return 1, nil

	case OpDivS, OpDivU, OpRemS, OpRemU:
		a, b := instr.Operands[0], instr.Operands[1]
		if instr.Is32Bit {
			lowerDivRem32(ctx, instr.Op, a, b, instr.Dest)
		} else {
			lowerDivRem64(ctx, instr.Op, a, b, instr.Dest)
		}
		return 1, nil

	case OpClz, OpCtz, OpPopcnt:
		src := instr.Operands[0]
		if instr.Is32Bit {
			if !lowerUnary32(ctx, instr.Op, src, instr.Dest) {
				return 0, ErrUnsupportedOpcode
			}
			return 1, nil
		}
		if instr.Op == OpPopcnt {
			lowerPopcnt64(ctx, src, instr.Dest)
		} else {
			lowerCountZeroes64(ctx, instr.Op == OpCtz, src, instr.Dest)
		}
		return 1, nil

	case OpExtend8S, OpExtend16S, OpExtend32S:
		src := instr.Operands[0]
		if instr.Is32Bit {
			if !lowerUnary32(ctx, instr.Op, src, instr.Dest) {
				return 0, ErrUnsupportedOpcode
			}
			return 1, nil
		}
		lowerExtend64(ctx, extendOp[instr.Op], src, instr.Dest)
		return 1, nil

	case OpSelect:
		sel, _ := instr.Payload.(Select)
		cond, a, b := instr.Operands[0], instr.Operands[1], instr.Operands[2]
		lowerSelect(ctx, sel.ValueSize == 8, cond, a, b, instr.Dest)
		return 1, nil

	case OpJumpIfTrue, OpJumpIfFalse:
		return 1, c.compileNakedJumpIf(instr)

	case OpLoad:
		payload, _ := instr.Payload.(MemoryLoad)
		lowerLoad(ctx, payload, instr.Operands[0], instr.Dest)
		return 1, nil

	case OpStore:
		payload, _ := instr.Payload.(MemoryStore)
		lowerStore(ctx, payload, !instr.Is32Bit, instr.Operands[0], instr.Operands[1])
		return 1, nil

	case OpAtomicLoad:
		payload, _ := instr.Payload.(MemoryLoad)
		lowerAtomicLoad(ctx, payload, instr.Operands[0], instr.Dest)
		return 1, nil

	case OpAtomicStore:
		payload, _ := instr.Payload.(MemoryStore)
		lowerAtomicStore(ctx, payload, instr.Operands[1], instr.Operands[0])
		return 1, nil

	case OpAtomicRmw:
		payload, _ := instr.Payload.(AtomicRmw)
		lowerAtomicRmw(ctx, payload, instr.Operands[0], instr.Operands[1], instr.Dest)
		return 1, nil

	case OpAtomicCmpxchg:
		payload, _ := instr.Payload.(AtomicRmw)
		lowerAtomicCmpxchg(ctx, payload, instr.Operands[0], instr.Operands[1], instr.Operands[2], instr.Dest)
		return 1, nil

	case OpMemorySize:
		lowerMemorySize(ctx, instr.Dest)
		return 1, nil

	case OpMemoryGrow:
		lowerMemoryGrow(ctx, instr.Operands[0], instr.Dest)
		return 1, nil

	case OpMemoryInit:
		payload, _ := instr.Payload.(MemoryInit)
		lowerMemoryInit(ctx, payload, instr.Operands[0], instr.Operands[1], instr.Operands[2])
		return 1, nil

	case OpMemoryCopy:
		lowerMemoryCopy(ctx, instr.Operands[0], instr.Operands[1], instr.Operands[2])
		return 1, nil

	case OpMemoryFill:
		lowerMemoryFill(ctx, instr.Operands[0], instr.Operands[1], instr.Operands[2])
		return 1, nil

	case OpDataDrop:
		payload, _ := instr.Payload.(DataDrop)
		lowerDataDrop(ctx, payload)
		return 1, nil
	}

	return 0, ErrUnsupportedOpcode
}

// compileCompare implements the fusion peek of spec.md §4.5: it looks
// at the instruction immediately following the compare (via Next) and,
// if that instruction is a JumpIfTrue/JumpIfFalse/Select whose own
// condition operand is exactly this compare's destination slot, fuses
// the two into one lowerCompare call and reports having consumed both.
func (c *Compiler) compileCompare(prog *Program, i int) (int, error) {
	instr := &prog.Instrs[i]
	ctx := c.ctx
	a := instr.Operands[0]
	var b Operand
	if instr.Op != OpEqz {
		b = instr.Operands[1]
	}

	next := instr.Next
	if next >= 0 && next < len(prog.Instrs) {
		nextInstr := &prog.Instrs[next]

		if (nextInstr.Op == OpJumpIfTrue || nextInstr.Op == OpJumpIfFalse) && len(nextInstr.Operands) > 0 &&
			sameSlot(nextInstr.Operands[0], instr.Dest) {
			payload, _ := nextInstr.Payload.(JumpIf)
			lowerCompare(ctx, instr.Op, !instr.Is32Bit, a, b, instr.Dest, &fuseJump{
				target:         payload.Target,
				invertForFalse: nextInstr.Op == OpJumpIfFalse,
			}, nil)
			return 2, nil
		}

		if nextInstr.Op == OpSelect && len(nextInstr.Operands) == 3 && sameSlot(nextInstr.Operands[0], instr.Dest) {
			lowerCompare(ctx, instr.Op, !instr.Is32Bit, a, b, nextInstr.Dest, nil, &fuseSelect{
				onTrue:  operandToArg(nextInstr.Operands[1]),
				onFalse: operandToArg(nextInstr.Operands[2]),
			})
			return 2, nil
		}
	}

	lowerCompare(ctx, instr.Op, !instr.Is32Bit, a, b, instr.Dest, nil, nil)
	return 1, nil
}

// sameSlot reports whether two non-immediate Operands name the same
// frame slot — the convention this driver uses to recognize that a
// JumpIf/Select's condition operand is exactly a preceding compare's
// result, making fusion possible even though the compare's boolean is
// never actually materialized.
func sameSlot(x, y Operand) bool {
	return !x.IsImmediate && !y.IsImmediate && x.Offset == y.Offset
}

// compileNakedJumpIf lowers a JumpIfTrue/JumpIfFalse whose condition
// did not fuse with a preceding compare: a plain i32 operand is tested
// against zero directly.
func (c *Compiler) compileNakedJumpIf(instr *Instruction) error {
	payload, _ := instr.Payload.(JumpIf)
	asm := c.ctx.Asm
	cond := instr.Operands[0]

	asm.Op2u(lir.Or, operandToArg(cond), lir.ImmArg(0))
	want := lir.NotZero
	if instr.Op == OpJumpIfFalse {
		want = lir.Zero
	}
	j := asm.JumpC(want)
	asm.SetLabel(j, payload.Target)
	return nil
}
