package jit

import "github.com/matetokodi/walrus/internal/lir"

// compareCond maps a compare opcode to the CondCode that tests its
// result, for every opcode except OpEqz (tested separately: it has one
// operand, not two).
var compareCond = map[Opcode]lir.CondCode{
	OpEq:  lir.Equal,
	OpNe:  lir.NotEqual,
	OpLtS: lir.SigLess,
	OpLtU: lir.Less,
	OpGtS: lir.SigGreater,
	OpGtU: lir.Greater,
	OpLeS: lir.SigLessEqual,
	OpLeU: lir.LessEqual,
	OpGeS: lir.SigGreaterEqual,
	OpGeU: lir.GreaterEqual,
}

// invert is the condition a JumpIfFalse fusion tests: the compare's own
// cond negated, since the branch should be taken when the compare is
// false (spec.md §4.5).
var invert = map[lir.CondCode]lir.CondCode{
	lir.Equal:           lir.NotEqual,
	lir.NotEqual:        lir.Equal,
	lir.Less:            lir.GreaterEqual,
	lir.LessEqual:       lir.Greater,
	lir.Greater:         lir.LessEqual,
	lir.GreaterEqual:    lir.Less,
	lir.SigLess:         lir.SigGreaterEqual,
	lir.SigLessEqual:    lir.SigGreater,
	lir.SigGreater:      lir.SigLessEqual,
	lir.SigGreaterEqual: lir.SigLess,
	lir.Zero:            lir.NotZero,
	lir.NotZero:         lir.Zero,
}

// lowerCompare implements the Compare Lowerer with Branch/Select Fusion
// (spec.md §4.5). It emits the flag-setting compare (and, for 64-bit
// operands, the two-step hi/lo decomposition), then inspects next — the
// instruction immediately following the compare in the program — to
// decide how to consume the resulting condition:
//
//   - next is OpJumpIfTrue/OpJumpIfFalse whose condition operand is this
//     compare's destination slot: fuse, emitting only the conditional jump (no materialized
//     boolean ever exists).
//   - next is OpSelect whose cond operand is this compare: fuse, emitting
//     only Assembler.Select.
//   - otherwise: materialize the boolean into dst via OpFlags.
//
// fuseJump lets the driver supply the already-resolved Label and whether
// the fused jump is a JumpIfFalse (so the condition must be inverted)
// when fusion applies; fuseSelect lets it supply the select's true/false
// value args when fusing with OpSelect. Both are nil when no fusion is
// possible and lowerCompare must materialize dst itself.
func lowerCompare(ctx *CompileContext, op Opcode, is64 bool, a, b, dst Operand, fuseJump *fuseJump, fuseSelect *fuseSelect) {
	asm := ctx.Asm

	var cond lir.CondCode
	if is64 {
		cond = lowerCompare64(ctx, op, a, b)
	} else {
		cond = lowerCompare32(ctx, op, a, b)
	}

	switch {
	case fuseJump != nil:
		c := cond
		if fuseJump.invertForFalse {
			c = invert[c]
		}
		j := asm.JumpC(c)
		asm.SetLabel(j, fuseJump.target)
	case fuseSelect != nil:
		asm.Select(cond, operandToArg(dst), fuseSelect.onTrue, fuseSelect.onFalse)
	default:
		asm.OpFlags(operandToArg(dst), cond)
	}
}

// fuseJump carries the information the driver already has at the point
// it peeks the OpJumpIfTrue/OpJumpIfFalse following a compare: the
// already-resolved branch target, and whether the consumer is
// JumpIfFalse (requiring the condition to be inverted).
type fuseJump struct {
	target         lir.Label
	invertForFalse bool
}

// fuseSelect carries the two value args of a fused OpSelect.
type fuseSelect struct {
	onTrue, onFalse lir.Arg
}

// lowerCompare32 emits the flag-setting compare for a 32-bit operand
// pair and returns the CondCode that tests it. Eqz is a single-operand
// zero test, implemented as OR(a, 0) so the Zero condition reads the
// result (mirrors the 64-bit eqz decomposition below, which ORs the two
// halves together).
func lowerCompare32(ctx *CompileContext, op Opcode, a, b Operand) lir.CondCode {
	asm := ctx.Asm
	if op == OpEqz {
		asm.Op2u(lir.Or, operandToArg(a), lir.ImmArg(0))
		return lir.Zero
	}
	asm.Op2u(lir.Sub, operandToArg(a), operandToArg(b))
	return compareCond[op]
}

// unsignedOf returns the unsigned counterpart of a signed ordering cond,
// used for the low-half comparison of a 64-bit ordering compare: per
// spec.md §4.5, once the high halves are known equal the low halves are
// always compared unsigned, regardless of the operation's signedness.
var unsignedOf = map[lir.CondCode]lir.CondCode{
	lir.SigLess:         lir.Less,
	lir.SigLessEqual:    lir.LessEqual,
	lir.SigGreater:      lir.Greater,
	lir.SigGreaterEqual: lir.GreaterEqual,
	lir.Less:            lir.Less,
	lir.LessEqual:       lir.LessEqual,
	lir.Greater:         lir.Greater,
	lir.GreaterEqual:    lir.GreaterEqual,
}

// lowerCompare64 implements the 64-bit decomposition of spec.md §4.5:
//
//   - eqz: OR the two halves together; Z reflects whether both are zero.
//   - eq/ne: compare high halves; if unequal that's final (NotEqual/Equal
//     read straight off the high-half flags); otherwise compare low
//     halves, whose eq/ne flags give the final answer directly — no
//     reconciliation needed, since "equal" is the same test at both
//     widths.
//   - ordering (lt/le/gt/ge, signed or unsigned): compare high halves
//     with the operation's own signedness; if unequal, that comparison
//     is final. If equal, compare low halves unsigned (spec.md §4.5) —
//     a different CondCode than the high-half compare used, so the two
//     paths cannot simply share one flags read the way eq/ne's can. Each
//     path instead materializes its own boolean into R6 via OpFlags, and
//     the function returns NotZero as the uniform cond the caller tests
//     (OpFlags/jump/select all key off whichever path actually ran).
func lowerCompare64(ctx *CompileContext, op Opcode, a, b Operand) lir.CondCode {
	asm := ctx.Asm
	ap := operandToArgPair(a, ctx.BigEndian)
	bp := operandToArgPair(b, ctx.BigEndian)

	if op == OpEqz {
		asm.Op2(lir.Or, lir.RegArg(lir.R6), ap.Lo, ap.Hi)
		return lir.Zero
	}

	if op == OpEq || op == OpNe {
		asm.Op2u(lir.Sub, ap.Hi, bp.Hi)
		hiDone := asm.JumpC(lir.NotEqual)
		asm.Op2u(lir.Sub, ap.Lo, bp.Lo)
		doneLabel := asm.EmitLabel()
		asm.SetLabel(hiDone, doneLabel)
		return compareCond[op]
	}

	hiCond := compareCond[op]
	loCond := unsignedOf[hiCond]

	asm.Op2u(lir.Sub, ap.Hi, bp.Hi)
	hiNotEqual := asm.JumpC(lir.NotEqual)

	// High halves equal: the final answer is the unsigned low-half
	// compare.
	asm.Op2u(lir.Sub, ap.Lo, bp.Lo)
	asm.OpFlags(lir.RegArg(lir.R6), loCond)
	toEnd := asm.JumpC(lir.Always)

	// High halves differ: the flags from the Sub above are still
	// current (JumpC only reads flags, it never clears them), so the
	// high-half compare can be read directly with the op's own
	// signedness.
	hiLabel := asm.EmitLabel()
	asm.SetLabel(hiNotEqual, hiLabel)
	asm.OpFlags(lir.RegArg(lir.R6), hiCond)

	endLabel := asm.EmitLabel()
	asm.SetLabel(toEnd, endLabel)

	asm.Op2u(lir.Or, lir.RegArg(lir.R6), lir.ImmArg(0))
	return lir.NotZero
}
