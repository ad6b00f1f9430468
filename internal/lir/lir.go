// Package lir implements the portable low-level IR emitter used as the
// back end for the integer and memory code-generation core: an
// architecture-agnostic vocabulary of registers, opcodes and addressing
// modes, plus an Assembler contract a lowerer emits against.
//
// The concrete Machine in this package both emits and executes a linear
// program over a register file and byte-addressable memory, standing in
// for a real amd64/arm64 encoder the way wazero's internal/asm keeps its
// AssemblerBase abstract while per-arch files provide the encoder.
package lir

import "fmt"

// Register names the small fixed set of scratch registers the core
// shuttles operands through. R0-R3 are freely clobbered by any lowerer;
// R4-R7 are available to lowerers that need more live values at once
// (e.g. the 64-bit binary and shift lowerers).
type Register int

const (
	NoRegister Register = iota
	R0
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	numRegisters
)

func (r Register) String() string {
	if r == NoRegister {
		return "<none>"
	}
	return fmt.Sprintf("R%d", int(r-R0))
}

// FReg names a float-only scratch register. This core does not lower
// floating point (spec non-goal); FReg exists only so Arg/Pair's shape
// matches the real emitter's vocabulary (MOV_F32/MOV_F64 opcodes appear
// in the opcode list below for ABI completeness, unused by any lowerer).
type FReg int

const (
	NoFReg FReg = iota
	F0
	F1
)

// CondCode is a flag-test condition, set by Cmp/Op2u and consumed by
// JumpC, Select and OpFlags.
type CondCode int

const (
	Always CondCode = iota
	Equal
	NotEqual
	Less           // unsigned <
	LessEqual      // unsigned <=
	Greater        // unsigned >
	GreaterEqual   // unsigned >=
	SigLess        // signed <
	SigLessEqual   // signed <=
	SigGreater     // signed >
	SigGreaterEqual // signed >=
	Zero
	NotZero
	Carry
	NotCarry
	Overflow
	NotOverflow
	AtomicNotStored
)

// Op is an LIR opcode. Names follow spec.md §6's vocabulary.
type Op int

const (
	OpNone Op = iota
	Mov
	MovS8
	MovU8
	MovS16
	MovU16
	MovS32
	MovU32
	MovF32
	MovF64
	Add
	AddC // add-with-carry, consumes the carry flag from a preceding SET_CARRY op
	Sub
	SubC
	And
	Or
	Xor
	Mul
	LMulUW // unsigned widening multiply: (hi,lo) = a*b
	Shl
	Lshr // logical shift right
	Ashr // arithmetic shift right
	Mshl // masked shift left (count implicitly masked to register width)
	Rotl
	Rotr
	Clz
	Ctz
	UnpackLo // dst = low 32 bits of a packed 64-bit value held in a register
	UnpackHi // dst = high 32 bits of a packed 64-bit value held in a register
	Pack     // dst = a | (b << 32), packing two 32-bit halves into one register
	DivS
	DivU
	RemS
	RemU
	Not
	Neg
)

// ArgKind discriminates an Arg's addressing mode.
type ArgKind int

const (
	ArgImm ArgKind = iota
	ArgReg
	ArgMem
)

// MemSpace discriminates which byte-addressable region an ArgMem refers
// to. The real emitter has one flat address space (a register holds a
// raw pointer); Machine keeps the WebAssembly call frame and the
// WebAssembly linear memory as two separate slices instead of unsafely
// aliasing one Go heap, which lets both be bounds-checked by the Go
// runtime as a second line of defense.
type MemSpace int

const (
	SpaceFrame MemSpace = iota
	SpaceLinear
)

// Arg is the {tag, argw} LIR argument descriptor from spec.md §3.
type Arg struct {
	Kind ArgKind
	Imm  uint32
	Reg  Register
	Space   MemSpace
	Base    Register // ArgMem only; NoRegister if the address is disp-only
	Disp    int32    // ArgMem only; for SpaceFrame this is the frame-slot byte offset
}

// ImmArg builds an immediate Arg.
func ImmArg(v uint32) Arg { return Arg{Kind: ArgImm, Imm: v} }

// RegArg builds a register Arg.
func RegArg(r Register) Arg { return Arg{Kind: ArgReg, Reg: r} }

// FrameArg builds a frame-slot Arg at the given byte offset.
func FrameArg(disp int32) Arg { return Arg{Kind: ArgMem, Space: SpaceFrame, Base: NoRegister, Disp: disp} }

// LinearArg builds a linear-memory Arg: disp, optionally plus the value
// of an index register added in at execution time.
func LinearArg(base Register, disp int32) Arg {
	return Arg{Kind: ArgMem, Space: SpaceLinear, Base: base, Disp: disp}
}

// Pair is the low/high-half descriptor for a 64-bit value split across
// two 32-bit args, per spec.md §3: arg1 is the low half, arg2 is the
// high half.
type Pair struct {
	Lo Arg
	Hi Arg
}

// ImmPair builds a pair descriptor for a 64-bit immediate: arg1w is the
// low 32 bits, arg2w is the high 32 bits, independent of host endianness
// (spec.md §3 invariant).
func ImmPair(v uint64) Pair {
	return Pair{Lo: ImmArg(uint32(v)), Hi: ImmArg(uint32(v >> 32))}
}

// Label marks a position in a Machine's emitted program. It is only ever
// produced by EmitLabel, which binds it to the current position
// immediately, so it is always resolved at the point a caller receives
// one.
type Label int

// Jump is a handle to a previously-emitted conditional or unconditional
// jump record whose target is bound later via SetLabel.
type Jump struct {
	idx int
}

// Flags is the condition-flag state left by the most recent Cmp, Op2u,
// Op2 (every Op2 sets it from its result) or AtomicStore.
type Flags struct {
	a, b       uint64
	carry      bool
	overflow   bool
	atomicFail bool
}

// Satisfies reports whether cond holds given the flags as they currently
// stand.
func (f Flags) Satisfies(cond CondCode) bool {
	switch cond {
	case Always:
		return true
	case Equal:
		return f.a == f.b
	case NotEqual:
		return f.a != f.b
	case Less:
		return f.a < f.b
	case LessEqual:
		return f.a <= f.b
	case Greater:
		return f.a > f.b
	case GreaterEqual:
		return f.a >= f.b
	case SigLess:
		return int32(f.a) < int32(f.b)
	case SigLessEqual:
		return int32(f.a) <= int32(f.b)
	case SigGreater:
		return int32(f.a) > int32(f.b)
	case SigGreaterEqual:
		return int32(f.a) >= int32(f.b)
	case Zero:
		return f.a == 0
	case NotZero:
		return f.a != 0
	case Carry:
		return f.carry
	case NotCarry:
		return !f.carry
	case Overflow:
		return f.overflow
	case NotOverflow:
		return !f.overflow
	case AtomicNotStored:
		return f.atomicFail
	default:
		return false
	}
}

// HelperFunc is a runtime helper callable via ICall. Helpers operate
// directly on the Machine's register file and scratch fields, mirroring
// the real ABI where arguments flow through tmp1/tmp2 and R0-R3 (see
// spec.md §4.4, §4.9, §4.10) without needing to model raw pointer
// arguments.
type HelperFunc func(m *Machine)

// Assembler is the portable macro-assembler contract a lowerer emits
// against (spec.md §6).
type Assembler interface {
	Op0(op Op)
	Op1(op Op, dst, src Arg)
	Op2(op Op, dst, a, b Arg)
	Op2u(op Op, a, b Arg)
	Cmp(cond CondCode, a, b Arg) Jump
	JumpC(cond CondCode) Jump
	SetLabel(j Jump, l Label)
	EmitLabel() Label
	ICall(fn HelperFunc)
	ShiftInto(op Op, dst, src, other Register, count Arg)
	Select(cond CondCode, dst, src, other Arg)
	AtomicLoad(size int, dst Register, mem Arg)
	AtomicStore(size int, mem Arg, src Register, outcome CondCode) Jump
	Mem(regPair bool, loadNotStore bool, a, b Arg)
	OpFlags(dst Arg, cond CondCode)
	SetCurrentFlags(f Flags)
}

// Fault reports a trapped ErrorCode from the three-member runtime error
// taxonomy as an error.
type Fault struct {
	Code ErrorCode
}

func (f *Fault) Error() string {
	return fmt.Sprintf("lir: trapped with code %d", f.Code)
}

// ErrorCode is the three-member WebAssembly runtime error taxonomy
// (spec.md §3), duplicated here (rather than imported from internal/jit)
// so lir has no dependency on the higher-level package; internal/jit's
// ErrorCode is defined as an alias of this type.
type ErrorCode int32

const (
	NoError ErrorCode = iota
	DivideByZeroError
	IntegerOverflowError
	OutOfBoundsMemAccessError
)
