package jit

import "github.com/matetokodi/walrus/internal/lir"

// Opcode is the closed set of instruction kinds this core lowers.
// Everything else (floats, SIMD, calls, tables, the module/instance
// lifecycle) belongs to an external collaborator (spec.md §1) and is
// rejected by the driver with ErrUnsupportedOpcode.
type Opcode int

const (
	OpUnknown Opcode = iota

	OpConst32
	OpConst64

	// Integer binary (32-bit and 64-bit forms share an opcode; Is32Bit
	// on Instruction selects the width).
	OpAdd
	OpSub
	OpMul
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShrS
	OpShrU
	OpRotl
	OpRotr
	OpDivS
	OpDivU
	OpRemS
	OpRemU
	OpClz
	OpCtz
	OpPopcnt
	OpExtend8S
	OpExtend16S
	OpExtend32S

	// Compare (always produces an i32 boolean unless fused).
	OpEq
	OpNe
	OpLtS
	OpLtU
	OpGtS
	OpGtU
	OpLeS
	OpLeU
	OpGeS
	OpGeU
	OpEqz

	OpSelect

	// Control, for fusion peeking only — full control flow is out of
	// scope; these two forms are the ones the compare lowerer fuses
	// with.
	OpJumpIfTrue
	OpJumpIfFalse

	// Loads/stores.
	OpLoad
	OpStore

	// Atomics.
	OpAtomicLoad
	OpAtomicStore
	OpAtomicRmw
	OpAtomicCmpxchg

	// Memory intrinsics.
	OpMemorySize
	OpMemoryGrow
	OpMemoryInit
	OpMemoryCopy
	OpMemoryFill
	OpDataDrop
)

// AtomicOp discriminates the ALU operation an atomic.rmw applies.
type AtomicOp int

const (
	AtomicAdd AtomicOp = iota
	AtomicSub
	AtomicAnd
	AtomicOr
	AtomicXor
	AtomicXchg
)

// Operand is either a reference to an immediate-producing instruction or
// a stack-frame slot index, measured in 4-byte units (spec.md §3).
type Operand struct {
	IsImmediate bool
	ImmValue    uint64 // valid when IsImmediate; low 32 bits used for 32-bit operands
	Offset      int32  // frame-slot index (4-byte units), valid when !IsImmediate
}

// Const32 returns an immediate 32-bit operand.
func Const32(v uint32) Operand { return Operand{IsImmediate: true, ImmValue: uint64(v)} }

// Const64 returns an immediate 64-bit operand.
func Const64(v uint64) Operand { return Operand{IsImmediate: true, ImmValue: v} }

// Slot returns a frame-slot operand at the given 4-byte-unit index.
func Slot(offset int32) Operand { return Operand{Offset: offset} }

// MemoryLoad is the payload for OpLoad / OpAtomicLoad.
type MemoryLoad struct {
	Offset     uint32 // static offset
	AccessSize int    // 1, 2, 4 or 8
	SignExtend bool
	Result64   bool // destination is an i64 (may still be a narrow load)
}

// MemoryStore is the payload for OpStore / OpAtomicStore.
type MemoryStore struct {
	Offset     uint32
	AccessSize int
}

// AtomicRmw is the payload for OpAtomicRmw / OpAtomicCmpxchg.
type AtomicRmw struct {
	Offset     uint32
	AccessSize int
	Op         AtomicOp
	Is64       bool
}

// MemoryInit is the payload for OpMemoryInit.
type MemoryInit struct {
	SegmentIndex uint32
}

// MemoryCopy is the payload for OpMemoryCopy (no extra fields needed:
// dst/src/len come from operands).
type MemoryCopy struct{}

// MemoryFill is the payload for OpMemoryFill (dst/value/len from
// operands).
type MemoryFill struct{}

// DataDrop is the payload for OpDataDrop.
type DataDrop struct {
	SegmentIndex uint32
}

// Select is the payload for OpSelect.
type Select struct {
	ValueSize int // 4 or 8
}

// JumpIf is the payload for OpJumpIfTrue / OpJumpIfFalse.
type JumpIf struct {
	ControlOperand int // index in the containing Program of the compare producing the condition, or -1; the driver does not read it (it fuses by matching frame slots)
	Target         lir.Label
}

// Instruction is one decoded WebAssembly-level operation. It is an
// opaque record per spec.md §3; Next is a plain index
// into a containing arena rather than owning pointers (spec.md §9:
// "implementations should use arena allocation with index references,
// not owning pointers, to avoid lifetime cycles").
type Instruction struct {
	Op          Opcode
	Is32Bit     bool
	ParamCount  int
	ResultCount int
	Operands    []Operand
	Dest        Operand

	Payload any

	Next int // index of the next instruction in the containing Program, -1 if none
}

// Program is an arena of Instructions addressed by index, avoiding
// pointer cycles between an instruction and the jump/select that
// references it.
type Program struct {
	Instrs []Instruction
}

func (p *Program) Add(instr Instruction) int {
	instr.Next = -1
	if len(p.Instrs) > 0 {
		p.Instrs[len(p.Instrs)-1].Next = len(p.Instrs)
	}
	p.Instrs = append(p.Instrs, instr)
	return len(p.Instrs) - 1
}
