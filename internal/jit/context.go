package jit

import (
	"sync"

	"github.com/matetokodi/walrus/internal/lir"
)

// PageSize is the size in bytes of one WebAssembly linear-memory page.
const PageSize = 65536

// WordLowOffset and WordHighOffset are the frame-slot byte offsets of
// the low/high halves of a 64-bit value, endian-aware per spec.md §6.
func WordLowOffset(bigEndian bool) int32 {
	if bigEndian {
		return 4
	}
	return 0
}

func WordHighOffset(bigEndian bool) int32 {
	if bigEndian {
		return 0
	}
	return 4
}

// Memory is the runtime-owned linear memory descriptor (spec.md §3).
type Memory struct {
	mu         sync.Mutex
	Buffer     []byte
	SizeInByte uint32
	MaxInByte  uint32
}

// NewMemory allocates a Memory with the given initial/maximum page
// counts.
func NewMemory(initialPages, maxPages uint32) *Memory {
	return &Memory{
		Buffer:     make([]byte, initialPages*PageSize),
		SizeInByte: initialPages * PageSize,
		MaxInByte:  maxPages * PageSize,
	}
}

// SizeInPageSize returns the current size in whole pages.
func (m *Memory) SizeInPageSize() uint32 {
	return m.SizeInByte >> 16
}

// Grow attempts to grow the memory by deltaPages, returning the previous
// page count, or -1 if growth would exceed MaxInByte.
func (m *Memory) Grow(deltaPages uint32) int32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.SizeInPageSize()
	newSize := m.SizeInByte + deltaPages*PageSize
	if newSize > m.MaxInByte {
		return -1
	}
	grown := make([]byte, newSize)
	copy(grown, m.Buffer)
	m.Buffer = grown
	m.SizeInByte = newSize
	return int32(old)
}

// Lock/Unlock expose Memory's mutex to the atomic lowerer's
// concurrency-sensitive helpers (spec.md §4.9, §5) without requiring
// internal/lir to know about Memory.
func (m *Memory) Lock()   { m.mu.Lock() }
func (m *Memory) Unlock() { m.mu.Unlock() }

// DataSegment is the minimal slice of module/instance state (spec.md §1
// places the lifecycle proper out of scope) this core's memory
// intrinsics need: the raw bytes of a passive data segment, and whether
// it has been dropped.
type DataSegment struct {
	Bytes   []byte
	Dropped bool
}

// Instance stands in for the module/instance lifecycle collaborator,
// trimmed to exactly the data-segment resolution spec.md §3 names.
type Instance struct {
	DataSegments []*DataSegment
}

func (i *Instance) segment(index uint32) (*DataSegment, error) {
	if i == nil || int(index) >= len(i.DataSegments) {
		return nil, ErrUnknownDataSegment
	}
	return i.DataSegments[index], nil
}

// ExecutionContext is the runtime-owned record JIT-emitted code reads
// and writes through tmp1/tmp2 and the error field (spec.md §3).
type ExecutionContext struct {
	Memory0  *Memory
	Instance *Instance
	State    int
	Tmp1     uint64
	Tmp2     uint64
	Error    ErrorCode
}

// CompileContext is per-compilation state: the emitter handle, the
// shared trap labels, a slow-case list, the runtime memory descriptor,
// and the ExecutionContext (Exec), whose Tmp1/Tmp2 serve as helper-ABI
// spill slots (spec.md §3, §9 — passed explicitly rather than located
// from the emitter handle).
type CompileContext struct {
	Asm *lir.Machine

	TrapLabel       lir.Label
	MemoryTrapLabel lir.Label

	slowCases []func()

	Memory *Memory
	Exec   *ExecutionContext

	BigEndian bool
}

// NewCompileContext constructs a CompileContext and emits the shared
// trap trampoline at the very start of asm's program: an unconditional
// jump over the two trap tails, so every TrapLabel/MemoryTrapLabel used
// during the rest of compilation is already a resolved Label (spec.md
// §9: trap labels are per-compilation, shared by all lowerers).
func NewCompileContext(asm *lir.Machine, mem *Memory, exec *ExecutionContext, bigEndian bool) *CompileContext {
	ctx := &CompileContext{Asm: asm, Memory: mem, Exec: exec, BigEndian: bigEndian}

	skip := asm.JumpC(lir.Always)

	ctx.TrapLabel = asm.EmitLabel()
	asm.ICall(func(m *lir.Machine) {
		code := ErrorCode(m.Regs[lir.R2])
		exec.Error = code
		m.Halted = true
		m.ErrorCode = code
	})

	ctx.MemoryTrapLabel = asm.EmitLabel()
	asm.ICall(func(m *lir.Machine) {
		exec.Error = OutOfBoundsMemAccessError
		m.Halted = true
		m.ErrorCode = OutOfBoundsMemAccessError
	})

	entry := asm.EmitLabel()
	asm.SetLabel(skip, entry)

	return ctx
}

// JumpToTrap emits cond-conditional jump to the shared trap label.
func (c *CompileContext) JumpToTrap(cond lir.CondCode) {
	j := c.Asm.JumpC(cond)
	c.Asm.SetLabel(j, c.TrapLabel)
}

// JumpToMemoryTrap emits a cond-conditional jump to the shared
// out-of-bounds trap label.
func (c *CompileContext) JumpToMemoryTrap(cond lir.CondCode) {
	j := c.Asm.JumpC(cond)
	c.Asm.SetLabel(j, c.MemoryTrapLabel)
}

// AddSlowCase registers a deferred code fragment emitted after the
// function body (spec.md Glossary: "Slow case"). The driver calls
// FlushSlowCases once the main body has been lowered.
func (c *CompileContext) AddSlowCase(fn func()) {
	c.slowCases = append(c.slowCases, fn)
}

// FlushSlowCases emits every registered slow case, in order, after the
// main body.
func (c *CompileContext) FlushSlowCases() {
	cases := c.slowCases
	c.slowCases = nil
	for _, fn := range cases {
		fn()
	}
}
