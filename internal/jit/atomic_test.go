package jit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLowerAtomicLoadStore_NativeRoundTrip(t *testing.T) {
	m, mem, ctx := newTestContext(16, 1, false)
	lowerAtomicStore(ctx, MemoryStore{Offset: 40, AccessSize: 4}, Const32(0xCAFEBABE), Const32(0))
	lowerAtomicLoad(ctx, MemoryLoad{Offset: 40, AccessSize: 4}, Const32(0), Slot(0))
	require.NoError(t, m.Run())
	require.Equal(t, uint32(0xCAFEBABE), readSlot32(m, 0))
	require.Equal(t, uint32(0xCAFEBABE), bytesToU32(mem.Buffer[40:44], false))
}

func TestLowerAtomicRmw_NativeAdd(t *testing.T) {
	m, _, ctx := newTestContext(16, 1, false)
	lowerAtomicStore(ctx, MemoryStore{Offset: 40, AccessSize: 4}, Const32(10), Const32(0))
	lowerAtomicRmw(ctx, AtomicRmw{Offset: 40, AccessSize: 4, Op: AtomicAdd}, Const32(0), Const32(5), Slot(0))
	lowerAtomicLoad(ctx, MemoryLoad{Offset: 40, AccessSize: 4}, Const32(0), Slot(2))
	require.NoError(t, m.Run())
	require.Equal(t, uint32(10), readSlot32(m, 0)) // rmw returns the OLD value
	require.Equal(t, uint32(15), readSlot32(m, 2))
}

func TestLowerAtomicRmw_NativeXchg(t *testing.T) {
	m, _, ctx := newTestContext(16, 1, false)
	lowerAtomicStore(ctx, MemoryStore{Offset: 40, AccessSize: 4}, Const32(111), Const32(0))
	lowerAtomicRmw(ctx, AtomicRmw{Offset: 40, AccessSize: 4, Op: AtomicXchg}, Const32(0), Const32(222), Slot(0))
	lowerAtomicLoad(ctx, MemoryLoad{Offset: 40, AccessSize: 4}, Const32(0), Slot(2))
	require.NoError(t, m.Run())
	require.Equal(t, uint32(111), readSlot32(m, 0))
	require.Equal(t, uint32(222), readSlot32(m, 2))
}

func TestLowerAtomicCmpxchg_NativeMatch(t *testing.T) {
	m, _, ctx := newTestContext(16, 1, false)
	lowerAtomicStore(ctx, MemoryStore{Offset: 40, AccessSize: 4}, Const32(7), Const32(0))
	lowerAtomicCmpxchg(ctx, AtomicRmw{Offset: 40, AccessSize: 4}, Const32(0), Const32(7), Const32(9), Slot(0))
	lowerAtomicLoad(ctx, MemoryLoad{Offset: 40, AccessSize: 4}, Const32(0), Slot(2))
	require.NoError(t, m.Run())
	require.Equal(t, uint32(7), readSlot32(m, 0)) // witnessed value
	require.Equal(t, uint32(9), readSlot32(m, 2)) // replacement landed
}

func TestLowerAtomicCmpxchg_NativeMismatch(t *testing.T) {
	m, _, ctx := newTestContext(16, 1, false)
	lowerAtomicStore(ctx, MemoryStore{Offset: 40, AccessSize: 4}, Const32(7), Const32(0))
	lowerAtomicCmpxchg(ctx, AtomicRmw{Offset: 40, AccessSize: 4}, Const32(0), Const32(8), Const32(9), Slot(0))
	lowerAtomicLoad(ctx, MemoryLoad{Offset: 40, AccessSize: 4}, Const32(0), Slot(2))
	require.NoError(t, m.Run())
	require.Equal(t, uint32(7), readSlot32(m, 0)) // witnessed value, unchanged
	require.Equal(t, uint32(7), readSlot32(m, 2)) // no store happened
}

// TestLowerAtomicRmw_NativeAdd_RegisterOffset exercises checkAddress's
// register-offset path through lowerAtomicRmw's native backend. Before
// the address index was moved out of R0, AtomicLoad(..., R0, addr) would
// clobber addr.Base itself, corrupting the following AtomicStore's
// effective address; every other rmw test above uses Const32(0), which
// takes the immediate path and never touched this.
func TestLowerAtomicRmw_NativeAdd_RegisterOffset(t *testing.T) {
	m, _, ctx := newTestContext(20, 1, false)
	writeSlot32(m, 3, 40) // dynOffset lives in slot 3, not an immediate
	lowerAtomicStore(ctx, MemoryStore{Offset: 0, AccessSize: 4}, Const32(10), Slot(3))
	lowerAtomicRmw(ctx, AtomicRmw{Offset: 0, AccessSize: 4, Op: AtomicAdd}, Slot(3), Const32(5), Slot(0))
	lowerAtomicLoad(ctx, MemoryLoad{Offset: 0, AccessSize: 4}, Slot(3), Slot(2))
	require.NoError(t, m.Run())
	require.Equal(t, uint32(10), readSlot32(m, 0)) // rmw returns the OLD value
	require.Equal(t, uint32(15), readSlot32(m, 2))
}

// TestLowerAtomicCmpxchg_NativeMatch_RegisterOffset is the cmpxchg
// counterpart of the above: with a register dynOffset, addr.Base no
// longer collides with the R0 the load/compare/store loop uses as its
// data register.
func TestLowerAtomicCmpxchg_NativeMatch_RegisterOffset(t *testing.T) {
	m, _, ctx := newTestContext(20, 1, false)
	writeSlot32(m, 3, 40)
	lowerAtomicStore(ctx, MemoryStore{Offset: 0, AccessSize: 4}, Const32(7), Slot(3))
	lowerAtomicCmpxchg(ctx, AtomicRmw{Offset: 0, AccessSize: 4}, Slot(3), Const32(7), Const32(9), Slot(0))
	lowerAtomicLoad(ctx, MemoryLoad{Offset: 0, AccessSize: 4}, Slot(3), Slot(2))
	require.NoError(t, m.Run())
	require.Equal(t, uint32(7), readSlot32(m, 0)) // witnessed value
	require.Equal(t, uint32(9), readSlot32(m, 2)) // replacement landed
}

func TestLowerAtomicRmw_HelperBackend64(t *testing.T) {
	m, _, ctx := newTestContext(16, 1, false)
	lowerStore(ctx, MemoryStore{Offset: 40, AccessSize: 8}, true, Const32(0), Const64(100))
	lowerAtomicRmw(ctx, AtomicRmw{Offset: 40, AccessSize: 8, Op: AtomicAdd, Is64: true}, Const32(0), Const64(23), Slot(0))
	lowerLoad(ctx, MemoryLoad{Offset: 40, AccessSize: 8, Result64: true}, Const32(0), Slot(2))
	require.NoError(t, m.Run())
	require.Equal(t, uint64(100), readSlot64(m, 0))
	require.Equal(t, uint64(123), readSlot64(m, 2))
}

func TestLowerAtomicCmpxchg_HelperBackend64(t *testing.T) {
	m, _, ctx := newTestContext(16, 1, false)
	lowerStore(ctx, MemoryStore{Offset: 40, AccessSize: 8}, true, Const32(0), Const64(55))
	lowerAtomicCmpxchg(ctx, AtomicRmw{Offset: 40, AccessSize: 8, Is64: true}, Const32(0), Const64(55), Const64(77), Slot(0))
	lowerLoad(ctx, MemoryLoad{Offset: 40, AccessSize: 8, Result64: true}, Const32(0), Slot(2))
	require.NoError(t, m.Run())
	require.Equal(t, uint64(55), readSlot64(m, 0))
	require.Equal(t, uint64(77), readSlot64(m, 2))
}

func TestMaskOf(t *testing.T) {
	require.Equal(t, uint64(0xFF), maskOf(8))
	require.Equal(t, uint64(0xFFFF), maskOf(16))
	require.Equal(t, ^uint64(0), maskOf(64))
}

func TestAtomicRmwGeneric64_SubWordMasking(t *testing.T) {
	mem := NewMemory(1, 1)
	storeMasked(mem, 0, 0xAABBCCDD, 32)

	// An 8-bit xor lane at byte 0 only touches the 0xDD byte.
	old := atomicRmwGeneric64(mem, 0, 0xFF, AtomicXor, 8)
	require.Equal(t, uint64(0xDD), old)
	require.Equal(t, uint32(0xAABBCC22), bytesToU32(mem.Buffer[0:4], false))
}

func TestAtomicRmwGenericCmpxchg64_MasksExpectedAndReplacement(t *testing.T) {
	mem := NewMemory(1, 1)
	storeMasked(mem, 0, 0x1234, 16)

	witnessed := atomicRmwGenericCmpxchg64(mem, 0, 0xFFFF1234, 0xFFFF9999, 16)
	require.Equal(t, uint64(0x1234), witnessed)
	require.Equal(t, uint64(0x9999), loadMasked(mem, 0, 16))
}

func TestAtomicRmwGeneric64_Linearizability(t *testing.T) {
	mem := NewMemory(1, 1)
	storeMasked(mem, 0, 0, 32)

	const perGoroutine = 500
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				atomicRmwGeneric64(mem, 0, 1, AtomicAdd, 32)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(4*perGoroutine), loadMasked(mem, 0, 32))
}
