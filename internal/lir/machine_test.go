package lir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlagsSatisfies_Signed(t *testing.T) {
	// f.a/f.b always hold zero-extended 32-bit values in a uint64 field
	// (see Op2u's Sub case); a naive int64 cast would never observe the
	// sign bit of a "negative" 32-bit quantity like 0xFFFFFFFF (-1).
	tests := []struct {
		name string
		a, b uint64
		cond CondCode
		want bool
	}{
		{"neg_lt_pos", 0xFFFFFFFF, 1, SigLess, true},                     // -1 < 1
		{"pos_not_lt_neg", 1, 0xFFFFFFFF, SigLess, false},                // 1 < -1
		{"neg_le_neg_equal", 0xFFFFFFFB, 0xFFFFFFFB, SigLessEqual, true}, // -5 <= -5
		{"neg_gt_more_neg", 0xFFFFFFFF, 0xFFFFFF9C, SigGreater, true},    // -1 > -100
		{"min_ge_min", 0x80000000, 0x80000000, SigGreaterEqual, true},    // INT32_MIN >= INT32_MIN
		// As unsigned 32-bit values, 0xFFFFFFFF is far larger than 1 — the
		// unsigned comparisons must disagree with the signed ones above.
		{"unsigned_reverses", 0xFFFFFFFF, 1, Greater, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Flags{a: tt.a, b: tt.b}
			require.Equal(t, tt.want, f.Satisfies(tt.cond))
		})
	}
}

func TestEvalBinOp_Pack(t *testing.T) {
	res, carry, overflow := evalBinOp(Pack, 0xAABBCCDD, 0x11223344, false)
	require.Equal(t, uint64(0x11223344AABBCCDD), res)
	require.False(t, carry)
	require.False(t, overflow)

	// High bits of each operand beyond bit 31 must not leak into the
	// packed result.
	res, _, _ = evalBinOp(Pack, 0xFFFFFFFF00000001, 0xFFFFFFFF00000002, false)
	require.Equal(t, uint64(0x0000000200000001), res)
}

func TestMachine_PackUnpackRoundTrip(t *testing.T) {
	m := NewMachine(64)
	m.Op2(Pack, RegArg(R2), RegArg(R0), RegArg(R1))
	m.Op1(UnpackLo, RegArg(R3), RegArg(R2))
	m.Op1(UnpackHi, RegArg(R4), RegArg(R2))

	m.Regs[R0] = 0x12345678
	m.Regs[R1] = 0x9abcdef0
	require.NoError(t, m.Run())

	require.Equal(t, uint64(0x9abcdef012345678), m.Regs[R2])
	require.Equal(t, uint64(0x12345678), m.Regs[R3])
	require.Equal(t, uint64(0x9abcdef0), m.Regs[R4])
}

func TestMachine_AtomicStoreReservationLifecycle(t *testing.T) {
	m := NewMachine(0)
	m.SetLinearMemory(make([]byte, 16))

	addr := LinearArg(NoRegister, 0)
	m.AtomicLoad(4, R0, addr)
	m.Regs[R1] = 42
	failJ := m.AtomicStore(4, addr, R1, AtomicNotStored)
	loop := m.EmitLabel()
	m.SetLabel(failJ, loop)

	require.NoError(t, m.Run())
	require.Equal(t, uint32(42), bytesToU32(m.Linear[0:4], false))
}

func TestMachine_AtomicStoreFailsWithoutReservation(t *testing.T) {
	m := NewMachine(0)
	m.SetLinearMemory(make([]byte, 16))
	addr := LinearArg(NoRegister, 0)

	// No preceding AtomicLoad: the reservation is invalid, so the store
	// must not land and the machine should take the AtomicNotStored exit.
	m.Regs[R1] = 99
	failJ := m.AtomicStore(4, addr, R1, AtomicNotStored)
	m.Halt(OutOfBoundsMemAccessError) // normal fallthrough marks failure
	failLabel := m.EmitLabel()
	m.SetLabel(failJ, failLabel)

	require.NoError(t, m.Run())
	require.Equal(t, ErrorCode(NoError), m.ErrorCode)
	require.Equal(t, uint32(0), bytesToU32(m.Linear[0:4], false))
}

func bytesToU32(b []byte, bigEndian bool) uint32 {
	if bigEndian {
		return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
