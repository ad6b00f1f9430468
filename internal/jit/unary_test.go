package jit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLowerUnary32(t *testing.T) {
	tests := []struct {
		name string
		op   Opcode
		src  uint32
		want uint32
	}{
		{"clz_of_one", OpClz, 1, 31},
		{"clz_of_zero", OpClz, 0, 32},
		{"ctz_of_eight", OpCtz, 8, 3},
		{"ctz_of_zero", OpCtz, 0, 32},
		{"popcnt", OpPopcnt, 0xF0F0F0F0, 16},
		{"extend8s_negative", OpExtend8S, 0xFF, 0xFFFFFFFF},
		{"extend8s_positive", OpExtend8S, 0x7F, 0x7F},
		{"extend16s_negative", OpExtend16S, 0x8000, 0xFFFF8000},
		{"extend32s_negative", OpExtend32S, 0x80000000, 0x80000000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, ctx := newTestContext(16, 1, false)
			ok := lowerUnary32(ctx, tt.op, Const32(tt.src), Slot(0))
			require.True(t, ok)
			require.NoError(t, m.Run())
			require.Equal(t, tt.want, readSlot32(m, 0))
		})
	}
}

func TestLowerUnary32_RejectsUnknownOp(t *testing.T) {
	_, _, ctx := newTestContext(16, 1, false)
	ok := lowerUnary32(ctx, OpAdd, Const32(1), Slot(0))
	require.False(t, ok)
}
