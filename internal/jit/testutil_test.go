package jit

import "github.com/matetokodi/walrus/internal/lir"

// newTestContext builds a fresh Machine/Memory/CompileContext trio sized
// for one test's worth of frame slots and linear memory pages.
func newTestContext(frameSize int, memPages uint32, bigEndian bool) (*lir.Machine, *Memory, *CompileContext) {
	m := lir.NewMachine(frameSize)
	m.BigEndian = bigEndian
	mem := NewMemory(memPages, memPages+4)
	m.SetLinearMemory(mem.Buffer)
	exec := &ExecutionContext{Memory0: mem, Instance: &Instance{}}
	ctx := NewCompileContext(m, mem, exec, bigEndian)
	return m, mem, ctx
}

// readSlot32 reads a 32-bit frame slot's value (slot indices are 4-byte
// units, matching Operand.Offset).
func readSlot32(m *lir.Machine, slot int32) uint32 {
	off := slot * 4
	if m.BigEndian {
		return uint32(m.Frame[off])<<24 | uint32(m.Frame[off+1])<<16 | uint32(m.Frame[off+2])<<8 | uint32(m.Frame[off+3])
	}
	return uint32(m.Frame[off]) | uint32(m.Frame[off+1])<<8 | uint32(m.Frame[off+2])<<16 | uint32(m.Frame[off+3])<<24
}

// writeSlot32 writes a 32-bit value into a frame slot honoring BigEndian.
func writeSlot32(m *lir.Machine, slot int32, v uint32) {
	off := slot * 4
	if m.BigEndian {
		m.Frame[off], m.Frame[off+1], m.Frame[off+2], m.Frame[off+3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	} else {
		m.Frame[off], m.Frame[off+1], m.Frame[off+2], m.Frame[off+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
}

// readSlot64 reads a 64-bit frame slot pair's value (low half at slot,
// high half at slot+1 worth of bytes per WordLowOffset/WordHighOffset).
func readSlot64(m *lir.Machine, slot int32) uint64 {
	lo := WordLowOffset(m.BigEndian)
	hi := WordHighOffset(m.BigEndian)
	base := slot * 4
	readWord := func(off int32) uint32 {
		b := base + off
		if m.BigEndian {
			return uint32(m.Frame[b])<<24 | uint32(m.Frame[b+1])<<16 | uint32(m.Frame[b+2])<<8 | uint32(m.Frame[b+3])
		}
		return uint32(m.Frame[b]) | uint32(m.Frame[b+1])<<8 | uint32(m.Frame[b+2])<<16 | uint32(m.Frame[b+3])<<24
	}
	return uint64(readWord(lo)) | uint64(readWord(hi))<<32
}

// bytesToU32 assembles 4 raw memory bytes into a uint32 honoring the
// requested endianness, independent of any frame-slot machinery.
func bytesToU32(b []byte, bigEndian bool) uint32 {
	if bigEndian {
		return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func writeSlot64(m *lir.Machine, slot int32, v uint64) {
	lo := WordLowOffset(m.BigEndian)
	hi := WordHighOffset(m.BigEndian)
	base := slot * 4
	writeWord := func(off int32, w uint32) {
		b := base + off
		if m.BigEndian {
			m.Frame[b], m.Frame[b+1], m.Frame[b+2], m.Frame[b+3] = byte(w>>24), byte(w>>16), byte(w>>8), byte(w)
		} else {
			m.Frame[b], m.Frame[b+1], m.Frame[b+2], m.Frame[b+3] = byte(w), byte(w>>8), byte(w>>16), byte(w>>24)
		}
	}
	writeWord(lo, uint32(v))
	writeWord(hi, uint32(v>>32))
}
