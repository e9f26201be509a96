package core

import "github.com/jvmcore/engine/pkg/isa"

// ComputeImmediate is C2's immediate unit: widen the current bytecode
// operand into a 32-bit value under one of four modes.
// It is registered one cycle in real hardware; here it is a pure
// function the caller (pkg/engine, passing the operand latched by
// pkg/fetch) applies whenever a microword needs the widened value.
func ComputeImmediate(opd uint16, mode isa.ImmediateMode) uint32 {
	switch mode {
	case isa.ImmU8:
		return uint32(uint8(opd))
	case isa.ImmS8:
		return uint32(int32(int8(uint8(opd))))
	case isa.ImmU16:
		return uint32(opd)
	case isa.ImmS16:
		return uint32(int32(int16(opd)))
	default:
		return 0
	}
}
