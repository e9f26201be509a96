// Package core implements the stack RAM, ALU, shifter and registers,
// plus the pipeline glue that ties them to the rest of the engine. Step
// applies one decoded microinstruction to a State in place and returns
// an Output; a caller that wants the previous cycle's state keeps a copy
// of the State value.
package core

// StackSize is the 256-word on-chip stack RAM.
const StackSize = 256

// Stack-RAM region boundaries.
const (
	ConstRegionStart = 0
	ConstRegionEnd   = 32 // exclusive
	LocalsStart      = 32
	LocalsEnd        = 64 // exclusive
	OperandStart     = 64
)

// InitialSP is the reset value of SP: the stack starts empty with the
// operand region beginning at 64, biased up so small frames never
// saturate.
const InitialSP = 128

// SPOverflowThreshold is `size - 16`.
const SPOverflowThreshold = StackSize - 16

// State is the complete, trivially-copyable register + stack-RAM
// snapshot for one core: a single flat struct with no pointers, so a
// copy is a real snapshot and Step never aliases "current" with "next".
type State struct {
	RAM [StackSize]uint32

	A, B       uint32
	SP, VP, AR uint16
	MulRes     uint32
	SPOverflow bool

	JPC uint16
	PC  uint16
}

// Reset returns a zeroed State with SP at its reset value.
func Reset() State {
	return State{SP: InitialSP}
}

// Flags are the four combinational predicates derived from A and from
// A±B over a 33-bit adder.
type Flags struct {
	ZF bool // A == 0
	NF bool // A sign bit
	EQ bool // A == B
	LT bool // borrow bit of B-A, signed
}

// ComputeFlags derives the flag set from the current A and B,
// combinationally, via a 33-bit A±B adder. Only 4 independent
// single-bit predicates are needed here, so a direct boolean expression
// is strictly simpler than a precomputed lookup table amortizing many
// more flags over every possible byte value would be (see DESIGN.md).
func ComputeFlags(a, b uint32) Flags {
	diff := int64(int32(b)) - int64(int32(a))
	return Flags{
		ZF: a == 0,
		NF: int32(a) < 0,
		EQ: a == b,
		LT: diff < 0,
	}
}
