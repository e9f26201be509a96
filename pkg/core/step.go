package core

import "github.com/jvmcore/engine/pkg/microcode"

// Output is what C2 exposes to the rest of the pipeline after one cycle:
// the flag set and whether this microword halted the core.
type Output struct {
	Flags  Flags
	Halted bool
}

// Step executes one microinstruction's stack/ALU/shifter/logic-unit
// effect against s, in place, and returns the resulting flags. It is C2:
// muxes, the 33-bit adder, the barrel shifter and the logic unit, driven
// entirely by ctl with no decision logic of its own. Memory-dereference
// microwords (newarray, iaload/iastore, getfield/putfield, ...) are
// left as a stack no-op here — pkg/engine issues them to the memory
// controller (pkg/mem) and does their pushes/pops on the same State
// itself, once the controller's multi-cycle handshake completes.
func Step(s *State, ctl microcode.StackCtl, imm uint32) Output {
	switch ctl.Op {
	case microcode.OpPushImm:
		s.Push(imm)

	case microcode.OpAdd:
		b := s.Pop()
		a := s.Pop()
		s.Push(a + b)

	case microcode.OpSub:
		tos := s.Pop()
		nos := s.Pop()
		s.Push(nos - tos)

	case microcode.OpAnd:
		b := s.Pop()
		a := s.Pop()
		s.Push(a & b)

	case microcode.OpOr:
		b := s.Pop()
		a := s.Pop()
		s.Push(a | b)

	case microcode.OpXor:
		b := s.Pop()
		a := s.Pop()
		s.Push(a ^ b)

	case microcode.OpNeg:
		a := s.Pop()
		s.Push(uint32(-int32(a)))

	case microcode.OpShl:
		amt := s.Pop() & 0x1F
		v := s.Pop()
		s.Push(v << amt)

	case microcode.OpShr:
		amt := s.Pop() & 0x1F
		v := s.Pop()
		s.Push(uint32(int32(v) >> amt))

	case microcode.OpUshr:
		amt := s.Pop() & 0x1F
		v := s.Pop()
		s.Push(v >> amt)

	case microcode.OpDup:
		s.Push(s.TOS())

	case microcode.OpPop:
		s.Pop()

	case microcode.OpLoadLocal, microcode.OpLoadVPn:
		s.Push(s.RAM[s.VP+uint16(ctl.DirectAddr)])

	case microcode.OpStoreLocal, microcode.OpStoreVPn:
		v := s.Pop()
		s.RAM[s.VP+uint16(ctl.DirectAddr)] = v

	case microcode.OpMulRead:
		s.Push(s.MulRes)

	case microcode.OpHalt:
		s.syncRegisters()
		return Output{Flags: ComputeFlags(s.A, s.B), Halted: true}
	}

	s.syncRegisters()
	return Output{Flags: ComputeFlags(s.A, s.B)}
}
