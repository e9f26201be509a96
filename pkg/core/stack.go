package core

// TOS returns the current top-of-stack word without modifying SP.
func (s *State) TOS() uint32 {
	return s.RAM[s.SP]
}

// NOS returns the current next-of-stack word.
func (s *State) NOS() uint32 {
	if s.SP == 0 {
		return 0
	}
	return s.RAM[s.SP-1]
}

// Push writes v above the current TOS and advances SP, latching the
// overflow flag if the push would enter the reserved headroom. SP never
// decrements past the point Pop already guards, so only the push
// direction needs the saturation check.
func (s *State) Push(v uint32) {
	if int(s.SP)+1 >= SPOverflowThreshold {
		s.SPOverflow = true
		return
	}
	s.SP++
	s.RAM[s.SP] = v
}

// Pop removes and returns the current TOS.
func (s *State) Pop() uint32 {
	v := s.RAM[s.SP]
	if s.SP > OperandStart {
		s.SP--
	}
	return v
}

// syncRegisters refreshes the A/B convenience mirrors after a cycle's
// stack mutation. Exported state always reflects RAM[SP]/RAM[SP-1] so callers
// never observe A/B stale relative to the stack.
func (s *State) syncRegisters() {
	s.A = s.TOS()
	s.B = s.NOS()
}
