package isa

import "testing"

// TestJumpTableCompleteness verifies every dispatched bytecode gets a
// nonzero, non-trap entry and that address 0 is reserved for system init.
func TestJumpTableCompleteness(t *testing.T) {
	jt := NewJumpTable()
	for _, op := range dispatchOrder {
		addr := jt.Translate(op)
		if addr == TrapUnimplemented {
			t.Errorf("bytecode %#x (%s) maps to the unimplemented trap", op, Lookup(op).Mnemonic)
		}
		if addr == EntrySystemInit {
			t.Errorf("bytecode %#x aliases the system-init entry address", op)
		}
	}
}

// TestJumpTableMissingOpcode verifies an opcode never assigned by
// NewJumpTable traps to the fixed unimplemented-trap entry.
func TestJumpTableMissingOpcode(t *testing.T) {
	jt := NewJumpTable()
	if got := jt.Translate(0xD0); got != TrapUnimplemented {
		t.Errorf("unassigned opcode 0xD0: got entry %#x, want trap %#x", got, TrapUnimplemented)
	}
}

// TestJumpTableInterruptException verifies the two sentinel bytecodes C4
// substitutes map to their fixed vectors and that the vectors differ.
func TestJumpTableInterruptException(t *testing.T) {
	jt := NewJumpTable()
	if jt.Translate(BytecodeException) != EntryException {
		t.Error("exception sentinel does not map to EntryException")
	}
	if jt.Translate(BytecodeInterrupt) != EntryInterrupt {
		t.Error("interrupt sentinel does not map to EntryInterrupt")
	}
	if EntryException == EntryInterrupt {
		t.Fatal("exception and interrupt entries must differ")
	}
}

// TestCatalogOperandWidths spot-checks immediate decoding modes for a
// representative sample of bytecodes.
func TestCatalogOperandWidths(t *testing.T) {
	cases := []struct {
		op    Bytecode
		bytes int
		mode  ImmediateMode
	}{
		{OpBipush, 1, ImmS8},
		{OpSipush, 2, ImmS16},
		{OpIload, 1, ImmU8},
		{OpGetfield, 2, ImmU16},
		{OpIadd, 0, ImmNone},
	}
	for _, c := range cases {
		info := Lookup(c.op)
		if info.OperandBytes != c.bytes || info.Immediate != c.mode {
			t.Errorf("Lookup(%#x) = %+v, want bytes=%d mode=%d", c.op, info, c.bytes, c.mode)
		}
	}
}
