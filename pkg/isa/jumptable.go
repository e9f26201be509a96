package isa

// EntryAddr is a 12-bit microcode-entry address.
type EntryAddr uint16

// TrapUnimplemented is the fixed microcode entry for bytecodes the jump
// table has no mapping for.
const TrapUnimplemented EntryAddr = 0x7FF

// JumpTable translates a bytecode (0..255) to a microcode entry address.
// Missing opcodes resolve to TrapUnimplemented.
type JumpTable [256]EntryAddr

// NewJumpTable builds the immutable bytecode->microcode-entry map. Entry
// addresses are assigned densely in dispatchOrder starting at 1 so that
// address 0 (system init) is never aliased by a bytecode dispatch.
func NewJumpTable() JumpTable {
	var jt JumpTable
	for i := range jt {
		jt[i] = TrapUnimplemented
	}

	entry := EntryAddr(1)
	assign := func(op Bytecode) {
		jt[op] = entry
		entry++
	}

	for _, op := range dispatchOrder {
		assign(op)
	}

	jt[BytecodeException] = EntryException
	jt[BytecodeInterrupt] = EntryInterrupt

	return jt
}

// Fixed entry points that don't participate in the dense bytecode
// dispatch assignment: the exception/interrupt vectors the fetch unit
// substitutes ahead of ordinary dispatch, and system init at PC=0.
const (
	EntrySystemInit EntryAddr = 0
	EntryException  EntryAddr = 0x7FD
	EntryInterrupt  EntryAddr = 0x7FE
)

// dispatchOrder lists every bytecode NewJumpTable assigns a dense entry
// address to. Order only affects which literal address each bytecode
// gets; it carries no semantic weight.
var dispatchOrder = []Bytecode{
	OpNop, OpAconstNull,
	OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4, OpIconst5,
	OpBipush, OpSipush,
	OpIload, OpIload0, OpIload1, OpIload2, OpIload3,
	OpIaload,
	OpIstore, OpIstore0, OpIstore1, OpIstore2, OpIstore3,
	OpIastore,
	OpDup, OpPop,
	OpIadd, OpIsub, OpImul, OpIdiv, OpIrem, OpIneg,
	OpIshl, OpIshr, OpIushr, OpIand, OpIor, OpIxor,
	OpIfeq, OpIfne, OpIfIcmpeq, OpGoto,
	OpIreturn, OpReturn,
	OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
	OpInvokevirt, OpInvokestat,
	OpNew, OpNewarray, OpArraylength,
	OpAthrow,
	OpMonitorentr, OpMonitorexit,
}

// Translate returns the microcode entry address for a bytecode.
func (jt JumpTable) Translate(op Bytecode) EntryAddr {
	return jt[op]
}
