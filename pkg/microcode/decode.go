package microcode

import "github.com/jvmcore/engine/pkg/isa"

// BranchCond is the implicit condition tag a br/jmp may carry.
type BranchCond int

const (
	CondNone BranchCond = iota
	CondZF
	CondNZ
)

// StackCtl is the subset of C6's ~20 outputs that drive C2.
type StackCtl struct {
	Op         MicroOp
	ImmMode    isa.ImmediateMode
	DirectAddr uint8
}

// MemCtl is the subset of C6's outputs that drive C11.
type MemCtl struct {
	Op MicroOp
}

// MulCtl drives C7.
type MulCtl struct {
	Start bool // stmul
	Read  bool // ldmul
}

// BranchCtl drives C5's PC-update priority logic.
type BranchCtl struct {
	Taken bool // true for OpBranchEq/OpBranchNe/OpJump
	Cond  BranchCond
	Jump  bool  // jmp (9-bit offset) vs br (6-bit offset)
	Off9  int16 // jmp offset
	Off6  int8  // br offset
}

// Control is C6's fully decoded output for one microinstruction: every
// signal routed to C2/C11/C7/C5, grouped by destination.
type Control struct {
	Stack  StackCtl
	Mem    MemCtl
	Mul    MulCtl
	Branch BranchCtl

	EnaJpc bool // stjpc: latch C2's A into JPC via C4
	Wait   bool // stall PC until C11 deasserts busy
}

// Decode is pure and combinational, with no hidden state. immMode carries
// the bytecode's own operand-derived immediate mode, set by the fetch
// stage for the bytecode currently dispatched, since the direct-address
// field (IR[4:0]) is ambiguous between "local variable" and "constant
// slot" without knowing the opcode's class.
func Decode(w Word, immMode isa.ImmediateMode) Control {
	ctl := Control{
		Stack: StackCtl{Op: w.Op, ImmMode: immMode, DirectAddr: w.DirectAddr},
		Mem:   MemCtl{Op: w.Op},
	}

	switch w.Op {
	case OpMulStart:
		ctl.Mul.Start = true
	case OpMulRead:
		ctl.Mul.Read = true
	case OpBranchEq:
		ctl.Branch = BranchCtl{Taken: true, Cond: CondZF, Off6: w.BranchOffset}
	case OpBranchNe:
		ctl.Branch = BranchCtl{Taken: true, Cond: CondNZ, Off6: w.BranchOffset}
	case OpJump:
		ctl.Branch = BranchCtl{Taken: true, Jump: true, Off9: w.JumpOffset}
	case OpInvoke:
		ctl.EnaJpc = true
		ctl.Wait = true
	case OpNewArray, OpNewObject, OpArrayLen, OpIaload, OpIastore,
		OpGetField, OpPutField, OpGetStatic, OpPutStatic, OpCopyStart:
		ctl.Wait = true
	}

	return ctl
}
