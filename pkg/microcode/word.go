// Package microcode models the 2K x 10-bit microcode ROM (C5) and its
// purely-combinational decode into stack/ALU, memory and multiplier
// control signals (C6). Building the assembler's actual bit-packed
// encoding is explicitly out of scope; the ROM is modeled as data —
// a fixed-size array of already-decoded Word values, as if produced by
// that assembler and loaded at build time.
package microcode

// MicroOp names one microcode primitive. Each Word carries exactly one;
// real hardware would instead carry ~40 independent control lines, but a
// single tagged field is the natural Go shape for "at most one of these
// fires per microinstruction".
type MicroOp int

const (
	OpNone MicroOp = iota

	// Stack/ALU ops (C2), named after the bytecode-level operation they
	// implement rather than after a raw ALU mode, since in this engine
	// each covers a specific push/pop/mux pattern.
	OpPushImm    // push the decoded immediate
	OpPushConst  // generic ALU push; core.Step has no case for it, so the stack is left unchanged
	OpAdd        // A,B <- pop two, push A+B
	OpSub        // push B-A (NOS - TOS)
	OpAnd        // push A&B
	OpOr         // push A|B
	OpXor        // push A^B
	OpNeg        // push -A
	OpShl        // push B << (A&0x1F)
	OpShr        // push B >> (A&0x1F), arithmetic
	OpUshr       // push B >> (A&0x1F), logical
	OpDup        // duplicate TOS
	OpPop        // discard TOS
	OpLoadLocal  // push local var VP+DirectAddr (the bytecode operand is not used as the index)
	OpStoreLocal // pop into local var VP+DirectAddr (the bytecode operand is not used as the index)
	OpLoadVPn    // push VP+n (n encoded in DirectAddr 0..3)
	OpStoreVPn   // pop into VP+n
	OpBranchEq   // conditional branch on ZF
	OpBranchNe   // conditional branch on !ZF
	OpJump       // unconditional microcode jump
	OpHalt       // stop stepping

	// Multiplier (C7)
	OpMulStart // stmul: capture A,B and begin 17-cycle multiply
	OpMulRead  // ldmul: push MUL_RES

	// Memory controller (C11) handle/array/field/static ops
	OpNewArray    // allocate handle for newarray
	OpNewObject   // allocate handle for new
	OpArrayLen    // push arr.length (H[1]), NP-checked
	OpIaload      // push arr[idx]
	OpIastore     // pop val, pop idx, pop arrref; arr[idx] = val
	OpGetField    // push obj.field[idx]
	OpPutField    // pop val, pop objref; obj.field[idx] = val
	OpGetStatic   // push static slot
	OpPutStatic   // pop into static slot
	OpInvoke      // method-cache find + jpc load
	OpReturn      // pop call frame, restore JPC
	OpMonitorEnt  // acquire global lock
	OpMonitorExit // release global lock
	OpAthrow      // pop handle, force EXC_AB-style user exception
	OpCopyStart   // GC copy (CP_*): begin word-by-word block move
)

// Word is one 2K-ROM entry: the primitive plus the two fetch-stage side
// flags and whatever literal operand
// the primitive needs (branch/jump offsets, direct RAM address, or an
// immediate-mode tag the bytecode's own operand bytes feed through).
type Word struct {
	Op MicroOp

	// JFetch advances JPC and fetches the next bytecode this cycle.
	JFetch bool
	// JOpdFetch latches the next JBC byte into the 16-bit operand latch.
	JOpdFetch bool

	BranchOffset int8  // signed 6-bit field, sign-extended
	JumpOffset   int16 // signed 9-bit field, sign-extended
	DirectAddr   uint8 // IR[4:0]: local-var or constant-area slot

	// There is no next-address field: sequential flow is always PC+1,
	// routines are built as contiguous slices, and OpJump/OpBranchEq/
	// OpBranchNe take their target from the offsets above instead.
}

// ROM is the 2K x 10-bit microcode store.
type ROM [2048]Word

// PC is an unsigned microcode-store address.
type PC uint16

const ROMSize = 2048
