// Package fetch implements bytecode fetch/translate (C4): the Java PC,
// the JBC RAM, the two operand-byte latches, and the interrupt/exception
// merge ahead of the jump table.
package fetch

import "github.com/jvmcore/engine/pkg/isa"

// JBCSize is the default 2 KB byte-addressed bytecode cache.
const JBCSize = 2048

// Unit owns JPC, the JBC RAM and the operand latches.
type Unit struct {
	JPC uint32
	JBC [JBCSize]byte

	opdLo, opdHi byte

	pendingIRQ bool
	pendingExc bool
}

// Output is what C4 presents to C1/C5 on a cycle where jfetch fires, plus
// the live operand register value.
type Output struct {
	Bytecode isa.Bytecode
	Entry    isa.EntryAddr
	Operand  uint16
	ExcAck   bool // single-cycle exception-request acknowledge
	IrqAck   bool // single-cycle interrupt-request acknowledge
}

// Step runs one cycle. jfetch/jopdfetch come from the microword just
// decoded by C6; irqReq is masked by
// the caller before it reaches here, excReq is always-on.
// Interrupts latch until their acknowledging pulse fires; exceptions take
// priority over interrupts, which take priority over the next ordinary
// bytecode.
func (u *Unit) Step(jt isa.JumpTable, jfetch, jopdfetch, irqReq, excReq bool) Output {
	if irqReq {
		u.pendingIRQ = true
	}
	if excReq {
		u.pendingExc = true
	}

	var out Output

	if jopdfetch {
		b := u.JBC[u.JPC%JBCSize]
		u.opdLo, u.opdHi = b, u.opdLo
		u.JPC++
	}

	if jfetch {
		switch {
		case u.pendingExc:
			out.Bytecode = isa.BytecodeException
			u.pendingExc = false
			out.ExcAck = true
		case u.pendingIRQ:
			out.Bytecode = isa.BytecodeInterrupt
			u.pendingIRQ = false
			out.IrqAck = true
		default:
			out.Bytecode = isa.Bytecode(u.JBC[u.JPC%JBCSize])
			u.JPC++
		}
		out.Entry = jt.Translate(out.Bytecode)
	}

	out.Operand = uint16(u.opdHi)<<8 | uint16(u.opdLo)
	return out
}

// Operand returns the live 16-bit operand register without side effects,
// for a caller that needs its value on a cycle where no jopdfetch pulse
// fires (a memory-dereferencing microword reading the operand latched by
// earlier cycles in the same bytecode's routine).
func (u *Unit) Operand() uint16 {
	return uint16(u.opdHi)<<8 | uint16(u.opdLo)
}

// WriteWord is the explicit command surface C11 uses to fill JBC during a
// method fill, never a shared pointer into
// Unit's internals.
func (u *Unit) WriteWord(wordAddr uint32, word uint32) {
	base := wordAddr * 4
	u.JBC[base%JBCSize] = byte(word)
	u.JBC[(base+1)%JBCSize] = byte(word >> 8)
	u.JBC[(base+2)%JBCSize] = byte(word >> 16)
	u.JBC[(base+3)%JBCSize] = byte(word >> 24)
}
