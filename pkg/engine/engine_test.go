package engine

import (
	"testing"

	"github.com/jvmcore/engine/pkg/bmb"
	"github.com/jvmcore/engine/pkg/cache"
	"github.com/jvmcore/engine/pkg/core"
	"github.com/jvmcore/engine/pkg/fetch"
	"github.com/jvmcore/engine/pkg/isa"
	"github.com/jvmcore/engine/pkg/mem"
	"github.com/jvmcore/engine/pkg/microcode"
)

func newTestEngine(simMem *bmb.SimMemory) *Engine {
	e := NewEngine(0, simMem, mem.NullIOPort{},
		cache.NewMethodCache(cache.NumBlocks*cache.ElementsPerLine*bmb.WordBytes),
		&cache.ObjectCache{}, &cache.ArrayCache{})
	return e
}

// TestIaddThenReturnHalts drives a tiny two-bytecode program (iadd;
// return) through the full fetch/decode/stack pipeline and checks the
// engine halts cleanly with no caller left to return to.
func TestIaddThenReturnHalts(t *testing.T) {
	simMem := bmb.NewSimMemory(64)
	e := newTestEngine(simMem)

	entryIadd := e.JT.Translate(isa.OpIadd)
	entryReturn := e.JT.Translate(isa.OpReturn)
	e.ROM[isa.EntrySystemInit] = microcode.Word{JFetch: true}
	e.ROM[entryIadd] = microcode.Word{Op: microcode.OpAdd, JFetch: true}
	e.ROM[entryReturn] = microcode.Word{Op: microcode.OpReturn, JFetch: true}

	e.Fetch.JBC[0] = byte(isa.OpIadd)
	e.Fetch.JBC[1] = byte(isa.OpReturn)

	e.State.SP = core.OperandStart
	e.State.RAM[core.OperandStart] = 7
	e.State.Push(35)

	for i := 0; i < 3 && !e.Halted; i++ {
		if err := e.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if !e.Halted {
		t.Fatal("engine should have halted after returning with an empty call stack")
	}
	if got := e.State.TOS(); got != 42 {
		t.Fatalf("TOS = %d, want 42", got)
	}
}

// TestGetFieldStallsThenPushesResult exercises the memory-wait path: a
// getfield microword issues a mem.Request, the engine holds PC until the
// controller reports Done, and the field value lands on the stack.
func TestGetFieldStallsThenPushesResult(t *testing.T) {
	simMem := bmb.NewSimMemory(256)
	simMem.StallCycles = 2
	simMem.WriteWordBE(mem.HandleTableAddr(5), 128) // handle 5 -> object base 128
	simMem.WriteWordBE(128+3*bmb.WordBytes, 0xCAFEF00D)

	e := newTestEngine(simMem)
	entry := isa.EntryAddr(10)
	e.ROM[isa.EntrySystemInit] = microcode.Word{JFetch: true}
	e.ROM[entry] = microcode.Word{Op: microcode.OpGetField, DirectAddr: 3}
	e.JT[isa.OpGetfield] = entry
	e.Fetch.JBC[0] = byte(isa.OpGetfield)

	e.State.Push(5) // objectref

	done := false
	for i := 0; i < 20; i++ {
		if err := e.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if e.State.SP > core.OperandStart-1 && e.pendingOp == microcode.OpNone && e.State.PC == uint16(entry)+1 {
			done = true
			break
		}
	}
	if !done {
		t.Fatal("getfield never completed")
	}
	if got := e.State.TOS(); got != 0xCAFEF00D {
		t.Fatalf("TOS = %#x, want 0xCAFEF00D", got)
	}
}

// TestGetFieldNullPointerDispatchesExceptionEntry checks that a null
// objectref raises ExcNP and the engine redirects to the exception
// dispatch entry instead of resuming at entry+1.
func TestGetFieldNullPointerDispatchesExceptionEntry(t *testing.T) {
	simMem := bmb.NewSimMemory(64)
	e := newTestEngine(simMem)
	entry := isa.EntryAddr(10)
	e.ROM[entry] = microcode.Word{Op: microcode.OpGetField}
	e.State.PC = uint16(entry)
	e.State.Push(0) // null

	for i := 0; i < 10; i++ {
		if err := e.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
		if e.State.PC == uint16(isa.EntryException) {
			return
		}
	}
	t.Fatalf("expected PC to land on the exception entry, got %d", e.State.PC)
}

func TestNextPCBranchTaken(t *testing.T) {
	e := newTestEngine(bmb.NewSimMemory(16))
	e.State.PC = 20
	ctl := microcode.Control{Branch: microcode.BranchCtl{Taken: true, Cond: microcode.CondZF, Off6: 5}}
	if pc := e.nextPC(microcode.Word{}, ctl, core.Flags{ZF: true}, fetch.Output{}); pc != 25 {
		t.Fatalf("branch-taken PC = %d, want 25", pc)
	}
	if pc := e.nextPC(microcode.Word{}, ctl, core.Flags{ZF: false}, fetch.Output{}); pc != 21 {
		t.Fatalf("branch-not-taken PC = %d, want 21 (sequential)", pc)
	}
}
