// Package engine wires the per-cycle pipeline stages into a single
// clock-driven core (C1-C12) and the multi-core supervisor (C13) that
// arbitrates shared-bus access and the global monitor lock across them.
// Everything here is glue: no stage computes anything itself that its
// own package doesn't already own, the way a top-level `step()` in a
// simulator reads current state and inputs and produces next-state and
// outputs atomically, with no stage reaching into another's internals.
package engine

import (
	"fmt"

	"github.com/jvmcore/engine/pkg/bmb"
	"github.com/jvmcore/engine/pkg/cache"
	"github.com/jvmcore/engine/pkg/core"
	"github.com/jvmcore/engine/pkg/fetch"
	"github.com/jvmcore/engine/pkg/isa"
	"github.com/jvmcore/engine/pkg/mem"
	"github.com/jvmcore/engine/pkg/microcode"
	"github.com/jvmcore/engine/pkg/mul"
	"github.com/jvmcore/engine/pkg/trace"
)

// defaultMethodLen bounds a single invoke's bytecode fill. Resolving a
// constant-pool index to a method's real address and length belongs to a
// class-loader/method-table component this engine doesn't have; instead
// invoke pops an already-resolved method address (EnaJpc's "latch A into
// JPC") and fills a fixed-size window around it.
const defaultMethodLen = 256

// defaultHeapBase is where NewEngine starts handing out newarray/new
// bodies, clear of the handle table growing from address 0.
const defaultHeapBase = 0x1000

// frame is one invoke's saved continuation. Nothing in the decoded
// microcode describes where call-frame linkage lives in stack RAM, so
// the engine keeps it host-side, the way a debugger's shadow stack
// would, rather than inventing a RAM layout the microcode never
// expresses.
type frame struct {
	jpc uint32
	vp  uint16
}

// Engine owns one of each pipeline stage for a single core and advances
// them together, one clock per Step.
type Engine struct {
	ID int

	JT  isa.JumpTable
	ROM microcode.ROM

	State core.State
	Mul   mul.Multiplier
	Fetch fetch.Unit
	Mem   *mem.Controller

	// Lock is the shared monitorenter/monitorexit lock a Supervisor
	// wires in for a multi-core build. A standalone Engine leaves it
	// nil, in which case monitor ops always succeed immediately.
	Lock *GlobalLock

	// Recorder, if set, receives a CycleRecord every cycle and an
	// ExceptionEvent whenever the memory controller raises one.
	Recorder *trace.Recorder

	Halted bool
	Err    error

	curImm    isa.ImmediateMode
	callStack []frame
	pendingExc bool

	pendingOp     microcode.MicroOp
	allocPhase    int
	allocBody     uint32
	allocLen      uint32
	pendingHandle uint32

	nextHandle uint32
	heapNext   uint32

	cycle uint64

	// pendingSnoops accumulates this core's own cache-invalidation
	// broadcasts from the memory controller, for a Supervisor to drain
	// and apply to every other core's caches at the start of the next
	// cycle.
	pendingSnoops []mem.Snoop
}

// NewEngine wires an Engine's memory controller against the given bus,
// I/O port and caches, and seeds register state at reset.
func NewEngine(id int, bus bmb.Master, io mem.IOPort, method *cache.MethodCache, object *cache.ObjectCache, array *cache.ArrayCache) *Engine {
	e := &Engine{
		ID:         id,
		JT:         isa.NewJumpTable(),
		State:      core.Reset(),
		nextHandle: 1, // 0 is reserved for null
		heapNext:   defaultHeapBase,
	}
	e.Mem = mem.NewController(bus, &e.Fetch, io, method, object, array)
	return e
}

// Reset restores a core's registers and pipeline latches to their
// power-on state without touching JBC or main memory, for a watchdog-
// triggered recovery from a hung bus rather than a full reload.
func (e *Engine) Reset() {
	e.State = core.Reset()
	e.Fetch.JPC = 0
	e.Halted = false
	e.Err = nil
	e.curImm = 0
	e.callStack = nil
	e.pendingExc = false
	e.pendingOp = microcode.OpNone
	e.allocPhase = 0
	e.cycle = 0
	e.pendingSnoops = nil
}

// Step runs one full clock for a standalone single-core engine: the
// non-bus frontend followed immediately by the bus phase. A Supervisor
// instead calls StepFrontend and StepBus separately across all of its
// cores so every core's frontend runs before any core's bus phase is
// serialized through the arbiter.
func (e *Engine) Step() error {
	e.StepFrontend()
	return e.StepBus()
}

// StepFrontend runs fetch/decode/stack for one cycle — everything that
// doesn't touch the shared bus — and reports whether this core needs the
// bus phase this cycle (a memory op was just issued, or one from an
// earlier cycle is still in flight).
func (e *Engine) StepFrontend() bool {
	if e.Halted {
		return false
	}
	if e.pendingOp != microcode.OpNone || e.allocPhase != 0 || e.Mem.Busy() {
		return true
	}
	e.cycle++

	word := e.ROM[e.State.PC]
	ctl := microcode.Decode(word, e.curImm)
	if ctl.Wait {
		e.issueMemOp(ctl)
		return true
	}
	e.stepOrdinary(word, ctl)
	return false
}

// StepBus drives the memory controller for one cycle when this core has
// a request outstanding (just issued by StepFrontend or continuing from
// a prior cycle), applying the result once the controller reports Done.
// Cores with nothing outstanding return immediately, which is exactly
// what lets a Supervisor call this once per core per cycle without
// special-casing idle cores.
func (e *Engine) StepBus() error {
	if e.Halted || e.Err != nil {
		return e.Err
	}
	if e.pendingOp == microcode.OpNone && e.allocPhase == 0 {
		return nil
	}
	out := e.Mem.Step()
	e.pendingSnoops = append(e.pendingSnoops, out.Snoops...)
	if !out.Done {
		return nil
	}
	return e.onMemDone(out)
}

// DrainSnoops returns and clears this core's queued cache-invalidation
// broadcasts, for a Supervisor to fan out to every other core.
func (e *Engine) DrainSnoops() []mem.Snoop {
	s := e.pendingSnoops
	e.pendingSnoops = nil
	return s
}

// ApplySnoop invalidates this core's object or array cache entry named
// by a broadcast queued on another core, per C9/C10's write-through
// coherency rule.
func (e *Engine) ApplySnoop(s mem.Snoop) {
	if s.IsField {
		e.Mem.Object.Snoop(s.Handle, int(s.Index))
		return
	}
	e.Mem.Array.Snoop(s.Handle, s.Index)
}

func (e *Engine) stepOrdinary(word microcode.Word, ctl microcode.Control) {
	switch ctl.Stack.Op {
	case microcode.OpReturn:
		if n := len(e.callStack); n > 0 {
			fr := e.callStack[n-1]
			e.callStack = e.callStack[:n-1]
			e.Fetch.JPC = fr.jpc
			e.State.VP = fr.vp
		} else {
			e.Halted = true
			return
		}
	}

	fout := e.Fetch.Step(e.JT, word.JFetch, word.JOpdFetch, false, e.pendingExc)
	if word.JFetch {
		e.pendingExc = false
		e.curImm = isa.Lookup(fout.Bytecode).Immediate
	}
	imm := core.ComputeImmediate(fout.Operand, e.curImm)

	if ctl.Mul.Start {
		e.Mul.Start(int32(e.State.A), int32(e.State.B))
	}
	if ctl.Mul.Read {
		e.State.MulRes = e.Mul.Read()
	}
	e.Mul.Tick()

	switch ctl.Stack.Op {
	case microcode.OpMonitorEnt:
		if e.Lock != nil && !e.Lock.TryAcquire(e.ID) {
			return // stall this cycle; retry the same microword next cycle
		}
		e.State.Pop()
	case microcode.OpMonitorExit:
		if e.Lock != nil {
			e.Lock.Release(e.ID)
		}
		e.State.Pop()
	case microcode.OpAthrow:
		e.State.Pop()
		e.pendingExc = true
	}

	out := core.Step(&e.State, ctl.Stack, imm)
	if out.Halted {
		e.Halted = true
	}

	if e.Recorder != nil {
		e.Recorder.Record(trace.CycleRecord{
			Cycle: e.cycle, JPC: e.Fetch.JPC, PC: e.State.PC,
			A: e.State.A, B: e.State.B, Flags: out.Flags, MemState: e.Mem.State(),
		})
	}

	e.State.PC = e.nextPC(word, ctl, out.Flags, fout)
}

// nextPC is C5's PC-update priority logic: a taken branch wins, then a
// jfetch dispatch to the freshly translated bytecode's entry, then plain
// sequential flow.
func (e *Engine) nextPC(word microcode.Word, ctl microcode.Control, flags core.Flags, fout fetch.Output) uint16 {
	if ctl.Branch.Taken {
		taken := true
		switch ctl.Branch.Cond {
		case microcode.CondZF:
			taken = flags.ZF
		case microcode.CondNZ:
			taken = !flags.ZF
		}
		if taken {
			if ctl.Branch.Jump {
				return uint16(int32(e.State.PC) + int32(ctl.Branch.Off9))
			}
			return uint16(int32(e.State.PC) + int32(ctl.Branch.Off6))
		}
	}
	if word.JFetch {
		if fout.Entry == isa.TrapUnimplemented {
			e.Err = fmt.Errorf("engine: core %d: unimplemented bytecode %#x at jpc %d", e.ID, fout.Bytecode, e.Fetch.JPC)
		}
		return uint16(fout.Entry)
	}
	return e.State.PC + 1
}

// issueMemOp pops this op's stack operands and issues the corresponding
// mem.Request. The allocation ops (newarray/new) instead drive a small
// host-side bump allocator across one or two writes, since nothing here
// models a collector that would otherwise own handle-table placement.
func (e *Engine) issueMemOp(ctl microcode.Control) {
	op := ctl.Stack.Op
	imm := core.ComputeImmediate(e.Fetch.Operand(), e.curImm)

	switch op {
	case microcode.OpGetField:
		e.pendingOp = op
		h := e.State.Pop()
		e.Mem.Issue(mem.Request{Kind: mem.ReqGetField, Handle: h, Field: int(ctl.Stack.DirectAddr)})
	case microcode.OpPutField:
		e.pendingOp = op
		v := e.State.Pop()
		h := e.State.Pop()
		e.Mem.Issue(mem.Request{Kind: mem.ReqPutField, Handle: h, Field: int(ctl.Stack.DirectAddr), Data: v})
	case microcode.OpIaload:
		e.pendingOp = op
		idx := e.State.Pop()
		h := e.State.Pop()
		e.Mem.Issue(mem.Request{Kind: mem.ReqIaload, Handle: h, Index: idx})
	case microcode.OpIastore:
		e.pendingOp = op
		v := e.State.Pop()
		idx := e.State.Pop()
		h := e.State.Pop()
		e.Mem.Issue(mem.Request{Kind: mem.ReqIastore, Handle: h, Index: idx, Data: v})
	case microcode.OpGetStatic:
		e.pendingOp = op
		e.Mem.Issue(mem.Request{Kind: mem.ReqGetStatic, Addr: imm})
	case microcode.OpPutStatic:
		e.pendingOp = op
		v := e.State.Pop()
		e.Mem.Issue(mem.Request{Kind: mem.ReqPutStatic, Addr: imm, Data: v})
	case microcode.OpArrayLen:
		e.pendingOp = op
		h := e.State.Pop()
		e.Mem.Issue(mem.Request{Kind: mem.ReqArrayLength, Handle: h})
	case microcode.OpInvoke:
		e.pendingOp = op
		addr := e.State.Pop()
		e.Mem.Issue(mem.Request{Kind: mem.ReqBCFill, MethodAddr: addr, MethodLen: defaultMethodLen})
	case microcode.OpCopyStart:
		e.pendingOp = op
		count := e.State.Pop()
		dst := e.State.Pop()
		src := e.State.Pop()
		e.Mem.Issue(mem.Request{Kind: mem.ReqCopy, Src: src, Dst: dst, Count: count})
	case microcode.OpNewObject:
		e.pendingOp = op
		e.pendingHandle = e.nextHandle
		e.nextHandle++
		body := e.heapNext
		e.heapNext += imm * bmb.WordBytes
		e.Mem.Issue(mem.Request{Kind: mem.ReqWrite, Addr: mem.HandleTableAddr(e.pendingHandle), Data: body})
	case microcode.OpNewArray:
		e.pendingHandle = e.nextHandle
		e.nextHandle++
		count := e.State.Pop()
		e.allocBody = e.heapNext
		e.allocLen = count
		e.heapNext += (count + 1) * bmb.WordBytes
		e.allocPhase = 1
		e.Mem.Issue(mem.Request{Kind: mem.ReqWrite, Addr: mem.HandleTableAddr(e.pendingHandle), Data: e.allocBody})
	}
}

// onMemDone applies a just-finished memory op's result: pushing a value,
// completing a two-phase allocation's next write, or splicing in a fresh
// method's bytecode for invoke, then restores ordinary sequencing.
func (e *Engine) onMemDone(out mem.Output) error {
	if out.Exception != mem.ExcNone {
		e.pendingOp = microcode.OpNone
		e.allocPhase = 0
		if e.Recorder != nil {
			e.Recorder.RecordException(trace.ExceptionEvent{Cycle: e.cycle, JPC: e.Fetch.JPC, Code: out.Exception})
		}
		fout := e.Fetch.Step(e.JT, true, false, false, true)
		e.curImm = isa.Lookup(fout.Bytecode).Immediate
		e.State.PC = uint16(fout.Entry)
		return nil
	}

	if e.allocPhase == 1 {
		e.allocPhase = 2
		e.Mem.Issue(mem.Request{Kind: mem.ReqWrite, Addr: e.allocBody, Data: e.allocLen})
		return nil
	}
	if e.allocPhase == 2 {
		e.allocPhase = 0
		e.pendingOp = microcode.OpNone
		e.State.Push(e.pendingHandle)
		e.State.PC++
		return nil
	}

	switch e.pendingOp {
	case microcode.OpGetField, microcode.OpIaload, microcode.OpGetStatic, microcode.OpArrayLen:
		e.State.Push(out.RdData)
	case microcode.OpNewObject:
		e.State.Push(e.pendingHandle)
	case microcode.OpInvoke:
		e.pendingOp = microcode.OpNone
		e.callStack = append(e.callStack, frame{jpc: e.Fetch.JPC, vp: e.State.VP})
		e.Fetch.JPC = out.BCBase * bmb.WordBytes
		fout := e.Fetch.Step(e.JT, true, false, false, false)
		e.curImm = isa.Lookup(fout.Bytecode).Immediate
		e.State.PC = uint16(fout.Entry)
		return nil
	}
	e.pendingOp = microcode.OpNone
	e.State.PC++
	return nil
}
