package engine

import (
	"context"
	"testing"

	"github.com/jvmcore/engine/pkg/bmb"
	"github.com/jvmcore/engine/pkg/cache"
	"github.com/jvmcore/engine/pkg/mem"
	"github.com/jvmcore/engine/pkg/microcode"
)

func newSupervisorEngine(id int, bus bmb.Master) *Engine {
	return NewEngine(id, bus, mem.NullIOPort{},
		cache.NewMethodCache(cache.NumBlocks*cache.ElementsPerLine*bmb.WordBytes),
		&cache.ObjectCache{}, &cache.ArrayCache{})
}

// TestArbiterGrantIsStickyUntilLast checks that once a core's Fire is
// accepted, a second core's Fire against the same Arbiter is refused
// until the first core's in-flight command responds with Last.
func TestArbiterGrantIsStickyUntilLast(t *testing.T) {
	bus := bmb.NewSimMemory(64)
	a := NewArbiter(bus)
	p0 := a.Port(0)
	p1 := a.Port(1)

	if !p0.Fire(bmb.Command{Addr: 0, Op: bmb.Opcode(bmb.Read), Last: true}) {
		t.Fatal("core 0's first Fire should be granted the bus")
	}
	if p1.Fire(bmb.Command{Addr: 4, Op: bmb.Opcode(bmb.Read), Last: true}) {
		t.Fatal("core 1's Fire should be refused while core 0 holds the grant")
	}

	resp, ok := p0.Response()
	if !ok || !resp.Last {
		t.Fatalf("expected a Last response for core 0, got %+v ok=%v", resp, ok)
	}

	if !p1.Fire(bmb.Command{Addr: 4, Op: bmb.Opcode(bmb.Read), Last: true}) {
		t.Fatal("core 1's Fire should be granted once core 0's command completed")
	}
}

// TestGlobalLockIsReentrantAndFIFO exercises monitorenter/monitorexit
// semantics directly against GlobalLock: the owner can reacquire, a
// second core is refused until Release drops the hold count to zero.
func TestGlobalLockIsReentrantAndFIFO(t *testing.T) {
	lock := NewGlobalLock()

	if !lock.TryAcquire(0) {
		t.Fatal("an unheld lock should grant immediately")
	}
	if !lock.TryAcquire(0) {
		t.Fatal("the owner should be able to reacquire (nested monitorenter)")
	}
	if lock.TryAcquire(1) {
		t.Fatal("a non-owner should be refused while the lock is held")
	}
	if lock.TryAcquire(2) {
		t.Fatal("a second non-owner should be refused and queued behind core 1")
	}

	lock.Release(0) // depth 2 -> 1, still held
	if lock.TryAcquire(1) {
		t.Fatal("lock should still be held after only one Release")
	}

	lock.Release(0) // depth 1 -> 0, now free
	if lock.TryAcquire(2) {
		t.Fatal("core 2 must not jump ahead of core 1 in the wait queue")
	}
	if !lock.TryAcquire(1) {
		t.Fatal("lock should be acquirable once the owner fully releases it")
	}
}

// TestSupervisorStepArbitratesTwoCores drives two idle engines through
// one Supervisor cycle and checks Step doesn't error and Halted reports
// false while both cores are still fetching.
func TestSupervisorStepArbitratesTwoCores(t *testing.T) {
	bus := bmb.NewSimMemory(256)
	e0 := newSupervisorEngine(0, bus)
	e1 := newSupervisorEngine(1, bus)
	e0.ROM[0] = microcode.Word{JFetch: true}
	e1.ROM[0] = microcode.Word{JFetch: true}

	sup := NewSupervisor([]*Engine{e0, e1}, bus)
	if sup.Arbiter == nil || sup.Lock == nil {
		t.Fatal("NewSupervisor should wire an Arbiter and a GlobalLock")
	}
	if e0.Lock != sup.Lock || e1.Lock != sup.Lock {
		t.Fatal("every core should share the Supervisor's GlobalLock")
	}

	if err := sup.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if sup.Halted() {
		t.Fatal("neither core has reached OpReturn with an empty call stack yet")
	}
}

// TestSupervisorBroadcastsSnoopToOtherCoresOnly exercises the literal
// cross-core coherency scenario: one core's array write invalidates
// every other core's cached copy of that element, but leaves the
// writer's own (already-current) entry alone.
func TestSupervisorBroadcastsSnoopToOtherCoresOnly(t *testing.T) {
	bus := bmb.NewSimMemory(64)
	e0 := newSupervisorEngine(0, bus)
	e1 := newSupervisorEngine(1, bus)
	sup := NewSupervisor([]*Engine{e0, e1}, bus)

	primeArray := func(e *Engine, handle, index, val uint32) {
		idx := e.Mem.Array.BeginFill(handle, index)
		e.Mem.Array.StoreFillWord(idx, int(index%cache.ElementsPerLine), val)
		e.Mem.Array.CommitFill(idx)
	}
	primeArray(e0, 9, 3, 99) // the writer's own freshly-written copy
	primeArray(e1, 9, 3, 7)  // another core's stale copy

	// Queued as if core 0 just finished an iastore to arr[3] last cycle.
	sup.snoopsByCore = [][]mem.Snoop{
		{{Handle: 9, Index: 3, IsField: false}},
		nil,
	}

	e0.ROM[0] = microcode.Word{JFetch: true}
	e1.ROM[0] = microcode.Word{JFetch: true}
	if err := sup.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if v, hit := e0.Mem.Array.Lookup(9, 3); !hit || v != 99 {
		t.Fatalf("writer core's own cache entry must survive its own snoop broadcast, hit=%v v=%d", hit, v)
	}
	if _, hit := e1.Mem.Array.Lookup(9, 3); hit {
		t.Fatal("other core's stale cache entry must be invalidated by the broadcast snoop")
	}
}

// TestMonitorEnterStallsSecondCore models two cores contending the same
// GlobalLock through real OpMonitorEnt microwords: the loser keeps
// retrying the same instruction until the holder releases.
func TestMonitorEnterStallsSecondCore(t *testing.T) {
	bus := bmb.NewSimMemory(64)
	e0 := newSupervisorEngine(0, bus)
	e1 := newSupervisorEngine(1, bus)
	lock := NewGlobalLock()
	e0.Lock, e1.Lock = lock, lock

	e0.ROM[5] = microcode.Word{Op: microcode.OpMonitorEnt}
	e1.ROM[5] = microcode.Word{Op: microcode.OpMonitorEnt}
	e0.State.PC, e1.State.PC = 5, 5
	e0.State.Push(1)
	e1.State.Push(1)

	e0.stepOrdinary(e0.ROM[5], microcode.Decode(e0.ROM[5], e0.curImm))
	if lock.owner != 0 {
		t.Fatal("core 0 should hold the lock after its monitorenter")
	}

	spBefore := e1.State.SP
	e1.stepOrdinary(e1.ROM[5], microcode.Decode(e1.ROM[5], e1.curImm))
	if e1.State.SP != spBefore {
		t.Fatal("core 1's monitorenter should stall without popping its operand")
	}
	if e1.State.PC != 5 {
		t.Fatal("core 1's PC should not advance while the lock is held")
	}

	lock.Release(0)
	e1.stepOrdinary(e1.ROM[5], microcode.Decode(e1.ROM[5], e1.curImm))
	if e1.State.SP != spBefore-1 {
		t.Fatal("core 1 should succeed and pop its operand once the lock is free")
	}
}
