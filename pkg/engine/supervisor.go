package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jvmcore/engine/pkg/bmb"
	"github.com/jvmcore/engine/pkg/mem"
	"github.com/jvmcore/engine/pkg/watchdog"
)

const noOwner = -1

// GlobalLock is the monitorenter/monitorexit lock shared by every core a
// Supervisor owns: one owner id, a re-entrant depth counter, and a FIFO
// queue of cores still waiting their turn.
type GlobalLock struct {
	mu      sync.Mutex
	owner   int
	depth   int
	waiters []int
}

// NewGlobalLock returns an unheld lock.
func NewGlobalLock() *GlobalLock {
	return &GlobalLock{owner: noOwner}
}

// TryAcquire never blocks: a core that loses the race is recorded in the
// FIFO wait queue and must call TryAcquire again on its own next cycle,
// the same way monitorenter stalls a pipeline rather than yielding the
// processor to a scheduler.
func (l *GlobalLock) TryAcquire(id int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.owner == noOwner {
		if len(l.waiters) > 0 && l.waiters[0] != id {
			l.enqueue(id)
			return false
		}
		l.owner = id
		l.depth = 1
		l.removeWaiter(id)
		return true
	}
	if l.owner == id {
		l.depth++
		return true
	}
	l.enqueue(id)
	return false
}

// Release gives up one level of a re-entrant hold; the lock opens to the
// front of the wait queue only once depth reaches zero.
func (l *GlobalLock) Release(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != id {
		return
	}
	l.depth--
	if l.depth == 0 {
		l.owner = noOwner
	}
}

func (l *GlobalLock) enqueue(id int) {
	for _, w := range l.waiters {
		if w == id {
			return
		}
	}
	l.waiters = append(l.waiters, id)
}

func (l *GlobalLock) removeWaiter(id int) {
	for i, w := range l.waiters {
		if w == id {
			l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
			return
		}
	}
}

// Arbiter multiplexes every core's BMB master onto one shared bus: a
// core's Fire is granted the bus the first cycle it asks and no other
// core currently holds it, and the grant is sticky (no other core's Fire
// succeeds) until that command's Last response beat arrives. There is no
// round-robin rotation: when the bus is free, whichever core calls Fire
// first wins it.
type Arbiter struct {
	bus bmb.Master

	mu    sync.Mutex
	grant int
}

// NewArbiter wraps the shared bus; cores attach through Port.
func NewArbiter(bus bmb.Master) *Arbiter {
	return &Arbiter{bus: bus, grant: noOwner}
}

// Port returns the per-core bmb.Master facade core id should use as its
// Controller's Bus.
func (a *Arbiter) Port(id int) bmb.Master {
	return &arbiterPort{a: a, core: id}
}

func (a *Arbiter) fire(core int, cmd bmb.Command) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.grant != noOwner && a.grant != core {
		return false
	}
	if a.bus.Fire(cmd) {
		a.grant = core
		return true
	}
	return false
}

func (a *Arbiter) response(core int) (bmb.Response, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.grant != core {
		return bmb.Response{}, false
	}
	resp, ok := a.bus.Response()
	if !ok {
		return resp, false
	}
	if resp.Last {
		a.grant = noOwner
	}
	return resp, true
}

type arbiterPort struct {
	a    *Arbiter
	core int
}

func (p *arbiterPort) Fire(cmd bmb.Command) bool      { return p.a.fire(p.core, cmd) }
func (p *arbiterPort) Response() (bmb.Response, bool) { return p.a.response(p.core) }

// Supervisor owns every core in a multi-core build plus the resources
// they share: the bus arbiter and the global monitor lock.
type Supervisor struct {
	Cores   []*Engine
	Arbiter *Arbiter
	Lock    *GlobalLock

	// Watchdog, if set, receives one Heartbeat per Step; a reset request
	// triggers Supervisor.Reset before the next Step runs.
	Watchdog *watchdog.Watchdog

	cycle uint64

	// snoopsByCore holds each core's cache-invalidation broadcasts from
	// the cycle just finished, indexed the same as Cores. They are
	// applied to every *other* core's caches at the start of the next
	// Step, not the one that produced them, matching C9/C10's
	// write-through rule that a writer's own cache entry stays valid.
	snoopsByCore [][]mem.Snoop
}

// NewSupervisor wires n cores against one shared bus, giving each its
// own arbitrated BMB port and the common GlobalLock.
func NewSupervisor(cores []*Engine, bus bmb.Master) *Supervisor {
	s := &Supervisor{Cores: cores, Arbiter: NewArbiter(bus), Lock: NewGlobalLock()}
	for _, c := range cores {
		c.Mem.Bus = s.Arbiter.Port(c.ID)
		c.Lock = s.Lock
	}
	return s
}

// Step runs one clock across every core. It first applies the prior
// cycle's cache-invalidation snoops to every core but the one that
// issued them, then each core's non-bus-visible frontend (fetch/decode/
// stack) runs concurrently via an errgroup, then every core's bus phase
// runs one after another in core-index order — mirroring a
// worker pool's fan-out/join shape, generalized from independent tasks
// to independent cores synchronized once a cycle.
func (s *Supervisor) Step(ctx context.Context) error {
	for origin, snoops := range s.snoopsByCore {
		for _, sn := range snoops {
			for i, c := range s.Cores {
				if i == origin {
					continue
				}
				c.ApplySnoop(sn)
			}
		}
	}

	g, _ := errgroup.WithContext(ctx)
	needsBus := make([]bool, len(s.Cores))
	for i, c := range s.Cores {
		i, c := i, c
		g.Go(func() error {
			needsBus[i] = c.StepFrontend()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, c := range s.Cores {
		if !needsBus[i] {
			continue
		}
		if err := c.StepBus(); err != nil {
			return err
		}
	}

	s.snoopsByCore = make([][]mem.Snoop, len(s.Cores))
	for i, c := range s.Cores {
		s.snoopsByCore[i] = c.DrainSnoops()
	}

	s.cycle++
	if s.Watchdog != nil {
		reset, err := s.Watchdog.Heartbeat(s.cycle)
		if err != nil {
			return err
		}
		if reset {
			s.Reset()
		}
	}
	return nil
}

// Halted reports whether every core has stopped.
func (s *Supervisor) Halted() bool {
	for _, c := range s.Cores {
		if !c.Halted {
			return false
		}
	}
	return true
}

// Reset restores every core to its power-on state and releases the
// global lock, for a watchdog-triggered recovery from a hung bus.
func (s *Supervisor) Reset() {
	for _, c := range s.Cores {
		c.Reset()
	}
	s.Lock = NewGlobalLock()
	for _, c := range s.Cores {
		c.Lock = s.Lock
	}
	s.cycle = 0
	s.snoopsByCore = nil
}
