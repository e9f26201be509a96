// Package trace records per-cycle execution history and persists engine
// checkpoints with encoding/gob, the way result.Checkpoint persists a
// search's progress.
package trace

import (
	"encoding/gob"
	"fmt"
	"os"
	"sync"

	"github.com/jvmcore/engine/pkg/core"
	"github.com/jvmcore/engine/pkg/mem"
)

func init() {
	gob.Register(core.State{})
	gob.Register(core.Flags{})
}

// CycleRecord is one cycle's visible register/flag state, recorded when
// a Recorder is attached to an engine.
type CycleRecord struct {
	Cycle    uint64
	JPC      uint32
	PC       uint16
	A, B     uint32
	Flags    core.Flags
	MemState mem.State
}

// ExceptionEvent is one NP/AB exception: the code, the JPC at fault, and
// the cycle it happened on. Hardware itself keeps no such memory — it
// only ever surfaces the current exception through one I/O register and
// the next fetch — but a host harness wants the history for post-mortem.
type ExceptionEvent struct {
	Cycle uint64
	JPC   uint32
	Code  mem.ExcCode
}

// excRingSize bounds the exception ring buffer so a runaway faulting
// loop can't grow memory without bound.
const excRingSize = 256

// Recorder accumulates cycle records and a ring buffer of exception
// events, guarded by a mutex the way result.Table guards its rule slice.
type Recorder struct {
	mu         sync.Mutex
	cycles     []CycleRecord
	exceptions []ExceptionEvent
	excNext    int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{exceptions: make([]ExceptionEvent, 0, excRingSize)}
}

// Record appends one cycle's record.
func (r *Recorder) Record(rec CycleRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, rec)
}

// RecordException pushes onto the ring buffer, overwriting the oldest
// entry once it's full.
func (r *Recorder) RecordException(e ExceptionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.exceptions) < excRingSize {
		r.exceptions = append(r.exceptions, e)
		return
	}
	r.exceptions[r.excNext] = e
	r.excNext = (r.excNext + 1) % excRingSize
}

// Cycles returns a copy of the recorded cycle history.
func (r *Recorder) Cycles() []CycleRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CycleRecord, len(r.cycles))
	copy(out, r.cycles)
	return out
}

// Exceptions returns the ring buffer contents in chronological order.
func (r *Recorder) Exceptions() []ExceptionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.exceptions) < excRingSize {
		out := make([]ExceptionEvent, len(r.exceptions))
		copy(out, r.exceptions)
		return out
	}
	out := make([]ExceptionEvent, excRingSize)
	copy(out, r.exceptions[r.excNext:])
	copy(out[excRingSize-r.excNext:], r.exceptions[:r.excNext])
	return out
}

// Checkpoint is the state needed to resume a run: the per-core register
// snapshots and the cycle counter they were taken at.
type Checkpoint struct {
	Cycle uint64
	Cores []core.State
}

// SaveCheckpoint writes ckpt to path with gob, as result.SaveCheckpoint
// does for a search table.
func SaveCheckpoint(path string, ckpt *Checkpoint) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("trace: create checkpoint: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(ckpt); err != nil {
		return fmt.Errorf("trace: encode checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint previously written by SaveCheckpoint.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("trace: open checkpoint: %w", err)
	}
	defer f.Close()
	var ckpt Checkpoint
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, fmt.Errorf("trace: decode checkpoint: %w", err)
	}
	return &ckpt, nil
}
