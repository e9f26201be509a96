package trace

import (
	"path/filepath"
	"testing"

	"github.com/jvmcore/engine/pkg/core"
	"github.com/jvmcore/engine/pkg/mem"
)

func TestRecorderAccumulatesCycles(t *testing.T) {
	r := NewRecorder()
	r.Record(CycleRecord{Cycle: 1, A: 5})
	r.Record(CycleRecord{Cycle: 2, A: 6})
	got := r.Cycles()
	if len(got) != 2 || got[1].A != 6 {
		t.Fatalf("Cycles() = %+v", got)
	}
}

func TestExceptionRingBufferWraps(t *testing.T) {
	r := NewRecorder()
	for i := 0; i < excRingSize+3; i++ {
		r.RecordException(ExceptionEvent{Cycle: uint64(i), Code: mem.ExcNP})
	}
	got := r.Exceptions()
	if len(got) != excRingSize {
		t.Fatalf("len(Exceptions()) = %d, want %d", len(got), excRingSize)
	}
	// The oldest surviving event should be cycle 3 (0,1,2 were evicted).
	if got[0].Cycle != 3 {
		t.Fatalf("oldest surviving event has cycle %d, want 3", got[0].Cycle)
	}
	if got[len(got)-1].Cycle != uint64(excRingSize+2) {
		t.Fatalf("newest event has cycle %d, want %d", got[len(got)-1].Cycle, excRingSize+2)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ckpt.gob")

	want := &Checkpoint{Cycle: 42, Cores: []core.State{core.Reset()}}
	if err := SaveCheckpoint(path, want); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	got, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if got.Cycle != want.Cycle || len(got.Cores) != 1 {
		t.Fatalf("round-tripped checkpoint = %+v", got)
	}
}

func TestLoadCheckpointMissingFile(t *testing.T) {
	if _, err := LoadCheckpoint(filepath.Join(t.TempDir(), "nope.gob")); err == nil {
		t.Fatal("expected an error for a missing checkpoint file")
	}
}
