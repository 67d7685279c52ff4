package stats

import "testing"

func TestRegistryResetAndSnapshot(t *testing.T) {
	r := New()
	r.AddLogicalRead()
	r.AddLogicalRead()
	r.AddLogicalWrite()
	r.AddPhysicalRead()
	r.AddPhysicalWrite()
	r.AddPageFix()
	r.AddDirtyMark()

	got := r.Snapshot()
	want := Stats{
		LogicalReads:   2,
		LogicalWrites:  1,
		PhysicalReads:  1,
		PhysicalWrites: 1,
		InputCount:     1,
		OutputCount:    1,
		PageFixes:      1,
		DirtyMarks:     1,
	}
	if got != want {
		t.Fatalf("snapshot mismatch: got %+v, want %+v", got, want)
	}

	r.Reset()
	if got := r.Snapshot(); got != (Stats{}) {
		t.Fatalf("expected zero snapshot after reset, got %+v", got)
	}
}

func TestPhysicalCountersAliasInputOutput(t *testing.T) {
	r := New()
	r.AddPhysicalRead()
	r.AddPhysicalRead()
	r.AddPhysicalWrite()

	got := r.Snapshot()
	if got.PhysicalReads != got.InputCount {
		t.Fatalf("input_count should alias physical_reads: %+v", got)
	}
	if got.PhysicalWrites != got.OutputCount {
		t.Fatalf("output_count should alias physical_writes: %+v", got)
	}
}
