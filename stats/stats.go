// Package stats provides the process-wide counters the storage engine
// exports so benchmark harnesses can compare observed I/O against
// textbook cost formulas.
package stats

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Registry holds the eight monotonic counters of spec.md 4.1. The zero
// value is ready to use. Reads are cheap and need not be atomic with
// respect to writes; callers always snapshot after quiescence.
type Registry struct {
	logicalReads   atomic.Int64
	logicalWrites  atomic.Int64
	physicalReads  atomic.Int64
	physicalWrites atomic.Int64
	inputCount     atomic.Int64
	outputCount    atomic.Int64
	pageFixes      atomic.Int64
	dirtyMarks     atomic.Int64
}

// Stats is an immutable snapshot of a Registry.
type Stats struct {
	LogicalReads   int64
	LogicalWrites  int64
	PhysicalReads  int64
	PhysicalWrites int64
	InputCount     int64
	OutputCount    int64
	PageFixes      int64
	DirtyMarks     int64
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{}
}

func (r *Registry) AddLogicalRead()   { r.logicalReads.Add(1) }
func (r *Registry) AddLogicalWrite()  { r.logicalWrites.Add(1) }
func (r *Registry) AddPhysicalRead()  { r.physicalReads.Add(1); r.inputCount.Add(1) }
func (r *Registry) AddPhysicalWrite() { r.physicalWrites.Add(1); r.outputCount.Add(1) }
func (r *Registry) AddPageFix()       { r.pageFixes.Add(1) }
func (r *Registry) AddDirtyMark()     { r.dirtyMarks.Add(1) }

// Reset zeroes every counter.
func (r *Registry) Reset() {
	r.logicalReads.Store(0)
	r.logicalWrites.Store(0)
	r.physicalReads.Store(0)
	r.physicalWrites.Store(0)
	r.inputCount.Store(0)
	r.outputCount.Store(0)
	r.pageFixes.Store(0)
	r.dirtyMarks.Store(0)
}

// Snapshot reads every counter into a Stats value.
func (r *Registry) Snapshot() Stats {
	return Stats{
		LogicalReads:   r.logicalReads.Load(),
		LogicalWrites:  r.logicalWrites.Load(),
		PhysicalReads:  r.physicalReads.Load(),
		PhysicalWrites: r.physicalWrites.Load(),
		InputCount:     r.inputCount.Load(),
		OutputCount:    r.outputCount.Load(),
		PageFixes:      r.pageFixes.Load(),
		DirtyMarks:     r.dirtyMarks.Load(),
	}
}

// PrintTo writes a human-readable rendering of the current snapshot.
func (r *Registry) PrintTo(w io.Writer) {
	s := r.Snapshot()
	fmt.Fprintf(w, "logical_reads=%d logical_writes=%d physical_reads=%d physical_writes=%d input_count=%d output_count=%d page_fixes=%d dirty_marks=%d\n",
		s.LogicalReads, s.LogicalWrites, s.PhysicalReads, s.PhysicalWrites,
		s.InputCount, s.OutputCount, s.PageFixes, s.DirtyMarks)
}

// Default is a convenience registry for single-actor callers that don't
// want to thread a *Registry through every call. Library code should take a *Registry explicitly instead.
var Default = New()
