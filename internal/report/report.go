// Package report writes the three statistics CSV schemas the benchmark
// harnesses emit, with column names fixed by spec.md 6. Plain
// column-for-column rows are exactly what stdlib encoding/csv is for; no
// repository in the pack reaches past it for this (see DESIGN.md).
package report

import (
	"encoding/csv"
	"io"
	"strconv"
)

// MixedRow is one row of the mixed read/write workload schema.
type MixedRow struct {
	Policy         string
	ReadWeight     int64
	WriteWeight    int64
	Buffers        int64
	Pages          int64
	Ops            int64
	LogicalReads   int64
	LogicalWrites  int64
	PhysicalReads  int64
	PhysicalWrites int64
	InputCount     int64
	OutputCount    int64
	PageFixes      int64
	DirtyMarks     int64
	ElapsedMs      int64
}

var mixedHeader = []string{
	"policy", "read_weight", "write_weight", "buffers", "pages", "ops",
	"logical_reads", "logical_writes", "physical_reads", "physical_writes",
	"input_count", "output_count", "page_fixes", "dirty_marks", "elapsed_ms",
}

func (r MixedRow) fields() []string {
	return []string{
		r.Policy,
		itoa(r.ReadWeight), itoa(r.WriteWeight), itoa(r.Buffers), itoa(r.Pages), itoa(r.Ops),
		itoa(r.LogicalReads), itoa(r.LogicalWrites), itoa(r.PhysicalReads), itoa(r.PhysicalWrites),
		itoa(r.InputCount), itoa(r.OutputCount), itoa(r.PageFixes), itoa(r.DirtyMarks), itoa(r.ElapsedMs),
	}
}

// SpaceRow is one row of the loader's utilization schema.
type SpaceRow struct {
	Layout          string
	MaxRecordLength int64
	Records         int64
	Pages           int64
	SpaceBytes      int64
	PayloadBytes    int64
	Utilization     float64
}

var spaceHeader = []string{
	"layout", "max_record_length", "records", "pages", "space_bytes", "payload_bytes", "utilization",
}

func (r SpaceRow) fields() []string {
	return []string{
		r.Layout,
		itoa(r.MaxRecordLength), itoa(r.Records), itoa(r.Pages), itoa(r.SpaceBytes), itoa(r.PayloadBytes),
		strconv.FormatFloat(r.Utilization, 'f', 6, 64),
	}
}

// IndexRow is one row of the index-build comparator's schema.
type IndexRow struct {
	Method         string
	Phase          string
	LogicalReads   int64
	LogicalWrites  int64
	PhysicalReads  int64
	PhysicalWrites int64
	PageFixes      int64
	DirtyMarks     int64
	ElapsedMs      int64
}

var indexHeader = []string{
	"method", "phase", "logical_reads", "logical_writes", "physical_reads", "physical_writes",
	"page_fixes", "dirty_marks", "elapsed_ms",
}

func (r IndexRow) fields() []string {
	return []string{
		r.Method, r.Phase,
		itoa(r.LogicalReads), itoa(r.LogicalWrites), itoa(r.PhysicalReads), itoa(r.PhysicalWrites),
		itoa(r.PageFixes), itoa(r.DirtyMarks), itoa(r.ElapsedMs),
	}
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

// MixedWriter emits MixedRow values as CSV, writing the header once on
// the first row.
type MixedWriter struct {
	w       *csv.Writer
	started bool
}

func NewMixedWriter(w io.Writer) *MixedWriter {
	return &MixedWriter{w: csv.NewWriter(w)}
}

// SuppressHeader marks the header row as already written, for the
// mixed harness's --header=false flag. It must be called before the
// first Write.
func (mw *MixedWriter) SuppressHeader() {
	mw.started = true
}

func (mw *MixedWriter) Write(row MixedRow) error {
	if !mw.started {
		if err := mw.w.Write(mixedHeader); err != nil {
			return err
		}
		mw.started = true
	}
	return mw.w.Write(row.fields())
}

// Flush flushes buffered rows and reports any write error encountered.
func (mw *MixedWriter) Flush() error {
	mw.w.Flush()
	return mw.w.Error()
}

// SpaceWriter emits SpaceRow values as CSV, writing the header once on
// the first row.
type SpaceWriter struct {
	w       *csv.Writer
	started bool
}

func NewSpaceWriter(w io.Writer) *SpaceWriter {
	return &SpaceWriter{w: csv.NewWriter(w)}
}

func (sw *SpaceWriter) Write(row SpaceRow) error {
	if !sw.started {
		if err := sw.w.Write(spaceHeader); err != nil {
			return err
		}
		sw.started = true
	}
	return sw.w.Write(row.fields())
}

func (sw *SpaceWriter) Flush() error {
	sw.w.Flush()
	return sw.w.Error()
}

// IndexWriter emits IndexRow values as CSV, writing the header once on
// the first row.
type IndexWriter struct {
	w       *csv.Writer
	started bool
}

func NewIndexWriter(w io.Writer) *IndexWriter {
	return &IndexWriter{w: csv.NewWriter(w)}
}

func (iw *IndexWriter) Write(row IndexRow) error {
	if !iw.started {
		if err := iw.w.Write(indexHeader); err != nil {
			return err
		}
		iw.started = true
	}
	return iw.w.Write(row.fields())
}

func (iw *IndexWriter) Flush() error {
	iw.w.Flush()
	return iw.w.Error()
}
