// Package mixed implements the random-access read/write driver of
// spec.md 4.5(a): extend a file to P pages, then issue N operations that
// each pick a page uniformly at random and, with probability R/(R+W),
// read it clean or overwrite-and-dirty it. Grounded on the teacher's
// table/table.go insertion-loop style (a tight loop driving the paged
// file directly) and on SimonWaldherr-tinySQL's benchmark shape of
// "open a backend, run N operations, measure."
package mixed

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/tksm/pagedb/buffer"
	"github.com/tksm/pagedb/disk"
	"github.com/tksm/pagedb/internal/report"
	"github.com/tksm/pagedb/pager"
	"github.com/tksm/pagedb/stats"
)

// Params configures one run of the mixed workload.
type Params struct {
	Path        string
	Pages       int
	Ops         int
	Buffers     int
	Policy      buffer.Policy
	ReadWeight  int
	WriteWeight int
	Seed        uint64

	// Registry and Log are optional; a fresh registry and a no-op logger
	// are used when nil.
	Registry *stats.Registry
	Log      *zap.SugaredLogger
}

// Run executes the workload described by p and returns the CSV row
// summarizing it.
func Run(p Params) (report.MixedRow, error) {
	if p.Pages <= 0 {
		return report.MixedRow{}, fmt.Errorf("mixed: pages must be positive, got %d", p.Pages)
	}
	if p.ReadWeight < 0 || p.WriteWeight < 0 || p.ReadWeight+p.WriteWeight == 0 {
		return report.MixedRow{}, fmt.Errorf("mixed: read:write mix must have a positive total, got %d:%d", p.ReadWeight, p.WriteWeight)
	}

	reg := p.Registry
	if reg == nil {
		reg = stats.New()
	}

	mgr := pager.NewManager(p.Buffers, reg, p.Log)
	if err := mgr.Create(p.Path); err != nil {
		return report.MixedRow{}, fmt.Errorf("mixed: create %s: %w", p.Path, err)
	}
	f, err := mgr.OpenWithPolicy(p.Path, p.Policy)
	if err != nil {
		return report.MixedRow{}, fmt.Errorf("mixed: open %s: %w", p.Path, err)
	}
	defer f.Close()

	pageIDs := make([]disk.PageID, p.Pages)
	for i := 0; i < p.Pages; i++ {
		id, page, err := f.AllocPage()
		if err != nil {
			return report.MixedRow{}, fmt.Errorf("mixed: alloc page %d: %w", i, err)
		}
		binary.LittleEndian.PutUint64(page.Bytes()[0:8], uint64(i))
		if err := f.UnfixPage(id, true); err != nil {
			return report.MixedRow{}, fmt.Errorf("mixed: unfix page %d: %w", i, err)
		}
		pageIDs[i] = id
	}

	// Only the N measured operations below count toward the emitted row;
	// the counters reset here so extension writes don't pollute it.
	reg.Reset()

	rnd := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	total := p.ReadWeight + p.WriteWeight

	start := time.Now()
	for i := 0; i < p.Ops; i++ {
		pid := pageIDs[rnd.IntN(p.Pages)]
		page, err := f.GetThisPage(pid)
		if err != nil && !errors.Is(err, pager.ErrAlreadyPinned) {
			return report.MixedRow{}, fmt.Errorf("mixed: fetch page %d: %w", pid, err)
		}
		if rnd.IntN(total) < p.ReadWeight {
			if err := f.UnfixPage(pid, false); err != nil {
				return report.MixedRow{}, fmt.Errorf("mixed: unfix read %d: %w", pid, err)
			}
			continue
		}
		binary.LittleEndian.PutUint32(page.Bytes()[0:4], uint32(i))
		if err := f.UnfixPage(pid, true); err != nil {
			return report.MixedRow{}, fmt.Errorf("mixed: unfix write %d: %w", pid, err)
		}
	}
	elapsed := time.Since(start)

	snap := reg.Snapshot()
	return report.MixedRow{
		Policy:         p.Policy.String(),
		ReadWeight:     int64(p.ReadWeight),
		WriteWeight:    int64(p.WriteWeight),
		Buffers:        int64(p.Buffers),
		Pages:          int64(p.Pages),
		Ops:            int64(p.Ops),
		LogicalReads:   snap.LogicalReads,
		LogicalWrites:  snap.LogicalWrites,
		PhysicalReads:  snap.PhysicalReads,
		PhysicalWrites: snap.PhysicalWrites,
		InputCount:     snap.InputCount,
		OutputCount:    snap.OutputCount,
		PageFixes:      snap.PageFixes,
		DirtyMarks:     snap.DirtyMarks,
		ElapsedMs:      elapsed.Milliseconds(),
	}, nil
}
