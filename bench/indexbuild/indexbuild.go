// Package indexbuild implements the index-construction comparator of
// spec.md 4.5(c): build the same (rollNumber, recordId) pairs through the
// external B+-tree collaborator in three orderings — original, Fisher–
// Yates shuffled, and sorted ascending — then replay the same Q
// uniformly-sampled equality queries against each, emitting six CSV rows
// ({method} x {build, query}). The "bulk" method is sorted-ascending
// insertion through the ordinary BTree.Insert path, not a bottom-up bulk
// build. Grounded on the teacher's table.go
// insertion-loop style, now driving btree.BTree directly instead of
// going through the SQL table/tuple layer.
package indexbuild

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tksm/pagedb/btree"
	"github.com/tksm/pagedb/btree/memcmpable"
	"github.com/tksm/pagedb/buffer"
	"github.com/tksm/pagedb/internal/report"
	"github.com/tksm/pagedb/pager"
	"github.com/tksm/pagedb/stats"
)

// pair is one (rollNumber, recordId) record read from the dataset.
type pair struct {
	rollNumber int64
	recordID   []byte
}

// Params configures one run of the comparator.
type Params struct {
	DataPath string
	RelBase  string
	Queries  int
	Buffers  int
	Policy   buffer.Policy
	Seed     uint64

	Registry *stats.Registry
	Log      *zap.SugaredLogger
}

// method is sorted-incremental insertion, not a true bottom-up bulk
// build; the "bulk" label is kept only for CSV-schema compatibility with
// the other two methods (see DESIGN.md's Open Question log).
const (
	methodOriginal = "original"
	methodShuffled = "shuffled"
	methodBulk     = "bulk"
)

// Run builds and queries an index for each of the three orderings and
// returns the six resulting rows in {method} x {build, query} order.
func Run(p Params) ([]report.IndexRow, error) {
	if p.Queries < 0 {
		return nil, fmt.Errorf("indexbuild: queries must be non-negative, got %d", p.Queries)
	}
	pairs, err := readPairs(p.DataPath)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("indexbuild: dataset %s produced no (rollNumber, recordId) pairs", p.DataPath)
	}

	rnd := rand.New(rand.NewPCG(p.Seed, p.Seed^0x9e3779b97f4a7c15))
	queryKeys := sampleKeys(pairs, p.Queries, rnd)

	orderings := []struct {
		method string
		data   []pair
	}{
		{methodOriginal, pairs},
		{methodShuffled, shuffled(pairs, rnd)},
		{methodBulk, sortedAscending(pairs)},
	}

	reg := p.Registry
	if reg == nil {
		reg = stats.New()
	}
	mgr := pager.NewManager(p.Buffers, reg, p.Log)

	var rows []report.IndexRow
	for _, ord := range orderings {
		buildRow, queryRow, err := runOneOrdering(mgr, reg, p.RelBase, ord.method, ord.data, queryKeys, p.Policy)
		if err != nil {
			return nil, err
		}
		rows = append(rows, buildRow, queryRow)
	}
	return rows, nil
}

func runOneOrdering(mgr *pager.Manager, reg *stats.Registry, relBase, method string, data []pair, queryKeys []int64, policy buffer.Policy) (report.IndexRow, report.IndexRow, error) {
	path := relBase + "." + method + ".idx"
	_ = mgr.Destroy(path) // absent on the first run; destruction failure is not fatal

	if err := mgr.Create(path); err != nil {
		return report.IndexRow{}, report.IndexRow{}, fmt.Errorf("indexbuild: create %s: %w", path, err)
	}
	f, err := mgr.OpenWithPolicy(path, policy)
	if err != nil {
		return report.IndexRow{}, report.IndexRow{}, fmt.Errorf("indexbuild: open %s: %w", path, err)
	}
	defer f.Close()

	bt, err := btree.CreateBTree(f)
	if err != nil {
		return report.IndexRow{}, report.IndexRow{}, fmt.Errorf("indexbuild: create index %s: %w", path, err)
	}

	reg.Reset()
	start := time.Now()
	for _, pr := range data {
		if err := bt.Insert(f, encodeKey(pr.rollNumber), pr.recordID); err != nil {
			return report.IndexRow{}, report.IndexRow{}, fmt.Errorf("indexbuild: insert roll %d: %w", pr.rollNumber, err)
		}
	}
	buildElapsed := time.Since(start)
	buildSnap := reg.Snapshot()
	buildRow := report.IndexRow{
		Method: method, Phase: "build",
		LogicalReads: buildSnap.LogicalReads, LogicalWrites: buildSnap.LogicalWrites,
		PhysicalReads: buildSnap.PhysicalReads, PhysicalWrites: buildSnap.PhysicalWrites,
		PageFixes: buildSnap.PageFixes, DirtyMarks: buildSnap.DirtyMarks,
		ElapsedMs: buildElapsed.Milliseconds(),
	}

	reg.Reset()
	start = time.Now()
	for _, key := range queryKeys {
		iter, err := bt.Search(f, btree.NewSearchModeKey(encodeKey(key)))
		if err != nil {
			return report.IndexRow{}, report.IndexRow{}, fmt.Errorf("indexbuild: query roll %d: %w", key, err)
		}
		iter.Get()
		if err := iter.Close(); err != nil {
			return report.IndexRow{}, report.IndexRow{}, fmt.Errorf("indexbuild: close query iterator: %w", err)
		}
	}
	queryElapsed := time.Since(start)
	querySnap := reg.Snapshot()
	queryRow := report.IndexRow{
		Method: method, Phase: "query",
		LogicalReads: querySnap.LogicalReads, LogicalWrites: querySnap.LogicalWrites,
		PhysicalReads: querySnap.PhysicalReads, PhysicalWrites: querySnap.PhysicalWrites,
		PageFixes: querySnap.PageFixes, DirtyMarks: querySnap.DirtyMarks,
		ElapsedMs: queryElapsed.Milliseconds(),
	}
	return buildRow, queryRow, nil
}

// readPairs reads (rollNumber, recordId) pairs by splitting each
// non-blank line on ';' and taking field index 0 as the roll number and
// field index 1 as the record id.
func readPairs(path string) ([]pair, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("indexbuild: open dataset %s: %w", path, err)
	}
	defer file.Close()

	var pairs []pair
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ";")
		if len(fields) < 2 {
			continue
		}
		roll, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			continue
		}
		pairs = append(pairs, pair{rollNumber: roll, recordID: []byte(fields[1])})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("indexbuild: scan dataset %s: %w", path, err)
	}
	return pairs, nil
}

// shuffled returns a Fisher–Yates shuffled copy of pairs.
func shuffled(pairs []pair, rnd *rand.Rand) []pair {
	out := make([]pair, len(pairs))
	copy(out, pairs)
	for i := len(out) - 1; i > 0; i-- {
		j := rnd.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// sortedAscending returns pairs sorted by rollNumber ascending.
func sortedAscending(pairs []pair) []pair {
	out := make([]pair, len(pairs))
	copy(out, pairs)
	sort.Slice(out, func(i, j int) bool { return out[i].rollNumber < out[j].rollNumber })
	return out
}

// sampleKeys draws Q roll numbers uniformly at random (with replacement)
// from pairs, identically for all three orderings since it is computed
// once from the common pair set before any index is built.
func sampleKeys(pairs []pair, q int, rnd *rand.Rand) []int64 {
	keys := make([]int64, q)
	for i := range keys {
		keys[i] = pairs[rnd.IntN(len(pairs))].rollNumber
	}
	return keys
}

// encodeKey renders a roll number as a memcmp-comparable byte string so
// the B+-tree's byte-lexicographic key ordering matches integer order.
func encodeKey(rollNumber int64) []byte {
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, uint64(rollNumber))
	var enc []byte
	memcmpable.Encode(raw, &enc)
	return enc
}
