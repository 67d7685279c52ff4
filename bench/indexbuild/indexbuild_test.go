package indexbuild

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tksm/pagedb/btree"
	"github.com/tksm/pagedb/buffer"
	"github.com/tksm/pagedb/disk"
	"github.com/tksm/pagedb/pager"
	"github.com/tksm/pagedb/stats"
)

// metaPageID is the page id CreateBTree always allocates first (page 1,
// right after the header page) on a brand-new file.
const metaPageID = disk.PageID(1)

func writeDataset(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d;rec-%d;extra-field\n", i, i)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunProducesSixRows(t *testing.T) {
	data := writeDataset(t, 200)
	relBase := filepath.Join(t.TempDir(), "students")

	rows, err := Run(Params{
		DataPath: data,
		RelBase:  relBase,
		Queries:  50,
		Buffers:  32,
		Policy:   buffer.LRU,
		Seed:     42,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(rows))
	}

	wantMethods := map[string]int{"original": 0, "shuffled": 0, "bulk": 0}
	for _, r := range rows {
		if r.Phase != "build" && r.Phase != "query" {
			t.Errorf("unexpected phase %q", r.Phase)
		}
		if _, ok := wantMethods[r.Method]; !ok {
			t.Errorf("unexpected method %q", r.Method)
		}
		wantMethods[r.Method]++
	}
	for m, count := range wantMethods {
		if count != 2 {
			t.Errorf("expected 2 rows (build+query) for method %q, got %d", m, count)
		}
	}
}

func TestThreeOrderingsAgreeOnQueryVerdicts(t *testing.T) {
	data := writeDataset(t, 120)
	relBase := filepath.Join(t.TempDir(), "students")

	_, err := Run(Params{
		DataPath: data,
		RelBase:  relBase,
		Queries:  30,
		Buffers:  16,
		Policy:   buffer.LRU,
		Seed:     7,
	})
	if err != nil {
		t.Fatal(err)
	}

	probeKeys := []int64{0, 1, 59, 119, 999}
	var reference map[int64]bool
	for _, method := range []string{methodOriginal, methodShuffled, methodBulk} {
		path := relBase + "." + method + ".idx"
		mgr := pager.NewManager(16, stats.New(), nil)
		f, err := mgr.Open(path)
		if err != nil {
			t.Fatalf("%s: open: %v", method, err)
		}
		bt := btree.NewBTree(metaPageID)

		found := map[int64]bool{}
		for _, k := range probeKeys {
			iter, err := bt.Search(f, btree.NewSearchModeKey(encodeKey(k)))
			if err != nil {
				t.Fatalf("%s: search %d: %v", method, k, err)
			}
			_, _, ok := iter.Get()
			iter.Close()
			found[k] = ok
		}
		f.Close()

		if reference == nil {
			reference = found
		} else {
			for k, ok := range found {
				if reference[k] != ok {
					t.Errorf("method %s disagrees with reference on key %d: got %v, want %v", method, k, ok, reference[k])
				}
			}
		}
	}
}
