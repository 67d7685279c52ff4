package report

import (
	"strings"
	"testing"
)

func TestMixedWriterHeaderOncePerWriter(t *testing.T) {
	var buf strings.Builder
	mw := NewMixedWriter(&buf)
	if err := mw.Write(MixedRow{Policy: "lru", Ops: 12000, LogicalReads: 9000, LogicalWrites: 3000}); err != nil {
		t.Fatal(err)
	}
	if err := mw.Write(MixedRow{Policy: "mru", Ops: 12000}); err != nil {
		t.Fatal(err)
	}
	if err := mw.Flush(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines: %q", len(lines), lines)
	}
	if lines[0] != strings.Join(mixedHeader, ",") {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "lru,") {
		t.Errorf("unexpected first row: %q", lines[1])
	}
}

func TestMixedWriterSuppressHeader(t *testing.T) {
	var buf strings.Builder
	mw := NewMixedWriter(&buf)
	mw.SuppressHeader()
	if err := mw.Write(MixedRow{Policy: "lru", Ops: 50}); err != nil {
		t.Fatal(err)
	}
	if err := mw.Flush(); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected a single data row with no header, got %d lines: %q", len(lines), lines)
	}
}

func TestSpaceWriterUtilizationFormatting(t *testing.T) {
	var buf strings.Builder
	sw := NewSpaceWriter(&buf)
	row := SpaceRow{
		Layout:          "slotted",
		MaxRecordLength: 64,
		Records:         857,
		Pages:           20,
		SpaceBytes:      20 * 4096,
		PayloadBytes:    54848,
		Utilization:     54848.0 / float64(20*4096),
	}
	if err := sw.Write(row); err != nil {
		t.Fatal(err)
	}
	if err := sw.Flush(); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %q", lines)
	}
	if lines[0] != strings.Join(spaceHeader, ",") {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], ",0.669531") {
		t.Errorf("expected utilization formatted to six decimals, got row %q", lines[1])
	}
}

func TestIndexWriterSixRowsRoundTrip(t *testing.T) {
	var buf strings.Builder
	iw := NewIndexWriter(&buf)
	methods := []string{"original", "shuffled", "bulk"}
	for _, m := range methods {
		if err := iw.Write(IndexRow{Method: m, Phase: "build"}); err != nil {
			t.Fatal(err)
		}
		if err := iw.Write(IndexRow{Method: m, Phase: "query"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := iw.Flush(); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 7 {
		t.Fatalf("expected header + 6 rows, got %d: %q", len(lines), lines)
	}
}
