package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDataset(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%08d\n", i)
	}
	path := filepath.Join(t.TempDir(), "records.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunWritesSlottedAndStaticRows(t *testing.T) {
	dir := t.TempDir()
	data := writeDataset(t, 300)
	metricsPath := filepath.Join(dir, "metrics.csv")

	err := run([]string{
		"--data", data,
		"--out", filepath.Join(dir, "loader.db"),
		"--delete-step", "7",
		"--buffers", "16",
		"--static-lens", "16,64",
		"--metrics", metricsPath,
	})
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows (slotted + 2 static), got %d: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[1], "slotted,") {
		t.Errorf("expected first data row to be the slotted layout, got %q", lines[1])
	}
}

func TestRunNoDeleteFlagOverridesStep(t *testing.T) {
	dir := t.TempDir()
	data := writeDataset(t, 50)
	metricsPath := filepath.Join(dir, "metrics.csv")

	err := run([]string{
		"--data", data,
		"--out", filepath.Join(dir, "loader.db"),
		"--delete-step", "3",
		"--no-delete",
		"--buffers", "8",
		"--metrics", metricsPath,
	})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), ",50,") {
		t.Errorf("expected all 50 records to survive with --no-delete, got %q", raw)
	}
}
