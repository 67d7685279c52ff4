package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunWritesHeaderAndOneRow(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "mixed.db")
	metricsPath := filepath.Join(dir, "metrics.csv")

	err := run([]string{
		"--file", dbPath,
		"--pages", "20",
		"--ops", "200",
		"--buffers", "8",
		"--policy", "lru",
		"--mix", "8:2",
		"--seed", "3",
		"--metrics", metricsPath,
	})
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "policy,read_weight") {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "lru,8,2,8,20,200") {
		t.Errorf("unexpected row: %q", lines[1])
	}
}

func TestRunSuppressesHeaderFlag(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "mixed.db")
	metricsPath := filepath.Join(dir, "metrics.csv")

	err := run([]string{
		"--file", dbPath,
		"--pages", "10",
		"--ops", "50",
		"--buffers", "4",
		"--mix", "1:1",
		"--header=false",
		"--metrics", metricsPath,
	})
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected a single data row with no header, got %d lines: %q", len(lines), lines)
	}
}

func TestRunRejectsMalformedMix(t *testing.T) {
	dir := t.TempDir()
	err := run([]string{
		"--file", filepath.Join(dir, "mixed.db"),
		"--pages", "10",
		"--ops", "10",
		"--buffers", "4",
		"--mix", "bogus",
	})
	if err == nil {
		t.Fatal("expected an error for a malformed --mix value")
	}
}
