// Command bench-mixed drives the random read/write mix harness of
// bench/mixed and writes the resulting CSV row to --metrics (or
// standard output). Flag parsing follows tuannm99-novasql's cmd/client
// style of flat flag.* declarations, generalized to github.com/spf13/
// pflag's long-form GNU flags and layered over optional YAML defaults
// loaded through internal/config.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/tksm/pagedb/bench/mixed"
	"github.com/tksm/pagedb/buffer"
	"github.com/tksm/pagedb/internal/config"
	"github.com/tksm/pagedb/internal/obs"
	"github.com/tksm/pagedb/internal/report"
	"github.com/tksm/pagedb/stats"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bench-mixed: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("bench-mixed", pflag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML defaults file")
	file := fs.String("file", "", "paged file to create and exercise")
	pages := fs.Int("pages", 0, "page count to extend the file to before the measured run")
	ops := fs.Int("ops", 0, "number of read/write operations to perform")
	buffers := fs.Int("buffers", 0, "buffer pool capacity in frames")
	policyFlag := fs.String("policy", "lru", "replacement policy: lru or mru")
	mix := fs.String("mix", "8:2", "read:write weight, e.g. 8:2")
	seed := fs.Int64("seed", 1, "PRNG seed for page selection and read/write dice rolls")
	header := fs.Bool("header", true, "write the CSV header row")
	debug := fs.Bool("debug", false, "use development (human-readable) logging")
	metrics := fs.String("metrics", "", "CSV output path; empty means standard output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	defaults, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	applyMixedDefaults(fs, defaults.Mixed)

	policy, err := buffer.ParsePolicy(*policyFlag)
	if err != nil {
		return err
	}
	readWeight, writeWeight, err := parseMix(*mix)
	if err != nil {
		return err
	}

	log, err := obs.New(*debug)
	if err != nil {
		return fmt.Errorf("bench-mixed: build logger: %w", err)
	}
	defer log.Sync()
	log = log.With("run_id", uuid.NewString())

	reg := stats.New()
	result, err := mixed.Run(mixed.Params{
		Path:        *file,
		Pages:       *pages,
		Ops:         *ops,
		Buffers:     *buffers,
		Policy:      policy,
		ReadWeight:  readWeight,
		WriteWeight: writeWeight,
		Seed:        uint64(*seed),
		Registry:    reg,
		Log:         log,
	})
	if err != nil {
		return err
	}

	out, closeOut, err := openMetricsSink(*metrics)
	if err != nil {
		return err
	}
	defer closeOut()

	w := report.NewMixedWriter(out)
	if !*header {
		w.SuppressHeader()
	}
	if err := w.Write(result); err != nil {
		return fmt.Errorf("bench-mixed: write metrics row: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("bench-mixed: flush metrics: %w", err)
	}
	return nil
}

func applyMixedDefaults(fs *pflag.FlagSet, d config.MixedDefaults) {
	setIfUnchanged(fs, "file", d.File)
	setIntIfUnchanged(fs, "pages", d.Pages)
	setIntIfUnchanged(fs, "ops", d.Ops)
	setIntIfUnchanged(fs, "buffers", d.Buffers)
	setIfUnchanged(fs, "policy", d.Policy)
	setIfUnchanged(fs, "mix", d.Mix)
	if d.Seed != 0 {
		setIntIfUnchanged(fs, "seed", int(d.Seed))
	}
}

func setIfUnchanged(fs *pflag.FlagSet, name, value string) {
	if value == "" || fs.Changed(name) {
		return
	}
	fs.Set(name, value)
}

func setIntIfUnchanged(fs *pflag.FlagSet, name string, value int) {
	if value == 0 || fs.Changed(name) {
		return
	}
	fs.Set(name, strconv.Itoa(value))
}

// parseMix parses an "R:W" read:write weight pair.
func parseMix(s string) (read, write int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bench-mixed: --mix must be R:W, got %q", s)
	}
	read, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("bench-mixed: --mix read weight: %w", err)
	}
	write, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("bench-mixed: --mix write weight: %w", err)
	}
	return read, write, nil
}

func openMetricsSink(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("bench-mixed: create metrics file %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}
