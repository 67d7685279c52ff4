// Command bench-index drives the three-ordering index-construction
// comparator of bench/indexbuild and writes the resulting six CSV rows
// to --metrics (or standard output).
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/tksm/pagedb/bench/indexbuild"
	"github.com/tksm/pagedb/buffer"
	"github.com/tksm/pagedb/internal/config"
	"github.com/tksm/pagedb/internal/obs"
	"github.com/tksm/pagedb/internal/report"
	"github.com/tksm/pagedb/stats"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bench-index: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("bench-index", pflag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML defaults file")
	data := fs.String("data", "", "dataset of rollNumber;recordId;... lines")
	relBase := fs.String("rel-base", "", "base path; each ordering's index file is relBase.<method>.idx")
	queries := fs.Int("queries", 0, "number of uniformly-sampled equality queries to replay")
	buffers := fs.Int("buffers", 0, "buffer pool capacity in frames")
	policyFlag := fs.String("policy", "lru", "replacement policy: lru or mru")
	seed := fs.Int64("seed", 1, "PRNG seed for the shuffle and query sample")
	debug := fs.Bool("debug", false, "use development (human-readable) logging")
	metrics := fs.String("metrics", "", "CSV output path; empty means standard output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	defaults, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	applyIndexDefaults(fs, defaults.Index)

	policy, err := buffer.ParsePolicy(*policyFlag)
	if err != nil {
		return err
	}

	log, err := obs.New(*debug)
	if err != nil {
		return fmt.Errorf("bench-index: build logger: %w", err)
	}
	defer log.Sync()
	log = log.With("run_id", uuid.NewString())

	reg := stats.New()
	rows, err := indexbuild.Run(indexbuild.Params{
		DataPath: *data,
		RelBase:  *relBase,
		Queries:  *queries,
		Buffers:  *buffers,
		Policy:   policy,
		Seed:     uint64(*seed),
		Registry: reg,
		Log:      log,
	})
	if err != nil {
		return err
	}

	out, closeOut, err := openMetricsSink(*metrics)
	if err != nil {
		return err
	}
	defer closeOut()

	w := report.NewIndexWriter(out)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("bench-index: write metrics row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("bench-index: flush metrics: %w", err)
	}
	return nil
}

func applyIndexDefaults(fs *pflag.FlagSet, d config.IndexDefaults) {
	setIfUnchanged(fs, "data", d.Data)
	setIfUnchanged(fs, "rel-base", d.RelBase)
	setIfUnchanged(fs, "metrics", d.Metrics)
	setIntIfUnchanged(fs, "queries", d.Queries)
	setIntIfUnchanged(fs, "buffers", d.Buffers)
	setIfUnchanged(fs, "policy", d.Policy)
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

func openMetricsSink(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("bench-index: create metrics file %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}
