// Command bench-loader drives the variable-length record loader of
// bench/loader, comparing slotted-page utilization against the
// caller-supplied static layouts and writing the resulting CSV rows to
// --metrics (or standard output).
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/tksm/pagedb/bench/loader"
	"github.com/tksm/pagedb/buffer"
	"github.com/tksm/pagedb/internal/config"
	"github.com/tksm/pagedb/internal/obs"
	"github.com/tksm/pagedb/internal/report"
	"github.com/tksm/pagedb/stats"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bench-loader: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("bench-loader", pflag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML defaults file")
	data := fs.String("data", "", "text file of records, one per line")
	out := fs.String("out", "", "paged file to load records into")
	deleteStep := fs.Int("delete-step", 0, "delete every k-th record in scan order; 0 disables")
	noDelete := fs.Bool("no-delete", false, "disable deletion regardless of --delete-step")
	buffers := fs.Int("buffers", 0, "buffer pool capacity in frames")
	policyFlag := fs.String("policy", "lru", "replacement policy: lru or mru")
	staticLens := fs.IntSlice("static-lens", nil, "comma-separated fixed record lengths to compare against")
	debug := fs.Bool("debug", false, "use development (human-readable) logging")
	metrics := fs.String("metrics", "", "CSV output path; empty means standard output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	defaults, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	applyLoaderDefaults(fs, defaults.Loader)

	policy, err := buffer.ParsePolicy(*policyFlag)
	if err != nil {
		return err
	}

	step := *deleteStep
	if *noDelete {
		step = 0
	}

	log, err := obs.New(*debug)
	if err != nil {
		return fmt.Errorf("bench-loader: build logger: %w", err)
	}
	defer log.Sync()
	log = log.With("run_id", uuid.NewString())

	reg := stats.New()
	rows, err := loader.Run(loader.Params{
		DataPath:   *data,
		OutPath:    *out,
		DeleteStep: step,
		StaticLens: *staticLens,
		Buffers:    *buffers,
		Policy:     policy,
		Registry:   reg,
		Log:        log,
	})
	if err != nil {
		return err
	}

	outFile, closeOut, err := openMetricsSink(*metrics)
	if err != nil {
		return err
	}
	defer closeOut()

	w := report.NewSpaceWriter(outFile)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("bench-loader: write metrics row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("bench-loader: flush metrics: %w", err)
	}
	return nil
}

func applyLoaderDefaults(fs *pflag.FlagSet, d config.LoaderDefaults) {
	setIfUnchanged(fs, "data", d.Data)
	setIfUnchanged(fs, "out", d.Out)
	setIfUnchanged(fs, "metrics", d.Metrics)
	setIntIfUnchanged(fs, "delete-step", d.DeleteStep)
	setIfUnchanged(fs, "policy", d.Policy)
	setIntIfUnchanged(fs, "buffers", d.Buffers)
	if d.NoDelete && !fs.Changed("no-delete") {
		fs.Set("no-delete", "true")
	}
	if len(d.StaticLens) > 0 && !fs.Changed("static-lens") {
		strs := make([]string, len(d.StaticLens))
		for i, v := range d.StaticLens {
			strs[i] = strconv.Itoa(v)
		}
		fs.Set("static-lens", strings.Join(strs, ","))
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
		return nil, nil, fmt.Errorf("bench-loader: create metrics file %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}
