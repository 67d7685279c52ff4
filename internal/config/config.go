// Package config loads optional YAML defaults for the benchmark CLIs,
// merged under whatever the caller already parsed from flags. Grounded
// directly on tuannm99-novasql's internal/config.go: a viper.New(),
// SetConfigType("yaml"), Unmarshal round trip.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// MixedDefaults mirrors the long-form flags of cmd/bench-mixed.
type MixedDefaults struct {
	File    string `mapstructure:"file"`
	Pages   int    `mapstructure:"pages"`
	Ops     int    `mapstructure:"ops"`
	Buffers int    `mapstructure:"buffers"`
	Policy  string `mapstructure:"policy"`
	Mix     string `mapstructure:"mix"`
	Seed    int64  `mapstructure:"seed"`
	Header  bool   `mapstructure:"header"`
}

// LoaderDefaults mirrors the long-form flags of cmd/bench-loader.
type LoaderDefaults struct {
	Data       string `mapstructure:"data"`
	Out        string `mapstructure:"out"`
	DeleteStep int    `mapstructure:"delete_step"`
	NoDelete   bool   `mapstructure:"no_delete"`
	Metrics    string `mapstructure:"metrics"`
	StaticLens []int  `mapstructure:"static_lens"`
	Buffers    int    `mapstructure:"buffers"`
	Policy     string `mapstructure:"policy"`
}

// IndexDefaults mirrors the long-form flags of cmd/bench-index.
type IndexDefaults struct {
	Data    string `mapstructure:"data"`
	RelBase string `mapstructure:"rel_base"`
	Metrics string `mapstructure:"metrics"`
	Queries int    `mapstructure:"queries"`
	Buffers int    `mapstructure:"buffers"`
	Policy  string `mapstructure:"policy"`
	Seed    int64  `mapstructure:"seed"`
}

// Defaults is the union of sections a single YAML defaults file may
// carry; each harness reads only the section it cares about.
type Defaults struct {
	Mixed  MixedDefaults  `mapstructure:"mixed"`
	Loader LoaderDefaults `mapstructure:"loader"`
	Index  IndexDefaults  `mapstructure:"index"`
}

// Load reads a YAML defaults file at path. An empty path is not an
// error: the zero Defaults is returned so the CLI falls back entirely to
// its flag defaults. A non-empty path that cannot be read is an error.
func Load(path string) (*Defaults, error) {
	var d Defaults
	if path == "" {
		return &d, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := v.Unmarshal(&d); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
	}
	return &d, nil
}
