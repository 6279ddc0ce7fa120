// Package config handles maglev.toml tuning configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/ketrewq/v8/heap"
	"github.com/ketrewq/v8/maglev"
)

// FileName is the configuration file looked for by Load.
const FileName = "maglev.toml"

// Config represents a maglev.toml tuning configuration.
type Config struct {
	Inlining Inlining `toml:"inlining"`
	Tiering  Tiering  `toml:"tiering"`
	Heap     Heap     `toml:"heap"`

	// Path is the file the configuration was loaded from, or empty for
	// built-in defaults (set at load time).
	Path string `toml:"-"`
}

// Inlining tunes the builder's speculative inliner.
type Inlining struct {
	MaxDepth          int    `toml:"max-depth"`
	SmallFunctionSize int    `toml:"small-function-size"`
	LargeFunctionSize int    `toml:"large-function-size"`
	CumulativeBudget  int    `toml:"cumulative-budget"`
	MinCallFrequency  uint32 `toml:"min-call-frequency"`
}

// Tiering tunes hotness detection and the compilation queue.
type Tiering struct {
	HotThreshold uint64 `toml:"hot-threshold"`
	QueueSize    int    `toml:"queue-size"`
}

// Heap documents the heap geometry and tunes allocation sampling. Page
// geometry is fixed at build time; the file entries exist so a deployed
// configuration fails loudly instead of silently disagreeing with the
// binary.
type Heap struct {
	PageSize       int `toml:"page-size"`
	ObserverStep   int `toml:"observer-step"`
	CommitPageSize int `toml:"commit-page-size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := maglev.DefaultOptions()
	return &Config{
		Inlining: Inlining{
			MaxDepth:          opts.MaxInlineDepth,
			SmallFunctionSize: opts.SmallFunctionSize,
			LargeFunctionSize: opts.MaxInlinedSize,
			CumulativeBudget:  opts.MaxTotalInlinedSize,
			MinCallFrequency:  opts.MinInlineCallCount,
		},
		Tiering: Tiering{
			HotThreshold: 100,
			QueueSize:    64,
		},
		Heap: Heap{
			PageSize:       heap.PageSize,
			ObserverStep:   64 * 1024,
			CommitPageSize: heap.CommitPageSize,
		},
	}
}

// Load parses a maglev.toml file from the given directory. A missing
// file yields the defaults; fields absent from the file keep their
// default values.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.Path = path
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return c, nil
}

// applyDefaults fills fields left at zero, whether absent from the file
// or explicitly zeroed; zero is never a valid tuning value here.
func (c *Config) applyDefaults() {
	d := Default()
	if c.Inlining.MaxDepth == 0 {
		c.Inlining.MaxDepth = d.Inlining.MaxDepth
	}
	if c.Inlining.SmallFunctionSize == 0 {
		c.Inlining.SmallFunctionSize = d.Inlining.SmallFunctionSize
	}
	if c.Inlining.LargeFunctionSize == 0 {
		c.Inlining.LargeFunctionSize = d.Inlining.LargeFunctionSize
	}
	if c.Inlining.CumulativeBudget == 0 {
		c.Inlining.CumulativeBudget = d.Inlining.CumulativeBudget
	}
	if c.Inlining.MinCallFrequency == 0 {
		c.Inlining.MinCallFrequency = d.Inlining.MinCallFrequency
	}
	if c.Tiering.HotThreshold == 0 {
		c.Tiering.HotThreshold = d.Tiering.HotThreshold
	}
	if c.Tiering.QueueSize == 0 {
		c.Tiering.QueueSize = d.Tiering.QueueSize
	}
	if c.Heap.PageSize == 0 {
		c.Heap.PageSize = d.Heap.PageSize
	}
	if c.Heap.ObserverStep == 0 {
		c.Heap.ObserverStep = d.Heap.ObserverStep
	}
	if c.Heap.CommitPageSize == 0 {
		c.Heap.CommitPageSize = d.Heap.CommitPageSize
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Inlining.MaxDepth < 1 {
		return fmt.Errorf("inlining.max-depth must be at least 1, got %d", c.Inlining.MaxDepth)
	}
	if c.Inlining.SmallFunctionSize > c.Inlining.LargeFunctionSize {
		return fmt.Errorf("inlining.small-function-size %d exceeds large-function-size %d",
			c.Inlining.SmallFunctionSize, c.Inlining.LargeFunctionSize)
	}
	if c.Inlining.CumulativeBudget < c.Inlining.LargeFunctionSize {
		return fmt.Errorf("inlining.cumulative-budget %d is below large-function-size %d",
			c.Inlining.CumulativeBudget, c.Inlining.LargeFunctionSize)
	}
	if c.Tiering.QueueSize < 1 {
		return fmt.Errorf("tiering.queue-size must be at least 1, got %d", c.Tiering.QueueSize)
	}
	if c.Heap.ObserverStep < 1 {
		return fmt.Errorf("heap.observer-step must be positive, got %d", c.Heap.ObserverStep)
	}
	if c.Heap.PageSize != heap.PageSize {
		return fmt.Errorf("heap.page-size %d does not match the built-in page size %d",
			c.Heap.PageSize, heap.PageSize)
	}
	if c.Heap.CommitPageSize != heap.CommitPageSize {
		return fmt.Errorf("heap.commit-page-size %d does not match the built-in commit granularity %d",
			c.Heap.CommitPageSize, heap.CommitPageSize)
	}
	return nil
}

// MaglevOptions converts the inlining section to builder options.
func (c *Config) MaglevOptions() maglev.Options {
	opts := maglev.DefaultOptions()
	opts.MaxInlineDepth = c.Inlining.MaxDepth
	opts.MaxInlinedSize = c.Inlining.LargeFunctionSize
	opts.SmallFunctionSize = c.Inlining.SmallFunctionSize
	opts.MaxTotalInlinedSize = c.Inlining.CumulativeBudget
	opts.MinInlineCallCount = c.Inlining.MinCallFrequency
	return opts
}
