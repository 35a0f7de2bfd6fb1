// Package options provides data structures and functions for configuring
// the Ignite merge index. It defines the parameters that control the
// coordinator's rollover and compaction behavior (spec §6 "Configuration").
package options

import (
	"strings"
	"time"
)

// Defines configurable parameters for the head buffer's rollover behavior.
type bufferOptions struct {
	// RolloverSize is the target size, in bytes, the head buffer is sealed
	// at. The coordinator fuzzes the actual threshold by ±25% per buffer
	// (spec §9 "Fuzzed rollover") so that many stores sharing a host don't
	// roll over in lockstep.
	//
	//  - Default: 64MB
	RolloverSize uint64 `json:"rolloverSize"`
}

// Defines configurable parameters for the compactor.
type compactionOptions struct {
	// MaxSegments caps the number of candidates a single compaction run
	// will merge, regardless of how many qualify by size.
	//
	// Default: 10
	MaxSegments int `json:"maxSegments"`

	// Interval is how often the coordinator's background ticker checks
	// whether a compaction should be scheduled, independent of the
	// segment-count trigger fired directly from convert_done.
	//
	// Default: 5h
	Interval time.Duration `json:"interval"`
}

// Defines the configuration parameters for the Ignite merge index.
// It provides control over storage location, buffer rollover, and
// compaction behavior.
type Options struct {
	// Specifies the root directory under which buffer.N and segment.<id>
	// files are stored (spec §6 "Filesystem layout").
	//
	// Default: "/var/lib/ignitedb"
	DataDir string `json:"dataDir"`

	// Configures head-buffer rollover.
	BufferOptions *bufferOptions `json:"bufferOptions"`

	// Configures background compaction.
	CompactionOptions *compactionOptions `json:"compactionOptions"`
}

// OptionFunc is a function type that modifies the Ignite system's configuration.
type OptionFunc func(*Options)

// Applies a predefined set of default configuration values to the Options struct.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		opts := NewDefaultOptions()
		o.DataDir = opts.DataDir
		o.BufferOptions = opts.BufferOptions
		o.CompactionOptions = opts.CompactionOptions
	}
}

// Sets the root data directory for the merge index.
func WithDataDir(directory string) OptionFunc {
	return func(o *Options) {
		directory = strings.TrimSpace(directory)
		if directory != "" {
			o.DataDir = directory
		}
	}
}

// Sets the target size, in bytes, at which the head buffer is sealed.
func WithBufferRolloverSize(size uint64) OptionFunc {
	return func(o *Options) {
		if size > MinBufferRolloverSize && size < MaxBufferRolloverSize {
			o.BufferOptions.RolloverSize = size
		}
	}
}

// Sets the per-compaction cap on candidate segments.
func WithMaxCompactSegments(n int) OptionFunc {
	return func(o *Options) {
		if n > 1 {
			o.CompactionOptions.MaxSegments = n
		}
	}
}

// Sets the interval at which the coordinator's background ticker checks
// for eligible compactions.
func WithCompactInterval(interval time.Duration) OptionFunc {
	return func(o *Options) {
		if interval > 0 {
			o.CompactionOptions.Interval = interval
		}
	}
}
