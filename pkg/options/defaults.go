package options

import "time"

const (
	// Specifies the default base directory where the merge index will store
	// its buffer and segment files.
	DefaultDataDir = "/var/lib/ignitedb"

	// Defines the default time duration between background compaction
	// sweeps driven by the coordinator's ticker.
	DefaultCompactInterval = time.Hour * 5

	// Represents the minimum allowed head-buffer rollover size in bytes (1MB).
	MinBufferRolloverSize uint64 = 1 * 1024 * 1024

	// Represents the maximum allowed head-buffer rollover size in bytes (4GB).
	MaxBufferRolloverSize uint64 = 4 * 1024 * 1024 * 1024

	// Specifies the default target size for the head buffer in bytes (64MB),
	// before the ±25% fuzz described in spec §9 is applied.
	DefaultBufferRolloverSize uint64 = 64 * 1024 * 1024

	// Specifies the default per-compaction cap on candidate segments.
	DefaultMaxCompactSegments = 10

	// RolloverFuzzFraction is the ±fraction applied to BufferRolloverSize to
	// desynchronize rollover across stores sharing a host (spec §9).
	RolloverFuzzFraction = 0.25
)

// Holds the default configuration settings for a merge index instance.
var defaultOptions = Options{
	DataDir: DefaultDataDir,
	BufferOptions: &bufferOptions{
		RolloverSize: DefaultBufferRolloverSize,
	},
	CompactionOptions: &compactionOptions{
		MaxSegments: DefaultMaxCompactSegments,
		Interval:    DefaultCompactInterval,
	},
}

// NewDefaultOptions returns a fresh copy of the default options. The nested
// pointers are cloned so that callers mutating WithXxx results never alias
// the package-level default.
func NewDefaultOptions() Options {
	opts := defaultOptions
	bufCopy := *defaultOptions.BufferOptions
	compCopy := *defaultOptions.CompactionOptions
	opts.BufferOptions = &bufCopy
	opts.CompactionOptions = &compCopy
	return opts
}
