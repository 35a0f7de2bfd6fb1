// Package ignite provides the public client for the merge index: a
// persistent inverted-index store built from an in-memory write buffer,
// immutable on-disk segments, and a background compactor (spec §1, §4.7).
// It is designed for workloads that index (index, field, term) -> value
// postings and need fast term lookups, bounded term-range scans, and
// crash-safe durability without a separate database process.
package ignite

import (
	"context"

	"github.com/ignitedb/mergeindex/internal/coordinator"
	"github.com/ignitedb/mergeindex/internal/engine"
	"github.com/ignitedb/mergeindex/pkg/logger"
	"github.com/ignitedb/mergeindex/pkg/options"
)

// PostingInput is one client write: a composite (index, field, term, value)
// key plus a timestamp and opaque properties. A nil/absent Props value is
// not a tombstone; use Tombstone (see internal/posting) as Props to mark
// the key deleted.
type PostingInput = coordinator.PostingInput

// Result is one deduplicated, non-tombstoned posting returned from Stream
// or Range.
type Result = coordinator.Result

// Filter decides whether a posting survives into a Stream/Range output.
type Filter = coordinator.Filter

// CompactionResult reports the outcome of a StartCompaction call.
type CompactionResult = coordinator.CompactionResult

// Stats is a point-in-time administrative snapshot of store internals.
type Stats = coordinator.Stats

// Instance is the primary entry point for interacting with the merge
// index. It encapsulates the core engine responsible for coordinating
// buffers, segments, and compaction, plus the configuration options
// applied to this store instance.
type Instance struct {
	engine  *engine.Engine
	options *options.Options
}

// NewInstance creates and initializes a new Instance backed by its own
// data directory, applying any functional options over the defaults.
func NewInstance(ctx context.Context, service string, opts ...options.OptionFunc) (*Instance, error) {
	log := logger.New(service)

	defaultOpts := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&defaultOpts)
	}

	eng, err := engine.New(ctx, &engine.Config{Logger: log, Options: &defaultOpts})
	if err != nil {
		return nil, err
	}

	return &Instance{engine: eng, options: &defaultOpts}, nil
}

// Index writes a batch of postings, appending each to the current head
// buffer (spec §4.2, §4.7 "index").
func (i *Instance) Index(items []PostingInput) error {
	return i.engine.Coordinator().Index(items)
}

// Info returns a coarse selectivity estimate for the given (index, field,
// term): the matching posting count of every buffer plus the weight (block
// size in bytes) of every segment holding the key (spec §4.7 "info").
func (i *Instance) Info(index, field, term []byte) (int, error) {
	return i.engine.Coordinator().Info(index, field, term)
}

// Stream delivers every deduplicated, non-tombstoned posting under
// (index, field, term) to out in batches, closing out when done (spec
// §4.7 "stream").
func (i *Instance) Stream(index, field, term []byte, filter Filter, out chan []Result) error {
	return i.engine.Coordinator().Stream(index, field, term, filter, out)
}

// Range delivers postings for every term in [startTerm, endTerm], capped
// to size terms per source, to out in batches (spec §4.7 "range").
func (i *Instance) Range(index, field, startTerm, endTerm []byte, size int, filter Filter, out chan []Result) error {
	return i.engine.Coordinator().Range(index, field, startTerm, endTerm, size, filter, out)
}

// Fold walks every stored posting across all buffers and segments,
// tombstones and superseded versions included, threading an accumulator
// through fn (spec §4.7 "fold").
func (i *Instance) Fold(fn coordinator.FoldFunc, acc any) (any, error) {
	return i.engine.Coordinator().Fold(fn, acc)
}

// IsEmpty reports whether every buffer is empty and no segment exists.
func (i *Instance) IsEmpty() (bool, error) {
	return i.engine.Coordinator().IsEmpty()
}

// Drop removes every buffer and segment, resetting the store to empty.
func (i *Instance) Drop() error {
	return i.engine.Coordinator().Drop()
}

// StartCompaction schedules (or joins an in-flight) compaction run and
// blocks until it settles (spec §4.7 "start_compaction").
func (i *Instance) StartCompaction() (CompactionResult, error) {
	return i.engine.Coordinator().StartCompaction()
}

// Stats returns a point-in-time administrative snapshot of store state.
func (i *Instance) Stats() (Stats, error) {
	return i.engine.Coordinator().Stats()
}

// StatsJSON marshals Stats via the store's JSON encoder.
func (i *Instance) StatsJSON() ([]byte, error) {
	return i.engine.Coordinator().StatsJSON()
}

// Close gracefully shuts down the Instance, stopping the coordinator's
// message loop and releasing all associated resources.
func (i *Instance) Close() error {
	return i.engine.Close()
}
