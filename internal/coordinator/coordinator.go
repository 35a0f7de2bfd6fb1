// Package coordinator implements the merge index's single-writer state
// machine (spec §4.7): it owns the buffer list, the segment list, the lock
// registry, and all compaction/stream bookkeeping. Every state mutation
// happens inside one goroutine's message loop; callers never touch the
// slices directly, they submit a request and wait for the loop to process
// it. The converter, the compactor, and every stream reader run as
// independent goroutines that report back strictly by channel — none of
// them reach into coordinator state themselves (spec §5).
package coordinator

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ignitedb/mergeindex/internal/buffer"
	"github.com/ignitedb/mergeindex/internal/compactor"
	"github.com/ignitedb/mergeindex/internal/converter"
	"github.com/ignitedb/mergeindex/internal/deleteme"
	"github.com/ignitedb/mergeindex/internal/locks"
	"github.com/ignitedb/mergeindex/internal/posting"
	"github.com/ignitedb/mergeindex/internal/segment"
	"github.com/ignitedb/mergeindex/pkg/errors"
	"github.com/ignitedb/mergeindex/pkg/filesys"
	"github.com/ignitedb/mergeindex/pkg/options"
	"github.com/ignitedb/mergeindex/pkg/seginfo"
)

// PostingInput is the flat, client-facing shape of one write: the
// composite key's three fields plus a value, a timestamp, and opaque
// properties. Index builds the internal posting.Posting form from these.
type PostingInput struct {
	Index, Field, Term, Value []byte
	Timestamp                 int64
	Props                     []byte
}

// pendingCompaction records the in-flight compaction's eventual outcome.
// done is closed exactly once, by the coordinator loop, after result is
// populated — any number of StartCompaction callers can wait on the same
// pendingCompaction by receiving from done, unlike a single-reader channel.
type pendingCompaction struct {
	done   chan struct{}
	result CompactionResult
}

// CompactionResult is what a StartCompaction caller receives once the
// in-flight compaction settles.
type CompactionResult struct {
	SegmentsMerged int
	BytesCompacted int64
	Err            error
}

// Coordinator is the merge index's single-writer state machine.
type Coordinator struct {
	ctx     context.Context
	root    string
	logger  *zap.SugaredLogger
	opts    *options.Options
	locks   *locks.Registry
	conv    *converter.Converter
	compact *compactor.Compactor

	jobs chan func()

	buffers      []*buffer.Buffer // head is buffers[len(buffers)-1]
	segments     []*segment.Segment
	nextID       uint64
	rolloverSize uint64

	compacting *pendingCompaction

	streams      map[uint64]*streamRange
	nextStreamID uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	fatalErr error
	fatalCh  chan struct{}
}

// New performs the startup sweep (spec §6) and starts the coordinator's
// message loop, converter, and compactor.
func New(ctx context.Context, root string, opts *options.Options, logger *zap.SugaredLogger) (*Coordinator, error) {
	if opts == nil {
		defaults := options.NewDefaultOptions()
		opts = &defaults
	}

	if err := filesys.CreateDir(root, 0o755, true); err != nil {
		return nil, errors.NewCoordinatorError(err, errors.ErrorCodeIO, "data directory unavailable").WithOp("bootstrap")
	}

	if err := deleteme.Sweep(root); err != nil {
		return nil, errors.NewCoordinatorError(err, errors.ErrorCodeIO, "startup sweep failed").WithOp("sweep")
	}
	if logger != nil {
		logger.Infow("startup sweep complete", "root", root)
	}

	c := &Coordinator{
		ctx:     ctx,
		root:    root,
		logger:  logger,
		opts:    opts,
		locks:   locks.New(),
		conv:    converter.New(logger, 64),
		compact: compactor.New(logger, 8),
		jobs:    make(chan func()),
		streams: make(map[uint64]*streamRange),
		stopCh:  make(chan struct{}),
		fatalCh: make(chan struct{}),
	}
	c.rolloverSize = fuzzedRolloverSize(opts.BufferOptions.RolloverSize)

	if err := c.bootstrap(); err != nil {
		return nil, err
	}

	c.conv.Run(ctx)
	go c.loop(ctx)
	return c, nil
}

// fuzzedRolloverSize redraws the head buffer's rollover threshold within
// ±25% of base (spec §9), so co-located stores desynchronize rollover.
func fuzzedRolloverSize(base uint64) uint64 {
	fraction := options.RolloverFuzzFraction
	delta := (rand.Float64()*2 - 1) * fraction
	size := float64(base) * (1 + delta)
	if size < 1 {
		size = 1
	}
	return uint64(size)
}

// bootstrap implements the startup sweep's segment/buffer discovery (spec
// §6 steps 2-3), after deleteme.Sweep has already run.
func (c *Coordinator) bootstrap() error {
	segPaths, err := seginfo.ListSegments(c.root)
	if err != nil {
		return errors.NewCoordinatorError(err, errors.ErrorCodeIO, "list segments failed").WithOp("bootstrap")
	}
	sort.Strings(segPaths)
	var maxScalarSegID uint64
	for _, p := range segPaths {
		seg, err := segment.OpenRead(p)
		if err != nil {
			return errors.NewCoordinatorError(err, errors.ErrorCodeIO, "open segment failed").
				WithOp("bootstrap").WithSegments([]string{p})
		}
		c.segments = append(c.segments, seg)
		if id, err := seginfo.ParseFilenameID(filepath.Base(p)); err == nil && !id.IsHex && !id.IsPair {
			if uint64(id.Scalar) > maxScalarSegID {
				maxScalarSegID = uint64(id.Scalar)
			}
		}
	}

	bufPaths, err := seginfo.ListBuffers(c.root)
	if err != nil {
		return errors.NewCoordinatorError(err, errors.ErrorCodeIO, "list buffers failed").WithOp("bootstrap")
	}
	type bufEntry struct {
		id   uint64
		path string
	}
	var entries []bufEntry
	for _, p := range bufPaths {
		id, err := seginfo.BufferID(p)
		if err != nil {
			return errors.NewCoordinatorError(err, errors.ErrorCodeIO, "parse buffer id failed").WithOp("bootstrap")
		}
		entries = append(entries, bufEntry{id: id, path: p})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	switch len(entries) {
	case 0:
		head, err := c.newHeadBuffer(maxScalarSegID + 1)
		if err != nil {
			return err
		}
		c.buffers = append(c.buffers, head)
		c.nextID = head.ID() + 1
	case 1:
		head, err := buffer.New(entries[0].path, entries[0].id, c.logger)
		if err != nil {
			return errors.NewCoordinatorError(err, errors.ErrorCodeIO, "open head buffer failed").WithOp("bootstrap")
		}
		c.buffers = append(c.buffers, head)
		c.nextID = head.ID() + 1
	default:
		last := entries[len(entries)-1]
		head, err := buffer.New(last.path, last.id, c.logger)
		if err != nil {
			return errors.NewCoordinatorError(err, errors.ErrorCodeIO, "open head buffer failed").WithOp("bootstrap")
		}
		for _, e := range entries[:len(entries)-1] {
			b, err := buffer.New(e.path, e.id, c.logger)
			if err != nil {
				return errors.NewCoordinatorError(err, errors.ErrorCodeIO, "open orphan buffer failed").WithOp("bootstrap")
			}
			c.buffers = append(c.buffers, b)
		}
		c.buffers = append(c.buffers, head)
		c.nextID = last.id + 1
		for _, b := range c.buffers[:len(c.buffers)-1] {
			c.enqueueConvert(b)
		}
	}
	if c.logger != nil {
		c.logger.Infow("bootstrap complete", "segments", len(c.segments), "buffers", len(c.buffers), "next_id", c.nextID)
	}
	return nil
}

func (c *Coordinator) newHeadBuffer(id uint64) (*buffer.Buffer, error) {
	path := filepath.Join(c.root, seginfo.BufferName(id))
	return buffer.New(path, id, c.logger)
}

func (c *Coordinator) enqueueConvert(b *buffer.Buffer) {
	path := filepath.Join(c.root, seginfo.SegmentName(b.ID()))
	if err := c.conv.Enqueue(converter.Task{Buffer: b, Path: path}); err != nil && c.logger != nil {
		c.logger.Errorw("enqueue convert task failed", "buffer_id", b.ID(), "err", err)
	}
}

func (c *Coordinator) head() *buffer.Buffer { return c.buffers[len(c.buffers)-1] }

// loop is the coordinator's single-writer message processor (spec §4.7,
// §5): it is the only goroutine that ever reads or writes buffers,
// segments, locks, or compaction state.
func (c *Coordinator) loop(ctx context.Context) {
	var tickCh <-chan time.Time
	if c.opts.CompactionOptions.Interval > 0 {
		ticker := time.NewTicker(c.opts.CompactionOptions.Interval)
		defer ticker.Stop()
		tickCh = ticker.C
	}

	for {
		select {
		case job := <-c.jobs:
			job()
		case comp := <-c.conv.Done():
			c.handleConvertDone(comp)
		case comp := <-c.compact.Done():
			c.handleCompactionDone(comp)
		case <-tickCh:
			if c.logger != nil {
				c.logger.Infow("compaction ticker fired", "interval", c.opts.CompactionOptions.Interval)
			}
			if c.compacting == nil {
				c.maybeScheduleCompaction(nil)
			}
		case <-c.conv.SupervisorExited():
			c.fail(errors.NewCoordinatorError(nil, errors.ErrorCodeInternal, "buffer converter supervisor died").WithOp("buffer_converter_death"))
			return
		case <-ctx.Done():
			c.fail(errors.NewCoordinatorError(ctx.Err(), errors.ErrorCodeInternal, "coordinator context cancelled").WithOp("shutdown"))
			return
		case <-c.stopCh:
			return
		}
	}
}

func (c *Coordinator) fail(err error) {
	c.fatalErr = err
	close(c.fatalCh)
	if c.logger != nil {
		c.logger.Errorw("coordinator stopping fatally", "err", err)
	}
}

// Stop halts the coordinator's message loop and the converter. It does not
// delete any on-disk state.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.conv.Close()
	})
}

// submit runs fn inside the coordinator's single-writer loop and waits for
// it to finish. It returns a CoordinatorError with code
// ErrorCodeCoordinatorStopped if the loop has already exited.
func (c *Coordinator) submit(fn func()) error {
	done := make(chan struct{})
	select {
	case c.jobs <- func() { fn(); close(done) }:
	case <-c.fatalCh:
		return c.stoppedErr()
	case <-c.stopCh:
		return c.stoppedErr()
	}
	select {
	case <-done:
		return nil
	case <-c.fatalCh:
		return c.stoppedErr()
	}
}

func (c *Coordinator) stoppedErr() error {
	if c.fatalErr != nil {
		return errors.NewCoordinatorError(c.fatalErr, errors.ErrorCodeCoordinatorStopped, "coordinator has stopped")
	}
	return errors.NewCoordinatorError(nil, errors.ErrorCodeCoordinatorStopped, "coordinator has stopped")
}

// Index appends a batch of postings to the head buffer, rolling it over to
// a new segment conversion if it now exceeds the fuzzed rollover size
// (spec §4.7 "index").
func (c *Coordinator) Index(items []PostingInput) error {
	for i, it := range items {
		if len(it.Index) == 0 {
			return errors.NewRequiredFieldError("Index").WithDetail("item", i)
		}
		if len(it.Field) == 0 {
			return errors.NewRequiredFieldError("Field").WithDetail("item", i)
		}
		if len(it.Term) == 0 {
			return errors.NewRequiredFieldError("Term").WithDetail("item", i)
		}
	}

	var opErr error
	err := c.submit(func() {
		postings := make([]posting.Posting, len(items))
		for i, it := range items {
			postings[i] = posting.Posting{
				Key:       posting.Key{Index: it.Index, Field: it.Field, Term: it.Term},
				Value:     it.Value,
				Timestamp: it.Timestamp,
				Props:     it.Props,
			}
		}

		head := c.head()
		if err := head.Write(postings); err != nil {
			opErr = errors.NewCoordinatorError(err, errors.ErrorCodeIO, "index write failed").WithOp("index")
			return
		}

		size, err := head.Filesize()
		if err != nil {
			opErr = errors.NewCoordinatorError(err, errors.ErrorCodeIO, "stat head buffer failed").WithOp("index")
			return
		}
		if uint64(size) <= c.rolloverSize {
			return
		}

		if err := head.CloseFilehandle(); err != nil {
			opErr = errors.NewCoordinatorError(err, errors.ErrorCodeIO, "seal head buffer failed").WithOp("index")
			return
		}
		c.enqueueConvert(head)

		newHead, err := c.newHeadBuffer(c.nextID)
		if err != nil {
			opErr = errors.NewCoordinatorError(err, errors.ErrorCodeIO, "create new head buffer failed").WithOp("index")
			return
		}
		c.nextID++
		c.buffers = append(c.buffers, newHead)
		c.rolloverSize = fuzzedRolloverSize(c.opts.BufferOptions.RolloverSize)
	})
	if err != nil {
		return err
	}
	return opErr
}

// Info sums, for the given key, each buffer's matching posting count and
// each segment's weight (segment.Info: block size in bytes, not a count)
// into one coarse selectivity estimate (spec §4.7 "info", §9).
func (c *Coordinator) Info(index, field, term []byte) (int, error) {
	var count int
	err := c.submit(func() {
		for _, b := range c.buffers {
			count += b.Info(index, field, term)
		}
		for _, s := range c.segments {
			count += s.Info(index, field, term)
		}
	})
	return count, err
}

// IsEmpty reports whether every buffer is empty and no segments exist
// (spec §4.7 "is_empty").
func (c *Coordinator) IsEmpty() (bool, error) {
	var empty bool
	err := c.submit(func() {
		empty = len(c.segments) == 0
		if empty {
			for _, b := range c.buffers {
				if b.Size() != 0 {
					empty = false
					break
				}
			}
		}
	})
	return empty, err
}

// Drop deletes every buffer and segment and resets the store to a single
// empty head buffer with id 1 (spec §4.7 "drop").
func (c *Coordinator) Drop() error {
	return c.submit(func() {
		for _, b := range c.buffers {
			b.CloseFilehandle()
			b.Delete()
		}
		for _, s := range c.segments {
			s.Close()
			s.Delete()
		}
		c.buffers = nil
		c.segments = nil
		c.nextID = 2
		head, err := c.newHeadBuffer(1)
		if err != nil {
			if c.logger != nil {
				c.logger.Errorw("drop: failed to create fresh head buffer", "err", err)
			}
			return
		}
		c.buffers = append(c.buffers, head)
		c.rolloverSize = fuzzedRolloverSize(c.opts.BufferOptions.RolloverSize)
	})
}

// FoldFunc is applied to every posting during an administrative Fold
// traversal.
type FoldFunc func(acc any, index, field, term, value []byte, timestamp int64, props []byte) any

// Fold synchronously scans every buffer and segment, threading acc through
// fn (spec §4.7 "fold"). This blocks the coordinator's message loop for its
// duration and is intended for administrative traversal only.
func (c *Coordinator) Fold(fn FoldFunc, acc any) (any, error) {
	err := c.submit(func() {
		for _, b := range c.buffers {
			acc = foldIterator(b.Iterator(), fn, acc)
		}
		for _, s := range c.segments {
			acc = foldIterator(s.Iterator(), fn, acc)
		}
	})
	return acc, err
}

func foldIterator(it interface {
	Next() (posting.Posting, bool, error)
}, fn FoldFunc, acc any) any {
	for {
		p, ok, err := it.Next()
		if err != nil || !ok {
			return acc
		}
		acc = fn(acc, p.Key.Index, p.Key.Field, p.Key.Term, p.Value, p.Timestamp, p.Props)
	}
}
