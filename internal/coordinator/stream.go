package coordinator

import (
	"bytes"

	"github.com/ignitedb/mergeindex/internal/buffer"
	"github.com/ignitedb/mergeindex/internal/iterutil"
	"github.com/ignitedb/mergeindex/internal/posting"
	"github.com/ignitedb/mergeindex/internal/segment"
)

// Result is one deduplicated, non-tombstoned posting delivered to a
// stream or range client.
type Result struct {
	Term  []byte // the posting's term; for Range a batch can span terms
	Value []byte
	Props []byte
}

// Filter decides whether a posting survives into the output stream. A nil
// Filter admits everything.
type Filter func(value, props []byte) bool

// batchSize is the number of postings buffered before a batch is flushed
// to the client (spec §4.8).
const batchSize = 1000

// streamRange is the coordinator's bookkeeping for one in-flight reader:
// the snapshot of files it holds locks on, so they can be released when
// the reader exits (spec §4.7 state, "stream_ranges").
type streamRange struct {
	id        uint64
	filenames []string
}

// claimSnapshot locks every buffer and segment currently visible and
// returns copies of both slices plus the filenames now held, so the
// caller's goroutine can safely iterate without racing the coordinator
// loop's later mutations.
func (c *Coordinator) claimSnapshot() (buffers []*buffer.Buffer, segments []*segment.Segment, filenames []string) {
	for _, b := range c.buffers {
		filenames = append(filenames, b.Path())
		c.locks.Claim(b.Path())
	}
	for _, s := range c.segments {
		filenames = append(filenames, s.Filename())
		c.locks.Claim(s.Filename())
	}
	return append([]*buffer.Buffer(nil), c.buffers...), append([]*segment.Segment(nil), c.segments...), filenames
}

// registerStream records a new stream_range entry and returns its id.
func (c *Coordinator) registerStream(filenames []string) uint64 {
	id := c.nextStreamID
	c.nextStreamID++
	c.streams[id] = &streamRange{id: id, filenames: filenames}
	if c.logger != nil {
		c.logger.Infow("stream claimed files", "stream_id", id, "files", len(filenames))
	}
	return id
}

// retireStream releases a stream_range's locks and forgets it. Called from
// within the coordinator loop once the reader goroutine signals it is
// done, whether cleanly or abnormally (spec §4.7 "child_exit").
func (c *Coordinator) retireStream(id uint64) {
	sr, ok := c.streams[id]
	if !ok {
		return
	}
	c.locks.ReleaseAll(sr.filenames)
	delete(c.streams, id)
	if c.logger != nil {
		c.logger.Infow("stream released files", "stream_id", id, "files", len(sr.filenames))
	}
}

// Stream runs a term-lookup reader over a point-in-time snapshot of the
// current buffers and segments (spec §4.7 "stream", §4.8). It sends
// batches of up to 1000 deduplicated, non-tombstoned postings to out, then
// closes out as the end-of-stream sentinel. Stream itself returns once the
// snapshot has been captured and the reader goroutine started; it does not
// block for the reader to finish.
func (c *Coordinator) Stream(index, field, term []byte, filter Filter, out chan []Result) error {
	return c.submit(func() {
		buffers, segments, filenames := c.claimSnapshot()
		id := c.registerStream(filenames)
		go c.runReader(id, buffers, segments, func(b *buffer.Buffer) iterutil.Iterator {
			return b.IteratorKey(index, field, term)
		}, func(s *segment.Segment) iterutil.Iterator {
			return s.IteratorKey(index, field, term)
		}, filter, out)
	})
}

// Range runs a term-range reader over per-term iterators from each source
// in [startTerm, endTerm], capped to size terms per source (spec §4.7
// "range"). Like Stream, it returns once the reader goroutine has started.
func (c *Coordinator) Range(index, field, startTerm, endTerm []byte, size int, filter Filter, out chan []Result) error {
	return c.submit(func() {
		buffers, segments, filenames := c.claimSnapshot()
		id := c.registerStream(filenames)
		go c.runReader(id, buffers, segments, func(b *buffer.Buffer) iterutil.Iterator {
			return iterutil.Merge(b.Iterators(index, field, startTerm, endTerm, size))
		}, func(s *segment.Segment) iterutil.Iterator {
			return iterutil.Merge(s.Iterators(index, field, startTerm, endTerm, size))
		}, filter, out)
	})
}

// runReader merges the per-source iterators built by bufIt/segIt over the
// given snapshot, applies read-time dedup and tombstone suppression (spec
// §4.8), and delivers batches to out. It always retires its stream_range
// and closes out before returning, whether it finished cleanly or hit an
// error (spec §7 "stream reader failure").
func (c *Coordinator) runReader(
	id uint64,
	buffers []*buffer.Buffer, segments []*segment.Segment,
	bufIt func(*buffer.Buffer) iterutil.Iterator, segIt func(*segment.Segment) iterutil.Iterator,
	filter Filter, out chan []Result,
) {
	defer close(out)
	defer c.submit(func() { c.retireStream(id) })

	sources := make([]iterutil.Iterator, 0, len(buffers)+len(segments))
	for _, b := range buffers {
		sources = append(sources, bufIt(b))
	}
	for _, s := range segments {
		sources = append(sources, segIt(s))
	}
	merged := iterutil.Merge(sources)

	var batch []Result
	var lastTerm, lastValue []byte
	haveLast := false

	flush := func() {
		if len(batch) == 0 {
			return
		}
		out <- batch
		batch = nil
	}

	for {
		p, ok, err := merged.Next()
		if err != nil {
			if c.logger != nil {
				c.logger.Errorw("stream reader failed", "err", err)
			}
			flush()
			return
		}
		if !ok {
			flush()
			return
		}

		if haveLast && bytes.Equal(p.Key.Term, lastTerm) && bytes.Equal(p.Value, lastValue) {
			continue
		}
		lastTerm, lastValue, haveLast = p.Key.Term, p.Value, true

		if posting.IsTombstone(p.Props) {
			continue
		}
		if filter != nil && !filter(p.Value, p.Props) {
			continue
		}

		batch = append(batch, Result{Term: p.Key.Term, Value: p.Value, Props: p.Props})
		if len(batch) >= batchSize {
			flush()
		}
	}
}

// StartCompaction schedules (or joins) a compaction run and blocks until
// it completes, returning the number of segments merged and total bytes
// compacted (spec §4.7 "start_compaction", §4.6).
func (c *Coordinator) StartCompaction() (CompactionResult, error) {
	var pc *pendingCompaction
	err := c.submit(func() {
		if c.compacting != nil {
			// Join the in-flight compaction instead of starting a second one.
			pc = c.compacting
			return
		}
		pc = &pendingCompaction{done: make(chan struct{})}
		c.scheduleCompaction(pc)
	})
	if err != nil {
		return CompactionResult{}, err
	}
	<-pc.done
	return pc.result, nil
}
