// Package compactor implements the background worker that merges a chosen
// set of segments into one (spec §4.6). Candidate selection is
// average-based: it favors merging many small segments together, which
// amortizes write amplification, while leaving large, already-compacted
// segments alone. Like the converter, the compactor never touches
// coordinator state — it reports a finished merge (or a failure) back by
// message, and lets the coordinator decide what becomes visible.
package compactor

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/ignitedb/mergeindex/internal/deleteme"
	"github.com/ignitedb/mergeindex/internal/iterutil"
	"github.com/ignitedb/mergeindex/internal/segment"
)

// oneKiB is the bias added to the mean segment size when selecting
// candidates, ensuring a new, nearly-empty segment is always eligible
// (spec §4.6).
const oneKiB = 1024

// Candidate pairs a live segment with its current filesize, the input to
// average-based candidate selection.
type Candidate struct {
	Segment  *segment.Segment
	Filesize int64
}

// SelectCandidates implements the spec §4.6 algorithm: sort ascending by
// filesize, compute avg = sum/count + 1KiB, take every segment at or below
// avg, then cap to maxSegments. Selection with two or fewer members is not
// worth compacting and is reported as such by the caller (the coordinator
// checks len(candidates) > 2 before scheduling).
func SelectCandidates(segments []Candidate, maxSegments int) []Candidate {
	if len(segments) == 0 {
		return nil
	}

	sorted := append([]Candidate(nil), segments...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Filesize < sorted[j].Filesize })

	var sum int64
	for _, c := range sorted {
		sum += c.Filesize
	}
	avg := sum/int64(len(sorted)) + oneKiB

	var candidates []Candidate
	for _, c := range sorted {
		if c.Filesize > avg {
			break
		}
		candidates = append(candidates, c)
	}

	if maxSegments > 0 && len(candidates) > maxSegments {
		candidates = candidates[:maxSegments]
	}
	return candidates
}

// Task is a compaction job: merge the listed segments into a new segment
// under dir, on behalf of requester (an opaque token the coordinator
// threads back through to whoever asked for this compaction — possibly
// nothing, if the compaction was scheduled automatically).
type Task struct {
	Candidates []Candidate
	Dir        string
	Requester  any
}

// Completion is the message sent back once a compaction task finishes.
// On success NewSegment is populated and Err is nil; the old segments
// making up Candidates are still the caller's (the coordinator's)
// responsibility to retire. On failure the half-written new segment file
// still carries its deleteme flag and is left for the next startup sweep
// (spec §7) — Completion reports only the failure, it does not clean up.
type Completion struct {
	Task       Task
	NewSegment *segment.Segment
	Bytes      int64
	Err        error
}

// Compactor runs compaction tasks as independent spawned goroutines,
// reporting each one's outcome on Done.
type Compactor struct {
	logger *zap.SugaredLogger
	done   chan Completion
	nonce  atomic.Uint64
}

// New creates a Compactor with the given completion-channel depth.
func New(logger *zap.SugaredLogger, queueSize int) *Compactor {
	if queueSize <= 0 {
		queueSize = 8
	}
	return &Compactor{logger: logger, done: make(chan Completion, queueSize)}
}

// Done returns the channel on which task completions are delivered.
func (c *Compactor) Done() <-chan Completion { return c.done }

// Start spawns a compaction task for the given candidates. It returns
// immediately; the merge runs in its own goroutine and reports its result
// on Done.
func (c *Compactor) Start(ctx context.Context, t Task) {
	if c.logger != nil {
		c.logger.Infow("compaction started", "candidates", len(t.Candidates), "dir", t.Dir)
	}
	go c.run(ctx, t)
}

func (c *Compactor) run(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			if c.logger != nil {
				c.logger.Errorw("compaction task panicked", "recover", r)
			}
			c.emit(Completion{Task: t, Err: fmt.Errorf("compactor: task panicked: %v", r)})
		}
	}()

	sources := make([]iterutil.Iterator, len(t.Candidates))
	var totalBytes int64
	for i, cand := range t.Candidates {
		sources[i] = cand.Segment.Iterator()
		totalBytes += cand.Filesize
	}
	merged := iterutil.Merge(sources)

	path := filepath.Join(t.Dir, c.newSegmentName())
	if err := deleteme.Set(path); err != nil {
		c.emit(Completion{Task: t, Err: err})
		return
	}
	if c.logger != nil {
		c.logger.Infow("deleteme flag set", "path", path)
	}

	newSeg, err := segment.FromIterator(path, merged)
	if err != nil {
		if c.logger != nil {
			c.logger.Errorw("compaction write failed", "path", path, "err", err)
		}
		c.emit(Completion{Task: t, Err: err})
		return
	}

	select {
	case <-ctx.Done():
	default:
	}
	if c.logger != nil {
		c.logger.Infow("compaction finished", "path", path, "inputs", len(t.Candidates), "bytes", totalBytes)
	}
	c.emit(Completion{Task: t, NewSegment: newSeg, Bytes: totalBytes})
}

// newSegmentName builds the hex-named compaction output filename from
// spec §4.6's "segment.<hex(md5(now||nonce))>", substituted with xxh3 — a
// faster, non-cryptographic hash that serves the same purpose here
// (a collision-resistant-enough name for a file nothing looks up by
// content, only by listing).
func (c *Compactor) newSegmentName() string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint64(buf[8:16], c.nonce.Add(1))
	sum := xxh3.Hash(buf[:])
	return fmt.Sprintf("segment.%016x", sum)
}

func (c *Compactor) emit(comp Completion) {
	c.done <- comp
}
