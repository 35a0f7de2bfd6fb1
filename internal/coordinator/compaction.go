package coordinator

import (
	"path/filepath"

	"github.com/ignitedb/mergeindex/internal/buffer"
	"github.com/ignitedb/mergeindex/internal/compactor"
	"github.com/ignitedb/mergeindex/internal/converter"
	"github.com/ignitedb/mergeindex/internal/deleteme"
	"github.com/ignitedb/mergeindex/internal/segment"
	"github.com/ignitedb/mergeindex/pkg/errors"
)

// compactionCandidateThreshold is the spec §4.7 "> 2 compaction
// candidates" trigger checked after every convert_done.
const compactionCandidateThreshold = 2

// handleConvertDone applies a finished buffer-to-segment conversion (spec
// §4.7 "convert_done"). On failure the sealed buffer is simply left in the
// buffer list; bootstrap re-queues it at the coordinator's next startup.
func (c *Coordinator) handleConvertDone(comp converter.Completion) {
	if comp.Err != nil {
		if c.logger != nil {
			c.logger.Errorw("buffer conversion failed, buffer stays queued", "path", comp.Task.Path, "err", comp.Err)
		}
		return
	}

	if err := deleteme.Clear(comp.Task.Path); err != nil {
		if c.logger != nil {
			c.logger.Errorw("clear deleteme flag for new segment failed", "path", comp.Task.Path, "err", err)
		}
	} else if c.logger != nil {
		c.logger.Infow("deleteme flag cleared", "path", comp.Task.Path)
	}

	buf := comp.Task.Buffer
	if err := deleteme.Set(buf.Path()); err != nil {
		if c.logger != nil {
			c.logger.Errorw("set deleteme flag for converted buffer failed", "path", buf.Path(), "err", err)
		}
	} else if c.logger != nil {
		c.logger.Infow("deleteme flag set", "path", buf.Path())
	}
	bufPath := buf.Path()
	c.locks.WhenFree(bufPath, func() {
		buf.Delete()
		deleteme.DeleteBaseAndCompanions(bufPath)
		if c.logger != nil {
			c.logger.Infow("buffer companions deleted", "path", bufPath)
		}
	})

	c.removeBuffer(buf)
	c.segments = append([]*segment.Segment{comp.Segment}, c.segments...)

	if c.logger != nil {
		c.logger.Infow("buffer conversion applied", "buffer_id", buf.ID(), "segment", comp.Task.Path)
	}

	if c.compacting == nil {
		c.maybeScheduleCompaction(nil)
	}
}

func (c *Coordinator) removeBuffer(target *buffer.Buffer) {
	out := c.buffers[:0]
	for _, b := range c.buffers {
		if b != target {
			out = append(out, b)
		}
	}
	c.buffers = out
}

// handleCompactionDone applies a finished compaction (spec §4.7
// "compaction_done"): the new segment becomes visible, the old segments
// are marked for deletion once unreferenced, and the requester (if any) is
// replied to.
func (c *Coordinator) handleCompactionDone(comp compactor.Completion) {
	pending := c.compacting
	c.compacting = nil

	if comp.Err != nil {
		if pending != nil {
			pending.result = CompactionResult{Err: errors.NewCoordinatorError(comp.Err, errors.ErrorCodeCompactionFailed, "compaction failed").WithOp("compaction")}
			close(pending.done)
		}
		return
	}

	newPath := filepath.Join(comp.Task.Dir, filepath.Base(comp.NewSegment.Filename()))
	if err := deleteme.Clear(newPath); err != nil {
		if c.logger != nil {
			c.logger.Errorw("clear deleteme flag for compacted segment failed", "path", newPath, "err", err)
		}
	} else if c.logger != nil {
		c.logger.Infow("deleteme flag cleared", "path", newPath)
	}

	oldSet := make(map[*segment.Segment]bool, len(comp.Task.Candidates))
	for _, cand := range comp.Task.Candidates {
		oldSet[cand.Segment] = true
		path := cand.Segment.Filename()
		if err := deleteme.Set(path); err != nil {
			if c.logger != nil {
				c.logger.Errorw("set deleteme flag for retired segment failed", "path", path, "err", err)
			}
		} else if c.logger != nil {
			c.logger.Infow("deleteme flag set", "path", path)
		}
		seg := cand.Segment
		c.locks.WhenFree(path, func() {
			seg.Close()
			deleteme.DeleteBaseAndCompanions(path)
			if c.logger != nil {
				c.logger.Infow("segment companions deleted", "path", path)
			}
		})
	}

	next := make([]*segment.Segment, 0, len(c.segments)-len(oldSet)+1)
	next = append(next, comp.NewSegment)
	for _, s := range c.segments {
		if !oldSet[s] {
			next = append(next, s)
		}
	}
	c.segments = next

	if c.logger != nil {
		c.logger.Infow("compaction applied", "new_segment", newPath, "segments_merged", len(comp.Task.Candidates), "bytes", comp.Bytes)
	}

	if pending != nil {
		pending.result = CompactionResult{SegmentsMerged: len(comp.Task.Candidates), BytesCompacted: comp.Bytes}
		close(pending.done)
	}
}

// maybeScheduleCompaction selects candidates from the current segment list
// and, if more than compactionCandidateThreshold qualify, starts a
// compaction task. pending is nil when triggered automatically from
// convert_done rather than an explicit StartCompaction call.
func (c *Coordinator) maybeScheduleCompaction(pending *pendingCompaction) {
	var cands []compactor.Candidate
	for _, s := range c.segments {
		size, err := s.Filesize()
		if err != nil {
			continue
		}
		cands = append(cands, compactor.Candidate{Segment: s, Filesize: size})
	}

	selected := compactor.SelectCandidates(cands, c.opts.CompactionOptions.MaxSegments)
	if len(selected) <= compactionCandidateThreshold {
		if pending != nil {
			pending.result = CompactionResult{}
			close(pending.done)
		}
		return
	}

	if pending == nil {
		// An automatic run still needs a record so it counts as in flight.
		pending = &pendingCompaction{done: make(chan struct{})}
	}
	c.compacting = pending
	c.compact.Start(c.ctx, compactor.Task{Candidates: selected, Dir: c.root})
}

// scheduleCompaction is the StartCompaction entry point: pending becomes
// the in-flight record if enough candidates qualify; otherwise
// maybeScheduleCompaction replies on it immediately and leaves compacting
// idle.
func (c *Coordinator) scheduleCompaction(pending *pendingCompaction) {
	c.maybeScheduleCompaction(pending)
}
