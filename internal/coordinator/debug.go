package coordinator

import (
	json "github.com/goccy/go-json"
)

// Stats is a point-in-time administrative snapshot of coordinator state,
// exposed over whatever admin surface the embedding service wires up
// (spec's out-of-scope "HTTP/query front-end" is expected to read this).
type Stats struct {
	BufferCount       int    `json:"bufferCount"`
	SegmentCount      int    `json:"segmentCount"`
	HeadBufferID      uint64 `json:"headBufferId"`
	NextBufferID      uint64 `json:"nextBufferId"`
	RolloverSize      uint64 `json:"rolloverSize"`
	Compacting        bool   `json:"compacting"`
	ActiveStreamCount int    `json:"activeStreamCount"`
	TotalSegmentBytes int64  `json:"totalSegmentBytes"`
}

// Stats returns a snapshot of the coordinator's internal bookkeeping.
func (c *Coordinator) Stats() (Stats, error) {
	var s Stats
	err := c.submit(func() {
		s.BufferCount = len(c.buffers)
		s.SegmentCount = len(c.segments)
		if len(c.buffers) > 0 {
			s.HeadBufferID = c.head().ID()
		}
		s.NextBufferID = c.nextID
		s.RolloverSize = c.rolloverSize
		s.Compacting = c.compacting != nil
		s.ActiveStreamCount = len(c.streams)
		for _, seg := range c.segments {
			if sz, err := seg.Filesize(); err == nil {
				s.TotalSegmentBytes += sz
			}
		}
	})
	return s, err
}

// StatsJSON marshals Stats via goccy/go-json, the faster drop-in encoder
// this store's ecosystem uses for hot admin-introspection paths.
func (c *Coordinator) StatsJSON() ([]byte, error) {
	s, err := c.Stats()
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}
