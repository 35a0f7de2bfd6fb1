// Package iterutil builds the merge-sorted iterator tree used by stream
// readers and the compactor (spec §4.4): given a list of per-source
// iterators, each already sorted by the composite posting key, it produces
// a single iterator that yields entries in merged order, breaking ties in
// favor of whichever source appears earlier in the input list.
package iterutil

import "github.com/ignitedb/mergeindex/internal/posting"

// Iterator is the shape every buffer and segment iterator exposes. Next
// returns (posting, true, nil) while entries remain, (zero, false, nil) at
// exhaustion, or a non-nil error if the underlying source failed.
type Iterator interface {
	Next() (posting.Posting, bool, error)
	Close() error
}

// sliceIterator adapts an in-memory, already-sorted slice to Iterator. Both
// buffer and segment implementations build their lazy sequences on top of
// this for the common case of "we already have the sorted postings in
// memory"; callers needing true streaming (e.g. a segment reading blocks
// off disk) implement Iterator directly instead.
type sliceIterator struct {
	items []posting.Posting
	pos   int
}

// NewSliceIterator returns an Iterator over an already-sorted slice.
func NewSliceIterator(items []posting.Posting) Iterator {
	return &sliceIterator{items: items}
}

func (s *sliceIterator) Next() (posting.Posting, bool, error) {
	if s.pos >= len(s.items) {
		return posting.Posting{}, false, nil
	}
	p := s.items[s.pos]
	s.pos++
	return p, true, nil
}

func (s *sliceIterator) Close() error { return nil }

// mergeNode merges two Iterators, preferring left on ties so that the
// source-list order (left subtree = earlier sources) decides precedence.
type mergeNode struct {
	left, right         Iterator
	leftHead, rightHead posting.Posting
	haveLeft, haveRight bool
	err                 error
}

// Merge builds a balanced pairwise tree over sources by repeated folding:
// adjacent sources are paired into merge nodes until a single root remains,
// keeping per-element work at O(log N) sources. An empty input yields an
// iterator that is immediately exhausted.
func Merge(sources []Iterator) Iterator {
	if len(sources) == 0 {
		return NewSliceIterator(nil)
	}
	level := sources
	for len(level) > 1 {
		next := make([]Iterator, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, newMergeNode(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}

func newMergeNode(left, right Iterator) *mergeNode {
	return &mergeNode{left: left, right: right}
}

func (m *mergeNode) fillLeft() bool {
	if m.haveLeft || m.err != nil {
		return m.err == nil
	}
	p, ok, err := m.left.Next()
	if err != nil {
		m.err = err
		return false
	}
	m.leftHead, m.haveLeft = p, ok
	return true
}

func (m *mergeNode) fillRight() bool {
	if m.haveRight || m.err != nil {
		return m.err == nil
	}
	p, ok, err := m.right.Next()
	if err != nil {
		m.err = err
		return false
	}
	m.rightHead, m.haveRight = p, ok
	return true
}

func (m *mergeNode) Next() (posting.Posting, bool, error) {
	if !m.fillLeft() || !m.fillRight() {
		return posting.Posting{}, false, m.err
	}

	switch {
	case !m.haveLeft && !m.haveRight:
		return posting.Posting{}, false, nil
	case !m.haveLeft:
		m.haveRight = false
		return m.rightHead, true, nil
	case !m.haveRight:
		m.haveLeft = false
		return m.leftHead, true, nil
	}

	// Both sides have a head: left wins ties, so the earlier source in the
	// original list order is preferred whenever keys compare equal.
	if posting.Compare(m.leftHead, m.rightHead) <= 0 {
		m.haveLeft = false
		return m.leftHead, true, nil
	}
	m.haveRight = false
	return m.rightHead, true, nil
}

func (m *mergeNode) Close() error {
	errL := m.left.Close()
	errR := m.right.Close()
	if errL != nil {
		return errL
	}
	return errR
}
