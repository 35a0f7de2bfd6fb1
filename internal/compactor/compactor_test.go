package compactor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ignitedb/mergeindex/internal/iterutil"
	"github.com/ignitedb/mergeindex/internal/posting"
	"github.com/ignitedb/mergeindex/internal/segment"
)

func key(term string) posting.Key {
	return posting.Key{Index: []byte("idx"), Field: []byte("body"), Term: []byte(term)}
}

func buildTestSegment(t *testing.T, dir, name string, items []posting.Posting) *segment.Segment {
	t.Helper()
	seg, err := segment.FromIterator(filepath.Join(dir, name), iterutil.NewSliceIterator(items))
	if err != nil {
		t.Fatalf("FromIterator: %v", err)
	}
	return seg
}

func TestSelectCandidatesPrefersSmall(t *testing.T) {
	cands := []Candidate{
		{Filesize: 100},
		{Filesize: 200},
		{Filesize: 10_000_000},
	}
	got := SelectCandidates(cands, 10)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2 (the two small ones)", len(got))
	}
	for _, c := range got {
		if c.Filesize == 10_000_000 {
			t.Errorf("large segment should not have been selected")
		}
	}
}

func TestSelectCandidatesCap(t *testing.T) {
	cands := []Candidate{{Filesize: 10}, {Filesize: 20}, {Filesize: 30}, {Filesize: 40}}
	got := SelectCandidates(cands, 2)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want capped to 2", len(got))
	}
}

func TestSelectCandidatesEmpty(t *testing.T) {
	if got := SelectCandidates(nil, 10); got != nil {
		t.Fatalf("got %v, want nil for no input", got)
	}
}

func TestCompactorMergesAndReportsBytes(t *testing.T) {
	dir := t.TempDir()
	segA := buildTestSegment(t, dir, "segment.1", []posting.Posting{
		{Key: key("apple"), Value: []byte("doc1"), Timestamp: 5},
	})
	segB := buildTestSegment(t, dir, "segment.2", []posting.Posting{
		{Key: key("banana"), Value: []byte("doc2"), Timestamp: 7},
	})
	defer segA.Close()
	defer segB.Close()

	sizeA, _ := segA.Filesize()
	sizeB, _ := segB.Filesize()

	c := New(nil, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx, Task{
		Candidates: []Candidate{{Segment: segA, Filesize: sizeA}, {Segment: segB, Filesize: sizeB}},
		Dir:        dir,
	})

	select {
	case comp := <-c.Done():
		if comp.Err != nil {
			t.Fatalf("compaction failed: %v", comp.Err)
		}
		if comp.NewSegment == nil {
			t.Fatalf("expected a new segment")
		}
		defer comp.NewSegment.Close()
		if comp.Bytes != sizeA+sizeB {
			t.Errorf("got %d total bytes, want %d", comp.Bytes, sizeA+sizeB)
		}

		var got []posting.Posting
		it := comp.NewSegment.Iterator()
		for {
			p, ok, err := it.Next()
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if !ok {
				break
			}
			got = append(got, p)
		}
		if len(got) != 2 {
			t.Fatalf("got %d merged postings, want 2", len(got))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for compaction completion")
	}
}
