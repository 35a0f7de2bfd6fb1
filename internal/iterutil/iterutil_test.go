package iterutil

import (
	"testing"

	"github.com/ignitedb/mergeindex/internal/posting"
)

func mkPosting(term, value string, ts int64) posting.Posting {
	return posting.Posting{
		Key:       posting.Key{Index: []byte("i"), Field: []byte("f"), Term: []byte(term)},
		Value:     []byte(value),
		Timestamp: ts,
	}
}

func drainAll(t *testing.T, it Iterator) []posting.Posting {
	t.Helper()
	var out []posting.Posting
	for {
		p, ok, err := it.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, p)
	}
}

func TestMergeEmptySources(t *testing.T) {
	it := Merge(nil)
	if _, ok, err := it.Next(); ok || err != nil {
		t.Fatalf("expected immediate exhaustion, got ok=%v err=%v", ok, err)
	}
}

func TestMergeSingleSource(t *testing.T) {
	src := NewSliceIterator([]posting.Posting{mkPosting("a", "1", 1), mkPosting("b", "1", 1)})
	got := drainAll(t, Merge([]Iterator{src}))
	if len(got) != 2 {
		t.Fatalf("got %d postings, want 2", len(got))
	}
}

func TestMergeInterleavesInKeyOrder(t *testing.T) {
	s1 := NewSliceIterator([]posting.Posting{mkPosting("a", "1", 1), mkPosting("c", "1", 1)})
	s2 := NewSliceIterator([]posting.Posting{mkPosting("b", "1", 1), mkPosting("d", "1", 1)})

	got := drainAll(t, Merge([]Iterator{s1, s2}))
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("got %d postings, want %d", len(got), len(want))
	}
	for i, w := range want {
		if string(got[i].Key.Term) != w {
			t.Fatalf("position %d: got term %q, want %q", i, got[i].Key.Term, w)
		}
	}
}

func TestMergeLeftWinsTies(t *testing.T) {
	left := NewSliceIterator([]posting.Posting{mkPosting("a", "left", 1)})
	right := NewSliceIterator([]posting.Posting{mkPosting("a", "right", 1)})

	got := drainAll(t, Merge([]Iterator{left, right}))
	if len(got) != 2 {
		t.Fatalf("got %d postings, want 2", len(got))
	}
	if string(got[0].Value) != "left" {
		t.Fatalf("expected the earlier source to win the tie, got %q first", got[0].Value)
	}
}

func TestMergeManySourcesBalancedTree(t *testing.T) {
	var sources []Iterator
	terms := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, term := range terms {
		sources = append(sources, NewSliceIterator([]posting.Posting{mkPosting(term, "1", 1)}))
	}
	got := drainAll(t, Merge(sources))
	if len(got) != len(terms) {
		t.Fatalf("got %d postings, want %d", len(got), len(terms))
	}
	for i, term := range terms {
		if string(got[i].Key.Term) != term {
			t.Fatalf("position %d: got term %q, want %q", i, got[i].Key.Term, term)
		}
	}
}
