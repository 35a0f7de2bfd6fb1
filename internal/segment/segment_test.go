package segment

import (
	"path/filepath"
	"testing"

	"github.com/ignitedb/mergeindex/internal/iterutil"
	"github.com/ignitedb/mergeindex/internal/posting"
)

func mustKey(index, field, term string) posting.Key {
	return posting.Key{Index: []byte(index), Field: []byte(field), Term: []byte(term)}
}

func sortedFixture() []posting.Posting {
	return []posting.Posting{
		{Key: mustKey("idx", "body", "apple"), Value: []byte("doc1"), Timestamp: 20},
		{Key: mustKey("idx", "body", "apple"), Value: []byte("doc1"), Timestamp: 10},
		{Key: mustKey("idx", "body", "apple"), Value: []byte("doc2"), Timestamp: 15},
		{Key: mustKey("idx", "body", "banana"), Value: []byte("doc3"), Timestamp: 5},
		{Key: mustKey("idx", "body", "cherry"), Value: []byte("doc4"), Timestamp: 1},
	}
}

func buildSegment(t *testing.T, dir string) *Segment {
	t.Helper()
	path := filepath.Join(dir, "segment.1")
	seg, err := FromIterator(path, iterutil.NewSliceIterator(sortedFixture()))
	if err != nil {
		t.Fatalf("FromIterator: %v", err)
	}
	return seg
}

func drain(t *testing.T, it iterutil.Iterator) []posting.Posting {
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

func TestFromIteratorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	seg := buildSegment(t, dir)
	defer seg.Close()

	got := drain(t, seg.Iterator())
	want := sortedFixture()
	if len(got) != len(want) {
		t.Fatalf("got %d postings, want %d", len(got), len(want))
	}
	for i := range want {
		if posting.Compare(got[i], want[i]) != 0 || string(got[i].Value) != string(want[i].Value) {
			t.Errorf("entry %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestOpenReadAfterClose(t *testing.T) {
	dir := t.TempDir()
	seg := buildSegment(t, dir)
	path := seg.Filename()
	if err := seg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenRead(path)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer reopened.Close()

	got := drain(t, reopened.Iterator())
	if len(got) != len(sortedFixture()) {
		t.Fatalf("got %d postings after reopen, want %d", len(got), len(sortedFixture()))
	}
}

func TestIteratorKey(t *testing.T) {
	dir := t.TempDir()
	seg := buildSegment(t, dir)
	defer seg.Close()

	got := drain(t, seg.IteratorKey([]byte("idx"), []byte("body"), []byte("apple")))
	if len(got) != 3 {
		t.Fatalf("got %d postings for key apple, want 3", len(got))
	}

	none := drain(t, seg.IteratorKey([]byte("idx"), []byte("body"), []byte("durian")))
	if len(none) != 0 {
		t.Fatalf("got %d postings for missing key, want 0", len(none))
	}
}

func TestIteratorsRange(t *testing.T) {
	dir := t.TempDir()
	seg := buildSegment(t, dir)
	defer seg.Close()

	its := seg.Iterators([]byte("idx"), []byte("body"), []byte("apple"), []byte("banana"), 0)
	if len(its) != 2 {
		t.Fatalf("got %d term iterators, want 2", len(its))
	}

	first := drain(t, its[0])
	if len(first) != 3 {
		t.Fatalf("first term iterator: got %d entries, want 3", len(first))
	}
	second := drain(t, its[1])
	if len(second) != 1 {
		t.Fatalf("second term iterator: got %d entries, want 1", len(second))
	}

	capped := seg.Iterators([]byte("idx"), []byte("body"), []byte("apple"), []byte("cherry"), 1)
	if len(capped) != 1 {
		t.Fatalf("got %d term iterators with size cap 1, want 1", len(capped))
	}
}

func TestInfoWeight(t *testing.T) {
	dir := t.TempDir()
	seg := buildSegment(t, dir)
	defer seg.Close()

	if w := seg.Info([]byte("idx"), []byte("body"), []byte("apple")); w <= 0 {
		t.Errorf("Info for existing key: got %d, want > 0", w)
	}
	if w := seg.Info([]byte("idx"), []byte("body"), []byte("durian")); w != 0 {
		t.Errorf("Info for missing key: got %d, want 0", w)
	}
}

func TestFilesizeAndDelete(t *testing.T) {
	dir := t.TempDir()
	seg := buildSegment(t, dir)

	size, err := seg.Filesize()
	if err != nil {
		t.Fatalf("Filesize: %v", err)
	}
	if size <= 0 {
		t.Errorf("Filesize: got %d, want > 0", size)
	}

	path := seg.Filename()
	if err := seg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened, err := OpenRead(path)
	if err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	if err := reopened.Close(); err != nil {
		t.Fatalf("Close reopened: %v", err)
	}
	if err := reopened.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
