package bufferlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ignitedb/mergeindex/internal/posting"
)

func mkPosting(term, value string, ts int64) posting.Posting {
	return posting.Posting{
		Key:       posting.Key{Index: []byte("i"), Field: []byte("f"), Term: []byte(term)},
		Value:     []byte(value),
		Timestamp: ts,
		Props:     []byte("p"),
	}
}

func TestAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffer.1")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	items := []posting.Posting{mkPosting("a", "1", 1), mkPosting("b", "2", 2)}
	if err := l.Append(items); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got []posting.Posting
	if err := Replay(path, func(p posting.Posting) { got = append(got, p) }); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != 2 || string(got[0].Key.Term) != "a" || string(got[1].Key.Term) != "b" {
		t.Fatalf("got %+v", got)
	}
}

func TestReplayMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "never-created")
	called := false
	if err := Replay(path, func(posting.Posting) { called = true }); err != nil {
		t.Fatalf("Replay on a missing file should not error: %v", err)
	}
	if called {
		t.Fatal("callback should never run for a missing file")
	}
}

func TestReplayToleratesTruncatedTrailingRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffer.2")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	full := mkPosting("a", "1", 1)
	if err := l.Append([]posting.Posting{full}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Simulate a crash mid-write: append a truncated encode of a second record.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	partial := posting.Encode(mkPosting("b", "2", 2))
	if _, err := f.Write(partial[:len(partial)-3]); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	f.Close()

	var got []posting.Posting
	if err := Replay(path, func(p posting.Posting) { got = append(got, p) }); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(got) != 1 || string(got[0].Key.Term) != "a" {
		t.Fatalf("expected replay to stop at the truncated record, got %+v", got)
	}
}

func TestAppendAfterCloseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffer.3")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Append([]posting.Posting{mkPosting("a", "1", 1)}); err != ErrClosed {
		t.Fatalf("Append after Close: got %v, want ErrClosed", err)
	}
}

func TestDeleteRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffer.4")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file should be gone after Delete, stat err = %v", err)
	}
}
