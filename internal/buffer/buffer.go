// Package buffer implements the in-memory, log-backed write absorber that
// fronts every write to the merge index (spec §3, §4.2). A buffer is
// created empty, appended to, sealed (closing its log filehandle while
// remaining queryable), converted to a segment, and finally deleted once
// unreferenced.
package buffer

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ignitedb/mergeindex/internal/bufferlog"
	"github.com/ignitedb/mergeindex/internal/iterutil"
	"github.com/ignitedb/mergeindex/internal/posting"
)

// Buffer is the append-only, log-backed posting multiset for one buffer id.
type Buffer struct {
	id     uint64
	path   string
	log    *bufferlog.Log
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	entries []posting.Posting
	sealed  bool
}

// New opens (or creates) the buffer's write-ahead log at path and replays
// any existing records to rebuild its in-memory state.
func New(path string, id uint64, logger *zap.SugaredLogger) (*Buffer, error) {
	log, err := bufferlog.Open(path)
	if err != nil {
		return nil, err
	}

	b := &Buffer{id: id, path: path, log: log, logger: logger}
	if err := bufferlog.Replay(path, func(p posting.Posting) {
		b.entries = append(b.entries, p)
	}); err != nil {
		log.Close()
		return nil, fmt.Errorf("buffer: replay %s: %w", path, err)
	}

	if logger != nil {
		logger.Infow("buffer opened", "buffer_id", id, "entries", len(b.entries))
	}
	return b, nil
}

// ID returns the buffer's stable numeric id.
func (b *Buffer) ID() uint64 { return b.id }

// Path returns the buffer's backing log file path.
func (b *Buffer) Path() string { return b.path }

// Write appends a batch of postings, persisting each to the log before
// returning. Write is rejected once the filehandle has been closed.
func (b *Buffer) Write(items []posting.Posting) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return ErrSealed
	}
	if err := b.log.Append(items); err != nil {
		return err
	}
	b.entries = append(b.entries, items...)
	return nil
}

// Filesize returns the current size, in bytes, of the buffer's log file.
// It works whether or not the filehandle has been closed.
func (b *Buffer) Filesize() (int64, error) {
	info, err := os.Stat(b.path)
	if err != nil {
		return 0, fmt.Errorf("buffer: stat %s: %w", b.path, err)
	}
	return info.Size(), nil
}

// Size returns the number of entries held by the buffer.
func (b *Buffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Info returns the count of entries matching the given key.
func (b *Buffer) Info(index, field, term []byte) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, p := range b.entries {
		if matchesKey(p.Key, index, field, term) {
			count++
		}
	}
	return count
}

// Iterator returns a lazy sorted sequence over every entry in the buffer.
func (b *Buffer) Iterator() iterutil.Iterator {
	b.mu.RLock()
	snapshot := append([]posting.Posting(nil), b.entries...)
	b.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return posting.Compare(snapshot[i], snapshot[j]) < 0
	})
	return iterutil.NewSliceIterator(snapshot)
}

// IteratorKey returns a lazy sorted sequence restricted to one key.
func (b *Buffer) IteratorKey(index, field, term []byte) iterutil.Iterator {
	b.mu.RLock()
	var snapshot []posting.Posting
	for _, p := range b.entries {
		if matchesKey(p.Key, index, field, term) {
			snapshot = append(snapshot, p)
		}
	}
	b.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return posting.Compare(snapshot[i], snapshot[j]) < 0
	})
	return iterutil.NewSliceIterator(snapshot)
}

// Iterators returns one lazy sequence per distinct term in [startTerm,
// endTerm], ordered by term. size, if non-zero, caps the number of terms
// returned.
func (b *Buffer) Iterators(index, field, startTerm, endTerm []byte, size int) []iterutil.Iterator {
	b.mu.RLock()
	byTerm := make(map[string][]posting.Posting)
	for _, p := range b.entries {
		if !bytes.Equal(p.Key.Index, index) || !bytes.Equal(p.Key.Field, field) {
			continue
		}
		if bytes.Compare(p.Key.Term, startTerm) < 0 || bytes.Compare(p.Key.Term, endTerm) > 0 {
			continue
		}
		byTerm[string(p.Key.Term)] = append(byTerm[string(p.Key.Term)], p)
	}
	b.mu.RUnlock()

	terms := make([]string, 0, len(byTerm))
	for t := range byTerm {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	if size > 0 && len(terms) > size {
		terms = terms[:size]
	}

	out := make([]iterutil.Iterator, 0, len(terms))
	for _, t := range terms {
		entries := byTerm[t]
		sort.Slice(entries, func(i, j int) bool {
			return posting.Compare(entries[i], entries[j]) < 0
		})
		out = append(out, iterutil.NewSliceIterator(entries))
	}
	return out
}

// CloseFilehandle flushes and closes the log's filehandle. The in-memory
// state remains queryable; no further Write is permitted afterward.
func (b *Buffer) CloseFilehandle() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return nil
	}
	b.sealed = true
	err := b.log.Close()
	if err == nil && b.logger != nil {
		b.logger.Infow("buffer sealed", "buffer_id", b.id, "entries", len(b.entries))
	}
	return err
}

// Delete erases the buffer's log file from disk.
func (b *Buffer) Delete() error {
	return b.log.Delete()
}

func matchesKey(k posting.Key, index, field, term []byte) bool {
	return bytes.Equal(k.Index, index) && bytes.Equal(k.Field, field) && bytes.Equal(k.Term, term)
}
