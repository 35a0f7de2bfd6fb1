// Package segment implements the immutable, on-disk sorted posting file
// (spec §3, §4.3). A segment is created via an open-write handle guarded by
// a deleteme flag, populated once from a buffer or an iterator, then
// reopened read-only and made visible in the coordinator's segment list.
//
// On disk, a segment is a sequence of per-key blocks — each block holds the
// (already sorted, by construction) run of postings sharing one (index,
// field, term) — followed by a footer that records each key's block
// offset, compressed length, and raw length, plus the footer's own offset
// in the file's trailing 8 bytes. Reopening for read loads only the
// footer, not the data, so random term lookup and range iteration can seek
// straight to the blocks they need. Each block is framed with LZ4 (the
// host's reference pack uses pierrec/lz4 for exactly this: compressing
// variable-length framed records before they hit disk).
package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pierrec/lz4/v4"

	"github.com/ignitedb/mergeindex/internal/iterutil"
	"github.com/ignitedb/mergeindex/internal/posting"
	"github.com/ignitedb/mergeindex/pkg/errors"
)

// blockEntry is one footer record: the key it covers and where its block
// lives in the file.
type blockEntry struct {
	key            posting.Key
	offset         int64
	compressedSize int32
	rawSize        int32
	count          int32
}

// Segment is an immutable on-disk sorted posting file, opened read-only.
type Segment struct {
	path    string
	file    *os.File
	entries []blockEntry // sorted by composite key (index, field, term)
}

// Writer is the open-write handle used to populate a new segment. Writes
// must present postings in non-decreasing composite-key order; from_buffer
// and from_iterator both satisfy this by construction.
type Writer struct {
	path    string
	file    *os.File
	entries []blockEntry

	curKey    posting.Key
	haveKey   bool
	curBuf    []posting.Posting
	curOffset int64
}

// OpenWrite creates path for writing. Callers are expected to have already
// set a deleteme flag at path before calling this, so a crash mid-write
// leaves an unambiguous garbage file for the startup sweep to collect.
func OpenWrite(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}
	return &Writer{path: path, file: f}, nil
}

// Append adds one posting to the segment being written. Postings must
// arrive in sorted composite-key order (the order every buffer/segment
// iterator already produces).
func (w *Writer) Append(p posting.Posting) error {
	if w.haveKey && !posting.SameKey(w.curKey, p.Key) {
		if err := w.flushBlock(); err != nil {
			return err
		}
	}
	if !w.haveKey {
		w.curKey = p.Key
		w.haveKey = true
	}
	w.curBuf = append(w.curBuf, p)
	return nil
}

func (w *Writer) flushBlock() error {
	if len(w.curBuf) == 0 {
		return nil
	}
	raw := make([]byte, 0, 128*len(w.curBuf))
	for _, p := range w.curBuf {
		raw = append(raw, posting.Encode(p)...)
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(raw)))
	var ht [1 << 16]int
	n, err := lz4.CompressBlock(raw, compressed, ht[:])
	if err != nil {
		return fmt.Errorf("segment: compress block for %s: %w", w.path, err)
	}
	if n == 0 || n >= len(raw) {
		// Incompressible (or too small to benefit): store raw, marked by a
		// compressed size equal to the raw size.
		compressed = raw
		n = len(raw)
	}

	if _, err := w.file.Write(compressed[:n]); err != nil {
		return fmt.Errorf("segment: write block for %s: %w", w.path, err)
	}

	w.entries = append(w.entries, blockEntry{
		key:            w.curKey,
		offset:         w.curOffset,
		compressedSize: int32(n),
		rawSize:        int32(len(raw)),
		count:          int32(len(w.curBuf)),
	})
	w.curOffset += int64(n)
	w.curBuf = w.curBuf[:0]
	w.haveKey = false
	return nil
}

// FromIterator writes every entry of a sorted source iterator into the
// segment. Used for both from_buffer (buffer.Iterator()) and from_iterator
// (a merge-combinator tree, e.g. from the compactor).
func FromIterator(path string, src iterutil.Iterator) (*Segment, error) {
	w, err := OpenWrite(path)
	if err != nil {
		return nil, err
	}
	for {
		p, ok, err := src.Next()
		if err != nil {
			w.file.Close()
			return nil, err
		}
		if !ok {
			break
		}
		if err := w.Append(p); err != nil {
			w.file.Close()
			return nil, err
		}
	}
	return w.Close()
}

// Close flushes the final block, writes the footer, and reopens the
// segment read-only.
func (w *Writer) Close() (*Segment, error) {
	if err := w.flushBlock(); err != nil {
		w.file.Close()
		return nil, err
	}

	footerOffset := w.curOffset
	for _, e := range w.entries {
		if err := writeFooterEntry(w.file, e); err != nil {
			w.file.Close()
			return nil, err
		}
	}

	var tail [8]byte
	binary.BigEndian.PutUint64(tail[:], uint64(footerOffset))
	if _, err := w.file.Write(tail[:]); err != nil {
		w.file.Close()
		return nil, fmt.Errorf("segment: write footer pointer for %s: %w", w.path, err)
	}

	if err := w.file.Close(); err != nil {
		return nil, fmt.Errorf("segment: close write handle for %s: %w", w.path, err)
	}

	return OpenRead(w.path)
}

// Filename returns the data file path a Writer will produce.
func (w *Writer) Filename() string { return w.path }

func writeFooterEntry(f *os.File, e blockEntry) error {
	buf := make([]byte, 0, 64)
	buf = appendLP(buf, e.key.Index)
	buf = appendLP(buf, e.key.Field)
	buf = appendLP(buf, e.key.Term)
	var fixed [20]byte
	binary.BigEndian.PutUint64(fixed[0:8], uint64(e.offset))
	binary.BigEndian.PutUint32(fixed[8:12], uint32(e.compressedSize))
	binary.BigEndian.PutUint32(fixed[12:16], uint32(e.rawSize))
	binary.BigEndian.PutUint32(fixed[16:20], uint32(e.count))
	buf = append(buf, fixed[:]...)
	_, err := f.Write(buf)
	return err
}

func appendLP(dst []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, b...)
}

func readLP(b []byte) ([]byte, int, error) {
	if len(b) < 4 {
		return nil, 0, fmt.Errorf("segment: truncated footer field")
	}
	n := int(binary.BigEndian.Uint32(b[:4]))
	if len(b) < 4+n {
		return nil, 0, fmt.Errorf("segment: truncated footer field")
	}
	out := make([]byte, n)
	copy(out, b[4:4+n])
	return out, 4 + n, nil
}

// OpenRead opens an existing segment file read-only, loading its footer.
func OpenRead(path string) (*Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment: stat %s: %w", path, err)
	}
	size := info.Size()
	if size < 8 {
		f.Close()
		return nil, errors.NewStorageError(nil, errors.ErrorCodeSegmentCorrupted, "segment too small to contain a footer").
			WithFileName(filepath.Base(path)).WithPath(path)
	}

	var tail [8]byte
	if _, err := f.ReadAt(tail[:], size-8); err != nil {
		f.Close()
		return nil, errors.NewStorageError(err, errors.ErrorCodeHeaderReadFailure, "failed to read segment footer pointer").
			WithFileName(filepath.Base(path)).WithPath(path).WithOffset(int(size - 8))
	}
	footerOffset := int64(binary.BigEndian.Uint64(tail[:]))

	footerBuf := make([]byte, size-8-footerOffset)
	if _, err := f.ReadAt(footerBuf, footerOffset); err != nil {
		f.Close()
		return nil, errors.NewStorageError(err, errors.ErrorCodeHeaderReadFailure, "failed to read segment footer").
			WithFileName(filepath.Base(path)).WithPath(path).WithOffset(int(footerOffset))
	}

	var entries []blockEntry
	off := 0
	for off < len(footerBuf) {
		var e blockEntry
		var n int
		var err error
		if e.key.Index, n, err = readLP(footerBuf[off:]); err != nil {
			f.Close()
			return nil, err
		}
		off += n
		if e.key.Field, n, err = readLP(footerBuf[off:]); err != nil {
			f.Close()
			return nil, err
		}
		off += n
		if e.key.Term, n, err = readLP(footerBuf[off:]); err != nil {
			f.Close()
			return nil, err
		}
		off += n
		if off+20 > len(footerBuf) {
			f.Close()
			return nil, fmt.Errorf("segment: truncated footer fixed fields in %s", path)
		}
		e.offset = int64(binary.BigEndian.Uint64(footerBuf[off : off+8]))
		e.compressedSize = int32(binary.BigEndian.Uint32(footerBuf[off+8 : off+12]))
		e.rawSize = int32(binary.BigEndian.Uint32(footerBuf[off+12 : off+16]))
		e.count = int32(binary.BigEndian.Uint32(footerBuf[off+16 : off+20]))
		off += 20
		entries = append(entries, e)
	}

	return &Segment{path: path, file: f, entries: entries}, nil
}

func (s *Segment) readBlock(e blockEntry) ([]posting.Posting, error) {
	compressed := make([]byte, e.compressedSize)
	if _, err := s.file.ReadAt(compressed, e.offset); err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodePayloadReadFailure, "failed to read segment block").
			WithFileName(filepath.Base(s.path)).WithPath(s.path).WithOffset(int(e.offset))
	}

	var raw []byte
	if e.compressedSize == e.rawSize {
		raw = compressed
	} else {
		raw = make([]byte, e.rawSize)
		n, err := lz4.UncompressBlock(compressed, raw)
		if err != nil {
			return nil, errors.NewStorageError(err, errors.ErrorCodeSegmentCorrupted, "failed to decompress segment block").
				WithFileName(filepath.Base(s.path)).WithPath(s.path).WithOffset(int(e.offset))
		}
		raw = raw[:n]
	}

	postings := make([]posting.Posting, 0, e.count)
	off := 0
	for off < len(raw) {
		p, n, err := posting.Decode(raw[off:])
		if err != nil {
			return nil, fmt.Errorf("segment: decode posting in %s: %w", s.path, err)
		}
		postings = append(postings, p)
		off += n
	}
	return postings, nil
}

func keyLess(a, b posting.Key) bool {
	if c := bytes.Compare(a.Index, b.Index); c != 0 {
		return c < 0
	}
	if c := bytes.Compare(a.Field, b.Field); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.Term, b.Term) < 0
}

func (s *Segment) findKey(index, field, term []byte) (blockEntry, bool) {
	want := posting.Key{Index: index, Field: field, Term: term}
	i := sort.Search(len(s.entries), func(i int) bool {
		return !keyLess(s.entries[i].key, want)
	})
	if i < len(s.entries) && posting.SameKey(s.entries[i].key, want) {
		return s.entries[i], true
	}
	return blockEntry{}, false
}

// Iterator returns a lazy sequence over every posting in the segment.
func (s *Segment) Iterator() iterutil.Iterator {
	return &segmentIterator{seg: s, entries: s.entries}
}

// IteratorKey returns a lazy sequence restricted to one key.
func (s *Segment) IteratorKey(index, field, term []byte) iterutil.Iterator {
	e, ok := s.findKey(index, field, term)
	if !ok {
		return iterutil.NewSliceIterator(nil)
	}
	return &segmentIterator{seg: s, entries: []blockEntry{e}}
}

// Iterators returns one lazy sequence per distinct term in [startTerm,
// endTerm], ordered by term, capped to size entries if size > 0.
func (s *Segment) Iterators(index, field, startTerm, endTerm []byte, size int) []iterutil.Iterator {
	lo := posting.Key{Index: index, Field: field, Term: startTerm}
	start := sort.Search(len(s.entries), func(i int) bool {
		return !keyLess(s.entries[i].key, lo)
	})

	var out []iterutil.Iterator
	for i := start; i < len(s.entries); i++ {
		e := s.entries[i]
		if !bytes.Equal(e.key.Index, index) || !bytes.Equal(e.key.Field, field) {
			break
		}
		if bytes.Compare(e.key.Term, endTerm) > 0 {
			break
		}
		out = append(out, &segmentIterator{seg: s, entries: []blockEntry{e}})
		if size > 0 && len(out) >= size {
			break
		}
	}
	return out
}

// Info returns the segment's weight for a key: zero if the term shares a
// block with other terms (never the case in this segment's one-key-per-block
// layout — every resolvable key has its own block), else the block's
// compressed size in bytes (spec §4.3, §9).
func (s *Segment) Info(index, field, term []byte) int {
	e, ok := s.findKey(index, field, term)
	if !ok {
		return 0
	}
	return int(e.compressedSize)
}

// Filesize returns the segment file's size in bytes.
func (s *Segment) Filesize() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("segment: stat %s: %w", s.path, err)
	}
	return info.Size(), nil
}

// Filename returns the segment's backing file path.
func (s *Segment) Filename() string { return s.path }

// Close releases the segment's read filehandle.
func (s *Segment) Close() error {
	return s.file.Close()
}

// Delete removes the segment's data file from disk.
func (s *Segment) Delete() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("segment: delete %s: %w", s.path, err)
	}
	return nil
}

// segmentIterator lazily decompresses each block entry's postings only when
// first needed, exhausting one block before moving to the next.
type segmentIterator struct {
	seg     *Segment
	entries []blockEntry
	cur     []posting.Posting
	pos     int
	idx     int
}

func (it *segmentIterator) Next() (posting.Posting, bool, error) {
	for it.pos >= len(it.cur) {
		if it.idx >= len(it.entries) {
			return posting.Posting{}, false, nil
		}
		postings, err := it.seg.readBlock(it.entries[it.idx])
		if err != nil {
			return posting.Posting{}, false, err
		}
		it.cur = postings
		it.pos = 0
		it.idx++
	}
	p := it.cur[it.pos]
	it.pos++
	return p, true, nil
}

func (it *segmentIterator) Close() error { return nil }
