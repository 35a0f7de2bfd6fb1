// Package posting defines the unit of data stored by the merge index and the
// composite-key ordering that every buffer and segment sorts by.
package posting

import (
	"bytes"
	"encoding/binary"
)

// Tombstone is the sentinel Props value that marks a posting as a deletion
// of every prior posting sharing its (Key, Value).
var Tombstone = []byte("\x00__tombstone__\x00")

// IsTombstone reports whether props is the tombstone sentinel.
func IsTombstone(props []byte) bool {
	return bytes.Equal(props, Tombstone)
}

// Key is the triple that identifies a term: the unit of lookup and of
// adjacency within a segment.
type Key struct {
	Index []byte
	Field []byte
	Term  []byte
}

// Posting is a single indexed fact: a value seen for a key at a point in
// time, carrying opaque properties (or the tombstone sentinel).
type Posting struct {
	Key       Key
	Value     []byte
	Timestamp int64
	Props     []byte
}

// Compare orders two postings by the composite key (index, field, term,
// value, -timestamp). Newer timestamps sort first for the same (key, value)
// so that the first posting encountered during a merge-sorted scan wins.
func Compare(a, b Posting) int {
	if c := bytes.Compare(a.Key.Index, b.Key.Index); c != 0 {
		return c
	}
	if c := bytes.Compare(a.Key.Field, b.Key.Field); c != 0 {
		return c
	}
	if c := bytes.Compare(a.Key.Term, b.Key.Term); c != 0 {
		return c
	}
	if c := bytes.Compare(a.Value, b.Value); c != 0 {
		return c
	}
	// Descending timestamp: the larger timestamp must sort first.
	switch {
	case a.Timestamp > b.Timestamp:
		return -1
	case a.Timestamp < b.Timestamp:
		return 1
	default:
		return 0
	}
}

// SameKey reports whether two postings share the same (index, field, term).
func SameKey(a, b Key) bool {
	return bytes.Equal(a.Index, b.Index) && bytes.Equal(a.Field, b.Field) && bytes.Equal(a.Term, b.Term)
}

// Encode serializes a posting into a length-prefixed record suitable for a
// buffer's write-ahead log or a segment's data block. The layout is a flat
// sequence of (4-byte big-endian length, bytes) fields in key order followed by the
// timestamp and properties, chosen for cheap sequential replay rather than
// random access — random access within a segment is provided by the
// in-memory index segment.Segment builds at open time, not by this format.
func Encode(p Posting) []byte {
	buf := make([]byte, 0, 64+len(p.Value)+len(p.Props))
	buf = appendBytes(buf, p.Key.Index)
	buf = appendBytes(buf, p.Key.Field)
	buf = appendBytes(buf, p.Key.Term)
	buf = appendBytes(buf, p.Value)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(p.Timestamp))
	buf = append(buf, ts[:]...)
	buf = appendBytes(buf, p.Props)
	return buf
}

// Decode parses a record produced by Encode. It returns the number of bytes
// consumed so callers can advance through a concatenated stream.
func Decode(b []byte) (Posting, int, error) {
	var p Posting
	off := 0

	read := func() ([]byte, error) {
		v, n, err := readBytes(b[off:])
		off += n
		return v, err
	}

	var err error
	if p.Key.Index, err = read(); err != nil {
		return p, 0, err
	}
	if p.Key.Field, err = read(); err != nil {
		return p, 0, err
	}
	if p.Key.Term, err = read(); err != nil {
		return p, 0, err
	}
	if p.Value, err = read(); err != nil {
		return p, 0, err
	}
	if off+8 > len(b) {
		return p, 0, errShortRecord
	}
	p.Timestamp = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8
	if p.Props, err = read(); err != nil {
		return p, 0, err
	}
	return p, off, nil
}

func appendBytes(dst []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, b...)
}

func readBytes(b []byte) ([]byte, int, error) {
	if len(b) < 4 {
		return nil, 0, errShortRecord
	}
	n := int(binary.BigEndian.Uint32(b[:4]))
	if len(b) < 4+n {
		return nil, 0, errShortRecord
	}
	out := make([]byte, n)
	copy(out, b[4:4+n])
	return out, 4 + n, nil
}
