// Package seginfo discovers and parses the merge index's on-disk filenames.
//
// Filename Format (spec §6 "External interfaces"):
//
//	buffer.N                          — write-ahead log for buffer id N
//	segment.N, segment.N.data, ...    — immutable segment id N (integer)
//	segment.<HEX>, segment.<HEX>.data — immutable compaction-output segment
//	<basename>.deleted                — deleteme flag for any base name
//
// The id lives in the second "."-separated field of the filename: an
// integer there yields a scalar id, an "M-N" fragment yields a pair
// reserved for compacted segments that record their id range, and anything
// else is treated as a hex digest (the id space compaction mints).
package seginfo

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ignitedb/mergeindex/pkg/filesys"
)

// FilenameID is the parsed second field of a merge-index filename.
type FilenameID struct {
	IsPair bool
	Pair   [2]int64
	IsHex  bool
	Hex    string
	Scalar int64
}

// ParseFilenameID extracts and classifies the id field from a filename (not
// a full path). It does not strip a trailing ".deleted" or ".data"
// companion suffix — callers pass the base name they care about.
func ParseFilenameID(name string) (FilenameID, error) {
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return FilenameID{}, fmt.Errorf("seginfo: %q has no id field", name)
	}
	field := parts[1]

	if strings.Contains(field, "-") {
		mn := strings.SplitN(field, "-", 2)
		if len(mn) == 2 {
			m, errM := strconv.ParseInt(mn[0], 10, 64)
			n, errN := strconv.ParseInt(mn[1], 10, 64)
			if errM == nil && errN == nil {
				return FilenameID{IsPair: true, Pair: [2]int64{m, n}}, nil
			}
		}
	}

	if v, err := strconv.ParseInt(field, 10, 64); err == nil {
		return FilenameID{Scalar: v}, nil
	}

	return FilenameID{IsHex: true, Hex: field}, nil
}

// BufferName returns the write-ahead log filename for buffer id.
func BufferName(id uint64) string {
	return fmt.Sprintf("buffer.%d", id)
}

// SegmentName returns the data filename for a segment identified by a
// decimal id (segments produced directly from a sealed buffer).
func SegmentName(id uint64) string {
	return fmt.Sprintf("segment.%d", id)
}

// SegmentNameHex returns the data filename for a segment identified by a
// hex digest (compaction output).
func SegmentNameHex(hex string) string {
	return fmt.Sprintf("segment.%s", hex)
}

// ListBuffers returns the buffer.N files directly under dir, full paths.
func ListBuffers(dir string) ([]string, error) {
	return filesys.ReadDir(filepath.Join(dir, "buffer.*"))
}

// ListSegments returns the segment.* files directly under dir that are not
// deleteme flags or companion files, full paths.
func ListSegments(dir string) ([]string, error) {
	matches, err := filesys.ReadDir(filepath.Join(dir, "segment.*"))
	if err != nil {
		return nil, err
	}
	out := matches[:0]
	for _, m := range matches {
		// "segment.<id>" has one dot; a longer name is a companion file.
		if strings.HasSuffix(m, ".deleted") || strings.Count(filepath.Base(m), ".") > 1 {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// BufferID parses the numeric id out of a buffer.N path.
func BufferID(path string) (uint64, error) {
	id, err := ParseFilenameID(filepath.Base(path))
	if err != nil {
		return 0, err
	}
	if id.IsHex || id.IsPair {
		return 0, fmt.Errorf("seginfo: %q is not a scalar buffer id", path)
	}
	return uint64(id.Scalar), nil
}
