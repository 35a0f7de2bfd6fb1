// Package bufferlog implements the write-ahead log file that backs one
// buffer (spec §3, §4.2): a plain append-only file of posting.Encode
// records, replayed in full on open to rebuild the buffer's in-memory
// state after a restart.
package bufferlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ignitedb/mergeindex/internal/posting"
	"github.com/ignitedb/mergeindex/pkg/errors"
)

// Log is the on-disk append-only record stream for one buffer.
type Log struct {
	path   string
	file   *os.File
	closed bool
}

// Open creates the log file if absent or opens it for append if present.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, filepath.Base(path))
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("bufferlog: seek end %s: %w", path, err)
	}
	return &Log{path: path, file: f}, nil
}

// Replay reads every record currently in the log, in write order, invoking
// fn for each successfully decoded posting. A truncated trailing record
// (the tail of a write that was interrupted by a crash) is treated as the
// end of the log rather than an error, since the buffer never acknowledged
// that write to its caller.
func Replay(path string, fn func(posting.Posting)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("bufferlog: replay %s: %w", path, err)
	}

	off := 0
	for off < len(data) {
		p, n, err := posting.Decode(data[off:])
		if err != nil {
			// Partial trailing record from an interrupted write; stop here.
			break
		}
		fn(p)
		off += n
	}
	return nil
}

// Append writes one batch of postings to the log and durably flushes before
// returning, so a caller observing a successful Write has the guarantee
// that the batch survives a crash.
func (l *Log) Append(items []posting.Posting) error {
	if l.closed {
		return ErrClosed
	}
	buf := make([]byte, 0, 128*len(items))
	for _, p := range items {
		buf = append(buf, posting.Encode(p)...)
	}
	if _, err := l.file.Write(buf); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to append to buffer log").
			WithFileName(filepath.Base(l.path)).WithPath(l.path)
	}
	if err := fdatasync(l.file); err != nil {
		size, _ := l.Filesize()
		return errors.ClassifySyncError(err, filepath.Base(l.path), l.path, int(size))
	}
	return nil
}

// Filesize returns the current size of the log file in bytes.
func (l *Log) Filesize() (int64, error) {
	info, err := l.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("bufferlog: stat %s: %w", l.path, err)
	}
	return info.Size(), nil
}

// Close flushes and closes the log's filehandle. The log's on-disk content
// remains in place; only in-memory/filehandle state is released. No further
// Append calls are permitted after Close.
func (l *Log) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("bufferlog: close %s: %w", l.path, err)
	}
	return nil
}

// Delete erases the log file from disk. The log must already be closed.
func (l *Log) Delete() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("bufferlog: delete %s: %w", l.path, err)
	}
	return nil
}

// Path returns the log's backing file path.
func (l *Log) Path() string {
	return l.path
}
