//go:build linux

package bufferlog

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync flushes file data (and only the minimum metadata needed to
// retrieve it) to stable storage, avoiding the extra inode-timestamp write
// that (*os.File).Sync performs on every call.
func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
