//go:build !linux

package bufferlog

import "os"

// fdatasync falls back to a full file sync on platforms without a
// data-only sync call.
func fdatasync(f *os.File) error {
	return f.Sync()
}
