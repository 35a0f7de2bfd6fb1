// Package deleteme implements the sidecar marker-file protocol that makes
// segment and buffer creation and deletion crash-atomic (spec §3, §6).
//
// A zero-byte file "<base>.deleted" asserts that base, and every file
// matching "<base>.*", is garbage and must be removed on the next startup
// sweep. The flag is set before a file is unlinked from the buffer/segment
// list, and cleared before a new file becomes visible — so a crash between
// those steps always leaves the on-disk state recoverable by Sweep.
package deleteme

import (
	"fmt"
	"os"
	"path/filepath"
)

// Suffix is the extension that marks a base path for deletion.
const Suffix = ".deleted"

// FlagPath returns the deleteme flag path for base.
func FlagPath(base string) string {
	return base + Suffix
}

// Set creates the deleteme flag for base, asserting it (and its companions)
// are garbage.
func Set(base string) error {
	f, err := os.OpenFile(FlagPath(base), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("deleteme: set flag for %s: %w", base, err)
	}
	return f.Close()
}

// Clear removes the deleteme flag for base, if present.
func Clear(base string) error {
	err := os.Remove(FlagPath(base))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleteme: clear flag for %s: %w", base, err)
	}
	return nil
}

// IsSet reports whether base currently carries a deleteme flag.
func IsSet(base string) bool {
	_, err := os.Stat(FlagPath(base))
	return err == nil
}

// DeleteBaseAndCompanions removes base and every file matching "base.*",
// including the flag itself. Used both by Sweep and by the coordinator's
// WhenFree release actions.
func DeleteBaseAndCompanions(base string) error {
	matches, err := filepath.Glob(base + ".*")
	if err != nil {
		return fmt.Errorf("deleteme: glob companions of %s: %w", base, err)
	}
	if err := os.Remove(base); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleteme: remove %s: %w", base, err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleteme: remove companion %s: %w", m, err)
		}
	}
	return nil
}

// Sweep implements the startup sweep of spec §6 step 1: for every
// "*.deleted" flag found directly under dir, delete the flag and every file
// matching "<basename>.*".
func Sweep(dir string) error {
	flags, err := filepath.Glob(filepath.Join(dir, "*"+Suffix))
	if err != nil {
		return fmt.Errorf("deleteme: sweep glob: %w", err)
	}
	for _, flag := range flags {
		base := flag[:len(flag)-len(Suffix)]
		if err := DeleteBaseAndCompanions(base); err != nil {
			return err
		}
	}
	return nil
}
