package filesys

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRemoveGlobDeletesMatches(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"segment.1", "segment.2", "buffer.1"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	if err := RemoveGlob(filepath.Join(dir, "segment.*")); err != nil {
		t.Fatalf("RemoveGlob: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "segment.1")); !os.IsNotExist(err) {
		t.Fatalf("segment.1 should have been removed, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "buffer.1")); err != nil {
		t.Fatalf("buffer.1 should remain: %v", err)
	}
}

func TestRemoveGlobMissingFilesIsNotAnError(t *testing.T) {
	if err := RemoveGlob(filepath.Join(t.TempDir(), "nothing.*")); err != nil {
		t.Fatalf("RemoveGlob over no matches should not error: %v", err)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if ok, err := Exists(path); err != nil || ok {
		t.Fatalf("Exists before creation: ok=%v err=%v", ok, err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ok, err := Exists(path); err != nil || !ok {
		t.Fatalf("Exists after creation: ok=%v err=%v", ok, err)
	}
}
