package deleteme

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetClearIsSet(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "segment.0001")

	if IsSet(base) {
		t.Fatal("flag should not be set before Set")
	}
	if err := Set(base); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !IsSet(base) {
		t.Fatal("flag should be set after Set")
	}
	if err := Clear(base); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if IsSet(base) {
		t.Fatal("flag should be cleared after Clear")
	}
	// Clearing an already-cleared flag is a no-op, not an error.
	if err := Clear(base); err != nil {
		t.Fatalf("Clear on already-cleared flag: %v", err)
	}
}

func TestDeleteBaseAndCompanions(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "segment.0001")
	companion := base + ".footer"

	for _, p := range []string{base, companion} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	if err := DeleteBaseAndCompanions(base); err != nil {
		t.Fatalf("DeleteBaseAndCompanions: %v", err)
	}
	for _, p := range []string{base, companion} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("%s should have been removed, stat err = %v", p, err)
		}
	}
}

func TestSweepRemovesFlaggedFiles(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "segment.old")
	survivor := filepath.Join(dir, "segment.new")

	for _, p := range []string{garbage, survivor} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	if err := Set(garbage); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := Sweep(dir); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if _, err := os.Stat(garbage); !os.IsNotExist(err) {
		t.Fatalf("garbage file should have been swept, stat err = %v", err)
	}
	if IsSet(garbage) {
		t.Fatal("garbage flag should have been removed by Sweep")
	}
	if _, err := os.Stat(survivor); err != nil {
		t.Fatalf("survivor should remain: %v", err)
	}
}
