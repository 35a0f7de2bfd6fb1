package engine

import (
	"context"
	"testing"

	"github.com/ignitedb/mergeindex/internal/coordinator"
	"github.com/ignitedb/mergeindex/pkg/options"
)

func TestNewAndCloseIsIdempotent(t *testing.T) {
	opts := options.NewDefaultOptions()
	opts.DataDir = t.TempDir()

	e, err := New(context.Background(), &Config{Options: &opts})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := e.Coordinator().Index([]coordinator.PostingInput{
		{Index: []byte("i"), Field: []byte("f"), Term: []byte("t"), Value: []byte("v"), Timestamp: 1},
	}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != ErrEngineClosed {
		t.Fatalf("second Close: got %v, want ErrEngineClosed", err)
	}
}
