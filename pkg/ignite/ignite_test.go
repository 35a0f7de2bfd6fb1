package ignite

import (
	"context"
	"testing"
	"time"

	"github.com/ignitedb/mergeindex/pkg/options"
)

func TestInstanceIndexAndStream(t *testing.T) {
	dir := t.TempDir()
	inst, err := NewInstance(context.Background(), "test", options.WithDataDir(dir))
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	defer inst.Close()

	err = inst.Index([]PostingInput{
		{Index: []byte("i"), Field: []byte("f"), Term: []byte("t"), Value: []byte("v"), Timestamp: 1, Props: []byte("p")},
	})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}

	out := make(chan []Result, 4)
	if err := inst.Stream([]byte("i"), []byte("f"), []byte("t"), nil, out); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var got []Result
	timeout := time.After(5 * time.Second)
	for {
		select {
		case batch, ok := <-out:
			if !ok {
				if len(got) != 1 || string(got[0].Value) != "v" {
					t.Fatalf("got %+v, want a single posting with value v", got)
				}
				return
			}
			got = append(got, batch...)
		case <-timeout:
			t.Fatal("timed out waiting for stream")
		}
	}
}

func TestInstanceStatsJSON(t *testing.T) {
	dir := t.TempDir()
	inst, err := NewInstance(context.Background(), "test", options.WithDataDir(dir))
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	defer inst.Close()

	raw, err := inst.StatsJSON()
	if err != nil {
		t.Fatalf("StatsJSON: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected non-empty JSON")
	}
}
