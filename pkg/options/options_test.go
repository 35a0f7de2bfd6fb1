package options

import (
	"testing"
	"time"
)

func TestWithDataDirTrimsAndIgnoresBlank(t *testing.T) {
	o := NewDefaultOptions()
	original := o.DataDir

	WithDataDir("  /tmp/store  ")(&o)
	if o.DataDir != "/tmp/store" {
		t.Fatalf("got DataDir %q, want trimmed value", o.DataDir)
	}

	WithDataDir("   ")(&o)
	if o.DataDir != "/tmp/store" {
		t.Fatalf("blank directory should be ignored, got %q", o.DataDir)
	}
	_ = original
}

func TestWithBufferRolloverSizeEnforcesBounds(t *testing.T) {
	o := NewDefaultOptions()
	original := o.BufferOptions.RolloverSize

	WithBufferRolloverSize(0)(&o)
	if o.BufferOptions.RolloverSize != original {
		t.Fatalf("size below the floor should be rejected, got %d", o.BufferOptions.RolloverSize)
	}

	WithBufferRolloverSize(MaxBufferRolloverSize * 2)(&o)
	if o.BufferOptions.RolloverSize != original {
		t.Fatalf("size above the ceiling should be rejected, got %d", o.BufferOptions.RolloverSize)
	}

	WithBufferRolloverSize(8 << 20)(&o)
	if o.BufferOptions.RolloverSize != 8<<20 {
		t.Fatalf("got RolloverSize %d, want %d", o.BufferOptions.RolloverSize, 8<<20)
	}
}

func TestWithMaxCompactSegmentsRejectsTooSmall(t *testing.T) {
	o := NewDefaultOptions()
	WithMaxCompactSegments(1)(&o)
	if o.CompactionOptions.MaxSegments != DefaultMaxCompactSegments {
		t.Fatalf("n<=1 should be rejected, got %d", o.CompactionOptions.MaxSegments)
	}
	WithMaxCompactSegments(5)(&o)
	if o.CompactionOptions.MaxSegments != 5 {
		t.Fatalf("got MaxSegments %d, want 5", o.CompactionOptions.MaxSegments)
	}
}

func TestWithCompactIntervalRejectsNonPositive(t *testing.T) {
	o := NewDefaultOptions()
	WithCompactInterval(-time.Second)(&o)
	if o.CompactionOptions.Interval != DefaultCompactInterval {
		t.Fatalf("negative interval should be rejected, got %v", o.CompactionOptions.Interval)
	}
	WithCompactInterval(time.Minute)(&o)
	if o.CompactionOptions.Interval != time.Minute {
		t.Fatalf("got Interval %v, want 1m", o.CompactionOptions.Interval)
	}
}

func TestNewDefaultOptionsDeepCopiesNestedPointers(t *testing.T) {
	a := NewDefaultOptions()
	b := NewDefaultOptions()
	a.BufferOptions.RolloverSize = 1
	if b.BufferOptions.RolloverSize == 1 {
		t.Fatal("NewDefaultOptions should not share BufferOptions between instances")
	}
}
