package buffer

import (
	"path/filepath"
	"testing"
)

func TestSegmentedMappingBufferCrossSegmentReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	b, err := OpenSegmentedMappingBuffer(path, ProtectionNone)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	// Straddle a segment boundary deliberately: four bytes starting
	// three bytes before the end of segment 0.
	boundary := segmentSize - 3
	if err := b.SetCapacity(boundary + segmentSize); err != nil {
		t.Fatalf("set capacity: %v", err)
	}

	data := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	if err := b.Put(boundary, data); err != nil {
		t.Fatalf("put across boundary: %v", err)
	}
	out := make([]byte, 4)
	if err := b.Get(boundary, out); err != nil {
		t.Fatalf("get across boundary: %v", err)
	}
	for i := range data {
		if out[i] != data[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, out[i], data[i])
		}
	}
}

func TestSegmentedMappingBufferCrossSegmentInteger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	b, err := OpenSegmentedMappingBuffer(path, ProtectionNone)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	boundary := segmentSize - 2
	if err := b.SetCapacity(boundary + segmentSize); err != nil {
		t.Fatal(err)
	}
	if err := b.PutI64(boundary, 0x0102030405060708); err != nil {
		t.Fatalf("put i64 across boundary: %v", err)
	}
	got, err := b.GetI64(boundary)
	if err != nil {
		t.Fatalf("get i64 across boundary: %v", err)
	}
	if got != 0x0102030405060708 {
		t.Fatalf("got %#x, want %#x", got, 0x0102030405060708)
	}
}

func TestSegmentedMappingBufferGrowAddsSegments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	b, err := OpenSegmentedMappingBuffer(path, ProtectionNone)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	if err := b.SetCapacity(segmentSize + 16); err != nil {
		t.Fatal(err)
	}
	if len(b.segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(b.segments))
	}
	if err := b.Put(segmentSize+8, []byte("xy")); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 2)
	if err := b.Get(segmentSize+8, out); err != nil {
		t.Fatal(err)
	}
	if string(out) != "xy" {
		t.Errorf("got %q", out)
	}
}

func TestSegmentedMappingBufferShrinkRemovesSegments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	b, err := OpenSegmentedMappingBuffer(path, ProtectionNone)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	if err := b.SetCapacity(segmentSize + 16); err != nil {
		t.Fatal(err)
	}
	if err := b.SetCapacity(16); err != nil {
		t.Fatal(err)
	}
	if len(b.segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(b.segments))
	}
}

func TestSegmentedMappingBufferCapacityTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	b, err := OpenSegmentedMappingBuffer(path, ProtectionNone)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	if err := b.SetCapacity(maxSegmentedCapacity + 1); err != ErrCapacityTooLarge {
		t.Errorf("SetCapacity beyond ceiling = %v, want ErrCapacityTooLarge", err)
	}
}
