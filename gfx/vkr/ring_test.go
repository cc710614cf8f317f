package vkr

import "testing"

// rings in tests are built without a device; Allocate and Reset never
// touch the GPU.
func bareTestRing(size, defaultAlign uint64) *RingBuffer {
	return &RingBuffer{size: size, defaultAlign: defaultAlign}
}

func TestRingAllocationsAreDisjoint(t *testing.T) {
	ring := bareTestRing(4096, 256)

	var prevEnd uint64
	for i := 0; i < 8; i++ {
		alloc, ok := ring.Allocate(100, 0)
		if !ok {
			t.Fatalf("allocation %d failed", i)
		}
		if uint64(alloc.Offset) < prevEnd {
			t.Errorf("allocation %d at %d overlaps previous end %d", i, alloc.Offset, prevEnd)
		}
		if uint64(alloc.Offset)%256 != 0 {
			t.Errorf("allocation %d at %d not aligned to 256", i, alloc.Offset)
		}
		prevEnd = uint64(alloc.Offset) + 100
	}
}

func TestRingExhaustion(t *testing.T) {
	ring := bareTestRing(1024, 1)

	if _, ok := ring.Allocate(1000, 0); !ok {
		t.Fatal("first allocation should fit")
	}
	if _, ok := ring.Allocate(100, 0); ok {
		t.Error("allocation past the end should fail")
	}
	// Failure must not move the cursor: a smaller allocation still fits.
	if _, ok := ring.Allocate(24, 0); !ok {
		t.Error("remaining space not allocatable after a failed allocation")
	}
}

func TestRingReset(t *testing.T) {
	ring := bareTestRing(512, 1)

	ring.Allocate(512, 0)
	if _, ok := ring.Allocate(1, 0); ok {
		t.Fatal("ring should be exhausted")
	}
	ring.Reset()
	alloc, ok := ring.Allocate(512, 0)
	if !ok {
		t.Fatal("allocation after reset failed")
	}
	if alloc.Offset != 0 {
		t.Errorf("offset after reset = %d, want 0", alloc.Offset)
	}
}

func TestRingExplicitAlignment(t *testing.T) {
	ring := bareTestRing(4096, 4)

	ring.Allocate(10, 0)
	alloc, ok := ring.Allocate(16, 1024)
	if !ok {
		t.Fatal("aligned allocation failed")
	}
	if alloc.Offset != 1024 {
		t.Errorf("offset = %d, want 1024", alloc.Offset)
	}
}

func TestRingRemaining(t *testing.T) {
	ring := bareTestRing(1000, 1)
	if ring.Remaining() != 1000 {
		t.Errorf("fresh ring remaining = %d", ring.Remaining())
	}
	ring.Allocate(600, 0)
	if ring.Remaining() != 400 {
		t.Errorf("remaining = %d, want 400", ring.Remaining())
	}
}
