package vkr

import (
	"testing"

	"github.com/danielchristiancazares/freespace2/gfx"
)

func uploadTestFrame(ringSize int) *FrameContext {
	return &FrameContext{stagingRing: testRing(ringSize)}
}

// An upload that does not fit this frame's budget is deferred, not
// dropped, and the queue keeps its order so starved textures still go
// first next frame.
func TestUploadDeferralKeepsQueueOrder(t *testing.T) {
	serial := uint64(1)
	tm := testTextureManager(&serial)
	tm.bitmaps = &fakeBitmaps{data: map[gfx.TextureHandle]*gfx.BitmapData{
		200: {Pixels: make([]byte, 8*8*4), Width: 8, Height: 8, BPP: 32},
		201: {Pixels: make([]byte, 8*8*4), Width: 8, Height: 8, BPP: 32},
	}}
	tm.stagingBudget = 64 // smaller than either texture's 256 bytes

	tm.records[200] = &TextureRecord{base: 200, state: textureQueued}
	tm.records[201] = &TextureRecord{base: 201, state: textureQueued}
	tm.enqueuePending(200)
	tm.enqueuePending(201)

	tm.FlushPendingUploads(uploadTestFrame(1<<12), 1, 0)

	if len(tm.pending) != 2 || tm.pending[0] != 200 || tm.pending[1] != 201 {
		t.Fatalf("deferred queue = %v, want [200 201]", tm.pending)
	}
	for _, h := range []gfx.TextureHandle{200, 201} {
		if tm.records[h].state != textureQueued {
			t.Errorf("texture %d left the queued state", h)
		}
		if !tm.pendingSet[h] {
			t.Errorf("texture %d dropped from the pending set", h)
		}
	}
}

// The per-frame budget also clamps to what the staging ring has left.
func TestUploadBudgetClampsToStagingRemaining(t *testing.T) {
	serial := uint64(1)
	tm := testTextureManager(&serial)
	tm.bitmaps = &fakeBitmaps{data: map[gfx.TextureHandle]*gfx.BitmapData{
		300: {Pixels: make([]byte, 8*8*4), Width: 8, Height: 8, BPP: 32},
	}}
	tm.stagingBudget = 1 << 20

	tm.records[300] = &TextureRecord{base: 300, state: textureQueued}
	tm.enqueuePending(300)

	// The ring only has 64 bytes free; the 256-byte upload must wait.
	tm.FlushPendingUploads(uploadTestFrame(64), 1, 0)

	if len(tm.pending) != 1 || tm.pending[0] != 300 {
		t.Fatalf("deferred queue = %v, want [300]", tm.pending)
	}
	if tm.records[300].state != textureQueued {
		t.Error("starved texture left the queued state")
	}
}

// Deletions run before slot retries, so a slot freed by a delete can
// satisfy a starved resident in the same flush.
func TestFlushDeletesFreeSlotsForRetries(t *testing.T) {
	serial := uint64(1)
	tm := testTextureManager(&serial)

	// Every dynamic slot is held by a resident the GPU still references,
	// so nothing is evictable at completed serial 0.
	for i := 0; i < MaxBindlessTextures-firstDynamicSlot; i++ {
		base := gfx.TextureHandle(1000 + i)
		slot, ok := tm.slots.acquire(base)
		if !ok {
			t.Fatal("slot table filled early")
		}
		tm.records[base] = &TextureRecord{
			base: base, state: textureResident,
			slot: slot, hasSlot: true, lastUsedSerial: 1,
		}
	}

	// One resident waits for a slot; another is marked for deletion.
	tm.records[5000] = &TextureRecord{base: 5000, state: textureResident, lastUsedSerial: 1}
	tm.pendingSlot[5000] = true
	tm.DeleteTexture(1000)

	tm.FlushPendingUploads(uploadTestFrame(64), 2, 0)

	if _, ok := tm.records[1000]; ok {
		t.Fatal("deleted texture still tracked after flush")
	}
	rec := tm.records[5000]
	if !rec.hasSlot {
		t.Fatal("slot retry did not pick up the slot freed by the delete")
	}
	if tm.pendingSlot[5000] {
		t.Error("satisfied retry still marked pending")
	}
	if !tm.dirtySlots[rec.slot] {
		t.Error("reassigned slot not queued for a descriptor rewrite")
	}
}
