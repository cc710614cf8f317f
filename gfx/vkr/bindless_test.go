package vkr

import (
	"errors"
	"testing"

	vk "github.com/Eiton/vulkan"

	"github.com/danielchristiancazares/freespace2/gfx"
)

func TestSlotTableReservations(t *testing.T) {
	table := newSlotTable(MaxBindlessTextures)

	if table.freeCount() != MaxBindlessTextures-firstDynamicSlot {
		t.Errorf("free = %d, want %d", table.freeCount(), MaxBindlessTextures-firstDynamicSlot)
	}
	if table.occupant(slotFallback) != gfx.FallbackTextureHandle {
		t.Error("slot 0 must hold the fallback")
	}
	if table.occupant(slotDefaultWhite) != gfx.DefaultTextureHandle {
		t.Error("slot 1 must hold default white")
	}

	slot, ok := table.acquire(42)
	if !ok {
		t.Fatal("acquire failed on a fresh table")
	}
	if slot < firstDynamicSlot {
		t.Errorf("acquire handed out reserved slot %d", slot)
	}
	if table.occupant(slot) != 42 {
		t.Error("occupant not recorded")
	}

	table.release(slot)
	if table.occupant(slot) != slotNone {
		t.Error("slot still occupied after release")
	}
}

func TestSlotTableExhaustion(t *testing.T) {
	table := newSlotTable(MaxBindlessTextures)
	for i := 0; i < MaxBindlessTextures-firstDynamicSlot; i++ {
		if _, ok := table.acquire(gfx.TextureHandle(i)); !ok {
			t.Fatalf("acquire %d failed early", i)
		}
	}
	if _, ok := table.acquire(9999); ok {
		t.Error("acquire succeeded on a full table")
	}
}

func TestSlotTableReleaseBuiltinPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("releasing a built-in slot must panic")
		}
	}()
	newSlotTable(MaxBindlessTextures).release(slotFallback)
}

type fakeBitmaps struct {
	frames map[gfx.TextureHandle]int
	data   map[gfx.TextureHandle]*gfx.BitmapData
}

func (f *fakeBitmaps) Lock(h gfx.TextureHandle, bpp int, flags gfx.BitmapFlags) (*gfx.BitmapData, error) {
	if d, ok := f.data[h]; ok {
		return d, nil
	}
	return nil, errors.New("no such bitmap")
}
func (f *fakeBitmaps) Unlock(h gfx.TextureHandle) {}
func (f *fakeBitmaps) BaseFrame(h gfx.TextureHandle) (gfx.TextureHandle, int) {
	if n, ok := f.frames[h]; ok {
		return h, n
	}
	return h, 1
}
func (f *fakeBitmaps) IsTextureArray(h gfx.TextureHandle) bool { return true }

// testTextureManager builds a manager whose sampler cache is pre-warmed
// so no device calls happen during slot resolution.
func testTextureManager(serial *uint64) *TextureManager {
	defaultKey := SamplerKey{Filter: vk.FilterLinear, AddressMode: vk.SamplerAddressModeRepeat}
	tm := &TextureManager{
		bitmaps:      &fakeBitmaps{},
		samplers:     &samplerCache{samplers: map[SamplerKey]vk.Sampler{defaultKey: nil}},
		slots:        newSlotTable(MaxBindlessTextures),
		records:      make(map[gfx.TextureHandle]*TextureRecord),
		pendingSet:   make(map[gfx.TextureHandle]bool),
		pendingSlot:  make(map[gfx.TextureHandle]bool),
		dirtySlots:   make(map[uint32]bool),
		submitSerial: func() uint64 { return *serial },
	}
	return tm
}

func TestUnavailableAlwaysFallback(t *testing.T) {
	serial := uint64(1)
	tm := testTextureManager(&serial)
	tm.records[50] = &TextureRecord{base: 50, state: textureUnavailable}

	for i := 0; i < 3; i++ {
		if slot := tm.GetBindlessSlotIndex(50, uint64(i)); slot != slotFallback {
			t.Errorf("unavailable texture got slot %d, want fallback", slot)
		}
	}
	if tm.pendingSet[50] {
		t.Error("unavailable texture re-queued for upload")
	}
}

func TestQueuedServesFallback(t *testing.T) {
	serial := uint64(1)
	tm := testTextureManager(&serial)

	if slot := tm.GetBindlessSlotIndex(60, 1); slot != slotFallback {
		t.Errorf("first use got slot %d, want fallback", slot)
	}
	if !tm.pendingSet[60] {
		t.Error("first use did not queue an upload")
	}
}

func TestPendingUploadUnique(t *testing.T) {
	serial := uint64(1)
	tm := testTextureManager(&serial)

	key := SamplerKey{Filter: vk.FilterLinear, AddressMode: vk.SamplerAddressModeRepeat}
	tm.QueueTextureUpload(70, 1, key)
	tm.QueueTextureUpload(70, 1, key)
	tm.QueueTextureUpload(70, 2, key)

	var count int
	for _, h := range tm.pending {
		if h == 70 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("handle queued %d times, want 1", count)
	}
}

func TestResidentGetsSlot(t *testing.T) {
	serial := uint64(7)
	tm := testTextureManager(&serial)
	tm.records[80] = &TextureRecord{base: 80, state: textureResident}

	slot := tm.GetBindlessSlotIndex(80, 3)
	if slot < firstDynamicSlot {
		t.Fatalf("resident texture got slot %d", slot)
	}
	if tm.GetBindlessSlotIndex(80, 4) != slot {
		t.Error("slot changed between draws")
	}
	rec := tm.records[80]
	if rec.lastUsedFrame != 4 || rec.lastUsedSerial != 7 {
		t.Errorf("LRU stamps not bumped: frame %d serial %d", rec.lastUsedFrame, rec.lastUsedSerial)
	}
}

func TestSlotPressureServesFallbackAndEvicts(t *testing.T) {
	serial := uint64(100)
	tm := testTextureManager(&serial)

	// Fill every dynamic slot with residents last used at serial 100.
	for i := 0; i < MaxBindlessTextures-firstDynamicSlot; i++ {
		base := gfx.TextureHandle(1000 + i)
		rec := &TextureRecord{base: base, state: textureResident, lastUsedFrame: uint64(i), lastUsedSerial: 100}
		slot, ok := tm.slots.acquire(base)
		if !ok {
			t.Fatal("table filled early")
		}
		rec.slot, rec.hasSlot = slot, true
		tm.records[base] = rec
	}

	// A new resident cannot get a slot during the draw phase.
	tm.records[5000] = &TextureRecord{base: 5000, state: textureResident}
	if slot := tm.GetBindlessSlotIndex(5000, 50); slot != slotFallback {
		t.Fatalf("pressure draw got slot %d, want fallback", slot)
	}
	if !tm.pendingSlot[5000] {
		t.Fatal("texture not marked for slot retry")
	}

	// GPU has not caught up: nothing is evictable.
	if tm.evictOne(99) {
		t.Fatal("evicted a texture the GPU may still read")
	}
	// GPU caught up: the LRU resident (lastUsedFrame 0) goes.
	if !tm.evictOne(100) {
		t.Fatal("nothing evicted with clearance")
	}
	if _, ok := tm.records[1000]; ok {
		t.Error("eviction did not pick the least recently used")
	}
	if tm.slots.freeCount() != 1 {
		t.Errorf("free slots = %d after eviction, want 1", tm.slots.freeCount())
	}
}

func TestDeleteTextureDedupes(t *testing.T) {
	serial := uint64(1)
	tm := testTextureManager(&serial)
	tm.DeleteTexture(90)
	tm.DeleteTexture(90)
	if len(tm.deletes) != 1 {
		t.Errorf("delete queued %d times, want 1", len(tm.deletes))
	}
}
