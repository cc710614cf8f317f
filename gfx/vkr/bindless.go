package vkr

import "github.com/danielchristiancazares/freespace2/gfx"

// slotNone marks a bindless slot with no occupant.
const slotNone gfx.TextureHandle = -1

// slotTable tracks occupancy of the bindless combined-image-sampler
// array. Slots 0 through 3 are pinned to the synthetic built-ins and
// never enter the free list; every other slot is either free or owned by
// exactly one resident texture.
type slotTable struct {
	occupants []gfx.TextureHandle
	free      []uint32
}

func newSlotTable(size int) *slotTable {
	t := &slotTable{
		occupants: make([]gfx.TextureHandle, size),
		free:      make([]uint32, 0, size-firstDynamicSlot),
	}
	for i := range t.occupants {
		t.occupants[i] = slotNone
	}
	t.occupants[slotFallback] = gfx.FallbackTextureHandle
	t.occupants[slotDefaultWhite] = gfx.DefaultTextureHandle
	// Normal and spec built-ins key off synthetic handles below the
	// public sentinels.
	t.occupants[slotDefaultNormal] = gfx.DefaultTextureHandle - 1
	t.occupants[slotDefaultSpec] = gfx.DefaultTextureHandle - 2
	// Hand out low slots first so the table fills densely.
	for i := len(t.occupants) - 1; i >= firstDynamicSlot; i-- {
		t.free = append(t.free, uint32(i))
	}
	return t
}

// acquire assigns a free slot to base. Returns false under slot pressure.
func (t *slotTable) acquire(base gfx.TextureHandle) (uint32, bool) {
	n := len(t.free)
	if n == 0 {
		return 0, false
	}
	slot := t.free[n-1]
	t.free = t.free[:n-1]
	t.occupants[slot] = base
	return slot, true
}

// release returns a dynamic slot to the free list. Built-in slots are
// pinned; releasing one is a programming error.
func (t *slotTable) release(slot uint32) {
	if slot < firstDynamicSlot {
		panic("releasing a built-in bindless slot")
	}
	if t.occupants[slot] == slotNone {
		return
	}
	t.occupants[slot] = slotNone
	t.free = append(t.free, slot)
}

// occupant reports which texture holds the slot, slotNone when free.
func (t *slotTable) occupant(slot uint32) gfx.TextureHandle {
	return t.occupants[slot]
}

// freeCount reports how many dynamic slots remain.
func (t *slotTable) freeCount() int {
	return len(t.free)
}
