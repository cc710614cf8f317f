package vkr

import (
	"unsafe"

	vk "github.com/Eiton/vulkan"
)

// Allocation is one sub-allocation out of a RingBuffer. Ptr points into
// the persistently mapped region; it stays valid until the ring is released.
type Allocation struct {
	Offset vk.DeviceSize
	Ptr    unsafe.Pointer
}

// RingBuffer sub-allocates within a single host-visible, persistently
// mapped device buffer by bumping an offset cursor. There is no
// wraparound: when the buffer is exhausted the caller defers to the next
// frame. The ring carries no fence state; frame ownership is the
// FrameContext's business.
type RingBuffer struct {
	buffer Buffer
	mapped unsafe.Pointer

	size         uint64
	defaultAlign uint64
	offset       uint64
}

// NewRingBuffer creates a ring of the given size. defaultAlign applies to
// allocations that do not request their own alignment.
func NewRingBuffer(dev vk.Device, ma *MemoryAllocator, size uint64, usage vk.BufferUsageFlagBits, defaultAlign uint64) (*RingBuffer, error) {
	buffer, err := NewBuffer(dev, size, usage, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit, ma)
	if err != nil {
		return nil, err
	}
	if defaultAlign == 0 {
		defaultAlign = 1
	}
	return &RingBuffer{
		buffer:       buffer,
		mapped:       buffer.Mem().Map(),
		size:         size,
		defaultAlign: defaultAlign,
	}, nil
}

// Allocate bumps the cursor by size, aligned up. Returns false when the
// allocation would exceed the buffer; the cursor is left untouched then.
func (r *RingBuffer) Allocate(size, align uint64) (Allocation, bool) {
	if align == 0 {
		align = r.defaultAlign
	}
	offset := alignUp(r.offset, align)
	if offset+size > r.size {
		return Allocation{}, false
	}
	r.offset = offset + size
	return Allocation{
		Offset: vk.DeviceSize(offset),
		Ptr:    unsafe.Pointer(uintptr(r.mapped) + uintptr(offset)),
	}, true
}

// Reset zeroes the cursor. Only valid once the GPU is done with every
// allocation handed out since the previous reset.
func (r *RingBuffer) Reset() {
	r.offset = 0
}

// Remaining reports the bytes left before the ring is exhausted,
// disregarding alignment of future allocations.
func (r *RingBuffer) Remaining() uint64 {
	if r.offset > r.size {
		return 0
	}
	return r.size - r.offset
}

// Buffer returns the underlying vulkan buffer handle.
func (r *RingBuffer) Buffer() vk.Buffer {
	return r.buffer.Get()
}

// Release unmaps and destroys the underlying buffer.
func (r *RingBuffer) Release() {
	r.buffer.Release()
}

func alignUp(value, align uint64) uint64 {
	return (value + align - 1) / align * align
}
