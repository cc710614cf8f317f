package vkr

import (
	"errors"
	"fmt"

	vk "github.com/Eiton/vulkan"
	log "github.com/sirupsen/logrus"

	"github.com/danielchristiancazares/freespace2/gfx"
)

// deviceBuffer is the slice of buffer behavior the manager needs; the
// indirection keeps retirement semantics testable without a device.
type deviceBuffer interface {
	get() vk.Buffer
	bytes() []byte
	release()
}

type mappedBuffer struct {
	buffer Buffer
	data   []byte
}

func (m *mappedBuffer) get() vk.Buffer { return m.buffer.Get() }
func (m *mappedBuffer) bytes() []byte  { return m.data }
func (m *mappedBuffer) release()       { m.buffer.Release() }

type bufferSlot struct {
	used  bool
	btype gfx.BufferType
	usage gfx.BufferUsage
	size  uint64
	dev   deviceBuffer
}

// BufferManager hands out engine-facing buffer handles for vertex, index
// and uniform data. Device objects materialize lazily on first update; any
// size change or delete retires the old object through the deferred
// release queue, gated on the submit serial current at retirement.
//
// All buffers live in host-visible, host-coherent memory and stay mapped.
// TODO: route Static usage through a device-local copy with staging.
type BufferManager struct {
	slots []bufferSlot
	free  []gfx.BufferHandle

	releases DeferredReleaseQueue

	// submitSerial yields the serial the next submit will signal; retired
	// objects must survive until the GPU passes it.
	submitSerial func() uint64

	create func(size uint64, btype gfx.BufferType) (deviceBuffer, error)
}

// NewBufferManager creates a manager allocating on the given device.
// submitSerial must return the serial of the next queue submit.
func NewBufferManager(dev vk.Device, ma *MemoryAllocator, submitSerial func() uint64) *BufferManager {
	return &BufferManager{
		submitSerial: submitSerial,
		create: func(size uint64, btype gfx.BufferType) (deviceBuffer, error) {
			usage := bufferUsageBits(btype)
			buffer, err := NewBuffer(dev, size, usage, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit, ma)
			if err != nil {
				return nil, err
			}
			ptr := buffer.Mem().Map()
			return &mappedBuffer{
				buffer: buffer,
				data:   (*[1 << 30]byte)(ptr)[:size:size],
			}, nil
		},
	}
}

func bufferUsageBits(btype gfx.BufferType) vk.BufferUsageFlagBits {
	switch btype {
	case gfx.VertexBuffer:
		// Model vertex heaps are read through a storage buffer by the
		// vertex-pulling path.
		return vk.BufferUsageVertexBufferBit | vk.BufferUsageStorageBufferBit | vk.BufferUsageTransferDstBit
	case gfx.IndexBuffer:
		return vk.BufferUsageIndexBufferBit | vk.BufferUsageTransferDstBit
	case gfx.UniformBuffer:
		return vk.BufferUsageUniformBufferBit | vk.BufferUsageTransferDstBit
	default:
		panic(fmt.Sprintf("unknown buffer type %d", btype))
	}
}

// CreateBuffer allocates a handle slot. No device object exists until the
// first data update.
func (bm *BufferManager) CreateBuffer(btype gfx.BufferType, usage gfx.BufferUsage) gfx.BufferHandle {
	if n := len(bm.free); n > 0 {
		handle := bm.free[n-1]
		bm.free = bm.free[:n-1]
		bm.slots[handle] = bufferSlot{used: true, btype: btype, usage: usage}
		return handle
	}
	bm.slots = append(bm.slots, bufferSlot{used: true, btype: btype, usage: usage})
	return gfx.BufferHandle(len(bm.slots) - 1)
}

func (bm *BufferManager) slot(h gfx.BufferHandle) *bufferSlot {
	if !h.IsValid() || int(h) >= len(bm.slots) || !bm.slots[h].used {
		panic(fmt.Sprintf("invalid buffer handle %d", h))
	}
	return &bm.slots[h]
}

// retire hands the slot's current device object to the release queue.
func (bm *BufferManager) retire(s *bufferSlot) {
	if s.dev == nil {
		return
	}
	dev := s.dev
	bm.releases.Enqueue(bm.submitSerial(), dev.release)
	s.dev = nil
	s.size = 0
}

// UpdateBufferData replaces the buffer's contents. A size change retires
// the old device object and creates one sized exactly size. Dynamic and
// Streaming buffers orphan their storage even at unchanged size, so a
// same-size rewrite never races the GPU. A nil data leaves the new
// storage uninitialized.
func (bm *BufferManager) UpdateBufferData(h gfx.BufferHandle, size uint64, data []byte) error {
	s := bm.slot(h)
	orphan := s.usage == gfx.DynamicUsage || s.usage == gfx.StreamingUsage
	if s.dev == nil || s.size != size || orphan {
		bm.retire(s)
		dev, err := bm.create(size, s.btype)
		if err != nil {
			return errors.New("vkr.BufferManager: " + err.Error())
		}
		s.dev = dev
		s.size = size
	}
	if data != nil {
		copy(s.dev.bytes(), data[:size])
	}
	return nil
}

// UpdateBufferDataOffset writes a partial range. Zero size and nil data
// are both no-ops; zero-length copies are rejected by Vulkan and the
// legacy callers rely on the lenient behavior.
func (bm *BufferManager) UpdateBufferDataOffset(h gfx.BufferHandle, offset, size uint64, data []byte) error {
	if size == 0 || data == nil {
		return nil
	}
	s := bm.slot(h)
	if err := bm.ensure(s, offset+size); err != nil {
		return err
	}
	copy(s.dev.bytes()[offset:offset+size], data[:size])
	return nil
}

// ResizeBuffer retires the device object and recreates it at the new size
// without copying. Resizing to the current size is a no-op.
func (bm *BufferManager) ResizeBuffer(h gfx.BufferHandle, size uint64) error {
	s := bm.slot(h)
	if s.dev != nil && s.size == size {
		return nil
	}
	bm.retire(s)
	dev, err := bm.create(size, s.btype)
	if err != nil {
		return errors.New("vkr.BufferManager: " + err.Error())
	}
	s.dev = dev
	s.size = size
	return nil
}

func (bm *BufferManager) ensure(s *bufferSlot, size uint64) error {
	if s.dev != nil && s.size >= size {
		return nil
	}
	// Growing loses the old contents, matching the GL backend: offset
	// updates are only issued against buffers sized up front.
	bm.retire(s)
	dev, err := bm.create(size, s.btype)
	if err != nil {
		return errors.New("vkr.BufferManager: " + err.Error())
	}
	s.dev = dev
	s.size = size
	return nil
}

// DeleteBuffer retires the device object and frees the handle slot for
// reuse. Deletion always defers; the GPU may still be reading.
func (bm *BufferManager) DeleteBuffer(h gfx.BufferHandle) {
	s := bm.slot(h)
	bm.retire(s)
	s.used = false
	bm.free = append(bm.free, h)
}

// GetBuffer returns the vulkan handle backing h, or nil when no device
// object has materialized yet.
func (bm *BufferManager) GetBuffer(h gfx.BufferHandle) vk.Buffer {
	s := bm.slot(h)
	if s.dev == nil {
		return nil
	}
	return s.dev.get()
}

// BufferType returns the type the handle was created with.
func (bm *BufferManager) BufferType(h gfx.BufferHandle) gfx.BufferType {
	return bm.slot(h).btype
}

// BufferSize returns the current device-object size, zero before the
// first update.
func (bm *BufferManager) BufferSize(h gfx.BufferHandle) uint64 {
	return bm.slot(h).size
}

// MapBuffer returns the persistently mapped bytes of the buffer. Valid
// until the next retirement of the handle.
func (bm *BufferManager) MapBuffer(h gfx.BufferHandle) ([]byte, error) {
	s := bm.slot(h)
	if s.dev == nil {
		return nil, errors.New("vkr.BufferManager: buffer has no storage yet")
	}
	return s.dev.bytes(), nil
}

// FlushMappedBuffer is a no-op: all buffer memory is host-coherent. Kept
// so callers written against the generic surface need no special casing.
func (bm *BufferManager) FlushMappedBuffer(h gfx.BufferHandle, offset, size uint64) {
	_ = offset
	_ = size
}

// Collect releases every retired object the GPU has finished with.
func (bm *BufferManager) Collect(completedSerial uint64) {
	bm.releases.Collect(completedSerial)
}

// Release drops all live and retired device objects. Device must be idle.
func (bm *BufferManager) Release() {
	bm.releases.Clear()
	for i := range bm.slots {
		if bm.slots[i].dev != nil {
			bm.slots[i].dev.release()
			bm.slots[i].dev = nil
		}
	}
	if n := bm.liveCount(); n > 0 {
		log.WithField("count", n).Warn("buffer handles leaked at shutdown")
	}
}

func (bm *BufferManager) liveCount() int {
	var n int
	for i := range bm.slots {
		if bm.slots[i].used {
			n++
		}
	}
	return n
}
