package vkr

import (
	"errors"
	"fmt"
	"time"

	vk "github.com/Eiton/vulkan"
	log "github.com/sirupsen/logrus"

	"github.com/danielchristiancazares/freespace2/gfx"
)

// Per-block element and header sizes, std140. Lights and decal info carry
// a global header ahead of the element array; the rest are headerless.
var uniformBlockLayout = [gfx.NumUniformBlockTypes]struct {
	elementSize int
	headerSize  int
}{
	gfx.UniformMatrices:    {elementSize: 128},
	gfx.UniformModelData:   {elementSize: 256},
	gfx.UniformLights:      {elementSize: 96, headerSize: 64},
	gfx.UniformNanoVGData:  {elementSize: 176},
	gfx.UniformDecalInfo:   {elementSize: 64, headerSize: 32},
	gfx.UniformMovieData:   {elementSize: 32},
	gfx.UniformGenericData: {elementSize: 16},
}

// UniformAlloc is one sub-allocation out of the uniform stream. The caller
// writes into Shadow and calls Commit, which copies the bytes to the
// persistently mapped device region in one contiguous write. Buffer and
// Offset stay valid for descriptor writes even if the manager grows later
// in the frame: growth retires the old device buffer but keeps it alive
// until the GPU is done.
type UniformAlloc struct {
	Buffer     vk.Buffer
	Offset     vk.DeviceSize
	Shadow     []byte
	Stride     int
	HeaderSize int

	mapped []byte
}

// Commit flushes the shadow bytes to the mapped device region. Many small
// writes straight to device memory perform poorly on some drivers, which
// is the whole reason the shadow exists.
func (a *UniformAlloc) Commit() {
	copy(a.mapped, a.Shadow)
}

// uniformStorage is the device side of the manager, kept behind an
// interface so streaming logic tests run without a device.
type uniformStorage interface {
	buffer() vk.Buffer
	bytes() []byte
	release()
}

type uniformDeviceStorage struct {
	buf  Buffer
	data []byte
}

func (s *uniformDeviceStorage) buffer() vk.Buffer { return s.buf.Get() }
func (s *uniformDeviceStorage) bytes() []byte     { return s.data }
func (s *uniformDeviceStorage) release()          { s.buf.Release() }

type retiredUniformStorage struct {
	storage     uniformStorage
	retireFrame uint64
}

// FenceHooks optionally gate segment reuse on driver fences. Plant is
// called for the segment being handed to the GPU, Wait polls a previously
// planted token. The manager works without hooks: frame-counted retirement
// alone keeps reuse safe, since one backend stubs its sync fence entirely.
type FenceHooks struct {
	Plant func() interface{}
	Wait  func(token interface{}, timeout time.Duration) bool
}

// UniformBufferManager streams per-frame uniform data through a
// persistently mapped buffer split into three equal segments. One segment
// is active for CPU writes while the GPU may still read the others.
// Grow-in-place is forbidden: overflow retires the whole buffer
// (frame-counted) and allocates a larger one.
type UniformBufferManager struct {
	alignment   uint64
	segmentSize uint64

	storage uniformStorage
	shadow  []byte

	frame   uint64
	segment int
	offset  uint64

	retired       []retiredUniformStorage
	segmentFences [uniformSegmentCount]interface{}

	hooks  FenceHooks
	create func(size uint64) (uniformStorage, error)
}

// NewUniformBufferManager creates the manager with the initial segment
// size. alignment is the device's minUniformBufferOffsetAlignment.
func NewUniformBufferManager(dev vk.Device, ma *MemoryAllocator, alignment uint64, hooks FenceHooks) (*UniformBufferManager, error) {
	if alignment == 0 {
		alignment = 1
	}
	u := &UniformBufferManager{
		alignment:   alignment,
		segmentSize: uniformInitialSize,
		hooks:       hooks,
		create: func(size uint64) (uniformStorage, error) {
			buf, err := NewBuffer(dev, size, vk.BufferUsageUniformBufferBit, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit, ma)
			if err != nil {
				return nil, err
			}
			ptr := buf.Mem().Map()
			return &uniformDeviceStorage{
				buf:  buf,
				data: (*[1 << 30]byte)(ptr)[:size:size],
			}, nil
		},
	}
	if err := u.allocateStorage(); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *UniformBufferManager) allocateStorage() error {
	total := u.segmentSize * uniformSegmentCount
	storage, err := u.create(total)
	if err != nil {
		return errors.New("vkr.UniformBufferManager: " + err.Error())
	}
	u.storage = storage
	u.shadow = make([]byte, total)
	return nil
}

// Get returns a sub-allocation for count elements of the block type.
// elementSizeOverride, when non-zero, replaces the table element size;
// the batched-bitmap path sizes its array from the draw.
func (u *UniformBufferManager) Get(block gfx.UniformBlockType, count int, elementSizeOverride int) (UniformAlloc, error) {
	if block < 0 || block >= gfx.NumUniformBlockTypes {
		panic(fmt.Sprintf("unknown uniform block type %d", block))
	}
	layout := uniformBlockLayout[block]
	elementSize := layout.elementSize
	if elementSizeOverride > 0 {
		elementSize = elementSizeOverride
	}
	stride := int(alignUp(uint64(elementSize), u.alignment))
	size := uint64(layout.headerSize + count*stride)

	offset := alignUp(u.offset, u.alignment)
	if offset+size > u.segmentSize {
		if err := u.grow(size); err != nil {
			return UniformAlloc{}, err
		}
		return u.Get(block, count, elementSizeOverride)
	}
	u.offset = offset + size

	abs := uint64(u.segment)*u.segmentSize + offset
	return UniformAlloc{
		Buffer:     u.storage.buffer(),
		Offset:     vk.DeviceSize(abs),
		Shadow:     u.shadow[abs : abs+size],
		Stride:     stride,
		HeaderSize: layout.headerSize,
		mapped:     u.storage.bytes()[abs : abs+size],
	}, nil
}

// grow retires the whole buffer and allocates one whose segment size
// fits need, at least doubling. Allocations handed out before the grow
// keep referencing the retired buffer, which stays alive for
// uniformRetireFrames frames.
func (u *UniformBufferManager) grow(need uint64) error {
	newSegment := u.segmentSize * 2
	for newSegment < need {
		newSegment *= 2
	}
	log.WithFields(log.Fields{
		"from": u.segmentSize,
		"to":   newSegment,
	}).Info("growing uniform stream")

	u.retired = append(u.retired, retiredUniformStorage{
		storage:     u.storage,
		retireFrame: u.frame,
	})
	u.segmentSize = newSegment
	u.segment = 0
	u.offset = 0
	for i := range u.segmentFences {
		u.segmentFences[i] = nil
	}
	return u.allocateStorage()
}

// OnFrameEnd hands the active segment to the GPU and advances to the
// next. If the next segment still has an unsignalled fence the call
// blocks, retrying up to ten times for 500ms each before declaring the
// GPU gone. Retired buffers old enough that no frame in flight can
// reference them are deleted here.
func (u *UniformBufferManager) OnFrameEnd() error {
	u.frame++

	kept := u.retired[:0]
	for _, r := range u.retired {
		if u.frame-r.retireFrame >= uniformRetireFrames {
			r.storage.release()
		} else {
			kept = append(kept, r)
		}
	}
	u.retired = kept

	if u.hooks.Plant != nil {
		u.segmentFences[u.segment] = u.hooks.Plant()
	}

	u.segment = (u.segment + 1) % uniformSegmentCount
	u.offset = 0

	if token := u.segmentFences[u.segment]; token != nil && u.hooks.Wait != nil {
		cleared := false
		for attempt := 0; attempt < 10; attempt++ {
			if u.hooks.Wait(token, 500*time.Millisecond) {
				cleared = true
				break
			}
			log.WithField("attempt", attempt+1).Warn("uniform segment fence still unsignalled")
		}
		if !cleared {
			return errors.New("vkr.UniformBufferManager: segment fence never signalled, device is lost")
		}
		u.segmentFences[u.segment] = nil
	}
	return nil
}

// Release drops device storage, current and retired. Device must be idle.
func (u *UniformBufferManager) Release() {
	for _, r := range u.retired {
		r.storage.release()
	}
	u.retired = nil
	if u.storage != nil {
		u.storage.release()
		u.storage = nil
	}
}
