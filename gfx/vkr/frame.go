package vkr

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/Eiton/vulkan"
)

// FrameContext owns everything one frame-in-flight records with: a
// transient command pool with a single primary command buffer, the
// image-available and render-finished binary semaphores, a timeline
// semaphore signalled with the frame's submit serial, the in-flight
// fence, and the three per-frame rings (uniform, vertex, staging).
type FrameContext struct {
	device vk.Device

	commandPool   vk.CommandPool
	commandBuffer vk.CommandBuffer

	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore
	timeline       vk.Semaphore

	inFlight vk.Fence

	uniformRing *RingBuffer
	vertexRing  *RingBuffer
	stagingRing *RingBuffer

	// lastSubmitSerial is the serial signalled by this frame's most
	// recent submit; zero before the first submit.
	lastSubmitSerial uint64
}

// NewFrameContext builds one frame context on the given queue family.
func NewFrameContext(dev vk.Device, family uint32, limits frameLimits, ma *MemoryAllocator) (*FrameContext, error) {
	f := &FrameContext{device: dev}

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: family,
	}
	if err := vk.Error(vk.CreateCommandPool(dev, &poolInfo, nil, &f.commandPool)); err != nil {
		return nil, errors.New("vk.CreateCommandPool(): " + err.Error())
	}

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        f.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(dev, &allocInfo, commandBuffers)); err != nil {
		f.Release()
		return nil, errors.New("vk.AllocateCommandBuffers(): " + err.Error())
	}
	f.commandBuffer = commandBuffers[0]

	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	if err := vk.Error(vk.CreateSemaphore(dev, &semaphoreInfo, nil, &f.imageAvailable)); err != nil {
		f.Release()
		return nil, errors.New("vk.CreateSemaphore(): " + err.Error())
	}
	if err := vk.Error(vk.CreateSemaphore(dev, &semaphoreInfo, nil, &f.renderFinished)); err != nil {
		f.Release()
		return nil, errors.New("vk.CreateSemaphore(): " + err.Error())
	}

	timelineType := vk.SemaphoreTypeCreateInfo{
		SType:         vk.StructureTypeSemaphoreTypeCreateInfo,
		SemaphoreType: vk.SemaphoreTypeTimeline,
		InitialValue:  0,
	}
	timelineInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
		PNext: unsafe.Pointer(&timelineType),
	}
	if err := vk.Error(vk.CreateSemaphore(dev, &timelineInfo, nil, &f.timeline)); err != nil {
		f.Release()
		return nil, errors.New("vk.CreateSemaphore(timeline): " + err.Error())
	}

	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}
	if err := vk.Error(vk.CreateFence(dev, &fenceInfo, nil, &f.inFlight)); err != nil {
		f.Release()
		return nil, errors.New("vk.CreateFence(): " + err.Error())
	}

	var err error
	if f.uniformRing, err = NewRingBuffer(dev, ma, uniformRingSize, vk.BufferUsageUniformBufferBit, uint64(limits.minUniformOffsetAlign)); err != nil {
		f.Release()
		return nil, fmt.Errorf("uniform ring: %s", err.Error())
	}
	if f.vertexRing, err = NewRingBuffer(dev, ma, vertexRingSize, vk.BufferUsageVertexBufferBit, uint64(limits.nonCoherentAtomSize)); err != nil {
		f.Release()
		return nil, fmt.Errorf("vertex ring: %s", err.Error())
	}
	if f.stagingRing, err = NewRingBuffer(dev, ma, stagingRingSize, vk.BufferUsageTransferSrcBit, uint64(limits.copyOffsetAlign)); err != nil {
		f.Release()
		return nil, fmt.Errorf("staging ring: %s", err.Error())
	}

	return f, nil
}

// frameLimits carries the device alignments the per-frame rings honor.
type frameLimits struct {
	minUniformOffsetAlign vk.DeviceSize
	nonCoherentAtomSize   vk.DeviceSize
	copyOffsetAlign       vk.DeviceSize
}

// WaitForGpu blocks on the in-flight fence, then resets it for reuse.
func (f *FrameContext) WaitForGpu() error {
	fences := []vk.Fence{f.inFlight}
	if err := vk.Error(vk.WaitForFences(f.device, 1, fences, vk.True, ^uint64(0))); err != nil {
		return errors.New("vk.WaitForFences(): " + err.Error())
	}
	if err := vk.Error(vk.ResetFences(f.device, 1, fences)); err != nil {
		return errors.New("vk.ResetFences(): " + err.Error())
	}
	return nil
}

// Reset recycles the command pool and all three rings for a new recording.
func (f *FrameContext) Reset() error {
	if err := vk.Error(vk.ResetCommandPool(f.device, f.commandPool, 0)); err != nil {
		return errors.New("vk.ResetCommandPool(): " + err.Error())
	}
	f.uniformRing.Reset()
	f.vertexRing.Reset()
	f.stagingRing.Reset()
	return nil
}

// CommandBuffer returns the frame's primary command buffer.
func (f *FrameContext) CommandBuffer() vk.CommandBuffer {
	return f.commandBuffer
}

// UniformRing returns the frame's uniform streaming ring.
func (f *FrameContext) UniformRing() *RingBuffer {
	return f.uniformRing
}

// VertexRing returns the frame's immediate-vertex ring.
func (f *FrameContext) VertexRing() *RingBuffer {
	return f.vertexRing
}

// StagingRing returns the frame's texture staging ring.
func (f *FrameContext) StagingRing() *RingBuffer {
	return f.stagingRing
}

// CompletedSerial polls the timeline semaphore counter.
func (f *FrameContext) CompletedSerial() uint64 {
	var value uint64
	vk.GetSemaphoreCounterValue(f.device, f.timeline, &value)
	return value
}

// Release drops every owned object. The caller guarantees the GPU is idle.
func (f *FrameContext) Release() {
	if f.stagingRing != nil {
		f.stagingRing.Release()
	}
	if f.vertexRing != nil {
		f.vertexRing.Release()
	}
	if f.uniformRing != nil {
		f.uniformRing.Release()
	}
	if f.inFlight != nil {
		vk.DestroyFence(f.device, f.inFlight, nil)
	}
	if f.timeline != nil {
		vk.DestroySemaphore(f.device, f.timeline, nil)
	}
	if f.renderFinished != nil {
		vk.DestroySemaphore(f.device, f.renderFinished, nil)
	}
	if f.imageAvailable != nil {
		vk.DestroySemaphore(f.device, f.imageAvailable, nil)
	}
	if f.commandPool != nil {
		vk.DestroyCommandPool(f.device, f.commandPool, nil)
	}
}
