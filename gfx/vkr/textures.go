package vkr

import (
	"errors"
	"fmt"

	vk "github.com/Eiton/vulkan"
	log "github.com/sirupsen/logrus"

	"github.com/danielchristiancazares/freespace2/gfx"
)

type textureState int

const (
	textureQueued textureState = iota
	textureResident
	textureUnavailable
)

// TextureRecord tracks one texture keyed by its base frame handle.
type TextureRecord struct {
	base  gfx.TextureHandle
	state textureState

	image Image
	view  vk.ImageView

	samplerKey SamplerKey
	width      int
	height     int
	layers     int
	format     vk.Format
	layout     vk.ImageLayout

	slot    uint32
	hasSlot bool

	lastUsedFrame  uint64
	lastUsedSerial uint64

	// syntheticPixels feed the built-ins, which have no bitmap behind them.
	syntheticPixels []byte

	// renderTarget records are owned by their RenderTargetTexture.
	renderTarget bool
}

// Slot returns the record's bindless slot, fallback when none assigned.
func (r *TextureRecord) Slot() uint32 {
	if !r.hasSlot {
		return slotFallback
	}
	return r.slot
}

// TextureManager owns every game texture on the GPU: upload from the
// bitmap manager through the frame staging ring, residency in the
// bindless slot table, LRU eviction, and deferred destruction. The four
// synthetic built-ins (fallback black, default white, default normal,
// default spec) occupy the reserved slots and are never retired.
type TextureManager struct {
	device  vk.Device
	ma      *MemoryAllocator
	bitmaps gfx.BitmapSource

	samplers *samplerCache
	slots    *slotTable

	records     map[gfx.TextureHandle]*TextureRecord
	pending     []gfx.TextureHandle
	pendingSet  map[gfx.TextureHandle]bool
	pendingSlot map[gfx.TextureHandle]bool
	deletes     []gfx.TextureHandle

	releases     DeferredReleaseQueue
	submitSerial func() uint64

	stagingBudget uint64

	// dirtySlots queues descriptor rewrites for the per-frame bindless set.
	dirtySlots map[uint32]bool

	// immediate runs a one-off command buffer and waits for it; used by
	// the synchronous preload path at level load.
	immediate func(record func(cmd vk.CommandBuffer, staging *RingBuffer) error) error

	builtins [firstDynamicSlot]*TextureRecord
}

// NewTextureManager creates the manager and its synthetic built-ins. The
// built-ins upload during the first flush.
func NewTextureManager(dev vk.Device, ma *MemoryAllocator, bitmaps gfx.BitmapSource, stagingBudget uint64, submitSerial func() uint64) (*TextureManager, error) {
	if stagingBudget == 0 || stagingBudget > stagingRingSize {
		stagingBudget = stagingRingSize
	}
	tm := &TextureManager{
		device:        dev,
		ma:            ma,
		bitmaps:       bitmaps,
		samplers:      newSamplerCache(dev),
		slots:         newSlotTable(MaxBindlessTextures),
		records:       make(map[gfx.TextureHandle]*TextureRecord),
		pendingSet:    make(map[gfx.TextureHandle]bool),
		pendingSlot:   make(map[gfx.TextureHandle]bool),
		dirtySlots:    make(map[uint32]bool),
		submitSerial:  submitSerial,
		stagingBudget: stagingBudget,
	}
	tm.createBuiltins()
	return tm, nil
}

// Built-in pixel values. Normal is flat tangent-space up; spec is a
// dielectric F0 of roughly 0.04.
var builtinPixels = [firstDynamicSlot][4]byte{
	slotFallback:      {0x00, 0x00, 0x00, 0xff},
	slotDefaultWhite:  {0xff, 0xff, 0xff, 0xff},
	slotDefaultNormal: {0xff, 0x80, 0x80, 0xff}, // BGRA: (0.5, 0.5, 1.0)
	slotDefaultSpec:   {0x0a, 0x0a, 0x0a, 0xff},
}

func (tm *TextureManager) createBuiltins() {
	handles := [firstDynamicSlot]gfx.TextureHandle{
		slotFallback:      gfx.FallbackTextureHandle,
		slotDefaultWhite:  gfx.DefaultTextureHandle,
		slotDefaultNormal: gfx.DefaultTextureHandle - 1,
		slotDefaultSpec:   gfx.DefaultTextureHandle - 2,
	}
	for slot := 0; slot < firstDynamicSlot; slot++ {
		record := &TextureRecord{
			base:            handles[slot],
			state:           textureQueued,
			width:           1,
			height:          1,
			layers:          1,
			slot:            uint32(slot),
			hasSlot:         true,
			samplerKey:      SamplerKey{Filter: vk.FilterNearest, AddressMode: vk.SamplerAddressModeRepeat},
			syntheticPixels: builtinPixels[slot][:],
		}
		tm.records[record.base] = record
		tm.builtins[slot] = record
		tm.enqueuePending(record.base)
	}
}

func (tm *TextureManager) enqueuePending(base gfx.TextureHandle) {
	if tm.pendingSet[base] {
		return
	}
	tm.pendingSet[base] = true
	tm.pending = append(tm.pending, base)
}

func (tm *TextureManager) baseOf(handle gfx.TextureHandle) (gfx.TextureHandle, int) {
	if handle <= gfx.FallbackTextureHandle {
		return handle, 1
	}
	base, frames := tm.bitmaps.BaseFrame(handle)
	return base, frames
}

// QueueTextureUpload warms the sampler cache and schedules the bitmap
// for upload unless it is already resident or permanently unavailable.
func (tm *TextureManager) QueueTextureUpload(handle gfx.TextureHandle, frameIndex uint64, samplerKey SamplerKey) {
	if _, err := tm.samplers.get(samplerKey); err != nil {
		log.WithError(err).Error("sampler warmup failed")
	}
	base, _ := tm.baseOf(handle)
	record, ok := tm.records[base]
	if ok {
		switch record.state {
		case textureResident:
			record.lastUsedFrame = frameIndex
			record.lastUsedSerial = tm.submitSerial()
		case textureUnavailable:
		case textureQueued:
			// already on its way
		}
		return
	}
	tm.records[base] = &TextureRecord{
		base:          base,
		state:         textureQueued,
		samplerKey:    samplerKey,
		lastUsedFrame: frameIndex,
	}
	tm.enqueuePending(base)
}

// GetBindlessSlotIndex resolves a draw's texture to its bindless slot.
// Anything not resident gets the fallback slot, deterministically, and a
// retry is scheduled where that makes sense.
func (tm *TextureManager) GetBindlessSlotIndex(handle gfx.TextureHandle, frameIndex uint64) uint32 {
	if handle == gfx.DefaultTextureHandle {
		return slotDefaultWhite
	}
	if handle <= gfx.FallbackTextureHandle && handle > gfx.DefaultTextureHandle-firstDynamicSlot {
		// Other synthetic handles map straight to their pinned slots.
		for slot, rec := range tm.builtins {
			if rec.base == handle {
				return uint32(slot)
			}
		}
	}
	base, _ := tm.baseOf(handle)
	record, ok := tm.records[base]
	if !ok {
		tm.QueueTextureUpload(handle, frameIndex, SamplerKey{Filter: vk.FilterLinear, AddressMode: vk.SamplerAddressModeRepeat})
		return slotFallback
	}
	switch record.state {
	case textureUnavailable:
		return slotFallback
	case textureQueued:
		return slotFallback
	}
	record.lastUsedFrame = frameIndex
	record.lastUsedSerial = tm.submitSerial()
	if record.hasSlot {
		return record.slot
	}
	// Resident but slotless; draw-phase eviction is forbidden, so under
	// pressure serve the fallback and retry at the next upload flush.
	if slot, ok := tm.slots.acquire(base); ok {
		record.slot = slot
		record.hasSlot = true
		tm.dirtySlots[slot] = true
		return slot
	}
	tm.pendingSlot[base] = true
	return slotFallback
}

// MarkTextureUsed bumps the LRU stamps without resolving a slot.
func (tm *TextureManager) MarkTextureUsed(handle gfx.TextureHandle, frameIndex uint64) {
	base, _ := tm.baseOf(handle)
	if record, ok := tm.records[base]; ok && record.state == textureResident {
		record.lastUsedFrame = frameIndex
		record.lastUsedSerial = tm.submitSerial()
	}
}

// DeleteTexture schedules the texture's GPU objects for destruction at
// the next upload flush. The slot returns to the free list there.
func (tm *TextureManager) DeleteTexture(handle gfx.TextureHandle) {
	base, _ := tm.baseOf(handle)
	for _, h := range tm.deletes {
		if h == base {
			return
		}
	}
	tm.deletes = append(tm.deletes, base)
}

// FlushPendingUploads runs once per frame before any rendering pass:
// deferred deletions first, then pending slot assignments (evicting LRU
// residents the GPU is done with), then the upload queue against the
// frame's staging budget.
func (tm *TextureManager) FlushPendingUploads(frame *FrameContext, frameIndex, completedSerial uint64) {
	cmd := frame.CommandBuffer()

	// (a) deletions requested since the previous flush
	for _, base := range tm.deletes {
		record, ok := tm.records[base]
		if !ok {
			continue
		}
		tm.retireRecord(record)
		delete(tm.records, base)
	}
	tm.deletes = tm.deletes[:0]

	// (b) retry pending bindless slot assignments
	for base := range tm.pendingSlot {
		record, ok := tm.records[base]
		if !ok || record.state != textureResident || record.hasSlot {
			delete(tm.pendingSlot, base)
			continue
		}
		slot, ok := tm.slots.acquire(base)
		if !ok {
			if !tm.evictOne(completedSerial) {
				break
			}
			slot, ok = tm.slots.acquire(base)
			if !ok {
				break
			}
		}
		record.slot = slot
		record.hasSlot = true
		tm.dirtySlots[slot] = true
		delete(tm.pendingSlot, base)
	}

	// (c) drain the upload queue within this frame's staging budget
	budget := tm.stagingBudget
	if remaining := frame.StagingRing().Remaining(); remaining < budget {
		budget = remaining
	}
	var deferred []gfx.TextureHandle
	for len(tm.pending) > 0 {
		base := tm.pending[0]
		tm.pending = tm.pending[1:]

		record, ok := tm.records[base]
		if !ok || record.state != textureQueued {
			delete(tm.pendingSet, base)
			continue
		}
		used, err := tm.uploadTexture(cmd, frame.StagingRing(), record, budget)
		if err == errStagingFull {
			// Defer to the next frame; keep queue position.
			deferred = append(deferred, base)
			continue
		}
		delete(tm.pendingSet, base)
		if err != nil {
			log.WithError(err).WithField("bitmap", base).Error("texture upload failed, marking unavailable")
			record.state = textureUnavailable
			continue
		}
		budget -= used
		record.state = textureResident
		record.lastUsedFrame = frameIndex
		record.lastUsedSerial = tm.submitSerial()
	}
	tm.pending = append(tm.pending, deferred...)

	tm.releases.Collect(completedSerial)
}

var errStagingFull = errors.New("staging budget exhausted this frame")

// uploadTexture stages all layers and records the copy. Returns the
// staging bytes consumed.
func (tm *TextureManager) uploadTexture(cmd vk.CommandBuffer, staging *RingBuffer, record *TextureRecord, budget uint64) (uint64, error) {
	base := record.base

	var (
		format uploadFormat
		layout uploadLayout
		frames int
		locked []*gfx.BitmapData
	)
	if record.syntheticPixels != nil {
		format = uploadFormat{format: vk.FormatB8g8r8a8Unorm, destBpp: 4}
		frames = 1
		layout = computeUploadLayout(format, 1, 1, 1)
		record.width, record.height, record.layers = 1, 1, 1
	} else {
		_, frames = tm.bitmaps.BaseFrame(base)
		if frames > 1 && !tm.bitmaps.IsTextureArray(base) {
			return 0, fmt.Errorf("animation frames disagree on size or format")
		}
		defer func() {
			for i := 0; i < len(locked); i++ {
				tm.bitmaps.Unlock(base + gfx.TextureHandle(i))
			}
		}()
		for i := 0; i < frames; i++ {
			data, err := tm.bitmaps.Lock(base+gfx.TextureHandle(i), 32, 0)
			if err != nil {
				return 0, errors.New("bitmap lock: " + err.Error())
			}
			locked = append(locked, data)
		}
		first := locked[0]
		var err error
		format, err = selectUploadFormat(first.BPP, first.Flags)
		if err != nil {
			return 0, err
		}
		for _, d := range locked[1:] {
			if d.Width != first.Width || d.Height != first.Height || (d.Flags&gfx.BitmapTexComp) != (first.Flags&gfx.BitmapTexComp) {
				return 0, fmt.Errorf("array frames disagree: %dx%d vs %dx%d", d.Width, d.Height, first.Width, first.Height)
			}
		}
		layout = computeUploadLayout(format, first.Width, first.Height, frames)
		record.width, record.height, record.layers = first.Width, first.Height, frames
	}

	if layout.totalSize > stagingRingSize {
		return 0, fmt.Errorf("texture needs %d staging bytes, whole ring is %d", layout.totalSize, uint64(stagingRingSize))
	}
	if layout.totalSize > budget {
		return 0, errStagingFull
	}
	alloc, ok := staging.Allocate(layout.totalSize, copyOffsetAlign)
	if !ok {
		return 0, errStagingFull
	}
	stagingBytes := (*[1 << 30]byte)(alloc.Ptr)[:layout.totalSize:layout.totalSize]

	// Fill staging memory layer by layer.
	for i := 0; i < record.layers; i++ {
		dst := stagingBytes[layout.layerOffsets[i]:]
		if record.syntheticPixels != nil {
			copy(dst, record.syntheticPixels)
			continue
		}
		src := locked[i]
		switch {
		case format.compressed, format.destBpp == 1, src.BPP == 32:
			copy(dst, src.Pixels)
		default:
			expandToBGRA8(dst, src.Pixels, src.Width, src.Height, src.BPP)
		}
	}

	image, err := NewImage(tm.device, uint32(record.width), uint32(record.height), ImageOptions{
		Format: format.format,
		Layers: uint32(record.layers),
		Usage:  vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit,
	}, tm.ma)
	if err != nil {
		return 0, err
	}

	layoutTransition(cmd, image.Get(), vk.ImageAspectColorBit, uint32(record.layers), 1, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)

	regions := make([]vk.BufferImageCopy, 0, record.layers)
	for i := 0; i < record.layers; i++ {
		regions = append(regions, vk.BufferImageCopy{
			BufferOffset: alloc.Offset + vk.DeviceSize(layout.layerOffsets[i]),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				BaseArrayLayer: uint32(i),
				LayerCount:     1,
			},
			ImageExtent: vk.Extent3D{
				Width:  uint32(record.width),
				Height: uint32(record.height),
				Depth:  1,
			},
		})
	}
	vk.CmdCopyBufferToImage(cmd, staging.Buffer(), image.Get(), vk.ImageLayoutTransferDstOptimal, uint32(len(regions)), regions)

	layoutTransition(cmd, image.Get(), vk.ImageAspectColorBit, uint32(record.layers), 1, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)

	// Always an array view, even for a single layer: bindless shaders use
	// one access pattern.
	view, err := NewImageView(tm.device, image.Get(), vk.ImageViewType2dArray, format.format, vk.ImageAspectColorBit, 0, uint32(record.layers), 1)
	if err != nil {
		image.Release()
		return 0, err
	}

	record.image = image
	record.view = view
	record.format = format.format
	record.layout = vk.ImageLayoutShaderReadOnlyOptimal
	if record.hasSlot {
		tm.dirtySlots[record.slot] = true
	}
	return layout.totalSize, nil
}

// evictOne retires the least-recently-used resident whose last GPU use
// is provably complete. Returns false when nothing is safely evictable.
func (tm *TextureManager) evictOne(completedSerial uint64) bool {
	var victim *TextureRecord
	for _, record := range tm.records {
		if record.state != textureResident || !record.hasSlot {
			continue
		}
		if record.syntheticPixels != nil {
			continue // built-ins are pinned
		}
		if record.lastUsedSerial > completedSerial {
			continue
		}
		if victim == nil || record.lastUsedFrame < victim.lastUsedFrame {
			victim = record
		}
	}
	if victim == nil {
		return false
	}
	log.WithField("bitmap", victim.base).Debug("evicting texture for slot pressure")
	tm.retireRecord(victim)
	delete(tm.records, victim.base)
	return true
}

func (tm *TextureManager) retireRecord(record *TextureRecord) {
	if record.hasSlot {
		slot := record.slot
		tm.slots.release(slot)
		tm.dirtySlots[slot] = true
		record.hasSlot = false
	}
	delete(tm.pendingSlot, record.base)
	if record.state != textureResident {
		record.state = textureUnavailable
		return
	}
	image := record.image
	view := record.view
	device := tm.device
	tm.releases.Enqueue(tm.submitSerial(), func() {
		vk.DestroyImageView(device, view, nil)
		image.Release()
	})
	record.state = textureUnavailable
}

// SetImmediateSubmit wires the renderer's synchronous submit helper in;
// PreloadTexture is unusable before this.
func (tm *TextureManager) SetImmediateSubmit(immediate func(record func(cmd vk.CommandBuffer, staging *RingBuffer) error) error) {
	tm.immediate = immediate
}

// PreloadTexture uploads a bitmap synchronously, blocking until the GPU
// copy completes. Level load calls this to avoid first-use hitches.
func (tm *TextureManager) PreloadTexture(handle gfx.TextureHandle, samplerKey SamplerKey) error {
	if tm.immediate == nil {
		return errors.New("vkr.TextureManager: no immediate submit wired")
	}
	base, _ := tm.baseOf(handle)
	record, ok := tm.records[base]
	if ok && record.state == textureResident {
		return nil
	}
	if ok && record.state == textureUnavailable {
		return fmt.Errorf("bitmap %d is unavailable", base)
	}
	if !ok {
		record = &TextureRecord{base: base, state: textureQueued, samplerKey: samplerKey}
		tm.records[base] = record
	}
	err := tm.immediate(func(cmd vk.CommandBuffer, staging *RingBuffer) error {
		_, err := tm.uploadTexture(cmd, staging, record, stagingRingSize)
		return err
	})
	if err != nil {
		record.state = textureUnavailable
		return err
	}
	record.state = textureResident
	delete(tm.pendingSet, base)
	return nil
}

// BindlessWrites builds descriptor writes for every slot whose binding
// changed since the last call, pointing freed slots back at the fallback.
func (tm *TextureManager) BindlessWrites(set vk.DescriptorSet) []vk.WriteDescriptorSet {
	if len(tm.dirtySlots) == 0 {
		return nil
	}
	fallback := tm.builtins[slotFallback]
	writes := make([]vk.WriteDescriptorSet, 0, len(tm.dirtySlots))
	for slot := range tm.dirtySlots {
		view := fallback.view
		samplerKey := fallback.samplerKey
		if base := tm.slots.occupant(slot); base != slotNone {
			if record, ok := tm.records[base]; ok && record.state == textureResident && record.view != nil {
				view = record.view
				samplerKey = record.samplerKey
			}
		}
		if view == nil {
			continue // built-ins not uploaded yet; first flush will redo
		}
		sampler, err := tm.samplers.get(samplerKey)
		if err != nil {
			continue
		}
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      bindingModelTextures,
			DstArrayElement: slot,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			PImageInfo: []vk.DescriptorImageInfo{{
				Sampler:     sampler,
				ImageView:   view,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}},
		})
		delete(tm.dirtySlots, slot)
	}
	return writes
}

// ResetBindless marks every slot dirty, used right after descriptor sets
// are (re)created so the whole table gets written.
func (tm *TextureManager) ResetBindless() {
	for slot := uint32(0); slot < MaxBindlessTextures; slot++ {
		tm.dirtySlots[slot] = true
	}
}

// Collect drives the deferred release queue.
func (tm *TextureManager) Collect(completedSerial uint64) {
	tm.releases.Collect(completedSerial)
}

// Release destroys everything. Device must be idle.
func (tm *TextureManager) Release() {
	tm.releases.Clear()
	for base, record := range tm.records {
		if record.renderTarget {
			delete(tm.records, base)
			continue
		}
		if record.state == textureResident || record.syntheticPixels != nil {
			if record.view != nil {
				vk.DestroyImageView(tm.device, record.view, nil)
			}
			if record.image.image != nil {
				record.image.Release()
			}
		}
		delete(tm.records, base)
	}
	tm.samplers.release()
}
