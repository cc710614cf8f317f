package vkr

import (
	"errors"
	"unsafe"

	vk "github.com/Eiton/vulkan"
	"github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"

	"github.com/danielchristiancazares/freespace2/core"
	"github.com/danielchristiancazares/freespace2/gfx"
)

// Renderer is the top-level Vulkan backend. It owns every component,
// rotates the frames in flight, and exposes the draw surface the engine
// records against. All methods must be called from the thread that
// created it.
type Renderer struct {
	gpu     *core.Gpu
	cfg     core.RendererConfiguration
	surface vk.Surface

	swapchain *Swapchain
	ma        *MemoryAllocator
	layouts   *DescriptorLayouts
	targets   *RenderTargets
	shaders   *ShaderManager
	pipelines *PipelineManager
	buffers   *BufferManager
	textures  *TextureManager
	uniforms  *UniformBufferManager
	meshes    *ProxyMeshes
	session   *RenderingSession
	post      *PostProcessor
	movies    *MovieManager
	models    *ModelRenderer

	frames     [framesInFlight]*FrameContext
	frameSlot  int
	frameIndex uint64

	// pendingSerial is the value the next frame submit signals on its
	// timeline semaphore. Deferred releases enqueue against it, so a
	// resource freed mid-recording outlives the submit that uses it.
	pendingSerial uint64

	// One-off upload path, used by synchronous texture preloads.
	uploadPool    vk.CommandPool
	uploadCmd     vk.CommandBuffer
	uploadFence   vk.Fence
	uploadStaging *RingBuffer

	imageIndex     uint32
	swapchainStale bool

	recording      bool
	sceneActive    bool
	sceneUsed      bool
	deferredActive bool

	clearColor  [4]float32
	zbufferMode gfx.ZbufferMode
	drawCount   int

	gbufferSets [framesInFlight]vk.DescriptorSet
}

// NewRenderer builds the full backend over an initialized device and
// surface and begins recording the first frame. bitmaps supplies pixel
// data for texture uploads.
func NewRenderer(gpu *core.Gpu, surface vk.Surface, cfg core.RendererConfiguration, bitmaps gfx.BitmapSource) (*Renderer, error) {
	r := &Renderer{
		gpu:           gpu,
		cfg:           cfg,
		surface:       surface,
		pendingSerial: 1,
		clearColor:    [4]float32{0, 0, 0, 1},
	}
	serial := func() uint64 { return r.pendingSerial }

	var err error
	if r.swapchain, err = NewSwapchain(gpu, surface, cfg, nil); err != nil {
		return nil, err
	}
	r.ma = NewMemoryAllocator(gpu.Device, gpu.MemoryProps)
	if r.layouts, err = NewDescriptorLayouts(gpu.Device, gpu.Limits); err != nil {
		r.Destroy()
		return nil, err
	}
	if r.targets, err = NewRenderTargets(gpu.Device, gpu.Physical, r.ma, r.swapchain.Extent(), serial); err != nil {
		r.Destroy()
		return nil, err
	}
	if err = r.createUploadPath(); err != nil {
		r.Destroy()
		return nil, err
	}
	for i := range r.frames {
		r.frames[i], err = NewFrameContext(gpu.Device, gpu.GraphicsFamily, frameLimits{
			minUniformOffsetAlign: gpu.Limits.MinUniformBufferOffsetAlignment,
			nonCoherentAtomSize:   gpu.Limits.NonCoherentAtomSize,
			copyOffsetAlign:       gpu.Limits.OptimalBufferCopyOffsetAlignment,
		}, r.ma)
		if err != nil {
			r.Destroy()
			return nil, err
		}
	}
	if r.shaders, err = NewShaderManager(gpu.Device, cfg); err != nil {
		r.Destroy()
		return nil, err
	}
	if r.movies, err = NewMovieManager(gpu, r.ma, r.shaders, defaultMovieTextures, serial); err != nil {
		r.Destroy()
		return nil, err
	}
	if r.pipelines, err = NewPipelineManager(gpu.Device, r.layouts, r.shaders, cfg.PipelineCachePath, serial); err != nil {
		r.Destroy()
		return nil, err
	}
	r.buffers = NewBufferManager(gpu.Device, r.ma, serial)
	if r.textures, err = NewTextureManager(gpu.Device, r.ma, bitmaps, cfg.StagingBudgetPerFrame, serial); err != nil {
		r.Destroy()
		return nil, err
	}
	if r.uniforms, err = NewUniformBufferManager(gpu.Device, r.ma, uint64(gpu.Limits.MinUniformBufferOffsetAlignment), FenceHooks{}); err != nil {
		r.Destroy()
		return nil, err
	}
	if r.meshes, err = CreateProxyMeshes(r.buffers); err != nil {
		r.Destroy()
		return nil, err
	}
	r.session = NewRenderingSession(r.targets, r.textures)
	r.post = NewPostProcessor(r.session, r.targets, r.pipelines, r.layouts, r.textures.samplers, r.meshes, uint64(gpu.Limits.MinUniformBufferOffsetAlignment))
	r.models = NewModelRenderer(gpu.Device, r.layouts, r.pipelines, r.textures, r.buffers)
	r.textures.SetImmediateSubmit(r.ImmediateSubmit)

	if err = r.beginFrame(); err != nil {
		r.Destroy()
		return nil, err
	}
	log.Info("renderer initialized")
	return r, nil
}

func (r *Renderer) createUploadPath() error {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: r.gpu.GraphicsFamily,
	}
	if err := vk.Error(vk.CreateCommandPool(r.gpu.Device, &poolInfo, nil, &r.uploadPool)); err != nil {
		return errors.New("vk.CreateCommandPool(): " + err.Error())
	}
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        r.uploadPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(r.gpu.Device, &allocInfo, commandBuffers)); err != nil {
		return errors.New("vk.AllocateCommandBuffers(): " + err.Error())
	}
	r.uploadCmd = commandBuffers[0]

	fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if err := vk.Error(vk.CreateFence(r.gpu.Device, &fenceInfo, nil, &r.uploadFence)); err != nil {
		return errors.New("vk.CreateFence(): " + err.Error())
	}

	var err error
	r.uploadStaging, err = NewRingBuffer(r.gpu.Device, r.ma, stagingRingSize, vk.BufferUsageTransferSrcBit, uint64(r.gpu.Limits.OptimalBufferCopyOffsetAlignment))
	return err
}

// Frame returns the frame context currently recording.
func (r *Renderer) Frame() *FrameContext { return r.frames[r.frameSlot] }

// CommandBuffer returns the command buffer currently recording.
func (r *Renderer) CommandBuffer() vk.CommandBuffer { return r.Frame().CommandBuffer() }

// FrameIndex returns the monotonic frame counter.
func (r *Renderer) FrameIndex() uint64 { return r.frameIndex }

// Session exposes the render target state machine.
func (r *Renderer) Session() *RenderingSession { return r.session }

// Buffers exposes the buffer manager.
func (r *Renderer) Buffers() *BufferManager { return r.buffers }

// Textures exposes the texture manager.
func (r *Renderer) Textures() *TextureManager { return r.textures }

// Movies exposes the cutscene texture manager.
func (r *Renderer) Movies() *MovieManager { return r.movies }

// completedSerial is the highest serial the GPU has finished. Each frame
// carries its own timeline, so the global view is the max across them.
func (r *Renderer) completedSerial() uint64 {
	var completed uint64
	for _, f := range r.frames {
		if f == nil {
			continue
		}
		if v := f.CompletedSerial(); v > completed {
			completed = v
		}
	}
	return completed
}

func (r *Renderer) collect() {
	completed := r.completedSerial()
	r.buffers.Collect(completed)
	r.pipelines.Collect(completed)
	r.textures.Collect(completed)
	r.targets.Collect(completed)
	r.movies.Collect(completed)
}

// ErrFrameSkipped reports that no swapchain image could be acquired
// even after a recreate. The frame records nothing; callers drop it and
// call Flip again next frame.
var ErrFrameSkipped = errors.New("vkr: frame skipped, swapchain unusable")

// Flip finishes the current frame, submits and presents it, then begins
// the next one. This is the engine's once-per-frame entry point.
func (r *Renderer) Flip() error {
	if r.recording {
		if err := r.endFrame(); err != nil {
			return err
		}
		if err := r.submitFrame(); err != nil {
			return err
		}
		if err := r.present(); err != nil {
			return err
		}
	}
	r.frameSlot = (r.frameSlot + 1) % framesInFlight
	r.frameIndex++
	return r.beginFrame()
}

func (r *Renderer) beginFrame() error {
	frame := r.frames[r.frameSlot]
	if err := frame.WaitForGpu(); err != nil {
		return err
	}
	if err := frame.Reset(); err != nil {
		return err
	}
	r.collect()

	if r.swapchainStale {
		if err := r.recreateSwapchain(); err != nil {
			return err
		}
		r.swapchainStale = false
	}
	index, outOfDate, err := r.swapchain.Acquire(frame.imageAvailable)
	if err != nil {
		return err
	}
	if outOfDate {
		if err = r.recreateSwapchain(); err != nil {
			return err
		}
		index, outOfDate, err = r.swapchain.Acquire(frame.imageAvailable)
		if err != nil {
			return err
		}
		if outOfDate {
			// One recreate+retry per frame; give up and let the next
			// Flip start over.
			r.swapchainStale = true
			return ErrFrameSkipped
		}
	}
	r.imageIndex = index

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	cmd := frame.CommandBuffer()
	if err = vk.Error(vk.BeginCommandBuffer(cmd, &beginInfo)); err != nil {
		return errors.New("vk.BeginCommandBuffer(): " + err.Error())
	}

	r.session.SetSwapchainAttachment(r.swapchain.Image(index), r.swapchain.View(index), r.swapchain.Format())
	r.session.BeginFrame(cmd)
	r.session.RequestClear(r.clearColor)

	r.textures.FlushPendingUploads(frame, r.frameIndex, r.completedSerial())
	if err = r.models.BeginFrame(r.frameSlot, r.frameIndex); err != nil {
		return err
	}

	r.recording = true
	r.sceneActive = false
	r.sceneUsed = false
	r.deferredActive = false
	r.drawCount = 0
	return nil
}

func (r *Renderer) endFrame() error {
	cmd := r.CommandBuffer()
	if r.sceneActive {
		// The engine skipped EndSceneTexture; the frame presents whatever
		// the swapchain already holds.
		log.Warn("frame ended with the scene texture still active")
		r.session.SuspendRendering(cmd)
		r.sceneActive = false
	}
	if err := r.uniforms.OnFrameEnd(); err != nil {
		return err
	}
	r.session.PrepareSwapchainForPresent(cmd)
	if err := vk.Error(vk.EndCommandBuffer(cmd)); err != nil {
		return errors.New("vk.EndCommandBuffer(): " + err.Error())
	}
	log.WithFields(log.Fields{"frame": r.frameIndex, "draws": r.drawCount}).Debug("frame recorded")
	r.recording = false
	return nil
}

func (r *Renderer) submitFrame() error {
	frame := r.frames[r.frameSlot]
	serial := r.pendingSerial

	// renderFinished is binary and gates the present; the timeline value
	// carries the frame's serial for resource retirement.
	timelineInfo := vk.TimelineSemaphoreSubmitInfo{
		SType:                     vk.StructureTypeTimelineSemaphoreSubmitInfo,
		WaitSemaphoreValueCount:   1,
		PWaitSemaphoreValues:      []uint64{0},
		SignalSemaphoreValueCount: 2,
		PSignalSemaphoreValues:    []uint64{0, serial},
	}
	cTimeline, _ := timelineInfo.PassRef()
	defer timelineInfo.Free()

	submit := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		PNext:                unsafe.Pointer(cTimeline),
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{frame.imageAvailable},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{frame.CommandBuffer()},
		SignalSemaphoreCount: 2,
		PSignalSemaphores:    []vk.Semaphore{frame.renderFinished, frame.timeline},
	}
	if err := vk.Error(vk.QueueSubmit(r.gpu.Queue, 1, []vk.SubmitInfo{submit}, frame.inFlight)); err != nil {
		return errors.New("vk.QueueSubmit(): " + err.Error())
	}
	frame.lastSubmitSerial = serial
	r.pendingSerial++
	return nil
}

func (r *Renderer) present() error {
	frame := r.frames[r.frameSlot]
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{frame.renderFinished},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{r.swapchain.Handle()},
		PImageIndices:      []uint32{r.imageIndex},
	}
	switch result := vk.QueuePresent(r.gpu.Queue, &presentInfo); result {
	case vk.Success:
	case vk.Suboptimal, vk.ErrorOutOfDate:
		r.swapchainStale = true
	default:
		return errors.New("vk.QueuePresent(): " + vk.Error(result).Error())
	}
	return nil
}

// recreateSwapchain rebuilds the swapchain, drains the pipeline cache
// (the surface format may have changed, which keys every pipeline), and
// resizes every screen-sized target.
func (r *Renderer) recreateSwapchain() error {
	vk.DeviceWaitIdle(r.gpu.Device)
	old := r.swapchain
	sc, err := NewSwapchain(r.gpu, r.surface, r.cfg, old)
	old.Release()
	if err != nil {
		return err
	}
	r.swapchain = sc
	r.pipelines.DrainAndRetire()
	return r.targets.Resize(sc.Extent())
}

// SetClearColor stores the color the next cleared target uses, in the
// engine's 0-255 convention.
func (r *Renderer) SetClearColor(red, green, blue uint8) {
	r.clearColor = [4]float32{
		float32(red) / 255,
		float32(green) / 255,
		float32(blue) / 255,
		1,
	}
}

// mainTargetKind routes the "main" target: the HDR scene while the
// scene texture is active, the swapchain otherwise.
func mainTargetKind(sceneActive, withDepth bool) TargetKind {
	switch {
	case sceneActive && withDepth:
		return TargetSceneHDR
	case sceneActive:
		return TargetSceneHDRNoDepth
	case withDepth:
		return TargetSwapchain
	}
	return TargetSwapchainNoDepth
}

// SelectMainTarget points subsequent draws at the main target.
func (r *Renderer) SelectMainTarget(withDepth bool) {
	r.session.RequestTarget(r.CommandBuffer(), TargetSelection{Kind: mainTargetKind(r.sceneActive, withDepth)})
}

// SetZbufferMode stores the engine's current depth policy and returns
// the previous one. Draw calls carry their own mode; this mirrors the
// engine-side get/set pair.
func (r *Renderer) SetZbufferMode(mode gfx.ZbufferMode) gfx.ZbufferMode {
	old := r.zbufferMode
	r.zbufferMode = mode
	return old
}

// ZbufferMode returns the stored depth policy.
func (r *Renderer) ZbufferMode() gfx.ZbufferMode { return r.zbufferMode }

// SaveZbuffer redirects scene depth to the parallel cockpit buffer,
// clearing it. The main depth buffer is left untouched for restore.
func (r *Renderer) SaveZbuffer() {
	r.session.SelectDepth(r.CommandBuffer(), DepthCockpit)
	r.session.RequestDepthClear()
}

// RestoreZbuffer switches scene passes back onto the preserved main
// depth buffer.
func (r *Renderer) RestoreZbuffer() {
	r.session.SelectDepth(r.CommandBuffer(), DepthMain)
}

// BeginSceneTexture redirects scene rendering into the HDR target. Once
// per frame; a second call is a no-op so the HDR scene survives until
// post-processing consumes it.
func (r *Renderer) BeginSceneTexture() error {
	if r.sceneUsed {
		if !r.sceneActive {
			log.Warn("scene texture already consumed this frame")
		}
		return nil
	}
	r.sceneUsed = true
	r.sceneActive = true
	cmd := r.CommandBuffer()
	r.session.RequestTarget(cmd, TargetSelection{Kind: TargetSceneHDR})
	r.session.RequestClear(r.clearColor)
	r.session.RequestDepthClear()
	return r.session.EnsureRendering(cmd)
}

// CopySceneEffectTexture snapshots the HDR scene for distortion
// effects. A no-op outside the scene texture.
func (r *Renderer) CopySceneEffectTexture() {
	if !r.sceneActive {
		return
	}
	r.session.CopySceneHDRToEffect(r.CommandBuffer())
}

// EndSceneTexture runs the post-processing chain over the HDR scene and
// composites the result to the swapchain.
func (r *Renderer) EndSceneTexture(opts PostOptions) error {
	if !r.sceneActive {
		return nil
	}
	r.sceneActive = false
	return r.post.Run(r.CommandBuffer(), r.Frame(), opts)
}

// BeginDeferred opens the G-buffer pass for scene geometry. Requires an
// active scene texture, since the lighting resolve writes HDR.
func (r *Renderer) BeginDeferred() error {
	if !r.sceneActive {
		return errors.New("deferred shading requires an active scene texture")
	}
	cmd := r.CommandBuffer()
	r.session.RequestTarget(cmd, TargetSelection{Kind: TargetDeferredGBuffer})
	r.session.RequestClear([4]float32{})
	r.session.RequestDepthClear()
	// Open the pass so the first-touch clear runs, then snapshot the
	// forward-rendered scene so far into the emissive buffer; the
	// composite adds it back on top of the lit result.
	if err := r.session.EnsureRendering(cmd); err != nil {
		return err
	}
	r.captureSceneToEmissive(cmd)
	if err := r.session.EnsureRendering(cmd); err != nil {
		return err
	}
	r.deferredActive = true
	return nil
}

func (r *Renderer) captureSceneToEmissive(cmd vk.CommandBuffer) {
	t := r.targets
	r.session.SuspendRendering(cmd)
	t.SceneHDR.TransitionTo(cmd, vk.ImageLayoutTransferSrcOptimal)
	emissive := &t.GBuffer[gBufferEmissiveIndex]
	emissive.TransitionTo(cmd, vk.ImageLayoutTransferDstOptimal)

	extent := t.Extent()
	region := vk.ImageCopy{
		SrcSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		DstSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		Extent: vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
	}
	vk.CmdCopyImage(cmd,
		t.SceneHDR.image.Get(), vk.ImageLayoutTransferSrcOptimal,
		emissive.image.Get(), vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageCopy{region})
}

// EndDeferredGeometry closes the G-buffer pass. Lighting may record
// other work (shadow maps) between this and FinishDeferredLighting.
func (r *Renderer) EndDeferredGeometry() {
	r.session.EndDeferredGeometry(r.CommandBuffer())
}

// FinishDeferredLighting resolves the G-buffer into the HDR scene:
// one synthetic ambient fullscreen light first, then every engine light
// accumulated additively through its proxy volume.
func (r *Renderer) FinishDeferredLighting(view, proj mgl32.Mat4, ambientColor mgl32.Vec3, lights []gfx.Light) error {
	if !r.deferredActive {
		return errors.New("deferred lighting without an open G-buffer")
	}
	r.deferredActive = false

	cmd := r.CommandBuffer()
	frame := r.Frame()
	r.session.SuspendRendering(cmd)
	r.session.TransitionGBufferToShaderRead(cmd)
	r.session.TransitionDepthToShaderRead(cmd)

	set, err := r.gbufferSet()
	if err != nil {
		return err
	}

	// The lighting pass samples the depth buffer, so it renders without
	// a depth attachment.
	r.session.RequestTarget(cmd, TargetSelection{Kind: TargetSceneHDRNoDepth})
	if err = r.session.EnsureRendering(cmd); err != nil {
		return err
	}
	r.setScreenViewport(cmd, r.targets.Extent())

	align := uint64(r.gpu.Limits.MinUniformBufferOffsetAlignment)
	built, err := BuildDeferredLights(frame.UniformRing(), view, proj, ambientColor, lights, align)
	if err != nil {
		return err
	}

	hdrFormat := r.targets.SceneHDR.Format()
	key := PipelineKey{
		ShaderType:           gfx.ShaderDeferredLighting,
		ColorAttachmentCount: 1,
		SampleCount:          vk.SampleCount1Bit,
		BlendMode:            gfx.BlendNone,
		DepthMode:            gfx.ZbufferNone,
		Primitive:            gfx.PrimitiveTriangles,
		ColorWriteMask:       DefaultColorWriteMask,
	}
	key.ColorFormats[0] = hdrFormat
	ambient, err := r.pipelines.GetPipeline(key, fullscreenVertexLayout)
	if err != nil {
		return err
	}
	key.BlendMode = gfx.BlendAdditive
	additive, err := r.pipelines.GetPipeline(key, fullscreenVertexLayout)
	if err != nil {
		return err
	}

	layout := r.layouts.PipelineLayout(LayoutDeferred)
	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, layout, 1, 1, []vk.DescriptorSet{set}, 0, nil)
	RecordDeferredLights(&DeferredDrawContext{
		Cmd:              cmd,
		Layout:           layout,
		UniformBuffer:    frame.UniformRing().Buffer(),
		AdditivePipeline: additive,
		AmbientPipeline:  ambient,
		Meshes:           r.meshes,
	}, built)
	return nil
}

// gbufferSet returns this frame slot's G-buffer descriptor set with the
// four sampled attachments rewritten. Safe to rewrite: the slot's fence
// was waited before recording began.
func (r *Renderer) gbufferSet() (vk.DescriptorSet, error) {
	set := r.gbufferSets[r.frameSlot]
	if set == nil {
		var err error
		if set, err = r.layouts.AllocateGBufferSet(); err != nil {
			return nil, err
		}
		r.gbufferSets[r.frameSlot] = set
	}
	sampler, err := r.textures.samplers.get(SamplerKey{
		Filter:      vk.FilterNearest,
		AddressMode: vk.SamplerAddressModeClampToEdge,
	})
	if err != nil {
		return nil, err
	}
	writes := make([]vk.WriteDescriptorSet, gBufferTextureCount)
	for i := 0; i < gBufferTextureCount; i++ {
		writes[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      uint32(i),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			PImageInfo: []vk.DescriptorImageInfo{{
				Sampler:     sampler,
				ImageView:   r.targets.GBuffer[i].View(),
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}},
		}
	}
	vk.UpdateDescriptorSets(r.gpu.Device, uint32(len(writes)), writes, 0, nil)
	return set, nil
}

// attachmentFormatsFor computes the pipeline-facing attachment signature
// of a target kind.
func attachmentFormatsFor(kind TargetKind, swapFormat, hdrFormat, depthFormat vk.Format, gbuffer [gBufferColorCount]vk.Format) AttachmentFormats {
	formats := AttachmentFormats{
		ColorCount: 1,
		Samples:    vk.SampleCount1Bit,
	}
	switch kind {
	case TargetSwapchain:
		formats.Color[0] = swapFormat
		formats.Depth = depthFormat
	case TargetSwapchainNoDepth:
		formats.Color[0] = swapFormat
	case TargetSceneHDR:
		formats.Color[0] = hdrFormat
		formats.Depth = depthFormat
	case TargetSceneHDRNoDepth:
		formats.Color[0] = hdrFormat
	case TargetDeferredGBuffer:
		formats.ColorCount = gBufferColorCount
		formats.Color = gbuffer
		formats.Depth = depthFormat
	default:
		formats.Color[0] = swapFormat
	}
	return formats
}

func (r *Renderer) currentAttachmentFormats() AttachmentFormats {
	var gbuffer [gBufferColorCount]vk.Format
	for i := range gbuffer {
		gbuffer[i] = r.targets.GBuffer[i].Format()
	}
	return attachmentFormatsFor(r.session.Selected().Kind,
		r.swapchain.Format(), r.targets.SceneHDR.Format(), r.targets.DepthFormat(), gbuffer)
}

func (r *Renderer) currentExtent() vk.Extent2D {
	switch r.session.Selected().Kind {
	case TargetSwapchain, TargetSwapchainNoDepth:
		return r.swapchain.Extent()
	}
	return r.targets.Extent()
}

func (r *Renderer) setScreenViewport(cmd vk.CommandBuffer, extent vk.Extent2D) {
	viewport := vk.Viewport{
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MaxDepth: 1,
	}
	vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{{Extent: extent}})
}

// SetModelUniforms streams the per-draw model data array into the
// uniform stream and binds it for subsequent DrawModel calls. data is
// the packed array; elements is its element count.
func (r *Renderer) SetModelUniforms(data []byte, elements int) error {
	alloc, err := r.uniforms.Get(gfx.UniformModelData, elements, 0)
	if err != nil {
		return err
	}
	copy(alloc.Shadow, data)
	alloc.Commit()
	r.models.BindModelUniform(&alloc)
	return nil
}

// DrawModel records one model batch against the currently selected
// target.
func (r *Renderer) DrawModel(draw *ModelDrawCall) error {
	cmd := r.CommandBuffer()
	if err := r.session.EnsureRendering(cmd); err != nil {
		return err
	}
	r.setScreenViewport(cmd, r.currentExtent())
	r.drawCount++
	return r.models.Draw(cmd, r.currentAttachmentFormats(), draw)
}

// QueueTextureUpload schedules a texture for upload this frame and
// marks it used for LRU purposes.
func (r *Renderer) QueueTextureUpload(handle gfx.TextureHandle, samplerKey SamplerKey) {
	r.textures.QueueTextureUpload(handle, r.frameIndex, samplerKey)
}

// CreateBitmapRenderTarget makes a bitmap renderable and selectable as
// a target.
func (r *Renderer) CreateBitmapRenderTarget(handle gfx.TextureHandle, width, height int, flags RenderTargetFlags) (*RenderTargetTexture, error) {
	rt, err := r.textures.CreateRenderTarget(handle, width, height, flags)
	if err != nil {
		return nil, err
	}
	r.session.RegisterBitmapTarget(handle, rt)
	return rt, nil
}

// CreateMovieTexture allocates a cutscene texture. Returns the invalid
// handle when the device lacks YCbCr support.
func (r *Renderer) CreateMovieTexture(width, height int, cs gfx.MovieColorSpace, rng gfx.MovieColorRange) gfx.MovieHandle {
	return r.movies.CreateMovieTexture(width, height, cs, rng)
}

// UploadMovieFrame stages one decoded video frame. Suspends any active
// pass: the plane copies are transfer work.
func (r *Renderer) UploadMovieFrame(handle gfx.MovieHandle, frame *gfx.MovieFrame) error {
	cmd := r.CommandBuffer()
	r.session.SuspendRendering(cmd)
	return r.movies.UploadMovieFrame(cmd, r.Frame().StagingRing(), handle, frame)
}

// DrawMovie letterboxes the movie texture onto the current target.
func (r *Renderer) DrawMovie(handle gfx.MovieHandle, x0, y0, x1, y1, alpha float32) error {
	cmd := r.CommandBuffer()
	if err := r.session.EnsureRendering(cmd); err != nil {
		return err
	}
	formats := r.currentAttachmentFormats()
	r.drawCount++
	return r.movies.DrawMovieTexture(cmd, handle, formats.Color[0], r.currentExtent(), x0, y0, x1, y1, alpha)
}

// ReleaseMovieTexture retires a cutscene texture once the GPU is done
// with it.
func (r *Renderer) ReleaseMovieTexture(handle gfx.MovieHandle) {
	r.movies.ReleaseMovieTexture(handle)
}

// ImmediateSubmit records transfer work into a one-off command buffer,
// submits it, and blocks until the GPU finishes. Used by synchronous
// texture preloads at level load; never during frame recording hot
// paths.
func (r *Renderer) ImmediateSubmit(record func(cmd vk.CommandBuffer, staging *RingBuffer) error) error {
	if err := vk.Error(vk.ResetCommandPool(r.gpu.Device, r.uploadPool, 0)); err != nil {
		return errors.New("vk.ResetCommandPool(): " + err.Error())
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vk.Error(vk.BeginCommandBuffer(r.uploadCmd, &beginInfo)); err != nil {
		return errors.New("vk.BeginCommandBuffer(): " + err.Error())
	}
	if err := record(r.uploadCmd, r.uploadStaging); err != nil {
		return err
	}
	if err := vk.Error(vk.EndCommandBuffer(r.uploadCmd)); err != nil {
		return errors.New("vk.EndCommandBuffer(): " + err.Error())
	}

	// No timeline value is signalled here; the fence wait below is the
	// only synchronization. The pending serial belongs to the frame still
	// recording, so anything retired mid-recording keeps gating on that
	// frame's own submit.
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{r.uploadCmd},
	}
	if err := vk.Error(vk.QueueSubmit(r.gpu.Queue, 1, []vk.SubmitInfo{submit}, r.uploadFence)); err != nil {
		return errors.New("vk.QueueSubmit(): " + err.Error())
	}
	fences := []vk.Fence{r.uploadFence}
	if err := vk.Error(vk.WaitForFences(r.gpu.Device, 1, fences, vk.True, ^uint64(0))); err != nil {
		return errors.New("vk.WaitForFences(): " + err.Error())
	}
	if err := vk.Error(vk.ResetFences(r.gpu.Device, 1, fences)); err != nil {
		return errors.New("vk.ResetFences(): " + err.Error())
	}
	r.uploadStaging.Reset()
	return nil
}

// Destroy tears the backend down in dependency order. Safe on a
// partially constructed renderer.
func (r *Renderer) Destroy() {
	if r.gpu != nil && r.gpu.Device != nil {
		vk.DeviceWaitIdle(r.gpu.Device)
	}
	if r.pipelines != nil {
		r.pipelines.SaveCache()
	}
	if r.movies != nil {
		r.movies.Release()
	}
	if r.meshes != nil && r.buffers != nil {
		r.meshes.Release(r.buffers)
	}
	if r.uniforms != nil {
		r.uniforms.Release()
	}
	if r.textures != nil {
		r.textures.Release()
	}
	if r.buffers != nil {
		r.buffers.Release()
	}
	if r.pipelines != nil {
		r.pipelines.Release()
	}
	if r.shaders != nil {
		r.shaders.Release()
	}
	if r.targets != nil {
		r.targets.Release()
	}
	if r.layouts != nil {
		r.layouts.Release()
	}
	for _, f := range r.frames {
		if f != nil {
			f.Release()
		}
	}
	if r.uploadStaging != nil {
		r.uploadStaging.Release()
	}
	if r.uploadFence != nil {
		vk.DestroyFence(r.gpu.Device, r.uploadFence, nil)
	}
	if r.uploadPool != nil {
		vk.DestroyCommandPool(r.gpu.Device, r.uploadPool, nil)
	}
	if r.swapchain != nil {
		r.swapchain.Release()
	}
}
