package vkr

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/Eiton/vulkan"
	log "github.com/sirupsen/logrus"

	"github.com/danielchristiancazares/freespace2/core"
	"github.com/danielchristiancazares/freespace2/gfx"
)

// movieImageFormat is the tri-planar 4:2:0 format every movie texture
// uses. One plane per channel, chroma subsampled 2x2.
const movieImageFormat = vk.FormatG8B8R83plane420Unorm

// movieRowAlign pads plane strides so every bufferOffset in the plane
// copies satisfies Vulkan's 4-byte transfer alignment.
const movieRowAlign = 4

// defaultMovieTextures bounds concurrent movie textures; cutscene
// playback needs one, the lab preview a couple more.
const defaultMovieTextures = 8

// moviePushConstants is the 32-byte block the video shaders consume:
// the quad corners in pixels plus the fade alpha.
type moviePushConstants struct {
	ScreenSize [2]float32
	RectMin    [2]float32
	RectMax    [2]float32
	Alpha      float32
	_          float32
}

const moviePushConstantSize = 32

// movieConfigCount is the cross of {BT601, BT709} x {narrow, full}.
const movieConfigCount = 4

// ycbcrConfigIndex maps a colorspace/range pair to its conversion slot.
func ycbcrConfigIndex(cs gfx.MovieColorSpace, rng gfx.MovieColorRange) int {
	return int(cs)*2 + int(rng)
}

// movieStagingLayout is the per-texture staging arrangement, computed
// once at texture creation: packed planes at 4-byte-aligned strides.
type movieStagingLayout struct {
	yStride int
	cStride int

	yOffset  uint64
	cbOffset uint64
	crOffset uint64

	totalSize uint64
}

func movieUploadLayout(width, height int) movieStagingLayout {
	l := movieStagingLayout{
		yStride: int(alignUp(uint64(width), movieRowAlign)),
		cStride: int(alignUp(uint64(width/2), movieRowAlign)),
	}
	ySize := uint64(l.yStride * height)
	cSize := uint64(l.cStride * (height / 2))
	l.yOffset = 0
	l.cbOffset = ySize
	l.crOffset = ySize + cSize
	l.totalSize = ySize + 2*cSize
	return l
}

// copyPlane copies rows of rowBytes from src into dst, re-striding. A
// negative srcStride walks the source bottom-up, flipping the image.
func copyPlane(dst []byte, dstStride int, src []byte, srcStride, rowBytes, rows int) {
	srcPos := 0
	if srcStride < 0 {
		srcPos = (rows - 1) * -srcStride
	}
	dstPos := 0
	for row := 0; row < rows; row++ {
		copy(dst[dstPos:dstPos+rowBytes], src[srcPos:srcPos+rowBytes])
		srcPos += srcStride
		dstPos += dstStride
	}
}

// ycbcrConfig is one immutable conversion: the sampler bakes the YCbCr
// matrix into the set layout, so each config needs its own layouts and
// its own pipeline.
type ycbcrConfig struct {
	conversion     vk.SamplerYcbcrConversion
	sampler        vk.Sampler
	setLayout      vk.DescriptorSetLayout
	pipelineLayout vk.PipelineLayout

	pipeline       vk.Pipeline
	pipelineFormat vk.Format
}

type movieTexture struct {
	live bool

	image Image
	view  vk.ImageView
	set   vk.DescriptorSet

	width, height int
	config        int
	staging       movieStagingLayout
	layout        vk.ImageLayout

	lastUsedSerial uint64
}

// MovieManager presents decoded YCbCr 4:2:0 cutscene frames. When the
// device lacks the conversion feature every create call returns the
// invalid handle and the caller falls back to its CPU upload path.
type MovieManager struct {
	device  vk.Device
	ma      *MemoryAllocator
	shaders *ShaderManager

	available      bool
	chromaLocation vk.ChromaLocation
	chromaFilter   vk.Filter

	pool    vk.DescriptorPool
	configs [movieConfigCount]ycbcrConfig

	textures    []*movieTexture
	maxTextures int

	releases     DeferredReleaseQueue
	submitSerial func() uint64
}

// NewMovieManager probes YCbCr support and, when present, builds the
// four conversion configs. An unsupported device is not an error; the
// manager stays alive and hands out invalid handles.
func NewMovieManager(gpu *core.Gpu, ma *MemoryAllocator, shaders *ShaderManager, maxTextures int, submitSerial func() uint64) (*MovieManager, error) {
	if maxTextures <= 0 {
		maxTextures = defaultMovieTextures
	}
	mm := &MovieManager{
		device:       gpu.Device,
		ma:           ma,
		shaders:      shaders,
		maxTextures:  maxTextures,
		submitSerial: submitSerial,
	}
	if !gpu.SamplerYcbcr {
		return mm, nil
	}

	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(gpu.Physical, movieImageFormat, &props)
	features := props.OptimalTilingFeatures

	mm.chromaLocation = vk.ChromaLocationCositedEven
	if features&vk.FormatFeatureFlags(vk.FormatFeatureMidpointChromaSamplesBit) != 0 {
		mm.chromaLocation = vk.ChromaLocationMidpoint
	}
	mm.chromaFilter = vk.FilterNearest
	if features&vk.FormatFeatureFlags(vk.FormatFeatureSampledImageYcbcrConversionLinearFilterBit) != 0 {
		mm.chromaFilter = vk.FilterLinear
	}

	for i := 0; i < movieConfigCount; i++ {
		if err := mm.createConfig(i); err != nil {
			mm.Release()
			return nil, err
		}
	}
	if err := mm.createPool(); err != nil {
		mm.Release()
		return nil, err
	}
	mm.available = true
	log.WithFields(log.Fields{
		"chromaLocation": mm.chromaLocation,
		"linearChroma":   mm.chromaFilter == vk.FilterLinear,
	}).Info("YCbCr movie path ready")
	return mm, nil
}

// Available reports whether the GPU conversion path is usable.
func (mm *MovieManager) Available() bool {
	return mm.available
}

func (mm *MovieManager) createConfig(index int) error {
	model := vk.SamplerYcbcrModelConversionYcbcr601
	if gfx.MovieColorSpace(index/2) == gfx.MovieColorSpaceBT709 {
		model = vk.SamplerYcbcrModelConversionYcbcr709
	}
	ycbcrRange := vk.SamplerYcbcrRangeItuNarrow
	if gfx.MovieColorRange(index%2) == gfx.MovieRangeFull {
		ycbcrRange = vk.SamplerYcbcrRangeItuFull
	}

	conversionInfo := vk.SamplerYcbcrConversionCreateInfo{
		SType:         vk.StructureTypeSamplerYcbcrConversionCreateInfo,
		Format:        movieImageFormat,
		YcbcrModel:    model,
		YcbcrRange:    ycbcrRange,
		XChromaOffset: mm.chromaLocation,
		YChromaOffset: mm.chromaLocation,
		ChromaFilter:  mm.chromaFilter,
	}
	cfg := &mm.configs[index]
	if err := vk.Error(vk.CreateSamplerYcbcrConversion(mm.device, &conversionInfo, nil, &cfg.conversion)); err != nil {
		return errors.New("vk.CreateSamplerYcbcrConversion(): " + err.Error())
	}

	samplerConversion := vk.SamplerYcbcrConversionInfo{
		SType:      vk.StructureTypeSamplerYcbcrConversionInfo,
		Conversion: cfg.conversion,
	}
	samplerInfo := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		PNext:        unsafe.Pointer(&samplerConversion),
		MagFilter:    mm.chromaFilter,
		MinFilter:    mm.chromaFilter,
		MipmapMode:   vk.SamplerMipmapModeNearest,
		AddressModeU: vk.SamplerAddressModeClampToEdge,
		AddressModeV: vk.SamplerAddressModeClampToEdge,
		AddressModeW: vk.SamplerAddressModeClampToEdge,
		BorderColor:  vk.BorderColorFloatOpaqueBlack,
	}
	if err := vk.Error(vk.CreateSampler(mm.device, &samplerInfo, nil, &cfg.sampler)); err != nil {
		return errors.New("vk.CreateSampler(): " + err.Error())
	}

	// The conversion must be immutable in the layout; Vulkan forbids
	// binding YCbCr samplers any other way.
	bindings := []vk.DescriptorSetLayoutBinding{{
		Binding:            0,
		DescriptorType:     vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount:    1,
		StageFlags:         vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		PImmutableSamplers: []vk.Sampler{cfg.sampler},
	}}
	var err error
	if cfg.setLayout, err = createSetLayout(mm.device, bindings, 0, nil); err != nil {
		return err
	}

	pushRanges := []vk.PushConstantRange{{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
		Size:       moviePushConstantSize,
	}}
	cfg.pipelineLayout, err = createPipelineLayout(mm.device, []vk.DescriptorSetLayout{cfg.setLayout}, pushRanges)
	return err
}

// createPool sizes the pool for per-texture sets. Multi-planar
// conversions can consume one descriptor per plane, so the sampler
// count carries a 3x factor.
func (mm *MovieManager) createPool() error {
	poolSizes := []vk.DescriptorPoolSize{{
		Type:            vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: uint32(mm.maxTextures * 3),
	}}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       uint32(mm.maxTextures),
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if err := vk.Error(vk.CreateDescriptorPool(mm.device, &createInfo, nil, &mm.pool)); err != nil {
		return errors.New("vk.CreateDescriptorPool(): " + err.Error())
	}
	return nil
}

func (mm *MovieManager) freeSlot() int {
	for i, t := range mm.textures {
		if !t.live {
			return i
		}
	}
	if len(mm.textures) < mm.maxTextures {
		mm.textures = append(mm.textures, &movieTexture{})
		return len(mm.textures) - 1
	}
	return -1
}

// CreateMovieTexture allocates image, view and descriptor set for one
// movie stream. Returns the invalid handle when the conversion path is
// unavailable, dimensions are odd, or all slots are taken.
func (mm *MovieManager) CreateMovieTexture(width, height int, cs gfx.MovieColorSpace, rng gfx.MovieColorRange) gfx.MovieHandle {
	if !mm.available {
		return gfx.InvalidMovieHandle
	}
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		log.WithFields(log.Fields{"width": width, "height": height}).Warn("movie dimensions must be even")
		return gfx.InvalidMovieHandle
	}
	slot := mm.freeSlot()
	if slot < 0 {
		log.Warn("all movie texture slots in use")
		return gfx.InvalidMovieHandle
	}
	config := ycbcrConfigIndex(cs, rng)
	cfg := &mm.configs[config]

	image, err := NewImage(mm.device, uint32(width), uint32(height), ImageOptions{
		Format: movieImageFormat,
		Usage:  vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit,
	}, mm.ma)
	if err != nil {
		log.WithError(err).Error("movie image creation failed")
		return gfx.InvalidMovieHandle
	}

	view, err := mm.createMovieView(image.Get(), cfg.conversion)
	if err != nil {
		image.Release()
		log.WithError(err).Error("movie view creation failed")
		return gfx.InvalidMovieHandle
	}

	set, err := mm.allocateSet(cfg.setLayout)
	if err != nil {
		vk.DestroyImageView(mm.device, view, nil)
		image.Release()
		log.WithError(err).Error("movie descriptor set allocation failed")
		return gfx.InvalidMovieHandle
	}
	writes := []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo: []vk.DescriptorImageInfo{{
			ImageView:   view,
			ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
		}},
	}}
	vk.UpdateDescriptorSets(mm.device, uint32(len(writes)), writes, 0, nil)

	t := mm.textures[slot]
	*t = movieTexture{
		live:    true,
		image:   image,
		view:    view,
		set:     set,
		width:   width,
		height:  height,
		config:  config,
		staging: movieUploadLayout(width, height),
		layout:  vk.ImageLayoutUndefined,
	}
	return gfx.MovieHandle(slot)
}

// The view needs the same conversion chained in as the sampler, or
// validation rejects the descriptor write.
func (mm *MovieManager) createMovieView(img vk.Image, conversion vk.SamplerYcbcrConversion) (vk.ImageView, error) {
	conversionInfo := vk.SamplerYcbcrConversionInfo{
		SType:      vk.StructureTypeSamplerYcbcrConversionInfo,
		Conversion: conversion,
	}
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		PNext:    unsafe.Pointer(&conversionInfo),
		Image:    img,
		ViewType: vk.ImageViewType2d,
		Format:   movieImageFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(mm.device, &createInfo, nil, &view)); err != nil {
		return nil, errors.New("vk.CreateImageView(): " + err.Error())
	}
	return view, nil
}

func (mm *MovieManager) allocateSet(layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     mm.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	sets := make([]vk.DescriptorSet, 1)
	if err := vk.Error(vk.AllocateDescriptorSets(mm.device, &allocInfo, &sets[0])); err != nil {
		return nil, errors.New("vk.AllocateDescriptorSets(): " + err.Error())
	}
	return sets[0], nil
}

func (mm *MovieManager) texture(handle gfx.MovieHandle) (*movieTexture, error) {
	if !handle.IsValid() || int(handle) >= len(mm.textures) || !mm.textures[handle].live {
		return nil, fmt.Errorf("movie handle %d is not live", int(handle))
	}
	return mm.textures[handle], nil
}

// UploadMovieFrame stages all three planes into the frame's staging
// ring and records the copies. Source strides are whatever the decoder
// produced, including negative for bottom-up frames.
func (mm *MovieManager) UploadMovieFrame(cmd vk.CommandBuffer, staging *RingBuffer, handle gfx.MovieHandle, frame *gfx.MovieFrame) error {
	t, err := mm.texture(handle)
	if err != nil {
		return err
	}

	alloc, ok := staging.Allocate(t.staging.totalSize, movieRowAlign)
	if !ok {
		return fmt.Errorf("movie frame needs %d staging bytes, ring exhausted", t.staging.totalSize)
	}
	dst := unsafe.Slice((*byte)(alloc.Ptr), t.staging.totalSize)
	copyPlane(dst[t.staging.yOffset:], t.staging.yStride, frame.Y, frame.YStride, t.width, t.height)
	copyPlane(dst[t.staging.cbOffset:], t.staging.cStride, frame.Cb, frame.CbStride, t.width/2, t.height/2)
	copyPlane(dst[t.staging.crOffset:], t.staging.cStride, frame.Cr, frame.CrStride, t.width/2, t.height/2)

	layoutTransition(cmd, t.image.Get(), vk.ImageAspectColorBit, 1, 1, t.layout, vk.ImageLayoutTransferDstOptimal)

	plane := func(aspect vk.ImageAspectFlagBits, offset uint64, stride int, w, h int) vk.BufferImageCopy {
		return vk.BufferImageCopy{
			BufferOffset:    alloc.Offset + vk.DeviceSize(offset),
			BufferRowLength: uint32(stride),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(aspect),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: uint32(w), Height: uint32(h), Depth: 1},
		}
	}
	regions := []vk.BufferImageCopy{
		plane(vk.ImageAspectPlane0Bit, t.staging.yOffset, t.staging.yStride, t.width, t.height),
		plane(vk.ImageAspectPlane1Bit, t.staging.cbOffset, t.staging.cStride, t.width/2, t.height/2),
		plane(vk.ImageAspectPlane2Bit, t.staging.crOffset, t.staging.cStride, t.width/2, t.height/2),
	}
	vk.CmdCopyBufferToImage(cmd, staging.Buffer(), t.image.Get(), vk.ImageLayoutTransferDstOptimal, uint32(len(regions)), regions)

	layoutTransition(cmd, t.image.Get(), vk.ImageAspectColorBit, 1, 1, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal)
	t.layout = vk.ImageLayoutShaderReadOnlyOptimal
	return nil
}

// DrawMovieTexture records the letterboxed quad. The caller must have
// an active pass on an attachment of colorFormat; extent is that
// attachment's size in pixels.
func (mm *MovieManager) DrawMovieTexture(cmd vk.CommandBuffer, handle gfx.MovieHandle, colorFormat vk.Format, extent vk.Extent2D, x0, y0, x1, y1, alpha float32) error {
	t, err := mm.texture(handle)
	if err != nil {
		return err
	}
	if t.layout != vk.ImageLayoutShaderReadOnlyOptimal {
		return errors.New("movie texture drawn before its first frame upload")
	}
	cfg := &mm.configs[t.config]
	if err := mm.ensurePipeline(cfg, colorFormat); err != nil {
		return err
	}

	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, cfg.pipeline)
	viewport := vk.Viewport{
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MaxDepth: 1,
	}
	vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{{Extent: extent}})

	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, cfg.pipelineLayout, 0, 1, []vk.DescriptorSet{t.set}, 0, nil)

	push := moviePushConstants{
		ScreenSize: [2]float32{float32(extent.Width), float32(extent.Height)},
		RectMin:    [2]float32{x0, y0},
		RectMax:    [2]float32{x1, y1},
		Alpha:      alpha,
	}
	stages := vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	vk.CmdPushConstants(cmd, cfg.pipelineLayout, stages, 0, moviePushConstantSize, unsafe.Pointer(&push))

	// Two triangles; the vertex shader builds the quad from the rect.
	vk.CmdDraw(cmd, 6, 1, 0, 0)
	t.lastUsedSerial = mm.submitSerial()
	return nil
}

// Movie pipelines live outside the pipeline cache keyed by shader type:
// their layouts embed the immutable conversion sampler, so each config
// builds its own against the current swapchain format.
func (mm *MovieManager) ensurePipeline(cfg *ycbcrConfig, colorFormat vk.Format) error {
	if cfg.pipeline != nil && cfg.pipelineFormat == colorFormat {
		return nil
	}
	if cfg.pipeline != nil {
		pipeline := cfg.pipeline
		device := mm.device
		mm.releases.Enqueue(mm.submitSerial(), func() {
			vk.DestroyPipeline(device, pipeline, nil)
		})
		cfg.pipeline = nil
	}

	modules, err := mm.shaders.GetModules(gfx.ShaderVideoProcess)
	if err != nil {
		return err
	}
	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: modules.Vert,
			PName:  "main\x00",
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: modules.Frag,
			PName:  "main\x00",
		},
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}
	rasterState := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(vk.CullModeNone),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1.0,
	}
	multisampleState := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
	}
	depthStencil := depthStencilState(gfx.ZbufferNone)
	attachments := []vk.PipelineColorBlendAttachmentState{
		blendAttachment(gfx.BlendAlpha, DefaultColorWriteMask),
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
	}
	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	renderingInfo := vk.PipelineRenderingCreateInfo{
		SType:                   vk.StructureTypePipelineRenderingCreateInfo,
		ColorAttachmentCount:    1,
		PColorAttachmentFormats: []vk.Format{colorFormat},
		DepthAttachmentFormat:   vk.FormatUndefined,
		StencilAttachmentFormat: vk.FormatUndefined,
	}
	cRenderingInfo, _ := renderingInfo.PassRef()
	defer renderingInfo.Free()

	createInfos := []vk.GraphicsPipelineCreateInfo{{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterState,
		PMultisampleState:   &multisampleState,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              cfg.pipelineLayout,
		RenderPass:          nil,
		PNext:               unsafe.Pointer(cRenderingInfo),
	}}
	pipelines := make([]vk.Pipeline, 1)
	if err := vk.Error(vk.CreateGraphicsPipelines(mm.device, nil, 1, createInfos, nil, pipelines)); err != nil {
		return errors.New("vk.CreateGraphicsPipelines(): " + err.Error())
	}
	cfg.pipeline = pipelines[0]
	cfg.pipelineFormat = colorFormat
	return nil
}

// ReleaseMovieTexture frees the slot and defers GPU object destruction
// past the last submission that sampled the texture.
func (mm *MovieManager) ReleaseMovieTexture(handle gfx.MovieHandle) {
	t, err := mm.texture(handle)
	if err != nil {
		return
	}
	serial := mm.submitSerial()
	if t.lastUsedSerial > serial {
		serial = t.lastUsedSerial
	}

	device := mm.device
	pool := mm.pool
	image := t.image
	view := t.view
	set := t.set
	mm.releases.Enqueue(serial, func() {
		vk.FreeDescriptorSets(device, pool, 1, &set)
		vk.DestroyImageView(device, view, nil)
		image.Release()
	})
	*t = movieTexture{}
}

// Collect drives the deferred release queue.
func (mm *MovieManager) Collect(completedSerial uint64) {
	mm.releases.Collect(completedSerial)
}

// Release destroys everything. Device must be idle.
func (mm *MovieManager) Release() {
	mm.releases.Clear()
	for _, t := range mm.textures {
		if !t.live {
			continue
		}
		vk.DestroyImageView(mm.device, t.view, nil)
		t.image.Release()
		t.live = false
	}
	mm.textures = nil
	for i := range mm.configs {
		cfg := &mm.configs[i]
		if cfg.pipeline != nil {
			vk.DestroyPipeline(mm.device, cfg.pipeline, nil)
			cfg.pipeline = nil
		}
		if cfg.pipelineLayout != nil {
			vk.DestroyPipelineLayout(mm.device, cfg.pipelineLayout, nil)
			cfg.pipelineLayout = nil
		}
		if cfg.setLayout != nil {
			vk.DestroyDescriptorSetLayout(mm.device, cfg.setLayout, nil)
			cfg.setLayout = nil
		}
		if cfg.sampler != nil {
			vk.DestroySampler(mm.device, cfg.sampler, nil)
			cfg.sampler = nil
		}
		if cfg.conversion != nil {
			vk.DestroySamplerYcbcrConversion(mm.device, cfg.conversion, nil)
			cfg.conversion = nil
		}
	}
	if mm.pool != nil {
		vk.DestroyDescriptorPool(mm.device, mm.pool, nil)
		mm.pool = nil
	}
	mm.available = false
}
