package vkr

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	vk "github.com/Eiton/vulkan"
	log "github.com/sirupsen/logrus"

	"github.com/danielchristiancazares/freespace2/gfx"
)

// maxColorAttachments is the widest MRT set any pass uses (the deferred
// G-buffer).
const maxColorAttachments = 5

// VertexAttribute describes one fixed-function vertex input.
type VertexAttribute struct {
	Location uint32
	Format   vk.Format
	Offset   uint32
}

// VertexLayout describes a draw's vertex format for pipelines that use
// traditional vertex attributes. Vertex-pulling pipelines ignore it.
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

func hashCombine(h, v uint64) uint64 {
	return h ^ (v + 0x9e3779b9 + (h << 6) + (h >> 2))
}

// Hash folds the layout into a single value for pipeline keying.
func (l VertexLayout) Hash() uint64 {
	h := uint64(l.Stride)
	for _, a := range l.Attributes {
		h = hashCombine(h, uint64(a.Location))
		h = hashCombine(h, uint64(a.Format))
		h = hashCombine(h, uint64(a.Offset))
	}
	return h
}

// PipelineKey identifies one compiled pipeline variant. Comparable, so
// it keys the cache map directly. LayoutHash is zeroed for vertex
// pulling shaders, whose pipelines carry no vertex input state.
type PipelineKey struct {
	ShaderType gfx.ShaderType

	ColorFormats         [maxColorAttachments]vk.Format
	ColorAttachmentCount uint32
	DepthFormat          vk.Format
	SampleCount          vk.SampleCountFlagBits

	BlendMode      gfx.AlphaBlendMode
	DepthMode      gfx.ZbufferMode
	Primitive      gfx.PrimitiveType
	ColorWriteMask vk.ColorComponentFlags

	LayoutHash uint64
}

// DefaultColorWriteMask writes all four channels.
const DefaultColorWriteMask = vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit)

// PipelineManager caches compiled graphics pipelines by key. All
// pipelines target dynamic rendering; viewport and scissor are dynamic
// state, so resolution changes alone never recompile anything. The
// driver-level pipeline cache is persisted across runs.
type PipelineManager struct {
	device  vk.Device
	layouts *DescriptorLayouts
	shaders *ShaderManager

	cache     vk.PipelineCache
	cachePath string

	pipelines map[PipelineKey]vk.Pipeline

	releases     DeferredReleaseQueue
	submitSerial func() uint64
}

// NewPipelineManager creates the manager and seeds the driver pipeline
// cache from disk when a previous run left one behind.
func NewPipelineManager(dev vk.Device, layouts *DescriptorLayouts, shaders *ShaderManager, cachePath string, submitSerial func() uint64) (*PipelineManager, error) {
	pm := &PipelineManager{
		device:       dev,
		layouts:      layouts,
		shaders:      shaders,
		cachePath:    cachePath,
		pipelines:    make(map[PipelineKey]vk.Pipeline),
		submitSerial: submitSerial,
	}

	createInfo := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	if cachePath != "" {
		if blob, err := os.ReadFile(cachePath); err == nil && len(blob) > 0 {
			createInfo.InitialDataSize = uint64(len(blob))
			createInfo.PInitialData = unsafe.Pointer(&blob[0])
			log.WithField("bytes", len(blob)).Debug("seeding pipeline cache from disk")
		}
	}
	if err := vk.Error(vk.CreatePipelineCache(dev, &createInfo, nil, &pm.cache)); err != nil {
		return nil, errors.New("vk.CreatePipelineCache(): " + err.Error())
	}
	return pm, nil
}

// GetPipeline returns the pipeline for key, compiling it on first use.
// Pipelines are never invalidated within a frame.
func (pm *PipelineManager) GetPipeline(key PipelineKey, layout VertexLayout) (vk.Pipeline, error) {
	if UsesVertexPulling(key.ShaderType) {
		key.LayoutHash = 0
	} else {
		key.LayoutHash = layout.Hash()
	}
	if pipeline, ok := pm.pipelines[key]; ok {
		return pipeline, nil
	}
	pipeline, err := pm.createPipeline(key, layout)
	if err != nil {
		return nil, err
	}
	pm.pipelines[key] = pipeline
	log.WithFields(log.Fields{
		"shader":    key.ShaderType.String(),
		"pipelines": len(pm.pipelines),
	}).Debug("compiled graphics pipeline")
	return pipeline, nil
}

func primitiveTopology(p gfx.PrimitiveType) vk.PrimitiveTopology {
	switch p {
	case gfx.PrimitiveTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case gfx.PrimitiveTriangleFan:
		return vk.PrimitiveTopologyTriangleFan
	case gfx.PrimitiveLines:
		return vk.PrimitiveTopologyLineList
	case gfx.PrimitiveLineStrip:
		return vk.PrimitiveTopologyLineStrip
	case gfx.PrimitivePoints:
		return vk.PrimitiveTopologyPointList
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func blendAttachment(mode gfx.AlphaBlendMode, writeMask vk.ColorComponentFlags) vk.PipelineColorBlendAttachmentState {
	state := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: writeMask,
		BlendEnable:    vk.True,
		ColorBlendOp:   vk.BlendOpAdd,
		AlphaBlendOp:   vk.BlendOpAdd,
	}
	switch mode {
	case gfx.BlendAlpha:
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	case gfx.BlendAdditive:
		state.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		state.DstColorBlendFactor = vk.BlendFactorOne
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOne
	case gfx.BlendPremultiplied:
		state.SrcColorBlendFactor = vk.BlendFactorOne
		state.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		state.SrcAlphaBlendFactor = vk.BlendFactorOne
		state.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	default:
		state.BlendEnable = vk.False
	}
	return state
}

func depthStencilState(mode gfx.ZbufferMode) vk.PipelineDepthStencilStateCreateInfo {
	state := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vk.CompareOpLessOrEqual,
	}
	switch mode {
	case gfx.ZbufferRead:
		state.DepthTestEnable = vk.True
	case gfx.ZbufferWrite:
		state.DepthTestEnable = vk.True
		state.DepthWriteEnable = vk.True
		state.DepthCompareOp = vk.CompareOpAlways
	case gfx.ZbufferFull:
		state.DepthTestEnable = vk.True
		state.DepthWriteEnable = vk.True
	}
	return state
}

func (pm *PipelineManager) createPipeline(key PipelineKey, layout VertexLayout) (vk.Pipeline, error) {
	modules, err := pm.shaders.GetModules(key.ShaderType)
	if err != nil {
		return nil, err
	}
	spec := GetShaderLayoutSpec(key.ShaderType)

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
	if spec.VertexInput == VertexAttributes && len(layout.Attributes) > 0 {
		bindings := []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    layout.Stride,
			InputRate: vk.VertexInputRateVertex,
		}}
		attributes := make([]vk.VertexInputAttributeDescription, 0, len(layout.Attributes))
		for _, a := range layout.Attributes {
			attributes = append(attributes, vk.VertexInputAttributeDescription{
				Binding:  0,
				Location: a.Location,
				Format:   a.Format,
				Offset:   a.Offset,
			})
		}
		vertexInput.VertexBindingDescriptionCount = uint32(len(bindings))
		vertexInput.PVertexBindingDescriptions = bindings
		vertexInput.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInput.PVertexAttributeDescriptions = attributes
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: primitiveTopology(key.Primitive),
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
		RasterizationSamples: key.SampleCount,
	}
	depthStencil := depthStencilState(key.DepthMode)

	attachments := make([]vk.PipelineColorBlendAttachmentState, key.ColorAttachmentCount)
	for i := range attachments {
		attachments[i] = blendAttachment(key.BlendMode, key.ColorWriteMask)
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
		ColorAttachmentCount:    key.ColorAttachmentCount,
		PColorAttachmentFormats: key.ColorFormats[:key.ColorAttachmentCount],
		DepthAttachmentFormat:   key.DepthFormat,
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
		Layout:              pm.layouts.PipelineLayout(spec.Layout),
		RenderPass:          nil,
		PNext:               unsafe.Pointer(cRenderingInfo),
	}}

	pipelines := make([]vk.Pipeline, 1)
	if err := vk.Error(vk.CreateGraphicsPipelines(pm.device, pm.cache, 1, createInfos, nil, pipelines)); err != nil {
		return nil, fmt.Errorf("vk.CreateGraphicsPipelines(%s): %s", key.ShaderType.String(), err.Error())
	}
	return pipelines[0], nil
}

// DrainAndRetire empties the cache, retiring every pipeline through the
// deferred queue. Called on swapchain recreate or surface format change.
func (pm *PipelineManager) DrainAndRetire() {
	device := pm.device
	serial := pm.submitSerial()
	for key, pipeline := range pm.pipelines {
		p := pipeline
		pm.releases.Enqueue(serial, func() {
			vk.DestroyPipeline(device, p, nil)
		})
		delete(pm.pipelines, key)
	}
}

// Collect drives the deferred release queue.
func (pm *PipelineManager) Collect(completedSerial uint64) {
	pm.releases.Collect(completedSerial)
}

// SaveCache writes the driver pipeline cache blob to disk.
func (pm *PipelineManager) SaveCache() {
	if pm.cachePath == "" {
		return
	}
	var size uint64
	if err := vk.Error(vk.GetPipelineCacheData(pm.device, pm.cache, &size, nil)); err != nil || size == 0 {
		return
	}
	blob := make([]byte, size)
	if err := vk.Error(vk.GetPipelineCacheData(pm.device, pm.cache, &size, unsafe.Pointer(&blob[0]))); err != nil {
		return
	}
	if err := os.WriteFile(pm.cachePath, blob[:size], 0o644); err != nil {
		log.WithError(err).Warn("could not persist pipeline cache")
	}
}

// Release destroys every pipeline and the driver cache, saving the
// cache blob first. Device must be idle.
func (pm *PipelineManager) Release() {
	pm.SaveCache()
	pm.releases.Clear()
	for key, pipeline := range pm.pipelines {
		vk.DestroyPipeline(pm.device, pipeline, nil)
		delete(pm.pipelines, key)
	}
	if pm.cache != nil {
		vk.DestroyPipelineCache(pm.device, pm.cache, nil)
		pm.cache = nil
	}
}
