package vkr

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/Eiton/vulkan"

	"github.com/danielchristiancazares/freespace2/core"
	"github.com/danielchristiancazares/freespace2/gfx"
)

// PipelineLayoutKind selects one of the three fixed pipeline layouts.
type PipelineLayoutKind int

const (
	// LayoutStandard: set 0 pushed per draw, set 1 holds the G-buffer.
	LayoutStandard PipelineLayoutKind = iota
	// LayoutModel: bindless set plus 64-byte push constants.
	LayoutModel
	// LayoutDeferred: per-light push descriptors, set 1 holds the G-buffer.
	LayoutDeferred
)

// VertexInputMode says where a pipeline's vertices come from.
type VertexInputMode int

const (
	// VertexAttributes: traditional fixed-function vertex input.
	VertexAttributes VertexInputMode = iota
	// VertexPulling: no vertex input state; shaders fetch from the heap.
	VertexPulling
)

// Standard layout, set 0 (push descriptors).
const (
	bindingStandardMatrixUBO  = 0
	bindingStandardGenericUBO = 1
	bindingStandardBaseMap    = 2
	bindingStandardSecondMap  = 3
	bindingStandardThirdMap   = 4
	bindingStandardFourthMap  = 5
)

// Model layout, set 0 (bindless).
const (
	bindingModelVertexHeap = 0
	bindingModelTextures   = 1
	bindingModelDataUBO    = 2
)

// Deferred layout, set 0 (push descriptors).
const (
	bindingDeferredMatrixUBO = 0
	bindingDeferredLightUBO  = 1
)

// gBufferTextureCount is the size of the shared set-1 layout: the four
// G-buffer attachments every lighting and composite shader samples.
const gBufferTextureCount = 4

// modelPushConstantSize is the byte size every model pipeline declares.
const modelPushConstantSize = 64

// ShaderLayoutSpec is the layout contract for one shader type.
type ShaderLayoutSpec struct {
	Type        gfx.ShaderType
	Layout      PipelineLayoutKind
	VertexInput VertexInputMode
}

// shaderLayoutSpecs is the full contract table, indexed by shader type.
// The model shader is the only vertex-pulling user; deferred lighting is
// the only user of the deferred layout; everything else is standard.
var shaderLayoutSpecs = func() [gfx.NumShaderTypes]ShaderLayoutSpec {
	var specs [gfx.NumShaderTypes]ShaderLayoutSpec
	for t := gfx.ShaderType(0); t < gfx.NumShaderTypes; t++ {
		specs[t] = ShaderLayoutSpec{Type: t, Layout: LayoutStandard, VertexInput: VertexAttributes}
	}
	specs[gfx.ShaderModel] = ShaderLayoutSpec{Type: gfx.ShaderModel, Layout: LayoutModel, VertexInput: VertexPulling}
	specs[gfx.ShaderDeferredLighting] = ShaderLayoutSpec{Type: gfx.ShaderDeferredLighting, Layout: LayoutDeferred, VertexInput: VertexAttributes}
	return specs
}()

// GetShaderLayoutSpec returns the layout contract for a shader type.
// Unknown types are a programming error.
func GetShaderLayoutSpec(t gfx.ShaderType) ShaderLayoutSpec {
	if t < 0 || t >= gfx.NumShaderTypes {
		panic(fmt.Sprintf("no layout contract for shader type %d", int(t)))
	}
	return shaderLayoutSpecs[t]
}

// UsesVertexPulling reports whether the shader fetches vertices itself.
func UsesVertexPulling(t gfx.ShaderType) bool {
	return GetShaderLayoutSpec(t).VertexInput == VertexPulling
}

// DescriptorLayouts owns the three pipeline layouts, their set layouts,
// and the descriptor pool the per-frame sets allocate from. Layouts are
// immutable for the renderer's lifetime.
type DescriptorLayouts struct {
	device vk.Device

	standardPushLayout vk.DescriptorSetLayout
	gBufferLayout      vk.DescriptorSetLayout
	modelSetLayout     vk.DescriptorSetLayout
	deferredPushLayout vk.DescriptorSetLayout

	standardPipeline vk.PipelineLayout
	modelPipeline    vk.PipelineLayout
	deferredPipeline vk.PipelineLayout

	pool vk.DescriptorPool
}

// NewDescriptorLayouts validates device limits and builds every layout.
func NewDescriptorLayouts(dev vk.Device, limits core.DeviceLimits) (*DescriptorLayouts, error) {
	if err := core.CheckDeviceLimits(limits); err != nil {
		return nil, errors.New("vkr.NewDescriptorLayouts: " + err.Error())
	}
	if limits.MaxDescriptorSetSampledImages < MaxBindlessTextures {
		return nil, fmt.Errorf("maxDescriptorSetSampledImages %d cannot hold %d bindless slots",
			limits.MaxDescriptorSetSampledImages, MaxBindlessTextures)
	}

	l := &DescriptorLayouts{device: dev}
	var err error
	if l.gBufferLayout, err = createGBufferLayout(dev); err != nil {
		return nil, err
	}
	if l.standardPushLayout, err = createStandardPushLayout(dev); err != nil {
		l.Release()
		return nil, err
	}
	if l.modelSetLayout, err = createModelSetLayout(dev); err != nil {
		l.Release()
		return nil, err
	}
	if l.deferredPushLayout, err = createDeferredPushLayout(dev); err != nil {
		l.Release()
		return nil, err
	}

	if l.standardPipeline, err = createPipelineLayout(dev, []vk.DescriptorSetLayout{l.standardPushLayout, l.gBufferLayout}, nil); err != nil {
		l.Release()
		return nil, err
	}
	modelPush := []vk.PushConstantRange{{
		StageFlags: vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
		Size:       modelPushConstantSize,
	}}
	if l.modelPipeline, err = createPipelineLayout(dev, []vk.DescriptorSetLayout{l.modelSetLayout}, modelPush); err != nil {
		l.Release()
		return nil, err
	}
	if l.deferredPipeline, err = createPipelineLayout(dev, []vk.DescriptorSetLayout{l.deferredPushLayout, l.gBufferLayout}, nil); err != nil {
		l.Release()
		return nil, err
	}

	if err = l.createPool(); err != nil {
		l.Release()
		return nil, err
	}
	return l, nil
}

func createGBufferLayout(dev vk.Device) (vk.DescriptorSetLayout, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, gBufferTextureCount)
	for i := range bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		}
	}
	return createSetLayout(dev, bindings, 0, nil)
}

func createStandardPushLayout(dev vk.Device) (vk.DescriptorSetLayout, error) {
	uboStages := vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	bindings := []vk.DescriptorSetLayoutBinding{
		{Binding: bindingStandardMatrixUBO, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1, StageFlags: uboStages},
		{Binding: bindingStandardGenericUBO, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1, StageFlags: uboStages},
	}
	for b := uint32(bindingStandardBaseMap); b <= bindingStandardFourthMap; b++ {
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         b,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		})
	}
	return createSetLayout(dev, bindings, vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreatePushDescriptorBit), nil)
}

func createModelSetLayout(dev vk.Device) (vk.DescriptorSetLayout, error) {
	bindings := []vk.DescriptorSetLayoutBinding{
		{
			Binding:         bindingModelVertexHeap,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
		},
		{
			Binding:         bindingModelTextures,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: MaxBindlessTextures,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageFragmentBit),
		},
		{
			Binding:         bindingModelDataUBO,
			DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit),
		},
	}
	// Only the texture array may have unwritten slots.
	flags := []vk.DescriptorBindingFlags{
		0,
		vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit),
		0,
	}
	return createSetLayout(dev, bindings, 0, flags)
}

func createDeferredPushLayout(dev vk.Device) (vk.DescriptorSetLayout, error) {
	uboStages := vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	bindings := []vk.DescriptorSetLayoutBinding{
		{Binding: bindingDeferredMatrixUBO, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1, StageFlags: uboStages},
		{Binding: bindingDeferredLightUBO, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1, StageFlags: uboStages},
	}
	return createSetLayout(dev, bindings, vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreatePushDescriptorBit), nil)
}

func createSetLayout(dev vk.Device, bindings []vk.DescriptorSetLayoutBinding, flags vk.DescriptorSetLayoutCreateFlags, bindingFlags []vk.DescriptorBindingFlags) (vk.DescriptorSetLayout, error) {
	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		Flags:        flags,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if bindingFlags != nil {
		flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
			SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
			BindingCount:  uint32(len(bindingFlags)),
			PBindingFlags: bindingFlags,
		}
		createInfo.PNext = unsafe.Pointer(&flagsInfo)
	}
	var layout vk.DescriptorSetLayout
	if err := vk.Error(vk.CreateDescriptorSetLayout(dev, &createInfo, nil, &layout)); err != nil {
		return nil, errors.New("vk.CreateDescriptorSetLayout(): " + err.Error())
	}
	return layout, nil
}

func createPipelineLayout(dev vk.Device, setLayouts []vk.DescriptorSetLayout, pushRanges []vk.PushConstantRange) (vk.PipelineLayout, error) {
	createInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(pushRanges)),
		PPushConstantRanges:    pushRanges,
	}
	var layout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(dev, &createInfo, nil, &layout)); err != nil {
		return nil, errors.New("vk.CreatePipelineLayout(): " + err.Error())
	}
	return layout, nil
}

// createPool sizes the shared pool for every per-frame set: one G-buffer
// set and one model bindless set per frame in flight.
func (l *DescriptorLayouts) createPool() error {
	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: framesInFlight * (gBufferTextureCount + MaxBindlessTextures)},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: framesInFlight},
		{Type: vk.DescriptorTypeUniformBufferDynamic, DescriptorCount: framesInFlight},
	}
	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       2 * framesInFlight,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if err := vk.Error(vk.CreateDescriptorPool(l.device, &createInfo, nil, &l.pool)); err != nil {
		return errors.New("vk.CreateDescriptorPool(): " + err.Error())
	}
	return nil
}

// PipelineLayout returns the pipeline layout for a layout kind.
func (l *DescriptorLayouts) PipelineLayout(kind PipelineLayoutKind) vk.PipelineLayout {
	switch kind {
	case LayoutStandard:
		return l.standardPipeline
	case LayoutModel:
		return l.modelPipeline
	case LayoutDeferred:
		return l.deferredPipeline
	}
	panic(fmt.Sprintf("unknown pipeline layout kind %d", int(kind)))
}

// GBufferSetLayout returns the shared set-1 layout.
func (l *DescriptorLayouts) GBufferSetLayout() vk.DescriptorSetLayout { return l.gBufferLayout }

// ModelSetLayout returns the bindless set-0 layout.
func (l *DescriptorLayouts) ModelSetLayout() vk.DescriptorSetLayout { return l.modelSetLayout }

// AllocateGBufferSet allocates one G-buffer set from the shared pool.
func (l *DescriptorLayouts) AllocateGBufferSet() (vk.DescriptorSet, error) {
	return l.allocateSet(l.gBufferLayout)
}

// AllocateModelSet allocates one bindless model set from the shared pool.
func (l *DescriptorLayouts) AllocateModelSet() (vk.DescriptorSet, error) {
	return l.allocateSet(l.modelSetLayout)
}

func (l *DescriptorLayouts) allocateSet(layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     l.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}
	sets := make([]vk.DescriptorSet, 1)
	if err := vk.Error(vk.AllocateDescriptorSets(l.device, &allocInfo, &sets[0])); err != nil {
		return nil, errors.New("vk.AllocateDescriptorSets(): " + err.Error())
	}
	return sets[0], nil
}

// Release destroys all layouts and the pool. Device must be idle.
func (l *DescriptorLayouts) Release() {
	if l.pool != nil {
		vk.DestroyDescriptorPool(l.device, l.pool, nil)
		l.pool = nil
	}
	for _, layout := range []vk.PipelineLayout{l.standardPipeline, l.modelPipeline, l.deferredPipeline} {
		if layout != nil {
			vk.DestroyPipelineLayout(l.device, layout, nil)
		}
	}
	l.standardPipeline, l.modelPipeline, l.deferredPipeline = nil, nil, nil
	for _, layout := range []vk.DescriptorSetLayout{l.standardPushLayout, l.gBufferLayout, l.modelSetLayout, l.deferredPushLayout} {
		if layout != nil {
			vk.DestroyDescriptorSetLayout(l.device, layout, nil)
		}
	}
	l.standardPushLayout, l.gBufferLayout, l.modelSetLayout, l.deferredPushLayout = nil, nil, nil, nil
}
