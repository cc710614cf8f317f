package vkr

import (
	"errors"
	"fmt"
	"unsafe"

	vk "github.com/Eiton/vulkan"

	"github.com/danielchristiancazares/freespace2/gfx"
)

// ModelOffsetAbsent marks a vertex attribute the layout does not carry.
// Must match OFFSET_ABSENT in model.vert.
const ModelOffsetAbsent = uint32(0xFFFFFFFF)

// Attribute presence bits mirrored by the vertex-pulling shader.
const (
	ModelAttribPosition = uint32(1) << iota
	ModelAttribNormal
	ModelAttribTexCoord
	ModelAttribTangent
	ModelAttribBoneIndices
	ModelAttribBoneWeights
	ModelAttribModelID
)

// Shader variant flag bits carried in ModelPushConstants.Flags.
const (
	ModelFlagDeferred = uint32(1) << iota
	ModelFlagGlowMap
	ModelFlagNormalMap
	ModelFlagSpecMap
	ModelFlagAnimated
)

// ModelPushConstants is the per-draw block for vertex pulling and
// bindless texturing. The GLSL declaration in model.vert and model.frag
// must match field for field.
type ModelPushConstants struct {
	VertexOffset uint32
	Stride       uint32
	AttribMask   uint32

	PosOffset         uint32
	NormalOffset      uint32
	TexCoordOffset    uint32
	TangentOffset     uint32
	BoneIndicesOffset uint32
	BoneWeightsOffset uint32

	BaseMapIndex   uint32
	GlowMapIndex   uint32
	NormalMapIndex uint32
	SpecMapIndex   uint32

	MatrixIndex uint32
	Flags       uint32

	_ uint32
}

// ModelVertexLayout gives the byte offset of each attribute within a
// heap vertex, ModelOffsetAbsent where the model does not carry one.
type ModelVertexLayout struct {
	Stride            uint32
	PosOffset         uint32
	NormalOffset      uint32
	TexCoordOffset    uint32
	TangentOffset     uint32
	BoneIndicesOffset uint32
	BoneWeightsOffset uint32
	HasModelID        bool
}

// NewModelVertexLayout returns a layout with every attribute absent.
func NewModelVertexLayout(stride uint32) ModelVertexLayout {
	return ModelVertexLayout{
		Stride:            stride,
		PosOffset:         ModelOffsetAbsent,
		NormalOffset:      ModelOffsetAbsent,
		TexCoordOffset:    ModelOffsetAbsent,
		TangentOffset:     ModelOffsetAbsent,
		BoneIndicesOffset: ModelOffsetAbsent,
		BoneWeightsOffset: ModelOffsetAbsent,
	}
}

func (l *ModelVertexLayout) attribMask() uint32 {
	var mask uint32
	present := []struct {
		offset uint32
		bit    uint32
	}{
		{l.PosOffset, ModelAttribPosition},
		{l.NormalOffset, ModelAttribNormal},
		{l.TexCoordOffset, ModelAttribTexCoord},
		{l.TangentOffset, ModelAttribTangent},
		{l.BoneIndicesOffset, ModelAttribBoneIndices},
		{l.BoneWeightsOffset, ModelAttribBoneWeights},
	}
	for _, p := range present {
		if p.offset != ModelOffsetAbsent {
			mask |= p.bit
		}
	}
	if l.HasModelID {
		mask |= ModelAttribModelID
	}
	return mask
}

// normalizeModelFlags keeps the deferred variant bit consistent with
// the active attachment contract: the model fragment shader writes
// either one forward output or the full G-buffer, never a mix.
func normalizeModelFlags(flags, colorAttachmentCount uint32) uint32 {
	if colorAttachmentCount == gBufferColorCount {
		return flags | ModelFlagDeferred
	}
	return flags &^ ModelFlagDeferred
}

// AttachmentFormats describes the target a model pipeline renders into;
// the renderer fills it from the active rendering session selection.
type AttachmentFormats struct {
	Color      [maxColorAttachments]vk.Format
	ColorCount uint32
	Depth      vk.Format
	Samples    vk.SampleCountFlagBits
}

// ModelDrawCall is everything one model subobject draw needs. Buffer
// handles refer to BufferManager buffers; texture handles resolve to
// bindless slots at record time.
type ModelDrawCall struct {
	VertexSource gfx.BufferHandle
	IndexSource  gfx.BufferHandle
	VertexOffset uint32
	IndexOffset  vk.DeviceSize
	IndexCount   uint32
	Layout       ModelVertexLayout

	BaseMap   gfx.TextureHandle
	GlowMap   gfx.TextureHandle
	NormalMap gfx.TextureHandle
	SpecMap   gfx.TextureHandle

	Flags     uint32
	BlendMode gfx.AlphaBlendMode
	DepthMode gfx.ZbufferMode
}

// ModelRenderer records bindless vertex-pulling model draws. It owns
// one descriptor set per frame in flight, holding the vertex heap, the
// bindless texture array and the dynamic model-data UBO.
type ModelRenderer struct {
	device    vk.Device
	layouts   *DescriptorLayouts
	pipelines *PipelineManager
	textures  *TextureManager
	buffers   *BufferManager

	sets      [framesInFlight]vk.DescriptorSet
	boundHeap [framesInFlight]vk.Buffer
	boundUBO  [framesInFlight]vk.Buffer

	frameSlot     int
	frameIndex    uint64
	dynamicOffset uint32
	uniformBound  bool
}

func NewModelRenderer(dev vk.Device, layouts *DescriptorLayouts, pipelines *PipelineManager, textures *TextureManager, buffers *BufferManager) *ModelRenderer {
	return &ModelRenderer{
		device:    dev,
		layouts:   layouts,
		pipelines: pipelines,
		textures:  textures,
		buffers:   buffers,
	}
}

// BeginFrame selects the frame's descriptor set, creating it on first
// use, and flushes any bindless slot rewrites into it.
func (mr *ModelRenderer) BeginFrame(frameSlot int, frameIndex uint64) error {
	if frameSlot < 0 || frameSlot >= framesInFlight {
		return fmt.Errorf("frame slot %d out of range", frameSlot)
	}
	mr.frameSlot = frameSlot
	mr.frameIndex = frameIndex
	mr.uniformBound = false

	if mr.sets[frameSlot] == nil {
		set, err := mr.layouts.AllocateModelSet()
		if err != nil {
			return err
		}
		mr.sets[frameSlot] = set
		mr.boundHeap[frameSlot] = nil
		mr.boundUBO[frameSlot] = nil
		mr.textures.ResetBindless()
	}
	if writes := mr.textures.BindlessWrites(mr.sets[frameSlot]); len(writes) > 0 {
		vk.UpdateDescriptorSets(mr.device, uint32(len(writes)), writes, 0, nil)
	}
	return nil
}

// BindModelUniform points the frame's dynamic UBO binding at the
// committed allocation. Every draw until the next call reads this
// block through its dynamic offset.
func (mr *ModelRenderer) BindModelUniform(alloc *UniformAlloc) {
	slot := mr.frameSlot
	if mr.boundUBO[slot] != alloc.Buffer {
		writes := []vk.WriteDescriptorSet{{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          mr.sets[slot],
			DstBinding:      bindingModelDataUBO,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: alloc.Buffer,
				Offset: 0,
				Range:  vk.DeviceSize(len(alloc.Shadow)),
			}},
		}}
		vk.UpdateDescriptorSets(mr.device, uint32(len(writes)), writes, 0, nil)
		mr.boundUBO[slot] = alloc.Buffer
	}
	mr.dynamicOffset = uint32(alloc.Offset)
	mr.uniformBound = true
}

func (mr *ModelRenderer) bindVertexHeap(heap vk.Buffer) {
	slot := mr.frameSlot
	if mr.boundHeap[slot] == heap {
		return
	}
	writes := []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          mr.sets[slot],
		DstBinding:      bindingModelVertexHeap,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeStorageBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: heap,
			Offset: 0,
			Range:  vk.DeviceSize(vk.WholeSize),
		}},
	}}
	vk.UpdateDescriptorSets(mr.device, uint32(len(writes)), writes, 0, nil)
	mr.boundHeap[slot] = heap
}

func (mr *ModelRenderer) buildPushConstants(draw *ModelDrawCall, colorCount uint32) ModelPushConstants {
	return ModelPushConstants{
		VertexOffset:      draw.VertexOffset,
		Stride:            draw.Layout.Stride,
		AttribMask:        draw.Layout.attribMask(),
		PosOffset:         draw.Layout.PosOffset,
		NormalOffset:      draw.Layout.NormalOffset,
		TexCoordOffset:    draw.Layout.TexCoordOffset,
		TangentOffset:     draw.Layout.TangentOffset,
		BoneIndicesOffset: draw.Layout.BoneIndicesOffset,
		BoneWeightsOffset: draw.Layout.BoneWeightsOffset,
		BaseMapIndex:      mr.textures.GetBindlessSlotIndex(draw.BaseMap, mr.frameIndex),
		GlowMapIndex:      mr.textures.GetBindlessSlotIndex(draw.GlowMap, mr.frameIndex),
		NormalMapIndex:    mr.textures.GetBindlessSlotIndex(draw.NormalMap, mr.frameIndex),
		SpecMapIndex:      mr.textures.GetBindlessSlotIndex(draw.SpecMap, mr.frameIndex),
		Flags:             normalizeModelFlags(draw.Flags, colorCount),
	}
}

// Draw records one model subobject. The caller must be inside a
// rendering pass whose attachments match formats, with the model
// uniform block bound for this draw.
func (mr *ModelRenderer) Draw(cmd vk.CommandBuffer, formats AttachmentFormats, draw *ModelDrawCall) error {
	if !mr.uniformBound {
		return errors.New("model draw without a bound model-data uniform block")
	}
	heap := mr.buffers.GetBuffer(draw.VertexSource)
	if heap == nil {
		return fmt.Errorf("vertex source %d has no buffer", int(draw.VertexSource))
	}
	indexBuffer := mr.buffers.GetBuffer(draw.IndexSource)
	if indexBuffer == nil {
		return fmt.Errorf("index source %d has no buffer", int(draw.IndexSource))
	}
	mr.bindVertexHeap(heap)

	key := PipelineKey{
		ShaderType:           gfx.ShaderModel,
		ColorFormats:         formats.Color,
		ColorAttachmentCount: formats.ColorCount,
		DepthFormat:          formats.Depth,
		SampleCount:          formats.Samples,
		BlendMode:            draw.BlendMode,
		DepthMode:            draw.DepthMode,
		Primitive:            gfx.PrimitiveTriangles,
		ColorWriteMask:       DefaultColorWriteMask,
	}
	pipeline, err := mr.pipelines.GetPipeline(key, VertexLayout{})
	if err != nil {
		return err
	}
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, pipeline)

	layout := mr.layouts.PipelineLayout(LayoutModel)
	dynamicOffsets := []uint32{mr.dynamicOffset}
	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, layout, 0, 1,
		[]vk.DescriptorSet{mr.sets[mr.frameSlot]}, 1, dynamicOffsets)

	push := mr.buildPushConstants(draw, formats.ColorCount)
	stages := vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	vk.CmdPushConstants(cmd, layout, stages, 0, modelPushConstantSize, unsafe.Pointer(&push))

	// Model meshes index with 16-bit indices; the heap itself is
	// addressed through the push-constant offsets, not a vertex binding.
	vk.CmdBindIndexBuffer(cmd, indexBuffer, draw.IndexOffset, vk.IndexTypeUint16)
	vk.CmdDrawIndexed(cmd, draw.IndexCount, 1, 0, 0, 0)
	return nil
}

// InvalidateSets drops the per-frame sets so the next BeginFrame
// reallocates and rewrites them; called after descriptor pool resets.
func (mr *ModelRenderer) InvalidateSets() {
	for i := range mr.sets {
		mr.sets[i] = nil
		mr.boundHeap[i] = nil
		mr.boundUBO[i] = nil
	}
}
