// Package gfx defines the contracts shared between the engine and any
// rendering backend: buffer handles, shader types, the bitmap-manager
// boundary and the render-command surface.
package gfx

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// BufferHandle is a dense index into the backend's buffer table.
type BufferHandle int

// InvalidBufferHandle marks a handle that does not refer to any buffer.
const InvalidBufferHandle BufferHandle = -1

// IsValid reports whether the handle refers to an allocated buffer slot.
func (h BufferHandle) IsValid() bool {
	return h >= 0
}

// BufferType identifies what a buffer stores.
type BufferType int

// Buffer types supported by every backend.
const (
	VertexBuffer BufferType = iota
	IndexBuffer
	UniformBuffer
)

// BufferUsage hints how often and from where a buffer will be written.
type BufferUsage int

// Usage hints. Static buffers are written once and read many times,
// Dynamic and Streaming buffers are rewritten by the CPU every few frames,
// PersistentMapping buffers stay host-mapped for their whole lifetime.
const (
	StaticUsage BufferUsage = iota
	DynamicUsage
	StreamingUsage
	PersistentMappingUsage
)

// ShaderType enumerates every shader program the engine can request.
type ShaderType int

const (
	ShaderModel ShaderType = iota
	ShaderEffectParticle
	ShaderEffectDistortion
	ShaderPostProcessMain
	ShaderPostProcessBlur
	ShaderPostProcessBloomComp
	ShaderPostProcessBrightpass
	ShaderPostProcessFXAA
	ShaderPostProcessFXAAPrepass
	ShaderPostProcessLightshafts
	ShaderPostProcessTonemapping
	ShaderPostProcessSMAAEdge
	ShaderPostProcessSMAABlendingWeight
	ShaderPostProcessSMAANeighborhoodBlending
	ShaderDeferredLighting
	ShaderDeferredClear
	ShaderVideoProcess
	ShaderPassthroughRender
	ShaderBatchedBitmap
	ShaderDefaultMaterial
	ShaderInterface
	ShaderNanoVG
	ShaderDecal
	ShaderCopy
	ShaderFlatColor

	NumShaderTypes
)

var shaderTypeNames = [NumShaderTypes]string{
	"model", "effect_particle", "effect_distortion",
	"post_process_main", "post_process_blur", "post_process_bloom_comp",
	"post_process_brightpass", "post_process_fxaa", "post_process_fxaa_prepass",
	"post_process_lightshafts", "post_process_tonemapping",
	"post_process_smaa_edge", "post_process_smaa_blending_weight",
	"post_process_smaa_neighborhood_blending",
	"deferred_lighting", "deferred_clear", "video_process",
	"passthrough_render", "batched_bitmap", "default_material",
	"interface", "nanovg", "decal", "copy", "flat_color",
}

// String returns the shader's on-disk base name, e.g. "deferred_lighting"
// loads deferred_lighting.vert.spv and deferred_lighting.frag.spv.
func (t ShaderType) String() string {
	if t < 0 || t >= NumShaderTypes {
		return "unknown"
	}
	return shaderTypeNames[t]
}

// UniformBlockType identifies a uniform block layout known to the engine.
type UniformBlockType int

const (
	UniformMatrices UniformBlockType = iota
	UniformModelData
	UniformLights
	UniformNanoVGData
	UniformDecalInfo
	UniformMovieData
	UniformGenericData

	NumUniformBlockTypes
)

// ZbufferMode selects how draws interact with the depth buffer.
type ZbufferMode int

const (
	ZbufferNone ZbufferMode = iota
	ZbufferRead
	ZbufferWrite
	ZbufferFull
)

// AlphaBlendMode mirrors the engine-side blend enumeration.
type AlphaBlendMode int

const (
	BlendNone AlphaBlendMode = iota
	BlendAlpha
	BlendAdditive
	BlendPremultiplied
)

// PrimitiveType selects the input assembly topology for a draw.
type PrimitiveType int

const (
	PrimitiveTriangles PrimitiveType = iota
	PrimitiveTriangleStrip
	PrimitiveTriangleFan
	PrimitiveLines
	PrimitiveLineStrip
	PrimitivePoints
)
