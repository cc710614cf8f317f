package vkr

import (
	"errors"
	"unsafe"

	vk "github.com/Eiton/vulkan"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/danielchristiancazares/freespace2/gfx"
)

// maxLightshaftSamples bounds the ray-march loop; tables occasionally
// ship extreme values that would stall the GPU.
const maxLightshaftSamples = 128

// postUniforms matches post_process_main.frag's generic-data block
// under std140. Identity defaults make the shader a pass-through.
type postUniforms struct {
	Timer       float32
	NoiseAmount float32
	Saturation  float32
	Brightness  float32

	Contrast  float32
	FilmGrain float32
	TvStripes float32
	Cutoff    float32

	Tint   mgl32.Vec3
	Dither float32

	CustomVec3A  mgl32.Vec3
	CustomFloatA float32

	CustomVec3B  mgl32.Vec3
	CustomFloatB float32
}

// tonemapUniforms matches post_process_tonemapping.frag. The piecewise
// curve intermediates come from the active lighting profile.
type tonemapUniforms struct {
	Tonemapper int32
	ShB        float32
	ShLnA      float32
	ShOffsetX  float32

	ShOffsetY float32
	ToeB      float32
	ToeLnA    float32
	X0        float32

	X1       float32
	Y0       float32
	Exposure float32
	_        float32
}

// blurUniforms matches post_process_blur.frag.
type blurUniforms struct {
	TexelSize  mgl32.Vec2
	MipLevel   int32
	Horizontal uint32
}

// bloomUniforms matches post_process_bloom_comp.frag.
type bloomUniforms struct {
	Intensity float32
	Levels    int32
	_         [2]float32
}

// lightshaftUniforms matches post_process_lightshafts.frag.
type lightshaftUniforms struct {
	SunPos  mgl32.Vec2
	Density float32
	Falloff float32

	Weight           float32
	Intensity        float32
	CockpitIntensity float32
	SampleCount      int32
}

// TonemapSettings is the resolved tonemapper state for this frame.
type TonemapSettings struct {
	Tonemapper int32
	ShB        float32
	ShLnA      float32
	ShOffsetX  float32
	ShOffsetY  float32
	ToeB       float32
	ToeLnA     float32
	X0, X1, Y0 float32
	Exposure   float32
}

func clampLightshaftSamples(n int32) int32 {
	if n < 1 {
		return 1
	}
	if n > maxLightshaftSamples {
		return maxLightshaftSamples
	}
	return n
}

// buildPostUniforms folds the configured effects over identity
// defaults. The second result reports whether any effect contributed;
// when false the composite pass degrades to a plain copy.
func buildPostUniforms(effects []gfx.PostEffect, timerMS int64) (postUniforms, bool) {
	post := postUniforms{
		Timer:      float32(timerMS%100 + 1),
		Saturation: 1,
		Brightness: 1,
		Contrast:   1,
	}
	any := false
	for i := range effects {
		eff := &effects[i]
		if !eff.Enabled() {
			continue
		}
		any = true
		switch eff.Uniform {
		case gfx.PostEffectNoiseAmount:
			post.NoiseAmount = eff.Intensity
		case gfx.PostEffectSaturation:
			post.Saturation = eff.Intensity
		case gfx.PostEffectBrightness:
			post.Brightness = eff.Intensity
		case gfx.PostEffectContrast:
			post.Contrast = eff.Intensity
		case gfx.PostEffectFilmGrain:
			post.FilmGrain = eff.Intensity
		case gfx.PostEffectTvStripes:
			post.TvStripes = eff.Intensity
		case gfx.PostEffectCutoff:
			post.Cutoff = eff.Intensity
		case gfx.PostEffectDither:
			post.Dither = eff.Intensity
		case gfx.PostEffectTint:
			post.Tint = eff.RGB
		case gfx.PostEffectCustomVec3A:
			post.CustomVec3A = eff.RGB
		case gfx.PostEffectCustomFloatA:
			post.CustomFloatA = eff.Intensity
		case gfx.PostEffectCustomVec3B:
			post.CustomVec3B = eff.RGB
		case gfx.PostEffectCustomFloatB:
			post.CustomFloatB = eff.Intensity
		}
	}
	return post, any
}

// fullscreenVertexLayout: position-only clip-space triangle.
var fullscreenVertexLayout = VertexLayout{
	Stride: 12,
	Attributes: []VertexAttribute{
		{Location: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
	},
}

// PostOptions selects which stages run this frame.
type PostOptions struct {
	PostEnabled bool
	HDREnabled  bool

	// BloomIntensity <= 0 skips the bloom stage entirely.
	BloomIntensity float32

	AAMode gfx.AntiAliasMode

	// Lightshaft is nil when no glare light qualifies this frame.
	Lightshaft *gfx.LightshaftParams

	Effects []gfx.PostEffect
	TimerMS int64
	Tonemap TonemapSettings
}

// PostProcessor records the post-scene fullscreen chain: bloom,
// tonemapping, anti-aliasing, lightshafts, and the final composite to
// the swapchain.
type PostProcessor struct {
	session   *RenderingSession
	targets   *RenderTargets
	pipelines *PipelineManager
	layouts   *DescriptorLayouts
	samplers  *samplerCache
	meshes    *ProxyMeshes

	uniformAlign uint64
}

// NewPostProcessor wires the chain over shared renderer components.
func NewPostProcessor(session *RenderingSession, targets *RenderTargets, pipelines *PipelineManager, layouts *DescriptorLayouts, samplers *samplerCache, meshes *ProxyMeshes, uniformAlign uint64) *PostProcessor {
	if uniformAlign == 0 {
		uniformAlign = 256
	}
	return &PostProcessor{
		session:      session,
		targets:      targets,
		pipelines:    pipelines,
		layouts:      layouts,
		samplers:     samplers,
		meshes:       meshes,
		uniformAlign: uniformAlign,
	}
}

func (pp *PostProcessor) linearSampler() (vk.Sampler, error) {
	return pp.samplers.get(SamplerKey{
		Filter:      vk.FilterLinear,
		AddressMode: vk.SamplerAddressModeClampToEdge,
	})
}

func (pp *PostProcessor) nearestSampler() (vk.Sampler, error) {
	return pp.samplers.get(SamplerKey{
		Filter:      vk.FilterNearest,
		AddressMode: vk.SamplerAddressModeClampToEdge,
	})
}

func (pp *PostProcessor) sampled(view vk.ImageView) (vk.DescriptorImageInfo, error) {
	sampler, err := pp.linearSampler()
	if err != nil {
		return vk.DescriptorImageInfo{}, err
	}
	return vk.DescriptorImageInfo{
		Sampler:     sampler,
		ImageView:   view,
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
	}, nil
}

// screenPass describes one fullscreen draw in the chain.
type screenPass struct {
	shader      gfx.ShaderType
	blend       gfx.AlphaBlendMode
	colorFormat vk.Format
	extent      vk.Extent2D

	// uniform, when non-nil, is copied into the frame's uniform ring
	// and pushed at the generic-data binding.
	uniform     unsafe.Pointer
	uniformSize uintptr

	// textures are pushed starting at the base-map binding.
	textures []vk.DescriptorImageInfo
}

func (pp *PostProcessor) recordScreenPass(cmd vk.CommandBuffer, frame *FrameContext, pass screenPass) error {
	viewport := vk.Viewport{
		Y:        float32(pass.extent.Height),
		Width:    float32(pass.extent.Width),
		Height:   -float32(pass.extent.Height),
		MaxDepth: 1,
	}
	vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{{Extent: pass.extent}})

	key := PipelineKey{
		ShaderType:           pass.shader,
		ColorAttachmentCount: 1,
		SampleCount:          vk.SampleCount1Bit,
		BlendMode:            pass.blend,
		DepthMode:            gfx.ZbufferNone,
		Primitive:            gfx.PrimitiveTriangles,
		ColorWriteMask:       DefaultColorWriteMask,
	}
	key.ColorFormats[0] = pass.colorFormat
	pipeline, err := pp.pipelines.GetPipeline(key, fullscreenVertexLayout)
	if err != nil {
		return err
	}
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, pipeline)

	var writes []vk.WriteDescriptorSet
	if pass.uniform != nil {
		alloc, ok := frame.UniformRing().Allocate(uint64(pass.uniformSize), pp.uniformAlign)
		if !ok {
			return errors.New("uniform ring exhausted during post-processing")
		}
		copy(unsafe.Slice((*byte)(alloc.Ptr), pass.uniformSize), unsafe.Slice((*byte)(pass.uniform), pass.uniformSize))
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstBinding:      bindingStandardGenericUBO,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: frame.UniformRing().Buffer(),
				Offset: alloc.Offset,
				Range:  vk.DeviceSize(pass.uniformSize),
			}},
		})
	}
	for i := range pass.textures {
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstBinding:      uint32(bindingStandardBaseMap + i),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			PImageInfo:      []vk.DescriptorImageInfo{pass.textures[i]},
		})
	}
	if len(writes) > 0 {
		vk.CmdPushDescriptorSet(cmd, vk.PipelineBindPointGraphics, pp.layouts.PipelineLayout(LayoutStandard), 0, uint32(len(writes)), writes)
	}

	vk.CmdBindVertexBuffers(cmd, 0, 1, []vk.Buffer{pp.meshes.fullscreenVB}, []vk.DeviceSize{0})
	vk.CmdDraw(cmd, 3, 1, 0, 0)
	return nil
}

// Run records the whole chain. The scene HDR target must hold the
// finished scene; on return the swapchain target is selected and holds
// the composited LDR frame.
func (pp *PostProcessor) Run(cmd vk.CommandBuffer, frame *FrameContext, opts PostOptions) error {
	s := pp.session
	t := pp.targets

	s.SuspendRendering(cmd)
	s.TransitionSceneHDRToShaderRead(cmd)

	if opts.PostEnabled && opts.BloomIntensity > 0 {
		if err := pp.runBloom(cmd, frame, opts.BloomIntensity); err != nil {
			return err
		}
	}

	// Tonemap HDR -> LDR. With the HDR pipeline off, tonemapper 0 is a
	// pass-through.
	tm := tonemapUniforms{Exposure: 1}
	if opts.HDREnabled {
		tm = tonemapUniforms{
			Tonemapper: opts.Tonemap.Tonemapper,
			ShB:        opts.Tonemap.ShB,
			ShLnA:      opts.Tonemap.ShLnA,
			ShOffsetX:  opts.Tonemap.ShOffsetX,
			ShOffsetY:  opts.Tonemap.ShOffsetY,
			ToeB:       opts.Tonemap.ToeB,
			ToeLnA:     opts.Tonemap.ToeLnA,
			X0:         opts.Tonemap.X0,
			X1:         opts.Tonemap.X1,
			Y0:         opts.Tonemap.Y0,
			Exposure:   opts.Tonemap.Exposure,
		}
	}
	sceneInfo, err := pp.sampled(t.SceneHDR.View())
	if err != nil {
		return err
	}
	s.RequestTarget(cmd, TargetSelection{Kind: TargetPostLDR})
	if err := s.EnsureRendering(cmd); err != nil {
		return err
	}
	if err := pp.recordScreenPass(cmd, frame, screenPass{
		shader:      gfx.ShaderPostProcessTonemapping,
		blend:       gfx.BlendNone,
		colorFormat: t.PostLDR.Format(),
		extent:      t.Extent(),
		uniform:     unsafe.Pointer(&tm),
		uniformSize: unsafe.Sizeof(tm),
		textures:    []vk.DescriptorImageInfo{sceneInfo},
	}); err != nil {
		return err
	}
	s.SuspendRendering(cmd)
	t.PostLDR.TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)

	ldrView := t.PostLDR.View()
	if opts.PostEnabled {
		switch opts.AAMode {
		case gfx.AASMAA:
			if err := pp.runSmaa(cmd, frame); err != nil {
				return err
			}
			ldrView = t.SmaaOutput.View()
		case gfx.AAFXAA:
			if err := pp.runFxaa(cmd, frame); err != nil {
				return err
			}
		}
	}

	if opts.PostEnabled && opts.Lightshaft != nil {
		if err := pp.runLightshafts(cmd, frame, opts.Lightshaft, ldrView); err != nil {
			return err
		}
	}

	post, anyEffects := buildPostUniforms(opts.Effects, opts.TimerMS)

	ldrInfo, err := pp.sampled(ldrView)
	if err != nil {
		return err
	}

	s.RequestTarget(cmd, TargetSelection{Kind: TargetSwapchainNoDepth})
	if err := s.EnsureRendering(cmd); err != nil {
		return err
	}
	final := screenPass{
		shader:      gfx.ShaderCopy,
		blend:       gfx.BlendNone,
		colorFormat: pp.session.swapFormat,
		extent:      t.Extent(),
		textures:    []vk.DescriptorImageInfo{ldrInfo},
	}
	if opts.PostEnabled && anyEffects {
		final.shader = gfx.ShaderPostProcessMain
		final.uniform = unsafe.Pointer(&post)
		final.uniformSize = unsafe.Sizeof(post)
	}
	return pp.recordScreenPass(cmd, frame, final)
}

// runBloom: bright pass into chain 0 mip 0, downsample the chain, then
// ping-pong separable blurs across all mips between the two chains, and
// finally composite additively back into the HDR scene.
func (pp *PostProcessor) runBloom(cmd vk.CommandBuffer, frame *FrameContext, intensity float32) error {
	s := pp.session
	t := pp.targets

	sceneInfo, err := pp.sampled(t.SceneHDR.View())
	if err != nil {
		return err
	}

	s.RequestClear([4]float32{0, 0, 0, 1})
	s.RequestTarget(cmd, TargetSelection{Kind: TargetBloomMip, BloomChain: 0, BloomLevel: 0})
	if err := s.EnsureRendering(cmd); err != nil {
		return err
	}
	if err := pp.recordScreenPass(cmd, frame, screenPass{
		shader:      gfx.ShaderPostProcessBrightpass,
		blend:       gfx.BlendNone,
		colorFormat: t.Bloom[0].image.Format(),
		extent:      t.BloomMipExtent(0),
		textures:    []vk.DescriptorImageInfo{sceneInfo},
	}); err != nil {
		return err
	}
	s.SuspendRendering(cmd)

	pp.generateBloomMips(cmd, 0)

	for iteration := 0; iteration < 2; iteration++ {
		if err := pp.blurChain(cmd, frame, 0, 1, false); err != nil {
			return err
		}
		if err := pp.blurChain(cmd, frame, 1, 0, true); err != nil {
			return err
		}
	}

	// Composite chain 0 back into the HDR scene additively.
	t.Bloom[0].TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)
	bloomView := t.Bloom[0].MipView(0)
	bloomInfo, err := pp.sampled(bloomView)
	if err != nil {
		return err
	}
	comp := bloomUniforms{Intensity: intensity, Levels: bloomMipLevels}

	s.RequestTarget(cmd, TargetSelection{Kind: TargetSceneHDRNoDepth})
	if err := s.EnsureRendering(cmd); err != nil {
		return err
	}
	if err := pp.recordScreenPass(cmd, frame, screenPass{
		shader:      gfx.ShaderPostProcessBloomComp,
		blend:       gfx.BlendAdditive,
		colorFormat: t.SceneHDR.Format(),
		extent:      t.Extent(),
		uniform:     unsafe.Pointer(&comp),
		uniformSize: unsafe.Sizeof(comp),
		textures:    []vk.DescriptorImageInfo{bloomInfo},
	}); err != nil {
		return err
	}
	s.SuspendRendering(cmd)
	s.TransitionSceneHDRToShaderRead(cmd)
	return nil
}

// blurChain runs one blur direction across every mip, sampling src and
// rendering into dst.
func (pp *PostProcessor) blurChain(cmd vk.CommandBuffer, frame *FrameContext, src, dst int, horizontal bool) error {
	s := pp.session
	t := pp.targets

	t.Bloom[src].TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)
	srcInfo, err := pp.sampled(t.Bloom[src].MipView(0))
	if err != nil {
		return err
	}
	for mip := 0; mip < bloomMipLevels; mip++ {
		extent := t.BloomMipExtent(mip)
		blur := blurUniforms{
			TexelSize: mgl32.Vec2{1 / float32(extent.Width), 1 / float32(extent.Height)},
			MipLevel:  int32(mip),
		}
		if horizontal {
			blur.Horizontal = 1
		}
		srcInfo.ImageView = t.Bloom[src].MipView(mip)
		s.RequestTarget(cmd, TargetSelection{Kind: TargetBloomMip, BloomChain: dst, BloomLevel: mip})
		if err := s.EnsureRendering(cmd); err != nil {
			return err
		}
		if err := pp.recordScreenPass(cmd, frame, screenPass{
			shader:      gfx.ShaderPostProcessBlur,
			blend:       gfx.BlendNone,
			colorFormat: t.Bloom[dst].image.Format(),
			extent:      extent,
			uniform:     unsafe.Pointer(&blur),
			uniformSize: unsafe.Sizeof(blur),
			textures:    []vk.DescriptorImageInfo{srcInfo},
		}); err != nil {
			return err
		}
	}
	s.SuspendRendering(cmd)
	return nil
}

// generateBloomMips fills the chain's smaller mips by blitting each
// level from the one above it.
func (pp *PostProcessor) generateBloomMips(cmd vk.CommandBuffer, chain int) {
	c := &pp.targets.Bloom[chain]
	image := c.image.Get()
	base := pp.targets.BloomMipExtent(0)

	c.TransitionTo(cmd, vk.ImageLayoutTransferDstOptimal)
	for mip := uint32(1); mip < bloomMipLevels; mip++ {
		bloomMipBarrier(cmd, image, mip-1, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal)

		srcW := maxU32(base.Width>>(mip-1), 1)
		srcH := maxU32(base.Height>>(mip-1), 1)
		dstW := maxU32(base.Width>>mip, 1)
		dstH := maxU32(base.Height>>mip, 1)

		blit := vk.ImageBlit{
			SrcSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:   mip - 1,
				LayerCount: 1,
			},
			DstSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:   mip,
				LayerCount: 1,
			},
		}
		blit.SrcOffsets[1] = vk.Offset3D{X: int32(srcW), Y: int32(srcH), Z: 1}
		blit.DstOffsets[1] = vk.Offset3D{X: int32(dstW), Y: int32(dstH), Z: 1}
		vk.CmdBlitImage(cmd, image, vk.ImageLayoutTransferSrcOptimal, image, vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageBlit{blit}, vk.FilterLinear)
	}
	// Fold the per-mip layouts back together so chain tracking stays
	// whole-image: every level ends in TransferSrc.
	bloomMipBarrier(cmd, image, bloomMipLevels-1, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutTransferSrcOptimal)
	c.layout = vk.ImageLayoutTransferSrcOptimal
}

// bloomMipBarrier transitions exactly one mip level.
func bloomMipBarrier(cmd vk.CommandBuffer, image vk.Image, mip uint32, oldLayout, newLayout vk.ImageLayout) {
	srcStage, srcAccess := stageAccessForLayout(oldLayout, true)
	dstStage, dstAccess := stageAccessForLayout(newLayout, false)
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:   vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel: mip,
			LevelCount:   1,
			LayerCount:   1,
		},
	}
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// runSmaa: edge detection, blending weights, neighborhood blend. The
// area and search lookup textures live in the texture manager as
// synthetic preloads.
func (pp *PostProcessor) runSmaa(cmd vk.CommandBuffer, frame *FrameContext) error {
	s := pp.session
	t := pp.targets

	ldrInfo, err := pp.sampled(t.PostLDR.View())
	if err != nil {
		return err
	}

	s.RequestTarget(cmd, TargetSelection{Kind: TargetSmaaEdges})
	if err := s.EnsureRendering(cmd); err != nil {
		return err
	}
	if err := pp.recordScreenPass(cmd, frame, screenPass{
		shader:      gfx.ShaderPostProcessSMAAEdge,
		blend:       gfx.BlendNone,
		colorFormat: t.SmaaEdges.Format(),
		extent:      t.Extent(),
		textures:    []vk.DescriptorImageInfo{ldrInfo},
	}); err != nil {
		return err
	}
	s.SuspendRendering(cmd)
	t.SmaaEdges.TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)

	edgesInfo, err := pp.sampled(t.SmaaEdges.View())
	if err != nil {
		return err
	}
	s.RequestTarget(cmd, TargetSelection{Kind: TargetSmaaBlend})
	if err := s.EnsureRendering(cmd); err != nil {
		return err
	}
	if err := pp.recordScreenPass(cmd, frame, screenPass{
		shader:      gfx.ShaderPostProcessSMAABlendingWeight,
		blend:       gfx.BlendNone,
		colorFormat: t.SmaaBlend.Format(),
		extent:      t.Extent(),
		textures:    []vk.DescriptorImageInfo{edgesInfo},
	}); err != nil {
		return err
	}
	s.SuspendRendering(cmd)
	t.SmaaBlend.TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)

	blendInfo, err := pp.sampled(t.SmaaBlend.View())
	if err != nil {
		return err
	}
	s.RequestTarget(cmd, TargetSelection{Kind: TargetSmaaOutput})
	if err := s.EnsureRendering(cmd); err != nil {
		return err
	}
	if err := pp.recordScreenPass(cmd, frame, screenPass{
		shader:      gfx.ShaderPostProcessSMAANeighborhoodBlending,
		blend:       gfx.BlendNone,
		colorFormat: t.SmaaOutput.Format(),
		extent:      t.Extent(),
		textures:    []vk.DescriptorImageInfo{ldrInfo, blendInfo},
	}); err != nil {
		return err
	}
	s.SuspendRendering(cmd)
	t.SmaaOutput.TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)
	return nil
}

// runFxaa: luminance prepass into the luminance target, then FXAA back
// into the LDR target.
func (pp *PostProcessor) runFxaa(cmd vk.CommandBuffer, frame *FrameContext) error {
	s := pp.session
	t := pp.targets

	ldrInfo, err := pp.sampled(t.PostLDR.View())
	if err != nil {
		return err
	}
	s.RequestTarget(cmd, TargetSelection{Kind: TargetPostLuminance})
	if err := s.EnsureRendering(cmd); err != nil {
		return err
	}
	if err := pp.recordScreenPass(cmd, frame, screenPass{
		shader:      gfx.ShaderPostProcessFXAAPrepass,
		blend:       gfx.BlendNone,
		colorFormat: t.PostLuminance.Format(),
		extent:      t.Extent(),
		textures:    []vk.DescriptorImageInfo{ldrInfo},
	}); err != nil {
		return err
	}
	s.SuspendRendering(cmd)
	t.PostLuminance.TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)

	lumInfo, err := pp.sampled(t.PostLuminance.View())
	if err != nil {
		return err
	}
	s.RequestTarget(cmd, TargetSelection{Kind: TargetPostLDR})
	if err := s.EnsureRendering(cmd); err != nil {
		return err
	}
	if err := pp.recordScreenPass(cmd, frame, screenPass{
		shader:      gfx.ShaderPostProcessFXAA,
		blend:       gfx.BlendNone,
		colorFormat: t.PostLDR.Format(),
		extent:      t.Extent(),
		textures:    []vk.DescriptorImageInfo{lumInfo},
	}); err != nil {
		return err
	}
	s.SuspendRendering(cmd)
	t.PostLDR.TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)
	return nil
}

// runLightshafts renders the additive god-ray pass into whichever LDR
// buffer the chain currently holds.
func (pp *PostProcessor) runLightshafts(cmd vk.CommandBuffer, frame *FrameContext, params *gfx.LightshaftParams, ldrView vk.ImageView) error {
	s := pp.session
	t := pp.targets

	ls := lightshaftUniforms{
		SunPos:           params.SunPos,
		Density:          params.Density,
		Falloff:          params.Falloff,
		Weight:           params.Weight,
		Intensity:        params.Intensity,
		CockpitIntensity: params.CockpitIntensity,
		SampleCount:      clampLightshaftSamples(params.SampleCount),
	}

	t.MainDepth.TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)
	t.CockpitDepth.TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)

	nearest, err := pp.nearestSampler()
	if err != nil {
		return err
	}
	depthInfo := vk.DescriptorImageInfo{
		Sampler:     nearest,
		ImageView:   t.MainDepth.View(),
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
	}
	cockpitInfo := depthInfo
	cockpitInfo.ImageView = t.CockpitDepth.View()

	target := TargetSelection{Kind: TargetPostLDR}
	format := t.PostLDR.Format()
	if ldrView == t.SmaaOutput.View() {
		target = TargetSelection{Kind: TargetSmaaOutput}
		format = t.SmaaOutput.Format()
	}
	s.RequestTarget(cmd, target)
	if err := s.EnsureRendering(cmd); err != nil {
		return err
	}
	if err := pp.recordScreenPass(cmd, frame, screenPass{
		shader:      gfx.ShaderPostProcessLightshafts,
		blend:       gfx.BlendAdditive,
		colorFormat: format,
		extent:      t.Extent(),
		uniform:     unsafe.Pointer(&ls),
		uniformSize: unsafe.Sizeof(ls),
		textures:    []vk.DescriptorImageInfo{depthInfo, cockpitInfo},
	}); err != nil {
		return err
	}
	s.SuspendRendering(cmd)
	if target.Kind == TargetSmaaOutput {
		t.SmaaOutput.TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)
	} else {
		t.PostLDR.TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)
	}
	return nil
}
