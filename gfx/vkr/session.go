package vkr

import (
	"fmt"

	vk "github.com/Eiton/vulkan"

	"github.com/danielchristiancazares/freespace2/gfx"
)

// TargetKind names every render target the session can select.
type TargetKind int

const (
	TargetSwapchain TargetKind = iota
	TargetSwapchainNoDepth
	TargetSceneHDR
	TargetSceneHDRNoDepth
	TargetPostLDR
	TargetPostLuminance
	TargetSmaaEdges
	TargetSmaaBlend
	TargetSmaaOutput
	TargetBloomMip
	TargetGBufferEmissive
	TargetDeferredGBuffer
	TargetBitmapRTT
)

// TargetSelection identifies one concrete attachment set. Comparable,
// so it doubles as the per-frame "already cleared" tracking key.
type TargetSelection struct {
	Kind TargetKind

	// Bloom addressing, meaningful only for TargetBloomMip.
	BloomChain int
	BloomLevel int

	// Bitmap RTT addressing, meaningful only for TargetBitmapRTT.
	Bitmap gfx.TextureHandle
	Face   int
}

// DepthSelection picks which depth attachment scene passes use. The
// cockpit renders into a parallel depth buffer so the HUD can restore
// the scene depth afterwards.
type DepthSelection int

const (
	DepthMain DepthSelection = iota
	DepthCockpit
)

// loadAction is the tri-state clear policy for one aspect of the next
// pass.
type loadAction int

const (
	actionLoad loadAction = iota
	actionClear
	actionDontCare
)

// ClearOps arm the next pass's load operations. They are one-shot:
// beginning a pass consumes them back to Load.
type ClearOps struct {
	Color   loadAction
	Depth   loadAction
	Stencil loadAction

	ClearColor [4]float32
	ClearDepth float32
}

// RenderingSession is the per-frame render target state machine. It
// owns which attachment set the command buffer is rendering into, when
// passes begin and end, and the one-shot clear semantics.
type RenderingSession struct {
	targets  *RenderTargets
	textures *TextureManager

	// Swapchain attachment for the current frame, set by the renderer
	// after image acquisition.
	swapView   vk.ImageView
	swapImage  vk.Image
	swapFormat vk.Format
	swapLayout vk.ImageLayout

	selected   TargetSelection
	depthSel   DepthSelection
	activePass bool
	clearOps   ClearOps

	// rendered tracks attachment sets already drawn to this frame; the
	// first pass on a set clears, later ones load.
	rendered map[TargetSelection]bool

	// rtts resolves bitmap render targets selected this frame.
	rtts map[gfx.TextureHandle]*RenderTargetTexture
}

// NewRenderingSession builds the session over the shared target set.
func NewRenderingSession(targets *RenderTargets, textures *TextureManager) *RenderingSession {
	return &RenderingSession{
		targets:  targets,
		textures: textures,
		rendered: make(map[TargetSelection]bool),
		rtts:     make(map[gfx.TextureHandle]*RenderTargetTexture),
	}
}

// SetSwapchainAttachment hands the session this frame's acquired
// swapchain image. Called once per frame before any pass.
func (s *RenderingSession) SetSwapchainAttachment(image vk.Image, view vk.ImageView, format vk.Format) {
	s.swapImage = image
	s.swapView = view
	s.swapFormat = format
	s.swapLayout = vk.ImageLayoutUndefined
}

// RegisterBitmapTarget makes a bitmap render target selectable.
func (s *RenderingSession) RegisterBitmapTarget(handle gfx.TextureHandle, rt *RenderTargetTexture) {
	s.rtts[handle] = rt
}

// BeginFrame resets the state machine: any active pass ends, the
// swapchain-with-depth target is selected, and everything clears on
// first touch.
func (s *RenderingSession) BeginFrame(cmd vk.CommandBuffer) {
	s.endPass(cmd)
	s.selected = TargetSelection{Kind: TargetSwapchain}
	s.depthSel = DepthMain
	s.clearOps = ClearOps{Color: actionClear, Depth: actionClear, Stencil: actionClear, ClearDepth: 1.0}
	for k := range s.rendered {
		delete(s.rendered, k)
	}
}

// RequestTarget switches the selection, ending the active pass when the
// target actually changes. Selecting the current target is a no-op.
func (s *RenderingSession) RequestTarget(cmd vk.CommandBuffer, sel TargetSelection) {
	if sel == s.selected {
		return
	}
	s.endPass(cmd)
	s.selected = sel
}

// Selected returns the current target selection.
func (s *RenderingSession) Selected() TargetSelection { return s.selected }

// SelectDepth switches between the main and cockpit depth attachments.
// A change ends the active pass.
func (s *RenderingSession) SelectDepth(cmd vk.CommandBuffer, sel DepthSelection) {
	if sel == s.depthSel {
		return
	}
	s.endPass(cmd)
	s.depthSel = sel
}

// RequestClear re-arms a color clear for the next pass.
func (s *RenderingSession) RequestClear(color [4]float32) {
	s.clearOps.Color = actionClear
	s.clearOps.ClearColor = color
}

// RequestDepthClear re-arms a depth/stencil clear for the next pass.
func (s *RenderingSession) RequestDepthClear() {
	s.clearOps.Depth = actionClear
	s.clearOps.Stencil = actionClear
	s.clearOps.ClearDepth = 1.0
}

// ActivePass reports whether a render pass is currently open.
func (s *RenderingSession) ActivePass() bool { return s.activePass }

func (s *RenderingSession) depthAttachment() *Attachment {
	if s.depthSel == DepthCockpit {
		return &s.targets.CockpitDepth
	}
	return &s.targets.MainDepth
}

// targetSpec describes the attachment set a selection resolves to.
type targetSpec struct {
	colorViews  []vk.ImageView
	clearNeeded bool // attachment set untouched this frame
	useDepth    bool
	extent      vk.Extent2D
}

func (s *RenderingSession) resolveTarget(cmd vk.CommandBuffer) (targetSpec, error) {
	t := s.targets
	spec := targetSpec{extent: t.Extent(), useDepth: true}
	switch s.selected.Kind {
	case TargetSwapchain, TargetSwapchainNoDepth:
		if s.swapView == nil {
			return spec, fmt.Errorf("no swapchain image set this frame")
		}
		if s.swapLayout != vk.ImageLayoutColorAttachmentOptimal {
			layoutTransition(cmd, s.swapImage, vk.ImageAspectColorBit, 1, 1, s.swapLayout, vk.ImageLayoutColorAttachmentOptimal)
			s.swapLayout = vk.ImageLayoutColorAttachmentOptimal
		}
		spec.colorViews = []vk.ImageView{s.swapView}
		spec.useDepth = s.selected.Kind == TargetSwapchain
	case TargetSceneHDR:
		t.SceneHDR.TransitionTo(cmd, vk.ImageLayoutColorAttachmentOptimal)
		spec.colorViews = []vk.ImageView{t.SceneHDR.View()}
	case TargetSceneHDRNoDepth:
		t.SceneHDR.TransitionTo(cmd, vk.ImageLayoutColorAttachmentOptimal)
		spec.colorViews = []vk.ImageView{t.SceneHDR.View()}
		spec.useDepth = false
	case TargetPostLDR:
		t.PostLDR.TransitionTo(cmd, vk.ImageLayoutColorAttachmentOptimal)
		spec.colorViews = []vk.ImageView{t.PostLDR.View()}
		spec.useDepth = false
	case TargetPostLuminance:
		t.PostLuminance.TransitionTo(cmd, vk.ImageLayoutColorAttachmentOptimal)
		spec.colorViews = []vk.ImageView{t.PostLuminance.View()}
		spec.useDepth = false
	case TargetSmaaEdges:
		t.SmaaEdges.TransitionTo(cmd, vk.ImageLayoutColorAttachmentOptimal)
		spec.colorViews = []vk.ImageView{t.SmaaEdges.View()}
		spec.useDepth = false
	case TargetSmaaBlend:
		t.SmaaBlend.TransitionTo(cmd, vk.ImageLayoutColorAttachmentOptimal)
		spec.colorViews = []vk.ImageView{t.SmaaBlend.View()}
		spec.useDepth = false
	case TargetSmaaOutput:
		t.SmaaOutput.TransitionTo(cmd, vk.ImageLayoutColorAttachmentOptimal)
		spec.colorViews = []vk.ImageView{t.SmaaOutput.View()}
		spec.useDepth = false
	case TargetBloomMip:
		chain := &t.Bloom[s.selected.BloomChain]
		chain.TransitionTo(cmd, vk.ImageLayoutColorAttachmentOptimal)
		spec.colorViews = []vk.ImageView{chain.MipView(s.selected.BloomLevel)}
		spec.useDepth = false
		spec.extent = t.BloomMipExtent(s.selected.BloomLevel)
	case TargetGBufferEmissive:
		t.GBuffer[gBufferEmissiveIndex].TransitionTo(cmd, vk.ImageLayoutColorAttachmentOptimal)
		spec.colorViews = []vk.ImageView{t.GBuffer[gBufferEmissiveIndex].View()}
	case TargetDeferredGBuffer:
		spec.colorViews = make([]vk.ImageView, 0, gBufferColorCount)
		for i := range t.GBuffer {
			t.GBuffer[i].TransitionTo(cmd, vk.ImageLayoutColorAttachmentOptimal)
			spec.colorViews = append(spec.colorViews, t.GBuffer[i].View())
		}
	case TargetBitmapRTT:
		rt, ok := s.rtts[s.selected.Bitmap]
		if !ok {
			return spec, fmt.Errorf("bitmap %d is not a registered render target", s.selected.Bitmap)
		}
		rt.TransitionToAttachment(cmd)
		spec.colorViews = []vk.ImageView{rt.FaceView(s.selected.Face)}
		spec.useDepth = false
		spec.extent = vk.Extent2D{Width: uint32(rt.width), Height: uint32(rt.height)}
	default:
		return spec, fmt.Errorf("unknown render target kind %d", s.selected.Kind)
	}
	spec.clearNeeded = !s.rendered[s.selected]
	return spec, nil
}

func loadOpFor(action loadAction, firstTouch bool) vk.AttachmentLoadOp {
	if action == actionClear || firstTouch {
		return vk.AttachmentLoadOpClear
	}
	if action == actionDontCare {
		return vk.AttachmentLoadOpDontCare
	}
	return vk.AttachmentLoadOpLoad
}

// EnsureRendering begins a pass against the selected target if none is
// active. ClearOps are consumed: the pass that clears resets them to
// Load, so later passes on the same attachments load.
func (s *RenderingSession) EnsureRendering(cmd vk.CommandBuffer) error {
	if s.activePass {
		return nil
	}
	spec, err := s.resolveTarget(cmd)
	if err != nil {
		return err
	}
	if spec.useDepth {
		s.depthAttachment().TransitionTo(cmd, vk.ImageLayoutDepthStencilAttachmentOptimal)
	}

	colorLoad := loadOpFor(s.clearOps.Color, spec.clearNeeded)
	colorInfos := make([]vk.RenderingAttachmentInfo, 0, len(spec.colorViews))
	for _, view := range spec.colorViews {
		colorInfos = append(colorInfos, vk.RenderingAttachmentInfo{
			SType:       vk.StructureTypeRenderingAttachmentInfo,
			ImageView:   view,
			ImageLayout: vk.ImageLayoutColorAttachmentOptimal,
			LoadOp:      colorLoad,
			StoreOp:     vk.AttachmentStoreOpStore,
			ClearValue: vk.NewClearValue([]float32{
				s.clearOps.ClearColor[0], s.clearOps.ClearColor[1],
				s.clearOps.ClearColor[2], s.clearOps.ClearColor[3],
			}),
		})
	}

	renderInfo := vk.RenderingInfo{
		SType: vk.StructureTypeRenderingInfo,
		RenderArea: vk.Rect2D{
			Extent: spec.extent,
		},
		LayerCount:           1,
		ColorAttachmentCount: uint32(len(colorInfos)),
		PColorAttachments:    colorInfos,
	}
	if spec.useDepth {
		renderInfo.PDepthAttachment = []vk.RenderingAttachmentInfo{{
			SType:       vk.StructureTypeRenderingAttachmentInfo,
			ImageView:   s.depthAttachment().View(),
			ImageLayout: vk.ImageLayoutDepthStencilAttachmentOptimal,
			LoadOp:      loadOpFor(s.clearOps.Depth, spec.clearNeeded),
			StoreOp:     vk.AttachmentStoreOpStore,
			ClearValue:  vk.NewClearDepthStencil(s.clearOps.ClearDepth, 0),
		}}
	}
	vk.CmdBeginRendering(cmd, &renderInfo)
	s.activePass = true

	// One-shot: the pass that clears disarms the ops.
	s.clearOps.Color = actionLoad
	s.clearOps.Depth = actionLoad
	s.clearOps.Stencil = actionLoad
	s.rendered[s.selected] = true
	return nil
}

// SuspendRendering ends the active pass but keeps the selection, so the
// next EnsureRendering resumes on the same target with Load ops.
func (s *RenderingSession) SuspendRendering(cmd vk.CommandBuffer) {
	s.endPass(cmd)
}

// EndDeferredGeometry closes the G-buffer pass after scene geometry.
func (s *RenderingSession) EndDeferredGeometry(cmd vk.CommandBuffer) {
	s.endPass(cmd)
}

func (s *RenderingSession) endPass(cmd vk.CommandBuffer) {
	if !s.activePass {
		return
	}
	vk.CmdEndRendering(cmd)
	s.activePass = false
}

// TransitionSceneHDRToShaderRead makes the HDR scene samplable.
// Illegal while a pass is active.
func (s *RenderingSession) TransitionSceneHDRToShaderRead(cmd vk.CommandBuffer) {
	s.mustBeOutsidePass("TransitionSceneHDRToShaderRead")
	s.targets.SceneHDR.TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)
}

// TransitionGBufferToShaderRead makes all G-buffer attachments
// samplable for the lighting pass. Illegal while a pass is active.
func (s *RenderingSession) TransitionGBufferToShaderRead(cmd vk.CommandBuffer) {
	s.mustBeOutsidePass("TransitionGBufferToShaderRead")
	for i := range s.targets.GBuffer {
		s.targets.GBuffer[i].TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)
	}
}

// TransitionDepthToShaderRead makes the active depth buffer samplable.
// Illegal while a pass is active.
func (s *RenderingSession) TransitionDepthToShaderRead(cmd vk.CommandBuffer) {
	s.mustBeOutsidePass("TransitionDepthToShaderRead")
	s.depthAttachment().TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)
}

func (s *RenderingSession) mustBeOutsidePass(op string) {
	if s.activePass {
		panic(op + " called with an active render pass")
	}
}

// CopySceneHDRToEffect snapshots the HDR scene into the effect texture
// for distortion sampling. Ends the active pass first.
func (s *RenderingSession) CopySceneHDRToEffect(cmd vk.CommandBuffer) {
	s.endPass(cmd)
	t := s.targets
	t.SceneHDR.TransitionTo(cmd, vk.ImageLayoutTransferSrcOptimal)
	t.SceneEffect.TransitionTo(cmd, vk.ImageLayoutTransferDstOptimal)

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
		t.SceneEffect.image.Get(), vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageCopy{region})
	t.SceneEffect.TransitionTo(cmd, vk.ImageLayoutShaderReadOnlyOptimal)
}

// PrepareSwapchainForPresent ends any active pass and transitions the
// swapchain image to present layout. Called once at frame end.
func (s *RenderingSession) PrepareSwapchainForPresent(cmd vk.CommandBuffer) {
	s.endPass(cmd)
	if s.swapImage == nil || s.swapLayout == vk.ImageLayoutPresentSrc {
		return
	}
	layoutTransition(cmd, s.swapImage, vk.ImageAspectColorBit, 1, 1, s.swapLayout, vk.ImageLayoutPresentSrc)
	s.swapLayout = vk.ImageLayoutPresentSrc
}
