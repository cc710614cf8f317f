package vkr

import (
	"errors"
	"fmt"

	vk "github.com/Eiton/vulkan"
	log "github.com/sirupsen/logrus"
)

// G-buffer color attachments: albedo, position, normal, specular, plus
// the emissive accumulator at the last index. Lighting samples the
// first four; emissive is composited during post-processing.
const (
	gBufferColorCount    = 5
	gBufferEmissiveIndex = 4
)

// Bloom runs two ping-pong chains of downsampled mips.
const (
	bloomChainCount = 2
	bloomMipLevels  = 4
)

// Attachment is one owned render target image with its tracked layout.
type Attachment struct {
	image  Image
	view   vk.ImageView
	format vk.Format
	aspect vk.ImageAspectFlagBits
	layout vk.ImageLayout
}

// View returns the attachment's full view.
func (a *Attachment) View() vk.ImageView { return a.view }

// Format returns the attachment's format.
func (a *Attachment) Format() vk.Format { return a.format }

// Layout returns the attachment's last recorded layout.
func (a *Attachment) Layout() vk.ImageLayout { return a.layout }

// TransitionTo records a barrier into the target layout. No-op when the
// attachment is already there. Requires no active render pass.
func (a *Attachment) TransitionTo(cmd vk.CommandBuffer, layout vk.ImageLayout) {
	if a.layout == layout {
		return
	}
	layoutTransition(cmd, a.image.Get(), a.aspect, a.image.Layers(), a.image.MipLevels(), a.layout, layout)
	a.layout = layout
}

func (a *Attachment) destroy(dev vk.Device) {
	if a.view != nil {
		vk.DestroyImageView(dev, a.view, nil)
		a.view = nil
	}
	if a.image.image != nil {
		a.image.Release()
		a.image = Image{}
	}
}

// BloomChain is one image with per-mip views for progressive blurring.
type BloomChain struct {
	image    Image
	mipViews [bloomMipLevels]vk.ImageView
	layout   vk.ImageLayout
}

// MipView returns the view covering exactly one mip level.
func (c *BloomChain) MipView(level int) vk.ImageView { return c.mipViews[level] }

// TransitionTo moves the whole chain into the target layout.
func (c *BloomChain) TransitionTo(cmd vk.CommandBuffer, layout vk.ImageLayout) {
	if c.layout == layout {
		return
	}
	layoutTransition(cmd, c.image.Get(), vk.ImageAspectColorBit, 1, bloomMipLevels, c.layout, layout)
	c.layout = layout
}

func (c *BloomChain) destroy(dev vk.Device) {
	for i, view := range c.mipViews {
		if view != nil {
			vk.DestroyImageView(dev, view, nil)
			c.mipViews[i] = nil
		}
	}
	if c.image.image != nil {
		c.image.Release()
		c.image = Image{}
	}
}

// RenderTargets owns every non-swapchain attachment the frame renders
// into: the HDR scene, the G-buffer, the anti-aliasing and bloom
// intermediates, and the parallel cockpit depth buffer.
type RenderTargets struct {
	device vk.Device
	ma     *MemoryAllocator

	extent      vk.Extent2D
	depthFormat vk.Format

	SceneHDR    Attachment
	SceneEffect Attachment

	MainDepth    Attachment
	CockpitDepth Attachment

	GBuffer [gBufferColorCount]Attachment

	SmaaEdges  Attachment
	SmaaBlend  Attachment
	SmaaOutput Attachment

	PostLDR       Attachment
	PostLuminance Attachment

	Bloom [bloomChainCount]BloomChain

	releases     DeferredReleaseQueue
	submitSerial func() uint64
}

// depthFormatCandidates in preference order.
var depthFormatCandidates = []vk.Format{
	vk.FormatD32SfloatS8Uint,
	vk.FormatD24UnormS8Uint,
	vk.FormatD32Sfloat,
}

// findDepthFormat picks the first candidate usable both as a
// depth-stencil attachment and as a sampled image. Depth is read back
// by soft particles and deferred lighting, so a format lacking either
// bit is unusable; there is no silent fallback.
func findDepthFormat(query func(vk.Format) vk.FormatFeatureFlags) (vk.Format, error) {
	need := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit | vk.FormatFeatureSampledImageBit)
	for _, format := range depthFormatCandidates {
		if query(format)&need == need {
			return format, nil
		}
	}
	return vk.FormatUndefined, errors.New("no depth format supports both attachment and sampling")
}

// NewRenderTargets selects the depth format and builds every target at
// the given extent.
func NewRenderTargets(dev vk.Device, physical vk.PhysicalDevice, ma *MemoryAllocator, extent vk.Extent2D, submitSerial func() uint64) (*RenderTargets, error) {
	rt := &RenderTargets{
		device:       dev,
		ma:           ma,
		submitSerial: submitSerial,
	}
	depthFormat, err := findDepthFormat(func(format vk.Format) vk.FormatFeatureFlags {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(physical, format, &props)
		return props.OptimalTilingFeatures
	})
	if err != nil {
		return nil, err
	}
	rt.depthFormat = depthFormat
	log.WithField("format", depthFormat).Debug("depth format selected")

	if err := rt.create(extent); err != nil {
		rt.destroyAll()
		return nil, err
	}
	return rt, nil
}

// DepthFormat returns the selected depth attachment format.
func (rt *RenderTargets) DepthFormat() vk.Format { return rt.depthFormat }

// Extent returns the current target dimensions.
func (rt *RenderTargets) Extent() vk.Extent2D { return rt.extent }

func (rt *RenderTargets) createAttachment(a *Attachment, width, height uint32, format vk.Format, usage vk.ImageUsageFlagBits, aspect vk.ImageAspectFlagBits) error {
	image, err := NewImage(rt.device, width, height, ImageOptions{
		Format: format,
		Usage:  usage,
	}, rt.ma)
	if err != nil {
		return err
	}
	viewType := vk.ImageViewType2d
	view, err := NewImageView(rt.device, image.Get(), viewType, format, aspect, 0, 1, 1)
	if err != nil {
		image.Release()
		return err
	}
	*a = Attachment{image: image, view: view, format: format, aspect: aspect, layout: vk.ImageLayoutUndefined}
	return nil
}

func (rt *RenderTargets) create(extent vk.Extent2D) error {
	rt.extent = extent
	w, h := extent.Width, extent.Height

	colorUsage := vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit
	depthUsage := vk.ImageUsageDepthStencilAttachmentBit | vk.ImageUsageSampledBit
	depthAspect := vk.ImageAspectDepthBit

	steps := []struct {
		name string
		run  func() error
	}{
		{"scene hdr", func() error {
			return rt.createAttachment(&rt.SceneHDR, w, h, vk.FormatR16g16b16a16Sfloat, colorUsage|vk.ImageUsageTransferSrcBit, vk.ImageAspectColorBit)
		}},
		{"scene effect", func() error {
			return rt.createAttachment(&rt.SceneEffect, w, h, vk.FormatR16g16b16a16Sfloat, vk.ImageUsageSampledBit|vk.ImageUsageTransferDstBit, vk.ImageAspectColorBit)
		}},
		{"main depth", func() error {
			return rt.createAttachment(&rt.MainDepth, w, h, rt.depthFormat, depthUsage, depthAspect)
		}},
		{"cockpit depth", func() error {
			return rt.createAttachment(&rt.CockpitDepth, w, h, rt.depthFormat, depthUsage, depthAspect)
		}},
		{"smaa edges", func() error {
			return rt.createAttachment(&rt.SmaaEdges, w, h, vk.FormatR8g8Unorm, colorUsage, vk.ImageAspectColorBit)
		}},
		{"smaa blend", func() error {
			return rt.createAttachment(&rt.SmaaBlend, w, h, vk.FormatB8g8r8a8Unorm, colorUsage, vk.ImageAspectColorBit)
		}},
		{"smaa output", func() error {
			return rt.createAttachment(&rt.SmaaOutput, w, h, vk.FormatB8g8r8a8Unorm, colorUsage, vk.ImageAspectColorBit)
		}},
		{"post ldr", func() error {
			return rt.createAttachment(&rt.PostLDR, w, h, vk.FormatB8g8r8a8Unorm, colorUsage, vk.ImageAspectColorBit)
		}},
		{"post luminance", func() error {
			return rt.createAttachment(&rt.PostLuminance, w, h, vk.FormatR16Sfloat, colorUsage, vk.ImageAspectColorBit)
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("render target %s: %s", step.name, err.Error())
		}
	}

	gBufferFormats := [gBufferColorCount]vk.Format{
		vk.FormatB8g8r8a8Unorm,      // albedo
		vk.FormatR16g16b16a16Sfloat, // position
		vk.FormatR16g16Sfloat,       // normal
		vk.FormatB8g8r8a8Unorm,      // specular
		vk.FormatR16g16b16a16Sfloat, // emissive
	}
	for i, format := range gBufferFormats {
		usage := colorUsage
		if i == gBufferEmissiveIndex {
			// The emissive buffer receives a scene snapshot by copy when a
			// deferred pass begins.
			usage |= vk.ImageUsageTransferDstBit
		}
		if err := rt.createAttachment(&rt.GBuffer[i], w, h, format, usage, vk.ImageAspectColorBit); err != nil {
			return fmt.Errorf("g-buffer %d: %s", i, err.Error())
		}
	}

	// Bloom chains start at half resolution and halve per mip.
	bw, bh := w/2, h/2
	if bw == 0 {
		bw = 1
	}
	if bh == 0 {
		bh = 1
	}
	for c := range rt.Bloom {
		if err := rt.createBloomChain(&rt.Bloom[c], bw, bh); err != nil {
			return fmt.Errorf("bloom chain %d: %s", c, err.Error())
		}
	}
	return nil
}

func (rt *RenderTargets) createBloomChain(chain *BloomChain, width, height uint32) error {
	image, err := NewImage(rt.device, width, height, ImageOptions{
		Format:    vk.FormatR16g16b16a16Sfloat,
		MipLevels: bloomMipLevels,
		Usage:     vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit,
	}, rt.ma)
	if err != nil {
		return err
	}
	chain.image = image
	chain.layout = vk.ImageLayoutUndefined
	for level := 0; level < bloomMipLevels; level++ {
		view, err := newMipView(rt.device, image.Get(), image.Format(), uint32(level))
		if err != nil {
			chain.destroy(rt.device)
			return err
		}
		chain.mipViews[level] = view
	}
	return nil
}

// newMipView creates a 2D view of exactly one mip level.
func newMipView(dev vk.Device, img vk.Image, format vk.Format, level uint32) (vk.ImageView, error) {
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:   vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel: level,
			LevelCount:   1,
			LayerCount:   1,
		},
	}
	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(dev, &createInfo, nil, &view)); err != nil {
		return nil, errors.New("vk.CreateImageView(): " + err.Error())
	}
	return view, nil
}

// BloomMipExtent returns the dimensions of one bloom mip level.
func (rt *RenderTargets) BloomMipExtent(level int) vk.Extent2D {
	w, h := rt.extent.Width/2, rt.extent.Height/2
	for i := 0; i < level; i++ {
		w /= 2
		h /= 2
	}
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	return vk.Extent2D{Width: w, Height: h}
}

// Resize retires every current image through the deferred queue and
// rebuilds the set at the new extent.
func (rt *RenderTargets) Resize(extent vk.Extent2D) error {
	if extent.Width == rt.extent.Width && extent.Height == rt.extent.Height {
		return nil
	}
	rt.retireAll()
	return rt.create(extent)
}

func (rt *RenderTargets) attachments() []*Attachment {
	list := []*Attachment{
		&rt.SceneHDR, &rt.SceneEffect, &rt.MainDepth, &rt.CockpitDepth,
		&rt.SmaaEdges, &rt.SmaaBlend, &rt.SmaaOutput,
		&rt.PostLDR, &rt.PostLuminance,
	}
	for i := range rt.GBuffer {
		list = append(list, &rt.GBuffer[i])
	}
	return list
}

func (rt *RenderTargets) retireAll() {
	device := rt.device
	serial := rt.submitSerial()
	for _, a := range rt.attachments() {
		old := *a
		rt.releases.Enqueue(serial, func() {
			old.destroy(device)
		})
		*a = Attachment{}
	}
	for c := range rt.Bloom {
		old := rt.Bloom[c]
		rt.releases.Enqueue(serial, func() {
			old.destroy(device)
		})
		rt.Bloom[c] = BloomChain{}
	}
}

func (rt *RenderTargets) destroyAll() {
	for _, a := range rt.attachments() {
		a.destroy(rt.device)
	}
	for c := range rt.Bloom {
		rt.Bloom[c].destroy(rt.device)
	}
}

// Collect drives the deferred release queue.
func (rt *RenderTargets) Collect(completedSerial uint64) {
	rt.releases.Collect(completedSerial)
}

// Release destroys everything immediately. Device must be idle.
func (rt *RenderTargets) Release() {
	rt.releases.Clear()
	rt.destroyAll()
}
