package vkr

import (
	"errors"

	vk "github.com/Eiton/vulkan"

	"github.com/danielchristiancazares/freespace2/gfx"
)

// RenderTargetFlags select bitmap render-target shape.
type RenderTargetFlags struct {
	Cubemap   bool
	NoMipmaps bool
}

// RenderTargetTexture is an engine-requested render target the game can
// also sample (bitmap RTT: environment maps, HUD targets). Cubemaps get
// one view per face for attachment plus an array view for sampling.
type RenderTargetTexture struct {
	image     Image
	faceViews []vk.ImageView
	arrayView vk.ImageView

	width, height int
	mipLevels     uint32
	layout        vk.ImageLayout
}

// MipLevels reports the allocated mip chain length.
func (rt *RenderTargetTexture) MipLevels() uint32 { return rt.mipLevels }

// FaceView returns the attachment view for one face (0 for 2D targets).
func (rt *RenderTargetTexture) FaceView(face int) vk.ImageView { return rt.faceViews[face] }

// ArrayView returns the sampling view covering all faces.
func (rt *RenderTargetTexture) ArrayView() vk.ImageView { return rt.arrayView }

func mipLevelsFor(width, height int) uint32 {
	levels := uint32(1)
	for width > 1 || height > 1 {
		width /= 2
		height /= 2
		levels++
	}
	return levels
}

// CreateRenderTarget materializes a bitmap render target and registers it
// under the bitmap handle so draws can sample it like any texture.
func (tm *TextureManager) CreateRenderTarget(handle gfx.TextureHandle, width, height int, flags RenderTargetFlags) (*RenderTargetTexture, error) {
	layers := uint32(1)
	if flags.Cubemap {
		layers = 6
	}
	mips := uint32(1)
	if !flags.NoMipmaps {
		mips = mipLevelsFor(width, height)
	}

	image, err := NewImage(tm.device, uint32(width), uint32(height), ImageOptions{
		Format:    vk.FormatB8g8r8a8Unorm,
		MipLevels: mips,
		Layers:    layers,
		Usage:     vk.ImageUsageColorAttachmentBit | vk.ImageUsageSampledBit | vk.ImageUsageTransferSrcBit,
		Cube:      flags.Cubemap,
	}, tm.ma)
	if err != nil {
		return nil, errors.New("vkr.CreateRenderTarget: " + err.Error())
	}

	rt := &RenderTargetTexture{
		image:     image,
		width:     width,
		height:    height,
		mipLevels: mips,
		layout:    vk.ImageLayoutUndefined,
	}
	for face := uint32(0); face < layers; face++ {
		view, err := NewImageView(tm.device, image.Get(), vk.ImageViewType2d, vk.FormatB8g8r8a8Unorm, vk.ImageAspectColorBit, face, 1, 1)
		if err != nil {
			rt.destroy(tm.device)
			return nil, err
		}
		rt.faceViews = append(rt.faceViews, view)
	}
	viewType := vk.ImageViewType2dArray
	if flags.Cubemap {
		viewType = vk.ImageViewTypeCube
	}
	rt.arrayView, err = NewImageView(tm.device, image.Get(), viewType, vk.FormatB8g8r8a8Unorm, vk.ImageAspectColorBit, 0, layers, mips)
	if err != nil {
		rt.destroy(tm.device)
		return nil, err
	}

	record := &TextureRecord{
		base:   handle,
		state:  textureResident,
		image:  image,
		view:   rt.arrayView,
		width:  width,
		height: height,
		layers: int(layers),
		format: vk.FormatB8g8r8a8Unorm,
		layout: vk.ImageLayoutUndefined,
		samplerKey: SamplerKey{
			Filter:      vk.FilterLinear,
			AddressMode: vk.SamplerAddressModeClampToEdge,
		},
		renderTarget: true,
	}
	tm.records[handle] = record
	return rt, nil
}

// TransitionToAttachment moves the target into color-attachment layout.
// Requires no active render pass.
func (rt *RenderTargetTexture) TransitionToAttachment(cmd vk.CommandBuffer) {
	if rt.layout == vk.ImageLayoutColorAttachmentOptimal {
		return
	}
	layoutTransition(cmd, rt.image.Get(), vk.ImageAspectColorBit, rt.image.Layers(), rt.mipLevels, rt.layout, vk.ImageLayoutColorAttachmentOptimal)
	rt.layout = vk.ImageLayoutColorAttachmentOptimal
}

// TransitionToShaderRead moves the target into sampling layout.
// Requires no active render pass.
func (rt *RenderTargetTexture) TransitionToShaderRead(cmd vk.CommandBuffer) {
	if rt.layout == vk.ImageLayoutShaderReadOnlyOptimal {
		return
	}
	layoutTransition(cmd, rt.image.Get(), vk.ImageAspectColorBit, rt.image.Layers(), rt.mipLevels, rt.layout, vk.ImageLayoutShaderReadOnlyOptimal)
	rt.layout = vk.ImageLayoutShaderReadOnlyOptimal
}

func (rt *RenderTargetTexture) destroy(dev vk.Device) {
	for _, view := range rt.faceViews {
		vk.DestroyImageView(dev, view, nil)
	}
	if rt.arrayView != nil {
		vk.DestroyImageView(dev, rt.arrayView, nil)
	}
	rt.image.Release()
}

// ReleaseRenderTarget retires the target through the deferred queue and
// forgets the bitmap registration.
func (tm *TextureManager) ReleaseRenderTarget(handle gfx.TextureHandle, rt *RenderTargetTexture) {
	delete(tm.records, handle)
	device := tm.device
	target := rt
	tm.releases.Enqueue(tm.submitSerial(), func() {
		target.destroy(device)
	})
}
