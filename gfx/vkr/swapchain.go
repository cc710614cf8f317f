package vkr

import (
	"errors"
	"fmt"

	vk "github.com/Eiton/vulkan"
	log "github.com/sirupsen/logrus"

	"github.com/danielchristiancazares/freespace2/core"
)

// Swapchain owns the presentation images and their views. Recreation
// passes the old handle through so the driver can recycle resources.
type Swapchain struct {
	device    vk.Device
	swapchain vk.Swapchain

	images []vk.Image
	views  []vk.ImageView

	format vk.Format
	extent vk.Extent2D
}

// NewSwapchain creates a swapchain against the surface, preferring a
// BGRA8 sRGB surface format and FIFO presentation. old may be nil.
func NewSwapchain(gpu *core.Gpu, surface vk.Surface, cfg core.RendererConfiguration, old *Swapchain) (*Swapchain, error) {
	var caps vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(gpu.Physical, surface, &caps)); err != nil {
		return nil, errors.New("vk.GetPhysicalDeviceSurfaceCapabilities(): " + err.Error())
	}
	format, err := chooseSurfaceFormat(gpu.Physical, surface)
	if err != nil {
		return nil, err
	}

	extent := caps.CurrentExtent
	if extent.Width == ^uint32(0) {
		// Surface lets us pick; use the configured size clamped to caps.
		extent = vk.Extent2D{
			Width:  clampU32(cfg.ScreenWidth, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
			Height: clampU32(cfg.ScreenHeight, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
		}
	}

	imageCount := cfg.SwapchainSize
	if imageCount < caps.MinImageCount {
		imageCount = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	preTransform := vk.SurfaceTransformIdentityBit
	if caps.SupportedTransforms&vk.SurfaceTransformFlags(vk.SurfaceTransformIdentityBit) == 0 {
		preTransform = caps.CurrentTransform
	}

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, candidate := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(candidate) != 0 {
			compositeAlpha = candidate
			break
		}
	}

	var oldHandle vk.Swapchain
	if old != nil {
		oldHandle = old.swapchain
	}
	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     preTransform,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      vk.PresentModeFifo,
		Clipped:          vk.True,
		OldSwapchain:     oldHandle,
	}

	sc := &Swapchain{
		device: gpu.Device,
		format: format.Format,
		extent: extent,
	}
	if err := vk.Error(vk.CreateSwapchain(gpu.Device, &createInfo, nil, &sc.swapchain)); err != nil {
		return nil, errors.New("vk.CreateSwapchain(): " + err.Error())
	}

	var count uint32
	if err := vk.Error(vk.GetSwapchainImages(gpu.Device, sc.swapchain, &count, nil)); err != nil {
		sc.Release()
		return nil, errors.New("vk.GetSwapchainImages(): " + err.Error())
	}
	sc.images = make([]vk.Image, count)
	if err := vk.Error(vk.GetSwapchainImages(gpu.Device, sc.swapchain, &count, sc.images)); err != nil {
		sc.Release()
		return nil, errors.New("vk.GetSwapchainImages(): " + err.Error())
	}

	sc.views = make([]vk.ImageView, count)
	for i, image := range sc.images {
		view, err := NewImageView(gpu.Device, image, vk.ImageViewType2d, sc.format, vk.ImageAspectColorBit, 0, 1, 1)
		if err != nil {
			sc.Release()
			return nil, err
		}
		sc.views[i] = view
	}

	log.WithFields(log.Fields{
		"images": count,
		"format": sc.format,
		"extent": fmt.Sprintf("%dx%d", extent.Width, extent.Height),
	}).Info("swapchain created")
	return sc, nil
}

func chooseSurfaceFormat(physical vk.PhysicalDevice, surface vk.Surface) (vk.SurfaceFormat, error) {
	var count uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &count, nil)); err != nil {
		return vk.SurfaceFormat{}, errors.New("vk.GetPhysicalDeviceSurfaceFormats(): " + err.Error())
	}
	if count == 0 {
		return vk.SurfaceFormat{}, errors.New("surface offers no formats")
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(physical, surface, &count, formats)); err != nil {
		return vk.SurfaceFormat{}, errors.New("vk.GetPhysicalDeviceSurfaceFormats(): " + err.Error())
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f, nil
		}
	}
	return formats[0], nil
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Acquire picks the next presentation image, signalling the semaphore
// when it is ready. outOfDate asks the caller to recreate and retry.
func (sc *Swapchain) Acquire(semaphore vk.Semaphore) (index uint32, outOfDate bool, err error) {
	result := vk.AcquireNextImage(sc.device, sc.swapchain, ^uint64(0), semaphore, nil, &index)
	switch result {
	case vk.Success, vk.Suboptimal:
		return index, false, nil
	case vk.ErrorOutOfDate:
		return 0, true, nil
	}
	return 0, false, errors.New("vk.AcquireNextImage(): " + vk.Error(result).Error())
}

// Image returns the swapchain image at index.
func (sc *Swapchain) Image(index uint32) vk.Image { return sc.images[index] }

// View returns the swapchain image view at index.
func (sc *Swapchain) View(index uint32) vk.ImageView { return sc.views[index] }

// Format returns the surface format in use.
func (sc *Swapchain) Format() vk.Format { return sc.format }

// Extent returns the swapchain dimensions.
func (sc *Swapchain) Extent() vk.Extent2D { return sc.extent }

// Handle returns the raw swapchain for present calls.
func (sc *Swapchain) Handle() vk.Swapchain { return sc.swapchain }

// Release destroys the views and the swapchain. Device must be idle or
// the caller must have retired all uses through the release queues.
func (sc *Swapchain) Release() {
	for _, view := range sc.views {
		if view != nil {
			vk.DestroyImageView(sc.device, view, nil)
		}
	}
	sc.views = nil
	if sc.swapchain != nil {
		vk.DestroySwapchain(sc.device, sc.swapchain, nil)
		sc.swapchain = nil
	}
}
