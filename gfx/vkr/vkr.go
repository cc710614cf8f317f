// Package vkr implements the Vulkan rendering backend: GPU resource
// ownership (buffers, textures, pipelines, descriptors), per-frame command
// recording and submission against the swapchain, a deferred-lighting
// pipeline and the post-processing chain, plus the bindless texture path
// for model rendering and YCbCr frame presentation for cutscenes.
//
// The package is single-threaded by contract: every method that touches
// the device must be called from the render thread.
package vkr

import (
	"fmt"

	vk "github.com/Eiton/vulkan"
)

// NewBuffer creates, configures, allocates and binds a new buffer.
func NewBuffer(dev vk.Device, size uint64, usage vk.BufferUsageFlagBits, props vk.MemoryPropertyFlagBits, ma *MemoryAllocator) (Buffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(dev, &createInfo, nil, &buffer)); err != nil {
		return Buffer{}, fmt.Errorf("vk.CreateBuffer(): %s", err.Error())
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev, buffer, &req)

	memory, err := ma.Malloc(req, props)
	if err != nil {
		vk.DestroyBuffer(dev, buffer, nil)
		return Buffer{}, err
	}

	vk.BindBufferMemory(dev, buffer, memory.Get(), vk.DeviceSize(memory.Offset()))

	return Buffer{
		device: dev,
		buffer: buffer,
		size:   size,
		memory: memory,
	}, nil
}

// Buffer implements a generic vulkan buffer.
type Buffer struct {
	device vk.Device
	buffer vk.Buffer
	size   uint64

	memory Memory
}

// Mem returns the Memory that the buffer is based on.
func (b *Buffer) Mem() *Memory {
	return &b.memory
}

// Get returns the vulkan Buffer handle.
func (b *Buffer) Get() vk.Buffer {
	return b.buffer
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return b.size
}

// Release destroys the buffer and memory asociated with it.
func (b *Buffer) Release() {
	vk.DestroyBuffer(b.device, b.buffer, nil)
	b.memory.Release()
}

// ImageOptions configure NewImage beyond the plain 2D defaults.
type ImageOptions struct {
	Format    vk.Format
	MipLevels uint32
	Layers    uint32
	Usage     vk.ImageUsageFlagBits
	Samples   vk.SampleCountFlagBits
	Cube      bool
}

// NewImage creates a new optimally-tiled device-local vulkan image.
func NewImage(dev vk.Device, width, height uint32, opts ImageOptions, ma *MemoryAllocator) (Image, error) {
	if opts.MipLevels == 0 {
		opts.MipLevels = 1
	}
	if opts.Layers == 0 {
		opts.Layers = 1
	}
	if opts.Samples == 0 {
		opts.Samples = vk.SampleCount1Bit
	}
	var flags vk.ImageCreateFlags
	if opts.Cube {
		flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     opts.MipLevels,
		ArrayLayers:   opts.Layers,
		Format:        opts.Format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(opts.Usage),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       opts.Samples,
	}

	var image vk.Image
	if err := vk.Error(vk.CreateImage(dev, &createInfo, nil, &image)); err != nil {
		return Image{}, fmt.Errorf("vk.CreateImage(): %s", err.Error())
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, image, &req)

	memory, err := ma.Malloc(req, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(dev, image, nil)
		return Image{}, err
	}
	vk.BindImageMemory(dev, image, memory.Get(), vk.DeviceSize(memory.Offset()))

	return Image{
		device: dev,
		image:  image,
		memory: memory,
		format: opts.Format,
		width:  width,
		height: height,
		layers: opts.Layers,
		mips:   opts.MipLevels,
	}, nil
}

// Image implements and abstracts the vulkan image primitive.
type Image struct {
	device vk.Device
	image  vk.Image
	memory Memory

	format        vk.Format
	width, height uint32
	layers, mips  uint32
}

// Mem returns the underlying memory of the Image.
func (i *Image) Mem() *Memory {
	return &i.memory
}

// Get returns the vulkan Image handle.
func (i *Image) Get() vk.Image {
	return i.image
}

// Format returns the image format.
func (i *Image) Format() vk.Format {
	return i.format
}

// Extent returns the base-level dimensions.
func (i *Image) Extent() (uint32, uint32) {
	return i.width, i.height
}

// Layers returns the array layer count.
func (i *Image) Layers() uint32 {
	return i.layers
}

// MipLevels returns the mip level count.
func (i *Image) MipLevels() uint32 {
	return i.mips
}

// Release destroys the image and the memory asociated with it.
func (i *Image) Release() {
	vk.DestroyImage(i.device, i.image, nil)
	i.memory.Release()
}

// NewImageView creates a view covering the given subresource range of img.
func NewImageView(dev vk.Device, img vk.Image, viewType vk.ImageViewType, format vk.Format, aspect vk.ImageAspectFlagBits, baseLayer, layers, mips uint32) (vk.ImageView, error) {
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: viewType,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspect),
			BaseMipLevel:   0,
			LevelCount:     mips,
			BaseArrayLayer: baseLayer,
			LayerCount:     layers,
		},
	}
	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(dev, &createInfo, nil, &view)); err != nil {
		return nil, fmt.Errorf("vk.CreateImageView(): %s", err.Error())
	}
	return view, nil
}
