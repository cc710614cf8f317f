package vkr

import (
	"fmt"

	vk "github.com/Eiton/vulkan"

	"github.com/danielchristiancazares/freespace2/gfx"
)

// copyOffsetAlign is Vulkan's required alignment for bufferOffset in
// buffer-image copies of uncompressed color formats.
const copyOffsetAlign = 4

// uploadFormat describes how locked bitmap pixels map onto a device format.
type uploadFormat struct {
	format vk.Format

	// compressed marks block-compressed passthrough data.
	compressed bool
	// blockBytes is the bytes per 4x4 block for compressed formats.
	blockBytes int

	// destBpp is the destination bytes per pixel for linear formats.
	destBpp int
	// expand marks source data that is converted CPU-side to BGRA8.
	expand bool
}

// selectUploadFormat picks the device format for locked bitmap data.
// Compressed formats pass through; 16 and 24 bpp expand to BGRA8.
func selectUploadFormat(bpp int, flags gfx.BitmapFlags) (uploadFormat, error) {
	if flags&gfx.BitmapTexComp != 0 {
		switch {
		case flags&gfx.BitmapDXT1 != 0:
			return uploadFormat{format: vk.FormatBc1RgbaUnormBlock, compressed: true, blockBytes: 8}, nil
		case flags&gfx.BitmapDXT3 != 0:
			return uploadFormat{format: vk.FormatBc2UnormBlock, compressed: true, blockBytes: 16}, nil
		case flags&gfx.BitmapDXT5 != 0:
			return uploadFormat{format: vk.FormatBc3UnormBlock, compressed: true, blockBytes: 16}, nil
		case flags&gfx.BitmapBC7 != 0:
			return uploadFormat{format: vk.FormatBc7UnormBlock, compressed: true, blockBytes: 16}, nil
		default:
			return uploadFormat{}, fmt.Errorf("compressed bitmap with unknown codec flags %#x", flags)
		}
	}
	switch bpp {
	case 8:
		return uploadFormat{format: vk.FormatR8Unorm, destBpp: 1}, nil
	case 16:
		return uploadFormat{format: vk.FormatB8g8r8a8Unorm, destBpp: 4, expand: true}, nil
	case 24:
		return uploadFormat{format: vk.FormatB8g8r8a8Unorm, destBpp: 4, expand: true}, nil
	case 32:
		return uploadFormat{format: vk.FormatB8g8r8a8Unorm, destBpp: 4}, nil
	default:
		return uploadFormat{}, fmt.Errorf("bitmap depth %d has no upload path", bpp)
	}
}

// layerByteSize is the tightly packed byte size of one array layer.
func layerByteSize(f uploadFormat, width, height int) uint64 {
	if f.compressed {
		blocksWide := uint64((width + 3) / 4)
		blocksHigh := uint64((height + 3) / 4)
		return blocksWide * blocksHigh * uint64(f.blockBytes)
	}
	return uint64(width) * uint64(height) * uint64(f.destBpp)
}

// uploadLayout is the staging-buffer plan for one texture: per-layer
// offsets relative to the staging allocation and the total byte size.
type uploadLayout struct {
	layerOffsets []uint64
	totalSize    uint64
}

// computeUploadLayout lays consecutive array layers into staging memory
// with each layer's offset aligned for the copy.
func computeUploadLayout(f uploadFormat, width, height, layers int) uploadLayout {
	layerSize := layerByteSize(f, width, height)
	offsets := make([]uint64, layers)
	var cursor uint64
	for i := 0; i < layers; i++ {
		cursor = alignUp(cursor, copyOffsetAlign)
		offsets[i] = cursor
		cursor += layerSize
	}
	return uploadLayout{layerOffsets: offsets, totalSize: cursor}
}

// expandToBGRA8 converts 16 bpp (5-6-5) or 24 bpp (BGR) source rows into
// the BGRA8 destination. dst must hold width*height*4 bytes.
func expandToBGRA8(dst, src []byte, width, height, srcBpp int) {
	switch srcBpp {
	case 16:
		for i := 0; i < width*height; i++ {
			pixel := uint16(src[i*2]) | uint16(src[i*2+1])<<8
			b := byte(pixel & 0x1f)
			g := byte((pixel >> 5) & 0x3f)
			r := byte((pixel >> 11) & 0x1f)
			dst[i*4+0] = b<<3 | b>>2
			dst[i*4+1] = g<<2 | g>>4
			dst[i*4+2] = r<<3 | r>>2
			dst[i*4+3] = 0xff
		}
	case 24:
		for i := 0; i < width*height; i++ {
			dst[i*4+0] = src[i*3+0]
			dst[i*4+1] = src[i*3+1]
			dst[i*4+2] = src[i*3+2]
			dst[i*4+3] = 0xff
		}
	default:
		panic(fmt.Sprintf("expandToBGRA8 called for %d bpp", srcBpp))
	}
}
