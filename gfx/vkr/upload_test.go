package vkr

import (
	"testing"

	vk "github.com/Eiton/vulkan"

	"github.com/danielchristiancazares/freespace2/gfx"
)

func TestSelectUploadFormat(t *testing.T) {
	cases := []struct {
		name       string
		bpp        int
		flags      gfx.BitmapFlags
		format     vk.Format
		compressed bool
		blockBytes int
	}{
		{"dxt1", 0, gfx.BitmapTexComp | gfx.BitmapDXT1, vk.FormatBc1RgbaUnormBlock, true, 8},
		{"dxt3", 0, gfx.BitmapTexComp | gfx.BitmapDXT3, vk.FormatBc2UnormBlock, true, 16},
		{"dxt5", 0, gfx.BitmapTexComp | gfx.BitmapDXT5, vk.FormatBc3UnormBlock, true, 16},
		{"bc7", 0, gfx.BitmapTexComp | gfx.BitmapBC7, vk.FormatBc7UnormBlock, true, 16},
		{"aabitmap", 8, gfx.BitmapAABitmap, vk.FormatR8Unorm, false, 0},
		{"565", 16, 0, vk.FormatB8g8r8a8Unorm, false, 0},
		{"bgr", 24, 0, vk.FormatB8g8r8a8Unorm, false, 0},
		{"bgra", 32, 0, vk.FormatB8g8r8a8Unorm, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := selectUploadFormat(tc.bpp, tc.flags)
			if err != nil {
				t.Fatal(err)
			}
			if f.format != tc.format {
				t.Errorf("format = %v, want %v", f.format, tc.format)
			}
			if f.compressed != tc.compressed || f.blockBytes != tc.blockBytes {
				t.Errorf("compressed=%v blockBytes=%d", f.compressed, f.blockBytes)
			}
		})
	}

	if _, err := selectUploadFormat(0, gfx.BitmapTexComp); err == nil {
		t.Error("compressed with no codec flag should fail")
	}
	if _, err := selectUploadFormat(13, 0); err == nil {
		t.Error("odd depth should fail")
	}
}

func TestLayerByteSize(t *testing.T) {
	bc1, _ := selectUploadFormat(0, gfx.BitmapTexComp|gfx.BitmapDXT1)
	// 6x6 rounds up to 2x2 blocks of 8 bytes.
	if got := layerByteSize(bc1, 6, 6); got != 32 {
		t.Errorf("bc1 6x6 = %d, want 32", got)
	}
	bc7, _ := selectUploadFormat(0, gfx.BitmapTexComp|gfx.BitmapBC7)
	if got := layerByteSize(bc7, 64, 64); got != 16*16*16 {
		t.Errorf("bc7 64x64 = %d", got)
	}
	linear, _ := selectUploadFormat(32, 0)
	if got := layerByteSize(linear, 100, 50); got != 100*50*4 {
		t.Errorf("bgra 100x50 = %d", got)
	}
}

func TestComputeUploadLayoutAlignment(t *testing.T) {
	// R8, 5x3 = 15 bytes per layer: offsets must land on 4-byte bounds.
	r8, _ := selectUploadFormat(8, gfx.BitmapAABitmap)
	layout := computeUploadLayout(r8, 5, 3, 4)
	if len(layout.layerOffsets) != 4 {
		t.Fatalf("layer count %d", len(layout.layerOffsets))
	}
	for i, off := range layout.layerOffsets {
		if off%4 != 0 {
			t.Errorf("layer %d offset %d not 4-byte aligned", i, off)
		}
		if i > 0 && off < layout.layerOffsets[i-1]+15 {
			t.Errorf("layer %d overlaps previous", i)
		}
	}
	if layout.totalSize < 3*16+15 {
		t.Errorf("total %d too small", layout.totalSize)
	}
}

func TestExpandToBGRA8(t *testing.T) {
	// Pure red in 5-6-5 is 0xF800.
	src := []byte{0x00, 0xf8}
	dst := make([]byte, 4)
	expandToBGRA8(dst, src, 1, 1, 16)
	if dst[0] != 0 || dst[1] != 0 || dst[2] != 0xff || dst[3] != 0xff {
		t.Errorf("565 red = % x", dst)
	}

	src = []byte{10, 20, 30}
	expandToBGRA8(dst, src, 1, 1, 24)
	if dst[0] != 10 || dst[1] != 20 || dst[2] != 30 || dst[3] != 0xff {
		t.Errorf("bgr = % x", dst)
	}
}
