package vkr

import (
	"testing"

	vk "github.com/Eiton/vulkan"
)

func TestFindDepthFormatPrefersStencilFormats(t *testing.T) {
	both := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit | vk.FormatFeatureSampledImageBit)
	format, err := findDepthFormat(func(f vk.Format) vk.FormatFeatureFlags { return both })
	if err != nil {
		t.Fatal(err)
	}
	if format != vk.FormatD32SfloatS8Uint {
		t.Errorf("got %v, want the first candidate", format)
	}
}

func TestFindDepthFormatSkipsNonSampled(t *testing.T) {
	// D32S8 attaches but cannot be sampled; only D32 qualifies.
	format, err := findDepthFormat(func(f vk.Format) vk.FormatFeatureFlags {
		switch f {
		case vk.FormatD32Sfloat:
			return vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit | vk.FormatFeatureSampledImageBit)
		default:
			return vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if format != vk.FormatD32Sfloat {
		t.Errorf("got %v, want D32Sfloat", format)
	}
}

func TestFindDepthFormatErrorsWithoutBothBits(t *testing.T) {
	// Sampling-only support everywhere must be a hard error, never a
	// silent fallback.
	_, err := findDepthFormat(func(f vk.Format) vk.FormatFeatureFlags {
		return vk.FormatFeatureFlags(vk.FormatFeatureSampledImageBit)
	})
	if err == nil {
		t.Fatal("accepted a depth format that cannot attach")
	}
}

func TestBloomMipExtentHalvesFromHalfRes(t *testing.T) {
	rt := &RenderTargets{extent: vk.Extent2D{Width: 1024, Height: 768}}
	if got := rt.BloomMipExtent(0); got.Width != 512 || got.Height != 384 {
		t.Errorf("mip 0 = %dx%d", got.Width, got.Height)
	}
	if got := rt.BloomMipExtent(3); got.Width != 64 || got.Height != 48 {
		t.Errorf("mip 3 = %dx%d", got.Width, got.Height)
	}
	tiny := &RenderTargets{extent: vk.Extent2D{Width: 4, Height: 4}}
	if got := tiny.BloomMipExtent(3); got.Width != 1 || got.Height != 1 {
		t.Errorf("tiny mip clamped to %dx%d, want 1x1", got.Width, got.Height)
	}
}

func TestMipLevelsFor(t *testing.T) {
	cases := []struct {
		w, h int
		want uint32
	}{
		{1, 1, 1},
		{2, 2, 2},
		{256, 256, 9},
		{512, 256, 10},
	}
	for _, tc := range cases {
		if got := mipLevelsFor(tc.w, tc.h); got != tc.want {
			t.Errorf("mipLevelsFor(%d,%d) = %d, want %d", tc.w, tc.h, got, tc.want)
		}
	}
}
