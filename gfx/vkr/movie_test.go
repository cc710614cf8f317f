package vkr

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/danielchristiancazares/freespace2/gfx"
)

func TestMoviePushConstantSize(t *testing.T) {
	if size := unsafe.Sizeof(moviePushConstants{}); size != moviePushConstantSize {
		t.Fatalf("push constants are %d bytes, shaders expect %d", size, moviePushConstantSize)
	}
}

func TestYcbcrConfigIndex(t *testing.T) {
	cases := []struct {
		cs   gfx.MovieColorSpace
		rng  gfx.MovieColorRange
		want int
	}{
		{gfx.MovieColorSpaceBT601, gfx.MovieRangeNarrow, 0},
		{gfx.MovieColorSpaceBT601, gfx.MovieRangeFull, 1},
		{gfx.MovieColorSpaceBT709, gfx.MovieRangeNarrow, 2},
		{gfx.MovieColorSpaceBT709, gfx.MovieRangeFull, 3},
	}
	seen := map[int]bool{}
	for _, tc := range cases {
		got := ycbcrConfigIndex(tc.cs, tc.rng)
		if got != tc.want {
			t.Errorf("index(%d,%d) = %d, want %d", tc.cs, tc.rng, got, tc.want)
		}
		if seen[got] {
			t.Errorf("index %d assigned twice", got)
		}
		seen[got] = true
	}
	if len(seen) != movieConfigCount {
		t.Errorf("%d distinct configs, want %d", len(seen), movieConfigCount)
	}
}

func TestMovieUploadLayout(t *testing.T) {
	// 1280x720: strides already aligned, planes packed back to back.
	l := movieUploadLayout(1280, 720)
	if l.yStride != 1280 || l.cStride != 640 {
		t.Errorf("strides %d/%d", l.yStride, l.cStride)
	}
	if l.cbOffset != 1280*720 || l.crOffset != 1280*720+640*360 {
		t.Errorf("chroma offsets %d/%d", l.cbOffset, l.crOffset)
	}
	if l.totalSize != 1280*720+2*640*360 {
		t.Errorf("total %d", l.totalSize)
	}
}

func TestMovieUploadLayoutPadsOddStrides(t *testing.T) {
	// 406 wide: chroma rows are 203 bytes, padded to 204.
	l := movieUploadLayout(406, 304)
	if l.yStride != 408 {
		t.Errorf("y stride %d, want padded to 408", l.yStride)
	}
	if l.cStride != 204 {
		t.Errorf("chroma stride %d, want padded to 204", l.cStride)
	}
	for name, offset := range map[string]uint64{"y": l.yOffset, "cb": l.cbOffset, "cr": l.crOffset} {
		if offset%movieRowAlign != 0 {
			t.Errorf("%s plane offset %d not %d-byte aligned", name, offset, movieRowAlign)
		}
	}
}

func TestCopyPlaneRestrides(t *testing.T) {
	// 3 rows of 4 bytes at a source stride of 6, restrided to 4.
	src := []byte{
		1, 2, 3, 4, 0xee, 0xee,
		5, 6, 7, 8, 0xee, 0xee,
		9, 10, 11, 12, 0xee, 0xee,
	}
	dst := make([]byte, 12)
	copyPlane(dst, 4, src, 6, 4, 3)
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if !bytes.Equal(dst, want) {
		t.Errorf("dst = %v", dst)
	}
}

func TestCopyPlaneNegativeStrideFlips(t *testing.T) {
	// Bottom-up source: negative stride reads the last stored row first.
	src := []byte{
		9, 10, 11, 12,
		5, 6, 7, 8,
		1, 2, 3, 4,
	}
	dst := make([]byte, 12)
	copyPlane(dst, 4, src, -4, 4, 3)
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if !bytes.Equal(dst, want) {
		t.Errorf("dst = %v", dst)
	}
}

func TestCreateMovieTextureUnavailable(t *testing.T) {
	mm := &MovieManager{maxTextures: defaultMovieTextures}
	if h := mm.CreateMovieTexture(640, 480, gfx.MovieColorSpaceBT601, gfx.MovieRangeNarrow); h.IsValid() {
		t.Error("create must fail without YCbCr support")
	}
	if mm.Available() {
		t.Error("manager must report unavailable")
	}
}

func TestMovieTextureHandleValidation(t *testing.T) {
	mm := &MovieManager{available: true, maxTextures: 2}
	if _, err := mm.texture(gfx.InvalidMovieHandle); err == nil {
		t.Error("invalid handle accepted")
	}
	if _, err := mm.texture(gfx.MovieHandle(0)); err == nil {
		t.Error("unallocated slot accepted")
	}
}
