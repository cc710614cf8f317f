package vkr

import (
	"errors"
	"fmt"
	"testing"

	vk "github.com/Eiton/vulkan"
)

func TestMainTargetRouting(t *testing.T) {
	cases := []struct {
		scene, depth bool
		want         TargetKind
	}{
		{false, true, TargetSwapchain},
		{false, false, TargetSwapchainNoDepth},
		{true, true, TargetSceneHDR},
		{true, false, TargetSceneHDRNoDepth},
	}
	for _, tc := range cases {
		if got := mainTargetKind(tc.scene, tc.depth); got != tc.want {
			t.Errorf("mainTargetKind(%v, %v) = %d, want %d", tc.scene, tc.depth, got, tc.want)
		}
	}
}

func TestAttachmentFormatsFor(t *testing.T) {
	swap := vk.FormatB8g8r8a8Unorm
	hdr := vk.FormatR16g16b16a16Sfloat
	depth := vk.FormatD32Sfloat
	var gbuffer [gBufferColorCount]vk.Format
	for i := range gbuffer {
		gbuffer[i] = vk.FormatR8g8b8a8Unorm
	}

	f := attachmentFormatsFor(TargetSwapchain, swap, hdr, depth, gbuffer)
	if f.ColorCount != 1 || f.Color[0] != swap || f.Depth != depth {
		t.Errorf("swapchain signature wrong: %+v", f)
	}

	f = attachmentFormatsFor(TargetSceneHDRNoDepth, swap, hdr, depth, gbuffer)
	if f.Color[0] != hdr || f.Depth != vk.FormatUndefined {
		t.Errorf("HDR-no-depth signature wrong: %+v", f)
	}

	f = attachmentFormatsFor(TargetDeferredGBuffer, swap, hdr, depth, gbuffer)
	if f.ColorCount != gBufferColorCount || f.Depth != depth {
		t.Errorf("G-buffer signature wrong: %+v", f)
	}
	for i := uint32(0); i < f.ColorCount; i++ {
		if f.Color[i] != gbuffer[i] {
			t.Errorf("G-buffer color %d = %d", i, f.Color[i])
		}
	}
}

func TestSetClearColorNormalizes(t *testing.T) {
	r := &Renderer{}
	r.SetClearColor(255, 0, 51)
	if r.clearColor[0] != 1 || r.clearColor[1] != 0 {
		t.Errorf("clear color %v", r.clearColor)
	}
	if got := r.clearColor[2]; got < 0.19 || got > 0.21 {
		t.Errorf("blue channel %v, want 51/255", got)
	}
	if r.clearColor[3] != 1 {
		t.Error("alpha must stay opaque")
	}
}

func TestClampU32(t *testing.T) {
	if clampU32(5, 10, 20) != 10 {
		t.Error("below range")
	}
	if clampU32(25, 10, 20) != 20 {
		t.Error("above range")
	}
	if clampU32(15, 10, 20) != 15 {
		t.Error("in range")
	}
}

func TestFrameSkippedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("flip: %w", ErrFrameSkipped)
	if !errors.Is(wrapped, ErrFrameSkipped) {
		t.Error("wrapped frame skip not recognized by errors.Is")
	}
	if errors.Is(errors.New("vk.QueuePresent(): device lost"), ErrFrameSkipped) {
		t.Error("unrelated error matches the frame-skip sentinel")
	}
}

// Only frame timelines feed the completed serial; with nothing submitted
// it stays zero no matter what synchronous work already finished.
func TestCompletedSerialWithoutSubmits(t *testing.T) {
	r := &Renderer{pendingSerial: 1}
	if got := r.completedSerial(); got != 0 {
		t.Errorf("completed serial = %d before any frame submit, want 0", got)
	}
}
