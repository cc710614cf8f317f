package vkr

import (
	"testing"

	vk "github.com/Eiton/vulkan"

	"github.com/danielchristiancazares/freespace2/gfx"
)

func testSession() *RenderingSession {
	return NewRenderingSession(&RenderTargets{extent: vk.Extent2D{Width: 640, Height: 480}}, nil)
}

func TestBeginFrameSelectsSwapchainAndArmsClears(t *testing.T) {
	s := testSession()
	s.RequestTarget(nil, TargetSelection{Kind: TargetSceneHDR})
	s.RequestDepthClear()
	s.rendered[TargetSelection{Kind: TargetSceneHDR}] = true

	s.BeginFrame(nil)
	if s.Selected() != (TargetSelection{Kind: TargetSwapchain}) {
		t.Errorf("selected %+v after frame begin", s.Selected())
	}
	if s.depthSel != DepthMain {
		t.Error("frame begin must restore the main depth buffer")
	}
	if s.clearOps.Color != actionClear || s.clearOps.Depth != actionClear {
		t.Error("frame begin must arm full clears")
	}
	if len(s.rendered) != 0 {
		t.Error("first-touch tracking survived a frame boundary")
	}
}

func TestRequestTargetSameSelectionKeepsState(t *testing.T) {
	s := testSession()
	sel := TargetSelection{Kind: TargetBloomMip, BloomChain: 1, BloomLevel: 2}
	s.RequestTarget(nil, sel)
	s.RequestClear([4]float32{1, 0, 0, 1})
	s.RequestTarget(nil, sel)
	if s.clearOps.Color != actionClear {
		t.Error("re-selecting the current target disturbed armed clears")
	}
}

func TestTargetSelectionDistinguishesBloomMips(t *testing.T) {
	a := TargetSelection{Kind: TargetBloomMip, BloomChain: 0, BloomLevel: 1}
	b := TargetSelection{Kind: TargetBloomMip, BloomChain: 1, BloomLevel: 1}
	c := TargetSelection{Kind: TargetBloomMip, BloomChain: 0, BloomLevel: 2}
	if a == b || a == c {
		t.Error("bloom mip selections must not collide")
	}
	seen := map[TargetSelection]bool{a: true, b: true, c: true}
	if len(seen) != 3 {
		t.Error("selection map collapsed distinct mips")
	}
}

func TestTargetSelectionDistinguishesBitmapFaces(t *testing.T) {
	a := TargetSelection{Kind: TargetBitmapRTT, Bitmap: gfx.TextureHandle(7), Face: 0}
	b := TargetSelection{Kind: TargetBitmapRTT, Bitmap: gfx.TextureHandle(7), Face: 3}
	if a == b {
		t.Error("cubemap faces of the same bitmap must select independently")
	}
}

func TestLoadOpOneShot(t *testing.T) {
	// Armed clears and first-touch both clear; a loaded pass on a
	// touched attachment loads.
	if loadOpFor(actionClear, false) != vk.AttachmentLoadOpClear {
		t.Error("armed clear ignored")
	}
	if loadOpFor(actionLoad, true) != vk.AttachmentLoadOpClear {
		t.Error("first touch this frame must clear")
	}
	if loadOpFor(actionLoad, false) != vk.AttachmentLoadOpLoad {
		t.Error("resumed pass must load")
	}
	if loadOpFor(actionDontCare, false) != vk.AttachmentLoadOpDontCare {
		t.Error("dont-care discarded")
	}
}

func TestRequestClearReArms(t *testing.T) {
	s := testSession()
	// Simulate the consumption EnsureRendering performs.
	s.clearOps.Color = actionLoad
	s.clearOps.Depth = actionLoad
	s.RequestClear([4]float32{0, 0, 0, 1})
	if s.clearOps.Color != actionClear {
		t.Error("color clear not re-armed")
	}
	if s.clearOps.Depth != actionLoad {
		t.Error("color clear must not arm depth")
	}
	s.RequestDepthClear()
	if s.clearOps.Depth != actionClear || s.clearOps.ClearDepth != 1.0 {
		t.Error("depth clear not re-armed")
	}
}

func TestDepthSelection(t *testing.T) {
	s := testSession()
	if s.depthAttachment() != &s.targets.MainDepth {
		t.Error("default depth must be the scene buffer")
	}
	s.SelectDepth(nil, DepthCockpit)
	if s.depthAttachment() != &s.targets.CockpitDepth {
		t.Error("cockpit depth not selected")
	}
	s.SelectDepth(nil, DepthCockpit) // no-op, pass would survive
	s.SelectDepth(nil, DepthMain)
	if s.depthAttachment() != &s.targets.MainDepth {
		t.Error("main depth not restored")
	}
}

func TestTransitionOutsidePassGuard(t *testing.T) {
	s := testSession()
	s.activePass = true
	defer func() {
		if recover() == nil {
			t.Fatal("layout transition inside an active pass must panic")
		}
	}()
	s.mustBeOutsidePass("test")
}

func TestResolveUnregisteredBitmapFails(t *testing.T) {
	s := testSession()
	s.selected = TargetSelection{Kind: TargetBitmapRTT, Bitmap: gfx.TextureHandle(42)}
	if _, err := s.resolveTarget(nil); err == nil {
		t.Fatal("unregistered bitmap target resolved")
	}
}

func TestResolveSwapchainWithoutImageFails(t *testing.T) {
	s := testSession()
	s.selected = TargetSelection{Kind: TargetSwapchain}
	if _, err := s.resolveTarget(nil); err == nil {
		t.Fatal("swapchain target resolved without an acquired image")
	}
}
