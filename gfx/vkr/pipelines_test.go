package vkr

import (
	"testing"

	vk "github.com/Eiton/vulkan"

	"github.com/danielchristiancazares/freespace2/gfx"
)

func TestVertexLayoutHashDistinguishesLayouts(t *testing.T) {
	a := VertexLayout{Stride: 32, Attributes: []VertexAttribute{
		{Location: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
		{Location: 1, Format: vk.FormatR32g32Sfloat, Offset: 12},
	}}
	b := VertexLayout{Stride: 32, Attributes: []VertexAttribute{
		{Location: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
		{Location: 1, Format: vk.FormatR32g32Sfloat, Offset: 16},
	}}
	if a.Hash() == b.Hash() {
		t.Error("layouts differing only in offset hash equal")
	}
	if a.Hash() != a.Hash() {
		t.Error("hash not deterministic")
	}
}

func TestPipelineKeyComparable(t *testing.T) {
	key := PipelineKey{
		ShaderType:           gfx.ShaderDefaultMaterial,
		ColorAttachmentCount: 1,
		BlendMode:            gfx.BlendAlpha,
		ColorWriteMask:       DefaultColorWriteMask,
	}
	key.ColorFormats[0] = vk.FormatB8g8r8a8Unorm

	other := key
	if key != other {
		t.Error("copied key compares unequal")
	}
	other.ColorFormats[0] = vk.FormatR16g16b16a16Sfloat
	if key == other {
		t.Error("keys with different color formats compare equal")
	}

	cache := map[PipelineKey]int{key: 1, other: 2}
	if len(cache) != 2 {
		t.Error("map did not separate distinct keys")
	}
}

func TestBlendAttachmentModes(t *testing.T) {
	none := blendAttachment(gfx.BlendNone, DefaultColorWriteMask)
	if none.BlendEnable != vk.False {
		t.Error("opaque draws must not blend")
	}
	alpha := blendAttachment(gfx.BlendAlpha, DefaultColorWriteMask)
	if alpha.SrcColorBlendFactor != vk.BlendFactorSrcAlpha || alpha.DstColorBlendFactor != vk.BlendFactorOneMinusSrcAlpha {
		t.Error("alpha blend factors wrong")
	}
	additive := blendAttachment(gfx.BlendAdditive, DefaultColorWriteMask)
	if additive.DstColorBlendFactor != vk.BlendFactorOne {
		t.Error("additive blend must accumulate into the destination")
	}
}

func TestDepthStencilModes(t *testing.T) {
	cases := []struct {
		mode        gfx.ZbufferMode
		test, write vk.Bool32
	}{
		{gfx.ZbufferNone, vk.False, vk.False},
		{gfx.ZbufferRead, vk.True, vk.False},
		{gfx.ZbufferWrite, vk.True, vk.True},
		{gfx.ZbufferFull, vk.True, vk.True},
	}
	for _, tc := range cases {
		state := depthStencilState(tc.mode)
		if state.DepthTestEnable != tc.test || state.DepthWriteEnable != tc.write {
			t.Errorf("mode %d: test %v write %v", tc.mode, state.DepthTestEnable, state.DepthWriteEnable)
		}
	}
	if depthStencilState(gfx.ZbufferWrite).DepthCompareOp != vk.CompareOpAlways {
		t.Error("write-only depth must pass unconditionally")
	}
}

func TestPrimitiveTopologyMapping(t *testing.T) {
	if primitiveTopology(gfx.PrimitiveTriangles) != vk.PrimitiveTopologyTriangleList {
		t.Error("triangles")
	}
	if primitiveTopology(gfx.PrimitiveLineStrip) != vk.PrimitiveTopologyLineStrip {
		t.Error("line strip")
	}
}

func TestDrainAndRetireDefersDestruction(t *testing.T) {
	serial := uint64(4)
	pm := &PipelineManager{
		pipelines:    make(map[PipelineKey]vk.Pipeline),
		submitSerial: func() uint64 { return serial },
	}
	pm.pipelines[PipelineKey{ShaderType: gfx.ShaderDefaultMaterial}] = nil
	pm.pipelines[PipelineKey{ShaderType: gfx.ShaderModel}] = nil

	pm.DrainAndRetire()
	if len(pm.pipelines) != 0 {
		t.Errorf("cache still holds %d pipelines after drain", len(pm.pipelines))
	}
	if pm.releases.Len() != 2 {
		t.Fatalf("release queue holds %d entries, want 2", pm.releases.Len())
	}
	// Drained pipelines gate on the pending submit's serial.
	pm.Collect(serial - 1)
	if pm.releases.Len() != 2 {
		t.Error("retired pipelines collected before their serial completed")
	}
}
