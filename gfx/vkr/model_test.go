package vkr

import (
	"testing"
	"unsafe"
)

func TestModelPushConstantLayout(t *testing.T) {
	if size := unsafe.Sizeof(ModelPushConstants{}); size != modelPushConstantSize {
		t.Fatalf("push constants are %d bytes, pipeline layout declares %d", size, modelPushConstantSize)
	}
	// Must fit the 128-byte maxPushConstantsSize the device contract requires.
	if modelPushConstantSize > 128 {
		t.Fatalf("push constants exceed the guaranteed device limit")
	}
}

func TestModelVertexLayoutMask(t *testing.T) {
	l := NewModelVertexLayout(48)
	if mask := l.attribMask(); mask != 0 {
		t.Errorf("empty layout mask = %#x", mask)
	}

	l.PosOffset = 0
	l.NormalOffset = 12
	l.TexCoordOffset = 24
	want := ModelAttribPosition | ModelAttribNormal | ModelAttribTexCoord
	if mask := l.attribMask(); mask != want {
		t.Errorf("mask = %#x, want %#x", mask, want)
	}

	l.BoneIndicesOffset = 32
	l.BoneWeightsOffset = 40
	l.HasModelID = true
	want |= ModelAttribBoneIndices | ModelAttribBoneWeights | ModelAttribModelID
	if mask := l.attribMask(); mask != want {
		t.Errorf("mask = %#x, want %#x", mask, want)
	}
}

func TestModelAttribBitsDistinct(t *testing.T) {
	bits := []uint32{
		ModelAttribPosition, ModelAttribNormal, ModelAttribTexCoord,
		ModelAttribTangent, ModelAttribBoneIndices, ModelAttribBoneWeights,
		ModelAttribModelID,
	}
	var seen uint32
	for _, b := range bits {
		if seen&b != 0 {
			t.Fatalf("attribute bit %#x overlaps", b)
		}
		seen |= b
	}
	if seen != (1<<len(bits))-1 {
		t.Errorf("attribute bits not contiguous: %#x", seen)
	}
}

func TestNormalizeModelFlags(t *testing.T) {
	// Forward target strips the deferred bit even if the caller set it.
	flags := ModelFlagGlowMap | ModelFlagDeferred
	if got := normalizeModelFlags(flags, 1); got&ModelFlagDeferred != 0 {
		t.Error("single-attachment draw kept the deferred variant")
	}
	// G-buffer target forces it on.
	if got := normalizeModelFlags(ModelFlagGlowMap, gBufferColorCount); got&ModelFlagDeferred == 0 {
		t.Error("G-buffer draw lost the deferred variant")
	}
	// Other bits survive normalization.
	if got := normalizeModelFlags(flags, gBufferColorCount); got&ModelFlagGlowMap == 0 {
		t.Error("normalization dropped unrelated flags")
	}
}

func TestModelDrawRequiresUniform(t *testing.T) {
	mr := &ModelRenderer{}
	err := mr.Draw(nil, AttachmentFormats{}, &ModelDrawCall{})
	if err == nil {
		t.Fatal("draw without a bound uniform block must fail")
	}
}
