package vkr

import (
	"testing"

	"github.com/danielchristiancazares/freespace2/gfx"
)

func TestEveryShaderTypeHasLayoutContract(t *testing.T) {
	seen := make(map[gfx.ShaderType]bool)
	for st := gfx.ShaderType(0); st < gfx.NumShaderTypes; st++ {
		spec := GetShaderLayoutSpec(st)
		if spec.Type != st {
			t.Errorf("%v: contract indexed wrong, carries type %v", st, spec.Type)
		}
		if seen[spec.Type] {
			t.Errorf("%v: duplicate contract", st)
		}
		seen[spec.Type] = true
	}
	if len(seen) != int(gfx.NumShaderTypes) {
		t.Errorf("contract table covers %d types, want %d", len(seen), int(gfx.NumShaderTypes))
	}
}

func TestLayoutContractAssignments(t *testing.T) {
	for st := gfx.ShaderType(0); st < gfx.NumShaderTypes; st++ {
		spec := GetShaderLayoutSpec(st)
		switch st {
		case gfx.ShaderModel:
			if spec.Layout != LayoutModel || spec.VertexInput != VertexPulling {
				t.Errorf("model shader: layout %v input %v", spec.Layout, spec.VertexInput)
			}
		case gfx.ShaderDeferredLighting:
			if spec.Layout != LayoutDeferred || spec.VertexInput != VertexAttributes {
				t.Errorf("deferred lighting: layout %v input %v", spec.Layout, spec.VertexInput)
			}
		default:
			if spec.Layout != LayoutStandard || spec.VertexInput != VertexAttributes {
				t.Errorf("%v: layout %v input %v, want standard/attributes", st, spec.Layout, spec.VertexInput)
			}
		}
	}
}

func TestVertexPullingOnlyForModel(t *testing.T) {
	for st := gfx.ShaderType(0); st < gfx.NumShaderTypes; st++ {
		if UsesVertexPulling(st) != (st == gfx.ShaderModel) {
			t.Errorf("%v: vertex pulling = %v", st, UsesVertexPulling(st))
		}
	}
}

func TestUnknownShaderTypePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("out-of-range shader type must panic")
		}
	}()
	GetShaderLayoutSpec(gfx.NumShaderTypes)
}
