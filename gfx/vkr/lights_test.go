package vkr

import (
	"math"
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/danielchristiancazares/freespace2/gfx"
)

// The UBO structs are copied into the uniform ring byte for byte, so
// their Go layout must match the shader's std140 layout exactly.
func TestDeferredUBOSizes(t *testing.T) {
	if size := unsafe.Sizeof(DeferredLightUBO{}); size != 80 {
		t.Fatalf("light UBO is %d bytes, shader expects 80", size)
	}
	if size := unsafe.Sizeof(DeferredMatrixUBO{}); size != 128 {
		t.Fatalf("matrix UBO is %d bytes, shader expects 128", size)
	}
}

func testRing(size int) *RingBuffer {
	backing := make([]byte, size)
	return &RingBuffer{
		mapped:       unsafe.Pointer(&backing[0]),
		size:         uint64(size),
		defaultAlign: 1,
	}
}

func TestAmbientLightAlwaysFirst(t *testing.T) {
	ring := testRing(1 << 16)
	lights := []gfx.Light{
		{Type: gfx.LightPoint, Intensity: 1, RadiusA: 5},
	}
	built, err := BuildDeferredLights(ring, mgl32.Ident4(), mgl32.Ident4(), mgl32.Vec3{0.1, 0.2, 0.3}, lights, 64)
	if err != nil {
		t.Fatal(err)
	}
	if len(built) != 2 {
		t.Fatalf("built %d lights, want ambient + point", len(built))
	}
	first := &built[0]
	if first.shape != shapeFullscreen || !first.ambient {
		t.Error("first variant must be the fullscreen ambient light")
	}
	if first.Light.Type != lightTypeAmbient {
		t.Errorf("ambient type = %d", first.Light.Type)
	}
	if first.Light.DiffuseColor != (mgl32.Vec3{0.1, 0.2, 0.3}) {
		t.Errorf("ambient color = %v", first.Light.DiffuseColor)
	}
}

func TestPointLightSphereVolume(t *testing.T) {
	ring := testRing(1 << 16)
	lights := []gfx.Light{{
		Type:     gfx.LightPoint,
		Position: mgl32.Vec3{1, 2, 3},
		R:        1, G: 0.5, B: 0.25,
		Intensity: 2,
		RadiusA:   4,
		RadiusB:   10,
	}}
	built, err := BuildDeferredLights(ring, mgl32.Ident4(), mgl32.Ident4(), mgl32.Vec3{}, lights, 64)
	if err != nil {
		t.Fatal(err)
	}
	l := &built[1]
	if l.shape != shapeSphere {
		t.Fatal("point light must use the sphere proxy")
	}
	if l.Light.Radius != 10 {
		t.Errorf("radius = %v, want the larger of the two radii", l.Light.Radius)
	}
	want := float32(10 * proxyMeshScale)
	if l.Light.Scale != (mgl32.Vec3{want, want, want}) {
		t.Errorf("scale = %v, want padded radius", l.Light.Scale)
	}
	if l.Light.DiffuseColor != (mgl32.Vec3{2, 1, 0.5}) {
		t.Errorf("color = %v, want intensity-scaled", l.Light.DiffuseColor)
	}
	// Identity view: model-view translation is the light position.
	mv := l.Matrices.ModelView
	if mv.At(0, 3) != 1 || mv.At(1, 3) != 2 || mv.At(2, 3) != 3 {
		t.Errorf("model-view translation = (%v,%v,%v)", mv.At(0, 3), mv.At(1, 3), mv.At(2, 3))
	}
}

func TestTubeLightCylinderVolume(t *testing.T) {
	ring := testRing(1 << 16)
	lights := []gfx.Light{{
		Type:      gfx.LightTube,
		Position:  mgl32.Vec3{0, 0, -8},
		Position2: mgl32.Vec3{0, 0, -2},
		Intensity: 1,
		RadiusB:   3,
	}}
	built, err := BuildDeferredLights(ring, mgl32.Ident4(), mgl32.Ident4(), mgl32.Vec3{}, lights, 64)
	if err != nil {
		t.Fatal(err)
	}
	l := &built[1]
	if l.shape != shapeCylinder {
		t.Fatal("tube light must use the cylinder proxy")
	}
	scale := l.Light.Scale
	if math.Abs(float64(scale.Z()-6)) > 1e-4 {
		t.Errorf("Z scale = %v, want the segment length", scale.Z())
	}
	want := float32(3 * proxyMeshScale)
	if scale.X() != want || scale.Y() != want {
		t.Errorf("radial scale = %v,%v", scale.X(), scale.Y())
	}
	// Origin sits at the segment start.
	mv := l.Matrices.ModelView
	if mv.At(2, 3) != -2 {
		t.Errorf("model-view translation z = %v, want segment start", mv.At(2, 3))
	}
}

func TestDirectionalLightViewSpaceDirection(t *testing.T) {
	ring := testRing(1 << 16)
	// View rotates the world 90 degrees about Y.
	view := mgl32.HomogRotate3DY(float32(math.Pi / 2))
	lights := []gfx.Light{{
		Type:      gfx.LightDirectional,
		Direction: mgl32.Vec3{0, 0, -1},
		Intensity: 1,
	}}
	built, err := BuildDeferredLights(ring, view, mgl32.Ident4(), mgl32.Vec3{}, lights, 64)
	if err != nil {
		t.Fatal(err)
	}
	l := &built[1]
	if l.shape != shapeFullscreen || l.ambient {
		t.Fatal("directional light must be a non-ambient fullscreen draw")
	}
	// Negated then rotated: (0,0,1) about Y -> (1,0,0).
	dir := l.Light.Dir
	if math.Abs(float64(dir.X()-1)) > 1e-5 || math.Abs(float64(dir.Y())) > 1e-5 || math.Abs(float64(dir.Z())) > 1e-5 {
		t.Errorf("view-space dir = %v", dir)
	}
}

func TestConeLightParameters(t *testing.T) {
	ring := testRing(1 << 16)
	lights := []gfx.Light{{
		Type:           gfx.LightCone,
		Position:       mgl32.Vec3{0, 0, 0},
		Direction:      mgl32.Vec3{0, 3, 0}, // unnormalized on purpose
		Intensity:      1,
		RadiusA:        7,
		ConeAngle:      0.8,
		ConeInnerAngle: 0.4,
		DualCone:       true,
	}}
	built, err := BuildDeferredLights(ring, mgl32.Ident4(), mgl32.Ident4(), mgl32.Vec3{}, lights, 64)
	if err != nil {
		t.Fatal(err)
	}
	l := &built[1]
	if l.Light.Type != lightTypeCone {
		t.Fatalf("type = %d", l.Light.Type)
	}
	if l.Light.ConeAngle != 0.8 || l.Light.InnerAngle != 0.4 || l.Light.DualCone != 1 {
		t.Error("cone parameters not carried through")
	}
	if math.Abs(float64(l.Light.ConeDir.Y()-1)) > 1e-5 {
		t.Errorf("cone dir = %v, want normalized +Y", l.Light.ConeDir)
	}
}

func TestLightUploadRespectsAlignment(t *testing.T) {
	ring := testRing(1 << 16)
	built, err := BuildDeferredLights(ring, mgl32.Ident4(), mgl32.Ident4(), mgl32.Vec3{}, []gfx.Light{
		{Type: gfx.LightPoint, Intensity: 1, RadiusA: 1},
	}, 256)
	if err != nil {
		t.Fatal(err)
	}
	for i := range built {
		if built[i].matrixOffset%256 != 0 || built[i].lightOffset%256 != 0 {
			t.Errorf("light %d offsets %d/%d not aligned", i, built[i].matrixOffset, built[i].lightOffset)
		}
	}
}

func TestLightBuildFailsOnExhaustedRing(t *testing.T) {
	ring := testRing(64) // not enough for even the ambient matrices
	_, err := BuildDeferredLights(ring, mgl32.Ident4(), mgl32.Ident4(), mgl32.Vec3{}, nil, 64)
	if err == nil {
		t.Fatal("exhausted ring must fail the build")
	}
}

func TestProxyMeshGeometry(t *testing.T) {
	verts, indices := octahedronMesh()
	if len(verts) != 18 || len(indices) != 24 {
		t.Errorf("octahedron %d verts %d indices", len(verts)/3, len(indices))
	}

	cylVerts, cylIndices := cylinderMesh(cylinderSegments)
	wantVerts := (2*cylinderSegments + 2) * 3
	wantIndices := cylinderSegments * (6 + 3 + 3)
	if len(cylVerts) != wantVerts {
		t.Errorf("cylinder verts = %d, want %d", len(cylVerts), wantVerts)
	}
	if len(cylIndices) != wantIndices {
		t.Errorf("cylinder indices = %d, want %d", len(cylIndices), wantIndices)
	}
	for _, idx := range cylIndices {
		if int(idx) >= len(cylVerts)/3 {
			t.Fatalf("index %d out of range", idx)
		}
	}

	tri := fullscreenTriangle()
	if len(tri) != 9 {
		t.Errorf("fullscreen triangle has %d floats", len(tri))
	}
}
