package vkr

import (
	"errors"
	"math"
	"unsafe"

	vk "github.com/Eiton/vulkan"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/danielchristiancazares/freespace2/gfx"
)

// Light type values the lighting shader switches on.
const (
	lightTypeDirectional = 0
	lightTypePoint       = 1
	lightTypeTube        = 2
	lightTypeCone        = 3
	lightTypeAmbient     = 4
)

// proxyMeshScale pads light volumes so the faceted proxy geometry never
// clips the lit radius.
const proxyMeshScale = 1.05

// DeferredMatrixUBO matches deferred.vert set=0 binding=0.
type DeferredMatrixUBO struct {
	ModelView mgl32.Mat4
	Proj      mgl32.Mat4
}

// DeferredLightUBO matches the lighting fragment shader set=0 binding=1
// byte for byte under std140: each vec3 row packs its trailing scalar
// into the alignment padding.
type DeferredLightUBO struct {
	DiffuseColor mgl32.Vec3
	ConeAngle    float32

	Dir        mgl32.Vec3
	InnerAngle float32

	ConeDir  mgl32.Vec3
	DualCone uint32

	Scale  mgl32.Vec3
	Radius float32

	Type         int32
	Shadows      uint32
	SourceRadius float32
	_            float32
}

// lightShape tags the DeferredLight variant.
type lightShape int

const (
	shapeFullscreen lightShape = iota
	shapeSphere
	shapeCylinder
)

// DeferredLight is one built lighting draw: a shape tag plus the ring
// offsets of its already-uploaded uniform blocks. Recording dispatches
// on the tag to a per-shape recorder.
type DeferredLight struct {
	shape   lightShape
	ambient bool

	Matrices DeferredMatrixUBO
	Light    DeferredLightUBO

	matrixOffset uint32
	lightOffset  uint32
}

// DeferredDrawContext carries everything the per-light recorders need.
type DeferredDrawContext struct {
	Cmd           vk.CommandBuffer
	Layout        vk.PipelineLayout
	UniformBuffer vk.Buffer

	// AdditivePipeline accumulates light; AmbientPipeline is the
	// blend-disabled variant the first fullscreen draw uses to
	// initialize the undefined target.
	AdditivePipeline vk.Pipeline
	AmbientPipeline  vk.Pipeline

	Meshes *ProxyMeshes
}

func uploadUniform(ring *RingBuffer, p unsafe.Pointer, size uintptr, align uint64) (uint32, error) {
	alloc, ok := ring.Allocate(uint64(size), align)
	if !ok {
		return 0, errors.New("uniform ring exhausted while building lights")
	}
	copy(unsafe.Slice((*byte)(alloc.Ptr), size), unsafe.Slice((*byte)(p), size))
	return uint32(alloc.Offset), nil
}

func (l *DeferredLight) upload(ring *RingBuffer, align uint64) error {
	var err error
	l.matrixOffset, err = uploadUniform(ring, unsafe.Pointer(&l.Matrices), unsafe.Sizeof(l.Matrices), align)
	if err != nil {
		return err
	}
	l.lightOffset, err = uploadUniform(ring, unsafe.Pointer(&l.Light), unsafe.Sizeof(l.Light), align)
	return err
}

func viewDirection(view mgl32.Mat4, dir mgl32.Vec3) mgl32.Vec3 {
	return view.Mul4x1(dir.Vec4(0)).Vec3()
}

// BuildDeferredLights converts the engine light list into tagged draw
// variants and streams their uniform blocks into the frame's ring.
// The synthetic ambient light is always first; it initializes the
// undefined lighting target with blending disabled, so every later
// light can accumulate additively.
func BuildDeferredLights(ring *RingBuffer, view, proj mgl32.Mat4, ambientColor mgl32.Vec3, lights []gfx.Light, align uint64) ([]DeferredLight, error) {
	result := make([]DeferredLight, 0, len(lights)+1)

	ambient := DeferredLight{shape: shapeFullscreen, ambient: true}
	ambient.Matrices.ModelView = mgl32.Ident4()
	ambient.Matrices.Proj = mgl32.Ident4()
	ambient.Light.Type = lightTypeAmbient
	ambient.Light.DiffuseColor = ambientColor
	ambient.Light.Scale = mgl32.Vec3{1, 1, 1}
	if err := ambient.upload(ring, align); err != nil {
		return nil, err
	}
	result = append(result, ambient)

	for i := range lights {
		src := &lights[i]
		l, err := buildLight(ring, view, proj, src, align)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, nil
}

func buildLight(ring *RingBuffer, view, proj mgl32.Mat4, src *gfx.Light, align uint64) (DeferredLight, error) {
	var l DeferredLight
	l.Light.DiffuseColor = mgl32.Vec3{
		src.R * src.Intensity,
		src.G * src.Intensity,
		src.B * src.Intensity,
	}
	l.Light.SourceRadius = src.SourceRadius

	switch src.Type {
	case gfx.LightDirectional:
		l.shape = shapeFullscreen
		l.Matrices.ModelView = mgl32.Ident4()
		l.Matrices.Proj = mgl32.Ident4()
		l.Light.Type = lightTypeDirectional
		l.Light.Dir = viewDirection(view, src.Direction.Mul(-1))
		l.Light.Scale = mgl32.Vec3{1, 1, 1}

	case gfx.LightPoint, gfx.LightCone:
		l.shape = shapeSphere
		radius := float32(math.Max(float64(src.RadiusA), float64(src.RadiusB)))
		model := mgl32.Translate3D(src.Position[0], src.Position[1], src.Position[2])
		l.Matrices.ModelView = view.Mul4(model)
		l.Matrices.Proj = proj
		l.Light.Radius = radius
		scale := radius * proxyMeshScale
		l.Light.Scale = mgl32.Vec3{scale, scale, scale}
		if src.Type == gfx.LightCone {
			l.Light.Type = lightTypeCone
			l.Light.ConeAngle = src.ConeAngle
			l.Light.InnerAngle = src.ConeInnerAngle
			if src.DualCone {
				l.Light.DualCone = 1
			}
			coneDir := viewDirection(view, src.Direction)
			if length := coneDir.Len(); length > 1e-4 {
				l.Light.ConeDir = coneDir.Mul(1 / length)
			}
		} else {
			l.Light.Type = lightTypePoint
		}

	case gfx.LightTube:
		l.shape = shapeCylinder
		// The cylinder proxy extends along -Z from its origin; orient
		// it down the segment and stretch Z to the segment length.
		segment := src.Position.Sub(src.Position2)
		length := segment.Len()
		dir := mgl32.Vec3{0, 0, -1}
		if length > 1e-4 {
			dir = segment.Mul(1 / length)
		}
		rot := mgl32.QuatBetweenVectors(mgl32.Vec3{0, 0, -1}, dir).Mat4()
		model := mgl32.Translate3D(src.Position2[0], src.Position2[1], src.Position2[2]).Mul4(rot)
		l.Matrices.ModelView = view.Mul4(model)
		l.Matrices.Proj = proj
		l.Light.Type = lightTypeTube
		l.Light.Radius = src.RadiusB
		l.Light.Scale = mgl32.Vec3{
			src.RadiusB * proxyMeshScale,
			src.RadiusB * proxyMeshScale,
			length,
		}

	default:
		return l, errors.New("unknown light type")
	}

	return l, l.upload(ring, align)
}

func pushLightDescriptors(ctx *DeferredDrawContext, l *DeferredLight) {
	matrixInfo := []vk.DescriptorBufferInfo{{
		Buffer: ctx.UniformBuffer,
		Offset: vk.DeviceSize(l.matrixOffset),
		Range:  vk.DeviceSize(unsafe.Sizeof(l.Matrices)),
	}}
	lightInfo := []vk.DescriptorBufferInfo{{
		Buffer: ctx.UniformBuffer,
		Offset: vk.DeviceSize(l.lightOffset),
		Range:  vk.DeviceSize(unsafe.Sizeof(l.Light)),
	}}
	writes := []vk.WriteDescriptorSet{
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstBinding:      bindingDeferredMatrixUBO,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo:     matrixInfo,
		},
		{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstBinding:      bindingDeferredLightUBO,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo:     lightInfo,
		},
	}
	vk.CmdPushDescriptorSet(ctx.Cmd, vk.PipelineBindPointGraphics, ctx.Layout, 0, uint32(len(writes)), writes)
}

func recordFullscreen(ctx *DeferredDrawContext, l *DeferredLight) {
	pipeline := ctx.AdditivePipeline
	if l.ambient {
		pipeline = ctx.AmbientPipeline
	}
	vk.CmdBindPipeline(ctx.Cmd, vk.PipelineBindPointGraphics, pipeline)
	pushLightDescriptors(ctx, l)
	vk.CmdBindVertexBuffers(ctx.Cmd, 0, 1, []vk.Buffer{ctx.Meshes.fullscreenVB}, []vk.DeviceSize{0})
	vk.CmdDraw(ctx.Cmd, 3, 1, 0, 0)
}

func recordSphere(ctx *DeferredDrawContext, l *DeferredLight) {
	vk.CmdBindPipeline(ctx.Cmd, vk.PipelineBindPointGraphics, ctx.AdditivePipeline)
	pushLightDescriptors(ctx, l)
	vk.CmdBindVertexBuffers(ctx.Cmd, 0, 1, []vk.Buffer{ctx.Meshes.sphereVB}, []vk.DeviceSize{0})
	vk.CmdBindIndexBuffer(ctx.Cmd, ctx.Meshes.sphereIB, 0, vk.IndexTypeUint32)
	vk.CmdDrawIndexed(ctx.Cmd, ctx.Meshes.sphereIndexCount, 1, 0, 0, 0)
}

func recordCylinder(ctx *DeferredDrawContext, l *DeferredLight) {
	vk.CmdBindPipeline(ctx.Cmd, vk.PipelineBindPointGraphics, ctx.AdditivePipeline)
	pushLightDescriptors(ctx, l)
	vk.CmdBindVertexBuffers(ctx.Cmd, 0, 1, []vk.Buffer{ctx.Meshes.cylinderVB}, []vk.DeviceSize{0})
	vk.CmdBindIndexBuffer(ctx.Cmd, ctx.Meshes.cylinderIB, 0, vk.IndexTypeUint32)
	vk.CmdDrawIndexed(ctx.Cmd, ctx.Meshes.cylinderIndexCount, 1, 0, 0, 0)
}

// RecordDeferredLights replays every built light through its shape
// recorder. Caller has already bound the G-buffer descriptor set.
func RecordDeferredLights(ctx *DeferredDrawContext, lights []DeferredLight) {
	for i := range lights {
		l := &lights[i]
		switch l.shape {
		case shapeFullscreen:
			recordFullscreen(ctx, l)
		case shapeSphere:
			recordSphere(ctx, l)
		case shapeCylinder:
			recordCylinder(ctx, l)
		}
	}
}
