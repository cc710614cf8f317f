package vkr

import (
	"errors"
	"math"
	"unsafe"

	vk "github.com/Eiton/vulkan"

	"github.com/danielchristiancazares/freespace2/gfx"
)

// cylinderSegments controls tube-light proxy tessellation. The 1.05
// mesh scale in the light UBO covers the faceting error at this count.
const cylinderSegments = 12

// fullscreenTriangle covers clip space with three vertices, no
// clipping seams. Position-only.
func fullscreenTriangle() []float32 {
	return []float32{
		-1, -1, 0,
		3, -1, 0,
		-1, 3, 0,
	}
}

// octahedronMesh is the sphere-light proxy: a unit octahedron is a
// close enough hull once scaled past the light radius.
func octahedronMesh() ([]float32, []uint32) {
	verts := []float32{
		0, 1, 0,
		0, -1, 0,
		1, 0, 0,
		-1, 0, 0,
		0, 0, 1,
		0, 0, -1,
	}
	indices := []uint32{
		0, 4, 2, 0, 2, 5, 0, 5, 3, 0, 3, 4,
		1, 2, 4, 1, 5, 2, 1, 3, 5, 1, 4, 3,
	}
	return verts, indices
}

// cylinderMesh builds a capped unit cylinder along -Z: rings at z=0 and
// z=-1, radius 1. The tube light's model matrix stretches and orients it.
func cylinderMesh(segments int) ([]float32, []uint32) {
	var verts []float32
	var indices []uint32

	for ring := 0; ring < 2; ring++ {
		z := float32(0)
		if ring == 1 {
			z = -1
		}
		for i := 0; i < segments; i++ {
			angle := 2 * math.Pi * float64(i) / float64(segments)
			verts = append(verts, float32(math.Cos(angle)), float32(math.Sin(angle)), z)
		}
	}
	capTop := uint32(len(verts) / 3)
	verts = append(verts, 0, 0, 0)
	capBot := uint32(len(verts) / 3)
	verts = append(verts, 0, 0, -1)

	seg := uint32(segments)
	for i := uint32(0); i < seg; i++ {
		i0 := i
		i1 := (i + 1) % seg
		i2 := i + seg
		i3 := (i+1)%seg + seg
		indices = append(indices, i0, i2, i1, i1, i2, i3)
	}
	for i := uint32(0); i < seg; i++ {
		indices = append(indices, capTop, (i+1)%seg, i)
	}
	for i := uint32(0); i < seg; i++ {
		indices = append(indices, capBot, i+seg, (i+1)%seg+seg)
	}
	return verts, indices
}

func floatBytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}

func indexBytes(v []uint32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}

// ProxyMeshes holds the static light-volume geometry shared by every
// deferred lighting draw.
type ProxyMeshes struct {
	handles []gfx.BufferHandle

	fullscreenVB vk.Buffer

	sphereVB         vk.Buffer
	sphereIB         vk.Buffer
	sphereIndexCount uint32

	cylinderVB         vk.Buffer
	cylinderIB         vk.Buffer
	cylinderIndexCount uint32
}

func (m *ProxyMeshes) createBuffer(bm *BufferManager, btype gfx.BufferType, data []byte) (vk.Buffer, error) {
	handle := bm.CreateBuffer(btype, gfx.StaticUsage)
	if err := bm.UpdateBufferData(handle, uint64(len(data)), data); err != nil {
		return nil, errors.New("vkr.CreateProxyMeshes: " + err.Error())
	}
	m.handles = append(m.handles, handle)
	return bm.GetBuffer(handle), nil
}

// CreateProxyMeshes uploads the fullscreen triangle, sphere, and
// cylinder proxies through the buffer manager.
func CreateProxyMeshes(bm *BufferManager) (*ProxyMeshes, error) {
	m := &ProxyMeshes{}
	var err error

	if m.fullscreenVB, err = m.createBuffer(bm, gfx.VertexBuffer, floatBytes(fullscreenTriangle())); err != nil {
		return nil, err
	}

	sphereVerts, sphereIndices := octahedronMesh()
	if m.sphereVB, err = m.createBuffer(bm, gfx.VertexBuffer, floatBytes(sphereVerts)); err != nil {
		return nil, err
	}
	if m.sphereIB, err = m.createBuffer(bm, gfx.IndexBuffer, indexBytes(sphereIndices)); err != nil {
		return nil, err
	}
	m.sphereIndexCount = uint32(len(sphereIndices))

	cylVerts, cylIndices := cylinderMesh(cylinderSegments)
	if m.cylinderVB, err = m.createBuffer(bm, gfx.VertexBuffer, floatBytes(cylVerts)); err != nil {
		return nil, err
	}
	if m.cylinderIB, err = m.createBuffer(bm, gfx.IndexBuffer, indexBytes(cylIndices)); err != nil {
		return nil, err
	}
	m.cylinderIndexCount = uint32(len(cylIndices))

	return m, nil
}

// Release deletes the proxy buffers through the buffer manager's
// deferred path.
func (m *ProxyMeshes) Release(bm *BufferManager) {
	for _, h := range m.handles {
		bm.DeleteBuffer(h)
	}
	m.handles = nil
}
