package vkr

import (
	"testing"
	"time"

	vk "github.com/Eiton/vulkan"

	"github.com/danielchristiancazares/freespace2/gfx"
)

type fakeUniformStorage struct {
	data     []byte
	released bool
}

func (f *fakeUniformStorage) buffer() vk.Buffer { return nil }
func (f *fakeUniformStorage) bytes() []byte     { return f.data }
func (f *fakeUniformStorage) release()          { f.released = true }

func testUniformManager(segmentSize, alignment uint64, hooks FenceHooks) (*UniformBufferManager, *[]*fakeUniformStorage) {
	created := &[]*fakeUniformStorage{}
	u := &UniformBufferManager{
		alignment:   alignment,
		segmentSize: segmentSize,
		hooks:       hooks,
		create: func(size uint64) (uniformStorage, error) {
			fs := &fakeUniformStorage{data: make([]byte, size)}
			*created = append(*created, fs)
			return fs, nil
		},
	}
	if err := u.allocateStorage(); err != nil {
		panic(err)
	}
	return u, created
}

func TestUniformOffsetsMonotonic(t *testing.T) {
	u, _ := testUniformManager(65536, 256, FenceHooks{})

	var prev UniformAlloc
	for i := 0; i < 10; i++ {
		alloc, err := u.Get(gfx.UniformGenericData, 4, 0)
		if err != nil {
			t.Fatal(err)
		}
		if i > 0 && uint64(alloc.Offset) < uint64(prev.Offset)+uint64(len(prev.Shadow)) {
			t.Errorf("allocation %d at %d overlaps previous [%d,%d)", i, alloc.Offset, prev.Offset, uint64(prev.Offset)+uint64(len(prev.Shadow)))
		}
		prev = alloc
	}
}

func TestUniformSegmentsCoexist(t *testing.T) {
	u, created := testUniformManager(4096, 1, FenceHooks{})

	type span struct{ start, end uint64 }
	var spans []span
	for frame := 0; frame < 3; frame++ {
		alloc, err := u.Get(gfx.UniformGenericData, 125, 16) // 2000 bytes
		if err != nil {
			t.Fatal(err)
		}
		spans = append(spans, span{uint64(alloc.Offset), uint64(alloc.Offset) + uint64(len(alloc.Shadow))})
		if err := u.OnFrameEnd(); err != nil {
			t.Fatal(err)
		}
	}
	if len(*created) != 1 {
		t.Fatalf("three 2000-byte frames should fit the initial buffer, %d buffers created", len(*created))
	}
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].start < spans[j].end && spans[j].start < spans[i].end {
				t.Errorf("frames %d and %d overlap: %+v vs %+v", i, j, spans[i], spans[j])
			}
		}
	}
}

func TestUniformFenceGateBlocksAndFails(t *testing.T) {
	var waits int
	hooks := FenceHooks{
		Plant: func() interface{} { return struct{}{} },
		Wait: func(token interface{}, timeout time.Duration) bool {
			waits++
			return false
		},
	}
	u, _ := testUniformManager(4096, 1, hooks)

	// Three frame-ends plant fences on all three segments; the fourth
	// wraps onto a fenced segment that never clears.
	var err error
	for i := 0; i < 4; i++ {
		if err = u.OnFrameEnd(); err != nil {
			break
		}
	}
	if err == nil {
		t.Fatal("expected fatal error from unsignalled segment fence")
	}
	if waits != 10 {
		t.Errorf("waited %d times, want 10", waits)
	}
}

func TestUniformFenceGateClears(t *testing.T) {
	hooks := FenceHooks{
		Plant: func() interface{} { return struct{}{} },
		Wait: func(token interface{}, timeout time.Duration) bool {
			return true
		},
	}
	u, _ := testUniformManager(4096, 1, hooks)

	for i := 0; i < 12; i++ {
		if err := u.OnFrameEnd(); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
}

func TestUniformGrowRetiresWholeBuffer(t *testing.T) {
	u, created := testUniformManager(1024, 1, FenceHooks{})

	first, err := u.Get(gfx.UniformGenericData, 10, 16)
	if err != nil {
		t.Fatal(err)
	}

	// Oversized allocation forces a grow; the old buffer must survive.
	big, err := u.Get(gfx.UniformGenericData, 100, 16) // 1600 bytes
	if err != nil {
		t.Fatal(err)
	}
	if len(*created) != 2 {
		t.Fatalf("grow did not allocate a new buffer, %d buffers", len(*created))
	}
	if (*created)[0].released {
		t.Fatal("grown-away buffer destroyed immediately")
	}
	if u.segmentSize < 1600 {
		t.Errorf("segment size %d after grow, want at least 1600", u.segmentSize)
	}
	_ = first
	_ = big

	// Frame-counted deletion: gone only after uniformRetireFrames frames.
	for i := 0; i < uniformRetireFrames-1; i++ {
		u.OnFrameEnd()
		if (*created)[0].released {
			t.Fatalf("retired buffer deleted after only %d frames", i+1)
		}
	}
	u.OnFrameEnd()
	if !(*created)[0].released {
		t.Error("retired buffer never deleted")
	}
}

func TestUniformCommitWritesMapped(t *testing.T) {
	u, created := testUniformManager(4096, 1, FenceHooks{})

	alloc, err := u.Get(gfx.UniformGenericData, 1, 16)
	if err != nil {
		t.Fatal(err)
	}
	for i := range alloc.Shadow {
		alloc.Shadow[i] = byte(i + 1)
	}
	mapped := (*created)[0].data[alloc.Offset : int(alloc.Offset)+len(alloc.Shadow)]
	for _, b := range mapped {
		if b != 0 {
			t.Fatal("mapped region written before Commit")
		}
	}
	alloc.Commit()
	for i, b := range mapped {
		if b != byte(i+1) {
			t.Fatalf("mapped[%d] = %d after Commit", i, b)
		}
	}
}

func TestUniformHeaderAndStride(t *testing.T) {
	u, _ := testUniformManager(65536, 64, FenceHooks{})

	alloc, err := u.Get(gfx.UniformLights, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if alloc.HeaderSize != 64 {
		t.Errorf("lights header = %d, want 64", alloc.HeaderSize)
	}
	if alloc.Stride%64 != 0 {
		t.Errorf("stride %d not aligned to 64", alloc.Stride)
	}
	want := alloc.HeaderSize + 3*alloc.Stride
	if len(alloc.Shadow) != want {
		t.Errorf("shadow len %d, want %d", len(alloc.Shadow), want)
	}
}
