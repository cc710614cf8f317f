package vkr

import (
	"testing"

	vk "github.com/Eiton/vulkan"

	"github.com/danielchristiancazares/freespace2/gfx"
)

type fakeBuffer struct {
	data     []byte
	released bool
}

func (f *fakeBuffer) get() vk.Buffer { return nil }
func (f *fakeBuffer) bytes() []byte  { return f.data }
func (f *fakeBuffer) release()       { f.released = true }

// testBufferManager swaps the device factory for an in-memory fake and
// drives the submit serial by hand.
func testBufferManager(serial *uint64) (*BufferManager, *[]*fakeBuffer) {
	created := &[]*fakeBuffer{}
	bm := &BufferManager{
		submitSerial: func() uint64 { return *serial },
		create: func(size uint64, btype gfx.BufferType) (deviceBuffer, error) {
			fb := &fakeBuffer{data: make([]byte, size)}
			*created = append(*created, fb)
			return fb, nil
		},
	}
	return bm, created
}

func TestBufferLazyCreation(t *testing.T) {
	serial := uint64(1)
	bm, created := testBufferManager(&serial)

	h := bm.CreateBuffer(gfx.VertexBuffer, gfx.StaticUsage)
	if len(*created) != 0 {
		t.Error("device object created before first update")
	}
	if bm.GetBuffer(h) != nil {
		t.Error("GetBuffer should be nil before first update")
	}
	if err := bm.UpdateBufferData(h, 64, make([]byte, 64)); err != nil {
		t.Fatal(err)
	}
	if len(*created) != 1 {
		t.Errorf("created %d device objects, want 1", len(*created))
	}
	if bm.BufferSize(h) != 64 {
		t.Errorf("size = %d, want 64", bm.BufferSize(h))
	}
}

func TestBufferResizeRetires(t *testing.T) {
	serial := uint64(5)
	bm, created := testBufferManager(&serial)

	h := bm.CreateBuffer(gfx.IndexBuffer, gfx.StaticUsage)
	bm.UpdateBufferData(h, 100, nil)
	first := (*created)[0]

	serial = 8
	bm.UpdateBufferData(h, 200, nil)
	if first.released {
		t.Fatal("old storage destroyed immediately, must defer")
	}

	bm.Collect(7)
	if first.released {
		t.Error("released before completed serial reached retire serial")
	}
	bm.Collect(8)
	if !first.released {
		t.Error("not released once completed serial reached retire serial")
	}
}

func TestBufferSameSizeStaticNoOrphan(t *testing.T) {
	serial := uint64(1)
	bm, created := testBufferManager(&serial)

	h := bm.CreateBuffer(gfx.VertexBuffer, gfx.StaticUsage)
	bm.UpdateBufferData(h, 128, make([]byte, 128))
	bm.UpdateBufferData(h, 128, make([]byte, 128))
	if len(*created) != 1 {
		t.Errorf("static same-size update recreated storage, %d objects", len(*created))
	}
}

func TestBufferStreamingAlwaysOrphans(t *testing.T) {
	serial := uint64(1)
	bm, created := testBufferManager(&serial)

	h := bm.CreateBuffer(gfx.VertexBuffer, gfx.StreamingUsage)
	bm.UpdateBufferData(h, 128, nil)
	bm.UpdateBufferData(h, 128, nil)
	if len(*created) != 2 {
		t.Errorf("streaming same-size update reused storage, %d objects", len(*created))
	}
	if (*created)[0].released {
		t.Error("orphaned storage destroyed immediately")
	}
}

func TestOffsetUpdateNoOps(t *testing.T) {
	serial := uint64(1)
	bm, created := testBufferManager(&serial)

	h := bm.CreateBuffer(gfx.UniformBuffer, gfx.DynamicUsage)
	bm.UpdateBufferData(h, 64, make([]byte, 64))

	if err := bm.UpdateBufferDataOffset(h, 16, 0, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := bm.UpdateBufferDataOffset(h, 16, 8, nil); err != nil {
		t.Fatal(err)
	}
	if len(*created) != 1 {
		t.Error("no-op offset update touched storage")
	}
	for _, b := range (*created)[0].data {
		if b != 0 {
			t.Fatal("no-op offset update wrote data")
		}
	}
}

func TestOffsetUpdateWrites(t *testing.T) {
	serial := uint64(1)
	bm, created := testBufferManager(&serial)

	h := bm.CreateBuffer(gfx.UniformBuffer, gfx.StaticUsage)
	bm.UpdateBufferData(h, 16, nil)

	bm.UpdateBufferDataOffset(h, 4, 3, []byte{7, 8, 9})
	data := (*created)[0].data
	if data[4] != 7 || data[5] != 8 || data[6] != 9 {
		t.Errorf("offset write landed wrong: % x", data)
	}
}

func TestOffsetUpdateGrows(t *testing.T) {
	serial := uint64(1)
	bm, _ := testBufferManager(&serial)

	h := bm.CreateBuffer(gfx.VertexBuffer, gfx.StaticUsage)
	bm.UpdateBufferDataOffset(h, 100, 28, make([]byte, 28))
	if bm.BufferSize(h) < 128 {
		t.Errorf("buffer did not grow for offset update, size %d", bm.BufferSize(h))
	}
}

func TestDeleteBufferDefers(t *testing.T) {
	serial := uint64(3)
	bm, created := testBufferManager(&serial)

	h := bm.CreateBuffer(gfx.VertexBuffer, gfx.StaticUsage)
	bm.UpdateBufferData(h, 32, nil)
	bm.DeleteBuffer(h)

	if (*created)[0].released {
		t.Fatal("DeleteBuffer destroyed storage immediately")
	}
	bm.Collect(3)
	if !(*created)[0].released {
		t.Error("deleted storage not released after collect")
	}

	// The slot is reusable.
	h2 := bm.CreateBuffer(gfx.IndexBuffer, gfx.StaticUsage)
	if h2 != h {
		t.Errorf("freed slot not reused: got %d, want %d", h2, h)
	}
}

func TestResizeSameSizeNoOp(t *testing.T) {
	serial := uint64(1)
	bm, created := testBufferManager(&serial)

	h := bm.CreateBuffer(gfx.VertexBuffer, gfx.StaticUsage)
	bm.ResizeBuffer(h, 256)
	bm.ResizeBuffer(h, 256)
	if len(*created) != 1 {
		t.Errorf("same-size resize recreated storage, %d objects", len(*created))
	}
}

// Synchronous uploads signal no timeline value; only frame submits
// advance the completed serial. A buffer retired while a frame is still
// recording must therefore survive a fenced upload finishing in between.
func TestRetirementSurvivesSynchronousUpload(t *testing.T) {
	pending := uint64(1)
	bm, created := testBufferManager(&pending)

	h := bm.CreateBuffer(gfx.VertexBuffer, gfx.StaticUsage)
	bm.UpdateBufferData(h, 32, nil)
	// Retires at serial 1, the recording frame's.
	bm.DeleteBuffer(h)

	// A fenced upload completes here; the collectible serial is still 0.
	bm.Collect(0)
	if (*created)[0].released {
		t.Fatal("retired buffer freed while its frame was still recording")
	}

	// The frame submits and the GPU signals serial 1.
	pending = 2
	bm.Collect(1)
	if !(*created)[0].released {
		t.Error("retired buffer not freed after its frame completed")
	}
}
