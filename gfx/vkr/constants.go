package vkr

// Frame scheduling.
const (
	// framesInFlight is how many frames may be recorded or executing at
	// once. Two keeps the CPU one frame ahead of the GPU.
	framesInFlight = 2

	// uniformRetireFrames is how many frames a retired uniform buffer is
	// kept before deletion. Covers framesInFlight plus a safety margin,
	// and does not depend on fences: one backend stubs the sync fence.
	uniformRetireFrames = 3
)

// Per-frame ring sizes.
const (
	uniformRingSize = 512 << 10
	vertexRingSize  = 1 << 20
	stagingRingSize = 12 << 20
)

// Bindless slot table.
const (
	// MaxBindlessTextures is the size of the combined-image-sampler array
	// in the model layout. The device contract guarantees this fits.
	MaxBindlessTextures = 1024

	// Reserved slots. Slot 0 is the fallback, sampling opaque black, and
	// is valid in every shader that reads the bindless array.
	slotFallback      = 0
	slotDefaultWhite  = 1
	slotDefaultNormal = 2
	slotDefaultSpec   = 3
	firstDynamicSlot  = 4
)

// Uniform streaming.
const (
	uniformSegmentCount = 3
	uniformInitialSize  = 4096
)
