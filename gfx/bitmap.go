package gfx

// TextureHandle is the engine-side bitmap slot number. The backend maps it
// to an internal record; negative sentinel handles stand in for textures
// that can never be resident.
type TextureHandle int

// Sentinel handles returned by the backend for lookups that cannot produce
// a resident texture. Both resolve to reserved bindless slots, so a draw
// that binds them is valid and samples a well-defined color.
const (
	// FallbackTextureHandle resolves to the reserved fallback slot
	// (samples opaque black).
	FallbackTextureHandle TextureHandle = -1000

	// DefaultTextureHandle resolves to the reserved default-white slot.
	DefaultTextureHandle TextureHandle = -1001
)

// BitmapFlags carry format information with locked pixel data.
type BitmapFlags uint32

const (
	// BitmapAABitmap marks single-channel coverage data (fonts, HUD masks).
	BitmapAABitmap BitmapFlags = 1 << iota

	// BitmapTexComp marks pixel data that is already block compressed.
	BitmapTexComp

	BitmapDXT1
	BitmapDXT3
	BitmapDXT5
	BitmapBC7
)

// BitmapData is one locked frame of bitmap pixels, owned by the bitmap
// manager until the matching Unlock.
type BitmapData struct {
	Pixels []byte
	Width  int
	Height int
	BPP    int
	Flags  BitmapFlags
}

// BitmapSource is the boundary to the engine's bitmap manager. The renderer
// never decodes image files itself; it locks frames here, uploads them, and
// unlocks them.
type BitmapSource interface {

	// Lock pins the bitmap's pixel data in memory at the requested depth.
	Lock(handle TextureHandle, bpp int, flags BitmapFlags) (*BitmapData, error)

	// Unlock releases pixel data pinned by Lock.
	Unlock(handle TextureHandle)

	// BaseFrame resolves an animation frame handle to the animation's base
	// handle and reports the frame count (1 for plain bitmaps).
	BaseFrame(handle TextureHandle) (base TextureHandle, numFrames int)

	// IsTextureArray reports whether every frame of the animation shares
	// the base frame's dimensions and format, which is required to upload
	// the animation as one array texture.
	IsTextureArray(handle TextureHandle) bool
}
