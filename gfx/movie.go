package gfx

// MovieHandle identifies a movie texture set owned by the backend.
// The zero value is not valid; InvalidMovieHandle marks failure.
type MovieHandle int

// InvalidMovieHandle is returned when a movie texture cannot be created,
// for example when the device lacks YCbCr sampler conversion support.
const InvalidMovieHandle MovieHandle = -1

// IsValid reports whether the handle refers to a live movie texture.
func (h MovieHandle) IsValid() bool {
	return h >= 0
}

// MovieColorSpace selects the YCbCr matrix used to convert decoded planes.
type MovieColorSpace int

const (
	MovieColorSpaceBT601 MovieColorSpace = iota
	MovieColorSpaceBT709
)

// MovieColorRange selects narrow (studio swing) or full range quantization.
type MovieColorRange int

const (
	MovieRangeNarrow MovieColorRange = iota
	MovieRangeFull
)

// MovieFrame is one decoded tri-planar YCbCr frame. Chroma planes are
// subsampled 2x2 (4:2:0); strides are in bytes.
type MovieFrame struct {
	Y, Cb, Cr                   []byte
	YStride, CbStride, CrStride int
}
