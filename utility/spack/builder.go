package spack

import (
	"bytes"
	"io"
	"sync"

	"github.com/pierrec/lz4"
)

// NewBuilder creates a new Builder. Do not fill the Index in
// the header, it will be overwritten anyway.
func NewBuilder(header Header) *Builder {
	header.Index = nil
	return &Builder{header: header}
}

type pendingEntry struct {
	name       string
	size       int64
	compressed []byte
}

// Builder assembles a spack archive. Archives are versioned and cannot be
// appended to; the Builder is the only way to create one. Add compresses
// immediately, WriteTo lays out the prologue, header and entry blobs.
type Builder struct {
	header Header

	mutex   sync.Mutex
	entries []pendingEntry
}

// Add appends data to the builder under the given name. Blocks until lz4
// finishes compression. Safe to call concurrently from different goroutines.
func (b *Builder) Add(name string, data io.Reader) error {
	var compressed bytes.Buffer
	writer := lz4.NewWriter(&compressed)
	written, err := io.Copy(writer, data)
	if err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.entries = append(b.entries, pendingEntry{
		name:       name,
		size:       written,
		compressed: compressed.Bytes(),
	})
	return nil
}

// WriteTo bundles everything added to the Builder into an archive that is
// ready to open. The builder is drained afterwards.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	// Offsets depend on the header size, which depends on the index, which
	// contains the offsets. Encode once with zero offsets to learn the
	// size, then encode again with the real values; varint-free gob keeps
	// string and struct overhead identical between the two passes as long
	// as the offset numbers stay in the same byte class, so reserve wide.
	header := b.header
	for _, e := range b.entries {
		header.Index = append(header.Index, IndexEntry{
			Name:           e.name,
			Size:           e.size,
			CompressedSize: int64(len(e.compressed)),
		})
	}
	probe, err := gobEncode(header)
	if err != nil {
		return 0, err
	}

	// Fixed slack covers gob growing when offsets go from 0 to real values.
	dataStart := int64(MagicLength+HeaderSizeNumberLength) + int64(len(probe)) + int64(16*len(header.Index)) + 64

	offset := dataStart
	for i := range header.Index {
		header.Index[i].Offset = offset
		offset += header.Index[i].CompressedSize
	}

	rawHeader, err := gobEncode(header)
	if err != nil {
		return 0, err
	}
	if pad := dataStart - int64(MagicLength+HeaderSizeNumberLength) - int64(len(rawHeader)); pad < 0 {
		return 0, ErrFileFormat
	}

	var total int64
	n, err := w.Write(magic[:])
	total += int64(n)
	if err != nil {
		return total, err
	}
	n, err = w.Write(int64ToBinary(int64(len(rawHeader))))
	total += int64(n)
	if err != nil {
		return total, err
	}
	n, err = w.Write(rawHeader)
	total += int64(n)
	if err != nil {
		return total, err
	}

	padding := make([]byte, dataStart-total)
	n, err = w.Write(padding)
	total += int64(n)
	if err != nil {
		return total, err
	}

	for _, e := range b.entries {
		n, err = w.Write(e.compressed)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	b.entries = b.entries[:0]
	return total, nil
}
