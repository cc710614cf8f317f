package spack

import (
	"bytes"
	"io"

	"github.com/pierrec/lz4"
)

// Open opens the spack archive in r. It checks the prologue and decodes
// the index; entry data is only read when asked for.
func Open(r io.ReaderAt) (*Archive, error) {
	prologue := make([]byte, MagicLength)
	if num, err := r.ReadAt(prologue, 0); err != nil {
		return nil, err
	} else if num < MagicLength || !bytes.Equal(prologue, magic[:]) {
		return nil, ErrFileFormat
	}

	headerSizeBytes := make([]byte, HeaderSizeNumberLength)
	if num, err := r.ReadAt(headerSizeBytes, MagicLength); err != nil {
		return nil, err
	} else if num < HeaderSizeNumberLength {
		return nil, ErrFileFormat
	}

	headerSize, err := binaryToInt64(headerSizeBytes)
	if err != nil || headerSize <= 0 {
		return nil, ErrFileFormat
	}

	headerBytes := make([]byte, headerSize)
	if num, err := r.ReadAt(headerBytes, MagicLength+HeaderSizeNumberLength); err != nil {
		return nil, err
	} else if int64(num) < headerSize {
		return nil, ErrFileFormat
	}

	var header Header
	if err := gobDecode(&header, headerBytes); err != nil {
		return nil, ErrFileFormat
	}

	index := make(map[string]IndexEntry, len(header.Index))
	for _, e := range header.Index {
		index[e.Name] = e
	}
	return &Archive{reader: r, header: header, index: index}, nil
}

// Archive provides concurrent reads of a spack file.
type Archive struct {
	reader io.ReaderAt
	header Header
	index  map[string]IndexEntry
}

// Header returns the decoded archive header.
func (a *Archive) Header() Header {
	return a.header
}

// Names lists the entries in archive order.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.header.Index))
	for _, e := range a.header.Index {
		names = append(names, e.Name)
	}
	return names
}

// Contains reports whether an entry with that name exists.
func (a *Archive) Contains(name string) bool {
	_, ok := a.index[name]
	return ok
}

// ReadAll returns the decompressed contents of the named entry.
func (a *Archive) ReadAll(name string) ([]byte, error) {
	entry, ok := a.index[name]
	if !ok {
		return nil, ErrNotFound
	}
	reader, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	out := make([]byte, entry.Size)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Open returns a Reader that decompresses the named entry on the fly.
func (a *Archive) Open(name string) (io.Reader, error) {
	entry, ok := a.index[name]
	if !ok {
		return nil, ErrNotFound
	}
	section := io.NewSectionReader(a.reader, entry.Offset, entry.CompressedSize)
	return lz4.NewReader(section), nil
}
