// Package spack is an lz4-backed archive format for shader binaries and
// other renderer support blobs (SPIR-V modules, the persisted pipeline
// cache). The archive itself is not compressed; every entry is compressed
// individually, so any entry can be located from the index and decompressed
// on the fly without touching its neighbours. Space efficiency is secondary
// to getting blobs from disk to a usable state fast. Archives can be read
// from concurrently.
package spack

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
)

// package errors
var (
	ErrFileFormat = errors.New("corrupted or not a spack archive")
	ErrNotFound   = errors.New("no entry with that name in the archive")
)

// Sizes relevant to the fixed file prologue.
const (
	MagicLength            = 4
	HeaderSizeNumberLength = 16
)

var magic = [MagicLength]byte{'S', 'P', 'K', '\x00'}

// IndexEntry is info for one entry in the archive index. Offset is
// absolute within the archive file.
type IndexEntry struct {
	Name           string
	Offset         int64
	Size           int64
	CompressedSize int64
}

// Header is the archive header, gob-encoded right after the prologue.
type Header struct {
	Author      string
	DateCreated int64
	Version     int64
	Index       []IndexEntry
}

func int64ToBinary(num int64) []byte {
	numBytes := make([]byte, HeaderSizeNumberLength)
	binary.PutVarint(numBytes, num)
	return numBytes
}

func binaryToInt64(bts []byte) (int64, error) {
	num, err := binary.ReadVarint(bytes.NewReader(bts))
	if err != nil {
		return 0, err
	}
	return num, nil
}

func gobEncode(data interface{}) ([]byte, error) {
	var encoded bytes.Buffer
	enc := gob.NewEncoder(&encoded)
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	return encoded.Bytes(), nil
}

func gobDecode(obj interface{}, bts []byte) error {
	return gob.NewDecoder(bytes.NewBuffer(bts)).Decode(obj)
}
