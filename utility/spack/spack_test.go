package spack_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/danielchristiancazares/freespace2/utility/spack"
)

var (
	testBlob1 = []byte("#version 450 layout(location = 0) out vec4 fragColor;")
	testBlob2 = bytes.Repeat([]byte{0x03, 0x02, 0x23, 0x07}, 512)
)

func buildArchive(t *testing.T) *bytes.Buffer {
	t.Helper()
	builder := spack.NewBuilder(spack.Header{
		Author:      "fs2",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	if err := builder.Add("model.frag.spv", bytes.NewReader(testBlob1)); err != nil {
		t.Fatal(err)
	}
	if err := builder.Add("model.vert.spv", bytes.NewReader(testBlob2)); err != nil {
		t.Fatal(err)
	}
	buf := bytes.NewBuffer([]byte{})
	if written, err := builder.WriteTo(buf); err != nil {
		t.Fatal(err)
	} else if written != int64(buf.Len()) {
		t.Errorf("WriteTo reported %d bytes, wrote %d", written, buf.Len())
	}
	return buf
}

func TestCreateAndReadAll(t *testing.T) {
	buf := buildArchive(t)

	ar, err := spack.Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	got, err := ar.ReadAll("model.frag.spv")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, testBlob1) {
		t.Error("first entry does not round-trip")
	}

	got, err = ar.ReadAll("model.vert.spv")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, testBlob2) {
		t.Error("second entry does not round-trip")
	}
}

func TestOpenStream(t *testing.T) {
	buf := buildArchive(t)

	ar, err := spack.Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	f, err := ar.Open("model.vert.spv")
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if _, err := out.ReadFrom(f); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), testBlob2) {
		t.Error("streamed entry does not round-trip")
	}
}

func TestMissingEntry(t *testing.T) {
	buf := buildArchive(t)

	ar, err := spack.Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if ar.Contains("nope.spv") {
		t.Error("Contains reports a missing entry")
	}
	if _, err := ar.ReadAll("nope.spv"); err != spack.ErrNotFound {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestNotAnArchive(t *testing.T) {
	if _, err := spack.Open(bytes.NewReader([]byte("GIF89a not a spack file"))); err != spack.ErrFileFormat {
		t.Errorf("want ErrFileFormat, got %v", err)
	}
}
