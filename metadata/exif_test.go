// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package metadata_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-heif/heif/metadata"
)

// buildMinimalTIFF builds a little-endian TIFF/IFD0 with a single ASCII tag
// tagID whose value fits inline in the 4-byte value slot.
func buildMinimalTIFF(c *qt.C, tagID uint16, value string) []byte {
	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, binary.LittleEndian, uint16(42))
	binary.Write(&buf, binary.LittleEndian, uint32(8)) // IFD0 offset

	valBytes := append([]byte(value), 0) // NUL terminated
	c.Assert(len(valBytes) <= 4, qt.IsTrue, qt.Commentf("test value must fit inline"))

	binary.Write(&buf, binary.LittleEndian, uint16(1)) // one tag
	binary.Write(&buf, binary.LittleEndian, tagID)
	binary.Write(&buf, binary.LittleEndian, uint16(2)) // ASCII string type
	binary.Write(&buf, binary.LittleEndian, uint32(len(valBytes)))
	var inline [4]byte
	copy(inline[:], valBytes)
	buf.Write(inline[:])
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // no IFD1

	return buf.Bytes()
}

func TestDecodeExifInlineASCIITag(t *testing.T) {
	c := qt.New(t)

	tiff := buildMinimalTIFF(c, 0x010f, "ACM")

	payload := make([]byte, 4+len(tiff))
	binary.BigEndian.PutUint32(payload, 0) // TIFF header starts right after the offset field
	copy(payload[4:], tiff)

	tags, err := metadata.DecodeExif(payload, metadata.Options{})
	c.Assert(err, qt.IsNil)

	ti, ok := tags.EXIF()["Make"]
	c.Assert(ok, qt.IsTrue)
	c.Assert(ti.Value, qt.Equals, "ACM")
}

func TestDecodeExifRespectsTiffOffset(t *testing.T) {
	c := qt.New(t)

	tiff := buildMinimalTIFF(c, 0x0110, "X10")

	padding := []byte{0xde, 0xad, 0xbe, 0xef}
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(len(padding)))
	payload = append(payload, padding...)
	payload = append(payload, tiff...)

	tags, err := metadata.DecodeExif(payload, metadata.Options{})
	c.Assert(err, qt.IsNil)

	ti, ok := tags.EXIF()["Model"]
	c.Assert(ok, qt.IsTrue)
	c.Assert(ti.Value, qt.Equals, "X10")
}

func TestDecodeExifTooShortReturnsError(t *testing.T) {
	c := qt.New(t)

	_, err := metadata.DecodeExif([]byte{0x00, 0x01}, metadata.Options{})
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestDecodeExifTruncatedDoesNotPanic(t *testing.T) {
	c := qt.New(t)

	tiff := buildMinimalTIFF(c, 0x010f, "AB")
	payload := make([]byte, 4+len(tiff))
	binary.BigEndian.PutUint32(payload, 0)
	copy(payload[4:], tiff)

	// Truncate mid-IFD: the decoder's streamReader.stop() panics on a short
	// read, and DecodeExif must recover that into a normal error return
	// instead of letting the panic escape to the caller.
	truncated := payload[:len(payload)-6]

	_, err := metadata.DecodeExif(truncated, metadata.Options{})
	c.Assert(err, qt.Not(qt.IsNil))
}
