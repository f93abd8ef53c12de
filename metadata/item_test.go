// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package metadata_test

import (
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-heif/heif/metadata"
)

func TestDecodeItemPayloadDispatchesExif(t *testing.T) {
	c := qt.New(t)

	tiff := buildMinimalTIFF(c, 0x010f, "ACM")
	payload := make([]byte, 4+len(tiff))
	binary.BigEndian.PutUint32(payload, 0)
	copy(payload[4:], tiff)

	tags, err := metadata.DecodeItemPayload(metadata.ExifItemType, "", payload, metadata.Options{})
	c.Assert(err, qt.IsNil)

	ti, ok := tags.EXIF()["Make"]
	c.Assert(ok, qt.IsTrue)
	c.Assert(ti.Value, qt.Equals, "ACM")
}

func TestDecodeItemPayloadDispatchesXMP(t *testing.T) {
	c := qt.New(t)

	tags, err := metadata.DecodeItemPayload(metadata.MimeItemType, metadata.XMPContentType, []byte(xmpPacket), metadata.Options{})
	c.Assert(err, qt.IsNil)
	c.Assert(len(tags.XMP()) > 0, qt.IsTrue)
}

func TestDecodeItemPayloadUnrecognizedMimeContentTypeIsError(t *testing.T) {
	c := qt.New(t)

	_, err := metadata.DecodeItemPayload(metadata.MimeItemType, "application/octet-stream", []byte("x"), metadata.Options{})
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestDecodeItemPayloadUnknownItemTypeIsError(t *testing.T) {
	c := qt.New(t)

	_, err := metadata.DecodeItemPayload("rgan", "", []byte("x"), metadata.Options{})
	c.Assert(err, qt.Not(qt.IsNil))
}
