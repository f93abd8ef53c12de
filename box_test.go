// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package heif

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"

	qt "github.com/frankban/quicktest"

	"github.com/go-heif/heif/bitio"
)

func TestFtypRoundTrip(t *testing.T) {
	c := qt.New(t)

	ctx := NewContext()
	orig := &ftypBox{
		MajorBrand:       bitio.NewFourCC("heic"),
		MinorVersion:     0,
		CompatibleBrands: []bitio.FourCC{bitio.NewFourCC("mif1"), bitio.NewFourCC("heic")},
	}

	w := bitio.NewWriter()
	c.Assert(writeBox(ctx, w, orig), qt.IsNil)

	r := bitio.NewReader(bytes.NewReader(w.Bytes()))
	b, hdr, err := parseBox(ctx, r)
	c.Assert(err, qt.IsNil)
	c.Assert(hdr.Type, qt.Equals, bitio.NewFourCC("ftyp"))

	got, ok := b.(*ftypBox)
	c.Assert(ok, qt.IsTrue)
	c.Assert(got.MajorBrand, qt.Equals, orig.MajorBrand)
	c.Assert(got.CompatibleBrands, qt.DeepEquals, orig.CompatibleBrands)
	c.Assert(got.hasBrand("mif1"), qt.IsTrue)
	c.Assert(got.hasBrand("avif"), qt.IsFalse)
	c.Assert(got.hasAnyReadableBrand(), qt.IsTrue)
}

func TestUUIDBoxRoundTripPreservesExtendedType(t *testing.T) {
	c := qt.New(t)

	ctx := NewContext()
	extType := uuid.New()
	payload := []byte("vendor-specific payload")

	w := bitio.NewWriter()
	w.WriteU32(uint32(8 + 16 + len(payload)))
	w.WriteFourCC(bitio.NewFourCC("uuid"))
	w.WriteBytes(extType[:])
	w.WriteBytes(payload)

	r := bitio.NewReader(bytes.NewReader(w.Bytes()))
	b, hdr, err := parseBox(ctx, r)
	c.Assert(err, qt.IsNil)
	c.Assert(hdr.Type, qt.Equals, bitio.NewFourCC("uuid"))
	c.Assert(hdr.UUID, qt.Equals, extType)

	raw, ok := b.(*rawBox)
	c.Assert(ok, qt.IsTrue)
	c.Assert(raw.payload, qt.DeepEquals, payload)
	c.Assert(raw.extendedType(), qt.Equals, extType)

	out := bitio.NewWriter()
	c.Assert(writeBox(ctx, out, raw), qt.IsNil)
	c.Assert(out.Bytes(), qt.DeepEquals, w.Bytes())
}

func TestParseBoxUnknownTypeBecomesRawBox(t *testing.T) {
	c := qt.New(t)

	ctx := NewContext()

	var buf bytes.Buffer
	payload := []byte("hello box")
	size := uint32(8 + len(payload))
	w := bitio.NewWriter()
	w.WriteU32(size)
	w.WriteFourCC(bitio.NewFourCC("xxxx"))
	w.WriteBytes(payload)
	buf.Write(w.Bytes())

	r := bitio.NewReader(bytes.NewReader(buf.Bytes()))
	b, hdr, err := parseBox(ctx, r)
	c.Assert(err, qt.IsNil)
	c.Assert(hdr.Type, qt.Equals, bitio.NewFourCC("xxxx"))

	raw, ok := b.(*rawBox)
	c.Assert(ok, qt.IsTrue)
	c.Assert(raw.payload, qt.DeepEquals, payload)
}

func TestParseBoxTruncatedHeaderReturnsError(t *testing.T) {
	c := qt.New(t)

	ctx := NewContext()
	r := bitio.NewReader(bytes.NewReader([]byte{0x00, 0x00}))
	_, _, err := parseBox(ctx, r)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestParseBoxSizeSmallerThanHeaderIsRejected(t *testing.T) {
	c := qt.New(t)

	ctx := NewContext()
	w := bitio.NewWriter()
	w.WriteU32(4) // smaller than the 8-byte minimal header
	w.WriteFourCC(bitio.NewFourCC("ftyp"))
	r := bitio.NewReader(bytes.NewReader(w.Bytes()))

	_, _, err := parseBox(ctx, r)
	c.Assert(err, qt.Not(qt.IsNil))

	var e *Error
	c.Assert(errors.As(err, &e), qt.IsTrue)
	c.Assert(e.SubKind, qt.Equals, SubKindBoxSizeInconsistent)
}

func TestParseContainerChildrenEnforcesDepthLimit(t *testing.T) {
	c := qt.New(t)

	ctx := NewContext()
	ctx.Limits.MaxBoxDepth = 0

	var buf bytes.Buffer
	payload := []byte("x")
	w := bitio.NewWriter()
	w.WriteU32(uint32(8 + len(payload)))
	w.WriteFourCC(bitio.NewFourCC("free"))
	w.WriteBytes(payload)
	buf.Write(w.Bytes())

	r := bitio.NewReader(bytes.NewReader(buf.Bytes()))
	r2 := r.SubRange(int64(buf.Len()))

	_, err := parseContainerChildren(ctx, r2)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestWriteBoxUsesPlain32BitHeaderForOrdinaryPayloads(t *testing.T) {
	c := qt.New(t)

	ctx := NewContext()
	b := &rawBox{typ: bitio.NewFourCC("mdat"), payload: make([]byte, 1<<20)}

	w := bitio.NewWriter()
	c.Assert(writeBox(ctx, w, b), qt.IsNil)

	r := bitio.NewReader(bytes.NewReader(w.Bytes()))
	hdr, err := readBoxHeader(r)
	c.Assert(err, qt.IsNil)
	c.Assert(hdr.HeaderLen, qt.Equals, 8)
	c.Assert(hdr.Size, qt.Equals, uint64(8+len(b.payload)))
}
