// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package bitio_test

import (
	"bytes"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-heif/heif/bitio"
)

func TestReaderFixedWidth(t *testing.T) {
	c := qt.New(t)

	buf := []byte{0x01, 0x02, 0x03, 0x00, 0x00, 0x00, 0x2a, 'f', 't', 'y', 'p'}
	r := bitio.NewReader(bytes.NewReader(buf))

	c.Assert(r.ReadU8(), qt.Equals, uint8(0x01))
	c.Assert(r.ReadU16(), qt.Equals, uint16(0x0203))
	c.Assert(r.ReadU32(), qt.Equals, uint32(0x2a))
	c.Assert(r.ReadFourCC(), qt.Equals, bitio.NewFourCC("ftyp"))
	c.Assert(r.EOF(), qt.IsFalse)
}

func TestSubRangeEOFPropagatesToParent(t *testing.T) {
	c := qt.New(t)

	buf := make([]byte, 16)
	r := bitio.NewReader(bytes.NewReader(buf))

	child := r.SubRange(4)
	_ = child.ReadU32()
	c.Assert(child.EOF(), qt.IsFalse)

	// Asking the child for one more byte than its bound allows must mark
	// both the child and the parent range as exhausted.
	_ = child.ReadU8()
	c.Assert(child.EOF(), qt.IsTrue)
	c.Assert(r.EOF(), qt.IsTrue)
}

func TestSubRangeClampedToParentEnd(t *testing.T) {
	c := qt.New(t)

	buf := make([]byte, 8)
	r := bitio.NewReader(bytes.NewReader(buf))
	bounded := r.SubRange(4)
	// Ask for a child range bigger than what's left in the parent's own
	// range; it must be clamped rather than read past the parent's end.
	child := bounded.SubRange(100)
	c.Assert(child.End(), qt.Equals, bounded.End())
}

func TestReadNulString(t *testing.T) {
	c := qt.New(t)

	buf := append([]byte("hello"), 0, 'x')
	r := bitio.NewReader(bytes.NewReader(buf))
	c.Assert(r.ReadNulString(), qt.Equals, "hello")
	c.Assert(r.ReadU8(), qt.Equals, uint8('x'))
}

func TestSkipAndSeekTo(t *testing.T) {
	c := qt.New(t)

	buf := []byte{1, 2, 3, 4, 5}
	r := bitio.NewReader(bytes.NewReader(buf))
	r.Skip(2)
	c.Assert(r.ReadU8(), qt.Equals, uint8(3))
	r.SeekTo(0)
	c.Assert(r.ReadU8(), qt.Equals, uint8(1))
}

func TestWriterReserveAndPatch(t *testing.T) {
	c := qt.New(t)

	w := bitio.NewWriter()
	sizeOff := w.Reserve(4)
	w.WriteFourCC(bitio.NewFourCC("ftyp"))
	w.WriteU32(0)
	w.PatchU32(sizeOff, uint32(w.Len()))

	c.Assert(w.Len(), qt.Equals, 12)
	r := bitio.NewReader(bytes.NewReader(w.Bytes()))
	c.Assert(r.ReadU32(), qt.Equals, uint32(12))
}

func TestWriterInsertOpensGapWithoutDoubleCopy(t *testing.T) {
	c := qt.New(t)

	w := bitio.NewWriter()
	w.WriteBytes([]byte("headtail"))
	w.Insert(4, 4)
	got := w.Bytes()
	c.Assert(len(got), qt.Equals, 12)
	c.Assert(string(got[:4]), qt.Equals, "head")
	c.Assert(string(got[8:]), qt.Equals, "tail")
}
