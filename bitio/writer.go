// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package bitio

import "encoding/binary"

// Writer is a position-addressable byte vector used to serialize a box
// tree. Boxes reserve header space, write their children, then back-patch
// the reserved header with the final computed size — see Reserve.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Bytes returns the accumulated buffer. The slice aliases the Writer's
// internal storage; callers must not retain it across further writes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// WriteU8 appends one byte.
func (w *Writer) WriteU8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteU16 appends a big-endian uint16.
func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteU24 appends a big-endian 24-bit unsigned integer.
func (w *Writer) WriteU24(v uint32) {
	w.buf = append(w.buf, byte(v>>16), byte(v>>8), byte(v))
}

// WriteU32 appends a big-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteU64 appends a big-endian uint64.
func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteI32 appends a big-endian signed 32-bit integer.
func (w *Writer) WriteI32(v int32) {
	w.WriteU32(uint32(v))
}

// WriteFourCC appends a 4-byte box type.
func (w *Writer) WriteFourCC(fcc FourCC) {
	w.buf = append(w.buf, fcc[:]...)
}

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteNulString appends s followed by a NUL terminator.
func (w *Writer) WriteNulString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// Reserve appends n zero bytes and returns their offset, so the caller can
// come back later with PatchU32/PatchU64 once the real value is known (e.g.
// a box size computed only after its children have been written).
func (w *Writer) Reserve(n int) int {
	off := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return off
}

// PatchU32 overwrites the 4 bytes at off with v.
func (w *Writer) PatchU32(off int, v uint32) {
	binary.BigEndian.PutUint32(w.buf[off:off+4], v)
}

// PatchU64 overwrites the 8 bytes at off with v.
func (w *Writer) PatchU64(off int, v uint64) {
	binary.BigEndian.PutUint64(w.buf[off:off+8], v)
}

// Insert opens a gap of n zero bytes at offset at without disturbing bytes
// already written before it, shifting the tail once rather than requiring
// the caller to rebuild the whole buffer.
func (w *Writer) Insert(at, n int) {
	if n <= 0 {
		return
	}
	w.buf = append(w.buf, make([]byte, n)...)
	copy(w.buf[at+n:], w.buf[at:len(w.buf)-n])
	clear(w.buf[at : at+n])
}

// Append appends another Writer's bytes (other is left unchanged), used to splice a
// box fully serialized in isolation into its parent's buffer.
func (w *Writer) Append(other *Writer) {
	w.buf = append(w.buf, other.buf...)
}
