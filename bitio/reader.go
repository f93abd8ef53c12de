// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package bitio provides big-endian typed reads and writes over a seekable
// byte source, bounded sub-ranges that propagate EOF to their ancestors, and
// a bit-granularity reader with Exp-Golomb decoding for codec bitstreams.
package bitio

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
)

// ErrShortRead is returned when fewer bytes were available than requested.
var ErrShortRead = errors.New("bitio: short read")

// sharedStream is the single underlying seekable source that every Reader in
// a box tree reads through. Only the root Reader owns one; every SubRange
// child points back at it. mu guards every access to rs: per spec.md 5, the
// byte source supports concurrent positional reads, and since a bare
// io.ReadSeeker is not itself safe for concurrent Seek+Read (e.g. tile
// decoding fans item reads out across a worker pool), each access below
// takes mu for the whole seek-then-read (or seek-then-skip) critical
// section, not just the individual syscall.
type sharedStream struct {
	mu  sync.Mutex
	rs  io.ReadSeeker
	buf [8]byte
}

// readAt seeks to abs and reads n bytes as a single critical section, so
// concurrent callers (e.g. errgroup-dispatched tile decoders sharing one
// Reader) cannot interleave a Seek from one goroutine with a Read from
// another and tear the result.
func (sh *sharedStream) readAt(abs int64, n int) ([]byte, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, err := sh.rs.Seek(abs, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(sh.rs, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Reader wraps an io.ReadSeeker and exposes big-endian fixed-width reads
// bounded to a [start,end) range. Reads that would cross the range's end
// mark this range and every ancestor EOF instead of returning an error, so
// callers can perform a sequence of reads and check Err/EOF once at the end
// rather than after every call.
type Reader struct {
	sh     *sharedStream
	parent *Reader
	start  int64
	end    int64 // exclusive; Unbounded means "extends to end of file"
	depth  int
	isEOF  bool
	err    error
}

// Unbounded is used as the end of a range that extends to the end of the
// underlying stream (size == 0 in ISOBMFF box headers).
const Unbounded = int64(1) << 62

// NewReader returns a root Reader positioned at the current offset of rs,
// bounded only by Unbounded (the whole remaining stream).
func NewReader(rs io.ReadSeeker) *Reader {
	return &Reader{
		sh:    &sharedStream{rs: rs},
		start: mustPos(rs),
		end:   Unbounded,
	}
}

func mustPos(rs io.ReadSeeker) int64 {
	n, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	return n
}

// Pos returns the reader's current absolute stream position.
func (r *Reader) Pos() int64 {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	return mustPos(r.sh.rs)
}

// Start returns the absolute offset where this range began.
func (r *Reader) Start() int64 {
	return r.start
}

// End returns the absolute exclusive offset where this range ends, or
// Unbounded.
func (r *Reader) End() int64 {
	return r.end
}

// Depth returns the nesting depth of this reader: 0 for the root, 1 for a
// direct child, and so on.
func (r *Reader) Depth() int {
	return r.depth
}

// Remaining returns the number of bytes left in this range. It is negative
// or zero once exhausted; it returns a very large number for an unbounded
// range until the underlying stream itself runs dry.
func (r *Reader) Remaining() int64 {
	if r.end == Unbounded {
		return Unbounded - r.Pos()
	}
	return r.end - r.Pos()
}

// EOF reports whether this range (or an ancestor) has short-circuited.
func (r *Reader) EOF() bool {
	return r.isEOF
}

// Err returns the first error recorded against this range, if any.
func (r *Reader) Err() error {
	return r.err
}

// setEOF marks this range and every ancestor as exhausted, so a caller
// holding only the root still observes that a descendant ran dry.
func (r *Reader) setEOF(err error) {
	for cur := r; cur != nil; cur = cur.parent {
		cur.isEOF = true
		if cur.err == nil {
			cur.err = err
		}
	}
}

// budget reports whether n more bytes may be read from this range without
// crossing its end. A failing check marks EOF and returns false; it never
// panics, per the short-circuit discipline in the box layer above it.
func (r *Reader) budget(n int64) bool {
	if r.isEOF {
		return false
	}
	if r.end != Unbounded && r.Pos()+n > r.end {
		r.setEOF(io.ErrUnexpectedEOF)
		return false
	}
	return true
}

// SubRange returns a bounded child reader starting at the current position
// and extending n bytes, clamped to this range's own end. Reads through the
// child cannot escape past its own end even if the parent would allow it,
// and a read that runs the child dry marks the child and every ancestor EOF
// (see setEOF).
func (r *Reader) SubRange(n int64) *Reader {
	start := r.Pos()
	end := start + n
	if r.end != Unbounded && end > r.end {
		end = r.end
	}
	return &Reader{
		sh:     r.sh,
		parent: r,
		start:  start,
		end:    end,
		depth:  r.depth + 1,
	}
}

// SubRangeUnbounded returns a child reader that extends to the end of the
// underlying stream (used for boxes with size == 0).
func (r *Reader) SubRangeUnbounded() *Reader {
	return &Reader{
		sh:     r.sh,
		parent: r,
		start:  r.Pos(),
		end:    Unbounded,
		depth:  r.depth + 1,
	}
}

func (r *Reader) readFull(n int) []byte {
	if !r.budget(int64(n)) {
		return make([]byte, n)
	}
	buf := make([]byte, n)
	r.sh.mu.Lock()
	_, err := io.ReadFull(r.sh.rs, buf)
	r.sh.mu.Unlock()
	if err != nil {
		r.setEOF(err)
		return make([]byte, n)
	}
	return buf
}

// ReadU8 reads one unsigned byte.
func (r *Reader) ReadU8() uint8 {
	if !r.budget(1) {
		return 0
	}
	r.sh.mu.Lock()
	_, err := io.ReadFull(r.sh.rs, r.sh.buf[:1])
	b := r.sh.buf[0]
	r.sh.mu.Unlock()
	if err != nil {
		r.setEOF(err)
		return 0
	}
	return b
}

// ReadU16 reads a big-endian uint16.
func (r *Reader) ReadU16() uint16 {
	return binary.BigEndian.Uint16(r.readFull(2))
}

// ReadU24 reads a big-endian 24-bit unsigned integer (used for FullBox flags).
func (r *Reader) ReadU24() uint32 {
	b := r.readFull(3)
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

// ReadU32 reads a big-endian uint32.
func (r *Reader) ReadU32() uint32 {
	return binary.BigEndian.Uint32(r.readFull(4))
}

// ReadU64 reads a big-endian uint64.
func (r *Reader) ReadU64() uint64 {
	return binary.BigEndian.Uint64(r.readFull(8))
}

// ReadI32 reads a big-endian signed 32-bit integer.
func (r *Reader) ReadI32() int32 {
	return int32(r.ReadU32())
}

// ReadFourCC reads a 4-byte box type.
func (r *Reader) ReadFourCC() FourCC {
	var fcc FourCC
	copy(fcc[:], r.readFull(4))
	return fcc
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	return r.readFull(n)
}

// ReadNulString reads bytes up to and including a NUL terminator (or until
// this range is exhausted) and returns the string without the terminator.
func (r *Reader) ReadNulString() string {
	var b []byte
	for {
		if !r.budget(1) {
			break
		}
		c := r.ReadU8()
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return string(b)
}

// Skip advances n bytes without returning them.
func (r *Reader) Skip(n int64) {
	if n <= 0 {
		return
	}
	if !r.budget(n) {
		return
	}
	r.sh.mu.Lock()
	_, err := r.sh.rs.Seek(n, io.SeekCurrent)
	r.sh.mu.Unlock()
	if err != nil {
		r.setEOF(err)
	}
}

// SeekTo moves the underlying stream to an absolute position. It is the
// caller's responsibility to stay within this range's bounds; SeekTo is used
// by the box layer to jump to extent offsets and to rewind after a
// lookahead.
func (r *Reader) SeekTo(pos int64) {
	r.sh.mu.Lock()
	_, err := r.sh.rs.Seek(pos, io.SeekStart)
	r.sh.mu.Unlock()
	if err != nil {
		r.setEOF(err)
	}
}

// ReadAtAbs seeks to the absolute position abs and reads n bytes as a single
// critical section on the shared stream, so concurrent callers resolving
// item extents from different goroutines (e.g. errgroup-dispatched grid
// tiles sharing one Reader, per spec.md 5) cannot interleave their seeks and
// reads. Unlike the range-bounded Read* methods, abs may lie outside this
// Reader's own [start,end) window: item extents are resolved against
// absolute file offsets, not the current box's sub-range.
func (r *Reader) ReadAtAbs(abs int64, n int) []byte {
	buf, err := r.sh.readAt(abs, n)
	if err != nil {
		r.setEOF(err)
		return make([]byte, n)
	}
	return buf
}

// PreservePos runs f and restores the stream position afterwards, even if f
// moved it or failed.
func (r *Reader) PreservePos(f func()) {
	pos := r.Pos()
	f()
	r.SeekTo(pos)
}

// FourCC is a 4-byte box type code, or, for the extended "uuid" box type,
// compared against the literal bytes 'u','u','i','d'.
type FourCC [4]byte

func (f FourCC) String() string { return string(f[:]) }

// NewFourCC builds a FourCC from a string; s must be exactly 4 bytes.
func NewFourCC(s string) FourCC {
	var f FourCC
	copy(f[:], s)
	return f
}
