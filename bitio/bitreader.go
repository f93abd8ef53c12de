// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package bitio

import (
	"bufio"
	"errors"
	"io"
)

// ErrExpGolombOverflow is returned by ReadUE when a code has more than 20
// leading zero bits, per the bound in spec.md 4.1.
var ErrExpGolombOverflow = errors.New("bitio: exp-golomb code exceeds 20 leading zero bits")

type bytePeeker interface {
	io.ByteReader
	Peek(int) ([]byte, error)
}

// BitReader reads fixed-width bit fields, and Exp-Golomb codes, from an
// io.Reader byte source. It keeps unread bits in the low end of a 64-bit
// register that is refilled 8 bits at a time, grounded on the ausocean-av h264dec bit
// reader, and adds the Exp-Golomb codecs codec bitstreams (hvcC/av1C-adjacent
// SPS/PPS parsing) need on top of that.
type BitReader struct {
	r     bytePeeker
	n     uint64
	bits  int
	nRead int
}

// NewBitReader returns a new BitReader over r.
func NewBitReader(r io.Reader) *BitReader {
	byter, ok := r.(bytePeeker)
	if !ok {
		byter = bufio.NewReader(r)
	}
	return &BitReader{r: byter}
}

// ReadBits reads n bits (n <= 57, to fit the refill register) and returns
// them right-justified in a uint64.
func (br *BitReader) ReadBits(n int) (uint64, error) {
	for n > br.bits {
		b, err := br.r.ReadByte()
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		}
		if err != nil {
			return 0, err
		}
		br.nRead++
		br.n <<= 8
		br.n |= uint64(b)
		br.bits += 8
	}

	r := (br.n >> uint(br.bits-n)) & ((1 << uint(n)) - 1)
	br.bits -= n
	return r, nil
}

// ReadFlag reads a single bit as a bool.
func (br *BitReader) ReadFlag() (bool, error) {
	b, err := br.ReadBits(1)
	return b != 0, err
}

// PeekBits returns the next n bits without advancing the reader.
func (br *BitReader) PeekBits(n int) (uint64, error) {
	need := (n - br.bits + 7) / 8
	if need < 0 {
		need = 0
	}
	byt, err := br.r.Peek(need)
	if err != nil {
		if err == io.EOF {
			return 0, io.ErrUnexpectedEOF
		}
		return 0, err
	}
	n2 := br.n
	bits := br.bits
	for i := 0; bits < n; i++ {
		n2 <<= 8
		n2 |= uint64(byt[i])
		bits += 8
	}
	return (n2 >> uint(bits-n)) & ((1 << uint(n)) - 1), nil
}

// ByteAligned reports whether the reader sits on a byte boundary.
func (br *BitReader) ByteAligned() bool {
	return br.bits%8 == 0
}

// AlignToByte discards bits until the reader is byte-aligned.
func (br *BitReader) AlignToByte() {
	br.bits -= br.bits % 8
}

// BytesRead returns the number of whole bytes pulled from the source so far.
func (br *BitReader) BytesRead() int {
	return br.nRead
}

// ReadUE reads an unsigned integer Exp-Golomb-coded syntax element (ue(v)),
// rejecting codes with more than 20 leading zero bits.
func (br *BitReader) ReadUE() (uint64, error) {
	nZeros := 0
	for {
		b, err := br.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if b != 0 {
			break
		}
		nZeros++
		if nZeros > 20 {
			return 0, ErrExpGolombOverflow
		}
	}
	if nZeros == 0 {
		return 0, nil
	}
	rem, err := br.ReadBits(nZeros)
	if err != nil {
		return 0, err
	}
	return (uint64(1)<<uint(nZeros) - 1) + rem, nil
}

// ReadSE reads a signed integer Exp-Golomb-coded syntax element (se(v)):
// codeNum is mapped to a signed value by alternating sign, increasing
// magnitude.
func (br *BitReader) ReadSE() (int64, error) {
	codeNum, err := br.ReadUE()
	if err != nil {
		return 0, err
	}
	if codeNum%2 == 0 {
		return -int64(codeNum / 2), nil
	}
	return int64(codeNum+1) / 2, nil
}
