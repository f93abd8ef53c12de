// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package bitio_test

import (
	"bytes"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-heif/heif/bitio"
)

func TestBitReaderReadBits(t *testing.T) {
	c := qt.New(t)

	br := bitio.NewBitReader(bytes.NewReader([]byte{0x8f, 0xe3}))
	v, err := br.ReadBits(4)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(0x8))

	v, err = br.ReadBits(2)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(0x3))

	v, err = br.ReadBits(4)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(0xf))

	v, err = br.ReadBits(6)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(0x23))
}

func TestBitReaderPeekDoesNotAdvance(t *testing.T) {
	c := qt.New(t)

	br := bitio.NewBitReader(bytes.NewReader([]byte{0x8f, 0xe3}))
	v, err := br.PeekBits(4)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(0x8))

	v, err = br.ReadBits(4)
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(0x8))
}

func TestReadUE(t *testing.T) {
	c := qt.New(t)

	// codeNum 0 => "1", codeNum 1 => "010", codeNum 2 => "011".
	br := bitio.NewBitReader(bytes.NewReader([]byte{0b1_010_011_0}))
	v, err := br.ReadUE()
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(0))

	v, err = br.ReadUE()
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(1))

	v, err = br.ReadUE()
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.Equals, uint64(2))
}

func TestReadUERejectsTooManyLeadingZeros(t *testing.T) {
	c := qt.New(t)

	// 21 leading zero bits, never terminated.
	buf := make([]byte, 4)
	br := bitio.NewBitReader(bytes.NewReader(buf))
	_, err := br.ReadUE()
	c.Assert(err, qt.Equals, bitio.ErrExpGolombOverflow)
}

func TestReadSEMapping(t *testing.T) {
	c := qt.New(t)

	cases := []struct {
		codeNum uint64
		want    int64
	}{
		{0, 0},
		{1, 1},
		{2, -1},
		{3, 2},
		{4, -2},
	}
	for _, tc := range cases {
		buf := ueBits(tc.codeNum)
		br := bitio.NewBitReader(bytes.NewReader(buf))
		v, err := br.ReadSE()
		c.Assert(err, qt.IsNil)
		c.Assert(v, qt.Equals, tc.want)
	}
}

// ueBits encodes codeNum as an Exp-Golomb bitstring packed into bytes, for
// use as synthetic test input.
func ueBits(codeNum uint64) []byte {
	// Number of leading zero bits equals floor(log2(codeNum+1)).
	n := codeNum + 1
	nbits := 0
	for t := n; t > 1; t >>= 1 {
		nbits++
	}
	var bits []byte
	for i := 0; i < nbits; i++ {
		bits = append(bits, 0)
	}
	bits = append(bits, 1)
	rem := n - (uint64(1) << nbits)
	for i := nbits - 1; i >= 0; i-- {
		bits = append(bits, byte((rem>>uint(i))&1))
	}
	// Pack to bytes, pad with zero bits.
	for len(bits)%8 != 0 {
		bits = append(bits, 0)
	}
	out := make([]byte, len(bits)/8)
	for i, b := range bits {
		if b != 0 {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}
