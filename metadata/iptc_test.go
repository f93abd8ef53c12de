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

// iptcDataset builds one 0x1C-marker-delimited IPTC-IIM record.
func iptcDataset(record, id uint8, value string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0x1C)
	buf.WriteByte(record)
	buf.WriteByte(id)
	binary.Write(&buf, binary.BigEndian, uint16(len(value)))
	buf.WriteString(value)
	return buf.Bytes()
}

func TestDecodeIPTCSingleValueTag(t *testing.T) {
	c := qt.New(t)

	var payload bytes.Buffer
	payload.Write(iptcDataset(2, 105, "Headline text")) // record 2 id 105 = Headline

	tags, err := metadata.DecodeIPTC(payload.Bytes(), metadata.Options{})
	c.Assert(err, qt.IsNil)

	ti, ok := tags.IPTC()["Headline"]
	c.Assert(ok, qt.IsTrue)
	c.Assert(ti.Value, qt.Equals, "Headline text")
}

func TestDecodeIPTCRepeatableTagCollectsSlice(t *testing.T) {
	c := qt.New(t)

	var payload bytes.Buffer
	payload.Write(iptcDataset(2, 25, "cats"))    // Keywords, repeatable
	payload.Write(iptcDataset(2, 25, "hamster")) // Keywords, repeatable

	tags, err := metadata.DecodeIPTC(payload.Bytes(), metadata.Options{})
	c.Assert(err, qt.IsNil)

	ti, ok := tags.IPTC()["Keywords"]
	c.Assert(ok, qt.IsTrue)
	c.Assert(ti.Value, qt.DeepEquals, []string{"cats", "hamster"})
}

func TestDecodeIPTCUnknownDatasetGetsPlaceholderName(t *testing.T) {
	c := qt.New(t)

	var payload bytes.Buffer
	payload.Write(iptcDataset(2, 250, "mystery"))

	tags, err := metadata.DecodeIPTC(payload.Bytes(), metadata.Options{})
	c.Assert(err, qt.IsNil)

	ti, ok := tags.IPTC()["UnknownTag_250"]
	c.Assert(ok, qt.IsTrue)
	c.Assert(ti.Value, qt.Equals, "mystery")
}

func TestDecodeIPTCBlocksWrapsRecordsIn8BIM(t *testing.T) {
	c := qt.New(t)

	var records bytes.Buffer
	records.Write(iptcDataset(2, 120, "caption"))

	var block bytes.Buffer
	block.WriteString("8BIM")
	binary.Write(&block, binary.BigEndian, uint16(0x0404)) // IPTC metadata resource ID
	block.WriteByte(0)                                     // zero-length Pascal name, padded to 2
	block.WriteByte(0)
	binary.Write(&block, binary.BigEndian, uint32(records.Len()))
	block.Write(records.Bytes())

	tags, err := metadata.DecodeIPTCBlocks(block.Bytes(), metadata.Options{})
	c.Assert(err, qt.IsNil)

	ti, ok := tags.IPTC()["Caption-Abstract"]
	c.Assert(ok, qt.IsTrue)
	c.Assert(ti.Value, qt.Equals, "caption")
}

func TestDecodeIPTCEmptyInputIsEmptyNotError(t *testing.T) {
	c := qt.New(t)

	tags, err := metadata.DecodeIPTC(nil, metadata.Options{})
	c.Assert(err, qt.IsNil)
	c.Assert(tags.IPTC(), qt.HasLen, 0)
}
