// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package heif

import "github.com/go-heif/heif/bitio"

func init() {
	registerBox("iref", func() box { return &irefBox{} })
}

// itemReference is one "from one item, to N items, typed" edge of the item
// reference graph: e.g. a "dimg" reference from a grid item to its tiles, or
// a "thmb" reference from a thumbnail to the image it thumbnails, per
// spec.md 4.3 ("iref").
type itemReference struct {
	Type       bitio.FourCC
	FromItemID uint32
	ToItemIDs  []uint32
}

// Well-known reference types spec.md 3/4.3 names.
var (
	fccRefThumbnail    = bitio.NewFourCC("thmb")
	fccRefAuxiliary    = bitio.NewFourCC("auxl")
	fccRefContentDesc  = bitio.NewFourCC("cdsc")
	fccRefPremulAlpha  = bitio.NewFourCC("prem")
	fccRefDerivedImage = bitio.NewFourCC("dimg")
	fccRefMask         = bitio.NewFourCC("mask")
	fccRefBaseImage    = bitio.NewFourCC("base")
)

// irefBox is the item-reference box: a FullBox whose version picks a 16- or
// 32-bit item id width, containing a SingleItemTypeReferenceBox per 4CC
// grouping, per spec.md 4.3. Parsing is grounded on the reference
// implementation's Box_iref::parse (each child box itself reads a 4CC type,
// a from-id, a count, and that many to-ids, all in one version-wide field).
type irefBox struct {
	fullBoxHeader
	References []*itemReference
}

func (b *irefBox) fourCC() bitio.FourCC              { return bitio.NewFourCC("iref") }
func (b *irefBox) version() uint8                    { return b.Version }
func (b *irefBox) flags() uint32                     { return b.Flags }
func (b *irefBox) setVersionFlags(v uint8, f uint32) { b.Version, b.Flags = v, f }

func (b *irefBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.fullBoxHeader = readFullBoxHeader(r)

	for r.Remaining() >= 8 {
		hdr, err := readBoxHeader(r)
		if err != nil {
			return err
		}
		end := hdr.end()
		var body *bitio.Reader
		if end == bitio.Unbounded {
			body = r.SubRangeUnbounded()
		} else {
			body = r.SubRange(end - r.Pos())
		}

		ref := &itemReference{Type: hdr.Type}
		if b.Version == 0 {
			ref.FromItemID = uint32(body.ReadU16())
			count := body.ReadU16()
			for i := 0; i < int(count) && !body.EOF(); i++ {
				ref.ToItemIDs = append(ref.ToItemIDs, uint32(body.ReadU16()))
			}
		} else {
			ref.FromItemID = body.ReadU32()
			count := body.ReadU16()
			for i := 0; i < int(count) && !body.EOF(); i++ {
				ref.ToItemIDs = append(ref.ToItemIDs, body.ReadU32())
			}
		}
		b.References = append(b.References, ref)

		if end != bitio.Unbounded {
			r.SeekTo(end)
		}
	}

	return nil
}

func (b *irefBox) writeBody(ctx *Context, w *bitio.Writer) error {
	// derive_box_version: promote to version 1 if any id exceeds 16 bits,
	// mirroring Box_iref::derive_box_version in the reference implementation.
	version := uint8(0)
	for _, ref := range b.References {
		if ref.FromItemID > 0xFFFF {
			version = 1
		}
		for _, id := range ref.ToItemIDs {
			if id > 0xFFFF {
				version = 1
			}
		}
	}
	b.Version = version
	writeFullBoxHeader(w, b.fullBoxHeader)

	for _, ref := range b.References {
		body := bitio.NewWriter()
		if version == 0 {
			body.WriteU16(uint16(ref.FromItemID))
			body.WriteU16(uint16(len(ref.ToItemIDs)))
			for _, id := range ref.ToItemIDs {
				body.WriteU16(uint16(id))
			}
		} else {
			body.WriteU32(ref.FromItemID)
			body.WriteU16(uint16(len(ref.ToItemIDs)))
			for _, id := range ref.ToItemIDs {
				body.WriteU32(id)
			}
		}
		payload := body.Bytes()
		w.WriteU32(uint32(8 + len(payload)))
		w.WriteFourCC(ref.Type)
		w.WriteBytes(payload)
	}

	return nil
}

// referencesOfType returns every reference of the given type whose
// FromItemID matches id, in iref document order.
func (b *irefBox) referencesOfType(id uint32, typ bitio.FourCC) []*itemReference {
	var out []*itemReference
	for _, ref := range b.References {
		if ref.FromItemID == id && ref.Type == typ {
			out = append(out, ref)
		}
	}
	return out
}

// referencesTo returns every reference (of any type, from any item) that
// lists id among its ToItemIDs — used to find an item's "referenced by" set,
// e.g. to decide whether a hidden item is nonetheless reachable.
func (b *irefBox) referencesTo(id uint32) []*itemReference {
	var out []*itemReference
	for _, ref := range b.References {
		for _, to := range ref.ToItemIDs {
			if to == id {
				out = append(out, ref)
				break
			}
		}
	}
	return out
}
