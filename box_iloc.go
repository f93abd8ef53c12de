// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package heif

import "github.com/go-heif/heif/bitio"

func init() {
	registerBox("iloc", func() box { return &ilocBox{} })
}

// constructionMethod names how an extent's bytes are located, per spec.md 3
// ("Extent"): file offset, idat-relative offset, or another item's bytes.
type constructionMethod uint16

const (
	constructionFileOffset constructionMethod = 0
	constructionIdatOffset constructionMethod = 1
	constructionItemOffset constructionMethod = 2
)

// extent is one contiguous run of bytes making up (part of) an item, per
// spec.md 3. Index is the extent_index (iloc version >= 1 with a nonzero
// IndexSize only);
// Offset is relative to the item's BaseOffset.
type extent struct {
	Index  uint64
	Offset uint64
	Length uint64
}

// ilocItem is one iloc entry: an item id, the construction method governing
// how its extents resolve to bytes, a data-reference index, a base offset,
// and the extents themselves.
type ilocItem struct {
	ItemID              uint32
	ConstructionMethod  constructionMethod
	DataReferenceIndex  uint16
	BaseOffset          uint64
	Extents             []extent
}

// ilocBox is the item-location table: a FullBox whose version picks the
// width of item ids and the presence of a construction method field, and
// whose header nibbles declare the byte width of offsets, lengths, base
// offsets, and extent indices, per spec.md 4.3 ("iloc").
type ilocBox struct {
	fullBoxHeader
	OffsetSize     int
	LengthSize     int
	BaseOffsetSize int
	IndexSize      int
	Items          []*ilocItem
}

func (b *ilocBox) fourCC() bitio.FourCC              { return bitio.NewFourCC("iloc") }
func (b *ilocBox) version() uint8                    { return b.Version }
func (b *ilocBox) flags() uint32                     { return b.Flags }
func (b *ilocBox) setVersionFlags(v uint8, f uint32) { b.Version, b.Flags = v, f }

// readVarUint reads an n-byte (n in {0, 4, 8}) big-endian value, per spec.md
// 4.3's iloc field-size nibbles, generalizing the teacher's closure of the
// same name in imagedecoder_heif.go to read both 0 (field absent, value 0)
// and 8 (64-bit) widths rather than just the sizes HEIC files use.
func readVarUint(r *bitio.Reader, n int) uint64 {
	switch n {
	case 0:
		return 0
	case 4:
		return uint64(r.ReadU32())
	case 8:
		return r.ReadU64()
	default:
		// iloc also allows n==2 for legacy encoders; read it byte-wise.
		var v uint64
		for range n {
			v = v<<8 | uint64(r.ReadU8())
		}
		return v
	}
}

func writeVarUint(w *bitio.Writer, n int, v uint64) {
	switch n {
	case 0:
		return
	case 4:
		w.WriteU32(uint32(v))
	case 8:
		w.WriteU64(v)
	default:
		for i := n - 1; i >= 0; i-- {
			w.WriteU8(byte(v >> (8 * i)))
		}
	}
}

func (b *ilocBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.fullBoxHeader = readFullBoxHeader(r)

	sizes1 := r.ReadU8()
	b.OffsetSize = int(sizes1 >> 4)
	b.LengthSize = int(sizes1 & 0x0f)

	sizes2 := r.ReadU8()
	b.BaseOffsetSize = int(sizes2 >> 4)
	b.IndexSize = int(sizes2 & 0x0f)

	var itemCount uint32
	if b.Version < 2 {
		itemCount = uint32(r.ReadU16())
	} else {
		itemCount = r.ReadU32()
	}
	if int(itemCount) > ctx.Limits.MaxItems {
		return newError(MemoryAllocation, SubKindSecurityLimitExceeded, "iloc declares %d items, exceeding limit %d", itemCount, ctx.Limits.MaxItems)
	}

	for range itemCount {
		it := &ilocItem{}
		if b.Version < 2 {
			it.ItemID = uint32(r.ReadU16())
		} else {
			it.ItemID = r.ReadU32()
		}

		if b.Version >= 1 {
			it.ConstructionMethod = constructionMethod(r.ReadU16() & 0x0f)
		}
		it.DataReferenceIndex = r.ReadU16()
		it.BaseOffset = readVarUint(r, b.BaseOffsetSize)

		extentCount := r.ReadU16()
		if int(extentCount) > ctx.Limits.MaxExtentsPerItem {
			return newError(MemoryAllocation, SubKindSecurityLimitExceeded, "item %d declares %d extents, exceeding limit %d", it.ItemID, extentCount, ctx.Limits.MaxExtentsPerItem)
		}
		for range extentCount {
			var ex extent
			if b.Version >= 1 && b.IndexSize > 0 {
				ex.Index = readVarUint(r, b.IndexSize)
			}
			ex.Offset = readVarUint(r, b.OffsetSize)
			ex.Length = readVarUint(r, b.LengthSize)
			it.Extents = append(it.Extents, ex)
		}

		b.Items = append(b.Items, it)
	}

	return nil
}

func (b *ilocBox) writeBody(ctx *Context, w *bitio.Writer) error {
	writeFullBoxHeader(w, b.fullBoxHeader)
	w.WriteU8(byte(b.OffsetSize<<4 | b.LengthSize))
	w.WriteU8(byte(b.BaseOffsetSize<<4 | b.IndexSize))

	if b.Version < 2 {
		w.WriteU16(uint16(len(b.Items)))
	} else {
		w.WriteU32(uint32(len(b.Items)))
	}

	for _, it := range b.Items {
		if b.Version < 2 {
			w.WriteU16(uint16(it.ItemID))
		} else {
			w.WriteU32(it.ItemID)
		}
		if b.Version >= 1 {
			w.WriteU16(uint16(it.ConstructionMethod))
		}
		w.WriteU16(it.DataReferenceIndex)
		writeVarUint(w, b.BaseOffsetSize, it.BaseOffset)
		w.WriteU16(uint16(len(it.Extents)))
		for _, ex := range it.Extents {
			if b.Version >= 1 && b.IndexSize > 0 {
				writeVarUint(w, b.IndexSize, ex.Index)
			}
			writeVarUint(w, b.OffsetSize, ex.Offset)
			writeVarUint(w, b.LengthSize, ex.Length)
		}
	}

	return nil
}

// itemByID returns the iloc entry for id, or nil if absent.
func (b *ilocBox) itemByID(id uint32) *ilocItem {
	for _, it := range b.Items {
		if it.ItemID == id {
			return it
		}
	}
	return nil
}
