// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package heif

import "github.com/go-heif/heif/bitio"

func init() {
	registerBox("iinf", func() box { return &iinfBox{} })
	registerBox("infe", func() box { return &infeBox{} })
}

// iinfBox is the item-info index: a FullBox whose version picks a 16- or
// 32-bit entry count, followed by that many infe boxes, per spec.md 4.3.
type iinfBox struct {
	fullBoxHeader
	Entries []*infeBox
}

func (b *iinfBox) fourCC() bitio.FourCC       { return bitio.NewFourCC("iinf") }
func (b *iinfBox) version() uint8             { return b.Version }
func (b *iinfBox) flags() uint32              { return b.Flags }
func (b *iinfBox) setVersionFlags(v uint8, f uint32) { b.Version, b.Flags = v, f }

func (b *iinfBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.fullBoxHeader = readFullBoxHeader(r)
	var count uint32
	if b.Version == 0 {
		count = uint32(r.ReadU16())
	} else {
		count = r.ReadU32()
	}
	if int(count) > ctx.Limits.MaxItems {
		return newError(MemoryAllocation, SubKindSecurityLimitExceeded, "iinf declares %d items, exceeding limit %d", count, ctx.Limits.MaxItems)
	}
	children, err := parseContainerChildren(ctx, r)
	if err != nil {
		return err
	}
	for _, c := range children {
		if infe, ok := c.(*infeBox); ok {
			b.Entries = append(b.Entries, infe)
		}
	}
	return nil
}

func (b *iinfBox) writeBody(ctx *Context, w *bitio.Writer) error {
	writeFullBoxHeader(w, b.fullBoxHeader)
	if b.Version == 0 {
		w.WriteU16(uint16(len(b.Entries)))
	} else {
		w.WriteU32(uint32(len(b.Entries)))
	}
	for _, e := range b.Entries {
		if err := writeBox(ctx, w, e); err != nil {
			return err
		}
	}
	return nil
}

// infeBox is one item-info entry. Version >= 2 is the only form spec.md
// requires: 16- or 32-bit item id, a protection index, a 4CC item type,
// and, for "mime"/"uri " types, the extra strings those types carry.
type infeBox struct {
	fullBoxHeader
	ItemID            uint32
	ProtectionIndex   uint16
	ItemType          bitio.FourCC
	ItemName          string
	ContentType       string
	ContentEncoding   string
	ItemURIType       string
	Hidden            bool
}

func (b *infeBox) fourCC() bitio.FourCC       { return bitio.NewFourCC("infe") }
func (b *infeBox) version() uint8             { return b.Version }
func (b *infeBox) flags() uint32              { return b.Flags }
func (b *infeBox) setVersionFlags(v uint8, f uint32) { b.Version, b.Flags = v, f }

var fccMimeType = bitio.NewFourCC("mime")
var fccURIType = bitio.NewFourCC("uri ")

func (b *infeBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.fullBoxHeader = readFullBoxHeader(r)
	if b.Version < 2 {
		ctx.warnf("heif: infe version %d not supported, skipping", b.Version)
		return nil
	}

	if b.Version == 2 {
		b.ItemID = uint32(r.ReadU16())
	} else {
		b.ItemID = r.ReadU32()
	}
	b.ProtectionIndex = r.ReadU16()
	b.ItemType = r.ReadFourCC()
	b.ItemName = r.ReadNulString()

	if b.ItemType == fccMimeType {
		b.ContentType = r.ReadNulString()
		if r.Remaining() > 0 {
			b.ContentEncoding = r.ReadNulString()
		}
	} else if b.ItemType == fccURIType {
		b.ItemURIType = r.ReadNulString()
	}

	b.Hidden = b.Flags&0x1 != 0
	return nil
}

func (b *infeBox) writeBody(ctx *Context, w *bitio.Writer) error {
	flags := b.Flags
	if b.Hidden {
		flags |= 0x1
	} else {
		flags &^= 0x1
	}
	version := uint8(2)
	if b.ItemID > 0xFFFF {
		version = 3
	}
	writeFullBoxHeader(w, fullBoxHeader{Version: version, Flags: flags})
	if version == 2 {
		w.WriteU16(uint16(b.ItemID))
	} else {
		w.WriteU32(b.ItemID)
	}
	w.WriteU16(b.ProtectionIndex)
	w.WriteFourCC(b.ItemType)
	w.WriteNulString(b.ItemName)
	if b.ItemType == fccMimeType {
		w.WriteNulString(b.ContentType)
		w.WriteNulString(b.ContentEncoding)
	} else if b.ItemType == fccURIType {
		w.WriteNulString(b.ItemURIType)
	}
	return nil
}
