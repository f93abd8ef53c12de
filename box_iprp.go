// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package heif

import "github.com/go-heif/heif/bitio"

func init() {
	registerBox("iprp", func() box { return &iprpBox{} })
	registerBox("ipco", func() box { return &ipcoBox{} })
	registerBox("ipma", func() box { return &ipmaBox{} })
}

// iprpBox is the item-properties container: exactly one ipco holding the
// property boxes themselves, and one or more ipma boxes mapping item ids to
// 1-based indices into ipco, per spec.md 4.3 ("iprp"), grounded on the
// teacher's inline iprp/ipco/ipma scan in imagedecoder_heif.go (generalized
// here from "collect ispe/irot only" to "collect every registered property
// type, preserve every association").
type iprpBox struct {
	Container   *ipcoBox
	Association []*ipmaBox
}

func (b *iprpBox) fourCC() bitio.FourCC { return bitio.NewFourCC("iprp") }

func (b *iprpBox) parseBody(ctx *Context, r *bitio.Reader) error {
	children, err := parseContainerChildren(ctx, r)
	if err != nil {
		return err
	}
	for _, c := range children {
		switch t := c.(type) {
		case *ipcoBox:
			b.Container = t
		case *ipmaBox:
			b.Association = append(b.Association, t)
		}
	}
	return nil
}

func (b *iprpBox) writeBody(ctx *Context, w *bitio.Writer) error {
	if b.Container != nil {
		if err := writeBox(ctx, w, b.Container); err != nil {
			return err
		}
	}
	for _, a := range b.Association {
		if err := writeBox(ctx, w, a); err != nil {
			return err
		}
	}
	return nil
}

// ipcoBox is the item-property container: a plain (non-FullBox) list of
// property boxes, addressed 1-based from ipma.
type ipcoBox struct {
	Properties []box
}

func (b *ipcoBox) fourCC() bitio.FourCC { return bitio.NewFourCC("ipco") }

func (b *ipcoBox) parseBody(ctx *Context, r *bitio.Reader) error {
	children, err := parseContainerChildren(ctx, r)
	if err != nil {
		return err
	}
	b.Properties = children
	return nil
}

func (b *ipcoBox) writeBody(ctx *Context, w *bitio.Writer) error {
	for _, p := range b.Properties {
		if err := writeBox(ctx, w, p); err != nil {
			return err
		}
	}
	return nil
}

// property returns the 1-based indexed property, or nil if idx is out of
// range (spec.md 4.3 invariant: ipma indices must be in-range for ipco;
// callers report SubKindInvalidPropertyIndex when this returns nil).
func (b *ipcoBox) property(idx int) box {
	if idx < 1 || idx > len(b.Properties) {
		return nil
	}
	return b.Properties[idx-1]
}

// propertyAssociation is one (index, essential) pair inside an ipma entry.
type propertyAssociation struct {
	Index     int
	Essential bool
}

// ipmaEntry associates one item id with an ordered list of property indices.
type ipmaEntry struct {
	ItemID       uint32
	Associations []propertyAssociation
}

// ipmaBox maps item ids to ipco indices, a FullBox whose version picks the
// item id width and whose flag bit 0 picks the association index width
// (15-bit when set, 7-bit otherwise), per spec.md 4.3.
type ipmaBox struct {
	fullBoxHeader
	Entries []*ipmaEntry
}

func (b *ipmaBox) fourCC() bitio.FourCC              { return bitio.NewFourCC("ipma") }
func (b *ipmaBox) version() uint8                    { return b.Version }
func (b *ipmaBox) flags() uint32                     { return b.Flags }
func (b *ipmaBox) setVersionFlags(v uint8, f uint32) { b.Version, b.Flags = v, f }

func (b *ipmaBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.fullBoxHeader = readFullBoxHeader(r)
	entryCount := r.ReadU32()

	for range entryCount {
		e := &ipmaEntry{}
		if b.Version < 1 {
			e.ItemID = uint32(r.ReadU16())
		} else {
			e.ItemID = r.ReadU32()
		}
		assocCount := r.ReadU8()
		for range assocCount {
			var idx int
			var essential bool
			if b.Flags&1 != 0 {
				v := r.ReadU16()
				essential = v&0x8000 != 0
				idx = int(v & 0x7FFF)
			} else {
				v := r.ReadU8()
				essential = v&0x80 != 0
				idx = int(v & 0x7F)
			}
			e.Associations = append(e.Associations, propertyAssociation{Index: idx, Essential: essential})
		}
		b.Entries = append(b.Entries, e)
	}
	return nil
}

func (b *ipmaBox) writeBody(ctx *Context, w *bitio.Writer) error {
	writeFullBoxHeader(w, b.fullBoxHeader)
	w.WriteU32(uint32(len(b.Entries)))
	for _, e := range b.Entries {
		if b.Version < 1 {
			w.WriteU16(uint16(e.ItemID))
		} else {
			w.WriteU32(e.ItemID)
		}
		w.WriteU8(uint8(len(e.Associations)))
		for _, a := range e.Associations {
			if b.Flags&1 != 0 {
				v := uint16(a.Index & 0x7FFF)
				if a.Essential {
					v |= 0x8000
				}
				w.WriteU16(v)
			} else {
				v := uint8(a.Index & 0x7F)
				if a.Essential {
					v |= 0x80
				}
				w.WriteU8(v)
			}
		}
	}
	return nil
}

// entryFor returns the association entry for id, or nil.
func (b *ipmaBox) entryFor(id uint32) *ipmaEntry {
	for _, e := range b.Entries {
		if e.ItemID == id {
			return e
		}
	}
	return nil
}
