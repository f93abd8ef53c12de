// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package heif

import "github.com/go-heif/heif/bitio"

func init() {
	registerBox("meta", func() box { return &metaBox{} })
	registerBox("hdlr", func() box { return &hdlrBox{} })
	registerBox("pitm", func() box { return &pitmBox{} })
	registerBox("idat", func() box { return &idatBox{} })
}

// metaBox is the FullBox v0 container holding the item model, per spec.md
// 4.3: exactly one hdlr (handler type "pict", or "meta" inside trak), one
// pitm, one iinf, one iloc, one iprp, optionally iref/idat/grpl.
type metaBox struct {
	fullBoxHeader
	Handler  *hdlrBox
	Primary  *pitmBox
	ItemInfo *iinfBox
	ItemLoc  *ilocBox
	ItemProp *iprpBox
	ItemRef  *irefBox
	Data     *idatBox
	Groups   *grplBox
	// unknownChildren preserves boxes this library doesn't model under meta
	// (e.g. udta) so round-tripping never drops them.
	unknownChildren []box
}

func (b *metaBox) fourCC() bitio.FourCC       { return bitio.NewFourCC("meta") }
func (b *metaBox) version() uint8             { return b.Version }
func (b *metaBox) flags() uint32              { return b.Flags }
func (b *metaBox) setVersionFlags(v uint8, f uint32) { b.Version, b.Flags = v, f }

func (b *metaBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.fullBoxHeader = readFullBoxHeader(r)
	children, err := parseContainerChildren(ctx, r)
	if err != nil {
		return err
	}
	for _, c := range children {
		switch t := c.(type) {
		case *hdlrBox:
			b.Handler = t
		case *pitmBox:
			b.Primary = t
		case *iinfBox:
			b.ItemInfo = t
		case *ilocBox:
			b.ItemLoc = t
		case *iprpBox:
			b.ItemProp = t
		case *irefBox:
			b.ItemRef = t
		case *idatBox:
			b.Data = t
		case *grplBox:
			b.Groups = t
		default:
			b.unknownChildren = append(b.unknownChildren, c)
		}
	}
	return nil
}

func (b *metaBox) writeBody(ctx *Context, w *bitio.Writer) error {
	writeFullBoxHeader(w, b.fullBoxHeader)
	order := []box{}
	if b.Handler != nil {
		order = append(order, b.Handler)
	}
	if b.Primary != nil {
		order = append(order, b.Primary)
	}
	if b.ItemInfo != nil {
		order = append(order, b.ItemInfo)
	}
	if b.ItemLoc != nil {
		order = append(order, b.ItemLoc)
	}
	if b.ItemProp != nil {
		order = append(order, b.ItemProp)
	}
	if b.ItemRef != nil {
		order = append(order, b.ItemRef)
	}
	if b.Groups != nil {
		order = append(order, b.Groups)
	}
	order = append(order, b.unknownChildren...)
	if b.Data != nil {
		order = append(order, b.Data)
	}
	for _, c := range order {
		if err := writeBox(ctx, w, c); err != nil {
			return err
		}
	}
	return nil
}

// hdlrBox declares the handler type governing a meta box's contents, e.g.
// "pict" for a still-image meta box.
type hdlrBox struct {
	fullBoxHeader
	HandlerType bitio.FourCC
	Name        string
}

func (b *hdlrBox) fourCC() bitio.FourCC       { return bitio.NewFourCC("hdlr") }
func (b *hdlrBox) version() uint8             { return b.Version }
func (b *hdlrBox) flags() uint32              { return b.Flags }
func (b *hdlrBox) setVersionFlags(v uint8, f uint32) { b.Version, b.Flags = v, f }

func (b *hdlrBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.fullBoxHeader = readFullBoxHeader(r)
	r.Skip(4) // pre_defined
	b.HandlerType = r.ReadFourCC()
	r.Skip(12) // reserved
	b.Name = r.ReadNulString()
	return nil
}

func (b *hdlrBox) writeBody(ctx *Context, w *bitio.Writer) error {
	writeFullBoxHeader(w, b.fullBoxHeader)
	w.WriteU32(0)
	w.WriteFourCC(b.HandlerType)
	w.WriteBytes(make([]byte, 12))
	w.WriteNulString(b.Name)
	return nil
}

// pitmBox names the primary item: version 0 carries a 16-bit item id,
// version 1 a 32-bit one, per spec.md 4.3.
type pitmBox struct {
	fullBoxHeader
	ItemID uint32
}

func (b *pitmBox) fourCC() bitio.FourCC       { return bitio.NewFourCC("pitm") }
func (b *pitmBox) version() uint8             { return b.Version }
func (b *pitmBox) flags() uint32              { return b.Flags }
func (b *pitmBox) setVersionFlags(v uint8, f uint32) { b.Version, b.Flags = v, f }

func (b *pitmBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.fullBoxHeader = readFullBoxHeader(r)
	if b.Version == 0 {
		b.ItemID = uint32(r.ReadU16())
	} else {
		b.ItemID = r.ReadU32()
	}
	return nil
}

func (b *pitmBox) writeBody(ctx *Context, w *bitio.Writer) error {
	writeFullBoxHeader(w, b.fullBoxHeader)
	if b.Version == 0 {
		w.WriteU16(uint16(b.ItemID))
	} else {
		w.WriteU32(b.ItemID)
	}
	return nil
}

// idatBox holds item bytes addressed by construction_method == idat
// (construction from this box rather than from the file or a data
// reference), per spec.md 3 ("Extent").
type idatBox struct {
	Data []byte
}

func (b *idatBox) fourCC() bitio.FourCC { return bitio.NewFourCC("idat") }

func (b *idatBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.Data = r.ReadBytes(int(r.Remaining()))
	return nil
}

func (b *idatBox) writeBody(ctx *Context, w *bitio.Writer) error {
	w.WriteBytes(b.Data)
	return nil
}
