// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package heif

import "github.com/go-heif/heif/bitio"

func init() {
	registerBox("ftyp", func() box { return &ftypBox{} })
}

// ftypBox is the file-type box: major brand, minor version, and compatible
// brands, per spec.md 4.3.
type ftypBox struct {
	MajorBrand       bitio.FourCC
	MinorVersion     uint32
	CompatibleBrands []bitio.FourCC
}

func (b *ftypBox) fourCC() bitio.FourCC { return bitio.NewFourCC("ftyp") }

func (b *ftypBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.MajorBrand = r.ReadFourCC()
	b.MinorVersion = r.ReadU32()
	for r.Remaining() >= 4 {
		b.CompatibleBrands = append(b.CompatibleBrands, r.ReadFourCC())
	}
	return nil
}

func (b *ftypBox) writeBody(ctx *Context, w *bitio.Writer) error {
	w.WriteFourCC(b.MajorBrand)
	w.WriteU32(b.MinorVersion)
	for _, brand := range b.CompatibleBrands {
		w.WriteFourCC(brand)
	}
	return nil
}

// hasBrand reports whether brand is the major brand or among the
// compatible brands, per spec.md 4.3 ("a brand is present iff...").
func (b *ftypBox) hasBrand(brand string) bool {
	fcc := bitio.NewFourCC(brand)
	if b.MajorBrand == fcc {
		return true
	}
	for _, c := range b.CompatibleBrands {
		if c == fcc {
			return true
		}
	}
	return false
}

// readBrands are the brands spec.md 6 says the library must be able to
// read; a ftyp with no overlap against this set is rejected by file.go.
var readBrands = []string{"heic", "heix", "mif1", "msf1", "avif", "avis", "iso8", "1pic", "unif", "j2ki", "j2is"}

func (b *ftypBox) hasAnyReadableBrand() bool {
	for _, brand := range readBrands {
		if b.hasBrand(brand) {
			return true
		}
	}
	return false
}
