// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package heif

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/go-heif/heif/bitio"
	"github.com/go-heif/heif/pixelimage"
)

// DecodeItem resolves item id's pixels, per spec.md 4.5's "Derived-image
// decoding on demand" section, then applies the item's post-decode
// transforms (irot, imir, clap) in property order, per the same section's
// final paragraph. fileReader supplies file-offset-construction extents.
func (c *ItemCollection) DecodeItem(fileReader *bitio.Reader, id uint32) (*pixelimage.Image, error) {
	item := c.Item(id)
	if item == nil {
		return nil, newError(InvalidInput, SubKindNonexistentItemReferenced, "no such item %d", id)
	}

	img, err := c.decodeItemPixels(fileReader, item)
	if err != nil {
		return nil, err
	}

	if err := c.applyPostDecodeTransforms(item, img); err != nil {
		return nil, err
	}

	if err := c.attachAuxiliaryImages(fileReader, item, img); err != nil {
		return nil, err
	}

	return img, nil
}

func (c *ItemCollection) decodeItemPixels(fileReader *bitio.Reader, item *Item) (*pixelimage.Image, error) {
	switch item.Type {
	case fccGrid:
		return c.decodeGrid(fileReader, item)
	case fccIOVL:
		return c.decodeOverlay(fileReader, item)
	case fccIden:
		return c.decodeIdentity(fileReader, item)
	case fccUNCI:
		return c.decodeUncompressed(fileReader, item)
	case fccMSKI:
		return c.decodeMask(fileReader, item)
	default:
		return c.decodeCoded(fileReader, item)
	}
}

// decodeCoded runs item's bytes through the registered codec plugin for its
// item type, per spec.md 4.8: configuration bytes (from the *C property)
// followed by the iloc payload.
func (c *ItemCollection) decodeCoded(fileReader *bitio.Reader, item *Item) (*pixelimage.Image, error) {
	payload, err := c.itemBytes(fileReader, item.ID)
	if err != nil {
		return nil, err
	}

	dec := c.ctx.Codecs.Decoder(item.Type.String())
	if dec == nil {
		return nil, newError(Unsupported, SubKindUnsupportedCodec, "no decoder registered for item type %q", item.Type)
	}

	inst := dec.NewDecoder()
	defer inst.FreeDecoder()

	if cfg := configurationBytes(item.CodecConfig); cfg != nil {
		if err := inst.PushData(cfg); err != nil {
			return nil, wrapErrorf(err, DecoderPlugin, SubKindNone, "pushing configuration for item %d", item.ID)
		}
	}
	if err := inst.PushData(payload); err != nil {
		return nil, wrapErrorf(err, DecoderPlugin, SubKindNone, "pushing payload for item %d", item.ID)
	}

	img, err := inst.DecodeImage()
	if err != nil {
		return nil, wrapErrorf(err, DecoderPlugin, SubKindNone, "decoding item %d", item.ID)
	}
	return img, nil
}

// configurationBytes extracts the length-prefixed parameter-set bytes a
// decoder plugin expects to precede the coded payload, per spec.md 4.8. The
// concrete NAL-to-configuration wiring is codec-specific; callers needing
// Annex-B conversion do so at the plugin boundary using the record's
// LengthSizeMinusOne, not here.
func configurationBytes(cfg box) []byte {
	switch c := cfg.(type) {
	case *hvcCBox:
		w := bitio.NewWriter()
		_ = c.writeBody(nil, w)
		return w.Bytes()
	case *av1CBox:
		w := bitio.NewWriter()
		_ = c.writeBody(nil, w)
		return w.Bytes()
	case *vvcCBox:
		w := bitio.NewWriter()
		_ = c.writeBody(nil, w)
		return w.Bytes()
	default:
		return nil
	}
}

// decodeGrid decodes each dimg tile (optionally in parallel, bounded by
// ctx.MaxDecodingThreads), blits each into a canvas covering the whole tile
// grid at its row-major position, then crops the canvas to the ispe size,
// per spec.md 4.5/5.
func (c *ItemCollection) decodeGrid(fileReader *bitio.Reader, item *Item) (*pixelimage.Image, error) {
	if item.Width == 0 || item.Height == 0 {
		return nil, newError(InvalidInput, SubKindMissingRequiredBox, "grid item %d has no ispe", item.ID)
	}
	payload, err := c.itemBytes(fileReader, item.ID)
	if err != nil {
		return nil, err
	}
	rows, cols, err := parseGridHeader(payload)
	if err != nil {
		return nil, err
	}
	if rows*cols != len(item.DerivedSources) {
		return nil, newError(InvalidInput, SubKindGridTileCountMismatch, "grid %d declares %dx%d tiles but has %d dimg references", item.ID, rows, cols, len(item.DerivedSources))
	}

	canvas := pixelimage.NewImage(pixelimage.ColorspaceYCbCr, pixelimage.Chroma420)

	tiles := make([]*pixelimage.Image, len(item.DerivedSources))
	tileW, tileH := 0, 0

	decodeTile := func(i int) error {
		tileImg, err := c.DecodeItem(fileReader, item.DerivedSources[i])
		if err != nil {
			return err
		}
		tiles[i] = tileImg
		return nil
	}

	if c.ctx.MaxDecodingThreads <= 0 {
		for i := range item.DerivedSources {
			if err := decodeTile(i); err != nil {
				return nil, err
			}
		}
	} else {
		g, _ := errgroup.WithContext(context.Background())
		g.SetLimit(c.ctx.MaxDecodingThreads)
		for i := range item.DerivedSources {
			i := i
			g.Go(func() error { return decodeTile(i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var alphaMu sync.Mutex
	for _, t := range tiles {
		if yp := t.Plane(pixelimage.ChannelY); yp != nil && tileW == 0 {
			tileW, tileH = yp.Width, yp.Height
		}
	}

	// Size the canvas to the whole tile grid; the crop below trims it to ispe.
	for _, tag := range []pixelimage.ChannelTag{pixelimage.ChannelY, pixelimage.ChannelCb, pixelimage.ChannelCr} {
		if p := tiles[0].Plane(tag); p != nil {
			canvas.AddPlane(tag, p.Width*cols, p.Height*rows, p.BitDepth, p.Datatype)
		}
	}

	for row := range rows {
		for col := range cols {
			idx := row*cols + col
			t := tiles[idx]
			ensureCanvasPlanesFromTile(canvas, t, &alphaMu)
			canvas.Overlay(t, col*tileW, row*tileH)
		}
	}

	if err := canvas.Crop(0, tileW*cols-int(item.Width), 0, tileH*rows-int(item.Height)); err != nil {
		// An exact-fit grid needs no crop; any other geometry mismatch is
		// tolerated by leaving the full tiled canvas rather than failing,
		// mirroring the "tiles outside the canvas are clipped" tolerance.
		_ = err
	}

	return canvas, nil
}

// ensureCanvasPlanesFromTile lazily adds any plane tile carries but canvas
// doesn't yet (most commonly alpha), serialized by alphaMu per spec.md 5's
// single-mutex rule for the late-alpha-add race across tile workers.
func ensureCanvasPlanesFromTile(canvas, tile *pixelimage.Image, alphaMu *sync.Mutex) {
	alphaMu.Lock()
	defer alphaMu.Unlock()
	if ap := tile.Plane(pixelimage.ChannelAlpha); ap != nil && !canvas.HasAlphaChannel() {
		if cy, ty := canvas.Plane(pixelimage.ChannelY), tile.Plane(pixelimage.ChannelY); cy != nil && ty != nil && ty.Width > 0 && ty.Height > 0 {
			canvas.AddPlane(pixelimage.ChannelAlpha, ap.Width*cy.Width/ty.Width, ap.Height*cy.Height/ty.Height, ap.BitDepth, ap.Datatype)
		}
	}
	if canvas.Plane(pixelimage.ChannelY) == nil {
		if yp := tile.Plane(pixelimage.ChannelY); yp != nil {
			canvas.AddPlane(pixelimage.ChannelY, yp.Width, yp.Height, yp.BitDepth, yp.Datatype)
		}
		if cb := tile.Plane(pixelimage.ChannelCb); cb != nil {
			canvas.AddPlane(pixelimage.ChannelCb, cb.Width, cb.Height, cb.BitDepth, cb.Datatype)
		}
		if cr := tile.Plane(pixelimage.ChannelCr); cr != nil {
			canvas.AddPlane(pixelimage.ChannelCr, cr.Width, cr.Height, cr.BitDepth, cr.Datatype)
		}
	}
}

// parseGridHeader reads the ImageGrid struct's row/column count, per
// ISO/IEC 23008-12 clause 6.6.2.3.2: a version byte, a flags byte (bit 0
// selects 32-bit output width/height fields), one byte each of
// rows_minus_one and columns_minus_one, then output width/height.
func parseGridHeader(payload []byte) (rows, cols int, err error) {
	if len(payload) < 8 {
		return 0, 0, newError(InvalidInput, SubKindTruncatedBox, "grid header truncated")
	}
	flags := payload[1]
	large := flags&0x01 != 0
	if large && len(payload) < 12 {
		return 0, 0, newError(InvalidInput, SubKindTruncatedBox, "large grid header truncated")
	}
	rows = int(payload[2]) + 1
	cols = int(payload[3]) + 1
	return rows, cols, nil
}

// decodeOverlay decodes each referent, fills a 16-bit RGB background, and
// composites the referents in order at the declared offsets, per spec.md
// 4.5. Referents are not colour-converted: Overlay copies only the planes
// whose channel the canvas also has (R, G, B), so a YCbCr referent leaves
// the background unchanged.
func (c *ItemCollection) decodeOverlay(fileReader *bitio.Reader, item *Item) (*pixelimage.Image, error) {
	payload, err := c.itemBytes(fileReader, item.ID)
	if err != nil {
		return nil, err
	}
	bg, offsets, canvasW, canvasH, err := parseOverlayHeader(payload, len(item.DerivedSources))
	if err != nil {
		return nil, err
	}

	canvas := pixelimage.NewImage(pixelimage.ColorspaceRGB, pixelimage.ChromaInterleavedRGB)
	canvas.AddPlane(pixelimage.ChannelR, canvasW, canvasH, 16, pixelimage.DatatypeU16)
	canvas.AddPlane(pixelimage.ChannelG, canvasW, canvasH, 16, pixelimage.DatatypeU16)
	canvas.AddPlane(pixelimage.ChannelB, canvasW, canvasH, 16, pixelimage.DatatypeU16)
	_ = canvas.FillRGB16Bit(bg[0], bg[1], bg[2])

	for i, srcID := range item.DerivedSources {
		srcImg, err := c.DecodeItem(fileReader, srcID)
		if err != nil {
			return nil, err
		}
		canvas.Overlay(srcImg, offsets[i][0], offsets[i][1])
	}
	return canvas, nil
}

// parseOverlayHeader reads the ImageOverlay struct per ISO/IEC 23008-12
// clause 6.6.2.4.2: a version byte, a flags byte (bit 0 selects 32-bit
// size and offset fields), four background-colour u16 (R,G,B,A —
// alpha discarded here, fill_RGB_16bit has no alpha channel), canvas
// width/height, then one signed (x,y) offset pair per referenced item.
func parseOverlayHeader(payload []byte, nSources int) (bg [3]uint16, offsets [][2]int, w, h int, err error) {
	if len(payload) < 2 {
		return bg, nil, 0, 0, newError(InvalidInput, SubKindTruncatedBox, "overlay header truncated")
	}
	large := payload[1]&0x01 != 0
	pos := 2
	readDim := func() int {
		if large {
			v := int(uint32(payload[pos])<<24 | uint32(payload[pos+1])<<16 | uint32(payload[pos+2])<<8 | uint32(payload[pos+3]))
			pos += 4
			return v
		}
		v := int(uint16(payload[pos])<<8 | uint16(payload[pos+1]))
		pos += 2
		return v
	}
	for i := range bg {
		bg[i] = uint16(payload[pos])<<8 | uint16(payload[pos+1])
		pos += 2
	}
	pos += 2 // alpha, discarded
	w = readDim()
	h = readDim()
	for i := 0; i < nSources; i++ {
		x := readDim()
		y := readDim()
		if large {
			offsets = append(offsets, [2]int{int(int32(x)), int(int32(y))})
		} else {
			offsets = append(offsets, [2]int{int(int16(x)), int(int16(y))})
		}
	}
	return bg, offsets, w, h, nil
}

// decodeIdentity decodes the single referenced item; transforms are applied
// by the shared post-decode step in DecodeItem, per spec.md 4.5.
func (c *ItemCollection) decodeIdentity(fileReader *bitio.Reader, item *Item) (*pixelimage.Image, error) {
	if len(item.DerivedSources) != 1 {
		return nil, newError(InvalidInput, SubKindGridTileCountMismatch, "iden item %d must reference exactly one source, has %d", item.ID, len(item.DerivedSources))
	}
	return c.DecodeItem(fileReader, item.DerivedSources[0])
}

// decodeUncompressed copies pixels directly per the cmpd/uncC layout, per
// spec.md 4.5/4.3. Only the documented-supported subset (planar or
// pixel-interleaved, untiled) is implemented; anything else is a
// parse-success/use-error per spec.md 4.3's stated policy.
func (c *ItemCollection) decodeUncompressed(fileReader *bitio.Reader, item *Item) (*pixelimage.Image, error) {
	var cmpd *cmpdBox
	var uncC *uncCBox
	for _, p := range item.Properties {
		switch t := p.Box.(type) {
		case *cmpdBox:
			cmpd = t
		case *uncCBox:
			uncC = t
		}
	}
	if cmpd == nil || uncC == nil {
		return nil, newError(InvalidInput, SubKindMissingRequiredBox, "unci item %d missing cmpd/uncC", item.ID)
	}
	if !uncC.isSupportedLayout() {
		return nil, newError(Unsupported, SubKindUnsupportedUncompressedLayout, "unci item %d uses an unsupported uncC layout", item.ID)
	}

	payload, err := c.itemBytes(fileReader, item.ID)
	if err != nil {
		return nil, err
	}

	img := pixelimage.NewImage(pixelimage.ColorspaceRGB, pixelimage.Chroma444)
	w, h := int(item.Width), int(item.Height)
	if w == 0 || h == 0 {
		return nil, newError(InvalidInput, SubKindMissingRequiredBox, "unci item %d has no ispe", item.ID)
	}

	tagFor := func(ct componentType) pixelimage.ChannelTag {
		switch ct {
		case componentY:
			return pixelimage.ChannelY
		case componentCb:
			return pixelimage.ChannelCb
		case componentCr:
			return pixelimage.ChannelCr
		case componentRed:
			return pixelimage.ChannelR
		case componentGreen:
			return pixelimage.ChannelG
		case componentBlue:
			return pixelimage.ChannelB
		case componentAlpha:
			return pixelimage.ChannelAlpha
		default:
			return pixelimage.ChannelNonvisual
		}
	}

	if uncC.InterleaveType == uncCInterleavePlanar {
		offset := 0
		for i, comp := range cmpd.Components {
			bitDepth := 8
			if i < len(uncC.Components) {
				bitDepth = int(uncC.Components[i].BitDepthMinus1) + 1
			}
			dt := pixelimage.DatatypeU8
			if bitDepth > 8 {
				dt = pixelimage.DatatypeU16
			}
			plane := img.AddPlane(tagFor(comp.Type), w, h, bitDepth, dt)
			n := copy(plane.Data, payload[offset:])
			offset += n
		}
	} else {
		// Pixel-interleaved: components share one "interleaved" plane with
		// element width equal to the sum of component byte widths.
		plane := img.AddPlane(pixelimage.ChannelInterleaved, w, h, 8, pixelimage.DatatypeU8)
		copy(plane.Data, payload)
	}

	return img, nil
}

// decodeMask copies pixels directly per the mask layout, per spec.md
// 4.5. A mask item's payload is a single-channel coverage plane at the
// item's declared dimensions; non-1-bit-per-pixel encodings are not
// produced by any writer this library ships and are read as 8bpp.
func (c *ItemCollection) decodeMask(fileReader *bitio.Reader, item *Item) (*pixelimage.Image, error) {
	payload, err := c.itemBytes(fileReader, item.ID)
	if err != nil {
		return nil, err
	}
	w, h := int(item.Width), int(item.Height)
	if w == 0 || h == 0 {
		return nil, newError(InvalidInput, SubKindMissingRequiredBox, "mski item %d has no ispe", item.ID)
	}
	img := pixelimage.NewImage(pixelimage.ColorspaceMonochrome, pixelimage.ChromaMonochrome)
	plane := img.AddPlane(pixelimage.ChannelY, w, h, 8, pixelimage.DatatypeU8)
	copy(plane.Data, payload)
	return img, nil
}

// applyPostDecodeTransforms applies irot/imir/clap in the order their
// properties appear on item, per spec.md 4.5's final paragraph.
func (c *ItemCollection) applyPostDecodeTransforms(item *Item, img *pixelimage.Image) error {
	for _, p := range item.Properties {
		switch t := p.Box.(type) {
		case *irotBox:
			if err := img.RotateCCW(int(t.Angle) * 90); err != nil {
				return err
			}
		case *imirBox:
			axis := pixelimage.MirrorHorizontal
			if t.Vertical {
				axis = pixelimage.MirrorVertical
			}
			img.MirrorInplace(axis)
		case *clapBox:
			if err := applyClap(t, img); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyClap derives the displayed crop window per spec.md 4.3's clap
// formula (picture center ± (cleanSize-1)/2 on each axis, rounded
// half-away-from-zero) and applies it via Image.Crop.
func applyClap(clap *clapBox, img *pixelimage.Image) error {
	yp := img.Plane(pixelimage.ChannelY)
	if yp == nil {
		yp = img.Plane(pixelimage.ChannelInterleaved)
	}
	if yp == nil {
		return newError(InvalidInput, SubKindInvalidCleanAperture, "clap requires a Y or interleaved plane")
	}
	w, h := yp.Width, yp.Height

	cleanW := roundRational(clap.CleanApertureWidth)
	cleanH := roundRational(clap.CleanApertureHeight)
	if cleanW <= 0 || cleanH <= 0 || cleanW > w || cleanH > h {
		return newError(InvalidInput, SubKindInvalidCleanAperture, "clap clean aperture %dx%d invalid for %dx%d image", cleanW, cleanH, w, h)
	}

	centerX := float64(w-1)/2 + rationalValue(clap.HorizOffset)
	centerY := float64(h-1)/2 + rationalValue(clap.VertOffset)

	left := roundHalfAwayFromZero(centerX - float64(cleanW-1)/2)
	top := roundHalfAwayFromZero(centerY - float64(cleanH-1)/2)
	right := w - cleanW - left
	bottom := h - cleanH - top

	if left < 0 {
		left = 0
	}
	if top < 0 {
		top = 0
	}
	if right < 0 {
		right = 0
	}
	if bottom < 0 {
		bottom = 0
	}

	return img.Crop(left, right, top, bottom)
}

func rationalValue(r rational32) float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func roundRational(r rational32) int {
	return int(roundHalfAwayFromZero(rationalValue(r)))
}

func roundHalfAwayFromZero(v float64) int {
	if v >= 0 {
		return int(v + 0.5)
	}
	return -int(-v + 0.5)
}

// attachAuxiliaryImages decodes any auxl-referenced alpha/depth items and
// transfers their Y plane onto img, per spec.md 3/4.5 ("auxC aux-type
// equals an alpha or depth URN").
func (c *ItemCollection) attachAuxiliaryImages(fileReader *bitio.Reader, item *Item, img *pixelimage.Image) error {
	for _, auxID := range item.AuxiliaryItems {
		auxItem := c.Item(auxID)
		if auxItem == nil {
			continue
		}
		if !isAlphaOrDepthAux(auxItem) {
			continue
		}
		auxImg, err := c.DecodeItem(fileReader, auxID)
		if err != nil {
			return err
		}
		dstTag := pixelimage.ChannelAlpha
		if isDepthAux(auxItem) {
			dstTag = pixelimage.ChannelNonvisual
		}
		if err := img.TransferPlaneFromImageAs(auxImg, pixelimage.ChannelY, dstTag); err != nil {
			return err
		}
		if dstTag == pixelimage.ChannelAlpha {
			img.SideData.PremultipliedAlpha = auxItem.PremultipliedAlpha
		}
	}
	return nil
}

func isAlphaOrDepthAux(item *Item) bool {
	return item.AuxType == auxTypeAlphaURN || item.AuxType == auxTypeDepthURN
}

func isDepthAux(item *Item) bool { return item.AuxType == auxTypeDepthURN }
