// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package pixelimage is the decoded/encodable pixel buffer abstraction a
// heif.Item or heif.Sample resolves to: a colorspace, a chroma mode, and a
// set of named planes, plus the side-data a decoder plugin or the container
// attaches (color profile, light level, mastering volume, aspect ratio,
// timestamps). It has no dependency on the container package; a codec
// plugin produces or consumes one without knowing about boxes or items.
package pixelimage

import (
	"fmt"

	"github.com/pkg/errors"
)

// Colorspace names the interpretation of a PixelImage's channels, per
// spec.md 4.7.
type Colorspace int

const (
	ColorspaceUndefined Colorspace = iota
	ColorspaceYCbCr
	ColorspaceRGB
	ColorspaceMonochrome
	ColorspaceNonvisual
)

func (c Colorspace) String() string {
	switch c {
	case ColorspaceYCbCr:
		return "YCbCr"
	case ColorspaceRGB:
		return "RGB"
	case ColorspaceMonochrome:
		return "monochrome"
	case ColorspaceNonvisual:
		return "nonvisual"
	default:
		return "undefined"
	}
}

// Chroma names the subsampling mode governing Cb/Cr plane dimensions
// relative to Y, per spec.md 4.7.
type Chroma int

const (
	ChromaUndefined Chroma = iota
	Chroma420
	Chroma422
	Chroma444
	ChromaMonochrome
	ChromaInterleavedRGB
	ChromaInterleavedRGBA
)

// Channel names a plane's role within a PixelImage, per spec.md 4.7 ("Y,
// Cb, Cr, R, G, B, alpha, interleaved, or a numbered nonvisual component").
// Numbered nonvisual components share the ChannelNonvisual tag; a PixelImage
// with more than one nonvisual plane is out of scope for this library's
// current callers (sequences and still images here each carry at most one).
//
// ChannelTag enumerates the named plane roles spec.md 4.7 lists.
type ChannelTag int

const (
	ChannelY ChannelTag = iota
	ChannelCb
	ChannelCr
	ChannelR
	ChannelG
	ChannelB
	ChannelAlpha
	ChannelInterleaved
	ChannelNonvisual
)

func (t ChannelTag) String() string {
	switch t {
	case ChannelY:
		return "Y"
	case ChannelCb:
		return "Cb"
	case ChannelCr:
		return "Cr"
	case ChannelR:
		return "R"
	case ChannelG:
		return "G"
	case ChannelB:
		return "B"
	case ChannelAlpha:
		return "alpha"
	case ChannelInterleaved:
		return "interleaved"
	default:
		return "nonvisual"
	}
}

// Datatype names a plane's element storage, per spec.md 4.7.
type Datatype int

const (
	DatatypeU8 Datatype = iota
	DatatypeU16
	DatatypeU32
	DatatypeI8
	DatatypeI16
	DatatypeI32
	DatatypeF32
	DatatypeF64
	DatatypeComplex32
	DatatypeComplex64
)

// ElementSize returns the byte width of one element of d.
func (d Datatype) ElementSize() int {
	switch d {
	case DatatypeU8, DatatypeI8:
		return 1
	case DatatypeU16, DatatypeI16:
		return 2
	case DatatypeU32, DatatypeI32, DatatypeF32:
		return 4
	case DatatypeF64, DatatypeComplex32:
		return 8
	case DatatypeComplex64:
		return 16
	default:
		return 1
	}
}

// Plane is one channel's pixel data: dimensions, bit depth, element
// datatype, row stride, and owned bytes, per spec.md 4.7. Stride must be
// at least Width*Datatype.ElementSize(); padding bytes beyond that are
// undefined, matching the teacher's "implementation-chosen stride" note.
type Plane struct {
	Width, Height int
	BitDepth      int
	Datatype      Datatype
	Stride        int
	Data          []byte
}

func newPlane(width, height, bitDepth int, dt Datatype) *Plane {
	elemSize := dt.ElementSize()
	stride := width * elemSize
	return &Plane{
		Width:    width,
		Height:   height,
		BitDepth: bitDepth,
		Datatype: dt,
		Stride:   stride,
		Data:     make([]byte, stride*height),
	}
}

// Row returns a mutable view of row y's bytes.
func (p *Plane) Row(y int) []byte {
	start := y * p.Stride
	return p.Data[start : start+p.Width*p.Datatype.ElementSize()]
}

// Image is the decoded/encodable pixel buffer, per spec.md 4.7. Creating
// an Image fixes Colorspace/Chroma; AddPlane fixes a channel's geometry.
type Image struct {
	Colorspace Colorspace
	Chroma     Chroma
	planes     map[ChannelTag]*Plane
	SideData   SideData
}

// SideData is the non-pixel metadata a PixelImage carries, per spec.md 4.7.
type SideData struct {
	NCLX             *NCLXProfile
	ICC              []byte
	ContentLightLevel *ContentLightLevel
	MasteringDisplayColorVolume *MasteringDisplayColorVolume
	PixelAspectRatio *PixelAspectRatio
	PremultipliedAlpha bool
	SampleDuration   uint64
	TAITimestamp     *TAITimestamp
	GIMIContentID    string
}

// NCLXProfile is the color_primaries/transfer_characteristics/
// matrix_coefficients/full_range_flag tuple, passed through uninterpreted
// per spec.md 6 ("library passes them through without interpretation").
type NCLXProfile struct {
	ColourPrimaries         uint16
	TransferCharacteristics uint16
	MatrixCoefficients      uint16
	FullRangeFlag           bool
}

// ContentLightLevel is the CTA-861.3 side-data pair.
type ContentLightLevel struct {
	MaxContentLightLevel    uint16
	MaxPicAverageLightLevel uint16
}

// MasteringDisplayColorVolume is the SMPTE ST 2086 side-data struct.
type MasteringDisplayColorVolume struct {
	DisplayPrimariesX, DisplayPrimariesY [3]uint16
	WhitePointX, WhitePointY             uint16
	MaxDisplayMasteringLuminance         uint32
	MinDisplayMasteringLuminance         uint32
}

// PixelAspectRatio is the pasp h/v spacing pair.
type PixelAspectRatio struct {
	HSpacing, VSpacing uint32
}

// TAITimestamp is a TAI (International Atomic Time) sample timestamp, as
// carried by the itai/taic sequence boxes.
type TAITimestamp struct {
	Nanoseconds int64
	Synchronized bool
}

// NewImage allocates an Image with the given colorspace and chroma and no
// planes.
func NewImage(colorspace Colorspace, chroma Chroma) *Image {
	return &Image{Colorspace: colorspace, Chroma: chroma, planes: map[ChannelTag]*Plane{}}
}

// AddPlane allocates and attaches a plane for tag, fixing its geometry.
func (img *Image) AddPlane(tag ChannelTag, width, height, bitDepth int, dt Datatype) *Plane {
	p := newPlane(width, height, bitDepth, dt)
	img.planes[tag] = p
	return p
}

// Plane returns the mutable plane for tag, or nil if absent.
func (img *Image) Plane(tag ChannelTag) *Plane {
	return img.planes[tag]
}

// PlaneReadonly returns the same plane as Plane; Go has no const-pointer
// distinction, so this exists only to mirror the named contract spec.md 4.7
// calls out (get_plane vs get_plane_readonly) for callers that want the
// intent documented at the call site.
func (img *Image) PlaneReadonly(tag ChannelTag) *Plane {
	return img.planes[tag]
}

// HasPlane reports whether a plane exists for tag.
func (img *Image) HasPlane(tag ChannelTag) bool {
	_, ok := img.planes[tag]
	return ok
}

// HasAlphaChannel reports whether an alpha plane is present — the check the
// concurrency model's late-add mutex guards against a torn read of.
func (img *Image) HasAlphaChannel() bool {
	return img.HasPlane(ChannelAlpha)
}

// TransferPlaneFromImageAs cheaply re-homes src's plane at srcChannel onto
// img at dstChannel, per spec.md 4.7 — e.g. attaching an alpha item's Y
// plane as this image's alpha plane without copying bytes.
func (img *Image) TransferPlaneFromImageAs(src *Image, srcChannel, dstChannel ChannelTag) error {
	p := src.Plane(srcChannel)
	if p == nil {
		return errors.Errorf("pixelimage: source image has no %s plane", srcChannel)
	}
	img.planes[dstChannel] = p
	return nil
}

// Crop removes left/right/top/bottom pixels from every plane, scaling the
// removed amount by each plane's ratio to the Y plane (so Cb/Cr planes of a
// subsampled image crop proportionally), per spec.md 4.7's clap semantics.
func (img *Image) Crop(left, right, top, bottom int) error {
	yp := img.Plane(ChannelY)
	if yp == nil {
		yp = img.Plane(ChannelInterleaved)
	}
	if yp == nil {
		return errors.New("pixelimage: crop requires a Y or interleaved plane to derive proportions from")
	}
	baseW, baseH := yp.Width, yp.Height
	if baseW <= left+right || baseH <= top+bottom {
		return errors.Errorf("pixelimage: crop(%d,%d,%d,%d) leaves an empty or inverted image for %dx%d", left, right, top, bottom, baseW, baseH)
	}

	for tag, p := range img.planes {
		sx := p.Width * left / baseW
		ex := p.Width * right / baseW
		sy := p.Height * top / baseH
		ey := p.Height * bottom / baseH
		img.planes[tag] = cropPlane(p, sx, ex, sy, ey)
	}
	return nil
}

func cropPlane(p *Plane, left, right, top, bottom int) *Plane {
	newW := p.Width - left - right
	newH := p.Height - top - bottom
	out := newPlane(newW, newH, p.BitDepth, p.Datatype)
	elemSize := p.Datatype.ElementSize()
	for y := 0; y < newH; y++ {
		srcStart := (y+top)*p.Stride + left*elemSize
		srcEnd := srcStart + newW*elemSize
		copy(out.Row(y), p.Data[srcStart:srcEnd])
	}
	return out
}

// MirrorAxis names the axis a MirrorInplace operation reflects about, per
// spec.md 4.7 ("mirror_inplace(axis)").
type MirrorAxis int

const (
	MirrorVertical MirrorAxis = iota
	MirrorHorizontal
)

// MirrorInplace flips every plane about axis, matching imir's semantics.
func (img *Image) MirrorInplace(axis MirrorAxis) {
	for tag, p := range img.planes {
		img.planes[tag] = mirrorPlane(p, axis)
	}
}

func mirrorPlane(p *Plane, axis MirrorAxis) *Plane {
	out := newPlane(p.Width, p.Height, p.BitDepth, p.Datatype)
	elemSize := p.Datatype.ElementSize()
	rowBytes := p.Width * elemSize
	for y := 0; y < p.Height; y++ {
		srcY := y
		if axis == MirrorHorizontal {
			srcY = p.Height - 1 - y
		}
		srcRow := p.Data[srcY*p.Stride : srcY*p.Stride+rowBytes]
		dstRow := out.Row(y)
		if axis == MirrorVertical {
			for x := 0; x < p.Width; x++ {
				srcX := p.Width - 1 - x
				copy(dstRow[x*elemSize:(x+1)*elemSize], srcRow[srcX*elemSize:(srcX+1)*elemSize])
			}
		} else {
			copy(dstRow, srcRow)
		}
	}
	return out
}

// RotateCCW rotates every plane counter-clockwise by angle degrees, per
// spec.md 4.7; angle must be one of {0, 90, 180, 270}.
func (img *Image) RotateCCW(angle int) error {
	switch angle {
	case 0, 90, 180, 270:
	default:
		return errors.Errorf("pixelimage: rotate angle %d not in {0,90,180,270}", angle)
	}
	if angle == 0 {
		return nil
	}
	for tag, p := range img.planes {
		img.planes[tag] = rotatePlaneCCW(p, angle)
	}
	return nil
}

func rotatePlaneCCW(p *Plane, angle int) *Plane {
	w, h := p.Width, p.Height
	elemSize := p.Datatype.ElementSize()
	newW, newH := w, h
	if angle == 90 || angle == 270 {
		newW, newH = h, w
	}
	out := newPlane(newW, newH, p.BitDepth, p.Datatype)
	for y := 0; y < h; y++ {
		row := p.Data[y*p.Stride : y*p.Stride+w*elemSize]
		for x := 0; x < w; x++ {
			px := row[x*elemSize : (x+1)*elemSize]
			var dx, dy int
			switch angle {
			case 90:
				dx, dy = y, w-1-x
			case 180:
				dx, dy = w-1-x, h-1-y
			case 270:
				dx, dy = h-1-y, x
			}
			dst := out.Data[dy*out.Stride+dx*elemSize : dy*out.Stride+(dx+1)*elemSize]
			copy(dst, px)
		}
	}
	return out
}

// FillRGB16Bit fills the R/G/B planes (8- or 16-bit) with a constant color,
// per spec.md 4.7 ("fill_RGB_16bit").
func (img *Image) FillRGB16Bit(r, g, b uint16) error {
	tags := []ChannelTag{ChannelR, ChannelG, ChannelB}
	vals := []uint16{r, g, b}
	for i, tag := range tags {
		p := img.Plane(tag)
		if p == nil {
			return errors.Errorf("pixelimage: fill requires a %s plane", tag)
		}
		fillPlane16(p, vals[i])
	}
	return nil
}

func fillPlane16(p *Plane, v uint16) {
	for y := 0; y < p.Height; y++ {
		row := p.Row(y)
		if p.Datatype == DatatypeU8 {
			for x := range row {
				row[x] = byte(v)
			}
			continue
		}
		for x := 0; x+1 < len(row); x += 2 {
			row[x] = byte(v >> 8)
			row[x+1] = byte(v)
		}
	}
}

// Overlay blits other onto img at (dx, dy), clipping the added image to the
// canvas, per spec.md 4.7/4.6 ("blit it into the canvas at the computed
// position. Tiles outside the canvas are clipped").
func (img *Image) Overlay(other *Image, dx, dy int) {
	for tag, src := range other.planes {
		dst := img.Plane(tag)
		if dst == nil {
			continue
		}
		blitPlane(dst, src, dx, dy)
	}
}

func blitPlane(dst, src *Plane, dx, dy int) {
	elemSize := src.Datatype.ElementSize()
	for y := 0; y < src.Height; y++ {
		ty := y + dy
		if ty < 0 || ty >= dst.Height {
			continue
		}
		srcRow := src.Row(y)
		tx0 := dx
		copyLen := src.Width * elemSize
		srcOff := 0
		if tx0 < 0 {
			skip := -tx0
			srcOff = skip * elemSize
			copyLen -= skip * elemSize
			tx0 = 0
		}
		if copyLen <= 0 {
			continue
		}
		dstOff := tx0 * elemSize
		maxLen := (dst.Width - tx0) * elemSize
		if copyLen > maxLen {
			copyLen = maxLen
		}
		if copyLen <= 0 {
			continue
		}
		dstRow := dst.Row(ty)
		copy(dstRow[dstOff:dstOff+copyLen], srcRow[srcOff:srcOff+copyLen])
	}
}

// ScaleNearestNeighbor resizes every plane to (targetWidth, targetHeight)
// scaled proportionally, per spec.md 4.7.
func (img *Image) ScaleNearestNeighbor(targetWidth, targetHeight int) error {
	yp := img.Plane(ChannelY)
	if yp == nil {
		yp = img.Plane(ChannelInterleaved)
	}
	if yp == nil {
		return errors.New("pixelimage: scale requires a Y or interleaved plane to derive proportions from")
	}
	baseW, baseH := yp.Width, yp.Height
	for tag, p := range img.planes {
		w := targetWidth * p.Width / baseW
		h := targetHeight * p.Height / baseH
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		img.planes[tag] = scalePlaneNearest(p, w, h)
	}
	return nil
}

func scalePlaneNearest(p *Plane, w, h int) *Plane {
	out := newPlane(w, h, p.BitDepth, p.Datatype)
	elemSize := p.Datatype.ElementSize()
	for y := 0; y < h; y++ {
		srcY := y * p.Height / h
		srcRow := p.Row(srcY)
		dstRow := out.Row(y)
		for x := 0; x < w; x++ {
			srcX := x * p.Width / w
			copy(dstRow[x*elemSize:(x+1)*elemSize], srcRow[srcX*elemSize:(srcX+1)*elemSize])
		}
	}
	return out
}

// IsNonvisual reports whether tag's datatype disqualifies it from
// color-conversion operations, per spec.md 4.7 ("Nonvisual images
// (datatype != u8) disallow color-conversion operations").
func (img *Image) IsNonvisual(tag ChannelTag) bool {
	p := img.Plane(tag)
	return p != nil && p.Datatype != DatatypeU8
}

func (img *Image) String() string {
	return fmt.Sprintf("Image{%s/%d planes}", img.Colorspace, len(img.planes))
}
