// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package pixelimage

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestCropProportional(t *testing.T) {
	c := qt.New(t)

	img := NewImage(ColorspaceYCbCr, Chroma420)
	y := img.AddPlane(ChannelY, 8, 4, 8, DatatypeU8)
	for i := range y.Data {
		y.Data[i] = byte(i)
	}
	img.AddPlane(ChannelCb, 4, 2, 8, DatatypeU8)
	img.AddPlane(ChannelCr, 4, 2, 8, DatatypeU8)

	err := img.Crop(0, 4, 0, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(img.Plane(ChannelY).Width, qt.Equals, 4)
	c.Assert(img.Plane(ChannelCb).Width, qt.Equals, 2)
}

func TestRotateCCW90ReindexesDimensions(t *testing.T) {
	c := qt.New(t)

	img := NewImage(ColorspaceMonochrome, ChromaMonochrome)
	y := img.AddPlane(ChannelY, 8, 4, 8, DatatypeU8)
	for i := range y.Data {
		y.Data[i] = byte(i)
	}

	c.Assert(img.RotateCCW(90), qt.IsNil)
	rotated := img.Plane(ChannelY)
	c.Assert(rotated.Width, qt.Equals, 4)
	c.Assert(rotated.Height, qt.Equals, 8)

	// spec.md S3: output[r][c] == input[c][w-1-r] (row, column) for a 90 deg
	// CCW rotation, so the input's top-right pixel becomes the output's top-left.
	c.Assert(rotated.Row(0)[0], qt.Equals, y.Row(0)[7])
}

func TestRotateCCWRejectsInvalidAngle(t *testing.T) {
	c := qt.New(t)
	img := NewImage(ColorspaceRGB, Chroma444)
	c.Assert(img.RotateCCW(45), qt.ErrorMatches, ".*not in.*")
}

func TestRotateCCWIdempotentAtFourTurns(t *testing.T) {
	c := qt.New(t)

	img := NewImage(ColorspaceMonochrome, ChromaMonochrome)
	y := img.AddPlane(ChannelY, 5, 3, 8, DatatypeU8)
	for i := range y.Data {
		y.Data[i] = byte(i + 1)
	}
	original := append([]byte(nil), y.Data...)

	for range 4 {
		c.Assert(img.RotateCCW(90), qt.IsNil)
	}
	c.Assert(img.Plane(ChannelY).Data, qt.DeepEquals, original)
}

func TestMirrorTwiceIsIdentity(t *testing.T) {
	c := qt.New(t)

	img := NewImage(ColorspaceMonochrome, ChromaMonochrome)
	y := img.AddPlane(ChannelY, 6, 3, 8, DatatypeU8)
	for i := range y.Data {
		y.Data[i] = byte(i + 1)
	}
	original := append([]byte(nil), y.Data...)

	img.MirrorInplace(MirrorVertical)
	img.MirrorInplace(MirrorVertical)
	c.Assert(img.Plane(ChannelY).Data, qt.DeepEquals, original)
}

func TestOverlayClipsToCanvas(t *testing.T) {
	c := qt.New(t)

	canvas := NewImage(ColorspaceMonochrome, ChromaMonochrome)
	yc := canvas.AddPlane(ChannelY, 4, 4, 8, DatatypeU8)

	tile := NewImage(ColorspaceMonochrome, ChromaMonochrome)
	yt := tile.AddPlane(ChannelY, 4, 4, 8, DatatypeU8)
	for i := range yt.Data {
		yt.Data[i] = 0xff
	}

	canvas.Overlay(tile, 2, 2)

	c.Assert(yc.Row(2)[2], qt.Equals, byte(0xff))
	c.Assert(yc.Row(0)[0], qt.Equals, byte(0))
}

func TestTransferPlaneFromImageAsSharesStorage(t *testing.T) {
	c := qt.New(t)

	alpha := NewImage(ColorspaceMonochrome, ChromaMonochrome)
	p := alpha.AddPlane(ChannelY, 2, 2, 8, DatatypeU8)
	p.Data[0] = 42

	color := NewImage(ColorspaceYCbCr, Chroma420)
	err := color.TransferPlaneFromImageAs(alpha, ChannelY, ChannelAlpha)
	c.Assert(err, qt.IsNil)
	c.Assert(color.Plane(ChannelAlpha).Data[0], qt.Equals, byte(42))
	c.Assert(color.HasAlphaChannel(), qt.IsTrue)
}
