// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package codec is the plugin contract the core consumes (spec.md 4.8) and
// the registry it's looked up through (spec.md 9, "explicit registry value
// ... removes the global"). This package never compresses or decompresses
// a single bit itself; it names the seam an external HEVC/AV1/VVC/JPEG/
// JPEG2000 implementation plugs into.
package codec

import (
	"sync"

	"github.com/go-heif/heif/pixelimage"
)

// Decoder is exposed by a decoder plugin, per spec.md 4.8: the core feeds
// it bitstream-configuration bytes (from the matching *C property) followed
// by the item's iloc payload, or, for sequences, each sample verbatim.
type Decoder interface {
	// NewDecoder returns a fresh decoder instance, independent of any other
	// in-flight instance (grid-tile decoding may run many concurrently).
	NewDecoder() DecoderInstance
}

// DecoderInstance is one decode session: push bytes, then pull an image.
type DecoderInstance interface {
	// PushData appends bitstream bytes (configuration record, then coded
	// payload) to this decoder's input.
	PushData(data []byte) error
	// DecodeImage runs the decode and returns the resulting pixel buffer.
	DecodeImage() (*pixelimage.Image, error)
	// SetStrictDecoding toggles strict-conformance mode, when supported.
	// Plugins that don't support the distinction may no-op it.
	SetStrictDecoding(strict bool)
	// FreeDecoder releases any resources this instance holds.
	FreeDecoder()
}

// Encoder is exposed by an encoder plugin, per spec.md 4.8.
type Encoder interface {
	// QueryInputColorspace reports the colorspace/chroma this encoder wants
	// its input pre-converted to.
	QueryInputColorspace(colorspace pixelimage.Colorspace, chroma pixelimage.Chroma) (pixelimage.Colorspace, pixelimage.Chroma)
	// QueryEncodedSize reports the size the encoder will actually produce
	// for a requested output size (some codecs pad to a macroblock grid).
	QueryEncodedSize(inWidth, inHeight, outWidth, outHeight int) (int, int)
	NewEncoder() EncoderInstance
}

// EncoderInstance is one encode session: push an image, then pull bytes.
type EncoderInstance interface {
	// EncodeImage pushes img (already converted to the queried
	// colorspace/chroma) into the encoder.
	EncodeImage(img *pixelimage.Image) error
	// ParameterSetBytes returns the emitted parameter-set NAL/OBU units —
	// the bytes a *C configuration property is synthesized from.
	ParameterSetBytes() [][]byte
	// PayloadBytes returns the emitted coded payload, to be appended to
	// iloc with a length prefix per spec.md 4.8.
	PayloadBytes() ([]byte, error)
	FreeEncoder()
}

// Registry maps an item-type or codec-config 4CC (e.g. "hvc1"/"hvcC",
// "av01"/"av1C") to the plugin that handles it. Held as a field on
// heif.Context rather than a package-level global, per spec.md 9's
// "Plugin registration" design note.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
	encoders map[string]Encoder
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders: map[string]Decoder{},
		encoders: map[string]Encoder{},
	}
}

// RegisterDecoder associates itemType (e.g. "hvc1") with d. A later call
// for the same itemType replaces the earlier registration.
func (r *Registry) RegisterDecoder(itemType string, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[itemType] = d
}

// RegisterEncoder associates itemType with e.
func (r *Registry) RegisterEncoder(itemType string, e Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[itemType] = e
}

// Decoder returns the decoder registered for itemType, or nil if none.
func (r *Registry) Decoder(itemType string) Decoder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.decoders[itemType]
}

// Encoder returns the encoder registered for itemType, or nil if none.
func (r *Registry) Encoder(itemType string) Encoder {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.encoders[itemType]
}
