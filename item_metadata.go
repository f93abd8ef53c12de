// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package heif

import (
	"github.com/go-heif/heif/bitio"
	"github.com/go-heif/heif/metadata"
)

// IsExif reports whether item carries an Exif metadata block (item type "Exif").
func (i *Item) IsExif() bool { return i.Type == fccExif }

// IsXMP reports whether item carries an XMP packet: a "mime" item whose
// content type is "application/rdf+xml", per ISO/IEC 23008-12 Annex A.
func (i *Item) IsXMP() bool {
	return i.Type == fccMimeType && i.ContentType == metadata.XMPContentType
}

// IsRegionAnnotation reports whether item is a region annotation ("rgan").
// The region geometry encoding itself is not parsed; RegionAnnotationBytes
// exposes the raw payload so callers that need it can decode it themselves.
func (i *Item) IsRegionAnnotation() bool { return i.Type == fccRgan }

// ItemBytes returns id's fully resolved byte payload, following file, idat
// and item-offset construction methods as needed. This is the same
// resolution used internally to hand codec payloads to a decoder plugin;
// it is exported so callers can read opaque item types (region annotations,
// unrecognised mime items) without a dedicated accessor.
func (c *ItemCollection) ItemBytes(fileReader *bitio.Reader, id uint32) ([]byte, error) {
	return c.itemBytes(fileReader, id)
}

// RegionAnnotationBytes returns item i's raw "rgan" payload, or an error if i
// is not a region annotation.
func (c *ItemCollection) RegionAnnotationBytes(fileReader *bitio.Reader, i *Item) ([]byte, error) {
	if !i.IsRegionAnnotation() {
		return nil, newError(InvalidInput, SubKindUnsupportedVariant, "item %d is not a region annotation", i.ID)
	}
	return c.ItemBytes(fileReader, i.ID)
}

// ItemMetadata decodes item id's Exif or XMP payload into metadata.Tags.
// It returns an error if id does not name an Exif or XMP item.
func (f *File) ItemMetadata(id uint32) (metadata.Tags, error) {
	if f.Items == nil {
		return metadata.Tags{}, newError(InvalidInput, SubKindMissingRequiredBox, "file has no item collection")
	}
	item := f.Items.Item(id)
	if item == nil {
		return metadata.Tags{}, newError(InvalidInput, SubKindItemNotFound, "item %d not found", id)
	}

	data, err := f.Items.ItemBytes(f.reader, id)
	if err != nil {
		return metadata.Tags{}, err
	}

	opts := metadata.Options{Warnf: func(format string, args ...any) { f.ctx.warnf(format, args...) }}

	tags, err := metadata.DecodeItemPayload(item.Type.String(), item.ContentType, data, opts)
	if err != nil {
		return metadata.Tags{}, wrapErrorf(err, InvalidInput, SubKindUnsupportedVariant, "item %d", id)
	}
	return tags, nil
}
