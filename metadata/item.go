// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package metadata

import "fmt"

// ISOBMFF/HEIF item type and content type values (ISO/IEC 23008-12 Annex A)
// that DecodeItemPayload dispatches on. These are the same 4CC/MIME strings
// the container layer already compares items against; naming them here
// keeps the "which decoder does this item need" decision in one place
// instead of duplicated at every call site.
const (
	ExifItemType   = "Exif"
	MimeItemType   = "mime"
	XMPContentType = "application/rdf+xml"
)

// DecodeItemPayload decodes an ISOBMFF metadata item's payload given its
// item type (e.g. "Exif", "mime") and, for "mime" items, their declared
// content type (e.g. "application/rdf+xml" for an embedded XMP packet). It
// returns an error if the combination names neither Exif nor XMP, so a
// caller holding only an item's type strings and payload never needs its
// own switch over the format.
func DecodeItemPayload(itemType, contentType string, data []byte, opts Options) (Tags, error) {
	switch {
	case itemType == ExifItemType:
		return DecodeExif(data, opts)
	case itemType == MimeItemType && contentType == XMPContentType:
		return DecodeXMP(data, opts)
	default:
		return Tags{}, fmt.Errorf("metadata: item type %q (content-type %q) is neither Exif nor XMP", itemType, contentType)
	}
}
