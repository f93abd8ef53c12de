// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package heif reads and writes still images and short image sequences
// packaged in the ISOBMFF/HEIF family of containers (HEIC, AVIF, and the
// JPEG/JPEG2000/VVC/uncompressed variants of ISO/IEC 23008-12 and
// ISO/IEC 23001-17). It mediates between a raw ISOBMFF byte stream and a
// decoded or encodable pixel image or image sequence; codec bitstream
// compression, colorspace math beyond NCLX/ICC passthrough, display, and
// CLI front-ends are external collaborators (see package codec).
package heif

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/go-heif/heif/bitio"
)

// box is a generic ISOBMFF box: a length-prefixed, type-tagged record.
// Every concrete box type (ftyp, meta, ispe, stsd, ...) satisfies this by
// embedding boxHeader and implementing parseBody/writeBody, replacing the
// runtime type-casts of a class hierarchy with a single discriminant check
// per spec.md 9 ("polymorphic box dispatch").
type box interface {
	// fourCC returns this box's 4CC (or "uuid" for extended types).
	fourCC() bitio.FourCC
	// parseBody reads this box's payload from r, which is already bounded
	// to exactly this box's content (header excluded).
	parseBody(ctx *Context, r *bitio.Reader) error
	// writeBody serializes this box's payload (header excluded) to w.
	writeBody(ctx *Context, w *bitio.Writer) error
}

// fullBox is implemented by boxes that carry a FullBox version+flags word.
// Most typed boxes implement this; container-only boxes like ipco do not.
type fullBox interface {
	box
	version() uint8
	flags() uint32
	setVersionFlags(version uint8, flags uint32)
}

// boxHeader is the common header every box parses before its typed body:
// size, 4CC (or UUID), and, for FullBox types, version+flags.
type boxHeader struct {
	// StartPos is the absolute offset of the size field.
	StartPos int64
	// Size is the total box size including the header, or 0 meaning
	// "extends to end of file".
	Size uint64
	// HeaderLen is the number of bytes consumed by size+type(+largesize)(+uuid).
	HeaderLen int
	Type      bitio.FourCC
	UUID      uuid.UUID
}

// end returns the absolute exclusive end of this box's content, or
// bitio.Unbounded if Size == 0.
func (h boxHeader) end() int64 {
	if h.Size == 0 {
		return bitio.Unbounded
	}
	return h.StartPos + int64(h.Size)
}

var fccUUID = bitio.NewFourCC("uuid")

// readBoxHeader reads size, type, optional largesize, and optional uuid
// from r, generalizing the inline readBox closure the teacher used only for
// ftyp/meta in imagedecoder_heif.go into a standalone, reusable step.
func readBoxHeader(r *bitio.Reader) (boxHeader, error) {
	start := r.Pos()
	size32 := r.ReadU32()
	typ := r.ReadFourCC()
	headerLen := 8
	size := uint64(size32)
	if size32 == 1 {
		size = r.ReadU64()
		headerLen += 8
	}
	var id uuid.UUID
	if typ == fccUUID {
		raw := r.ReadBytes(16)
		if r.EOF() {
			return boxHeader{}, wrapErrorf(r.Err(), InvalidInput, SubKindTruncatedBox, "uuid box header truncated")
		}
		copy(id[:], raw)
		headerLen += 16
	}
	if r.EOF() {
		return boxHeader{}, wrapErrorf(r.Err(), InvalidInput, SubKindTruncatedBox, "box header truncated")
	}
	if size != 0 && size < uint64(headerLen) {
		return boxHeader{}, newError(InvalidInput, SubKindBoxSizeInconsistent, "box %q declares size %d smaller than its own header (%d)", typ, size, headerLen)
	}
	return boxHeader{StartPos: start, Size: size, HeaderLen: headerLen, Type: typ, UUID: id}, nil
}

// fullBoxHeader is the version+flags word shared by every FullBox.
type fullBoxHeader struct {
	Version uint8
	Flags   uint32
}

func readFullBoxHeader(r *bitio.Reader) fullBoxHeader {
	vf := r.ReadU32()
	return fullBoxHeader{Version: uint8(vf >> 24), Flags: vf & 0x00FFFFFF}
}

func writeFullBoxHeader(w *bitio.Writer, h fullBoxHeader) {
	w.WriteU32(uint32(h.Version)<<24 | h.Flags&0x00FFFFFF)
}

// boxRegistry maps a recognized 4CC to its constructor. Unknown 4CCs parse
// as *rawBox: preserved opaquely, never an error, per spec.md 4.2.
var boxRegistry = map[bitio.FourCC]func() box{}

func registerBox(fcc string, ctor func() box) {
	boxRegistry[bitio.NewFourCC(fcc)] = ctor
}

// parseBox reads one box (header + body) from r, which must be positioned
// at a box boundary and bounded to the range the box may not exceed. depth
// limiting happens one level up in parseContainerChildren, since a single
// top-level parseBox call (e.g. the root ftyp) is never itself "too deep".
func parseBox(ctx *Context, r *bitio.Reader) (box, boxHeader, error) {
	hdr, err := readBoxHeader(r)
	if err != nil {
		return nil, hdr, err
	}

	end := hdr.end()
	var body *bitio.Reader
	if end == bitio.Unbounded {
		body = r.SubRangeUnbounded()
	} else {
		body = r.SubRange(end - r.Pos())
	}

	ctor, known := boxRegistry[hdr.Type]
	var b box
	if known {
		b = ctor()
	} else {
		b = &rawBox{typ: hdr.Type, uuid: hdr.UUID}
	}

	if err := b.parseBody(ctx, body); err != nil {
		return nil, hdr, err
	}
	if body.EOF() {
		return nil, hdr, wrapErrorf(body.Err(), InvalidInput, SubKindTruncatedBox, "box %q truncated", hdr.Type)
	}

	// Always leave the stream at the end of this box's declared range,
	// regardless of how much of it parseBody actually consumed — mirrors
	// the teacher's "always advance to innerEnd" discipline.
	if end != bitio.Unbounded {
		r.SeekTo(end)
	}

	return b, hdr, nil
}

// parseContainerChildren reads boxes from r until it is exhausted,
// enforcing MaxBoxDepth and MaxChildrenPerBox from ctx.Limits.
func parseContainerChildren(ctx *Context, r *bitio.Reader) ([]box, error) {
	if r.Depth() > ctx.Limits.MaxBoxDepth {
		return nil, newError(InvalidInput, SubKindTooDeeplyNested, "box nesting exceeds limit of %d", ctx.Limits.MaxBoxDepth)
	}
	var children []box
	for r.Remaining() > 0 {
		if len(children) >= ctx.Limits.MaxChildrenPerBox {
			return nil, newError(MemoryAllocation, SubKindSecurityLimitExceeded, "box has more than %d children", ctx.Limits.MaxChildrenPerBox)
		}
		// Need at least a minimal header to keep going.
		if r.Remaining() < 8 {
			break
		}
		b, _, err := parseBox(ctx, r)
		if err != nil {
			return nil, err
		}
		children = append(children, b)
	}
	return children, nil
}

// childrenOfType returns the sub-boxes of typ 4CC among children, in order.
func childrenOfType(children []box, typ bitio.FourCC) []box {
	var out []box
	for _, c := range children {
		if c.fourCC() == typ {
			out = append(out, c)
		}
	}
	return out
}

func firstChildOfType(children []box, typ bitio.FourCC) box {
	for _, c := range children {
		if c.fourCC() == typ {
			return c
		}
	}
	return nil
}

// extendedTypeBox is implemented by boxes that carry the 16-byte extended
// type following a "uuid" fourCC (ISO/IEC 14496-12 4.2: "if type=='uuid',
// 16 bytes usertype"). writeBox consults this to re-emit those bytes, since
// the fourCC alone can't carry them.
type extendedTypeBox interface {
	extendedType() uuid.UUID
}

// writeBox serializes b (header + body) to w, promoting to a 64-bit
// largesize header when the payload exceeds 2^32-9 bytes, per spec.md 4.2/8.2.
func writeBox(ctx *Context, w *bitio.Writer, b box) error {
	body := bitio.NewWriter()
	if err := b.writeBody(ctx, body); err != nil {
		return err
	}

	fcc := b.fourCC()
	payload := body.Bytes()
	headerLen := 8

	var extType uuid.UUID
	hasExtType := fcc == fccUUID
	if hasExtType {
		if eb, ok := b.(extendedTypeBox); ok {
			extType = eb.extendedType()
		}
		headerLen += 16
	}

	total64 := uint64(headerLen + len(payload))

	if total64-uint64(headerLen) > math.MaxUint32-9 {
		w.WriteU32(1)
		w.WriteFourCC(fcc)
		w.WriteU64(total64 + 8)
		if hasExtType {
			w.WriteBytes(extType[:])
		}
		w.WriteBytes(payload)
		return nil
	}

	w.WriteU32(uint32(total64))
	w.WriteFourCC(fcc)
	if hasExtType {
		w.WriteBytes(extType[:])
	}
	w.WriteBytes(payload)
	return nil
}

// rawBox is an opaque box whose children are not parsed: an unrecognized
// 4CC, preserved byte-for-byte so round-tripping never loses data even when
// this library doesn't understand the box's internal structure. When typ is
// "uuid", uuid also carries the 16-byte extended type readBoxHeader already
// peeled off the payload, so writeBox can re-emit it.
type rawBox struct {
	typ     bitio.FourCC
	uuid    uuid.UUID
	payload []byte
}

func (b *rawBox) fourCC() bitio.FourCC { return b.typ }

func (b *rawBox) extendedType() uuid.UUID { return b.uuid }

func (b *rawBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.payload = r.ReadBytes(int(r.Remaining()))
	return nil
}

func (b *rawBox) writeBody(ctx *Context, w *bitio.Writer) error {
	w.WriteBytes(b.payload)
	return nil
}

func (b *rawBox) String() string {
	return fmt.Sprintf("rawBox{%s, %d bytes}", b.typ, len(b.payload))
}
