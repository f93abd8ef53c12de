// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package heif

import "github.com/go-heif/heif/bitio"

func init() {
	registerBox("ispe", func() box { return &ispeBox{} })
	registerBox("hvcC", func() box { return &hvcCBox{} })
	registerBox("av1C", func() box { return &av1CBox{} })
	registerBox("vvcC", func() box { return &vvcCBox{} })
	registerBox("colr", func() box { return &colrBox{} })
	registerBox("irot", func() box { return &irotBox{} })
	registerBox("imir", func() box { return &imirBox{} })
	registerBox("clap", func() box { return &clapBox{} })
	registerBox("pixi", func() box { return &pixiBox{} })
	registerBox("pasp", func() box { return &paspBox{} })
	registerBox("clli", func() box { return &clliBox{} })
	registerBox("mdcv", func() box { return &mdcvBox{} })
	registerBox("auxC", func() box { return &auxCBox{} })
	registerBox("cmpd", func() box { return &cmpdBox{} })
	registerBox("uncC", func() box { return &uncCBox{} })
	registerBox("j2kH", func() box { return &j2kHBox{} })
}

// ispeBox declares the canvas a displayed image is decoded against, per
// spec.md 4.3 ("ispe precedes any transform that references the displayed
// canvas"). Grounded on the teacher's inline ispe read in
// imagedecoder_heif.go (version+flags skip, then two u32).
type ispeBox struct {
	fullBoxHeader
	Width, Height uint32
}

func (b *ispeBox) fourCC() bitio.FourCC              { return bitio.NewFourCC("ispe") }
func (b *ispeBox) version() uint8                    { return b.Version }
func (b *ispeBox) flags() uint32                     { return b.Flags }
func (b *ispeBox) setVersionFlags(v uint8, f uint32) { b.Version, b.Flags = v, f }

func (b *ispeBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.fullBoxHeader = readFullBoxHeader(r)
	b.Width = r.ReadU32()
	b.Height = r.ReadU32()
	return nil
}

func (b *ispeBox) writeBody(ctx *Context, w *bitio.Writer) error {
	writeFullBoxHeader(w, b.fullBoxHeader)
	w.WriteU32(b.Width)
	w.WriteU32(b.Height)
	return nil
}

// naluArray is one array of same-typed parameter-set NAL units inside an
// hvcC/vvcC configuration record, per spec.md 4.3 ("arrays of parameter-set
// NAL/OBU units ... with 16-bit length prefixes for HEVC/VVC"). Grounded on
// go-webdl-media-codec's HEVCDecoderConfigurationRecord.NaluArray.
type naluArray struct {
	ArrayCompleteness bool
	NALUnitType       uint8
	NALUs             [][]byte
}

func readNaluArrays(r *bitio.Reader, count int, typeBits uint8) []naluArray {
	arrays := make([]naluArray, 0, count)
	for range count {
		head := r.ReadU8()
		a := naluArray{
			ArrayCompleteness: head&0x80 != 0,
			NALUnitType:       head & typeBits,
		}
		naluCount := int(r.ReadU16())
		for range naluCount {
			length := int(r.ReadU16())
			a.NALUs = append(a.NALUs, r.ReadBytes(length))
		}
		arrays = append(arrays, a)
	}
	return arrays
}

func writeNaluArrays(w *bitio.Writer, arrays []naluArray) {
	w.WriteU8(uint8(len(arrays)))
	for _, a := range arrays {
		head := a.NALUnitType
		if a.ArrayCompleteness {
			head |= 0x80
		}
		w.WriteU8(head)
		w.WriteU16(uint16(len(a.NALUs)))
		for _, nalu := range a.NALUs {
			w.WriteU16(uint16(len(nalu)))
			w.WriteBytes(nalu)
		}
	}
}

// hvcCBox is the HEVC decoder configuration record, per spec.md 4.3.
// Grounded field-for-field on go-webdl-media-codec's
// HEVCDecoderConfigurationRecord.RecordRead/RecordWrite.
type hvcCBox struct {
	ConfigurationVersion             uint8
	GeneralProfileSpace              uint8
	GeneralTierFlag                  bool
	GeneralProfileIDC                uint8
	GeneralProfileCompatibilityFlags uint32
	GeneralConstraintIndicatorFlags  uint64
	GeneralLevelIDC                  uint8
	MinSpatialSegmentationIDC        uint16
	ParallelismType                  uint8
	ChromaFormatIDC                  uint8
	BitDepthLumaMinus8               uint8
	BitDepthChromaMinus8             uint8
	AvgFrameRate                     uint16
	ConstantFrameRate                uint8
	NumTemporalLayers                uint8
	TemporalIDNested                 bool
	LengthSizeMinusOne               uint8
	NaluArrays                       []naluArray
}

func (b *hvcCBox) fourCC() bitio.FourCC { return bitio.NewFourCC("hvcC") }

func (b *hvcCBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.ConfigurationVersion = r.ReadU8()
	b1 := r.ReadU8()
	b.GeneralProfileSpace = b1 >> 6
	b.GeneralTierFlag = b1&0x20 != 0
	b.GeneralProfileIDC = b1 & 0x1f
	b.GeneralProfileCompatibilityFlags = r.ReadU32()
	hi := r.ReadU16()
	lo := r.ReadU32()
	b.GeneralConstraintIndicatorFlags = uint64(hi)<<32 | uint64(lo)
	b.GeneralLevelIDC = r.ReadU8()
	b.MinSpatialSegmentationIDC = r.ReadU16() & 0x0fff
	b.ParallelismType = r.ReadU8() & 0x03
	b.ChromaFormatIDC = r.ReadU8() & 0x03
	b.BitDepthLumaMinus8 = r.ReadU8() & 0x07
	b.BitDepthChromaMinus8 = r.ReadU8() & 0x07
	b.AvgFrameRate = r.ReadU16()
	last := r.ReadU8()
	b.ConstantFrameRate = last >> 6
	b.NumTemporalLayers = (last >> 3) & 0x07
	b.TemporalIDNested = last&0x04 != 0
	b.LengthSizeMinusOne = last & 0x03
	count := int(r.ReadU8())
	b.NaluArrays = readNaluArrays(r, count, 0x3f)
	return nil
}

func (b *hvcCBox) writeBody(ctx *Context, w *bitio.Writer) error {
	w.WriteU8(b.ConfigurationVersion)
	b1 := b.GeneralProfileSpace<<6 | b.GeneralProfileIDC&0x1f
	if b.GeneralTierFlag {
		b1 |= 0x20
	}
	w.WriteU8(b1)
	w.WriteU32(b.GeneralProfileCompatibilityFlags)
	w.WriteU16(uint16(b.GeneralConstraintIndicatorFlags >> 32))
	w.WriteU32(uint32(b.GeneralConstraintIndicatorFlags))
	w.WriteU8(b.GeneralLevelIDC)
	w.WriteU16(b.MinSpatialSegmentationIDC | 0xf000)
	w.WriteU8(b.ParallelismType | 0xfc)
	w.WriteU8(b.ChromaFormatIDC | 0xfc)
	w.WriteU8(b.BitDepthLumaMinus8 | 0xf8)
	w.WriteU8(b.BitDepthChromaMinus8 | 0xf8)
	w.WriteU16(b.AvgFrameRate)
	last := b.ConstantFrameRate<<6 | b.NumTemporalLayers&0x07<<3 | b.LengthSizeMinusOne&0x03
	if b.TemporalIDNested {
		last |= 0x04
	}
	w.WriteU8(last)
	writeNaluArrays(w, b.NaluArrays)
	return nil
}

// av1CBox is the AV1 codec configuration record: a small fixed header
// followed by the AV1 sequence header OBU(s) needed to begin decoding, per
// spec.md 4.3 ("av1C carries OBUs directly"). No configuration-record
// source file was retrieved for AV1 (unlike hvcC), so this follows the
// published av1C layout directly rather than a corpus example.
type av1CBox struct {
	SeqProfile           uint8
	SeqLevelIdx0         uint8
	SeqTier0             uint8
	HighBitdepth         bool
	TwelveBit            bool
	Monochrome           bool
	ChromaSubsamplingX   bool
	ChromaSubsamplingY   bool
	ChromaSamplePosition uint8
	InitialPresentationDelayPresent bool
	InitialPresentationDelayMinus1  uint8
	ConfigOBUs                      []byte
}

func (b *av1CBox) fourCC() bitio.FourCC { return bitio.NewFourCC("av1C") }

func (b *av1CBox) parseBody(ctx *Context, r *bitio.Reader) error {
	r.ReadU8() // marker (1 bit) + version (7 bits)
	pl := r.ReadU8()
	b.SeqProfile = (pl >> 5) & 0x07
	b.SeqLevelIdx0 = pl & 0x1f

	flags := r.ReadU8()
	b.SeqTier0 = flags >> 7
	b.HighBitdepth = flags&0x40 != 0
	b.TwelveBit = flags&0x20 != 0
	b.Monochrome = flags&0x10 != 0
	b.ChromaSubsamplingX = flags&0x08 != 0
	b.ChromaSubsamplingY = flags&0x04 != 0
	b.ChromaSamplePosition = flags & 0x03

	delay := r.ReadU8()
	b.InitialPresentationDelayPresent = delay&0x10 != 0
	if b.InitialPresentationDelayPresent {
		b.InitialPresentationDelayMinus1 = delay & 0x0f
	}

	b.ConfigOBUs = r.ReadBytes(int(r.Remaining()))
	return nil
}

func (b *av1CBox) writeBody(ctx *Context, w *bitio.Writer) error {
	w.WriteU8(0x81) // marker = 1, version = 1
	w.WriteU8((b.SeqProfile&0x07)<<5 | b.SeqLevelIdx0&0x1f)

	flags := b.SeqTier0 << 7
	if b.HighBitdepth {
		flags |= 0x40
	}
	if b.TwelveBit {
		flags |= 0x20
	}
	if b.Monochrome {
		flags |= 0x10
	}
	if b.ChromaSubsamplingX {
		flags |= 0x08
	}
	if b.ChromaSubsamplingY {
		flags |= 0x04
	}
	flags |= b.ChromaSamplePosition & 0x03
	w.WriteU8(flags)

	delay := uint8(0)
	if b.InitialPresentationDelayPresent {
		delay = 0x10 | b.InitialPresentationDelayMinus1&0x0f
	}
	w.WriteU8(delay)

	w.WriteBytes(b.ConfigOBUs)
	return nil
}

// vvcCBox is the VVC decoder configuration record, structured like hvcC
// (spec.md 4.3 groups hvcC/av1C/vvcC as one family) but with VVC's own
// per-array nesting (each array groups NAL units by layer/PTL), simplified
// here to the same flat (type, NAL list) shape the library actually needs
// for parameter-set extraction.
type vvcCBox struct {
	GeneralProfileIDC   uint8
	GeneralTierFlag     bool
	GeneralSubProfileIDC uint32
	GeneralLevelIDC     uint8
	ChromaFormatIDC     uint8
	BitDepthMinus8      uint8
	LengthSizeMinusOne  uint8
	NaluArrays          []naluArray
}

func (b *vvcCBox) fourCC() bitio.FourCC { return bitio.NewFourCC("vvcC") }

func (b *vvcCBox) parseBody(ctx *Context, r *bitio.Reader) error {
	r.ReadU8() // reserved/LengthSizeMinusOne upper bits, general info flag
	ptl := r.ReadU8()
	b.GeneralProfileIDC = ptl >> 1
	b.GeneralTierFlag = ptl&0x01 != 0
	b.GeneralLevelIDC = r.ReadU8()
	b.GeneralSubProfileIDC = r.ReadU32()
	cf := r.ReadU8()
	b.ChromaFormatIDC = cf >> 5 & 0x03
	b.BitDepthMinus8 = cf >> 2 & 0x07
	b.LengthSizeMinusOne = cf & 0x03
	count := int(r.ReadU8())
	b.NaluArrays = readNaluArrays(r, count, 0x1f)
	return nil
}

func (b *vvcCBox) writeBody(ctx *Context, w *bitio.Writer) error {
	w.WriteU8(0)
	ptl := b.GeneralProfileIDC << 1
	if b.GeneralTierFlag {
		ptl |= 0x01
	}
	w.WriteU8(ptl)
	w.WriteU8(b.GeneralLevelIDC)
	w.WriteU32(b.GeneralSubProfileIDC)
	w.WriteU8(b.ChromaFormatIDC<<5 | b.BitDepthMinus8<<2 | b.LengthSizeMinusOne&0x03)
	writeNaluArrays(w, b.NaluArrays)
	return nil
}

// colrBox is a color-profile property: either "nclx" coding-independent
// code points or raw ICC bytes under "rICC"/"prof", per spec.md 4.3.
type colrBox struct {
	ColourType                bitio.FourCC
	ColourPrimaries           uint16
	TransferCharacteristics   uint16
	MatrixCoefficients        uint16
	FullRangeFlag             bool
	ICC                       []byte
}

func (b *colrBox) fourCC() bitio.FourCC { return bitio.NewFourCC("colr") }

var (
	fccColourNCLX = bitio.NewFourCC("nclx")
	fccColourRICC = bitio.NewFourCC("rICC")
	fccColourProf = bitio.NewFourCC("prof")
)

func (b *colrBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.ColourType = r.ReadFourCC()
	switch b.ColourType {
	case fccColourNCLX:
		b.ColourPrimaries = r.ReadU16()
		b.TransferCharacteristics = r.ReadU16()
		b.MatrixCoefficients = r.ReadU16()
		b.FullRangeFlag = r.ReadU8()&0x80 != 0
	case fccColourRICC, fccColourProf:
		b.ICC = r.ReadBytes(int(r.Remaining()))
	default:
		return newError(Unsupported, SubKindInvalidBrand, "colr: unsupported colour_type %q", b.ColourType)
	}
	return nil
}

func (b *colrBox) writeBody(ctx *Context, w *bitio.Writer) error {
	w.WriteFourCC(b.ColourType)
	switch b.ColourType {
	case fccColourNCLX:
		w.WriteU16(b.ColourPrimaries)
		w.WriteU16(b.TransferCharacteristics)
		w.WriteU16(b.MatrixCoefficients)
		flag := uint8(0)
		if b.FullRangeFlag {
			flag = 0x80
		}
		w.WriteU8(flag)
	case fccColourRICC, fccColourProf:
		w.WriteBytes(b.ICC)
	}
	return nil
}

// irotBox rotates the displayed image counter-clockwise by Angle*90°, per
// spec.md 4.3 ("2-bit rotation k, interpreted as k·90° counter-clockwise").
type irotBox struct {
	Angle uint8
}

func (b *irotBox) fourCC() bitio.FourCC { return bitio.NewFourCC("irot") }

func (b *irotBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.Angle = r.ReadU8() & 0x03
	return nil
}

func (b *irotBox) writeBody(ctx *Context, w *bitio.Writer) error {
	w.WriteU8(b.Angle & 0x03)
	return nil
}

// imirBox mirrors the displayed image about a vertical or horizontal axis,
// per spec.md 4.3 ("1-bit axis, vertical vs horizontal").
type imirBox struct {
	// Vertical reports whether the mirror axis is the vertical axis (a
	// left-right flip); false is the horizontal axis (a top-bottom flip).
	Vertical bool
}

func (b *imirBox) fourCC() bitio.FourCC { return bitio.NewFourCC("imir") }

func (b *imirBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.Vertical = r.ReadU8()&0x01 == 0
	return nil
}

func (b *imirBox) writeBody(ctx *Context, w *bitio.Writer) error {
	v := uint8(1)
	if b.Vertical {
		v = 0
	}
	w.WriteU8(v)
	return nil
}

// rational32 is a signed 32/32 rational, used by clap's four fields.
type rational32 struct {
	Num, Den int32
}

// clapBox is the clean-aperture (display crop) property: four signed
// rationals, per spec.md 4.3 ("derive the displayed crop window by
// computing the picture center ... then ± (cleanSize-1)/2 on each axis").
type clapBox struct {
	CleanApertureWidth  rational32
	CleanApertureHeight rational32
	HorizOffset         rational32
	VertOffset          rational32
}

func (b *clapBox) fourCC() bitio.FourCC { return bitio.NewFourCC("clap") }

func readRational32(r *bitio.Reader) rational32 {
	return rational32{Num: r.ReadI32(), Den: r.ReadI32()}
}

func writeRational32(w *bitio.Writer, v rational32) {
	w.WriteI32(v.Num)
	w.WriteI32(v.Den)
}

func (b *clapBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.CleanApertureWidth = readRational32(r)
	b.CleanApertureHeight = readRational32(r)
	b.HorizOffset = readRational32(r)
	b.VertOffset = readRational32(r)
	return nil
}

func (b *clapBox) writeBody(ctx *Context, w *bitio.Writer) error {
	writeRational32(w, b.CleanApertureWidth)
	writeRational32(w, b.CleanApertureHeight)
	writeRational32(w, b.HorizOffset)
	writeRational32(w, b.VertOffset)
	return nil
}

// pixiBox declares the per-channel bit depth of the decoded image, used to
// cross-check a decoder's actual output (spec.md 8, "pixi disagreement").
type pixiBox struct {
	fullBoxHeader
	BitsPerChannel []uint8
}

func (b *pixiBox) fourCC() bitio.FourCC              { return bitio.NewFourCC("pixi") }
func (b *pixiBox) version() uint8                    { return b.Version }
func (b *pixiBox) flags() uint32                     { return b.Flags }
func (b *pixiBox) setVersionFlags(v uint8, f uint32) { b.Version, b.Flags = v, f }

func (b *pixiBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.fullBoxHeader = readFullBoxHeader(r)
	count := r.ReadU8()
	for range count {
		b.BitsPerChannel = append(b.BitsPerChannel, r.ReadU8())
	}
	return nil
}

func (b *pixiBox) writeBody(ctx *Context, w *bitio.Writer) error {
	writeFullBoxHeader(w, b.fullBoxHeader)
	w.WriteU8(uint8(len(b.BitsPerChannel)))
	for _, v := range b.BitsPerChannel {
		w.WriteU8(v)
	}
	return nil
}

// paspBox declares the pixel aspect ratio (non-square pixels).
type paspBox struct {
	HSpacing, VSpacing uint32
}

func (b *paspBox) fourCC() bitio.FourCC { return bitio.NewFourCC("pasp") }

func (b *paspBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.HSpacing = r.ReadU32()
	b.VSpacing = r.ReadU32()
	return nil
}

func (b *paspBox) writeBody(ctx *Context, w *bitio.Writer) error {
	w.WriteU32(b.HSpacing)
	w.WriteU32(b.VSpacing)
	return nil
}

// clliBox is the content-light-level side-data property (CTA-861.3).
type clliBox struct {
	MaxContentLightLevel     uint16
	MaxPicAverageLightLevel  uint16
}

func (b *clliBox) fourCC() bitio.FourCC { return bitio.NewFourCC("clli") }

func (b *clliBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.MaxContentLightLevel = r.ReadU16()
	b.MaxPicAverageLightLevel = r.ReadU16()
	return nil
}

func (b *clliBox) writeBody(ctx *Context, w *bitio.Writer) error {
	w.WriteU16(b.MaxContentLightLevel)
	w.WriteU16(b.MaxPicAverageLightLevel)
	return nil
}

// mdcvBox is the mastering-display-color-volume side-data property
// (SMPTE ST 2086): three display primaries, a white point, and
// max/min display mastering luminance.
type mdcvBox struct {
	DisplayPrimariesX       [3]uint16
	DisplayPrimariesY       [3]uint16
	WhitePointX, WhitePointY uint16
	MaxDisplayMasteringLuminance uint32
	MinDisplayMasteringLuminance uint32
}

func (b *mdcvBox) fourCC() bitio.FourCC { return bitio.NewFourCC("mdcv") }

func (b *mdcvBox) parseBody(ctx *Context, r *bitio.Reader) error {
	for i := range b.DisplayPrimariesX {
		b.DisplayPrimariesX[i] = r.ReadU16()
		b.DisplayPrimariesY[i] = r.ReadU16()
	}
	b.WhitePointX = r.ReadU16()
	b.WhitePointY = r.ReadU16()
	b.MaxDisplayMasteringLuminance = r.ReadU32()
	b.MinDisplayMasteringLuminance = r.ReadU32()
	return nil
}

func (b *mdcvBox) writeBody(ctx *Context, w *bitio.Writer) error {
	for i := range b.DisplayPrimariesX {
		w.WriteU16(b.DisplayPrimariesX[i])
		w.WriteU16(b.DisplayPrimariesY[i])
	}
	w.WriteU16(b.WhitePointX)
	w.WriteU16(b.WhitePointY)
	w.WriteU32(b.MaxDisplayMasteringLuminance)
	w.WriteU32(b.MinDisplayMasteringLuminance)
	return nil
}

// auxCBox names the semantic type of an auxiliary image item (e.g. an alpha
// or depth URN), per spec.md 4.3/95 ("auxC aux-type equals an alpha or
// depth URN").
type auxCBox struct {
	fullBoxHeader
	AuxType    string
	AuxSubtype []byte
}

func (b *auxCBox) fourCC() bitio.FourCC              { return bitio.NewFourCC("auxC") }
func (b *auxCBox) version() uint8                    { return b.Version }
func (b *auxCBox) flags() uint32                     { return b.Flags }
func (b *auxCBox) setVersionFlags(v uint8, f uint32) { b.Version, b.Flags = v, f }

// Well-known auxiliary-type URNs, per spec.md's "alpha or depth URN".
const (
	auxTypeAlphaURN = "urn:mpeg:hevc:2015:auxid:1"
	auxTypeDepthURN = "urn:mpeg:hevc:2015:auxid:2"
)

func (b *auxCBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.fullBoxHeader = readFullBoxHeader(r)
	b.AuxType = r.ReadNulString()
	b.AuxSubtype = r.ReadBytes(int(r.Remaining()))
	return nil
}

func (b *auxCBox) writeBody(ctx *Context, w *bitio.Writer) error {
	writeFullBoxHeader(w, b.fullBoxHeader)
	w.WriteNulString(b.AuxType)
	w.WriteBytes(b.AuxSubtype)
	return nil
}

func (b *auxCBox) isAlpha() bool { return b.AuxType == auxTypeAlphaURN }
func (b *auxCBox) isDepth() bool { return b.AuxType == auxTypeDepthURN }

// componentType enumerates cmpd's component-type codes, per spec.md 4.3
// ("Y=1, Cb=2, Cr=3, R=4, G=5, B=6, Alpha=7, or a URI for custom").
type componentType uint16

const (
	componentY             componentType = 1
	componentCb            componentType = 2
	componentCr            componentType = 3
	componentRed           componentType = 4
	componentGreen         componentType = 5
	componentBlue          componentType = 6
	componentAlpha         componentType = 7
	componentCustomMarker  componentType = 0x8000
)

// cmpdComponent is one entry of a cmpd component-type list.
type cmpdComponent struct {
	Type componentType
	URI  string // present only when Type's custom bit is set
}

// cmpdBox lists the component types an uncompressed image carries, per
// spec.md 4.3 ("cmpd + uncC describe uncompressed ISO/IEC 23001-17 pixel
// layout ... cmpd lists component types").
type cmpdBox struct {
	Components []cmpdComponent
}

func (b *cmpdBox) fourCC() bitio.FourCC { return bitio.NewFourCC("cmpd") }

func (b *cmpdBox) parseBody(ctx *Context, r *bitio.Reader) error {
	count := r.ReadU32()
	for range count {
		t := componentType(r.ReadU16())
		c := cmpdComponent{Type: t}
		if t&componentCustomMarker != 0 {
			c.URI = r.ReadNulString()
		}
		b.Components = append(b.Components, c)
	}
	return nil
}

func (b *cmpdBox) writeBody(ctx *Context, w *bitio.Writer) error {
	w.WriteU32(uint32(len(b.Components)))
	for _, c := range b.Components {
		w.WriteU16(uint16(c.Type))
		if c.Type&componentCustomMarker != 0 {
			w.WriteNulString(c.URI)
		}
	}
	return nil
}

// uncCComponent is one per-component layout descriptor inside uncC.
type uncCComponent struct {
	Index      uint16
	BitDepthMinus1 uint8
	Format     uint8
	AlignSize  uint8
}

// uncCBox declares the uncompressed pixel layout (ISO/IEC 23001-17), per
// spec.md 4.3. This implements the subset the library documents as
// supported: planar or pixel-interleaved layout, no tiling, no per-row
// padding beyond the declared component alignment; other combinations parse
// successfully (the box's fields are preserved) but fail at use time with
// SubKindUnsupportedUncompressedLayout, per spec.md 4.3's "supported subset
// documented alongside the implementation; unsupported combinations are a
// parse-success / use-error" policy.
type uncCBox struct {
	fullBoxHeader
	Profile           bitio.FourCC
	Components        []uncCComponent
	SamplingType      uint8
	InterleaveType    uint8
	BlockSize         uint8
	ComponentsLittleEndian bool
	BlockPadLSB       bool
	BlockLittleEndian bool
	BlockReversed     bool
	PadUnknown        bool
	PixelSize         uint32
	RowAlignSize      uint32
	TileAlignSize     uint32
	NumTileColsMinus1 uint32
	NumTileRowsMinus1 uint32
}

const (
	uncCInterleavePlanar    = 0
	uncCInterleavePixel     = 1
	uncCInterleaveMixed     = 2
	uncCInterleaveRow       = 3
	uncCInterleaveTileComponent = 4
)

func (b *uncCBox) fourCC() bitio.FourCC              { return bitio.NewFourCC("uncC") }
func (b *uncCBox) version() uint8                    { return b.Version }
func (b *uncCBox) flags() uint32                     { return b.Flags }
func (b *uncCBox) setVersionFlags(v uint8, f uint32) { b.Version, b.Flags = v, f }

func (b *uncCBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.fullBoxHeader = readFullBoxHeader(r)

	if b.Version == 0 {
		// Version 0 is the legacy "profile only" form: a single 4CC naming
		// a well-known pixel format, no explicit component table.
		b.Profile = r.ReadFourCC()
		return nil
	}

	count := r.ReadU32()
	for range count {
		c := uncCComponent{}
		c.Index = r.ReadU16()
		c.BitDepthMinus1 = r.ReadU8()
		c.Format = r.ReadU8()
		c.AlignSize = r.ReadU8()
		b.Components = append(b.Components, c)
	}

	b.SamplingType = r.ReadU8()
	b.InterleaveType = r.ReadU8()
	b.BlockSize = r.ReadU8()

	flags := r.ReadU8()
	b.ComponentsLittleEndian = flags&0x80 != 0
	b.BlockPadLSB = flags&0x40 != 0
	b.BlockLittleEndian = flags&0x20 != 0
	b.BlockReversed = flags&0x10 != 0
	b.PadUnknown = flags&0x08 != 0

	b.PixelSize = r.ReadU32()
	b.RowAlignSize = r.ReadU32()
	b.TileAlignSize = r.ReadU32()
	b.NumTileColsMinus1 = r.ReadU32()
	b.NumTileRowsMinus1 = r.ReadU32()
	return nil
}

func (b *uncCBox) writeBody(ctx *Context, w *bitio.Writer) error {
	writeFullBoxHeader(w, b.fullBoxHeader)

	if b.Version == 0 {
		w.WriteFourCC(b.Profile)
		return nil
	}

	w.WriteU32(uint32(len(b.Components)))
	for _, c := range b.Components {
		w.WriteU16(c.Index)
		w.WriteU8(c.BitDepthMinus1)
		w.WriteU8(c.Format)
		w.WriteU8(c.AlignSize)
	}

	w.WriteU8(b.SamplingType)
	w.WriteU8(b.InterleaveType)
	w.WriteU8(b.BlockSize)

	flags := uint8(0)
	if b.ComponentsLittleEndian {
		flags |= 0x80
	}
	if b.BlockPadLSB {
		flags |= 0x40
	}
	if b.BlockLittleEndian {
		flags |= 0x20
	}
	if b.BlockReversed {
		flags |= 0x10
	}
	if b.PadUnknown {
		flags |= 0x08
	}
	w.WriteU8(flags)

	w.WriteU32(b.PixelSize)
	w.WriteU32(b.RowAlignSize)
	w.WriteU32(b.TileAlignSize)
	w.WriteU32(b.NumTileColsMinus1)
	w.WriteU32(b.NumTileRowsMinus1)
	return nil
}

// isSupportedLayout reports whether this uncC describes a layout file.go
// and item_derive.go know how to copy pixels for: planar or fully
// pixel-interleaved, untiled, per spec.md 4.3's documented subset.
func (b *uncCBox) isSupportedLayout() bool {
	if b.Version == 0 {
		return false
	}
	if b.NumTileColsMinus1 != 0 || b.NumTileRowsMinus1 != 0 {
		return false
	}
	return b.InterleaveType == uncCInterleavePlanar || b.InterleaveType == uncCInterleavePixel
}

// j2kHBox is the JPEG 2000 header property: a container carrying an
// embedded ihdr (image header) box and, optionally, a colr, per ISO/IEC
// 15444-1 Annex A and the mapping ISO/IEC 15444-16 defines for ISOBMFF.
// Not corpus-grounded (no JPEG2000 source file was retrieved in the
// example pack); modeled directly on the published j2kH/ihdr layout,
// analogous to how hvcC/av1C/vvcC wrap their own codec's configuration.
type j2kHBox struct {
	Width, Height     uint32
	NumComponents     uint16
	BitsPerComponent  uint8
	CompressionType   uint8
	UnknownColourspace bool
	Colour            *colrBox
}

func (b *j2kHBox) fourCC() bitio.FourCC { return bitio.NewFourCC("j2kH") }

func (b *j2kHBox) parseBody(ctx *Context, r *bitio.Reader) error {
	children, err := parseContainerChildren(ctx, r)
	if err != nil {
		return err
	}
	for _, c := range children {
		switch t := c.(type) {
		case *ihdrBox:
			b.Width, b.Height = t.Width, t.Height
			b.NumComponents = t.NumComponents
			b.BitsPerComponent = t.BitsPerComponent
			b.CompressionType = t.CompressionType
			b.UnknownColourspace = t.UnknownColourspace
		case *colrBox:
			b.Colour = t
		}
	}
	return nil
}

func (b *j2kHBox) writeBody(ctx *Context, w *bitio.Writer) error {
	ihdr := &ihdrBox{
		Width:              b.Width,
		Height:             b.Height,
		NumComponents:      b.NumComponents,
		BitsPerComponent:   b.BitsPerComponent,
		CompressionType:    b.CompressionType,
		UnknownColourspace: b.UnknownColourspace,
	}
	if err := writeBox(ctx, w, ihdr); err != nil {
		return err
	}
	if b.Colour != nil {
		return writeBox(ctx, w, b.Colour)
	}
	return nil
}

// ihdrBox is JPEG 2000's image header: dimensions, component count, and bit
// depth, per ISO/IEC 15444-1 Annex A.5.1. Registered standalone since it
// also appears bare inside a raw JP2 codestream wrapper in some producers.
type ihdrBox struct {
	Width, Height      uint32
	NumComponents      uint16
	BitsPerComponent   uint8
	CompressionType    uint8
	UnknownColourspace bool
}

func init() {
	registerBox("ihdr", func() box { return &ihdrBox{} })
}

func (b *ihdrBox) fourCC() bitio.FourCC { return bitio.NewFourCC("ihdr") }

func (b *ihdrBox) parseBody(ctx *Context, r *bitio.Reader) error {
	b.Height = r.ReadU32()
	b.Width = r.ReadU32()
	b.NumComponents = r.ReadU16()
	bpc := r.ReadU8()
	b.BitsPerComponent = (bpc & 0x7f) + 1
	b.CompressionType = r.ReadU8()
	b.UnknownColourspace = r.ReadU8() != 0
	r.Skip(1) // IPR flag
	return nil
}

func (b *ihdrBox) writeBody(ctx *Context, w *bitio.Writer) error {
	w.WriteU32(b.Height)
	w.WriteU32(b.Width)
	w.WriteU16(b.NumComponents)
	w.WriteU8(b.BitsPerComponent - 1)
	w.WriteU8(b.CompressionType)
	if b.UnknownColourspace {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
	w.WriteU8(0) // IPR
	return nil
}
