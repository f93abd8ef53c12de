// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const (
	ipcCodedCharacterSet = 90
	iptcMetaDataBlockID  = 0x0404
)

type iptcField struct {
	Record     uint8
	RecordName string
	ID         uint8
	Name       string
	Format     string
	Repeatable bool
}

var iptcRerordNames = map[uint8]string{
	1:   "IPTCEnvelope",
	2:   "IPTCApplication",
	3:   "IPTCNewsPhoto",
	7:   "IPTCPreObjectData",
	8:   "IPTCObjectData",
	9:   "IPTCPostObjectData",
	240: "IPTCFotoStation",
}

// iptcRecordFields covers the IPTC Application Record (record 2), the one
// that in practice carries almost all IPTC-IIM metadata embedded in images.
// See https://exiftool.org/TagNames/IPTC.html.
var iptcRecordFields = map[uint8]map[uint8]iptcField{
	2: {
		0:   {Record: 2, ID: 0, Name: "RecordVersion", Format: "short"},
		5:   {Record: 2, ID: 5, Name: "ObjectName", Format: "string"},
		7:   {Record: 2, ID: 7, Name: "EditStatus", Format: "string"},
		10:  {Record: 2, ID: 10, Name: "Urgency", Format: "byte"},
		15:  {Record: 2, ID: 15, Name: "Category", Format: "string", Repeatable: true},
		20:  {Record: 2, ID: 20, Name: "SupplementalCategory", Format: "string", Repeatable: true},
		22:  {Record: 2, ID: 22, Name: "FixtureIdentifier", Format: "string"},
		25:  {Record: 2, ID: 25, Name: "Keywords", Format: "string", Repeatable: true},
		26:  {Record: 2, ID: 26, Name: "ContentLocationCode", Format: "string"},
		27:  {Record: 2, ID: 27, Name: "ContentLocationName", Format: "string"},
		30:  {Record: 2, ID: 30, Name: "ReleaseDate", Format: "string"},
		35:  {Record: 2, ID: 35, Name: "ReleaseTime", Format: "string"},
		37:  {Record: 2, ID: 37, Name: "ExpirationDate", Format: "string"},
		38:  {Record: 2, ID: 38, Name: "ExpirationTime", Format: "string"},
		40:  {Record: 2, ID: 40, Name: "SpecialInstructions", Format: "string"},
		42:  {Record: 2, ID: 42, Name: "ActionAdvised", Format: "byte"},
		45:  {Record: 2, ID: 45, Name: "ReferenceService", Format: "string"},
		47:  {Record: 2, ID: 47, Name: "ReferenceDate", Format: "string"},
		50:  {Record: 2, ID: 50, Name: "ReferenceNumber", Format: "string"},
		55:  {Record: 2, ID: 55, Name: "DateCreated", Format: "string"},
		60:  {Record: 2, ID: 60, Name: "TimeCreated", Format: "string"},
		62:  {Record: 2, ID: 62, Name: "DigitalCreationDate", Format: "string"},
		63:  {Record: 2, ID: 63, Name: "DigitalCreationTime", Format: "string"},
		65:  {Record: 2, ID: 65, Name: "OriginatingProgram", Format: "string"},
		70:  {Record: 2, ID: 70, Name: "ProgramVersion", Format: "string"},
		75:  {Record: 2, ID: 75, Name: "ObjectCycle", Format: "string"},
		80:  {Record: 2, ID: 80, Name: "By-line", Format: "string", Repeatable: true},
		85:  {Record: 2, ID: 85, Name: "By-lineTitle", Format: "string", Repeatable: true},
		90:  {Record: 2, ID: 90, Name: "City", Format: "string"},
		92:  {Record: 2, ID: 92, Name: "Sub-location", Format: "string"},
		95:  {Record: 2, ID: 95, Name: "Province-State", Format: "string"},
		100: {Record: 2, ID: 100, Name: "Country-PrimaryLocationCode", Format: "string"},
		101: {Record: 2, ID: 101, Name: "Country-PrimaryLocationName", Format: "string"},
		103: {Record: 2, ID: 103, Name: "OriginalTransmissionReference", Format: "string"},
		105: {Record: 2, ID: 105, Name: "Headline", Format: "string"},
		110: {Record: 2, ID: 110, Name: "Credit", Format: "string"},
		115: {Record: 2, ID: 115, Name: "Source", Format: "string"},
		116: {Record: 2, ID: 116, Name: "CopyrightNotice", Format: "string"},
		118: {Record: 2, ID: 118, Name: "Contact", Format: "string", Repeatable: true},
		120: {Record: 2, ID: 120, Name: "Caption-Abstract", Format: "string"},
		122: {Record: 2, ID: 122, Name: "Writer-Editor", Format: "string", Repeatable: true},
	},
	1: {
		90: {Record: 1, ID: 90, Name: "CodedCharacterSet", Format: "string"},
	},
}

func init() {
	for record, fields := range iptcRecordFields {
		name := getIptcRecordName(record)
		for id, f := range fields {
			f.RecordName = name
			iptcRecordFields[record][id] = f
		}
	}
}

type vcIPTC struct{}

func (c *vcIPTC) convertDateString(ctx valueConverterContext, v any) any {
	s := toString(v)
	if len(s) == 8 {
		return fmt.Sprintf("%s:%s:%s", s[:4], s[4:6], s[6:])
	}
	if len(s) == 10 {
		return fmt.Sprintf("%s:%s:%s", s[:4], s[5:7], s[8:])
	}
	return s
}

func (c *vcIPTC) convertTime(ctx valueConverterContext, v any) any {
	s := toString(v)
	if len(s) == 6 {
		return fmt.Sprintf("%s:%s:%s", s[:2], s[2:4], s[4:])
	}
	if len(s) == 11 {
		return fmt.Sprintf("%s:%s:%s%s:%s", s[:2], s[2:4], s[4:6], s[6:9], s[9:])
	}
	return s
}

var (
	iptcConverters        = &vcIPTC{}
	iptcValueConverterMap = map[string]valueConverter{
		"DateCreated":         iptcConverters.convertDateString,
		"DateSent":            iptcConverters.convertDateString,
		"DigitalCreationDate": iptcConverters.convertDateString,
		"DigitalCreationTime": iptcConverters.convertTime,
		"TimeSent":            iptcConverters.convertTime,
		"TimeCreated": func(ctx valueConverterContext, v any) any {
			s := toString(v)
			if len(s) == 11 {
				return fmt.Sprintf("%s:%s:%s%s:%s", s[:2], s[2:4], s[4:7], s[7:9], s[9:])
			}
			if len(s) == 6 {
				return fmt.Sprintf("%s:%s:%s", s[:2], s[2:4], s[4:])
			}
			return s
		},
		"ProgramVersion": func(ctx valueConverterContext, v any) any {
			s := toString(v)
			return strings.TrimSuffix(s, ".0")
		},
		"CodedCharacterSet": func(ctx valueConverterContext, v any) any {
			b, ok := v.([]byte)
			if !ok {
				return characterSetUTF8
			}
			s := resolveCodedCharacterSet(b)
			if s == "" {
				return characterSetUTF8
			}
			return s
		},
	}
)

// DecodeIPTC decodes a raw IPTC-IIM (record/dataset) byte stream, the same
// payload format used by a HEIF "iptc" mime item.
func DecodeIPTC(data []byte, opts Options) (tags Tags, err error) {
	opts.init()
	opts = withTagCollector(opts, &tags)

	defer func() {
		err = recoverDecodeError(recover(), err)
	}()

	dec := newMetaDecoderIPTC(bytes.NewReader(data), opts)
	err = dec.decodeRecords()
	err = finalDecodeError(err, dec.streamReader)
	return tags, err
}

// DecodeIPTCBlocks decodes IPTC-IIM data wrapped in Photoshop "8BIM" resource
// blocks (an "IRB"), as seen when IPTC metadata is round-tripped through a
// JPEG editor before being re-embedded in a HEIF mime item.
func DecodeIPTCBlocks(data []byte, opts Options) (tags Tags, err error) {
	opts.init()
	opts = withTagCollector(opts, &tags)

	defer func() {
		err = recoverDecodeError(recover(), err)
	}()

	dec := newMetaDecoderIPTC(bytes.NewReader(data), opts)
	err = dec.decodeBlocks()
	err = finalDecodeError(err, dec.streamReader)
	return tags, err
}

func newMetaDecoderIPTC(r io.Reader, opts Options) *metaDecoderIPTC {
	s := newStreamReader(r, binary.BigEndian)
	return &metaDecoderIPTC{
		streamReader:           s,
		iso88591CharsetDecoder: charmap.ISO8859_1.NewDecoder(),
		valueConverterContext: valueConverterContext{
			s:         s,
			warnfFunc: opts.Warnf,
		},
		opts: opts,
	}
}

type metaDecoderIPTC struct {
	*streamReader

	charset                string
	iso88591CharsetDecoder *encoding.Decoder
	valueConverterContext  valueConverterContext

	opts Options
}

// decodeRecords decodes the IPTC records delimited by 0x1C.
func (e *metaDecoderIPTC) decodeRecords() (err error) {
	stringSlices := make(map[TagInfo][]string)
	for {
		var marker uint8
		if err := binary.Read(e.r, e.byteOrder, &marker); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}

		if marker != 0x1C {
			break
		}

		if err := e.decodeRecord(stringSlices); err != nil {
			return err
		}
	}

	return e.handleStringSlices(stringSlices)
}

func (e *metaDecoderIPTC) handleStringSlices(m map[TagInfo][]string) error {
	if len(m) == 0 {
		return nil
	}
	for ti, values := range m {
		if len(values) == 0 || len(values) > 1 {
			ti.Value = values
		} else {
			ti.Value = values[0]
		}
		if err := e.opts.HandleTag(ti); err != nil {
			return err
		}
	}
	return nil
}

// decodeBlocks decodes IPTC data embedded in 8BIM segments (e.g. a Photoshop
// "IRB" blob), assuming a reader that starts out at the first "8BIM" marker.
func (e *metaDecoderIPTC) decodeBlocks() (err error) {
	stringSlices := make(map[TagInfo][]string)

	decodeBlock := func() error {
		blockType := e.readBytesVolatile(4)

		if string(blockType) != "8BIM" {
			return errStop
		}

		identifier := e.read2()
		isNotMeta := identifier != iptcMetaDataBlockID

		nameLength := e.read1()
		if nameLength == 0 {
			nameLength = 2
		} else if nameLength%2 == 1 {
			nameLength++
		}

		e.skip(int64(nameLength - 1))

		dataSize := e.read4()

		if isNotMeta {
			e.skip(int64(dataSize))
			return nil
		}

		if dataSize%2 != 0 {
			defer func() {
				e.skip(1)
			}()
		}

		for {
			marker := e.read1()

			if e.isEOF || marker != 0x1C {
				return errStop
			}

			if err := e.decodeRecord(stringSlices); err != nil {
				return err
			}
		}
	}

	for {
		if err := decodeBlock(); err != nil {
			if err == errStop {
				break
			}
			return err
		}
	}

	return e.handleStringSlices(stringSlices)
}

func (e *metaDecoderIPTC) decodeRecord(stringSlices map[TagInfo][]string) error {
	recordType := e.read1()
	datasetNumber := e.read1()
	recordSize := e.read2()

	recordDef, ok := getIptcRecordFieldDef(recordType, datasetNumber)
	if !ok {
		recordDef = iptcField{
			Name:       fmt.Sprintf("%s%d", UnknownPrefix, datasetNumber),
			RecordName: "IPTCUnknownRecord",
			Format:     "string",
		}
	}

	ti := TagInfo{
		Source:    IPTC,
		Tag:       recordDef.Name,
		Namespace: recordDef.RecordName,
	}

	if uint32(recordSize) > e.opts.LimitTagSize || !e.opts.ShouldHandleTag(ti) {
		e.skip(int64(recordSize))
		return nil
	}

	var v any
	switch recordDef.Format {
	case "string":
		v = e.readBytesVolatile(int(recordSize))
		if e.charset == "" || e.charset == characterSetISO88591 {
			v, _ = e.iso88591CharsetDecoder.Bytes(v.([]byte))
		}
	case "uint32":
		v = e.read4()
	case "short":
		v = e.read2()
	case "byte":
		v = e.read1()
	default:
		return newInvalidFormatErrorf("unsupported IPTC field format %q", recordDef.Format)
	}

	if convert, found := iptcValueConverterMap[recordDef.Name]; found {
		e.valueConverterContext.tagName = recordDef.Name
		v = convert(e.valueConverterContext, v)
	}

	if recordType == 1 && datasetNumber == ipcCodedCharacterSet {
		if s, ok := v.(string); ok {
			e.charset = s
		}
	}

	if b, ok := v.([]byte); ok {
		v = strings.TrimSpace(string(trimBytesNulls(b)))
	}

	if recordDef.Repeatable {
		stringSlices[ti] = append(stringSlices[ti], toString(v))
		return nil
	}

	ti.Value = v
	return e.opts.HandleTag(ti)
}

func getIptcRecordFieldDef(record, id uint8) (iptcField, bool) {
	recordFields, ok := iptcRecordFields[record]
	if !ok {
		return iptcField{}, false
	}
	field, ok := recordFields[id]
	return field, ok
}

func getIptcRecordName(record uint8) string {
	name, ok := iptcRerordNames[record]
	if !ok {
		return fmt.Sprintf("IPTCUnknownRecord%d", record)
	}
	return name
}

const (
	characterSetUTF8     = "UTF-8"
	characterSetISO88591 = "ISO-8859-1"
)

// resolveCodedCharacterSet resolves the coded character set from the IPTC
// data to be either UTF-8, ISO-8859-1, or an empty string if unresolved.
func resolveCodedCharacterSet(b []byte) string {
	const (
		esc           = 0x1B
		percent       = 0x25
		latinCapitalG = 0x47
		dot           = 0x2E
		latinCapitalA = 0x41
		minus         = 0x2D
	)

	if len(b) > 2 && b[0] == esc && b[1] == percent && b[2] == latinCapitalG {
		return characterSetUTF8
	}

	if len(b) > 2 && b[0] == esc && b[1] == dot && b[2] == latinCapitalA {
		return characterSetISO88591
	}

	if len(b) > 3 && b[0] == esc && (b[1] == dot || b[2] == dot || b[3] == dot) && b[4] == latinCapitalA {
		return characterSetISO88591
	}

	if len(b) > 2 && b[0] == esc && b[1] == minus && b[2] == latinCapitalA {
		return characterSetISO88591
	}

	return ""
}
