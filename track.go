// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package heif

import (
	"github.com/go-heif/heif/bitio"
	"github.com/go-heif/heif/pixelimage"
)

// fccAuxInfoTAI and fccAuxInfoGIMI are the aux_info_type values this library
// recognizes in saiz/saio when annotating samples with a TAI timestamp or a
// GIMI content id.
var (
	fccAuxInfoTAI  = bitio.NewFourCC("stai")
	fccAuxInfoGIMI = bitio.NewFourCC("suid")
)

// chunkEntry is one materialized chunk: its byte offset and the half-open
// [FirstSample, LastSample) range of 0-based sample indices it holds.
type chunkEntry struct {
	Offset                 uint64
	FirstSample, LastSample int
	SampleDescriptionIndex uint32
}

// Track is a read-side materialization of one trak, per spec.md 4.6: a
// chunk list derived from stco+stsc, sample sizes from stsz, sync points
// from stss, and timing from stts, ready for sequential iteration.
type Track struct {
	ID          uint32
	Width       uint32 // 16.16 fixed point, from tkhd
	Height      uint32
	Timescale   uint32
	Duration    uint64
	HandlerType bitio.FourCC

	sampleDescriptions [][]byte
	chunks             []chunkEntry
	sizes              *stszBox
	syncSamples        map[int]bool // 0-based
	sampleDurations    []uint32     // expanded from stts, one per sample
	auxSizes           map[bitio.FourCC][]uint8
	auxOffsets         map[bitio.FourCC][]uint64

	// pending holds write-side accumulation; nil on a track materialized from
	// a parsed file.
	pending []pendingSample
}

// pendingSample is one sample queued by the write-side API before
// FinalizeTrack lays it out into chunks. Per-sample TAI timestamp and GIMI
// content id annotation (spec.md 4.6's "when configured") is read-only in
// this library for now: FinalizeTrack has no saiz/saio writer, so there is
// no configuration path that would ever populate those fields here.
type pendingSample struct {
	Data                   []byte
	SampleDescriptionIndex uint32
	Duration               uint32
	Sync                   bool
}

// buildTrack materializes a Track from a parsed trak, per spec.md 4.6: for
// each stco entry, look up its sample-to-chunk run in stsc to learn how
// many samples it holds and which stsd entry describes them.
func buildTrack(ctx *Context, trak *trakBox) (*Track, error) {
	if trak.Header == nil || trak.Media == nil || trak.Media.Header == nil || trak.Media.Info == nil || trak.Media.Info.SampleTable == nil {
		return nil, newError(InvalidInput, SubKindMissingRequiredBox, "trak %v missing tkhd/mdia/mdhd/minf/stbl", trak)
	}
	stbl := trak.Media.Info.SampleTable
	if stbl.ChunkOffset == nil || stbl.SampleToChunk == nil || stbl.SampleSize == nil {
		return nil, newError(InvalidInput, SubKindMissingRequiredBox, "stbl missing stco/stsc/stsz")
	}

	t := &Track{
		ID:          trak.Header.TrackID,
		Width:       trak.Header.Width,
		Height:      trak.Header.Height,
		Timescale:   trak.Media.Header.Timescale,
		Duration:    trak.Media.Header.Duration,
		HandlerType: 0,
		sizes:       stbl.SampleSize,
		syncSamples: map[int]bool{},
	}
	if trak.Media.Handler != nil {
		t.HandlerType = trak.Media.Handler.HandlerType
	}
	if stbl.SampleDescription != nil {
		t.sampleDescriptions = stbl.SampleDescription.Entries
	}
	if stbl.SyncSample != nil {
		for _, n := range stbl.SyncSample.SampleNumbers {
			t.syncSamples[int(n)-1] = true
		}
	}

	totalSamples := int(stbl.SampleSize.SampleCount)
	if err := t.materializeChunks(stbl.ChunkOffset, stbl.SampleToChunk, totalSamples); err != nil {
		return nil, err
	}
	t.expandTimeToSample(stbl.TimeToSample, totalSamples)
	t.indexAuxInfo(stbl.AuxInfoSizes, stbl.AuxInfoOffsets)
	return t, nil
}

// materializeChunks walks stco in order, and for each chunk determines its
// sample count and sample-description index from the stsc run covering it
// (the run whose FirstChunk is the greatest one ≤ this chunk's 1-based
// index), per spec.md 4.6.
func (t *Track) materializeChunks(stco *stcoBox, stsc *stscBox, totalSamples int) error {
	if len(stsc.Runs) == 0 && len(stco.Offsets) > 0 {
		return newError(InvalidInput, SubKindSampleTableInconsistent, "stco has %d chunks but stsc has no runs", len(stco.Offsets))
	}
	nextSample := 0
	for chunkIdx, offset := range stco.Offsets {
		chunkNumber := uint32(chunkIdx + 1)
		run := stsc.Runs[0]
		for _, candidate := range stsc.Runs {
			if candidate.FirstChunk <= chunkNumber {
				run = candidate
			} else {
				break
			}
		}
		count := int(run.SamplesPerChunk)
		first := nextSample
		last := first + count
		if last > totalSamples {
			return newError(InvalidInput, SubKindSampleTableInconsistent, "chunk %d overruns sample count (%d > %d)", chunkIdx, last, totalSamples)
		}
		t.chunks = append(t.chunks, chunkEntry{
			Offset:                 offset,
			FirstSample:            first,
			LastSample:             last,
			SampleDescriptionIndex: run.SampleDescriptionIdx,
		})
		nextSample = last
	}
	if nextSample != totalSamples {
		return newError(InvalidInput, SubKindSampleTableInconsistent, "chunks cover %d samples, stsz declares %d", nextSample, totalSamples)
	}
	return nil
}

// expandTimeToSample turns stts's run-length encoding into one duration per
// sample, so per-sample duration lookups during iteration are O(1).
func (t *Track) expandTimeToSample(stts *sttsBox, totalSamples int) {
	t.sampleDurations = make([]uint32, 0, totalSamples)
	if stts == nil {
		for range totalSamples {
			t.sampleDurations = append(t.sampleDurations, 0)
		}
		return
	}
	for _, e := range stts.Entries {
		for range e.Count {
			t.sampleDurations = append(t.sampleDurations, e.Delta)
		}
	}
	for len(t.sampleDurations) < totalSamples {
		t.sampleDurations = append(t.sampleDurations, 0)
	}
}

// indexAuxInfo records the saiz/saio pairs this track carries for the
// aux_info_types this library understands (stai TAI timestamps, suid GIMI
// content ids), leaving any other aux_info_type unindexed and so invisible
// to SampleMeta — a documented scope boundary, not a parse failure.
func (t *Track) indexAuxInfo(saizList []*saizBox, saioList []*saioBox) {
	t.auxSizes = map[bitio.FourCC][]uint8{}
	t.auxOffsets = map[bitio.FourCC][]uint64{}
	for _, saiz := range saizList {
		typ := saiz.AuxInfoType
		if typ != fccAuxInfoTAI && typ != fccAuxInfoGIMI {
			continue
		}
		sizes := saiz.EntrySizes
		if saiz.DefaultSampleInfoSize != 0 {
			sizes = make([]uint8, saiz.SampleCount)
			for i := range sizes {
				sizes[i] = saiz.DefaultSampleInfoSize
			}
		}
		t.auxSizes[typ] = sizes
	}
	for _, saio := range saioList {
		typ := saio.AuxInfoType
		if typ != fccAuxInfoTAI && typ != fccAuxInfoGIMI {
			continue
		}
		t.auxOffsets[typ] = saio.Offsets
	}
}

// SampleCount returns the total number of samples in this track.
func (t *Track) SampleCount() int {
	if t.sizes != nil {
		return int(t.sizes.SampleCount)
	}
	return len(t.pending)
}

// SampleMeta describes one sample returned by a SampleIterator: its
// duration, whether it is a sync point, and, when present, its TAI
// timestamp and/or GIMI content id, per spec.md 4.6.
type SampleMeta struct {
	Index         int
	Size          uint32
	Duration      uint32
	Sync          bool
	TAITimestamp  *int64
	GIMIContentID string
}

// sampleIterState is the {fresh, mid_chunk, exhausted} state machine spec.md
// 4.6 names for track iteration.
type sampleIterState int

const (
	iterFresh sampleIterState = iota
	iterMidChunk
	iterExhausted
)

// SampleIterator walks a Track's samples in order, lazily resolving each
// one's byte range from its containing chunk.
type SampleIterator struct {
	track    *Track
	state    sampleIterState
	chunkIdx int
	sample   int // next 0-based sample index to return
}

// NewSampleIterator returns an iterator positioned before the first sample.
func (t *Track) NewSampleIterator() *SampleIterator {
	return &SampleIterator{track: t, state: iterFresh}
}

// advance locates the chunk containing it.sample, returning the chunk and
// this sample's byte offset within the file, or ErrEndOfSequence once every
// chunk has been consumed.
func (it *SampleIterator) advance() (chunkEntry, uint64, error) {
	t := it.track
	if it.state == iterExhausted || it.sample >= t.SampleCount() {
		it.state = iterExhausted
		return chunkEntry{}, 0, ErrEndOfSequence
	}
	for it.chunkIdx < len(t.chunks) && it.sample >= t.chunks[it.chunkIdx].LastSample {
		it.chunkIdx++
	}
	if it.chunkIdx >= len(t.chunks) {
		it.state = iterExhausted
		return chunkEntry{}, 0, ErrEndOfSequence
	}
	chunk := t.chunks[it.chunkIdx]
	offset := chunk.Offset
	for s := chunk.FirstSample; s < it.sample; s++ {
		offset += uint64(t.sizes.sizeOf(s))
	}
	if it.state == iterFresh || it.state == iterMidChunk {
		it.state = iterMidChunk
	}
	return chunk, offset, nil
}

// next reads the raw bytes and metadata of the next sample, advancing the
// cursor. It is the shared core of DecodeNextImageSample and
// GetNextRawSequenceSample.
func (it *SampleIterator) next(fileReader *bitio.Reader) ([]byte, *stsdEntryInfo, SampleMeta, error) {
	t := it.track
	chunk, offset, err := it.advance()
	if err != nil {
		return nil, nil, SampleMeta{}, err
	}
	size := t.sizes.sizeOf(it.sample)
	data := fileReader.ReadAtAbs(int64(offset), int(size))
	if fileReader.EOF() {
		return nil, nil, SampleMeta{}, wrapErrorf(fileReader.Err(), InvalidInput, SubKindExtentOutOfRange, "sample %d extends past end of file", it.sample)
	}

	meta := SampleMeta{
		Index:    it.sample,
		Size:     size,
		Duration: t.sampleDurations[it.sample],
		Sync:     len(t.syncSamples) == 0 || t.syncSamples[it.sample],
	}
	if sizes, ok := t.auxSizes[fccAuxInfoTAI]; ok {
		if v, ok := t.readAuxInfoInt64(fileReader, fccAuxInfoTAI, sizes, it.sample); ok {
			meta.TAITimestamp = &v
		}
	}
	if sizes, ok := t.auxSizes[fccAuxInfoGIMI]; ok {
		if s, ok := t.readAuxInfoString(fileReader, fccAuxInfoGIMI, sizes, it.sample); ok {
			meta.GIMIContentID = s
		}
	}

	var desc *stsdEntryInfo
	if int(chunk.SampleDescriptionIndex) >= 1 && int(chunk.SampleDescriptionIndex) <= len(t.sampleDescriptions) {
		desc = parseStsdEntry(t.sampleDescriptions[chunk.SampleDescriptionIndex-1])
	}

	it.sample++
	if it.sample >= t.SampleCount() {
		it.state = iterExhausted
	}
	return data, desc, meta, nil
}

// readAuxInfoInt64 resolves the saio-located, saiz-sized aux-info block for
// sample index and decodes it as a big-endian 64-bit nanosecond timestamp.
func (t *Track) readAuxInfoInt64(fileReader *bitio.Reader, typ bitio.FourCC, sizes []uint8, sample int) (int64, bool) {
	raw, ok := t.readAuxInfoBytes(fileReader, typ, sizes, sample)
	if !ok || len(raw) < 8 {
		return 0, false
	}
	var v uint64
	for _, b := range raw[:8] {
		v = v<<8 | uint64(b)
	}
	return int64(v), true
}

func (t *Track) readAuxInfoString(fileReader *bitio.Reader, typ bitio.FourCC, sizes []uint8, sample int) (string, bool) {
	raw, ok := t.readAuxInfoBytes(fileReader, typ, sizes, sample)
	if !ok {
		return "", false
	}
	return string(raw), true
}

func (t *Track) readAuxInfoBytes(fileReader *bitio.Reader, typ bitio.FourCC, sizes []uint8, sample int) ([]byte, bool) {
	if sample >= len(sizes) {
		return nil, false
	}
	offsets := t.auxOffsets[typ]
	if len(offsets) == 0 {
		return nil, false
	}
	var base uint64
	if len(offsets) == 1 {
		// A single saio entry means one contiguous block for every sample;
		// walk preceding sizes to find this sample's offset into it.
		base = offsets[0]
		for i := 0; i < sample; i++ {
			base += uint64(sizes[i])
		}
	} else if sample < len(offsets) {
		base = offsets[sample]
	} else {
		return nil, false
	}
	data := fileReader.ReadAtAbs(int64(base), int(sizes[sample]))
	if fileReader.EOF() {
		return nil, false
	}
	return data, true
}

// stsdEntryInfo is the decoded header of one stsd entry: its 4CC (the item
// type the codec registry is keyed by) and the configuration-record bytes
// trailing the fixed SampleEntry header.
type stsdEntryInfo struct {
	Type   bitio.FourCC
	Config []byte
}

// visualSampleEntryFixedFieldsLen is the number of bytes a VisualSampleEntry
// carries between data_reference_index and its trailing configuration box:
// pre_defined/reserved/pre_defined (16) + width/height (4) + resolutions (8)
// + reserved (4) + frame_count (2) + compressorname (32) + depth (2) +
// pre_defined (2).
const visualSampleEntryFixedFieldsLen = 16 + 4 + 8 + 4 + 2 + 32 + 2 + 2

// parseStsdEntry reads the 4CC and reserved SampleEntry prefix common to
// every visual/hint/metadata entry, returning what follows as the
// configuration bytes the codec plugin interprets. Visual entries carry a
// further fixed-size block (width/height/resolution/compressorname) before
// that configuration that this library's own encoder writes but a codec
// plugin has no use for, so it is skipped for recognized image item types.
func parseStsdEntry(entry []byte) *stsdEntryInfo {
	if len(entry) < 16 {
		return nil
	}
	var typ bitio.FourCC
	copy(typ[:], entry[4:8])
	config := entry[16:]
	if isImageItemType(typ) && len(config) >= visualSampleEntryFixedFieldsLen {
		config = config[visualSampleEntryFixedFieldsLen:]
	}
	return &stsdEntryInfo{Type: typ, Config: config}
}

// DecodeNextImageSample advances the iterator and decodes the next sample
// of a visual track through the codec registered for its stsd entry's 4CC,
// per spec.md 4.6/4.8 ("the core feeds each sample verbatim").
func (it *SampleIterator) DecodeNextImageSample(ctx *Context, fileReader *bitio.Reader) (*pixelimage.Image, SampleMeta, error) {
	data, desc, meta, err := it.next(fileReader)
	if err != nil {
		return nil, SampleMeta{}, err
	}
	if desc == nil {
		return nil, SampleMeta{}, newError(InvalidInput, SubKindMissingCodecConfiguration, "sample %d has no sample-description entry", meta.Index)
	}
	d := ctx.Codecs.Decoder(desc.Type.String())
	if d == nil {
		return nil, SampleMeta{}, newError(Unsupported, SubKindUnsupportedCodec, "no decoder registered for sample-description type %q", desc.Type)
	}
	inst := d.NewDecoder()
	defer inst.FreeDecoder()
	if len(desc.Config) > 0 {
		if err := inst.PushData(desc.Config); err != nil {
			return nil, SampleMeta{}, wrapErrorf(err, DecoderPlugin, SubKindNone, "pushing sample-description configuration")
		}
	}
	if err := inst.PushData(data); err != nil {
		return nil, SampleMeta{}, wrapErrorf(err, DecoderPlugin, SubKindNone, "pushing sample %d", meta.Index)
	}
	img, err := inst.DecodeImage()
	if err != nil {
		return nil, SampleMeta{}, wrapErrorf(err, DecoderPlugin, SubKindNone, "decoding sample %d", meta.Index)
	}
	return img, meta, nil
}

// GetNextRawSequenceSample advances the iterator and returns the next
// sample of a metadata track verbatim, undecoded.
func (it *SampleIterator) GetNextRawSequenceSample(fileReader *bitio.Reader) ([]byte, SampleMeta, error) {
	data, _, meta, err := it.next(fileReader)
	if err != nil {
		return nil, SampleMeta{}, err
	}
	return data, meta, nil
}

// NewVisualSequenceTrack begins a write-side visual track (add_visual_sequence_track
// in spec.md 4.6), with an empty sample table that EncodeSequenceImage fills in.
func NewVisualSequenceTrack(ctx *Context, id, timescale, width, height uint32) *Track {
	return &Track{
		ID:          id,
		Timescale:   timescale,
		Width:       width << 16,
		Height:      height << 16,
		HandlerType: bitio.NewFourCC("pict"),
	}
}

// NewURIMetadataSequenceTrack begins a write-side metadata track whose
// samples are raw bytes associated with a URI-typed sample description
// (add_uri_metadata_sequence_track in spec.md 4.6).
func NewURIMetadataSequenceTrack(ctx *Context, id, timescale uint32, uri string) *Track {
	t := &Track{
		ID:          id,
		Timescale:   timescale,
		HandlerType: bitio.NewFourCC("meta"),
	}
	t.sampleDescriptions = [][]byte{buildURIMetaSampleEntry(uri)}
	return t
}

// buildURIMetaSampleEntry assembles a minimal "urim" SampleEntry carrying a
// single NUL-terminated URI, per ISO/IEC 14496-12's URIMetaSampleEntryBox.
func buildURIMetaSampleEntry(uri string) []byte {
	w := bitio.NewWriter()
	w.WriteU32(0) // patched below
	w.WriteFourCC(bitio.NewFourCC("urim"))
	w.WriteBytes(make([]byte, 6))
	w.WriteU16(1) // data_reference_index
	w.WriteU32(uint32(8 + 4 + len(uri) + 1))
	w.WriteFourCC(bitio.NewFourCC("uri "))
	w.WriteU32(0) // version and flags
	w.WriteNulString(uri)
	w.PatchU32(0, uint32(w.Len()))
	return w.Bytes()
}

// sampleDescriptionIndexFor returns the 1-based index of entry within
// t.sampleDescriptions, appending it if not already present (matched by
// raw byte equality, since configuration bytes fully determine identity).
func (t *Track) sampleDescriptionIndexFor(entry []byte) uint32 {
	for i, existing := range t.sampleDescriptions {
		if string(existing) == string(entry) {
			return uint32(i + 1)
		}
	}
	t.sampleDescriptions = append(t.sampleDescriptions, entry)
	return uint32(len(t.sampleDescriptions))
}

// EncodeSequenceImage encodes img through the codec registered for
// itemType, and appends the result as a new sample, per spec.md 4.6/4.8.
// A new sample-description entry is synthesized whenever the compression
// format's configuration bytes change.
func (t *Track) EncodeSequenceImage(ctx *Context, itemType string, img *pixelimage.Image, duration uint32, sync bool) error {
	e := ctx.Codecs.Encoder(itemType)
	if e == nil {
		return newError(Unsupported, SubKindUnsupportedCodec, "no encoder registered for item type %q", itemType)
	}
	inst := e.NewEncoder()
	defer inst.FreeEncoder()
	if err := inst.EncodeImage(img); err != nil {
		return wrapErrorf(err, EncoderPlugin, SubKindNone, "encoding sequence sample")
	}
	payload, err := inst.PayloadBytes()
	if err != nil {
		return wrapErrorf(err, EncoderPlugin, SubKindNone, "pulling encoded payload")
	}
	entry := buildVisualSampleEntry(itemType, img, inst.ParameterSetBytes())
	return t.addSample(entry, payload, duration, sync)
}

// buildVisualSampleEntry assembles a minimal VisualSampleEntry (4CC, fixed
// header, width/height) with the encoder's parameter-set NAL/OBU units
// concatenated as its configuration box payload.
func buildVisualSampleEntry(itemType string, img *pixelimage.Image, paramSets [][]byte) []byte {
	var config []byte
	for _, p := range paramSets {
		config = append(config, p...)
	}
	w := bitio.NewWriter()
	w.WriteU32(0)
	w.WriteFourCC(bitio.NewFourCC(itemType))
	w.WriteBytes(make([]byte, 6))
	w.WriteU16(1) // data_reference_index
	w.WriteBytes(make([]byte, 16)) // pre_defined, reserved, pre_defined[3]
	width, height := 0, 0
	if y := img.Plane(pixelimage.ChannelY); y != nil {
		width, height = y.Width, y.Height
	}
	w.WriteU16(uint16(width))
	w.WriteU16(uint16(height))
	w.WriteU32(0x00480000) // horizresolution 72dpi
	w.WriteU32(0x00480000) // vertresolution
	w.WriteU32(0)          // reserved
	w.WriteU16(1)          // frame_count
	w.WriteBytes(make([]byte, 32)) // compressorname
	w.WriteU16(0x0018)             // depth
	w.WriteU16(0xffff)             // pre_defined (-1)
	w.WriteBytes(config)
	w.PatchU32(0, uint32(w.Len()))
	return w.Bytes()
}

// AddRawSequenceSample appends data as a raw (undecoded) sample of a
// metadata track, per spec.md 4.6.
func (t *Track) AddRawSequenceSample(data []byte, duration uint32, sync bool) error {
	if len(t.sampleDescriptions) == 0 {
		return newError(UsageError, SubKindNone, "track has no sample-description entry; call NewURIMetadataSequenceTrack first")
	}
	return t.addSample(t.sampleDescriptions[len(t.sampleDescriptions)-1], data, duration, sync)
}

func (t *Track) addSample(entry, data []byte, duration uint32, sync bool) error {
	idx := t.sampleDescriptionIndexFor(entry)
	t.pending = append(t.pending, pendingSample{
		Data:                   data,
		SampleDescriptionIndex: idx,
		Duration:               duration,
		Sync:                   sync,
	})
	return nil
}

// FinalizeTrack lays out every pending sample into chunks (a new chunk
// starts whenever the sample-description index changes), sums per-sample
// durations into mdhd, and returns the resulting trak tree plus the
// concatenated sample bytes the caller lays down in mdat starting at
// dataOffset, per spec.md 4.6.
func (t *Track) FinalizeTrack(dataOffset uint64) (*trakBox, []byte, error) {
	if len(t.pending) == 0 {
		return nil, nil, newError(UsageError, SubKindNone, "track %d has no samples", t.ID)
	}

	var blob []byte
	var runs []stscRun
	var offsets []uint64
	var sizes []uint32
	var syncNumbers []uint32
	var sttsEntries []struct{ Count, Delta uint32 }
	var totalDuration uint64

	offset := dataOffset
	runStart := 0
	for i, s := range t.pending {
		if i == 0 || t.pending[i-1].SampleDescriptionIndex != s.SampleDescriptionIndex {
			runs = append(runs, stscRun{FirstChunk: uint32(len(offsets) + 1), SamplesPerChunk: 0, SampleDescriptionIdx: s.SampleDescriptionIndex})
			offsets = append(offsets, offset)
			runStart = i
		}
		runs[len(runs)-1].SamplesPerChunk = uint32(i - runStart + 1)
		blob = append(blob, s.Data...)
		offset += uint64(len(s.Data))
		sizes = append(sizes, uint32(len(s.Data)))
		if s.Sync {
			syncNumbers = append(syncNumbers, uint32(i+1))
		}
		if len(sttsEntries) > 0 && sttsEntries[len(sttsEntries)-1].Delta == s.Duration {
			sttsEntries[len(sttsEntries)-1].Count++
		} else {
			sttsEntries = append(sttsEntries, struct{ Count, Delta uint32 }{1, s.Duration})
		}
		totalDuration += uint64(s.Duration)
	}

	// stsc must list one run per distinct (first_chunk) boundary, not one
	// run per sample; collapse consecutive runs sharing both fields.
	collapsed := runs[:0:0]
	for _, r := range runs {
		if len(collapsed) > 0 {
			prev := collapsed[len(collapsed)-1]
			if prev.SamplesPerChunk == r.SamplesPerChunk && prev.SampleDescriptionIdx == r.SampleDescriptionIdx {
				continue
			}
		}
		collapsed = append(collapsed, r)
	}

	t.Duration = totalDuration
	trak := &trakBox{
		Header: &tkhdBox{
			fullBoxHeader: fullBoxHeader{Version: 0, Flags: 0x000007},
			TrackID:       t.ID,
			Duration:      totalDuration,
			Width:         t.Width,
			Height:        t.Height,
		},
		Media: &mdiaBox{
			Header: &mdhdBox{Timescale: t.Timescale, Duration: totalDuration, Language: 0x55c4},
			Handler: &hdlrBox{HandlerType: t.HandlerType},
			Info: &minfBox{
				SampleTable: &stblBox{
					SampleDescription: &stsdBox{Entries: t.sampleDescriptions},
					SampleToChunk:     &stscBox{Runs: collapsed},
					ChunkOffset:       &stcoBox{is64: dataOffset+uint64(len(blob)) > 1<<32, Offsets: offsets},
					TimeToSample:      &sttsBox{Entries: sttsEntries},
					SampleSize:        &stszBox{SampleCount: uint32(len(t.pending)), EntrySizes: sizes},
				},
			},
		},
	}
	if len(syncNumbers) != len(t.pending) {
		trak.Media.Info.SampleTable.SyncSample = &stssBox{SampleNumbers: syncNumbers}
	}
	return trak, blob, nil
}
