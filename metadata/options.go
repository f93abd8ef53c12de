// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package metadata decodes Exif, IPTC and XMP tag blocks as found embedded in
// HEIF "Exif" and mime-typed metadata items. It knows nothing about boxes or
// items; callers hand it the raw payload bytes extracted from the container.
package metadata

import (
	"maps"
	"time"
)

// UnknownPrefix is used as prefix for unknown tags.
const UnknownPrefix = "UnknownTag_"

const (
	// EXIF is the EXIF tag source.
	EXIF Source = 1 << iota
	// IPTC is the IPTC tag source.
	IPTC
	// XMP is the XMP tag source.
	XMP
)

var (
	// ErrStopWalking is a sentinel error to signal that the walk should stop.
	ErrStopWalking = errStopWalking{}

	// errStop is the internal panic value used by streamReader.stop.
	errStop = errInternalStop{}
)

type errStopWalking struct{}

func (errStopWalking) Error() string { return "stop walking" }

type errInternalStop struct{}

func (errInternalStop) Error() string { return "stop" }

// HandleTagFunc is the function that is called for each tag.
type HandleTagFunc func(info TagInfo) error

// Options contains the options for the Decode* functions.
type Options struct {
	// If set, the decoder skips tags in which this function returns false.
	// If not set, every tag is handled.
	ShouldHandleTag func(tag TagInfo) bool

	// The function to call for each tag.
	HandleTag HandleTagFunc

	// If set, the decoder will only decode the given tag sources.
	Sources Source

	// Warnf will be called for each warning.
	Warnf func(string, ...any)

	// LimitNumTags is the maximum number of tags to read.
	// Default value is 5000.
	LimitNumTags uint32

	// LimitTagSize is the maximum size in bytes of a tag value to read.
	// Tag values larger than this will be skipped without notice.
	// Default value is 10000.
	LimitTagSize uint32
}

func (o *Options) init() {
	if o.ShouldHandleTag == nil {
		o.ShouldHandleTag = func(TagInfo) bool { return true }
	}
	if o.HandleTag == nil {
		o.HandleTag = func(TagInfo) error { return nil }
	}
	if o.Sources == 0 {
		o.Sources = EXIF | IPTC | XMP
	}
	if o.Warnf == nil {
		o.Warnf = func(string, ...any) {}
	}
	if o.LimitNumTags == 0 {
		o.LimitNumTags = 5000
	}
	if o.LimitTagSize == 0 {
		o.LimitTagSize = 10000
	}

	var tagCount uint32
	shouldHandleTag := o.ShouldHandleTag
	o.ShouldHandleTag = func(ti TagInfo) bool {
		tagCount++
		if tagCount > o.LimitNumTags {
			panic(ErrStopWalking)
		}
		return shouldHandleTag(ti)
	}
}

// TagInfo contains information about a tag.
type TagInfo struct {
	// The tag source.
	Source Source
	// The tag name.
	Tag string
	// The tag namespace.
	// For EXIF, this is the path to the IFD, e.g. "IFD0/GPSInfoIFD".
	// For XMP, this is the namespace, e.g. "http://ns.adobe.com/camera-raw-settings/1.0/".
	// For IPTC, this is the record name, see https://exiftool.org/TagNames/IPTC.html.
	Namespace string
	// The tag value.
	Value any
}

// Source is a bitmask and you may send multiple sources at once.
type Source uint32

// Remove removes the given source.
func (s Source) Remove(source Source) Source {
	s &= ^source
	return s
}

// Has returns true if the given source is set.
func (s Source) Has(source Source) bool {
	return s&source != 0
}

// IsZero returns true if the source is zero.
func (s Source) IsZero() bool {
	return s == 0
}

// Tags is a collection of tags grouped per source.
type Tags struct {
	exif map[string]TagInfo
	iptc map[string]TagInfo
	xmp  map[string]TagInfo
}

// Add adds a tag to the correct source.
func (t *Tags) Add(tag TagInfo) {
	t.getSourceMap(tag.Source)[tag.Tag] = tag
}

// Has reports if a tag is already added.
func (t *Tags) Has(tag TagInfo) bool {
	_, found := t.getSourceMap(tag.Source)[tag.Tag]
	return found
}

// EXIF returns the EXIF tags.
func (t *Tags) EXIF() map[string]TagInfo {
	if t.exif == nil {
		t.exif = make(map[string]TagInfo)
	}
	return t.exif
}

// IPTC returns the IPTC tags.
func (t *Tags) IPTC() map[string]TagInfo {
	if t.iptc == nil {
		t.iptc = make(map[string]TagInfo)
	}
	return t.iptc
}

// XMP returns the XMP tags.
func (t *Tags) XMP() map[string]TagInfo {
	if t.xmp == nil {
		t.xmp = make(map[string]TagInfo)
	}
	return t.xmp
}

// All returns all tags in a single map, keyed by tag name.
func (t Tags) All() map[string]TagInfo {
	all := make(map[string]TagInfo)
	maps.Copy(all, t.EXIF())
	maps.Copy(all, t.IPTC())
	maps.Copy(all, t.XMP())
	return all
}

// GetDateTime tries to find a date/time value from available metadata sources.
// It checks EXIF first (DateTimeOriginal, DateTime), then XMP (DateTimeOriginal, CreateDate, DateCreated),
// and finally IPTC (DateCreated + TimeCreated).
func (t Tags) GetDateTime() (time.Time, error) {
	dateStr, hasTimeZone := t.dateTime()
	if dateStr == "" {
		return time.Time{}, nil
	}

	const layout = "2006:01:02 15:04:05"

	if hasTimeZone {
		for _, l := range []string{
			"2006:01:02 15:04:05-07:00",
			"2006-01-02T15:04:05-07:00",
			"2006:01:02 15:04:05Z07:00",
			"2006-01-02T15:04:05Z07:00",
		} {
			if tm, err := time.Parse(l, dateStr); err == nil {
				return tm, nil
			}
		}
	}

	loc := time.Local
	if v := t.location(); v != nil {
		loc = v
	}

	return time.ParseInLocation(layout, dateStr, loc)
}

// GetLatLong returns the latitude and longitude from available metadata sources.
// It checks EXIF first, then falls back to XMP.
func (t Tags) GetLatLong() (lat float64, long float64, err error) {
	lat, long, found := t.getLatLongFromEXIF()
	if found {
		return lat, long, nil
	}

	lat, long, found = t.getLatLongFromXMP()
	if found {
		return lat, long, nil
	}

	return 0, 0, nil
}

func (t Tags) getLatLongFromEXIF() (lat float64, long float64, found bool) {
	var ns, ew string

	exif := t.EXIF()

	longTag, ok := exif["GPSLongitude"]
	if !ok {
		return
	}
	ewTag, ok := exif["GPSLongitudeRef"]
	if ok {
		ew, _ = ewTag.Value.(string)
	}
	latTag, ok := exif["GPSLatitude"]
	if !ok {
		return
	}
	nsTag, ok := exif["GPSLatitudeRef"]
	if ok {
		ns, _ = nsTag.Value.(string)
	}

	lat = toFloat64(latTag.Value)
	long = toFloat64(longTag.Value)

	if ns == "S" {
		lat = -lat
	}
	if ew == "W" {
		long = -long
	}

	if isUndefined(lat) {
		lat = 0
	}
	if isUndefined(long) {
		long = 0
	}

	return lat, long, true
}

func (t Tags) getLatLongFromXMP() (lat float64, long float64, found bool) {
	xmp := t.XMP()

	latTag, ok := xmp["GPSLatitude"]
	if !ok {
		return
	}
	longTag, ok := xmp["GPSLongitude"]
	if !ok {
		return
	}

	lat = toFloat64(latTag.Value)
	long = toFloat64(longTag.Value)

	if isUndefined(lat) {
		lat = 0
	}
	if isUndefined(long) {
		long = 0
	}

	return lat, long, true
}

func (t *Tags) getSourceMap(source Source) map[string]TagInfo {
	switch source {
	case EXIF:
		return t.EXIF()
	case IPTC:
		return t.IPTC()
	case XMP:
		return t.XMP()
	default:
		return nil
	}
}

func (t Tags) dateTime() (string, bool) {
	exif := t.EXIF()
	if ti, ok := exif["DateTimeOriginal"]; ok {
		return toString(ti.Value), false
	}
	if ti, ok := exif["DateTime"]; ok {
		return toString(ti.Value), false
	}

	xmp := t.XMP()
	for _, tag := range []string{"DateTimeOriginal", "CreateDate", "DateCreated"} {
		if ti, ok := xmp[tag]; ok {
			s := toString(ti.Value)
			hasTimeZone := len(s) > 19
			return s, hasTimeZone
		}
	}

	iptc := t.IPTC()
	if dateTag, ok := iptc["DateCreated"]; ok {
		dateStr := toString(dateTag.Value)
		if timeTag, ok := iptc["TimeCreated"]; ok {
			timeStr := toString(timeTag.Value)
			hasTimeZone := len(timeStr) > 8
			return dateStr + " " + timeStr, hasTimeZone
		}
		return dateStr + " 00:00:00", false
	}

	return "", false
}

func (t Tags) location() *time.Location {
	exif := t.EXIF()
	timeInfo, found := exif["Canon.TimeInfo"]
	if !found {
		return nil
	}
	vals, ok := timeInfo.Value.([]uint32)
	if !ok || len(vals) < 2 {
		return nil
	}
	return time.FixedZone("", int(vals[1]*60))
}
