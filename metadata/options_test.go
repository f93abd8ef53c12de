// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package metadata

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestSourceBitmask(t *testing.T) {
	c := qt.New(t)

	s := EXIF | XMP
	c.Assert(s.Has(EXIF), qt.IsTrue)
	c.Assert(s.Has(XMP), qt.IsTrue)
	c.Assert(s.Has(IPTC), qt.IsFalse)

	s = s.Remove(EXIF)
	c.Assert(s.Has(EXIF), qt.IsFalse)
	c.Assert(s.Has(XMP), qt.IsTrue)

	var zero Source
	c.Assert(zero.IsZero(), qt.IsTrue)
}

func TestTagsAddAndHas(t *testing.T) {
	c := qt.New(t)

	var tags Tags
	ti := TagInfo{Source: EXIF, Tag: "Make", Value: "ACM"}
	c.Assert(tags.Has(ti), qt.IsFalse)

	tags.Add(ti)
	c.Assert(tags.Has(ti), qt.IsTrue)
	c.Assert(tags.EXIF()["Make"].Value, qt.Equals, "ACM")
	c.Assert(tags.All()["Make"].Value, qt.Equals, "ACM")
}

func TestGetDateTimeFromEXIF(t *testing.T) {
	c := qt.New(t)

	var tags Tags
	tags.Add(TagInfo{Source: EXIF, Tag: "DateTimeOriginal", Value: "2024:06:01 10:30:00"})

	tm, err := tags.GetDateTime()
	c.Assert(err, qt.IsNil)
	c.Assert(tm.Year(), qt.Equals, 2024)
	c.Assert(tm.Month(), qt.Equals, time.June)
	c.Assert(tm.Day(), qt.Equals, 1)
	c.Assert(tm.Hour(), qt.Equals, 10)
}

func TestGetDateTimeFromIPTC(t *testing.T) {
	c := qt.New(t)

	var tags Tags
	tags.Add(TagInfo{Source: IPTC, Tag: "DateCreated", Value: "2023:01:15"})
	tags.Add(TagInfo{Source: IPTC, Tag: "TimeCreated", Value: "12:00:00"})

	tm, err := tags.GetDateTime()
	c.Assert(err, qt.IsNil)
	c.Assert(tm.Year(), qt.Equals, 2023)
	c.Assert(tm.Month(), qt.Equals, time.January)
	c.Assert(tm.Day(), qt.Equals, 15)
}

func TestGetDateTimeEmptyWhenNoSourceHasIt(t *testing.T) {
	c := qt.New(t)

	var tags Tags
	tm, err := tags.GetDateTime()
	c.Assert(err, qt.IsNil)
	c.Assert(tm.IsZero(), qt.IsTrue)
}

func TestGetLatLongPrefersEXIFOverXMP(t *testing.T) {
	c := qt.New(t)

	var tags Tags
	tags.Add(TagInfo{Source: EXIF, Tag: "GPSLatitude", Value: 10.0})
	tags.Add(TagInfo{Source: EXIF, Tag: "GPSLatitudeRef", Value: "S"})
	tags.Add(TagInfo{Source: EXIF, Tag: "GPSLongitude", Value: 20.0})
	tags.Add(TagInfo{Source: EXIF, Tag: "GPSLongitudeRef", Value: "E"})
	// XMP values present too, but EXIF must win.
	tags.Add(TagInfo{Source: XMP, Tag: "GPSLatitude", Value: 99.0})
	tags.Add(TagInfo{Source: XMP, Tag: "GPSLongitude", Value: 99.0})

	lat, long, err := tags.GetLatLong()
	c.Assert(err, qt.IsNil)
	c.Assert(lat, qt.Equals, -10.0)
	c.Assert(long, qt.Equals, 20.0)
}

func TestOptionsInitAppliesDefaults(t *testing.T) {
	c := qt.New(t)

	var opts Options
	opts.init()

	c.Assert(opts.Sources.Has(EXIF), qt.IsTrue)
	c.Assert(opts.Sources.Has(IPTC), qt.IsTrue)
	c.Assert(opts.Sources.Has(XMP), qt.IsTrue)
	c.Assert(opts.LimitNumTags, qt.Equals, uint32(5000))
	c.Assert(opts.LimitTagSize, qt.Equals, uint32(10000))

	ti := TagInfo{Tag: "X"}
	c.Assert(opts.ShouldHandleTag(ti), qt.IsTrue)
	c.Assert(opts.HandleTag(ti), qt.IsNil)
}
