// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package metadata_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-heif/heif/metadata"
)

const xmpPacket = `<?xml version="1.0"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
  <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
           xmlns:dc="http://purl.org/dc/elements/1.1/"
           xmlns:exif="http://ns.adobe.com/exif/1.0/">
    <rdf:Description>
      <dc:creator>
        <rdf:Seq>
          <rdf:li>Jane Doe</rdf:li>
        </rdf:Seq>
      </dc:creator>
      <dc:subject>
        <rdf:Bag>
          <rdf:li>mountain</rdf:li>
          <rdf:li>sunrise</rdf:li>
        </rdf:Bag>
      </dc:subject>
      <exif:GPSLatitude>26,34.951N</exif:GPSLatitude>
      <exif:GPSLongitude>80,12.014W</exif:GPSLongitude>
    </rdf:Description>
  </rdf:RDF>
</x:xmpmeta>`

func TestDecodeXMPDublinCoreAndGPS(t *testing.T) {
	c := qt.New(t)

	tags, err := metadata.DecodeXMP([]byte(xmpPacket), metadata.Options{})
	c.Assert(err, qt.IsNil)

	creator, ok := tags.XMP()["Creator"]
	c.Assert(ok, qt.IsTrue)
	c.Assert(creator.Value, qt.Equals, "Jane Doe")

	subject, ok := tags.XMP()["Subject"]
	c.Assert(ok, qt.IsTrue)
	c.Assert(subject.Value, qt.DeepEquals, []string{"mountain", "sunrise"})

	lat, long, err := tags.GetLatLong()
	c.Assert(err, qt.IsNil)
	c.Assert(lat > 26 && lat < 27, qt.IsTrue)
	c.Assert(long < -80 && long > -81, qt.IsTrue)
}

func TestDecodeXMPMalformedReturnsError(t *testing.T) {
	c := qt.New(t)

	_, err := metadata.DecodeXMP([]byte("<not-xml"), metadata.Options{})
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestParseXMPGPSCoordinateDecimalForm(t *testing.T) {
	c := qt.New(t)

	const packet = `<?xml version="1.0"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
  <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
    <rdf:Description xmlns:exif="http://ns.adobe.com/exif/1.0/">
      <exif:GPSLatitude>-26.5825</exif:GPSLatitude>
      <exif:GPSLongitude>80.2002</exif:GPSLongitude>
    </rdf:Description>
  </rdf:RDF>
</x:xmpmeta>`

	tags, err := metadata.DecodeXMP([]byte(packet), metadata.Options{})
	c.Assert(err, qt.IsNil)

	lat, long, err := tags.GetLatLong()
	c.Assert(err, qt.IsNil)
	c.Assert(lat, qt.Equals, -26.5825)
	c.Assert(long, qt.Equals, 80.2002)
}
