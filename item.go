// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package heif

import "github.com/go-heif/heif/bitio"

// Image item-type 4CCs, per spec.md 6.
var (
	fccHVC1 = bitio.NewFourCC("hvc1")
	fccAV01 = bitio.NewFourCC("av01")
	fccJPEG = bitio.NewFourCC("jpeg")
	fccJ2K1 = bitio.NewFourCC("j2k1")
	fccVVC1 = bitio.NewFourCC("vvc1")
	fccUNCI = bitio.NewFourCC("unci")
	fccMSKI = bitio.NewFourCC("mski")
	fccGrid = bitio.NewFourCC("grid")
	fccIOVL = bitio.NewFourCC("iovl")
	fccIden = bitio.NewFourCC("iden")
	fccExif = bitio.NewFourCC("Exif")
	fccRgan = bitio.NewFourCC("rgan")
)

var codedImageTypes = map[bitio.FourCC]bool{
	fccHVC1: true, fccAV01: true, fccJPEG: true, fccJ2K1: true, fccVVC1: true,
}

var derivedImageTypes = map[bitio.FourCC]bool{
	fccGrid: true, fccIOVL: true, fccIden: true,
}

// isImageItemType reports whether t is one of the image item types spec.md
// 3's item-type list names (coded, derived, uncompressed, or mask).
func isImageItemType(t bitio.FourCC) bool {
	return codedImageTypes[t] || derivedImageTypes[t] || t == fccUNCI || t == fccMSKI
}

// Item is the resolved, in-memory form of one iinf/iloc/ipco/ipma/iref
// entry, per spec.md 4.5's interpretation phase. Unlike the parsed boxes it
// is built from, an Item carries resolved property values and edges rather
// than raw box indices.
type Item struct {
	ID              uint32
	Type            bitio.FourCC
	Name            string
	ContentType     string
	ContentEncoding string
	Hidden          bool

	// Properties are this item's associated ipco boxes, in ipma order.
	Properties []ItemProperty

	// Width/Height/BitDepth/CodecConfig are the most common properties
	// pulled out for direct access, per spec.md 4.5 step 3.
	Width, Height uint32
	BitDepthsPerChannel []uint8
	Colour          *colrBox
	CodecConfig     box // *hvcCBox, *av1CBox, *vvcCBox, or *uncCBox's sibling cmpd/uncC pair is looked up separately

	// Thumbnails, Auxiliary, ContentDescribed, Masked name the edges this
	// item is the *source* of (iref "from"), resolved per spec.md 4.5 step 4.
	Thumbnails       []uint32
	AuxiliaryItems   []uint32
	ContentDescribed []uint32
	DerivedSources   []uint32 // dimg: tiles (grid) or composite sources (overlay/identity)
	MaskedBy         []uint32

	// IsAuxiliaryOf is set when another item's auxl reference names this
	// item; AuxType carries the auxC semantic type when known.
	IsAuxiliaryOf uint32
	AuxType       string

	// PremultipliedAlpha is set by a prem reference targeting this item.
	PremultipliedAlpha bool

	// the owning collection, for reference resolution.
	coll *ItemCollection
}

// ItemProperty is one ipma association resolved to its ipco box.
type ItemProperty struct {
	Box       box
	Essential bool
}

// ItemCollection is the resolved item graph for one meta box, per spec.md
// 4.5. It is built once per parsed file and is immutable thereafter; derived
// image decoding (item_derive.go) reads from it but does not mutate it.
type ItemCollection struct {
	ctx       *Context
	items     map[uint32]*Item
	order     []uint32
	PrimaryID uint32
	Groups    []*entityGroup

	// loc indexes ilocItem by item id, for extent resolution.
	loc map[uint32]*ilocItem
	// idatBytes is the idat box's payload, for construction method 1.
	idatBytes []byte
}

// Item returns the resolved item for id, or nil.
func (c *ItemCollection) Item(id uint32) *Item { return c.items[id] }

// Items returns every resolved item, in iinf document order.
func (c *ItemCollection) Items() []*Item {
	out := make([]*Item, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id])
	}
	return out
}

// Primary returns the primary item. buildItemCollection rejects a file with
// no pitm or with a pitm naming a nonexistent item, so this is non-nil for
// any collection it built.
func (c *ItemCollection) Primary() *Item { return c.items[c.PrimaryID] }

// buildItemCollection interprets a parsed metaBox into an ItemCollection,
// per spec.md 4.5. It checks that the primary exists and is an image, that
// it is not auxiliary, that derivations have no cycles and that no thumbnail
// is itself a thumbnail, and returns a *Error with the matching SubKind on
// failure. Grid and iden source counts are not checked here; decodeGrid and
// decodeIdentity check them when the item is decoded.
func buildItemCollection(ctx *Context, meta *metaBox) (*ItemCollection, error) {
	if meta.ItemInfo == nil {
		return nil, newError(InvalidInput, SubKindMissingRequiredBox, "meta has no iinf")
	}
	if meta.ItemLoc == nil {
		return nil, newError(InvalidInput, SubKindMissingRequiredBox, "meta has no iloc")
	}

	c := &ItemCollection{
		ctx:   ctx,
		items: map[uint32]*Item{},
		loc:   map[uint32]*ilocItem{},
	}
	if meta.Data != nil {
		c.idatBytes = meta.Data.Data
	}
	if meta.Groups != nil {
		c.Groups = meta.Groups.Groups
	}

	for _, it := range meta.ItemLoc.Items {
		c.loc[it.ItemID] = it
	}

	for _, infe := range meta.ItemInfo.Entries {
		item := &Item{
			ID:              infe.ItemID,
			Type:            infe.ItemType,
			Name:            infe.ItemName,
			ContentType:     infe.ContentType,
			ContentEncoding: infe.ContentEncoding,
			Hidden:          infe.Hidden,
			coll:            c,
		}
		c.items[item.ID] = item
		c.order = append(c.order, item.ID)
	}

	if meta.ItemProp != nil && meta.ItemProp.Container != nil {
		if err := resolveProperties(c, meta.ItemProp); err != nil {
			return nil, err
		}
	}

	if meta.ItemRef != nil {
		if err := applyReferences(c, meta.ItemRef); err != nil {
			return nil, err
		}
	}

	if meta.Primary == nil {
		return nil, newError(InvalidInput, SubKindPrimaryItemMissing, "meta has no pitm")
	}
	c.PrimaryID = meta.Primary.ItemID
	primary, ok := c.items[c.PrimaryID]
	if !ok {
		return nil, newError(InvalidInput, SubKindPrimaryItemMissing, "pitm names nonexistent item %d", c.PrimaryID)
	}
	if primary.IsAuxiliaryOf != 0 {
		return nil, newError(InvalidInput, SubKindPrimaryItemIsAuxiliary, "primary item %d is marked auxiliary", c.PrimaryID)
	}
	if !isImageItemType(primary.Type) {
		return nil, newError(InvalidInput, SubKindPrimaryItemMissing, "primary item %d has non-image type %q", c.PrimaryID, primary.Type)
	}

	if err := checkNoReferenceCycles(c); err != nil {
		return nil, err
	}

	if meta.ItemProp != nil && meta.ItemProp.Container != nil {
		propagateGridColourProfiles(c)
	}

	return c, nil
}

// resolveProperties walks ipma entries and attaches each item's resolved
// property list, plus the commonly used width/height/colour/codec-config
// shortcuts, per spec.md 4.5 step 3. An ipma entry referencing an
// out-of-range ipco index violates the invariant ipcoBox.property's own
// contract comment documents, so it is reported as *Error rather than
// warned past, matching box_iprp.go.
func resolveProperties(c *ItemCollection, iprp *iprpBox) error {
	byID := map[uint32]*ipmaEntry{}
	for _, assoc := range iprp.Association {
		for _, e := range assoc.Entries {
			byID[e.ItemID] = e
		}
	}

	for id, item := range c.items {
		entry, ok := byID[id]
		if !ok {
			continue
		}
		for _, a := range entry.Associations {
			b := iprp.Container.property(a.Index)
			if b == nil {
				return newError(InvalidInput, SubKindInvalidPropertyIndex, "item %d references out-of-range property index %d", id, a.Index)
			}
			item.Properties = append(item.Properties, ItemProperty{Box: b, Essential: a.Essential})

			switch p := b.(type) {
			case *ispeBox:
				item.Width, item.Height = p.Width, p.Height
			case *colrBox:
				item.Colour = p
			case *pixiBox:
				item.BitDepthsPerChannel = p.BitsPerChannel
			case *hvcCBox:
				item.CodecConfig = p
			case *av1CBox:
				item.CodecConfig = p
			case *vvcCBox:
				item.CodecConfig = p
			case *auxCBox:
				item.AuxType = p.AuxType
			}
		}
	}
	return nil
}

// applyReferences applies every iref edge, per spec.md 4.5 step 4.
func applyReferences(c *ItemCollection, iref *irefBox) error {
	for _, ref := range iref.References {
		from, ok := c.items[ref.FromItemID]
		if !ok {
			return newError(InvalidInput, SubKindNonexistentItemReferenced, "iref %q references nonexistent from-item %d", ref.Type, ref.FromItemID)
		}
		for _, toID := range ref.ToItemIDs {
			if _, ok := c.items[toID]; !ok {
				return newError(InvalidInput, SubKindNonexistentItemReferenced, "iref %q references nonexistent to-item %d", ref.Type, toID)
			}
		}

		switch ref.Type {
		case fccRefThumbnail:
			from.Thumbnails = append(from.Thumbnails, ref.ToItemIDs...)
			for _, toID := range ref.ToItemIDs {
				if isThumbnailOf(c, toID, from.ID) {
					return newError(InvalidInput, SubKindReferenceCycle, "thumbnail-of-thumbnail: %d -> %d", from.ID, toID)
				}
			}
		case fccRefAuxiliary:
			from.AuxiliaryItems = append(from.AuxiliaryItems, ref.ToItemIDs...)
			for _, toID := range ref.ToItemIDs {
				aux := c.items[toID]
				aux.IsAuxiliaryOf = from.ID
			}
		case fccRefContentDesc:
			from.ContentDescribed = append(from.ContentDescribed, ref.ToItemIDs...)
		case fccRefPremulAlpha:
			for _, toID := range ref.ToItemIDs {
				c.items[toID].PremultipliedAlpha = true
			}
		case fccRefDerivedImage:
			from.DerivedSources = append(from.DerivedSources, ref.ToItemIDs...)
		case fccRefMask:
			from.MaskedBy = append(from.MaskedBy, ref.ToItemIDs...)
		}
	}
	for _, item := range c.items {
		for _, toID := range item.Thumbnails {
			if len(c.items[toID].Thumbnails) > 0 {
				return newError(InvalidInput, SubKindReferenceCycle, "thumbnail-of-thumbnail: %d -> %d", item.ID, toID)
			}
		}
	}
	return nil
}

// isThumbnailOf reports whether candidateID is itself a thumbnail pointing
// at targetID, used to reject thumbnail-of-thumbnail chains.
func isThumbnailOf(c *ItemCollection, candidateID, targetID uint32) bool {
	item := c.items[candidateID]
	if item == nil {
		return false
	}
	for _, t := range item.Thumbnails {
		if t == targetID {
			return true
		}
	}
	return false
}

// checkNoReferenceCycles walks each item's dimg (derived-source) edges and
// rejects any cycle, per spec.md 4.5 step 5.
func checkNoReferenceCycles(c *ItemCollection) error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := map[uint32]int{}

	var visit func(id uint32) error
	visit = func(id uint32) error {
		switch color[id] {
		case black:
			return nil
		case grey:
			return newError(InvalidInput, SubKindReferenceCycle, "derivation cycle involving item %d", id)
		}
		color[id] = grey
		item := c.items[id]
		if item != nil {
			for _, src := range item.DerivedSources {
				if err := visit(src); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for id := range c.items {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// propagateGridColourProfiles copies a grid item's first tile's colr up to
// the grid itself when the grid carries none, per spec.md 4.5 step 6.
func propagateGridColourProfiles(c *ItemCollection) {
	for _, item := range c.items {
		if item.Type != fccGrid || item.Colour != nil {
			continue
		}
		if len(item.DerivedSources) == 0 {
			continue
		}
		if tile := c.items[item.DerivedSources[0]]; tile != nil && tile.Colour != nil {
			item.Colour = tile.Colour
		}
	}
}

// itemBytes resolves id's extents to a single contiguous byte slice,
// reading through construction methods 0 (file) and 1 (idat); method 2
// (item) chases the referenced item's own bytes. fileReader must be
// positioned arbitrarily; itemBytes seeks it as needed.
func (c *ItemCollection) itemBytes(fileReader *bitio.Reader, id uint32) ([]byte, error) {
	return c.itemBytesDepth(fileReader, id, 0)
}

func (c *ItemCollection) itemBytesDepth(fileReader *bitio.Reader, id uint32, depth int) ([]byte, error) {
	if depth > 8 {
		return nil, newError(InvalidInput, SubKindReferenceCycle, "item-offset construction nested too deeply for item %d", id)
	}
	loc, ok := c.loc[id]
	if !ok {
		return nil, newError(InvalidInput, SubKindExtentOutOfRange, "item %d has no iloc entry", id)
	}

	var out []byte
	for _, ex := range loc.Extents {
		var chunk []byte
		switch loc.ConstructionMethod {
		case constructionFileOffset:
			abs := int64(loc.BaseOffset + ex.Offset)
			chunk = fileReader.ReadAtAbs(abs, int(ex.Length))
			if fileReader.EOF() {
				return nil, newError(InvalidInput, SubKindExtentOutOfRange, "item %d extent at %d/%d runs past end of file", id, abs, ex.Length)
			}
		case constructionIdatOffset:
			start := loc.BaseOffset + ex.Offset
			end := start + ex.Length
			if end > uint64(len(c.idatBytes)) {
				return nil, newError(InvalidInput, SubKindExtentOutOfRange, "item %d idat extent [%d:%d] exceeds idat size %d", id, start, end, len(c.idatBytes))
			}
			chunk = c.idatBytes[start:end]
		case constructionItemOffset:
			srcBytes, err := c.itemBytesDepth(fileReader, uint32(ex.Index), depth+1)
			if err != nil {
				return nil, err
			}
			start := loc.BaseOffset + ex.Offset
			end := start + ex.Length
			if end > uint64(len(srcBytes)) {
				return nil, newError(InvalidInput, SubKindExtentOutOfRange, "item %d item-offset extent [%d:%d] exceeds source length %d", id, start, end, len(srcBytes))
			}
			chunk = srcBytes[start:end]
		default:
			return nil, newError(Unsupported, SubKindUnsupportedConstructionMethod, "item %d uses unsupported construction method %d", id, loc.ConstructionMethod)
		}
		out = append(out, chunk...)
	}
	return out, nil
}
