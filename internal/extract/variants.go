package extract

import (
	"github.com/shanehull/bullionscraper/internal/imageprep"
	"github.com/shanehull/bullionscraper/internal/ocr"
)

// Variant pairs a preprocessing recipe with a recognizer profile.
type Variant struct {
	Name    string
	Recipe  imageprep.Recipe
	Profile ocr.Profile
}

// DefaultPad is the white border around every bitmap, in output pixels.
const DefaultPad = 20

// Catalog is the closed, priority-ordered set of variants tried for every image. Earlier entries
// win ties in the vote.
var Catalog = []Variant{
	{
		Name:    "x4-c3-t130-line",
		Recipe:  imageprep.Recipe{Scale: 4, Contrast: 3.0, Threshold: 130, Pad: DefaultPad},
		Profile: ocr.Profile{Segmentation: ocr.SegmentSingleLine, Whitelist: ocr.PriceChars},
	},
	{
		Name:    "x4-c3-t130-word",
		Recipe:  imageprep.Recipe{Scale: 4, Contrast: 3.0, Threshold: 130, Pad: DefaultPad},
		Profile: ocr.Profile{Segmentation: ocr.SegmentSingleWord, Whitelist: ocr.PriceChars},
	},
	{
		Name:    "x3-c2.5-t140-line",
		Recipe:  imageprep.Recipe{Scale: 3, Contrast: 2.5, Threshold: 140, Pad: DefaultPad},
		Profile: ocr.Profile{Segmentation: ocr.SegmentSingleLine, Whitelist: ocr.PriceChars},
	},
	{
		Name:    "x5-t150-thick-line",
		Recipe:  imageprep.Recipe{Scale: 5, Threshold: 150, Thicken: true, Pad: DefaultPad},
		Profile: ocr.Profile{Segmentation: ocr.SegmentSingleLine, Whitelist: ocr.PriceChars},
	},
	{
		Name:    "x3-t120-raw",
		Recipe:  imageprep.Recipe{Scale: 3, Threshold: 120, Pad: DefaultPad},
		Profile: ocr.Profile{Segmentation: ocr.SegmentRawLine, Whitelist: ocr.PriceChars},
	},
	{
		Name:    "x2-t160-thick-sparse",
		Recipe:  imageprep.Recipe{Scale: 2, Threshold: 160, Thicken: true, Pad: DefaultPad},
		Profile: ocr.Profile{Segmentation: ocr.SegmentSparseText, Whitelist: ocr.PriceChars},
	},
}
