/*
Package imageprep converts a rendered price image into a clean black-on-white bitmap sized for
text recognition. Every step is a pure function of the input image and a Recipe.
*/
package imageprep

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	// Decoders for the encodings price images are served in.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Recipe is one deterministic preprocessing pipeline.
type Recipe struct {
	Scale     int     // integer upscale factor
	Contrast  float64 // contrast factor around mean luminance; 0 or 1 leaves contrast unchanged
	Threshold uint8   // luminance above this becomes white
	Thicken   bool    // dilate dark strokes with a 3x3 minimum filter
	Pad       int     // white border in output pixels
}

// Bitmap is a binarized, recognition-ready image.
type Bitmap struct {
	*image.Gray
}

// Decode reads an encoded image. ok is false for malformed or empty data.
func Decode(data []byte) (img image.Image, ok bool) {
	if len(data) == 0 {
		return nil, false
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil || img.Bounds().Empty() {
		return nil, false
	}
	return img, true
}

// Normalize runs the full pipeline. ok is false when data cannot be decoded; callers treat that
// as a failed variant, never as a fatal error.
func Normalize(data []byte, r Recipe) (Bitmap, bool) {
	src, ok := Decode(data)
	if !ok {
		return Bitmap{}, false
	}
	return Apply(src, r), true
}

// Apply runs the pipeline on an already decoded image.
func Apply(src image.Image, r Recipe) Bitmap {
	gray := Luminance(FlattenOnWhite(src))
	gray = Upscale(gray, r.Scale)
	if r.Contrast > 0 && r.Contrast != 1 {
		gray = Contrast(gray, r.Contrast)
	}
	gray = Binarize(gray, r.Threshold)
	gray = InvertIfDark(gray)
	if r.Thicken {
		gray = Thicken(gray)
	}
	return Bitmap{Pad(gray, r.Pad)}
}

// FlattenOnWhite composites src over an opaque white background so that transparent pixels do
// not read as black.
func FlattenOnWhite(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

// Luminance converts to single-channel gray.
func Luminance(src image.Image) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetGray(x, y, color.GrayModel.Convert(src.At(b.Min.X+x, b.Min.Y+y)).(color.Gray))
		}
	}
	return dst
}

// Upscale enlarges by an integer factor with Catmull-Rom resampling.
func Upscale(src *image.Gray, factor int) *image.Gray {
	if factor <= 1 {
		return src
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Contrast stretches luminance away from the image mean by factor.
func Contrast(src *image.Gray, factor float64) *image.Gray {
	if len(src.Pix) == 0 {
		return src
	}
	var sum float64
	for _, p := range src.Pix {
		sum += float64(p)
	}
	mean := sum / float64(len(src.Pix))

	dst := image.NewGray(src.Bounds())
	for i, p := range src.Pix {
		v := mean + factor*(float64(p)-mean)
		dst.Pix[i] = clamp(v)
	}
	return dst
}

// Binarize maps luminance above threshold to white and the rest to black.
func Binarize(src *image.Gray, threshold uint8) *image.Gray {
	dst := image.NewGray(src.Bounds())
	for i, p := range src.Pix {
		if p > threshold {
			dst.Pix[i] = 0xff
		}
	}
	return dst
}

// InvertIfDark inverts a binary image whose background is dark, so glyphs are always dark on
// light. The background is taken to be the majority color.
func InvertIfDark(src *image.Gray) *image.Gray {
	dark := 0
	for _, p := range src.Pix {
		if p < 0x80 {
			dark++
		}
	}
	if dark*2 <= len(src.Pix) {
		return src
	}
	dst := image.NewGray(src.Bounds())
	for i, p := range src.Pix {
		dst.Pix[i] = 0xff - p
	}
	return dst
}

// Thicken applies a 3x3 minimum filter, growing dark strokes by one pixel.
func Thicken(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			m := uint8(0xff)
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					p := image.Pt(x+dx, y+dy)
					if !p.In(b) {
						continue
					}
					if v := src.GrayAt(p.X, p.Y).Y; v < m {
						m = v
					}
				}
			}
			dst.SetGray(x, y, color.Gray{Y: m})
		}
	}
	return dst
}

// Pad surrounds src with a white border of n pixels.
func Pad(src *image.Gray, n int) *image.Gray {
	if n <= 0 {
		return src
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()+2*n, b.Dy()+2*n))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, image.Rect(n, n, n+b.Dx(), n+b.Dy()), src, b.Min, draw.Src)
	return dst
}

// EncodePNG encodes the bitmap for engines that take encoded bytes.
func (b Bitmap) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, b.Gray); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
