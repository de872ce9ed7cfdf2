package mask

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// Raster is a per-pixel opacity buffer over a source image. Values are in
// [0,1]; opaque pixels mark the region eligible for regeneration. Dimensions
// never diverge from the source image the raster was created for.
type Raster struct {
	width  int
	height int
	pix    []float32
}

// NewRaster creates a fully transparent raster of the given pixel dimensions.
func NewRaster(width, height int) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid raster dimensions %dx%d", width, height)
	}

	return &Raster{
		width:  width,
		height: height,
		pix:    make([]float32, width*height),
	}, nil
}

// Width returns the raster width in pixels.
func (r *Raster) Width() int { return r.width }

// Height returns the raster height in pixels.
func (r *Raster) Height() int { return r.height }

// At returns the opacity at (x, y). Out-of-bounds coordinates read as zero.
func (r *Raster) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= r.width || y >= r.height {
		return 0
	}

	return r.pix[y*r.width+x]
}

// Set writes the opacity at (x, y), clamped to [0,1]. Out-of-bounds
// coordinates are ignored.
func (r *Raster) Set(x, y int, v float32) {
	if x < 0 || y < 0 || x >= r.width || y >= r.height {
		return
	}

	r.pix[y*r.width+x] = clamp01(v)
}

// Clone returns a deep copy of the raster.
func (r *Raster) Clone() *Raster {
	pix := make([]float32, len(r.pix))
	copy(pix, r.pix)

	return &Raster{width: r.width, height: r.height, pix: pix}
}

// Fill sets every pixel to full opacity.
func (r *Raster) Fill() {
	for i := range r.pix {
		r.pix[i] = 1
	}
}

// Clear sets every pixel to zero opacity.
func (r *Raster) Clear() {
	for i := range r.pix {
		r.pix[i] = 0
	}
}

// Invert complements the opacity of every pixel (v' = 1 - v). Partial
// opacity is preserved, so applying Invert twice restores the original mask.
func (r *Raster) Invert() {
	for i, v := range r.pix {
		r.pix[i] = 1 - v
	}
}

// Coverage returns the fraction of pixels with non-zero opacity.
func (r *Raster) Coverage() float64 {
	var n int
	for _, v := range r.pix {
		if v > 0 {
			n++
		}
	}

	return float64(n) / float64(len(r.pix))
}

// Empty reports whether every pixel has zero opacity.
func (r *Raster) Empty() bool {
	for _, v := range r.pix {
		if v > 0 {
			return false
		}
	}

	return true
}

// ToGray converts the raster to an 8-bit grayscale image.
func (r *Raster) ToGray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, r.width, r.height))
	for i, v := range r.pix {
		img.Pix[i] = uint8(clamp01(v)*255 + 0.5)
	}

	return img
}

// FromGray builds a raster from an 8-bit grayscale image.
func FromGray(img *image.Gray) *Raster {
	b := img.Bounds()
	r := &Raster{
		width:  b.Dx(),
		height: b.Dy(),
		pix:    make([]float32, b.Dx()*b.Dy()),
	}

	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			r.pix[y*r.width+x] = float32(img.GrayAt(b.Min.X+x, b.Min.Y+y).Y) / 255
		}
	}

	return r
}

// EncodePNG writes the raster as a grayscale PNG. The 8-bit channel keeps
// feathered (partial-opacity) values across the wire.
func (r *Raster) EncodePNG(w io.Writer) error {
	if err := imaging.Encode(w, r.ToGray(), imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode mask: %w", err)
	}

	return nil
}

// DecodePNG reads a raster from a PNG previously produced by EncodePNG.
func DecodePNG(data []byte) (*Raster, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mask: %w", err)
	}

	gray := image.NewGray(img.Bounds())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
		}
	}

	return FromGray(gray), nil
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
