package mask

import "github.com/disintegration/imaging"

// discOffsets returns the relative coordinates of a disc structuring element
// with the given pixel radius.
func discOffsets(radius int) [][2]int {
	offsets := make([][2]int, 0, (2*radius+1)*(2*radius+1))
	rr := radius * radius

	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= rr {
				offsets = append(offsets, [2]int{dx, dy})
			}
		}
	}

	return offsets
}

// Dilate grows the opaque region by a disc of the given pixel radius: each
// pixel takes the maximum opacity found within the disc around it.
func (r *Raster) Dilate(radius int) {
	if radius <= 0 {
		return
	}

	src := r.Clone()
	offsets := discOffsets(radius)

	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			var max float32
			for _, o := range offsets {
				if v := src.At(x+o[0], y+o[1]); v > max {
					max = v
					if max >= 1 {
						break
					}
				}
			}
			r.pix[y*r.width+x] = max
		}
	}
}

// Erode shrinks the opaque region by a disc of the given pixel radius: each
// pixel takes the minimum opacity found within the disc around it. Pixels
// whose disc extends past the raster edge read the border as transparent.
func (r *Raster) Erode(radius int) {
	if radius <= 0 {
		return
	}

	src := r.Clone()
	offsets := discOffsets(radius)

	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			min := float32(1)
			for _, o := range offsets {
				if v := src.At(x+o[0], y+o[1]); v < min {
					min = v
					if min <= 0 {
						break
					}
				}
			}
			r.pix[y*r.width+x] = min
		}
	}
}

// Feather softens the mask edges with a Gaussian blur of the given radius.
func (r *Raster) Feather(radius float64) {
	if radius <= 0 {
		return
	}

	blurred := imaging.Blur(r.ToGray(), radius)

	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			// imaging returns NRGBA; the blurred gray value sits in any channel.
			c := blurred.NRGBAAt(x, y)
			r.pix[y*r.width+x] = float32(c.R) / 255
		}
	}
}
