package mask

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// rectRaster returns a raster with an opaque axis-aligned rectangle.
func rectRaster(t *testing.T, w, h, x0, y0, x1, y1 int) *Raster {
	t.Helper()

	r, err := NewRaster(w, h)
	require.NoError(t, err)

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			r.Set(x, y, 1)
		}
	}

	return r
}

func rastersEqual(a, b *Raster) bool {
	if a.Width() != b.Width() || a.Height() != b.Height() {
		return false
	}
	for y := 0; y < a.Height(); y++ {
		for x := 0; x < a.Width(); x++ {
			if a.At(x, y) != b.At(x, y) {
				return false
			}
		}
	}

	return true
}

func TestDilateExpandsRegion(t *testing.T) {
	r := rectRaster(t, 32, 32, 12, 12, 20, 20)
	before := r.Coverage()

	r.Dilate(3)

	require.Greater(t, r.Coverage(), before)
	require.Equal(t, float32(1), r.At(11, 15)) // one pixel outside the original edge
	require.Equal(t, float32(0), r.At(2, 2))   // far corner untouched
}

func TestErodeShrinksRegion(t *testing.T) {
	r := rectRaster(t, 32, 32, 12, 12, 20, 20)
	before := r.Coverage()

	r.Erode(2)

	require.Less(t, r.Coverage(), before)
	require.Equal(t, float32(0), r.At(12, 12)) // original corner eroded away
	require.Equal(t, float32(1), r.At(15, 15)) // center survives
}

func TestGrowShrinkRoundTrip(t *testing.T) {
	// A rectangle has no features smaller than the radius, so dilation
	// followed by erosion with the same disc restores it exactly.
	original := rectRaster(t, 48, 48, 16, 16, 32, 32)

	r := original.Clone()
	r.Dilate(3)
	r.Erode(3)

	require.True(t, rastersEqual(original, r))
}

func TestErodeTreatsBorderAsTransparent(t *testing.T) {
	r, err := NewRaster(16, 16)
	require.NoError(t, err)
	r.Fill()

	r.Erode(2)

	require.Equal(t, float32(0), r.At(0, 0))
	require.Equal(t, float32(1), r.At(8, 8))
}

func TestZeroRadiusIsANoop(t *testing.T) {
	original := rectRaster(t, 16, 16, 4, 4, 8, 8)

	r := original.Clone()
	r.Dilate(0)
	r.Erode(0)
	r.Feather(0)

	require.True(t, rastersEqual(original, r))
}

func TestFeatherSoftensEdges(t *testing.T) {
	r := rectRaster(t, 32, 32, 8, 8, 24, 24)

	r.Feather(2)

	// The hard edge now carries partial opacity on both sides.
	edge := r.At(7, 16)
	require.Greater(t, edge, float32(0))
	require.Less(t, edge, float32(1))

	inside := r.At(16, 16)
	require.Greater(t, inside, float32(0.9))

	corner := r.At(0, 0)
	require.Equal(t, float32(0), corner)
}
