package request

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pixelmend/inpaint-service/internal/mask"
	"github.com/pixelmend/inpaint-service/internal/model"
)

func paintedRaster(t *testing.T) *mask.Raster {
	t.Helper()

	r, err := mask.NewRaster(32, 32)
	require.NoError(t, err)
	for y := 8; y < 16; y++ {
		for x := 8; x < 16; x++ {
			r.Set(x, y, 1)
		}
	}

	return r
}

func TestBuildWithoutMaskFails(t *testing.T) {
	b := NewBuilder(uuid.New())

	_, err := b.Build(Params{Prompt: "red dress"})
	require.ErrorIs(t, err, ErrNoMask)
}

func TestBuildWithEmptyMaskFails(t *testing.T) {
	b := NewBuilder(uuid.New())

	empty, err := mask.NewRaster(16, 16)
	require.NoError(t, err)
	b.SetMask(empty)

	require.False(t, b.HasMask())
	_, err = b.Build(Params{Prompt: "red dress"})
	require.ErrorIs(t, err, ErrEmptyMask)
}

func TestBuildAppliesDefaults(t *testing.T) {
	sourceID := uuid.New()
	b := NewBuilder(sourceID)
	b.SetMask(paintedRaster(t))

	req, err := b.Build(Params{Prompt: "red dress"})
	require.NoError(t, err)

	require.Equal(t, sourceID, req.SourceImageID)
	require.Equal(t, "red dress", req.Prompt)
	require.Equal(t, model.DefaultStrength, req.Strength)
	require.Equal(t, model.DefaultGuidanceScale, req.GuidanceScale)
	require.Equal(t, model.DefaultSteps, req.Steps)
	require.Nil(t, req.Seed)
}

func TestBuildKeepsExplicitParams(t *testing.T) {
	b := NewBuilder(uuid.New())
	b.SetMask(paintedRaster(t))

	strength := 0.5
	guidance := 10.0
	steps := 50
	seed := int64(42)
	req, err := b.Build(Params{
		Prompt:         "blue car",
		NegativePrompt: "blurry",
		Strength:       &strength,
		GuidanceScale:  &guidance,
		Steps:          &steps,
		Seed:           &seed,
	})
	require.NoError(t, err)

	require.Equal(t, 0.5, req.Strength)
	require.Equal(t, 10.0, req.GuidanceScale)
	require.Equal(t, 50, req.Steps)
	require.Equal(t, "blurry", req.NegativePrompt)
	require.Equal(t, seed, *req.Seed)
}

func TestBuildKeepsExplicitZeroStrength(t *testing.T) {
	b := NewBuilder(uuid.New())
	b.SetMask(paintedRaster(t))

	// Strength 0 is a valid in-range choice, not an omitted parameter.
	zero := 0.0
	req, err := b.Build(Params{Prompt: "red dress", Strength: &zero})
	require.NoError(t, err)

	require.Equal(t, 0.0, req.Strength)
	require.Equal(t, model.DefaultGuidanceScale, req.GuidanceScale)
}

func TestBuildEncodesMaskLosslessly(t *testing.T) {
	b := NewBuilder(uuid.New())
	b.SetMask(paintedRaster(t))

	req, err := b.Build(Params{Prompt: "red dress"})
	require.NoError(t, err)

	data, err := base64.StdEncoding.DecodeString(req.MaskData)
	require.NoError(t, err)

	decoded, err := mask.DecodePNG(data)
	require.NoError(t, err)
	require.Equal(t, 32, decoded.Width())
	require.Equal(t, 32, decoded.Height())
	require.Equal(t, float32(1), decoded.At(10, 10))
	require.Equal(t, float32(0), decoded.At(0, 0))
}

func TestSetMaskTakesASnapshot(t *testing.T) {
	b := NewBuilder(uuid.New())

	r := paintedRaster(t)
	b.SetMask(r)

	// Later editor mutations must not leak into the pending request.
	r.Clear()
	require.True(t, b.HasMask())
}
