// Package request assembles transformation submissions from the region
// editor's exported mask and the user's generation parameters.
package request

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pixelmend/inpaint-service/internal/mask"
	"github.com/pixelmend/inpaint-service/internal/model"
)

var (
	// ErrNoMask means the editor has not exported a mask yet.
	ErrNoMask = errors.New("no pending mask")
	// ErrEmptyMask means the pending mask has no opaque pixels.
	ErrEmptyMask = errors.New("pending mask is fully transparent")
)

// Params are the user-tunable generation parameters of a submission. The
// numeric parameters are pointers so that an omitted parameter (nil, falls
// back to the service default) stays distinct from an explicit zero: a
// strength of 0 is a valid request that leaves the masked region untouched.
type Params struct {
	Prompt         string
	NegativePrompt string
	Strength       *float64
	GuidanceScale  *float64
	Steps          *int
	Seed           *int64
}

// Builder holds the pending mask for one source image and serializes it,
// together with the parameters, into a wire submission. The region editor
// refreshes the pending mask through SetMask on every committed mutation.
// Like the editor, a Builder belongs to a single UI goroutine.
type Builder struct {
	sourceImageID uuid.UUID
	pending       *mask.Raster
}

// NewBuilder creates a builder bound to the given source image.
func NewBuilder(sourceImageID uuid.UUID) *Builder {
	return &Builder{sourceImageID: sourceImageID}
}

// SetMask replaces the pending mask snapshot. Intended as the editor's
// commit callback.
func (b *Builder) SetMask(r *mask.Raster) {
	if r == nil {
		b.pending = nil
		return
	}
	b.pending = r.Clone()
}

// HasMask reports whether a pending mask with any opaque pixels exists.
func (b *Builder) HasMask() bool {
	return b.pending != nil && !b.pending.Empty()
}

// Build serializes the pending mask as a base64 grayscale PNG and combines
// it with the parameters into a submission. Missing numeric parameters take
// the documented defaults.
func (b *Builder) Build(p Params) (model.SubmitRequest, error) {
	if b.pending == nil {
		return model.SubmitRequest{}, ErrNoMask
	}
	if b.pending.Empty() {
		return model.SubmitRequest{}, ErrEmptyMask
	}

	var buf bytes.Buffer
	if err := b.pending.EncodePNG(&buf); err != nil {
		return model.SubmitRequest{}, fmt.Errorf("build request: %w", err)
	}

	req := model.SubmitRequest{
		SourceImageID:  b.sourceImageID,
		MaskData:       base64.StdEncoding.EncodeToString(buf.Bytes()),
		Prompt:         p.Prompt,
		NegativePrompt: p.NegativePrompt,
		Strength:       model.DefaultStrength,
		GuidanceScale:  model.DefaultGuidanceScale,
		Steps:          model.DefaultSteps,
		Seed:           p.Seed,
	}

	if p.Strength != nil {
		req.Strength = *p.Strength
	}
	if p.GuidanceScale != nil {
		req.GuidanceScale = *p.GuidanceScale
	}
	if p.Steps != nil {
		req.Steps = *p.Steps
	}

	return req, nil
}
