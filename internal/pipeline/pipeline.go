// Package pipeline wraps the heavy generative inpainting pipeline. The model
// itself runs in an inference sidecar (an external collaborator); this
// package provides the client, the typed failure modes and the process-wide
// resident lifecycle around it.
package pipeline

import (
	"context"
	"errors"
	"image"
)

// ErrDeviceOOM marks an accelerator out-of-memory failure. It is transient:
// the worker retries the job after scratch memory has been released.
var ErrDeviceOOM = errors.New("accelerator out of memory")

// Spec carries one masked-regeneration request. Opaque mask pixels mark the
// region to regenerate; transparent pixels are preserved.
type Spec struct {
	Image          image.Image
	Mask           *image.Gray
	Prompt         string
	NegativePrompt string
	Strength       float64
	GuidanceScale  float64
	Steps          int
	Seed           *int64
}

// Generator runs masked regeneration. Cleanup releases transient accelerator
// scratch memory after a job without tearing down the resident pipeline.
//
// Inpaint must honor context cancellation: the worker signals its soft time
// limit by cancelling the context, expecting a graceful wind-down.
type Generator interface {
	Inpaint(ctx context.Context, spec Spec) ([]image.Image, error)
	Cleanup(ctx context.Context) error
}

// Lifecycle is implemented by pipelines with an explicit load/unload cycle
// for the model weights and compiled execution graph.
type Lifecycle interface {
	Load(ctx context.Context) error
	Unload(ctx context.Context) error
}

// DeviceStatus is a point-in-time snapshot of the accelerator.
type DeviceStatus struct {
	Name        string  `json:"name"`
	TotalMemMB  int64   `json:"total_mem_mb"`
	UsedMemMB   int64   `json:"used_mem_mb"`
	Utilization float64 `json:"utilization"`
}
