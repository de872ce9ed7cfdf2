package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/wb-go/wbf/zlog"
)

// Resident keeps one Generator loaded for the lifetime of the process. The
// underlying pipeline is loaded lazily on the first job and stays warm
// across jobs; Close releases it on shutdown. The working set of the loaded
// model saturates a single accelerator, so exactly one Resident exists per
// worker process.
type Resident struct {
	gen Generator

	mu     sync.Mutex
	loaded bool
}

// NewResident wraps a Generator with the init-once/release-on-shutdown
// lifecycle.
func NewResident(gen Generator) *Resident {
	return &Resident{gen: gen}
}

// ensureLoaded performs the warm-up if the generator has an explicit load
// step. Only a successful load sticks; a failed warm-up (sidecar briefly
// down, device out of memory) is retried on the next job instead of failing
// every job until restart.
func (r *Resident) ensureLoaded(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return nil
	}

	lc, ok := r.gen.(Lifecycle)
	if !ok {
		r.loaded = true
		return nil
	}

	zlog.Logger.Info().Msg("loading generative pipeline")
	if err := lc.Load(ctx); err != nil {
		return fmt.Errorf("failed to load pipeline: %w", err)
	}
	zlog.Logger.Info().Msg("generative pipeline resident")
	r.loaded = true

	return nil
}

// Inpaint runs one job, loading the pipeline first if this is the first use.
func (r *Resident) Inpaint(ctx context.Context, spec Spec) ([]image.Image, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	return r.gen.Inpaint(ctx, spec)
}

// Cleanup releases per-job scratch memory, keeping the pipeline resident.
func (r *Resident) Cleanup(ctx context.Context) error {
	return r.gen.Cleanup(ctx)
}

// Device reports the accelerator snapshot when the wrapped pipeline can.
func (r *Resident) Device(ctx context.Context) (DeviceStatus, error) {
	d, ok := r.gen.(interface {
		Device(ctx context.Context) (DeviceStatus, error)
	})
	if !ok {
		return DeviceStatus{}, errors.New("pipeline does not report device status")
	}

	return d.Device(ctx)
}

// Close releases the resident pipeline on process shutdown.
func (r *Resident) Close(ctx context.Context) error {
	lc, ok := r.gen.(Lifecycle)
	if !ok {
		return nil
	}

	if err := lc.Unload(ctx); err != nil {
		return fmt.Errorf("failed to unload pipeline: %w", err)
	}

	return nil
}
