// Package worker executes transformation jobs claimed from the queue on a
// fixed pool of accelerator slots.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixelmend/inpaint-service/internal/mask"
	"github.com/pixelmend/inpaint-service/internal/model"
	"github.com/pixelmend/inpaint-service/internal/pipeline"
	taskrepo "github.com/pixelmend/inpaint-service/internal/repository/task"
)

// taskRepo defines the task-store transitions the executor performs.
type taskRepo interface {
	Claim(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, results []model.ResultImage) error
	MarkFailed(ctx context.Context, id uuid.UUID, taskErr string) error
	IncrementRetry(ctx context.Context, id uuid.UUID) error
}

// fileStorage defines the object-store operations the executor needs.
type fileStorage interface {
	Load(ctx context.Context, path string) (io.ReadCloser, error)
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
	PublicURL(path string) string
}

// deviceInspector is optionally implemented by pipelines that can report
// accelerator state.
type deviceInspector interface {
	Device(ctx context.Context) (pipeline.DeviceStatus, error)
}

// Config bounds the executor's resources and failure handling.
type Config struct {
	// Slots is the number of available accelerators. Exactly one job runs
	// per accelerator at a time; the generative pipeline's working set
	// saturates a single device, so this is a hard ceiling.
	Slots int
	// MaxAttempts caps execution attempts per job, the first included.
	MaxAttempts int
	// RetryDelay is the fixed pause between attempts after a transient
	// failure.
	RetryDelay time.Duration
	// SoftTimeLimit signals the running attempt to wind down gracefully.
	SoftTimeLimit time.Duration
	// HardTimeLimit forcibly abandons the attempt and fails the task.
	HardTimeLimit time.Duration
}

// Executor claims jobs, runs the masked-regeneration pipeline and drives the
// task record to a terminal state. Every job ends COMPLETED or FAILED; jobs
// are never silently dropped.
type Executor struct {
	repo    taskRepo
	storage fileStorage
	gen     pipeline.Generator
	cfg     Config

	slots chan struct{}
}

// New creates an Executor with one slot per configured accelerator.
func New(repo taskRepo, fs fileStorage, gen pipeline.Generator, cfg Config) *Executor {
	if cfg.Slots < 1 {
		cfg.Slots = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.HardTimeLimit <= 0 {
		cfg.HardTimeLimit = 6 * time.Minute
	}
	if cfg.SoftTimeLimit <= 0 || cfg.SoftTimeLimit > cfg.HardTimeLimit {
		cfg.SoftTimeLimit = cfg.HardTimeLimit - cfg.HardTimeLimit/6
	}

	return &Executor{
		repo:    repo,
		storage: fs,
		gen:     gen,
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.Slots),
	}
}

// Execute runs one job to a terminal task state. It blocks until an
// accelerator slot frees up; excess jobs queue in delivery order. A nil
// return means the job may be acknowledged — including jobs that ended
// FAILED, whose outcome is already recorded on the task.
func (e *Executor) Execute(ctx context.Context, job model.Job) error {
	select {
	case e.slots <- struct{}{}:
		defer func() { <-e.slots }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := e.repo.Claim(ctx, job.TaskID); err != nil {
		if errors.Is(err, taskrepo.ErrNotClaimable) {
			// Redelivered job for a task that already reached a terminal state.
			zlog.Logger.Info().
				Str("task_id", job.TaskID.String()).
				Msg("skipping job: task already terminal")
			return nil
		}

		return fmt.Errorf("execute: failed to claim task: %w", err)
	}

	e.logDevice(ctx, job.TaskID)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		if err := e.gen.Cleanup(cleanupCtx); err != nil {
			zlog.Logger.Err(err).Msg("failed to release accelerator scratch memory")
		}
	}()

	for attempt := 1; ; attempt++ {
		results, err := e.runAttempt(ctx, job)
		if err == nil {
			if err := e.repo.MarkCompleted(ctx, job.TaskID, results); err != nil {
				return fmt.Errorf("execute: failed to mark task completed: %w", err)
			}

			zlog.Logger.Info().
				Str("task_id", job.TaskID.String()).
				Int("attempt", attempt).
				Int("images", len(results)).
				Msg("task completed")
			return nil
		}

		if errors.Is(err, ErrTimeout) {
			return e.fail(ctx, job.TaskID, err)
		}

		if IsTransient(err) && attempt < e.cfg.MaxAttempts {
			zlog.Logger.Warn().Err(err).
				Str("task_id", job.TaskID.String()).
				Int("attempt", attempt).
				Msg("transient failure, retrying")

			if err := e.repo.IncrementRetry(ctx, job.TaskID); err != nil {
				zlog.Logger.Err(err).Msg("failed to increment retry count")
			}

			select {
			case <-time.After(e.cfg.RetryDelay):
			case <-ctx.Done():
				return e.fail(ctx, job.TaskID, fmt.Errorf("worker shutting down: %w", ctx.Err()))
			}
			continue
		}

		return e.fail(ctx, job.TaskID, err)
	}
}

// fail records the terminal FAILED state with the captured error.
func (e *Executor) fail(ctx context.Context, taskID uuid.UUID, cause error) error {
	zlog.Logger.Error().Err(cause).
		Str("task_id", taskID.String()).
		Msg("task failed")

	if err := e.repo.MarkFailed(ctx, taskID, cause.Error()); err != nil {
		return fmt.Errorf("execute: failed to mark task failed: %w", err)
	}

	return nil
}

// runAttempt executes a single attempt under the soft and hard time limits.
// The pipeline receives a context that expires at the soft limit, asking it
// to wind down; the hard limit abandons the attempt outright.
func (e *Executor) runAttempt(ctx context.Context, job model.Job) ([]model.ResultImage, error) {
	hardCtx, cancel := context.WithTimeout(ctx, e.cfg.HardTimeLimit)
	defer cancel()

	softCtx, softCancel := context.WithTimeout(hardCtx, e.cfg.SoftTimeLimit)
	defer softCancel()

	type outcome struct {
		results []model.ResultImage
		err     error
	}

	done := make(chan outcome, 1)
	go func() {
		results, err := e.attempt(softCtx, job)
		done <- outcome{results: results, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && softCtx.Err() != nil {
			// The attempt wound down after the soft limit fired.
			return nil, fmt.Errorf("%w (soft limit): %v", ErrTimeout, o.err)
		}
		return o.results, o.err
	case <-hardCtx.Done():
		if ctx.Err() != nil {
			return nil, transient(fmt.Errorf("attempt aborted: %w", ctx.Err()))
		}
		return nil, fmt.Errorf("%w (hard limit after %s)", ErrTimeout, e.cfg.HardTimeLimit)
	}
}

// attempt fetches the inputs, runs the generation and uploads the results.
func (e *Executor) attempt(ctx context.Context, job model.Job) ([]model.ResultImage, error) {
	src, err := e.fetchImage(ctx, job.SourceObject)
	if err != nil {
		return nil, transient(fmt.Errorf("failed to fetch source image: %w", err))
	}

	maskGray, err := e.fetchMask(ctx, job.MaskObject, src.Bounds())
	if err != nil {
		return nil, transient(fmt.Errorf("failed to fetch mask: %w", err))
	}

	spec := pipeline.Spec{
		Image:          src,
		Mask:           maskGray,
		Prompt:         job.Prompt,
		NegativePrompt: job.NegativePrompt,
		Strength:       job.Strength,
		GuidanceScale:  job.GuidanceScale,
		Steps:          job.Steps,
		Seed:           job.Seed,
	}

	images, err := e.gen.Inpaint(ctx, spec)
	if err != nil {
		if errors.Is(err, pipeline.ErrDeviceOOM) {
			return nil, transient(err)
		}

		return nil, fmt.Errorf("generation failed: %w", err)
	}

	results := make([]model.ResultImage, 0, len(images))
	for _, img := range images {
		imageID := uuid.New().String()

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("failed to encode result image: %w", err)
		}

		object, err := e.storage.Save(
			ctx, "results",
			fmt.Sprintf("%s/%s/%s.png", job.UserID, job.TaskID, imageID),
			&buf,
		)
		if err != nil {
			return nil, transient(fmt.Errorf("failed to upload result image: %w", err))
		}

		bounds := img.Bounds()
		results = append(results, model.ResultImage{
			ID:     imageID,
			URL:    e.storage.PublicURL(object),
			Object: object,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})
	}

	return results, nil
}

// fetchImage downloads and decodes one stored image.
func (e *Executor) fetchImage(ctx context.Context, object string) (image.Image, error) {
	reader, err := e.storage.Load(ctx, object)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	img, err := imaging.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", object, err)
	}

	return img, nil
}

// fetchMask downloads the mask and normalizes it to the source bounds.
// Opaque pixels mark the region to regenerate, transparent pixels the region
// to preserve.
func (e *Executor) fetchMask(ctx context.Context, object string, bounds image.Rectangle) (*image.Gray, error) {
	reader, err := e.storage.Load(ctx, object)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read mask %s: %w", object, err)
	}

	raster, err := mask.DecodePNG(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mask %s: %w", object, err)
	}

	gray := raster.ToGray()
	if gray.Bounds().Dx() != bounds.Dx() || gray.Bounds().Dy() != bounds.Dy() {
		resized := imaging.Resize(gray, bounds.Dx(), bounds.Dy(), imaging.Lanczos)
		gray = image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		for y := 0; y < bounds.Dy(); y++ {
			for x := 0; x < bounds.Dx(); x++ {
				gray.Set(x, y, resized.At(x, y))
			}
		}
	}

	return gray, nil
}

// logDevice records an accelerator snapshot at job start when the pipeline
// can report one.
func (e *Executor) logDevice(ctx context.Context, taskID uuid.UUID) {
	inspector, ok := e.gen.(deviceInspector)
	if !ok {
		return
	}

	status, err := inspector.Device(ctx)
	if err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to read device status")
		return
	}

	zlog.Logger.Info().
		Str("task_id", taskID.String()).
		Str("device", status.Name).
		Int64("used_mem_mb", status.UsedMemMB).
		Int64("total_mem_mb", status.TotalMemMB).
		Msg("starting job")
}
