package task

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pixelmend/inpaint-service/internal/mask"
	"github.com/pixelmend/inpaint-service/internal/model"
	taskrepo "github.com/pixelmend/inpaint-service/internal/repository/task"
)

// Validation failures are rejected synchronously at submission time and
// never reach the queue.
var (
	ErrEmptyMask       = errors.New("mask has no opaque pixels")
	ErrEmptyPrompt     = errors.New("prompt is empty")
	ErrInvalidStrength = errors.New("strength must be within [0,1]")
	ErrInvalidSteps    = errors.New("step count must be positive")
	ErrInvalidMask     = errors.New("mask data is not a valid image")
	ErrTooLarge        = errors.New("target resolution exceeds the configured maximum")
)

// IsValidation reports whether the error is a synchronous submission
// rejection rather than an execution failure.
func IsValidation(err error) bool {
	for _, v := range []error{
		ErrEmptyMask, ErrEmptyPrompt, ErrInvalidStrength,
		ErrInvalidSteps, ErrInvalidMask, ErrTooLarge,
	} {
		if errors.Is(err, v) {
			return true
		}
	}

	return false
}

// taskRepo defines the task-store operations the orchestrator needs.
type taskRepo interface {
	Create(ctx context.Context, t model.Task) error
	Get(ctx context.Context, id uuid.UUID) (model.Task, error)
	ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.Task, error)
}

// producer defines the interface for enqueueing jobs into the message broker.
type producer interface {
	Produce(ctx context.Context, job model.Job) error
}

// fileStorage defines the interface for persisting the submitted mask.
type fileStorage interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
}

// Config carries the orchestrator limits and estimate heuristics.
type Config struct {
	// MaxDimension is the largest accepted width or height in pixels.
	MaxDimension int
	// BaseEstimate is the expected execution time of one 1-megapixel image.
	BaseEstimate time.Duration
}

// Service validates submissions, persists task records, enqueues worker jobs
// and answers status queries. Identical resubmissions are deliberately not
// deduplicated: every submission is a new, independent task.
type Service struct {
	repo     taskRepo
	producer producer
	storage  fileStorage
	cfg      Config
}

// NewService creates a new Service.
func NewService(repo taskRepo, p producer, fs fileStorage, cfg Config) *Service {
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = 2048
	}
	if cfg.BaseEstimate <= 0 {
		cfg.BaseEstimate = 15 * time.Second
	}

	return &Service{repo: repo, producer: p, storage: fs, cfg: cfg}
}

// Submit validates the request, stores the mask, persists a PENDING task row
// and enqueues the worker job. Validation failures return synchronously and
// nothing is enqueued.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, req model.SubmitRequest) (model.SubmitResponse, error) {
	maskRaster, maskPNG, err := s.validate(req)
	if err != nil {
		return model.SubmitResponse{}, err
	}

	taskID := uuid.New()

	maskObject, err := s.storage.Save(
		ctx, "masks", fmt.Sprintf("%s/%s.png", userID, taskID), bytes.NewReader(maskPNG),
	)
	if err != nil {
		return model.SubmitResponse{}, fmt.Errorf("submit: failed to store mask: %w", err)
	}

	t := model.Task{
		ID:             taskID,
		UserID:         userID,
		SourceImageID:  req.SourceImageID,
		MaskObject:     maskObject,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Strength:       req.Strength,
		GuidanceScale:  req.GuidanceScale,
		Steps:          req.Steps,
		Seed:           req.Seed,
		Status:         model.StatusPending,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return model.SubmitResponse{}, fmt.Errorf("submit: failed to persist task: %w", err)
	}

	job := model.Job{
		TaskID:         taskID,
		UserID:         userID,
		SourceObject:   SourceObjectFor(req.SourceImageID),
		MaskObject:     maskObject,
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Strength:       req.Strength,
		GuidanceScale:  req.GuidanceScale,
		Steps:          req.Steps,
		Seed:           req.Seed,
	}

	if err := s.producer.Produce(ctx, job); err != nil {
		return model.SubmitResponse{}, fmt.Errorf("submit: failed to enqueue job: %w", err)
	}

	return model.SubmitResponse{
		TaskID:           taskID,
		Status:           model.StatusPending,
		EstimatedSeconds: s.estimateSeconds(1, maskRaster.Width(), maskRaster.Height()),
	}, nil
}

// validate applies all synchronous submission checks and returns the decoded
// mask plus its PNG bytes.
func (s *Service) validate(req model.SubmitRequest) (*mask.Raster, []byte, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, nil, ErrEmptyPrompt
	}
	if req.Strength < 0 || req.Strength > 1 {
		return nil, nil, ErrInvalidStrength
	}
	if req.Steps <= 0 {
		return nil, nil, ErrInvalidSteps
	}

	maskPNG, err := base64.StdEncoding.DecodeString(req.MaskData)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidMask, err)
	}

	maskRaster, err := mask.DecodePNG(maskPNG)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidMask, err)
	}

	if maskRaster.Width() > s.cfg.MaxDimension || maskRaster.Height() > s.cfg.MaxDimension {
		return nil, nil, ErrTooLarge
	}
	if maskRaster.Empty() {
		return nil, nil, ErrEmptyMask
	}

	return maskRaster, maskPNG, nil
}

// estimateSeconds is the heuristic turnaround estimate returned on
// submission: base time per image, scaled by megapixels.
func (s *Service) estimateSeconds(imageCount, width, height int) float64 {
	megapixels := float64(width*height) / (1024 * 1024)
	if megapixels < 0.25 {
		megapixels = 0.25
	}

	return s.cfg.BaseEstimate.Seconds() * float64(imageCount) * megapixels
}

// Status returns the latest persisted task state. Task rows are the single
// source of truth shared with the workers, so this always reads through to
// the store; nothing is cached in memory.
func (s *Service) Status(ctx context.Context, taskID uuid.UUID) (model.StatusResponse, error) {
	t, err := s.repo.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, taskrepo.ErrTaskNotFound) {
			return model.StatusResponse{}, taskrepo.ErrTaskNotFound
		}

		return model.StatusResponse{}, fmt.Errorf("status: failed to get task: %w", err)
	}

	resp := model.StatusResponse{
		TaskID:       t.ID,
		Status:       t.Status,
		ResultImages: t.Results,
		Error:        t.Error,
	}

	switch t.Status {
	case model.StatusPending:
		resp.ProgressPercent = 5
		resp.ProgressMessage = "waiting for a free accelerator"
	case model.StatusProcessing:
		resp.ProgressPercent = 50
		resp.ProgressMessage = "regenerating masked region"
	case model.StatusCompleted:
		resp.ProgressPercent = 100
		resp.ProgressMessage = "done"
	case model.StatusFailed:
		resp.ProgressPercent = 100
		resp.ProgressMessage = "failed"
	}

	if t.StartedAt != nil {
		end := time.Now()
		if t.CompletedAt != nil {
			end = *t.CompletedAt
		}
		resp.ElapsedSeconds = end.Sub(*t.StartedAt).Seconds()
	}

	return resp, nil
}

// History returns the principal's most recent tasks, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit int) ([]model.Task, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	tasks, err := s.repo.ListRecentByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: failed to list tasks: %w", err)
	}

	return tasks, nil
}

// SourceObjectFor maps a source image ID to its object-storage path. The
// image library owning these objects is an external collaborator; this
// mirrors its storage layout.
func SourceObjectFor(imageID uuid.UUID) string {
	return fmt.Sprintf("sources/%s.png", imageID)
}
