package task

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pixelmend/inpaint-service/internal/mask"
	"github.com/pixelmend/inpaint-service/internal/model"
	taskrepo "github.com/pixelmend/inpaint-service/internal/repository/task"
)

type fakeRepo struct {
	created []model.Task
	tasks   map[uuid.UUID]model.Task
	listed  []model.Task
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tasks: map[uuid.UUID]model.Task{}}
}

func (r *fakeRepo) Create(_ context.Context, t model.Task) error {
	r.created = append(r.created, t)
	r.tasks[t.ID] = t
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id uuid.UUID) (model.Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return model.Task{}, taskrepo.ErrTaskNotFound
	}
	return t, nil
}

func (r *fakeRepo) ListRecentByUser(_ context.Context, _ uuid.UUID, _ int) ([]model.Task, error) {
	return r.listed, nil
}

type fakeProducer struct {
	jobs []model.Job
	err  error
}

func (p *fakeProducer) Produce(_ context.Context, job model.Job) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

type fakeStorage struct {
	saved map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{saved: map[string][]byte{}}
}

func (s *fakeStorage) Save(_ context.Context, subdir, filename string, src io.Reader) (string, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return "", err
	}
	object := subdir + "/" + filename
	s.saved[object] = data
	return object, nil
}

// maskData encodes a 64x64 mask with the given opaque rectangle as a base64
// PNG, the wire form the editor produces.
func maskData(t *testing.T, w, h int, opaque bool) string {
	t.Helper()

	r, err := mask.NewRaster(w, h)
	require.NoError(t, err)
	if opaque {
		for y := 0; y < h/2; y++ {
			for x := 0; x < w/2; x++ {
				r.Set(x, y, 1)
			}
		}
	}

	var buf bytes.Buffer
	require.NoError(t, r.EncodePNG(&buf))

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func validRequest(t *testing.T) model.SubmitRequest {
	t.Helper()

	return model.SubmitRequest{
		SourceImageID: uuid.New(),
		MaskData:      maskData(t, 64, 64, true),
		Prompt:        "red dress",
		Strength:      model.DefaultStrength,
		GuidanceScale: model.DefaultGuidanceScale,
		Steps:         model.DefaultSteps,
	}
}

func newService(repo *fakeRepo, p *fakeProducer, s *fakeStorage) *Service {
	return NewService(repo, p, s, Config{MaxDimension: 2048, BaseEstimate: 15 * time.Second})
}

func TestSubmitRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.SubmitRequest)
		wantErr error
	}{
		{
			"empty prompt",
			func(r *model.SubmitRequest) { r.Prompt = "  " },
			ErrEmptyPrompt,
		},
		{
			"strength above range",
			func(r *model.SubmitRequest) { r.Strength = 1.5 },
			ErrInvalidStrength,
		},
		{
			"strength below range",
			func(r *model.SubmitRequest) { r.Strength = -0.1 },
			ErrInvalidStrength,
		},
		{
			"non-positive steps",
			func(r *model.SubmitRequest) { r.Steps = 0 },
			ErrInvalidSteps,
		},
		{
			"garbage mask data",
			func(r *model.SubmitRequest) { r.MaskData = "!!!" },
			ErrInvalidMask,
		},
		{
			"zero-opacity mask",
			func(r *model.SubmitRequest) { r.MaskData = maskData(t, 64, 64, false) },
			ErrEmptyMask,
		},
		{
			"oversized resolution",
			func(r *model.SubmitRequest) { r.MaskData = maskData(t, 4096, 8, true) },
			ErrTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			producer := &fakeProducer{}
			svc := newService(repo, producer, newFakeStorage())

			req := validRequest(t)
			tt.mutate(&req)

			_, err := svc.Submit(context.Background(), uuid.New(), req)
			require.ErrorIs(t, err, tt.wantErr)
			require.True(t, IsValidation(err))

			// Rejected synchronously: no task row, no queue entry.
			require.Empty(t, repo.created)
			require.Empty(t, producer.jobs)
		})
	}
}

func TestSubmitPersistsTaskAndEnqueuesJob(t *testing.T) {
	repo := newFakeRepo()
	producer := &fakeProducer{}
	storage := newFakeStorage()
	svc := newService(repo, producer, storage)

	userID := uuid.New()
	req := validRequest(t)

	resp, err := svc.Submit(context.Background(), userID, req)
	require.NoError(t, err)

	require.NotEqual(t, uuid.Nil, resp.TaskID)
	require.Equal(t, model.StatusPending, resp.Status)
	require.Greater(t, resp.EstimatedSeconds, 0.0)

	require.Len(t, repo.created, 1)
	created := repo.created[0]
	require.Equal(t, model.StatusPending, created.Status)
	require.Equal(t, userID, created.UserID)
	require.Equal(t, "red dress", created.Prompt)
	require.Contains(t, storage.saved, created.MaskObject)

	require.Len(t, producer.jobs, 1)
	job := producer.jobs[0]
	require.Equal(t, resp.TaskID, job.TaskID)
	require.Equal(t, created.MaskObject, job.MaskObject)
	require.Equal(t, SourceObjectFor(req.SourceImageID), job.SourceObject)
	require.Equal(t, model.DefaultStrength, job.Strength)
	require.Equal(t, model.DefaultSteps, job.Steps)
}

func TestSubmitNeverDeduplicates(t *testing.T) {
	repo := newFakeRepo()
	producer := &fakeProducer{}
	svc := newService(repo, producer, newFakeStorage())

	userID := uuid.New()
	req := validRequest(t)

	first, err := svc.Submit(context.Background(), userID, req)
	require.NoError(t, err)
	second, err := svc.Submit(context.Background(), userID, req)
	require.NoError(t, err)

	// An identical resubmission is a new, independent task.
	require.NotEqual(t, first.TaskID, second.TaskID)
	require.Len(t, producer.jobs, 2)
}

func TestSubmitFailsWhenEnqueueFails(t *testing.T) {
	repo := newFakeRepo()
	producer := &fakeProducer{err: errors.New("broker down")}
	svc := newService(repo, producer, newFakeStorage())

	_, err := svc.Submit(context.Background(), uuid.New(), validRequest(t))
	require.Error(t, err)
	require.False(t, IsValidation(err))
}

func TestEstimateScalesWithResolution(t *testing.T) {
	svc := newService(newFakeRepo(), &fakeProducer{}, newFakeStorage())

	small := svc.estimateSeconds(1, 512, 512)
	large := svc.estimateSeconds(1, 2048, 2048)

	require.Greater(t, large, small)
	require.InDelta(t, 60.0, large, 1e-9) // 4 megapixels at 15s each
}

func TestStatusReflectsPersistedState(t *testing.T) {
	repo := newFakeRepo()
	svc := newService(repo, &fakeProducer{}, newFakeStorage())

	started := time.Now().Add(-10 * time.Second)
	completed := time.Now()
	id := uuid.New()
	repo.tasks[id] = model.Task{
		ID:          id,
		Status:      model.StatusCompleted,
		StartedAt:   &started,
		CompletedAt: &completed,
		Results: []model.ResultImage{
			{ID: "img", URL: "http://storage/img.png", Width: 1024, Height: 1024},
		},
	}

	resp, err := svc.Status(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, resp.Status)
	require.Equal(t, 100, resp.ProgressPercent)
	require.InDelta(t, 10.0, resp.ElapsedSeconds, 0.5)
	require.Len(t, resp.ResultImages, 1)
}

func TestStatusUnknownTask(t *testing.T) {
	svc := newService(newFakeRepo(), &fakeProducer{}, newFakeStorage())

	_, err := svc.Status(context.Background(), uuid.New())
	require.ErrorIs(t, err, taskrepo.ErrTaskNotFound)
}
