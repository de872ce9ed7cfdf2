package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/pixelmend/inpaint-service/internal/model"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	// ErrNotClaimable means the task has already reached a terminal state; a
	// redelivered job must not execute it again.
	ErrNotClaimable = errors.New("task is not claimable")
)

// Repository provides CRUD and guarded state transitions for transformation
// tasks. Task rows are the single source of truth shared between the
// orchestrator and the workers; every write here is atomic per row.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new PENDING task row.
func (r *Repository) Create(ctx context.Context, t model.Task) error {
	query := `
		INSERT INTO transform_tasks
			(id, user_id, source_image_id, mask_object, prompt, negative_prompt,
			 strength, guidance_scale, steps, seed, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
	`

	_, err := r.db.ExecContext(
		ctx, query,
		t.ID, t.UserID, t.SourceImageID, t.MaskObject, t.Prompt, t.NegativePrompt,
		t.Strength, t.GuidanceScale, t.Steps, t.Seed, model.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("create: failed to insert task: %w", err)
	}

	return nil
}

// Get retrieves a task row by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (model.Task, error) {
	query := `
		SELECT id, user_id, source_image_id, mask_object, prompt, negative_prompt,
		       strength, guidance_scale, steps, seed, status, error, results,
		       retry_count, created_at, started_at, completed_at
		FROM transform_tasks
		WHERE id = $1
	`

	var t model.Task
	var resultsJSON []byte

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.UserID, &t.SourceImageID, &t.MaskObject, &t.Prompt, &t.NegativePrompt,
		&t.Strength, &t.GuidanceScale, &t.Steps, &t.Seed, &t.Status, &t.Error, &resultsJSON,
		&t.RetryCount, &t.CreatedAt, &t.StartedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, ErrTaskNotFound
		}

		return model.Task{}, fmt.Errorf("get: failed to get task: %w", err)
	}

	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &t.Results); err != nil {
			return model.Task{}, fmt.Errorf("get: failed to unmarshal results: %w", err)
		}
	}

	return t, nil
}

// Claim transitions a non-terminal task to PROCESSING and stamps started_at.
// A PROCESSING row is claimable again on purpose: the queue delivers at least
// once, so a job whose worker crashed mid-execution comes back and must be
// re-runnable, or the task would sit in PROCESSING forever. Only terminal
// rows refuse the claim; the guards on MarkCompleted and MarkFailed keep the
// re-execution from firing a second terminal transition.
func (r *Repository) Claim(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE transform_tasks
		SET status = $1, started_at = now()
		WHERE id = $2 AND status IN ($3, $4)
	`

	res, err := r.db.ExecContext(
		ctx, query,
		model.StatusProcessing, id, model.StatusPending, model.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("claim: failed to claim task: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrNotClaimable
	}

	return nil
}

// MarkCompleted records the result descriptors and moves the task to its
// COMPLETED terminal state. The non-terminal guard keeps a crashed-and-
// retried worker from firing a second terminal transition.
func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, results []model.ResultImage) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("complete: failed to marshal results: %w", err)
	}

	query := `
		UPDATE transform_tasks
		SET status = $1, results = $2, completed_at = now()
		WHERE id = $3 AND status NOT IN ($4, $5)
	`

	res, err := r.db.ExecContext(
		ctx, query,
		model.StatusCompleted, resultsJSON, id, model.StatusCompleted, model.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("complete: failed to update task: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// MarkFailed records the error and moves the task to its FAILED terminal
// state, guarded the same way as MarkCompleted.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, taskErr string) error {
	query := `
		UPDATE transform_tasks
		SET status = $1, error = $2, completed_at = now()
		WHERE id = $3 AND status NOT IN ($4, $5)
	`

	res, err := r.db.ExecContext(
		ctx, query,
		model.StatusFailed, taskErr, id, model.StatusCompleted, model.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("fail: failed to update task: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return ErrTaskNotFound
	}

	return nil
}

// IncrementRetry bumps the retry counter after a transient execution failure.
func (r *Repository) IncrementRetry(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE transform_tasks
		SET retry_count = retry_count + 1
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("retry: failed to increment retry count: %w", err)
	}

	return nil
}

// ListRecentByUser returns the most recent tasks of one principal, newest
// first.
func (r *Repository) ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.Task, error) {
	query := `
		SELECT id, user_id, source_image_id, mask_object, prompt, negative_prompt,
		       strength, guidance_scale, steps, seed, status, error, results,
		       retry_count, created_at, started_at, completed_at
		FROM transform_tasks
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list: failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		var resultsJSON []byte

		err := rows.Scan(
			&t.ID, &t.UserID, &t.SourceImageID, &t.MaskObject, &t.Prompt, &t.NegativePrompt,
			&t.Strength, &t.GuidanceScale, &t.Steps, &t.Seed, &t.Status, &t.Error, &resultsJSON,
			&t.RetryCount, &t.CreatedAt, &t.StartedAt, &t.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("list: failed to scan task: %w", err)
		}

		if len(resultsJSON) > 0 {
			if err := json.Unmarshal(resultsJSON, &t.Results); err != nil {
				return nil, fmt.Errorf("list: failed to unmarshal results: %w", err)
			}
		}

		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: rows error: %w", err)
	}

	return tasks, nil
}
