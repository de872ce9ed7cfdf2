package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus describes the lifecycle of a transformation task.
// Transitions are PENDING -> PROCESSING -> {COMPLETED | FAILED};
// the two terminal states never transition further.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is a single masked-regeneration request persisted in the task store.
// The orchestrator creates it in PENDING state; only the worker mutates it
// after claiming the job.
type Task struct {
	ID            uuid.UUID     `json:"id"`
	UserID        uuid.UUID     `json:"user_id"`
	SourceImageID uuid.UUID     `json:"source_image_id"`
	MaskObject    string        `json:"mask_object"` // mask PNG path in object storage
	Prompt        string        `json:"prompt"`
	NegativePrompt string       `json:"negative_prompt,omitempty"`
	Strength      float64       `json:"strength"`
	GuidanceScale float64       `json:"guidance_scale"`
	Steps         int           `json:"steps"`
	Seed          *int64        `json:"seed,omitempty"`
	Status        TaskStatus    `json:"status"`
	Error         string        `json:"error,omitempty"`
	Results       []ResultImage `json:"results,omitempty"`
	RetryCount    int           `json:"retry_count"`
	CreatedAt     time.Time     `json:"created_at"`
	StartedAt     *time.Time    `json:"started_at,omitempty"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

// ResultImage describes one uploaded output of a completed task.
type ResultImage struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Object string `json:"object_name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Job is the queue message for a transformation task. It carries everything
// the worker needs to execute without another store round-trip; delivery is
// at-least-once, so execution must stay safe to retry.
type Job struct {
	TaskID         uuid.UUID `json:"task_id"`
	UserID         uuid.UUID `json:"user_id"`
	SourceObject   string    `json:"source_object"` // source image path in object storage
	MaskObject     string    `json:"mask_object"`
	Prompt         string    `json:"prompt"`
	NegativePrompt string    `json:"negative_prompt,omitempty"`
	Strength       float64   `json:"strength"`
	GuidanceScale  float64   `json:"guidance_scale"`
	Steps          int       `json:"steps"`
	Seed           *int64    `json:"seed,omitempty"`
}
