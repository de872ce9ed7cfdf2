package model

import "github.com/google/uuid"

// Default generation parameters applied when a submission omits them.
const (
	DefaultStrength      = 0.85
	DefaultGuidanceScale = 7.5
	DefaultSteps         = 30
)

// SubmitRequest is the wire form of a transformation submission.
// MaskData is a base64-encoded grayscale PNG at the exact pixel size of the
// source image; partial-opacity (feathered) values survive the encoding.
type SubmitRequest struct {
	SourceImageID  uuid.UUID `json:"source_image_id"`
	MaskData       string    `json:"mask_data"`
	Prompt         string    `json:"prompt"`
	NegativePrompt string    `json:"negative_prompt,omitempty"`
	Strength       float64   `json:"strength"`
	GuidanceScale  float64   `json:"guidance_scale"`
	Steps          int       `json:"steps"`
	Seed           *int64    `json:"seed,omitempty"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	TaskID           uuid.UUID  `json:"task_id"`
	Status           TaskStatus `json:"status"`
	EstimatedSeconds float64    `json:"estimated_seconds"`
}

// StatusResponse is the polled view of a task.
type StatusResponse struct {
	TaskID          uuid.UUID     `json:"task_id"`
	Status          TaskStatus    `json:"status"`
	ProgressPercent int           `json:"progress_percent"`
	ProgressMessage string        `json:"progress_message,omitempty"`
	ElapsedSeconds  float64       `json:"elapsed_seconds,omitempty"`
	ResultImages    []ResultImage `json:"result_images,omitempty"`
	Error           string        `json:"error,omitempty"`
}
