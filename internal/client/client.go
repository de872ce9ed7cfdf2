// Package client is the HTTP client used by editor frontends and tools to
// submit transformations and poll for their completion.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pixelmend/inpaint-service/internal/model"
)

// ErrRejected means the submission failed validation on the server.
var ErrRejected = errors.New("submission rejected")

// DefaultPollInterval is the fixed delay between status queries.
const DefaultPollInterval = 2 * time.Second

// envelope mirrors the API's response wrapper.
type envelope[T any] struct {
	Result  T      `json:"result"`
	Message string `json:"message"`
}

// Client talks to the orchestrator API.
type Client struct {
	baseURL string
	http    *http.Client
	userID  uuid.UUID
}

// New creates a client for the orchestrator at baseURL acting as the given
// principal.
func New(baseURL string, userID uuid.UUID) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		userID:  userID,
	}
}

// Submit sends a transformation request and returns the accepted task.
func (c *Client) Submit(ctx context.Context, req model.SubmitRequest) (model.SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.SubmitResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.baseURL+"/api/inpaint", bytes.NewReader(body),
	)
	if err != nil {
		return model.SubmitResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-ID", c.userID.String())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return model.SubmitResponse{}, fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope[model.SubmitResponse]
	if err := decodeEnvelope(resp.Body, &env); err != nil {
		return model.SubmitResponse{}, err
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		return env.Result, nil
	case http.StatusBadRequest:
		return model.SubmitResponse{}, fmt.Errorf("%w: %s", ErrRejected, env.Message)
	default:
		return model.SubmitResponse{}, fmt.Errorf("submit failed with status %d: %s", resp.StatusCode, env.Message)
	}
}

// Status queries the latest persisted state of a task.
func (c *Client) Status(ctx context.Context, taskID uuid.UUID) (model.StatusResponse, error) {
	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodGet, fmt.Sprintf("%s/api/inpaint/tasks/%s", c.baseURL, taskID), nil,
	)
	if err != nil {
		return model.StatusResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("X-User-ID", c.userID.String())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return model.StatusResponse{}, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope[model.StatusResponse]
	if err := decodeEnvelope(resp.Body, &env); err != nil {
		return model.StatusResponse{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return model.StatusResponse{}, fmt.Errorf("status failed with status %d: %s", resp.StatusCode, env.Message)
	}

	return env.Result, nil
}

// Poll queries the task status at a fixed interval until it reaches a
// terminal state, then stops permanently for that task. Cancelling the
// context stops the polling loop — and nothing else: the enqueued job keeps
// running server-side regardless of client abandonment.
func (c *Client) Poll(ctx context.Context, taskID uuid.UUID, interval time.Duration) (model.StatusResponse, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, taskID)
		if err == nil && status.Status.Terminal() {
			return status, nil
		}
		if err != nil && ctx.Err() != nil {
			return model.StatusResponse{}, ctx.Err()
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return model.StatusResponse{}, ctx.Err()
		}
	}
}

func decodeEnvelope(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
