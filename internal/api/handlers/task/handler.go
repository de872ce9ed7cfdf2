package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixelmend/inpaint-service/internal/api/respond"
	"github.com/pixelmend/inpaint-service/internal/model"
	taskrepo "github.com/pixelmend/inpaint-service/internal/repository/task"
	tasksvc "github.com/pixelmend/inpaint-service/internal/service/task"
)

// service defines the interface for task orchestration operations.
type service interface {
	Submit(ctx context.Context, userID uuid.UUID, req model.SubmitRequest) (model.SubmitResponse, error)
	Status(ctx context.Context, taskID uuid.UUID) (model.StatusResponse, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]model.Task, error)
}

// defaultUserID stands in when the gateway did not attach a principal; kept
// for development setups without the identity service.
var defaultUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Handler provides HTTP handlers for transformation task endpoints.
// It depends on a service interface to perform the business logic.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// principal extracts the user ID attached by the API gateway. Identity and
// authorization themselves live upstream; this only reads the header.
func principal(c *ginext.Context) uuid.UUID {
	raw := c.Request.Header.Get("X-User-ID")
	if raw == "" {
		return defaultUserID
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return defaultUserID
	}

	return id
}

// Submit handles a transformation submission: validation failures return
// 400 synchronously, accepted requests return 202 with the task id and a
// turnaround estimate.
func (h *Handler) Submit(c *ginext.Context) {
	var req model.SubmitRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Err(err).Msg("failed to decode submit request")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err))
		return
	}

	resp, err := h.service.Submit(c.Request.Context(), principal(c), req)
	if err != nil {
		if tasksvc.IsValidation(err) {
			zlog.Logger.Warn().Err(err).Msg("submission rejected")
			respond.Fail(c, http.StatusBadRequest, err)
			return
		}

		zlog.Logger.Err(err).Msg("failed to submit task")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to submit task"))
		return
	}

	respond.Accepted(c, resp)
}

// Status returns the latest persisted state of a task.
func (h *Handler) Status(c *ginext.Context) {
	idStr := c.Param("id")
	if idStr == "" {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("missing id"))
		return
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("invalid id: %v", err))
		return
	}

	resp, err := h.service.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, taskrepo.ErrTaskNotFound) {
			respond.Fail(c, http.StatusNotFound, fmt.Errorf("task not found"))
			return
		}

		zlog.Logger.Err(err).Msg("failed to get task status")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to get task status"))
		return
	}

	respond.OK(c, resp)
}

// History returns the principal's recent tasks, newest first.
func (h *Handler) History(c *ginext.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		fmt.Sscanf(raw, "%d", &limit)
	}

	tasks, err := h.service.History(c.Request.Context(), principal(c), limit)
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to list task history")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to list task history"))
		return
	}

	respond.OK(c, tasks)
}
