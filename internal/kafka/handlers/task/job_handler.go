package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/pixelmend/inpaint-service/internal/model"
)

// executor defines the interface for running a transformation job.
type executor interface {
	Execute(ctx context.Context, job model.Job) error
}

// JobHandler handles queued transformation jobs. It decodes the message and
// hands the job to the executor, which drives the task to a terminal state.
type JobHandler struct {
	executor executor
}

// NewJobHandler creates a new handler with the given executor.
func NewJobHandler(e executor) *JobHandler {
	return &JobHandler{executor: e}
}

// Handle processes one queue message. A returned error leaves the message
// uncommitted for redelivery; a nil return means the job's outcome is
// recorded on the task record, whether it completed or failed.
func (h *JobHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var job model.Job
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		return fmt.Errorf("unmarshal job: %w", err)
	}

	if err := h.executor.Execute(ctx, job); err != nil {
		return fmt.Errorf("execute job: %w", err)
	}

	zlog.Logger.Info().
		Str("task_id", job.TaskID.String()).
		Msg("job executed")

	return nil
}
