package producer

import (
	"context"
	"encoding/json"
	"fmt"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"

	"github.com/pixelmend/inpaint-service/internal/config"
	"github.com/pixelmend/inpaint-service/internal/model"
)

// Producer publishes worker jobs to the transformation queue.
type Producer struct {
	Client   *wbfkafka.Producer
	strategy retry.Strategy
	cfg      *config.Kafka
}

// New creates a new Producer.
// - cfg: Kafka configuration struct
// - s: retry strategy for sends
func New(cfg *config.Kafka, s retry.Strategy) *Producer {
	producer := wbfkafka.NewProducer(cfg.Brokers, cfg.Topic)

	return &Producer{
		Client:   producer,
		cfg:      cfg,
		strategy: s,
	}
}

// Produce serializes the Job to JSON and sends it to Kafka. The task ID is
// the message key, so jobs for one task stay ordered within a partition and
// a single-partition topic yields strict FIFO execution.
func (p *Producer) Produce(ctx context.Context, job model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %v", err)
	}

	key := []byte(job.TaskID.String())

	if err = p.Client.SendWithRetry(ctx, p.strategy, key, data); err != nil {
		return fmt.Errorf("failed to send job: %v", err)
	}

	return nil
}
