/**
 * Queue Consumer for the Redaction Worker
 *
 * Consumes "redact-document" tasks through Asynq and hands them to the
 * document processor. Producers submit through NewProducer.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/redaction-worker/internal/logging"
	"github.com/adverant/nexus/redaction-worker/internal/processor"
)

// Consumer handles task consumption from the Asynq queue
type Consumer struct {
	inspector *asynq.Inspector
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.DocumentProcessorInterface
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // milliseconds
}

// NewRedactTask builds the Asynq task for a payload
func NewRedactTask(payload *JobPayload, queueName string, maxRetry int) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	opts := []asynq.Option{asynq.TaskID(payload.DocumentID)}
	if queueName != "" {
		opts = append(opts, asynq.Queue(queueName))
	}
	if maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(maxRetry))
	}
	return asynq.NewTask(TaskRedactDocument, data, opts...), nil
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("queue")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at a minute
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
			Logger: logger.Entry(),
		},
	)

	consumer := &Consumer{
		inspector: asynq.NewInspector(redisOpt),
		server:    server,
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
	}
	consumer.mux.HandleFunc(TaskRedactDocument, consumer.handleRedactDocument)

	return consumer, nil
}

// Start runs the Asynq server in the background
func (c *Consumer) Start() error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)
	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	if err := c.inspector.Close(); err != nil {
		return fmt.Errorf("failed to close inspector: %w", err)
	}
	c.logger.Info("Queue consumer stopped")
	return nil
}

func (c *Consumer) handleRedactDocument(ctx context.Context, task *asynq.Task) error {
	var job JobPayload
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	c.logger.Info("Processing document", "document", job.DocumentID, "filename", job.Filename, "user", job.UserID)

	result, err := runJob(ctx, c.processor, &job, time.Duration(c.config.ProcessingTimeout)*time.Millisecond, c.logger)
	if err != nil {
		return err
	}

	if err := c.processor.UpdateJobStatus(ctx, job.DocumentID, result.Status, resultSummary(result)); err != nil {
		c.logger.Warn("Failed to update final status", "document", job.DocumentID, "error", err)
	}
	return nil
}

// GetStats returns queue statistics in the same shape as the list backend
func (c *Consumer) GetStats(ctx context.Context) (map[string]int64, error) {
	info, err := c.inspector.GetQueueInfo(c.config.QueueName)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return queueInfoStats(info), nil
}

// queueInfoStats folds scheduled and retrying tasks into "waiting"
func queueInfoStats(info *asynq.QueueInfo) map[string]int64 {
	return map[string]int64{
		"waiting":    int64(info.Pending + info.Scheduled + info.Retry),
		"processing": int64(info.Active),
		"completed":  int64(info.Completed),
		"failed":     int64(info.Archived),
	}
}
