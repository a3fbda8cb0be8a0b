package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Producer submits redaction jobs to the queue a worker consumes
type Producer interface {
	Enqueue(ctx context.Context, payload *JobPayload) (string, error)
	Close() error
}

// ProducerConfig selects the backend the same way the worker does
type ProducerConfig struct {
	RedisURL  string
	QueueName string
	Backend   string // "asynq" or "list"
	MaxRetry  int
}

// NewProducer returns a producer for cfg.Backend. No connection is made
// until the first Enqueue.
func NewProducer(cfg *ProducerConfig) (Producer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 3
	}

	switch cfg.Backend {
	case "", "asynq":
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		return &asynqProducer{client: asynq.NewClient(redisOpt), queueName: cfg.QueueName, maxRetry: cfg.MaxRetry}, nil
	case "list":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		queueName := cfg.QueueName
		if queueName == "" {
			queueName = "redaction:jobs"
		}
		return &listProducer{client: redis.NewClient(opt), queueName: queueName, maxRetry: cfg.MaxRetry}, nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

type asynqProducer struct {
	client    *asynq.Client
	queueName string
	maxRetry  int
}

func (p *asynqProducer) Enqueue(ctx context.Context, payload *JobPayload) (string, error) {
	task, err := NewRedactTask(payload, p.queueName, p.maxRetry)
	if err != nil {
		return "", err
	}
	info, err := p.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue document %s: %w", payload.DocumentID, err)
	}
	return info.ID, nil
}

func (p *asynqProducer) Close() error {
	return p.client.Close()
}

// listProducer stores the job body in "<queue>:data" and pushes its ID
// onto the queue list, the layout RedisConsumer reads
type listProducer struct {
	client    *redis.Client
	queueName string
	maxRetry  int
}

func (p *listProducer) Enqueue(ctx context.Context, payload *JobPayload) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", err
	}
	job := RedisJob{
		ID:         payload.DocumentID,
		Type:       TaskRedactDocument,
		Payload:    *payload,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: p.maxRetry,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, p.queueName+":data", job.ID, data)
	pipe.LPush(ctx, p.queueName, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	return job.ID, nil
}

func (p *listProducer) Close() error {
	return p.client.Close()
}
