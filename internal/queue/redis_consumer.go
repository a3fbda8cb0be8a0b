/**
 * Redis List Consumer for the Redaction Worker
 *
 * Alternative queue backend built on plain Redis LIST operations, for
 * producers that cannot speak the Asynq protocol. Job IDs are pushed to
 * the queue list; job bodies live in the "<queue>:data" hash.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/redaction-worker/internal/logging"
	"github.com/adverant/nexus/redaction-worker/internal/processor"
)

var errNoJobs = fmt.Errorf("no jobs available")

// RedisJob is one entry of the "<queue>:data" hash
type RedisJob struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// RedisConsumer handles job consumption from a Redis list
type RedisConsumer struct {
	client    *redis.Client
	processor processor.DocumentProcessorInterface
	config    *RedisConsumerConfig
	logger    *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // milliseconds
}

// NewRedisConsumer creates a new Redis list consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisConsumerWithClient(client, cfg)
}

// NewRedisConsumerWithClient builds a consumer on an existing client
func NewRedisConsumerWithClient(client *redis.Client, cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "redaction:jobs"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		logger:    logging.NewLogger("queue").With("queue", cfg.QueueName),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (c *RedisConsumer) key(suffix string) string {
	return fmt.Sprintf("%s:%s", c.config.QueueName, suffix)
}

// Start launches the worker goroutines
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis list consumer", "concurrency", c.config.Concurrency)
	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	return nil
}

// Stop cancels the workers, waits for in-flight jobs and closes the client
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping Redis list consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	log := c.logger.With("worker", id)
	log.Debug("Worker started")

	for {
		select {
		case <-c.ctx.Done():
			log.Debug("Worker stopping")
			return
		default:
			if err := c.processNextJob(); err != nil {
				if err != errNoJobs && c.ctx.Err() == nil {
					log.Warn("Worker error", "error", err)
					time.Sleep(time.Second)
				}
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob() error {
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	jobID := result[1]
	raw, err := c.client.HGet(c.ctx, c.key("data"), jobID).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data for %s: %w", jobID, err)
	}

	var job RedisJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		c.markFailed(jobID, map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	if job.Payload.DocumentID == "" {
		job.Payload.DocumentID = job.ID
	}
	if err := job.Payload.Validate(); err != nil {
		c.markFailed(jobID, map[string]interface{}{"error": err.Error()})
		return err
	}

	c.client.SAdd(c.ctx, c.key("processing"), jobID)
	c.publish(jobID, "processing")

	timeout := time.Duration(c.config.ProcessingTimeout) * time.Millisecond
	processResult, err := runJob(c.ctx, c.processor, &job.Payload, timeout, c.logger)
	if err != nil {
		job.Attempts++
		if job.Attempts < job.MaxRetries {
			updated, _ := json.Marshal(job)
			c.client.HSet(c.ctx, c.key("data"), jobID, updated)
			c.client.SRem(c.ctx, c.key("processing"), jobID)
			c.client.LPush(c.ctx, c.config.QueueName, jobID)
			c.logger.Warn("Job re-queued for retry", "job", jobID, "attempt", job.Attempts, "maxRetries", job.MaxRetries)
			return nil
		}
		c.markFailed(jobID, map[string]interface{}{"error": err.Error(), "attempts": job.Attempts})
		return nil
	}

	summary := resultSummary(processResult)
	if err := c.processor.UpdateJobStatus(c.ctx, job.Payload.DocumentID, processResult.Status, summary); err != nil {
		c.logger.Warn("Failed to update final status", "job", jobID, "error", err)
	}
	resultData, _ := json.Marshal(summary)
	c.client.SRem(c.ctx, c.key("processing"), jobID)
	c.client.SAdd(c.ctx, c.key("completed"), jobID)
	c.client.HSet(c.ctx, c.key("results"), jobID, resultData)
	c.publish(jobID, "completed")
	return nil
}

func (c *RedisConsumer) markFailed(jobID string, details map[string]interface{}) {
	errorData, _ := json.Marshal(details)
	c.client.SRem(c.ctx, c.key("processing"), jobID)
	c.client.SAdd(c.ctx, c.key("failed"), jobID)
	c.client.HSet(c.ctx, c.key("errors"), jobID, errorData)
	c.publish(jobID, "failed")
}

// publish emits a job event on "<queue>:events"
func (c *RedisConsumer) publish(jobID, status string) {
	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	if err := c.client.Publish(c.ctx, c.key("events"), eventData).Err(); err != nil {
		c.logger.Debug("Event publish failed", "job", jobID, "error", err)
	}
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.config.QueueName)
	processing := pipe.SCard(ctx, c.key("processing"))
	completed := pipe.SCard(ctx, c.key("completed"))
	failed := pipe.SCard(ctx, c.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}
