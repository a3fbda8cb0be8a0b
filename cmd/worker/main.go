/**
 * Redaction Worker - Main Entry Point
 *
 * Queue-driven worker that turns scanned documents into redacted output.
 *
 * Architecture:
 * - Asynq (or plain Redis list) consumer for "redact-document" jobs
 * - Pipeline: rasterize, Tesseract OCR, layout analysis, PII detection,
 *   text and image redaction, optional PDF assembly
 * - Redis document record store with TTL
 * - Optional PostgreSQL persistence for status, findings and audit rows
 * - Daily JSON-lines audit log on disk
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/adverant/nexus/redaction-worker/internal/config"
	"github.com/adverant/nexus/redaction-worker/internal/logging"
	"github.com/adverant/nexus/redaction-worker/internal/ocr/tesseract"
	"github.com/adverant/nexus/redaction-worker/internal/pii"
	"github.com/adverant/nexus/redaction-worker/internal/processor"
	"github.com/adverant/nexus/redaction-worker/internal/queue"
	"github.com/adverant/nexus/redaction-worker/internal/storage"
)

type queueConsumer interface {
	Start() error
	Stop() error
	GetStats(ctx context.Context) (map[string]int64, error)
}

func main() {
	logger := logging.NewLogger("worker")

	if err := config.LoadEnvFile(".env.redact"); err != nil {
		logger.Warn(".env.redact not loaded, using system environment variables", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.SetLevel(cfg.LogLevel)

	logger.Info("Redaction worker starting",
		"queue", cfg.QueueName,
		"backend", cfg.QueueBackend,
		"workers", cfg.WorkerConcurrency,
		"pageConcurrency", cfg.PageConcurrency,
		"database", cfg.DatabaseURL != "")

	storageManager, err := storage.Open(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	var sink storage.AuditSink
	if pg := storageManager.Postgres(); pg != nil {
		sink = pg
	}
	audit, err := storage.NewAuditLogger(cfg.AuditLogDir, sink)
	if err != nil {
		logger.Error("Failed to initialize audit log", "error", err)
		os.Exit(1)
	}

	proc, err := processor.NewFromConfig(
		cfg,
		tesseract.NewRecognizer(&tesseract.Config{Languages: strings.Split(cfg.TesseractLanguage, "+")}),
		pii.NewRegexRecognizer(nil),
		storageManager,
		audit,
	)
	if err != nil {
		logger.Error("Failed to initialize document processor", "error", err)
		os.Exit(1)
	}

	consumer, err := newConsumer(cfg, proc)
	if err != nil {
		logger.Error("Failed to initialize queue consumer", "error", err)
		os.Exit(1)
	}
	if err := consumer.Start(); err != nil {
		logger.Error("Failed to start queue consumer", "error", err)
		os.Exit(1)
	}
	logQueueStats(consumer, logger, "Redaction worker ready, waiting for jobs")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	logQueueStats(consumer, logger, "Queue state at shutdown")
	if err := consumer.Stop(); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}
	if err := audit.Close(); err != nil {
		logger.Error("Error closing audit log", "error", err)
	}
	if err := storageManager.Close(); err != nil {
		logger.Error("Error closing storage", "error", err)
	}
	logger.Info("Shutdown complete")
}

func logQueueStats(consumer queueConsumer, logger *logging.Logger, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stats, err := consumer.GetStats(ctx)
	if err != nil {
		logger.Warn("Queue stats unavailable", "error", err)
		logger.Info(msg)
		return
	}
	logger.Info(msg,
		"waiting", stats["waiting"],
		"processing", stats["processing"],
		"completed", stats["completed"],
		"failed", stats["failed"])
}

func newConsumer(cfg *config.Config, proc processor.DocumentProcessorInterface) (queueConsumer, error) {
	if cfg.QueueBackend == "list" {
		return queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
	}
	return queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         proc,
		ProcessingTimeout: int64(cfg.ProcessingTimeout),
	})
}
