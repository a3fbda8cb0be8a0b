/**
 * Configuration for the Redaction Worker
 *
 * Loads configuration from environment variables (optionally seeded from
 * .env.redact). Layout and redaction tolerances are in pixels of the
 * normalized page raster.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds worker configuration
type Config struct {
	// Redis configuration (queue + document store)
	RedisURL     string
	QueueName    string
	QueueBackend string // "asynq" or "list"

	// PostgreSQL configuration (optional, enables audit/finding persistence)
	DatabaseURL string

	// Worker configuration
	WorkerConcurrency int
	PageConcurrency   int
	ProcessingTimeout int // milliseconds
	DocumentTTL       int // seconds

	// Filesystem layout
	TempDir     string
	OutputDir   string
	AuditLogDir string

	// Preprocessing
	NormalizeWidth int
	PDFDPI         int

	// Layout analysis tolerances
	LineTolerance     int
	GapThreshold      int
	HeadingRatio      float64
	TableRowTolerance int
	ColumnTolerance   int
	DedupeTables      bool

	// Redaction
	RedactionPadding int
	RedactionColor   string
	AssemblePDF      bool

	// Tesseract configuration
	TesseractLanguage string

	LogLevel string
}

// LoadEnvFile seeds the process environment from a dotenv file if present.
// Existing variables win.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return godotenv.Load(path)
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:          getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		QueueName:         getEnvOrDefault("QUEUE_NAME", "redaction"),
		QueueBackend:      strings.ToLower(getEnvOrDefault("QUEUE_BACKEND", "asynq")),
		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		WorkerConcurrency: getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		PageConcurrency:   getEnvAsIntOrDefault("PAGE_CONCURRENCY", 4),
		ProcessingTimeout: getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 300000), // 5 minutes
		DocumentTTL:       getEnvAsIntOrDefault("DOCUMENT_TTL", 86400),        // 1 day
		TempDir:           getEnvOrDefault("TEMP_DIR", "/tmp/redaction"),
		OutputDir:         getEnvOrDefault("OUTPUT_DIR", "output"),
		AuditLogDir:       getEnvOrDefault("AUDIT_LOG_DIR", "logs"),
		NormalizeWidth:    getEnvAsIntOrDefault("NORMALIZE_WIDTH", 1800),
		PDFDPI:            getEnvAsIntOrDefault("PDF_DPI", 300),
		LineTolerance:     getEnvAsIntOrDefault("LINE_TOLERANCE", 10),
		GapThreshold:      getEnvAsIntOrDefault("GAP_THRESHOLD", 20),
		HeadingRatio:      getEnvAsFloatOrDefault("HEADING_RATIO", 1.2),
		TableRowTolerance: getEnvAsIntOrDefault("TABLE_ROW_TOLERANCE", 5),
		ColumnTolerance:   getEnvAsIntOrDefault("COLUMN_TOLERANCE", 50),
		DedupeTables:      getEnvAsBoolOrDefault("DEDUPE_TABLES", false),
		RedactionPadding:  getEnvAsIntOrDefault("REDACTION_PADDING", 5),
		RedactionColor:    getEnvOrDefault("REDACTION_COLOR", "black"),
		AssemblePDF:       getEnvAsBoolOrDefault("ASSEMBLE_PDF", true),
		TesseractLanguage: getEnvOrDefault("TESSERACT_LANGUAGE", "eng"),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.QueueBackend != "asynq" && c.QueueBackend != "list" {
		return fmt.Errorf("QUEUE_BACKEND must be asynq or list, got %q", c.QueueBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.PageConcurrency < 1 || c.PageConcurrency > 64 {
		return fmt.Errorf("PAGE_CONCURRENCY must be between 1 and 64, got %d", c.PageConcurrency)
	}

	if c.NormalizeWidth < 0 {
		return fmt.Errorf("NORMALIZE_WIDTH must not be negative, got %d", c.NormalizeWidth)
	}

	if c.LineTolerance < 1 {
		return fmt.Errorf("LINE_TOLERANCE must be positive, got %d", c.LineTolerance)
	}

	if c.TableRowTolerance < 1 {
		return fmt.Errorf("TABLE_ROW_TOLERANCE must be positive, got %d", c.TableRowTolerance)
	}

	if c.HeadingRatio <= 1.0 {
		return fmt.Errorf("HEADING_RATIO must be greater than 1.0, got %v", c.HeadingRatio)
	}

	if c.RedactionPadding < 0 {
		return fmt.Errorf("REDACTION_PADDING must not be negative, got %d", c.RedactionPadding)
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
