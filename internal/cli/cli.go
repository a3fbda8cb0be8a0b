/**
 * Command line interface for the redaction pipeline
 *
 * redact <file>          runs the pipeline in-process
 * redact enqueue <file>  submits the file to the worker queue
 * redact status <id>     prints the stored record of a document
 *
 * The text recognizer is injected so this package builds without cgo.
 */

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/redaction-worker/internal/config"
	"github.com/adverant/nexus/redaction-worker/internal/logging"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
	"github.com/adverant/nexus/redaction-worker/internal/pii"
	"github.com/adverant/nexus/redaction-worker/internal/processor"
	"github.com/adverant/nexus/redaction-worker/internal/queue"
	"github.com/adverant/nexus/redaction-worker/internal/storage"
)

const appName = "redact"

// Deps are the collaborators the commands need from the outside
type Deps struct {
	// Recognizer builds the OCR engine for the given languages. Required.
	Recognizer func(languages []string) ocr.TextRecognizer
	// OpenStorage defaults to storage.Open
	OpenStorage func(ctx context.Context, cfg *config.Config) (*storage.StorageManager, error)
	// NewProducer defaults to queue.NewProducer on cfg.QueueBackend
	NewProducer func(cfg *config.Config, maxRetry int) (queue.Producer, error)
}

// options holds flag values shared by the subcommands
type options struct {
	color     string
	outputDir string
	layout    bool
	pdf       bool
	logLevel  string
	jsonOut   bool
	userID    string
	maxRetry  int
}

// NewRootCmd builds the redact command tree
func NewRootCmd(deps Deps) *cobra.Command {
	if deps.OpenStorage == nil {
		deps.OpenStorage = func(ctx context.Context, cfg *config.Config) (*storage.StorageManager, error) {
			return storage.Open(ctx, cfg, logging.NewLogger(appName))
		}
	}
	if deps.NewProducer == nil {
		deps.NewProducer = func(cfg *config.Config, maxRetry int) (queue.Producer, error) {
			return queue.NewProducer(&queue.ProducerConfig{
				RedisURL:  cfg.RedisURL,
				QueueName: cfg.QueueName,
				Backend:   cfg.QueueBackend,
				MaxRetry:  maxRetry,
			})
		}
	}
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           appName + " <file>",
		Short:         "Detect and redact PII in a scanned document or PDF",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRedact(cmd, deps, opts, args[0])
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.color, "color", "c", "", "Fill color for image redaction (name or #rrggbb)")
	rootCmd.PersistentFlags().BoolVarP(&opts.layout, "layout", "l", false, "Run layout analysis")
	rootCmd.PersistentFlags().BoolVar(&opts.pdf, "pdf", true, "Assemble a redacted PDF")
	rootCmd.PersistentFlags().StringVar(&opts.userID, "user", "", "User the document belongs to")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print JSON instead of text")
	rootCmd.Flags().StringVarP(&opts.outputDir, "output", "o", "", "Output directory (defaults to OUTPUT_DIR)")

	rootCmd.AddCommand(newEnqueueCmd(deps, opts))
	rootCmd.AddCommand(newStatusCmd(deps, opts))
	return rootCmd
}

func newEnqueueCmd(deps Deps, opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue <file>",
		Short: "Submit a document to the worker queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			payload, err := buildPayload(opts, args[0])
			if err != nil {
				return err
			}
			producer, err := deps.NewProducer(cfg, opts.maxRetry)
			if err != nil {
				return err
			}
			defer producer.Close()

			id, err := producer.Enqueue(commandContext(cmd), payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s queued on %s (%s)\n", id, cfg.QueueName, cfg.QueueBackend)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.maxRetry, "max-retry", 3, "Retries before the task is archived")
	return cmd
}

// buildPayload describes a local file as a queue job. The path is made
// absolute because the worker resolves it on its own.
func buildPayload(opts *options, file string) (*queue.JobPayload, error) {
	path, err := filepath.Abs(file)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input not readable: %w", err)
	}
	return &queue.JobPayload{
		DocumentID:  uuid.New().String(),
		UserID:      opts.userID,
		Filename:    filepath.Base(path),
		FilePath:    path,
		Color:       opts.color,
		Layout:      opts.layout,
		AssemblePDF: opts.pdf,
	}, nil
}

func newStatusCmd(deps Deps, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show the stored record of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			sm, err := deps.OpenStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer sm.Close()

			rec, err := sm.GetDocument(ctx, args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("document %s not found", args[0])
			}
			return printRecord(cmd, opts, rec)
		},
	}
}

func printRecord(cmd *cobra.Command, opts *options, rec *storage.DocumentRecord) error {
	out := cmd.OutOrStdout()
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	fmt.Fprintf(out, "Document:    %s (%s)\n", rec.ID, rec.Status)
	if rec.Filename != "" {
		fmt.Fprintf(out, "File:        %s\n", rec.Filename)
	}
	fmt.Fprintf(out, "Pages:       %d\n", rec.PageCount)
	fmt.Fprintf(out, "Redactions:  %d\n", rec.TotalRedactions)
	if rec.PII != nil {
		fmt.Fprintf(out, "Sensitivity: %s\n", rec.PII.Sensitivity)
		fmt.Fprintf(out, "Entities:    %d %v\n", rec.PII.EntityCount, rec.PII.EntityTypes)
	}
	if rec.ReportPath != "" {
		fmt.Fprintf(out, "Report:      %s\n", rec.ReportPath)
	}
	if rec.Error != "" {
		fmt.Fprintf(out, "Error:       %s %s\n", rec.ErrorCode, rec.Error)
	}
	return nil
}

func loadConfig(opts *options) (*config.Config, error) {
	_ = config.LoadEnvFile(".env.redact")
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logging.SetLevel(level)
	return cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runRedact(cmd *cobra.Command, deps Deps, opts *options, path string) error {
	if deps.Recognizer == nil {
		return fmt.Errorf("no text recognizer configured")
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("input not readable: %w", err)
	}

	audit, err := storage.NewAuditLogger(cfg.AuditLogDir, nil)
	if err != nil {
		return err
	}
	defer audit.Close()

	proc, err := processor.NewFromConfig(
		cfg,
		deps.Recognizer(strings.Split(cfg.TesseractLanguage, "+")),
		pii.NewRegexRecognizer(nil),
		storage.NewStorageManager(storage.NewMemoryStore(), nil),
		audit,
	)
	if err != nil {
		return err
	}

	res, err := proc.ProcessDocument(commandContext(cmd), &processor.ProcessRequest{
		UserID:      opts.userID,
		Filename:    filepath.Base(path),
		FilePath:    path,
		Color:       opts.color,
		Layout:      opts.layout,
		AssemblePDF: opts.pdf && cfg.AssemblePDF,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Report)
	}

	fmt.Fprintf(out, "Document:    %s (%s)\n", res.DocumentID, res.Status)
	fmt.Fprintf(out, "Pages:       %d\n", res.PageCount)
	fmt.Fprintf(out, "Sensitivity: %s\n", res.Report.Summary.Sensitivity)
	fmt.Fprintf(out, "Entities:    %d %v\n", res.Report.Summary.EntityCount, res.Report.Summary.EntityTypes)
	fmt.Fprintf(out, "Redactions:  %d\n", res.Report.Summary.TotalRedactions)
	if res.Layout != nil {
		fmt.Fprintf(out, "Layout:      %d blocks, %d tables, %d form fields\n",
			res.Layout.Summary.TextBlocks, res.Layout.Summary.Tables, res.Layout.Summary.FormFields)
	}
	for _, page := range res.Report.Pages {
		line := fmt.Sprintf("  page %d: %s, %d redactions", page.PageNum, page.Status, page.RedactionCount)
		if page.Message != "" {
			line += " (" + page.Message + ")"
		}
		fmt.Fprintln(out, line)
	}
	if res.ReportPath != "" {
		fmt.Fprintf(out, "Report:      %s\n", res.ReportPath)
	}
	if res.Assembly != nil {
		fmt.Fprintf(out, "PDF:         %s\n", res.Assembly.OutputPath)
	}
	if res.AssemblyError != "" {
		fmt.Fprintf(out, "PDF failed:  %s\n", res.AssemblyError)
	}
	return nil
}
