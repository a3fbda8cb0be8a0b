package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/redaction-worker/internal/config"
	"github.com/adverant/nexus/redaction-worker/internal/geometry"
	"github.com/adverant/nexus/redaction-worker/internal/ocr"
	"github.com/adverant/nexus/redaction-worker/internal/pii"
	"github.com/adverant/nexus/redaction-worker/internal/queue"
	"github.com/adverant/nexus/redaction-worker/internal/redact"
	"github.com/adverant/nexus/redaction-worker/internal/storage"
)

type cannedRecognizer struct {
	text  string
	words []ocr.Word
}

func (c cannedRecognizer) Recognize(context.Context, string) (string, []ocr.Word, error) {
	return c.text, c.words, nil
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("QUEUE_NAME", "redaction-test")
	t.Setenv("QUEUE_BACKEND", "asynq")
	t.Setenv("TEMP_DIR", filepath.Join(dir, "tmp"))
	t.Setenv("OUTPUT_DIR", filepath.Join(dir, "output"))
	t.Setenv("AUDIT_LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("DATABASE_URL", "")
	return dir
}

func execute(t *testing.T, deps Deps, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type recordingProducer struct {
	payloads []*queue.JobPayload
	closed   bool
}

func (r *recordingProducer) Enqueue(_ context.Context, payload *queue.JobPayload) (string, error) {
	if err := payload.Validate(); err != nil {
		return "", err
	}
	r.payloads = append(r.payloads, payload)
	return payload.DocumentID, nil
}

func (r *recordingProducer) Close() error {
	r.closed = true
	return nil
}

func TestEnqueueBuildsPayloadFromFlags(t *testing.T) {
	dir := setupEnv(t)
	src := filepath.Join(dir, "scan.png")
	writePNG(t, src)

	producer := &recordingProducer{}
	var gotCfg *config.Config
	var gotRetry int
	deps := Deps{
		NewProducer: func(cfg *config.Config, maxRetry int) (queue.Producer, error) {
			gotCfg, gotRetry = cfg, maxRetry
			return producer, nil
		},
	}

	out, err := execute(t, deps, "enqueue", "--color", "red", "-l", "--pdf=false", "--user", "u1", "--max-retry", "5", src)
	require.NoError(t, err)

	require.Len(t, producer.payloads, 1)
	payload := producer.payloads[0]
	assert.Equal(t, payload.DocumentID+" queued on redaction-test (asynq)\n", out)
	assert.Equal(t, "redaction-test", gotCfg.QueueName)
	assert.Equal(t, 5, gotRetry)
	assert.True(t, producer.closed)

	assert.NotEmpty(t, payload.DocumentID)
	assert.Equal(t, "u1", payload.UserID)
	assert.Equal(t, "scan.png", payload.Filename)
	assert.Equal(t, src, payload.FilePath)
	assert.Equal(t, "red", payload.Color)
	assert.True(t, payload.Layout)
	assert.False(t, payload.AssemblePDF)

	task, err := queue.NewRedactTask(payload, gotCfg.QueueName, gotRetry)
	require.NoError(t, err)
	var decoded queue.JobPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, *payload, decoded)
}

func TestEnqueueDefaults(t *testing.T) {
	dir := setupEnv(t)
	src := filepath.Join(dir, "scan.png")
	writePNG(t, src)

	opts := &options{pdf: true}
	payload, err := buildPayload(opts, src)
	require.NoError(t, err)
	assert.True(t, payload.AssemblePDF)
	assert.False(t, payload.Layout)
	assert.Empty(t, payload.Color)
	assert.True(t, filepath.IsAbs(payload.FilePath))
}

func TestEnqueueRejectsMissingFile(t *testing.T) {
	dir := setupEnv(t)
	producer := &recordingProducer{}
	deps := Deps{
		NewProducer: func(*config.Config, int) (queue.Producer, error) {
			return producer, nil
		},
	}

	_, err := execute(t, deps, "enqueue", filepath.Join(dir, "missing.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input not readable")
	assert.Empty(t, producer.payloads)
}

func TestRootRequiresOneFile(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, Deps{})
	assert.Error(t, err)
	_, err = execute(t, Deps{}, "a.png", "b.png")
	assert.Error(t, err)
}

func TestRedactPrintsJSONReport(t *testing.T) {
	dir := setupEnv(t)
	src := filepath.Join(dir, "scan.png")
	writePNG(t, src)

	var languages []string
	deps := Deps{
		Recognizer: func(langs []string) ocr.TextRecognizer {
			languages = langs
			return cannedRecognizer{
				text: "SSN: 123-45-6789",
				words: []ocr.Word{
					{Text: "SSN:", Box: geometry.Box{X: 10, Y: 20, Width: 40, Height: 12}, Confidence: 0.9},
					{Text: "123-45-6789", Box: geometry.Box{X: 60, Y: 20, Width: 90, Height: 12}, Confidence: 0.9},
				},
			}
		},
	}
	t.Setenv("TESSERACT_LANGUAGE", "eng+deu")

	out, err := execute(t, deps, "--json", "--pdf=false", "-o", filepath.Join(dir, "custom"), src)
	require.NoError(t, err)
	assert.Equal(t, []string{"eng", "deu"}, languages)

	var report redact.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Summary.TotalPages)
	assert.Equal(t, 1, report.Summary.TotalRedactions)
	assert.Equal(t, pii.SensitivityMedium, report.Summary.Sensitivity)
	require.Len(t, report.Pages, 1)
	require.NotNil(t, report.Pages[0].RedactedText)
	assert.Equal(t, "SSN: [REDACTED_US_SSN]", *report.Pages[0].RedactedText)

	matches, err := filepath.Glob(filepath.Join(dir, "custom", "*"))
	require.NoError(t, err)
	assert.NotEmpty(t, matches, "--output overrides OUTPUT_DIR")
	assert.FileExists(t, filepath.Join(dir, "logs", "audit_"+report.GeneratedAt.UTC().Format("20060102")+".log"))
}

func TestRedactWithoutRecognizer(t *testing.T) {
	dir := setupEnv(t)
	src := filepath.Join(dir, "scan.png")
	writePNG(t, src)

	_, err := execute(t, Deps{}, src)
	assert.Error(t, err)
}

func TestStatusPrintsStoredRecord(t *testing.T) {
	setupEnv(t)
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "doc-9", &storage.DocumentRecord{
		ID:        "doc-9",
		Filename:  "notes.txt",
		Status:    "failed",
		ErrorCode: "UNSUPPORTED_FORMAT",
		Error:     "Unsupported file format: text/plain",
	}))
	deps := Deps{
		OpenStorage: func(context.Context, *config.Config) (*storage.StorageManager, error) {
			return storage.NewStorageManager(store, nil), nil
		},
	}

	out, err := execute(t, deps, "status", "doc-9")
	require.NoError(t, err)
	assert.Contains(t, out, "doc-9 (failed)")
	assert.Contains(t, out, "notes.txt")
	assert.Contains(t, out, "UNSUPPORTED_FORMAT Unsupported file format: text/plain")

	out, err = execute(t, deps, "status", "--json", "doc-9")
	require.NoError(t, err)
	var rec storage.DocumentRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "UNSUPPORTED_FORMAT", rec.ErrorCode)

	_, err = execute(t, deps, "status", "doc-unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
