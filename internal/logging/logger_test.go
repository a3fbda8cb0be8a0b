package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev := base.Out
	base.SetOutput(buf)
	t.Cleanup(func() {
		base.SetOutput(prev)
		base.SetLevel(logrus.InfoLevel)
	})
	return buf
}

func TestLoggerWritesComponentAndFields(t *testing.T) {
	buf := captureOutput(t)

	NewLogger("redact").Info("page done", "page", 3, "redactions", 2)

	out := buf.String()
	assert.Contains(t, out, "component=redact")
	assert.Contains(t, out, "page=3")
	assert.Contains(t, out, "redactions=2")
	assert.Contains(t, out, "page done")
}

func TestLoggerDropsDanglingKey(t *testing.T) {
	buf := captureOutput(t)

	NewLogger("layout").Warn("odd kv", "orphan")

	assert.NotContains(t, buf.String(), "orphan")
}

func TestWithCarriesFields(t *testing.T) {
	buf := captureOutput(t)

	NewLogger("pipeline").With("document", "doc-1").Error("failed")

	assert.Contains(t, buf.String(), "document=doc-1")
}

func TestSetLevel(t *testing.T) {
	buf := captureOutput(t)
	log := NewLogger("ocr")

	log.Debug("hidden")
	assert.Empty(t, buf.String())

	SetLevel("debug")
	log.Debug("shown")
	assert.Contains(t, buf.String(), "shown")

	SetLevel("nonsense")
	assert.Equal(t, logrus.InfoLevel, base.GetLevel())
}
