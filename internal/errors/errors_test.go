package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessingErrorMessageIncludesCause(t *testing.T) {
	cause := fmt.Errorf("no such file")
	err := NewIOFailureError("doc-1", 2, "/tmp/page_2.png", cause)

	assert.Equal(t, "IO_FAILURE: Page source unreadable: /tmp/page_2.png (caused by: no such file)", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestCodeOfThroughWrapping(t *testing.T) {
	err := fmt.Errorf("redact: %w", NewAssemblyFailureError("doc-1", "no pages", nil))

	assert.Equal(t, ErrorAssemblyFailure, CodeOf(err))
	assert.True(t, Is(err, ErrorAssemblyFailure))
	assert.False(t, Is(err, ErrorIOFailure))
	assert.Equal(t, ErrorCode(""), CodeOf(fmt.Errorf("plain")))
}

func TestToMap(t *testing.T) {
	err := NewProcessingTimeoutError("doc-9", 5*time.Second, fmt.Errorf("deadline"))
	m := err.ToMap()

	require.Equal(t, "PROCESSING_TIMEOUT", m["error_code"])
	assert.Equal(t, "doc-9", m["document_id"])
	assert.Equal(t, "5s", m["timeout_duration"])
	assert.Equal(t, "deadline", m["cause"])
	_, hasPage := m["page_num"]
	assert.False(t, hasPage)
}

func TestUpstreamFailureKeepsMessage(t *testing.T) {
	err := NewUpstreamFailureError("doc-1", 4, "ocr", "engine crashed")

	assert.Contains(t, err.Error(), "engine crashed")
	assert.Equal(t, 4, err.ToMap()["page_num"])
}
