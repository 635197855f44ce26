package llmclient

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemPromptFor(t *testing.T) {
	details, err := systemPromptFor(KindPreserveDetails)
	require.NoError(t, err)
	assert.Contains(t, details, "verbatim")

	bullets, err := systemPromptFor(KindBulletPoints)
	require.NoError(t, err)
	assert.Contains(t, bullets, "bullet")

	_, err = systemPromptFor("truncated")
	assert.Error(t, err)
}

func TestFormatMessagesForSummary(t *testing.T) {
	out := formatMessagesForSummary([]Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi there"},
	})
	assert.True(t, strings.Contains(out, "User:\nhello"))
	assert.True(t, strings.Contains(out, "Assistant:\nhi there"))
}

func TestBuildSummarizeUserPrompt(t *testing.T) {
	out := buildSummarizeUserPrompt("conversation body", 500)
	assert.Contains(t, out, "500")
	assert.Contains(t, out, "conversation body")
}

func TestBuildClassifyPrompt(t *testing.T) {
	out := buildClassifyPrompt("some file contents", []string{"code", "markdown", "log"})
	assert.Contains(t, out, "code")
	assert.Contains(t, out, "markdown")
	assert.Contains(t, out, "some file contents")
}
