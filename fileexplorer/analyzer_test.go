package fileexplorer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpalmqvist/lossless-context-management/lcmerr"
	"github.com/dpalmqvist/lossless-context-management/llmclient"
	"github.com/dpalmqvist/lossless-context-management/store"
)

type fakeClient struct {
	classifyLabel string
	classifyErr   error
	summarizeText string
	summarizeErr  error
}

func (f *fakeClient) Summarize(ctx context.Context, messages []llmclient.Message, kind string, maxTokens int) (string, error) {
	if f.summarizeErr != nil {
		return "", f.summarizeErr
	}
	return f.summarizeText, nil
}

func (f *fakeClient) Classify(ctx context.Context, text string, labels []string) (string, error) {
	if f.classifyErr != nil {
		return "", f.classifyErr
	}
	return f.classifyLabel, nil
}

func (f *fakeClient) AgentLoop(ctx context.Context, system string, tools []llmclient.ToolSpec, exec llmclient.ToolExecutor, initial string, maxTurns int) (string, error) {
	return "", nil
}

func writeBlob(t *testing.T, name, content string) *store.FileRef {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return &store.FileRef{Path: name, StorageURI: "file://" + path}
}

func TestAnalyze_JSONDescribesShape(t *testing.T) {
	ref := writeBlob(t, "data.json", `{"name": "agent", "tags": ["a", "b"], "count": 3, "nested": {"x": 1}}`)
	a := New(&fakeClient{}, nil)

	result, err := a.Analyze(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "json", result.FileType)
	assert.Contains(t, result.Summary, `"name": string`)
	assert.Contains(t, result.Summary, `"tags": [string`)
}

func TestAnalyze_JSONReportsParseFailureWithoutCallingLLM(t *testing.T) {
	ref := writeBlob(t, "broken.json", `{not valid`)
	a := New(&fakeClient{summarizeErr: errors.New("must not be called")}, nil)

	result, err := a.Analyze(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "json", result.FileType)
	assert.Contains(t, result.Summary, "invalid JSON")
}

func TestAnalyze_CSVCountsRowsAndColumns(t *testing.T) {
	ref := writeBlob(t, "rows.csv", "id,name\n1,alice\n2,bob\n3,carol\n")
	a := New(&fakeClient{}, nil)

	result, err := a.Analyze(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "csv", result.FileType)
	assert.Contains(t, result.Summary, "3 rows")
	assert.Contains(t, result.Summary, "id, name")
}

func TestAnalyze_JSONLDescribesFirstRecordShape(t *testing.T) {
	ref := writeBlob(t, "events.jsonl", "{\"type\": \"start\"}\n{\"type\": \"end\"}\n")
	a := New(&fakeClient{}, nil)

	result, err := a.Analyze(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "jsonl", result.FileType)
	assert.Contains(t, result.Summary, "2 records")
}

func TestAnalyze_KnownCodeExtensionSkipsClassify(t *testing.T) {
	ref := writeBlob(t, "main.go", "package main\n\nfunc main() {}\n")
	a := New(&fakeClient{classifyErr: errors.New("must not be called"), summarizeText: "package main with a main function"}, nil)

	result, err := a.Analyze(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "code", result.FileType)
	assert.Equal(t, "package main with a main function", result.Summary)
}

func TestAnalyze_UndeterminedExtensionUsesClassifyToChooseCodeAnalysis(t *testing.T) {
	ref := writeBlob(t, "snippet.txt", "func foo() { return 1 }")
	a := New(&fakeClient{classifyLabel: "code", summarizeText: "defines foo"}, nil)

	result, err := a.Analyze(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "code", result.FileType)
	assert.Equal(t, "defines foo", result.Summary)
}

func TestAnalyze_UndeterminedExtensionFallsBackToGenericWhenClassifyFails(t *testing.T) {
	ref := writeBlob(t, "notes.txt", "some free-form notes about the release")
	a := New(&fakeClient{classifyErr: lcmerr.LLMUnavailable("classify", errors.New("down")), summarizeText: "- notes about a release"}, nil)

	result, err := a.Analyze(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "text", result.FileType)
	assert.Equal(t, "- notes about a release", result.Summary)
}

func TestAnalyze_CodeAnalysisFallsBackToLineCountOnLLMFailure(t *testing.T) {
	ref := writeBlob(t, "main.py", "import os\n\ndef run():\n    pass\n")
	a := New(&fakeClient{summarizeErr: lcmerr.LLMUnavailable("summarize", errors.New("down"))}, nil)

	result, err := a.Analyze(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "code", result.FileType)
	assert.Contains(t, result.Summary, "lines")
	assert.Contains(t, result.Summary, "analysis unavailable")
}

func TestAnalyze_UnsupportedStorageSchemeErrors(t *testing.T) {
	ref := &store.FileRef{Path: "x.json", StorageURI: "s3://bucket/key"}
	a := New(&fakeClient{}, nil)

	_, err := a.Analyze(context.Background(), ref)
	require.Error(t, err)
	assert.ErrorIs(t, err, lcmerr.ErrInputError)
}
