package escalation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpalmqvist/lossless-context-management/lcmerr"
	"github.com/dpalmqvist/lossless-context-management/llmclient"
	"github.com/dpalmqvist/lossless-context-management/store"
	"github.com/dpalmqvist/lossless-context-management/tokenest"
)

type fakeClient struct {
	responses map[string]string
	errs      map[string]error
}

func (f *fakeClient) Summarize(ctx context.Context, messages []llmclient.Message, kind string, maxTokens int) (string, error) {
	if err, ok := f.errs[kind]; ok {
		return "", err
	}
	if resp, ok := f.responses[kind]; ok {
		return resp, nil
	}
	return "", errors.New("no response configured")
}

func (f *fakeClient) Classify(ctx context.Context, text string, labels []string) (string, error) {
	return "", nil
}

func (f *fakeClient) AgentLoop(ctx context.Context, system string, tools []llmclient.ToolSpec, exec llmclient.ToolExecutor, initial string, maxTurns int) (string, error) {
	return "", nil
}

func sampleBlock() []store.Message {
	return []store.Message{
		{ID: 1, Role: "user", Content: "please fix the bug in parser.go"},
		{ID: 2, Role: "assistant", Content: "found it, fixed the off-by-one error"},
	}
}

func TestProduce_AcceptsPreserveDetails(t *testing.T) {
	client := &fakeClient{responses: map[string]string{
		llmclient.KindPreserveDetails: "short summary",
	}}

	result, err := Produce(context.Background(), client, sampleBlock(), 1000, 1.25, false)
	require.NoError(t, err)
	assert.Equal(t, store.KindPreserveDetails, result.Kind)
	assert.Equal(t, "short summary", result.Content)
}

func TestProduce_EscalatesWhenPreserveDetailsOvershoots(t *testing.T) {
	tooLong := strings.Repeat("x", 4000)
	client := &fakeClient{responses: map[string]string{
		llmclient.KindPreserveDetails: tooLong,
		llmclient.KindBulletPoints:    "brief",
	}}

	result, err := Produce(context.Background(), client, sampleBlock(), 100, 1.25, false)
	require.NoError(t, err)
	assert.Equal(t, store.KindBulletPoints, result.Kind)
	assert.Equal(t, "brief", result.Content)
}

func TestProduce_HardFallsBackToTruncatedOnLLMFailure(t *testing.T) {
	client := &fakeClient{errs: map[string]error{
		llmclient.KindPreserveDetails: lcmerr.LLMUnavailable("summarize", fmt.Errorf("down")),
		llmclient.KindBulletPoints:    lcmerr.LLMUnavailable("summarize", fmt.Errorf("down")),
	}}

	result, err := Produce(context.Background(), client, sampleBlock(), 50, 1.25, true)
	require.NoError(t, err)
	assert.Equal(t, store.KindTruncated, result.Kind)
	assert.NotEmpty(t, result.Content)
}

func TestProduce_SoftAbortsOnLLMFailureWithNoTruncatedFallback(t *testing.T) {
	client := &fakeClient{errs: map[string]error{
		llmclient.KindPreserveDetails: lcmerr.LLMUnavailable("summarize", fmt.Errorf("down")),
		llmclient.KindBulletPoints:    lcmerr.LLMUnavailable("summarize", fmt.Errorf("down")),
	}}

	result, err := Produce(context.Background(), client, sampleBlock(), 50, 1.25, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, lcmerr.ErrLLMUnavailable)
	assert.Nil(t, result)
}

func TestProduce_NonLLMUnavailableErrorAbortsImmediatelyRegardlessOfHard(t *testing.T) {
	client := &fakeClient{errs: map[string]error{
		llmclient.KindPreserveDetails: errors.New("boom"),
	}}

	_, err := Produce(context.Background(), client, sampleBlock(), 50, 1.25, true)
	require.Error(t, err)
	assert.NotErrorIs(t, err, lcmerr.ErrLLMUnavailable)
}

func TestProduce_TruncatedNeverExceedsTargetByMuch(t *testing.T) {
	block := make([]store.Message, 0, 50)
	for i := 0; i < 50; i++ {
		block = append(block, store.Message{ID: int64(i), Role: "user", Content: strings.Repeat("word ", 200)})
	}
	client := &fakeClient{errs: map[string]error{
		llmclient.KindPreserveDetails: lcmerr.LLMUnavailable("summarize", fmt.Errorf("down")),
		llmclient.KindBulletPoints:    lcmerr.LLMUnavailable("summarize", fmt.Errorf("down")),
	}}

	result, err := Produce(context.Background(), client, block, 200, 1.25, true)
	require.NoError(t, err)
	assert.Equal(t, store.KindTruncated, result.Kind)
	assert.LessOrEqual(t, tokenest.Estimate(result.Content), 250)
}

func TestProduce_EmptyBlockErrors(t *testing.T) {
	client := &fakeClient{}
	_, err := Produce(context.Background(), client, nil, 100, 1.25, false)
	assert.Error(t, err)
}

func TestProduceFromSummaries_Condenses(t *testing.T) {
	client := &fakeClient{responses: map[string]string{
		llmclient.KindPreserveDetails: "condensed",
	}}

	summaries := []store.Summary{
		{ID: 1, Level: 0, Content: "leaf one"},
		{ID: 2, Level: 0, Content: "leaf two"},
	}

	result, err := ProduceFromSummaries(context.Background(), client, summaries, 2000, 1.25, false)
	require.NoError(t, err)
	assert.Equal(t, store.KindPreserveDetails, result.Kind)
	assert.Equal(t, "condensed", result.Content)
}

func TestProduceFromSummaries_EmptyErrors(t *testing.T) {
	client := &fakeClient{}
	_, err := ProduceFromSummaries(context.Background(), client, nil, 100, 1.25, false)
	assert.Error(t, err)
}

func TestProduce_TruncatedOnShortBlockReturnsWholeContent(t *testing.T) {
	client := &fakeClient{errs: map[string]error{
		llmclient.KindPreserveDetails: lcmerr.LLMUnavailable("summarize", fmt.Errorf("down")),
		llmclient.KindBulletPoints:    lcmerr.LLMUnavailable("summarize", fmt.Errorf("down")),
	}}

	block := []store.Message{{ID: 1, Role: "user", Content: "hi"}}
	result, err := Produce(context.Background(), client, block, 1000, 1.25, true)
	require.NoError(t, err)
	assert.Contains(t, result.Content, "hi")
	assert.NotContains(t, result.Content, "elided")
}
