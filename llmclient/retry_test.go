package llmclient

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dpalmqvist/lossless-context-management/config"
	"github.com/dpalmqvist/lossless-context-management/internal/metrics"
	"github.com/dpalmqvist/lossless-context-management/lcmerr"
)

var namespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&namespaceSeq, 1)
	return fmt.Sprintf("llmclient_test_%d", seq)
}

type stubClient struct {
	summarizeCalls int
	failUntil      int
	err            error
}

func (s *stubClient) Summarize(ctx context.Context, messages []Message, kind string, maxTokens int) (string, error) {
	s.summarizeCalls++
	if s.summarizeCalls <= s.failUntil {
		return "", s.err
	}
	return "summary", nil
}

func (s *stubClient) Classify(ctx context.Context, text string, labels []string) (string, error) {
	return "", nil
}

func (s *stubClient) AgentLoop(ctx context.Context, system string, tools []ToolSpec, exec ToolExecutor, initial string, maxTurns int) (string, error) {
	return "", nil
}

func testRetryConfig() config.LLMConfig {
	return config.LLMConfig{
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		CallTimeout: time.Second,
	}
}

func TestRetryingClient_SucceedsFirstTry(t *testing.T) {
	stub := &stubClient{}
	collector := metrics.NewCollector(nextTestNamespace(), zap.NewNop())
	rc := NewRetryingClient(stub, testRetryConfig(), collector, zap.NewNop())

	result, err := rc.Summarize(context.Background(), nil, KindBulletPoints, 100)
	require.NoError(t, err)
	assert.Equal(t, "summary", result)
	assert.Equal(t, 1, stub.summarizeCalls)
}

func TestRetryingClient_RetriesThenSucceeds(t *testing.T) {
	stub := &stubClient{failUntil: 2, err: errors.New("transient")}
	collector := metrics.NewCollector(nextTestNamespace(), zap.NewNop())
	rc := NewRetryingClient(stub, testRetryConfig(), collector, zap.NewNop())

	result, err := rc.Summarize(context.Background(), nil, KindBulletPoints, 100)
	require.NoError(t, err)
	assert.Equal(t, "summary", result)
	assert.Equal(t, 3, stub.summarizeCalls)
}

func TestRetryingClient_ExhaustsRetries(t *testing.T) {
	stub := &stubClient{failUntil: 100, err: errors.New("down")}
	collector := metrics.NewCollector(nextTestNamespace(), zap.NewNop())
	cfg := testRetryConfig()
	cfg.MaxRetries = 2
	rc := NewRetryingClient(stub, cfg, collector, zap.NewNop())

	_, err := rc.Summarize(context.Background(), nil, KindBulletPoints, 100)
	require.Error(t, err)
	assert.True(t, lcmerr.Is(err, lcmerr.KindLLMUnavailable))
	assert.Equal(t, 2, stub.summarizeCalls)
}

func TestRetryingClient_RespectsContextCancellation(t *testing.T) {
	stub := &stubClient{failUntil: 100, err: errors.New("down")}
	collector := metrics.NewCollector(nextTestNamespace(), zap.NewNop())
	rc := NewRetryingClient(stub, testRetryConfig(), collector, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rc.Summarize(ctx, nil, KindBulletPoints, 100)
	require.Error(t, err)
}
