package llmclient

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/dpalmqvist/lossless-context-management/config"
	"github.com/dpalmqvist/lossless-context-management/internal/metrics"
	"github.com/dpalmqvist/lossless-context-management/lcmerr"
)

// RetryingClient wraps a Client with bounded exponential-backoff retry and
// a hard per-call deadline (spec.md §4.B). Every attempt is recorded on
// collector; retries beyond the first are counted separately. maxRetries
// is the total number of attempts, not the number of retries after the
// first, matching spec.md §4.B's "default 5 attempts."
type RetryingClient struct {
	inner       Client
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	callTimeout time.Duration
	collector   *metrics.Collector
	logger      *zap.Logger
}

var _ Client = (*RetryingClient)(nil)

// NewRetryingClient wraps inner per cfg's retry and deadline settings.
func NewRetryingClient(inner Client, cfg config.LLMConfig, collector *metrics.Collector, logger *zap.Logger) *RetryingClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingClient{
		inner:       inner,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.BaseBackoff,
		maxBackoff:  cfg.MaxBackoff,
		callTimeout: cfg.CallTimeout,
		collector:   collector,
		logger:      logger.With(zap.String("component", "llmclient")),
	}
}

func (c *RetryingClient) Summarize(ctx context.Context, messages []Message, kind string, maxTokens int) (string, error) {
	var result string
	err := c.withRetry(ctx, "summarize", func(ctx context.Context) error {
		var err error
		result, err = c.inner.Summarize(ctx, messages, kind, maxTokens)
		return err
	})
	return result, err
}

func (c *RetryingClient) Classify(ctx context.Context, text string, labels []string) (string, error) {
	var result string
	err := c.withRetry(ctx, "classify", func(ctx context.Context) error {
		var err error
		result, err = c.inner.Classify(ctx, text, labels)
		return err
	})
	return result, err
}

func (c *RetryingClient) AgentLoop(ctx context.Context, system string, tools []ToolSpec, exec ToolExecutor, initial string, maxTurns int) (string, error) {
	var result string
	err := c.withRetry(ctx, "agent_loop", func(ctx context.Context) error {
		var err error
		result, err = c.inner.AgentLoop(ctx, system, tools, exec, initial, maxTurns)
		return err
	})
	return result, err
}

func (c *RetryingClient) withRetry(ctx context.Context, operation string, call func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt)
			c.logger.Debug("retrying llm call",
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			c.collector.RecordLLMRetry(operation)
		}

		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		start := time.Now()
		err := call(callCtx)
		duration := time.Since(start)
		cancel()

		c.collector.RecordLLMCall(operation, err, duration)

		if err == nil {
			return nil
		}
		lastErr = err

		c.logger.Warn("llm call failed",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return lcmerr.LLMUnavailable(operation, lastErr)
}

func (c *RetryingClient) backoffDelay(attempt int) time.Duration {
	delay := float64(c.baseBackoff) * math.Pow(2, float64(attempt-1))
	if maxDelay := float64(c.maxBackoff); delay > maxDelay {
		delay = maxDelay
	}
	return time.Duration(delay)
}
