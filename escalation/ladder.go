package escalation

import (
	"context"
	"errors"
	"fmt"

	"github.com/dpalmqvist/lossless-context-management/lcmerr"
	"github.com/dpalmqvist/lossless-context-management/llmclient"
	"github.com/dpalmqvist/lossless-context-management/store"
	"github.com/dpalmqvist/lossless-context-management/tokenest"
)

// Result is the one summary the ladder produced for a block.
type Result struct {
	Kind       store.SummaryKind
	Content    string
	TokenCount int
}

// markerReserveTokens budgets room for the "elided" marker so the
// truncated level's output estimate stays at or under its target.
const markerReserveTokens = 16

// Produce runs the ladder against a block of messages with target ceiling
// T, accepting overshoot up to overshoot*T from the two LLM levels before
// falling through to the next. During hard compaction an unavailable LLM
// never fails a non-empty block: the ladder falls back to truncated,
// which is deterministic and always succeeds. During soft compaction, an
// unavailable LLM aborts the pass with no summary produced, to be retried
// on the next soft trigger. Any other LLM error is returned immediately,
// in either mode.
func Produce(ctx context.Context, client llmclient.Client, messages []store.Message, targetTokens int, overshoot float64, hard bool) (*Result, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("escalation: empty block")
	}
	return produce(ctx, client, toLLMMessages(messages), targetTokens, overshoot, hard)
}

// ProduceFromSummaries runs the ladder over a set of lower-level summaries
// being condensed into one higher-level node.
func ProduceFromSummaries(ctx context.Context, client llmclient.Client, summaries []store.Summary, targetTokens int, overshoot float64, hard bool) (*Result, error) {
	if len(summaries) == 0 {
		return nil, fmt.Errorf("escalation: empty summary set")
	}
	llmMessages := make([]llmclient.Message, len(summaries))
	for i, s := range summaries {
		llmMessages[i] = llmclient.Message{Role: "summary", Content: s.Content}
	}
	return produce(ctx, client, llmMessages, targetTokens, overshoot, hard)
}

func produce(ctx context.Context, client llmclient.Client, llmMessages []llmclient.Message, targetTokens int, overshoot float64, hard bool) (*Result, error) {
	maxAccepted := int(float64(targetTokens) * overshoot)
	if maxAccepted < targetTokens {
		maxAccepted = targetTokens
	}

	var lastLLMErr error
	for _, kind := range []string{llmclient.KindPreserveDetails, llmclient.KindBulletPoints} {
		text, err := client.Summarize(ctx, llmMessages, kind, targetTokens)
		if err != nil {
			if errors.Is(err, lcmerr.ErrLLMUnavailable) {
				lastLLMErr = err
				continue
			}
			return nil, err
		}
		tokens := tokenest.Estimate(text)
		if tokens <= maxAccepted {
			return &Result{Kind: store.SummaryKind(kind), Content: text, TokenCount: tokens}, nil
		}
	}

	if lastLLMErr != nil && !hard {
		return nil, lastLLMErr
	}

	return truncate(llmMessages, targetTokens), nil
}

func toLLMMessages(messages []store.Message) []llmclient.Message {
	out := make([]llmclient.Message, len(messages))
	for i, m := range messages {
		out[i] = llmclient.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func formatLLMMessages(messages []llmclient.Message) string {
	var out string
	for _, m := range messages {
		out += m.Role + ":\n" + m.Content + "\n\n"
	}
	return out
}

func truncate(llmMessages []llmclient.Message, targetTokens int) *Result {
	concatenated := formatLLMMessages(llmMessages)
	totalTokens := tokenest.Estimate(concatenated)

	avail := targetTokens - markerReserveTokens
	if avail < 2 {
		avail = 2
	}
	half := avail / 2

	head, tail := tokenest.SplitForTruncation(concatenated, half, half)

	content := head
	if tail != "" {
		headTokens := tokenest.Estimate(head)
		tailTokens := tokenest.Estimate(tail)
		elided := totalTokens - headTokens - tailTokens
		if elided < 0 {
			elided = 0
		}
		content = fmt.Sprintf("%s\n\n… [%d tokens elided] …\n\n%s", head, elided, tail)
	}

	return &Result{
		Kind:       store.KindTruncated,
		Content:    content,
		TokenCount: tokenest.Estimate(content),
	}
}
