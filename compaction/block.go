package compaction

import (
	"github.com/dpalmqvist/lossless-context-management/store"
	"github.com/dpalmqvist/lossless-context-management/tokenest"
)

// selectBlock picks the oldest contiguous run of messages whose combined
// token estimate falls in [minTokens, maxTokens]. messages must already be
// ordered oldest first. When relaxed is true (hard pressure) and no run
// fits under maxTokens, it falls back to the single oldest message so a
// drain pass always makes progress.
func selectBlock(messages []store.Message, minTokens, maxTokens int, relaxed bool) []store.Message {
	if len(messages) == 0 {
		return nil
	}

	running := 0
	end := 0
	for end < len(messages) {
		next := running + tokenTotal(messages[end])
		if next > maxTokens {
			break
		}
		running = next
		end++
		if running >= minTokens {
			return messages[:end]
		}
	}

	if running >= minTokens {
		return messages[:end]
	}

	if relaxed {
		if end > 0 {
			return messages[:end]
		}
		return messages[:1]
	}

	return nil
}

func tokenTotal(m store.Message) int {
	if m.TokenCount > 0 {
		return m.TokenCount
	}
	return tokenest.Estimate(m.Content)
}
