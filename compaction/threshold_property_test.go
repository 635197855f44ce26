package compaction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dpalmqvist/lossless-context-management/config"
)

// TestInvariant_HardCompactionRestoresSoftBound checks that, however many
// messages a session holds and wherever the soft/hard thresholds fall
// relative to their total, a hard-pressure pass always leaves the
// session's unsummarized token count at or under the soft threshold. It
// holds unconditionally: drainHard only stops once total tokens (which
// bound unsummarized tokens) are under soft, or nothing is left to
// compact, in which case unsummarized tokens are zero.
func TestInvariant_HardCompactionRestoresSoftBound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		st := openTestStore(t)
		llm := &stubLLM{content: "x"}
		cfg := config.CompactionConfig{
			BlockMinTokens:      1,
			BlockMaxTokens:      50,
			CondensationFanout:  1000,
			CondensationTokens:  1000,
			EscalationOvershoot: 1.25,
		}
		engine := newTestEngine(t, st, llm, cfg, config.ThresholdConfig{})

		n := rapid.IntRange(1, 25).Draw(rt, "messageCount")
		seedMessages(t, st, "sess-prop-hard", n, "word word word word word word word word")

		totalBefore, err := st.SessionTotals(ctx, "sess-prop-hard")
		require.NoError(rt, err)
		require.Greater(rt, totalBefore.TotalTokens, 0)

		hard := rapid.IntRange(1, totalBefore.TotalTokens).Draw(rt, "hardTokens")
		soft := rapid.IntRange(0, hard).Draw(rt, "softTokens")
		engine.thresholds = config.ThresholdConfig{SoftTokens: soft, HardTokens: hard}

		require.NoError(rt, engine.CheckAndMaybeCompact(ctx, "sess-prop-hard"))

		stats, err := st.Stats(ctx, "sess-prop-hard")
		require.NoError(rt, err)
		require.LessOrEqual(rt, stats.TokensUnsummarized, soft)
	})
}
