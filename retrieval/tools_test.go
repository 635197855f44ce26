package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dpalmqvist/lossless-context-management/config"
	"github.com/dpalmqvist/lossless-context-management/internal/metrics"
	"github.com/dpalmqvist/lossless-context-management/llmclient"
	"github.com/dpalmqvist/lossless-context-management/store"
)

// stubLLM hands back a fixed classify label and summary text; the
// retrieval tests that don't exercise AnalyzeFile never call it.
type stubLLM struct {
	classifyLabel string
	summary       string
}

func (s *stubLLM) Summarize(ctx context.Context, messages []llmclient.Message, kind string, maxTokens int) (string, error) {
	return s.summary, nil
}

func (s *stubLLM) Classify(ctx context.Context, text string, labels []string) (string, error) {
	return s.classifyLabel, nil
}

func (s *stubLLM) AgentLoop(ctx context.Context, system string, tools []llmclient.ToolSpec, exec llmclient.ToolExecutor, initial string, maxTurns int) (string, error) {
	return "", nil
}

var namespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&namespaceSeq, 1)
	return fmt.Sprintf("retrieval_test_%d", seq)
}

func openTestStore(t *testing.T) store.Store {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestTools(st store.Store) *Tools {
	return New(st, 10, &stubLLM{summary: "a generic summary"}, metrics.NewCollector(nextTestNamespace(), zap.NewNop()), zap.NewNop())
}

func TestStatus_EmptySession(t *testing.T) {
	st := openTestStore(t)
	tools := newTestTools(st)

	status, err := tools.Status(context.Background(), "sess-empty")
	require.NoError(t, err)
	assert.Equal(t, 0, status.MessageCount)
	assert.Equal(t, 0, status.DAGDepth)
}

func TestStatus_ReflectsMessagesAndSummaries(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	tools := newTestTools(st)

	m1, err := st.AppendMessage(ctx, "sess-1", 1, "user", "one")
	require.NoError(t, err)
	m2, err := st.AppendMessage(ctx, "sess-1", 2, "assistant", "two")
	require.NoError(t, err)

	_, err = st.InsertSummary(ctx, store.InsertSummaryInput{
		SessionID: "sess-1", Level: 0, Kind: store.KindBulletPoints, Content: "leaf", TokenCount: 1,
		ChildKind: store.ChildMessage, ChildIDs: []int64{m1.ID, m2.ID},
	})
	require.NoError(t, err)

	status, err := tools.Status(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 2, status.MessageCount)
	assert.Equal(t, 1, status.SummaryCountByLevel[0])
	assert.Equal(t, 1, status.DAGDepth)
}

func TestDescribe_MessageHasNoParentUntilSummarized(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	tools := newTestTools(st)

	m1, err := st.AppendMessage(ctx, "sess-1", 1, "user", "hello")
	require.NoError(t, err)

	desc, err := tools.Describe(ctx, "sess-1", store.MessageRef(m1.ID))
	require.NoError(t, err)
	assert.Equal(t, store.RefMessage, desc.Kind)
	assert.Empty(t, desc.Parent)
	assert.Equal(t, m1.ID, desc.CoversStart)
}

func TestDescribe_SummaryReportsChildCountAndRange(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	tools := newTestTools(st)

	m1, err := st.AppendMessage(ctx, "sess-1", 1, "user", "one")
	require.NoError(t, err)
	m2, err := st.AppendMessage(ctx, "sess-1", 2, "assistant", "two")
	require.NoError(t, err)

	sum, err := st.InsertSummary(ctx, store.InsertSummaryInput{
		SessionID: "sess-1", Level: 0, Kind: store.KindBulletPoints, Content: "leaf", TokenCount: 3,
		ChildKind: store.ChildMessage, ChildIDs: []int64{m1.ID, m2.ID},
	})
	require.NoError(t, err)

	desc, err := tools.Describe(ctx, "sess-1", store.SummaryRef(sum.ID))
	require.NoError(t, err)
	assert.Equal(t, store.RefSummary, desc.Kind)
	assert.Equal(t, 2, desc.ChildCount)
	assert.Equal(t, m1.ID, desc.CoversStart)
	assert.Equal(t, m2.ID, desc.CoversEnd)
	assert.False(t, desc.CreatedAt.IsZero())
}

func TestDescribe_UnknownRefReturnsNotFound(t *testing.T) {
	st := openTestStore(t)
	tools := newTestTools(st)

	_, err := tools.Describe(context.Background(), "sess-1", "999")
	assert.Error(t, err)
}

func TestExpand_LeafReturnsUnderlyingMessages(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	tools := newTestTools(st)

	m1, err := st.AppendMessage(ctx, "sess-1", 1, "user", "one")
	require.NoError(t, err)
	m2, err := st.AppendMessage(ctx, "sess-1", 2, "assistant", "two")
	require.NoError(t, err)

	sum, err := st.InsertSummary(ctx, store.InsertSummaryInput{
		SessionID: "sess-1", Level: 0, Kind: store.KindBulletPoints, Content: "leaf",
		ChildKind: store.ChildMessage, ChildIDs: []int64{m1.ID, m2.ID},
	})
	require.NoError(t, err)

	result, err := tools.Expand(ctx, "sess-1", store.SummaryRef(sum.ID), 1)
	require.NoError(t, err)
	require.Len(t, result.Children, 2)
	assert.Equal(t, store.MessageRef(m1.ID), result.Children[0].Ref)
	assert.False(t, result.HasMore)
}

func TestExpand_CondensedReturnsChildSummaries(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	tools := newTestTools(st)

	m1, err := st.AppendMessage(ctx, "sess-1", 1, "user", "one")
	require.NoError(t, err)

	leaf, err := st.InsertSummary(ctx, store.InsertSummaryInput{
		SessionID: "sess-1", Level: 0, Kind: store.KindBulletPoints, Content: "leaf",
		ChildKind: store.ChildMessage, ChildIDs: []int64{m1.ID},
	})
	require.NoError(t, err)

	top, err := st.InsertSummary(ctx, store.InsertSummaryInput{
		SessionID: "sess-1", Level: 1, Kind: store.KindCondensed, Content: "top",
		ChildKind: store.ChildSummary, ChildIDs: []int64{leaf.ID},
	})
	require.NoError(t, err)

	result, err := tools.Expand(ctx, "sess-1", store.SummaryRef(top.ID), 1)
	require.NoError(t, err)
	require.Len(t, result.Children, 1)
	assert.Equal(t, store.SummaryRef(leaf.ID), result.Children[0].Ref)
}

func TestGrep_FTSFindsMessageContent(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	tools := newTestTools(st)

	_, err := st.AppendMessage(ctx, "sess-1", 1, "user", "the needle is here")
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, "sess-1", 2, "assistant", "nothing relevant")
	require.NoError(t, err)

	result, err := tools.Grep(ctx, "sess-1", "needle", ModeFTS, ScopeBoth, 1)
	require.NoError(t, err)
	require.Len(t, result.Groups, 1)
	require.Len(t, result.Groups[0].Hits, 1)
	assert.Contains(t, result.Groups[0].Hits[0].Excerpt, "needle")
}

func TestGrep_ScopeFiltersToSummariesOnly(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	tools := newTestTools(st)

	m1, err := st.AppendMessage(ctx, "sess-1", 1, "user", "marker text one")
	require.NoError(t, err)
	_, err = st.InsertSummary(ctx, store.InsertSummaryInput{
		SessionID: "sess-1", Level: 0, Kind: store.KindBulletPoints, Content: "marker text two",
		ChildKind: store.ChildMessage, ChildIDs: []int64{m1.ID},
	})
	require.NoError(t, err)

	result, err := tools.Grep(ctx, "sess-1", "marker", ModeFTS, ScopeSummaries, 1)
	require.NoError(t, err)
	for _, group := range result.Groups {
		for _, hit := range group.Hits {
			kind, _, err := store.ParseRef(hit.Ref)
			require.NoError(t, err)
			assert.Equal(t, store.RefSummary, kind)
		}
	}
}

func TestGrep_GroupsHitsByCoveringSummary(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	tools := newTestTools(st)

	m1, err := st.AppendMessage(ctx, "sess-1", 1, "user", "alpha needle one")
	require.NoError(t, err)
	m2, err := st.AppendMessage(ctx, "sess-1", 2, "user", "alpha needle two")
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, "sess-1", 3, "user", "alpha needle uncovered")
	require.NoError(t, err)

	leaf, err := st.InsertSummary(ctx, store.InsertSummaryInput{
		SessionID: "sess-1", Level: 0, Kind: store.KindBulletPoints, Content: "leaf covering alpha",
		ChildKind: store.ChildMessage, ChildIDs: []int64{m1.ID, m2.ID},
	})
	require.NoError(t, err)
	top, err := st.InsertSummary(ctx, store.InsertSummaryInput{
		SessionID: "sess-1", Level: 1, Kind: store.KindCondensed, Content: "top condensing leaf",
		ChildKind: store.ChildSummary, ChildIDs: []int64{leaf.ID},
	})
	require.NoError(t, err)

	result, err := tools.Grep(ctx, "sess-1", "alpha", ModeFTS, ScopeBoth, 1)
	require.NoError(t, err)

	var coveredGroup, uncoveredGroup *HitGroup
	for i := range result.Groups {
		g := result.Groups[i]
		if g.CoveredBy == store.SummaryRef(top.ID) {
			coveredGroup = &g
		}
		if g.CoveredBy == "" {
			uncoveredGroup = &g
		}
	}
	require.NotNil(t, coveredGroup, "hits under the leaf should report the top-level covering summary")
	require.NotNil(t, uncoveredGroup)
	// The leaf's own content matches "alpha" too; its order is its
	// CoversStart (m1's id), so it sorts right after m1.
	require.Len(t, coveredGroup.Hits, 3)
	assert.Equal(t, m1.ID, mustMessageID(t, coveredGroup.Hits[0].Ref))
	assert.Equal(t, store.SummaryRef(leaf.ID), coveredGroup.Hits[1].Ref)
	assert.Equal(t, m2.ID, mustMessageID(t, coveredGroup.Hits[2].Ref))
	require.Len(t, uncoveredGroup.Hits, 1)
}

func mustMessageID(t *testing.T, ref string) int64 {
	t.Helper()
	kind, id, err := store.ParseRef(ref)
	require.NoError(t, err)
	require.Equal(t, store.RefMessage, kind)
	return id
}

func TestGrep_UnknownModeIsInputError(t *testing.T) {
	st := openTestStore(t)
	tools := newTestTools(st)
	_, err := tools.Grep(context.Background(), "sess-1", "x", SearchMode("bogus"), ScopeBoth, 1)
	assert.Error(t, err)
}

func TestAnalyzeFile_DescribesDivertedContent(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	tools := newTestTools(st)

	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a": 1, "b": [1, 2, 3]}`), 0o644))

	f, err := st.UpsertFile(ctx, "sess-1", "tool-output/data.json", "deadbeef", 24, "file://"+path, "snippet")
	require.NoError(t, err)

	result, err := tools.AnalyzeFile(ctx, "sess-1", store.FileRefID(f.ID))
	require.NoError(t, err)
	assert.Equal(t, "json", result.FileType)
	assert.Contains(t, result.Summary, `"a": number`)
}

func TestAnalyzeFile_NonFileRefIsInputError(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	tools := newTestTools(st)

	m1, err := st.AppendMessage(ctx, "sess-1", 1, "user", "hi")
	require.NoError(t, err)

	_, err = tools.AnalyzeFile(ctx, "sess-1", store.MessageRef(m1.ID))
	assert.Error(t, err)
}

func TestAnalyzeFile_WithoutLLMClientErrors(t *testing.T) {
	st := openTestStore(t)
	tools := New(st, 10, nil, metrics.NewCollector(nextTestNamespace(), zap.NewNop()), zap.NewNop())

	_, err := tools.AnalyzeFile(context.Background(), "sess-1", "F1")
	assert.Error(t, err)
}
