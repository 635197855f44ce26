package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dpalmqvist/lossless-context-management/fileexplorer"
	"github.com/dpalmqvist/lossless-context-management/internal/metrics"
	"github.com/dpalmqvist/lossless-context-management/lcmerr"
	"github.com/dpalmqvist/lossless-context-management/llmclient"
	"github.com/dpalmqvist/lossless-context-management/store"
)

// SearchMode selects the match strategy grep uses.
type SearchMode string

const (
	ModeFTS   SearchMode = "fts"
	ModeRegex SearchMode = "regex"
)

// SearchScope restricts grep to messages, summaries, or both.
type SearchScope string

const (
	ScopeMessages  SearchScope = "messages"
	ScopeSummaries SearchScope = "summaries"
	ScopeBoth      SearchScope = "both"
)

// StatusResult is status(session)'s return value.
type StatusResult struct {
	MessageCount        int
	SummaryCountByLevel map[int]int
	TokensSummarized    int
	TokensUnsummarized  int
	DAGDepth            int
}

// DescribeResult is describe(id)'s return value. Parent is "" if the
// target is not yet covered by any summary. CoversStart/CoversEnd are a
// message's own id for a message ref, and zero for a file ref.
type DescribeResult struct {
	Ref         string
	Kind        store.RefKind
	CoversStart int64
	CoversEnd   int64
	Parent      string
	ChildCount  int
	TokenCount  int
	CreatedAt   time.Time
}

// ExpandResult is one page of expand(id)'s immediate children.
type ExpandResult struct {
	Children []store.ChildPreview
	Page     int
	HasMore  bool
}

// HitGroup is one covering-summary cluster of grep hits. CoveredBy is ""
// for the group of hits not yet covered by any summary. Hits are ordered
// by transcript position ascending.
type HitGroup struct {
	CoveredBy string
	Hits      []store.SearchHit
}

// GrepResult is grep(query)'s return value: hits clustered by covering
// summary so the agent sees clusters, not a flat list, per a page of the
// store's underlying search.
type GrepResult struct {
	Groups  []HitGroup
	Page    int
	HasMore bool
}

// Tools wraps a Store with the read-only verbs an agent calls to recover
// context a compaction pass condensed away.
type Tools struct {
	store     store.Store
	pageSize  int
	analyzer  *fileexplorer.Analyzer
	collector *metrics.Collector
	logger    *zap.Logger
}

// New builds a Tools over st. pageSize bounds expand's page size; grep's
// own pagination is the store's (config.RetrievalConfig.PageSize). llm is
// used only by AnalyzeFile; it may be nil if a caller never analyzes file
// references.
func New(st store.Store, pageSize int, llm llmclient.Client, collector *metrics.Collector, logger *zap.Logger) *Tools {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	var analyzer *fileexplorer.Analyzer
	if llm != nil {
		analyzer = fileexplorer.New(llm, logger)
	}
	return &Tools{
		store:     st,
		pageSize:  pageSize,
		analyzer:  analyzer,
		collector: collector,
		logger:    logger.With(zap.String("component", "retrieval")),
	}
}

// Status returns a session's status snapshot.
func (t *Tools) Status(ctx context.Context, sessionID string) (StatusResult, error) {
	start := time.Now()
	stats, err := t.store.Stats(ctx, sessionID)
	t.record("status", err, start)
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{
		MessageCount:        stats.MessageCount,
		SummaryCountByLevel: stats.SummaryCountByLevel,
		TokensSummarized:    stats.TokensSummarized,
		TokensUnsummarized:  stats.TokensUnsummarized,
		DAGDepth:            stats.DAGDepth,
	}, nil
}

// Describe resolves ref (a message, summary, or file id) to its metadata.
func (t *Tools) Describe(ctx context.Context, sessionID, ref string) (DescribeResult, error) {
	start := time.Now()
	resolved, err := t.store.GetByID(ctx, sessionID, ref)
	if err != nil {
		t.record("describe", err, start)
		return DescribeResult{}, err
	}

	parent, err := t.store.ParentOf(ctx, ref)
	if err != nil {
		t.record("describe", err, start)
		return DescribeResult{}, err
	}

	out := DescribeResult{Ref: ref, Kind: resolved.Kind, Parent: parent}

	switch resolved.Kind {
	case store.RefMessage:
		m := resolved.Message
		out.CoversStart, out.CoversEnd = m.ID, m.ID
		out.TokenCount = m.TokenCount
		out.CreatedAt = m.CreatedAt

	case store.RefSummary:
		s := resolved.Summary
		out.CoversStart, out.CoversEnd = s.CoversStart, s.CoversEnd
		out.TokenCount = s.TokenCount
		out.CreatedAt = s.CreatedAt
		children, err := t.store.SummaryChildren(ctx, sessionID, ref)
		if err != nil {
			t.record("describe", err, start)
			return DescribeResult{}, err
		}
		out.ChildCount = len(children)

	case store.RefFile:
		f := resolved.File
		out.TokenCount = 0
		out.CreatedAt = f.CreatedAt

	default:
		t.record("describe", lcmerr.ErrInputError, start)
		return DescribeResult{}, lcmerr.InputError("describe", fmt.Errorf("unresolvable ref kind %q", resolved.Kind))
	}

	t.record("describe", nil, start)
	return out, nil
}

// AnalyzeFile resolves ref to a file reference and returns a type-aware
// description of its diverted content, for a file too large to read back
// in full. It errors if ref does not resolve to a file, or if this Tools
// was built without an llmclient.Client.
func (t *Tools) AnalyzeFile(ctx context.Context, sessionID, ref string) (fileexplorer.Result, error) {
	start := time.Now()
	if t.analyzer == nil {
		err := lcmerr.InputError("analyze_file", fmt.Errorf("file analysis is not configured"))
		t.record("analyze_file", err, start)
		return fileexplorer.Result{}, err
	}

	resolved, err := t.store.GetByID(ctx, sessionID, ref)
	if err != nil {
		t.record("analyze_file", err, start)
		return fileexplorer.Result{}, err
	}
	if resolved.Kind != store.RefFile {
		err := lcmerr.InputError("analyze_file", fmt.Errorf("ref %q is not a file reference", ref))
		t.record("analyze_file", err, start)
		return fileexplorer.Result{}, err
	}

	result, err := t.analyzer.Analyze(ctx, resolved.File)
	t.record("analyze_file", err, start)
	return result, err
}

// Expand returns a summary's immediate children, paginated.
func (t *Tools) Expand(ctx context.Context, sessionID, ref string, page int) (ExpandResult, error) {
	start := time.Now()
	children, err := t.store.SummaryChildren(ctx, sessionID, ref)
	t.record("expand", err, start)
	if err != nil {
		return ExpandResult{}, err
	}

	if page < 1 {
		page = 1
	}
	lo := (page - 1) * t.pageSize
	if lo > len(children) {
		lo = len(children)
	}
	hi := lo + t.pageSize
	if hi > len(children) {
		hi = len(children)
	}

	return ExpandResult{
		Children: children[lo:hi],
		Page:     page,
		HasMore:  hi < len(children),
	}, nil
}

// Grep searches a session's messages and/or summaries and returns hits
// clustered by covering summary, each cluster ordered by transcript
// position ascending. The store itself searches both messages and
// summaries together; scope is applied by filtering the returned page,
// so a page under a restrictive scope may come back shorter than
// pageSize even when more matching hits exist on a later underlying
// page.
func (t *Tools) Grep(ctx context.Context, sessionID, query string, mode SearchMode, scope SearchScope, page int) (*GrepResult, error) {
	start := time.Now()

	var (
		result *store.SearchPage
		err    error
	)
	switch mode {
	case ModeFTS:
		result, err = t.store.FTSSearch(ctx, sessionID, query, page)
	case ModeRegex:
		result, err = t.store.RegexSearch(ctx, sessionID, query, page)
	default:
		err = lcmerr.InputError("grep", fmt.Errorf("unknown search mode %q", mode))
	}
	t.record("grep", err, start)
	if err != nil {
		return nil, err
	}

	hits := result.Hits
	if scope != ScopeBoth && scope != "" {
		filtered := make([]store.SearchHit, 0, len(hits))
		for _, hit := range hits {
			kind, _, parseErr := store.ParseRef(hit.Ref)
			if parseErr != nil {
				continue
			}
			if scope == ScopeMessages && kind == store.RefMessage {
				filtered = append(filtered, hit)
			}
			if scope == ScopeSummaries && kind == store.RefSummary {
				filtered = append(filtered, hit)
			}
		}
		hits = filtered
	}

	return &GrepResult{
		Groups:  groupHits(hits),
		Page:    result.Page,
		HasMore: result.HasMore,
	}, nil
}

// groupHits clusters hits by CoveredBy, preserving each group's first
// appearance order, with hits inside a group sorted by transcript
// position ascending.
func groupHits(hits []store.SearchHit) []HitGroup {
	order := make([]string, 0)
	byCover := make(map[string][]store.SearchHit)
	for _, hit := range hits {
		if _, ok := byCover[hit.CoveredBy]; !ok {
			order = append(order, hit.CoveredBy)
		}
		byCover[hit.CoveredBy] = append(byCover[hit.CoveredBy], hit)
	}

	groups := make([]HitGroup, 0, len(order))
	for _, covered := range order {
		group := byCover[covered]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Order < group[j].Order })
		groups = append(groups, HitGroup{CoveredBy: covered, Hits: group})
	}
	return groups
}

func (t *Tools) record(op string, err error, start time.Time) {
	if t.collector == nil {
		return
	}
	t.collector.RecordStoreOp(op, err, time.Since(start))
}
