package store

import (
	"context"
	"fmt"
)

// InsertSummaryInput describes a new summary node: either a level-0 leaf
// condensing a contiguous run of messages, or a higher-level node
// condensing a set of lower-level summaries.
type InsertSummaryInput struct {
	SessionID  string
	Level      int
	Kind       SummaryKind
	Content    string
	TokenCount int
	ChildKind  ChildKind
	ChildIDs   []int64
}

// SessionTotals is the running state compaction checks against the soft
// and hard token thresholds.
type SessionTotals struct {
	SessionID            string
	TotalTokens          int
	UnsummarizedMessages int
}

// SearchHit is one match from FTSSearch or RegexSearch. CoveredBy is the
// LCM id of the top-level summary currently covering this hit's message
// or summary (per Store.CoveringSummary), or "" if it is still
// uncovered. Order is the hit's transcript position — a message's own
// transcript_offset, or a summary's CoversStart — used to sort hits
// within a covering-summary group.
type SearchHit struct {
	Ref       string
	Excerpt   string
	CoveredBy string
	Order     int64
}

// SearchPage is one page of search results.
type SearchPage struct {
	Hits    []SearchHit
	Page    int
	HasMore bool
}

// Ref is the resolved target of a GetByID lookup; exactly one of
// Message, Summary, File is set.
type Ref struct {
	Kind    RefKind
	Message *Message
	Summary *Summary
	File    *FileRef
}

// Stats is a session's status snapshot: counts, token totals split by
// whether a message has been absorbed into a summary, and how many DAG
// levels currently have at least one summary.
type Stats struct {
	MessageCount        int
	SummaryCountByLevel map[int]int
	TokensSummarized    int
	TokensUnsummarized  int
	DAGDepth            int
}

// ChildPreview is one immediate child of a summary, surfaced by Expand:
// a message for a leaf, a lower-level summary for a condensed node.
type ChildPreview struct {
	Ref        string
	Preview    string
	TokenCount int
}

// Store is the engine's append-only message log and summary DAG.
// Implementations must make AppendMessage, InsertSummary, and UpsertFile
// idempotent under retry: capture and compaction both re-run after
// partial failure and rely on the store, not themselves, to dedupe.
type Store interface {
	// AppendMessage inserts a message at transcriptOffset, computing its
	// token estimate and updating the session's running total. Calling
	// it again with the same (sessionID, transcriptOffset) returns the
	// existing row without modification.
	AppendMessage(ctx context.Context, sessionID string, transcriptOffset int64, role, content string) (*Message, error)

	// LastTranscriptOffset returns the highest transcript_offset recorded
	// for a session, or 0 if no messages have been captured yet. Capture
	// resumes reading the host's transcript one past this value.
	LastTranscriptOffset(ctx context.Context, sessionID string) (int64, error)

	// MarkSummarized flags messages as consumed by a summary.
	// InsertSummary sets the flag itself inside its own transaction and
	// does not call this; it is exposed for tests and recovery tooling.
	MarkSummarized(ctx context.Context, messageIDs []int64) error

	// InsertSummary atomically inserts a summary and marks its children
	// consumed (summarized, for message children; condensed, for
	// summary children).
	InsertSummary(ctx context.Context, in InsertSummaryInput) (*Summary, error)

	// MarkCondensed flags summaries as consumed by a higher-level
	// summary. InsertSummary sets the flag itself inside its own
	// transaction and does not call this.
	MarkCondensed(ctx context.Context, summaryIDs []int64) error

	// UpsertFile records a file reference, deduplicating by (path,
	// sha256): a blob already captured under the same path and content
	// hash returns the existing row unchanged.
	UpsertFile(ctx context.Context, sessionID, path, sha256 string, byteSize int64, storageURI, snippet string) (*FileRef, error)

	// RecordFileSeen attaches messageID to a file reference: it sets
	// FirstSeenMessageID the first time a file is referenced, and always
	// advances LastSeenMessageID to the most recent referencing message.
	// These are the only fields FileRef permits to change after insert.
	RecordFileSeen(ctx context.Context, fileID, messageID int64) error

	// GetByID resolves an LCM id to its message, summary, or file row.
	GetByID(ctx context.Context, sessionID, ref string) (*Ref, error)

	// FTSSearch runs an FTS5 MATCH query over a session's messages and
	// summaries, paginated.
	FTSSearch(ctx context.Context, sessionID, query string, page int) (*SearchPage, error)

	// RegexSearch runs a regular expression over a session's messages
	// and summaries, paginated, bounded by a result cap and scan
	// timeout.
	RegexSearch(ctx context.Context, sessionID, pattern string, page int) (*SearchPage, error)

	// UnsummarizedMessages returns a session's messages not yet covered
	// by any summary, oldest first.
	UnsummarizedMessages(ctx context.Context, sessionID string) ([]Message, error)

	// UncondensedSummaries returns a session's summaries at level that
	// have not yet been condensed into a higher level, oldest first.
	UncondensedSummaries(ctx context.Context, sessionID string, level int) ([]Summary, error)

	// TopLevelSummaries returns a session's summaries that are not yet
	// covered by any higher-level summary, in insertion order. These are
	// what injection surfaces after a host compaction.
	TopLevelSummaries(ctx context.Context, sessionID string) ([]Summary, error)

	// SessionTotals returns a session's running token total and
	// unsummarized message count.
	SessionTotals(ctx context.Context, sessionID string) (SessionTotals, error)

	// Stats returns a session's status snapshot: message and per-level
	// summary counts, the token split between summarized and
	// unsummarized content, and the DAG's current depth.
	Stats(ctx context.Context, sessionID string) (Stats, error)

	// CoveringSummary resolves ref's covering summary: the highest-level
	// ancestor reached by walking summary_children parent links upward
	// from ref, or "" if ref is not yet covered by anything. Used to group
	// search hits into clusters.
	CoveringSummary(ctx context.Context, ref string) (string, error)

	// ParentOf resolves the immediate summary that directly consumed ref
	// (a message or summary id), or "" if ref is not yet covered. Unlike
	// CoveringSummary this does not walk past one level, even if that
	// summary has itself since been condensed.
	ParentOf(ctx context.Context, ref string) (string, error)

	// SummaryChildren returns a summary's immediate children in
	// covered-range order, each with a short content preview.
	SummaryChildren(ctx context.Context, sessionID, ref string) ([]ChildPreview, error)

	Close() error
}

// ErrNotFound indicates GetByID's ref does not resolve to any row.
var ErrNotFound = fmt.Errorf("ref not found")
