package store

import "time"

// Session tracks one conversation's running token total, used to decide
// when compaction should trigger.
type Session struct {
	ID          string `gorm:"primaryKey"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	TotalTokens int
}

func (Session) TableName() string { return "sessions" }

// Message is one immutable transcript entry. TranscriptOffset is the
// capture protocol's own line counter, unique per session, and is what
// makes re-running capture over the same transcript idempotent.
type Message struct {
	ID               int64 `gorm:"primaryKey;autoIncrement"`
	SessionID        string
	TranscriptOffset int64
	Role             string
	Content          string
	TokenCount       int
	Summarized       bool
	CreatedAt        time.Time
}

func (Message) TableName() string { return "messages" }

// SummaryKind names the escalation level (or condensation) that produced
// a summary's content.
type SummaryKind string

const (
	KindPreserveDetails SummaryKind = "preserve_details"
	KindBulletPoints    SummaryKind = "bullet_points"
	KindTruncated       SummaryKind = "truncated"
	KindCondensed       SummaryKind = "condensed"
)

// Summary is one node in the hierarchical summary DAG. Level 0 summaries
// cover a contiguous run of messages; higher levels condense lower-level
// summaries. CoversStart/CoversEnd are the first and last message ids (by
// transcript order) transitively covered by this summary, used by
// injection and retrieval to describe a summary's range without walking
// the DAG.
type Summary struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	SessionID   string
	Level       int
	Kind        SummaryKind
	Content     string
	TokenCount  int
	CoversStart int64
	CoversEnd   int64
	Condensed   bool
	CreatedAt   time.Time
}

func (Summary) TableName() string { return "summaries" }

// ChildKind distinguishes whether a summary_children row points at a raw
// message or at a lower-level summary.
type ChildKind string

const (
	ChildMessage ChildKind = "message"
	ChildSummary ChildKind = "summary"
)

// SummaryChild records one member of a summary's covered set. A child
// belongs to exactly one summary, enforced by the UNIQUE(child_kind,
// child_id) constraint — a message or summary can only ever be condensed
// once.
type SummaryChild struct {
	SummaryID int64
	ChildKind ChildKind
	ChildID   int64
	Ordinal   int
}

func (SummaryChild) TableName() string { return "summary_children" }

// FileRef is a large tool-result blob diverted out of the message log and
// deduplicated by (path, sha256). Immutable except for FirstSeenMessageID
// and LastSeenMessageID, both zero at insert: the first referencing
// message sets FirstSeenMessageID, which then never changes, and every
// capture pass that re-diverts the same (path, sha256) pair updates
// LastSeenMessageID to point at the most recent referencing message.
type FileRef struct {
	ID                 int64 `gorm:"primaryKey;autoIncrement"`
	SessionID          string
	Path               string
	SHA256             string
	ByteSize           int64
	StorageURI         string
	Snippet            string
	FirstSeenMessageID int64
	LastSeenMessageID  int64
	CreatedAt          time.Time
}

func (FileRef) TableName() string { return "files" }
