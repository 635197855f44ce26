package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dpalmqvist/lossless-context-management/config"
	idb "github.com/dpalmqvist/lossless-context-management/internal/database"
	"github.com/dpalmqvist/lossless-context-management/internal/migration"
	"github.com/dpalmqvist/lossless-context-management/lcmerr"
	"github.com/dpalmqvist/lossless-context-management/tokenest"
)

// SQLiteStore is the GORM/SQLite-backed Store implementation.
type SQLiteStore struct {
	pool         *idb.PoolManager
	logger       *zap.Logger
	pageSize     int
	regexCap     int
	regexTimeout time.Duration
}

// New wraps an already-open pool as a Store, sized by cfg.
func New(pool *idb.PoolManager, cfg config.RetrievalConfig, logger *zap.Logger) *SQLiteStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteStore{
		pool:         pool,
		logger:       logger.With(zap.String("component", "store")),
		pageSize:     cfg.PageSize,
		regexCap:     cfg.RegexResultCap,
		regexTimeout: cfg.RegexScanTimeout,
	}
}

// Open opens cfg.Database.Path, applies any pending migrations, and
// returns a ready Store.
func Open(cfg *config.Config, logger *zap.Logger) (*SQLiteStore, error) {
	pool, err := idb.Open(cfg.Database, logger)
	if err != nil {
		return nil, lcmerr.StoreUnavailable("open", err)
	}

	sqlDB, err := pool.DB().DB()
	if err != nil {
		pool.Close()
		return nil, lcmerr.StoreUnavailable("open", err)
	}

	migrator, err := migration.NewMigrator(sqlDB)
	if err != nil {
		pool.Close()
		return nil, lcmerr.StoreUnavailable("open", err)
	}
	if err := migrator.Up(context.Background()); err != nil {
		pool.Close()
		return nil, lcmerr.StoreUnavailable("migrate", err)
	}

	return New(pool, cfg.Retrieval, logger), nil
}

func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, transcriptOffset int64, role, content string) (*Message, error) {
	tokens := tokenest.Estimate(content)

	var msg Message
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		now := time.Now().UTC()

		if err := tx.Exec(
			`INSERT INTO sessions (id, created_at, updated_at, total_tokens) VALUES (?, ?, ?, 0)
			 ON CONFLICT(id) DO NOTHING`,
			sessionID, now, now,
		).Error; err != nil {
			return err
		}

		res := tx.Exec(
			`INSERT INTO messages (session_id, transcript_offset, role, content, token_count, summarized, created_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?)
			 ON CONFLICT(session_id, transcript_offset) DO NOTHING`,
			sessionID, transcriptOffset, role, content, tokens, now,
		)
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected > 0 {
			if err := tx.Exec(
				`UPDATE sessions SET total_tokens = total_tokens + ?, updated_at = ? WHERE id = ?`,
				tokens, now, sessionID,
			).Error; err != nil {
				return err
			}
		}

		return tx.Raw(
			`SELECT id, session_id, transcript_offset, role, content, token_count, summarized, created_at
			 FROM messages WHERE session_id = ? AND transcript_offset = ?`,
			sessionID, transcriptOffset,
		).Scan(&msg).Error
	})
	if err != nil {
		return nil, lcmerr.StoreUnavailable("append_message", err)
	}
	return &msg, nil
}

func (s *SQLiteStore) MarkSummarized(ctx context.Context, messageIDs []int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	err := s.pool.DB().WithContext(ctx).Model(&Message{}).
		Where("id IN ?", messageIDs).
		Update("summarized", true).Error
	if err != nil {
		return lcmerr.StoreUnavailable("mark_summarized", err)
	}
	return nil
}

func (s *SQLiteStore) MarkCondensed(ctx context.Context, summaryIDs []int64) error {
	if len(summaryIDs) == 0 {
		return nil
	}
	err := s.pool.DB().WithContext(ctx).Model(&Summary{}).
		Where("id IN ?", summaryIDs).
		Update("condensed", true).Error
	if err != nil {
		return lcmerr.StoreUnavailable("mark_condensed", err)
	}
	return nil
}

func (s *SQLiteStore) InsertSummary(ctx context.Context, in InsertSummaryInput) (*Summary, error) {
	if len(in.ChildIDs) == 0 {
		return nil, lcmerr.InputError("insert_summary", fmt.Errorf("summary must cover at least one child"))
	}
	if in.ChildKind != ChildMessage && in.ChildKind != ChildSummary {
		return nil, lcmerr.InputError("insert_summary", fmt.Errorf("unknown child kind %q", in.ChildKind))
	}

	var result Summary
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		coversStart, coversEnd, err := coverageRange(tx, in.ChildKind, in.ChildIDs)
		if err != nil {
			return err
		}

		summary := Summary{
			SessionID:   in.SessionID,
			Level:       in.Level,
			Kind:        in.Kind,
			Content:     in.Content,
			TokenCount:  in.TokenCount,
			CoversStart: coversStart,
			CoversEnd:   coversEnd,
			Condensed:   false,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.Create(&summary).Error; err != nil {
			return err
		}

		children := make([]SummaryChild, len(in.ChildIDs))
		for i, id := range in.ChildIDs {
			children[i] = SummaryChild{SummaryID: summary.ID, ChildKind: in.ChildKind, ChildID: id, Ordinal: i}
		}
		if err := tx.Create(&children).Error; err != nil {
			return err
		}

		consumedTokens, err := childTokenTotal(tx, in.ChildKind, in.ChildIDs)
		if err != nil {
			return err
		}

		switch in.ChildKind {
		case ChildMessage:
			if err := tx.Model(&Message{}).Where("id IN ?", in.ChildIDs).Update("summarized", true).Error; err != nil {
				return err
			}
		case ChildSummary:
			if err := tx.Model(&Summary{}).Where("id IN ?", in.ChildIDs).Update("condensed", true).Error; err != nil {
				return err
			}
		}

		// A summary's running cost replaces the tokens its children used to
		// cost, so the session total reflects current context size, not
		// cumulative intake.
		netDelta := in.TokenCount - consumedTokens
		if err := tx.Exec(
			`UPDATE sessions SET total_tokens = total_tokens + ?, updated_at = ? WHERE id = ?`,
			netDelta, time.Now().UTC(), in.SessionID,
		).Error; err != nil {
			return err
		}

		result = summary
		return nil
	})
	if err != nil {
		return nil, lcmerr.StoreUnavailable("insert_summary", err)
	}
	return &result, nil
}

func coverageRange(tx *gorm.DB, kind ChildKind, ids []int64) (int64, int64, error) {
	var table, minCol, maxCol string
	switch kind {
	case ChildMessage:
		table, minCol, maxCol = "messages", "id", "id"
	case ChildSummary:
		table, minCol, maxCol = "summaries", "covers_start", "covers_end"
	default:
		return 0, 0, fmt.Errorf("unknown child kind %q", kind)
	}

	var row struct {
		MinVal int64
		MaxVal int64
	}
	query := fmt.Sprintf("SELECT MIN(%s) AS min_val, MAX(%s) AS max_val FROM %s WHERE id IN ?", minCol, maxCol, table)
	if err := tx.Raw(query, ids).Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return row.MinVal, row.MaxVal, nil
}

func childTokenTotal(tx *gorm.DB, kind ChildKind, ids []int64) (int, error) {
	table := "messages"
	if kind == ChildSummary {
		table = "summaries"
	}
	var total int
	query := fmt.Sprintf("SELECT COALESCE(SUM(token_count), 0) FROM %s WHERE id IN ?", table)
	if err := tx.Raw(query, ids).Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *SQLiteStore) LastTranscriptOffset(ctx context.Context, sessionID string) (int64, error) {
	var offset int64
	err := s.pool.DB().WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(transcript_offset), 0) FROM messages WHERE session_id = ?`,
		sessionID,
	).Scan(&offset).Error
	if err != nil {
		return 0, lcmerr.StoreUnavailable("last_transcript_offset", err)
	}
	return offset, nil
}

func (s *SQLiteStore) UpsertFile(ctx context.Context, sessionID, path, sha256 string, byteSize int64, storageURI, snippet string) (*FileRef, error) {
	var file FileRef
	err := s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := tx.Exec(
			`INSERT INTO files (session_id, path, sha256, byte_size, storage_uri, snippet, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(path, sha256) DO NOTHING`,
			sessionID, path, sha256, byteSize, storageURI, snippet, now,
		).Error; err != nil {
			return err
		}

		return tx.Raw(
			`SELECT id, session_id, path, sha256, byte_size, storage_uri, snippet,
			        first_seen_message_id, last_seen_message_id, created_at
			 FROM files WHERE path = ? AND sha256 = ?`,
			path, sha256,
		).Scan(&file).Error
	})
	if err != nil {
		return nil, lcmerr.StoreUnavailable("upsert_file", err)
	}
	return &file, nil
}

// RecordFileSeen sets FirstSeenMessageID on a file's first reference and
// advances LastSeenMessageID on every subsequent one.
func (s *SQLiteStore) RecordFileSeen(ctx context.Context, fileID, messageID int64) error {
	err := s.pool.DB().WithContext(ctx).Exec(
		`UPDATE files SET
		   first_seen_message_id = CASE WHEN first_seen_message_id = 0 THEN ? ELSE first_seen_message_id END,
		   last_seen_message_id = ?
		 WHERE id = ?`,
		messageID, messageID, fileID,
	).Error
	if err != nil {
		return lcmerr.StoreUnavailable("record_file_seen", err)
	}
	return nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, sessionID, ref string) (*Ref, error) {
	kind, id, err := ParseRef(ref)
	if err != nil {
		return nil, lcmerr.InputError("get_by_id", err)
	}

	db := s.pool.DB().WithContext(ctx)

	switch kind {
	case RefMessage:
		var m Message
		err := db.Where("id = ? AND session_id = ?", id, sessionID).First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, lcmerr.StoreUnavailable("get_by_id", err)
		}
		return &Ref{Kind: RefMessage, Message: &m}, nil

	case RefSummary:
		var sum Summary
		err := db.Where("id = ? AND session_id = ?", id, sessionID).First(&sum).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, lcmerr.StoreUnavailable("get_by_id", err)
		}
		return &Ref{Kind: RefSummary, Summary: &sum}, nil

	case RefFile:
		var f FileRef
		err := db.Where("id = ? AND session_id = ?", id, sessionID).First(&f).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, lcmerr.StoreUnavailable("get_by_id", err)
		}
		return &Ref{Kind: RefFile, File: &f}, nil

	default:
		return nil, lcmerr.InputError("get_by_id", fmt.Errorf("unknown ref kind %q", kind))
	}
}

type contentRow struct {
	ID      int64
	Content string
	Order   int64
}

func (s *SQLiteStore) FTSSearch(ctx context.Context, sessionID, query string, page int) (*SearchPage, error) {
	sanitized := sanitizeFTS(query)
	if sanitized == "" {
		return &SearchPage{Page: normalizePage(page)}, nil
	}

	db := s.pool.DB().WithContext(ctx)

	var msgRows []contentRow
	if err := db.Raw(
		`SELECT m.id AS id, m.content AS content, m.transcript_offset AS "order" FROM messages_fts
		 JOIN messages m ON m.id = messages_fts.rowid
		 WHERE messages_fts MATCH ? AND m.session_id = ?
		 ORDER BY messages_fts.rank`,
		sanitized, sessionID,
	).Scan(&msgRows).Error; err != nil {
		return nil, lcmerr.StoreUnavailable("fts_search", err)
	}

	var sumRows []contentRow
	if err := db.Raw(
		`SELECT s.id AS id, s.content AS content, s.covers_start AS "order" FROM summaries_fts
		 JOIN summaries s ON s.id = summaries_fts.rowid
		 WHERE summaries_fts MATCH ? AND s.session_id = ?
		 ORDER BY summaries_fts.rank`,
		sanitized, sessionID,
	).Scan(&sumRows).Error; err != nil {
		return nil, lcmerr.StoreUnavailable("fts_search", err)
	}

	hits := make([]SearchHit, 0, len(msgRows)+len(sumRows))
	for _, r := range msgRows {
		covered, _ := s.CoveringSummary(ctx, MessageRef(r.ID))
		hits = append(hits, SearchHit{Ref: MessageRef(r.ID), Excerpt: excerpt(r.Content), CoveredBy: covered, Order: r.Order})
	}
	for _, r := range sumRows {
		covered, _ := s.CoveringSummary(ctx, SummaryRef(r.ID))
		hits = append(hits, SearchHit{Ref: SummaryRef(r.ID), Excerpt: excerpt(r.Content), CoveredBy: covered, Order: r.Order})
	}

	return paginate(hits, page, s.pageSize), nil
}

func (s *SQLiteStore) RegexSearch(ctx context.Context, sessionID, pattern string, page int) (*SearchPage, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, lcmerr.InputError("regex_search", err)
	}

	db := s.pool.DB().WithContext(ctx)

	var msgRows []contentRow
	if err := db.Raw(`SELECT id, content, transcript_offset AS "order" FROM messages WHERE session_id = ? ORDER BY id`, sessionID).Scan(&msgRows).Error; err != nil {
		return nil, lcmerr.StoreUnavailable("regex_search", err)
	}
	var sumRows []contentRow
	if err := db.Raw(`SELECT id, content, covers_start AS "order" FROM summaries WHERE session_id = ? ORDER BY id`, sessionID).Scan(&sumRows).Error; err != nil {
		return nil, lcmerr.StoreUnavailable("regex_search", err)
	}

	deadline := time.Now().Add(s.regexTimeout)
	var hits []SearchHit

	scan := func(kind ChildKind, rows []contentRow) {
		for _, r := range rows {
			if len(hits) >= s.regexCap || time.Now().After(deadline) {
				return
			}
			if re.FindStringIndex(r.Content) == nil {
				continue
			}
			ref := MessageRef(r.ID)
			if kind == ChildSummary {
				ref = SummaryRef(r.ID)
			}
			covered, _ := s.CoveringSummary(ctx, ref)
			hits = append(hits, SearchHit{Ref: ref, Excerpt: excerpt(r.Content), CoveredBy: covered, Order: r.Order})
		}
	}

	scan(ChildMessage, msgRows)
	scan(ChildSummary, sumRows)

	return paginate(hits, page, s.pageSize), nil
}

func (s *SQLiteStore) coveredBy(ctx context.Context, kind ChildKind, id int64) (string, error) {
	var summaryID int64
	row := s.pool.DB().WithContext(ctx).Raw(
		`SELECT summary_id FROM summary_children WHERE child_kind = ? AND child_id = ? LIMIT 1`,
		kind, id,
	).Row()
	if err := row.Scan(&summaryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return SummaryRef(summaryID), nil
}

func (s *SQLiteStore) UnsummarizedMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var msgs []Message
	err := s.pool.DB().WithContext(ctx).
		Where("session_id = ? AND summarized = ?", sessionID, false).
		Order("id").
		Find(&msgs).Error
	if err != nil {
		return nil, lcmerr.StoreUnavailable("unsummarized_messages", err)
	}
	return msgs, nil
}

func (s *SQLiteStore) UncondensedSummaries(ctx context.Context, sessionID string, level int) ([]Summary, error) {
	var sums []Summary
	err := s.pool.DB().WithContext(ctx).
		Where("session_id = ? AND level = ? AND condensed = ?", sessionID, level, false).
		Order("id").
		Find(&sums).Error
	if err != nil {
		return nil, lcmerr.StoreUnavailable("uncondensed_summaries", err)
	}
	return sums, nil
}

func (s *SQLiteStore) TopLevelSummaries(ctx context.Context, sessionID string) ([]Summary, error) {
	var sums []Summary
	err := s.pool.DB().WithContext(ctx).Raw(
		`SELECT s.* FROM summaries s
		 WHERE s.session_id = ?
		   AND NOT EXISTS (
		     SELECT 1 FROM summary_children sc
		     WHERE sc.child_kind = ? AND sc.child_id = s.id
		   )
		 ORDER BY s.id`,
		sessionID, ChildSummary,
	).Scan(&sums).Error
	if err != nil {
		return nil, lcmerr.StoreUnavailable("top_level_summaries", err)
	}
	return sums, nil
}

func (s *SQLiteStore) SessionTotals(ctx context.Context, sessionID string) (SessionTotals, error) {
	var sess Session
	err := s.pool.DB().WithContext(ctx).Where("id = ?", sessionID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionTotals{SessionID: sessionID}, nil
	}
	if err != nil {
		return SessionTotals{}, lcmerr.StoreUnavailable("session_totals", err)
	}

	var unsummarized int64
	if err := s.pool.DB().WithContext(ctx).Model(&Message{}).
		Where("session_id = ? AND summarized = ?", sessionID, false).
		Count(&unsummarized).Error; err != nil {
		return SessionTotals{}, lcmerr.StoreUnavailable("session_totals", err)
	}

	return SessionTotals{
		SessionID:            sessionID,
		TotalTokens:          sess.TotalTokens,
		UnsummarizedMessages: int(unsummarized),
	}, nil
}

func (s *SQLiteStore) Stats(ctx context.Context, sessionID string) (Stats, error) {
	db := s.pool.DB().WithContext(ctx)

	var messageCount int64
	if err := db.Model(&Message{}).Where("session_id = ?", sessionID).Count(&messageCount).Error; err != nil {
		return Stats{}, lcmerr.StoreUnavailable("stats", err)
	}

	var levelRows []struct {
		Level int
		N     int
	}
	if err := db.Raw(
		`SELECT level, COUNT(*) AS n FROM summaries WHERE session_id = ? GROUP BY level`,
		sessionID,
	).Scan(&levelRows).Error; err != nil {
		return Stats{}, lcmerr.StoreUnavailable("stats", err)
	}
	byLevel := make(map[int]int, len(levelRows))
	depth := 0
	for _, r := range levelRows {
		byLevel[r.Level] = r.N
		if r.Level+1 > depth {
			depth = r.Level + 1
		}
	}

	var unsummarizedTokens int
	if err := db.Model(&Message{}).
		Where("session_id = ? AND summarized = ?", sessionID, false).
		Select("COALESCE(SUM(token_count), 0)").Scan(&unsummarizedTokens).Error; err != nil {
		return Stats{}, lcmerr.StoreUnavailable("stats", err)
	}

	var sess Session
	err := db.Where("id = ?", sessionID).First(&sess).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Stats{}, lcmerr.StoreUnavailable("stats", err)
	}

	return Stats{
		MessageCount:        int(messageCount),
		SummaryCountByLevel: byLevel,
		TokensSummarized:    sess.TotalTokens - unsummarizedTokens,
		TokensUnsummarized:  unsummarizedTokens,
		DAGDepth:            depth,
	}, nil
}

func (s *SQLiteStore) ParentOf(ctx context.Context, ref string) (string, error) {
	kind, id, err := ParseRef(ref)
	if err != nil {
		return "", lcmerr.InputError("parent_of", err)
	}
	childKind := ChildMessage
	if kind == RefSummary {
		childKind = ChildSummary
	}
	covered, err := s.coveredBy(ctx, childKind, id)
	if err != nil {
		return "", lcmerr.StoreUnavailable("parent_of", err)
	}
	return covered, nil
}

// CoveringSummary walks ref's chain of summary_children parents to the
// highest-level ancestor currently covering it. A message or summary
// that has since been absorbed into a condensed parent reports that
// parent, not the leaf that first covered it.
func (s *SQLiteStore) CoveringSummary(ctx context.Context, ref string) (string, error) {
	current := ref
	highest := ""
	for {
		parent, err := s.ParentOf(ctx, current)
		if err != nil {
			return "", err
		}
		if parent == "" {
			return highest, nil
		}
		highest = parent
		current = parent
	}
}

func (s *SQLiteStore) SummaryChildren(ctx context.Context, sessionID, ref string) ([]ChildPreview, error) {
	kind, id, err := ParseRef(ref)
	if err != nil {
		return nil, lcmerr.InputError("summary_children", err)
	}
	if kind != RefSummary {
		return nil, lcmerr.InputError("summary_children", fmt.Errorf("ref %q is not a summary", ref))
	}

	var childKind ChildKind
	row := s.pool.DB().WithContext(ctx).Raw(
		`SELECT child_kind FROM summary_children WHERE summary_id = ? LIMIT 1`,
		id,
	).Row()
	if err := row.Scan(&childKind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []ChildPreview{}, nil
		}
		return nil, lcmerr.StoreUnavailable("summary_children", err)
	}

	var childIDs []int64
	if err := s.pool.DB().WithContext(ctx).Raw(
		`SELECT child_id FROM summary_children WHERE summary_id = ?`,
		id,
	).Scan(&childIDs).Error; err != nil {
		return nil, lcmerr.StoreUnavailable("summary_children", err)
	}

	var rows []contentRow
	table := "messages"
	if childKind == ChildSummary {
		table = "summaries"
	}
	query := fmt.Sprintf(
		`SELECT id, content FROM %s WHERE session_id = ? AND id IN ? ORDER BY id`, table,
	)
	if err := s.pool.DB().WithContext(ctx).Raw(query, sessionID, childIDs).Scan(&rows).Error; err != nil {
		return nil, lcmerr.StoreUnavailable("summary_children", err)
	}

	previews := make([]ChildPreview, 0, len(rows))
	for _, r := range rows {
		childRef := MessageRef(r.ID)
		if childKind == ChildSummary {
			childRef = SummaryRef(r.ID)
		}
		previews = append(previews, ChildPreview{
			Ref:        childRef,
			Preview:    excerpt(r.Content),
			TokenCount: tokenest.Estimate(r.Content),
		})
	}
	return previews, nil
}

// sanitizeFTS quotes each token so punctuation in captured content never
// breaks FTS5's MATCH syntax.
func sanitizeFTS(q string) string {
	fields := strings.Fields(q)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " ")
}

const excerptMaxRunes = 200

func excerpt(content string) string {
	r := []rune(content)
	if len(r) <= excerptMaxRunes {
		return content
	}
	return string(r[:excerptMaxRunes]) + "..."
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func paginate(hits []SearchHit, page, pageSize int) *SearchPage {
	page = normalizePage(page)
	if pageSize <= 0 {
		pageSize = 10
	}

	start := (page - 1) * pageSize
	if start > len(hits) {
		start = len(hits)
	}
	end := start + pageSize
	if end > len(hits) {
		end = len(hits)
	}

	return &SearchPage{
		Hits:    append([]SearchHit{}, hits[start:end]...),
		Page:    page,
		HasMore: end < len(hits),
	}
}
