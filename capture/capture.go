package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dpalmqvist/lossless-context-management/config"
	"github.com/dpalmqvist/lossless-context-management/internal/metrics"
	"github.com/dpalmqvist/lossless-context-management/lcmerr"
	"github.com/dpalmqvist/lossless-context-management/store"
)

// Result summarizes one capture pass.
type Result struct {
	MessagesAppended int
	BlobsDiverted    int
	BytesDiverted    int64
}

// Capturer runs the transcript-diff protocol against one store.
type Capturer struct {
	store     store.Store
	cfg       config.CaptureConfig
	blobs     *blobStore
	collector *metrics.Collector
	logger    *zap.Logger
}

// New builds a Capturer. cfg.BlobStorageDir is created on first write.
func New(st store.Store, cfg config.CaptureConfig, collector *metrics.Collector, logger *zap.Logger) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{
		store:     st,
		cfg:       cfg,
		blobs:     newBlobStore(cfg.BlobStorageDir),
		collector: collector,
		logger:    logger.With(zap.String("component", "capture")),
	}
}

// Run reads transcriptPath, assigns each message record a sequential
// transcript_offset starting at 1, skips everything at or below the
// session's last stored offset, and appends the rest. A missing or
// malformed transcript degrades to a no-op TranscriptUnreadable error
// rather than a fatal one, per spec.md §7.
func (c *Capturer) Run(ctx context.Context, sessionID, transcriptPath string) (Result, error) {
	file, err := os.Open(transcriptPath)
	if err != nil {
		return Result{}, lcmerr.TranscriptUnreadable("capture", err)
	}
	defer file.Close()

	lastOffset, err := c.store.LastTranscriptOffset(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	var result Result
	var offset int64

	// toolUsePaths/toolUseNames remember, across the whole rescan, which
	// file (if any) a tool_use block named — so that the tool_result
	// block appearing later in the transcript, which carries no file
	// argument of its own, can still be attributed to that file for
	// blob-dedup purposes.
	toolUsePaths := make(map[string]string)
	toolUseNames := make(map[string]string)

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line transcriptLine
		if err := json.Unmarshal(raw, &line); err != nil {
			c.logger.Warn("skipping malformed transcript line", zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		if !isMessageRecord(line) {
			continue
		}

		var msg transcriptMessage
		if len(line.Message) > 0 {
			if err := json.Unmarshal(line.Message, &msg); err != nil {
				c.logger.Warn("skipping malformed message payload", zap.String("session_id", sessionID), zap.Error(err))
				continue
			}
		}

		divertPath, divertTool := observeBlocks(msg.Content, toolUsePaths, toolUseNames)

		offset++
		if offset <= lastOffset {
			continue
		}

		role := msg.Role
		if role == "" {
			role = line.Type
		}
		if role == "" {
			role = "unknown"
		}

		content := normalizeContent(msg.Content)
		content, fileID, diverted, byteSize, err := c.divertIfLarge(ctx, sessionID, offset, content, divertPath, divertTool)
		if err != nil {
			return result, err
		}
		if diverted {
			result.BlobsDiverted++
			result.BytesDiverted += byteSize
		}

		appended, err := c.store.AppendMessage(ctx, sessionID, offset, role, content)
		if err != nil {
			return result, err
		}
		result.MessagesAppended++

		if diverted {
			if err := c.store.RecordFileSeen(ctx, fileID, appended.ID); err != nil {
				return result, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return result, lcmerr.TranscriptUnreadable("capture", err)
	}

	c.collector.RecordCapture(sessionID, result.MessagesAppended, result.BlobsDiverted, result.BytesDiverted)
	return result, nil
}

// divertIfLarge writes content exceeding the blob threshold to the file
// store and returns a short inline replacement ("F{id} <snippet>") plus
// the file id and byte size; content under the threshold passes through
// unchanged. hintPath, when non-empty, is the real file path a tool_use
// or tool_result block named for this content, which lets identical
// blobs at the same path dedupe per spec; when no such path could be
// derived, hintTool (the tool name, if any) plus the offset stand in —
// still deterministic across a rescan, but unable to dedupe across
// repeated calls with no file argument of their own (e.g. bash output).
func (c *Capturer) divertIfLarge(ctx context.Context, sessionID string, offset int64, content, hintPath, hintTool string) (string, int64, bool, int64, error) {
	if len(content) <= c.cfg.BlobThresholdBytes {
		return content, 0, false, 0, nil
	}

	hash, uri, err := c.blobs.write(content)
	if err != nil {
		return "", 0, false, 0, lcmerr.StoreUnavailable("capture", err)
	}

	path := hintPath
	if path == "" {
		tool := hintTool
		if tool == "" {
			tool = "blob"
		}
		path = fmt.Sprintf("%s/%s/offset-%d", sessionID, tool, offset)
	}

	snippet := excerpt(content)
	fileRef, err := c.store.UpsertFile(ctx, sessionID, path, hash, int64(len(content)), uri, snippet)
	if err != nil {
		return "", 0, false, 0, err
	}

	return fmt.Sprintf("%s %s", store.FileRefID(fileRef.ID), snippet), fileRef.ID, true, int64(len(content)), nil
}

// observeBlocks updates toolUsePaths/toolUseNames from any tool_use
// blocks in raw, and returns the file path and tool name (if any) this
// message's own blocks resolve to — directly from a tool_use's input,
// or via a tool_result's tool_use_id lookup into a prior tool_use.
func observeBlocks(raw json.RawMessage, toolUsePaths, toolUseNames map[string]string) (string, string) {
	blocks, ok := parseBlocks(raw)
	if !ok {
		return "", ""
	}

	var path, tool string
	for _, block := range blocks {
		switch block.Type {
		case "tool_use":
			if block.Name != "" {
				toolUseNames[block.ID] = block.Name
			}
			if p := blockFilePath(block); p != "" {
				toolUsePaths[block.ID] = p
			}
			if path == "" {
				path = toolUsePaths[block.ID]
				tool = block.Name
			}
		case "tool_result":
			if path == "" {
				path = toolUsePaths[block.ToolUseID]
				tool = toolUseNames[block.ToolUseID]
			}
		}
	}
	return path, tool
}

func excerpt(s string) string {
	const maxRunes = 200
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + "..."
}
