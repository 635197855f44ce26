package capture

import (
	"encoding/json"
	"fmt"
	"strings"
)

// transcriptLine is the top-level JSON object on each line of the host's
// transcript file.
type transcriptLine struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	ParentID  string          `json:"parentId"`
	Timestamp string          `json:"timestamp"`
	Message   json.RawMessage `json:"message"`
}

// transcriptMessage is the nested message payload within a transcript line.
type transcriptMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// contentBlock is one element of a structured (array-form) message content
// field: text, thinking, a tool call, or a tool result.
type contentBlock struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// filePathInputKeys are the tool-input argument names most file-oriented
// tools (Read, Write, Edit, NotebookEdit) use to name the file they
// operate on, tried in order.
var filePathInputKeys = []string{"file_path", "path", "notebook_path"}

// parseBlocks attempts to parse raw as a list of structured content
// blocks, returning ok=false if it is a bare string or unstructured value.
func parseBlocks(raw json.RawMessage) ([]contentBlock, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, false
	}
	return blocks, true
}

// blockFilePath extracts the file path a tool_use block's input names, if
// any of filePathInputKeys is present.
func blockFilePath(block contentBlock) string {
	if len(block.Input) == 0 {
		return ""
	}
	var args map[string]json.RawMessage
	if err := json.Unmarshal(block.Input, &args); err != nil {
		return ""
	}
	for _, key := range filePathInputKeys {
		raw, ok := args[key]
		if !ok {
			continue
		}
		var value string
		if err := json.Unmarshal(raw, &value); err == nil && value != "" {
			return value
		}
	}
	return ""
}

// isMessageRecord reports whether a transcript line carries a message to
// capture, as opposed to metadata the host also logs to the same file.
func isMessageRecord(line transcriptLine) bool {
	return line.Type == "" || line.Type == "message" || line.Type == "user" || line.Type == "assistant"
}

// normalizeContent flattens a message's content field, which may be a
// bare string or a list of typed blocks, into one searchable string.
// Variant-specific fields (tool name, arguments, result status) are
// serialized into a structured prefix per block so full-text search
// indexes them uniformly.
func normalizeContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return strings.TrimSpace(asString)
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		parts := make([]string, 0, len(blocks))
		for _, block := range blocks {
			if part := formatContentBlock(block); part != "" {
				parts = append(parts, part)
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	}

	var asAny any
	if err := json.Unmarshal(raw, &asAny); err == nil {
		return strings.TrimSpace(fmt.Sprintf("%v", asAny))
	}
	return strings.TrimSpace(string(raw))
}

func formatContentBlock(block contentBlock) string {
	switch block.Type {
	case "text":
		return strings.TrimSpace(block.Text)
	case "thinking":
		if strings.TrimSpace(block.Thinking) != "" {
			return "[thinking] " + strings.TrimSpace(block.Thinking)
		}
		return "[thinking]"
	case "tool_use":
		name := strings.TrimSpace(block.Name)
		if name == "" {
			name = "unknown"
		}
		input := strings.TrimSpace(string(block.Input))
		if input == "" || input == "null" {
			return fmt.Sprintf("[tool_use] %s", name)
		}
		return fmt.Sprintf("[tool_use] %s %s", name, input)
	case "tool_result":
		nested := normalizeContent(block.Content)
		tag := "[tool_result]"
		if block.IsError {
			tag = "[tool_result error]"
		}
		if nested != "" {
			return tag + " " + nested
		}
		return tag
	default:
		if strings.TrimSpace(block.Text) != "" {
			return strings.TrimSpace(block.Text)
		}
		if len(block.Content) > 0 {
			if nested := normalizeContent(block.Content); nested != "" {
				return nested
			}
		}
		if block.Type != "" {
			return "[" + block.Type + "]"
		}
		return ""
	}
}
