package llmclient

import (
	"context"
	"encoding/json"
)

// Message is one turn fed to Summarize or AgentLoop. Role is "user",
// "assistant", or "system".
type Message struct {
	Role    string
	Content string
}

// ToolSpec describes one tool AgentLoop may call.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolCall is one tool invocation the model asked for.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolExecutor runs a tool call and returns its result text, or an error
// that is surfaced back to the model as a tool_result error block.
type ToolExecutor func(ctx context.Context, call ToolCall) (string, error)

// Client is the engine's LLM boundary. Implementations must be safe for
// concurrent use.
type Client interface {
	// Summarize produces text for one escalation level (§4.C): kind
	// selects the prompt template, maxTokens caps the response length.
	Summarize(ctx context.Context, messages []Message, kind string, maxTokens int) (string, error)

	// Classify returns the one label in labels that best matches text.
	Classify(ctx context.Context, text string, labels []string) (string, error)

	// AgentLoop runs a tool-calling loop, driven by exec, until the model
	// produces a final text response or maxTurns is exhausted. Used only
	// by the agentic_map operator; not part of the compaction hot path.
	AgentLoop(ctx context.Context, system string, tools []ToolSpec, exec ToolExecutor, initial string, maxTurns int) (string, error)
}
