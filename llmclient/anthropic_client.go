package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements Client against the Anthropic Messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

var _ Client = (*AnthropicClient)(nil)

// NewAnthropicClient builds a Client authenticated with apiKey, targeting
// model for every call.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *AnthropicClient) Summarize(ctx context.Context, messages []Message, kind string, maxTokens int) (string, error) {
	system, err := systemPromptFor(kind)
	if err != nil {
		return "", err
	}

	conversationText := formatMessagesForSummary(messages)
	userPrompt := buildSummarizeUserPrompt(conversationText, maxTokens)

	stream := c.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})

	accumulated := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := accumulated.Accumulate(event); err != nil {
			return "", fmt.Errorf("accumulate summarize stream: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("summarize stream: %w", err)
	}

	var out strings.Builder
	for _, block := range accumulated.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("summarize: empty response")
	}
	return out.String(), nil
}

func (c *AnthropicClient) Classify(ctx context.Context, text string, labels []string) (string, error) {
	if len(labels) == 0 {
		return "", fmt.Errorf("classify: no labels supplied")
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 32,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildClassifyPrompt(text, labels))),
		},
	})
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}

	var raw string
	for _, block := range message.Content {
		if block.Type == "text" {
			raw += block.Text
		}
	}
	raw = strings.TrimSpace(raw)

	for _, label := range labels {
		if strings.EqualFold(raw, label) {
			return label, nil
		}
	}
	for _, label := range labels {
		if strings.Contains(strings.ToLower(raw), strings.ToLower(label)) {
			return label, nil
		}
	}
	return "", fmt.Errorf("classify: model response %q did not match any label", raw)
}

func (c *AnthropicClient) AgentLoop(ctx context.Context, system string, tools []ToolSpec, exec ToolExecutor, initial string, maxTurns int) (string, error) {
	if maxTurns <= 0 {
		maxTurns = 1
	}

	toolUnions := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return "", fmt.Errorf("agent_loop: tool %q schema: %w", t.Name, err)
			}
		}
		tp := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: schema,
		}
		toolUnions = append(toolUnions, anthropic.ToolUnionParam{OfTool: &tp})
	}

	history := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(initial)),
	}

	for turn := 0; turn < maxTurns; turn++ {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: 4096,
			Messages:  history,
			Tools:     toolUnions,
		}
		if system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("agent_loop: %w", err)
		}

		assistantContent := make([]anthropic.ContentBlockParamUnion, 0, len(message.Content))
		var toolCalls []ToolCall
		var finalText strings.Builder

		for _, block := range message.Content {
			switch block.Type {
			case "text":
				finalText.WriteString(block.Text)
				assistantContent = append(assistantContent, anthropic.NewTextBlock(block.Text))
			case "tool_use":
				toolCalls = append(toolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input})
				assistantContent = append(assistantContent, anthropic.NewToolUseBlock(block.ID, json.RawMessage(block.Input), block.Name))
			}
		}
		history = append(history, anthropic.NewAssistantMessage(assistantContent...))

		if message.StopReason != "tool_use" || len(toolCalls) == 0 {
			return finalText.String(), nil
		}

		resultBlocks := make([]anthropic.ContentBlockParamUnion, 0, len(toolCalls))
		for _, call := range toolCalls {
			result, err := exec(ctx, call)
			isError := err != nil
			if err != nil {
				result = err.Error()
			}
			resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(call.ID, result, isError))
		}
		history = append(history, anthropic.NewUserMessage(resultBlocks...))
	}

	return "", fmt.Errorf("agent_loop: exceeded %d turns without a final response", maxTurns)
}
