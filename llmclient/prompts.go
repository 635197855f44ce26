package llmclient

import "fmt"

// Escalation kinds, mirrored from store.SummaryKind so this package does
// not need to import store for two string constants.
const (
	KindPreserveDetails = "preserve_details"
	KindBulletPoints    = "bullet_points"
)

const preserveDetailsSystemPrompt = `You compress a block of AI coding agent conversation messages into a faithful, long-form summary.

Keep verbatim: tool names, file paths, identifiers, command lines, error messages, and any quoted user text. Compress prose and narration. Do not drop a fact just to save space; drop only filler.

Write bulleted, long-form output. Do not invent information that is not in the block.`

const bulletPointsSystemPrompt = `You compress a block of AI coding agent conversation messages into short bullet points.

Keep only high-level actions taken and their outcomes: what was done, what changed, what failed. Drop intermediate reasoning, tool arguments, and verbatim output. Aim for the shortest summary that still lets the agent know what happened.

Do not invent information that is not in the block.`

func systemPromptFor(kind string) (string, error) {
	switch kind {
	case KindPreserveDetails:
		return preserveDetailsSystemPrompt, nil
	case KindBulletPoints:
		return bulletPointsSystemPrompt, nil
	default:
		return "", fmt.Errorf("unknown summarize kind %q", kind)
	}
}

func buildSummarizeUserPrompt(conversationText string, maxTokens int) string {
	return fmt.Sprintf(`Summarize the following conversation block. Stay under approximately %d tokens.

<conversation>
%s
</conversation>

Produce only the summary, with no preamble.`, maxTokens, conversationText)
}

func formatMessagesForSummary(messages []Message) string {
	var out string
	for _, m := range messages {
		role := "User"
		switch m.Role {
		case "assistant":
			role = "Assistant"
		case "system":
			role = "System"
		}
		out += role + ":\n" + m.Content + "\n\n"
	}
	return out
}

func buildClassifyPrompt(text string, labels []string) string {
	prompt := "Classify the following text with exactly one of these labels:\n"
	for _, l := range labels {
		prompt += "- " + l + "\n"
	}
	prompt += fmt.Sprintf("\n<text>\n%s\n</text>\n\nRespond with only the chosen label, nothing else.", text)
	return prompt
}
