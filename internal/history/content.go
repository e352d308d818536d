package history

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// MessageText flattens a chat message's content to plain text. Callers send
// either a bare string or an ordered list of typed segments; only text
// segments contribute.
func MessageText(m openai.ChatCompletionMessage) string {
	if m.Content != "" {
		return m.Content
	}
	if len(m.MultiContent) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m.MultiContent))
	for _, seg := range m.MultiContent {
		if seg.Type == openai.ChatMessagePartTypeText && strings.TrimSpace(seg.Text) != "" {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// SystemPrompt joins the text of all system messages with a blank line,
// preserving their relative order. Returns "" when there are none.
func SystemPrompt(msgs []openai.ChatCompletionMessage) string {
	var chunks []string
	for _, m := range msgs {
		if m.Role != openai.ChatMessageRoleSystem {
			continue
		}
		if txt := MessageText(m); strings.TrimSpace(txt) != "" {
			chunks = append(chunks, txt)
		}
	}
	return strings.Join(chunks, "\n\n")
}
