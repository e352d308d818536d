// Package history canonicalizes inbound chat histories into the ordering the
// upstream requires: every tool result must directly follow the assistant
// turn that issued the matching tool call.
package history

import (
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Reorder returns a history where each tool message sits immediately after
// the assistant message whose tool_calls produced it. Tool messages with no
// matching assistant anywhere in the history are demoted to user messages
// with their content wrapped, so packet construction never trips over them.
// Caller order is preserved for everything else. The operation is idempotent.
func Reorder(msgs []openai.ChatCompletionMessage) []openai.ChatCompletionMessage {
	// Which assistant turn owns each tool_call_id.
	owner := make(map[string]int)
	for i, m := range msgs {
		if m.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			if tc.ID == "" {
				continue
			}
			if _, seen := owner[tc.ID]; !seen {
				owner[tc.ID] = i
			}
		}
	}

	// Group matched tool results under their assistant, in caller order.
	resultsFor := make(map[int][]openai.ChatCompletionMessage)
	for _, m := range msgs {
		if m.Role != openai.ChatMessageRoleTool {
			continue
		}
		if src, ok := owner[m.ToolCallID]; ok && m.ToolCallID != "" {
			resultsFor[src] = append(resultsFor[src], m)
		}
	}

	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for i, m := range msgs {
		if m.Role == openai.ChatMessageRoleTool {
			if _, ok := owner[m.ToolCallID]; ok && m.ToolCallID != "" {
				continue // emitted alongside its assistant
			}
			out = append(out, demote(m))
			continue
		}
		out = append(out, m)
		if m.Role == openai.ChatMessageRoleAssistant {
			out = append(out, resultsFor[i]...)
		}
	}
	return out
}

func demote(m openai.ChatCompletionMessage) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: fmt.Sprintf("[tool result %s]: %s", m.ToolCallID, MessageText(m)),
	}
}
