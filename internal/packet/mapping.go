package packet

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentbridge/agentbridge/internal/history"
)

// TaskMessages maps the full non-system history into upstream message
// shapes, one entry per message except assistant turns with tool calls,
// which expand to one entry per call.
func TaskMessages(msgs []openai.ChatCompletionMessage) []any {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case openai.ChatMessageRoleSystem:
			// Joined into the input attachment instead.
		case openai.ChatMessageRoleUser:
			out = append(out, map[string]any{
				"user_query": map[string]any{"query": history.MessageText(m)},
			})
		case openai.ChatMessageRoleAssistant:
			if len(m.ToolCalls) > 0 {
				for _, tc := range m.ToolCalls {
					out = append(out, map[string]any{
						"tool_call": map[string]any{
							"tool_call_id": tc.ID,
							"call_mcp_tool": map[string]any{
								"name": tc.Function.Name,
								"args": argsMap(tc.Function.Arguments),
							},
						},
					})
				}
				continue
			}
			out = append(out, map[string]any{
				"agent_output": map[string]any{"text": history.MessageText(m)},
			})
		case openai.ChatMessageRoleTool:
			out = append(out, map[string]any{
				"tool_call_result": map[string]any{
					"tool_call_id": m.ToolCallID,
					"content":      history.MessageText(m),
				},
			})
		}
	}
	return out
}

func argsMap(arguments string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(arguments), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func roundTripMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}
