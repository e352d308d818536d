// Package packet assembles the upstream request envelope from a reordered
// chat history, the caller's tools, and the process session state.
package packet

import (
	"fmt"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/agentbridge/agentbridge/internal/history"
	"github.com/agentbridge/agentbridge/internal/schema"
	"github.com/agentbridge/agentbridge/internal/smd"
	"github.com/agentbridge/agentbridge/internal/state"
)

// DefaultModel is used when neither the caller nor configuration names one.
const DefaultModel = "claude-4.1-opus"

// Builder constructs request envelopes. The zero value works; Session and
// Model are optional.
type Builder struct {
	Session *state.Session
	Model   string // configured default, falls back to DefaultModel
}

// Build produces a fully-populated envelope ready for encoding. The history
// must already be reordered. Build fails only on caller mistakes (empty
// history).
func (b *Builder) Build(msgs []openai.ChatCompletionMessage, tools []openai.Tool, model string) (map[string]any, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("messages cannot be empty")
	}

	var conversationID, baselineTaskID string
	if b.Session != nil {
		conversationID, baselineTaskID = b.Session.Snapshot()
	}
	taskID := baselineTaskID
	if taskID == "" {
		taskID = uuid.NewString()
	}

	systemPrompt := history.SystemPrompt(msgs)

	pkt := map[string]any{
		"task_context": map[string]any{
			"tasks": []any{
				map[string]any{
					"id":          taskID,
					"description": "",
					"status":      map[string]any{"in_progress": map[string]any{}},
					"messages":    TaskMessages(msgs),
				},
			},
			"active_task_id": taskID,
		},
		"input": buildInput(msgs, systemPrompt),
		"settings": map[string]any{
			"model_config": map[string]any{
				"base": b.resolveModel(model),
			},
		},
	}
	if conversationID != "" {
		pkt["metadata"] = map[string]any{"conversation_id": conversationID}
	}

	if mcpTools := mapTools(tools); len(mcpTools) > 0 {
		pkt["mcp_context"] = map[string]any{"tools": mcpTools}
	}
	pkt = schema.SanitizeEnvelope(pkt)
	pkt, _ = smd.EncodeEnvelope(pkt).(map[string]any)
	return pkt, nil
}

func (b *Builder) resolveModel(model string) string {
	if model != "" {
		return model
	}
	if b.Model != "" {
		return b.Model
	}
	return DefaultModel
}

// buildInput places the active turn under input: trailing tool results are
// inlined first, then the final user query carrying the system prompt as a
// referenced attachment.
func buildInput(msgs []openai.ChatCompletionMessage, systemPrompt string) map[string]any {
	inputs := make([]any, 0, 2)

	// Trailing tool results belong to the turn being answered.
	tail := len(msgs)
	for tail > 0 && msgs[tail-1].Role == openai.ChatMessageRoleTool {
		tail--
	}
	for _, m := range msgs[tail:] {
		inputs = append(inputs, map[string]any{
			"tool_call_result": map[string]any{
				"tool_call_id": m.ToolCallID,
				"results":      []any{map[string]any{"text": history.MessageText(m)}},
			},
		})
	}

	if query, ok := finalUserQuery(msgs[:tail]); ok || systemPrompt != "" {
		uq := map[string]any{"query": query}
		if systemPrompt != "" {
			uq["referenced_attachments"] = map[string]any{
				"SYSTEM_PROMPT": map[string]any{"plain_text": systemPrompt},
			}
		}
		inputs = append(inputs, map[string]any{"user_query": uq})
	}
	return map[string]any{"user_inputs": map[string]any{"inputs": inputs}}
}

// finalUserQuery returns the text of the last message when it is a user
// turn. A history ending in an assistant turn has no active query.
func finalUserQuery(msgs []openai.ChatCompletionMessage) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		switch msgs[i].Role {
		case openai.ChatMessageRoleSystem:
			continue
		case openai.ChatMessageRoleUser:
			return history.MessageText(msgs[i]), true
		default:
			return "", false
		}
	}
	return "", false
}

// mapTools converts function tools into the upstream's tool records. The
// input schemas are sanitized later with the rest of the envelope.
func mapTools(tools []openai.Tool) []any {
	out := make([]any, 0, len(tools))
	for _, t := range tools {
		if t.Type != openai.ToolTypeFunction || t.Function == nil {
			continue
		}
		out = append(out, map[string]any{
			"name":         t.Function.Name,
			"description":  t.Function.Description,
			"input_schema": parametersMap(t.Function.Parameters),
		})
	}
	return out
}

func parametersMap(params any) map[string]any {
	switch p := params.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return p
	default:
		// Tools built programmatically may carry a typed schema struct;
		// normalize through JSON.
		return roundTripMap(p)
	}
}
