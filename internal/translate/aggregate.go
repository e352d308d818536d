package translate

import (
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/agentbridge/agentbridge/internal/upstream"
)

// Aggregator folds the event stream into a single chat.completion response
// for non-streaming callers. Classification matches the streaming
// translator exactly; only the framing differs.
type Aggregator struct {
	text      strings.Builder
	toolCalls []openai.ToolCall
}

// OnEvent records one upstream event. Safe to use as the streamer's event
// callback.
func (a *Aggregator) OnEvent(ev upstream.Event) error {
	actions, ok := ev.(*upstream.ClientActions)
	if !ok {
		return nil
	}
	for _, action := range actions.Actions {
		switch act := action.(type) {
		case upstream.AppendContent:
			a.text.WriteString(act.Text)
		case upstream.AddMessages:
			for _, m := range act.Messages {
				if m.ToolCall != nil {
					a.addToolCall(m.ToolCall)
					continue
				}
				a.text.WriteString(m.Text)
			}
		}
	}
	return nil
}

func (a *Aggregator) addToolCall(call *upstream.MCPToolCall) {
	id := call.ID
	if id == "" {
		id = uuid.NewString()
	}
	a.toolCalls = append(a.toolCalls, openai.ToolCall{
		ID:   id,
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      call.Name,
			Arguments: encodeArgs(call.Args),
		},
	})
}

// Response assembles the final completion object.
func (a *Aggregator) Response(completionID string, created int64, model string) openai.ChatCompletionResponse {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
	reason := openai.FinishReasonStop
	if len(a.toolCalls) > 0 {
		msg.ToolCalls = a.toolCalls
		reason = openai.FinishReasonToolCalls
	} else {
		msg.Content = a.text.String()
	}
	return openai.ChatCompletionResponse{
		ID:      completionID,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: reason,
		}},
	}
}
