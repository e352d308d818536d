package history

import (
	"reflect"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func user(text string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}
}

func assistantCalls(ids ...string) openai.ChatCompletionMessage {
	m := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
	for _, id := range ids {
		m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
			ID:       id,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: "f", Arguments: "{}"},
		})
	}
	return m
}

func toolResult(id, text string) openai.ChatCompletionMessage {
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, ToolCallID: id, Content: text}
}

func roles(msgs []openai.ChatCompletionMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestReorderMovesStrayResults(t *testing.T) {
	// The result of call-1 arrives after an unrelated user turn.
	in := []openai.ChatCompletionMessage{
		user("start"),
		assistantCalls("call-1"),
		user("interruption"),
		toolResult("call-1", "result"),
	}
	got := Reorder(in)
	want := []string{"user", "assistant", "tool", "user"}
	if !reflect.DeepEqual(roles(got), want) {
		t.Fatalf("roles = %v, want %v", roles(got), want)
	}
	if got[2].ToolCallID != "call-1" {
		t.Fatalf("tool result not adjacent to its assistant: %+v", got[2])
	}
}

func TestReorderKeepsRelativeResultOrder(t *testing.T) {
	in := []openai.ChatCompletionMessage{
		assistantCalls("a", "b"),
		user("x"),
		toolResult("b", "second"),
		toolResult("a", "first"),
	}
	got := Reorder(in)
	if got[1].ToolCallID != "b" || got[2].ToolCallID != "a" {
		t.Fatalf("arrival order not preserved: %v, %v", got[1].ToolCallID, got[2].ToolCallID)
	}
}

func TestReorderDemotesOrphans(t *testing.T) {
	in := []openai.ChatCompletionMessage{
		user("hi"),
		toolResult("ghost", "output text"),
	}
	got := Reorder(in)
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[1].Role != openai.ChatMessageRoleUser {
		t.Fatalf("orphan not demoted: role %q", got[1].Role)
	}
	if got[1].Content != "[tool result ghost]: output text" {
		t.Fatalf("wrapped content = %q", got[1].Content)
	}
	if got[1].ToolCallID != "" {
		t.Fatal("demoted message must not keep its tool_call_id")
	}
}

func TestReorderAlreadyOrdered(t *testing.T) {
	in := []openai.ChatCompletionMessage{
		user("q"),
		assistantCalls("call-1"),
		toolResult("call-1", "r"),
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "answer"},
	}
	got := Reorder(in)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("well-formed history changed:\n got %+v\nwant %+v", got, in)
	}
}

func TestReorderIdempotent(t *testing.T) {
	in := []openai.ChatCompletionMessage{
		user("start"),
		toolResult("ghost", "orphan"),
		assistantCalls("a", "b"),
		user("mid"),
		toolResult("b", "rb"),
		toolResult("a", "ra"),
		user("end"),
	}
	once := Reorder(in)
	twice := Reorder(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("not idempotent:\nonce:  %v\ntwice: %v", roles(once), roles(twice))
	}
}

func TestReorderEmpty(t *testing.T) {
	if got := Reorder(nil); len(got) != 0 {
		t.Fatalf("Reorder(nil) = %v", got)
	}
}

func TestMessageTextSegments(t *testing.T) {
	m := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: "first"},
			{Type: openai.ChatMessagePartTypeImageURL},
			{Type: openai.ChatMessagePartTypeText, Text: "second"},
		},
	}
	if got := MessageText(m); got != "first\nsecond" {
		t.Fatalf("MessageText = %q", got)
	}
	if got := MessageText(user("plain")); got != "plain" {
		t.Fatalf("MessageText = %q", got)
	}
}

func TestSystemPromptJoin(t *testing.T) {
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: "one"},
		user("ignored"),
		{Role: openai.ChatMessageRoleSystem, Content: "two"},
	}
	if got := SystemPrompt(msgs); got != "one\n\ntwo" {
		t.Fatalf("SystemPrompt = %q", got)
	}
	if got := SystemPrompt([]openai.ChatCompletionMessage{user("x")}); got != "" {
		t.Fatalf("SystemPrompt = %q, want empty", got)
	}
}
