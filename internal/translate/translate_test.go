package translate

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/agentbridge/agentbridge/internal/upstream"
)

type chunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    *int   `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// frames splits the SSE output into data payloads, "[DONE]" included.
func frames(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	var out []string
	for _, block := range strings.Split(buf.String(), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("frame without data prefix: %q", block)
		}
		out = append(out, strings.TrimPrefix(block, "data: "))
	}
	return out
}

func parseChunk(t *testing.T, payload string) chunk {
	t.Helper()
	var c chunk
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		t.Fatalf("bad chunk %q: %v", payload, err)
	}
	return c
}

func appendEvent(text string) upstream.Event {
	return upstream.ParseEvent(map[string]any{
		"client_actions": map[string]any{"actions": []any{
			map[string]any{"append_to_message_content": map[string]any{
				"message": map[string]any{"agent_output": map[string]any{"text": text}},
			}},
		}},
	})
}

func toolCallEvent(id, name string, args map[string]any) upstream.Event {
	return upstream.ParseEvent(map[string]any{
		"client_actions": map[string]any{"actions": []any{
			map[string]any{"add_messages_to_task": map[string]any{
				"task_id": "t1",
				"messages": []any{
					map[string]any{"tool_call": map[string]any{
						"tool_call_id":  id,
						"call_mcp_tool": map[string]any{"name": name, "args": args},
					}},
				},
			}},
		}},
	})
}

func finishedEvent() upstream.Event {
	return upstream.ParseEvent(map[string]any{"finished": map[string]any{}})
}

func TestContentStreamFraming(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranslator(&buf, nil, "chatcmpl-1", 1700000000, "claude-4.1-opus")

	if err := tr.Open(); err != nil {
		t.Fatal(err)
	}
	for _, txt := range []string{"Hel", "lo"} {
		if err := tr.OnEvent(appendEvent(txt)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tr.OnEvent(finishedEvent()); err != nil {
		t.Fatal(err)
	}
	if err := tr.Done(); err != nil {
		t.Fatal(err)
	}

	fs := frames(t, &buf)
	if len(fs) != 5 {
		t.Fatalf("frames = %d, want role+2 deltas+terminal+[DONE]", len(fs))
	}
	if fs[len(fs)-1] != "[DONE]" {
		t.Fatalf("last frame = %q", fs[len(fs)-1])
	}

	role := parseChunk(t, fs[0])
	if role.Object != "chat.completion.chunk" || role.ID != "chatcmpl-1" || role.Model != "claude-4.1-opus" {
		t.Fatalf("role chunk = %+v", role)
	}
	if role.Choices[0].Delta.Role != "assistant" || role.Choices[0].FinishReason != nil {
		t.Fatalf("role chunk choice = %+v", role.Choices[0])
	}

	if parseChunk(t, fs[1]).Choices[0].Delta.Content != "Hel" {
		t.Fatalf("first delta = %q", fs[1])
	}
	if parseChunk(t, fs[2]).Choices[0].Delta.Content != "lo" {
		t.Fatalf("second delta = %q", fs[2])
	}

	term := parseChunk(t, fs[3])
	if term.Choices[0].FinishReason == nil || *term.Choices[0].FinishReason != "stop" {
		t.Fatalf("terminal chunk = %+v", term.Choices[0])
	}
}

func TestToolCallFraming(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranslator(&buf, nil, "chatcmpl-2", 1, "m")
	if err := tr.Open(); err != nil {
		t.Fatal(err)
	}
	if err := tr.OnEvent(toolCallEvent("call-7", "search", map[string]any{"q": "go"})); err != nil {
		t.Fatal(err)
	}
	if err := tr.OnEvent(finishedEvent()); err != nil {
		t.Fatal(err)
	}
	if err := tr.Done(); err != nil {
		t.Fatal(err)
	}

	fs := frames(t, &buf)
	call := parseChunk(t, fs[1]).Choices[0].Delta.ToolCalls
	if len(call) != 1 {
		t.Fatalf("tool call deltas = %d", len(call))
	}
	if call[0].ID != "call-7" || call[0].Type != "function" || call[0].Function.Name != "search" {
		t.Fatalf("tool call = %+v", call[0])
	}
	if call[0].Index == nil || *call[0].Index != 0 {
		t.Fatalf("tool call index = %v", call[0].Index)
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(call[0].Function.Arguments), &args); err != nil || args["q"] != "go" {
		t.Fatalf("arguments = %q", call[0].Function.Arguments)
	}

	term := parseChunk(t, fs[2])
	if term.Choices[0].FinishReason == nil || *term.Choices[0].FinishReason != "tool_calls" {
		t.Fatalf("terminal = %+v", term.Choices[0])
	}
}

func TestToolCallWithoutIDGetsOne(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranslator(&buf, nil, "c", 1, "m")
	_ = tr.Open()
	_ = tr.OnEvent(toolCallEvent("", "f", nil))
	fs := frames(t, &buf)
	call := parseChunk(t, fs[1]).Choices[0].Delta.ToolCalls[0]
	if call.ID == "" {
		t.Fatal("missing tool call id must be generated")
	}
	if call.Function.Arguments != "{}" {
		t.Fatalf("nil args = %q, want {}", call.Function.Arguments)
	}
}

func TestDoneWithoutFinishedEmitsTerminal(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranslator(&buf, nil, "c", 1, "m")
	_ = tr.Open()
	_ = tr.OnEvent(appendEvent("x"))
	if err := tr.Done(); err != nil {
		t.Fatal(err)
	}
	fs := frames(t, &buf)
	if len(fs) != 4 {
		t.Fatalf("frames = %d, want role+delta+terminal+[DONE]", len(fs))
	}
	term := parseChunk(t, fs[2])
	if term.Choices[0].FinishReason == nil || *term.Choices[0].FinishReason != "stop" {
		t.Fatalf("terminal = %+v", term.Choices[0])
	}
}

func TestNoDuplicateTerminalChunk(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranslator(&buf, nil, "c", 1, "m")
	_ = tr.Open()
	_ = tr.OnEvent(finishedEvent())
	_ = tr.OnEvent(finishedEvent()) // ignored after termination
	_ = tr.OnEvent(appendEvent("late"))
	if err := tr.Done(); err != nil {
		t.Fatal(err)
	}
	fs := frames(t, &buf)
	if len(fs) != 3 {
		t.Fatalf("frames = %d, want role+terminal+[DONE]", len(fs))
	}
	if !tr.Terminated() {
		t.Fatal("translator must report terminated")
	}
}

func TestFailEmitsErrorChunk(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranslator(&buf, nil, "c", 1, "m")
	_ = tr.Open()
	_ = tr.OnEvent(appendEvent("partial"))
	tr.Fail(bytes.ErrTooLarge)

	fs := frames(t, &buf)
	if fs[len(fs)-1] != "[DONE]" {
		t.Fatalf("stream must end with [DONE], got %q", fs[len(fs)-1])
	}
	errChunk := parseChunk(t, fs[len(fs)-2])
	if errChunk.Choices[0].FinishReason == nil || *errChunk.Choices[0].FinishReason != "error" {
		t.Fatalf("error chunk = %+v", errChunk.Choices[0])
	}
	if errChunk.Error == nil || errChunk.Error.Message == "" {
		t.Fatalf("error payload = %+v", errChunk.Error)
	}
	if !tr.Terminated() {
		t.Fatal("Fail must terminate the stream")
	}
}

func TestInitAndOpaqueEmitNothing(t *testing.T) {
	var buf bytes.Buffer
	tr := NewTranslator(&buf, nil, "c", 1, "m")
	_ = tr.Open()
	_ = tr.OnEvent(upstream.ParseEvent(map[string]any{"init": map[string]any{"conversation_id": "x"}}))
	_ = tr.OnEvent(upstream.ParseEvent(map[string]any{"mystery": map[string]any{}}))
	if got := len(frames(t, &buf)); got != 1 {
		t.Fatalf("frames = %d, want only the role chunk", got)
	}
}

func TestFlushCalledPerFrame(t *testing.T) {
	var buf bytes.Buffer
	var flushes int
	tr := NewTranslator(&buf, func() { flushes++ }, "c", 1, "m")
	_ = tr.Open()
	_ = tr.OnEvent(appendEvent("x"))
	_ = tr.Done()
	if want := len(frames(t, &buf)); flushes != want {
		t.Fatalf("flushes = %d, frames = %d", flushes, want)
	}
}
