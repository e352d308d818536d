// Package translate re-emits upstream events as OpenAI-style completion
// chunks. The streaming translator writes SSE frames as events arrive; the
// aggregator collects the same classification into a single response.
package translate

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/agentbridge/agentbridge/internal/upstream"
)

const chunkObject = "chat.completion.chunk"

// streamState tracks the translator lifecycle.
type streamState int

const (
	stateOpened streamState = iota
	stateStreaming
	stateTerminatedOK
	stateTerminatedError
)

// Translator converts upstream events into chat.completion.chunk SSE frames
// with the framing the OpenAI streaming API promises: one opening role
// chunk, deltas in arrival order, one terminal chunk, then [DONE].
type Translator struct {
	CompletionID string
	Created      int64
	Model        string

	w     io.Writer
	flush func()

	state            streamState
	toolCallsEmitted bool
	doneSent         bool
}

// NewTranslator writes frames to w, calling flush (if non-nil) after each.
func NewTranslator(w io.Writer, flush func(), completionID string, created int64, model string) *Translator {
	if flush == nil {
		flush = func() {}
	}
	return &Translator{
		CompletionID: completionID,
		Created:      created,
		Model:        model,
		w:            w,
		flush:        flush,
	}
}

// Open emits the single role-opening chunk. It must be called exactly once,
// before any events are fed in.
func (t *Translator) Open() error {
	return t.writeChunk(openai.ChatCompletionStreamChoiceDelta{Role: openai.ChatMessageRoleAssistant}, "")
}

// OnEvent translates one upstream event. Safe to use as the streamer's
// event callback.
func (t *Translator) OnEvent(ev upstream.Event) error {
	if t.state == stateTerminatedOK || t.state == stateTerminatedError {
		return nil
	}
	switch e := ev.(type) {
	case *upstream.Init:
		// Correlation only; no chunk.
		return nil
	case *upstream.ClientActions:
		t.state = stateStreaming
		for _, action := range e.Actions {
			if err := t.onAction(action); err != nil {
				return err
			}
		}
		return nil
	case *upstream.Finished:
		t.state = stateStreaming
		return t.terminate()
	default:
		t.state = stateStreaming
		log.Debug().Str("event", upstream.Kind(ev)).Msg("ignoring unrecognized upstream event")
		return nil
	}
}

func (t *Translator) onAction(action upstream.Action) error {
	switch a := action.(type) {
	case upstream.AppendContent:
		if a.Text == "" {
			return nil
		}
		return t.writeChunk(openai.ChatCompletionStreamChoiceDelta{Content: a.Text}, "")
	case upstream.AddMessages:
		for _, m := range a.Messages {
			if m.ToolCall != nil {
				if err := t.writeToolCall(m.ToolCall); err != nil {
					return err
				}
				continue
			}
			if m.Text != "" {
				if err := t.writeChunk(openai.ChatCompletionStreamChoiceDelta{Content: m.Text}, ""); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		return nil
	}
}

func (t *Translator) writeToolCall(call *upstream.MCPToolCall) error {
	id := call.ID
	if id == "" {
		id = uuid.NewString()
	}
	idx := 0
	delta := openai.ChatCompletionStreamChoiceDelta{
		ToolCalls: []openai.ToolCall{{
			Index: &idx,
			ID:    id,
			Type:  openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Name,
				Arguments: encodeArgs(call.Args),
			},
		}},
	}
	if err := t.writeChunk(delta, ""); err != nil {
		return err
	}
	t.toolCallsEmitted = true
	return nil
}

// terminate emits the terminal chunk with the finish reason derived from
// whether any tool-call delta went out.
func (t *Translator) terminate() error {
	if t.state == stateTerminatedOK {
		return nil
	}
	reason := openai.FinishReasonStop
	if t.toolCallsEmitted {
		reason = openai.FinishReasonToolCalls
	}
	if err := t.writeChunk(openai.ChatCompletionStreamChoiceDelta{}, reason); err != nil {
		return err
	}
	t.state = stateTerminatedOK
	return nil
}

// Done closes out a stream that ended normally: the terminal chunk is
// emitted if the upstream never sent finished, then the [DONE] sentinel.
func (t *Translator) Done() error {
	if t.state != stateTerminatedOK && t.state != stateTerminatedError {
		if err := t.terminate(); err != nil {
			return err
		}
	}
	return t.writeDone()
}

// Fail emits the terminal error chunk followed by [DONE]. Output already
// sent is not retracted.
func (t *Translator) Fail(cause error) {
	if t.doneSent {
		return
	}
	chunk := errorChunk{
		ID:      t.CompletionID,
		Object:  chunkObject,
		Created: t.Created,
		Model:   t.Model,
		Choices: []errorChoice{{Index: 0, Delta: struct{}{}, FinishReason: "error"}},
		Error:   chunkError{Message: cause.Error()},
	}
	if err := t.writeFrame(chunk); err != nil {
		log.Debug().Err(err).Msg("caller gone while writing error chunk")
		return
	}
	t.state = stateTerminatedError
	_ = t.writeDone()
}

// Terminated reports whether a terminal chunk has been written.
func (t *Translator) Terminated() bool {
	return t.state == stateTerminatedOK || t.state == stateTerminatedError
}

func (t *Translator) writeChunk(delta openai.ChatCompletionStreamChoiceDelta, reason openai.FinishReason) error {
	chunk := openai.ChatCompletionStreamResponse{
		ID:      t.CompletionID,
		Object:  chunkObject,
		Created: t.Created,
		Model:   t.Model,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: reason,
		}},
	}
	return t.writeFrame(chunk)
}

func (t *Translator) writeFrame(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", b); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}
	t.flush()
	return nil
}

func (t *Translator) writeDone() error {
	if t.doneSent {
		return nil
	}
	t.doneSent = true
	if _, err := io.WriteString(t.w, "data: [DONE]\n\n"); err != nil {
		return fmt.Errorf("write done sentinel: %w", err)
	}
	t.flush()
	return nil
}

// encodeArgs renders tool-call args as a JSON object string, degrading to
// "{}" when serialization fails.
func encodeArgs(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// errorChunk mirrors the chunk envelope with the error payload the caller
// sees when a stream dies mid-flight.
type errorChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []errorChoice `json:"choices"`
	Error   chunkError    `json:"error"`
}

type errorChoice struct {
	Index        int      `json:"index"`
	Delta        struct{} `json:"delta"`
	FinishReason string   `json:"finish_reason"`
}

type chunkError struct {
	Message string `json:"message"`
}
