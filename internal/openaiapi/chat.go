package openaiapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/agentbridge/agentbridge/internal/history"
	"github.com/agentbridge/agentbridge/internal/packet"
	"github.com/agentbridge/agentbridge/internal/translate"
	"github.com/agentbridge/agentbridge/internal/upstream"
)

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.Messages) == 0 {
		writeDetail(w, http.StatusBadRequest, "messages cannot be empty")
		return
	}

	msgs := history.Reorder(req.Messages)
	envelope, err := s.Builder.Build(msgs, req.Tools, req.Model)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	payload, err := s.Upstream.Codec.Encode(ctx, s.Upstream.RequestType, envelope)
	if err != nil {
		log.Error().Err(err).Msg("envelope encoding failed")
		writeDetail(w, http.StatusBadGateway, fmt.Sprintf("encoding failed: %v", err))
		return
	}
	s.Hub.LogPacket("request", previewEnvelope(envelope), len(payload))

	completionID := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()
	model := s.displayModel(req.Model)

	if req.Stream {
		s.streamCompletion(w, r, payload, completionID, created, model)
		return
	}
	s.aggregateCompletion(w, r, payload, completionID, created, model)
}

func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, payload []byte, completionID string, created int64, model string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	flush := func() {}
	if flusher != nil {
		flush = flusher.Flush
	}

	tr := translate.NewTranslator(w, flush, completionID, created, model)
	if err := tr.Open(); err != nil {
		log.Debug().Err(err).Msg("caller gone before stream opened")
		return
	}
	if err := s.Upstream.Stream(r.Context(), payload, func(ev upstream.Event) error {
		s.logEvent(ev)
		return tr.OnEvent(ev)
	}); err != nil {
		log.Warn().Err(err).Str("completion", completionID).Msg("stream ended with upstream error")
		tr.Fail(err)
		return
	}
	if err := tr.Done(); err != nil {
		log.Debug().Err(err).Msg("caller gone while finishing stream")
	}
}

func (s *Server) aggregateCompletion(w http.ResponseWriter, r *http.Request, payload []byte, completionID string, created int64, model string) {
	var agg translate.Aggregator
	err := s.Upstream.Stream(r.Context(), payload, func(ev upstream.Event) error {
		s.logEvent(ev)
		return agg.OnEvent(ev)
	})
	if err != nil {
		status, detail := mapUpstreamError(err)
		log.Warn().Err(err).Str("completion", completionID).Msg("completion failed")
		writeDetail(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, agg.Response(completionID, created, model))
}

// mapUpstreamError picks the caller-facing status: anything the upstream
// answered or refused becomes a 502 with the body preserved, everything else
// is a plain 500.
func mapUpstreamError(err error) (int, string) {
	var se *upstream.StatusError
	if errors.As(err, &se) {
		return http.StatusBadGateway, fmt.Sprintf("upstream returned status %d: %s", se.Status, se.Body)
	}
	if errors.Is(err, upstream.ErrQuotaExhausted) {
		return http.StatusBadGateway, err.Error()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusInternalServerError, "request cancelled"
	}
	return http.StatusBadGateway, fmt.Sprintf("upstream unreachable: %v", err)
}

func (s *Server) displayModel(requested string) string {
	if requested != "" {
		return requested
	}
	if s.Builder != nil && s.Builder.Model != "" {
		return s.Builder.Model
	}
	return packet.DefaultModel
}

func (s *Server) logEvent(ev upstream.Event) {
	if s.Hub == nil {
		return
	}
	kind := upstream.Kind(ev)
	preview := ""
	if b, err := json.Marshal(ev.Raw()); err == nil {
		preview = string(b)
	}
	s.Hub.LogPacket("event:"+kind, preview, len(preview))
}

// previewEnvelope renders a short JSON prefix of the outgoing envelope for
// the inspector feed.
func previewEnvelope(envelope map[string]any) string {
	b, err := json.Marshal(envelope)
	if err != nil {
		return ""
	}
	return string(b)
}
